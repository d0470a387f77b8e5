package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"text/tabwriter"

	"dailybudget/internal/core"
	"dailybudget/internal/services"
)

var errUsage = errors.New("invalid usage")

func run(ctx context.Context, svc *services.BudgetService, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}
	switch args[0] {
	case "status":
		return status(svc, out)
	case "salary":
		return salary(ctx, svc, args[1:], out)
	case "category":
		return category(ctx, svc, args[1:], out)
	case "expense":
		return expense(ctx, svc, args[1:], out)
	case "history":
		return history(svc, out)
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, args[0])
	}
}

func status(svc *services.BudgetService, out io.Writer) error {
	metrics, err := svc.Metrics()
	if err != nil {
		return err
	}
	today := svc.Today()
	fmt.Fprintf(out, "%s, %d days and %d weeks left in %s\n",
		today, core.RemainingDaysInclusive(today), core.RemainingWeeksInclusive(today), core.PeriodOf(today).Label())

	s := svc.Salary()
	if s == nil {
		fmt.Fprintln(out, "Salary: not set")
	} else {
		fmt.Fprintf(out, "Salary: %s\n", s)
	}
	if len(metrics) == 0 {
		fmt.Fprintln(out, "Set a salary and add categories to see a budget.")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "Category\tAllocated\tLeft this month\tToday\tThis week\tSpent today\t")
	for _, c := range svc.Categories() {
		m := metrics[c.ID]
		weekly := "-"
		if c.ShowWeeklyBalance {
			weekly = m.WeeklyBalance.StringFixed(2)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t\n",
			c.Name,
			c.MonthlyAllocation,
			m.MonthlyBalance.StringFixed(2),
			m.DailyBudget.StringFixed(2),
			weekly,
			m.SpentToday.StringFixed(2))
	}
	return tw.Flush()
}

func salary(ctx context.Context, svc *services.BudgetService, args []string, out io.Writer) error {
	switch {
	case len(args) == 1 && args[0] == "clear":
		if err := svc.ClearSalary(ctx); err != nil {
			return err
		}
		fmt.Fprintln(out, "Salary cleared")
		return nil
	case len(args) == 2 && args[0] == "set":
		cents, err := core.ParseNonNegativeToCents(args[1])
		if err != nil {
			return fmt.Errorf("salary %q: %w", args[1], err)
		}
		if err := svc.SetSalary(ctx, core.Money{Cents: cents}); err != nil {
			return err
		}
		fmt.Fprintf(out, "Salary set to %s\n", core.Money{Cents: cents})
		return nil
	default:
		return errUsage
	}
}

type categoryFlags struct {
	fs         *flag.FlagSet
	id         *string
	name       *string
	allocation *string
	weekly     *bool
}

func newCategoryFlags(name string) categoryFlags {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return categoryFlags{
		fs:         fs,
		id:         fs.String("id", "", "category id"),
		name:       fs.String("name", "", "display name"),
		allocation: fs.String("allocation", "0", "monthly allocation"),
		weekly:     fs.Bool("weekly", false, "show the weekly balance"),
	}
}

func (f categoryFlags) input() (services.CategoryInput, error) {
	cents, err := core.ParseNonNegativeToCents(*f.allocation)
	if err != nil {
		return services.CategoryInput{}, fmt.Errorf("allocation %q: %w", *f.allocation, err)
	}
	return services.CategoryInput{
		Name:              *f.name,
		MonthlyAllocation: core.Money{Cents: cents},
		ShowWeeklyBalance: *f.weekly,
	}, nil
}

func category(ctx context.Context, svc *services.BudgetService, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}
	f := newCategoryFlags("category " + args[0])
	if err := f.fs.Parse(args[1:]); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	switch args[0] {
	case "list":
		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tName\tAllocation\tWeekly")
		for _, c := range svc.Categories() {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%t\n", c.ID, c.Name, c.MonthlyAllocation, c.ShowWeeklyBalance)
		}
		return tw.Flush()
	case "add":
		in, err := f.input()
		if err != nil {
			return err
		}
		c, err := svc.AddCategory(ctx, in)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Added category %s (%s)\n", c.Name, c.ID)
		return nil
	case "update":
		in, err := f.input()
		if err != nil {
			return err
		}
		c, err := svc.UpdateCategory(ctx, *f.id, in)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Updated category %s (%s)\n", c.Name, c.ID)
		return nil
	case "delete":
		if err := svc.DeleteCategory(ctx, *f.id); err != nil {
			return err
		}
		fmt.Fprintf(out, "Deleted category %s\n", *f.id)
		return nil
	default:
		return fmt.Errorf("%w: unknown category command %q", errUsage, args[0])
	}
}

type expenseFlags struct {
	fs       *flag.FlagSet
	id       *string
	category *string
	amount   *string
	date     *string
}

func newExpenseFlags(name string) expenseFlags {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return expenseFlags{
		fs:       fs,
		id:       fs.String("id", "", "expense id"),
		category: fs.String("category", "", "category id"),
		amount:   fs.String("amount", "", "amount spent"),
		date:     fs.String("date", "", "date as YYYY-MM-DD, today when empty"),
	}
}

func (f expenseFlags) input(today core.Date) (services.ExpenseInput, error) {
	cents, err := core.ParseDecimalToCents(*f.amount)
	if err != nil {
		return services.ExpenseInput{}, fmt.Errorf("amount %q: %w", *f.amount, err)
	}
	date := today
	if *f.date != "" {
		if date, err = core.ParseDate(*f.date); err != nil {
			return services.ExpenseInput{}, err
		}
	}
	return services.ExpenseInput{
		CategoryID: *f.category,
		Amount:     core.Money{Cents: cents},
		Date:       date,
	}, nil
}

func expense(ctx context.Context, svc *services.BudgetService, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}
	f := newExpenseFlags("expense " + args[0])
	if err := f.fs.Parse(args[1:]); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	switch args[0] {
	case "list":
		names := map[string]string{}
		for _, c := range svc.Categories() {
			names[c.ID] = c.Name
		}
		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tDate\tCategory\tAmount")
		for _, e := range svc.Expenses() {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.ID, e.Date, names[e.CategoryID], e.Amount)
		}
		return tw.Flush()
	case "add":
		in, err := f.input(svc.Today())
		if err != nil {
			return err
		}
		e, err := svc.AddExpense(ctx, in)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Logged %s on %s (%s)\n", e.Amount, e.Date, e.ID)
		return nil
	case "update":
		in, err := f.input(svc.Today())
		if err != nil {
			return err
		}
		e, err := svc.UpdateExpense(ctx, *f.id, in)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Updated expense %s\n", e.ID)
		return nil
	case "delete":
		if err := svc.DeleteExpense(ctx, *f.id); err != nil {
			return err
		}
		fmt.Fprintf(out, "Deleted expense %s\n", *f.id)
		return nil
	default:
		return fmt.Errorf("%w: unknown expense command %q", errUsage, args[0])
	}
}

func history(svc *services.BudgetService, out io.Writer) error {
	months := svc.History()
	if len(months) == 0 {
		fmt.Fprintln(out, "No archived months yet.")
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Month\tSalary\tSpent\tSaved")
	for _, h := range months {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", h.MonthLabel, h.Salary, h.TotalSpent, h.TotalSaved)
		for _, c := range h.Categories {
			fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\n", c.CategoryName, c.AllocatedBudget, c.TotalSpent, c.Saved)
		}
	}
	return tw.Flush()
}
