// Package services holds BudgetService, the single owner of the working
// budget state.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"dailybudget/internal/budget"
	"dailybudget/internal/core"
	"dailybudget/internal/log"
	"dailybudget/internal/metrics"
	"dailybudget/internal/rollover"
	"dailybudget/internal/state"
)

var (
	ErrNotStarted       = errors.New("budget service not started")
	ErrInvalidInput     = errors.New("invalid input")
	ErrCategoryNotFound = errors.New("category not found")
	ErrExpenseNotFound  = errors.New("expense not found")
	ErrUnknownCategory  = errors.New("expense refers to an unknown category")
)

// ArchivePublisher announces a freshly archived month to other processes.
type ArchivePublisher interface {
	PublishMonthArchived(ctx context.Context, h core.MonthHistory) error
}

// BudgetService loads the persisted state, rolls the period over once at
// Start and then serves reads and mutations. Every mutation is written to the
// store in a single Update before the in-memory copy changes.
type BudgetService struct {
	store     state.Store
	publisher ArchivePublisher
	allocator *budget.Allocator
	cacheSize int
	metrics   *metrics.Metrics
	now       func() time.Time
	logger    *slog.Logger
	validate  *validator.Validate

	mu         sync.Mutex
	started    bool
	salary     *core.Money
	categories []core.Category
	expenses   []core.Expense
	history    []core.MonthHistory
}

type Option func(*BudgetService)

// WithPublisher sets where archived months are announced. Without it nothing is published.
func WithPublisher(p ArchivePublisher) Option {
	return func(s *BudgetService) { s.publisher = p }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *BudgetService) { s.metrics = m }
}

// WithClock replaces time.Now. Today is the calendar date of the returned
// time in its own location.
func WithClock(now func() time.Time) Option {
	return func(s *BudgetService) { s.now = now }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *BudgetService) { s.logger = l }
}

// WithCacheSize sets how many metric results are memoized.
func WithCacheSize(n int) Option {
	return func(s *BudgetService) { s.cacheSize = n }
}

func NewBudgetService(store state.Store, opts ...Option) *BudgetService {
	s := &BudgetService{
		store:     store,
		cacheSize: 64,
		now:       time.Now,
		logger:    slog.Default(),
		validate:  newValidator(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.allocator = budget.NewAllocator(s.cacheSize, s.metrics)
	s.logger = s.logger.With(log.FieldComponent, log.ComponentBudget)
	return s
}

// Today is the current calendar date according to the service clock.
func (s *BudgetService) Today() core.Date {
	return core.DateOf(s.now())
}

// Start loads the persisted state and applies the period rollover. It
// returns the archived month when one was produced. Calling Start again
// reloads from the store.
func (s *BudgetService) Start(ctx context.Context) (*core.MonthHistory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := state.Load(ctx, s.store, s.logger)
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}

	current := core.PeriodOf(s.Today())
	res := rollover.Run(rollover.State{
		Salary:     snap.Salary,
		Categories: snap.Categories,
		Expenses:   snap.Expenses,
		LastActive: snap.LastActive,
	}, current)

	if err := s.persistRollover(ctx, res); err != nil {
		return nil, err
	}
	s.metrics.IncrRollover(res.Outcome.String())
	s.logger.DebugContext(ctx, "Period checked",
		log.FieldOperation, log.OpRollover,
		log.FieldOutcome, res.Outcome.String(),
		log.FieldPeriod, current.String())

	s.salary = res.State.Salary
	s.categories = res.State.Categories
	s.expenses = res.State.Expenses
	s.history = snap.History
	if res.History != nil {
		s.history = append(s.history, *res.History)
	}
	s.started = true

	if res.History != nil {
		fields := log.NewFields().
			WithOperation(log.OpRollover).
			WithPeriod(res.History.ID.String())
		s.logger.InfoContext(ctx, "Archived finished period", append(fields.ToSlice(),
			"current", current.String(),
			"total_spent_cents", res.History.TotalSpent.Cents,
			"total_saved_cents", res.History.TotalSaved.Cents)...)
		s.publish(ctx, *res.History)
	}
	return res.History, nil
}

func (s *BudgetService) persistRollover(ctx context.Context, res rollover.Result) error {
	switch res.Outcome {
	case rollover.SamePeriod:
		return nil
	case rollover.FirstRun:
		err := s.store.Update(ctx, func(tx state.Tx) error {
			return state.SaveLastActive(ctx, tx, *res.State.LastActive)
		})
		if err != nil {
			return fmt.Errorf("set period marker: %w", err)
		}
		return nil
	}

	err := s.store.Update(ctx, func(tx state.Tx) error {
		if err := state.AppendHistory(ctx, tx, *res.History, s.logger); err != nil {
			return err
		}
		if err := state.SaveSalary(ctx, tx, nil); err != nil {
			return err
		}
		if err := state.SaveExpenses(ctx, tx, res.State.Expenses); err != nil {
			return err
		}
		return state.SaveLastActive(ctx, tx, *res.State.LastActive)
	})
	if err != nil {
		return fmt.Errorf("persist rollover: %w", err)
	}
	return nil
}

// publish never fails the caller: the month is already archived locally.
func (s *BudgetService) publish(ctx context.Context, h core.MonthHistory) {
	if s.publisher == nil {
		return
	}
	err := s.publisher.PublishMonthArchived(ctx, h)
	s.metrics.IncrPublish(err == nil)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish archived month",
			log.FieldPeriod, h.ID.String(), log.FieldError, err)
	}
}

func (s *BudgetService) SetSalary(ctx context.Context, amount core.Money) error {
	if err := s.check(SalaryInput{Amount: amount}); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return ErrNotStarted
	}

	err := s.store.Update(ctx, func(tx state.Tx) error {
		return state.SaveSalary(ctx, tx, &amount)
	})
	if err != nil {
		return fmt.Errorf("save salary: %w", err)
	}
	s.salary = &amount
	s.logger.InfoContext(ctx, "Salary set", log.FieldAmountCents, amount.Cents)
	return nil
}

func (s *BudgetService) ClearSalary(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return ErrNotStarted
	}

	err := s.store.Update(ctx, func(tx state.Tx) error {
		return state.SaveSalary(ctx, tx, nil)
	})
	if err != nil {
		return fmt.Errorf("clear salary: %w", err)
	}
	s.salary = nil
	return nil
}

func (s *BudgetService) AddCategory(ctx context.Context, in CategoryInput) (core.Category, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := s.check(in); err != nil {
		return core.Category{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return core.Category{}, ErrNotStarted
	}

	c := core.Category{
		ID:                uuid.NewString(),
		Name:              in.Name,
		MonthlyAllocation: in.MonthlyAllocation,
		ShowWeeklyBalance: in.ShowWeeklyBalance,
	}
	next := append(slices.Clone(s.categories), c)
	if err := s.saveCategories(ctx, next); err != nil {
		return core.Category{}, err
	}
	s.categories = next
	s.logger.InfoContext(ctx, "Category added", log.NewFields().
		WithOperation(log.OpCreate).
		WithCategory(c.ID).
		ToSlice()...)
	return c, nil
}

func (s *BudgetService) UpdateCategory(ctx context.Context, id string, in CategoryInput) (core.Category, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := s.check(in); err != nil {
		return core.Category{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return core.Category{}, ErrNotStarted
	}

	i := slices.IndexFunc(s.categories, func(c core.Category) bool { return c.ID == id })
	if i < 0 {
		return core.Category{}, fmt.Errorf("%w: %s", ErrCategoryNotFound, id)
	}
	next := slices.Clone(s.categories)
	next[i] = core.Category{
		ID:                id,
		Name:              in.Name,
		MonthlyAllocation: in.MonthlyAllocation,
		ShowWeeklyBalance: in.ShowWeeklyBalance,
	}
	if err := s.saveCategories(ctx, next); err != nil {
		return core.Category{}, err
	}
	s.categories = next
	s.logger.InfoContext(ctx, "Category updated", log.NewFields().
		WithOperation(log.OpUpdate).
		WithCategory(id).
		ToSlice()...)
	return next[i], nil
}

// DeleteCategory removes the category and every expense that refers to it in
// one store update.
func (s *BudgetService) DeleteCategory(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return ErrNotStarted
	}

	if !slices.ContainsFunc(s.categories, func(c core.Category) bool { return c.ID == id }) {
		return fmt.Errorf("%w: %s", ErrCategoryNotFound, id)
	}
	cats := slices.DeleteFunc(slices.Clone(s.categories), func(c core.Category) bool { return c.ID == id })
	exps := slices.DeleteFunc(slices.Clone(s.expenses), func(e core.Expense) bool { return e.CategoryID == id })

	err := s.store.Update(ctx, func(tx state.Tx) error {
		if err := state.SaveCategories(ctx, tx, cats); err != nil {
			return err
		}
		return state.SaveExpenses(ctx, tx, exps)
	})
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}

	removed := len(s.expenses) - len(exps)
	s.categories = cats
	s.expenses = exps
	s.logger.InfoContext(ctx, "Category deleted",
		log.FieldOperation, log.OpDelete,
		log.FieldCategoryID, id,
		"expenses_removed", removed)
	return nil
}

func (s *BudgetService) AddExpense(ctx context.Context, in ExpenseInput) (core.Expense, error) {
	if err := s.check(in); err != nil {
		return core.Expense{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return core.Expense{}, ErrNotStarted
	}
	if !s.hasCategory(in.CategoryID) {
		return core.Expense{}, fmt.Errorf("%w: %s", ErrUnknownCategory, in.CategoryID)
	}

	e := core.Expense{
		ID:         uuid.NewString(),
		CategoryID: in.CategoryID,
		Amount:     in.Amount,
		Date:       in.Date,
	}
	next := append(slices.Clone(s.expenses), e)
	if err := s.saveExpenses(ctx, next); err != nil {
		return core.Expense{}, err
	}
	s.expenses = next
	s.logger.InfoContext(ctx, "Expense logged", log.NewFields().
		WithOperation(log.OpCreate).
		WithExpense(e.ID, e.CategoryID, e.Amount.Cents).
		ToSlice()...)
	return e, nil
}

func (s *BudgetService) UpdateExpense(ctx context.Context, id string, in ExpenseInput) (core.Expense, error) {
	if err := s.check(in); err != nil {
		return core.Expense{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return core.Expense{}, ErrNotStarted
	}

	i := slices.IndexFunc(s.expenses, func(e core.Expense) bool { return e.ID == id })
	if i < 0 {
		return core.Expense{}, fmt.Errorf("%w: %s", ErrExpenseNotFound, id)
	}
	if !s.hasCategory(in.CategoryID) {
		return core.Expense{}, fmt.Errorf("%w: %s", ErrUnknownCategory, in.CategoryID)
	}
	next := slices.Clone(s.expenses)
	next[i] = core.Expense{ID: id, CategoryID: in.CategoryID, Amount: in.Amount, Date: in.Date}
	if err := s.saveExpenses(ctx, next); err != nil {
		return core.Expense{}, err
	}
	s.expenses = next
	s.logger.InfoContext(ctx, "Expense updated", log.NewFields().
		WithOperation(log.OpUpdate).
		WithExpense(id, in.CategoryID, in.Amount.Cents).
		ToSlice()...)
	return next[i], nil
}

func (s *BudgetService) DeleteExpense(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return ErrNotStarted
	}

	if !slices.ContainsFunc(s.expenses, func(e core.Expense) bool { return e.ID == id }) {
		return fmt.Errorf("%w: %s", ErrExpenseNotFound, id)
	}
	next := slices.DeleteFunc(slices.Clone(s.expenses), func(e core.Expense) bool { return e.ID == id })
	if err := s.saveExpenses(ctx, next); err != nil {
		return err
	}
	s.expenses = next
	return nil
}

// Metrics computes the per-category metrics for today.
func (s *BudgetService) Metrics() (map[string]core.BudgetMetrics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return nil, ErrNotStarted
	}
	return s.allocator.Compute(s.salary, s.categories, s.expenses, s.Today()), nil
}

// Salary returns a copy of the current salary, nil when unset.
func (s *BudgetService) Salary() *core.Money {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.salary == nil {
		return nil
	}
	m := *s.salary
	return &m
}

// Categories returns the categories in insertion order.
func (s *BudgetService) Categories() []core.Category {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.categories)
}

func (s *BudgetService) Expenses() []core.Expense {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.expenses)
}

// History returns the archived months, newest period first.
func (s *BudgetService) History() []core.MonthHistory {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := slices.Clone(s.history)
	slices.SortStableFunc(out, func(a, b core.MonthHistory) int {
		if a.ID == b.ID {
			return 0
		}
		if a.ID.Before(b.ID) {
			return 1
		}
		return -1
	})
	return out
}

// Close releases the store.
func (s *BudgetService) Close() error {
	return s.store.Close()
}

func (s *BudgetService) hasCategory(id string) bool {
	return slices.ContainsFunc(s.categories, func(c core.Category) bool { return c.ID == id })
}

func (s *BudgetService) saveCategories(ctx context.Context, cats []core.Category) error {
	err := s.store.Update(ctx, func(tx state.Tx) error {
		return state.SaveCategories(ctx, tx, cats)
	})
	if err != nil {
		return fmt.Errorf("save categories: %w", err)
	}
	return nil
}

func (s *BudgetService) saveExpenses(ctx context.Context, exps []core.Expense) error {
	err := s.store.Update(ctx, func(tx state.Tx) error {
		return state.SaveExpenses(ctx, tx, exps)
	})
	if err != nil {
		return fmt.Errorf("save expenses: %w", err)
	}
	return nil
}
