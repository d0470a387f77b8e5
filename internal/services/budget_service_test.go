package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"

	"dailybudget/internal/core"
	"dailybudget/internal/metrics"
	"dailybudget/internal/rollover"
	"dailybudget/internal/state"
	"dailybudget/internal/state/memory"
)

type fakePublisher struct {
	published []core.MonthHistory
	err       error
}

func (p *fakePublisher) PublishMonthArchived(_ context.Context, h core.MonthHistory) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, h)
	return nil
}

// failingStore fails every Update after failAfter successful ones.
type failingStore struct {
	*memory.Store
	failAfter int
	updates   int
}

func (f *failingStore) Update(ctx context.Context, fn func(state.Tx) error) error {
	f.updates++
	if f.updates > f.failAfter {
		return errors.New("disk full")
	}
	return f.Store.Update(ctx, fn)
}

func clockAt(y int, m time.Month, d int) func() time.Time {
	return func() time.Time { return time.Date(y, m, d, 10, 30, 0, 0, time.UTC) }
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newStarted(t *testing.T, store state.Store, opts ...Option) *BudgetService {
	t.Helper()
	opts = append([]Option{WithLogger(quietLogger()), WithClock(clockAt(2024, time.January, 15))}, opts...)
	s := NewBudgetService(store, opts...)
	if _, err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return s
}

func TestStart_FirstRunSetsMarker(t *testing.T) {
	store := memory.New(nil)
	m := metrics.New()
	s := NewBudgetService(store, WithLogger(quietLogger()), WithMetrics(m), WithClock(clockAt(2024, time.March, 3)))

	archived, err := s.Start(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if archived != nil {
		t.Fatalf("first run archived %+v", archived)
	}
	if got := store.Snapshot()[state.KeyLastActive]; got != "2024-03" {
		t.Errorf("marker = %q, want 2024-03", got)
	}
	if got := testutil.ToFloat64(m.Rollovers(rollover.FirstRun.String())); got != 1 {
		t.Errorf("first-run rollovers = %v, want 1", got)
	}
}

func TestStart_RolloverArchivesAndResets(t *testing.T) {
	store := memory.New(map[string]string{
		state.KeySalary:     "2000",
		state.KeyCategories: `[{"id":"food","name":"Food","budgetId":500,"showWeeklyBalance":false}]`,
		state.KeyExpenses: `[{"id":"e1","categoryId":"food","amount":150,"date":"2024-01-05"},
			{"id":"e2","categoryId":"food","amount":250,"date":"2024-01-20"}]`,
		state.KeyLastActive: "2024-01",
	})
	pub := &fakePublisher{}
	s := NewBudgetService(store,
		WithLogger(quietLogger()),
		WithPublisher(pub),
		WithClock(clockAt(2024, time.February, 1)))

	archived, err := s.Start(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if archived == nil {
		t.Fatal("expected an archived month")
	}
	if archived.TotalSpent != core.NewMoney(400) || archived.TotalSaved != core.NewMoney(1600) {
		t.Errorf("totals: spent %s saved %s", archived.TotalSpent, archived.TotalSaved)
	}
	if len(archived.Categories) != 1 || archived.Categories[0].Saved != core.NewMoney(100) {
		t.Errorf("categories = %+v", archived.Categories)
	}

	if s.Salary() != nil {
		t.Errorf("salary should be unset")
	}
	if len(s.Expenses()) != 0 {
		t.Errorf("expenses should be empty")
	}
	if cats := s.Categories(); len(cats) != 1 || cats[0].ID != "food" {
		t.Errorf("categories = %+v", cats)
	}
	if h := s.History(); len(h) != 1 || h[0].ID.String() != "2024-01" {
		t.Errorf("history = %+v", h)
	}
	if len(pub.published) != 1 || pub.published[0].ID.String() != "2024-01" {
		t.Errorf("published = %+v", pub.published)
	}

	raw := store.Snapshot()
	if raw[state.KeySalary] != "" || raw[state.KeyExpenses] != "[]" || raw[state.KeyLastActive] != "2024-02" {
		t.Errorf("persisted state not reset: %v", raw)
	}
	if !strings.Contains(raw[state.KeyHistory], `"2024-01"`) {
		t.Errorf("history not persisted: %s", raw[state.KeyHistory])
	}

	// A second start in the same period must not archive again.
	again, err := s.Start(context.Background())
	if err != nil || again != nil {
		t.Fatalf("second Start = %+v, %v", again, err)
	}
	if len(s.History()) != 1 {
		t.Errorf("rollover fired twice")
	}
}

func TestStart_FailedRolloverLeavesStoreUntouched(t *testing.T) {
	seed := map[string]string{
		state.KeySalary:     "2000",
		state.KeyExpenses:   `[]`,
		state.KeyLastActive: "2024-01",
	}
	store := &failingStore{Store: memory.New(seed)}
	s := NewBudgetService(store, WithLogger(quietLogger()), WithClock(clockAt(2024, time.February, 1)))

	if _, err := s.Start(context.Background()); err == nil {
		t.Fatal("expected Start to fail")
	}
	raw := store.Snapshot()
	if raw[state.KeyLastActive] != "2024-01" || raw[state.KeySalary] != "2000" {
		t.Errorf("half-applied rollover: %v", raw)
	}
	if _, ok := raw[state.KeyHistory]; ok {
		t.Errorf("history written by failed rollover")
	}
	if err := s.SetSalary(context.Background(), core.NewMoney(1)); !errors.Is(err, ErrNotStarted) {
		t.Errorf("SetSalary before a successful Start = %v", err)
	}
}

func TestStart_PublishFailureIsNotFatal(t *testing.T) {
	store := memory.New(map[string]string{state.KeyLastActive: "2023-12"})
	s := NewBudgetService(store,
		WithLogger(quietLogger()),
		WithPublisher(&fakePublisher{err: errors.New("broker down")}),
		WithClock(clockAt(2024, time.January, 2)))

	archived, err := s.Start(context.Background())
	if err != nil {
		t.Fatalf("Start = %v", err)
	}
	if archived == nil || archived.ID.String() != "2023-12" {
		t.Errorf("archived = %+v", archived)
	}
}

func TestOperationsRequireStart(t *testing.T) {
	s := NewBudgetService(memory.New(nil), WithLogger(quietLogger()))
	ctx := context.Background()

	if _, err := s.Metrics(); !errors.Is(err, ErrNotStarted) {
		t.Errorf("Metrics = %v", err)
	}
	if _, err := s.AddCategory(ctx, CategoryInput{Name: "x"}); !errors.Is(err, ErrNotStarted) {
		t.Errorf("AddCategory = %v", err)
	}
	if err := s.DeleteExpense(ctx, "x"); !errors.Is(err, ErrNotStarted) {
		t.Errorf("DeleteExpense = %v", err)
	}
}

func TestSalary(t *testing.T) {
	ctx := context.Background()
	store := memory.New(nil)
	s := newStarted(t, store)

	if err := s.SetSalary(ctx, core.Money{Cents: -1}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("negative salary: %v", err)
	}
	if err := s.SetSalary(ctx, core.NewMoney(0)); err != nil {
		t.Errorf("zero salary should be accepted: %v", err)
	}
	if err := s.SetSalary(ctx, core.Money{Cents: 250050}); err != nil {
		t.Fatal(err)
	}
	if got := s.Salary(); got == nil || got.Cents != 250050 {
		t.Errorf("Salary() = %v", got)
	}
	if got := store.Snapshot()[state.KeySalary]; got != "2500.50" {
		t.Errorf("persisted salary = %q", got)
	}

	if err := s.ClearSalary(ctx); err != nil {
		t.Fatal(err)
	}
	if s.Salary() != nil || store.Snapshot()[state.KeySalary] != "" {
		t.Errorf("salary not cleared")
	}
}

func TestCategoryValidation(t *testing.T) {
	s := newStarted(t, memory.New(nil))
	tests := []struct {
		name string
		in   CategoryInput
		want string
	}{
		{"blank name", CategoryInput{Name: "   "}, "Name is required"},
		{"long name", CategoryInput{Name: strings.Repeat("a", 101)}, "Name must be at most 100"},
		{"negative allocation", CategoryInput{Name: "x", MonthlyAllocation: core.Money{Cents: -5}}, "MonthlyAllocation cannot be negative"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.AddCategory(context.Background(), tt.in)
			if !errors.Is(err, ErrInvalidInput) || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want %q", err, tt.want)
			}
		})
	}
	if len(s.Categories()) != 0 {
		t.Errorf("invalid input was stored")
	}
}

func TestCategoryCRUD(t *testing.T) {
	ctx := context.Background()
	store := memory.New(nil)
	s := newStarted(t, store)

	c, err := s.AddCategory(ctx, CategoryInput{Name: "  Food ", MonthlyAllocation: core.NewMoney(300)})
	if err != nil {
		t.Fatal(err)
	}
	if c.ID == "" || c.Name != "Food" {
		t.Errorf("created %+v", c)
	}

	updated, err := s.UpdateCategory(ctx, c.ID, CategoryInput{Name: "Groceries", MonthlyAllocation: core.NewMoney(350), ShowWeeklyBalance: true})
	if err != nil {
		t.Fatal(err)
	}
	if updated.ID != c.ID || updated.Name != "Groceries" || !updated.ShowWeeklyBalance {
		t.Errorf("updated %+v", updated)
	}
	if _, err := s.UpdateCategory(ctx, "nope", CategoryInput{Name: "x"}); !errors.Is(err, ErrCategoryNotFound) {
		t.Errorf("UpdateCategory(nope) = %v", err)
	}

	snap, err := state.Load(ctx, store, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Categories) != 1 || snap.Categories[0] != updated {
		t.Errorf("persisted categories = %+v", snap.Categories)
	}
}

func TestDeleteCategoryCascades(t *testing.T) {
	ctx := context.Background()
	store := memory.New(nil)
	s := newStarted(t, store)
	today := s.Today()

	if err := s.SetSalary(ctx, core.NewMoney(1000)); err != nil {
		t.Fatal(err)
	}
	food, _ := s.AddCategory(ctx, CategoryInput{Name: "Food", MonthlyAllocation: core.NewMoney(300)})
	fun, _ := s.AddCategory(ctx, CategoryInput{Name: "Fun", MonthlyAllocation: core.NewMoney(100)})
	for _, in := range []ExpenseInput{
		{CategoryID: food.ID, Amount: core.NewMoney(10), Date: today},
		{CategoryID: food.ID, Amount: core.NewMoney(20), Date: today},
		{CategoryID: fun.ID, Amount: core.NewMoney(5), Date: today},
	} {
		if _, err := s.AddExpense(ctx, in); err != nil {
			t.Fatal(err)
		}
	}

	if err := s.DeleteCategory(ctx, food.ID); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteCategory(ctx, food.ID); !errors.Is(err, ErrCategoryNotFound) {
		t.Errorf("second delete = %v", err)
	}

	exps := s.Expenses()
	if len(exps) != 1 || exps[0].CategoryID != fun.ID {
		t.Errorf("expenses after cascade = %+v", exps)
	}
	m, err := s.Metrics()
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := m[food.ID]; ok {
		t.Errorf("metrics still contain deleted category")
	}
	if _, ok := m[fun.ID]; !ok {
		t.Errorf("metrics lost the remaining category")
	}

	snap, _ := state.Load(ctx, store, quietLogger())
	if len(snap.Expenses) != 1 || len(snap.Categories) != 1 {
		t.Errorf("cascade not persisted: %+v", snap)
	}
}

func TestExpenseCRUD(t *testing.T) {
	ctx := context.Background()
	s := newStarted(t, memory.New(nil))
	today := s.Today()
	food, _ := s.AddCategory(ctx, CategoryInput{Name: "Food", MonthlyAllocation: core.NewMoney(300)})
	rent, _ := s.AddCategory(ctx, CategoryInput{Name: "Rent", MonthlyAllocation: core.NewMoney(700)})

	tests := []struct {
		name    string
		in      ExpenseInput
		wantErr error
	}{
		{"zero amount", ExpenseInput{CategoryID: food.ID, Date: today}, ErrInvalidInput},
		{"missing date", ExpenseInput{CategoryID: food.ID, Amount: core.NewMoney(1)}, ErrInvalidInput},
		{"missing category", ExpenseInput{Amount: core.NewMoney(1), Date: today}, ErrInvalidInput},
		{"unknown category", ExpenseInput{CategoryID: "ghost", Amount: core.NewMoney(1), Date: today}, ErrUnknownCategory},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.AddExpense(ctx, tt.in); !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}

	e, err := s.AddExpense(ctx, ExpenseInput{CategoryID: food.ID, Amount: core.Money{Cents: 1250}, Date: today})
	if err != nil {
		t.Fatal(err)
	}
	moved, err := s.UpdateExpense(ctx, e.ID, ExpenseInput{CategoryID: rent.ID, Amount: core.NewMoney(700), Date: today.AddDays(-1)})
	if err != nil {
		t.Fatal(err)
	}
	if moved.ID != e.ID || moved.CategoryID != rent.ID {
		t.Errorf("moved = %+v", moved)
	}
	if _, err := s.UpdateExpense(ctx, e.ID, ExpenseInput{CategoryID: "ghost", Amount: core.NewMoney(1), Date: today}); !errors.Is(err, ErrUnknownCategory) {
		t.Errorf("update to unknown category = %v", err)
	}
	if _, err := s.UpdateExpense(ctx, "nope", ExpenseInput{CategoryID: food.ID, Amount: core.NewMoney(1), Date: today}); !errors.Is(err, ErrExpenseNotFound) {
		t.Errorf("update missing = %v", err)
	}

	if err := s.DeleteExpense(ctx, e.ID); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteExpense(ctx, e.ID); !errors.Is(err, ErrExpenseNotFound) {
		t.Errorf("second delete = %v", err)
	}
	if len(s.Expenses()) != 0 {
		t.Errorf("expenses = %+v", s.Expenses())
	}
}

func TestMetricsUseServiceClock(t *testing.T) {
	ctx := context.Background()
	// April 1st 2024: 30 days remain.
	s := newStarted(t, memory.New(nil), WithClock(clockAt(2024, time.April, 1)))
	if err := s.SetSalary(ctx, core.NewMoney(1000)); err != nil {
		t.Fatal(err)
	}
	c, _ := s.AddCategory(ctx, CategoryInput{Name: "Food", MonthlyAllocation: core.NewMoney(300)})

	m, err := s.Metrics()
	if err != nil {
		t.Fatal(err)
	}
	if !m[c.ID].DailyBudget.Equal(decimal.NewFromInt(10)) {
		t.Errorf("DailyBudget = %s, want 10", m[c.ID].DailyBudget)
	}

	if _, err := s.AddExpense(ctx, ExpenseInput{CategoryID: c.ID, Amount: core.NewMoney(30), Date: s.Today()}); err != nil {
		t.Fatal(err)
	}
	m, _ = s.Metrics()
	if !m[c.ID].SpentToday.Equal(decimal.NewFromInt(30)) || !m[c.ID].DailyBudget.Equal(decimal.NewFromInt(9)) {
		t.Errorf("after expense: %+v", m[c.ID])
	}
}

func TestMetricsWithoutSalaryIsEmpty(t *testing.T) {
	ctx := context.Background()
	s := newStarted(t, memory.New(nil))
	_, _ = s.AddCategory(ctx, CategoryInput{Name: "Food", MonthlyAllocation: core.NewMoney(300)})
	m, err := s.Metrics()
	if err != nil {
		t.Fatal(err)
	}
	if len(m) != 0 {
		t.Errorf("metrics = %v, want empty", m)
	}
}

func TestHistoryNewestFirst(t *testing.T) {
	store := memory.New(map[string]string{
		state.KeyLastActive: "2024-01",
		state.KeyHistory: `[{"id":"2023-11","monthLabel":"November 2023","salary":1,"totalSpent":0,"totalSaved":1,"categories":[]},
			{"id":"2023-12","monthLabel":"December 2023","salary":1,"totalSpent":0,"totalSaved":1,"categories":[]},
			{"id":"2023-10","monthLabel":"October 2023","salary":1,"totalSpent":0,"totalSaved":1,"categories":[]}]`,
	})
	s := newStarted(t, store)

	h := s.History()
	var got []string
	for _, r := range h {
		got = append(got, r.ID.String())
	}
	if strings.Join(got, ",") != "2023-12,2023-11,2023-10" {
		t.Errorf("order = %v", got)
	}
}

func TestFailedWriteKeepsMemoryState(t *testing.T) {
	ctx := context.Background()
	// Allow the first-run marker write and one category, then fail.
	store := &failingStore{Store: memory.New(nil), failAfter: 2}
	s := newStarted(t, store)

	c, err := s.AddCategory(ctx, CategoryInput{Name: "Food"})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteCategory(ctx, c.ID); err == nil {
		t.Fatal("expected delete to fail")
	}
	if len(s.Categories()) != 1 {
		t.Errorf("in-memory state changed after failed write")
	}
}
