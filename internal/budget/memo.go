package budget

import (
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	"dailybudget/internal/cache"
	"dailybudget/internal/core"
	"dailybudget/internal/metrics"
)

// Allocator memoizes ComputeBudgetMetrics on its whole input tuple.
// Results are identical to calling ComputeBudgetMetrics directly.
type Allocator struct {
	cache   cache.Cache[memoEntry]
	hash    func(string) uint64
	metrics *metrics.Metrics
}

// memoEntry keeps the encoded input next to the result: slots are picked by
// hash and a hit must match the input exactly.
type memoEntry struct {
	input  string
	result map[string]core.BudgetMetrics
}

// NewAllocator keeps up to size results. m may be nil.
func NewAllocator(size int, m *metrics.Metrics) *Allocator {
	return &Allocator{
		cache:   cache.NewLRUCache[memoEntry](size),
		hash:    xxhash.Sum64String,
		metrics: m,
	}
}

// Compute returns the metrics for the given state, reusing a previous result
// when the inputs are unchanged. The returned map is owned by the caller.
func (a *Allocator) Compute(salary *core.Money, categories []core.Category, expenses []core.Expense, today core.Date) map[string]core.BudgetMetrics {
	input := inputKey(salary, categories, expenses, today)
	slot := strconv.FormatUint(a.hash(input), 16)
	if cached, ok := a.cache.Get(slot); ok && cached.input == input {
		a.metrics.IncrRecomputation(true)
		return copyMetrics(cached.result)
	}

	result := ComputeBudgetMetrics(salary, categories, expenses, today)
	a.cache.Set(slot, memoEntry{input: input, result: copyMetrics(result)})
	a.metrics.IncrRecomputation(false)
	return result
}

func copyMetrics(in map[string]core.BudgetMetrics) map[string]core.BudgetMetrics {
	out := make(map[string]core.BudgetMetrics, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// inputKey encodes every field that can influence the result. Fields are
// separated so that adjacent values cannot run together.
func inputKey(salary *core.Money, categories []core.Category, expenses []core.Expense, today core.Date) string {
	var b strings.Builder
	write := func(s string) {
		b.WriteString(s)
		b.WriteByte('\x1f')
	}

	write(today.String())
	if salary == nil {
		write("salary:nil")
	} else {
		write("salary:" + strconv.FormatInt(salary.Cents, 10))
	}
	write("categories:" + strconv.Itoa(len(categories)))
	for _, c := range categories {
		write(c.ID)
		write(strconv.FormatInt(c.MonthlyAllocation.Cents, 10))
	}
	write("expenses:" + strconv.Itoa(len(expenses)))
	for _, e := range expenses {
		write(e.CategoryID)
		write(strconv.FormatInt(e.Amount.Cents, 10))
		write(e.Date.String())
	}
	return b.String()
}
