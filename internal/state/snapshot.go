package state

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"dailybudget/internal/core"
	"dailybudget/internal/log"
)

// Snapshot is the decoded content of the store.
type Snapshot struct {
	Salary     *core.Money
	Categories []core.Category
	Expenses   []core.Expense
	LastActive *core.Period
	History    []core.MonthHistory
}

// Load reads and decodes every key. Storage failures are returned.
// Malformed values are logged and treated as absent; malformed list elements
// are logged and skipped so one bad entry does not hide the rest.
func Load(ctx context.Context, r Reader, logger *slog.Logger) (Snapshot, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var snap Snapshot

	raw, err := readAll(ctx, r)
	if err != nil {
		return snap, err
	}

	if v, ok := raw[KeySalary]; ok {
		snap.Salary, err = DecodeSalary(v)
		if err != nil {
			logger.WarnContext(ctx, "Ignoring malformed salary", log.FieldKey, KeySalary, "error", err)
		}
	}
	if v, ok := raw[KeyLastActive]; ok && strings.TrimSpace(v) != "" {
		p, err := decodeMarker(v)
		if err != nil {
			logger.WarnContext(ctx, "Ignoring malformed period marker", log.FieldKey, KeyLastActive, "error", err)
		} else {
			snap.LastActive = &p
		}
	}
	snap.Categories = decodeList[core.Category](ctx, logger, KeyCategories, raw[KeyCategories])
	snap.Expenses = decodeList[core.Expense](ctx, logger, KeyExpenses, raw[KeyExpenses])
	snap.History = decodeList[core.MonthHistory](ctx, logger, KeyHistory, raw[KeyHistory])
	return snap, nil
}

func readAll(ctx context.Context, r Reader) (map[string]string, error) {
	out := make(map[string]string, len(Keys))
	for _, k := range Keys {
		v, ok, err := r.Get(ctx, k)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", k, err)
		}
		if ok {
			out[k] = v
		}
	}
	return out, nil
}

// DecodeSalary parses the stored salary. An empty value means unset.
func DecodeSalary(v string) (*core.Money, error) {
	v = strings.TrimSpace(v)
	if v == "" || v == "null" {
		return nil, nil
	}
	d, err := decimal.NewFromString(strings.Trim(v, `"`))
	if err != nil {
		return nil, fmt.Errorf("%w: %q", core.ErrInvalidAmount, v)
	}
	m := core.MoneyFromDecimal(d)
	return &m, nil
}

// EncodeSalary is the inverse of DecodeSalary.
func EncodeSalary(m *core.Money) string {
	if m == nil {
		return ""
	}
	return m.String()
}

// The marker is written as bare YYYY-MM; a JSON string is accepted too.
func decodeMarker(v string) (core.Period, error) {
	return core.ParsePeriod(strings.Trim(strings.TrimSpace(v), `"`))
}

func decodeList[T any](ctx context.Context, logger *slog.Logger, key, v string) []T {
	out := []T{}
	if strings.TrimSpace(v) == "" {
		return out
	}
	var elems []json.RawMessage
	if err := json.Unmarshal([]byte(v), &elems); err != nil {
		logger.WarnContext(ctx, "Ignoring malformed list", log.FieldKey, key, "error", err)
		return out
	}
	for i, e := range elems {
		var item T
		if err := json.Unmarshal(e, &item); err != nil {
			logger.WarnContext(ctx, "Skipping malformed entry", log.FieldKey, key, "index", i, "error", err)
			continue
		}
		out = append(out, item)
	}
	return out
}

func encodeList[T any](items []T) (string, error) {
	if items == nil {
		items = []T{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// SaveSalary writes the salary; nil clears it.
func SaveSalary(ctx context.Context, tx Tx, m *core.Money) error {
	return tx.Set(ctx, KeySalary, EncodeSalary(m))
}

func SaveCategories(ctx context.Context, tx Tx, cats []core.Category) error {
	v, err := encodeList(cats)
	if err != nil {
		return fmt.Errorf("encode categories: %w", err)
	}
	return tx.Set(ctx, KeyCategories, v)
}

func SaveExpenses(ctx context.Context, tx Tx, exps []core.Expense) error {
	v, err := encodeList(exps)
	if err != nil {
		return fmt.Errorf("encode expenses: %w", err)
	}
	return tx.Set(ctx, KeyExpenses, v)
}

func SaveLastActive(ctx context.Context, tx Tx, p core.Period) error {
	return tx.Set(ctx, KeyLastActive, p.String())
}

// AppendHistory adds record after the existing entries. Entries that fail to
// decode are kept as they are so an append never loses stored data. A nil
// logger uses slog.Default.
func AppendHistory(ctx context.Context, tx Tx, record core.MonthHistory, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	var elems []json.RawMessage
	v, ok, err := tx.Get(ctx, KeyHistory)
	if err != nil {
		return fmt.Errorf("read %s: %w", KeyHistory, err)
	}
	if ok && strings.TrimSpace(v) != "" {
		if err := json.Unmarshal([]byte(v), &elems); err != nil {
			logger.WarnContext(ctx, "Replacing malformed history", log.FieldKey, KeyHistory, "error", err)
			elems = nil
		}
	}

	b, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode history record: %w", err)
	}
	elems = append(elems, b)

	out, err := json.Marshal(elems)
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	return tx.Set(ctx, KeyHistory, string(out))
}
