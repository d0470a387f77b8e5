// Package state defines the key-value persistence contract of the budget
// application and the encoding of each persisted key.
package state

import (
	"context"
	"errors"
)

// Persisted keys. Values are JSON text except for the salary, which is a
// plain decimal string and may be empty.
const (
	KeySalary     = "monthlySalary"
	KeyCategories = "categories"
	KeyExpenses   = "expenses"
	KeyLastActive = "lastActiveMonth"
	KeyHistory    = "expenseHistory"
)

// Keys lists every key the application owns.
var Keys = []string{KeySalary, KeyCategories, KeyExpenses, KeyLastActive, KeyHistory}

var ErrClosed = errors.New("store closed")

// Reader reads raw values. ok is false when the key was never written.
type Reader interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
}

// Tx is a view on the store inside Update. Writes become visible to other
// readers only when the Update function returns nil.
type Tx interface {
	Reader
	Set(ctx context.Context, key, value string) error
}

// Store is a durable string key-value store.
type Store interface {
	Reader
	Set(ctx context.Context, key, value string) error
	// Update runs fn and commits all of its writes together, or none of
	// them if fn returns an error.
	Update(ctx context.Context, fn func(Tx) error) error
	Close() error
}
