// Package quota implements the per-identity credit ledger. One credit buys
// one job admission.
package quota

import (
	"errors"
	"sync"
)

// ErrInsufficientBalance is returned by Debit when no credits remain.
var ErrInsufficientBalance = errors.New("insufficient credit balance")

// Snapshot is the serializable form of a ledger.
type Snapshot struct {
	Total     int `json:"total"`
	Remaining int `json:"remaining"`
}

// Ledger holds a credit balance and cap. The check-then-act inside Debit is
// a single critical section so concurrent submissions can never both spend
// the same credit.
type Ledger struct {
	mu        sync.Mutex
	total     int
	remaining int
}

// NewLedger creates a ledger. Remaining is clamped into [0, total].
func NewLedger(total, remaining int) *Ledger {
	if total < 0 {
		total = 0
	}
	if remaining < 0 {
		remaining = 0
	}
	if remaining > total {
		remaining = total
	}
	return &Ledger{total: total, remaining: remaining}
}

// Debit atomically spends one credit and returns the new balance, or
// ErrInsufficientBalance without touching the balance.
func (l *Ledger) Debit() (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.remaining == 0 {
		return 0, ErrInsufficientBalance
	}
	l.remaining--
	return l.remaining, nil
}

// Remaining returns the current balance.
func (l *Ledger) Remaining() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.remaining
}

// Total returns the cap.
func (l *Ledger) Total() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.total
}

// Snapshot returns the serializable state.
func (l *Ledger) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Snapshot{Total: l.total, Remaining: l.remaining}
}
