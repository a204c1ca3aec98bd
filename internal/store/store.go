package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/user/isp-cabinet/pkg/isp"
)

// PollResult is the outcome of one poll cycle, produced by the
// supervisor and consumed only by the store.
type PollResult struct {
	// Snapshot is set on success, nil on failure.
	Snapshot *isp.Snapshot

	// Err is set on failure; Class is its Classify bucket.
	Err   error
	Class isp.FailureClass

	// NextAllowedAttempt is when the supervisor will try again.
	NextAllowedAttempt time.Time

	At time.Time
}

// FailureInfo describes the most recent failed poll of an account.
type FailureInfo struct {
	Class   isp.FailureClass `json:"class"`
	Message string           `json:"message"`
	At      time.Time        `json:"at"`
}

// Entry is the per-account store state. LastGood survives any number
// of failures; only a newer successful snapshot replaces it.
type Entry struct {
	AccountID           string       `json:"account_id"`
	LastGood            *isp.Snapshot `json:"last_good,omitempty"`
	LastError           *FailureInfo `json:"last_error,omitempty"`
	ConsecutiveFailures int          `json:"consecutive_failures"`
	NextAllowedAttempt  time.Time    `json:"next_allowed_attempt"`
	UpdatedAt           time.Time    `json:"updated_at"`
}

// Store holds the latest entry per account. Implementations are safe
// for concurrent use.
type Store interface {
	Get(ctx context.Context, accountID string) (*Entry, error)
	List(ctx context.Context) ([]Entry, error)

	// Put applies a poll result to the account's entry.
	Put(ctx context.Context, accountID string, res PollResult) error

	// Delete removes the account's entry and its subscriptions.
	Delete(ctx context.Context, accountID string) error

	// Subscribe registers fn for every entry update of accountID.
	// Callbacks run off a bounded queue and never block Put.
	Subscribe(accountID string, fn func(Entry)) uuid.UUID
	Unsubscribe(id uuid.UUID)

	Close() error
}

// apply folds a poll result into the previous entry, returning the new
// entry. prev may be nil for a first poll.
func apply(prev *Entry, accountID string, res PollResult) Entry {
	at := res.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	e := Entry{AccountID: accountID, UpdatedAt: at, NextAllowedAttempt: res.NextAllowedAttempt}
	if prev != nil {
		e.LastGood = prev.LastGood
		e.LastError = prev.LastError
		e.ConsecutiveFailures = prev.ConsecutiveFailures
	}

	if res.Err != nil {
		e.LastError = &FailureInfo{Class: res.Class, Message: res.Err.Error(), At: at}
		e.ConsecutiveFailures++
		return e
	}

	e.LastGood = res.Snapshot
	e.LastError = nil
	e.ConsecutiveFailures = 0
	return e
}
