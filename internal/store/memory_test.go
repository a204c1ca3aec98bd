package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/user/isp-cabinet/pkg/isp"
)

func TestPutSuccessThenFailureKeepsLastGood(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	defer m.Close()

	snap := &isp.Snapshot{AccountCode: "42", CurrentBalance: 100}
	if err := m.Put(ctx, "mgts:alice", PollResult{Snapshot: snap}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	err := m.Put(ctx, "mgts:alice", PollResult{
		Err:   isp.Transient(errors.New("timeout")),
		Class: isp.FailureTransient,
	})
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	e, err := m.Get(ctx, "mgts:alice")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if e == nil {
		t.Fatal("entry missing")
	}
	if e.LastGood == nil || e.LastGood.AccountCode != "42" {
		t.Errorf("last good = %+v, want snapshot 42", e.LastGood)
	}
	if e.LastError == nil || e.LastError.Class != isp.FailureTransient {
		t.Errorf("last error = %+v", e.LastError)
	}
	if e.ConsecutiveFailures != 1 {
		t.Errorf("consecutive failures = %d, want 1", e.ConsecutiveFailures)
	}
}

func TestPutSuccessClearsFailureState(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	defer m.Close()

	for i := 0; i < 3; i++ {
		err := m.Put(ctx, "a", PollResult{Err: errors.New("boom"), Class: isp.FailureUnknown})
		if err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}
	e, _ := m.Get(ctx, "a")
	if e.ConsecutiveFailures != 3 {
		t.Fatalf("consecutive failures = %d, want 3", e.ConsecutiveFailures)
	}

	if err := m.Put(ctx, "a", PollResult{Snapshot: &isp.Snapshot{AccountCode: "1"}}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	e, _ = m.Get(ctx, "a")
	if e.ConsecutiveFailures != 0 {
		t.Errorf("consecutive failures = %d, want 0", e.ConsecutiveFailures)
	}
	if e.LastError != nil {
		t.Errorf("last error = %+v, want nil", e.LastError)
	}
}

func TestGetUnknownAccount(t *testing.T) {
	m := NewMemory()
	defer m.Close()

	e, err := m.Get(context.Background(), "nope")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if e != nil {
		t.Errorf("entry = %+v, want nil", e)
	}
}

func TestListSorted(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	defer m.Close()

	for _, id := range []string{"c", "a", "b"} {
		if err := m.Put(ctx, id, PollResult{Snapshot: &isp.Snapshot{AccountCode: id}}); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}
	entries, err := m.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("len = %d, want 3", len(entries))
	}
	for i, want := range []string{"a", "b", "c"} {
		if entries[i].AccountID != want {
			t.Errorf("entries[%d] = %q, want %q", i, entries[i].AccountID, want)
		}
	}
}

func TestSubscribeObservesEveryPut(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	defer m.Close()

	got := make(chan Entry, subscriberQueueSize)
	id := m.Subscribe("a", func(e Entry) { got <- e })
	defer m.Unsubscribe(id)

	for i := 0; i < 3; i++ {
		if err := m.Put(ctx, "a", PollResult{Snapshot: &isp.Snapshot{AccountCode: "1"}}); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}
	// An update for another account must not reach this subscriber.
	if err := m.Put(ctx, "b", PollResult{Snapshot: &isp.Snapshot{AccountCode: "2"}}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		select {
		case e := <-got:
			if e.AccountID != "a" {
				t.Errorf("callback for account %q", e.AccountID)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("callback %d not delivered", i)
		}
	}
	select {
	case e := <-got:
		t.Errorf("unexpected callback for %q", e.AccountID)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnsubscribeStopsCallbacks(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	defer m.Close()

	got := make(chan Entry, subscriberQueueSize)
	id := m.Subscribe("a", func(e Entry) { got <- e })
	m.Unsubscribe(id)

	if err := m.Put(ctx, "a", PollResult{Snapshot: &isp.Snapshot{AccountCode: "1"}}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	select {
	case <-got:
		t.Error("callback after Unsubscribe")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDeleteRemovesEntryAndSubscriptions(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	defer m.Close()

	if err := m.Put(ctx, "a", PollResult{Snapshot: &isp.Snapshot{AccountCode: "1"}}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got := make(chan Entry, subscriberQueueSize)
	m.Subscribe("a", func(e Entry) { got <- e })

	if err := m.Delete(ctx, "a"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	e, _ := m.Get(ctx, "a")
	if e != nil {
		t.Errorf("entry survived delete: %+v", e)
	}

	if err := m.Put(ctx, "a", PollResult{Snapshot: &isp.Snapshot{AccountCode: "1"}}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	select {
	case <-got:
		t.Error("callback after Delete dropped subscriptions")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestApplyPreservesNextAllowedAttempt(t *testing.T) {
	next := time.Now().Add(5 * time.Minute).UTC()
	e := apply(nil, "a", PollResult{
		Err:                errors.New("boom"),
		Class:              isp.FailureUnknown,
		NextAllowedAttempt: next,
	})
	if !e.NextAllowedAttempt.Equal(next) {
		t.Errorf("next allowed attempt = %v, want %v", e.NextAllowedAttempt, next)
	}
}
