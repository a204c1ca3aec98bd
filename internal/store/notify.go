package store

import (
	"sync"

	"github.com/google/uuid"
)

// subscriberQueueSize bounds the per-subscriber backlog; updates
// beyond it are dropped rather than blocking the poller.
const subscriberQueueSize = 16

type subscriber struct {
	accountID string
	queue     chan Entry
	done      chan struct{}
}

// notifier fans entry updates out to subscribers. Shared by the memory
// and GORM backends.
type notifier struct {
	mu   sync.Mutex
	subs map[uuid.UUID]*subscriber
}

func newNotifier() *notifier {
	return &notifier{subs: make(map[uuid.UUID]*subscriber)}
}

func (n *notifier) subscribe(accountID string, fn func(Entry)) uuid.UUID {
	sub := &subscriber{
		accountID: accountID,
		queue:     make(chan Entry, subscriberQueueSize),
		done:      make(chan struct{}),
	}
	id := uuid.New()

	n.mu.Lock()
	n.subs[id] = sub
	n.mu.Unlock()

	go func() {
		for {
			select {
			case e := <-sub.queue:
				fn(e)
			case <-sub.done:
				return
			}
		}
	}()
	return id
}

func (n *notifier) unsubscribe(id uuid.UUID) {
	n.mu.Lock()
	sub, ok := n.subs[id]
	if ok {
		delete(n.subs, id)
	}
	n.mu.Unlock()
	if ok {
		close(sub.done)
	}
}

// dropAccount removes every subscription of an account.
func (n *notifier) dropAccount(accountID string) {
	n.mu.Lock()
	var dropped []*subscriber
	for id, sub := range n.subs {
		if sub.accountID == accountID {
			delete(n.subs, id)
			dropped = append(dropped, sub)
		}
	}
	n.mu.Unlock()
	for _, sub := range dropped {
		close(sub.done)
	}
}

func (n *notifier) publish(e Entry) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, sub := range n.subs {
		if sub.accountID != e.AccountID {
			continue
		}
		select {
		case sub.queue <- e:
		default: // subscriber is behind, drop
		}
	}
}

func (n *notifier) close() {
	n.mu.Lock()
	subs := n.subs
	n.subs = make(map[uuid.UUID]*subscriber)
	n.mu.Unlock()
	for _, sub := range subs {
		close(sub.done)
	}
}
