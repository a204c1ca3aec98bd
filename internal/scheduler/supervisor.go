package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/user/isp-cabinet/internal/cabinet"
	"github.com/user/isp-cabinet/internal/config"
	"github.com/user/isp-cabinet/internal/metrics"
	"github.com/user/isp-cabinet/internal/store"
	"github.com/user/isp-cabinet/pkg/isp"
)

// defaultFetchTimeout bounds one poll cycle end to end.
const defaultFetchTimeout = 2 * time.Minute

// storeTimeout bounds the store write-back of a cycle. It is separate
// from the poll context: a poll that consumed its whole timeout must
// still get its failure recorded.
const storeTimeout = 10 * time.Second

// Watcher observes accounts entering and leaving the needs-attention
// state.
type Watcher interface {
	AccountDown(ctx context.Context, e store.Entry)
	AccountRecovered(ctx context.Context, e store.Entry)
}

// Options configures a Supervisor.
type Options struct {
	Store store.Store
	Log   *slog.Logger

	// MinFailures is the consecutive-failure threshold for the
	// needs-attention state. Zero disables watcher callbacks.
	MinFailures int

	// FetchTimeout bounds one poll cycle; defaults to 2m.
	FetchTimeout time.Duration

	Watchers []Watcher
}

// Supervisor owns one polling loop per account. Accounts are fully
// independent: their timers, backoff and failures never interact.
type Supervisor struct {
	store        store.Store
	log          *slog.Logger
	minFailures  int
	fetchTimeout time.Duration
	watchers     []Watcher

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	accounts map[string]*accountLoop
	wg       sync.WaitGroup
}

type accountLoop struct {
	id       string
	provider string
	poller   *cabinet.Poller
	schedule schedule
	backoff  *backoff.ExponentialBackOff

	// kick requests an immediate poll; buffered so Trigger never blocks.
	kick   chan struct{}
	cancel context.CancelFunc

	inFlight atomic.Bool
	next     time.Time
	down     bool
}

func New(opts Options) *Supervisor {
	if opts.FetchTimeout == 0 {
		opts.FetchTimeout = defaultFetchTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Supervisor{
		store:        opts.Store,
		log:          opts.Log,
		minFailures:  opts.MinFailures,
		fetchTimeout: opts.FetchTimeout,
		watchers:     opts.Watchers,
		ctx:          ctx,
		cancel:       cancel,
		accounts:     make(map[string]*accountLoop),
	}
}

// Add schedules an account and starts its loop with an immediate first
// poll. Adding an already scheduled account is an error.
func (s *Supervisor) Add(account config.Account) error {
	desc, ok := isp.Resolve(account.ISP)
	if !ok {
		return &isp.UnknownProviderError{Identifier: account.ISP}
	}
	sched, err := newSchedule(account.ScanInterval, desc.ScanInterval)
	if err != nil {
		return err
	}

	id := account.ID()

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.accounts[id]; dup {
		return fmt.Errorf("account %q already scheduled", id)
	}

	ctx, cancel := context.WithCancel(s.ctx)
	a := &accountLoop{
		id:       id,
		provider: desc.Identifiers[0],
		poller:   cabinet.NewPoller(id, desc, account.Credentials(), s.log),
		schedule: sched,
		backoff:  newBackoff(),
		kick:     make(chan struct{}, 1),
		cancel:   cancel,
	}
	s.accounts[id] = a
	metrics.ConfiguredAccounts.Set(float64(len(s.accounts)))

	s.wg.Add(1)
	go s.run(ctx, a)

	s.log.Info("account scheduled", "account", id, "provider", a.provider)
	return nil
}

// Remove unschedules an account. An in-flight poll finishes on its own
// timeout; other accounts are untouched.
func (s *Supervisor) Remove(accountID string) error {
	s.mu.Lock()
	a, ok := s.accounts[accountID]
	if ok {
		delete(s.accounts, accountID)
		metrics.ConfiguredAccounts.Set(float64(len(s.accounts)))
	}
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("account %q is not scheduled", accountID)
	}
	a.cancel()
	metrics.ForgetAccount(accountID)
	s.log.Info("account unscheduled", "account", accountID)
	return nil
}

// Trigger requests an immediate poll. It reports false when the
// request was skipped because a poll is already in flight; manual
// refreshes are never queued behind one another.
func (s *Supervisor) Trigger(accountID string) (bool, error) {
	s.mu.Lock()
	a, ok := s.accounts[accountID]
	s.mu.Unlock()
	if !ok {
		return false, fmt.Errorf("account %q is not scheduled", accountID)
	}

	if a.inFlight.Load() {
		return false, nil
	}
	select {
	case a.kick <- struct{}{}:
		return true, nil
	default:
		return false, nil
	}
}

// Accounts returns the scheduled account IDs.
func (s *Supervisor) Accounts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.accounts))
	for id := range s.accounts {
		out = append(out, id)
	}
	return out
}

// Stop cancels every loop and waits for in-flight polls to finish.
func (s *Supervisor) Stop() {
	s.cancel()
	s.wg.Wait()
}

func (s *Supervisor) run(ctx context.Context, a *accountLoop) {
	defer s.wg.Done()
	for {
		if ctx.Err() != nil {
			return
		}
		s.pollOnce(a)

		timer := time.NewTimer(time.Until(a.next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		case <-a.kick:
			timer.Stop()
		}
	}
}

// pollOnce runs one cycle. The poll context is detached from the
// supervisor's so shutdown and removal let the cycle finish under its
// own timeout instead of tearing a half-done login down.
func (s *Supervisor) pollOnce(a *accountLoop) {
	a.inFlight.Store(true)
	defer func() {
		// A kick that raced in while this poll ran is a skip, not a
		// queued poll. Drained before inFlight clears so Trigger never
		// sneaks one in between.
		select {
		case <-a.kick:
		default:
		}
		a.inFlight.Store(false)
	}()

	started := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), s.fetchTimeout)
	snap, err := a.poller.Poll(ctx)
	cancel()

	now := time.Now()
	if err != nil {
		class := isp.Classify(err)
		if class == isp.FailureProtocol {
			// The payload shape changed; retrying sooner cannot fix
			// remote markup. Resume the normal interval and leave the
			// backoff untouched for real outages.
			a.next = a.schedule.next(now)
		} else {
			a.next = now.Add(nextDelay(a.backoff))
		}
		s.log.Warn("poll failed",
			"account", a.id,
			"class", string(class),
			"error", err,
			"next_attempt", a.next,
		)
	} else {
		a.backoff.Reset()
		a.next = a.schedule.next(now)
	}

	// The poll context may already be expired; the write-back gets its
	// own deadline.
	storeCtx, cancelStore := context.WithTimeout(context.Background(), storeTimeout)
	defer cancelStore()

	res := store.PollResult{
		Snapshot:           snap,
		Err:                err,
		NextAllowedAttempt: a.next.UTC(),
		At:                 now.UTC(),
	}
	if err != nil {
		res.Class = isp.Classify(err)
	}
	if putErr := s.store.Put(storeCtx, a.id, res); putErr != nil {
		s.log.Error("store put failed", "account", a.id, "error", putErr)
		return
	}

	entry, getErr := s.store.Get(storeCtx, a.id)
	if getErr != nil || entry == nil {
		metrics.ObservePoll(a.provider, a.id, started, err, 0)
		return
	}
	metrics.ObservePoll(a.provider, a.id, started, err, entry.ConsecutiveFailures)
	s.updateAttention(storeCtx, a, *entry)
}

// updateAttention tracks the needs-attention edge per account and
// fans it out to the watchers.
func (s *Supervisor) updateAttention(ctx context.Context, a *accountLoop, e store.Entry) {
	if s.minFailures <= 0 {
		return
	}
	switch {
	case !a.down && e.ConsecutiveFailures >= s.minFailures:
		a.down = true
		for _, w := range s.watchers {
			w.AccountDown(ctx, e)
		}
	case a.down && e.ConsecutiveFailures == 0:
		a.down = false
		for _, w := range s.watchers {
			w.AccountRecovered(ctx, e)
		}
	}
}
