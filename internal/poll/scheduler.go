package poll

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/issueping/issueping/internal/config"
	"github.com/issueping/issueping/internal/models"
)

// Fetcher is the boundary to the issue tracker. The scheduler owns which
// validator to pass and persist; the fetcher is stateless per call.
type Fetcher interface {
	FetchIssues(ctx context.Context, owner, repo, validator string) (*models.FetchResult, error)
	OwnerInfo(ctx context.Context, owner, repo string) (*models.OwnerInfo, error)
}

// Notifier raises a desktop alert for a newly discovered issue.
// Dispatch is best-effort; the scheduler records failures in LastError
// without rolling back history.
type Notifier interface {
	Notify(issue models.Issue, owner *models.OwnerInfo) error
}

// Hooks let the presentation layer observe scheduler transitions.
// OnStarted and OnStopped fire only on real Stopped<->Running
// transitions; OnStateChange fires whenever the poll state mutates.
type Hooks struct {
	OnStarted     func()
	OnStopped     func()
	OnStateChange func()
}

// Scheduler drives the repeating issue check. States: Stopped, Running.
// Ticks deliberately overlap rather than queue: a stalled fetch must not
// hold up the schedule, and the merge engine's dedup-by-id invariant
// plus the store's atomic read-modify-write make overlap harmless.
type Scheduler struct {
	store      *Store
	newFetcher func(token string) Fetcher
	notifier   Notifier
	hooks      Hooks

	mu        sync.Mutex
	cancel    context.CancelFunc
	running   bool
	cfg       config.Config
	fetcher   Fetcher
	owner     *models.OwnerInfo
	ownerRepo string // repository URL the cached owner was resolved for
}

// NewScheduler creates a stopped scheduler.
func NewScheduler(store *Store, newFetcher func(token string) Fetcher, notifier Notifier, hooks Hooks) *Scheduler {
	return &Scheduler{
		store:      store,
		newFetcher: newFetcher,
		notifier:   notifier,
		hooks:      hooks,
	}
}

// Running reports whether the scheduler is in the Running state.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Config returns the configuration of the current or most recent run.
func (s *Scheduler) Config() config.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Start transitions to Running: it cancels any previously held timer
// (rapid reconfiguration must never leave two tickers alive), installs a
// fresh one at the configured interval, and fires one check immediately.
// Redundant Start calls while running restart the timer but do not
// re-fire the started signal.
func (s *Scheduler) Start(cfg config.Config) {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	wasRunning := s.running
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.running = true
	s.cfg = cfg
	s.fetcher = s.newFetcher(cfg.AuthToken)
	fetcher := s.fetcher
	if cfg.RepositoryURL != s.ownerRepo {
		s.owner = nil
		s.ownerRepo = cfg.RepositoryURL
	}
	needOwner := s.owner == nil
	s.mu.Unlock()

	s.store.Update(func(st State) State {
		st.IsRunning = true
		return st
	})

	if needOwner {
		go s.refreshOwner(fetcher, cfg)
	}
	go s.loop(ctx, cfg, fetcher)

	if !wasRunning {
		slog.Info("[POLL] Polling started", "interval", cfg.Interval())
		if s.hooks.OnStarted != nil {
			s.hooks.OnStarted()
		}
	}
	s.stateChanged()
}

// Stop transitions to Stopped: the timer is cancelled so no further
// ticks are scheduled. An in-flight tick completes and updates state but
// cannot re-arm the timer. The stopped signal fires only on a real
// transition.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	wasRunning := s.running
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.running = false
	s.mu.Unlock()

	s.store.Update(func(st State) State {
		st.IsRunning = false
		st.Loading = false
		return st
	})

	if wasRunning {
		slog.Info("[POLL] Polling stopped")
		if s.hooks.OnStopped != nil {
			s.hooks.OnStopped()
		}
	}
	s.stateChanged()
}

// Reconcile applies a configuration change: a valid config restarts the
// timer with the new settings, an invalid one stops polling.
func (s *Scheduler) Reconcile(cfg config.Config) {
	if cfg.Valid() {
		s.Start(cfg)
		return
	}
	slog.Warn("[POLL] Configuration invalid, stopping", "error", cfg.Validate())
	s.Stop()
}

// CheckNow runs a single check with the current configuration, outside
// the timer schedule. It is a no-op before the first Start or RunOnce.
func (s *Scheduler) CheckNow(ctx context.Context) {
	s.mu.Lock()
	cfg, fetcher := s.cfg, s.fetcher
	s.mu.Unlock()
	if fetcher == nil {
		return
	}
	s.checkNewIssue(ctx, cfg, fetcher)
}

// RunOnce performs a single synchronous check without starting the
// timer. Used by the -once flag for headless operation.
func (s *Scheduler) RunOnce(ctx context.Context, cfg config.Config) {
	fetcher := s.newFetcher(cfg.AuthToken)
	s.mu.Lock()
	s.cfg = cfg
	s.fetcher = fetcher
	if cfg.RepositoryURL != s.ownerRepo {
		s.owner = nil
		s.ownerRepo = cfg.RepositoryURL
	}
	s.mu.Unlock()

	s.checkNewIssue(ctx, cfg, fetcher)
}

func (s *Scheduler) loop(ctx context.Context, cfg config.Config, fetcher Fetcher) {
	ticker := time.NewTicker(cfg.Interval())
	defer ticker.Stop()

	// The loop context only governs the timer: Stop prevents further
	// ticks, while ticks already in flight run to completion on the
	// background context and update state when they land.
	go s.checkNewIssue(context.Background(), cfg, fetcher)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			go s.checkNewIssue(context.Background(), cfg, fetcher)
		}
	}
}

// checkNewIssue is one tick: conditional fetch, merge, notify.
func (s *Scheduler) checkNewIssue(ctx context.Context, cfg config.Config, fetcher Fetcher) {
	validator := s.store.Update(func(st State) State {
		st.Loading = true
		st.LastCheckedAt = time.Now()
		return st
	}).ETag
	s.stateChanged()

	defer func() {
		s.store.Update(func(st State) State {
			st.Loading = false
			return st
		})
		s.stateChanged()
	}()

	owner, repo := cfg.RepoRef()
	res, err := fetcher.FetchIssues(ctx, owner, repo, validator)
	if err != nil {
		slog.Warn("[POLL] Check failed", "repo", owner+"/"+repo, "error", err)
		s.store.Update(func(st State) State {
			st.LastError = err.Error()
			return st
		})
		return
	}
	if res.NotModified {
		slog.Debug("[POLL] Not modified", "repo", owner+"/"+repo)
		s.store.Update(func(st State) State {
			st.LastError = ""
			return st
		})
		return
	}

	// The merge runs inside the store transaction so an overlapping tick
	// carrying the same page sees the already-updated history and cannot
	// promote the same id twice.
	var newIssue *models.Issue
	s.store.Update(func(st State) State {
		st.LastError = ""
		latest, merged := Merge(res.Issues, st.History)
		if latest == nil {
			return st
		}
		st.History = merged
		if res.ETag != "" {
			st.ETag = res.ETag
		}
		newIssue = latest
		return st
	})
	if newIssue == nil {
		return
	}

	slog.Info("[POLL] New issue", "id", newIssue.ID, "number", newIssue.Number, "title", newIssue.Title)
	info := s.ownerInfo(cfg, fetcher, *newIssue)
	if err := s.notifier.Notify(*newIssue, info); err != nil {
		// History already advanced; losing it over a cosmetic dispatch
		// failure would be worse than a missed alert.
		slog.Warn("[POLL] Notification failed", "id", newIssue.ID, "error", err)
		s.store.Update(func(st State) State {
			st.LastError = "notification failed: " + err.Error()
			return st
		})
	}
}

// ownerInfo returns owner metadata for decorating a notification. The
// cached value is reused while the notified issue still lives under the
// cached owner's profile URL; otherwise it is refreshed. Best-effort
// freshness, not strong consistency.
func (s *Scheduler) ownerInfo(cfg config.Config, fetcher Fetcher, issue models.Issue) *models.OwnerInfo {
	s.mu.Lock()
	cached := s.owner
	s.mu.Unlock()

	if cached != nil && cached.HTMLURL != "" && strings.HasPrefix(issue.HTMLURL, cached.HTMLURL+"/") {
		return cached
	}
	return s.refreshOwner(fetcher, cfg)
}

// refreshOwner fetches and caches owner metadata for cfg's repository.
// Failure degrades to notifying without an icon.
func (s *Scheduler) refreshOwner(fetcher Fetcher, cfg config.Config) *models.OwnerInfo {
	owner, repo := cfg.RepoRef()
	if owner == "" {
		return nil
	}

	info, err := fetcher.OwnerInfo(context.Background(), owner, repo)
	if err != nil {
		slog.Warn("[POLL] Owner info lookup failed", "repo", owner+"/"+repo, "error", err)
		return nil
	}

	s.mu.Lock()
	s.owner = info
	s.ownerRepo = cfg.RepositoryURL
	s.mu.Unlock()
	return info
}

func (s *Scheduler) stateChanged() {
	if s.hooks.OnStateChange != nil {
		s.hooks.OnStateChange()
	}
}
