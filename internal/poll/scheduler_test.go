package poll

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/issueping/issueping/internal/config"
	"github.com/issueping/issueping/internal/models"
)

type fakeFetcher struct {
	mu         sync.Mutex
	result     *models.FetchResult
	err        error
	validators []string
	owner      *models.OwnerInfo
	ownerErr   error
	ownerCalls int
}

func (f *fakeFetcher) FetchIssues(_ context.Context, _, _, validator string) (*models.FetchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.validators = append(f.validators, validator)
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeFetcher) OwnerInfo(context.Context, string, string) (*models.OwnerInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ownerCalls++
	return f.owner, f.ownerErr
}

func (f *fakeFetcher) fetchCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.validators)
}

type fakeNotifier struct {
	mu       sync.Mutex
	err      error
	notified []models.Issue
	owners   []*models.OwnerInfo
}

func (n *fakeNotifier) Notify(issue models.Issue, owner *models.OwnerInfo) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notified = append(n.notified, issue)
	n.owners = append(n.owners, owner)
	return n.err
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.notified)
}

func testConfig() config.Config {
	return config.Config{
		RepositoryURL:   "https://github.com/o/r",
		AuthToken:       "token",
		IntervalSeconds: 60,
	}
}

func newTestScheduler(t *testing.T, fetcher *fakeFetcher, notifier *fakeNotifier, hooks Hooks) *Scheduler {
	t.Helper()
	store := tempStore(t)
	return NewScheduler(store, func(string) Fetcher { return fetcher }, notifier, hooks)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func pageIssue(id int64, created time.Time) models.Issue {
	return models.Issue{
		ID:            id,
		Number:        int(id),
		Title:         "issue",
		HTMLURL:       "https://github.com/o/r/issues/1",
		RepositoryURL: "https://api.github.com/repos/o/r",
		CreatedAt:     created,
		Author:        models.Author{Login: "alice", Type: "User"},
	}
}

func TestStartStopSignalsFireOncePerTransition(t *testing.T) {
	var mu sync.Mutex
	started, stopped := 0, 0
	hooks := Hooks{
		OnStarted: func() { mu.Lock(); started++; mu.Unlock() },
		OnStopped: func() { mu.Lock(); stopped++; mu.Unlock() },
	}

	fetcher := &fakeFetcher{result: &models.FetchResult{}}
	sched := newTestScheduler(t, fetcher, &fakeNotifier{}, hooks)

	sched.Start(testConfig())
	sched.Start(testConfig()) // redundant start while running
	waitFor(t, "immediate ticks", func() bool { return fetcher.fetchCalls() >= 2 })

	mu.Lock()
	if started != 1 {
		t.Errorf("started signal fired %d times, want 1", started)
	}
	mu.Unlock()

	if !sched.Running() {
		t.Error("scheduler should be running after Start")
	}
	if !sched.store.State().IsRunning {
		t.Error("IsRunning not persisted on start")
	}

	sched.Stop()
	sched.Stop() // redundant stop while stopped

	mu.Lock()
	if stopped != 1 {
		t.Errorf("stopped signal fired %d times, want 1", stopped)
	}
	mu.Unlock()

	st := sched.store.State()
	if st.IsRunning || st.Loading {
		t.Errorf("stop must clear IsRunning and Loading, got %+v", st)
	}
}

func TestTickNewIssueNotifies(t *testing.T) {
	t0 := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	fetcher := &fakeFetcher{
		result: &models.FetchResult{
			Issues: []models.Issue{pageIssue(2, t0.Add(time.Hour)), pageIssue(1, t0)},
			ETag:   `"v2"`,
		},
	}
	notifier := &fakeNotifier{}
	sched := newTestScheduler(t, fetcher, notifier, Hooks{})

	sched.store.Update(func(st State) State {
		st.History = []models.Issue{pageIssue(1, t0)}
		return st
	})

	sched.RunOnce(context.Background(), testConfig())

	if notifier.count() != 1 {
		t.Fatalf("notified %d times, want 1", notifier.count())
	}
	if notifier.notified[0].ID != 2 {
		t.Errorf("notified id = %d, want 2", notifier.notified[0].ID)
	}

	st := sched.store.State()
	if len(st.History) != 2 || st.History[0].ID != 2 || st.History[1].ID != 1 {
		t.Errorf("history = %v, want [2 1]", st.History)
	}
	if st.ETag != `"v2"` {
		t.Errorf("validator = %q, want %q", st.ETag, `"v2"`)
	}
	if st.LastError != "" {
		t.Errorf("LastError = %q, want empty", st.LastError)
	}
	if st.Loading {
		t.Error("Loading must clear after the tick")
	}
	if st.LastCheckedAt.IsZero() {
		t.Error("LastCheckedAt not set")
	}
}

func TestTickDedupAcrossRepeatedPages(t *testing.T) {
	t0 := time.Now()
	fetcher := &fakeFetcher{
		result: &models.FetchResult{Issues: []models.Issue{pageIssue(7, t0)}, ETag: `"v"`},
	}
	notifier := &fakeNotifier{}
	sched := newTestScheduler(t, fetcher, notifier, Hooks{})

	for range 3 {
		sched.RunOnce(context.Background(), testConfig())
	}

	if notifier.count() != 1 {
		t.Errorf("same issue id notified %d times, want exactly 1", notifier.count())
	}
	if got := len(sched.store.State().History); got != 1 {
		t.Errorf("history has %d entries, want 1", got)
	}
}

func TestTickNotModifiedShortCircuits(t *testing.T) {
	t0 := time.Now()
	fetcher := &fakeFetcher{result: &models.FetchResult{NotModified: true}}
	notifier := &fakeNotifier{}
	sched := newTestScheduler(t, fetcher, notifier, Hooks{})

	sched.store.Update(func(st State) State {
		st.History = []models.Issue{pageIssue(1, t0)}
		st.ETag = `"abc"`
		st.LastError = "stale failure"
		return st
	})

	sched.RunOnce(context.Background(), testConfig())

	if fetcher.validators[0] != `"abc"` {
		t.Errorf("validator sent = %q, want %q", fetcher.validators[0], `"abc"`)
	}
	if notifier.count() != 0 {
		t.Error("304 must not dispatch a notification")
	}
	st := sched.store.State()
	if len(st.History) != 1 || st.ETag != `"abc"` {
		t.Errorf("304 must leave history and validator unchanged, got %+v", st)
	}
	if st.LastError != "" {
		t.Errorf("304 must clear the error, got %q", st.LastError)
	}
	if st.Loading {
		t.Error("Loading must transition back to false")
	}
}

func TestTickErrorRecordedAndCleared(t *testing.T) {
	fetcher := &fakeFetcher{err: errors.New("github API error: 503 Service Unavailable")}
	sched := newTestScheduler(t, fetcher, &fakeNotifier{}, Hooks{})

	sched.RunOnce(context.Background(), testConfig())
	if st := sched.store.State(); st.LastError == "" {
		t.Error("fetch failure not recorded in LastError")
	}

	// Next tick succeeds; the fixed interval is the retry.
	fetcher.mu.Lock()
	fetcher.err = nil
	fetcher.result = &models.FetchResult{}
	fetcher.mu.Unlock()

	sched.RunOnce(context.Background(), testConfig())
	if st := sched.store.State(); st.LastError != "" {
		t.Errorf("LastError = %q after successful tick, want empty", st.LastError)
	}
}

func TestTickNotifyFailureKeepsHistory(t *testing.T) {
	fetcher := &fakeFetcher{
		result: &models.FetchResult{Issues: []models.Issue{pageIssue(5, time.Now())}},
	}
	notifier := &fakeNotifier{err: errors.New("dbus unavailable")}
	sched := newTestScheduler(t, fetcher, notifier, Hooks{})

	sched.RunOnce(context.Background(), testConfig())

	st := sched.store.State()
	if len(st.History) != 1 {
		t.Error("history must survive a notification dispatch failure")
	}
	if st.LastError == "" {
		t.Error("dispatch failure not recorded in LastError")
	}
}

func TestOwnerInfoCachedAcrossNotifications(t *testing.T) {
	owner := &models.OwnerInfo{
		Login:     "o",
		AvatarURL: "https://avatars.githubusercontent.com/u/1",
		HTMLURL:   "https://github.com/o",
	}
	t0 := time.Now()
	fetcher := &fakeFetcher{
		owner:  owner,
		result: &models.FetchResult{Issues: []models.Issue{pageIssue(1, t0)}},
	}
	notifier := &fakeNotifier{}
	sched := newTestScheduler(t, fetcher, notifier, Hooks{})

	sched.RunOnce(context.Background(), testConfig())

	fetcher.mu.Lock()
	fetcher.result = &models.FetchResult{Issues: []models.Issue{pageIssue(2, t0.Add(time.Hour))}}
	fetcher.mu.Unlock()
	sched.RunOnce(context.Background(), testConfig())

	if notifier.count() != 2 {
		t.Fatalf("notified %d times, want 2", notifier.count())
	}
	if notifier.owners[0] != owner || notifier.owners[1] != owner {
		t.Error("owner info not passed through to notifications")
	}

	fetcher.mu.Lock()
	calls := fetcher.ownerCalls
	fetcher.mu.Unlock()
	if calls != 1 {
		t.Errorf("owner lookup ran %d times, want 1 (cached for same repository)", calls)
	}
}

func TestReconcileInvalidConfigStops(t *testing.T) {
	fetcher := &fakeFetcher{result: &models.FetchResult{}}
	sched := newTestScheduler(t, fetcher, &fakeNotifier{}, Hooks{})

	sched.Reconcile(testConfig())
	if !sched.Running() {
		t.Fatal("valid config should start polling")
	}

	sched.Reconcile(config.Config{RepositoryURL: "bogus", IntervalSeconds: 60})
	if sched.Running() {
		t.Error("invalid config should stop polling")
	}
}
