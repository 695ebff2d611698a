package main

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/issueping/issueping/internal/config"
	"github.com/issueping/issueping/internal/icon"
	"github.com/issueping/issueping/internal/models"
	"github.com/issueping/issueping/internal/poll"
)

func newTestApp(t *testing.T) *App {
	t.Helper()

	store := poll.NewStore(filepath.Join(t.TempDir(), "state.json"))
	app := &App{
		store:   store,
		tray:    &MockSystray{},
		icons:   icon.NewCache(),
		cfgPath: "/tmp/config.yaml",
		cfg: config.Config{
			RepositoryURL:   "https://github.com/Expensify/App",
			IntervalSeconds: 60,
		},
	}
	app.sched = poll.NewScheduler(store, func(string) poll.Fetcher { return nil }, nil, poll.Hooks{})
	return app
}

func historyIssue(id int64, number int, title string) models.Issue {
	return models.Issue{
		ID:            id,
		Number:        number,
		Title:         title,
		HTMLURL:       "https://github.com/Expensify/App/issues/1",
		RepositoryURL: "https://api.github.com/repos/Expensify/App",
		Author:        models.Author{Login: "alice", Type: "User"},
		CreatedAt:     time.Now().Add(-2 * time.Hour),
	}
}

func TestFormatAge(t *testing.T) {
	tests := []struct {
		name string
		time time.Time
		want string
	}{
		{"minutes", time.Now().Add(-30 * time.Minute), "30m"},
		{"hours", time.Now().Add(-5 * time.Hour), "5h"},
		{"days", time.Now().Add(-3 * 24 * time.Hour), "3d"},
		{"months", time.Now().Add(-60 * 24 * time.Hour), "2mo"},
		{"years", time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC), "2020"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatAge(tt.time); got != tt.want {
				t.Errorf("formatAge() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 60); got != "short" {
		t.Errorf("truncate() = %q, want unchanged", got)
	}
	long := strings.Repeat("x", 100)
	got := truncate(long, 60)
	if len(got) != 60 || !strings.HasSuffix(got, "...") {
		t.Errorf("truncate() = %q (len %d), want 60 chars ending in ...", got, len(got))
	}

	// A multibyte title cut at the limit must stay valid UTF-8.
	wide := strings.Repeat("情", 100)
	got = truncate(wide, 60)
	if !utf8.ValidString(got) {
		t.Errorf("truncate() produced invalid UTF-8: %q", got)
	}
	if n := utf8.RuneCountInString(got); n != 60 {
		t.Errorf("truncate() rune count = %d, want 60", n)
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("truncate() = %q, want ... suffix", got)
	}
}

func TestStatusLine(t *testing.T) {
	if got := statusLine(true, time.Time{}); got != "Checking for new issues..." {
		t.Errorf("statusLine(loading) = %q", got)
	}
	if got := statusLine(false, time.Time{}); got != "Never checked" {
		t.Errorf("statusLine(never) = %q", got)
	}
	checked := time.Date(2026, 1, 2, 15, 4, 5, 0, time.Local)
	if got := statusLine(false, checked); got != "Last checked: 3:04:05 PM" {
		t.Errorf("statusLine(checked) = %q", got)
	}
}

func TestMenuSignatureChangesWithHistory(t *testing.T) {
	app := newTestApp(t)

	before := app.menuSignature()

	app.store.Update(func(st poll.State) poll.State {
		st.History = append(st.History, historyIssue(100, 1, "Crash on startup"))
		return st
	})

	after := app.menuSignature()
	if len(after) != len(before)+1 {
		t.Fatalf("signature length = %d, want %d", len(after), len(before)+1)
	}
	if after[len(after)-1] != "issue:100" {
		t.Errorf("last signature entry = %q, want issue:100", after[len(after)-1])
	}
}

func TestRebuildMenuShowsHistory(t *testing.T) {
	app := newTestApp(t)
	mock, ok := app.tray.(*MockSystray)
	if !ok {
		t.Fatal("expected MockSystray")
	}

	app.store.Update(func(st poll.State) poll.State {
		st.History = append(st.History, historyIssue(200, 42, "Login button does nothing"))
		return st
	})

	app.rebuildMenu(context.Background())

	var found bool
	for _, title := range mock.menuItems {
		if strings.Contains(title, "#42") && strings.Contains(title, "Login button does nothing") {
			found = true
		}
	}
	if !found {
		t.Errorf("menu items missing issue entry: %v", mock.menuItems)
	}

	for _, want := range []string{"Expensify/App", "View all issues", "Check now", "Start polling", "Clear history", "Quit"} {
		var present bool
		for _, title := range mock.menuItems {
			if strings.Contains(title, want) {
				present = true
			}
		}
		if !present {
			t.Errorf("menu missing %q: %v", want, mock.menuItems)
		}
	}
}

func TestRebuildMenuConfigError(t *testing.T) {
	app := newTestApp(t)
	app.cfgErr = "polling interval must be at least 60 seconds without an auth token"
	mock, ok := app.tray.(*MockSystray)
	if !ok {
		t.Fatal("expected MockSystray")
	}

	app.rebuildMenu(context.Background())

	if len(mock.menuItems) == 0 || !strings.Contains(mock.menuItems[0], "Configuration Error") {
		t.Errorf("expected config error menu, got %v", mock.menuItems)
	}
	for _, title := range mock.menuItems {
		if strings.Contains(title, "Check now") {
			t.Error("config error menu should not offer Check now")
		}
	}
}

func TestHistoryCountScopedToActiveRepo(t *testing.T) {
	app := newTestApp(t)

	other := historyIssue(300, 7, "Stale entry from previous repository")
	other.RepositoryURL = "https://api.github.com/repos/other/repo"

	app.store.Update(func(st poll.State) poll.State {
		st.History = append(st.History, historyIssue(301, 8, "Active repo issue"), other)
		return st
	})

	if got := app.historyCount(); got != 1 {
		t.Errorf("historyCount() = %d, want 1", got)
	}
}

func TestUpdateMenuSkipsUnchanged(t *testing.T) {
	app := newTestApp(t)
	mock, ok := app.tray.(*MockSystray)
	if !ok {
		t.Fatal("expected MockSystray")
	}

	app.rebuildMenu(context.Background())
	first := len(mock.menuItems)

	// Same state: updateMenu must not reset and rebuild.
	mock.menuItems = append(mock.menuItems, "sentinel")
	app.updateMenu(context.Background())

	if len(mock.menuItems) != first+1 {
		t.Errorf("updateMenu rebuilt an unchanged menu: %v", mock.menuItems)
	}
}
