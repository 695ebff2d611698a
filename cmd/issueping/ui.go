// Package main - ui.go renders the tray menu and the count badge icon.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"runtime"
	"strconv"
	"time"

	"github.com/issueping/issueping/internal/browser"
	"github.com/issueping/issueping/internal/icon"
	"github.com/issueping/issueping/internal/models"
)

const (
	maxMenuTitleLen = 60
	maxMenuErrorLen = 80
)

// refreshUI re-renders the icon and menu after a poll state change. Safe
// to call from scheduler goroutines; no-op until the tray is up.
func (app *App) refreshUI() {
	app.mu.Lock()
	ready := app.menuInitialized
	ctx := app.ctx
	app.mu.Unlock()
	if !ready {
		return
	}

	app.updateTrayIcon()
	app.updateMenu(ctx)
}

// updateMenu rebuilds the menu only when its content actually changed.
// Rebuilding on every tick makes the open menu flicker on some desktops.
func (app *App) updateMenu(ctx context.Context) {
	sig := app.menuSignature()

	app.mu.Lock()
	last := app.lastMenuSig
	app.mu.Unlock()

	if reflect.DeepEqual(last, sig) {
		return
	}
	app.rebuildMenu(ctx)
}

// menuSignature captures everything the menu renders, for change detection.
func (app *App) menuSignature() []string {
	app.mu.Lock()
	cfgErr := app.cfgErr
	repo := app.cfg.RepositoryURL
	app.mu.Unlock()

	st := app.store.State()

	sig := []string{
		"cfgerr:" + cfgErr,
		"repo:" + repo,
		"running:" + strconv.FormatBool(app.sched.Running()),
		"loading:" + strconv.FormatBool(st.Loading),
		"error:" + st.LastError,
		"checked:" + st.LastCheckedAt.Format(time.RFC3339),
	}
	for i := range st.History {
		sig = append(sig, "issue:"+strconv.FormatInt(st.History[i].ID, 10))
	}
	return sig
}

func (app *App) rebuildMenu(ctx context.Context) {
	app.menuMutex.Lock()
	defer app.menuMutex.Unlock()

	sig := app.menuSignature()
	app.mu.Lock()
	app.lastMenuSig = sig
	cfg := app.cfg
	cfgErr := app.cfgErr
	cfgPath := app.cfgPath
	app.mu.Unlock()

	app.tray.ResetMenu()

	// On Linux a reset needs a moment to propagate over DBus before new
	// items are added, otherwise items duplicate.
	if runtime.GOOS == "linux" {
		time.Sleep(50 * time.Millisecond)
	}

	if cfgErr != "" {
		errTitle := app.tray.AddMenuItem("⚠️ Configuration Error", "")
		errTitle.Disable()
		errMsg := app.tray.AddMenuItem(truncate(cfgErr, maxMenuErrorLen), "")
		errMsg.Disable()
		hint := app.tray.AddMenuItem(fmt.Sprintf("Edit %s and save to retry", cfgPath), "")
		hint.Disable()
		app.tray.AddSeparator()
		quitItem := app.tray.AddMenuItem("Quit", "")
		quitItem.Click(func() {
			app.tray.Quit()
		})
		return
	}

	st := app.store.State()
	owner, name := cfg.RepoRef()

	header := app.tray.AddMenuItem(fmt.Sprintf("%s/%s", owner, name), cfg.RepositoryURL)
	header.Click(func() {
		if err := browser.Open(cfg.RepositoryURL); err != nil {
			slog.Error("[UI] Failed to open repository", "error", err)
		}
	})

	status := app.tray.AddMenuItem(statusLine(st.Loading, st.LastCheckedAt), "")
	status.Disable()

	if st.LastError != "" {
		errItem := app.tray.AddMenuItem("⚠️ "+truncate(st.LastError, maxMenuErrorLen), st.LastError)
		errItem.Disable()
	}

	app.tray.AddSeparator()

	if len(st.History) == 0 {
		empty := app.tray.AddMenuItem("No new issues", "")
		empty.Disable()
	}
	for i := range st.History {
		app.addHistoryItem(st.History[i])
	}

	app.tray.AddSeparator()

	viewAll := app.tray.AddMenuItem("View all issues", "Open the issue list on GitHub, newest first")
	viewAll.Click(func() {
		if err := browser.Open(cfg.IssuesByCreatedAtLink()); err != nil {
			slog.Error("[UI] Failed to open issue list", "error", err)
		}
	})

	checkNow := app.tray.AddMenuItem("Check now", "Run a check outside the regular interval")
	checkNow.Click(func() {
		go app.sched.CheckNow(ctx)
	})

	if app.sched.Running() {
		stopItem := app.tray.AddMenuItem("Stop polling", "")
		stopItem.Click(func() {
			app.sched.Stop()
		})
	} else {
		startItem := app.tray.AddMenuItem("Start polling", "")
		startItem.Click(func() {
			app.mu.Lock()
			cfg := app.cfg
			app.mu.Unlock()
			app.sched.Reconcile(cfg)
		})
	}

	clearItem := app.tray.AddMenuItem("Clear history", "Forget notified issues and refetch from scratch")
	clearItem.Click(func() {
		app.store.ClearHistory()
		app.refreshUI()
	})

	app.tray.AddSeparator()

	quitItem := app.tray.AddMenuItem("Quit", "")
	quitItem.Click(func() {
		app.tray.Quit()
	})
}

// addHistoryItem renders one notified issue as a submenu with open and
// dismiss actions. A dismissed issue may be re-notified later: dismissal
// also resets the caching validator.
func (app *App) addHistoryItem(issue models.Issue) {
	title := fmt.Sprintf("#%d %s", issue.Number, truncate(issue.Title, maxMenuTitleLen))
	tooltip := fmt.Sprintf("by %s (%s)", issue.Author.Login, formatAge(issue.CreatedAt))

	item := app.tray.AddMenuItem(title, tooltip)

	issueURL := issue.HTMLURL
	openItem := item.AddSubMenuItem("Open in browser", "")
	openItem.Click(func() {
		if err := browser.Open(issueURL); err != nil {
			slog.Error("[UI] Failed to open issue", "url", issueURL, "error", err)
		}
	})

	issueID := issue.ID
	dismissItem := item.AddSubMenuItem("Dismiss", "")
	dismissItem.Click(func() {
		if app.store.DeleteNotification(issueID) {
			app.refreshUI()
		}
	})
}

// updateTrayIcon sets the badge icon to the count of notified issues for
// the active repository, memoizing rendered icons per count.
func (app *App) updateTrayIcon() {
	count := app.historyCount()

	if data, ok := app.icons.Lookup(count); ok {
		app.tray.SetIcon(data)
		return
	}

	var data []byte
	var err error
	if count > 0 {
		data, err = icon.Badge(count)
	} else {
		data, err = icon.Default()
	}
	if err != nil {
		slog.Warn("[TRAY] Failed to render icon", "count", count, "error", err)
		return
	}
	app.icons.Put(count, data)
	app.tray.SetIcon(data)
}

// historyCount counts history entries belonging to the active repository.
// History can hold issues from a previously watched repository; those do
// not count toward the badge.
func (app *App) historyCount() int {
	app.mu.Lock()
	owner, name := app.cfg.RepoRef()
	app.mu.Unlock()
	if owner == "" {
		return 0
	}

	slug := owner + "/" + name
	st := app.store.State()
	count := 0
	for i := range st.History {
		if st.History[i].RepoSlug() == slug {
			count++
		}
	}
	return count
}

func statusLine(loading bool, lastChecked time.Time) string {
	if loading {
		return "Checking for new issues..."
	}
	if lastChecked.IsZero() {
		return "Never checked"
	}
	return "Last checked: " + lastChecked.Format("3:04:05 PM")
}

// formatAge renders a compact relative age for tooltips.
func formatAge(t time.Time) string {
	duration := time.Since(t)
	switch {
	case duration < time.Hour:
		return fmt.Sprintf("%dm", int(duration.Minutes()))
	case duration < 24*time.Hour:
		return fmt.Sprintf("%dh", int(duration.Hours()))
	case duration < 30*24*time.Hour:
		return fmt.Sprintf("%dd", int(duration.Hours()/24))
	case duration < 365*24*time.Hour:
		return fmt.Sprintf("%dmo", int(duration.Hours()/(24*30)))
	default:
		return t.Format("2006")
	}
}

// truncate shortens s to limit runes. Slicing bytes would break a
// multibyte title at the cut point.
func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-3]) + "..."
}
