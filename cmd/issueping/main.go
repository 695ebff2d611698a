// Package main implements a cross-platform system tray application that
// watches a single GitHub repository for newly created issues and raises
// a desktop notification for each one. Polling uses conditional requests
// so unchanged repositories cost no rate limit; notified issues are kept
// in a persistent history shown in the tray menu.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/energye/systray"

	"github.com/issueping/issueping/internal/api"
	"github.com/issueping/issueping/internal/config"
	"github.com/issueping/issueping/internal/icon"
	"github.com/issueping/issueping/internal/logging"
	"github.com/issueping/issueping/internal/notify"
	"github.com/issueping/issueping/internal/poll"
)

// Version information - set during build with -ldflags.
var (
	version = "dev"
	commit  = "unknown"
)

const appName = "issueping"

// App holds the tray-side application state. Poll state itself lives in
// the store; App only tracks what the menu needs between rebuilds.
type App struct {
	store   *poll.Store
	sched   *poll.Scheduler
	tray    SystrayInterface
	icons   *icon.Cache
	cfgPath string

	mu              sync.Mutex
	ctx             context.Context
	cfg             config.Config
	cfgErr          string
	lastMenuSig     []string
	menuInitialized bool

	menuMutex sync.Mutex
}

func main() {
	configDir, err := os.UserConfigDir()
	if err != nil {
		log.Fatalf("Failed to locate user config directory: %v", err)
	}
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		log.Fatalf("Failed to locate user cache directory: %v", err)
	}
	appDir := filepath.Join(configDir, appName)

	var cfgPath, statePath string
	var once, debug bool
	flag.StringVar(&cfgPath, "config", filepath.Join(appDir, "config.yaml"), "Path to the configuration file")
	flag.StringVar(&statePath, "state", filepath.Join(appDir, "state.json"), "Path to the poll state snapshot")
	flag.BoolVar(&once, "once", false, "Run a single check headlessly and exit")
	flag.BoolVar(&debug, "debug", false, "Enable debug logging")
	flag.Parse()

	setupLogging(filepath.Join(cacheDir, appName), debug)

	slog.Info("Starting issueping", "version", version, "commit", commit)
	slog.Info("Paths", "config", cfgPath, "state", statePath)

	cfg, cfgErr := loadOrCreateConfig(cfgPath)

	store := poll.NewStore(statePath)
	if err := store.Load(); err != nil {
		slog.Warn("[STATE] Snapshot unreadable, starting with empty history", "error", err)
	}

	notifier := notify.New(notify.NewIconCache(filepath.Join(cacheDir, appName, "icons")))

	app := &App{
		store:   store,
		tray:    &RealSystray{},
		icons:   icon.NewCache(),
		cfgPath: cfgPath,
		cfg:     cfg,
		cfgErr:  cfgErr,
	}

	app.sched = poll.NewScheduler(store, func(token string) poll.Fetcher {
		return api.NewClient(token)
	}, notifier, poll.Hooks{
		OnStarted:     app.refreshUI,
		OnStopped:     app.refreshUI,
		OnStateChange: app.refreshUI,
	})

	if once {
		runOnce(app)
		return
	}

	appCtx, cancel := context.WithCancel(context.Background())
	systray.Run(func() { app.onReady(appCtx) }, func() {
		slog.Info("Shutting down")
		cancel()
		app.sched.Stop()
	})
}

// setupLogging logs to stderr, plus a daily file under the cache dir so
// a long-lived tray session can be debugged after the fact. File logging
// is best-effort; stderr always works.
func setupLogging(dir string, debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	stderr := slog.NewTextHandler(os.Stderr, opts)
	slog.SetDefault(slog.New(stderr))

	logDir := filepath.Join(dir, "logs")
	if err := os.MkdirAll(logDir, 0o700); err != nil {
		slog.Warn("Failed to create log directory", "error", err)
		return
	}
	logPath := filepath.Join(logDir, fmt.Sprintf("issueping-%s.log", time.Now().Format("2006-01-02")))
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		slog.Warn("Failed to open log file", "error", err)
		return
	}
	slog.SetDefault(slog.New(logging.NewMultiHandler(stderr, slog.NewTextHandler(logFile, opts))))
	slog.Info("Logs are being written to", "path", logPath)
}

// loadOrCreateConfig reads the config file, writing a starter file on
// first launch so the user has something to edit. The returned error
// string is empty when the config is usable.
func loadOrCreateConfig(path string) (config.Config, string) {
	cfg, err := config.Load(path)
	if err != nil {
		// Load wraps the underlying read error, so unwrap to detect a
		// missing file.
		if errors.Is(err, fs.ErrNotExist) {
			cfg = config.Default()
			if saveErr := config.Save(path, cfg); saveErr != nil {
				slog.Warn("[CONFIG] Failed to write starter config", "error", saveErr)
			} else {
				slog.Info("[CONFIG] Wrote starter config", "path", path)
			}
			return cfg, "No repository configured yet"
		}
		slog.Error("[CONFIG] Failed to load config", "error", err)
		return config.Default(), err.Error()
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("[CONFIG] Invalid config", "error", err)
		return cfg, err.Error()
	}
	return cfg, ""
}

// runOnce performs a single synchronous check and exits nonzero when the
// check failed. Meant for cron-style use and smoke testing.
func runOnce(app *App) {
	app.mu.Lock()
	cfg, cfgErr := app.cfg, app.cfgErr
	app.mu.Unlock()

	if cfgErr != "" {
		log.Fatalf("Cannot run check: %s", cfgErr)
	}

	app.sched.RunOnce(context.Background(), cfg)

	st := app.store.State()
	if st.LastError != "" {
		log.Fatalf("Check failed: %s", st.LastError)
	}
	slog.Info("Check complete", "history", len(st.History))
}

func (app *App) onReady(ctx context.Context) {
	slog.Info("System tray ready")

	app.mu.Lock()
	app.ctx = ctx
	app.mu.Unlock()

	systray.SetOnClick(func(menu systray.IMenu) {
		if menu != nil {
			if err := menu.ShowMenu(); err != nil {
				slog.Error("Failed to show menu", "error", err)
			}
		}
	})
	systray.SetOnRClick(func(menu systray.IMenu) {
		if menu != nil {
			if err := menu.ShowMenu(); err != nil {
				slog.Error("Failed to show menu", "error", err)
			}
		}
	})

	app.tray.SetTooltip("Issue Ping")
	app.updateTrayIcon()

	app.rebuildMenu(ctx)
	app.mu.Lock()
	app.menuInitialized = true
	app.mu.Unlock()

	// React to config edits without a restart. The watcher survives
	// editors that replace the file and recreates itself if the inotify
	// handle breaks.
	go config.Watch(ctx, app.cfgPath, func(cfg config.Config, err error) {
		app.applyConfig(ctx, cfg, err)
	})

	app.mu.Lock()
	cfg, cfgErr := app.cfg, app.cfgErr
	app.mu.Unlock()
	if cfgErr == "" {
		app.sched.Reconcile(cfg)
	}
}

// applyConfig handles a config reload from the file watcher: it validates,
// reconciles the scheduler (start, restart, or stop), and refreshes the menu.
func (app *App) applyConfig(ctx context.Context, cfg config.Config, err error) {
	app.mu.Lock()
	if err != nil {
		app.cfgErr = err.Error()
		slog.Error("[CONFIG] Reload failed", "error", err)
	} else if verr := cfg.Validate(); verr != nil {
		app.cfg = cfg
		app.cfgErr = verr.Error()
		slog.Error("[CONFIG] Reloaded config invalid", "error", verr)
	} else {
		app.cfg = cfg
		app.cfgErr = ""
		slog.Info("[CONFIG] Config reloaded", "repo", cfg.RepositoryURL, "interval", cfg.Interval())
	}
	cfg, cfgErr := app.cfg, app.cfgErr
	app.mu.Unlock()

	if cfgErr == "" {
		app.sched.Reconcile(cfg)
	} else {
		app.sched.Stop()
	}
	app.rebuildMenu(ctx)
}
