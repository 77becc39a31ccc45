package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/five82/fleetdash/internal/autosave"
	"github.com/five82/fleetdash/internal/cache"
	"github.com/five82/fleetdash/internal/config"
	"github.com/five82/fleetdash/internal/entity"
	"github.com/five82/fleetdash/internal/fallback"
	"github.com/five82/fleetdash/internal/filter"
	"github.com/five82/fleetdash/internal/guard"
	"github.com/five82/fleetdash/internal/prefs"
	"github.com/five82/fleetdash/internal/remote"
	"github.com/five82/fleetdash/internal/ui"
	"github.com/five82/fleetdash/internal/workspace"
)

const (
	saveRetryBase = 2 * time.Second
	saveRetryMax  = 30 * time.Second
	flushTimeout  = 10 * time.Second
)

// Options configure the fleetdash application.
type Options struct {
	ConfigPath string
	PrefsPath  string // empty uses default ~/.config/fleetdash/prefs.toml
	PollEvery  int    // seconds; zero uses the configured refresh interval
}

// Runtime is the wired component graph shared by the TUI and the CLI commands.
type Runtime struct {
	Config    config.Config
	Client    *remote.Client
	Snapshots *fallback.Snapshots
	Cache     *cache.Cache
	Manager   *workspace.Manager
	Logger    *log.Logger

	closers []io.Closer
}

// Build wires the remote client, fallback store, cache and workspace manager
// from cfg. Close releases what Build opened.
func Build(ctx context.Context, cfg config.Config, logger *log.Logger) (*Runtime, error) {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	rt := &Runtime{Config: cfg, Logger: logger}

	client, err := remote.NewClient(cfg.APIBind, remote.WithToken(cfg.APIToken))
	if err != nil {
		return nil, fmt.Errorf("init remote client: %w", err)
	}
	rt.Client = client

	store, err := rt.openStore(ctx)
	if err != nil {
		return nil, err
	}
	rt.Snapshots = fallback.NewSnapshots(store, fallback.WithLogger(component(logger, "fallback")))

	rt.Cache = cache.New(
		cache.WithRetention(cfg.Retention),
		cache.WithLogger(component(logger, "cache")),
	)

	manager, err := workspace.NewManager(workspace.ManagerConfig{
		API: func(kind entity.Kind, scope string) remote.EntityAPI {
			return client.Resource(kind, scope)
		},
		Cache:     rt.Cache,
		Snapshots: rt.Snapshots,
		Policy: guard.Policy{
			Horizon:       cfg.SnapshotHorizon,
			RetiredLabels: cfg.RetiredLabels,
		},
		Engine: filter.NewEngine(nil),
		AutoSave: &autosave.Config{
			Debounce:   cfg.Debounce,
			RetryBase:  saveRetryBase,
			RetryMax:   saveRetryMax,
			MaxRetries: cfg.MaxSaveRetries,
			Logger:     component(logger, "autosave"),
		},
		Logger: component(logger, "workspace"),
	})
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	rt.Manager = manager
	return rt, nil
}

func (rt *Runtime) openStore(ctx context.Context) (fallback.Store, error) {
	switch rt.Config.FallbackBackend {
	case config.BackendMemory:
		return fallback.NewMemoryStore(), nil
	case config.BackendSQLite:
		path := rt.Config.SQLitePath()
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create fallback dir: %w", err)
		}
		store, err := fallback.NewSQLiteStore(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("open fallback database: %w", err)
		}
		rt.closers = append(rt.closers, store)
		return store, nil
	default:
		store, err := fallback.NewFileStore(rt.Config.FallbackDir)
		if err != nil {
			return nil, fmt.Errorf("open fallback dir: %w", err)
		}
		return store, nil
	}
}

// Flush saves every unsettled workspace within flushTimeout and closes them.
func (rt *Runtime) Flush() error {
	if rt.Manager == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	err := rt.Manager.SaveAll(ctx)
	for _, key := range rt.Manager.Unsaved() {
		rt.Logger.Printf("exiting with unsaved changes in %s", key)
	}
	rt.Manager.CloseAll()
	return err
}

// Close releases the fallback store and any other resources Build opened.
func (rt *Runtime) Close() error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}

// OpenLog returns a logger writing to a size-rotated file at path. The TUI owns
// the terminal, so process logs never go to stderr while it runs.
func OpenLog(path string) (*log.Logger, io.Closer) {
	out := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
	}
	return log.New(out, "", log.LstdFlags), out
}

func component(base *log.Logger, name string) *log.Logger {
	return log.New(base.Writer(), "["+name+"] ", base.Flags())
}

// Run boots the fleetdash TUI until the user quits or the context is cancelled.
// Unsaved work is flushed before returning.
func Run(ctx context.Context, opts Options) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	kinds, err := cfg.Kinds()
	if err != nil {
		return err
	}

	userPrefs := prefs.Load(opts.PrefsPath)

	logger, logFile := OpenLog(cfg.LogFile)
	defer logFile.Close()
	log.SetOutput(logger.Writer())

	rt, err := Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	for _, kind := range kinds {
		if _, err := rt.Manager.Open(ctx, kind, ""); err != nil {
			return fmt.Errorf("open %s: %w", kind, err)
		}
	}

	interval := cfg.RefreshInterval
	if opts.PollEvery > 0 {
		interval = time.Duration(opts.PollEvery) * time.Second
	}
	pollCtx, stopPolling := context.WithCancel(ctx)
	done := StartPoller(pollCtx, rt.Manager, interval, component(logger, "poller"))

	uiErr := ui.Run(ui.Options{
		Context:   ctx,
		Manager:   rt.Manager,
		Kinds:     kinds,
		ThemeName: userPrefs.Theme,
		Sort:      userPrefs.Sort,
		PrefsPath: opts.PrefsPath,
	})

	stopPolling()
	<-done
	if err := rt.Flush(); err != nil {
		logger.Printf("final save failed: %v", err)
		if uiErr == nil {
			uiErr = fmt.Errorf("final save: %w", err)
		}
	}
	return uiErr
}
