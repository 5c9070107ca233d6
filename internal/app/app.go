// Package app wires the daemon together: config, logging, storage, the
// publish engine, the scheduler loop and the HTTP surface.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"xpost/internal/api"
	"xpost/internal/config"
	"xpost/internal/publish"
	"xpost/internal/scheduler"
	"xpost/internal/store"
	"xpost/internal/xapi"
	"xpost/pkg/logx"
)

const defaultStorePath = "./xpost.db"

type App struct {
	cfgm *config.Manager

	log       logx.Logger
	closeLogs func() error

	st     *store.Store
	policy *publish.Policy
	sched  *scheduler.Service

	srv *http.Server

	watchCancel context.CancelFunc
	watchDone   chan struct{}
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	busyTimeout, err := cfg.Storage.BusyTimeoutDuration()
	if err != nil {
		return nil, err
	}
	timeout, err := cfg.Publisher.TimeoutDuration()
	if err != nil {
		return nil, err
	}
	postGap, err := cfg.Publisher.PostGapDuration()
	if err != nil {
		return nil, err
	}
	period, err := cfg.Scheduler.PeriodDuration()
	if err != nil {
		return nil, err
	}

	log, closeLogs, err := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.ConsoleLogging(),
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	if err != nil {
		return nil, err
	}
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	storePath := cfg.Storage.Path
	if storePath == "" {
		storePath = defaultStorePath
	}
	st, err := store.Open(store.Config{
		Path:        storePath,
		BusyTimeout: busyTimeout,
	}, log.With(logx.String("comp", "store")))
	if err != nil {
		_ = closeLogs()
		return nil, err
	}

	client := xapi.New(xapi.Config{
		BaseURL:       cfg.Publisher.BaseURL,
		UploadBaseURL: cfg.Publisher.UploadBaseURL,
		BearerToken:   cfg.Publisher.BearerToken,
		Timeout:       timeout,
		MaxRetries:    cfg.Publisher.MaxRetries,
	}, log.With(logx.String("comp", "xapi")))

	policy := publish.NewPolicy()
	policy.SetAutoDelete(cfg.AutoDelete())

	engine := publish.NewEngine(client, st, policy, postGap, log.With(logx.String("comp", "publish")))

	sched := scheduler.New(scheduler.Config{
		Period:    period,
		AutoStart: cfg.Scheduler.AutoStartEnabled(),
	}, st, engine, log.With(logx.String("comp", "scheduler")))

	apiSrv := api.New(st, engine, sched, policy, log.With(logx.String("comp", "api")))
	srv := &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           apiSrv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Config reloads only touch runtime-mutable settings; listen address,
	// storage and publisher credentials need a restart.
	cfgm.OnChange(func(c *config.Config) {
		policy.SetAutoDelete(c.AutoDelete())
	})

	return &App{
		cfgm:      cfgm,
		log:       log.With(logx.String("comp", "app")),
		closeLogs: closeLogs,
		st:        st,
		policy:    policy,
		sched:     sched,
		srv:       srv,
	}, nil
}

func (a *App) Start(ctx context.Context) error {
	// Durable schedules survive restarts: resume the loop when live items
	// are already waiting.
	live, _, err := a.st.Counts(ctx, time.Now())
	if err != nil {
		return err
	}
	if live > 0 {
		a.sched.AutoStart()
	}

	watchCtx, cancel := context.WithCancel(context.Background())
	a.watchCancel = cancel
	a.watchDone = make(chan struct{})
	go func() {
		defer close(a.watchDone)
		if err := a.cfgm.Watch(watchCtx); err != nil {
			a.log.Warn("config watch exited", logx.Err(err))
		}
	}()

	go func() {
		a.log.Info("http server listening", logx.String("addr", a.srv.Addr))
		if err := a.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("http server failed", logx.Err(err))
		}
	}()

	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	a.log.Info("started",
		logx.Int("live_scheduled", live),
		logx.Bool("scheduler_running", a.sched.Running()))
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	a.sched.Stop(ctx)

	if err := a.srv.Shutdown(ctx); err != nil {
		a.log.Warn("http shutdown", logx.Err(err))
	}

	if a.watchCancel != nil {
		a.watchCancel()
		select {
		case <-a.watchDone:
		case <-ctx.Done():
		}
	}

	err := a.st.Close()
	a.log.Info("stopped")
	if cerr := a.closeLogs(); err == nil {
		err = cerr
	}
	return err
}
