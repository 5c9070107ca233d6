package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"xpost/internal/publish"
	"xpost/internal/store"
	"xpost/pkg/logx"
)

const defaultPeriod = 30 * time.Second

// Config controls the scheduler service.
type Config struct {
	Period time.Duration // tick period; default 30s
	// AutoStart lets creating the first scheduled item transparently start
	// the loop. Convenience, not a correctness requirement.
	AutoStart bool
}

// Status is a point-in-time snapshot. No mutation.
type Status struct {
	Running    bool
	LoopExists bool
	LiveItems  int
	DueItems   int
}

// Service owns the lifecycle of the background loop: Stopped -> Running ->
// Stopped. Start while running and Stop while stopped are no-ops.
type Service struct {
	mu  sync.Mutex
	cfg Config
	log logx.Logger

	st     *store.Store
	engine *publish.Engine

	c      *cron.Cron
	stopCh chan struct{}
	// stopDone is non-nil while a Stop() is in progress; it is closed once
	// the in-flight tick has drained.
	stopDone chan struct{}

	runMu       sync.Mutex
	tickRunning bool
}

func New(cfg Config, st *store.Store, engine *publish.Engine, log logx.Logger) *Service {
	if cfg.Period <= 0 {
		cfg.Period = defaultPeriod
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg, st: st, engine: engine, log: log}
}

// Start spawns the background loop. No-op if already running.
func (s *Service) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}

	// Claims left behind by a crash mid-publish would shadow their items
	// forever; clear them so those items become due again.
	if n, err := s.st.ResetClaims(context.Background()); err != nil {
		s.log.Warn("stale claim reset failed", logx.Err(err))
	} else if n > 0 {
		s.log.Info("stale claims reset", logx.Int64("count", n))
	}

	s.stopCh = make(chan struct{})
	c := cron.New()
	c.Schedule(cron.Every(s.cfg.Period), cron.FuncJob(s.tick))
	c.Start()
	s.c = c
	s.log.Info("scheduler started", logx.Duration("period", s.cfg.Period))
}

// AutoStart starts the loop if configured to do so. Called by the dispatcher
// when a scheduled item is created while the scheduler is stopped.
func (s *Service) AutoStart() {
	if !s.cfg.AutoStart {
		return
	}
	s.Start()
}

// Stop signals cancellation and waits for the in-flight tick to observe it
// and drain. No-op if already stopped; a second concurrent Stop just waits.
func (s *Service) Stop(ctx context.Context) {
	start := time.Now()
	s.mu.Lock()
	if s.c == nil {
		s.mu.Unlock()
		return
	}
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}
	done := make(chan struct{})
	s.stopDone = done
	c := s.c
	stopCh := s.stopCh
	s.mu.Unlock()

	// The tick observes stopCh at its next safe point; an in-flight
	// Publisher call is allowed to complete.
	close(stopCh)
	stopCtx := c.Stop()

	go func() {
		<-stopCtx.Done()
		s.mu.Lock()
		s.c = nil
		s.stopCh = nil
		s.stopDone = nil
		s.mu.Unlock()
		close(done)
		s.log.Info("scheduler stopped", logx.Duration("took", time.Since(start)))
	}()

	select {
	case <-done:
	case <-ctx.Done():
		// stop continues in background
	}
}

// Running reports whether the loop is active and not mid-stop.
func (s *Service) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.c != nil && s.stopDone == nil
}

// Status reports the lifecycle state plus live/due item counts.
func (s *Service) Status(ctx context.Context) (Status, error) {
	s.mu.Lock()
	running := s.c != nil && s.stopDone == nil
	loop := s.c != nil
	s.mu.Unlock()

	live, due, err := s.st.Counts(ctx, time.Now())
	if err != nil {
		return Status{}, err
	}
	return Status{Running: running, LoopExists: loop, LiveItems: live, DueItems: due}, nil
}
