package daemon

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/timebank/internal/domain"
)

// Runner is a blocking loop such as Monitor.
type Runner interface {
	Run(ctx context.Context) error
}

// SupervisorConfig holds supervisor configuration.
type SupervisorConfig struct {
	EnabledCheckInterval time.Duration // How often to re-read the monitor-enabled flag
	HeartbeatInterval    time.Duration // How often to update heartbeat
}

// DefaultSupervisorConfig returns default supervisor configuration.
func DefaultSupervisorConfig() SupervisorConfig {
	return SupervisorConfig{
		EnabledCheckInterval: 2 * time.Second,
		HeartbeatInterval:    30 * time.Second,
	}
}

// Supervisor keeps one monitor running while the monitor-enabled flag is set.
// Disabling stops the monitor; re-enabling starts a fresh one (new session,
// daily reset re-checked). A monitor that exits on its own is restarted.
type Supervisor struct {
	config     SupervisorConfig
	store      domain.ConfigStore
	registry   domain.DaemonRegistry
	newMonitor func() Runner
	daemon     domain.Daemon
	logger     *zap.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started int
}

// NewSupervisor creates a supervisor. registry may be nil for foreground runs.
func NewSupervisor(
	config SupervisorConfig,
	store domain.ConfigStore,
	registry domain.DaemonRegistry,
	newMonitor func() Runner,
	daemon domain.Daemon,
	logger *zap.Logger,
) *Supervisor {
	return &Supervisor{
		config:     config,
		store:      store,
		registry:   registry,
		newMonitor: newMonitor,
		daemon:     daemon,
		logger:     logger,
	}
}

// Run starts the supervisor loop.
// This blocks until context is canceled.
func (s *Supervisor) Run(ctx context.Context) error {
	if s.registry != nil {
		if err := s.registry.Register(s.daemon); err != nil {
			s.logger.Error("failed to register daemon", zap.Error(err))
			return err
		}
		defer func() {
			if err := s.registry.Clear(); err != nil {
				s.logger.Warn("failed to clear registration", zap.Error(err))
			}
		}()
	}

	s.logger.Info("supervisor started", zap.Int("pid", s.daemon.PID))

	s.Reconcile(ctx)

	checkTicker := time.NewTicker(s.config.EnabledCheckInterval)
	heartbeatTicker := time.NewTicker(s.config.HeartbeatInterval)

	defer func() {
		checkTicker.Stop()
		heartbeatTicker.Stop()
		s.stopMonitor()
	}()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("supervisor stopping")
			return ctx.Err()

		case <-checkTicker.C:
			s.Reconcile(ctx)

		case <-heartbeatTicker.C:
			if s.registry == nil {
				continue
			}
			if err := s.registry.UpdateHeartbeat(); err != nil {
				s.logger.Warn("failed to update heartbeat", zap.Error(err))
			}
		}
	}
}

// Reconcile starts or stops the monitor to match the enabled flag.
// A store read failure keeps the current state.
func (s *Supervisor) Reconcile(ctx context.Context) {
	enabled, err := s.store.GetBool(ctx, domain.KeyMonitorEnabled, true)
	if err != nil {
		s.logger.Warn("failed to read monitor flag", zap.Error(err))
		return
	}

	running := s.Running()
	switch {
	case enabled && !running:
		s.startMonitor(ctx)
	case !enabled && running:
		s.logger.Info("monitor disabled, stopping")
		s.stopMonitor()
	}
}

// Running reports whether a monitor loop is active.
func (s *Supervisor) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done == nil {
		return false
	}
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// Starts returns how many monitor loops have been started.
func (s *Supervisor) Starts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

func (s *Supervisor) startMonitor(ctx context.Context) {
	monitorCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.cancel = cancel
	s.done = done
	s.started++
	n := s.started
	s.mu.Unlock()

	s.logger.Info("starting monitor", zap.Int("generation", n))

	monitor := s.newMonitor()
	go func() {
		defer close(done)
		if err := monitor.Run(monitorCtx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("monitor exited", zap.Error(err))
		}
	}()
}

func (s *Supervisor) stopMonitor() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}
