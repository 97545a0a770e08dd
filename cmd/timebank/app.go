package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/eliteGoblin/focusd/timebank/internal/api"
	"github.com/eliteGoblin/focusd/timebank/internal/classify"
	"github.com/eliteGoblin/focusd/timebank/internal/config"
	"github.com/eliteGoblin/focusd/timebank/internal/daemon"
	"github.com/eliteGoblin/focusd/timebank/internal/domain"
	"github.com/eliteGoblin/focusd/timebank/internal/infra"
	"github.com/eliteGoblin/focusd/timebank/internal/ledger"
	"github.com/eliteGoblin/focusd/timebank/internal/policy"
	"github.com/eliteGoblin/focusd/timebank/internal/usecase"
)

// app bundles the components shared by the CLI commands and the daemon.
type app struct {
	cfg    config.Config
	paths  *infra.Paths
	store  *infra.EncryptedStore
	ledger *ledger.LedgerImpl
	reset  *policy.ResetPolicy
	logger *zap.Logger
}

// loggerFactory builds the logger once config and paths are known.
type loggerFactory func(cfg config.Config, paths *infra.Paths) *zap.Logger

func openApp(newLogger loggerFactory) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	paths := infra.DetectPaths()
	if cfg.Storage.DataDir != "" {
		paths = infra.PathsFor(paths.Mode, cfg.Storage.DataDir)
	}
	if err := paths.EnsureDataDir(); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	logger := newLogger(cfg, paths)

	key, err := infra.EnsureKey(infra.ResolveKeyProvider(paths.DataDir))
	if err != nil {
		return nil, fmt.Errorf("failed to load encryption key: %w", err)
	}
	store, err := infra.NewEncryptedStore(paths.DataDir, key)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}

	led := ledger.NewLedger(store, logger)
	reset := policy.NewResetPolicy(policy.ResetConfig{
		DailyBalance:  cfg.Bank.DailyBalance,
		ClearBalance:  cfg.Bank.ClearBalance,
		ClearThrottle: cfg.Bank.ClearThrottle,
	}, led, store, domain.SystemClock{}, logger)

	return &app{
		cfg:    cfg,
		paths:  paths,
		store:  store,
		ledger: led,
		reset:  reset,
		logger: logger,
	}, nil
}

func (a *app) Close() error {
	_ = a.logger.Sync()
	return a.store.Close()
}

// runSupervisor wires the monitor and blocks until ctx is canceled.
// registry is nil for foreground runs.
func (a *app) runSupervisor(ctx context.Context, registry domain.DaemonRegistry) error {
	cfg := a.cfg
	logger := a.logger
	clock := domain.SystemClock{}

	pm := infra.NewProcessManager()
	observer := infra.NewDesktopObserver(pm)
	alerts := infra.NewDesktopAlerts(logger)
	gateway := classify.NewGateway(a.store, logger)

	var gate *usecase.EnforcementGate
	if cfg.Enforcement.KillOnBlock {
		gate = usecase.NewEnforcementGateWithKill(cfg.Enforcement.BlockCooldown, alerts, pm, logger)
	} else {
		gate = usecase.NewEnforcementGate(cfg.Enforcement.BlockCooldown, alerts, logger)
	}

	accountant := usecase.NewAccountant(usecase.AccountingConfig{
		DefaultRatio:     cfg.Bank.DefaultRatio,
		ReminderInterval: cfg.Enforcement.ReminderInterval,
	}, gateway, a.ledger, a.store, gate, alerts, logger)

	monitorConfig := daemon.DefaultMonitorConfig()
	monitorConfig.TickInterval = cfg.Monitor.TickInterval
	if cfg.Monitor.SelfAppID != "" {
		monitorConfig.SelfAppID = cfg.Monitor.SelfAppID
	}
	newMonitor := func() daemon.Runner {
		return daemon.NewMonitor(monitorConfig, observer, accountant, a.reset, clock, logger)
	}

	if cfg.Storage.ClassificationsFile != "" {
		fileSync := classify.NewFileSync(cfg.Storage.ClassificationsFile, a.store, logger)
		fileSync.OnReload(func(applied int, err error) {
			if err == nil {
				logger.Info("classifications reloaded", zap.Int("applied", applied))
			}
		})
		if _, err := fileSync.Load(ctx); err != nil {
			logger.Warn("failed to load classifications file", zap.Error(err))
		}
		if err := fileSync.Watch(); err != nil {
			logger.Warn("failed to watch classifications file", zap.Error(err))
		}
		defer fileSync.Close()
	}

	if cfg.HTTP.Addr != "" {
		srv := &http.Server{
			Addr:              cfg.HTTP.Addr,
			Handler:           api.NewServer(a.ledger, a.reset, alerts.StatusText, logger).Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("http api listening", zap.String("addr", cfg.HTTP.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http api failed", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	supervisor := daemon.NewSupervisor(daemon.SupervisorConfig{
		EnabledCheckInterval: cfg.Monitor.EnabledCheckInterval,
		HeartbeatInterval:    cfg.Monitor.HeartbeatInterval,
	}, a.store, registry, newMonitor, domain.Daemon{
		PID:        os.Getpid(),
		StartedAt:  time.Now(),
		AppVersion: Version,
	}, logger)

	err := supervisor.Run(ctx)
	alerts.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// runningDaemon returns the registered daemon when its process is alive.
func (a *app) runningDaemon() (*domain.RegistryEntry, bool) {
	entry, err := a.store.Current()
	if err != nil || entry == nil {
		return entry, false
	}
	return entry, infra.NewProcessManager().IsRunning(entry.PID)
}

func writePIDFile(path string) error {
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0600)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func createLogger(path, level string) *zap.Logger {
	config := zap.NewProductionConfig()
	config.OutputPaths = []string{path}
	config.ErrorOutputPaths = []string{path}
	config.EncoderConfig.TimeKey = "time"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if lvl, err := zapcore.ParseLevel(level); err == nil {
		config.Level = zap.NewAtomicLevelAt(lvl)
	}

	logger, err := config.Build()
	if err != nil {
		// Fallback to stdout if file logging fails
		logger, _ = zap.NewProduction()
	}
	return logger
}

func daemonLogger(cfg config.Config, paths *infra.Paths) *zap.Logger {
	return createLogger(paths.LogPath, cfg.Logging.Level)
}

func cliLogger(config.Config, *infra.Paths) *zap.Logger {
	logger, err := zap.NewDevelopment(zap.IncreaseLevel(zapcore.WarnLevel))
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
