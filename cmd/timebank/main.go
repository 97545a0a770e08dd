// Package main is the CLI entry point for timebank.
package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/timebank/internal/config"
	"github.com/eliteGoblin/focusd/timebank/internal/daemon"
	"github.com/eliteGoblin/focusd/timebank/internal/domain"
	"github.com/eliteGoblin/focusd/timebank/internal/infra"
)

var (
	// Version info (set via ldflags)
	Version   = "0.1.0"
	Commit    = "dev"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "timebank",
	Short: "Screen-time bank - earn time with productive apps, spend it on distractions",
	Long: `timebank watches the foreground application. Time spent in apps
classified as positive earns balance; time in negative apps spends it.
When the balance runs out, negative apps are blocked.`,
	Version:      Version,
	SilenceUsage: true,
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the monitor daemon in the background",
	RunE:  runStart,
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the monitor daemon",
	RunE:  runStop,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon state, balance and reset markers",
	RunE:  runStatus,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the monitor in the foreground",
	RunE:  runForeground,
}

var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Manage app classifications",
}

var classifyAddCmd = &cobra.Command{
	Use:   "add <app-id> <positive|negative|unclassified>",
	Short: "Classify an app",
	Args:  cobra.ExactArgs(2),
	RunE:  runClassifyAdd,
}

var classifyRemoveCmd = &cobra.Command{
	Use:   "remove <app-id>",
	Short: "Remove an app classification",
	Args:  cobra.ExactArgs(1),
	RunE:  runClassifyRemove,
}

var classifyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List app classifications",
	RunE:  runClassifyList,
}

var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Show the balance",
	RunE:  runBalance,
}

var balanceCreditCmd = &cobra.Command{
	Use:   "credit <seconds>",
	Short: "Add seconds to the balance (testing)",
	Args:  cobra.ExactArgs(1),
	RunE:  runBalanceCredit,
}

var balanceDebitCmd = &cobra.Command{
	Use:   "debit <seconds>",
	Short: "Spend seconds from the balance (testing)",
	Args:  cobra.ExactArgs(1),
	RunE:  runBalanceDebit,
}

var ratioCmd = &cobra.Command{
	Use:   "ratio",
	Short: "Show the exchange ratio",
	RunE:  runRatio,
}

var ratioSetCmd = &cobra.Command{
	Use:   "set <ratio>",
	Short: "Set seconds earned per second of positive use",
	Args:  cobra.ExactArgs(1),
	RunE:  runRatioSet,
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Reset the balance to the clear grant (throttled)",
	RunE:  runClear,
}

var enableCmd = &cobra.Command{
	Use:   "enable",
	Short: "Enable monitoring",
	RunE:  func(cmd *cobra.Command, args []string) error { return setEnabled(true) },
}

var disableCmd = &cobra.Command{
	Use:   "disable",
	Short: "Disable monitoring (the daemon keeps running idle)",
	RunE:  func(cmd *cobra.Command, args []string) error { return setEnabled(false) },
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Prints version, commit, and build time. Use --json for machine-readable output.`,
	Run:   runVersion,
}

var autostartCmd = &cobra.Command{
	Use:   "autostart",
	Short: "Manage starting the daemon at login",
}

var autostartInstallCmd = &cobra.Command{
	Use:   "install",
	Short: "Start the daemon at login (LaunchAgent or systemd user unit)",
	RunE:  runAutostartInstall,
}

var autostartUninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Stop starting the daemon at login",
	RunE:  runAutostartUninstall,
}

// Hidden daemon command - used for self-exec when spawning the daemon
var daemonCmd = &cobra.Command{
	Use:    "daemon",
	Hidden: true,
	RunE:   runDaemon,
}

var (
	configPath   string
	jsonOutput   bool
	classifyName string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default $TIMEBANK_CONFIG)")
	versionCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version info as JSON")
	classifyAddCmd.Flags().StringVar(&classifyName, "name", "", "Display name")

	classifyCmd.AddCommand(classifyAddCmd, classifyRemoveCmd, classifyListCmd)
	balanceCmd.AddCommand(balanceCreditCmd, balanceDebitCmd)
	ratioCmd.AddCommand(ratioSetCmd)
	autostartCmd.AddCommand(autostartInstallCmd, autostartUninstallCmd)

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(classifyCmd)
	rootCmd.AddCommand(balanceCmd)
	rootCmd.AddCommand(ratioCmd)
	rootCmd.AddCommand(clearCmd)
	rootCmd.AddCommand(enableCmd)
	rootCmd.AddCommand(disableCmd)
	rootCmd.AddCommand(autostartCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(daemonCmd)
}

// withApp opens the store for a one-shot CLI command.
func withApp(fn func(ctx context.Context, a *app) error) error {
	a, err := openApp(cliLogger)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(context.Background(), a)
}

func runStart(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		if entry, alive := a.runningDaemon(); alive {
			fmt.Printf("timebank is already running (pid %d)\n", entry.PID)
			return nil
		}

		if err := daemon.StartDaemon(configPath); err != nil {
			return fmt.Errorf("failed to start daemon: %w", err)
		}

		// Wait a moment for the daemon to register
		time.Sleep(500 * time.Millisecond)

		fmt.Println("\n=== timebank Started ===")
		fmt.Printf("Mode: %s\n", a.paths.Mode)
		fmt.Printf("Data: %s\n", a.paths.DataDir)
		fmt.Printf("Log:  %s\n", a.paths.LogPath)
		fmt.Println("========================")
		return nil
	})
}

func runStop(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		pid := 0
		if entry, alive := a.runningDaemon(); alive {
			pid = entry.PID
		} else if p, err := readPIDFile(a.paths.PIDPath); err == nil && infra.NewProcessManager().IsRunning(p) {
			pid = p
		}
		if pid == 0 {
			fmt.Println("timebank is not running")
			return nil
		}

		if err := syscall.Kill(pid, syscall.SIGTERM); err != nil {
			return fmt.Errorf("failed to stop daemon (pid %d): %w", pid, err)
		}
		fmt.Printf("Stopped timebank (pid %d)\n", pid)
		return nil
	})
}

func runStatus(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		fmt.Println("\n=== timebank Status ===")

		entry, alive := a.runningDaemon()
		switch {
		case alive:
			fmt.Printf("Daemon: RUNNING (pid %d, v%s)\n", entry.PID, entry.AppVersion)
			if entry.LastHeartbeat > 0 {
				lastBeat := time.Unix(entry.LastHeartbeat, 0)
				fmt.Printf("Last heartbeat: %s ago\n", time.Since(lastBeat).Round(time.Second))
			}
		default:
			fmt.Println("Daemon: NOT RUNNING")
		}

		enabled, err := a.store.GetBool(ctx, domain.KeyMonitorEnabled, true)
		if err != nil {
			return err
		}
		balance, err := a.ledger.Read(ctx)
		if err != nil {
			return err
		}
		ratio, err := a.store.GetFloat(ctx, domain.KeyExchangeRatio, a.cfg.Bank.DefaultRatio)
		if err != nil {
			return err
		}
		markers, err := a.reset.Markers(ctx)
		if err != nil {
			return err
		}
		wait, err := a.reset.TimeUntilNextClear(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("Monitoring: %s\n", onOff(enabled))
		fmt.Printf("Balance: %s\n", formatSeconds(balance))
		fmt.Printf("Exchange ratio: %g\n", ratio)
		fmt.Printf("Last daily reset: %s\n", formatMillis(markers.LastDailyResetAt))
		fmt.Printf("Last manual clear: %s\n", formatMillis(markers.LastManualClearAt))
		if wait > 0 {
			fmt.Printf("Next clear allowed in: %s\n", wait.Round(time.Minute))
		} else {
			fmt.Println("Next clear allowed: now")
		}
		fmt.Println("=======================")
		return nil
	})
}

func runForeground(cmd *cobra.Command, args []string) error {
	a, err := openApp(func(config.Config, *infra.Paths) *zap.Logger {
		logger, err := zap.NewDevelopment()
		if err != nil {
			return zap.NewNop()
		}
		return logger
	})
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return a.runSupervisor(ctx, nil)
}

func runDaemon(cmd *cobra.Command, args []string) error {
	a, err := openApp(daemonLogger)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := writePIDFile(a.paths.PIDPath); err != nil {
		a.logger.Warn("failed to write pid file", zap.Error(err))
	}
	defer os.Remove(a.paths.PIDPath)

	// Set up graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		a.logger.Info("received shutdown signal")
		cancel()
	}()

	return a.runSupervisor(ctx, a.store)
}

func runAutostartInstall(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		m, err := infra.NewAutostartManager(a.paths)
		if err != nil {
			return err
		}
		daemonArgs, err := autostartArgs()
		if err != nil {
			return err
		}
		if m.IsInstalled() && !m.NeedsUpdate(daemonArgs) {
			fmt.Printf("Autostart already installed: %s\n", m.Path())
			return nil
		}
		if err := m.Install(ctx, daemonArgs); err != nil {
			return fmt.Errorf("failed to install autostart: %w", err)
		}
		fmt.Printf("Installed autostart: %s\n", m.Path())
		return nil
	})
}

func runAutostartUninstall(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		m, err := infra.NewAutostartManager(a.paths)
		if err != nil {
			return err
		}
		if err := m.Uninstall(ctx); err != nil {
			return fmt.Errorf("failed to remove autostart: %w", err)
		}
		fmt.Println("Autostart removed")
		return nil
	})
}

// autostartArgs is the daemon command line with absolute paths.
func autostartArgs() ([]string, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("failed to get executable path: %w", err)
	}
	cfg := configPath
	if cfg != "" {
		if cfg, err = filepath.Abs(cfg); err != nil {
			return nil, err
		}
	}
	return append([]string{exe}, daemon.DaemonArgs(cfg)...), nil
}

func runClassifyAdd(cmd *cobra.Command, args []string) error {
	category, err := domain.ParseCategory(args[1])
	if err != nil {
		return err
	}
	return withApp(func(ctx context.Context, a *app) error {
		c := domain.Classification{
			AppID:    args[0],
			AppName:  classifyName,
			Category: category,
		}
		if err := a.store.Upsert(ctx, c); err != nil {
			return err
		}
		fmt.Printf("%s -> %s\n", c.DisplayName(), category)
		return nil
	})
}

func runClassifyRemove(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		if err := a.store.Delete(ctx, args[0]); err != nil {
			return err
		}
		fmt.Printf("Removed %s\n", args[0])
		return nil
	})
}

func runClassifyList(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		list, err := a.store.List(ctx)
		if err != nil {
			return err
		}
		if len(list) == 0 {
			fmt.Println("No classified apps.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "APP\tNAME\tCATEGORY\tADDED")
		for _, c := range list {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", c.AppID, c.AppName, c.Category, c.AddedAt.Format("2006-01-02"))
		}
		return w.Flush()
	})
}

func runBalance(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		balance, err := a.ledger.Read(ctx)
		if err != nil {
			return err
		}
		fmt.Println(formatSeconds(balance))
		return nil
	})
}

func runBalanceCredit(cmd *cobra.Command, args []string) error {
	amount, err := parseSeconds(args[0])
	if err != nil {
		return err
	}
	return withApp(func(ctx context.Context, a *app) error {
		if err := a.ledger.Credit(ctx, amount); err != nil {
			return err
		}
		return printBalance(ctx, a)
	})
}

func runBalanceDebit(cmd *cobra.Command, args []string) error {
	amount, err := parseSeconds(args[0])
	if err != nil {
		return err
	}
	return withApp(func(ctx context.Context, a *app) error {
		ok, err := a.ledger.Debit(ctx, amount)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println("Insufficient balance, nothing debited.")
		}
		return printBalance(ctx, a)
	})
}

func runRatio(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		ratio, err := a.store.GetFloat(ctx, domain.KeyExchangeRatio, a.cfg.Bank.DefaultRatio)
		if err != nil {
			return err
		}
		fmt.Printf("%g\n", ratio)
		return nil
	})
}

func runRatioSet(cmd *cobra.Command, args []string) error {
	ratio, err := strconv.ParseFloat(args[0], 64)
	if err != nil || ratio <= 0 || math.IsInf(ratio, 0) || math.IsNaN(ratio) {
		return fmt.Errorf("%w: %q", domain.ErrInvalidRatio, args[0])
	}
	return withApp(func(ctx context.Context, a *app) error {
		if err := a.store.SetFloat(ctx, domain.KeyExchangeRatio, ratio); err != nil {
			return err
		}
		fmt.Printf("Exchange ratio set to %g\n", ratio)
		return nil
	})
}

func runClear(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		wait, err := a.reset.TimeUntilNextClear(ctx)
		if err != nil {
			return err
		}
		if wait > 0 {
			fmt.Printf("Clear not allowed yet. Try again in %s.\n", wait.Round(time.Minute))
			return nil
		}
		if err := a.reset.Clear(ctx); err != nil {
			if errors.Is(err, domain.ErrClearThrottled) {
				fmt.Println("Clear not allowed yet.")
				return nil
			}
			return err
		}
		fmt.Println("Balance cleared.")
		return printBalance(ctx, a)
	})
}

func setEnabled(enabled bool) error {
	return withApp(func(ctx context.Context, a *app) error {
		if err := a.store.SetBool(ctx, domain.KeyMonitorEnabled, enabled); err != nil {
			return err
		}
		fmt.Printf("Monitoring %s\n", onOff(enabled))
		return nil
	})
}

func runVersion(cmd *cobra.Command, args []string) {
	if jsonOutput {
		fmt.Printf(`{"version":"%s","commit":"%s","build_time":"%s"}`+"\n",
			Version, Commit, BuildTime)
	} else {
		fmt.Printf("timebank %s (commit: %s, built: %s)\n",
			Version, Commit, BuildTime)
	}
}

func printBalance(ctx context.Context, a *app) error {
	balance, err := a.ledger.Read(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Balance: %s\n", formatSeconds(balance))
	return nil
}

func parseSeconds(s string) (int64, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid seconds %q: %w", s, err)
	}
	if v < 0 {
		return 0, domain.ErrNegativeAmount
	}
	return v, nil
}

func formatSeconds(s int64) string {
	return (time.Duration(s) * time.Second).String()
}

func formatMillis(ms int64) string {
	if ms == 0 {
		return "never"
	}
	return time.UnixMilli(ms).Format("2006-01-02 15:04:05")
}

func onOff(on bool) string {
	if on {
		return "enabled"
	}
	return "disabled"
}
