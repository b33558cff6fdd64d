package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"iib-desktop/internal/config"
	"iib-desktop/internal/logs"
	"iib-desktop/internal/observability"
	"iib-desktop/internal/shell"
	"iib-desktop/internal/tray"
)

const appTitle = "Infinite Image Browsing"

var version = "v0.1.0" // This will be injected by -ldflags during build

// TrayInterface defines the interface for system tray functionality
type TrayInterface interface {
	Run(ctx context.Context) error
}

func main() {
	rootCmd := newRootCommand()
	if err := rootCmd.Execute(); err != nil {
		code := exitCodeFor(err)
		fmt.Fprintf(os.Stderr, "Error: %v (%s)\n", err, exitCodeDescription(code))
		os.Exit(code)
	}
}

func newRootCommand() *cobra.Command {
	v := viper.New()
	config.SetDefaults(v)

	rootCmd := &cobra.Command{
		Use:           "iib-desktop",
		Short:         "Desktop shell for Infinite Image Browsing",
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runShell(cmd, v)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.String(config.KeyLaunchConfig, config.LaunchConfigFileName, "Launch config file shared with the front-end")
	flags.String(config.KeySidecar, config.DefaultSidecarName, "Sidecar executable name or path")
	flags.String(config.KeySidecarLog, config.DefaultSidecarLog, "Sidecar log file (empty disables it)")
	flags.Int(config.KeySidecarLogMaxSize, 0, "Rotate the sidecar log at this size in MB (0 = never)")
	flags.String(config.KeyBridgeListen, config.DefaultBridgeListen, "Listen address of the UI bridge")
	flags.Duration(config.KeyShutdownTimeout, config.DefaultShutdownTimeout, "Timeout of the shutdown request sent to the sidecar")
	flags.Duration(config.KeyStopGrace, config.DefaultStopGrace, "Time the sidecar gets to exit before it is killed")
	flags.Bool(config.KeyHeadless, false, "Run without a tray icon")
	flags.String(config.KeyLogLevel, "info", "Log level (debug, info, warn, error)")
	flags.Bool(config.KeyLogToFile, true, "Enable logging to file in standard OS location")
	flags.String(config.KeyLogDir, "", "Custom log directory path (overrides standard OS location)")

	if err := v.BindPFlags(flags); err != nil {
		panic(fmt.Sprintf("bind flags: %v", err))
	}

	rootCmd.AddCommand(newConfigCommand(v))
	return rootCmd
}

func runShell(cmd *cobra.Command, v *viper.Viper) error {
	settings, err := config.LoadSettings(v)
	if err != nil {
		return &configError{err: err}
	}

	logger, err := logs.SetupLogger(settings.LogConfig())
	if err != nil {
		return &configError{err: fmt.Errorf("failed to setup logger: %w", err)}
	}
	defer func() {
		_ = logger.Sync()
	}()
	sugar := logger.Sugar()

	if settings.LogToFile {
		if logPath, err := logs.GetLogFilePathWithDir(settings.LogDir, settings.LogConfig().Filename); err == nil {
			logger.Info("Shell log file configured", zap.String("path", logPath))
		}
	}

	logger.Info("Starting iib-desktop",
		zap.String("version", version),
		zap.String("sidecar", settings.Sidecar),
		zap.String("sidecar_log", settings.SidecarLog),
		zap.String("launch_config", settings.LaunchConfigPath),
		zap.Bool("headless", settings.Headless))

	metrics := observability.NewMetrics(sugar)
	startTime := time.Now()

	sh := shell.New(shell.Options{
		Settings: settings,
		Logger:   sugar,
		Metrics:  metrics,
	})

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	if err := sh.Start(ctx); err != nil {
		logger.Error("Failed to start", zap.Error(err))
		if !settings.Headless {
			tray.Alert(appTitle, fmt.Sprintf("Failed to start: %v", err), sugar)
		}
		return err
	}

	logger.Info("Shell started",
		zap.Int("port", sh.State().Port),
		zap.Strings("sidecar_args", sh.Args()),
		zap.String("bridge_url", sh.BridgeURL()))

	seq := newCloseSequence(sh, settings.ShutdownTimeout, cancel)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go watchShutdown(ctx, sigChan, sh.SidecarDone(), seq, logger)

	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				metrics.SetUptime(startTime)
			case <-ctx.Done():
				return
			}
		}
	}()

	if settings.Headless {
		<-ctx.Done()
	} else {
		// Tray must run on the main thread (macOS)
		trayApp := createTray(sh, settings, sugar, seq.Request)
		if err := trayApp.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Warn("Tray exited with error", zap.Error(err))
		}
		cancel()
	}

	if err := sh.Close(); err != nil {
		logger.Error("Shutdown finished with errors", zap.Error(err))
		return err
	}

	logger.Info("iib-desktop shutdown complete")
	return nil
}

func createTray(sh *shell.Shell, settings *config.Settings, logger *zap.SugaredLogger, onQuit func()) TrayInterface {
	return tray.New(tray.Options{
		Title:            appTitle,
		BrowserURL:       sh.SidecarURL(),
		LaunchConfigPath: settings.LaunchConfigPath,
		Port:             sh.State().Port,
		Running:          sh.SidecarRunning,
		OnQuit:           onQuit,
		Logger:           logger,
	})
}
