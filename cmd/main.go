package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"dash-lock-agent/internal/agent"
	"dash-lock-agent/internal/config"
	"dash-lock-agent/internal/logging"
)

var (
	configFile string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "dash-lock-agent",
	Short: "Device-trust agent for the restricted dashboard",
	Long: `dash-lock-agent binds a restricted dashboard to a single trusted
device using platform credentials. The first device to register becomes
the owner; every other device is refused until trust is transferred by
link code or magic link.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "path to configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// setup loads configuration and initializes logging for a command run.
func setup() (*config.Config, *logrus.Logger, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, nil, fmt.Errorf("loading configuration: %w", err)
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	logger := logging.Initialize(cfg.LogLevel)
	if cfg.LogFile != "" {
		if err := logging.SetupFileLogging(logger, cfg.LogFile); err != nil {
			logger.WithError(err).Warn("File logging unavailable, continuing on stderr")
		}
	}
	return cfg, logger, nil
}

// withAgent runs fn with a fully wired agent and a signal-cancelled
// context, closing storage on the way out.
func withAgent(fn func(ctx context.Context, a *agent.Agent) error) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}

	a, err := agent.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("starting agent: %w", err)
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return fn(ctx, a)
}
