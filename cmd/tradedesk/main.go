package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/msageha/tradedesk/internal/logger"
	"github.com/msageha/tradedesk/internal/model"
	"github.com/msageha/tradedesk/internal/presenter"
	"github.com/msageha/tradedesk/internal/telemetry"
)

// version is set at build time via -ldflags.
var version = "dev"

var (
	cfg             model.Config
	shutdownTracing = func(context.Context) error { return nil }
	configFileInUse string
)

var rootCmd = &cobra.Command{
	Use:   "tradedesk",
	Short: "Multi-agent crypto research desk",
	Long: `tradedesk routes a research request to a tier of analyst workers, runs the
workers phase by phase and writes one consolidated markdown report per session.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		configFileInUse, err = readConfig(viper.GetViper())
		if err != nil {
			return err
		}
		cfg, err = loadConfig(viper.GetViper())
		if err != nil {
			return err
		}

		logger.SetLogOutput(os.Stderr)
		if err := logger.SetLogLevel(cfg.Log.Level); err != nil {
			return err
		}
		logger.SetLogFormat(cfg.Log.Format)
		if configFileInUse != "" {
			logger.G(cmd.Context()).WithField("config", configFileInUse).Debug("loaded config file")
		}

		shutdown, err := telemetry.InitTracer(cmd.Context(), cfg.Tracing, version)
		if err != nil {
			return err
		}
		shutdownTracing = shutdown
		return nil
	},
}

func main() {
	addPersistentFlags(rootCmd, viper.GetViper())
	registerCommands(rootCmd)

	ctx := context.Background()
	err := rootCmd.ExecuteContext(ctx)
	if shutdownErr := shutdownTracing(ctx); shutdownErr != nil {
		logger.G(ctx).WithError(shutdownErr).Warn("failed to shut down tracing")
	}
	if err != nil {
		presenter.Error(err, rootCmd.Name())
		os.Exit(1)
	}
}

func addPersistentFlags(root *cobra.Command, v *viper.Viper) {
	flags := root.PersistentFlags()
	flags.String("config", "", "config file (default searches ./.tradedesk, $HOME/.tradedesk and .)")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("log-format", "", "log format (fmt or json)")
	flags.String("reports-root", "", "directory session reports are written under")
	flags.String("state-dir", "", "directory for ledgers, history and snapshots")

	_ = v.BindPFlag("config", flags.Lookup("config"))
	_ = v.BindPFlag("log.level", flags.Lookup("log-level"))
	_ = v.BindPFlag("log.format", flags.Lookup("log-format"))
	_ = v.BindPFlag("reports_root", flags.Lookup("reports-root"))
	_ = v.BindPFlag("state_dir", flags.Lookup("state-dir"))
}

func registerCommands(root *cobra.Command) {
	root.AddCommand(initCmd())
	root.AddCommand(analyzeCmd())
	root.AddCommand(routeCmd())
	root.AddCommand(profilesCmd())
	root.AddCommand(historyCmd())
	root.AddCommand(ledgerCmd())
	root.AddCommand(reportsCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(versionCmd())
}

// setDefaults registers every config key so that environment variables and
// Unmarshal see it even without a config file.
func setDefaults(v *viper.Viper) {
	d := model.DefaultConfig()
	v.SetDefault("reports_root", d.ReportsRoot)
	v.SetDefault("state_dir", d.StateDir)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("coordinator.poll_interval", d.Coordinator.PollInterval)
	v.SetDefault("coordinator.best_effort_timeout", d.Coordinator.BestEffortTimeout)
	v.SetDefault("coordinator.session_timeout", d.Coordinator.SessionTimeout)
	v.SetDefault("coordinator.watch_artifacts", d.Coordinator.WatchArtifacts)
	v.SetDefault("profiles.dir", d.Profiles.Dir)
	v.SetDefault("marketdata.source", d.MarketData.Source)
	v.SetDefault("marketdata.dir", d.MarketData.Dir)
	v.SetDefault("marketdata.base_url", d.MarketData.BaseURL)
	v.SetDefault("marketdata.exchange", d.MarketData.Exchange)
	v.SetDefault("marketdata.retry_attempts", d.MarketData.RetryAttempts)
	v.SetDefault("marketdata.retry_delay", d.MarketData.RetryDelay)
	v.SetDefault("marketdata.timeout", d.MarketData.Timeout)
	v.SetDefault("routing.rules", []model.RoutingRule{})
	v.SetDefault("scorecard.reward", d.Scorecard.Reward)
	v.SetDefault("scorecard.penalty", d.Scorecard.Penalty)
	v.SetDefault("scorecard.min", d.Scorecard.Min)
	v.SetDefault("scorecard.max", d.Scorecard.Max)
	v.SetDefault("history.enabled", d.History.Enabled)
	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.sampler", d.Tracing.Sampler)
	v.SetDefault("tracing.ratio", d.Tracing.Ratio)
	v.SetDefault("server.addr", d.Server.Addr)
}

// readConfig configures v and reads the config file. An explicit --config
// path must exist; the search path is allowed to come up empty. It returns
// the file that was read, if any.
func readConfig(v *viper.Viper) (string, error) {
	v.SetEnvPrefix("TRADEDESK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if explicit := v.GetString("config"); explicit != "" {
		v.SetConfigFile(explicit)
		if err := v.ReadInConfig(); err != nil {
			return "", errors.Wrapf(err, "read config %s", explicit)
		}
		return v.ConfigFileUsed(), nil
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(filepath.Join(".", ".tradedesk"))
	v.AddConfigPath("$HOME/.tradedesk")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return "", nil
		}
		return "", errors.Wrap(err, "read config")
	}
	return v.ConfigFileUsed(), nil
}

func loadConfig(v *viper.Viper) (model.Config, error) {
	var c model.Config
	if err := v.Unmarshal(&c); err != nil {
		return c, errors.Wrap(err, "decode config")
	}
	switch c.Log.Format {
	case "fmt", "text", "json":
	default:
		return c, errors.Errorf("log.format must be fmt, text or json, got %q", c.Log.Format)
	}
	return c, nil
}
