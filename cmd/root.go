// Package cmd contains all the CLI commands for the application,
// built using the Cobra library.
package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/naka-gawa/mrnag/internal/config"
	"github.com/naka-gawa/mrnag/internal/formatter"
	"github.com/naka-gawa/mrnag/internal/gateway"
	"github.com/naka-gawa/mrnag/internal/usecase"
)

const defaultConfigFile = "config.yml"

// logger is configured in PersistentPreRunE and shared by every command.
var logger = logrus.New()

var rootCmd = &cobra.Command{
	Use:   "mrnag",
	Short: "Mr. Nag reports open merge requests across GitLab and GitHub.",
	Long: `mrnag fetches the open merge requests (GitLab) and pull requests (GitHub)
of every configured project, concurrently, and renders one report that keeps
every project visible, including the ones that could not be fetched.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setupLogger(logger)
	},
}

// exitError carries a process exit code out of a command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err == nil {
		return
	}
	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil {
			fmt.Fprintln(os.Stderr, "Error:", ee.err)
		}
		os.Exit(ee.code)
	}
	fmt.Fprintln(os.Stderr, "Error:", err)
	os.Exit(usecase.ExitConfigError)
}

func setupLogger(l *logrus.Logger) error {
	level, err := logrus.ParseLevel(viper.GetString("log-level"))
	if err != nil {
		return err
	}
	if viper.GetBool("verbose") {
		level = logrus.DebugLevel
	}
	l.SetLevel(level)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	l.SetOutput(os.Stderr)
	return nil
}

// loadConfig reads the configuration document named by --config.
func loadConfig() (*config.Config, error) {
	return config.Load(viper.GetString("config"))
}

// newRunner wires the forge clients, aggregator and formatters from settings.
func newRunner() *usecase.Runner {
	clients := gateway.DefaultRegistry(gateway.Options{
		RequestTimeout: viper.GetDuration("request-timeout"),
		MaxPages:       viper.GetInt("max-pages"),
		PerPage:        viper.GetInt("per-page"),
		Logger:         logger,
	})
	agg := usecase.NewAggregator(clients, config.OSLookupEnv, logger, usecase.AggregatorOptions{
		Workers:        viper.GetInt("workers"),
		ProjectTimeout: viper.GetDuration("project-timeout"),
	})
	return usecase.NewRunner(agg, formatter.DefaultRegistry())
}

func bindFlags(cmd *cobra.Command, flags ...string) {
	for _, flag := range flags {
		f := cmd.Flags().Lookup(flag)
		if f == nil {
			f = cmd.PersistentFlags().Lookup(flag)
		}
		if err := viper.BindPFlag(flag, f); err != nil {
			logger.Warnf("Unable to bind flag %s", flag)
		}
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringP("config", "c", defaultConfigFile, "Configuration file (YAML)")
	flags.String("log-level", "warn", "Logging level (debug, info, warn, error)")
	flags.BoolP("verbose", "v", false, "Enable verbose/debug logging")
	flags.Int("workers", usecase.DefaultWorkers, "Number of projects fetched concurrently")
	flags.Duration("request-timeout", gateway.DefaultRequestTimeout, "Timeout of each forge API request")
	flags.Duration("project-timeout", usecase.DefaultProjectTimeout, "Timeout of all requests for one project")
	flags.Int("max-pages", gateway.DefaultMaxPages, "Maximum number of pages fetched per project")
	flags.Int("per-page", gateway.DefaultPerPage, "Page size requested from the forges")
	bindFlags(rootCmd, "config", "log-level", "verbose", "workers", "request-timeout", "project-timeout", "max-pages", "per-page")
}

// initConfig loads .env and binds environment variables.
func initConfig() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Warnf("failed to load .env: %v", err)
	}

	viper.SetEnvPrefix("mrnag")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	_ = viper.BindEnv("config", "MRNAG_CONFIG_FILE", "MRNAG_CONFIG")
	_ = viper.BindEnv("slack-oauth-token", "SLACK_OAUTH_TOKEN", "MRNAG_SLACK_OAUTH_TOKEN")
}
