// cmd/root.go
package cmd

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/rahulwagh/aistack/cache"
	"github.com/rahulwagh/aistack/config"
)

var (
	configPath  string
	region      string
	endpointURL string
	logLevel    string
	stateDir    string
	metricsFile string

	logger = zerolog.Nop()
)

var rootCmd = &cobra.Command{
	Use:   "aistack",
	Short: "Provision and tear down the AI data stack on AWS.",
	Long: `aistack creates a VPC with an internet gateway, an S3 bucket reachable through
a gateway endpoint, a Secrets Manager secret and a CloudWatch alarm, and records
everything it creates so it can be removed again.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := zerolog.ParseLevel(logLevel)
		if err != nil {
			return fmt.Errorf("invalid --log-level %q: %w", logLevel, err)
		}
		logger = zerolog.New(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr()}).
			Level(level).
			With().
			Timestamp().
			Logger()

		cache.SetDir(stateDir)
		return nil
	},
}

// Execute runs the command line until ctx is cancelled.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configPath, "config", "c", "", "stack file (YAML); built-in defaults when empty")
	flags.StringVar(&region, "region", "", "AWS region, overrides the stack file")
	flags.StringVar(&endpointURL, "endpoint-url", "", "send every AWS call to this URL (LocalStack and other simulators)")
	flags.StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	flags.StringVar(&stateDir, "state-dir", "", "directory of the state file (default ~/.aistack)")
	flags.StringVar(&metricsFile, "metrics-file", "", "write step metrics to this file in node-exporter textfile format")
}

// loadConfig reads the stack file and applies the flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if region != "" {
		cfg.Region = region
	}
	if endpointURL != "" {
		cfg.EndpointURL = endpointURL
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid stack configuration: %w", err)
	}
	return cfg, nil
}
