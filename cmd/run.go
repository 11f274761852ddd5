// cmd/run.go
package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/rahulwagh/aistack/cache"
	"github.com/rahulwagh/aistack/config"
	"github.com/rahulwagh/aistack/fetcher"
	"github.com/rahulwagh/aistack/metrics"
	"github.com/rahulwagh/aistack/stack"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Provision the stack, then remove the alarm, the secret and the gateway.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return provision(cmd, true)
	},
}

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Provision the stack and keep everything.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return provision(cmd, false)
	},
}

var downCmd = &cobra.Command{
	Use:   "down",
	Short: "Delete every recorded resource of the stack, newest first.",
	Args:  cobra.NoArgs,
	RunE:  runDown,
}

func init() {
	rootCmd.AddCommand(runCmd, upCmd, downCmd)
}

// persistFor saves a stack's journal into the shared state file.
func persistFor(name string) stack.PersistFunc {
	return func(resources []fetcher.StandardizedResource) error {
		return cache.MergeResourcesForStack(resources, name)
	}
}

func newStack(cmd *cobra.Command, cfg *config.Config, existing []fetcher.StandardizedResource, rec *metrics.Recorder) (*stack.Stack, error) {
	clients, err := stack.NewClients(cmd.Context(), cfg.Region, cfg.EndpointURL)
	if err != nil {
		return nil, err
	}
	return stack.New(cfg, clients,
		stack.WithLogger(logger),
		stack.WithMetrics(rec),
		stack.WithJournal(stack.NewJournal(existing, persistFor(cfg.Name))),
	), nil
}

func writeMetrics(rec *metrics.Recorder) {
	if err := rec.WriteTextfile(metricsFile); err != nil {
		logger.Warn().Err(err).Msg("could not write metrics")
	}
}

func provision(cmd *cobra.Command, teardown bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	existing, err := cache.ResourcesForStack(cfg.Name)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return fmt.Errorf("stack %q already has %d recorded resources; run 'down' first", cfg.Name, len(existing))
	}

	rec := metrics.NewRecorder()
	defer writeMetrics(rec)

	s, err := newStack(cmd, cfg, nil, rec)
	if err != nil {
		return err
	}

	var out *stack.Outputs
	if teardown {
		out, err = s.Run(cmd.Context())
	} else {
		out, err = s.Provision(cmd.Context())
	}
	if err := report(cmd.OutOrStdout(), cfg, out, err); err != nil {
		return err
	}
	if remaining := s.Journal().Len(); remaining > 0 {
		logger.Info().Int("resources", remaining).Msg("recorded resources remain; run 'down' to remove them")
	}
	return nil
}

func runDown(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	existing, err := cache.ResourcesForStack(cfg.Name)
	if err != nil {
		return err
	}
	if len(existing) == 0 {
		logger.Info().Str("stack", cfg.Name).Msg("nothing recorded for stack")
		return nil
	}
	// Resources live where they were created, whatever the current flags say.
	if recorded := existing[0].Region; recorded != "" && recorded != cfg.Region {
		logger.Warn().Str("recorded", recorded).Str("configured", cfg.Region).Msg("using the recorded region")
		cfg.Region = recorded
	}

	rec := metrics.NewRecorder()
	defer writeMetrics(rec)

	s, err := newStack(cmd, cfg, existing, rec)
	if err != nil {
		return err
	}
	if err := s.Destroy(cmd.Context()); err != nil {
		return fmt.Errorf("stack %q was not fully removed: %w", cfg.Name, err)
	}
	logger.Info().Str("stack", cfg.Name).Msg("stack removed")
	return nil
}

// report prints the outputs of a run whose resources were all created, even
// when the teardown pass afterwards failed, and passes err through.
func report(w io.Writer, cfg *config.Config, out *stack.Outputs, err error) error {
	if out != nil && (err == nil || errors.Is(err, stack.ErrTeardown)) {
		printOutputs(w, cfg, out)
	}
	return err
}

func printOutputs(w io.Writer, cfg *config.Config, out *stack.Outputs) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Output", "Value"})
	table.SetAutoWrapText(false)
	table.AppendBulk([][]string{
		{"run", out.RunID},
		{"account", out.Account},
		{"region", cfg.Region},
		{"vpc", out.VPCID},
		{"bucket", out.BucketName},
		{"internet gateway", out.GatewayID},
		{"vpc endpoint", out.EndpointID},
		{"connection notification", out.NotificationID},
		{"route table", out.RouteTableID},
		{"connection state", out.ConnectionState},
		{"secret", out.SecretARN},
		{"alarm", out.AlarmName},
	})
	table.Render()
}
