// cmd/sync.go
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/rahulwagh/aistack/cache"
	"github.com/rahulwagh/aistack/fetcher"
	"github.com/rahulwagh/aistack/stack"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Rebuild the stack's recorded resources from what is live in AWS.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger.Info().Str("stack", cfg.Name).Str("region", cfg.Region).Msg("starting resource sync")

		clients, err := stack.NewClients(cmd.Context(), cfg.Region, cfg.EndpointURL)
		if err != nil {
			return err
		}
		src := fetcher.Source{
			EC2:     clients.EC2,
			S3:      clients.S3,
			Secrets: clients.Secrets,
			Alarms:  clients.Alarms,
			Region:  cfg.Region,
			Log:     logger,
		}

		resources, err := src.FetchStack(cmd.Context(), fetcher.Selector{
			Stack:  cfg.Name,
			Bucket: cfg.Bucket.Name,
			Alarm:  cfg.Alarm.Name,
		})
		if err != nil {
			return err
		}

		if err := cache.MergeResourcesForStack(resources, cfg.Name); err != nil {
			return err
		}
		logger.Info().Int("resources", len(resources)).Msg("sync completed")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
