// cmd/forget.go
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/rahulwagh/aistack/cache"
)

var forgetCmd = &cobra.Command{
	Use:   "forget KIND ID",
	Short: "Drop one recorded resource without touching AWS.",
	Long: `Drop one recorded resource without touching AWS, for objects that were
removed by hand. KIND is the kind shown by 'status', e.g. vpc or secret.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		kind, id := args[0], args[1]
		recorded, err := cache.ResourcesForStack(cfg.Name)
		if err != nil {
			return err
		}
		for _, r := range recorded {
			if r.Service == kind && r.ID == id {
				if err := cache.RemoveResource(r); err != nil {
					return err
				}
				logger.Info().Str("kind", kind).Str("id", id).Msg("forgotten")
				return nil
			}
		}
		logger.Warn().Str("stack", cfg.Name).Str("kind", kind).Str("id", id).Msg("not recorded")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(forgetCmd)
}
