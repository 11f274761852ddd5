// cmd/status.go
package cmd

import (
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/rahulwagh/aistack/cache"
	"github.com/rahulwagh/aistack/fetcher"
)

var statusAll bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the recorded resources of the stack.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		resources, err := recordedResources()
		if err != nil {
			return err
		}

		if len(resources) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No resources recorded.")
			return nil
		}
		printResources(cmd.OutOrStdout(), resources)
		return nil
	},
}

func init() {
	statusCmd.Flags().BoolVar(&statusAll, "all", false, "show every stack in the state file")
	rootCmd.AddCommand(statusCmd)
}

// recordedResources returns the configured stack's entries, or all of them with --all.
func recordedResources() ([]fetcher.StandardizedResource, error) {
	if statusAll {
		return cache.LoadResources()
	}
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return cache.ResourcesForStack(cfg.Name)
}

func printResources(w io.Writer, resources []fetcher.StandardizedResource) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Stack", "Kind", "Name", "ID", "Region"})
	table.SetAutoWrapText(false)
	for _, r := range resources {
		table.Append([]string{r.Stack(), r.Service, r.Name, r.ID, r.Region})
	}
	table.Render()
}
