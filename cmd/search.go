// cmd/search.go
package cmd

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/ktr0731/go-fuzzyfinder"
	"github.com/spf13/cobra"

	"github.com/rahulwagh/aistack/cache"
	"github.com/rahulwagh/aistack/fetcher"
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Search the recorded resources with a fuzzy finder.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		resources, err := cache.LoadResources()
		if err != nil {
			return err
		}

		idx, err := fuzzyfinder.Find(
			resources,
			func(i int) string {
				return fmt.Sprintf("%s :: %s :: %s", resources[i].Service, resources[i].Name, resources[i].ID)
			},
			fuzzyfinder.WithPreviewWindow(func(i, w, h int) string {
				if i == -1 {
					return ""
				}
				r := resources[i]
				preview := fmt.Sprintf("Stack: %s\nKind: %s\nName: %s\nID: %s\nRegion: %s",
					r.Stack(), r.Service, r.Name, r.ID, r.Region)
				for _, k := range slices.Sorted(maps.Keys(r.Attributes)) {
					if k != fetcher.AttrStack {
						preview += fmt.Sprintf("\n%s: %s", k, r.Attributes[k])
					}
				}
				return preview
			}),
		)
		if err != nil {
			if errors.Is(err, fuzzyfinder.ErrAbort) {
				logger.Info().Msg("search aborted")
				return nil
			}
			return fmt.Errorf("fuzzy finder failed: %w", err)
		}

		fmt.Fprintln(cmd.OutOrStdout(), resources[idx].ID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(searchCmd)
}
