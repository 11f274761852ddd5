// cmd/serve.go
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/rahulwagh/aistack/cache"
	"github.com/rahulwagh/aistack/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start a local web server to search the recorded resources from a browser.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return server.StartServer(cmd.Context(), serveAddr, cache.LoadResources, logger)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "localhost:8080", "listen address")
	rootCmd.AddCommand(serveCmd)
}
