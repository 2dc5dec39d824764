package main

import (
	"github.com/spf13/cobra"
)

// buildServeCmd creates the "serve" command, grounded on
// cmd/nexus/commands_serve.go's buildServeCmd shape.
func buildServeCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the leond HTTP/SSE server",
		Long: `Start the leond server.

The server will:
1. Load configuration from the specified file
2. Open the embedded sqlite database
3. Wire the resolver, run supervisor, queue router, and tool executor
4. Start the HTTP API (thread/run CRUD, SSE event stream) and metrics listener

Graceful shutdown is handled on SIGINT/SIGTERM.`,
		Example: `  leond serve --config leon.yaml
  leond serve --config leon.yaml --debug`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath, debug)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath(), "Path to YAML configuration file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	return cmd
}

func defaultConfigPath() string {
	return "leon.yaml"
}
