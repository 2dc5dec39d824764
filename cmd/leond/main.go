// Package main provides the CLI entry point for leond, Leon's agent
// runtime backend: an HTTP API server plus a thin administrative CLI for
// thread CRUD, run control, and operator visibility into the resolver's
// resource chain (§6, §10).
//
// Start the server:
//
//	leond serve --config leon.yaml
//
// Administer a running server:
//
//	leond thread create --sandbox python3.11
//	leond run start --thread <id> --message "hello"
//	leond operator orphans
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// usageError marks a CLI-level input mistake (bad flags/args) distinct
// from an operational failure, so main can map it to exit code 2 per §6's
// "0 ok, 1 fail, 2 usage error" contract.
type usageError struct{ err error }

func (u *usageError) Error() string { return u.err.Error() }
func (u *usageError) Unwrap() error { return u.err }

func usageErrorf(format string, args ...any) error {
	return &usageError{err: fmt.Errorf(format, args...)}
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command failed", "error", err)
		var ue *usageError
		if errAs(err, &ue) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func errAs(err error, target **usageError) bool {
	for err != nil {
		if ue, ok := err.(*usageError); ok {
			*target = ue
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "leond",
		Short:   "Leon agent runtime backend",
		Long:    "leond runs Leon's agent runtime: thread/run lifecycle, resource resolution, and the HTTP/SSE API that fronts it.",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildServeCmd(),
		buildThreadCmd(),
		buildRunCmd(),
		buildOperatorCmd(),
	)

	return rootCmd
}
