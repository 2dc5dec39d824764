package main

import (
	"github.com/spf13/cobra"
)

// buildRunCmd creates the "run" command group.
func buildRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start or cancel a thread's run",
	}
	cmd.AddCommand(buildRunStartCmd(), buildRunCancelCmd())
	return cmd
}

func buildRunStartCmd() *cobra.Command {
	var (
		server  string
		config  string
		thread  string
		message string
	)
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a run on a thread",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRunStart(cmd, config, server, thread, message)
		},
	}
	cmd.Flags().StringVar(&server, "server", "", "leond server address")
	cmd.Flags().StringVarP(&config, "config", "c", defaultConfigPath(), "Path to YAML configuration file")
	cmd.Flags().StringVar(&thread, "thread", "", "Thread ID to run (required)")
	cmd.Flags().StringVar(&message, "message", "", "Input message for the run (required)")
	return cmd
}

func buildRunCancelCmd() *cobra.Command {
	var (
		server string
		config string
		thread string
	)
	cmd := &cobra.Command{
		Use:   "cancel",
		Short: "Cancel a thread's active run",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRunCancel(cmd, config, server, thread)
		},
	}
	cmd.Flags().StringVar(&server, "server", "", "leond server address")
	cmd.Flags().StringVarP(&config, "config", "c", defaultConfigPath(), "Path to YAML configuration file")
	cmd.Flags().StringVar(&thread, "thread", "", "Thread ID to cancel (required)")
	return cmd
}
