package main

import (
	"github.com/spf13/cobra"
)

// buildThreadCmd creates the "thread" command group, grounded on
// cmd/nexus/commands_sessions.go's buildSessionsCmd/buildXCmd shape (flags
// declared alongside a RunE that delegates to a handlers_*.go function).
func buildThreadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "thread",
		Short: "Manage threads",
	}
	cmd.AddCommand(buildThreadCreateCmd(), buildThreadDeleteCmd(), buildThreadShowCmd())
	return cmd
}

func buildThreadCreateCmd() *cobra.Command {
	var (
		server  string
		config  string
		sandbox string
		cwd     string
		agent   string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new thread",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runThreadCreate(cmd, config, server, sandbox, cwd, agent)
		},
	}
	cmd.Flags().StringVar(&server, "server", "", "leond server address (default: derived from --config)")
	cmd.Flags().StringVarP(&config, "config", "c", defaultConfigPath(), "Path to YAML configuration file")
	cmd.Flags().StringVar(&sandbox, "sandbox", "", "Sandbox identifier for the new thread (required)")
	cmd.Flags().StringVar(&cwd, "cwd", "", "Working directory for the thread's terminal")
	cmd.Flags().StringVar(&agent, "agent", "", "Agent identifier to run in this thread")
	return cmd
}

func buildThreadDeleteCmd() *cobra.Command {
	var (
		server string
		config string
	)
	cmd := &cobra.Command{
		Use:   "delete <thread-id>",
		Short: "Delete a thread and release its resource binding",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runThreadDelete(cmd, config, server, args[0])
		},
	}
	cmd.Flags().StringVar(&server, "server", "", "leond server address")
	cmd.Flags().StringVarP(&config, "config", "c", defaultConfigPath(), "Path to YAML configuration file")
	return cmd
}

func buildThreadShowCmd() *cobra.Command {
	var (
		server string
		config string
	)
	cmd := &cobra.Command{
		Use:   "show <thread-id>",
		Short: "Show a thread's messages and sandbox binding",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runThreadShow(cmd, config, server, args[0])
		},
	}
	cmd.Flags().StringVar(&server, "server", "", "leond server address")
	cmd.Flags().StringVarP(&config, "config", "c", defaultConfigPath(), "Path to YAML configuration file")
	return cmd
}
