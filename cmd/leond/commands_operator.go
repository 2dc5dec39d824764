package main

import (
	"github.com/spf13/cobra"
)

// buildOperatorCmd creates the "operator" command group: read-only
// visibility into the resolver's resource chain, grounded on
// cmd/nexus/commands_doctor.go's diagnostic-command shape (direct
// database access rather than going through the HTTP API, since these are
// maintenance views with no corresponding route in §6/§9).
func buildOperatorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "operator",
		Short: "Operator visibility into resolver state",
	}
	cmd.AddCommand(buildOperatorOrphansCmd(), buildOperatorLeasesCmd(), buildOperatorEventsCmd())
	return cmd
}

func buildOperatorOrphansCmd() *cobra.Command {
	var config string
	cmd := &cobra.Command{
		Use:   "orphans",
		Short: "List provider instances with no corresponding lease",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOperatorOrphans(cmd, config)
		},
	}
	cmd.Flags().StringVarP(&config, "config", "c", defaultConfigPath(), "Path to YAML configuration file")
	return cmd
}

func buildOperatorLeasesCmd() *cobra.Command {
	var config string
	cmd := &cobra.Command{
		Use:   "leases",
		Short: "List leases that have not converged to their desired state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOperatorLeases(cmd, config)
		},
	}
	cmd.Flags().StringVarP(&config, "config", "c", defaultConfigPath(), "Path to YAML configuration file")
	return cmd
}

func buildOperatorEventsCmd() *cobra.Command {
	var (
		config string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Show the most recent run events across all threads",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOperatorEvents(cmd, config, limit)
		},
	}
	cmd.Flags().StringVarP(&config, "config", "c", defaultConfigPath(), "Path to YAML configuration file")
	cmd.Flags().IntVar(&limit, "limit", 20, "Max number of events to show")
	return cmd
}
