package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leon-agent/leon/internal/config"
	"github.com/leon-agent/leon/internal/resolver"
	"github.com/leon-agent/leon/internal/storage"
)

func runOperatorOrphans(cmd *cobra.Command, configPath string) error {
	cfg, db, err := loadOperatorDB(configPath)
	if err != nil {
		return err
	}
	defer db.Close()

	store, err := resolver.NewSQLiteStore(db)
	if err != nil {
		return err
	}
	providers := buildProviderRegistry(cfg)
	var names []string
	if cfg.Providers.Firecracker.Enabled {
		names = append(names, "firecracker")
	}
	for _, ep := range cfg.Providers.GRPC {
		names = append(names, ep.Name)
	}

	scanner := resolver.NewOrphanScanner(store, providers, names, 0, nil)
	orphans, err := scanner.Scan(cmd.Context())
	if err != nil {
		return fmt.Errorf("scan orphans: %w", err)
	}
	return printJSON(cmd, orphans)
}

func runOperatorLeases(cmd *cobra.Command, configPath string) error {
	_, db, err := loadOperatorDB(configPath)
	if err != nil {
		return err
	}
	defer db.Close()

	store, err := resolver.NewSQLiteStore(db)
	if err != nil {
		return err
	}
	leases, err := store.ListNonConverged(cmd.Context())
	if err != nil {
		return fmt.Errorf("list non-converged leases: %w", err)
	}
	return printJSON(cmd, leases)
}

type recentEvent struct {
	Seq       uint64 `json:"seq"`
	ThreadID  string `json:"thread_id"`
	RunID     string `json:"run_id"`
	EventType string `json:"event_type"`
	CreatedAt string `json:"created_at"`
}

func runOperatorEvents(cmd *cobra.Command, configPath string, limit int) error {
	if limit <= 0 {
		limit = 20
	}
	_, db, err := loadOperatorDB(configPath)
	if err != nil {
		return err
	}
	defer db.Close()

	rows, err := db.QueryContext(cmd.Context(), `
SELECT seq, thread_id, run_id, event_type, created_at
FROM run_events
ORDER BY seq DESC
LIMIT ?`, limit)
	if err != nil {
		return fmt.Errorf("query recent events: %w", err)
	}
	defer rows.Close()

	var events []recentEvent
	for rows.Next() {
		var e recentEvent
		if err := rows.Scan(&e.Seq, &e.ThreadID, &e.RunID, &e.EventType, &e.CreatedAt); err != nil {
			return err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	return printJSON(cmd, events)
}

func loadOperatorDB(configPath string) (*config.Config, *sql.DB, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	db, err := storage.Open(context.Background(), storage.Config{Path: cfg.Storage.SQLitePath})
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	return cfg, db, nil
}
