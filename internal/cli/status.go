package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tuanvle/txscope/internal/core/config"
	redisclient "github.com/tuanvle/txscope/internal/infra/redis"
	"github.com/tuanvle/txscope/internal/infra/storage/postgres"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the latest session snapshot and the stored stats",
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	printSessionSnapshot(ctx, cfg)
	printStoredStats(ctx, cfg)
}

// printSessionSnapshot reports the most recently halted session, if a fresh
// enough snapshot survives in redis.
func printSessionSnapshot(ctx context.Context, cfg *config.AppConfig) {
	if cfg.Redis.URL == "" {
		return
	}

	client, err := redisclient.NewClient(cfg.Redis)
	if err != nil {
		slog.Warn("Failed to connect to Redis, skipping session status", "error", err)
		return
	}
	defer func() {
		_ = client.Close()
	}()

	cache := redisclient.NewCache(client)
	id, err := cache.LatestSessionID(ctx)
	if err != nil {
		slog.Warn("Failed to look up recent sessions", "error", err)
		return
	}
	if id == "" {
		fmt.Println("No recoverable session.")
		return
	}

	snap, err := cache.LoadSnapshot(ctx, id)
	if err != nil {
		slog.Warn("Failed to load session snapshot", "error", err)
		return
	}
	if snap == nil {
		// Stale or already completed; LoadSnapshot cleaned it up.
		fmt.Println("No recoverable session.")
		return
	}

	fmt.Printf("Halted session %s\n", snap.SessionID)
	fmt.Printf("  Account:     %s (%s, %s)\n", snap.Query.Account, snap.Query.Network, snap.Query.Period)
	fmt.Printf("  Failed step: %s\n", snap.FailedStep)
	fmt.Printf("  Completed:   %d steps, %d retries\n", len(snap.CompletedSteps), snap.TotalRetries)
	fmt.Println()
}

// printStoredStats lists the persisted account stats when a database is
// configured.
func printStoredStats(ctx context.Context, cfg *config.AppConfig) {
	if cfg.Database.URL == "" {
		return
	}

	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = db.Close()
	}()

	rows, err := db.QueryContext(ctx,
		`SELECT account, network, period, transfer_count, total_volume, complete, generated_at
		 FROM account_stats ORDER BY generated_at DESC`)
	if err != nil {
		slog.Error("Failed to query stats", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = rows.Close()
	}()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "ACCOUNT\tNETWORK\tPERIOD\tTRANSFERS\tVOLUME\tCOMPLETE\tGENERATED")

	for rows.Next() {
		var account, network, period string
		var transfers int
		var volume float64
		var complete bool
		var generatedAt string
		if err := rows.Scan(&account, &network, &period, &transfers, &volume, &complete, &generatedAt); err != nil {
			continue
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%.4f\t%t\t%s\n",
			account, network, period, transfers, volume, complete, generatedAt)
	}
	_ = w.Flush()
}
