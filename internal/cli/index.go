package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/tuanvle/txscope/internal/core/config"
	"github.com/tuanvle/txscope/internal/core/domain"
	"github.com/tuanvle/txscope/internal/indexing/emitter"
	"github.com/tuanvle/txscope/internal/indexing/pipeline"
	"github.com/tuanvle/txscope/internal/indexing/recovery"
	"github.com/tuanvle/txscope/internal/infra/api"
	"github.com/tuanvle/txscope/internal/infra/storage/memory"
)

var (
	indexNetwork string
	indexPeriod  string
)

var indexCmd = &cobra.Command{
	Use:   "index [account]",
	Short: "Run one indexing session for an account and print the stats",
	Args:  cobra.ExactArgs(1),
	Run:   runIndex,
}

func init() {
	indexCmd.Flags().StringVar(&indexNetwork, "network", "mainnet", "network to index (mainnet, testnet)")
	indexCmd.Flags().StringVar(&indexPeriod, "period", "monthly", "stats period (weekly, monthly, yearly)")
	rootCmd.AddCommand(indexCmd)
}

// runIndex drives one session in the foreground with no service or database,
// printing step progress as it happens.
func runIndex(cmd *cobra.Command, args []string) {
	_ = godotenv.Load()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		initLogger(nil)
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	initLogger(cfg)

	q := domain.Query{
		Account: args[0],
		Network: domain.Network(indexNetwork),
		Period:  domain.Period(indexPeriod),
	}
	if err := q.Validate(); err != nil {
		slog.Error("Invalid query", "error", err)
		os.Exit(1)
	}

	store := memory.NewMemoryStorage()
	bus := emitter.NewBus()
	worker := pipeline.NewWorker(
		api.NewClient(cfg.API),
		bus,
		memory.NewTransferRepo(store),
		memory.NewStatsRepo(store),
		slog.Default(),
		pipeline.Config{
			PageLimit:        cfg.Pipeline.PageLimit,
			FetchConcurrency: cfg.Pipeline.FetchConcurrency,
			MaxPages:         cfg.Pipeline.MaxPages,
		},
	)

	controller := recovery.NewController(bus, worker, slog.Default(),
		recovery.WithStrategy(&recovery.ExponentialBackoff{
			Base:       cfg.Pipeline.BackoffBase,
			MaxRetries: cfg.Pipeline.MaxRetries,
		}),
		recovery.WithStepTimeout(cfg.Pipeline.StepTimeout),
	)

	unsub := controller.Subscribe(func(ev emitter.Event) {
		switch ev.Type {
		case emitter.EventStepChange:
			fmt.Printf("→ %s\n", ev.Step)
		case emitter.EventStepError:
			fmt.Printf("✗ %s: %s (%s)\n", ev.Step, ev.Message, ev.Kind)
		}
	})
	defer unsub()

	result := controller.Start(context.Background(), q)
	if result == nil {
		snap := controller.Snapshot()
		if snap.Halted() {
			slog.Error("Indexing halted", "failed_step", snap.FailedStep, "retries", snap.TotalRetries)
			if partial := controller.AcceptPartialResults(); partial != nil {
				fmt.Println("\nPartial results:")
				printStats(partial)
			}
		} else {
			slog.Error("Indexing did not complete", "run", snap.Run)
		}
		os.Exit(1)
	}

	printStats(result)
}

func printStats(s *domain.AccountStats) {
	fmt.Printf("Account:        %s (%s, %s)\n", s.Account, s.Network, s.Period)
	fmt.Printf("Window:         %s to %s\n", s.WindowStart.Format("2006-01-02"), s.WindowEnd.Format("2006-01-02"))
	fmt.Printf("Transfers:      %d (%d in / %d out)\n", s.TransferCount, s.IncomingCount, s.OutgoingCount)
	fmt.Printf("Total volume:   %.4f\n", s.TotalVolume)
	fmt.Printf("Contract calls: %d\n", s.ContractCalls)
	if len(s.Categories) > 0 {
		fmt.Println("Categories:")
		for kind, n := range s.Categories {
			fmt.Printf("  %-14s %d\n", kind, n)
		}
	}
	if !s.Complete {
		fmt.Println("NOTE: stats are partial, later pipeline steps did not run")
	}
}
