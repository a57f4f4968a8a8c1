package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"github.com/kjannette/hrp-allocator/internal/app"
	"github.com/kjannette/hrp-allocator/internal/config"
	"github.com/kjannette/hrp-allocator/internal/db"
)

func loadConfig() (*config.Config, bool) {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return nil, false
	}
	return cfg, true
}

// --- migrate ---

type migrateCmd struct{}

func (*migrateCmd) Name() string     { return "migrate" }
func (*migrateCmd) Synopsis() string { return "create the prices and allocations tables" }
func (*migrateCmd) Usage() string {
	return `hrpctl migrate

  Applies the database schema. Safe to run repeatedly.
`
}
func (*migrateCmd) SetFlags(*flag.FlagSet) {}

func (*migrateCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, ok := loadConfig()
	if !ok {
		return subcommands.ExitUsageError
	}
	pool, err := db.Connect(ctx, cfg.DSN())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	fmt.Println("Schema is up to date")
	return subcommands.ExitSuccess
}

// --- update ---

type updateCmd struct {
	force bool
	json  bool
}

func (*updateCmd) Name() string     { return "update" }
func (*updateCmd) Synopsis() string { return "ingest prices and rebalance if the allocation is stale" }
func (*updateCmd) Usage() string {
	return `hrpctl update [-force] [-json]

  Runs one ingest and rebalance cycle, the same as the daily schedule.
`
}

func (c *updateCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.force, "force", false, "recompute today's allocation even if it is fresh")
	f.BoolVar(&c.json, "json", false, "print the run report as JSON")
}

func (c *updateCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, ok := loadConfig()
	if !ok {
		return subcommands.ExitUsageError
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return subcommands.ExitUsageError
	}

	a, err := app.New(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(ctx, cfg.RunTimeout())
	defer cancel()

	run := a.Updater.Update
	if c.force {
		run = a.Updater.ForceUpdate
	}
	rep, err := run(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}

	if c.json {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.Encode(rep)
		return subcommands.ExitSuccess
	}
	printMarkdown(reportMarkdown(rep))
	return subcommands.ExitSuccess
}

// --- allocation ---

type allocationCmd struct{}

func (*allocationCmd) Name() string     { return "allocation" }
func (*allocationCmd) Synopsis() string { return "display the latest allocation" }
func (*allocationCmd) Usage() string {
	return `hrpctl allocation

  Displays the latest stored weights and their metrics.
`
}
func (*allocationCmd) SetFlags(*flag.FlagSet) {}

func (*allocationCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, ok := loadConfig()
	if !ok {
		return subcommands.ExitUsageError
	}
	a, err := app.New(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	alloc, err := a.Allocations.GetLatestAllocation(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	if alloc == nil {
		fmt.Println("No allocation found. Run `hrpctl update` first.")
		return subcommands.ExitSuccess
	}
	printMarkdown(allocationMarkdown(alloc))
	return subcommands.ExitSuccess
}

// --- history ---

type historyCmd struct {
	limit int
}

func (*historyCmd) Name() string     { return "history" }
func (*historyCmd) Synopsis() string { return "display past allocations" }
func (*historyCmd) Usage() string {
	return `hrpctl history [-n <count>]

  Displays stored allocations, most recent last.
`
}

func (c *historyCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.limit, "n", 20, "number of allocations to show (0 for all)")
}

func (c *historyCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, ok := loadConfig()
	if !ok {
		return subcommands.ExitUsageError
	}
	a, err := app.New(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	history, err := a.Allocations.GetAllocationHistory(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	if c.limit > 0 && len(history) > c.limit {
		history = history[len(history)-c.limit:]
	}
	printMarkdown(historyMarkdown(history))
	return subcommands.ExitSuccess
}
