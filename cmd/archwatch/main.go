package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"archwatch/internal/app"
	"archwatch/internal/config"
	"archwatch/internal/logging"
	"archwatch/internal/usecase"
)

var (
	flagSources    []string
	flagTier       int
	flagHours      int
	flagLimit      int
	flagRSSOnly    bool
	flagSkipFilter bool
)

func main() {
	// Secrets come from .env in development; absence is fine.
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:   "archwatch",
		Short: "Architecture news aggregation pipeline",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runOnce(cmd.Context())
		},
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Execute one pipeline pass",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runOnce(cmd.Context())
		},
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the pipeline on the configured schedule",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context())
		},
	}

	listCmd := &cobra.Command{
		Use:   "list-sources",
		Short: "Print the configured sources",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return listSources(cmd.Context())
		},
	}

	statsCmd := &cobra.Command{
		Use:   "stats [source]",
		Short: "Show seen-store counters, optionally for one source",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sourceID := ""
			if len(args) == 1 {
				sourceID = args[0]
			}
			return stats(cmd.Context(), sourceID)
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear-source <id>",
		Short: "Wipe all seen records of one source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return clearSource(cmd.Context(), args[0])
		},
	}

	for _, cmd := range []*cobra.Command{root, runCmd, serveCmd} {
		cmd.Flags().StringSliceVar(&flagSources, "sources", nil, "restrict to these source ids")
		cmd.Flags().IntVar(&flagTier, "tier", 0, "restrict to one source tier")
		cmd.Flags().IntVar(&flagHours, "hours", 0, "feed lookback window in hours")
		cmd.Flags().IntVar(&flagLimit, "limit", 0, "cap digest size (-1 for no cap)")
		cmd.Flags().BoolVar(&flagRSSOnly, "rss-only", false, "skip browser-based sources")
		cmd.Flags().BoolVar(&flagSkipFilter, "no-filter", false, "skip the AI relevance filter")
	}

	root.AddCommand(runCmd, serveCmd, listCmd, statsCmd, clearCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func buildApp(ctx context.Context) (*app.Application, config.Config, error) {
	cfg := config.Load()
	logger := logging.New(cfg.Logging.Level)
	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		return nil, cfg, err
	}
	return application, cfg, nil
}

// selectSources resolves the --sources/--tier/--rss-only flags to
// concrete source ids.
func selectSources(cfg config.Config) []string {
	var ids []string
	requested := make(map[string]bool, len(flagSources))
	for _, id := range flagSources {
		requested[id] = true
	}

	for _, src := range cfg.Sources {
		if len(requested) > 0 && !requested[src.ID] {
			continue
		}
		if flagTier > 0 && src.Tier != flagTier {
			continue
		}
		if flagRSSOnly && src.Scanner != "rss" {
			continue
		}
		ids = append(ids, src.ID)
	}
	return ids
}

func runOptions(cfg config.Config) usecase.RunOptions {
	opts := usecase.RunOptions{
		SourceIDs:  selectSources(cfg),
		Limit:      flagLimit,
		SkipFilter: flagSkipFilter,
	}
	if flagHours > 0 {
		opts.Lookback = time.Duration(flagHours) * time.Hour
	}
	return opts
}

func runOnce(ctx context.Context) error {
	application, cfg, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer application.Close()
	return application.RunOnce(ctx, runOptions(cfg))
}

func serve(ctx context.Context) error {
	application, cfg, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer application.Close()
	return application.Serve(ctx, runOptions(cfg))
}

func listSources(ctx context.Context) error {
	application, _, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer application.Close()

	for _, src := range application.Sources() {
		feed := src.RSSURL
		if feed == "" {
			feed = "-"
		}
		fmt.Printf("%-14s tier=%d scanner=%-7s region=%-6s %s\n",
			src.ID, src.Tier, src.Scanner, src.Region, feed)
	}
	return nil
}

func stats(ctx context.Context, sourceID string) error {
	application, _, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer application.Close()

	s, err := application.Stats(ctx, sourceID)
	if err != nil {
		return err
	}

	scope := sourceID
	if scope == "" {
		scope = "all sources"
	}
	fmt.Printf("%s: %d records\n", scope, s.Count)
	if s.OldestSeenAt != nil {
		fmt.Printf("oldest: %s\n", s.OldestSeenAt.Format(time.RFC3339))
	}
	if s.NewestSeenAt != nil {
		fmt.Printf("newest: %s\n", s.NewestSeenAt.Format(time.RFC3339))
	}
	return nil
}

func clearSource(ctx context.Context, sourceID string) error {
	application, _, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer application.Close()

	n, err := application.ClearSource(ctx, sourceID)
	if err != nil {
		return err
	}
	fmt.Printf("cleared %d records for %s\n", n, sourceID)
	return nil
}
