package handlers

import (
	"context"
	"fmt"
	"paperboy/internal/arxiv"
	"paperboy/internal/config"
	"paperboy/internal/profile"
	"paperboy/internal/store"
	"strings"

	"github.com/spf13/cobra"
)

// NewFetchCmd creates the fetch command for inspecting the candidate stage
func NewFetchCmd() *cobra.Command {
	var (
		limit      int
		unseenOnly bool
	)

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch recent candidates without scoring them",
		Long: `Fetch recent submissions for the profile's categories and list them.

This is a stage-debugging command: it exercises only the candidate source,
so the category query, the lookback window, and dedup against earlier
digests can be checked without spending oracle calls.

Examples:
  # List today's candidates
  paperboy fetch

  # Show only the first 20
  paperboy fetch --limit 20

  # Apply the seen-filter a real run would apply
  paperboy fetch --unseen`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFetch(limit, unseenOnly)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "l", 0, "Show at most N candidates (0 shows all)")
	cmd.Flags().BoolVar(&unseenOnly, "unseen", false, "Drop papers already included in archived digests")

	return cmd
}

func runFetch(limit int, unseenOnly bool) error {
	ctx := context.Background()
	cfg := config.Get()

	prof, err := profile.Load(cfg.App.ProfilePath)
	if err != nil {
		return err
	}

	var seen arxiv.SeenFilter
	if unseenOnly {
		archive, err := store.NewStore(cfg.App.DataDir)
		if err != nil {
			return fmt.Errorf("failed to open the archive: %w", err)
		}
		defer archive.Close()
		seen = archive
	}

	source := arxiv.NewSource(cfg.ArXiv, seen)
	papers, err := source.Fetch(ctx, prof.Categories())
	if err != nil {
		return fmt.Errorf("failed to fetch candidates: %w", err)
	}

	if len(papers) == 0 {
		fmt.Println("No recent candidates found")
		fmt.Printf("💡 Try increasing arxiv.lookback_days (currently: %d)\n", cfg.ArXiv.LookbackDays)
		return nil
	}

	fmt.Printf("\n📡 %d candidates from the last %d days (%s)\n",
		len(papers), cfg.ArXiv.LookbackDays, strings.Join(prof.Categories(), ", "))
	fmt.Println("═══════════════════════════════════════════════════════════════════")
	for i, paper := range papers {
		if limit > 0 && i >= limit {
			fmt.Printf("... and %d more\n", len(papers)-limit)
			break
		}
		title := paper.Title
		if len(title) > 56 {
			title = title[:53] + "..."
		}
		fmt.Printf("%-14s  %-12s  %s\n", paper.ArxivID, paper.PrimaryCategory(), title)
	}
	fmt.Println("═══════════════════════════════════════════════════════════════════")
	fmt.Printf("\n💡 Use 'paperboy score' to rank these against your profile\n")
	return nil
}
