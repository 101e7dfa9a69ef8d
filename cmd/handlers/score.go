package handlers

import (
	"context"
	"fmt"
	"paperboy/internal/arxiv"
	"paperboy/internal/config"
	"paperboy/internal/core"
	"paperboy/internal/oracle"
	"paperboy/internal/profile"
	"paperboy/internal/scorer"
	"sort"

	"github.com/spf13/cobra"
)

// NewScoreCmd creates the score command for inspecting the scoring stage
func NewScoreCmd() *cobra.Command {
	var showAll bool

	cmd := &cobra.Command{
		Use:   "score",
		Short: "Score recent candidates and show the shortlist",
		Long: `Fetch recent candidates, score them against the preference profile,
and show the ranked shortlist that would enter deep review.

Scoring combines deterministic features (category weights, keyword hits,
novelty signals, avoidance penalties) with one batched oracle pass for
interest alignment, so this command spends scorer-model calls.

Examples:
  # Show the shortlist
  paperboy score

  # Show every scored candidate, not just the shortlist
  paperboy score --all`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScore(showAll)
		},
	}

	cmd.Flags().BoolVarP(&showAll, "all", "a", false, "Show every scored candidate, not just the shortlist")

	return cmd
}

func runScore(showAll bool) error {
	ctx := context.Background()
	cfg := config.Get()

	prof, err := profile.Load(cfg.App.ProfilePath)
	if err != nil {
		return err
	}

	judge, err := oracle.New(ctx, cfg.Oracle, oracle.RoleScorer)
	if err != nil {
		return fmt.Errorf("failed to build the scorer oracle: %w", err)
	}

	source := arxiv.NewSource(cfg.ArXiv, nil)
	papers, err := source.Fetch(ctx, prof.Categories())
	if err != nil {
		return fmt.Errorf("failed to fetch candidates: %w", err)
	}
	if len(papers) == 0 {
		fmt.Println("No recent candidates to score")
		fmt.Printf("💡 Try increasing arxiv.lookback_days (currently: %d)\n", cfg.ArXiv.LookbackDays)
		return nil
	}

	funnel := scorer.NewFunnel(judge, prof, cfg.Scoring)
	scored, err := funnel.ScoreAll(ctx, papers)
	if err != nil {
		return fmt.Errorf("scoring failed: %w", err)
	}

	shortlist := funnel.Select(scored, cfg.Scoring.Threshold)

	rows := shortlist.Papers
	heading := fmt.Sprintf("🎯 Shortlist: %d of %d papers at or above %.1f",
		len(rows), len(scored), shortlist.Threshold)
	if showAll {
		rows = make([]core.Paper, len(scored))
		copy(rows, scored)
		sort.SliceStable(rows, func(i, j int) bool {
			return rows[i].Score.Total > rows[j].Score.Total
		})
		heading = fmt.Sprintf("🧮 All %d scored papers", len(rows))
	}

	fmt.Printf("\n%s\n", heading)
	fmt.Println("═══════════════════════════════════════════════════════════════════")
	fmt.Printf("%-6s  %-14s  %s\n", "Score", "ID", "Title")
	fmt.Println("───────────────────────────────────────────────────────────────────")
	for _, paper := range rows {
		title := paper.Title
		if len(title) > 44 {
			title = title[:41] + "..."
		}
		fmt.Printf("%-6.1f  %-14s  %s\n", paper.Score.Total, paper.ArxivID, title)
		if paper.Score.Reason != "" {
			fmt.Printf("        %s\n", paper.Score.Reason)
		}
	}
	fmt.Println("═══════════════════════════════════════════════════════════════════")
	fmt.Printf("\n💡 Use 'paperboy review' to deep-review the shortlist\n")
	return nil
}
