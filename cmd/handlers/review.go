package handlers

import (
	"context"
	"fmt"
	"paperboy/internal/arxiv"
	"paperboy/internal/config"
	"paperboy/internal/fulltext"
	"paperboy/internal/oracle"
	"paperboy/internal/profile"
	"paperboy/internal/review"
	"paperboy/internal/scorer"

	"github.com/spf13/cobra"
)

// NewReviewCmd creates the review command for inspecting the deep-review stage
func NewReviewCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "review",
		Short: "Deep-review the current shortlist and print the analyses",
		Long: `Run the funnel through the deep-review stage and print each analysis,
without the final selection, the archive write, or any delivery.

This exercises the scorer, the full-text fetch, and the per-paper review
calls, so it spends both scorer-model and review-model oracle calls. Use
--limit to cap how many shortlisted papers are reviewed.

Examples:
  # Review the top 3 shortlisted papers
  paperboy review

  # Review the whole shortlist
  paperboy review --limit 0`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReview(limit)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "l", 3, "Deep-review at most N shortlisted papers (0 reviews all)")

	return cmd
}

func runReview(limit int) error {
	ctx := context.Background()
	cfg := config.Get()

	prof, err := profile.Load(cfg.App.ProfilePath)
	if err != nil {
		return err
	}

	scorerJudge, err := oracle.New(ctx, cfg.Oracle, oracle.RoleScorer)
	if err != nil {
		return fmt.Errorf("failed to build the scorer oracle: %w", err)
	}
	reviewJudge, err := oracle.New(ctx, cfg.Oracle, oracle.RoleReviewer)
	if err != nil {
		return fmt.Errorf("failed to build the reviewer oracle: %w", err)
	}

	source := arxiv.NewSource(cfg.ArXiv, nil)
	papers, err := source.Fetch(ctx, prof.Categories())
	if err != nil {
		return fmt.Errorf("failed to fetch candidates: %w", err)
	}
	if len(papers) == 0 {
		fmt.Println("No recent candidates found")
		fmt.Printf("💡 Try increasing arxiv.lookback_days (currently: %d)\n", cfg.ArXiv.LookbackDays)
		return nil
	}

	funnel := scorer.NewFunnel(scorerJudge, prof, cfg.Scoring)
	scored, err := funnel.ScoreAll(ctx, papers)
	if err != nil {
		return fmt.Errorf("scoring failed: %w", err)
	}

	shortlist := funnel.Select(scored, cfg.Scoring.Threshold)
	if len(shortlist.Papers) == 0 {
		fmt.Println("Nothing qualified for deep review")
		fmt.Printf("💡 Try lowering scoring.threshold (currently: %.1f)\n", cfg.Scoring.Threshold)
		return nil
	}

	pool := shortlist.Papers
	if limit > 0 && len(pool) > limit {
		pool = pool[:limit]
	}

	provider := fulltext.NewProvider(cfg.ArXiv, cfg.App.DataDir)
	fmt.Printf("📄 Fetching full text for %d papers...\n", len(pool))
	for i := range pool {
		if text, ok := provider.Text(ctx, pool[i].ArxivID); ok {
			pool[i].FullText = text
		}
	}

	reviewer := review.NewReviewer(reviewJudge, prof, cfg.Review)
	analyzed, err := reviewer.AnalyzeAll(ctx, pool)
	if err != nil {
		return fmt.Errorf("deep review failed: %w", err)
	}

	for i, paper := range analyzed {
		fmt.Printf("\n%d. %s\n", i+1, paper.Title)
		fmt.Printf("   %s · %.1f/10", paper.ArxivID, paper.Analysis.Score)
		if paper.Analysis.Degraded {
			fmt.Printf(" · abstract only")
		}
		fmt.Println()
		if paper.Analysis.KeyInsight != "" {
			fmt.Printf("   %s\n", paper.Analysis.KeyInsight)
		}
	}
	fmt.Printf("\n💡 'paperboy run' adds the final diversity selection and builds the digest\n")
	return nil
}
