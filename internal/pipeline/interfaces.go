package pipeline

import (
	"context"

	"paperboy/internal/core"
	"paperboy/internal/review"
	"paperboy/internal/scorer"
)

// CandidateSource supplies the run's candidate papers.
type CandidateSource interface {
	// Fetch returns recent papers in the given categories, deduplicated,
	// newest first. An empty result is not an error; the driver decides.
	Fetch(ctx context.Context, categories []string) ([]core.Paper, error)
}

// PaperScorer runs the scoring stages of the funnel.
type PaperScorer interface {
	// ScoreAll attaches a complete ScoreRecord to every paper.
	ScoreAll(ctx context.Context, papers []core.Paper) ([]core.Paper, error)

	// Select ranks scored papers and applies the threshold and cap.
	Select(papers []core.Paper, threshold float64) scorer.Shortlist
}

// FullTextProvider resolves full text for a shortlisted paper.
type FullTextProvider interface {
	// Text returns the paper's full text and whether any was found.
	// Absence is degraded input for the reviewer, never an error.
	Text(ctx context.Context, arxivID string) (string, bool)
}

// DeepReviewer analyzes the shortlist and makes the final cut.
type DeepReviewer interface {
	// AnalyzeAll runs the per-paper deep analysis in shortlist order.
	AnalyzeAll(ctx context.Context, papers []core.Paper) ([]core.Paper, error)

	// SelectFinal asks the oracle for the digest-worthy subset.
	SelectFinal(ctx context.Context, analyzed []core.Paper) (review.Selection, error)
}
