// Package pipeline sequences the funnel end to end: candidates, scoring,
// shortlist selection, full-text fetch, deep review, final selection, and
// digest assembly. The driver owns the threshold-relaxation policy and is
// the only place that decides between a complete digest and no digest.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"paperboy/internal/config"
	"paperboy/internal/core"
	"paperboy/internal/logger"
	"paperboy/internal/profile"
	"paperboy/internal/review"
)

// Sentinel pipeline failures. Each one means the run produced no digest.
var (
	// ErrNoCandidates means the candidate source returned nothing to score.
	ErrNoCandidates = errors.New("no candidate papers to process")

	// ErrEmptyShortlist means no paper met the threshold even after the
	// one allowed relaxation.
	ErrEmptyShortlist = errors.New("no papers qualified for deep review")

	// ErrSelectionFailed wraps any failure of the final selection stage,
	// including review.ErrTooFewAnalyzed and review.ErrTooFewSelected.
	ErrSelectionFailed = errors.New("final selection failed")
)

// Pipeline coordinates the funnel stages for one run.
type Pipeline struct {
	source   CandidateSource
	scorer   PaperScorer
	fulltext FullTextProvider
	reviewer DeepReviewer
	profile  *profile.Profile
	cfg      config.Scoring
}

// New assembles a pipeline from its stage implementations.
func New(
	source CandidateSource,
	sc PaperScorer,
	fulltext FullTextProvider,
	reviewer DeepReviewer,
	p *profile.Profile,
	cfg config.Scoring,
) *Pipeline {
	return &Pipeline{
		source:   source,
		scorer:   sc,
		fulltext: fulltext,
		reviewer: reviewer,
		profile:  p,
		cfg:      cfg,
	}
}

// Run executes the full funnel and returns exactly one complete digest or
// an error. There is no partial output: any pipeline-level failure leaves
// nothing to persist, render, or deliver.
func (p *Pipeline) Run(ctx context.Context) (*core.Digest, error) {
	categories := p.profile.Categories()

	fmt.Printf("📡 Step 1/6: Fetching candidates for %s...\n", strings.Join(categories, ", "))
	candidates, err := p.source.Fetch(ctx, categories)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch candidates: %w", err)
	}
	if len(candidates) == 0 {
		return nil, ErrNoCandidates
	}
	fmt.Printf("   ✓ %d candidates\n\n", len(candidates))

	stats := core.RunStats{Candidates: len(candidates)}

	fmt.Printf("🧮 Step 2/6: Scoring %d papers...\n", len(candidates))
	scored, err := p.scorer.ScoreAll(ctx, candidates)
	if err != nil {
		return nil, fmt.Errorf("scoring failed: %w", err)
	}
	stats.Scored = len(scored)
	fmt.Printf("   ✓ %d papers scored\n\n", stats.Scored)

	fmt.Printf("🎯 Step 3/6: Selecting shortlist (threshold %.1f)...\n", p.cfg.Threshold)
	shortlist, err := p.selectWithRelaxation(scored)
	if err != nil {
		return nil, err
	}
	stats.Shortlisted = len(shortlist)
	fmt.Printf("   ✓ %d papers shortlisted\n\n", stats.Shortlisted)

	fmt.Printf("📄 Step 4/6: Fetching full text for %d papers...\n", len(shortlist))
	withText := p.attachFullText(ctx, shortlist)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fmt.Printf("🔬 Step 5/6: Deep review...\n")
	analyzed, err := p.reviewer.AnalyzeAll(ctx, withText)
	if err != nil {
		return nil, fmt.Errorf("deep review failed: %w", err)
	}
	stats.Analyzed = len(analyzed)
	fmt.Printf("   ✓ %d papers analyzed\n\n", stats.Analyzed)

	fmt.Printf("🗞️  Step 6/6: Selecting the digest...\n")
	selection, err := p.reviewer.SelectFinal(ctx, analyzed)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSelectionFailed, err)
	}
	stats.Selected = len(selection.IDs)
	fmt.Printf("   ✓ %d papers selected\n\n", stats.Selected)

	return p.assembleDigest(analyzed, selection, stats), nil
}

// selectWithRelaxation applies the configured threshold and, if nothing
// qualifies, retries exactly once with the threshold lowered by one point.
// The scored set is reused as is; papers are never re-scored.
func (p *Pipeline) selectWithRelaxation(scored []core.Paper) ([]core.Paper, error) {
	shortlist := p.scorer.Select(scored, p.cfg.Threshold)
	if len(shortlist.Papers) > 0 {
		return shortlist.Papers, nil
	}

	relaxed := p.cfg.Threshold - 1
	logger.Warn("No papers met the threshold, relaxing once",
		"threshold", p.cfg.Threshold,
		"relaxed", relaxed)
	fmt.Printf("   • Nothing above %.1f, retrying at %.1f\n", p.cfg.Threshold, relaxed)

	shortlist = p.scorer.Select(scored, relaxed)
	if len(shortlist.Papers) == 0 {
		return nil, fmt.Errorf("%w: nothing at or above threshold %.1f", ErrEmptyShortlist, relaxed)
	}
	return shortlist.Papers, nil
}

// attachFullText resolves full text for each shortlisted paper. Papers the
// provider cannot serve continue with title and abstract only; the reviewer
// marks their analysis degraded.
func (p *Pipeline) attachFullText(ctx context.Context, papers []core.Paper) []core.Paper {
	withText := make([]core.Paper, len(papers))
	copy(withText, papers)

	found := 0
	for i := range withText {
		if ctx.Err() != nil {
			break
		}
		text, ok := p.fulltext.Text(ctx, withText[i].ArxivID)
		if !ok {
			logger.Warn("Full text unavailable, reviewer will use the abstract",
				"arxiv_id", withText[i].ArxivID)
			continue
		}
		withText[i].FullText = text
		found++
	}

	fmt.Printf("   ✓ Full text for %d/%d papers\n\n", found, len(withText))
	return withText
}

// assembleDigest builds the run's digest from the analyzed pool and the
// oracle's selection, preserving the oracle's ordering.
func (p *Pipeline) assembleDigest(analyzed []core.Paper, sel review.Selection, stats core.RunStats) *core.Digest {
	byID := make(map[string]*core.Paper, len(analyzed))
	for i := range analyzed {
		byID[analyzed[i].ArxivID] = &analyzed[i]
	}

	entries := make([]core.DigestEntry, 0, len(sel.IDs))
	for _, id := range sel.IDs {
		paper := byID[id]
		paper.Analysis.Selected = true
		entries = append(entries, core.DigestEntry{
			ArxivID:    paper.ArxivID,
			Title:      paper.Title,
			URL:        paper.URL,
			Authors:    strings.Join(paper.Authors, ", "),
			Summary:    paper.Analysis.Summary,
			Relevance:  paper.Analysis.Relevance,
			KeyInsight: paper.Analysis.KeyInsight,
			Score:      paper.Analysis.Score,
		})
	}

	summary := sel.Summary
	if summary == "" {
		summary = fallbackSummary(entries)
		logger.Warn("Oracle returned no digest summary, composed one from key insights")
	}

	return &core.Digest{
		ID:          uuid.NewString(),
		GeneratedAt: time.Now().UTC(),
		Summary:     summary,
		Papers:      entries,
		Stats:       stats,
	}
}

// fallbackSummary stitches an overview out of the selected papers' key
// insights when the oracle's selection call returned none.
func fallbackSummary(entries []core.DigestEntry) string {
	insights := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.KeyInsight != "" {
			insights = append(insights, e.KeyInsight)
		}
	}
	if len(insights) == 0 {
		return fmt.Sprintf("%d papers selected for today's digest.", len(entries))
	}
	return "Today's highlights: " + strings.Join(insights, " ")
}
