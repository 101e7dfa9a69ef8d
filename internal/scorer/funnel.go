package scorer

import (
	"context"
	"math"
	"sort"
	"strings"

	"paperboy/internal/config"
	"paperboy/internal/core"
	"paperboy/internal/logger"
	"paperboy/internal/oracle"
	"paperboy/internal/profile"
)

// Shortlist is the ranked survivor set the scorer stage hands to deep
// review, plus the diagnostics the run report wants.
type Shortlist struct {
	Papers         []core.Paper
	TotalProcessed int
	Threshold      float64 // threshold actually applied, after any relaxation
}

// Funnel combines the deterministic features with the oracle interest stage
// and applies the ranked threshold/cap selection.
type Funnel struct {
	features *FeatureScorer
	interest *InterestScorer
	profile  *profile.Profile
	cfg      config.Scoring
}

// NewFunnel wires the scorer stage against one profile snapshot.
func NewFunnel(judge oracle.Judge, p *profile.Profile, cfg config.Scoring) *Funnel {
	if cfg.ShortlistCap < 1 {
		cfg.ShortlistCap = 30
	}
	return &Funnel{
		features: NewFeatureScorer(p),
		interest: NewInterestScorer(judge, cfg),
		profile:  p,
		cfg:      cfg,
	}
}

// ScoreAll attaches a complete ScoreRecord to every paper: deterministic
// features first, then the batched oracle interest scores, then the combined
// total and its one-line reason. The input slice is not mutated. The only
// error is run cancellation.
func (f *Funnel) ScoreAll(ctx context.Context, papers []core.Paper) ([]core.Paper, error) {
	logger.Info("Scoring papers",
		"papers", len(papers),
		"areas", len(f.profile.ResearchAreas),
		"interests", len(f.profile.Interests))

	scored := make([]core.Paper, len(papers))
	copy(scored, papers)

	records := make([]core.ScoreRecord, len(scored))
	for i := range scored {
		records[i] = f.features.Score(scored[i])
	}

	interests, err := f.interest.ScoreBatch(ctx, scored, f.profile.Interests)
	if err != nil {
		return nil, err
	}

	for i := range scored {
		rec := records[i]
		rec.InterestScore = interests[scored[i].ArxivID]
		rec.Total = roundScore(rec.CategoryScore + rec.KeywordScore +
			float64(rec.InterestScore) + float64(rec.NoveltyBonus) - float64(rec.AvoidancePenalty))
		rec.Reason = scoreReason(rec)
		scored[i].Score = &rec
	}

	return scored, nil
}

// Select ranks scored papers by total descending (newer publication wins
// ties) and returns the threshold-qualified prefix, capped at the configured
// shortlist size. Stateless; the relaxation retry on an empty result belongs
// to the driver.
func (f *Funnel) Select(papers []core.Paper, threshold float64) Shortlist {
	ranked := make([]core.Paper, 0, len(papers))
	for _, p := range papers {
		if p.Score != nil {
			ranked = append(ranked, p)
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score.Total != ranked[j].Score.Total {
			return ranked[i].Score.Total > ranked[j].Score.Total
		}
		return ranked[i].Published.After(ranked[j].Published)
	})

	qualified := make([]core.Paper, 0, f.cfg.ShortlistCap)
	for _, p := range ranked {
		if p.Score.Total < threshold {
			break
		}
		qualified = append(qualified, p)
		if len(qualified) == f.cfg.ShortlistCap {
			break
		}
	}

	if len(qualified) > 0 && len(qualified) < f.cfg.ShortlistFloor {
		logger.Warn("Shortlist below preferred size",
			"selected", len(qualified),
			"floor", f.cfg.ShortlistFloor)
	}
	logger.Info("Shortlist selected",
		"selected", len(qualified),
		"processed", len(papers),
		"threshold", threshold)

	return Shortlist{
		Papers:         qualified,
		TotalProcessed: len(papers),
		Threshold:      threshold,
	}
}

func roundScore(total float64) float64 {
	return math.Round(total*100) / 100
}

// scoreReason produces the terse one-sentence explanation stored alongside
// the total, e.g. "Strong category match; keyword hits; novelty signals."
func scoreReason(rec core.ScoreRecord) string {
	var parts []string

	if rec.CategoryScore >= 4 {
		parts = append(parts, "strong category match")
	} else if rec.CategoryScore >= 2 {
		parts = append(parts, "category match")
	}
	if rec.KeywordScore >= 2 {
		parts = append(parts, "keyword hits")
	}
	switch rec.InterestScore {
	case 2:
		parts = append(parts, "high interest alignment")
	case 1:
		parts = append(parts, "partial interest match")
	}
	if rec.NoveltyBonus > 0 {
		parts = append(parts, "novelty signals")
	}
	if rec.AvoidancePenalty >= 2 {
		parts = append(parts, "avoidance penalty applied")
	}

	if len(parts) == 0 {
		return "Low overall relevance."
	}
	reason := strings.Join(parts, "; ")
	return strings.ToUpper(reason[:1]) + reason[1:] + "."
}
