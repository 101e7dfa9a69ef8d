// Package scorer implements the scoring half of the funnel: deterministic
// feature scores computed locally, interest scores judged by the oracle in
// batches, and the ranked threshold/cap selection that produces the
// shortlist for deep review.
package scorer

import (
	"math"
	"strings"

	"paperboy/internal/core"
	"paperboy/internal/profile"
)

// noveltyIndicators are the signal phrases suggesting a new theoretical
// result. The bonus requires two distinct hits so a single coincidental word
// does not trigger it.
var noveltyIndicators = []string{
	"novel",
	"new approach",
	"first time",
	"theorem",
	"proof",
	"we prove",
	"breakthrough",
	"significant advance",
}

var (
	benchmarkTerms   = []string{"benchmark", "evaluation", "survey", "comparison"}
	theoryTerms      = []string{"theorem", "proof", "theory", "theoretical"}
	engineeringTerms = []string{"implementation", "system", "framework", "tool"}
)

// FeatureScorer computes the deterministic sub-scores of a paper against the
// reader profile. Pure and I/O-free; the interest score is left for the
// oracle stage.
type FeatureScorer struct {
	profile *profile.Profile
}

// NewFeatureScorer creates a scorer bound to one profile snapshot.
func NewFeatureScorer(p *profile.Profile) *FeatureScorer {
	return &FeatureScorer{profile: p}
}

// Score returns the deterministic portion of a paper's ScoreRecord. Missing
// fields (empty abstract, no categories) contribute zero rather than failing.
func (fs *FeatureScorer) Score(paper core.Paper) core.ScoreRecord {
	return core.ScoreRecord{
		CategoryScore:    fs.categoryScore(paper),
		KeywordScore:     fs.keywordScore(paper),
		NoveltyBonus:     fs.noveltyBonus(paper),
		AvoidancePenalty: fs.avoidancePenalty(paper),
	}
}

// categoryScore rewards overlap between the paper's category tags and the
// profile's research areas. The primary (first) tag counts 5x its area
// weight, secondary tags 2.5x, summed and capped at 5.
func (fs *FeatureScorer) categoryScore(paper core.Paper) float64 {
	score := 0.0
	for i, cat := range paper.Categories {
		area, ok := fs.profile.ResearchAreas[cat]
		if !ok {
			continue
		}
		if i == 0 {
			score += 5 * area.Weight
		} else {
			score += 2.5 * area.Weight
		}
	}
	return math.Min(score, 5.0)
}

// keywordScore counts profile keyword hits, drawing keywords only from the
// areas the paper's own categories belong to. A title hit is worth 2, an
// abstract hit 0.5, capped at 3.
func (fs *FeatureScorer) keywordScore(paper core.Paper) float64 {
	keywords := fs.profile.KeywordsFor(paper.Categories)
	if len(keywords) == 0 {
		return 0.0
	}

	title := strings.ToLower(paper.Title)
	abstract := strings.ToLower(paper.Abstract)

	score := 0.0
	for _, kw := range keywords {
		kw = strings.ToLower(kw)
		switch {
		case matchesKeyword(title, kw):
			score += 2
		case matchesKeyword(abstract, kw):
			score += 0.5
		}
	}
	return math.Min(score, 3.0)
}

// matchesKeyword is a case-folded substring match tolerating a trailing
// plural, so the keyword "transformers" still finds "Transformer" in a
// title. Both inputs must already be lowercased.
func matchesKeyword(text, keyword string) bool {
	if strings.Contains(text, keyword) {
		return true
	}
	stem := strings.TrimSuffix(keyword, "s")
	return stem != keyword && len(stem) >= 3 && strings.Contains(text, stem)
}

// noveltyBonus awards a single point when at least two distinct signal
// phrases appear across title and abstract.
func (fs *FeatureScorer) noveltyBonus(paper core.Paper) int {
	text := strings.ToLower(paper.Title + " " + paper.Abstract)
	matches := 0
	for _, indicator := range noveltyIndicators {
		if strings.Contains(text, indicator) {
			matches++
		}
	}
	if matches >= 2 {
		return 1
	}
	return 0
}

// avoidancePenalty penalises papers matching the profile's avoidance
// criteria. An "empirical" criterion fires when the title carries a
// benchmark marker and the abstract has no theory marker (+2); an
// "engineering" criterion fires when the title carries an engineering
// marker and the abstract never mentions a theorem (+1). Capped at 3.
func (fs *FeatureScorer) avoidancePenalty(paper core.Paper) int {
	if len(fs.profile.Avoid) == 0 {
		return 0
	}

	title := strings.ToLower(paper.Title)
	abstract := strings.ToLower(paper.Abstract)

	penalty := 0
	for _, criterion := range fs.profile.Avoid {
		criterion = strings.ToLower(criterion)

		if strings.Contains(criterion, "empirical") {
			if containsAny(title, benchmarkTerms) && !containsAny(abstract, theoryTerms) {
				penalty += 2
			}
		}
		if strings.Contains(criterion, "engineering") {
			if containsAny(title, engineeringTerms) && !strings.Contains(abstract, "theorem") {
				penalty += 1
			}
		}
	}
	if penalty > 3 {
		penalty = 3
	}
	return penalty
}

func containsAny(text string, terms []string) bool {
	for _, term := range terms {
		if strings.Contains(text, term) {
			return true
		}
	}
	return false
}
