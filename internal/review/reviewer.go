// Package review implements the deep-review stage: one full-text oracle
// analysis per shortlisted paper, paced by a mandatory inter-item delay,
// followed by a single diversity-selection call that picks the papers the
// digest will carry.
package review

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"paperboy/internal/config"
	"paperboy/internal/core"
	"paperboy/internal/logger"
	"paperboy/internal/oracle"
	"paperboy/internal/profile"
)

var (
	// ErrTooFewAnalyzed means not enough papers survived analysis to make
	// the selection minimum reachable.
	ErrTooFewAnalyzed = errors.New("too few analyzed papers for a viable selection")
	// ErrTooFewSelected means the oracle chose fewer papers than the
	// minimum viable digest.
	ErrTooFewSelected = errors.New("oracle selected fewer papers than required")
)

var analysisSchema = &oracle.Schema{
	Type: oracle.TypeObject,
	Properties: map[string]*oracle.Schema{
		"summary":     {Type: oracle.TypeString, Description: "2-3 paragraphs covering problem, approach and results"},
		"relevance":   {Type: oracle.TypeString, Description: "1 paragraph tying the paper to the reader's interests"},
		"key_insight": {Type: oracle.TypeString, Description: "2-3 sentences on the most important takeaway"},
		"score":       {Type: oracle.TypeNumber, Description: "overall quality and relevance from 0 to 10"},
	},
	Required: []string{"summary", "relevance", "key_insight", "score"},
}

var selectionSchema = &oracle.Schema{
	Type: oracle.TypeObject,
	Properties: map[string]*oracle.Schema{
		"selected_ids": {
			Type:  oracle.TypeArray,
			Items: &oracle.Schema{Type: oracle.TypeString},
		},
		"digest_summary": {Type: oracle.TypeString, Description: "2-3 sentence overview of the digest themes"},
	},
	Required: []string{"selected_ids", "digest_summary"},
}

// Selection is the outcome of the final diversity call.
type Selection struct {
	IDs     []string // chosen arxiv ids, oracle order, deduplicated
	Summary string   // oracle-written digest overview, may be empty
}

// Reviewer runs the deep-review stage against one profile snapshot.
type Reviewer struct {
	judge       oracle.Judge
	profile     *profile.Profile
	itemDelay   time.Duration
	maxTextLen  int
	minSelected int
	maxSelected int
}

// NewReviewer wires the reviewer stage.
func NewReviewer(judge oracle.Judge, p *profile.Profile, cfg config.Review) *Reviewer {
	maxTextLen := cfg.MaxTextLen
	if maxTextLen < 1 {
		maxTextLen = 40000
	}
	minSelected := cfg.MinSelected
	if minSelected < 1 {
		minSelected = 5
	}
	maxSelected := cfg.MaxSelected
	if maxSelected < minSelected {
		maxSelected = minSelected
	}
	return &Reviewer{
		judge:       judge,
		profile:     p,
		itemDelay:   cfg.ItemDelayDuration(),
		maxTextLen:  maxTextLen,
		minSelected: minSelected,
		maxSelected: maxSelected,
	}
}

// AnalyzeAll walks the shortlist in rank order, one oracle call per paper,
// honoring the pacing delay between calls. A paper whose call fails is
// logged and dropped; it never reaches the selection pool. The returned
// papers carry their AnalysisRecord. The only error is run cancellation.
func (r *Reviewer) AnalyzeAll(ctx context.Context, papers []core.Paper) ([]core.Paper, error) {
	analyzed := make([]core.Paper, 0, len(papers))

	for i, paper := range papers {
		if i > 0 && r.itemDelay > 0 {
			logger.Debug("Pacing before next analysis", "delay", r.itemDelay.String())
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(r.itemDelay):
			}
		}

		logger.Info("Analyzing paper",
			"arxiv_id", paper.ArxivID,
			"position", i+1,
			"total", len(papers),
			"degraded", !paper.HasFullText())

		analysis, err := r.analyzeOne(ctx, paper)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logger.Error("Analysis failed, dropping paper", err, "arxiv_id", paper.ArxivID)
			continue
		}

		paper.Analysis = analysis
		analyzed = append(analyzed, paper)
	}

	logger.Info("Deep review finished", "analyzed", len(analyzed), "shortlisted", len(papers))
	return analyzed, nil
}

func (r *Reviewer) analyzeOne(ctx context.Context, paper core.Paper) (*core.AnalysisRecord, error) {
	degraded := !paper.HasFullText()
	prompt := r.buildAnalysisPrompt(paper, degraded)

	raw, err := r.judge.Judge(ctx, oracle.Request{Prompt: prompt, Schema: analysisSchema})
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Summary    string  `json:"summary"`
		Relevance  string  `json:"relevance"`
		KeyInsight string  `json:"key_insight"`
		Score      float64 `json:"score"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse analysis: %w", err)
	}
	if strings.TrimSpace(parsed.Summary) == "" || strings.TrimSpace(parsed.KeyInsight) == "" {
		return nil, fmt.Errorf("analysis missing required fields")
	}

	return &core.AnalysisRecord{
		Summary:    strings.TrimSpace(parsed.Summary),
		Relevance:  strings.TrimSpace(parsed.Relevance),
		KeyInsight: strings.TrimSpace(parsed.KeyInsight),
		Score:      parsed.Score,
		Degraded:   degraded,
	}, nil
}

// buildAnalysisPrompt renders one paper into its deep-review prompt. With no
// full text available the abstract stands in and the prompt says so.
func (r *Reviewer) buildAnalysisPrompt(paper core.Paper, degraded bool) string {
	var b strings.Builder

	b.WriteString(r.profile.Persona())
	b.WriteString("\n\nUser's research interests:\n")
	b.WriteString(bulleted(r.profile.Interests))
	b.WriteString("\n\nAnalyze the following paper:\n\n")
	b.WriteString(strings.Repeat("=", 60) + "\n")
	fmt.Fprintf(&b, "arxiv_id: %s\n", paper.ArxivID)
	fmt.Fprintf(&b, "Title: %s\n", paper.Title)
	fmt.Fprintf(&b, "Authors: %s\n", strings.Join(paper.Authors, ", "))
	fmt.Fprintf(&b, "Categories: %s\n\n", strings.Join(paper.Categories, ", "))

	if degraded {
		fmt.Fprintf(&b, "Abstract:\n%s\n\n", paper.Abstract)
		b.WriteString("Note: the full text is unavailable; base the analysis on the title and abstract only.\n")
	} else {
		text := paper.FullText
		if len(text) > r.maxTextLen {
			text = text[:r.maxTextLen] + "\n\n[Text truncated for length]"
		}
		fmt.Fprintf(&b, "Full text:\n%s\n", text)
	}

	b.WriteString("\nProvide:\n")
	b.WriteString("1. **summary**: 2-3 paragraphs covering the problem addressed, methodology/approach, and key results/contributions.\n")
	b.WriteString("2. **relevance**: 1 paragraph explaining how this connects to the user's research interests and why they should read it now.\n")
	b.WriteString("3. **key_insight**: 2-3 sentences on the most important takeaway and what makes this paper stand out.\n")
	b.WriteString("4. **score**: A float from 0-10 rating overall quality and relevance.\n")

	return b.String()
}

// SelectFinal issues the single diversity-selection call over the analyzed
// pool. Unknown and repeated ids from the oracle are dropped, a too-large
// selection is clipped to the configured maximum, and a too-small one is an
// error the driver treats as pipeline-level failure.
func (r *Reviewer) SelectFinal(ctx context.Context, analyzed []core.Paper) (Selection, error) {
	if len(analyzed) < r.minSelected {
		return Selection{}, fmt.Errorf("%w: %d analyzed, need at least %d",
			ErrTooFewAnalyzed, len(analyzed), r.minSelected)
	}

	prompt := r.buildSelectionPrompt(analyzed)
	raw, err := r.judge.Judge(ctx, oracle.Request{Prompt: prompt, Schema: selectionSchema})
	if err != nil {
		return Selection{}, fmt.Errorf("final selection call failed: %w", err)
	}

	var parsed struct {
		SelectedIDs   []string `json:"selected_ids"`
		DigestSummary string   `json:"digest_summary"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return Selection{}, fmt.Errorf("failed to parse selection: %w", err)
	}

	known := make(map[string]bool, len(analyzed))
	for _, p := range analyzed {
		known[p.ArxivID] = true
	}

	picked := make([]string, 0, len(parsed.SelectedIDs))
	seen := make(map[string]bool, len(parsed.SelectedIDs))
	for _, id := range parsed.SelectedIDs {
		if !known[id] {
			logger.Warn("Oracle selected an unknown paper id, ignoring", "arxiv_id", id)
			continue
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		picked = append(picked, id)
	}

	if len(picked) > r.maxSelected {
		logger.Warn("Oracle selected too many papers, clipping",
			"selected", len(picked), "max", r.maxSelected)
		picked = picked[:r.maxSelected]
	}
	if len(picked) < r.minSelected {
		return Selection{}, fmt.Errorf("%w: oracle chose %d, minimum %d",
			ErrTooFewSelected, len(picked), r.minSelected)
	}

	return Selection{IDs: picked, Summary: strings.TrimSpace(parsed.DigestSummary)}, nil
}

func (r *Reviewer) buildSelectionPrompt(analyzed []core.Paper) string {
	var papersText strings.Builder
	for _, p := range analyzed {
		fmt.Fprintf(&papersText, "\n---\narxiv_id: %s\nTitle: %s\nScore: %g\nKey insight: %s\n",
			p.ArxivID, p.Title, p.Analysis.Score, p.Analysis.KeyInsight)
	}

	target := fmt.Sprintf("%d-%d", r.minSelected, r.maxSelected)
	if r.minSelected == r.maxSelected {
		target = fmt.Sprintf("%d", r.minSelected)
	}

	return r.profile.Persona() + "\n\n" +
		"User's research interests:\n" + bulleted(r.profile.Interests) + "\n\n" +
		"The following papers have been deeply analyzed:\n" + papersText.String() + "\n" +
		"Select the best " + target + " papers for today's digest. Choose papers that:\n" +
		"- Represent significant contributions\n" +
		"- Span different aspects of the user's research interests\n" +
		"- Offer actionable insights\n\n" +
		"Return:\n" +
		"- 'selected_ids': list of arxiv_id strings for the chosen papers\n" +
		"- 'digest_summary': 2-3 sentence overview of today's digest themes\n"
}

func bulleted(items []string) string {
	lines := make([]string, len(items))
	for i, item := range items {
		lines[i] = "- " + item
	}
	return strings.Join(lines, "\n")
}
