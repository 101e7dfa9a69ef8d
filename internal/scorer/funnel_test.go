package scorer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"paperboy/internal/core"
	"paperboy/internal/oracle"
	"paperboy/internal/profile"
)

func scoredPaper(id string, total float64, published time.Time) core.Paper {
	return core.Paper{
		ArxivID:   id,
		Title:     "Paper " + id,
		Published: published,
		Score:     &core.ScoreRecord{Total: total},
	}
}

func TestSelectThresholdAndCap(t *testing.T) {
	cfg := testScoringConfig()
	cfg.ShortlistCap = 3
	cfg.ShortlistFloor = 2
	f := &Funnel{cfg: cfg}

	now := time.Now()
	papers := []core.Paper{
		scoredPaper("a", 6.9, now),
		scoredPaper("b", 9, now),
		scoredPaper("c", 8, now),
		scoredPaper("d", 7, now),
		scoredPaper("e", 8.5, now),
		scoredPaper("f", 5, now),
	}

	shortlist := f.Select(papers, 7)

	if shortlist.TotalProcessed != 6 {
		t.Errorf("total processed = %d, want 6", shortlist.TotalProcessed)
	}
	if len(shortlist.Papers) != 3 {
		t.Fatalf("selected = %d, want cap of 3", len(shortlist.Papers))
	}

	wantOrder := []string{"b", "e", "c"}
	for i, want := range wantOrder {
		if shortlist.Papers[i].ArxivID != want {
			t.Errorf("rank %d = %s, want %s", i, shortlist.Papers[i].ArxivID, want)
		}
	}
	for _, p := range shortlist.Papers {
		if p.Score.Total < 7 {
			t.Errorf("paper %s below threshold with total %v", p.ArxivID, p.Score.Total)
		}
	}
}

func TestSelectTiesPreferNewer(t *testing.T) {
	f := &Funnel{cfg: testScoringConfig()}

	older := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2026, 1, 12, 0, 0, 0, 0, time.UTC)
	papers := []core.Paper{
		scoredPaper("old", 8, older),
		scoredPaper("new", 8, newer),
	}

	shortlist := f.Select(papers, 7)
	if len(shortlist.Papers) != 2 {
		t.Fatalf("selected = %d, want 2", len(shortlist.Papers))
	}
	if shortlist.Papers[0].ArxivID != "new" {
		t.Errorf("tie should rank the newer paper first, got %s", shortlist.Papers[0].ArxivID)
	}
}

func TestSelectZeroQualified(t *testing.T) {
	f := &Funnel{cfg: testScoringConfig()}
	papers := []core.Paper{
		scoredPaper("a", 3, time.Now()),
		scoredPaper("b", 6.99, time.Now()),
	}

	shortlist := f.Select(papers, 7)
	if len(shortlist.Papers) != 0 {
		t.Errorf("selected = %d, want 0 when nothing clears the threshold", len(shortlist.Papers))
	}
	if shortlist.TotalProcessed != 2 {
		t.Errorf("total processed = %d, want 2", shortlist.TotalProcessed)
	}
}

func TestSelectRelaxedThresholdAdmitsMore(t *testing.T) {
	f := &Funnel{cfg: testScoringConfig()}
	papers := []core.Paper{
		scoredPaper("a", 6.5, time.Now()),
		scoredPaper("b", 4, time.Now()),
	}

	if got := f.Select(papers, 7); len(got.Papers) != 0 {
		t.Fatalf("selected = %d at threshold 7, want 0", len(got.Papers))
	}

	relaxed := f.Select(papers, 6)
	if len(relaxed.Papers) != 1 || relaxed.Papers[0].ArxivID != "a" {
		t.Errorf("relaxed selection should admit the 6.5 paper, got %+v", relaxed.Papers)
	}
	if relaxed.Threshold != 6 {
		t.Errorf("shortlist threshold = %v, want 6", relaxed.Threshold)
	}
}

func TestSelectSkipsUnscoredPapers(t *testing.T) {
	f := &Funnel{cfg: testScoringConfig()}
	papers := []core.Paper{
		{ArxivID: "unscored"},
		scoredPaper("scored", 9, time.Now()),
	}

	shortlist := f.Select(papers, 7)
	if len(shortlist.Papers) != 1 || shortlist.Papers[0].ArxivID != "scored" {
		t.Errorf("unscored papers must not be ranked, got %+v", shortlist.Papers)
	}
}

func TestScoreAllCombinesStages(t *testing.T) {
	prof := &profile.Profile{
		ResearchAreas: map[string]profile.Area{
			"cs.LG": {Weight: 1.0, Keywords: []string{"transformers"}},
		},
		Interests: []string{"deep learning theory"},
	}
	papers := []core.Paper{
		{
			ArxivID:    "2501.00001",
			Title:      "We Prove a New Theorem on Transformer Generalization",
			Abstract:   "A novel analysis of generalization.",
			Categories: []string{"cs.LG"},
		},
		{
			ArxivID:    "2501.00002",
			Title:      "Notes on Unrelated Matters",
			Abstract:   "Nothing of note.",
			Categories: []string{"q-fin.TR"},
		},
	}

	judge := &capturingJudge{}
	judge.respond = func(oracle.Request) (json.RawMessage, error) {
		return json.RawMessage(`{"scores":[{"arxiv_id":"2501.00001","score":2},{"arxiv_id":"2501.00002","score":0}]}`), nil
	}

	f := NewFunnel(judge, prof, testScoringConfig())
	scored, err := f.ScoreAll(context.Background(), papers)
	if err != nil {
		t.Fatalf("ScoreAll() error = %v", err)
	}

	first := scored[0].Score
	if first == nil {
		t.Fatal("first paper has no score record")
	}
	if first.InterestScore != 2 {
		t.Errorf("interest = %d, want 2", first.InterestScore)
	}
	if first.Total != 10 {
		t.Errorf("total = %v, want 10 (5 category + 2 keyword + 2 interest + 1 novelty)", first.Total)
	}
	want := "Strong category match; keyword hits; high interest alignment; novelty signals."
	if first.Reason != want {
		t.Errorf("reason = %q, want %q", first.Reason, want)
	}

	second := scored[1].Score
	if second == nil {
		t.Fatal("second paper has no score record")
	}
	if second.Total != 0 {
		t.Errorf("total = %v, want 0", second.Total)
	}
	if second.Reason != "Low overall relevance." {
		t.Errorf("reason = %q, want low-relevance fallback", second.Reason)
	}

	if papers[0].Score != nil {
		t.Error("ScoreAll must not mutate the input slice")
	}
}

func TestScoreAllFailsOpenOnOracleFault(t *testing.T) {
	prof := &profile.Profile{
		ResearchAreas: map[string]profile.Area{
			"cs.LG": {Weight: 1.0, Keywords: []string{"transformers"}},
		},
	}
	papers := []core.Paper{{
		ArxivID:    "2501.00001",
		Title:      "We Prove a New Theorem on Transformer Generalization",
		Abstract:   "A novel analysis.",
		Categories: []string{"cs.LG"},
	}}

	judge := &capturingJudge{}
	judge.respond = func(oracle.Request) (json.RawMessage, error) {
		return nil, &oracle.Fault{Kind: oracle.FaultServer, Provider: "gemini", Err: errors.New("500")}
	}

	f := NewFunnel(judge, prof, testScoringConfig())
	scored, err := f.ScoreAll(context.Background(), papers)
	if err != nil {
		t.Fatalf("ScoreAll() error = %v", err)
	}
	if scored[0].Score.InterestScore != 0 {
		t.Errorf("interest = %d, want 0 after oracle fault", scored[0].Score.InterestScore)
	}
	if scored[0].Score.Total != 8 {
		t.Errorf("total = %v, want 8 from deterministic features alone", scored[0].Score.Total)
	}
}

func TestScoreReason(t *testing.T) {
	tests := []struct {
		name string
		rec  core.ScoreRecord
		want string
	}{
		{
			"all signals",
			core.ScoreRecord{CategoryScore: 5, KeywordScore: 3, InterestScore: 2, NoveltyBonus: 1},
			"Strong category match; keyword hits; high interest alignment; novelty signals.",
		},
		{
			"moderate category partial interest",
			core.ScoreRecord{CategoryScore: 2.5, InterestScore: 1},
			"Category match; partial interest match.",
		},
		{
			"penalty noted",
			core.ScoreRecord{CategoryScore: 5, AvoidancePenalty: 2},
			"Strong category match; avoidance penalty applied.",
		},
		{
			"nothing stands out",
			core.ScoreRecord{CategoryScore: 1, KeywordScore: 0.5},
			"Low overall relevance.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := scoreReason(tt.rec); got != tt.want {
				t.Errorf("scoreReason() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRoundScore(t *testing.T) {
	if got := roundScore(7.0500000001); got != 7.05 {
		t.Errorf("roundScore() = %v, want 7.05", got)
	}
	if got := roundScore(-1.234); got != -1.23 {
		t.Errorf("roundScore() = %v, want -1.23", got)
	}
}

func TestSelectOrderingStableAcrossDuplicates(t *testing.T) {
	f := &Funnel{cfg: testScoringConfig()}
	ts := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	var papers []core.Paper
	for i := 0; i < 5; i++ {
		papers = append(papers, scoredPaper(fmt.Sprintf("p%d", i), 8, ts))
	}

	shortlist := f.Select(papers, 7)
	for i, p := range shortlist.Papers {
		if want := fmt.Sprintf("p%d", i); p.ArxivID != want {
			t.Errorf("rank %d = %s, want %s (stable sort on full ties)", i, p.ArxivID, want)
		}
	}
}
