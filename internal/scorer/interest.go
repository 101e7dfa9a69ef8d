package scorer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"paperboy/internal/config"
	"paperboy/internal/core"
	"paperboy/internal/logger"
	"paperboy/internal/oracle"
)

// interestSchema is the verdict shape for one scoring batch.
var interestSchema = &oracle.Schema{
	Type: oracle.TypeObject,
	Properties: map[string]*oracle.Schema{
		"scores": {
			Type: oracle.TypeArray,
			Items: &oracle.Schema{
				Type: oracle.TypeObject,
				Properties: map[string]*oracle.Schema{
					"arxiv_id": {Type: oracle.TypeString},
					"score":    {Type: oracle.TypeInteger, Description: "0 (no match), 1 (partial match), or 2 (strong match)"},
				},
				Required: []string{"arxiv_id", "score"},
			},
		},
	},
	Required: []string{"scores"},
}

// InterestScorer asks the oracle how well papers align with the reader's
// stated interests, always in batches, never one call per paper. Oracle
// faults fail open: affected papers keep interest 0 and the run continues.
type InterestScorer struct {
	judge      oracle.Judge
	batchSize  int
	excerptLen int
}

// NewInterestScorer creates the batched interest stage.
func NewInterestScorer(judge oracle.Judge, cfg config.Scoring) *InterestScorer {
	batchSize := cfg.BatchSize
	if batchSize < 1 {
		batchSize = 20
	}
	excerptLen := cfg.AbstractExcerpt
	if excerptLen < 1 {
		excerptLen = 500
	}
	return &InterestScorer{judge: judge, batchSize: batchSize, excerptLen: excerptLen}
}

// ScoreBatch returns an interest score in {0,1,2} for every paper. The only
// error it returns is run cancellation; everything the oracle does wrong is
// absorbed here as zeros.
func (s *InterestScorer) ScoreBatch(ctx context.Context, papers []core.Paper, interests []string) (map[string]int, error) {
	result := make(map[string]int, len(papers))
	if len(papers) == 0 {
		return result, nil
	}

	totalBatches := (len(papers) + s.batchSize - 1) / s.batchSize
	for start := 0; start < len(papers); start += s.batchSize {
		end := start + s.batchSize
		if end > len(papers) {
			end = len(papers)
		}
		batch := papers[start:end]
		batchNum := start/s.batchSize + 1

		logger.Info("Scoring interest batch",
			"batch", batchNum,
			"total_batches", totalBatches,
			"papers", len(batch))

		scores, err := s.scoreOneBatch(ctx, batch, interests)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logger.Error("Interest batch failed, papers keep score 0", err, "batch", batchNum)
		}
		for id, score := range scores {
			result[id] = score
		}
		for _, p := range batch {
			if _, ok := result[p.ArxivID]; !ok {
				result[p.ArxivID] = 0
			}
		}
	}

	return result, nil
}

func (s *InterestScorer) scoreOneBatch(ctx context.Context, batch []core.Paper, interests []string) (map[string]int, error) {
	prompt := s.buildPrompt(batch, interests)

	raw, err := s.judge.Judge(ctx, oracle.Request{Prompt: prompt, Schema: interestSchema})
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Scores []struct {
			ArxivID string      `json:"arxiv_id"`
			Score   json.Number `json:"score"`
		} `json:"scores"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse interest scores: %w", err)
	}

	inBatch := make(map[string]bool, len(batch))
	for _, p := range batch {
		inBatch[p.ArxivID] = true
	}

	scores := make(map[string]int, len(batch))
	for _, item := range parsed.Scores {
		if !inBatch[item.ArxivID] {
			logger.Warn("Oracle scored an unknown paper id, ignoring", "arxiv_id", item.ArxivID)
			continue
		}
		value, err := item.Score.Int64()
		if err != nil {
			logger.Warn("Non-integer interest score, paper keeps score 0",
				"arxiv_id", item.ArxivID, "raw", item.Score.String())
			continue
		}
		score := int(value)
		if score < 0 {
			score = 0
		}
		if score > 2 {
			score = 2
		}
		scores[item.ArxivID] = score
	}

	return scores, nil
}

// buildPrompt renders one batch into a single scoring prompt: the reader's
// interests, then a block per paper with its id, title and abstract excerpt.
func (s *InterestScorer) buildPrompt(batch []core.Paper, interests []string) string {
	lines := make([]string, len(interests))
	for i, interest := range interests {
		lines[i] = "- " + interest
	}
	interestsText := strings.Join(lines, "\n")

	var papersText strings.Builder
	for _, p := range batch {
		fmt.Fprintf(&papersText, "\n---\narxiv_id: %s\nTitle: %s\nAbstract: %s\n",
			p.ArxivID, p.Title, excerpt(p.Abstract, s.excerptLen))
	}

	return "You are an academic paper relevance scorer.\n\n" +
		"User research interests:\n" + interestsText + "\n\n" +
		"Papers to score:\n" + papersText.String() + "\n" +
		"For each paper, score how well it aligns with the user's research interests.\n" +
		"Score: 0 (no match), 1 (partial match), or 2 (strong match).\n" +
		"Return JSON with a 'scores' array containing objects with 'arxiv_id' and 'score' fields."
}

func excerpt(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	return text[:limit]
}
