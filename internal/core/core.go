package core

import "time"

// Paper represents one candidate paper pulled from arXiv.
type Paper struct {
	ArxivID    string          `json:"arxiv_id"`            // Bare arXiv identifier, version suffix stripped (e.g. "2501.01234")
	Title      string          `json:"title"`               // Paper title
	Authors    []string        `json:"authors"`             // Author names in listing order
	Abstract   string          `json:"abstract"`            // Abstract text
	Categories []string        `json:"categories"`          // Category tags; the first entry is the primary category
	Published  time.Time       `json:"published"`           // Publication timestamp from the feed
	URL        string          `json:"url"`                 // Abstract page URL
	FullText   string          `json:"-"`                   // Extracted full text, empty until the fetch stage fills it
	Score      *ScoreRecord    `json:"score,omitempty"`     // Attached by the scorer stage
	Analysis   *AnalysisRecord `json:"analysis,omitempty"`  // Attached by the reviewer stage
}

// PrimaryCategory returns the paper's first category tag, or "" when untagged.
func (p *Paper) PrimaryCategory() string {
	if len(p.Categories) == 0 {
		return ""
	}
	return p.Categories[0]
}

// HasFullText reports whether the fetch stage produced body text for the paper.
func (p *Paper) HasFullText() bool {
	return p.FullText != ""
}

// ScoreRecord holds the scorer-stage sub-scores for a paper. Every run
// recomputes it from scratch against the current preference profile.
type ScoreRecord struct {
	CategoryScore    float64 `json:"category_score"`    // Category overlap, 0-5
	KeywordScore     float64 `json:"keyword_score"`     // Keyword matches, 0-3
	InterestScore    int     `json:"interest_score"`    // Oracle interest alignment, 0-2
	NoveltyBonus     int     `json:"novelty_bonus"`     // 1 when novelty signal phrases co-occur, else 0
	AvoidancePenalty int     `json:"avoidance_penalty"` // Avoidance criteria hits, 0-3
	Total            float64 `json:"total"`             // category + keyword + interest + novelty - avoidance
	Reason           string  `json:"reason"`            // Short human-readable justification
}

// AnalysisRecord holds the reviewer-stage judgment for a shortlisted paper.
type AnalysisRecord struct {
	Summary    string  `json:"summary"`     // Multi-paragraph summary
	Relevance  string  `json:"relevance"`   // Paragraph tying the paper to the profile's interests
	KeyInsight string  `json:"key_insight"` // Two or three sentence takeaway
	Score      float64 `json:"score"`       // Refined 0-10 relevance score
	Degraded   bool    `json:"degraded"`    // Analysis ran on title+abstract only (no full text)
	Selected   bool    `json:"selected"`    // Chosen in the final diversity pass
}

// DigestEntry is one selected paper as it appears in the final digest.
type DigestEntry struct {
	ArxivID    string  `json:"arxiv_id"`    // Paper identifier
	Title      string  `json:"title"`       // Paper title
	URL        string  `json:"url"`         // Abstract page URL
	Authors    string  `json:"authors"`     // Comma-joined author names
	Summary    string  `json:"summary"`     // Analysis summary
	Relevance  string  `json:"relevance"`   // Why the paper matters to this profile
	KeyInsight string  `json:"key_insight"` // Short takeaway
	Score      float64 `json:"score"`       // Refined reviewer score
}

// RunStats carries per-stage item counts for diagnostics.
type RunStats struct {
	Candidates  int `json:"candidates"`  // Papers entering the funnel
	Scored      int `json:"scored"`      // Papers with a complete ScoreRecord
	Shortlisted int `json:"shortlisted"` // Papers surviving threshold + cap
	Analyzed    int `json:"analyzed"`    // Papers that reached ANALYZED in review
	Selected    int `json:"selected"`    // Papers in the final digest
}

// Digest is the single output of a successful pipeline run.
type Digest struct {
	ID          string        `json:"id"`           // Run identifier
	GeneratedAt time.Time     `json:"generated_at"` // Digest creation time (UTC)
	Summary     string        `json:"summary"`      // Short overview of the day's selection
	Papers      []DigestEntry `json:"papers"`       // Selected papers in oracle-given order
	Stats       RunStats      `json:"stats"`        // Per-stage diagnostic counts
}
