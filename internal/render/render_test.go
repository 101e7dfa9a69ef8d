package render

import (
	"os"
	"paperboy/internal/core"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func sampleDigest() *core.Digest {
	return &core.Digest{
		ID:          "run-1",
		GeneratedAt: time.Date(2026, 2, 3, 14, 0, 0, 0, time.UTC),
		Summary:     "Today's highlights: positional encodings and grokking.",
		Papers: []core.DigestEntry{
			{
				ArxivID:    "2502.00001",
				Title:      "Length Generalization in Transformers",
				URL:        "https://arxiv.org/abs/2502.00001",
				Authors:    "A. Author, B. Author",
				Summary:    "Para one.\n\nPara two.",
				Relevance:  "Directly about positional encodings.",
				KeyInsight: "Scratchpad format matters more than architecture.",
				Score:      8.5,
			},
			{
				ArxivID:    "2502.00002",
				Title:      "Grokking Beyond Algorithmic Tasks",
				URL:        "https://arxiv.org/abs/2502.00002",
				Authors:    "C. Author",
				Summary:    "One paragraph.",
				Relevance:  "Matches the grokking interest.",
				KeyInsight: "Delayed generalization appears in NLP tasks too.",
				Score:      7.9,
			},
		},
		Stats: core.RunStats{Candidates: 132, Scored: 132, Shortlisted: 28, Analyzed: 26, Selected: 2},
	}
}

func TestRenderMarkdownDigest(t *testing.T) {
	tmpDir := t.TempDir()

	filePath, err := RenderMarkdownDigest(sampleDigest(), tmpDir)
	if err != nil {
		t.Fatalf("RenderMarkdownDigest failed: %v", err)
	}

	wantPath := filepath.Join(tmpDir, "digest_2026-02-03.md")
	if filePath != wantPath {
		t.Errorf("Expected path %s, got %s", wantPath, filePath)
	}

	content, err := os.ReadFile(filePath)
	if err != nil {
		t.Fatalf("Failed to read digest file: %v", err)
	}

	contentStr := string(content)
	for _, want := range []string{
		"# arXiv Digest - 2026-02-03",
		"Today's highlights: positional encodings and grokking.",
		"### 1. Length Generalization in Transformers",
		"[2502.00001](https://arxiv.org/abs/2502.00001)",
		"A. Author, B. Author",
		"relevance 8.5/10",
		"Para one.\n\nPara two.",
		"**Why it matters:** Directly about positional encodings.",
		"**Key insight:** Scratchpad format matters more than architecture.",
		"### 2. Grokking Beyond Algorithmic Tasks",
		"*132 candidates, 132 scored, 28 shortlisted, 26 analyzed, 2 selected.*",
	} {
		if !strings.Contains(contentStr, want) {
			t.Errorf("Digest content missing %q", want)
		}
	}
}

func TestRenderMarkdownDigest_CreatesOutputDir(t *testing.T) {
	tmpDir := t.TempDir()
	outputDir := filepath.Join(tmpDir, "out", "digests")

	filePath, err := RenderMarkdownDigest(sampleDigest(), outputDir)
	if err != nil {
		t.Fatalf("RenderMarkdownDigest failed: %v", err)
	}

	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		t.Error("Digest file should be created in the new directory")
	}
}

func TestMarkdown_NoPapers(t *testing.T) {
	digest := &core.Digest{
		ID:          "run-2",
		GeneratedAt: time.Date(2026, 2, 3, 14, 0, 0, 0, time.UTC),
	}

	content := Markdown(digest)
	if !strings.Contains(content, "No papers selected") {
		t.Error("Content should note that no papers were selected")
	}
	if strings.Contains(content, "###") {
		t.Error("Content should have no paper sections")
	}
}

func TestMarkdown_SkipsEmptyOptionalFields(t *testing.T) {
	digest := sampleDigest()
	digest.Papers = digest.Papers[:1]
	digest.Papers[0].Authors = ""
	digest.Papers[0].Relevance = ""
	digest.Papers[0].KeyInsight = ""

	content := Markdown(digest)
	if strings.Contains(content, "**Why it matters:**") {
		t.Error("Relevance line should be omitted when empty")
	}
	if strings.Contains(content, "**Key insight:**") {
		t.Error("Key insight line should be omitted when empty")
	}
	if !strings.Contains(content, "[2502.00001](https://arxiv.org/abs/2502.00001) · relevance 8.5/10") {
		t.Error("Link line should collapse when authors are empty")
	}
}
