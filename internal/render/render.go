package render

import (
	"fmt"
	"os"
	"paperboy/internal/core"
	"path/filepath"
	"strings"
)

// RenderMarkdownDigest writes the digest as a markdown file named after the
// digest's generation date under outputDir and returns the file path.
func RenderMarkdownDigest(digest *core.Digest, outputDir string) (string, error) {
	if outputDir == "" {
		outputDir = "digests"
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory %s: %w", outputDir, err)
	}

	dateStr := digest.GeneratedAt.Format("2006-01-02")
	filePath := filepath.Join(outputDir, fmt.Sprintf("digest_%s.md", dateStr))

	if err := os.WriteFile(filePath, []byte(Markdown(digest)), 0644); err != nil {
		return "", fmt.Errorf("failed to write digest file %s: %w", filePath, err)
	}

	return filePath, nil
}

// Markdown renders the digest body. The same text serves as the file
// content and as the plain-text part of the email delivery.
func Markdown(digest *core.Digest) string {
	var b strings.Builder

	dateStr := digest.GeneratedAt.Format("2006-01-02")
	b.WriteString(fmt.Sprintf("# arXiv Digest - %s\n\n", dateStr))

	if digest.Summary != "" {
		b.WriteString(digest.Summary + "\n\n")
	}

	if len(digest.Papers) == 0 {
		b.WriteString("No papers selected for this digest.\n")
		return b.String()
	}

	for i, paper := range digest.Papers {
		b.WriteString(fmt.Sprintf("### %d. %s\n\n", i+1, paper.Title))

		b.WriteString(fmt.Sprintf("[%s](%s)", paper.ArxivID, paper.URL))
		if paper.Authors != "" {
			b.WriteString(" · " + paper.Authors)
		}
		b.WriteString(fmt.Sprintf(" · relevance %.1f/10\n\n", paper.Score))

		b.WriteString(paper.Summary + "\n\n")
		if paper.Relevance != "" {
			b.WriteString(fmt.Sprintf("**Why it matters:** %s\n\n", paper.Relevance))
		}
		if paper.KeyInsight != "" {
			b.WriteString(fmt.Sprintf("**Key insight:** %s\n\n", paper.KeyInsight))
		}

		b.WriteString("---\n\n")
	}

	stats := digest.Stats
	b.WriteString(fmt.Sprintf("*%d candidates, %d scored, %d shortlisted, %d analyzed, %d selected.*\n",
		stats.Candidates, stats.Scored, stats.Shortlisted, stats.Analyzed, stats.Selected))

	return b.String()
}
