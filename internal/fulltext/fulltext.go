// Package fulltext resolves full text for shortlisted papers.
//
// Lookup is two-layered: a local cache of previously extracted text, then
// the paper's HTML rendering on arxiv.org. Papers without an HTML version
// simply have no full text; the reviewer degrades to the abstract. Network
// downloads are paced to stay polite with the arXiv servers.
package fulltext

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"paperboy/internal/config"
	"paperboy/internal/logger"
)

var blankLines = regexp.MustCompile(`\n{3,}`)

// Provider serves full text from the cache directory or the HTML route.
type Provider struct {
	client    *http.Client
	baseURL   string
	cacheDir  string
	delay     time.Duration
	userAgent string
	didFetch  bool
}

// NewProvider creates a provider caching under <dataDir>/fulltext.
func NewProvider(cfg config.ArXiv, dataDir string) *Provider {
	baseURL := cfg.HTMLBaseURL
	if baseURL == "" {
		baseURL = "https://arxiv.org/html"
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = "paperboy/1.0"
	}

	return &Provider{
		client:    &http.Client{Timeout: 60 * time.Second},
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		cacheDir:  filepath.Join(dataDir, "fulltext"),
		delay:     cfg.FulltextDelayDuration(),
		userAgent: userAgent,
	}
}

// Text returns the paper's full text and whether any was found. Absence is
// never an error: the caller treats it as degraded input.
func (p *Provider) Text(ctx context.Context, arxivID string) (string, bool) {
	if text, ok := p.cached(arxivID); ok {
		logger.Debug("Full text cache hit", "arxiv_id", arxivID)
		return text, true
	}

	if !p.pace(ctx) {
		return "", false
	}

	text, err := p.download(ctx, arxivID)
	if err != nil {
		logger.Warn("Full text download failed", "arxiv_id", arxivID, "error", err)
		return "", false
	}
	if text == "" {
		logger.Warn("Full text extraction came back empty", "arxiv_id", arxivID)
		return "", false
	}

	p.store(arxivID, text)
	return text, true
}

func (p *Provider) cached(arxivID string) (string, bool) {
	data, err := os.ReadFile(p.cachePath(arxivID))
	if err != nil || len(data) == 0 {
		return "", false
	}
	return string(data), true
}

func (p *Provider) cachePath(arxivID string) string {
	// old-style ids like math/0309136 must not become subdirectories
	return filepath.Join(p.cacheDir, strings.ReplaceAll(arxivID, "/", "_")+".txt")
}

// pace waits the polite delay before every download after the first.
// It reports false when the run was cancelled while waiting.
func (p *Provider) pace(ctx context.Context) bool {
	if !p.didFetch || p.delay <= 0 {
		p.didFetch = true
		return ctx.Err() == nil
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(p.delay):
		return true
	}
}

func (p *Provider) download(ctx context.Context, arxivID string) (string, error) {
	url := p.baseURL + "/" + arxivID
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", p.userAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("html rendering returned %s", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to parse html: %w", err)
	}
	return extractText(doc), nil
}

func (p *Provider) store(arxivID string, text string) {
	if err := os.MkdirAll(p.cacheDir, 0o755); err != nil {
		logger.Warn("Could not create full-text cache directory", "error", err)
		return
	}
	if err := os.WriteFile(p.cachePath(arxivID), []byte(text), 0o644); err != nil {
		logger.Warn("Could not cache full text", "arxiv_id", arxivID, "error", err)
	}
}

// extractText pulls readable body text out of an arXiv HTML rendering,
// dropping scripts, navigation, math markup, and the bibliography.
func extractText(doc *goquery.Document) string {
	doc.Find("script, style, nav, header, footer, math, .ltx_bibliography, .ltx_authors, .ltx_page_footer").Remove()

	root := doc.Find("article").First()
	if root.Length() == 0 {
		root = doc.Find("body")
	}

	// LaTeXML wraps list and quote bodies in their own <p>, so matching
	// paragraphs and headings alone avoids double-counting nested text.
	var b strings.Builder
	root.Find("h1, h2, h3, h4, h5, h6, p, pre, figcaption").Each(func(_ int, sel *goquery.Selection) {
		text := strings.Join(strings.Fields(sel.Text()), " ")
		if text == "" {
			return
		}
		b.WriteString(text)
		b.WriteString("\n\n")
	})

	return strings.TrimSpace(blankLines.ReplaceAllString(b.String(), "\n\n"))
}
