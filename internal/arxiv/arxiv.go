// Package arxiv fetches candidate papers from the arXiv Atom API.
//
// One paged search per run covers all profile categories, sorted by
// submission date descending. Paging stops at the lookback cutoff, the
// configured result cap, or the first short page. The API asks for at
// most one request every three seconds, so pages are fetched politely.
package arxiv

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"paperboy/internal/config"
	"paperboy/internal/core"
	"paperboy/internal/logger"
)

const pageRetries = 3

var versionSuffix = regexp.MustCompile(`v\d+$`)

// SeenFilter drops papers that earlier runs already recorded.
type SeenFilter interface {
	// FilterUnseen returns the subset of ids with no archive record.
	FilterUnseen(ids []string) ([]string, error)
}

// Source queries the arXiv Atom API for recent submissions.
type Source struct {
	client       *http.Client
	cfg          config.ArXiv
	seen         SeenFilter
	pageDelay    time.Duration
	retryBackoff time.Duration
}

// NewSource creates a candidate source. A nil seen filter keeps every
// recent paper.
func NewSource(cfg config.ArXiv, seen SeenFilter) *Source {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://export.arxiv.org/api/query"
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 500
	}
	if cfg.LookbackDays <= 0 {
		cfg.LookbackDays = 2
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "paperboy/1.0"
	}

	return &Source{
		client:       &http.Client{Timeout: 30 * time.Second},
		cfg:          cfg,
		seen:         seen,
		pageDelay:    cfg.PageDelayDuration(),
		retryBackoff: 2 * time.Second,
	}
}

// Fetch returns recent papers across the given categories, newest first,
// deduplicated within the response and against the seen archive.
func (s *Source) Fetch(ctx context.Context, categories []string) ([]core.Paper, error) {
	if len(categories) == 0 {
		return nil, fmt.Errorf("no categories to query")
	}

	query := buildQuery(categories)
	cutoff := time.Now().UTC().AddDate(0, 0, -s.cfg.LookbackDays)
	logger.Info("Fetching arXiv candidates",
		"query", query,
		"cutoff", cutoff.Format("2006-01-02"),
		"page_size", s.cfg.PageSize)

	papers := make([]core.Paper, 0, s.cfg.PageSize)
	inRun := make(map[string]struct{})
	pages := 0
	reachedCutoff := false

	for start := 0; !reachedCutoff && len(papers) < s.cfg.MaxResults; start += s.cfg.PageSize {
		if start > 0 && s.pageDelay > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(s.pageDelay):
			}
		}

		feed, err := s.fetchPage(ctx, query, start)
		if err != nil {
			return nil, err
		}
		pages++

		for _, entry := range feed.Entries {
			paper, err := entryToPaper(entry)
			if err != nil {
				logger.Warn("Skipping unparseable feed entry", "error", err)
				continue
			}
			if paper.Published.Before(cutoff) {
				reachedCutoff = true
				break
			}
			if _, dup := inRun[paper.ArxivID]; dup {
				continue
			}
			inRun[paper.ArxivID] = struct{}{}
			papers = append(papers, paper)
			if len(papers) >= s.cfg.MaxResults {
				break
			}
		}

		if len(feed.Entries) < s.cfg.PageSize {
			break
		}
	}

	fetched := len(papers)
	papers = s.dropSeen(papers)

	logger.Info("arXiv fetch complete",
		"pages", pages,
		"fetched", fetched,
		"dropped_seen", fetched-len(papers),
		"candidates", len(papers))
	return papers, nil
}

// fetchPage retrieves one result page, retrying transient failures.
func (s *Source) fetchPage(ctx context.Context, query string, start int) (*atomFeed, error) {
	backoff := s.retryBackoff
	var lastErr error

	for attempt := 1; attempt <= pageRetries; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		feed, err := s.doFetch(ctx, query, start)
		if err == nil {
			return feed, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, lastErr
		}
		logger.Warn("arXiv page fetch failed",
			"start", start,
			"attempt", attempt,
			"max_attempts", pageRetries,
			"error", err)
	}

	return nil, fmt.Errorf("arxiv query failed after %d attempts: %w", pageRetries, lastErr)
}

func (s *Source) doFetch(ctx context.Context, query string, start int) (*atomFeed, error) {
	params := url.Values{}
	params.Set("search_query", query)
	params.Set("start", strconv.Itoa(start))
	params.Set("max_results", strconv.Itoa(s.cfg.PageSize))
	params.Set("sortBy", "submittedDate")
	params.Set("sortOrder", "descending")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.BaseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build arxiv request: %w", err)
	}
	req.Header.Set("User-Agent", s.cfg.UserAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("arxiv request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("arxiv returned %s", resp.Status)
	}

	var feed atomFeed
	if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, fmt.Errorf("failed to parse atom feed: %w", err)
	}
	return &feed, nil
}

func (s *Source) dropSeen(papers []core.Paper) []core.Paper {
	if s.seen == nil || len(papers) == 0 {
		return papers
	}

	ids := make([]string, len(papers))
	for i, p := range papers {
		ids[i] = p.ArxivID
	}

	unseen, err := s.seen.FilterUnseen(ids)
	if err != nil {
		logger.Warn("Seen-paper filter failed, keeping all candidates", "error", err)
		return papers
	}

	keep := make(map[string]struct{}, len(unseen))
	for _, id := range unseen {
		keep[id] = struct{}{}
	}

	fresh := make([]core.Paper, 0, len(unseen))
	for _, p := range papers {
		if _, ok := keep[p.ArxivID]; ok {
			fresh = append(fresh, p)
		}
	}
	return fresh
}

func buildQuery(categories []string) string {
	parts := make([]string, len(categories))
	for i, c := range categories {
		parts[i] = "cat:" + c
	}
	return strings.Join(parts, " OR ")
}

type atomFeed struct {
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	ID         string         `xml:"id"`
	Title      string         `xml:"title"`
	Summary    string         `xml:"summary"`
	Published  string         `xml:"published"`
	Authors    []atomAuthor   `xml:"author"`
	Categories []atomCategory `xml:"category"`
	Primary    atomCategory   `xml:"http://arxiv.org/schemas/atom primary_category"`
}

type atomAuthor struct {
	Name string `xml:"name"`
}

type atomCategory struct {
	Term string `xml:"term,attr"`
}

// entryToPaper converts one Atom entry. The id keeps its bare form with
// any version suffix stripped; categories come out primary first.
func entryToPaper(e atomEntry) (core.Paper, error) {
	idx := strings.LastIndex(e.ID, "/abs/")
	if idx < 0 {
		return core.Paper{}, fmt.Errorf("entry id %q carries no arxiv id", e.ID)
	}
	id := versionSuffix.ReplaceAllString(e.ID[idx+len("/abs/"):], "")
	if id == "" {
		return core.Paper{}, fmt.Errorf("entry id %q carries no arxiv id", e.ID)
	}

	published, err := time.Parse(time.RFC3339, e.Published)
	if err != nil {
		return core.Paper{}, fmt.Errorf("entry %s has a malformed published date: %w", id, err)
	}

	categories := make([]string, 0, len(e.Categories)+1)
	if e.Primary.Term != "" {
		categories = append(categories, e.Primary.Term)
	}
	for _, c := range e.Categories {
		if c.Term == "" || c.Term == e.Primary.Term {
			continue
		}
		categories = append(categories, c.Term)
	}

	authors := make([]string, 0, len(e.Authors))
	for _, a := range e.Authors {
		if name := strings.TrimSpace(a.Name); name != "" {
			authors = append(authors, name)
		}
	}

	return core.Paper{
		ArxivID:    id,
		Title:      collapseWhitespace(e.Title),
		Authors:    authors,
		Abstract:   collapseWhitespace(e.Summary),
		Categories: categories,
		Published:  published.UTC(),
		URL:        "https://arxiv.org/abs/" + id,
	}, nil
}

// collapseWhitespace folds the feed's hard-wrapped text onto one line.
func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
