package profile

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
)

// Area describes how much one arXiv category matters and which keywords
// signal relevance inside it.
type Area struct {
	Weight   float64  `json:"weight"`   // Relevance weight in [0,1]
	Keywords []string `json:"keywords"` // Keywords scored against title and abstract
}

// Profile is the user's preference profile. It is loaded once per run and
// shared read-only by every funnel stage.
type Profile struct {
	ResearchAreas map[string]Area `json:"research_areas"` // Category tag -> area
	Interests     []string        `json:"interests"`      // Free-text interest statements
	Avoid         []string        `json:"avoid"`          // Free-text avoidance criteria
}

// Load reads and validates a preference profile from a JSON file. Any
// failure here is a pipeline-level failure: no stage may run against a
// missing or fabricated profile.
func Load(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read preference profile %s: %w", path, err)
	}

	var p Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse preference profile %s: %w", path, err)
	}

	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid preference profile %s: %w", path, err)
	}
	return &p, nil
}

// Validate checks the profile for the properties every stage depends on.
func (p *Profile) Validate() error {
	if len(p.ResearchAreas) == 0 {
		return fmt.Errorf("profile has no research_areas")
	}
	for cat, area := range p.ResearchAreas {
		if strings.TrimSpace(cat) == "" {
			return fmt.Errorf("profile has a research area with an empty category tag")
		}
		if area.Weight < 0 || area.Weight > 1 {
			return fmt.Errorf("research area %s has weight %v outside [0,1]", cat, area.Weight)
		}
	}
	return nil
}

// Categories returns the profile's category tags sorted by weight descending,
// ties broken alphabetically so the order is stable across runs.
func (p *Profile) Categories() []string {
	cats := make([]string, 0, len(p.ResearchAreas))
	for cat := range p.ResearchAreas {
		cats = append(cats, cat)
	}
	sort.Slice(cats, func(i, j int) bool {
		wi, wj := p.ResearchAreas[cats[i]].Weight, p.ResearchAreas[cats[j]].Weight
		if wi != wj {
			return wi > wj
		}
		return cats[i] < cats[j]
	})
	return cats
}

// KeywordsFor returns the deduplicated keywords of the areas the given
// category tags belong to, in tag order. Categories missing from the
// profile contribute nothing.
func (p *Profile) KeywordsFor(categories []string) []string {
	seen := make(map[string]bool)
	var keywords []string
	for _, cat := range categories {
		area, ok := p.ResearchAreas[cat]
		if !ok {
			continue
		}
		for _, kw := range area.Keywords {
			key := strings.ToLower(strings.TrimSpace(kw))
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			keywords = append(keywords, kw)
		}
	}
	return keywords
}

// Persona derives the researcher persona line used in every oracle prompt,
// combining the weighted categories with the free-text interests.
func (p *Profile) Persona() string {
	cats := p.Categories()
	base := "You are an expert researcher"

	switch {
	case len(cats) > 0 && len(p.Interests) > 0:
		return fmt.Sprintf("%s working in %s whose research focuses on: %s.",
			base, strings.Join(cats, ", "), strings.Join(p.Interests, "; "))
	case len(cats) > 0:
		return fmt.Sprintf("%s working in %s.", base, strings.Join(cats, ", "))
	case len(p.Interests) > 0:
		return fmt.Sprintf("%s whose research focuses on: %s.", base, strings.Join(p.Interests, "; "))
	default:
		return base + "."
	}
}

// InterestList renders the interests as a numbered block for prompts.
func (p *Profile) InterestList() string {
	if len(p.Interests) == 0 {
		return "(no stated interests)"
	}
	var b strings.Builder
	for i, interest := range p.Interests {
		fmt.Fprintf(&b, "%d. %s\n", i+1, interest)
	}
	return strings.TrimRight(b.String(), "\n")
}
