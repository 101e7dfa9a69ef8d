package pipeline

import (
	"context"
	"fmt"

	"paperboy/internal/arxiv"
	"paperboy/internal/config"
	"paperboy/internal/fulltext"
	"paperboy/internal/oracle"
	"paperboy/internal/profile"
	"paperboy/internal/review"
	"paperboy/internal/scorer"
)

// Builder constructs a fully wired Pipeline from configuration.
type Builder struct {
	cfg  *config.Config
	prof *profile.Profile
	seen arxiv.SeenFilter
}

// NewBuilder creates a pipeline builder over the given configuration.
func NewBuilder(cfg *config.Config) *Builder {
	return &Builder{cfg: cfg}
}

// WithProfile supplies an already loaded preference profile. Without it,
// Build loads the profile from the configured path.
func (b *Builder) WithProfile(p *profile.Profile) *Builder {
	b.prof = p
	return b
}

// WithSeenFilter lets the candidate source drop papers that earlier runs
// already digested. Without it every recent paper is a candidate.
func (b *Builder) WithSeenFilter(f arxiv.SeenFilter) *Builder {
	b.seen = f
	return b
}

// Build assembles the funnel stages. The scorer and reviewer get separate
// oracle judges so each can run its configured model.
func (b *Builder) Build(ctx context.Context) (*Pipeline, error) {
	prof := b.prof
	if prof == nil {
		loaded, err := profile.Load(b.cfg.App.ProfilePath)
		if err != nil {
			return nil, err
		}
		prof = loaded
	}

	scorerJudge, err := oracle.New(ctx, b.cfg.Oracle, oracle.RoleScorer)
	if err != nil {
		return nil, fmt.Errorf("failed to build scorer oracle: %w", err)
	}
	reviewJudge, err := oracle.New(ctx, b.cfg.Oracle, oracle.RoleReviewer)
	if err != nil {
		return nil, fmt.Errorf("failed to build reviewer oracle: %w", err)
	}

	source := arxiv.NewSource(b.cfg.ArXiv, b.seen)
	provider := fulltext.NewProvider(b.cfg.ArXiv, b.cfg.App.DataDir)

	return New(
		source,
		scorer.NewFunnel(scorerJudge, prof, b.cfg.Scoring),
		provider,
		review.NewReviewer(reviewJudge, prof, b.cfg.Review),
		prof,
		b.cfg.Scoring,
	), nil
}
