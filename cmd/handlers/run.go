package handlers

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"paperboy/internal/config"
	"paperboy/internal/core"
	"paperboy/internal/logger"
	"paperboy/internal/pipeline"
	"paperboy/internal/render"
	"paperboy/internal/store"
	"syscall"

	"github.com/spf13/cobra"
)

// NewRunCmd creates the run command that drives the full digest pipeline
func NewRunCmd() *cobra.Command {
	var (
		dryRun  bool
		noEmail bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the full digest pipeline",
		Long: `Run the complete funnel: fetch recent arXiv candidates, score them
against the preference profile, deep-review the shortlist, and select the
final papers.

On success the digest is written to the output directory as markdown, the
run is archived, its papers are marked as seen for later runs, and, when
email is configured, the digest is delivered to the configured recipient.

Examples:
  # Full daily run
  paperboy run

  # Exercise the funnel without writing, archiving, or delivering
  paperboy run --dry-run

  # Write and archive the digest but skip email delivery
  paperboy run --no-email`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(dryRun, noEmail)
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Run the funnel but leave no trace: no file, no archive, no email")
	cmd.Flags().BoolVar(&noEmail, "no-email", false, "Skip email delivery even when configured")

	return cmd
}

func runPipeline(dryRun bool, noEmail bool) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Cancel the run on Ctrl+C so in-flight oracle calls stop cleanly
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-shutdown
		fmt.Fprintln(os.Stderr, "\n🛑 Interrupted, stopping the run...")
		cancel()
	}()

	cfg := config.Get()

	archive, err := store.NewStore(cfg.App.DataDir)
	if err != nil {
		return fmt.Errorf("failed to open the archive: %w", err)
	}
	defer archive.Close()

	pipe, err := pipeline.NewBuilder(cfg).WithSeenFilter(archive).Build(ctx)
	if err != nil {
		return err
	}

	digest, err := pipe.Run(ctx)
	if err != nil {
		return err
	}

	printDigestSummary(digest)

	if dryRun {
		fmt.Println("💡 Dry run: digest not written, papers not marked seen, no delivery")
		return nil
	}

	path, err := render.RenderMarkdownDigest(digest, cfg.Output.Directory)
	if err != nil {
		return fmt.Errorf("failed to write the digest file: %w", err)
	}
	fmt.Printf("📝 Digest written to %s\n", path)

	if err := archiveDigest(archive, digest); err != nil {
		// The digest file already exists; losing the archive row only
		// costs dedup on the next run.
		logger.Error("Failed to archive the digest", err, "digest_id", digest.ID)
		fmt.Fprintf(os.Stderr, "⚠️  Digest not archived: %v\n", err)
	}

	if noEmail {
		return nil
	}
	if !config.EmailConfigured() {
		fmt.Println("💡 Email not configured, skipping delivery (set email.smtp.host, email.from_address, email.to_address)")
		return nil
	}
	return deliverDigest(ctx, digest)
}

// archiveDigest saves the digest and marks its papers as seen so later runs
// skip them. Only digest-included papers are marked: near-misses stay
// eligible for as long as the lookback window keeps surfacing them.
func archiveDigest(archive *store.Store, digest *core.Digest) error {
	if err := archive.SaveDigest(digest); err != nil {
		return err
	}

	ids := make([]string, 0, len(digest.Papers))
	for _, paper := range digest.Papers {
		ids = append(ids, paper.ArxivID)
	}
	return archive.MarkSeen(ids)
}

func printDigestSummary(digest *core.Digest) {
	fmt.Printf("✅ Digest %s: %d papers selected from %d candidates\n",
		digest.GeneratedAt.Format("2006-01-02"), digest.Stats.Selected, digest.Stats.Candidates)
	for i, paper := range digest.Papers {
		fmt.Printf("   %d. %s (%.1f/10)\n", i+1, paper.Title, paper.Score)
	}
	fmt.Println()
}
