package handlers

import (
	"context"
	"fmt"
	"paperboy/internal/config"
	"paperboy/internal/core"
	"paperboy/internal/email"
	"paperboy/internal/render"
	"paperboy/internal/store"
	"strings"

	"github.com/spf13/cobra"
)

// NewDeliverCmd creates the deliver command for re-sending archived digests
func NewDeliverCmd() *cobra.Command {
	var digestID string

	cmd := &cobra.Command{
		Use:   "deliver",
		Short: "Email an archived digest",
		Long: `Deliver an archived digest by email without re-running the pipeline.

By default the most recent digest is delivered. Pass --digest to deliver a
specific run; a unique id prefix is enough.

Examples:
  # Re-send the latest digest
  paperboy deliver

  # Deliver a specific archived digest
  paperboy deliver --digest 3f2a`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeliver(digestID)
		},
	}

	cmd.Flags().StringVarP(&digestID, "digest", "d", "", "Digest id or unique id prefix (defaults to the most recent)")

	return cmd
}

func runDeliver(digestID string) error {
	if !config.EmailConfigured() {
		return fmt.Errorf("email is not configured: set email.smtp.host, email.from_address, email.to_address")
	}

	archive, err := store.NewStore(config.GetDataDir())
	if err != nil {
		return fmt.Errorf("failed to open the archive: %w", err)
	}
	defer archive.Close()

	if digestID == "" {
		rows, err := archive.ListDigests(1)
		if err != nil {
			return fmt.Errorf("failed to list digests: %w", err)
		}
		if len(rows) == 0 {
			return fmt.Errorf("the archive is empty; run 'paperboy run' first")
		}
		digestID = rows[0].ID
	}

	digest, err := findDigest(archive, digestID)
	if err != nil {
		return err
	}
	if digest == nil {
		return fmt.Errorf("no archived digest matches %q", digestID)
	}

	return deliverDigest(context.Background(), digest)
}

// findDigest resolves an exact digest id or a unique id prefix.
func findDigest(archive *store.Store, id string) (*core.Digest, error) {
	digest, err := archive.GetDigest(id)
	if err != nil || digest != nil {
		return digest, err
	}

	rows, err := archive.ListDigests(0)
	if err != nil {
		return nil, err
	}

	var match string
	for _, row := range rows {
		if !strings.HasPrefix(row.ID, id) {
			continue
		}
		if match != "" {
			return nil, fmt.Errorf("digest id prefix %q is ambiguous", id)
		}
		match = row.ID
	}
	if match == "" {
		return nil, nil
	}
	return archive.GetDigest(match)
}

// deliverDigest renders both email bodies and sends the digest to the
// configured recipient. The markdown rendering doubles as the plain-text part.
func deliverDigest(ctx context.Context, digest *core.Digest) error {
	htmlBody, err := email.RenderHTMLEmail(digest)
	if err != nil {
		return fmt.Errorf("failed to render the email: %w", err)
	}

	emailCfg := config.GetEmail()
	if err := email.Send(ctx, emailCfg, email.Subject(digest), htmlBody, render.Markdown(digest)); err != nil {
		return err
	}

	fmt.Printf("📧 Digest delivered to %s\n", emailCfg.ToAddress)
	return nil
}
