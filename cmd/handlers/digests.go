package handlers

import (
	"fmt"
	"os"
	"paperboy/internal/config"
	"paperboy/internal/render"
	"paperboy/internal/store"

	"github.com/spf13/cobra"
)

// NewDigestsCmd creates the digests command group for inspecting the archive
func NewDigestsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "digests",
		Short: "Inspect archived digests",
		Long:  `List and print the digests archived by earlier runs.`,
	}

	cmd.AddCommand(newDigestsListCmd())
	cmd.AddCommand(newDigestsShowCmd())

	return cmd
}

func newDigestsListCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List archived digests",
		Long: `List archived digests, newest first.

Examples:
  # List the last 10 digests
  paperboy digests list

  # List the last 30
  paperboy digests list --limit 30`,
		Run: func(cmd *cobra.Command, args []string) {
			digestsListRun(limit)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "l", 10, "Maximum number of digests to list")

	return cmd
}

func digestsListRun(limit int) {
	archive := openArchive()
	defer archive.Close()

	rows, err := archive.ListDigests(limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Failed to list digests: %v\n", err)
		os.Exit(1)
	}

	if len(rows) == 0 {
		fmt.Println("No digests in the archive yet")
		fmt.Println("💡 Run 'paperboy run' to generate your first digest")
		return
	}

	fmt.Printf("\n🗞️  Archived digests (%s)\n", archive.Path())
	fmt.Println("═══════════════════════════════════════════════════════════════════")
	fmt.Printf("%-10s  %-12s  %-8s  %s\n", "ID", "Date", "Papers", "Summary")
	fmt.Println("───────────────────────────────────────────────────────────────────")
	for _, row := range rows {
		summary := row.Summary
		if len(summary) > 32 {
			summary = summary[:29] + "..."
		}
		fmt.Printf("%-10s  %-12s  %3d/%-4d  %s\n",
			row.ID[:8], row.GeneratedAt.Format("Jan 02, 2006"),
			row.SelectedCount, row.TotalReviewed, summary)
	}
	fmt.Println("═══════════════════════════════════════════════════════════════════")
	fmt.Printf("\n💡 Use 'paperboy digests show <id>' to print a digest\n")
}

func newDigestsShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Print an archived digest as markdown",
		Long: `Print one archived digest to stdout in the same markdown the run
command writes. A unique id prefix is enough.

Examples:
  # Show a digest by id prefix
  paperboy digests show 3f2a`,
		Args: cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			digestsShowRun(args[0])
		},
	}

	return cmd
}

func digestsShowRun(id string) {
	archive := openArchive()
	defer archive.Close()

	digest, err := findDigest(archive, id)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Failed to look up digest: %v\n", err)
		os.Exit(1)
	}
	if digest == nil {
		fmt.Fprintf(os.Stderr, "❌ No archived digest matches %q\n", id)
		fmt.Fprintf(os.Stderr, "💡 Use 'paperboy digests list' to see what is archived\n")
		os.Exit(1)
	}

	fmt.Print(render.Markdown(digest))
}

func openArchive() *store.Store {
	archive, err := store.NewStore(config.GetDataDir())
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Failed to open the archive: %v\n", err)
		os.Exit(1)
	}
	return archive
}
