package handlers

import (
	"fmt"
	"paperboy/internal/config"
	"paperboy/internal/profile"
	"strings"

	"github.com/spf13/cobra"
)

// NewProfileCmd creates the profile command for checking the preference profile
func NewProfileCmd() *cobra.Command {
	var profilePath string

	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Validate and show the preference profile",
		Long: `Load the preference profile, validate it, and show what the funnel
will use: weighted research areas with their keywords, free-text interests,
and avoidance criteria.

Examples:
  # Check the configured profile
  paperboy profile

  # Check a specific file
  paperboy profile --file ./profiles/alt.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProfile(profilePath)
		},
	}

	cmd.Flags().StringVarP(&profilePath, "file", "f", "", "Profile file to check (defaults to app.profile_path)")

	return cmd
}

func runProfile(path string) error {
	if path == "" {
		path = config.GetProfilePath()
	}

	prof, err := profile.Load(path)
	if err != nil {
		return err
	}

	fmt.Printf("✅ Profile OK: %s\n", path)

	fmt.Println("\n📚 Research areas (by weight)")
	for _, cat := range prof.Categories() {
		area := prof.ResearchAreas[cat]
		fmt.Printf("   %-12s %.2f  %s\n", cat, area.Weight, strings.Join(area.Keywords, ", "))
	}

	if len(prof.Interests) > 0 {
		fmt.Println("\n🔍 Interests")
		for _, interest := range prof.Interests {
			fmt.Printf("   • %s\n", interest)
		}
	}

	if len(prof.Avoid) > 0 {
		fmt.Println("\n🚫 Avoid")
		for _, item := range prof.Avoid {
			fmt.Printf("   • %s\n", item)
		}
	}

	fmt.Printf("\n💡 Oracle prompts will open with: %s\n", prof.Persona())
	return nil
}
