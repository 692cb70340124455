package cmd

import (
	"github.com/spf13/cobra"
)

// TalksCmd returns the `tdome talks` command group.
func TalksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "talks",
		Short: "Inspect talks",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "ungrouped",
		Short: "List talks that are not in any group",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			return withLoaded(func(s *session) error {
				printTalks(c.OutOrStdout(), s.sync.Store().Ungrouped(), "no ungrouped talks")
				return nil
			})
		},
	})
	return cmd
}
