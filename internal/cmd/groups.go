package cmd

import (
	"fmt"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/gravitrone/tdome/internal/api"
	"github.com/gravitrone/tdome/internal/store"
)

// GroupsCmd returns the `tdome groups` command group.
func GroupsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "groups",
		Short: "Manage thunderdome groups",
	}
	cmd.AddCommand(groupsListCmd())
	cmd.AddCommand(groupsCreateCmd())
	cmd.AddCommand(groupsRenameCmd())
	cmd.AddCommand(groupsAddCmd())
	cmd.AddCommand(groupsDeleteCmd())
	cmd.AddCommand(groupsTalksCmd())
	return cmd
}

// withLoaded opens a session, loads the server state and runs fn.
func withLoaded(fn func(s *session) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	s, err := newSession(cfg)
	if err != nil {
		return err
	}
	defer s.close()

	ctx, cancel := s.context()
	defer cancel()
	if err := s.sync.Load(ctx); err != nil {
		return err
	}
	return fn(s)
}

func groupsListCmd() *cobra.Command {
	var decided, undecided bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List groups",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			if decided && undecided {
				return errors.New("--decided and --undecided are mutually exclusive")
			}
			return withLoaded(func(s *session) error {
				groups := s.sync.Store().Groups()
				switch {
				case decided:
					groups = lo.Filter(groups, func(g store.Group, _ int) bool { return isDecided(g) })
				case undecided:
					groups = lo.Filter(groups, func(g store.Group, _ int) bool { return !isDecided(g) })
				}
				printGroups(c.OutOrStdout(), groups)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&decided, "decided", false, "only groups with a decision")
	cmd.Flags().BoolVar(&undecided, "undecided", false, "only groups without a decision")
	return cmd
}

func groupsCreateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create <name> [talk-id...]",
		Short: "Create a group, optionally moving talks into it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return withLoaded(func(s *session) error {
				talks, err := s.talks(args[1:])
				if err != nil {
					return err
				}
				key, task := s.sync.CreateGroup(args[0], talks)
				if err := s.runTask(task); err != nil {
					return err
				}
				g, _ := s.sync.Store().Group(key)
				fmt.Fprintf(c.OutOrStdout(), "created group %d: %s (%d talks)\n", g.Number, g.Name, g.Size)
				return nil
			})
		},
	}
}

func groupsRenameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rename <number> <name>",
		Short: "Rename a group",
		Args:  cobra.ExactArgs(2),
		RunE: func(c *cobra.Command, args []string) error {
			return withLoaded(func(s *session) error {
				g, err := s.group(args[0])
				if err != nil {
					return err
				}
				task, err := s.sync.RenameGroup(g.Key, args[1])
				if err != nil {
					return err
				}
				if err := s.runTask(task); err != nil {
					return err
				}
				fmt.Fprintf(c.OutOrStdout(), "renamed group %d: %s -> %s\n", g.Number, g.Name, args[1])
				return nil
			})
		},
	}
}

func groupsAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <number> <talk-id>...",
		Short: "Move talks into a group",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(c *cobra.Command, args []string) error {
			return withLoaded(func(s *session) error {
				g, err := s.group(args[0])
				if err != nil {
					return err
				}
				talks, err := s.talks(args[1:])
				if err != nil {
					return err
				}
				task, err := s.sync.AddTalks(g.Key, talks)
				if err != nil {
					return err
				}
				if err := s.runTask(task); err != nil {
					return err
				}
				fmt.Fprintf(c.OutOrStdout(), "added %d talks to group %d\n", len(talks), g.Number)
				return nil
			})
		},
	}
}

func groupsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <number>",
		Short: "Delete a group, returning its talks to the ungrouped list",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return withLoaded(func(s *session) error {
				g, err := s.group(args[0])
				if err != nil {
					return err
				}
				task, err := s.sync.RemoveGroup(g.Key)
				if err != nil {
					return err
				}
				if err := s.runTask(task); err != nil {
					return err
				}
				fmt.Fprintf(c.OutOrStdout(), "deleted group %d: %s\n", g.Number, g.Name)
				return nil
			})
		},
	}
}

func groupsTalksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "talks <number>",
		Short: "List the talks in a group",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return withLoaded(func(s *session) error {
				g, err := s.group(args[0])
				if err != nil {
					return err
				}
				printTalks(c.OutOrStdout(), s.sync.Store().GroupTalks(g.Key), "group has no talks")
				return nil
			})
		},
	}
}

func isDecided(g store.Group) bool {
	return g.Decided != nil && *g.Decided
}

func printGroups(w io.Writer, groups []store.Group) {
	if len(groups) == 0 {
		fmt.Fprintln(w, "no groups found")
		return
	}
	for _, g := range groups {
		mark := " "
		if isDecided(g) {
			mark = "✓"
		}
		fmt.Fprintf(w, "  %s %4d  %-40s %3d talks\n", mark, g.Number, g.Name, g.Size)
	}
}

func printTalks(w io.Writer, talks []api.Talk, empty string) {
	if len(talks) == 0 {
		fmt.Fprintln(w, empty)
		return
	}
	for _, t := range talks {
		fmt.Fprintf(w, "  %5d  %s\n", t.ID, t.Title)
	}
}
