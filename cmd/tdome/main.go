package main

import (
	"fmt"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/gravitrone/tdome/internal/cmd"
	"github.com/gravitrone/tdome/internal/config"
	"github.com/gravitrone/tdome/internal/logging"
)

func main() {
	if err := newRoot().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		if hint := errors.FlattenHints(err); hint != "" {
			fmt.Fprintf(os.Stderr, "hint: %s\n", hint)
		}
		os.Exit(1)
	}
}

func newRoot() *cobra.Command {
	root := &cobra.Command{
		Use:   "tdome",
		Short: "tdome - thunderdome group organizer",
		Long:  "tdome: sort conference talk proposals into thunderdome groups for review.",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runTUI()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(cmd.LoginCmd())
	root.AddCommand(cmd.GroupsCmd())
	root.AddCommand(cmd.TalksCmd())
	root.AddCommand(cmd.DemoCmd())
	return root
}

func init() {
	// Force truecolor so hex colors render correctly
	// Must be set before any lipgloss style initialization
	os.Setenv("COLORTERM", "truecolor")
}

func runTUI() error {
	cfg, err := config.Load()
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return err
		}
		if !isInteractiveTerminal(os.Stdin) || !isInteractiveTerminal(os.Stdout) {
			fmt.Println("not logged in. run 'tdome login' first.")
			return err
		}
		cfg = config.Default()
	}

	log, err := logging.New(logging.Options{Path: cfg.LogPath(), Level: cfg.LogLevel})
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	return cmd.RunTUI(cfg, cfg.Client(), log)
}

func isInteractiveTerminal(file *os.File) bool {
	if file == nil {
		return false
	}
	info, err := file.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
