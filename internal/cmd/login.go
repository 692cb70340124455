package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/gravitrone/tdome/internal/config"
)

// RunInteractiveLogin prompts for the server and credentials, checks that
// the server answers, and saves the config.
func RunInteractiveLogin(in io.Reader, out io.Writer) error {
	reader := bufio.NewReader(in)

	cfg, err := config.Load()
	if err != nil {
		cfg = config.Default()
	}

	prompt := func(label, current string) string {
		if current != "" {
			fmt.Fprintf(out, "%s [%s]: ", label, current)
		} else {
			fmt.Fprintf(out, "%s: ", label)
		}
		line, _ := reader.ReadString('\n')
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
		return current
	}

	cfg.BaseURL = prompt("server", cfg.BaseURL)
	cfg.Username = prompt("username (blank for none)", cfg.Username)
	cfg.Password = ""
	if cfg.Username != "" {
		cfg.Password = prompt("password", "")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout())
	defer cancel()
	if _, err := cfg.Client().ListGroups(ctx); err != nil {
		err = errors.Wrapf(err, "cannot reach %s", cfg.BaseURL)
		return errors.WithHint(err, "check the server address and that the server is running")
	}

	if err := cfg.Save(); err != nil {
		return errors.Wrap(err, "save config")
	}

	fmt.Fprintf(out, "connected to %s\n", cfg.BaseURL)
	fmt.Fprintf(out, "config saved to %s\n", config.Path())
	return nil
}

// LoginCmd returns the `tdome login` command.
func LoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Configure the thunderdome server and credentials",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			return RunInteractiveLogin(os.Stdin, c.OutOrStdout())
		},
	}
}
