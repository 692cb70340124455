package cmd

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/gravitrone/tdome/internal/config"
	"github.com/gravitrone/tdome/internal/fakeapi"
	"github.com/gravitrone/tdome/internal/logging"
)

// demoServer is an in-process thunderdome server seeded with sample data.
type demoServer struct {
	URL  string
	srv  *http.Server
	done chan error
}

func startDemoServer(addr string, log *zap.Logger) (*demoServer, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "listen on %s", addr)
	}
	d := &demoServer{
		URL: "http://" + ln.Addr().String(),
		srv: &http.Server{
			Handler:           fakeapi.Demo(log.Named("fakeapi")),
			ReadHeaderTimeout: 5 * time.Second,
		},
		done: make(chan error, 1),
	}
	go func() {
		err := d.srv.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		d.done <- err
	}()
	return d, nil
}

func (d *demoServer) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := d.srv.Shutdown(ctx); err != nil {
		return errors.Wrap(err, "shutdown demo server")
	}
	return <-d.done
}

// DemoCmd returns the `tdome demo` command.
func DemoCmd() *cobra.Command {
	var addr string
	var serveOnly bool
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run the organizer against a built-in sample server",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			cfg := config.Default()
			log, err := logging.New(logging.Options{Path: cfg.LogPath(), Level: cfg.LogLevel})
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			d, err := startDemoServer(addr, log)
			if err != nil {
				return err
			}
			cfg.BaseURL = d.URL

			g, ctx := errgroup.WithContext(c.Context())
			if serveOnly {
				fmt.Fprintf(c.OutOrStdout(), "demo server listening on %s (ctrl+c to stop)\n", d.URL)
				ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
				defer stop()
				g.Go(func() error {
					<-ctx.Done()
					return nil
				})
			} else {
				g.Go(func() error {
					return RunTUI(cfg, cfg.Client(), log)
				})
			}
			err = g.Wait()
			return errors.CombineErrors(err, d.Close())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:0", "address for the sample server")
	cmd.Flags().BoolVar(&serveOnly, "serve", false, "only run the sample server")
	return cmd
}
