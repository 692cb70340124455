package cmd

import (
	"context"
	"strconv"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/gravitrone/tdome/internal/api"
	"github.com/gravitrone/tdome/internal/config"
	"github.com/gravitrone/tdome/internal/logging"
	"github.com/gravitrone/tdome/internal/selection"
	"github.com/gravitrone/tdome/internal/store"
	"github.com/gravitrone/tdome/internal/syncer"
	"github.com/gravitrone/tdome/internal/ui"
)

// session is the wiring shared by every command: config, logger and a
// syncer over a fresh store.
type session struct {
	cfg  *config.Config
	log  *zap.Logger
	sync *syncer.Syncer
}

// loadConfig reads the saved config, pointing at login when there is none.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		err = errors.Wrap(err, "not logged in")
		return nil, errors.WithHint(err, "run 'tdome login' first")
	}
	return cfg, nil
}

func newSession(cfg *config.Config) (*session, error) {
	log, err := logging.New(logging.Options{Path: cfg.LogPath(), Level: cfg.LogLevel})
	if err != nil {
		return nil, err
	}
	return newSessionWith(cfg, cfg.Client(), log), nil
}

func newSessionWith(cfg *config.Config, remote syncer.Remote, log *zap.Logger) *session {
	return &session{
		cfg:  cfg,
		log:  log,
		sync: syncer.New(remote, store.New(), log),
	}
}

func (s *session) close() {
	_ = s.log.Sync()
}

func (s *session) context() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 4*s.cfg.RequestTimeout())
}

// runTask runs an issued syncer operation to completion.
func (s *session) runTask(task syncer.Task) error {
	ctx, cancel := s.context()
	defer cancel()
	return task(ctx)
}

// group resolves a group number against the loaded store.
func (s *session) group(arg string) (store.Group, error) {
	n, err := strconv.Atoi(arg)
	if err != nil || n <= 0 {
		return store.Group{}, errors.Newf("invalid group number %q", arg)
	}
	g, ok := s.sync.Store().GroupByNumber(n)
	if !ok {
		return store.Group{}, errors.Newf("group %d not found", n)
	}
	return g, nil
}

// talks resolves talk ids against the loaded store.
func (s *session) talks(args []string) ([]api.Talk, error) {
	out := make([]api.Talk, 0, len(args))
	for _, arg := range args {
		id, err := strconv.Atoi(arg)
		if err != nil {
			return nil, errors.Newf("invalid talk id %q", arg)
		}
		t, ok := s.sync.Store().Talk(id)
		if !ok {
			return nil, errors.Newf("talk %d not found", id)
		}
		out = append(out, t)
	}
	return out, nil
}

// RunTUI runs the interactive organizer until the operator quits.
func RunTUI(cfg *config.Config, remote syncer.Remote, log *zap.Logger) error {
	s := newSessionWith(cfg, remote, log)
	defer s.close()

	app := ui.NewApp(s.sync, selection.New(), ui.Options{
		VimKeys: cfg.VimKeys,
		Timeout: cfg.RequestTimeout(),
		Log:     log,
	})
	log.Info("tui started", zap.String("base_url", cfg.BaseURL))
	if _, err := tea.NewProgram(app, tea.WithAltScreen()).Run(); err != nil {
		return errors.Wrap(err, "tui error")
	}
	return nil
}
