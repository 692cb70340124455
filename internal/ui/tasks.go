package ui

import (
	"context"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/cockroachdb/errors"

	"github.com/gravitrone/tdome/internal/store"
	"github.com/gravitrone/tdome/internal/syncer"
)

const defaultTaskTimeout = 15 * time.Second

// Operation names, used for toasts and logging.
const (
	opLoad   = "load"
	opCreate = "create"
	opRename = "rename"
	opAdd    = "add"
	opDelete = "delete"
)

// taskDoneMsg reports a settled syncer task.
type taskDoneMsg struct {
	op  string
	err error
}

// runTask wraps a syncer task in a command bounded by timeout.
func runTask(op string, task syncer.Task, timeout time.Duration) tea.Cmd {
	if timeout <= 0 {
		timeout = defaultTaskTimeout
	}
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return taskDoneMsg{op: op, err: task(ctx)}
	}
}

// formatTaskError renders err with any hints attached along the way.
func formatTaskError(err error) string {
	msg := err.Error()
	if hint := errors.FlattenHints(err); hint != "" {
		msg += "\n\n" + hint
	}
	return msg
}

// isLocalRefusal reports errors raised before any request was sent.
func isLocalRefusal(err error) bool {
	return errors.Is(err, store.ErrPendingGroup) ||
		errors.Is(err, store.ErrUnknownGroup) ||
		errors.Is(err, syncer.ErrEmptyName) ||
		errors.Is(err, syncer.ErrNoTalks)
}

func successText(op string) string {
	switch op {
	case opCreate:
		return "Group created."
	case opRename:
		return "Group renamed."
	case opAdd:
		return "Talks added."
	case opDelete:
		return "Group deleted."
	}
	return strings.ToUpper(op[:1]) + op[1:] + " done."
}
