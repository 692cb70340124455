package ui

import (
	"fmt"
	"strconv"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/gravitrone/tdome/internal/api"
	"github.com/gravitrone/tdome/internal/selection"
	"github.com/gravitrone/tdome/internal/store"
	"github.com/gravitrone/tdome/internal/ui/components"
)

var talkColumns = []components.Column{
	{Header: "", Width: 3},
	{Header: "ID", Width: 5, Align: lipgloss.Right},
	{Header: "Title", Width: 10},
}

// talkRows renders talks as grid rows, marking selected ones.
func talkRows(talks []api.Talk, sel *selection.Set, start, end int) [][]string {
	rows := make([][]string, 0, end-start)
	for _, t := range talks[start:end] {
		mark := ""
		if sel.Contains(t.ID) {
			mark = "[x]"
		}
		rows = append(rows, []string{mark, strconv.Itoa(t.ID), t.Title})
	}
	return rows
}

// --- Ungrouped Talks Model ---

// TalksModel shows the ungrouped pool and toggles talks in the selection.
type TalksModel struct {
	store *store.Store
	sel   *selection.Set
	keys  keymap
	talks []api.Talk
	list  *components.List
}

// NewTalksModel builds the ungrouped pane.
func NewTalksModel(st *store.Store, sel *selection.Set, keys keymap) TalksModel {
	m := TalksModel{store: st, sel: sel, keys: keys, list: components.NewList(10)}
	m.refresh()
	return m
}

func (m *TalksModel) refresh() {
	m.talks = m.store.Ungrouped()
	m.list.SetLen(len(m.talks))
}

func (m *TalksModel) setPageSize(n int) {
	m.list.PageSize = max(n, 1)
	m.list.SetLen(len(m.talks))
}

// current returns the talk under the cursor.
func (m TalksModel) current() (api.Talk, bool) {
	idx := m.list.Selected()
	if idx < 0 {
		return api.Talk{}, false
	}
	return m.talks[idx], true
}

func (m TalksModel) Update(msg tea.KeyMsg) (TalksModel, tea.Cmd) {
	switch {
	case m.keys.down(msg):
		m.list.Down()
	case m.keys.up(msg):
		m.list.Up()
	case isSpace(msg):
		if t, ok := m.current(); ok {
			m.sel.Toggle(t)
			m.list.Down()
		}
	}
	return m, nil
}

func (m TalksModel) View(width int, active bool) string {
	inner := components.PaneContentWidth(width)
	title := fmt.Sprintf("Ungrouped (%d)", len(m.talks))

	if len(m.talks) == 0 {
		return components.Pane(title, MutedStyle.Render("No ungrouped talks."), width, active)
	}
	start, end := m.list.Window()
	highlight := -1
	if active {
		highlight = m.list.Cursor - start
	}
	grid := components.Grid(talkColumns, talkRows(m.talks, m.sel, start, end), inner, highlight)
	return components.Pane(title, grid, width, active)
}
