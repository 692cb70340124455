package ui

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/gravitrone/tdome/internal/api"
	"github.com/gravitrone/tdome/internal/selection"
	"github.com/gravitrone/tdome/internal/store"
	"github.com/gravitrone/tdome/internal/ui/components"
)

type groupsView int

const (
	groupsViewList groupsView = iota
	groupsViewMembers
)

var groupColumns = []components.Column{
	{Header: "", Width: 2},
	{Header: "#", Width: 4, Align: lipgloss.Right},
	{Header: "Talks", Width: 5, Align: lipgloss.Right},
	{Header: "Name", Width: 10},
}

// --- Groups Model ---

// GroupsModel lists the groups and browses one group's members.
type GroupsModel struct {
	store   *store.Store
	sel     *selection.Set
	keys    keymap
	groups  []store.Group
	list    *components.List
	view    groupsView
	open    store.Key
	members []api.Talk
	mlist   *components.List
	spinner spinner.Model
}

// NewGroupsModel builds the groups pane.
func NewGroupsModel(st *store.Store, sel *selection.Set, keys keymap) GroupsModel {
	sp := spinner.New(spinner.WithSpinner(spinner.MiniDot), spinner.WithStyle(SpinnerStyle))
	m := GroupsModel{
		store:   st,
		sel:     sel,
		keys:    keys,
		list:    components.NewList(10),
		mlist:   components.NewList(10),
		spinner: sp,
	}
	m.refresh(storeChangedMsg{overflow: true})
	return m
}

// refresh reloads whatever msg says changed. An open group that no longer
// exists closes the members view.
func (m *GroupsModel) refresh(msg storeChangedMsg) {
	if msg.has(store.GroupsChanged) {
		m.groups = m.store.Groups()
		m.list.SetLen(len(m.groups))
	}
	if m.view != groupsViewMembers {
		return
	}
	if _, ok := m.store.Group(m.open); !ok {
		m.closeMembers()
		return
	}
	if msg.has(store.GroupTalksChanged) && msg.touches(m.open) {
		m.members = m.store.GroupTalks(m.open)
		m.mlist.SetLen(len(m.members))
	}
}

func (m *GroupsModel) setPageSize(n int) {
	n = max(n, 1)
	m.list.PageSize = n
	m.list.SetLen(len(m.groups))
	m.mlist.PageSize = n
	m.mlist.SetLen(len(m.members))
}

func (m *GroupsModel) openMembers(key store.Key) {
	m.view = groupsViewMembers
	m.open = key
	m.members = m.store.GroupTalks(key)
	m.mlist.Reset()
	m.mlist.SetLen(len(m.members))
}

func (m *GroupsModel) closeMembers() {
	m.view = groupsViewList
	m.open = ""
	m.members = nil
	m.mlist.SetLen(0)
}

// current returns the group under the cursor, or the open group in the
// members view.
func (m GroupsModel) current() (store.Group, bool) {
	if m.view == groupsViewMembers {
		return m.store.Group(m.open)
	}
	idx := m.list.Selected()
	if idx < 0 {
		return store.Group{}, false
	}
	return m.groups[idx], true
}

// currentMember returns the talk under the cursor in the members view.
func (m GroupsModel) currentMember() (api.Talk, bool) {
	idx := m.mlist.Selected()
	if m.view != groupsViewMembers || idx < 0 {
		return api.Talk{}, false
	}
	return m.members[idx], true
}

func (m GroupsModel) hasPending() bool {
	for _, g := range m.groups {
		if g.Pending() {
			return true
		}
	}
	return false
}

func (m GroupsModel) Update(msg tea.Msg) (GroupsModel, tea.Cmd) {
	switch msg := msg.(type) {
	case spinner.TickMsg:
		if !m.hasPending() {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.KeyMsg:
		if m.view == groupsViewMembers {
			return m.handleMemberKeys(msg)
		}
		return m.handleListKeys(msg)
	}
	return m, nil
}

func (m GroupsModel) handleListKeys(msg tea.KeyMsg) (GroupsModel, tea.Cmd) {
	switch {
	case m.keys.down(msg):
		m.list.Down()
	case m.keys.up(msg):
		m.list.Up()
	case isEnter(msg):
		if g, ok := m.current(); ok && !g.Pending() {
			m.openMembers(g.Key)
		}
	}
	return m, nil
}

func (m GroupsModel) handleMemberKeys(msg tea.KeyMsg) (GroupsModel, tea.Cmd) {
	switch {
	case isBack(msg):
		m.closeMembers()
	case m.keys.down(msg):
		m.mlist.Down()
	case m.keys.up(msg):
		m.mlist.Up()
	case isSpace(msg):
		if t, ok := m.currentMember(); ok {
			m.sel.Toggle(t)
			m.mlist.Down()
		}
	}
	return m, nil
}

func (m GroupsModel) View(width int, active bool) string {
	if m.view == groupsViewMembers {
		return m.renderMembers(width, active)
	}
	title := fmt.Sprintf("Groups (%d)", len(m.groups))
	if len(m.groups) == 0 {
		return components.Pane(title, MutedStyle.Render("No groups yet. Select talks and press n."), width, active)
	}

	start, end := m.list.Window()
	rows := make([][]string, 0, end-start)
	for _, g := range m.groups[start:end] {
		rows = append(rows, m.groupRow(g))
	}
	highlight := -1
	if active {
		highlight = m.list.Cursor - start
	}
	grid := components.Grid(groupColumns, rows, components.PaneContentWidth(width), highlight)
	return components.Pane(title, grid, width, active)
}

func (m GroupsModel) groupRow(g store.Group) []string {
	if g.Pending() {
		return []string{m.spinner.View(), "…", strconv.Itoa(g.Size), g.Name}
	}
	mark := ""
	if g.Decided != nil && *g.Decided {
		mark = "✓"
	}
	return []string{mark, strconv.Itoa(g.Number), strconv.Itoa(g.Size), g.Name}
}

func (m GroupsModel) renderMembers(width int, active bool) string {
	g, _ := m.store.Group(m.open)
	title := fmt.Sprintf("Group %d: %s", g.Number, g.Name)
	if len(m.members) == 0 {
		return components.Pane(title, MutedStyle.Render("This group has no talks."), width, active)
	}
	start, end := m.mlist.Window()
	highlight := -1
	if active {
		highlight = m.mlist.Cursor - start
	}
	grid := components.Grid(talkColumns, talkRows(m.members, m.sel, start, end), components.PaneContentWidth(width), highlight)
	return components.Pane(title, grid, width, active)
}
