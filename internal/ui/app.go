package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/gravitrone/tdome/internal/api"
	"github.com/gravitrone/tdome/internal/selection"
	"github.com/gravitrone/tdome/internal/store"
	"github.com/gravitrone/tdome/internal/syncer"
	"github.com/gravitrone/tdome/internal/ui/components"
)

// --- Focus and Overlays ---

type focusPane int

const (
	focusTalks focusPane = iota
	focusGroups
)

type overlay int

const (
	overlayNone overlay = iota
	overlayCreate
	overlayRename
	overlayDelete
	overlayDetail
	overlayHelp
	overlayQuit
)

// fullBannerHeight is the terminal height below which the compact banner
// is used.
const fullBannerHeight = 32

var helpBindings = [][2]string{
	{"tab", "switch pane"},
	{"space", "select / unselect talk"},
	{"enter", "talk detail / open group"},
	{"c", "clear selection"},
	{"n", "new group from selection"},
	{"a", "add selection to group"},
	{"r", "rename group"},
	{"d", "delete group"},
	{"R", "reload from server"},
	{"esc", "back / dismiss error"},
	{"q", "quit"},
}

// --- Messages ---

type clearToastMsg struct{}

type appToast struct {
	level string
	text  string
}

// --- App Model ---

// Options configures the root model.
type Options struct {
	VimKeys bool
	// Timeout bounds each server round trip. Zero uses the default.
	Timeout time.Duration
	Log     *zap.Logger
}

// App is the root TUI model: the ungrouped pool and the groups side by
// side, with the selection shared between them.
type App struct {
	sync   *syncer.Syncer
	store  *store.Store
	sel    *selection.Set
	bridge *storeBridge
	log    *zap.Logger
	opts   Options
	keys   keymap

	talks  TalksModel
	groups GroupsModel

	focus   focusPane
	overlay overlay
	input   string
	target  store.Key
	detail  api.Talk

	width    int
	height   int
	loading  bool
	inflight int
	spinning bool
	err      string
	toast    *appToast
}

// NewApp creates the root application model. The selection set is shared
// with anything else that needs to read it.
func NewApp(sync *syncer.Syncer, sel *selection.Set, opts Options) App {
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	keys := keymap{vim: opts.VimKeys}
	st := sync.Store()
	return App{
		sync:    sync,
		store:   st,
		sel:     sel,
		bridge:  newStoreBridge(st),
		log:     opts.Log,
		opts:    opts,
		keys:    keys,
		talks:   NewTalksModel(st, sel, keys),
		groups:  NewGroupsModel(st, sel, keys),
		loading: true,
	}
}

func (a App) Init() tea.Cmd {
	return tea.Batch(runTask(opLoad, a.sync.Load, a.opts.Timeout), a.bridge.wait())
}

func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		page := a.pageSize()
		a.talks.setPageSize(page)
		a.groups.setPageSize(page)
		return a, nil

	case storeChangedMsg:
		a.applyStoreChange(msg)
		return a, tea.Batch(a.bridge.wait(), a.spin())

	case taskDoneMsg:
		return a.handleTaskDone(msg)

	case clearToastMsg:
		a.toast = nil
		return a, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.groups, cmd = a.groups.Update(msg)
		a.spinning = cmd != nil
		return a, cmd

	case tea.KeyMsg:
		return a.handleKey(msg)
	}
	return a, nil
}

// --- Store and Task Plumbing ---

func (a *App) applyStoreChange(msg storeChangedMsg) {
	a.sel.Forget(func(id int) bool {
		_, ok := a.store.Talk(id)
		return ok
	})
	if msg.has(store.UngroupedChanged) {
		a.talks.refresh()
	}
	a.groups.refresh(msg)
}

// syncViews reloads every view from the store. Local mutations call it so
// the optimistic state shows before the bridge delivers.
func (a *App) syncViews() {
	a.applyStoreChange(storeChangedMsg{overflow: true})
}

// spin starts the pending-group spinner if one is needed and not running.
func (a *App) spin() tea.Cmd {
	if a.spinning || !a.groups.hasPending() {
		return nil
	}
	a.spinning = true
	return a.groups.spinner.Tick
}

func (a *App) issue(op string, task syncer.Task) tea.Cmd {
	a.inflight++
	a.syncViews()
	a.log.Debug("task issued", zap.String("op", op), zap.Int("inflight", a.inflight))
	return tea.Batch(runTask(op, task, a.opts.Timeout), a.spin())
}

func (a App) handleTaskDone(msg taskDoneMsg) (tea.Model, tea.Cmd) {
	if msg.op == opLoad {
		a.loading = false
	} else if a.inflight > 0 {
		a.inflight--
	}
	a.syncViews()

	if msg.err != nil {
		a.log.Debug("task failed", zap.String("op", msg.op), zap.Error(msg.err))
		if isLocalRefusal(msg.err) {
			return a, a.setToast("warning", msg.err.Error())
		}
		a.err = formatTaskError(msg.err)
		return a, nil
	}
	if msg.op == opLoad {
		return a, nil
	}
	return a, a.setToast("success", successText(msg.op))
}

func (a App) reload() (tea.Model, tea.Cmd) {
	a.loading = true
	a.err = ""
	return a, runTask(opLoad, a.sync.Load, a.opts.Timeout)
}

func (a App) quit() (tea.Model, tea.Cmd) {
	a.bridge.close()
	return a, tea.Quit
}

// --- Key Handling ---

func (a App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if a.overlay != overlayNone {
		return a.handleOverlayKeys(msg)
	}
	if isKey(msg, "ctrl+c") {
		return a.quit()
	}
	if a.err != "" && isBack(msg) {
		a.err = ""
		return a, nil
	}

	switch {
	case isQuit(msg):
		if a.inflight > 0 {
			a.overlay = overlayQuit
			return a, nil
		}
		return a.quit()
	case isFocusSwitch(msg):
		if a.focus == focusTalks {
			a.focus = focusGroups
		} else {
			a.focus = focusTalks
		}
		return a, nil
	case isKey(msg, "?"):
		a.overlay = overlayHelp
		return a, nil
	case isKey(msg, "n"):
		a.overlay = overlayCreate
		a.input = ""
		return a, nil
	case isKey(msg, "R"):
		return a.reload()
	case isKey(msg, "c"):
		if a.sel.Len() == 0 {
			return a, nil
		}
		a.sel.Drain()
		return a, a.setToast("info", "Selection cleared.")
	}

	if a.focus == focusGroups {
		return a.handleGroupKeys(msg)
	}
	if isEnter(msg) {
		if t, ok := a.talks.current(); ok {
			a.openDetail(t)
		}
		return a, nil
	}
	var cmd tea.Cmd
	a.talks, cmd = a.talks.Update(msg)
	return a, cmd
}

func (a App) handleGroupKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	g, ok := a.groups.current()
	if isKey(msg, "a") {
		if !ok {
			return a, nil
		}
		return a.addSelection(g)
	}

	if a.groups.view == groupsViewMembers {
		if isEnter(msg) {
			if t, ok := a.groups.currentMember(); ok {
				a.openDetail(t)
			}
			return a, nil
		}
		var cmd tea.Cmd
		a.groups, cmd = a.groups.Update(msg)
		return a, cmd
	}

	switch {
	case isKey(msg, "r"):
		if ok && !g.Pending() {
			a.overlay = overlayRename
			a.target = g.Key
			a.input = g.Name
		}
		return a, nil
	case isKey(msg, "d"):
		if ok && !g.Pending() {
			a.overlay = overlayDelete
			a.target = g.Key
		}
		return a, nil
	}
	var cmd tea.Cmd
	a.groups, cmd = a.groups.Update(msg)
	return a, cmd
}

func (a App) addSelection(g store.Group) (tea.Model, tea.Cmd) {
	if g.Pending() {
		return a, a.setToast("warning", "Group is still being created.")
	}
	if a.sel.Len() == 0 {
		return a, a.setToast("warning", "Select talks first (space).")
	}
	talks := a.sel.Drain()
	task, err := a.sync.AddTalks(g.Key, talks)
	if err != nil {
		for _, t := range talks {
			a.sel.Toggle(t)
		}
		return a, a.setToast("warning", err.Error())
	}
	return a, a.issue(opAdd, task)
}

func (a *App) openDetail(t api.Talk) {
	a.detail = t
	a.overlay = overlayDetail
}

func (a App) closeOverlay() App {
	a.overlay = overlayNone
	a.input = ""
	a.target = ""
	return a
}

func (a App) handleOverlayKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch a.overlay {
	case overlayCreate, overlayRename:
		return a.handleInputKeys(msg)
	case overlayDelete:
		switch {
		case isKey(msg, "y"):
			target := a.target
			a = a.closeOverlay()
			task, err := a.sync.RemoveGroup(target)
			if err != nil {
				return a, a.setToast("warning", err.Error())
			}
			return a, a.issue(opDelete, task)
		case isKey(msg, "n") || isBack(msg):
			return a.closeOverlay(), nil
		}
	case overlayQuit:
		switch {
		case isKey(msg, "y"):
			return a.quit()
		case isKey(msg, "n") || isBack(msg):
			return a.closeOverlay(), nil
		}
	case overlayDetail:
		switch {
		case isSpace(msg):
			a.sel.Toggle(a.detail)
		case isBack(msg) || isEnter(msg):
			return a.closeOverlay(), nil
		}
	case overlayHelp:
		if isBack(msg) || isEnter(msg) || isKey(msg, "?") {
			return a.closeOverlay(), nil
		}
	}
	return a, nil
}

func (a App) handleInputKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case isBack(msg):
		return a.closeOverlay(), nil
	case isEnter(msg):
		return a.submitInput()
	case msg.Type == tea.KeyBackspace:
		if r := []rune(a.input); len(r) > 0 {
			a.input = string(r[:len(r)-1])
		}
	case msg.Type == tea.KeySpace:
		a.input += " "
	case msg.Type == tea.KeyRunes:
		a.input += string(msg.Runes)
	}
	return a, nil
}

func (a App) submitInput() (tea.Model, tea.Cmd) {
	kind, input, target := a.overlay, a.input, a.target
	a = a.closeOverlay()

	if kind == overlayCreate {
		_, task := a.sync.CreateGroup(input, a.sel.Drain())
		a.focus = focusGroups
		return a, a.issue(opCreate, task)
	}
	task, err := a.sync.RenameGroup(target, input)
	if err != nil {
		return a, a.setToast("warning", err.Error())
	}
	return a, a.issue(opRename, task)
}

// --- Toasts ---

func (a *App) setToast(level, text string) tea.Cmd {
	a.toast = &appToast{
		level: level,
		text:  components.SanitizeOneLine(text),
	}
	return tea.Tick(2500*time.Millisecond, func(time.Time) tea.Msg {
		return clearToastMsg{}
	})
}

func (a App) renderToast() string {
	if a.toast == nil {
		return ""
	}
	title := "Info"
	switch a.toast.level {
	case "success":
		title = "Success"
	case "warning":
		title = "Warning"
	case "error":
		return components.ErrorBox("Error", a.toast.text, a.width)
	}
	return components.TitledBox(title, a.toast.text, a.width)
}

// --- View ---

func (a App) View() string {
	banner := RenderBanner()
	if a.height > 0 && a.height < fullBannerHeight {
		banner = renderCompactBanner()
	}

	var content string
	switch a.overlay {
	case overlayCreate:
		title := fmt.Sprintf("New group (%d talks)", a.sel.Len())
		content = components.InputDialog(title, a.input, syncer.DefaultGroupName)
	case overlayRename:
		content = components.InputDialog("Rename group", a.input, "")
	case overlayDelete:
		g, _ := a.store.Group(a.target)
		content = components.ConfirmDialog("Delete group",
			fmt.Sprintf("Delete %q? Its %d talks go back to the ungrouped list.", g.Name, g.Size))
	case overlayQuit:
		content = components.ConfirmDialog("Quit",
			fmt.Sprintf("%d changes are still being saved. Quit anyway?", a.inflight))
	case overlayDetail:
		content = renderTalkDetail(a.store, a.detail, a.sel.Contains(a.detail.ID), a.width)
	case overlayHelp:
		content = components.HelpDialog("Keys", helpBindings)
	default:
		content = a.renderPanes()
	}

	hints := components.StatusBar(a.statusHints(), a.width)

	feedback := ""
	if a.err != "" {
		feedback = "\n\n" + centerBlockUniform(components.ErrorBox("Error", a.err, a.width), a.width)
	} else if a.toast != nil {
		feedback = "\n\n" + centerBlockUniform(a.renderToast(), a.width)
	}

	return fmt.Sprintf("%s\n%s\n\n%s\n\n%s%s",
		centerBlockUniform(banner, a.width),
		centerBlockUniform(a.renderSummary(), a.width),
		centerBlockUniform(content, a.width),
		hints, feedback)
}

func (a App) renderPanes() string {
	width := a.width
	if width <= 0 {
		width = 100
	}
	pane := (width - 1) / 2
	left := a.talks.View(pane, a.focus == focusTalks)
	right := a.groups.View(pane, a.focus == focusGroups)
	return lipgloss.JoinHorizontal(lipgloss.Top, left, " ", right)
}

func (a App) renderSummary() string {
	parts := []string{MutedStyle.Render("selected ") + CountStyle.Render(fmt.Sprint(a.sel.Len()))}
	if a.loading {
		parts = append(parts, WarningStyle.Render("loading…"))
	}
	if a.inflight > 0 {
		parts = append(parts, WarningStyle.Render(fmt.Sprintf("saving %d…", a.inflight)))
	}
	return strings.Join(parts, MutedStyle.Render("  ·  "))
}

func (a App) statusHints() []string {
	switch a.overlay {
	case overlayCreate, overlayRename:
		return []string{components.Hint("enter", "Save"), components.Hint("esc", "Cancel")}
	case overlayDelete, overlayQuit:
		return []string{components.Hint("y", "Confirm"), components.Hint("n", "Cancel")}
	case overlayDetail:
		return []string{components.Hint("space", "Select"), components.Hint("esc", "Close")}
	case overlayHelp:
		return []string{components.Hint("esc", "Close")}
	}

	hints := []string{components.Hint(a.keys.navHint(), "Move"), components.Hint("tab", "Pane")}
	switch {
	case a.focus == focusTalks:
		hints = append(hints, components.Hint("space", "Select"), components.Hint("enter", "Detail"))
	case a.groups.view == groupsViewMembers:
		hints = append(hints,
			components.Hint("space", "Select"),
			components.Hint("a", "Add"),
			components.Hint("esc", "Back"))
	default:
		hints = append(hints,
			components.Hint("enter", "Open"),
			components.Hint("a", "Add"),
			components.Hint("r", "Rename"),
			components.Hint("d", "Delete"))
	}
	return append(hints,
		components.Hint("n", "New"),
		components.Hint("?", "Help"),
		components.Hint("q", "Quit"))
}

// pageSize is the number of list rows that fit below the banner.
func (a App) pageSize() int {
	chrome := 16
	if a.height >= fullBannerHeight {
		chrome += 9
	}
	return max(a.height-chrome, 3)
}

func centerBlockUniform(s string, width int) string {
	if width <= 0 {
		return s
	}
	lines := strings.Split(s, "\n")
	maxWidth := 0
	for _, line := range lines {
		maxWidth = max(maxWidth, lipgloss.Width(line))
	}
	if maxWidth <= 0 || maxWidth >= width {
		return s
	}
	prefix := strings.Repeat(" ", (width-maxWidth)/2)
	for i := range lines {
		if lines[i] != "" {
			lines[i] = prefix + lines[i]
		}
	}
	return strings.Join(lines, "\n")
}
