// Package ui provides the Bubble Tea dashboard for fleetdash.
package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/five82/fleetdash/internal/entity"
	"github.com/five82/fleetdash/internal/filter"
	"github.com/five82/fleetdash/internal/prefs"
	"github.com/five82/fleetdash/internal/state"
	"github.com/five82/fleetdash/internal/workspace"
)

// Options configures the UI.
type Options struct {
	Context   context.Context
	Manager   *workspace.Manager
	Kinds     []entity.Kind
	ThemeName string
	Sort      filter.SortOrder
	PrefsPath string
	PollTick  time.Duration
	Engine    *filter.Engine // nil uses the default classifier
}

// statusCycle is the order the status filter steps through; nil shows all.
var statusCycle = [][]entity.Status{
	nil,
	{entity.StatusOpen, entity.StatusInProgress, entity.StatusOnHold},
	{entity.StatusOpen},
	{entity.StatusInProgress},
	{entity.StatusOnHold},
	{entity.StatusCompleted, entity.StatusCancelled},
}

// Model is the root application state for Bubble Tea.
type Model struct {
	// Configuration
	ctx       context.Context
	manager   *workspace.Manager
	kinds     []entity.Kind
	prefsPath string
	pollTick  time.Duration
	keys      keyMap
	engine    *filter.Engine

	// UI state
	theme       Theme
	width       int
	height      int
	ready       bool
	tab         int
	selectedRow int
	offset      int
	showHelp    bool
	quitArmed   bool
	confirm     *confirmation
	message     string
	messageErr  bool

	// Filter state
	criteria    filter.Criteria
	statusIndex int
	search      textinput.Model
	searching   bool

	// Data state
	rows   []row
	view   filter.View
	save   state.SaveState
	status state.Snapshot
	source workspace.Source
	total  int
}

// confirmation is a destructive action waiting for a second keypress.
type confirmation struct {
	action string // "delete" or "discard"
	id     string
	name   string
}

// row is one table line: the entity plus whether it has unsaved edits.
type row struct {
	entity.Entity
	dirty bool
}

// New creates a new Bubble Tea model.
func New(opts Options) Model {
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}

	pollTick := opts.PollTick
	if pollTick == 0 {
		pollTick = 500 * time.Millisecond
	}

	prefsPath := opts.PrefsPath
	if prefsPath == "" {
		prefsPath = prefs.DefaultPath()
	}

	engine := opts.Engine
	if engine == nil {
		engine = filter.NewEngine(nil)
	}

	search := textinput.New()
	search.Prompt = "/"
	search.Placeholder = "regex"
	search.CharLimit = 128

	m := Model{
		ctx:       ctx,
		manager:   opts.Manager,
		kinds:     opts.Kinds,
		prefsPath: prefsPath,
		pollTick:  pollTick,
		keys:      DefaultKeyMap(),
		engine:    engine,
		theme:     GetTheme(opts.ThemeName),
		criteria:  filter.Criteria{Sort: opts.Sort},
		search:    search,
	}
	m.reload()
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(tea.EnterAltScreen, tickCmd(m.pollTick))
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.clampSelection()
		return m, nil

	case tickMsg:
		m.reload()
		return m, tickCmd(m.pollTick)

	case opDoneMsg:
		if msg.err != nil {
			m.setMessage(fmt.Sprintf("%s failed: %v", msg.action, msg.err), true)
		} else if msg.done != "" {
			m.setMessage(msg.done, false)
		}
		m.reload()
		return m, nil
	}

	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	if m.showHelp {
		return m.renderHelp()
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(m.renderTable())
	b.WriteString("\n")
	b.WriteString(m.renderFooter())
	return b.String()
}

// handleKey processes keyboard input.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.showHelp {
		// Any key closes help
		m.showHelp = false
		return m, nil
	}
	if m.searching {
		return m.handleSearchKey(msg)
	}

	armed := m.quitArmed
	m.quitArmed = false
	pending := m.confirm
	m.confirm = nil

	if pending != nil {
		switch {
		case key.Matches(msg, m.keys.Confirm):
			return m.runConfirmed(*pending)
		case key.Matches(msg, m.keys.Cancel):
			m.setMessage("Cancelled", false)
			return m, nil
		}
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		if unsaved := m.unsavedLabels(); len(unsaved) > 0 && !armed {
			m.quitArmed = true
			m.setMessage(fmt.Sprintf("Unsaved changes in %s. Press q again to quit anyway, s to save.", strings.Join(unsaved, ", ")), true)
			return m, nil
		}
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.showHelp = true

	case key.Matches(msg, m.keys.CycleTheme):
		m.theme = GetTheme(NextTheme(m.theme.Name))
		m.savePrefs()

	case key.Matches(msg, m.keys.NextTab):
		m.switchTab(1)

	case key.Matches(msg, m.keys.PrevTab):
		m.switchTab(-1)

	case key.Matches(msg, m.keys.Down):
		if m.selectedRow < len(m.rows)-1 {
			m.selectedRow++
		}
	case key.Matches(msg, m.keys.Up):
		if m.selectedRow > 0 {
			m.selectedRow--
		}
	case key.Matches(msg, m.keys.Top):
		m.selectedRow = 0
	case key.Matches(msg, m.keys.Bottom):
		m.selectedRow = max(len(m.rows)-1, 0)

	case key.Matches(msg, m.keys.Search):
		m.searching = true
		cmd := m.search.Focus()
		return m, cmd

	case key.Matches(msg, m.keys.CycleSort):
		m.criteria.Sort = m.criteria.Sort.Next()
		m.savePrefs()
		m.reload()

	case key.Matches(msg, m.keys.CycleStatus):
		m.statusIndex = (m.statusIndex + 1) % len(statusCycle)
		m.criteria.Statuses = statusCycle[m.statusIndex]
		m.reload()

	case key.Matches(msg, m.keys.ToggleOverdue):
		m.criteria.OverdueOnly = !m.criteria.OverdueOnly
		m.reload()

	case key.Matches(msg, m.keys.ClearFilters):
		m.criteria = filter.Criteria{Sort: m.criteria.Sort}
		m.statusIndex = 0
		m.search.SetValue("")
		m.reload()

	case key.Matches(msg, m.keys.Save):
		return m, m.runOp("save", "Saved", func(ws *workspace.Workspace) error {
			return ws.ManualSave(m.ctx)
		})

	case key.Matches(msg, m.keys.Refresh):
		return m, m.runOp("refresh", "Refreshed", func(ws *workspace.Workspace) error {
			return ws.Refresh(m.ctx)
		})

	case key.Matches(msg, m.keys.Complete):
		m.completeSelected()

	case key.Matches(msg, m.keys.Delete):
		item, ok := m.selected()
		if !ok {
			return m, nil
		}
		if pending != nil && pending.action == "delete" && pending.id == item.ID {
			return m.runConfirmed(*pending)
		}
		m.confirm = &confirmation{action: "delete", id: item.ID, name: item.Name}
		m.setMessage(fmt.Sprintf("Delete %s? Press x again or enter to confirm, esc to cancel.", item.Name), true)

	case key.Matches(msg, m.keys.Discard):
		ws := m.workspace()
		if ws == nil {
			return m, nil
		}
		if pending != nil && pending.action == "discard" {
			return m.runConfirmed(*pending)
		}
		n := ws.PendingCount()
		if n == 0 {
			m.setMessage("Nothing to discard", false)
			return m, nil
		}
		m.confirm = &confirmation{action: "discard"}
		m.setMessage(fmt.Sprintf("Discard %d unsaved changes in %s? Press U again or enter to confirm, esc to cancel.", n, ws.Key()), true)
	}

	return m, nil
}

// runConfirmed performs an action the user confirmed with a second keypress.
func (m Model) runConfirmed(c confirmation) (tea.Model, tea.Cmd) {
	switch c.action {
	case "delete":
		return m, m.runOp("delete", "Deleted "+c.name, func(ws *workspace.Workspace) error {
			return ws.Delete(m.ctx, c.id)
		})
	case "discard":
		m.discardUnsynced()
	}
	return m, nil
}

// handleSearchKey routes input to the search box; the view filters as the
// user types.
func (m Model) handleSearchKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Confirm):
		m.searching = false
		m.search.Blur()
		return m, nil
	case key.Matches(msg, m.keys.Cancel):
		m.searching = false
		m.search.Blur()
		m.search.SetValue("")
		m.criteria.Search = ""
		m.reload()
		return m, nil
	}

	var cmd tea.Cmd
	m.search, cmd = m.search.Update(msg)
	m.criteria.Search = m.search.Value()
	m.selectedRow = 0
	m.reload()
	return m, cmd
}

func (m *Model) switchTab(delta int) {
	if len(m.kinds) == 0 {
		return
	}
	m.tab = (m.tab + delta + len(m.kinds)) % len(m.kinds)
	m.selectedRow = 0
	m.offset = 0
	m.reload()
}

func (m *Model) completeSelected() {
	item, ok := m.selected()
	ws := m.workspace()
	if !ok || ws == nil {
		return
	}
	err := ws.Edit(item.ID, func(e *entity.Entity) {
		e.Status = entity.StatusCompleted
	})
	if err != nil {
		m.setMessage(fmt.Sprintf("complete failed: %v", err), true)
		return
	}
	m.setMessage("Completed "+item.Name, false)
	m.reload()
}

func (m *Model) discardUnsynced() {
	ws := m.workspace()
	if ws == nil {
		return
	}
	n, err := ws.DiscardUnsynced()
	if err != nil {
		m.setMessage(fmt.Sprintf("discard failed: %v", err), true)
		return
	}
	m.setMessage(fmt.Sprintf("Discarded %d unsaved changes", n), false)
	m.reload()
}

func (m *Model) savePrefs() {
	p := prefs.Prefs{Theme: m.theme.Name, Sort: m.criteria.Sort}
	if err := prefs.Save(m.prefsPath, p); err != nil {
		m.setMessage(fmt.Sprintf("save preferences: %v", err), true)
	}
}

func (m *Model) setMessage(text string, isErr bool) {
	m.message = text
	m.messageErr = isErr
}

// workspace returns the workspace of the active tab.
func (m Model) workspace() *workspace.Workspace {
	if m.manager == nil || len(m.kinds) == 0 {
		return nil
	}
	ws, _ := m.manager.Get(m.kinds[m.tab], "")
	return ws
}

// reload re-reads the active workspace. Selection follows the selected entity
// when it is still visible.
func (m *Model) reload() {
	var selectedID string
	if item, ok := m.selected(); ok {
		selectedID = item.ID
	}

	ws := m.workspace()
	if ws == nil {
		m.rows = nil
		m.view = filter.View{}
		m.total = 0
		return
	}
	m.view = ws.FilteredView(m.criteria)
	m.rows = make([]row, 0, len(m.view.Items))
	for _, e := range m.view.Items {
		m.rows = append(m.rows, row{Entity: e, dirty: ws.IsDirty(e.ID)})
	}
	m.total = len(ws.Entities())
	m.save = ws.SaveState()
	m.status = ws.Status()
	m.source = ws.Source()

	if selectedID != "" {
		for i, r := range m.rows {
			if r.ID == selectedID {
				m.selectedRow = i
				break
			}
		}
	}
	m.clampSelection()
}

func (m *Model) clampSelection() {
	if m.selectedRow >= len(m.rows) {
		m.selectedRow = len(m.rows) - 1
	}
	if m.selectedRow < 0 {
		m.selectedRow = 0
	}
}

func (m Model) selected() (row, bool) {
	if m.selectedRow < 0 || m.selectedRow >= len(m.rows) {
		return row{}, false
	}
	return m.rows[m.selectedRow], true
}

func (m Model) hasUnsaved(kind entity.Kind) bool {
	if m.manager == nil {
		return false
	}
	ws, ok := m.manager.Get(kind, "")
	return ok && ws.SaveState().NeedsUnloadWarning()
}

// unsavedLabels names the collections that would lose work on exit.
func (m Model) unsavedLabels() []string {
	if m.manager == nil {
		return nil
	}
	var labels []string
	for _, k := range m.manager.Unsaved() {
		labels = append(labels, k.String())
	}
	return labels
}

// Messages

type tickMsg time.Time

type opDoneMsg struct {
	action string
	done   string
	err    error
}

// Commands

func tickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// runOp runs fn against the active workspace off the UI goroutine.
func (m Model) runOp(action, done string, fn func(*workspace.Workspace) error) tea.Cmd {
	ws := m.workspace()
	if ws == nil {
		return nil
	}
	return func() tea.Msg {
		return opDoneMsg{action: action, done: done, err: fn(ws)}
	}
}

// Run starts the Bubble Tea program.
func Run(opts Options) error {
	m := New(opts)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(m.ctx))
	_, err := p.Run()
	return err
}
