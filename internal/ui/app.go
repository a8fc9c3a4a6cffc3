package ui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/five82/sluice/internal/errstore"
	"github.com/five82/sluice/internal/events"
	"github.com/five82/sluice/internal/logtail"
	"github.com/five82/sluice/internal/model"
	"github.com/five82/sluice/internal/pipelines"
	"github.com/five82/sluice/internal/prefs"
	"github.com/five82/sluice/internal/provider"
)

// View represents the current active view.
type View int

const (
	ViewPipelines View = iota
	ViewProblems
	ViewLogs
)

const (
	clockTick   = time.Second
	noticeTTL   = 8 * time.Second
	wideLayout  = 120
	headerLines = 2
)

// StatusSource reports the health of the background refresh loop.
type StatusSource interface {
	Offline() bool
	Failures() int
	Kick()
}

// Options configures the UI.
type Options struct {
	Context      context.Context
	Logger       *slog.Logger
	List         *provider.Hub[[]pipelines.Pipeline]
	Detail       *provider.Hub[pipelines.Detail]
	Bus          *events.Bus
	Status       StatusSource
	APIURL       string
	RouteReuse   bool
	ThemeName    string
	LastPipeline string
	PrefsPath    string
	// LogPath is the JSON log file shown in the logs view; empty disables it.
	LogPath string
}

// Model is the root application state for Bubble Tea.
type Model struct {
	// Configuration
	ctx       context.Context
	logger    *slog.Logger
	status    StatusSource
	apiURL    string
	prefsPath string
	mounts    *mounts
	now       func() time.Time

	// UI state
	keys        keyMap
	help        help.Model
	theme       Theme
	currentView View
	width       int
	height      int
	ready       bool
	focusedPane int // 0 = table, 1 = detail
	showHelp    bool
	notice      string
	noticeAt    time.Time

	// Pipelines list
	list        *model.Snapshot[[]pipelines.Pipeline]
	table       table.Model
	rowIDs      []string
	lastUpdated time.Time

	// Detail pane
	selectedID     string
	lastPipeline   string
	detailMount    string
	detail         *model.Snapshot[pipelines.Detail]
	detailViewport viewport.Model

	// Problems view, keyed by subject
	problems         map[string][]errstore.Record
	problemsViewport viewport.Model

	// Logs view
	logPath     string
	logEntries  []logtail.Entry
	logErr      error
	logViewport viewport.Model
}

// New creates the root model. Coordinators are mounted by Run.
func New(opts Options) Model {
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	bus := opts.Bus
	if bus == nil {
		bus = events.NewBus(logger)
	}
	prefsPath := opts.PrefsPath
	if prefsPath == "" {
		prefsPath = prefs.DefaultPath()
	}
	theme := GetTheme(opts.ThemeName)

	t := table.New(
		table.WithColumns(listColumns(wideLayout/2)),
		table.WithFocused(true),
	)
	t.SetStyles(tableStyles(theme))

	return Model{
		ctx:       ctx,
		logger:    logger,
		status:    opts.Status,
		apiURL:    opts.APIURL,
		prefsPath: prefsPath,
		mounts: &mounts{
			ctx:        ctx,
			logger:     logger,
			listHub:    opts.List,
			detailHub:  opts.Detail,
			bus:        bus,
			routeReuse: opts.RouteReuse,
			send:       func(tea.Msg) {},
		},
		now:          time.Now,
		keys:         DefaultKeyMap(),
		help:         help.New(),
		theme:        theme,
		currentView:  ViewPipelines,
		table:        t,
		lastPipeline: strings.TrimSpace(opts.LastPipeline),
		problems:     make(map[string][]errstore.Record),
		logPath:      opts.LogPath,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{tickCmd(clockTick)}
	if id := m.lastPipeline; id != "" {
		cmds = append(cmds, func() tea.Msg { return openMsg{id: id} })
	}
	return tea.Batch(cmds...)
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
		m.layout()
		return m, nil

	case tickMsg:
		if m.notice != "" && m.now().Sub(m.noticeAt) > noticeTTL {
			m.notice = ""
		}
		if m.currentView == ViewLogs {
			return m, tea.Batch(tickCmd(clockTick), readLogsCmd(m.logPath))
		}
		return m, tickCmd(clockTick)

	case openMsg:
		m.openPipeline(msg.id)
		return m, nil

	case snapshotMsg[[]pipelines.Pipeline]:
		m.handleListSnapshot(msg)
		return m, nil

	case snapshotMsg[pipelines.Detail]:
		m.handleDetailSnapshot(msg)
		return m, nil

	case problemsMsg:
		m.handleProblems(msg)
		return m, nil

	case navigateMsg:
		m.handleNavigate(events.Navigate(msg))
		return m, nil

	case noticeMsg:
		m.setNotice(msg.Text)
		return m, nil

	case logsMsg:
		m.handleLogs(msg)
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
	b.WriteString(m.renderCommandBar())
	b.WriteString("\n")
	switch m.currentView {
	case ViewProblems:
		b.WriteString(m.renderProblems())
	case ViewLogs:
		b.WriteString(m.renderLogs())
	default:
		b.WriteString(m.renderPipelines())
	}
	return b.String()
}

// handleKey processes keyboard input.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.showHelp {
		// Any key closes help
		m.showHelp = false
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.showHelp = true
		return m, nil

	case key.Matches(msg, m.keys.CycleTheme):
		m.theme = GetTheme(NextTheme(m.theme.Name))
		m.table.SetStyles(tableStyles(m.theme))
		m.refreshViewports()
		m.savePrefs()
		return m, nil

	case key.Matches(msg, m.keys.Refresh):
		if m.status != nil {
			m.status.Kick()
		}
		m.setNotice("Refreshing...")
		return m, nil

	case key.Matches(msg, m.keys.ViewPipelines), key.Matches(msg, m.keys.Escape):
		m.currentView = ViewPipelines
		m.focusedPane = 0
		m.table.Focus()
		return m, nil

	case key.Matches(msg, m.keys.ViewProblems):
		m.currentView = ViewProblems
		m.refreshViewports()
		return m, nil

	case key.Matches(msg, m.keys.ViewLogs):
		if m.logPath == "" {
			m.setNotice("No log file in headless mode")
			return m, nil
		}
		m.currentView = ViewLogs
		return m, readLogsCmd(m.logPath)

	case key.Matches(msg, m.keys.Tab):
		if m.currentView == ViewPipelines {
			m.toggleFocus()
		}
		return m, nil
	}

	switch m.currentView {
	case ViewPipelines:
		if m.focusedPane == 1 {
			cmd := scrollViewport(&m.detailViewport, m.keys, msg)
			return m, cmd
		}
		return m.handleListKey(msg)
	case ViewProblems:
		cmd := scrollViewport(&m.problemsViewport, m.keys, msg)
		return m, cmd
	case ViewLogs:
		cmd := scrollViewport(&m.logViewport, m.keys, msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) toggleFocus() {
	if m.focusedPane == 0 && m.selectedID != "" {
		m.focusedPane = 1
		m.table.Blur()
		return
	}
	m.focusedPane = 0
	m.table.Focus()
}

// handleListKey processes keyboard input for the pipelines table.
func (m Model) handleListKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Open):
		if id := m.cursorID(); id != "" {
			m.openPipeline(id)
		}
	case key.Matches(msg, m.keys.Close):
		m.closePipeline()
	case key.Matches(msg, m.keys.Up):
		m.table.MoveUp(1)
	case key.Matches(msg, m.keys.Down):
		m.table.MoveDown(1)
	case key.Matches(msg, m.keys.Top):
		m.table.GotoTop()
	case key.Matches(msg, m.keys.Bottom):
		m.table.GotoBottom()
	case key.Matches(msg, m.keys.PageUp):
		m.table.MoveUp(max(1, m.table.Height()))
	case key.Matches(msg, m.keys.PageDown):
		m.table.MoveDown(max(1, m.table.Height()))
	}
	return m, nil
}

func scrollViewport(vp *viewport.Model, keys keyMap, msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, keys.Top):
		vp.GotoTop()
		return nil
	case key.Matches(msg, keys.Bottom):
		vp.GotoBottom()
		return nil
	}
	updated, cmd := vp.Update(msg)
	*vp = updated
	return cmd
}

// openPipeline mounts the detail pane on id and remembers it.
func (m *Model) openPipeline(id string) {
	id = strings.TrimSpace(id)
	if id == "" {
		return
	}
	mountID, err := m.mounts.openDetail(id)
	if err != nil {
		m.logger.Error("open pipeline failed", slog.String("pipeline", id), slog.String("error", err.Error()))
		m.setNotice(fmt.Sprintf("Cannot open %s: %v", id, err))
		return
	}
	if mountID != m.detailMount {
		delete(m.problems, pipelines.SubjectDetail)
	}
	m.selectedID = id
	m.detailMount = mountID
	m.detail = nil
	if id != m.lastPipeline {
		m.lastPipeline = id
		m.savePrefs()
	}
	m.updateTable()
	m.refreshViewports()
}

func (m *Model) closePipeline() {
	m.mounts.closeDetail()
	m.selectedID = ""
	m.detailMount = ""
	m.detail = nil
	m.focusedPane = 0
	m.table.Focus()
	delete(m.problems, pipelines.SubjectDetail)
	m.updateTable()
	m.refreshViewports()
}

func (m *Model) handleListSnapshot(msg snapshotMsg[[]pipelines.Pipeline]) {
	if msg.snapshot == nil {
		return
	}
	if msg.mountID != m.mounts.listMountID() {
		return
	}
	m.list = msg.snapshot
	if msg.snapshot.Status == model.StatusLoaded {
		m.lastUpdated = msg.snapshot.UpdatedAt
	}
	m.updateTable()
}

func (m *Model) handleDetailSnapshot(msg snapshotMsg[pipelines.Detail]) {
	s := msg.snapshot
	if s == nil || msg.mountID != m.detailMount {
		return
	}
	if s.Route.Get(pipelines.RouteKey) != m.selectedID {
		return
	}
	m.detail = s
	m.refreshViewports()
}

func (m *Model) handleProblems(msg problemsMsg) {
	switch msg.subject {
	case pipelines.SubjectList:
		if msg.mountID != m.mounts.listMountID() {
			return
		}
	case pipelines.SubjectDetail:
		if msg.mountID != m.detailMount {
			return
		}
	}
	if len(msg.records) == 0 {
		delete(m.problems, msg.subject)
	} else {
		m.problems[msg.subject] = msg.records
	}
	m.refreshViewports()
}

func (m *Model) handleNavigate(nav events.Navigate) {
	if nav.Subject != pipelines.SubjectList {
		return
	}
	id := m.selectedID
	m.closePipeline()
	m.currentView = ViewPipelines
	if id != "" {
		m.setNotice(fmt.Sprintf("Pipeline %s no longer exists", id))
	}
	if id == m.lastPipeline {
		m.lastPipeline = ""
		m.savePrefs()
	}
}

func (m *Model) setNotice(text string) {
	m.notice = text
	m.noticeAt = m.now()
}

func (m *Model) savePrefs() {
	p := prefs.Prefs{Theme: m.theme.Name, LastPipeline: m.lastPipeline}
	if err := prefs.Save(m.prefsPath, p); err != nil {
		m.logger.Warn("save prefs failed", slog.String("path", m.prefsPath), slog.String("error", err.Error()))
	}
}

// layout sizes the table and viewports for the current window.
func (m *Model) layout() {
	listW, listH, detailW, detailH := m.paneSizes()
	m.table.SetColumns(listColumns(listW - 2))
	m.table.SetWidth(listW - 2)
	m.table.SetHeight(max(1, listH-2))
	m.help.Width = m.width

	m.detailViewport.Width = max(0, detailW-2)
	m.detailViewport.Height = max(0, detailH-2)
	m.problemsViewport.Width = max(0, m.width-2)
	m.problemsViewport.Height = max(0, m.height-headerLines-2)
	m.logViewport.Width = max(0, m.width-2)
	m.logViewport.Height = max(0, m.height-headerLines-2)
	m.updateTable()
	m.refreshViewports()
}

// paneSizes returns the outer sizes of the list and detail boxes. Wide
// terminals place them side by side; narrow ones stack them.
func (m Model) paneSizes() (listW, listH, detailW, detailH int) {
	contentH := max(0, m.height-headerLines)
	if m.width >= wideLayout {
		listW = m.width * 11 / 20
		return listW, contentH, m.width - listW, contentH
	}
	listH = contentH / 2
	return m.width, listH, m.width, contentH - listH
}

func (m *Model) refreshViewports() {
	m.detailViewport.SetContent(m.renderDetailContent())
	m.problemsViewport.SetContent(m.renderProblemsContent())
	m.logViewport.SetContent(m.renderLogsContent())
}

// Run starts the Bubble Tea program and blocks until it exits or the context
// is cancelled. Coordinators are unmounted before Run returns.
func Run(opts Options) error {
	m := New(opts)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(m.ctx))
	m.mounts.send = p.Send

	bus := m.mounts.bus
	unsubscribeNav := bus.Subscribe(events.TopicNavigate, func(ev events.Event) {
		if nav, ok := ev.Payload.(events.Navigate); ok {
			p.Send(navigateMsg(nav))
		}
	})
	defer unsubscribeNav()
	unsubscribeNotice := bus.Subscribe(events.TopicNotice, func(ev events.Event) {
		if n, ok := ev.Payload.(events.Notice); ok {
			p.Send(noticeMsg(n))
		}
	})
	defer unsubscribeNotice()

	if err := m.mounts.mountList(); err != nil {
		return fmt.Errorf("mount pipelines: %w", err)
	}
	_, err := p.Run()
	m.mounts.unmountAll()
	if errors.Is(err, tea.ErrProgramKilled) && m.ctx.Err() != nil {
		return nil
	}
	return err
}

// Messages

type tickMsg time.Time

type openMsg struct {
	id string
}

func tickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func tableStyles(t Theme) table.Styles {
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color(t.Border)).
		BorderBottom(true).
		Foreground(lipgloss.Color(t.Muted)).
		Bold(true)
	s.Cell = s.Cell.Foreground(lipgloss.Color(t.Text))
	s.Selected = s.Selected.
		Foreground(lipgloss.Color(t.SelectionText)).
		Background(lipgloss.Color(t.SelectionBg)).
		Bold(false)
	return s
}
