package ui

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muurk/pettracer/internal/devicestate"
)

// DefaultRefreshInterval is how often the dashboard polls its source.
const DefaultRefreshInterval = 2 * time.Second

// fetchTimeout bounds a single Source.Fetch.
const fetchTimeout = 5 * time.Second

type viewMsg struct {
	view View
	err  error
	at   time.Time
}

type tickMsg time.Time

// RefreshMsg asks the dashboard to fetch immediately.
type RefreshMsg struct{}

type dashboardKeyMap struct {
	Up      key.Binding
	Down    key.Binding
	Refresh key.Binding
	Quit    key.Binding
}

func (k dashboardKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Refresh, k.Quit}
}

func (k dashboardKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Up, k.Down}, {k.Refresh, k.Quit}}
}

var dashboardKeys = dashboardKeyMap{
	Up:      key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
	Down:    key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
	Refresh: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
	Quit:    key.NewBinding(key.WithKeys("q", "esc", "ctrl+c"), key.WithHelp("q", "quit")),
}

var dashboardColumns = []table.Column{
	{Title: "ID", Width: 8},
	{Title: "Name", Width: 14},
	{Title: "Mode", Width: 12},
	{Title: "Signal", Width: 14},
	{Title: "Battery", Width: 12},
	{Title: "Position", Width: 21},
	{Title: "Updated", Width: 10},
}

// Dashboard is the Bubble Tea model behind `pettracer-live watch`.
type Dashboard struct {
	source   Source
	interval time.Duration
	now      func() time.Time

	table   table.Model
	spinner spinner.Model
	battery progress.Model
	signal  progress.Model
	help    help.Model
	keys    dashboardKeyMap

	view      View
	devices   map[int]*devicestate.Snapshot
	err       error
	fetchedAt time.Time
	width     int
	height    int
}

// NewDashboard builds the model. interval <= 0 selects the default.
func NewDashboard(source Source, interval time.Duration) Dashboard {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	width, height := GetTerminalSize()

	t := table.New(
		table.WithColumns(dashboardColumns),
		table.WithFocused(true),
		table.WithHeight(8),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(MutedColor).
		BorderBottom(true).
		Bold(true)
	styles.Selected = styles.Selected.
		Foreground(TextColor).
		Background(PrimaryColor).
		Bold(false)
	t.SetStyles(styles)

	return Dashboard{
		source:   source,
		interval: interval,
		now:      time.Now,
		table:    t,
		spinner:  spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(lipgloss.NewStyle().Foreground(WarningColor))),
		battery:  progress.New(progress.WithDefaultGradient(), progress.WithWidth(24), progress.WithoutPercentage()),
		signal:   progress.New(progress.WithDefaultGradient(), progress.WithWidth(24), progress.WithoutPercentage()),
		help:     help.New(),
		keys:     dashboardKeys,
		devices:  map[int]*devicestate.Snapshot{},
		width:    width,
		height:   height,
	}
}

func (m Dashboard) fetch() tea.Cmd {
	source := m.source
	now := m.now
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
		defer cancel()
		view, err := source.Fetch(ctx)
		return viewMsg{view: view, err: err, at: now()}
	}
}

func (m Dashboard) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Init implements tea.Model
func (m Dashboard) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.fetch(), m.tick())
}

// Update implements tea.Model
func (m Dashboard) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Refresh):
			return m, m.fetch()
		}
		var cmd tea.Cmd
		m.table, cmd = m.table.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = clampWidth(msg.Width)
		m.height = msg.Height
		m.table.SetWidth(m.width)
		// banner, detail pane and help take about 14 lines
		if h := msg.Height - 14; h > 3 {
			m.table.SetHeight(h)
		}
		return m, nil

	case viewMsg:
		m.fetchedAt = msg.at
		m.err = msg.err
		if msg.err == nil {
			m.setView(msg.view)
		}
		return m, nil

	case RefreshMsg:
		return m, m.fetch()

	case tickMsg:
		return m, tea.Batch(m.fetch(), m.tick())

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Dashboard) setView(v View) {
	m.view = v
	m.devices = make(map[int]*devicestate.Snapshot, len(v.Devices))
	rows := make([]table.Row, 0, len(v.Devices))
	for _, s := range v.Devices {
		m.devices[s.DeviceID] = s
		rows = append(rows, table.Row{
			strconv.Itoa(s.DeviceID),
			formatName(s),
			formatMode(s),
			formatSignal(s),
			formatBattery(s),
			formatPosition(s),
			formatAge(m.now(), s.UpdatedAt),
		})
	}
	m.table.SetRows(rows)
	if m.table.Cursor() >= len(rows) && len(rows) > 0 {
		m.table.SetCursor(len(rows) - 1)
	}
}

// selected returns the snapshot under the cursor, or nil.
func (m Dashboard) selected() *devicestate.Snapshot {
	row := m.table.SelectedRow()
	if len(row) == 0 {
		return nil
	}
	id, err := strconv.Atoi(row[0])
	if err != nil {
		return nil
	}
	return m.devices[id]
}

// View implements tea.Model
func (m Dashboard) View() string {
	sections := []string{m.renderBanner(), m.table.View()}
	if s := m.selected(); s != nil {
		sections = append(sections, m.renderDetail(s))
	} else if len(m.view.Devices) == 0 {
		sections = append(sections, MutedStyle.Render("  no device data yet"))
	}
	if m.err != nil {
		sections = append(sections, ErrorMessageStyle.Render("  fetch failed: "+m.err.Error()))
	}
	sections = append(sections, m.help.View(m.keys))
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Dashboard) renderBanner() string {
	st := m.view.Status
	state := st.State
	if state == "" {
		state = "unknown"
	}

	parts := []string{TitleStyle.Render("PETTRACER LIVE")}
	if state != "live" {
		parts = append(parts, m.spinner.View())
	}
	parts = append(parts, StateStyle(state).Render(state))

	var info []string
	if state == "live" && !st.LiveSince.IsZero() {
		info = append(info, "since "+st.LiveSince.Local().Format("15:04:05"))
	}
	if st.Retries > 0 {
		info = append(info, fmt.Sprintf("retry %d, next in %s", st.Retries, st.NextBackoff))
	}
	info = append(info, fmt.Sprintf("%d tracked", len(st.DeviceIDs)), m.source.Describe())

	line := strings.Join(parts, " ") + "  " + MutedStyle.Render(strings.Join(info, " · "))
	if st.LastError != "" && state != "live" {
		line += "\n" + ErrorMessageStyle.Render("  last error: "+st.LastError)
	}
	return line + "\n"
}

func (m Dashboard) renderDetail(s *devicestate.Snapshot) string {
	row := func(k, v string) string {
		return ResultKeyStyle.Render(k) + " " + ResultValueStyle.Render(v)
	}

	lines := []string{
		SuccessTitleStyle.Render(fmt.Sprintf("%s (#%d)", formatName(s), s.DeviceID)),
		row("Position", formatPosition(s)),
	}
	if s.PositionTime != "" {
		lines = append(lines, row("Fix time", s.PositionTime))
	}
	if s.Mode != nil {
		lines = append(lines, row("Mode", fmt.Sprintf("%s (code %d)", s.Mode.Name, s.Mode.Code)))
	}
	if s.Battery != nil {
		lines = append(lines, row("Battery", m.battery.ViewAs(float64(s.Battery.Percent)/100)+" "+formatBattery(s)+" "+s.Battery.Status.String()))
	}
	if s.Signal != nil {
		lines = append(lines, row("Signal", m.signal.ViewAs(s.Signal.Percent/100)+" "+fmt.Sprintf("%s %.1f dBm", s.Signal.Level, s.Signal.DBm)))
	}
	lines = append(lines,
		row("LED / buzzer", formatFlag(s.LED)+" / "+formatFlag(s.Buzzer)),
		row("Last contact", orPlaceholder(s.LastContact)),
		row("History", strconv.Itoa(len(s.History))+" entries"),
	)

	return DetailPaneStyle.Width(m.width - 2).Render(strings.Join(lines, "\n"))
}

func orPlaceholder(v string) string {
	if v == "" {
		return placeholder
	}
	return v
}

// RunDashboard runs the dashboard until the user quits or ctx ends.
func RunDashboard(ctx context.Context, source Source, interval time.Duration) error {
	p := tea.NewProgram(NewDashboard(source, interval), tea.WithAltScreen(), tea.WithContext(ctx))

	if n, ok := source.(Notifier); ok {
		remove := n.Subscribe(func() { go p.Send(RefreshMsg{}) })
		defer remove()
	}

	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
