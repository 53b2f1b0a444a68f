// Package tui implements the terminal dashboard that follows a running
// analyzer through its live state.
package tui

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/NimbleMarkets/ntcharts/sparkline"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tinytelemetry/trafficwatch/internal/model"
	"github.com/tinytelemetry/trafficwatch/internal/render"
)

const (
	DefaultUpdateInterval = time.Second
	recentAlertLines      = 5
	sparklineHeight       = 5
)

// Dashboard is the Bubble Tea model for the live dashboard.
type Dashboard struct {
	client   model.LiveQuerier
	interval time.Duration
	loc      *time.Location
	keys     KeyMap
	help     help.Model
	table    table.Model
	width    int
	height   int

	stats     *model.Stats
	alert     *model.Alert
	recent    []model.AlertTransition
	rates     []model.RateSample
	counters  model.Counters
	lastErr   string
	updatedAt time.Time

	fetchInFlight bool
}

// NewDashboard creates a dashboard polling client every interval.
func NewDashboard(client model.LiveQuerier, interval time.Duration, loc *time.Location) *Dashboard {
	if interval <= 0 {
		interval = DefaultUpdateInterval
	}
	if loc == nil {
		loc = time.Local
	}
	t := table.New(
		table.WithColumns(sectionColumns(80)),
		table.WithFocused(true),
		table.WithHeight(10),
	)
	return &Dashboard{
		client:   client,
		interval: interval,
		loc:      loc,
		keys:     DefaultKeyMap(),
		help:     help.New(),
		table:    t,
	}
}

func sectionColumns(width int) []table.Column {
	metricWidth := 12
	sectionWidth := width - metricWidth*len(model.SectionMetricNames) - 2*(len(model.SectionMetricNames)+1)
	if sectionWidth < 12 {
		sectionWidth = 12
	}
	cols := []table.Column{{Title: "section", Width: sectionWidth}}
	for _, name := range model.SectionMetricNames {
		cols = append(cols, table.Column{Title: name, Width: metricWidth})
	}
	return cols
}

// Init starts the first fetch and the refresh tick.
func (d *Dashboard) Init() tea.Cmd {
	d.fetchInFlight = true
	return tea.Batch(
		fetchSnapshotCmd(d.client, model.DefaultRateSamples, recentAlertLines),
		tickCmd(d.interval),
	)
}

// Update handles messages.
func (d *Dashboard) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		d.width = msg.Width
		d.height = msg.Height
		d.table.SetColumns(sectionColumns(msg.Width - 4))
		d.table.SetHeight(d.tableHeight())
		return d, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, d.keys.Quit), key.Matches(msg, d.keys.ForceQuit):
			return d, tea.Quit
		case key.Matches(msg, d.keys.Refresh):
			return d, d.fetch()
		}
		var cmd tea.Cmd
		d.table, cmd = d.table.Update(msg)
		return d, cmd

	case TickMsg:
		return d, tea.Batch(d.fetch(), tickCmd(d.interval))

	case snapshotMsg:
		d.fetchInFlight = false
		d.apply(msg)
		return d, nil
	}
	return d, nil
}

// fetch starts a poll unless one is already running.
func (d *Dashboard) fetch() tea.Cmd {
	if d.fetchInFlight {
		return nil
	}
	d.fetchInFlight = true
	return fetchSnapshotCmd(d.client, model.DefaultRateSamples, recentAlertLines)
}

func (d *Dashboard) apply(msg snapshotMsg) {
	if msg.err != nil {
		d.lastErr = msg.err.Error()
		return
	}
	d.lastErr = ""
	d.stats = msg.stats
	d.alert = msg.alert
	d.recent = msg.recent
	d.rates = msg.rates
	d.counters = msg.counters
	d.updatedAt = msg.fetchedAt
	d.table.SetRows(sectionRows(msg.stats))
}

func sectionRows(st *model.Stats) []table.Row {
	if st == nil {
		return nil
	}
	var rows []table.Row
	for _, sec := range st.SortedSections() {
		row := table.Row{sec.Section}
		for _, name := range model.SectionMetricNames {
			v, _ := sec.Metrics.Value(name)
			row = append(row, strconv.FormatInt(v, 10))
		}
		rows = append(rows, row)
	}
	return rows
}

func (d *Dashboard) tableHeight() int {
	// title, banner, panel borders, sparkline, recent alerts, status, help
	h := d.height - 4 - (sparklineHeight + 2) - (recentAlertLines + 3) - 4
	if h < 3 {
		h = 3
	}
	return h
}

// View renders the dashboard.
func (d *Dashboard) View() string {
	if d.width <= 0 || d.height <= 0 {
		return "Initializing dashboard..."
	}

	width := d.width - 2
	sections := []string{
		titleStyle.Render("trafficwatch") + dimStyle.Render("  live traffic"),
		d.renderBanner(width),
		panelStyle.Width(width).Render(d.renderStatsPanel()),
		panelStyle.Width(width).Render(d.renderRatePanel(width - 4)),
		panelStyle.Width(width).Render(d.renderRecentAlerts()),
		d.renderStatusLine(),
		d.help.View(d.keys),
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (d *Dashboard) renderBanner(width int) string {
	if d.alert != nil {
		text := render.TransitionText(model.AlertTransition{Kind: model.TransitionStarted, Alert: *d.alert}, d.loc)
		return alertStyle.Width(width).Render("ALERT  " + text)
	}
	return okStyle.Width(width).Render("OK  traffic below threshold")
}

func (d *Dashboard) renderStatsPanel() string {
	if d.stats == nil {
		return dimStyle.Render("Waiting for the first stats span...")
	}
	heading := fmt.Sprintf("Traffic stats between %s and %s  (%d hits)",
		d.format(d.stats.FirstTimestamp), d.format(d.stats.LastTimestamp), d.stats.TotalHits())
	return lipgloss.JoinVertical(lipgloss.Left, titleStyle.Render(heading), d.table.View())
}

func (d *Dashboard) renderRatePanel(width int) string {
	title := "Request rate (hits/s, trailing window)"
	if len(d.rates) == 0 {
		return lipgloss.JoinVertical(lipgloss.Left, titleStyle.Render(title), dimStyle.Render("no samples yet"))
	}
	if width < 10 {
		width = 10
	}
	sl := sparkline.New(width, sparklineHeight)
	values := make([]float64, len(d.rates))
	for i, s := range d.rates {
		values[i] = s.Rate
	}
	sl.PushAll(values)
	sl.Draw()

	last := d.rates[len(d.rates)-1]
	title = fmt.Sprintf("%s  now %.2f at %s", title, last.Rate, d.format(last.Timestamp))
	return lipgloss.JoinVertical(lipgloss.Left, titleStyle.Render(title), sl.View())
}

func (d *Dashboard) renderRecentAlerts() string {
	lines := []string{titleStyle.Render("Recent alerts")}
	if len(d.recent) == 0 {
		lines = append(lines, dimStyle.Render("none"))
	}
	for _, t := range d.recent {
		lines = append(lines, render.TransitionText(t, d.loc))
	}
	return strings.Join(lines, "\n")
}

func (d *Dashboard) renderStatusLine() string {
	if d.lastErr != "" {
		return errorStyle.Render("error: " + d.lastErr)
	}
	c := d.counters
	status := fmt.Sprintf("parsed %d  skipped %d  failed %d  in window %d  spans %d",
		c.Parsed, c.Skipped, c.Failed, c.Buffered, c.StatsCount)
	if !d.updatedAt.IsZero() {
		status += "  updated " + d.updatedAt.Format("15:04:05")
	}
	return dimStyle.Render(status)
}

func (d *Dashboard) format(ts int64) string {
	return time.Unix(ts, 0).In(d.loc).Format(render.TimeLayout)
}
