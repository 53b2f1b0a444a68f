// Package render prints analysis results to a terminal.
package render

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/tinytelemetry/trafficwatch/internal/model"
)

// TimeLayout formats timestamps in console output and notifications.
const TimeLayout = "2006-01-02 15:04:05"

// Settings describes the analyzer run announced before processing starts.
type Settings struct {
	InputFile      string
	StatsTimespan  int64
	AlertWindow    int64
	AlertThreshold float64
}

// Renderer writes stats tables and alert banners. It is a pipeline sink and
// is safe for use by both consumers at once.
type Renderer struct {
	mu       sync.Mutex
	out      io.Writer
	loc      *time.Location
	info     lipgloss.Style
	comment  lipgloss.Style
	errStyle lipgloss.Style
	started  lipgloss.Style
	recover  lipgloss.Style
	header   lipgloss.Style
	cell     lipgloss.Style
	border   lipgloss.Style
}

// New creates a renderer writing to out. Timestamps are shown in loc, or in
// local time when loc is nil.
func New(out io.Writer, loc *time.Location) *Renderer {
	if loc == nil {
		loc = time.Local
	}
	r := lipgloss.NewRenderer(out)
	return &Renderer{
		out:      out,
		loc:      loc,
		info:     r.NewStyle().Foreground(lipgloss.Color("42")),
		comment:  r.NewStyle().Foreground(lipgloss.Color("220")),
		errStyle: r.NewStyle().Foreground(lipgloss.Color("231")).Background(lipgloss.Color("160")),
		started:  r.NewStyle().Bold(true).Foreground(lipgloss.Color("226")).Background(lipgloss.Color("160")),
		recover:  r.NewStyle().Bold(true).Foreground(lipgloss.Color("226")).Background(lipgloss.Color("28")),
		header:   r.NewStyle().Bold(true).Foreground(lipgloss.Color("42")).Padding(0, 1),
		cell:     r.NewStyle().Padding(0, 1),
		border:   r.NewStyle().Foreground(lipgloss.Color("240")),
	}
}

// PrintSettings announces the input and the analysis parameters.
func (r *Renderer) PrintSettings(s Settings) {
	lines := []string{
		fmt.Sprintf("Processing the log file %s", s.InputFile),
		fmt.Sprintf("Using %d seconds as a timespan for stats computation", s.StatsTimespan),
		fmt.Sprintf("Using %d seconds as a timewindow for alerting", s.AlertWindow),
		fmt.Sprintf("Using %s hits as a threshold for alerting", strconv.FormatFloat(s.AlertThreshold, 'f', -1, 64)),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, line := range lines {
		fmt.Fprintln(r.out, r.info.Render(line))
	}
}

// OnStats prints the stats table for one span.
func (r *Renderer) OnStats(st *model.Stats) {
	if st == nil {
		return
	}
	heading := fmt.Sprintf("Traffic stats between %s and %s",
		r.format(st.FirstTimestamp), r.format(st.LastTimestamp))

	headers := append([]string{"section"}, model.SectionMetricNames...)
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(r.border).
		Headers(headers...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return r.header
			}
			return r.cell
		})
	for _, sec := range st.SortedSections() {
		row := []string{sec.Section}
		for _, name := range model.SectionMetricNames {
			v, _ := sec.Metrics.Value(name)
			row = append(row, strconv.FormatInt(v, 10))
		}
		t.Row(row...)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.out, r.comment.Render(heading))
	fmt.Fprintln(r.out, t.Render())
}

// OnAlert prints a framed banner for an alert start or recovery.
func (r *Renderer) OnAlert(t model.AlertTransition) {
	style := r.started
	if t.Kind == model.TransitionRecovered {
		style = r.recover
	}
	text := fmt.Sprintf("### %s ###", TransitionText(t, r.loc))
	frame := strings.Repeat("#", len(text))

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, line := range []string{frame, text, frame} {
		fmt.Fprintln(r.out, style.Render(line))
	}
}

// OnError prints a pipeline failure.
func (r *Renderer) OnError(err error) {
	if err == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.out, r.errStyle.Render("Failed to analyze the log: "+err.Error()))
}

func (r *Renderer) format(ts int64) string {
	return time.Unix(ts, 0).In(r.loc).Format(TimeLayout)
}

// TransitionText is the human-readable message for an alert transition.
func TransitionText(t model.AlertTransition, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	a := t.Alert
	switch t.Kind {
	case model.TransitionRecovered:
		d, _ := a.Duration()
		return fmt.Sprintf("High traffic alert recovered at %s. Alert duration: %d seconds.",
			time.Unix(a.RecoveredAt, 0).In(loc).Format(TimeLayout), d)
	default:
		return fmt.Sprintf("High traffic generated an alert - hits = %d, triggered at %s",
			int64(a.AverageHits), time.Unix(a.StartedAt, 0).In(loc).Format(TimeLayout))
	}
}
