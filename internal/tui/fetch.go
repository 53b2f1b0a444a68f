package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/tinytelemetry/trafficwatch/internal/model"
)

// TickMsg drives the periodic refresh.
type TickMsg time.Time

// snapshotMsg carries one poll of the live state.
type snapshotMsg struct {
	stats     *model.Stats
	alert     *model.Alert
	recent    []model.AlertTransition
	rates     []model.RateSample
	counters  model.Counters
	fetchedAt time.Time
	err       error // first error encountered during this poll
}

func tickCmd(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// fetchSnapshotCmd polls every read of the live state.
func fetchSnapshotCmd(q model.LiveQuerier, rateLimit, alertLimit int) tea.Cmd {
	return func() tea.Msg {
		msg := snapshotMsg{fetchedAt: time.Now()}
		keep := func(err error) {
			if err != nil && msg.err == nil {
				msg.err = err
			}
		}

		var err error
		msg.stats, err = q.LatestStats()
		keep(err)
		msg.alert, err = q.CurrentAlert()
		keep(err)
		msg.recent, err = q.RecentAlerts(alertLimit)
		keep(err)
		msg.rates, err = q.RateSamples(rateLimit)
		keep(err)
		msg.counters, err = q.Counters()
		keep(err)
		return msg
	}
}
