package model

// Alert is one high-traffic episode.
// It is immutable after construction except for the single Recover transition.
type Alert struct {
	ID          string  `json:"id"`
	StartedAt   int64   `json:"started_at"`
	AverageHits float64 `json:"average_hits"`
	RecoveredAt int64   `json:"recovered_at,omitempty"`
	Active      bool    `json:"active"`
}

// NewAlert creates an active alert.
func NewAlert(id string, startedAt int64, averageHits float64) *Alert {
	return &Alert{
		ID:          id,
		StartedAt:   startedAt,
		AverageHits: averageHits,
		Active:      true,
	}
}

// Recover marks the alert as recovered at ts. It only succeeds once.
func (a *Alert) Recover(ts int64) bool {
	if !a.Active {
		return false
	}
	a.RecoveredAt = ts
	a.Active = false
	return true
}

// Duration returns the alert duration in seconds once it has recovered.
func (a Alert) Duration() (int64, bool) {
	if a.Active {
		return 0, false
	}
	return a.RecoveredAt - a.StartedAt, true
}

// TransitionKind names the edge of the alert state machine that fired.
type TransitionKind string

const (
	TransitionStarted   TransitionKind = "started"
	TransitionRecovered TransitionKind = "recovered"
)

// AlertTransition is emitted by the monitor on Idle->Active and Active->Idle.
// Alert is a copy taken at the moment of the transition.
type AlertTransition struct {
	Kind  TransitionKind `json:"kind"`
	Alert Alert          `json:"alert"`
}
