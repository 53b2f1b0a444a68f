package model

import "sort"

// Metric names used while building a stats snapshot.
const (
	MetricHits         = "hits"
	MetricNotFound     = "404s"
	MetricSuccessful   = "successful"
	MetricRedirections = "redirections"
	MetricClientErrors = "client_errors"
	MetricServerErrors = "server_errors"
)

// SectionMetricNames lists the six per-section counters in display order.
var SectionMetricNames = []string{
	MetricHits,
	MetricNotFound,
	MetricSuccessful,
	MetricRedirections,
	MetricClientErrors,
	MetricServerErrors,
}

// SectionMetrics holds the counters for one URL section.
type SectionMetrics struct {
	Hits         int64 `json:"hits"`
	NotFound     int64 `json:"404s"`
	Successful   int64 `json:"successful"`
	Redirections int64 `json:"redirections"`
	ClientErrors int64 `json:"client_errors"`
	ServerErrors int64 `json:"server_errors"`
}

// Value returns the counter with the given metric name.
func (m SectionMetrics) Value(name string) (int64, bool) {
	switch name {
	case MetricHits:
		return m.Hits, true
	case MetricNotFound:
		return m.NotFound, true
	case MetricSuccessful:
		return m.Successful, true
	case MetricRedirections:
		return m.Redirections, true
	case MetricClientErrors:
		return m.ClientErrors, true
	case MetricServerErrors:
		return m.ServerErrors, true
	}
	return 0, false
}

// Stats is the traffic snapshot for one aggregation span.
// FirstTimestamp and LastTimestamp are the inclusive bounds of the span.
type Stats struct {
	FirstTimestamp int64                      `json:"first_timestamp"`
	LastTimestamp  int64                      `json:"last_timestamp"`
	Sections       map[string]*SectionMetrics `json:"sections"`
}

// SectionStat pairs a section name with its counters.
type SectionStat struct {
	Section string         `json:"section"`
	Metrics SectionMetrics `json:"metrics"`
}

// SortedSections returns sections ordered by hits descending, then by name.
func (s *Stats) SortedSections() []SectionStat {
	out := make([]SectionStat, 0, len(s.Sections))
	for name, m := range s.Sections {
		out = append(out, SectionStat{Section: name, Metrics: *m})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Metrics.Hits != out[j].Metrics.Hits {
			return out[i].Metrics.Hits > out[j].Metrics.Hits
		}
		return out[i].Section < out[j].Section
	})
	return out
}

// TotalHits sums hits over all sections.
func (s *Stats) TotalHits() int64 {
	var total int64
	for _, m := range s.Sections {
		total += m.Hits
	}
	return total
}
