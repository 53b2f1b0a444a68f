package stats

import "github.com/tinytelemetry/trafficwatch/internal/model"

var knownMetrics = func() map[string]struct{} {
	m := make(map[string]struct{}, len(model.SectionMetricNames))
	for _, name := range model.SectionMetricNames {
		m[name] = struct{}{}
	}
	return m
}()

// snapshotBuilder accumulates named per-section counters for one span.
// Every metric is defined once before it is incremented.
type snapshotBuilder struct {
	first    int64
	last     int64
	sections map[string]map[string]int64
}

func newSnapshotBuilder(first, last int64) *snapshotBuilder {
	return &snapshotBuilder{
		first:    first,
		last:     last,
		sections: make(map[string]map[string]int64),
	}
}

func (b *snapshotBuilder) hasMetric(section, metric string) bool {
	metrics, ok := b.sections[section]
	if !ok {
		return false
	}
	_, ok = metrics[metric]
	return ok
}

func (b *snapshotBuilder) addMetric(section, metric string, value int64) error {
	if _, ok := knownMetrics[metric]; !ok {
		return &metricError{section: section, metric: metric, err: ErrUnknownMetric}
	}
	metrics, ok := b.sections[section]
	if !ok {
		metrics = make(map[string]int64, len(knownMetrics))
		b.sections[section] = metrics
	}
	if _, exists := metrics[metric]; exists {
		return &metricError{section: section, metric: metric, err: ErrMetricExists}
	}
	metrics[metric] = value
	return nil
}

func (b *snapshotBuilder) increment(section, metric string) error {
	if _, ok := knownMetrics[metric]; !ok {
		return &metricError{section: section, metric: metric, err: ErrUnknownMetric}
	}
	if !b.hasMetric(section, metric) {
		return &metricError{section: section, metric: metric, err: ErrMetricUndefined}
	}
	b.sections[section][metric]++
	return nil
}

// initSection defines the six counters of a section the first time it is seen.
func (b *snapshotBuilder) initSection(section string) error {
	for _, metric := range model.SectionMetricNames {
		if b.hasMetric(section, metric) {
			continue
		}
		if err := b.addMetric(section, metric, 0); err != nil {
			return err
		}
	}
	return nil
}

func (b *snapshotBuilder) build() *model.Stats {
	out := &model.Stats{
		FirstTimestamp: b.first,
		LastTimestamp:  b.last,
		Sections:       make(map[string]*model.SectionMetrics, len(b.sections)),
	}
	for section, m := range b.sections {
		out.Sections[section] = &model.SectionMetrics{
			Hits:         m[model.MetricHits],
			NotFound:     m[model.MetricNotFound],
			Successful:   m[model.MetricSuccessful],
			Redirections: m[model.MetricRedirections],
			ClientErrors: m[model.MetricClientErrors],
			ServerErrors: m[model.MetricServerErrors],
		}
	}
	return out
}
