package stats

import (
	"errors"
	"fmt"
)

var (
	// ErrUnparsableRequest matches any *UnparsableRequestError.
	ErrUnparsableRequest = errors.New("stats: unparsable request line")

	// ErrMetricExists is returned when a section metric is defined twice.
	ErrMetricExists = errors.New("stats: section metric already defined")

	// ErrUnknownMetric is returned when a metric is not one of the section counters.
	ErrUnknownMetric = errors.New("stats: unknown section metric")

	// ErrMetricUndefined is returned when a counter is incremented before it was defined.
	ErrMetricUndefined = errors.New("stats: section metric not defined")
)

// UnparsableRequestError reports a request line the section extractor could not match.
type UnparsableRequestError struct {
	Request string
}

func (e *UnparsableRequestError) Error() string {
	return fmt.Sprintf("stats: unparsable request line %q", e.Request)
}

// Is lets errors.Is match ErrUnparsableRequest.
func (e *UnparsableRequestError) Is(target error) bool {
	return target == ErrUnparsableRequest
}

// metricError decorates an invariant violation with the section and metric involved.
type metricError struct {
	section string
	metric  string
	err     error
}

func (e *metricError) Error() string {
	return fmt.Sprintf("%v (section=%s metric=%s)", e.err, e.section, e.metric)
}

func (e *metricError) Unwrap() error { return e.err }
