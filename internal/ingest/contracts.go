package ingest

import "github.com/tinytelemetry/trafficwatch/internal/model"

// RecordSink accepts records accepted by a processor.
type RecordSink interface {
	Add(record *model.StoredRecord)
}

// EnvelopeProcessor consumes source-tagged ingest lines and emits access records.
type EnvelopeProcessor interface {
	ProcessEnvelope(model.IngestEnvelope) *ProcessResult
	Counters() model.Counters
}

// NewEnvelopeProcessor creates the access-log processor. dedupeSize > 0
// enables dropping repeated identical records among the last dedupeSize keys.
func NewEnvelopeProcessor(sink RecordSink, sourceName string, dedupeSize int) (EnvelopeProcessor, error) {
	return NewProcessor(sink, sourceName, dedupeSize)
}
