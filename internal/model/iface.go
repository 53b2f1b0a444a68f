package model

// RateSample is the trailing average request rate observed at one timestamp.
type RateSample struct {
	Timestamp int64   `json:"timestamp"`
	Rate      float64 `json:"rate"`
}

// LiveQuerier exposes the in-memory analyzer state.
// It is the contract shared by the HTTP API, the socket RPC server and its client.
type LiveQuerier interface {
	LatestStats() (*Stats, error)
	CurrentAlert() (*Alert, error)
	RecentAlerts(limit int) ([]AlertTransition, error)
	Counters() (Counters, error)
	RateSamples(limit int) ([]RateSample, error)
}

// SchemaQuerier provides schema introspection and arbitrary read-only queries.
type SchemaQuerier interface {
	ExecuteQuery(query string) ([]map[string]interface{}, error)
	GetSchemaDescription() string
	TableRowCounts() (map[string]int64, error)
}

// RecordWriter provides append-oriented writes for parsed access records.
type RecordWriter interface {
	InsertRecordBatch(records []*StoredRecord) error
}

// AlertStore persists alert transitions and reads alert history back.
type AlertStore interface {
	RecordAlert(t AlertTransition) error
	AlertHistory(limit int) ([]Alert, error)
}

// ArchiveReader is the read contract of the record archive.
type ArchiveReader interface {
	SchemaQuerier
	TotalRecordCount() (int64, error)
	AlertHistory(limit int) ([]Alert, error)
}
