package model

import "fmt"

// LogRecord is one parsed access-log entry.
// Records are built once by the parser and never mutated afterwards.
type LogRecord struct {
	RemoteHost string `json:"remote_host"`
	RFC931     string `json:"rfc931"`    // identd user
	AuthUser   string `json:"auth_user"` // authenticated user
	Timestamp  int64  `json:"timestamp"` // epoch seconds
	Request    string `json:"request"`   // METHOD /path HTTP/version
	Status     int    `json:"status"`
	Bytes      int64  `json:"bytes"`
}

// Key returns the seven-field identity of the record.
// Two records share a key only when all seven fields are equal; string fields
// are quoted so a separator inside a field cannot shift the boundaries.
func (r LogRecord) Key() string {
	return fmt.Sprintf("%q|%q|%q|%d|%q|%d|%d",
		r.RemoteHost, r.RFC931, r.AuthUser, r.Timestamp, r.Request, r.Status, r.Bytes)
}

// StoredRecord is a LogRecord as archived by the storage layer.
type StoredRecord struct {
	LogRecord
	Source string `json:"source"`
}

// Counters holds ingestion counters exposed on the read surfaces.
type Counters struct {
	Parsed     int64 `json:"parsed"`
	Skipped    int64 `json:"skipped"`
	Failed     int64 `json:"failed"`
	Buffered   int   `json:"buffered"` // records currently in the alert window
	StatsCount int64 `json:"stats_count"`
}
