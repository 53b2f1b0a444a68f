package model

// Shared defaults used by both the analyzer and the dashboard binaries.
const (
	DefaultStatsTimespan  = 10  // seconds
	DefaultAlertWindow    = 120 // seconds
	DefaultAlertThreshold = 10  // requests per second
	DefaultRecentAlerts   = 50
	DefaultRateSamples    = 120
)
