package models

import "time"

// ScanReport is the result of one scan cycle over a symbol list.
// Errors is keyed by "exchange:symbol".
type ScanReport struct {
	ScanID     string            `json:"scan_id"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
	Symbols    int               `json:"symbols"`
	Signals    []Signal          `json:"signals"`
	Errors     map[string]string `json:"errors,omitempty"`
}
