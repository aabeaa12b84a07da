package models

import "time"

// Status is the state of a download_logs row.
type Status string

const (
	StatusInfo    Status = "info"
	StatusSuccess Status = "success"
	StatusWarning Status = "warning"
	StatusError   Status = "error"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusInfo, StatusSuccess, StatusWarning, StatusError:
		return true
	}
	return false
}

// RunLogEntry is one row of download_logs, one per pipeline run.
type RunLogEntry struct {
	ID           string     `json:"id"`
	Status       Status     `json:"status"`
	Message      string     `json:"message"`
	RecordsAdded int        `json:"records_added"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    *time.Time `json:"updated_at"`
}

// LogUpdate moves an existing log row to a new status.
type LogUpdate struct {
	ID           string
	Status       Status
	Message      string
	RecordsAdded int
	UpdatedAt    time.Time
}
