package supervisor

import "time"

// Status is a snapshot of the supervised process.
type Status struct {
	Name         string    `json:"name"`
	Running      bool      `json:"running"`
	PID          int       `json:"pid,omitempty"`
	StartedAt    time.Time `json:"started_at,omitempty"`
	StoppedAt    time.Time `json:"stopped_at,omitempty"`
	Starts       int       `json:"starts"`
	Restarts     int       `json:"restarts"`
	LastExitCode *int      `json:"last_exit_code,omitempty"`
	LastError    string    `json:"last_error,omitempty"`
}
