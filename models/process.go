package models

import "time"

// ProcessStatus is the lifecycle state of an externally managed process.
type ProcessStatus string

const (
	StatusPending   ProcessStatus = "pending"
	StatusRunning   ProcessStatus = "running"
	StatusCompleted ProcessStatus = "completed"
	StatusFailed    ProcessStatus = "failed"
	StatusStopped   ProcessStatus = "stopped"
)

// Terminal reports whether no further transitions are possible.
func (s ProcessStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusStopped:
		return true
	}
	return false
}

// CanTransition reports whether a process may move from s to next.
// pending -> running -> {completed, failed, stopped}; terminal states absorb.
// A pending process may also end directly, e.g. when it fails to spawn.
func (s ProcessStatus) CanTransition(next ProcessStatus) bool {
	if s == next {
		return true
	}
	switch s {
	case StatusPending:
		return next == StatusRunning || next.Terminal()
	case StatusRunning:
		return next.Terminal()
	case "":
		return true
	}
	return false
}

// LogEntry is one line of process output.
type LogEntry struct {
	Timestamp string `json:"timestamp"`
	Message   string `json:"message"`
	Type      string `json:"type"`
}

// Process mirrors the process-management API's view of a launched command.
type Process struct {
	ID        string        `json:"id"`
	Command   string        `json:"command"`
	Status    ProcessStatus `json:"status"`
	Logs      []LogEntry    `json:"logs,omitempty"`
	StartedAt *time.Time    `json:"start_time,omitempty"`
	EndedAt   *time.Time    `json:"end_time,omitempty"`
	ExitCode  *int          `json:"return_code,omitempty"`
}

// LastLine returns the most recent log message, or "".
func (p *Process) LastLine() string {
	if len(p.Logs) == 0 {
		return ""
	}
	return p.Logs[len(p.Logs)-1].Message
}
