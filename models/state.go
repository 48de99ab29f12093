package models

import (
	"time"

	"gorm.io/datatypes"
)

// Preference keys persisted between sessions.
const (
	PrefColumns     = "columnPreferences"
	PrefAutoScroll  = "autoScrollEnabled"
	PrefCurrentPage = "currentResultsPage"
)

// Preference is a persisted UI setting stored as JSON.
type Preference struct {
	Key       string         `json:"key" gorm:"primaryKey"`
	Value     datatypes.JSON `json:"value"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// CommandHistory remembers a launched command and, once its process has
// ended, a shadow copy of its logs.
type CommandHistory struct {
	ID            uint           `json:"id" gorm:"primaryKey"`
	Command       string         `json:"command" gorm:"uniqueIndex"`
	LastProcessID string         `json:"last_process_id" gorm:"index"`
	LastStatus    ProcessStatus  `json:"last_status"`
	RunCount      int            `json:"run_count"`
	LastRunAt     time.Time      `json:"last_run_at"`
	Logs          datatypes.JSON `json:"logs,omitempty"`
}

func (CommandHistory) TableName() string {
	return "command_history"
}
