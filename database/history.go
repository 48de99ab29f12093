package database

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"resolution-dashboard/models"
)

// HistoryStore keeps the list of launched commands and the logs of
// processes that have ended.
type HistoryStore struct {
	db *gorm.DB
}

func NewHistoryStore(db *gorm.DB) *HistoryStore {
	return &HistoryStore{db: db}
}

// RecordStart notes that command was launched as process pid.
func (s *HistoryStore) RecordStart(command, pid string, at time.Time) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var h models.CommandHistory
		err := tx.Where("command = ?", command).First(&h).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			h = models.CommandHistory{Command: command}
		case err != nil:
			return fmt.Errorf("load history for %q: %w", command, err)
		}
		h.LastProcessID = pid
		h.LastStatus = models.StatusPending
		h.RunCount++
		h.LastRunAt = at.UTC()
		h.Logs = nil
		if err := tx.Save(&h).Error; err != nil {
			return fmt.Errorf("save history for %q: %w", command, err)
		}
		return nil
	})
}

// RecordStatus updates the status of process pid. Logs are only kept once
// the process has reached a terminal status.
func (s *HistoryStore) RecordStatus(pid string, status models.ProcessStatus, logs []models.LogEntry) error {
	updates := map[string]any{"last_status": status}
	if status.Terminal() && len(logs) > 0 {
		raw, err := json.Marshal(logs)
		if err != nil {
			return fmt.Errorf("encode logs for %s: %w", pid, err)
		}
		updates["logs"] = datatypes.JSON(raw)
	}
	err := s.db.Model(&models.CommandHistory{}).
		Where("last_process_id = ?", pid).
		Updates(updates).Error
	if err != nil {
		return fmt.Errorf("update history for %s: %w", pid, err)
	}
	return nil
}

// Recent lists commands, most recently run first.
func (s *HistoryStore) Recent(limit int) ([]models.CommandHistory, error) {
	var out []models.CommandHistory
	q := s.db.Order("last_run_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	return out, nil
}

// Logs returns the saved logs of process pid. It reports false when the
// process is unknown or has no saved logs.
func (s *HistoryStore) Logs(pid string) ([]models.LogEntry, bool, error) {
	var h models.CommandHistory
	err := s.db.Where("last_process_id = ?", pid).First(&h).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load history for %s: %w", pid, err)
	}
	if len(h.Logs) == 0 {
		return nil, false, nil
	}
	var logs []models.LogEntry
	if err := json.Unmarshal(h.Logs, &logs); err != nil {
		return nil, false, fmt.Errorf("decode logs for %s: %w", pid, err)
	}
	return logs, true, nil
}
