package database

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"resolution-dashboard/models"
)

// PreferenceStore persists UI settings between sessions.
type PreferenceStore struct {
	db *gorm.DB
}

func NewPreferenceStore(db *gorm.DB) *PreferenceStore {
	return &PreferenceStore{db: db}
}

// Get decodes the preference stored under key into dst. It reports false
// when nothing is stored.
func (s *PreferenceStore) Get(key string, dst any) (bool, error) {
	var pref models.Preference
	err := s.db.Where("key = ?", key).First(&pref).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load preference %s: %w", key, err)
	}
	if err := json.Unmarshal(pref.Value, dst); err != nil {
		return false, fmt.Errorf("decode preference %s: %w", key, err)
	}
	return true, nil
}

// Set stores value under key, replacing any previous value.
func (s *PreferenceStore) Set(key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode preference %s: %w", key, err)
	}
	pref := models.Preference{Key: key, Value: datatypes.JSON(raw), UpdatedAt: time.Now().UTC()}
	err = s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&pref).Error
	if err != nil {
		return fmt.Errorf("save preference %s: %w", key, err)
	}
	return nil
}

// Columns returns the saved visible columns, or nil when none are saved.
func (s *PreferenceStore) Columns() ([]string, error) {
	var cols []string
	if _, err := s.Get(models.PrefColumns, &cols); err != nil {
		return nil, err
	}
	return cols, nil
}

func (s *PreferenceStore) SetColumns(cols []string) error {
	return s.Set(models.PrefColumns, cols)
}

// AutoScroll defaults to enabled.
func (s *PreferenceStore) AutoScroll() (bool, error) {
	enabled := true
	if _, err := s.Get(models.PrefAutoScroll, &enabled); err != nil {
		return true, err
	}
	return enabled, nil
}

func (s *PreferenceStore) SetAutoScroll(enabled bool) error {
	return s.Set(models.PrefAutoScroll, enabled)
}

type savedPage struct {
	LoadID string `json:"load_id"`
	Page   int    `json:"page"`
}

// CurrentPage returns the page saved for the given dataset load. A page
// saved for a different load does not carry over.
func (s *PreferenceStore) CurrentPage(loadID string) (int, error) {
	var saved savedPage
	ok, err := s.Get(models.PrefCurrentPage, &saved)
	if err != nil || !ok || saved.LoadID != loadID || saved.Page < 1 {
		return 1, err
	}
	return saved.Page, nil
}

func (s *PreferenceStore) SetCurrentPage(loadID string, page int) error {
	return s.Set(models.PrefCurrentPage, savedPage{LoadID: loadID, Page: page})
}
