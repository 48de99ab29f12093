package database

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"resolution-dashboard/models"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := Open(":memory:")
	require.NoError(t, err)
	return db
}

func TestPreferenceStore_Columns(t *testing.T) {
	prefs := NewPreferenceStore(openTestDB(t))

	cols, err := prefs.Columns()
	require.NoError(t, err)
	assert.Nil(t, cols)

	require.NoError(t, prefs.SetColumns([]string{"id", "title"}))
	require.NoError(t, prefs.SetColumns([]string{"id", "tags"}))

	cols, err = prefs.Columns()
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "tags"}, cols)
}

func TestPreferenceStore_AutoScrollDefaultsOn(t *testing.T) {
	prefs := NewPreferenceStore(openTestDB(t))

	on, err := prefs.AutoScroll()
	require.NoError(t, err)
	assert.True(t, on)

	require.NoError(t, prefs.SetAutoScroll(false))
	on, err = prefs.AutoScroll()
	require.NoError(t, err)
	assert.False(t, on)
}

func TestPreferenceStore_CurrentPageScopedToLoad(t *testing.T) {
	prefs := NewPreferenceStore(openTestDB(t))

	page, err := prefs.CurrentPage("load-1")
	require.NoError(t, err)
	assert.Equal(t, 1, page)

	require.NoError(t, prefs.SetCurrentPage("load-1", 3))
	page, err = prefs.CurrentPage("load-1")
	require.NoError(t, err)
	assert.Equal(t, 3, page)

	page, err = prefs.CurrentPage("load-2")
	require.NoError(t, err)
	assert.Equal(t, 1, page)
}

func TestHistoryStore(t *testing.T) {
	history := NewHistoryStore(openTestDB(t))
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, history.RecordStart("python run.py", "p1", now))
	require.NoError(t, history.RecordStart("python other.py", "p2", now.Add(time.Minute)))
	require.NoError(t, history.RecordStart("python run.py", "p3", now.Add(2*time.Minute)))

	recent, err := history.Recent(10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "python run.py", recent[0].Command)
	assert.Equal(t, 2, recent[0].RunCount)
	assert.Equal(t, "p3", recent[0].LastProcessID)

	logs := []models.LogEntry{{Message: "done", Type: "stdout"}}
	require.NoError(t, history.RecordStatus("p3", models.StatusRunning, logs))
	_, ok, err := history.Logs("p3")
	require.NoError(t, err)
	assert.False(t, ok, "logs are only kept for ended processes")

	require.NoError(t, history.RecordStatus("p3", models.StatusCompleted, logs))
	saved, ok, err := history.Logs("p3")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, logs, saved)

	_, ok, err = history.Logs("unknown")
	require.NoError(t, err)
	assert.False(t, ok)
}
