package db

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loghistory/internal/config"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	cfg := &config.Config{DatabaseURL: "sqlite://" + filepath.Join(t.TempDir(), "log.db")}
	store, err := Open(cfg)
	require.NoError(t, err)
	return store
}

func TestOpenRejectsUnknownScheme(t *testing.T) {
	_, err := Open(&config.Config{DatabaseURL: "mysql://nope"})
	assert.Error(t, err)

	_, err = Open(&config.Config{})
	assert.Error(t, err)
}

func TestAppendEventDefaults(t *testing.T) {
	store := newTestStore(t)

	id, err := store.AppendEvent(Entry{
		Logger:  "AppLogger",
		Level:   "info",
		Message: "Something happened",
	})
	require.NoError(t, err)
	require.NotZero(t, id)

	var ev Event
	require.NoError(t, store.DB.First(&ev, id).Error)
	assert.Equal(t, "other", ev.Initiator)
	assert.Equal(t, OccasionsIDFor("AppLogger", "info", "Something happened"), ev.OccasionsID)
	// Stored at second precision.
	assert.Zero(t, ev.Date.Nanosecond())
	assert.False(t, ev.Date.IsZero())
}

func TestAppendEventWritesContextRows(t *testing.T) {
	store := newTestStore(t)

	id, err := store.AppendEvent(Entry{
		Logger:  "AppLogger",
		Level:   "info",
		Message: "Order placed",
		Context: map[string]string{"order_id": "42", "_user_id": "7"},
	})
	require.NoError(t, err)

	var rows []EventContext
	require.NoError(t, store.DB.Where("history_id = ?", id).Find(&rows).Error)
	require.Len(t, rows, 2)

	got := map[string]string{}
	for _, r := range rows {
		got[r.Key] = r.Value
	}
	assert.Equal(t, map[string]string{"order_id": "42", "_user_id": "7"}, got)
}

func TestOccasionsIDForIsStable(t *testing.T) {
	a := OccasionsIDFor("AppLogger", "error", "Connection lost")
	b := OccasionsIDFor("AppLogger", "error", "Connection lost")
	c := OccasionsIDFor("AppLogger", "info", "Connection lost")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 32)
}

func TestRunRetentionOnce(t *testing.T) {
	store := newTestStore(t)
	now := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)

	oldID, err := store.AppendEvent(Entry{
		Date: now.Add(-90 * 24 * time.Hour), Logger: "AppLogger", Level: "info",
		Message: "old", Context: map[string]string{"k": "v"},
	})
	require.NoError(t, err)
	newID, err := store.AppendEvent(Entry{
		Date: now.Add(-time.Hour), Logger: "AppLogger", Level: "info",
		Message: "recent", Context: map[string]string{"k": "v"},
	})
	require.NoError(t, err)

	removed, err := RunRetentionOnce(store, now.Add(-60*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	var count int64
	require.NoError(t, store.DB.Model(&Event{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	// The purged event's context rows went with it.
	require.NoError(t, store.DB.Model(&EventContext{}).Where("history_id = ?", oldID).Count(&count).Error)
	assert.Zero(t, count)
	require.NoError(t, store.DB.Model(&EventContext{}).Where("history_id = ?", newID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestEnsureBootstrapAdminIdempotent(t *testing.T) {
	store := newTestStore(t)
	cfg := &config.Config{AdminUser: "admin", AdminPassword: "secret"}

	require.NoError(t, EnsureBootstrapAdmin(store, cfg))
	require.NoError(t, EnsureBootstrapAdmin(store, cfg))

	var count int64
	require.NoError(t, store.DB.Model(&User{}).Where("username = ?", "admin").Count(&count).Error)
	assert.Equal(t, int64(1), count)

	var admin User
	require.NoError(t, store.DB.Where("username = ?", "admin").First(&admin).Error)
	assert.True(t, admin.IsAdmin)
	assert.NotEqual(t, "secret", admin.PasswordHash)
}

func TestIsMissingTableError(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.DB.Migrator().DropTable(&Event{}))

	err := store.DB.Raw("SELECT COUNT(*) FROM events").Scan(new(int64)).Error
	require.Error(t, err)
	assert.True(t, store.IsMissingTableError(err))

	assert.False(t, store.IsMissingTableError(nil))
}

func TestSupportsOrderedGrouping(t *testing.T) {
	store := newTestStore(t)
	assert.Equal(t, "sqlite", store.Dialect())
	assert.True(t, store.SupportsOrderedGrouping())
}
