package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jasonhett/digitial-calendar/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleSnapshot(at time.Time, events ...model.CalendarEvent) model.EventCacheSnapshot {
	return model.EventCacheSnapshot{
		UpdatedAt: &at,
		Range: &model.SyncRange{
			TimeMin: at,
			TimeMax: at.Add(30 * 24 * time.Hour),
		},
		Events: events,
	}
}

func TestLoadEmptyStore(t *testing.T) {
	s := openTestStore(t)

	snap, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, snap.UpdatedAt)
	assert.Nil(t, snap.Range)
	assert.NotNil(t, snap.Events)
	assert.Empty(t, snap.Events)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := openTestStore(t)
	at := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	ev := model.CalendarEvent{
		ID: "ical:feed:uid", CalendarID: "feed", CalendarLabel: "Feed",
		CalendarColor: model.DefaultColor, Summary: "Hello",
		Status: model.StatusConfirmed,
		Start:  "2024-01-02T10:00:00Z", End: "2024-01-02T11:00:00Z",
	}

	require.NoError(t, s.Save(context.Background(), sampleSnapshot(at, ev)))

	snap, err := s.Load(context.Background())
	require.NoError(t, err)
	require.NotNil(t, snap.UpdatedAt)
	assert.True(t, snap.UpdatedAt.Equal(at))
	require.NotNil(t, snap.Range)
	assert.True(t, snap.Range.TimeMin.Equal(at))
	require.Len(t, snap.Events, 1)
	assert.Equal(t, ev, snap.Events[0])
}

func TestSaveReplacesWhole(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.Save(ctx, sampleSnapshot(first,
		model.CalendarEvent{ID: "old-1"}, model.CalendarEvent{ID: "old-2"})))

	second := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.Save(ctx, sampleSnapshot(second, model.CalendarEvent{ID: "new-1"})))

	snap, err := s.Load(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Events, 1)
	assert.Equal(t, "new-1", snap.Events[0].ID)
	assert.True(t, snap.UpdatedAt.Equal(second))
}

func TestSaveRejectsIncompleteSnapshot(t *testing.T) {
	s := openTestStore(t)
	err := s.Save(context.Background(), model.EventCacheSnapshot{})
	assert.Error(t, err)
}

func TestRequiredWindowDays(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, 40, RequiredWindowDays(now, now.Add(40*24*time.Hour)))
	// Partial days round up.
	assert.Equal(t, 41, RequiredWindowDays(now, now.Add(40*24*time.Hour+time.Minute)))
	assert.Equal(t, 1, RequiredWindowDays(now, now))
	assert.Equal(t, 1, RequiredWindowDays(now, now.Add(-time.Hour)))
}

func TestClampWindowDays(t *testing.T) {
	assert.Equal(t, 40, ClampWindowDays(30, 40))
	// Never shrinks below the current window.
	assert.Equal(t, 30, ClampWindowDays(30, 10))
	assert.Equal(t, MaxWindowDays, ClampWindowDays(30, 4000))
}
