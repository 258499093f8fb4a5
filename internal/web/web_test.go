package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jasonhett/digitial-calendar/internal/config"
	"github.com/jasonhett/digitial-calendar/internal/ical"
	"github.com/jasonhett/digitial-calendar/internal/model"
	"github.com/jasonhett/digitial-calendar/internal/store"
	appsync "github.com/jasonhett/digitial-calendar/internal/sync"
)

const feedICS = `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//Wall Calendar//EN
BEGIN:VEVENT
UID:feed-1
DTSTART;VALUE=DATE:20990101
SUMMARY:Far Future Event
END:VEVENT
END:VCALENDAR`

// newTestServer wires a full stack (config file, sqlite store, orchestrator)
// around an in-memory mux. mutate may adjust the config before it is saved.
func newTestServer(t *testing.T, mutate func(*config.Config)) (*Server, string) {
	t.Helper()
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")

	cfg := config.DefaultConfig()
	if mutate != nil {
		mutate(cfg)
	}
	require.NoError(t, config.Save(configPath, cfg))

	st, err := store.Open(filepath.Join(dir, "events.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	orch := appsync.New(configPath, st, ical.NewFetcher(filepath.Join(dir, "feed-cache")), nil)
	return NewServer(cfg, st, orch), configPath
}

func doRequest(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec := doRequest(t, s, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestEventsEmptySnapshot(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec := doRequest(t, s, http.MethodGet, "/api/events", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var snap model.EventCacheSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Nil(t, snap.UpdatedAt)
	assert.Nil(t, snap.Range)
	assert.Empty(t, snap.Events)
}

func TestEventsServesStoredSnapshot(t *testing.T) {
	s, _ := newTestServer(t, nil)

	now := time.Now().UTC()
	stored := model.EventCacheSnapshot{
		UpdatedAt: &now,
		Range:     &model.SyncRange{TimeMin: now, TimeMax: now.Add(24 * time.Hour)},
		Events: []model.CalendarEvent{{
			ID:            "ical:https://example.com/cal.ics:feed-1",
			CalendarID:    "https://example.com/cal.ics",
			CalendarLabel: "cal",
			CalendarColor: model.DefaultColor,
			Summary:       "Stored Event",
			Status:        model.StatusConfirmed,
			Start:         now.Format(time.RFC3339),
			End:           now.Add(time.Hour).Format(time.RFC3339),
		}},
	}
	require.NoError(t, s.store.Save(context.Background(), stored))

	rec := doRequest(t, s, http.MethodGet, "/api/events", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var snap model.EventCacheSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	require.Len(t, snap.Events, 1)
	assert.Equal(t, "Stored Event", snap.Events[0].Summary)
}

func TestExtendRejectsBadRequests(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec := doRequest(t, s, http.MethodPost, "/api/events/extend", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "timeMax is required")

	rec = doRequest(t, s, http.MethodPost, "/api/events/extend", `{"timeMax":"next tuesday"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "timeMax must be a valid ISO date")
}

func TestExtendAgainstEmptyCacheThenRepeat(t *testing.T) {
	feedSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(feedICS))
	}))
	defer feedSrv.Close()

	s, _ := newTestServer(t, func(cfg *config.Config) {
		cfg.ICal.Feeds = []config.FeedConfig{{URL: feedSrv.URL}}
	})

	target := time.Now().UTC().Add(40 * 24 * time.Hour).Format(time.RFC3339)
	body := `{"timeMax":"` + target + `"}`

	rec := doRequest(t, s, http.MethodPost, "/api/events/extend", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res appsync.ExtendResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.True(t, res.Updated)
	assert.GreaterOrEqual(t, res.SyncDays, 40)
	assert.NotNil(t, res.Summary)

	// Same target again: the cache already covers it.
	rec = doRequest(t, s, http.MethodPost, "/api/events/extend", body)
	require.Equal(t, http.StatusOK, rec.Code)
	res = appsync.ExtendResult{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.False(t, res.Updated)
	assert.Nil(t, res.Summary)
}

func TestExtendWithoutSourcesKeepsWindowAndConflicts(t *testing.T) {
	s, _ := newTestServer(t, nil)

	target := time.Now().UTC().Add(40 * 24 * time.Hour).Format(time.RFC3339)
	rec := doRequest(t, s, http.MethodPost, "/api/events/extend", `{"timeMax":"`+target+`"}`)
	require.Equal(t, http.StatusConflict, rec.Code)

	var body struct {
		Error    string `json:"error"`
		Updated  bool   `json:"updated"`
		SyncDays int    `json:"syncDays"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "No calendar sources configured", body.Error)
	assert.True(t, body.Updated)
	assert.GreaterOrEqual(t, body.SyncDays, 40)
}

func TestManualSyncDemandsGoogle(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec := doRequest(t, s, http.MethodPost, "/api/sync", "")
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "Google account not connected")
}

func TestBasicAuth(t *testing.T) {
	s, _ := newTestServer(t, func(cfg *config.Config) {
		cfg.BasicAuth = &config.BasicAuthConfig{Username: "cal", Password: "secret"}
	})
	handler := s.Handler()

	// Health stays open.
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	// API requires credentials.
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/events", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Basic")

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	req.SetBasicAuth("cal", "wrong")
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/events", nil)
	req.SetBasicAuth("cal", "secret")
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec := doRequest(t, s, http.MethodGet, "/api/sync", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
