package db

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serveCatalog(t *testing.T, db *DB, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	mux := http.NewServeMux()
	db.AttachAdminRoutes(mux)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, localHostRequest(method, path))
	return rec
}

func TestHandleSessions(t *testing.T) {
	db := setupTestDB(t)

	rec := serveCatalog(t, db, http.MethodGet, "/api/sessions")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	require.NoError(t, db.StartSession("s1", "10.0.0.7:5123", time.Unix(100, 0)))
	require.NoError(t, db.EndSession("s1", time.Unix(160, 0), SessionTotals{Samples: 600, Rotations: 2}, "eof"))

	rec = serveCatalog(t, db, http.MethodGet, "/api/sessions")
	require.Equal(t, http.StatusOK, rec.Code)
	var sessions []Session
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&sessions))
	require.Len(t, sessions, 1)
	assert.Equal(t, "s1", sessions[0].ID)
	assert.Equal(t, int64(600), sessions[0].Samples)
	assert.Equal(t, "eof", sessions[0].EndReason)

	rec = serveCatalog(t, db, http.MethodPost, "/api/sessions")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandleWindows(t *testing.T) {
	db := setupTestDB(t)
	require.NoError(t, db.StartSession("s1", "pipe", time.Unix(100, 0)))

	rec := serveCatalog(t, db, http.MethodGet, "/api/sessions/s1/windows")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	require.NoError(t, db.RecordWindow(WindowRecord{
		ID: "w0", SessionID: "s1", Start: time.Unix(100, 0), End: time.Unix(130, 0), Count: 300,
		Axes: []AxisStats{{Axis: "g_x", Mean: 0.5}, {Axis: "a_x", Mean: 2}},
	}))
	rec = serveCatalog(t, db, http.MethodGet, "/api/sessions/s1/windows")
	require.Equal(t, http.StatusOK, rec.Code)
	var windows []WindowRecord
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&windows))
	require.Len(t, windows, 1)
	assert.Equal(t, 300, windows[0].Count)
	require.Len(t, windows[0].Axes, 2)
	assert.Equal(t, "a_x", windows[0].Axes[0].Axis)

	rec = serveCatalog(t, db, http.MethodGet, "/api/sessions/nope/windows")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
