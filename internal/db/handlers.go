package db

import (
	"net/http"

	"github.com/banshee-data/motion.report/internal/httputil"
)

// attachCatalogRoutes serves the catalogue as JSON:
//
//	GET /api/sessions               every session, most recent first
//	GET /api/sessions/{id}/windows  the windows of one session, in order
func (db *DB) attachCatalogRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/sessions", db.handleSessions)
	mux.HandleFunc("/api/sessions/{id}/windows", db.handleWindows)
}

func (db *DB) handleSessions(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodGet) {
		return
	}
	sessions, err := db.Sessions()
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	if sessions == nil {
		sessions = []Session{}
	}
	httputil.WriteJSON(w, http.StatusOK, sessions)
}

func (db *DB) handleWindows(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodGet) {
		return
	}
	id := r.PathValue("id")
	if _, err := db.GetSession(id); err != nil {
		httputil.NotFound(w, err.Error())
		return
	}
	windows, err := db.Windows(id)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	if windows == nil {
		windows = []WindowRecord{}
	}
	httputil.WriteJSON(w, http.StatusOK, windows)
}
