package handler

import (
	"net/http"

	"github.com/jmoiron/sqlx"
)

type healthHandler struct {
	db *sqlx.DB
}

func NewHealthHandler(db *sqlx.DB) *healthHandler {
	return &healthHandler{db: db}
}

func (h *healthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	err := h.db.Ping()
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "database unreachable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}
