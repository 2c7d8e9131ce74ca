package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/hongminglow/rdbs-admin-be/internal/http/respond"
)

// HealthHandler returns uptime and basic status.
type HealthHandler struct {
	startedAt time.Time
	env       string
}

// NewHealthHandler creates a health endpoint handler.
func NewHealthHandler(startedAt time.Time, env string) *HealthHandler {
	return &HealthHandler{startedAt: startedAt, env: env}
}

// Register wires the handler into the router.
func (h *HealthHandler) Register(r *mux.Router) {
	r.HandleFunc("/health", h.handle).Methods(http.MethodGet)
}

func (h *HealthHandler) handle(w http.ResponseWriter, r *http.Request) {
	respond.JSON(w, http.StatusOK, "ok", map[string]string{
		"status": "ok",
		"env":    h.env,
		"uptime": time.Since(h.startedAt).Truncate(time.Second).String(),
	})
}
