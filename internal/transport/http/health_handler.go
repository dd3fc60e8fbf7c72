package http

import (
	"net/http"
	"time"

	"github.com/go-chi/render"

	"convertercli/internal/config"
)

// HealthResponse is the liveness payload
type HealthResponse struct {
	Status    string    `json:"status"`
	Version   string    `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}

// HealthHandler handles GET /healthz
func HealthHandler(w http.ResponseWriter, r *http.Request) {
	render.Status(r, http.StatusOK)
	render.JSON(w, r, &HealthResponse{
		Status:    "ok",
		Version:   config.AppVersion,
		Timestamp: time.Now(),
	})
}
