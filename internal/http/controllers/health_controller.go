package controllers

import (
	"net/http"
	"time"

	"github.com/dropDatabas3/hellowallet/internal/domain/repository"
	"github.com/dropDatabas3/hellowallet/internal/http/helpers"
	"github.com/dropDatabas3/hellowallet/internal/security/sharebox"
)

// HealthController expone liveness y readiness.
type HealthController struct {
	store repository.Store
}

// NewHealthController crea el controller.
func NewHealthController(store repository.Store) *HealthController {
	return &HealthController{store: store}
}

// Healthz maneja GET /healthz (liveness).
func (c *HealthController) Healthz(w http.ResponseWriter, r *http.Request) {
	helpers.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readyz maneja GET /readyz (readiness: storage + master key cargada).
func (c *HealthController) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := contextWithTimeout(r, 2*time.Second)
	defer cancel()

	checks := map[string]string{
		"storage":  "ok",
		"sharebox": "ok",
	}
	status := http.StatusOK

	if err := c.store.Ping(ctx); err != nil {
		checks["storage"] = err.Error()
		status = http.StatusServiceUnavailable
	}
	if !sharebox.Ready() {
		checks["sharebox"] = "master key not loaded"
		status = http.StatusServiceUnavailable
	}

	helpers.WriteJSON(w, status, checks)
}
