package controllers

import (
	"net/http"

	httperrors "github.com/dropDatabas3/hellowallet/internal/http/errors"
	"github.com/dropDatabas3/hellowallet/internal/http/helpers"
	"github.com/dropDatabas3/hellowallet/internal/observability/logger"
	"github.com/dropDatabas3/hellowallet/internal/session"
)

// SessionController maneja revocación de sesiones.
type SessionController struct {
	sessions session.Manager
}

// NewSessionController crea el controller.
func NewSessionController(m session.Manager) *SessionController {
	return &SessionController{sessions: m}
}

// Revoke maneja POST /v1/session/revoke
//
// Idempotente: revocar una sesión ya revocada o inexistente devuelve 204
// igual. El único fracaso visible es no traer bearer.
func (c *SessionController) Revoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("session.revoke"))

	token := helpers.BearerToken(r)
	if token == "" {
		httperrors.WriteError(w, httperrors.ErrUnauthenticated)
		return
	}

	if err := c.sessions.Revoke(ctx, token); err != nil {
		log.Error("session revoke failed", logger.Err(err))
		httperrors.WriteError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
