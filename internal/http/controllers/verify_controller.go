// Package controllers contiene los controllers HTTP del servicio.
package controllers

import (
	"errors"
	"net/http"

	"github.com/dropDatabas3/hellowallet/internal/http/dto"
	httperrors "github.com/dropDatabas3/hellowallet/internal/http/errors"
	"github.com/dropDatabas3/hellowallet/internal/http/helpers"
	"github.com/dropDatabas3/hellowallet/internal/observability/logger"
	"github.com/dropDatabas3/hellowallet/internal/provider"
	"github.com/dropDatabas3/hellowallet/internal/verifier"
)

// VerifyController maneja el flujo de verificación de identidad.
type VerifyController struct {
	service verifier.Service
}

// NewVerifyController crea el controller.
func NewVerifyController(s verifier.Service) *VerifyController {
	return &VerifyController{service: s}
}

// Begin maneja POST /v1/verify/begin
func (c *VerifyController) Begin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("verify.begin"))

	var req dto.BeginVerificationRequest
	if !helpers.ReadJSON(w, r, &req) {
		return
	}

	challengeID, err := c.service.BeginVerification(ctx, req.Email)
	if err != nil {
		switch {
		case errors.Is(err, verifier.ErrInvalidContact):
			httperrors.WriteError(w, httperrors.ErrInvalidContact)
		case errors.Is(err, verifier.ErrTooManyRequests):
			httperrors.WriteError(w, httperrors.ErrTooManyRequests)
		case errors.Is(err, provider.ErrUpstreamTimeout):
			httperrors.WriteError(w, httperrors.ErrUpstreamTimeout)
		default:
			log.Error("begin verification failed", logger.Err(err))
			httperrors.WriteError(w, err)
		}
		return
	}

	helpers.WriteJSON(w, http.StatusAccepted, dto.BeginVerificationResponse{
		ChallengeID: challengeID,
	})
}

// Complete maneja POST /v1/verify/complete
func (c *VerifyController) Complete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("verify.complete"))

	var req dto.CompleteVerificationRequest
	if !helpers.ReadJSON(w, r, &req) {
		return
	}
	if req.ChallengeID == "" || req.Code == "" {
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("challenge_id y code son requeridos"))
		return
	}

	assertion, err := c.service.CompleteVerification(ctx, req.ChallengeID, req.Code)
	if err != nil {
		switch {
		case errors.Is(err, verifier.ErrInvalidOrExpiredCode):
			httperrors.WriteError(w, httperrors.ErrInvalidOrExpiredCode)
		case errors.Is(err, provider.ErrUpstreamTimeout):
			httperrors.WriteError(w, httperrors.ErrUpstreamTimeout)
		default:
			log.Error("complete verification failed", logger.Err(err))
			httperrors.WriteError(w, err)
		}
		return
	}

	helpers.WriteJSON(w, http.StatusOK, dto.CompleteVerificationResponse{
		AssertionID: assertion.ID,
		ExpiresAt:   assertion.ExpiresAt,
	})
}
