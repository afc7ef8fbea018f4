package controllers

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"

	"github.com/dropDatabas3/hellowallet/internal/http/dto"
	httperrors "github.com/dropDatabas3/hellowallet/internal/http/errors"
	"github.com/dropDatabas3/hellowallet/internal/http/helpers"
	"github.com/dropDatabas3/hellowallet/internal/observability/logger"
	"github.com/dropDatabas3/hellowallet/internal/signer"
	"github.com/dropDatabas3/hellowallet/internal/signing"
)

// clientShareHeader transporta la share del cliente. Nunca se loguea.
const clientShareHeader = "X-Client-Share"

// SignController maneja las peticiones de firma.
type SignController struct {
	service signing.Service
}

// NewSignController crea el controller.
func NewSignController(s signing.Service) *SignController {
	return &SignController{service: s}
}

// Sign maneja POST /v1/sign
func (c *SignController) Sign(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("sign"))

	token := helpers.BearerToken(r)
	if token == "" {
		httperrors.WriteError(w, httperrors.ErrUnauthenticated)
		return
	}

	shareB64 := strings.TrimSpace(r.Header.Get(clientShareHeader))
	if shareB64 == "" {
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("falta el header X-Client-Share"))
		return
	}
	clientShare, err := base64.StdEncoding.DecodeString(shareB64)
	if err != nil || len(clientShare) == 0 {
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("X-Client-Share no es base64 válido"))
		return
	}

	var req dto.SignRequest
	if !helpers.ReadJSON(w, r, &req) {
		return
	}
	digest, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(req.Digest), "0x"))
	if err != nil {
		httperrors.WriteError(w, httperrors.ErrInvalidDigest)
		return
	}

	sig, err := c.service.Sign(ctx, token, clientShare, digest)
	if err != nil {
		switch {
		case errors.Is(err, signing.ErrInvalidDigest):
			httperrors.WriteError(w, httperrors.ErrInvalidDigest)
		case errors.Is(err, signing.ErrUnauthenticated):
			httperrors.WriteError(w, httperrors.ErrUnauthenticated)
		case errors.Is(err, signing.ErrTooManyRequests):
			httperrors.WriteError(w, httperrors.ErrTooManyRequests)
		case errors.Is(err, signing.ErrAccountNotProvisioned):
			httperrors.WriteError(w, httperrors.ErrAccountNotProvisioned)
		case errors.Is(err, signing.ErrAccountIncomplete):
			httperrors.WriteError(w, httperrors.ErrAccountIncomplete)
		case errors.Is(err, signing.ErrServerShareUnavailable):
			httperrors.WriteError(w, httperrors.ErrServerShareUnavailable)
		case errors.Is(err, signer.ErrUpstreamTimeout):
			httperrors.WriteError(w, httperrors.ErrUpstreamTimeout)
		case errors.Is(err, signing.ErrRemoteSigningFailed):
			httperrors.WriteError(w, httperrors.ErrRemoteSigningFailed)
		default:
			log.Error("sign failed", logger.Err(err))
			httperrors.WriteError(w, err)
		}
		return
	}

	helpers.WriteJSON(w, http.StatusOK, dto.SignResponse{
		Address:   sig.Address,
		Digest:    "0x" + hex.EncodeToString(sig.Digest),
		Signature: "0x" + hex.EncodeToString(sig.Signature),
	})
}
