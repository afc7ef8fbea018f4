package controllers

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"net/http"

	"github.com/dropDatabas3/hellowallet/internal/http/dto"
	httperrors "github.com/dropDatabas3/hellowallet/internal/http/errors"
	"github.com/dropDatabas3/hellowallet/internal/http/helpers"
	"github.com/dropDatabas3/hellowallet/internal/issuance"
	"github.com/dropDatabas3/hellowallet/internal/observability/logger"
	"github.com/dropDatabas3/hellowallet/internal/session"
	"github.com/dropDatabas3/hellowallet/internal/signer"
)

// AccountController resuelve cuentas a partir de assertions.
type AccountController struct {
	issuance issuance.Service
	sessions session.Manager
}

// NewAccountController crea el controller.
func NewAccountController(iss issuance.Service, sessions session.Manager) *AccountController {
	return &AccountController{issuance: iss, sessions: sessions}
}

// Resolve maneja POST /v1/accounts/resolve
//
// Consume la assertion, provisiona la cuenta si es el primer login y emite
// la sesión. La client share viaja en la respuesta UNA sola vez.
func (c *AccountController) Resolve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("accounts.resolve"))

	var req dto.ResolveAccountRequest
	if !helpers.ReadJSON(w, r, &req) {
		return
	}
	if req.AssertionID == "" {
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("assertion_id es requerido"))
		return
	}

	result, err := c.issuance.ResolveAccount(ctx, req.AssertionID)
	if err != nil {
		switch {
		case errors.Is(err, issuance.ErrAssertionReplayed):
			httperrors.WriteError(w, httperrors.ErrAssertionReplayed)
		case errors.Is(err, issuance.ErrAssertionExpired):
			httperrors.WriteError(w, httperrors.ErrAssertionExpired)
		case errors.Is(err, issuance.ErrAssertionInvalid):
			httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("assertion desconocida"))
		case errors.Is(err, signer.ErrUpstreamTimeout):
			httperrors.WriteError(w, httperrors.ErrUpstreamTimeout)
		case errors.Is(err, issuance.ErrMintFailed):
			httperrors.WriteError(w, httperrors.ErrRemoteSigningFailed.WithDetail("key generation failed"))
		default:
			log.Error("resolve account failed", logger.Err(err))
			httperrors.WriteError(w, err)
		}
		return
	}

	issued, err := c.sessions.Issue(ctx, result.Identity)
	if err != nil {
		log.Error("session issue failed", logger.Err(err))
		httperrors.WriteError(w, err)
		return
	}

	resp := dto.ResolveAccountResponse{
		Account: dto.Account{
			Address:   result.Record.Address,
			KeyHandle: result.Record.KeyHandle,
			PublicKey: "0x" + hex.EncodeToString(result.Record.PublicKey),
		},
		Session: dto.SessionToken{
			Token:     issued.Token,
			ExpiresAt: issued.ExpiresAt,
		},
		IsNew: result.IsNew,
	}
	if result.IsNew {
		resp.ClientShare = base64.StdEncoding.EncodeToString(result.ClientShare)
	}

	helpers.WriteJSON(w, http.StatusOK, resp)
}
