// Package signing implementa el Signing Coordinator.
//
// Una llamada de firma avanza por etapas, cada una con su propio modo de
// falla distinguible en logs y métricas:
//
//	Start -> SessionValidated -> AccountResolved -> ServerShareDecrypted -> RemoteSignCompleted
//
// Sin loops y sin estados parciales persistidos. El plaintext de la server
// share existe solo entre el descifrado y el retorno de la llamada remota.
package signing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dropDatabas3/hellowallet/internal/domain/repository"
	"github.com/dropDatabas3/hellowallet/internal/metrics"
	"github.com/dropDatabas3/hellowallet/internal/observability/logger"
	"github.com/dropDatabas3/hellowallet/internal/rate"
	"github.com/dropDatabas3/hellowallet/internal/security/sharebox"
	"github.com/dropDatabas3/hellowallet/internal/session"
	"github.com/dropDatabas3/hellowallet/internal/signer"
)

// Errores del signing coordinator, uno por etapa.
var (
	ErrUnauthenticated        = session.ErrUnauthenticated
	ErrAccountNotProvisioned  = fmt.Errorf("account not provisioned")
	ErrAccountIncomplete      = fmt.Errorf("account incompletely provisioned")
	ErrServerShareUnavailable = fmt.Errorf("server share unavailable")
	ErrRemoteSigningFailed    = fmt.Errorf("remote signing failed")
	ErrInvalidDigest          = fmt.Errorf("digest must be 32 bytes")
	ErrTooManyRequests        = fmt.Errorf("signing rate limit exceeded")
)

// Etapas para logs/métricas. Nunca incluyen contenido de shares.
const (
	stageSession = "session_validate"
	stageAccount = "account_resolve"
	stageShare   = "share_decrypt"
	stageRemote  = "remote_sign"
)

// Signature es el resultado de una firma, consumido de inmediato por el
// transaction assembler. No se persiste.
type Signature struct {
	Address   string
	Digest    []byte
	Signature []byte
}

// Deps contiene las dependencias del coordinator.
type Deps struct {
	Store    repository.Store
	Sessions session.Manager
	Signer   signer.RemoteSigner
	Limiter  rate.Limiter // por identidad
}

// Service expone la firma threshold.
type Service interface {
	// Sign valida la sesión, junta ambas shares y delega la ceremonia al
	// signer remoto. clientShare viaja solo por el stack de esta llamada.
	Sign(ctx context.Context, token string, clientShare, digest []byte) (*Signature, error)
}

type service struct {
	deps Deps
}

func New(deps Deps) Service {
	return &service{deps: deps}
}

func (s *service) Sign(ctx context.Context, token string, clientShare, digest []byte) (*Signature, error) {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("signing"),
		logger.Op("Sign"),
	)

	if len(digest) != 32 {
		return nil, ErrInvalidDigest
	}

	// Etapa 1: sesión
	identity, err := s.deps.Sessions.Validate(ctx, token)
	if err != nil {
		metrics.SigningTotal.WithLabelValues(stageSession, "error").Inc()
		return nil, ErrUnauthenticated
	}
	log = log.With(logger.IdentityID(identity.ID), logger.Stage(stageSession))

	// Rate limit por identidad, antes de tocar el store o el signer
	if s.deps.Limiter != nil {
		res, lerr := s.deps.Limiter.Allow(ctx, "sign:"+identity.ID)
		if lerr != nil {
			return nil, fmt.Errorf("signing: rate limiter: %w", lerr)
		}
		if !res.Allowed {
			log.Info("signing throttled")
			metrics.SigningTotal.WithLabelValues(stageSession, "throttled").Inc()
			return nil, ErrTooManyRequests
		}
	}

	// Etapa 2: cuenta
	record, err := s.deps.Store.KeyRecords().GetByIdentity(ctx, identity.ID)
	if err != nil {
		if repository.IsNotFound(err) {
			metrics.SigningTotal.WithLabelValues(stageAccount, "error").Inc()
			return nil, ErrAccountNotProvisioned
		}
		return nil, fmt.Errorf("signing: lookup key record: %w", err)
	}
	if record.Incomplete() {
		// Issuance parcialmente fallido no debería existir (persist atómico),
		// pero si existe no debe llegar al signer remoto.
		log.Error("incomplete key record", logger.Stage(stageAccount))
		metrics.SigningTotal.WithLabelValues(stageAccount, "error").Inc()
		return nil, ErrAccountIncomplete
	}

	// Etapa 3: server share
	serverShare, err := s.loadServerShare(ctx, identity.ID)
	if err != nil {
		log.Error("server share unavailable", logger.Stage(stageShare), logger.Err(err))
		metrics.SigningTotal.WithLabelValues(stageShare, "error").Inc()
		if errors.Is(err, sharebox.ErrDecryptionFailed) {
			// corrupción o clave equivocada: alerta, nunca fallback
			metrics.DecryptionFailures.Inc()
		}
		return nil, ErrServerShareUnavailable
	}

	// Etapa 4: ceremonia remota. Sin reintentos: la ceremonia no es
	// idempotente sin nonces frescos del protocolo remoto.
	start := time.Now()
	sig, err := s.deps.Signer.ThresholdSign(ctx, signer.SignRequest{
		KeyHandle:   record.KeyHandle,
		ClientShare: clientShare,
		ServerShare: serverShare,
		Digest:      digest,
	})
	metrics.RemoteSignerLatency.WithLabelValues("sign").Observe(float64(time.Since(start).Milliseconds()))
	zero(serverShare)
	if err != nil {
		log.Error("remote sign failed", logger.Stage(stageRemote), logger.Err(err))
		metrics.SigningTotal.WithLabelValues(stageRemote, "error").Inc()
		if errors.Is(err, signer.ErrUpstreamTimeout) {
			return nil, err
		}
		return nil, ErrRemoteSigningFailed
	}

	log.Info("signature produced", logger.Stage(stageRemote), logger.Address(record.Address))
	metrics.SigningTotal.WithLabelValues(stageRemote, "ok").Inc()
	return &Signature{
		Address:   record.Address,
		Digest:    digest,
		Signature: sig,
	}, nil
}

// loadServerShare descifra la share del esquema actual; cae a la legacy solo
// si no existe una server share (instalaciones sin migrar). Si existen ambas,
// la server manda y la legacy se ignora hasta la pasada de migración.
func (s *service) loadServerShare(ctx context.Context, identityID string) ([]byte, error) {
	enc, err := s.deps.Store.Shares().GetByIdentity(ctx, identityID, repository.ShareRoleServer)
	if repository.IsNotFound(err) {
		enc, err = s.deps.Store.Shares().GetByIdentity(ctx, identityID, repository.ShareRoleLegacy)
	}
	if err != nil {
		return nil, err
	}
	return sharebox.Open(identityID, enc.Ciphertext, enc.Nonce)
}

// zero borra el plaintext de la share apenas deja de necesitarse.
func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
