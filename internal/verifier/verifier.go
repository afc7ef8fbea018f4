// Package verifier implementa el Identity Verifier: el flujo begin/complete
// de verificación de email que termina en una IdentityAssertion single-use.
package verifier

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/dropDatabas3/hellowallet/internal/cache"
	"github.com/dropDatabas3/hellowallet/internal/domain/repository"
	"github.com/dropDatabas3/hellowallet/internal/metrics"
	"github.com/dropDatabas3/hellowallet/internal/observability/logger"
	"github.com/dropDatabas3/hellowallet/internal/provider"
	"github.com/dropDatabas3/hellowallet/internal/rate"
)

// Errores del verifier.
var (
	ErrInvalidContact       = fmt.Errorf("invalid contact address")
	ErrTooManyRequests      = fmt.Errorf("too many verification requests")
	ErrInvalidOrExpiredCode = provider.ErrInvalidOrExpiredCode
)

// Deps contiene las dependencias del verifier.
type Deps struct {
	Provider     provider.Provider
	Cache        cache.Client
	Store        repository.Store
	BeginLimiter rate.Limiter // por dirección de contacto
	ChallengeTTL time.Duration
	AssertionTTL time.Duration
}

// Service expone el flujo de verificación.
type Service interface {
	// BeginVerification dispara el challenge OTP hacia el contacto.
	BeginVerification(ctx context.Context, email string) (challengeID string, err error)

	// CompleteVerification valida el código y emite la assertion.
	CompleteVerification(ctx context.Context, challengeID, code string) (*repository.IdentityAssertion, error)
}

type service struct {
	deps Deps
}

// New crea el verifier con defaults sanos.
func New(deps Deps) Service {
	if deps.ChallengeTTL <= 0 {
		deps.ChallengeTTL = 10 * time.Minute
	}
	if deps.AssertionTTL <= 0 {
		deps.AssertionTTL = 5 * time.Minute
	}
	return &service{deps: deps}
}

func challengeEmailKey(challengeID string) string { return "verify:email:" + challengeID }

func (s *service) BeginVerification(ctx context.Context, email string) (string, error) {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("verifier"),
		logger.Op("BeginVerification"),
	)

	// Paso 0: Normalización y validación mínima
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return "", ErrInvalidContact
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return "", ErrInvalidContact
	}

	log = log.With(logger.Email(email))

	// Paso 1: Rate limit por contacto (acota enumeración y spam)
	res, err := s.deps.BeginLimiter.Allow(ctx, "verify:"+email)
	if err != nil {
		// limiter caído: no abrimos la canilla
		log.Error("rate limiter unavailable", logger.Err(err))
		return "", fmt.Errorf("verifier: rate limiter: %w", err)
	}
	if !res.Allowed {
		log.Info("begin verification throttled")
		metrics.VerificationTotal.WithLabelValues("begin", "throttled").Inc()
		return "", ErrTooManyRequests
	}

	// Paso 2: Delegar el challenge al provider
	handle, err := s.deps.Provider.SendChallenge(ctx, email)
	if err != nil {
		log.Error("send challenge failed", logger.Err(err))
		metrics.VerificationTotal.WithLabelValues("begin", "error").Inc()
		return "", err
	}

	// Paso 3: Correlación handle -> contacto (única memoria de este componente)
	if err := s.deps.Cache.Set(ctx, challengeEmailKey(handle), email, s.deps.ChallengeTTL); err != nil {
		return "", fmt.Errorf("verifier: store correlation: %w", err)
	}

	log.Info("verification started", logger.ChallengeID(handle))
	metrics.VerificationTotal.WithLabelValues("begin", "ok").Inc()
	return handle, nil
}

func (s *service) CompleteVerification(ctx context.Context, challengeID, code string) (*repository.IdentityAssertion, error) {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("verifier"),
		logger.Op("CompleteVerification"),
		logger.ChallengeID(challengeID),
	)

	challengeID = strings.TrimSpace(challengeID)
	code = strings.TrimSpace(code)
	if challengeID == "" || code == "" {
		return nil, ErrInvalidOrExpiredCode
	}

	// Paso 1: Recuperar el contacto correlacionado
	email, err := s.deps.Cache.Get(ctx, challengeEmailKey(challengeID))
	if err != nil {
		if cache.IsNotFound(err) {
			metrics.VerificationTotal.WithLabelValues("complete", "expired").Inc()
			return nil, ErrInvalidOrExpiredCode
		}
		return nil, fmt.Errorf("verifier: load correlation: %w", err)
	}

	// Paso 2: Verificar contra el provider; el proof resultante es opaco
	proof, err := s.deps.Provider.VerifyChallenge(ctx, challengeID, code)
	if err != nil {
		if errors.Is(err, provider.ErrInvalidOrExpiredCode) {
			log.Info("verification code rejected")
			metrics.VerificationTotal.WithLabelValues("complete", "rejected").Inc()
			return nil, ErrInvalidOrExpiredCode
		}
		log.Error("verify challenge failed", logger.Err(err))
		metrics.VerificationTotal.WithLabelValues("complete", "error").Inc()
		return nil, err
	}

	// El challenge quedó consumido: borrar la correlación pase lo que pase después
	_ = s.deps.Cache.Delete(ctx, challengeEmailKey(challengeID))

	// Paso 3: Emitir la assertion single-use
	assertion, err := s.deps.Store.Assertions().Create(ctx, repository.CreateAssertionInput{
		Email: email,
		Proof: proof,
		TTL:   s.deps.AssertionTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("verifier: create assertion: %w", err)
	}

	log.Info("verification completed", logger.Email(email))
	metrics.VerificationTotal.WithLabelValues("complete", "ok").Inc()
	return assertion, nil
}
