package repository

import (
	"context"
	"time"
)

// Session es la fila persistida de una sesión. El token en sí es un JWT que
// nunca se guarda: solo su hash, para poder revocar antes del expiry.
type Session struct {
	ID         string
	IdentityID string
	TokenHash  string
	IssuedAt   time.Time
	ExpiresAt  time.Time
	RevokedAt  *time.Time
}

// CreateSessionInput contiene los datos para persistir una sesión.
type CreateSessionInput struct {
	IdentityID string
	TokenHash  string
	TTL        time.Duration
}

// SessionRepository define operaciones sobre sesiones persistidas.
type SessionRepository interface {
	// Create persiste una sesión nueva.
	Create(ctx context.Context, input CreateSessionInput) (*Session, error)

	// GetByTokenHash busca una sesión por el hash del token.
	GetByTokenHash(ctx context.Context, tokenHash string) (*Session, error)

	// Revoke marca la sesión como revocada. Idempotente.
	Revoke(ctx context.Context, tokenHash string) error

	// DeleteExpired elimina sesiones vencidas (cleanup job).
	DeleteExpired(ctx context.Context) (int, error)
}
