package repository

import (
	"context"
	"time"
)

// Identity representa un usuario verificado por email.
// Raíz de propiedad: KeyRecord, EncryptedShare y Session cuelgan de acá.
type Identity struct {
	ID            string
	Email         string
	EmailVerified bool
	CreatedAt     time.Time
}

// IdentityRepository define operaciones sobre identidades.
type IdentityRepository interface {
	// GetByEmail busca una identidad por email (normalizado).
	// Retorna ErrNotFound si no existe.
	GetByEmail(ctx context.Context, email string) (*Identity, error)

	// GetByID busca una identidad por ID.
	GetByID(ctx context.Context, id string) (*Identity, error)

	// GetOrCreate busca por email y crea la fila si no existe.
	// La unicidad por email la garantiza el store (unique index);
	// el perdedor de una carrera recibe la fila ya existente, no un error.
	GetOrCreate(ctx context.Context, email string) (*Identity, error)
}
