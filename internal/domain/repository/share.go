package repository

import (
	"context"
	"time"
)

// ShareRole distingue el esquema actual (server half de 2-de-2) del esquema
// legacy de share única heredado de instalaciones viejas.
type ShareRole string

const (
	ShareRoleServer ShareRole = "server"
	ShareRoleLegacy ShareRole = "legacy"
)

// EncryptedShare es la mitad server-side de la clave, siempre cifrada.
// El plaintext solo existe transitoriamente dentro del signing coordinator.
type EncryptedShare struct {
	ID         string
	IdentityID string
	Role       ShareRole
	Ciphertext []byte
	Nonce      []byte
	CreatedAt  time.Time
}

// ShareRepository define operaciones sobre shares cifradas.
type ShareRepository interface {
	// GetByIdentity retorna la share de una identidad para un rol.
	GetByIdentity(ctx context.Context, identityID string, role ShareRole) (*EncryptedShare, error)

	// ListByIdentity retorna todas las shares de una identidad (server y/o legacy).
	ListByIdentity(ctx context.Context, identityID string) ([]EncryptedShare, error)

	// ListLegacyIdentities retorna los IDs de identidades que todavía tienen
	// share legacy. Alimenta la pasada de migración.
	ListLegacyIdentities(ctx context.Context) ([]string, error)

	// PromoteLegacy re-etiqueta la share legacy de una identidad como server.
	// Solo válido si no existe ya una share server (ErrConflict en ese caso).
	// Usado por la pasada explícita de migración, nunca en el read path.
	PromoteLegacy(ctx context.Context, identityID string) error
}
