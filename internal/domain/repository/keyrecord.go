package repository

import (
	"context"
	"time"
)

// KeyRecord representa la cuenta non-custodial de una identidad.
// Inmutable una vez creado; a lo sumo uno por identidad (unique index).
type KeyRecord struct {
	ID         string
	IdentityID string
	// KeyHandle es el identificador opaco asignado por el signer remoto.
	KeyHandle string
	// PublicKey es la clave pública secp256k1 sin comprimir (65 bytes).
	PublicKey []byte
	// Address es la dirección de cuenta derivada de PublicKey, 0x-hex.
	Address   string
	CreatedAt time.Time
}

// Incomplete retorna true si el record quedó a medio provisionar
// (defensa contra issuance parcialmente fallido).
func (k *KeyRecord) Incomplete() bool {
	return k.KeyHandle == "" || len(k.PublicKey) == 0 || k.Address == ""
}

// CreateKeyRecordInput agrupa el KeyRecord y su EncryptedShare: se persisten
// en una única unidad atómica. Nunca debe existir un KeyRecord sin share.
type CreateKeyRecordInput struct {
	IdentityID string
	KeyHandle  string
	PublicKey  []byte
	Address    string
	Share      EncryptedShare
}

// KeyRecordRepository define operaciones sobre key records.
type KeyRecordRepository interface {
	// GetByIdentity busca el KeyRecord de una identidad.
	GetByIdentity(ctx context.Context, identityID string) (*KeyRecord, error)

	// CreateWithShare persiste KeyRecord + EncryptedShare en una transacción.
	// Retorna ErrConflict si la identidad ya tiene un KeyRecord (el perdedor
	// de una carrera de primer login debe releer, no re-mintear).
	CreateWithShare(ctx context.Context, input CreateKeyRecordInput) (*KeyRecord, error)
}
