package repository

import "context"

// Store agrupa todos los repositorios de una conexión de almacenamiento.
type Store interface {
	Ping(ctx context.Context) error
	Close() error

	Identities() IdentityRepository
	Assertions() AssertionRepository
	KeyRecords() KeyRecordRepository
	Shares() ShareRepository
	Sessions() SessionRepository
}
