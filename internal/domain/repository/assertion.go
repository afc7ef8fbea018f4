package repository

import (
	"context"
	"time"
)

// IdentityAssertion es la prueba efímera y single-use de que una identidad
// controló su email en un momento dado. Se consume exactamente una vez.
type IdentityAssertion struct {
	ID    string
	Email string
	// Proof es el bearer opaco del identity provider. Se guarda solo hasta
	// el consumo (el coordinator lo reenvía al signer remoto) y el store
	// lo borra al consumir.
	Proof      string
	IssuedAt   time.Time
	ExpiresAt  time.Time
	ConsumedAt *time.Time
}

// Expired retorna true si la assertion está fuera de su ventana.
func (a *IdentityAssertion) Expired(now time.Time) bool {
	return now.After(a.ExpiresAt)
}

// CreateAssertionInput contiene los datos para emitir una assertion.
type CreateAssertionInput struct {
	Email string
	Proof string
	TTL   time.Duration
}

// AssertionRepository define operaciones sobre assertions.
type AssertionRepository interface {
	// Create persiste una assertion nueva, sin consumir.
	Create(ctx context.Context, input CreateAssertionInput) (*IdentityAssertion, error)

	// Consume marca la assertion como consumida y la retorna con su proof.
	// Es una única operación atómica (UPDATE ... WHERE consumed_at IS NULL):
	//   - ErrNotFound si el ID no existe
	//   - ErrAssertionConsumed si ya fue consumida (replay)
	//   - ErrAssertionExpired si pasó su ventana
	Consume(ctx context.Context, id string) (*IdentityAssertion, error)

	// DeleteExpired elimina assertions vencidas (cleanup job).
	DeleteExpired(ctx context.Context) (int, error)
}
