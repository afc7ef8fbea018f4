// Package provider define el port hacia el identity provider externo:
// quien entrega el challenge OTP al contacto y certifica su verificación.
//
// El core trata el session proof como un bearer opaco: se reenvía tal cual
// al signer remoto como prueba de identidad para el minteo y no se persiste
// más allá de la llamada de issuance.
package provider

import (
	"context"
	"errors"
)

var (
	// ErrInvalidOrExpiredCode indica código incorrecto o challenge vencido.
	// Indistinguibles a propósito: no filtrar cuál de los dos fue.
	ErrInvalidOrExpiredCode = errors.New("provider: invalid or expired code")

	// ErrUpstreamTimeout indica que el provider no respondió a tiempo.
	ErrUpstreamTimeout = errors.New("provider: upstream timeout")
)

// Provider es el contrato mínimo con el identity provider.
type Provider interface {
	// SendChallenge crea y entrega un challenge OTP al contacto.
	// Retorna un handle opaco para correlacionar la verificación.
	SendChallenge(ctx context.Context, contact string) (handle string, err error)

	// VerifyChallenge valida el código contra el challenge del handle.
	// En éxito retorna el session proof opaco y consume el challenge.
	VerifyChallenge(ctx context.Context, handle, code string) (sessionProof string, err error)
}
