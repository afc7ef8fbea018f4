// Package signer define el port hacia la red de threshold signing remota.
//
// El core nunca reconstruye una clave privada a partir de las shares: ambas
// viajan al protocolo remoto y la reconstrucción, si ocurre, ocurre adentro
// de su ceremonia. Acá el signer es una caja negra con dos operaciones.
package signer

import (
	"context"
	"errors"
)

var (
	// ErrUpstreamTimeout indica que el signer remoto no respondió a tiempo.
	// Nunca se trata como éxito ni se reintenta con shares cacheadas.
	ErrUpstreamTimeout = errors.New("signer: upstream timeout")

	// ErrMintRejected indica que el signer rechazó el identity proof.
	// Es la propiedad anti-forgery: el minteo está gateado criptográficamente
	// por el proof, no por un flag nuestro.
	ErrMintRejected = errors.New("signer: mint rejected")

	// ErrSignFailed indica que la ceremonia de firma falló del lado remoto.
	ErrSignFailed = errors.New("signer: remote signing failed")
)

// MintResult es el resultado de generar un key pair nuevo.
type MintResult struct {
	// KeyHandle identifica la clave dentro de la red de firma.
	KeyHandle string
	// PublicKey es la clave pública secp256k1 sin comprimir (65 bytes).
	PublicKey []byte
	// ClientShare es la mitad del usuario. Se entrega exactamente una vez
	// al caller de issuance y este servicio no la retiene.
	ClientShare []byte
	// ServerShare es la mitad que este servicio cifra y persiste.
	ServerShare []byte
}

// SignRequest agrupa los insumos de una ceremonia de firma.
// Vive solo durante la llamada; nunca se persiste ni loguea.
type SignRequest struct {
	KeyHandle   string
	ClientShare []byte
	ServerShare []byte
	Digest      []byte // 32 bytes
}

// RemoteSigner es el contrato con la red de firma.
type RemoteSigner interface {
	// Mint genera un key pair nuevo gateado por el identity proof.
	// El signer verifica el proof de forma independiente.
	Mint(ctx context.Context, identityProof string) (*MintResult, error)

	// ThresholdSign produce la firma (65 bytes r||s||v) del digest.
	ThresholdSign(ctx context.Context, req SignRequest) ([]byte, error)
}
