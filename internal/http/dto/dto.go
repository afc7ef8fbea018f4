// Package dto define los contratos JSON de la API pública.
package dto

import "time"

// ─── Verificación ───

type BeginVerificationRequest struct {
	Email string `json:"email"`
}

type BeginVerificationResponse struct {
	ChallengeID string `json:"challenge_id"`
}

type CompleteVerificationRequest struct {
	ChallengeID string `json:"challenge_id"`
	Code        string `json:"code"`
}

type CompleteVerificationResponse struct {
	AssertionID string    `json:"assertion_id"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// ─── Cuentas ───

type ResolveAccountRequest struct {
	AssertionID string `json:"assertion_id"`
}

type Account struct {
	Address   string `json:"address"`
	KeyHandle string `json:"key_handle"`
	// PublicKey en hex sin comprimir (65 bytes, prefijo 0x04).
	PublicKey string `json:"public_key"`
}

type SessionToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type ResolveAccountResponse struct {
	Account Account      `json:"account"`
	Session SessionToken `json:"session"`
	IsNew   bool         `json:"is_new"`
	// ClientShare en base64, presente SOLO en el primer login. El servidor
	// no la retiene: perderla implica perder la cuenta.
	ClientShare string `json:"client_share,omitempty"`
}

// ─── Firma ───

type SignRequest struct {
	// Digest de 32 bytes en hex (con o sin prefijo 0x).
	Digest string `json:"digest"`
}

type SignResponse struct {
	Address string `json:"address"`
	Digest  string `json:"digest"`
	// Signature compacta r||s||v en hex.
	Signature string `json:"signature"`
}
