// Package session implementa el Session Manager: bearer tokens EdDSA con
// fila persistida para poder revocar antes del expiry. La firma valida
// integridad; la fila decide revocación. Ambas tienen que pasar.
package session

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"

	"github.com/dropDatabas3/hellowallet/internal/domain/repository"
	"github.com/dropDatabas3/hellowallet/internal/observability/logger"
	tokens "github.com/dropDatabas3/hellowallet/internal/security/token"
)

// ErrUnauthenticated cubre token malformado, firma inválida, sesión vencida
// o revocada. Indistinguibles hacia afuera a propósito.
var ErrUnauthenticated = errors.New("unauthenticated")

// Issued es el resultado de emitir una sesión.
type Issued struct {
	Token     string
	SessionID string
	ExpiresAt time.Time
}

// Manager expone emisión y validación de sesiones.
type Manager interface {
	// Issue emite un bearer token para la identidad.
	Issue(ctx context.Context, identity *repository.Identity) (*Issued, error)

	// Validate verifica el token y retorna la identidad dueña.
	Validate(ctx context.Context, token string) (*repository.Identity, error)

	// Revoke invalida la sesión del token antes de su expiry. Idempotente.
	Revoke(ctx context.Context, token string) error
}

// Config configura el manager.
type Config struct {
	Issuer string
	TTL    time.Duration
	// Seed ed25519 de 32 bytes. Si es nil se genera una efímera (solo dev).
	Seed []byte
}

type manager struct {
	store  repository.Store
	issuer string
	ttl    time.Duration
	priv   ed25519.PrivateKey
	pub    ed25519.PublicKey
}

// NewManager crea el session manager.
func NewManager(store repository.Store, cfg Config) (Manager, error) {
	if cfg.Issuer == "" {
		cfg.Issuer = "hellowallet"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}

	var priv ed25519.PrivateKey
	if len(cfg.Seed) == ed25519.SeedSize {
		priv = ed25519.NewKeyFromSeed(cfg.Seed)
	} else if cfg.Seed != nil {
		return nil, fmt.Errorf("session: seed must be %d bytes", ed25519.SeedSize)
	} else {
		_, generated, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("session: generate signing key: %w", err)
		}
		priv = generated
	}

	return &manager{
		store:  store,
		issuer: cfg.Issuer,
		ttl:    cfg.TTL,
		priv:   priv,
		pub:    priv.Public().(ed25519.PublicKey),
	}, nil
}

func (m *manager) Issue(ctx context.Context, identity *repository.Identity) (*Issued, error) {
	now := time.Now().UTC()
	exp := now.Add(m.ttl)

	claims := jwtv5.MapClaims{
		"iss": m.issuer,
		"sub": identity.ID,
		"iat": now.Unix(),
		"nbf": now.Unix(),
		"exp": exp.Unix(),
	}
	tk := jwtv5.NewWithClaims(jwtv5.SigningMethodEdDSA, claims)
	tk.Header["typ"] = "JWT"

	signed, err := tk.SignedString(m.priv)
	if err != nil {
		return nil, fmt.Errorf("session: sign token: %w", err)
	}

	// Persistir solo el hash: el token completo no toca la DB
	row, err := m.store.Sessions().Create(ctx, repository.CreateSessionInput{
		IdentityID: identity.ID,
		TokenHash:  tokens.SHA256Base64URL(signed),
		TTL:        m.ttl,
	})
	if err != nil {
		return nil, fmt.Errorf("session: persist session: %w", err)
	}

	logger.From(ctx).Info("session issued",
		logger.Component("session"),
		logger.IdentityID(identity.ID),
		logger.SessionID(row.ID),
	)
	return &Issued{Token: signed, SessionID: row.ID, ExpiresAt: exp}, nil
}

func (m *manager) Validate(ctx context.Context, token string) (*repository.Identity, error) {
	if token == "" {
		return nil, ErrUnauthenticated
	}

	// Paso 1: Firma + claims estándar (exp/nbf los valida la lib)
	keyfunc := func(t *jwtv5.Token) (any, error) { return m.pub, nil }
	tok, err := jwtv5.Parse(token, keyfunc,
		jwtv5.WithValidMethods([]string{"EdDSA"}),
		jwtv5.WithIssuer(m.issuer),
		jwtv5.WithExpirationRequired(),
	)
	if err != nil || !tok.Valid {
		return nil, ErrUnauthenticated
	}
	claims, ok := tok.Claims.(jwtv5.MapClaims)
	if !ok {
		return nil, ErrUnauthenticated
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, ErrUnauthenticated
	}

	// Paso 2: Cross-check contra la fila persistida (revocación inmediata)
	row, err := m.store.Sessions().GetByTokenHash(ctx, tokens.SHA256Base64URL(token))
	if err != nil {
		return nil, ErrUnauthenticated
	}
	now := time.Now().UTC()
	if row.RevokedAt != nil || now.After(row.ExpiresAt) || row.IdentityID != sub {
		return nil, ErrUnauthenticated
	}

	identity, err := m.store.Identities().GetByID(ctx, sub)
	if err != nil {
		return nil, ErrUnauthenticated
	}
	return identity, nil
}

func (m *manager) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return m.store.Sessions().Revoke(ctx, tokens.SHA256Base64URL(token))
}
