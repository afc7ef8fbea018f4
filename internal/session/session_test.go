package session

import (
	"context"
	"errors"
	"testing"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"

	"github.com/dropDatabas3/hellowallet/internal/domain/repository"
	tokens "github.com/dropDatabas3/hellowallet/internal/security/token"
	"github.com/dropDatabas3/hellowallet/internal/store/memory"
)

// signWithExp firma un token con el mismo esquema de claims que Issue pero
// con un exp arbitrario, para poder fabricar sesiones vencidas sin dormir.
func signWithExp(t *testing.T, m Manager, identityID string, exp time.Time) string {
	t.Helper()
	mgr := m.(*manager)
	now := time.Now().UTC()
	claims := jwtv5.MapClaims{
		"iss": mgr.issuer,
		"sub": identityID,
		"iat": now.Add(-2 * time.Hour).Unix(),
		"nbf": now.Add(-2 * time.Hour).Unix(),
		"exp": exp.Unix(),
	}
	signed, err := jwtv5.NewWithClaims(jwtv5.SigningMethodEdDSA, claims).SignedString(mgr.priv)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func newIdentity(t *testing.T, st *memory.Store) *repository.Identity {
	t.Helper()
	ident, err := st.Identities().GetOrCreate(context.Background(), "a@example.com")
	if err != nil {
		t.Fatal(err)
	}
	return ident
}

func TestIssueValidate_RoundTrip(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	m, err := NewManager(st, Config{Issuer: "test", TTL: time.Hour})
	if err != nil {
		t.Fatal(err)
	}
	ident := newIdentity(t, st)

	issued, err := m.Issue(ctx, ident)
	if err != nil {
		t.Fatalf("Issue err: %v", err)
	}
	if issued.Token == "" || issued.SessionID == "" {
		t.Fatal("issued incompleto")
	}

	got, err := m.Validate(ctx, issued.Token)
	if err != nil {
		t.Fatalf("Validate err: %v", err)
	}
	if got.ID != ident.ID {
		t.Fatalf("identity %q, want %q", got.ID, ident.ID)
	}
}

func TestValidate_GarbageAndEmpty(t *testing.T) {
	st := memory.New()
	m, err := NewManager(st, Config{})
	if err != nil {
		t.Fatal(err)
	}

	for _, tok := range []string{"", "no.es.jwt", "aaaa"} {
		if _, err := m.Validate(context.Background(), tok); !errors.Is(err, ErrUnauthenticated) {
			t.Fatalf("token %q: want ErrUnauthenticated, got %v", tok, err)
		}
	}
}

func TestValidate_ForgedSignature(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	ident := newIdentity(t, st)

	// dos managers con claves distintas: el token de uno no valida en el otro
	m1, err := NewManager(st, Config{Issuer: "test"})
	if err != nil {
		t.Fatal(err)
	}
	m2, err := NewManager(st, Config{Issuer: "test"})
	if err != nil {
		t.Fatal(err)
	}

	issued, err := m1.Issue(ctx, ident)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m2.Validate(ctx, issued.Token); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("want ErrUnauthenticated, got %v", err)
	}
}

func TestValidate_Revoked(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	m, err := NewManager(st, Config{TTL: time.Hour})
	if err != nil {
		t.Fatal(err)
	}
	ident := newIdentity(t, st)

	issued, err := m.Issue(ctx, ident)
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Revoke(ctx, issued.Token); err != nil {
		t.Fatalf("Revoke err: %v", err)
	}

	if _, err := m.Validate(ctx, issued.Token); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("want ErrUnauthenticated tras revocar, got %v", err)
	}

	// revocar de nuevo es idempotente
	if err := m.Revoke(ctx, issued.Token); err != nil {
		t.Fatalf("Revoke repetido err: %v", err)
	}
}

func TestValidate_MissingSessionRow(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	m, err := NewManager(st, Config{TTL: time.Hour})
	if err != nil {
		t.Fatal(err)
	}
	ident := newIdentity(t, st)

	issued, err := m.Issue(ctx, ident)
	if err != nil {
		t.Fatal(err)
	}

	// sin fila persistida el JWT válido no alcanza
	if _, err := st.Sessions().DeleteExpired(ctx); err != nil {
		t.Fatal(err)
	}
	if err := st.Sessions().Revoke(ctx, "otra"); err != nil {
		t.Fatal(err)
	}
	// borrar la fila simulando pérdida: usamos un store nuevo con la misma clave
	m2 := m.(*manager)
	m2.store = memory.New()

	if _, err := m.Validate(ctx, issued.Token); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("want ErrUnauthenticated sin fila, got %v", err)
	}
}

func TestValidate_ExpiredToken(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	m, err := NewManager(st, Config{Issuer: "test", TTL: time.Hour})
	if err != nil {
		t.Fatal(err)
	}
	ident := newIdentity(t, st)

	// exp en el pasado pero fila persistida vigente: el rechazo tiene que
	// venir de la validación del JWT.
	tok := signWithExp(t, m, ident.ID, time.Now().UTC().Add(-time.Minute))
	if _, err := st.Sessions().Create(ctx, repository.CreateSessionInput{
		IdentityID: ident.ID,
		TokenHash:  tokens.SHA256Base64URL(tok),
		TTL:        time.Hour,
	}); err != nil {
		t.Fatal(err)
	}

	if _, err := m.Validate(ctx, tok); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("want ErrUnauthenticated, got %v", err)
	}
}

func TestValidate_ExpiredSessionRow(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	m, err := NewManager(st, Config{Issuer: "test", TTL: time.Hour})
	if err != nil {
		t.Fatal(err)
	}
	ident := newIdentity(t, st)

	// JWT todavía vigente pero la fila ya venció: la fila manda.
	tok := signWithExp(t, m, ident.ID, time.Now().UTC().Add(time.Hour))
	if _, err := st.Sessions().Create(ctx, repository.CreateSessionInput{
		IdentityID: ident.ID,
		TokenHash:  tokens.SHA256Base64URL(tok),
		TTL:        -time.Minute,
	}); err != nil {
		t.Fatal(err)
	}

	if _, err := m.Validate(ctx, tok); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("want ErrUnauthenticated, got %v", err)
	}
}

func TestNewManager_BadSeed(t *testing.T) {
	if _, err := NewManager(memory.New(), Config{Seed: []byte("corta")}); err == nil {
		t.Fatal("seed inválida debería fallar")
	}
}

func TestIssue_TokenHashesStoredNotTokens(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	m, err := NewManager(st, Config{TTL: time.Hour})
	if err != nil {
		t.Fatal(err)
	}
	ident := newIdentity(t, st)

	issued, err := m.Issue(ctx, ident)
	if err != nil {
		t.Fatal(err)
	}

	// búsqueda por el token en claro no encuentra nada
	if _, err := st.Sessions().GetByTokenHash(ctx, issued.Token); !repository.IsNotFound(err) {
		t.Fatalf("la DB no debería indexar el token en claro, got %v", err)
	}
}
