package signing

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/dropDatabas3/hellowallet/internal/domain/repository"
	"github.com/dropDatabas3/hellowallet/internal/issuance"
	"github.com/dropDatabas3/hellowallet/internal/rate"
	"github.com/dropDatabas3/hellowallet/internal/security/sharebox"
	"github.com/dropDatabas3/hellowallet/internal/session"
	"github.com/dropDatabas3/hellowallet/internal/signer"
	"github.com/dropDatabas3/hellowallet/internal/store/memory"
)

type fixture struct {
	st       *memory.Store
	remote   *signer.Stub
	sessions session.Manager
	svc      Service
}

func setup(t *testing.T) *fixture {
	t.Helper()
	sharebox.UnsafeResetForTests()
	raw := make([]byte, 32)
	for i := range raw {
		raw[i] = byte(i + 100)
	}
	os.Setenv("SHAREBOX_MASTER_KEY", base64.StdEncoding.EncodeToString(raw))

	st := memory.New()
	remote := signer.NewStub()
	sessions, err := session.NewManager(st, session.Config{Issuer: "test", TTL: time.Hour})
	if err != nil {
		t.Fatal(err)
	}
	return &fixture{
		st:       st,
		remote:   remote,
		sessions: sessions,
		svc: New(Deps{
			Store:    st,
			Sessions: sessions,
			Signer:   remote,
			Limiter:  rate.NewMemoryLimiter(100, time.Minute),
		}),
	}
}

// provision corre el flujo real de issuance y devuelve token + client share.
func (f *fixture) provision(t *testing.T, email string) (token string, clientShare []byte) {
	t.Helper()
	ctx := context.Background()

	a, err := f.st.Assertions().Create(ctx, repository.CreateAssertionInput{
		Email: email, Proof: "proof:" + email, TTL: 5 * time.Minute,
	})
	if err != nil {
		t.Fatal(err)
	}
	res, err := issuance.New(issuance.Deps{Store: f.st, Signer: f.remote}).ResolveAccount(ctx, a.ID)
	if err != nil {
		t.Fatalf("provision: %v", err)
	}
	issued, err := f.sessions.Issue(ctx, res.Identity)
	if err != nil {
		t.Fatal(err)
	}
	return issued.Token, res.ClientShare
}

func digestOf(s string) []byte {
	d := sha256.Sum256([]byte(s))
	return d[:]
}

func TestSign_HappyPath(t *testing.T) {
	f := setup(t)
	token, clientShare := f.provision(t, "a@example.com")

	sig, err := f.svc.Sign(context.Background(), token, clientShare, digestOf("tx"))
	if err != nil {
		t.Fatalf("Sign err: %v", err)
	}
	if len(sig.Signature) != 65 {
		t.Fatalf("firma de %d bytes, want 65 (r||s||v)", len(sig.Signature))
	}
	if sig.Address == "" {
		t.Fatal("sin address en el resultado")
	}
	if f.remote.SignCalls != 1 {
		t.Fatalf("sign remoto llamado %d veces", f.remote.SignCalls)
	}
}

func TestSign_InvalidDigest(t *testing.T) {
	f := setup(t)
	token, clientShare := f.provision(t, "a@example.com")

	if _, err := f.svc.Sign(context.Background(), token, clientShare, []byte("corto")); !errors.Is(err, ErrInvalidDigest) {
		t.Fatalf("want ErrInvalidDigest, got %v", err)
	}
	if f.remote.SignCalls != 0 {
		t.Fatal("no debería tocar el signer remoto")
	}
}

func TestSign_Unauthenticated(t *testing.T) {
	f := setup(t)
	_, clientShare := f.provision(t, "a@example.com")

	if _, err := f.svc.Sign(context.Background(), "token-falso", clientShare, digestOf("tx")); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("want ErrUnauthenticated, got %v", err)
	}
	if f.remote.SignCalls != 0 {
		t.Fatal("fallo temprano no debería llamar al signer remoto")
	}
}

func TestSign_RevokedSession(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	token, clientShare := f.provision(t, "a@example.com")

	if err := f.sessions.Revoke(ctx, token); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Sign(ctx, token, clientShare, digestOf("tx")); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("want ErrUnauthenticated, got %v", err)
	}
	if f.remote.SignCalls != 0 {
		t.Fatal("sesión revocada no debería llamar al signer remoto")
	}
}

func TestSign_ExpiredSession(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	_, clientShare := f.provision(t, "a@example.com")

	ident, err := f.st.Identities().GetByEmail(ctx, "a@example.com")
	if err != nil {
		t.Fatal(err)
	}

	// Sesión con TTL mínimo; cuando vence, la firma muere en la etapa de
	// sesión sin tocar el signer remoto.
	short, err := session.NewManager(f.st, session.Config{Issuer: "test", TTL: 50 * time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	issued, err := short.Issue(ctx, ident)
	if err != nil {
		t.Fatal(err)
	}
	svc := New(Deps{
		Store:    f.st,
		Sessions: short,
		Signer:   f.remote,
		Limiter:  rate.NewMemoryLimiter(100, time.Minute),
	})

	time.Sleep(150 * time.Millisecond)

	_, err = svc.Sign(ctx, issued.Token, clientShare, digestOf("tx"))
	if !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("want ErrUnauthenticated, got %v", err)
	}
	if f.remote.SignCalls != 0 {
		t.Fatalf("SignCalls = %d, la sesión vencida no debe llegar al remoto", f.remote.SignCalls)
	}
}

func TestSign_AccountNotProvisioned(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	// identidad con sesión pero sin cuenta
	ident, err := f.st.Identities().GetOrCreate(ctx, "sin-cuenta@example.com")
	if err != nil {
		t.Fatal(err)
	}
	issued, err := f.sessions.Issue(ctx, ident)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := f.svc.Sign(ctx, issued.Token, []byte("share"), digestOf("tx")); !errors.Is(err, ErrAccountNotProvisioned) {
		t.Fatalf("want ErrAccountNotProvisioned, got %v", err)
	}
	if f.remote.SignCalls != 0 {
		t.Fatal("cuenta inexistente no debería llamar al signer remoto")
	}
}

func TestSign_CorruptedShareNeverReachesRemote(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	token, clientShare := f.provision(t, "a@example.com")

	ident, err := f.st.Identities().GetByEmail(ctx, "a@example.com")
	if err != nil {
		t.Fatal(err)
	}
	if !f.st.CorruptShare(ident.ID, repository.ShareRoleServer) {
		t.Fatal("no pude corromper la share")
	}

	if _, err := f.svc.Sign(ctx, token, clientShare, digestOf("tx")); !errors.Is(err, ErrServerShareUnavailable) {
		t.Fatalf("want ErrServerShareUnavailable, got %v", err)
	}
	if f.remote.SignCalls != 0 {
		t.Fatal("share corrupta jamás debe llegar al signer remoto")
	}

	// reintentar no arregla nada ni cambia el resultado
	if _, err := f.svc.Sign(ctx, token, clientShare, digestOf("tx")); !errors.Is(err, ErrServerShareUnavailable) {
		t.Fatalf("segundo intento: want ErrServerShareUnavailable, got %v", err)
	}
}

func TestSign_RateLimited(t *testing.T) {
	f := setup(t)
	// limiter de un solo disparo
	f.svc = New(Deps{
		Store:    f.st,
		Sessions: f.sessions,
		Signer:   f.remote,
		Limiter:  rate.NewMemoryLimiter(1, time.Hour),
	})
	ctx := context.Background()
	token, clientShare := f.provision(t, "a@example.com")

	if _, err := f.svc.Sign(ctx, token, clientShare, digestOf("tx1")); err != nil {
		t.Fatalf("primera firma err: %v", err)
	}
	if _, err := f.svc.Sign(ctx, token, clientShare, digestOf("tx2")); !errors.Is(err, ErrTooManyRequests) {
		t.Fatalf("want ErrTooManyRequests, got %v", err)
	}
	if f.remote.SignCalls != 1 {
		t.Fatalf("solo la primera firma debería llegar al remoto, hubo %d", f.remote.SignCalls)
	}
}

func TestSign_RemoteFailure(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	token, clientShare := f.provision(t, "a@example.com")

	f.remote.SignErr = errors.New("mpc node down")
	if _, err := f.svc.Sign(ctx, token, clientShare, digestOf("tx")); !errors.Is(err, ErrRemoteSigningFailed) {
		t.Fatalf("want ErrRemoteSigningFailed, got %v", err)
	}
	// sin reintentos silenciosos
	if f.remote.SignCalls != 1 {
		t.Fatalf("remote llamado %d veces, want 1 (sin retry)", f.remote.SignCalls)
	}
}

func TestSign_LegacyShareFallback(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	// instalación vieja: record completo pero la share vive bajo el rol legacy
	ident, err := f.st.Identities().GetOrCreate(ctx, "viejo@example.com")
	if err != nil {
		t.Fatal(err)
	}
	minted, err := f.remote.Mint(ctx, "proof:viejo@example.com")
	if err != nil {
		t.Fatal(err)
	}
	ct, nonce, err := sharebox.Seal(ident.ID, minted.ServerShare)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.st.KeyRecords().CreateWithShare(ctx, repository.CreateKeyRecordInput{
		IdentityID: ident.ID,
		KeyHandle:  minted.KeyHandle,
		PublicKey:  minted.PublicKey,
		Address:    "0x00000000000000000000000000000000000000aa",
		Share: repository.EncryptedShare{
			IdentityID: ident.ID,
			Role:       repository.ShareRoleLegacy,
			Ciphertext: ct,
			Nonce:      nonce,
		},
	}); err != nil {
		t.Fatal(err)
	}
	issued, err := f.sessions.Issue(ctx, ident)
	if err != nil {
		t.Fatal(err)
	}

	sig, err := f.svc.Sign(ctx, issued.Token, minted.ClientShare, digestOf("tx"))
	if err != nil {
		t.Fatalf("Sign con share legacy err: %v", err)
	}
	if len(sig.Signature) != 65 {
		t.Fatalf("firma de %d bytes", len(sig.Signature))
	}
}
