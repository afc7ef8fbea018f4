package issuance

import (
	"context"
	"encoding/base64"
	"errors"
	"os"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/dropDatabas3/hellowallet/internal/domain/repository"
	"github.com/dropDatabas3/hellowallet/internal/security/sharebox"
	"github.com/dropDatabas3/hellowallet/internal/signer"
	"github.com/dropDatabas3/hellowallet/internal/store/memory"
)

var addressRe = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

func setupSharebox(t *testing.T) {
	t.Helper()
	sharebox.UnsafeResetForTests()
	raw := make([]byte, 32)
	for i := range raw {
		raw[i] = byte(i * 3)
	}
	os.Setenv("SHAREBOX_MASTER_KEY", base64.StdEncoding.EncodeToString(raw))
}

func newAssertion(t *testing.T, st *memory.Store, email string, ttl time.Duration) string {
	t.Helper()
	a, err := st.Assertions().Create(context.Background(), repository.CreateAssertionInput{
		Email: email,
		Proof: "proof:" + email,
		TTL:   ttl,
	})
	if err != nil {
		t.Fatalf("create assertion: %v", err)
	}
	return a.ID
}

func TestResolveAccount_FirstLogin(t *testing.T) {
	setupSharebox(t)
	ctx := context.Background()
	st := memory.New()
	remote := signer.NewStub()
	svc := New(Deps{Store: st, Signer: remote})

	id := newAssertion(t, st, "a@example.com", 5*time.Minute)
	res, err := svc.ResolveAccount(ctx, id)
	if err != nil {
		t.Fatalf("ResolveAccount err: %v", err)
	}

	if !res.IsNew {
		t.Fatal("primer login debería ser IsNew")
	}
	if len(res.ClientShare) == 0 {
		t.Fatal("primer login sin client share")
	}
	if res.Record.KeyHandle == "" {
		t.Fatal("record sin key handle")
	}
	if !addressRe.MatchString(res.Record.Address) {
		t.Fatalf("address con formato raro: %q", res.Record.Address)
	}
	if res.Identity.Email != "a@example.com" {
		t.Fatalf("identity email %q", res.Identity.Email)
	}

	// la server share quedó cifrada y recuperable
	share, err := st.Shares().GetByIdentity(ctx, res.Identity.ID, repository.ShareRoleServer)
	if err != nil {
		t.Fatalf("server share no persistida: %v", err)
	}
	if _, err := sharebox.Open(res.Identity.ID, share.Ciphertext, share.Nonce); err != nil {
		t.Fatalf("server share no descifra: %v", err)
	}
}

func TestResolveAccount_IdempotentSecondLogin(t *testing.T) {
	setupSharebox(t)
	ctx := context.Background()
	st := memory.New()
	remote := signer.NewStub()
	svc := New(Deps{Store: st, Signer: remote})

	first, err := svc.ResolveAccount(ctx, newAssertion(t, st, "a@example.com", 5*time.Minute))
	if err != nil {
		t.Fatal(err)
	}

	second, err := svc.ResolveAccount(ctx, newAssertion(t, st, "a@example.com", 5*time.Minute))
	if err != nil {
		t.Fatal(err)
	}

	if second.IsNew {
		t.Fatal("segundo login no debería ser IsNew")
	}
	if second.ClientShare != nil {
		t.Fatal("la client share se entrega exactamente una vez")
	}
	if second.Record.KeyHandle != first.Record.KeyHandle {
		t.Fatalf("key handle cambió entre logins: %q vs %q", first.Record.KeyHandle, second.Record.KeyHandle)
	}
	if remote.MintCalls != 1 {
		t.Fatalf("mint llamado %d veces, want 1", remote.MintCalls)
	}
}

func TestResolveAccount_ReplayRejected(t *testing.T) {
	setupSharebox(t)
	ctx := context.Background()
	st := memory.New()
	svc := New(Deps{Store: st, Signer: signer.NewStub()})

	id := newAssertion(t, st, "a@example.com", 5*time.Minute)
	if _, err := svc.ResolveAccount(ctx, id); err != nil {
		t.Fatal(err)
	}

	if _, err := svc.ResolveAccount(ctx, id); !errors.Is(err, ErrAssertionReplayed) {
		t.Fatalf("want ErrAssertionReplayed, got %v", err)
	}
}

func TestResolveAccount_ExpiredAssertion(t *testing.T) {
	setupSharebox(t)
	st := memory.New()
	svc := New(Deps{Store: st, Signer: signer.NewStub()})

	id := newAssertion(t, st, "a@example.com", -time.Second)
	if _, err := svc.ResolveAccount(context.Background(), id); !errors.Is(err, ErrAssertionExpired) {
		t.Fatalf("want ErrAssertionExpired, got %v", err)
	}
}

func TestResolveAccount_UnknownAssertion(t *testing.T) {
	setupSharebox(t)
	svc := New(Deps{Store: memory.New(), Signer: signer.NewStub()})

	if _, err := svc.ResolveAccount(context.Background(), "no-existe"); !errors.Is(err, ErrAssertionInvalid) {
		t.Fatalf("want ErrAssertionInvalid, got %v", err)
	}
}

func TestResolveAccount_MintFailureLeavesNoRecord(t *testing.T) {
	setupSharebox(t)
	ctx := context.Background()
	st := memory.New()
	remote := signer.NewStub()
	remote.MintErr = errors.New("hsm en llamas")
	svc := New(Deps{Store: st, Signer: remote})

	id := newAssertion(t, st, "a@example.com", 5*time.Minute)
	if _, err := svc.ResolveAccount(ctx, id); !errors.Is(err, ErrMintFailed) {
		t.Fatalf("want ErrMintFailed, got %v", err)
	}

	// ni record ni share a medio camino
	ident, err := st.Identities().GetByEmail(ctx, "a@example.com")
	if err != nil {
		t.Fatalf("identity: %v", err)
	}
	if _, err := st.KeyRecords().GetByIdentity(ctx, ident.ID); !repository.IsNotFound(err) {
		t.Fatalf("no debería existir key record, got %v", err)
	}
	if _, err := st.Shares().GetByIdentity(ctx, ident.ID, repository.ShareRoleServer); !repository.IsNotFound(err) {
		t.Fatalf("no debería existir share, got %v", err)
	}
}

func TestResolveAccount_ConcurrentFirstLogin(t *testing.T) {
	setupSharebox(t)
	ctx := context.Background()
	st := memory.New()
	svc := New(Deps{Store: st, Signer: signer.NewStub()})

	const n = 8
	ids := make([]string, n)
	for i := range ids {
		ids[i] = newAssertion(t, st, "a@example.com", 5*time.Minute)
	}

	results := make([]*Result, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.ResolveAccount(ctx, ids[i])
		}(i)
	}
	wg.Wait()

	newCount := 0
	var handle string
	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("resolve %d err: %v", i, errs[i])
		}
		if results[i].IsNew {
			newCount++
			if len(results[i].ClientShare) == 0 {
				t.Fatal("el ganador debería recibir la client share")
			}
		} else if results[i].ClientShare != nil {
			t.Fatal("un perdedor recibió client share")
		}
		if handle == "" {
			handle = results[i].Record.KeyHandle
		} else if results[i].Record.KeyHandle != handle {
			t.Fatalf("key handles divergentes: %q vs %q", handle, results[i].Record.KeyHandle)
		}
	}
	if newCount != 1 {
		t.Fatalf("exactamente un resolve debería ser IsNew, hubo %d", newCount)
	}
}
