package memory

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/dropDatabas3/hellowallet/internal/domain/repository"
)

func seedIdentity(t *testing.T, st *Store, email string) *repository.Identity {
	t.Helper()
	id, err := st.Identities().GetOrCreate(context.Background(), email)
	if err != nil {
		t.Fatalf("GetOrCreate err: %v", err)
	}
	return id
}

func TestCreateWithShare_RejectsSecondRecord(t *testing.T) {
	st := New()
	ctx := context.Background()
	id := seedIdentity(t, st, "x@example.com")

	input := repository.CreateKeyRecordInput{
		IdentityID: id.ID,
		KeyHandle:  "kh-1",
		PublicKey:  []byte{0x04, 0x01},
		Address:    "0x00000000000000000000000000000000000000aa",
		Share: repository.EncryptedShare{
			IdentityID: id.ID,
			Role:       repository.ShareRoleServer,
			Ciphertext: []byte("ct"),
			Nonce:      []byte("nonce-000000"),
		},
	}
	if _, err := st.KeyRecords().CreateWithShare(ctx, input); err != nil {
		t.Fatalf("primer CreateWithShare err: %v", err)
	}

	input.KeyHandle = "kh-2"
	_, err := st.KeyRecords().CreateWithShare(ctx, input)
	if !repository.IsConflict(err) {
		t.Fatalf("segundo CreateWithShare: want ErrConflict, got %v", err)
	}

	// El record original sigue intacto.
	got, err := st.KeyRecords().GetByIdentity(ctx, id.ID)
	if err != nil {
		t.Fatalf("GetByIdentity err: %v", err)
	}
	if got.KeyHandle != "kh-1" {
		t.Fatalf("KeyHandle = %q, want kh-1", got.KeyHandle)
	}
}

func TestPromoteLegacy(t *testing.T) {
	st := New()
	ctx := context.Background()
	id := seedIdentity(t, st, "legacy@example.com")

	st.PutShare(repository.EncryptedShare{
		IdentityID: id.ID,
		Role:       repository.ShareRoleLegacy,
		Ciphertext: []byte("legacy-ct"),
		Nonce:      []byte("nonce-000000"),
	})

	if err := st.Shares().PromoteLegacy(ctx, id.ID); err != nil {
		t.Fatalf("PromoteLegacy err: %v", err)
	}

	// La share quedó re-etiquetada, no duplicada.
	share, err := st.Shares().GetByIdentity(ctx, id.ID, repository.ShareRoleServer)
	if err != nil {
		t.Fatalf("GetByIdentity(server) err: %v", err)
	}
	if string(share.Ciphertext) != "legacy-ct" {
		t.Fatalf("ciphertext = %q, want legacy-ct", share.Ciphertext)
	}
	if _, err := st.Shares().GetByIdentity(ctx, id.ID, repository.ShareRoleLegacy); !repository.IsNotFound(err) {
		t.Fatalf("la fila legacy debería haber desaparecido, got %v", err)
	}

	// Segunda pasada: ya hay server share.
	if err := st.Shares().PromoteLegacy(ctx, id.ID); !repository.IsConflict(err) {
		t.Fatalf("re-promote: want ErrConflict, got %v", err)
	}
}

func TestPromoteLegacy_NoLegacyRow(t *testing.T) {
	st := New()
	id := seedIdentity(t, st, "sin-legacy@example.com")

	err := st.Shares().PromoteLegacy(context.Background(), id.ID)
	if !repository.IsNotFound(err) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestListLegacyIdentities(t *testing.T) {
	st := New()
	ctx := context.Background()

	a := seedIdentity(t, st, "a-legacy@example.com")
	b := seedIdentity(t, st, "b-legacy@example.com")
	c := seedIdentity(t, st, "c-server@example.com")

	for _, id := range []string{a.ID, b.ID} {
		st.PutShare(repository.EncryptedShare{
			IdentityID: id,
			Role:       repository.ShareRoleLegacy,
			Ciphertext: []byte("ct"),
			Nonce:      []byte("nonce-000000"),
		})
	}
	st.PutShare(repository.EncryptedShare{
		IdentityID: c.ID,
		Role:       repository.ShareRoleServer,
		Ciphertext: []byte("ct"),
		Nonce:      []byte("nonce-000000"),
	})

	got, err := st.Shares().ListLegacyIdentities(ctx)
	if err != nil {
		t.Fatalf("ListLegacyIdentities err: %v", err)
	}
	sort.Strings(got)
	want := []string{a.ID, b.ID}
	sort.Strings(want)
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("ListLegacyIdentities = %v, want %v", got, want)
	}
}

func TestConsume_WipesProofAfterFirstRead(t *testing.T) {
	st := New()
	ctx := context.Background()

	created, err := st.Assertions().Create(ctx, repository.CreateAssertionInput{
		Email: "p@example.com",
		Proof: "proof-material",
		TTL:   5 * time.Minute,
	})
	if err != nil {
		t.Fatalf("Create err: %v", err)
	}

	got, err := st.Assertions().Consume(ctx, created.ID)
	if err != nil {
		t.Fatalf("Consume err: %v", err)
	}
	if got.Proof != "proof-material" {
		t.Fatalf("Proof = %q en el primer consume", got.Proof)
	}

	// El replay no solo falla: ya no queda proof almacenado.
	if _, err := st.Assertions().Consume(ctx, created.ID); !errors.Is(err, repository.ErrAssertionConsumed) {
		t.Fatalf("replay: want ErrAssertionConsumed, got %v", err)
	}
}
