// Package memory implementa repository.Store en memoria.
//
// Pensado para tests y desarrollo local. Respeta la misma semántica de
// unicidad que el adapter PostgreSQL: email único por identidad y a lo sumo
// un KeyRecord (y una share por rol) por identidad, con ErrConflict para el
// perdedor de una carrera.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dropDatabas3/hellowallet/internal/domain/repository"
)

// Store implementa repository.Store.
type Store struct {
	mu sync.Mutex

	identitiesByID    map[string]*repository.Identity
	identitiesByEmail map[string]*repository.Identity
	assertions        map[string]*repository.IdentityAssertion
	keyRecords        map[string]*repository.KeyRecord      // identityID -> record
	shares            map[string]*repository.EncryptedShare // identityID+"/"+role
	sessions          map[string]*repository.Session        // tokenHash -> session
}

// New crea un store vacío.
func New() *Store {
	return &Store{
		identitiesByID:    make(map[string]*repository.Identity),
		identitiesByEmail: make(map[string]*repository.Identity),
		assertions:        make(map[string]*repository.IdentityAssertion),
		keyRecords:        make(map[string]*repository.KeyRecord),
		shares:            make(map[string]*repository.EncryptedShare),
		sessions:          make(map[string]*repository.Session),
	}
}

func (s *Store) Ping(context.Context) error { return nil }
func (s *Store) Close() error               { return nil }

func (s *Store) Identities() repository.IdentityRepository { return (*identityRepo)(s) }
func (s *Store) Assertions() repository.AssertionRepository { return (*assertionRepo)(s) }
func (s *Store) KeyRecords() repository.KeyRecordRepository { return (*keyRecordRepo)(s) }
func (s *Store) Shares() repository.ShareRepository         { return (*shareRepo)(s) }
func (s *Store) Sessions() repository.SessionRepository     { return (*sessionRepo)(s) }

func shareKey(identityID string, role repository.ShareRole) string {
	return identityID + "/" + string(role)
}

// ─── IdentityRepository ───

type identityRepo Store

func (r *identityRepo) GetByEmail(_ context.Context, email string) (*repository.Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.identitiesByEmail[email]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *id
	return &cp, nil
}

func (r *identityRepo) GetByID(_ context.Context, id string) (*repository.Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ident, ok := r.identitiesByID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *ident
	return &cp, nil
}

func (r *identityRepo) GetOrCreate(_ context.Context, email string) (*repository.Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.identitiesByEmail[email]; ok {
		cp := *existing
		return &cp, nil
	}
	ident := &repository.Identity{
		ID:            uuid.NewString(),
		Email:         email,
		EmailVerified: true,
		CreatedAt:     time.Now().UTC(),
	}
	r.identitiesByID[ident.ID] = ident
	r.identitiesByEmail[email] = ident
	cp := *ident
	return &cp, nil
}

// ─── AssertionRepository ───

type assertionRepo Store

func (r *assertionRepo) Create(_ context.Context, input repository.CreateAssertionInput) (*repository.IdentityAssertion, error) {
	now := time.Now().UTC()
	a := &repository.IdentityAssertion{
		ID:        uuid.NewString(),
		Email:     input.Email,
		Proof:     input.Proof,
		IssuedAt:  now,
		ExpiresAt: now.Add(input.TTL),
	}
	r.mu.Lock()
	r.assertions[a.ID] = a
	r.mu.Unlock()
	cp := *a
	return &cp, nil
}

func (r *assertionRepo) Consume(_ context.Context, id string) (*repository.IdentityAssertion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.assertions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if a.ConsumedAt != nil {
		return nil, repository.ErrAssertionConsumed
	}
	now := time.Now().UTC()
	if now.After(a.ExpiresAt) {
		return nil, repository.ErrAssertionExpired
	}

	consumed := now
	a.ConsumedAt = &consumed
	cp := *a
	a.Proof = "" // el proof no sobrevive al consumo
	return &cp, nil
}

func (r *assertionRepo) DeleteExpired(context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	n := 0
	for id, a := range r.assertions {
		if now.After(a.ExpiresAt) {
			delete(r.assertions, id)
			n++
		}
	}
	return n, nil
}

// ─── KeyRecordRepository ───

type keyRecordRepo Store

func (r *keyRecordRepo) GetByIdentity(_ context.Context, identityID string) (*repository.KeyRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.keyRecords[identityID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (r *keyRecordRepo) CreateWithShare(_ context.Context, input repository.CreateKeyRecordInput) (*repository.KeyRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// unique(identity_id): el perdedor de la carrera recibe conflict
	if _, exists := r.keyRecords[input.IdentityID]; exists {
		return nil, repository.ErrConflict
	}
	if _, exists := r.shares[shareKey(input.IdentityID, input.Share.Role)]; exists {
		return nil, repository.ErrConflict
	}

	now := time.Now().UTC()
	rec := &repository.KeyRecord{
		ID:         uuid.NewString(),
		IdentityID: input.IdentityID,
		KeyHandle:  input.KeyHandle,
		PublicKey:  append([]byte(nil), input.PublicKey...),
		Address:    input.Address,
		CreatedAt:  now,
	}
	share := input.Share
	share.ID = uuid.NewString()
	share.Ciphertext = append([]byte(nil), input.Share.Ciphertext...)
	share.Nonce = append([]byte(nil), input.Share.Nonce...)
	share.CreatedAt = now

	// ambas o ninguna, igual que la transacción del adapter pg
	r.keyRecords[input.IdentityID] = rec
	r.shares[shareKey(input.IdentityID, share.Role)] = &share

	cp := *rec
	return &cp, nil
}

// ─── ShareRepository ───

type shareRepo Store

func (r *shareRepo) GetByIdentity(_ context.Context, identityID string, role repository.ShareRole) (*repository.EncryptedShare, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	share, ok := r.shares[shareKey(identityID, role)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *share
	cp.Ciphertext = append([]byte(nil), share.Ciphertext...)
	cp.Nonce = append([]byte(nil), share.Nonce...)
	return &cp, nil
}

func (r *shareRepo) ListByIdentity(_ context.Context, identityID string) ([]repository.EncryptedShare, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []repository.EncryptedShare
	for _, role := range []repository.ShareRole{repository.ShareRoleServer, repository.ShareRoleLegacy} {
		if share, ok := r.shares[shareKey(identityID, role)]; ok {
			cp := *share
			out = append(out, cp)
		}
	}
	return out, nil
}

func (r *shareRepo) ListLegacyIdentities(_ context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, share := range r.shares {
		if share.Role == repository.ShareRoleLegacy {
			out = append(out, share.IdentityID)
		}
	}
	return out, nil
}

func (r *shareRepo) PromoteLegacy(_ context.Context, identityID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.shares[shareKey(identityID, repository.ShareRoleServer)]; exists {
		return repository.ErrConflict
	}
	legacy, ok := r.shares[shareKey(identityID, repository.ShareRoleLegacy)]
	if !ok {
		return repository.ErrNotFound
	}
	legacy.Role = repository.ShareRoleServer
	r.shares[shareKey(identityID, repository.ShareRoleServer)] = legacy
	delete(r.shares, shareKey(identityID, repository.ShareRoleLegacy))
	return nil
}

// PutShare inserta una share directamente. Solo para seeds de tests
// (instalaciones legacy no pasan por CreateWithShare).
func (s *Store) PutShare(share repository.EncryptedShare) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if share.ID == "" {
		share.ID = uuid.NewString()
	}
	if share.CreatedAt.IsZero() {
		share.CreatedAt = time.Now().UTC()
	}
	s.shares[shareKey(share.IdentityID, share.Role)] = &share
}

// CorruptShare flipea un byte del ciphertext almacenado. Solo para tests.
func (s *Store) CorruptShare(identityID string, role repository.ShareRole) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	share, ok := s.shares[shareKey(identityID, role)]
	if !ok || len(share.Ciphertext) == 0 {
		return false
	}
	share.Ciphertext[0] ^= 0xFF
	return true
}

// ─── SessionRepository ───

type sessionRepo Store

func (r *sessionRepo) Create(_ context.Context, input repository.CreateSessionInput) (*repository.Session, error) {
	now := time.Now().UTC()
	sess := &repository.Session{
		ID:         uuid.NewString(),
		IdentityID: input.IdentityID,
		TokenHash:  input.TokenHash,
		IssuedAt:   now,
		ExpiresAt:  now.Add(input.TTL),
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sessions[input.TokenHash]; exists {
		return nil, repository.ErrConflict
	}
	r.sessions[input.TokenHash] = sess
	cp := *sess
	return &cp, nil
}

func (r *sessionRepo) GetByTokenHash(_ context.Context, tokenHash string) (*repository.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[tokenHash]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *sess
	return &cp, nil
}

func (r *sessionRepo) Revoke(_ context.Context, tokenHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[tokenHash]
	if !ok {
		return nil
	}
	if sess.RevokedAt == nil {
		now := time.Now().UTC()
		sess.RevokedAt = &now
	}
	return nil
}

func (r *sessionRepo) DeleteExpired(context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	n := 0
	for hash, sess := range r.sessions {
		if now.After(sess.ExpiresAt) {
			delete(r.sessions, hash)
			n++
		}
	}
	return n, nil
}
