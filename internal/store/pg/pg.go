// Package pg implementa repository.Store sobre PostgreSQL usando pgx/v5.
package pg

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/hellowallet/internal/domain/repository"
)

// Store implementa repository.Store.
type Store struct{ pool *pgxpool.Pool }

// Options tuning opcional del pool.
type Options struct {
	MaxConns        int32
	MinConns        int32
	ConnMaxLifetime time.Duration
}

// New abre el pool y verifica conectividad.
func New(ctx context.Context, dsn string, opts Options) (*Store, error) {
	pcfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	if opts.MaxConns > 0 {
		pcfg.MaxConns = opts.MaxConns
	}
	if opts.MinConns > 0 {
		pcfg.MinConns = opts.MinConns
	}
	if opts.ConnMaxLifetime > 0 {
		pcfg.MaxConnLifetime = opts.ConnMaxLifetime
		pcfg.MaxConnIdleTime = opts.ConnMaxLifetime
	}
	if pcfg.MaxConns == 0 {
		pcfg.MaxConns = 10
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool}, nil
}

// Pool expone el pool interno (migraciones, métricas).
func (s *Store) Pool() *pgxpool.Pool {
	if s == nil {
		return nil
	}
	return s.pool
}

func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// Close cierra el pool (idempotente).
func (s *Store) Close() error {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
	return nil
}

func (s *Store) Identities() repository.IdentityRepository  { return (*identityRepo)(s) }
func (s *Store) Assertions() repository.AssertionRepository { return (*assertionRepo)(s) }
func (s *Store) KeyRecords() repository.KeyRecordRepository { return (*keyRecordRepo)(s) }
func (s *Store) Shares() repository.ShareRepository         { return (*shareRepo)(s) }
func (s *Store) Sessions() repository.SessionRepository     { return (*sessionRepo)(s) }

// mapErr traduce errores de pgx al vocabulario del repositorio.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return repository.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return repository.ErrConflict
	}
	return err
}

// ─── IdentityRepository ───

type identityRepo Store

func (r *identityRepo) GetByEmail(ctx context.Context, email string) (*repository.Identity, error) {
	var ident repository.Identity
	err := r.pool.QueryRow(ctx, `
		SELECT id, email, email_verified, created_at
		FROM identity WHERE email = $1`, email,
	).Scan(&ident.ID, &ident.Email, &ident.EmailVerified, &ident.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &ident, nil
}

func (r *identityRepo) GetByID(ctx context.Context, id string) (*repository.Identity, error) {
	var ident repository.Identity
	err := r.pool.QueryRow(ctx, `
		SELECT id, email, email_verified, created_at
		FROM identity WHERE id = $1`, id,
	).Scan(&ident.ID, &ident.Email, &ident.EmailVerified, &ident.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &ident, nil
}

func (r *identityRepo) GetOrCreate(ctx context.Context, email string) (*repository.Identity, error) {
	// ON CONFLICT DO UPDATE para que RETURNING devuelva también la fila existente.
	var ident repository.Identity
	err := r.pool.QueryRow(ctx, `
		INSERT INTO identity (id, email, email_verified, created_at)
		VALUES (gen_random_uuid(), $1, TRUE, now())
		ON CONFLICT (email) DO UPDATE SET email_verified = TRUE
		RETURNING id, email, email_verified, created_at`, email,
	).Scan(&ident.ID, &ident.Email, &ident.EmailVerified, &ident.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &ident, nil
}

// ─── AssertionRepository ───

type assertionRepo Store

func (r *assertionRepo) Create(ctx context.Context, input repository.CreateAssertionInput) (*repository.IdentityAssertion, error) {
	var a repository.IdentityAssertion
	err := r.pool.QueryRow(ctx, `
		INSERT INTO identity_assertion (id, email, proof, issued_at, expires_at)
		VALUES (gen_random_uuid(), $1, $2, now(), now() + $3)
		RETURNING id, email, proof, issued_at, expires_at`,
		input.Email, input.Proof, input.TTL,
	).Scan(&a.ID, &a.Email, &a.Proof, &a.IssuedAt, &a.ExpiresAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &a, nil
}

// Consume marca la assertion como consumida en un solo UPDATE condicional:
// el segundo caller concurrente no matchea el WHERE y distingue el motivo
// con una lectura posterior.
func (r *assertionRepo) Consume(ctx context.Context, id string) (*repository.IdentityAssertion, error) {
	var a repository.IdentityAssertion
	err := r.pool.QueryRow(ctx, `
		UPDATE identity_assertion
		SET consumed_at = now()
		WHERE id = $1 AND consumed_at IS NULL AND expires_at > now()
		RETURNING id, email, proof, issued_at, expires_at, consumed_at`,
		id,
	).Scan(&a.ID, &a.Email, &a.Proof, &a.IssuedAt, &a.ExpiresAt, &a.ConsumedAt)
	if err == nil {
		// el proof no sobrevive al consumo; best effort, la fila ya quedó consumida
		_, _ = r.pool.Exec(ctx, `UPDATE identity_assertion SET proof = '' WHERE id = $1`, id)
		return &a, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, mapErr(err)
	}

	// Paso 2: distinguir not-found / replay / expirada.
	var consumedAt *time.Time
	var expiresAt time.Time
	err = r.pool.QueryRow(ctx, `
		SELECT consumed_at, expires_at FROM identity_assertion WHERE id = $1`, id,
	).Scan(&consumedAt, &expiresAt)
	if err != nil {
		return nil, mapErr(err)
	}
	if consumedAt != nil {
		return nil, repository.ErrAssertionConsumed
	}
	return nil, repository.ErrAssertionExpired
}

func (r *assertionRepo) DeleteExpired(ctx context.Context) (int, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM identity_assertion WHERE expires_at < now()`)
	if err != nil {
		return 0, mapErr(err)
	}
	return int(tag.RowsAffected()), nil
}

// ─── KeyRecordRepository ───

type keyRecordRepo Store

func (r *keyRecordRepo) GetByIdentity(ctx context.Context, identityID string) (*repository.KeyRecord, error) {
	var rec repository.KeyRecord
	err := r.pool.QueryRow(ctx, `
		SELECT id, identity_id, key_handle, public_key, address, created_at
		FROM key_record WHERE identity_id = $1`, identityID,
	).Scan(&rec.ID, &rec.IdentityID, &rec.KeyHandle, &rec.PublicKey, &rec.Address, &rec.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &rec, nil
}

// CreateWithShare inserta key_record y encrypted_share en una transacción:
// o quedan ambas filas o ninguna. El índice único sobre identity_id hace que
// el perdedor de una carrera de primer login reciba ErrConflict.
func (r *keyRecordRepo) CreateWithShare(ctx context.Context, input repository.CreateKeyRecordInput) (*repository.KeyRecord, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, mapErr(err)
	}
	defer tx.Rollback(ctx)

	var rec repository.KeyRecord
	err = tx.QueryRow(ctx, `
		INSERT INTO key_record (id, identity_id, key_handle, public_key, address, created_at)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, now())
		RETURNING id, identity_id, key_handle, public_key, address, created_at`,
		input.IdentityID, input.KeyHandle, input.PublicKey, input.Address,
	).Scan(&rec.ID, &rec.IdentityID, &rec.KeyHandle, &rec.PublicKey, &rec.Address, &rec.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO encrypted_share (id, identity_id, role, ciphertext, nonce, created_at)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, now())`,
		input.IdentityID, string(input.Share.Role), input.Share.Ciphertext, input.Share.Nonce,
	)
	if err != nil {
		return nil, mapErr(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, mapErr(err)
	}
	return &rec, nil
}

// ─── ShareRepository ───

type shareRepo Store

func (r *shareRepo) GetByIdentity(ctx context.Context, identityID string, role repository.ShareRole) (*repository.EncryptedShare, error) {
	var share repository.EncryptedShare
	var roleStr string
	err := r.pool.QueryRow(ctx, `
		SELECT id, identity_id, role, ciphertext, nonce, created_at
		FROM encrypted_share WHERE identity_id = $1 AND role = $2`,
		identityID, string(role),
	).Scan(&share.ID, &share.IdentityID, &roleStr, &share.Ciphertext, &share.Nonce, &share.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	share.Role = repository.ShareRole(roleStr)
	return &share, nil
}

func (r *shareRepo) ListByIdentity(ctx context.Context, identityID string) ([]repository.EncryptedShare, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, identity_id, role, ciphertext, nonce, created_at
		FROM encrypted_share WHERE identity_id = $1 ORDER BY role`, identityID)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []repository.EncryptedShare
	for rows.Next() {
		var share repository.EncryptedShare
		var roleStr string
		if err := rows.Scan(&share.ID, &share.IdentityID, &roleStr, &share.Ciphertext, &share.Nonce, &share.CreatedAt); err != nil {
			return nil, mapErr(err)
		}
		share.Role = repository.ShareRole(roleStr)
		out = append(out, share)
	}
	return out, rows.Err()
}

func (r *shareRepo) ListLegacyIdentities(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT identity_id FROM encrypted_share WHERE role = 'legacy'`)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, mapErr(err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (r *shareRepo) PromoteLegacy(ctx context.Context, identityID string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE encrypted_share SET role = 'server'
		WHERE identity_id = $1 AND role = 'legacy'
		  AND NOT EXISTS (
		      SELECT 1 FROM encrypted_share
		      WHERE identity_id = $1 AND role = 'server')`,
		identityID)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		// o no hay share legacy, o ya existe una server
		var n int
		if err := r.pool.QueryRow(ctx, `
			SELECT count(*) FROM encrypted_share
			WHERE identity_id = $1 AND role = 'server'`, identityID,
		).Scan(&n); err != nil {
			return mapErr(err)
		}
		if n > 0 {
			return repository.ErrConflict
		}
		return repository.ErrNotFound
	}
	return nil
}

// ─── SessionRepository ───

type sessionRepo Store

func (r *sessionRepo) Create(ctx context.Context, input repository.CreateSessionInput) (*repository.Session, error) {
	var sess repository.Session
	err := r.pool.QueryRow(ctx, `
		INSERT INTO session (id, identity_id, token_hash, issued_at, expires_at)
		VALUES (gen_random_uuid(), $1, $2, now(), now() + $3)
		RETURNING id, identity_id, token_hash, issued_at, expires_at, revoked_at`,
		input.IdentityID, input.TokenHash, input.TTL,
	).Scan(&sess.ID, &sess.IdentityID, &sess.TokenHash, &sess.IssuedAt, &sess.ExpiresAt, &sess.RevokedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &sess, nil
}

func (r *sessionRepo) GetByTokenHash(ctx context.Context, tokenHash string) (*repository.Session, error) {
	var sess repository.Session
	err := r.pool.QueryRow(ctx, `
		SELECT id, identity_id, token_hash, issued_at, expires_at, revoked_at
		FROM session WHERE token_hash = $1`, tokenHash,
	).Scan(&sess.ID, &sess.IdentityID, &sess.TokenHash, &sess.IssuedAt, &sess.ExpiresAt, &sess.RevokedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &sess, nil
}

func (r *sessionRepo) Revoke(ctx context.Context, tokenHash string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE session SET revoked_at = now()
		WHERE token_hash = $1 AND revoked_at IS NULL`, tokenHash)
	return mapErr(err)
}

func (r *sessionRepo) DeleteExpired(ctx context.Context) (int, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM session WHERE expires_at < now()`)
	if err != nil {
		return 0, mapErr(err)
	}
	return int(tag.RowsAffected()), nil
}
