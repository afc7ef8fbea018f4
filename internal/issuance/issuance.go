// Package issuance implementa el Key Issuance Coordinator: consumir una
// assertion fresca y resolver la cuenta, minteando el key pair la primera vez.
//
// Invariantes que protege:
//   - exactamente un KeyRecord por identidad (unique index en el store;
//     el perdedor de una carrera relee, nunca re-mintea)
//   - issuance all-or-nothing: KeyRecord y EncryptedShare se persisten en
//     una única unidad atómica
//   - la client share sale de acá exactamente una vez y no se retiene
package issuance

import (
	"context"
	"errors"
	"fmt"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/dropDatabas3/hellowallet/internal/domain/repository"
	"github.com/dropDatabas3/hellowallet/internal/metrics"
	"github.com/dropDatabas3/hellowallet/internal/observability/logger"
	"github.com/dropDatabas3/hellowallet/internal/security/sharebox"
	"github.com/dropDatabas3/hellowallet/internal/signer"
)

// Errores de issuance.
var (
	ErrAssertionReplayed = fmt.Errorf("assertion already consumed")
	ErrAssertionExpired  = fmt.Errorf("assertion expired")
	ErrAssertionInvalid  = fmt.Errorf("assertion unknown or malformed")
	ErrMintFailed        = fmt.Errorf("remote key generation failed")
)

// Result es el resultado de resolver una cuenta.
type Result struct {
	Identity *repository.Identity
	Record   *repository.KeyRecord
	// ClientShare solo viene poblada cuando IsNew es true. El server no la
	// retiene: después de esta respuesta es irrecuperable.
	ClientShare []byte
	IsNew       bool
}

// Deps contiene las dependencias del coordinator.
type Deps struct {
	Store  repository.Store
	Signer signer.RemoteSigner
}

// Service expone la resolución de cuentas.
type Service interface {
	// ResolveAccount consume la assertion y retorna la cuenta de la identidad,
	// creándola (mint + split + persist) si es el primer login.
	ResolveAccount(ctx context.Context, assertionID string) (*Result, error)
}

type service struct {
	deps Deps
}

func New(deps Deps) Service {
	return &service{deps: deps}
}

func (s *service) ResolveAccount(ctx context.Context, assertionID string) (*Result, error) {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("issuance"),
		logger.Op("ResolveAccount"),
	)

	// Paso 1: Consumir la assertion (atómico; el replay muere acá)
	assertion, err := s.deps.Store.Assertions().Consume(ctx, assertionID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrAssertionConsumed):
			log.Info("assertion replay rejected")
			metrics.IssuanceTotal.WithLabelValues("replayed").Inc()
			return nil, ErrAssertionReplayed
		case errors.Is(err, repository.ErrAssertionExpired):
			metrics.IssuanceTotal.WithLabelValues("expired").Inc()
			return nil, ErrAssertionExpired
		case repository.IsNotFound(err):
			return nil, ErrAssertionInvalid
		default:
			return nil, fmt.Errorf("issuance: consume assertion: %w", err)
		}
	}

	// Paso 2: Resolver o crear la identidad
	identity, err := s.deps.Store.Identities().GetOrCreate(ctx, assertion.Email)
	if err != nil {
		return nil, fmt.Errorf("issuance: resolve identity: %w", err)
	}
	log = log.With(logger.IdentityID(identity.ID))

	// Paso 3: Login repetido -> devolver el record existente, sin material nuevo
	record, err := s.deps.Store.KeyRecords().GetByIdentity(ctx, identity.ID)
	if err == nil {
		log.Info("existing account resolved", logger.Address(record.Address))
		metrics.IssuanceTotal.WithLabelValues("existing").Inc()
		return &Result{Identity: identity, Record: record, IsNew: false}, nil
	}
	if !repository.IsNotFound(err) {
		return nil, fmt.Errorf("issuance: lookup key record: %w", err)
	}

	// Paso 4: Primer login -> mintear gateado por el proof original.
	// El signer verifica el proof por su cuenta; un flag nuestro no alcanza.
	start := time.Now()
	minted, err := s.deps.Signer.Mint(ctx, assertion.Proof)
	metrics.RemoteSignerLatency.WithLabelValues("mint").Observe(float64(time.Since(start).Milliseconds()))
	if err != nil {
		log.Error("remote mint failed", logger.Err(err))
		metrics.IssuanceTotal.WithLabelValues("mint_error").Inc()
		if errors.Is(err, signer.ErrUpstreamTimeout) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrMintFailed, err)
	}

	address, err := deriveAddress(minted.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMintFailed, err)
	}

	// Paso 5: Cifrar la server share y persistir todo en una unidad atómica
	ciphertext, nonce, err := sharebox.Seal(identity.ID, minted.ServerShare)
	if err != nil {
		return nil, fmt.Errorf("issuance: seal server share: %w", err)
	}

	record, err = s.deps.Store.KeyRecords().CreateWithShare(ctx, repository.CreateKeyRecordInput{
		IdentityID: identity.ID,
		KeyHandle:  minted.KeyHandle,
		PublicKey:  minted.PublicKey,
		Address:    address,
		Share: repository.EncryptedShare{
			IdentityID: identity.ID,
			Role:       repository.ShareRoleServer,
			Ciphertext: ciphertext,
			Nonce:      nonce,
		},
	})
	if err != nil {
		if repository.IsConflict(err) {
			// Perdimos la carrera del primer login: releer y devolver lo que
			// ganó. La client share de este mint muere acá sin ser entregada.
			existing, rerr := s.deps.Store.KeyRecords().GetByIdentity(ctx, identity.ID)
			if rerr != nil {
				return nil, fmt.Errorf("issuance: reread after race: %w", rerr)
			}
			log.Info("lost first-login race, returning existing record")
			metrics.IssuanceTotal.WithLabelValues("existing").Inc()
			return &Result{Identity: identity, Record: existing, IsNew: false}, nil
		}
		metrics.IssuanceTotal.WithLabelValues("persist_error").Inc()
		return nil, fmt.Errorf("issuance: persist key record: %w", err)
	}

	log.Info("account provisioned",
		logger.KeyHandle(record.KeyHandle),
		logger.Address(record.Address),
	)
	metrics.IssuanceTotal.WithLabelValues("new").Inc()
	return &Result{
		Identity:    identity,
		Record:      record,
		ClientShare: minted.ClientShare,
		IsNew:       true,
	}, nil
}

// deriveAddress deriva la dirección de cuenta desde la pubkey secp256k1 del
// signer remoto. Esta derivación es la autoritativa; nunca una fórmula
// placeholder.
func deriveAddress(pub []byte) (string, error) {
	pk, err := ethcrypto.UnmarshalPubkey(pub)
	if err != nil {
		return "", fmt.Errorf("parse public key: %w", err)
	}
	return ethcrypto.PubkeyToAddress(*pk).Hex(), nil
}
