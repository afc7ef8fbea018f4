package signer

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/sha256"
	"fmt"
	"sync"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Stub simula la red de firma para tests. Genera claves secp256k1 reales y
// "parte" la privada en dos mitades XOR, de modo que firmar requiere ambas
// shares correctas y cualquier corrupción se detecta.
type Stub struct {
	MintErr error // si no es nil, Mint falla con esto
	SignErr error // si no es nil, ThresholdSign falla con esto

	mu        sync.Mutex
	seq       int
	keys      map[string]*ecdsa.PrivateKey // keyHandle -> clave completa
	MintCalls int
	SignCalls int
}

func NewStub() *Stub {
	return &Stub{keys: make(map[string]*ecdsa.PrivateKey)}
}

func (s *Stub) Mint(_ context.Context, identityProof string) (*MintResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.MintCalls++
	if s.MintErr != nil {
		return nil, s.MintErr
	}
	if identityProof == "" {
		return nil, ErrMintRejected
	}

	priv, err := ethcrypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	s.seq++
	handle := fmt.Sprintf("stub-key-%d", s.seq)
	s.keys[handle] = priv

	// split XOR: shareA aleatoria-determinista, shareB = priv ^ shareA
	d := ethcrypto.FromECDSA(priv) // 32 bytes
	mask := sha256.Sum256([]byte(handle))
	shareA := mask[:]
	shareB := make([]byte, len(d))
	for i := range d {
		shareB[i] = d[i] ^ shareA[i]
	}

	return &MintResult{
		KeyHandle:   handle,
		PublicKey:   ethcrypto.FromECDSAPub(&priv.PublicKey),
		ClientShare: shareA,
		ServerShare: shareB,
	}, nil
}

func (s *Stub) ThresholdSign(_ context.Context, req SignRequest) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SignCalls++
	if s.SignErr != nil {
		return nil, s.SignErr
	}

	priv, ok := s.keys[req.KeyHandle]
	if !ok {
		return nil, ErrSignFailed
	}
	if len(req.Digest) != 32 {
		return nil, ErrSignFailed
	}

	// recombinar y verificar que las shares son las emitidas
	if len(req.ClientShare) != 32 || len(req.ServerShare) != 32 {
		return nil, ErrSignFailed
	}
	d := make([]byte, 32)
	for i := range d {
		d[i] = req.ClientShare[i] ^ req.ServerShare[i]
	}
	if !bytes.Equal(d, ethcrypto.FromECDSA(priv)) {
		return nil, ErrSignFailed
	}

	return ethcrypto.Sign(req.Digest, priv)
}
