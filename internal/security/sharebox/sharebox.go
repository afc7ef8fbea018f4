// Package sharebox cifra y descifra las server shares en reposo.
//
// Envelope encryption: una master key de 32 bytes (env SHAREBOX_MASTER_KEY,
// base64) de la que se deriva una subkey AES-256 por identidad vía HKDF.
// Así un ciphertext nunca es válido bajo la identidad equivocada, y rotar
// la master key invalida todo de forma detectable (auth tag), nunca silenciosa.
package sharebox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/crypto/hkdf"
)

const (
	masterKeyEnvVar   = "SHAREBOX_MASTER_KEY"
	nonceSizeGCM      = 12 // AES-GCM nonce recomendado (96 bits)
	requiredKeyLength = 32 // 32 bytes => AES-256
)

// ErrDecryptionFailed indica tag de autenticación inválido: corrupción o
// clave equivocada. Siempre fatal, nunca degradar a un fallback.
var ErrDecryptionFailed = errors.New("sharebox: decryption failed")

var (
	masterKey     []byte
	masterKeyOnce sync.Once
	loadErr       error
	mu            sync.RWMutex
)

// ensureLoaded carga la master key desde SHAREBOX_MASTER_KEY (base64) una sola vez.
func ensureLoaded() error {
	masterKeyOnce.Do(func() {
		kb64 := strings.TrimSpace(os.Getenv(masterKeyEnvVar))
		if kb64 == "" {
			loadErr = fmt.Errorf("%s no seteada; genere una clave con: hellowallet keygen", masterKeyEnvVar)
			return
		}
		k, err := base64.StdEncoding.DecodeString(kb64)
		if err != nil {
			loadErr = fmt.Errorf("decode %s: %w", masterKeyEnvVar, err)
			return
		}
		if len(k) != requiredKeyLength {
			loadErr = fmt.Errorf("%s debe decodificar a %d bytes, obtuvo %d", masterKeyEnvVar, requiredKeyLength, len(k))
			return
		}
		mu.Lock()
		masterKey = make([]byte, len(k))
		copy(masterKey, k)
		mu.Unlock()
	})
	return loadErr
}

// Ready expone si la clave está disponible (útil para healthchecks y el
// gate de boot). Fuerza la carga: tiene que responder bien antes del
// primer Seal/Open.
func Ready() bool {
	return ensureLoaded() == nil
}

// subkey deriva la clave AES por identidad: HKDF-SHA256(master, info=identityID).
func subkey(identityID string) ([]byte, error) {
	if err := ensureLoaded(); err != nil {
		return nil, err
	}
	mu.RLock()
	defer mu.RUnlock()

	r := hkdf.New(sha256.New, masterKey, nil, []byte("sharebox/v1/"+identityID))
	k := make([]byte, requiredKeyLength)
	if _, err := io.ReadFull(r, k); err != nil {
		return nil, fmt.Errorf("sharebox: hkdf: %w", err)
	}
	return k, nil
}

// Seal cifra plaintext para una identidad. Nonce fresco por llamada.
func Seal(identityID string, plaintext []byte) (ciphertext, nonce []byte, err error) {
	k, err := subkey(identityID)
	if err != nil {
		return nil, nil, err
	}
	aesgcm, err := newGCM(k)
	if err != nil {
		return nil, nil, err
	}

	nonce = make([]byte, nonceSizeGCM)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, nil, fmt.Errorf("sharebox: nonce random: %w", err)
	}

	ciphertext = aesgcm.Seal(nil, nonce, plaintext, nil)
	return ciphertext, nonce, nil
}

// Open descifra un ciphertext de una identidad.
// Retorna ErrDecryptionFailed si el auth tag no verifica. El mensaje de error
// nunca incluye ciphertext ni material de clave.
func Open(identityID string, ciphertext, nonce []byte) ([]byte, error) {
	k, err := subkey(identityID)
	if err != nil {
		return nil, err
	}
	aesgcm, err := newGCM(k)
	if err != nil {
		return nil, err
	}
	if len(nonce) != nonceSizeGCM {
		return nil, ErrDecryptionFailed
	}
	pt, err := aesgcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return pt, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("sharebox: aes.NewCipher: %w", err)
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("sharebox: cipher.NewGCM: %w", err)
	}
	return aesgcm, nil
}

// UnsafeResetForTests limpia el estado global para poder re-cargar la clave.
// Solo para tests.
func UnsafeResetForTests() {
	mu.Lock()
	defer mu.Unlock()
	masterKey = nil
	masterKeyOnce = sync.Once{}
	loadErr = nil
}
