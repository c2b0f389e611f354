package crypto

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

// KeySize is the length of a credential encryption key.
const KeySize = chacha20poly1305.KeySize

var ErrShortCiphertext = errors.New("ciphertext too short")

// AEAD seals credentials at rest with XChaCha20-Poly1305. The random 24-byte nonce is
// prepended to the ciphertext.
type AEAD struct{ aead cipher.AEAD }

func New(key []byte) (*AEAD, error) {
	a, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("credential key: %w", err)
	}
	return &AEAD{aead: a}, nil
}

// FromBase64 builds an AEAD from the CRED_ENC_KEY encoding produced by GenerateKey.
func FromBase64(s string) (*AEAD, error) {
	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("credential key: %w", err)
	}
	return New(key)
}

// GenerateKey returns a fresh random key, base64 encoded.
func GenerateKey() (string, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(key), nil
}

// EncryptToString seals plaintext; additional binds the ciphertext to a context such as
// the account name.
func (a *AEAD) EncryptToString(plaintext, additional string) (string, error) {
	nonce := make([]byte, a.aead.NonceSize(), a.aead.NonceSize()+len(plaintext)+a.aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	buf := a.aead.Seal(nonce, nonce, []byte(plaintext), []byte(additional))
	return base64.RawStdEncoding.EncodeToString(buf), nil
}

func (a *AEAD) DecryptString(ciphertextB64, additional string) (string, error) {
	buf, err := base64.RawStdEncoding.DecodeString(ciphertextB64)
	if err != nil {
		return "", err
	}
	ns := a.aead.NonceSize()
	if len(buf) < ns+a.aead.Overhead() {
		return "", ErrShortCiphertext
	}
	pt, err := a.aead.Open(nil, buf[:ns], buf[ns:], []byte(additional))
	if err != nil {
		return "", err
	}
	return string(pt), nil
}
