// Package transportcrypto owns the RSA keypair that protects credentials in
// transit. Clients encrypt with the exported public key using RSA-OAEP
// (SHA-256); only this process can decrypt.
package transportcrypto

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"

	"pam-jwt-issuer/go-backend/internal/securestore"
)

// ErrUndecryptable is the only error Decrypt returns. Base64, length and
// padding failures are deliberately indistinguishable.
var ErrUndecryptable = errors.New("transportcrypto: ciphertext cannot be decrypted")

var (
	ErrNoPEMBlock    = errors.New("transportcrypto: no PEM block found")
	ErrNotRSAKey     = errors.New("transportcrypto: key is not RSA")
	ErrPublicKeyType = errors.New("transportcrypto: PEM block is not a public key")
)

type KeyPair struct {
	private *rsa.PrivateKey
}

// LoadKeyPair reads an RSA private key (PKCS#8, falling back to PKCS#1). A
// file sealed by securestore is opened with passphrase first.
func LoadKeyPair(path, passphrase string) (*KeyPair, error) {
	raw, err := securestore.ReadKeyFile(path, passphrase)
	if err != nil {
		return nil, fmt.Errorf("read rsa key %s: %w", path, err)
	}
	return ParseKeyPair(raw)
}

func ParseKeyPair(pemBytes []byte) (*KeyPair, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, ErrNoPEMBlock
	}
	if anyKey, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		k, ok := anyKey.(*rsa.PrivateKey)
		if !ok {
			return nil, ErrNotRSAKey
		}
		return NewKeyPair(k)
	}
	k, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse rsa private key: %w", err)
	}
	return NewKeyPair(k)
}

func NewKeyPair(k *rsa.PrivateKey) (*KeyPair, error) {
	if k == nil {
		return nil, ErrNotRSAKey
	}
	if err := k.Validate(); err != nil {
		return nil, fmt.Errorf("validate rsa key: %w", err)
	}
	k.Precompute()
	return &KeyPair{private: k}, nil
}

// PublicKeyPEM exports the SubjectPublicKeyInfo of the pair. The private half
// never leaves the process.
func (p *KeyPair) PublicKeyPEM() ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(&p.private.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("marshal public key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
}

// Decrypt decodes standard base64 and unwraps RSA-OAEP(SHA-256, empty label).
func (p *KeyPair) Decrypt(ciphertextB64 string) ([]byte, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(ciphertextB64)
	if err != nil {
		return nil, ErrUndecryptable
	}
	plaintext, err := rsa.DecryptOAEP(sha256.New(), nil, p.private, ciphertext, nil)
	if err != nil {
		return nil, ErrUndecryptable
	}
	return plaintext, nil
}

// EncryptFor is the client half of the transport: it encrypts plaintext to a
// PEM public key as exported by PublicKeyPEM and returns standard base64.
func EncryptFor(publicPEM, plaintext []byte) (string, error) {
	block, _ := pem.Decode(publicPEM)
	if block == nil {
		return "", ErrNoPEMBlock
	}
	if block.Type != "PUBLIC KEY" {
		return "", ErrPublicKeyType
	}
	anyKey, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return "", fmt.Errorf("parse public key: %w", err)
	}
	pub, ok := anyKey.(*rsa.PublicKey)
	if !ok {
		return "", ErrNotRSAKey
	}
	ciphertext, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, plaintext, nil)
	if err != nil {
		return "", fmt.Errorf("encrypt: %w", err)
	}
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}
