// Package licensefile signs and verifies offline license files with Ed25519.
package licensefile

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"
)

// Keys holds the signing material. Private is nil on verify-only deployments.
type Keys struct {
	Private ed25519.PrivateKey
	Public  ed25519.PublicKey
}

// CanSign reports whether a private key is loaded.
func (k *Keys) CanSign() bool {
	return k != nil && len(k.Private) == ed25519.PrivateKeySize
}

// CanVerify reports whether a public key is loaded.
func (k *Keys) CanVerify() bool {
	return k != nil && len(k.Public) == ed25519.PublicKeySize
}

// KeyID is a short fingerprint of the public key.
func (k *Keys) KeyID() string {
	if !k.CanVerify() {
		return ""
	}
	sum := sha256.Sum256(k.Public)
	return hex.EncodeToString(sum[:8])
}

// LoadKeys parses the configured key material. Each value may be PEM (PKCS#8 private,
// PKIX public) or base64 of the raw key, seed or DER. The public key is derived from
// the private key when absent. Empty input yields empty Keys; signing with them fails
// with MISSING_ENV.
func LoadKeys(privateKey, publicKey string) (*Keys, error) {
	k := &Keys{}

	if strings.TrimSpace(privateKey) != "" {
		priv, err := ParsePrivateKey(privateKey)
		if err != nil {
			return nil, fmt.Errorf("LICENSE_SIGN_PRIVATE_KEY: %w", err)
		}
		k.Private = priv
		k.Public = priv.Public().(ed25519.PublicKey)
	}

	if strings.TrimSpace(publicKey) != "" {
		pub, err := ParsePublicKey(publicKey)
		if err != nil {
			return nil, fmt.Errorf("LICENSE_SIGN_PUBLIC_KEY: %w", err)
		}
		if k.Private != nil && !pub.Equal(k.Public) {
			return nil, errors.New("LICENSE_SIGN_PUBLIC_KEY does not match LICENSE_SIGN_PRIVATE_KEY")
		}
		k.Public = pub
	}

	return k, nil
}

// GenerateKeys creates a fresh key pair.
func GenerateKeys() (*Keys, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return &Keys{Private: priv, Public: pub}, nil
}

// ParsePrivateKey decodes an Ed25519 private key.
func ParsePrivateKey(s string) (ed25519.PrivateKey, error) {
	der, isPEM, err := decodeMaterial(s)
	if err != nil {
		return nil, err
	}
	if !isPEM {
		switch len(der) {
		case ed25519.SeedSize:
			return ed25519.NewKeyFromSeed(der), nil
		case ed25519.PrivateKeySize:
			return ed25519.PrivateKey(der), nil
		}
	}

	key, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	priv, ok := key.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key is %T, not Ed25519", key)
	}
	return priv, nil
}

// ParsePublicKey decodes an Ed25519 public key.
func ParsePublicKey(s string) (ed25519.PublicKey, error) {
	der, isPEM, err := decodeMaterial(s)
	if err != nil {
		return nil, err
	}
	if !isPEM && len(der) == ed25519.PublicKeySize {
		return ed25519.PublicKey(der), nil
	}

	key, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}
	pub, ok := key.(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("public key is %T, not Ed25519", key)
	}
	return pub, nil
}

// decodeMaterial returns the DER (or raw) bytes of a PEM block or base64 string.
// Escaped newlines from single-line environment values are accepted.
func decodeMaterial(s string) ([]byte, bool, error) {
	s = strings.TrimSpace(strings.ReplaceAll(s, `\n`, "\n"))
	if strings.HasPrefix(s, "-----BEGIN") {
		block, _ := pem.Decode([]byte(s))
		if block == nil {
			return nil, true, errors.New("invalid PEM block")
		}
		return block.Bytes, true, nil
	}

	compact := strings.Join(strings.Fields(s), "")
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		if b, err := enc.DecodeString(compact); err == nil {
			return b, false, nil
		}
	}
	return nil, false, errors.New("key is neither PEM nor base64")
}

// EncodePrivateKeyPEM encodes priv as a PKCS#8 PEM block.
func EncodePrivateKeyPEM(priv ed25519.PrivateKey) ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal private key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), nil
}

// EncodePublicKeyPEM encodes pub as a PKIX PEM block.
func EncodePublicKeyPEM(pub ed25519.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal public key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
}
