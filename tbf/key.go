// Credential key loading, grounded on apache-mynewt-newt's
// artifact/image/key.go ParsePrivateKey: that function PEM-decodes
// whichever of a handful of private-key block types openssl or
// ecdsautil might produce (RSA PRIVATE KEY, EC PRIVATE KEY, PKCS#8
// PRIVATE KEY/ENCRYPTED PRIVATE KEY) and reports an unrecognized
// format as an error. This file adapts the same decode chain plus a
// matching public-key chain, and adds the flat HMAC secret case the
// credential kind set needs that mynewt's image keys never did.
package tbf

import (
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"

	"github.com/tock/tockloader/errs"
)

// CredentialKey holds whichever key material one footer credential
// kind requires. At most one of Rsa/Ec/HmacSecret is non-nil for a
// signing key; at most one of RsaPub/EcPub/HmacSecret is non-nil for a
// verification key. HmacSecret serves both roles since HMAC has no
// public/private split.
type CredentialKey struct {
	Rsa *rsa.PrivateKey
	Ec  *ecdsa.PrivateKey

	RsaPub *rsa.PublicKey
	EcPub  *ecdsa.PublicKey

	HmacSecret []byte
}

// LoadPrivateKey reads and PEM-decodes a private key file for signing
// a new credential, following the same decode chain as
// ParsePrivateKey: RSA PRIVATE KEY (PKCS#1), EC PRIVATE KEY (SEC1),
// and PRIVATE KEY (PKCS#8, whose concrete type is inspected after
// parsing).
func LoadPrivateKey(path string) (*CredentialKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Wrap(errs.KindKeyNotFound, err, "reading private key file %s", path)
	}

	block, rest := pem.Decode(raw)
	if block != nil && block.Type == "EC PARAMETERS" {
		// openssl sometimes prepends an EC PARAMETERS block before the
		// key itself; skip it and decode the next block.
		block, _ = pem.Decode(rest)
	}
	if block == nil {
		return nil, errs.Newf(errs.KindKeyNotFound, "%s is not a PEM-encoded private key", path)
	}

	switch block.Type {
	case "RSA PRIVATE KEY":
		key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, errs.Wrap(errs.KindKeyNotFound, err, "parsing RSA private key")
		}
		return &CredentialKey{Rsa: key}, nil

	case "EC PRIVATE KEY":
		key, err := x509.ParseECPrivateKey(block.Bytes)
		if err != nil {
			return nil, errs.Wrap(errs.KindKeyNotFound, err, "parsing EC private key")
		}
		return &CredentialKey{Ec: key}, nil

	case "PRIVATE KEY":
		parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, errs.Wrap(errs.KindKeyNotFound, err, "parsing PKCS#8 private key")
		}
		switch k := parsed.(type) {
		case *rsa.PrivateKey:
			return &CredentialKey{Rsa: k}, nil
		case *ecdsa.PrivateKey:
			return &CredentialKey{Ec: k}, nil
		default:
			return nil, errs.Newf(errs.KindKeyNotFound, "%s: unsupported PKCS#8 key type", path)
		}

	default:
		return nil, errs.Newf(errs.KindKeyNotFound,
			"%s: unrecognized PEM block %q, expected an RSA/EC/PKCS#8 private key", path, block.Type)
	}
}

// LoadPublicKey reads and PEM-decodes a public key file for verifying
// an existing credential.
func LoadPublicKey(path string) (*CredentialKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Wrap(errs.KindKeyNotFound, err, "reading public key file %s", path)
	}

	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, errs.Newf(errs.KindKeyNotFound, "%s is not a PEM-encoded public key", path)
	}

	switch block.Type {
	case "PUBLIC KEY", "RSA PUBLIC KEY":
		pub, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, errs.Wrap(errs.KindKeyNotFound, err, "parsing public key")
		}
		switch k := pub.(type) {
		case *rsa.PublicKey:
			return &CredentialKey{RsaPub: k}, nil
		case *ecdsa.PublicKey:
			return &CredentialKey{EcPub: k}, nil
		default:
			return nil, errs.Newf(errs.KindKeyNotFound, "%s: unsupported public key type", path)
		}

	default:
		return nil, errs.Newf(errs.KindKeyNotFound,
			"%s: unrecognized PEM block %q, expected a public key", path, block.Type)
	}
}

// LoadHmacSecret reads a raw HMAC secret file verbatim: unlike
// RSA/ECDSA keys, a TicKV-style shared secret carries no format of its
// own.
func LoadHmacSecret(path string) (*CredentialKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Wrap(errs.KindKeyNotFound, err, "reading HMAC secret file %s", path)
	}
	return &CredentialKey{HmacSecret: raw}, nil
}
