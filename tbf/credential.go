// Credential generation and verification, grounded on
// apache-mynewt-newt's artifact/image/create.go: that file computes a
// SHA-256 digest over an image header+body and attaches RSA-PSS or
// ECDSA signature TLVs built from the same digest. This file adapts
// that "hash the integrity blob, then sign or MAC it" pipeline to
// TBF's footer Credentials TLVs and their larger kind set (plain
// digests, HMACs, and a cleartext ID with no cryptography at all).
package tbf

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/hmac"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/binary"
	"math/big"

	"github.com/tock/tockloader/errs"
)

// GenerateCredential computes the Data bytes for one credential of the
// given kind, over integrityBlob, using key where the kind requires
// cryptographic material. id is consulted only for CredentialCleartextId.
func GenerateCredential(kind uint16, key *CredentialKey, integrityBlob []byte, id uint32) (Credential, error) {
	switch kind {
	case CredentialSha256, CredentialSha384, CredentialSha512:
		data, err := digest(kind, integrityBlob)
		if err != nil {
			return Credential{}, err
		}
		return Credential{Kind: kind, Data: data}, nil

	case CredentialHmacSha256, CredentialHmacSha384, CredentialHmacSha512:
		if key == nil || key.HmacSecret == nil {
			return Credential{}, errs.New(errs.KindKeyNotFound, "HMAC credential requires a secret key")
		}
		data := hmacDigest(kind, key.HmacSecret, integrityBlob)
		return Credential{Kind: kind, Data: data}, nil

	case CredentialEcdsaNistP256:
		if key == nil || key.Ec == nil {
			return Credential{}, errs.New(errs.KindKeyNotFound, "ECDSA credential requires a P-256 private key")
		}
		data, err := signEcdsa(key.Ec, integrityBlob)
		if err != nil {
			return Credential{}, err
		}
		return Credential{Kind: kind, Data: data}, nil

	case CredentialRsa2048, CredentialRsa4096:
		if key == nil || key.Rsa == nil {
			return Credential{}, errs.New(errs.KindKeyNotFound, "RSA credential requires a private key")
		}
		data, err := signRsa(key.Rsa, integrityBlob)
		if err != nil {
			return Credential{}, err
		}
		wantLen := credentialDataLen(kind)
		if len(data) != wantLen {
			return Credential{}, errs.Newf(errs.KindUnsupportedCredential,
				"RSA key size produces a %d-byte signature, kind %d needs %d", len(data), kind, wantLen).
				WithTlv(int(kind))
		}
		return Credential{Kind: kind, Data: data}, nil

	case CredentialCleartextId:
		data := make([]byte, 4)
		binary.LittleEndian.PutUint32(data, id)
		return Credential{Kind: kind, Data: data}, nil

	case CredentialReserved:
		return Credential{}, errs.New(errs.KindUnsupportedCredential, "Reserved is padding, not a generatable credential")

	default:
		return Credential{}, errs.Newf(errs.KindUnsupportedCredential, "unknown credential kind %d", kind).WithTlv(int(kind))
	}
}

// VerifyStatus is the outcome of checking one credential against the
// app's current integrity blob.
type VerifyStatus int

const (
	VerifyPass VerifyStatus = iota
	VerifyFail
	VerifySkipped     // no key supplied to check this credential kind
	VerifyUnsupported // kind not recognized at all
)

// VerifyResult reports the outcome for a single footer credential.
type VerifyResult struct {
	Kind   uint16
	Status VerifyStatus
}

// VerifyCredentials checks every credential in f against
// integrityBlob, using publicKeys (keyed by credential kind) wherever
// verification requires cryptographic material. Plain digests (SHA-*)
// and CleartextId need no key. Credentials whose kind has no entry in
// publicKeys are reported VerifySkipped rather than failed, since
// their absence isn't itself a sign of tampering.
func VerifyCredentials(f *Footer, integrityBlob []byte, publicKeys map[uint16]*CredentialKey) []VerifyResult {
	results := make([]VerifyResult, 0, len(f.Credentials))
	for _, c := range f.Credentials {
		results = append(results, verifyOne(c, integrityBlob, publicKeys[c.Kind]))
	}
	return results
}

func verifyOne(c Credential, blob []byte, key *CredentialKey) VerifyResult {
	switch c.Kind {
	case CredentialSha256, CredentialSha384, CredentialSha512:
		want, err := digest(c.Kind, blob)
		if err != nil {
			return VerifyResult{c.Kind, VerifyUnsupported}
		}
		if hmac.Equal(want, c.Data) {
			return VerifyResult{c.Kind, VerifyPass}
		}
		return VerifyResult{c.Kind, VerifyFail}

	case CredentialHmacSha256, CredentialHmacSha384, CredentialHmacSha512:
		if key == nil || key.HmacSecret == nil {
			return VerifyResult{c.Kind, VerifySkipped}
		}
		want := hmacDigest(c.Kind, key.HmacSecret, blob)
		if hmac.Equal(want, c.Data) {
			return VerifyResult{c.Kind, VerifyPass}
		}
		return VerifyResult{c.Kind, VerifyFail}

	case CredentialEcdsaNistP256:
		if key == nil || key.EcPub == nil {
			return VerifyResult{c.Kind, VerifySkipped}
		}
		if verifyEcdsa(key.EcPub, blob, c.Data) {
			return VerifyResult{c.Kind, VerifyPass}
		}
		return VerifyResult{c.Kind, VerifyFail}

	case CredentialRsa2048, CredentialRsa4096:
		if key == nil || key.RsaPub == nil {
			return VerifyResult{c.Kind, VerifySkipped}
		}
		if verifyRsa(key.RsaPub, blob, c.Data) {
			return VerifyResult{c.Kind, VerifyPass}
		}
		return VerifyResult{c.Kind, VerifyFail}

	case CredentialCleartextId:
		// No cryptographic meaning; presence is informational only.
		return VerifyResult{c.Kind, VerifyPass}

	case CredentialReserved:
		return VerifyResult{c.Kind, VerifyPass}

	default:
		return VerifyResult{c.Kind, VerifyUnsupported}
	}
}

func hmacDigest(kind uint16, secret, blob []byte) []byte {
	switch kind {
	case CredentialHmacSha256:
		mac := hmac.New(sha256.New, secret)
		mac.Write(blob)
		return mac.Sum(nil)
	case CredentialHmacSha384:
		mac := hmac.New(sha512.New384, secret)
		mac.Write(blob)
		return mac.Sum(nil)
	default: // CredentialHmacSha512
		mac := hmac.New(sha512.New, secret)
		mac.Write(blob)
		return mac.Sum(nil)
	}
}

func signEcdsa(key *ecdsa.PrivateKey, blob []byte) ([]byte, error) {
	hash := sha256.Sum256(blob)
	r, s, err := ecdsa.Sign(rand.Reader, key, hash[:])
	if err != nil {
		return nil, errs.Wrap(errs.KindCredentialVerifyFailed, err, "ECDSA signing failed")
	}

	out := make([]byte, 64)
	r.FillBytes(out[0:32])
	s.FillBytes(out[32:64])
	return out, nil
}

func verifyEcdsa(pub *ecdsa.PublicKey, blob, sig []byte) bool {
	if len(sig) != 64 {
		return false
	}
	hash := sha256.Sum256(blob)
	r := new(big.Int).SetBytes(sig[0:32])
	s := new(big.Int).SetBytes(sig[32:64])
	return ecdsa.Verify(pub, hash[:], r, s)
}

func signRsa(key *rsa.PrivateKey, blob []byte) ([]byte, error) {
	hash := sha256.Sum256(blob)
	opts := rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash}
	sig, err := rsa.SignPSS(rand.Reader, key, crypto.SHA256, hash[:], &opts)
	if err != nil {
		return nil, errs.Wrap(errs.KindCredentialVerifyFailed, err, "RSA-PSS signing failed")
	}
	return sig, nil
}

func verifyRsa(pub *rsa.PublicKey, blob, sig []byte) bool {
	hash := sha256.Sum256(blob)
	opts := rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash}
	return rsa.VerifyPSS(pub, crypto.SHA256, hash[:], sig, &opts) == nil
}
