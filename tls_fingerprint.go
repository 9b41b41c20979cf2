package asyncmqtt

import (
	"crypto/sha1" //nolint:gosec // certificate fingerprint, not a signature
	"crypto/sha256"
	"crypto/subtle"
	"crypto/x509"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// ErrNoPeerCertificate is returned when a fingerprint check runs without a
// server certificate to check.
var ErrNoPeerCertificate = errors.New("no server certificate presented")

// PeerVerifier checks the server certificate chain after the transport
// connected and before CONNECT is sent.
type PeerVerifier interface {
	VerifyPeer(chain []*x509.Certificate) error
}

// PeerVerifierFunc is a function type that implements PeerVerifier.
type PeerVerifierFunc func(chain []*x509.Certificate) error

// VerifyPeer calls the underlying function.
func (f PeerVerifierFunc) VerifyPeer(chain []*x509.Certificate) error {
	return f(chain)
}

// Fingerprint is a SHA-1 (20 bytes) or SHA-256 (32 bytes) digest of a DER
// encoded certificate.
type Fingerprint []byte

// ParseFingerprint decodes hex with optional ':' or ' ' separators.
func ParseFingerprint(s string) (Fingerprint, error) {
	clean := strings.NewReplacer(":", "", " ", "").Replace(s)

	raw, err := hex.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("invalid fingerprint %q: %w", s, err)
	}

	if len(raw) != sha1.Size && len(raw) != sha256.Size {
		return nil, fmt.Errorf("invalid fingerprint %q: %d bytes", s, len(raw))
	}

	return Fingerprint(raw), nil
}

// String returns the fingerprint as lowercase hex.
func (f Fingerprint) String() string {
	return hex.EncodeToString(f)
}

// FingerprintVerifier accepts a server whose leaf certificate matches one of
// the allowed fingerprints.
type FingerprintVerifier struct {
	allowed []Fingerprint
}

// NewFingerprintVerifier creates a verifier for the given allowlist.
func NewFingerprintVerifier(allowed ...Fingerprint) *FingerprintVerifier {
	return &FingerprintVerifier{allowed: allowed}
}

// Add appends a fingerprint to the allowlist.
func (v *FingerprintVerifier) Add(fp Fingerprint) {
	v.allowed = append(v.allowed, fp)
}

// Len returns the allowlist size.
func (v *FingerprintVerifier) Len() int {
	return len(v.allowed)
}

// VerifyPeer checks the leaf certificate.
func (v *FingerprintVerifier) VerifyPeer(chain []*x509.Certificate) error {
	if len(chain) == 0 {
		return ErrNoPeerCertificate
	}

	der := chain[0].Raw
	sum1 := sha1.Sum(der) //nolint:gosec
	sum256 := sha256.Sum256(der)

	for _, fp := range v.allowed {
		var sum []byte
		switch len(fp) {
		case sha1.Size:
			sum = sum1[:]
		case sha256.Size:
			sum = sum256[:]
		default:
			continue
		}

		if subtle.ConstantTimeCompare(fp, sum) == 1 {
			return nil
		}
	}

	return ErrFingerprintMismatch
}
