package guardrails

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// Fingerprinter derives short keyed digests of redacted values so
// operators can correlate repeated PII across log lines without ever
// storing the raw value. With no key configured the digest is unkeyed
// and only suitable for local correlation.
type Fingerprinter struct {
	key []byte
}

// NewFingerprinter builds a fingerprinter from a secret key. Keys
// longer than 64 bytes are truncated to the blake2b key limit.
func NewFingerprinter(key string) *Fingerprinter {
	k := []byte(key)
	if len(k) > 64 {
		k = k[:64]
	}
	return &Fingerprinter{key: k}
}

// Fingerprint returns a 16-character hex digest of value.
func (f *Fingerprinter) Fingerprint(value string) string {
	if len(f.key) == 0 {
		sum := blake2b.Sum256([]byte(value))
		return hex.EncodeToString(sum[:8])
	}
	h, err := blake2b.New256(f.key)
	if err != nil {
		sum := blake2b.Sum256([]byte(value))
		return hex.EncodeToString(sum[:8])
	}
	h.Write([]byte(value))
	return hex.EncodeToString(h.Sum(nil)[:8])
}

// MaskValue hides all but the last four characters of a detected
// value, preserving separators so the shape stays recognizable.
func MaskValue(value string) string {
	runes := []rune(value)
	keep := 4
	if len(runes) <= keep {
		return value
	}
	masked := make([]rune, len(runes))
	for i, r := range runes {
		if i >= len(runes)-keep {
			masked[i] = r
			continue
		}
		switch r {
		case ' ', '-', '(', ')', '+', '.', '@':
			masked[i] = r
		default:
			masked[i] = '*'
		}
	}
	return string(masked)
}
