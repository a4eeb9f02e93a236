package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var folder = cases.Fold()

// Normalize canonicalizes message text for comparison: NFC composition,
// Unicode case folding and collapsing every whitespace run to a single
// space with no leading or trailing space. Normalize(Normalize(s)) == Normalize(s).
func Normalize(text string) string {
	if text == "" {
		return ""
	}
	folded := norm.NFC.String(folder.String(norm.NFC.String(text)))
	return strings.Join(strings.Fields(folded), " ")
}

// Fingerprint is the dedup key derived from normalized text.
type Fingerprint string

// FingerprintOf returns the hex SHA-256 digest of already normalized text.
func FingerprintOf(normalized string) Fingerprint {
	sum := sha256.Sum256([]byte(normalized))
	return Fingerprint(hex.EncodeToString(sum[:]))
}

// FingerprintText normalizes text and fingerprints the result.
func FingerprintText(text string) Fingerprint {
	return FingerprintOf(Normalize(text))
}

func (f Fingerprint) String() string {
	return string(f)
}

// Short returns an abbreviated form for logs.
func (f Fingerprint) Short() string {
	if len(f) <= 12 {
		return string(f)
	}
	return string(f[:12])
}
