// Package identifier handles the user's national tax ID (CPF): normalization,
// check-digit validation, masking, and salted hashing. The raw identifier must
// never cross a persistence or logging boundary; only MaskDisplay, MaskText,
// and Hash output is safe to log. Mask keeps the digits and is display-only.
package identifier

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// MinPepperLen is the minimum length of the hashing pepper.
const MinPepperLen = 32

// ErrNoPepper indicates the hashing pepper is missing or too short.
// This is a configuration error and fatal at startup.
var ErrNoPepper = errors.New("identifier pepper missing or shorter than 32 characters")

var (
	formattedRe   = regexp.MustCompile(`\d{3}\.\d{3}\.\d{3}-\d{2}`)
	unformattedRe = regexp.MustCompile(`\b\d{11}\b`)
)

// Normalize strips every non-digit character from raw.
func Normalize(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Validate reports whether normalized is a valid 11-digit identifier.
// Wrong length, all-equal-digit sequences, and check-digit mismatches are
// rejected. The check digits use the two-pass weighted mod-11 algorithm
// (weights 10..2 for the first digit, 11..2 for the second; a remainder of
// 10 or 11 maps to 0).
func Validate(normalized string) bool {
	if len(normalized) != 11 {
		return false
	}
	allEqual := true
	for i := 1; i < 11; i++ {
		if normalized[i] < '0' || normalized[i] > '9' {
			return false
		}
		if normalized[i] != normalized[0] {
			allEqual = false
		}
	}
	if normalized[0] < '0' || normalized[0] > '9' {
		return false
	}
	if allEqual {
		return false
	}

	if checkDigit(normalized, 9) != int(normalized[9]-'0') {
		return false
	}
	return checkDigit(normalized, 10) == int(normalized[10]-'0')
}

// checkDigit computes the verification digit over the first n digits, with
// weights n+1 down to 2.
func checkDigit(digits string, n int) int {
	sum := 0
	for i := 0; i < n; i++ {
		sum += int(digits[i]-'0') * (n + 1 - i)
	}
	rem := (sum * 10) % 11
	if rem == 10 || rem == 11 {
		rem = 0
	}
	return rem
}

// Mask formats an 11-digit identifier as XXX.XXX.XXX-YY. Inputs that are not
// exactly 11 digits are returned unchanged.
func Mask(normalized string) string {
	digits := Normalize(normalized)
	if len(digits) != 11 {
		return normalized
	}
	return fmt.Sprintf("%s.%s.%s-%s", digits[0:3], digits[3:6], digits[6:9], digits[9:11])
}

// MaskDisplay hides all but the last two digits of an 11-digit identifier
// (***.***.***-XX). This is the only identifier form that may be stored,
// logged, or audited. Inputs that are not exactly 11 digits are returned
// unchanged.
func MaskDisplay(normalized string) string {
	digits := Normalize(normalized)
	if len(digits) != 11 {
		return normalized
	}
	return maskTail(digits)
}

// maskTail masks a validated identifier keeping only the last two digits.
func maskTail(digits string) string {
	return "***.***.***-" + digits[9:11]
}

// MaskText scans free text for identifiers in both formatted
// (XXX.XXX.XXX-XX) and bare 11-digit forms and masks each occurrence that
// validates as a real identifier. Sequences that fail validation are left
// untouched so unrelated numbers are not corrupted.
func MaskText(text string) string {
	out := formattedRe.ReplaceAllStringFunc(text, func(m string) string {
		digits := Normalize(m)
		if Validate(digits) {
			return maskTail(digits)
		}
		return m
	})
	return unformattedRe.ReplaceAllStringFunc(out, func(m string) string {
		if Validate(m) {
			return maskTail(m)
		}
		return m
	})
}

// Hasher produces deterministic salted hashes of normalized identifiers.
// The pepper is a server-held secret; the same input with the same pepper
// always yields the same hex digest.
type Hasher struct {
	pepper string
}

// NewHasher creates a Hasher. Returns ErrNoPepper if the pepper is shorter
// than MinPepperLen.
func NewHasher(pepper string) (*Hasher, error) {
	if len(pepper) < MinPepperLen {
		return nil, ErrNoPepper
	}
	return &Hasher{pepper: pepper}, nil
}

// Hash returns the hex-encoded SHA-256 digest of pepper+normalized.
func (h *Hasher) Hash(normalized string) string {
	sum := sha256.Sum256([]byte(h.pepper + normalized))
	return hex.EncodeToString(sum[:])
}
