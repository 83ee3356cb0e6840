package phone

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/notifyhub/whatsapp-dispatcher/internal/domain"
)

// DefaultCountryCode is Brazil.
const DefaultCountryCode = "55"

// Normalizer turns free-form spreadsheet numbers into international format.
type Normalizer struct {
	countryCode string
}

// NewNormalizer returns a Normalizer for countryCode; an empty code means
// DefaultCountryCode. A leading "+" is ignored.
func NewNormalizer(countryCode string) *Normalizer {
	cc := strings.TrimPrefix(strings.TrimSpace(countryCode), "+")
	if cc == "" {
		cc = DefaultCountryCode
	}
	return &Normalizer{countryCode: cc}
}

// Normalize keeps only the digits of raw, takes the first two as the area
// code and returns +<country><area><rest>. A number with no digits at all
// yields ErrInvalidPhone.
func (n *Normalizer) Normalize(raw string) (string, error) {
	var b strings.Builder
	for _, r := range raw {
		if unicode.IsDigit(r) && r < unicode.MaxASCII {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if digits == "" {
		return "", fmt.Errorf("%q: %w", raw, domain.ErrInvalidPhone)
	}

	area, rest := digits, ""
	if len(digits) > 2 {
		area, rest = digits[:2], digits[2:]
	}
	return "+" + n.countryCode + area + rest, nil
}

// Normalize uses the default country code.
func Normalize(raw string) (string, error) {
	return NewNormalizer(DefaultCountryCode).Normalize(raw)
}
