package validate

import (
	"math/big"
	"strconv"
	"strings"
)

// SIRETLength is the number of digits in an establishment identifier.
const SIRETLength = 14

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// SIRET reports whether s has the shape of an establishment identifier:
// exactly 14 digits once separators are removed, not all identical.
func SIRET(s string) bool {
	d := digitsOnly(s)
	if len(d) != SIRETLength {
		return false
	}
	return strings.Count(d, d[:1]) != len(d)
}

// SIRETChecksum reports whether the identifier passes the Luhn check used by
// the national registry. Only reported in dataset statistics.
func SIRETChecksum(s string) bool {
	d := digitsOnly(s)
	if len(d) != SIRETLength {
		return false
	}
	sum := 0
	for i := 0; i < len(d); i++ {
		n := int(d[len(d)-1-i] - '0')
		if i%2 == 1 {
			n *= 2
			if n > 9 {
				n -= 9
			}
		}
		sum += n
	}
	return sum%10 == 0
}

// PadSIRET restores an identifier that went through numeric coercion:
// float renderings ("1.2345678900001e+13", "78912345600012.0") are converted
// back to digits and short numeric values are left-padded with zeros.
// Non-numeric input is returned trimmed and unchanged.
func PadSIRET(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if strings.ContainsAny(s, ".eE") {
		if f, ok := new(big.Float).SetPrec(128).SetString(s); ok && f.IsInt() {
			i, _ := f.Int(nil)
			s = i.String()
		}
	}
	if _, err := strconv.ParseUint(s, 10, 64); err != nil {
		return s
	}
	if len(s) < SIRETLength {
		s = strings.Repeat("0", SIRETLength-len(s)) + s
	}
	return s
}
