// Package token handles raw-unit token amounts. Amounts travel as decimal
// strings end to end; only conversion and comparison happen here.
package token

import (
	"fmt"
	"math/big"
	"strings"
)

// Parse accepts a decimal or 0x-prefixed hex amount in raw units.
func Parse(s string) (*big.Int, error) {
	cleaned := strings.TrimSpace(s)
	if cleaned == "" {
		return nil, fmt.Errorf("empty amount")
	}

	base := 10
	if strings.HasPrefix(cleaned, "0x") || strings.HasPrefix(cleaned, "0X") {
		cleaned = cleaned[2:]
		base = 16
	}

	v, ok := new(big.Int).SetString(cleaned, base)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("negative amount %q", s)
	}
	return v, nil
}

// ToRawUnits converts a human-readable amount like "1000" or "1.5" into raw
// units by shifting the decimal point by the token's decimals.
func ToRawUnits(human string, decimals int) (string, error) {
	cleaned := strings.TrimSpace(human)
	if cleaned == "" {
		return "", fmt.Errorf("empty amount")
	}

	intPart := cleaned
	fracPart := ""
	if dot := strings.Index(cleaned, "."); dot >= 0 {
		intPart = cleaned[:dot]
		fracPart = strings.TrimRight(cleaned[dot+1:], "0")
		if len(fracPart) > decimals {
			return "", fmt.Errorf("amount %q has %d decimal places but token only has %d", human, len(fracPart), decimals)
		}
	}

	raw := intPart + fracPart + strings.Repeat("0", decimals-len(fracPart))
	raw = strings.TrimLeft(raw, "0")
	if raw == "" {
		raw = "0"
	}

	if _, ok := new(big.Int).SetString(raw, 10); !ok {
		return "", fmt.Errorf("invalid amount %q", human)
	}
	return raw, nil
}

// Covers returns true if amount a is at least amount b. Both are raw-unit
// strings, decimal or hex.
func Covers(a, b string) (bool, error) {
	av, err := Parse(a)
	if err != nil {
		return false, err
	}
	bv, err := Parse(b)
	if err != nil {
		return false, err
	}
	return av.Cmp(bv) >= 0, nil
}
