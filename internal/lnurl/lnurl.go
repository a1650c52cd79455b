// Package lnurl implements the bech32 encoding convention used to hand a
// payment bootstrap URL to a wallet (LUD-01).
package lnurl

import (
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/bech32"
)

const hrp = "lnurl"

// Encode converts url to an uppercase LNURL1... bech32 string.
func Encode(url string) (string, error) {
	converted, err := bech32.ConvertBits([]byte(url), 8, 5, true)
	if err != nil {
		return "", fmt.Errorf("convert bits: %w", err)
	}
	encoded, err := bech32.Encode(hrp, converted)
	if err != nil {
		return "", fmt.Errorf("bech32 encode: %w", err)
	}
	return strings.ToUpper(encoded), nil
}

// Decode reverses Encode and returns the embedded URL.
func Decode(encoded string) (string, error) {
	_, data, err := bech32.DecodeNoLimit(strings.ToLower(encoded))
	if err != nil {
		return "", fmt.Errorf("bech32 decode: %w", err)
	}
	converted, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return "", fmt.Errorf("convert bits: %w", err)
	}
	return string(converted), nil
}

// IsValid reports whether value looks like an encoded LNURL. Stored switch
// LNURLs that fail this check are lazily re-encoded when served.
func IsValid(value string) bool {
	if value == "" {
		return false
	}
	return strings.HasPrefix(strings.ToUpper(value), "LNURL1")
}
