package models

import (
	"strings"
	"unicode"
)

// stripSpace removes every whitespace rune, not just ASCII spaces, so tab or
// newline separated signatures compare like their compact form.
func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

// NormalizeAddress lowercases an address, strips the 0x prefix, and removes
// whitespace. Both EVM and Stellar addresses pass through here before any
// comparison, so monitors can be written with mixed case and prefixes.
func NormalizeAddress(address string) string {
	s := stripSpace(address)
	s = strings.TrimPrefix(s, "0x")
	return strings.ToLower(s)
}

// SameAddress reports whether two addresses are equal under normalization.
func SameAddress(a, b string) bool {
	return NormalizeAddress(a) == NormalizeAddress(b)
}

// NormalizeSignature removes whitespace from a signature and lowercases it,
// so "Transfer(address, address, uint256)" and "transfer(address,address,uint256)"
// compare equal.
func NormalizeSignature(signature string) string {
	return strings.ToLower(stripSpace(signature))
}

// SameSignature reports whether two signatures are equal under normalization.
func SameSignature(a, b string) bool {
	return NormalizeSignature(a) == NormalizeSignature(b)
}
