// Package msisdn canonicalizes Botswana mobile numbers.
//
// The canonical form is the 8 local digits without the 267 country code.
// Different entry points are deliberately more or less forgiving, so each has
// its own function.
package msisdn

import (
	"strings"
)

// CountryCode is the Botswana dialing prefix.
const CountryCode = "267"

const localLength = 8

// Digits strips every non-digit rune.
func Digits(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Local keeps the last 8 digits. Used to correlate provider metadata, where
// the number may carry any prefix. Returns "" when there are no digits.
func Local(raw string) string {
	d := Digits(raw)
	if len(d) > localLength {
		d = d[len(d)-localLength:]
	}
	return d
}

// Strict accepts exactly 8 local digits, optionally prefixed by 267.
func Strict(raw string) (string, bool) {
	d := Digits(raw)
	if strings.HasPrefix(d, CountryCode) && len(d) == len(CountryCode)+localLength {
		d = d[len(CountryCode):]
	}
	if len(d) != localLength {
		return "", false
	}
	return d, true
}

// Loose accepts 7 to 12 digits after dropping a 267 prefix from numbers of
// at least 10 digits. Used for subscriber lists, which mix formats.
func Loose(raw string) (string, bool) {
	d := Digits(raw)
	if strings.HasPrefix(d, CountryCode) && len(d) >= 10 {
		d = d[len(CountryCode):]
	}
	if len(d) < 7 || len(d) > 12 {
		return "", false
	}
	return d, true
}

// Selected normalizes a number picked in a flow: a 267-prefixed number is cut
// to its last 8 digits. Input without digits is returned unchanged.
func Selected(raw string) string {
	d := Digits(raw)
	if d == "" {
		return raw
	}
	if strings.HasPrefix(d, CountryCode) && len(d) > localLength {
		d = d[len(d)-localLength:]
	}
	return d
}

// StoredForms lists the spellings a subscriber row may use for n.
func StoredForms(n string) []string {
	return []string{n, "+" + CountryCode + n, CountryCode + n}
}
