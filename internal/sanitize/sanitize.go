// Package sanitize normalizes text fields read from the OS. Some arrive padded with
// control characters and some arrive base64 or hex encoded; Decode undoes both.
// It never fails, it only changes the text it returns.
package sanitize

import (
	"encoding/base64"
	"encoding/hex"
	"strings"
	"unicode"
	"unicode/utf8"
)

// minDecoded is the shortest decoded text accepted as a substitution.
const minDecoded = 3

// Decode strips non-printable characters and replaces encoded text with its decoding,
// repeating until the text no longer changes. Every step shrinks the text or leaves
// it unchanged, so the loop ends and Decode(Decode(s)) == Decode(s).
func Decode(raw string) string {
	s := raw
	for {
		next := step(s)
		if next == s {
			return s
		}
		s = next
	}
}

func step(s string) string {
	clean := strip(s)
	if b, err := base64.StdEncoding.DecodeString(clean); err == nil && acceptable(b) {
		return string(b)
	}
	if b, err := hex.DecodeString(clean); err == nil && acceptable(b) {
		return string(b)
	}
	return clean
}

func strip(s string) string {
	return strings.Map(func(r rune) rune {
		if r == utf8.RuneError || !unicode.IsPrint(r) {
			return -1
		}
		return r
	}, s)
}

// acceptable reports whether b is printable UTF-8 text long enough to substitute.
func acceptable(b []byte) bool {
	if utf8.RuneCount(b) < minDecoded || !utf8.Valid(b) {
		return false
	}
	for _, r := range string(b) {
		if !unicode.IsPrint(r) {
			return false
		}
	}
	return true
}
