// Package merchant canonicalizes merchant text so that candidates from
// different sources can be grouped under one key.
package merchant

import (
	"math"
	"strconv"
	"strings"
	"unicode"
)

// PrefixLength is how many characters of the normalized name take part in a key.
const PrefixLength = 10

// webSuffixes are dropped from the end of a merchant name before normalization,
// so "NETFLIX.COM" and "Netflix" share a key.
var webSuffixes = []string{".com", ".net", ".org", ".io", ".tv", ".co"}

// corporateWords are trailing legal-entity words that carry no identity.
var corporateWords = map[string]bool{
	"inc":         true,
	"llc":         true,
	"ltd":         true,
	"corp":        true,
	"co":          true,
	"company":     true,
	"corporation": true,
	"limited":     true,
}

// Normalize lowercases name, drops web and corporate suffixes, strips every
// non-alphanumeric character and truncates to PrefixLength.
// It is pure and deterministic.
func Normalize(name string) string {
	words := strings.Fields(strings.ToLower(name))

	for len(words) > 0 {
		last := strings.Trim(words[len(words)-1], ".,")
		if corporateWords[last] && len(words) > 1 {
			words = words[:len(words)-1]
			continue
		}
		trimmed := false
		for _, suffix := range webSuffixes {
			if strings.HasSuffix(last, suffix) && len(last) > len(suffix) {
				words[len(words)-1] = strings.TrimSuffix(last, suffix)
				trimmed = true
				break
			}
		}
		if !trimmed {
			break
		}
	}

	var b strings.Builder
	for _, r := range strings.Join(words, "") {
		if r > unicode.MaxASCII {
			continue
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}

	key := b.String()
	if len(key) > PrefixLength {
		key = key[:PrefixLength]
	}
	return key
}

// JoinKey builds a canonical key from an already normalized name.
func JoinKey(normalized string, amount float64) string {
	return normalized + ":" + strconv.FormatInt(int64(math.Round(amount)), 10)
}

// CanonicalKey returns Normalize(name) + ":" + round(amount).
func CanonicalKey(name string, amount float64) string {
	return JoinKey(Normalize(name), amount)
}

// Clean standardizes merchant names for display by title casing, removing
// trailing transaction IDs and common corporate suffixes.
func Clean(name string) string {
	words := strings.Fields(strings.ToLower(name))
	for i, word := range words {
		runes := []rune(word)
		for j := 0; j < len(runes); j++ {
			if j == 0 || !unicode.IsLetter(runes[j-1]) {
				runes[j] = unicode.ToUpper(runes[j])
			}
		}
		words[i] = string(runes)
	}

	// Handle patterns like "MERCHANT 123456789"
	if len(words) > 1 {
		lastPart := words[len(words)-1]
		if len(lastPart) > 5 && isAllDigits(lastPart) {
			words = words[:len(words)-1]
		}
	}

	name = strings.Join(words, " ")

	suffixes := []string{
		" Llc",
		" Inc",
		" Corp",
		" Corporation",
		" Company",
		" Co",
		" Ltd",
		" Limited",
	}

	// Keep removing suffixes until none are found (handles multiple suffixes)
	changed := true
	for changed {
		changed = false
		for _, suffix := range suffixes {
			if strings.HasSuffix(name, suffix) {
				name = strings.TrimSuffix(name, suffix)
				changed = true
			}
		}
	}

	return strings.TrimSpace(name)
}

func isAllDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
