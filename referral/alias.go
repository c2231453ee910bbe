package referral

import (
	"errors"
	"strings"
)

// ErrAliasInvalid is returned by NormalizeAlias for an alias that fails the
// active ruleset, at any height.
var ErrAliasInvalid = errors.New("referral: invalid alias")

const minAliasLen = 2

// NormalizeAlias applies the height-gated alias normalisation rules.
// An empty input alias is valid and normalises to "" (no alias claimed).
//
// At and after saferAliasHeight: case-folded ASCII, restricted to
// [A-Za-z0-9_.-], a leading dot forbidden, length in [2, MaxAliasLen].
//
// Before saferAliasHeight, only the case-fold and length-in-range checks
// apply; the character-class and leading-dot restrictions are not enforced.
// The height gate must be honoured bit-for-bit: a node re-validating
// historical blocks uses the height the referral first appeared at, not the
// current height.
func NormalizeAlias(alias string, height, saferAliasHeight uint32) (string, error) {
	if alias == "" {
		return "", nil
	}
	lower := strings.ToLower(alias)
	if len(lower) < minAliasLen || len(lower) > MaxAliasLen {
		return "", ErrAliasInvalid
	}
	if height < saferAliasHeight {
		return lower, nil
	}
	for _, r := range lower {
		if !isAliasRune(r) {
			return "", ErrAliasInvalid
		}
	}
	if lower[0] == '.' {
		return "", ErrAliasInvalid
	}
	return lower, nil
}

func isAliasRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z':
		return true
	case r >= '0' && r <= '9':
		return true
	case r == '_' || r == '.' || r == '-':
		return true
	default:
		return false
	}
}
