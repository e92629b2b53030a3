// Package password enforces the password policy for local accounts.
package password

import (
	"context"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/TimurCravtov/CraftHub/pkg/slogx"
	"github.com/nbutton23/zxcvbn-go"
	"github.com/nbutton23/zxcvbn-go/match"
)

const (
	MinLength = 8
	MaxLength = 64

	// minEntropy is the Shannon entropy floor in bits per character.
	minEntropy = 3.0

	// minScore is the lowest acceptable zxcvbn score (0 very weak, 4 very strong).
	minScore = 3
)

const (
	MsgRequired   = "Password is required"
	MsgTooShort   = "Password must be at least 8 characters long"
	MsgTooLong    = "Password is too long"
	MsgNoUpper    = "Password must contain an uppercase letter"
	MsgNoLower    = "Password must contain a lowercase letter"
	MsgNoDigit    = "Password must contain a digit"
	MsgNoSpecial  = "Password must contain a special character"
	MsgCommon     = "Password is too common"
	MsgLikeEmail  = "Password is too similar to your email"
	MsgLikeName   = "Password is too similar to your name"
	MsgLowEntropy = "Password is too predictable (low entropy)"
	MsgBreached   = "Password has been found in a data breach (choose another)"

	msgWeakPrefix     = "Password is too weak: "
	defaultSuggestion = "Add another word or two. Uncommon words are better."
)

var commonPasswords = map[string]struct{}{
	"password": {}, "123456": {}, "123456789": {}, "qwerty": {}, "abc123": {},
	"111111": {}, "123123": {}, "letmein": {}, "welcome": {}, "admin": {},
}

// Result lists every rule a password broke. Valid is true only when Errors
// is empty.
type Result struct {
	Valid  bool
	Errors []string
}

type Validator struct {
	breach BreachChecker
}

// NewValidator returns a validator. A nil checker disables the breach lookup.
func NewValidator(breach BreachChecker) *Validator {
	return &Validator{breach: breach}
}

// Validate checks password against every rule and collects all violations.
// A failing breach lookup is logged and skipped.
func (v *Validator) Validate(ctx context.Context, password, email, name string) Result {
	pw := strings.TrimSpace(password)
	if pw == "" {
		return Result{Valid: false, Errors: []string{MsgRequired}}
	}
	lower := strings.ToLower(pw)

	var errs []string
	add := func(msg string) { errs = append(errs, msg) }

	n := utf8.RuneCountInString(pw)
	if n < MinLength {
		add(MsgTooShort)
	}
	if n > MaxLength {
		add(MsgTooLong)
	}

	var hasUpper, hasLower, hasDigit, hasSpecial bool
	for _, r := range pw {
		switch {
		case r >= 'A' && r <= 'Z':
			hasUpper = true
		case r >= 'a' && r <= 'z':
			hasLower = true
		case r >= '0' && r <= '9':
			hasDigit = true
		default:
			hasSpecial = true
		}
	}
	if !hasUpper {
		add(MsgNoUpper)
	}
	if !hasLower {
		add(MsgNoLower)
	}
	if !hasDigit {
		add(MsgNoDigit)
	}
	if !hasSpecial {
		add(MsgNoSpecial)
	}

	if _, ok := commonPasswords[lower]; ok {
		add(MsgCommon)
	}

	if local, _, ok := strings.Cut(email, "@"); ok {
		local = strings.ToLower(strings.TrimSpace(local))
		if local != "" && strings.Contains(lower, local) {
			add(MsgLikeEmail)
		}
	}
	for _, token := range strings.Fields(strings.ToLower(name)) {
		if strings.Contains(lower, token) {
			add(MsgLikeName)
			break
		}
	}

	if ShannonEntropy(pw) < minEntropy {
		add(MsgLowEntropy)
	}

	// zxcvbn matching grows super-linearly with length, and an over-long
	// password is already rejected.
	if n > MaxLength {
		return Result{Valid: false, Errors: errs}
	}

	if v.breach != nil {
		breached, err := v.breach.IsBreached(ctx, pw)
		switch {
		case err != nil:
			slogx.FromContext(ctx).Warn("password breach lookup failed, skipping check", "err", err)
		case breached:
			add(MsgBreached)
		}
	}

	strength := zxcvbn.PasswordStrength(pw, userInputs(email, name))
	if strength.Score < minScore {
		warning, suggestions := feedback(strength.MatchSequence)
		if warning != "" {
			add(msgWeakPrefix + warning)
		}
		errs = append(errs, suggestions...)
	}

	return Result{Valid: len(errs) == 0, Errors: errs}
}

// ShannonEntropy returns the average information content of s in bits per
// character.
func ShannonEntropy(s string) float64 {
	freq := make(map[rune]int)
	total := 0
	for _, r := range s {
		freq[r]++
		total++
	}
	if total == 0 {
		return 0
	}

	var h float64
	for _, c := range freq {
		p := float64(c) / float64(total)
		h -= p * math.Log2(p)
	}
	return h
}

func userInputs(email, name string) []string {
	inputs := strings.Fields(strings.ToLower(name))
	if email = strings.ToLower(strings.TrimSpace(email)); email != "" {
		inputs = append(inputs, email)
		if local, _, ok := strings.Cut(email, "@"); ok && local != "" {
			inputs = append(inputs, local)
		}
	}
	return inputs
}

// feedback derives a warning and suggestions from the longest match, the
// part of the password that contributes most to guessability.
func feedback(seq []match.Match) (string, []string) {
	var longest *match.Match
	for i := range seq {
		m := &seq[i]
		if m.Pattern == "bruteforce" {
			continue
		}
		if longest == nil || len(m.Token) > len(longest.Token) {
			longest = m
		}
	}
	if longest == nil {
		return "", []string{defaultSuggestion}
	}

	switch longest.Pattern {
	case "dictionary":
		warning := "A word by itself is easy to guess"
		if longest.DictionaryName == "Passwords" {
			warning = "This is similar to a commonly used password"
		}
		return warning, []string{defaultSuggestion, "Capitalization doesn't help very much"}
	case "spatial":
		return "Short keyboard patterns are easy to guess", []string{"Use a longer keyboard pattern with more turns"}
	case "repeat":
		return `Repeats like "aaa" are easy to guess`, []string{"Avoid repeated words and characters"}
	case "sequence":
		return "Sequences like abc or 6543 are easy to guess", []string{"Avoid sequences"}
	case "date":
		return "Dates are often easy to guess", []string{"Avoid dates and years that are associated with you"}
	default:
		return "", []string{defaultSuggestion}
	}
}
