package security

import (
	"strings"
	"unicode"
)

// Password strength labels, weakest to strongest.
const (
	StrengthWeak   = "weak"
	StrengthFair   = "fair"
	StrengthGood   = "good"
	StrengthStrong = "strong"
)

// commonPatterns are substrings that make a password trivially guessable.
var commonPatterns = []string{
	"password",
	"qwerty",
	"123456",
	"abcdef",
	"letmein",
	"welcome",
	"admin",
	"iloveyou",
}

// PasswordStrength is the result of scoring a candidate password.
type PasswordStrength struct {
	// Score is the raw score, 0 to 7.
	Score int

	// Label is the coarse strength bucket for the score.
	Label string

	// Feedback lists concrete improvements, empty for strong passwords.
	Feedback []string
}

// ValidatePasswordStrength scores a candidate password on length and
// character-class diversity and penalizes common patterns and repeated
// characters. It is a pure function with no state; identical input always
// yields identical output.
func ValidatePasswordStrength(password string) PasswordStrength {
	var score int
	var feedback []string

	switch {
	case len(password) >= 16:
		score += 3
	case len(password) >= 12:
		score += 2
	case len(password) >= 8:
		score++
	default:
		feedback = append(feedback, "Use at least 8 characters")
	}

	var hasLower, hasUpper, hasDigit, hasSymbol bool
	for _, r := range password {
		switch {
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsDigit(r):
			hasDigit = true
		default:
			hasSymbol = true
		}
	}
	if hasLower {
		score++
	}
	if hasUpper {
		score++
	} else {
		feedback = append(feedback, "Add uppercase letters")
	}
	if hasDigit {
		score++
	} else {
		feedback = append(feedback, "Add numbers")
	}
	if hasSymbol {
		score++
	} else {
		feedback = append(feedback, "Add symbols")
	}

	lower := strings.ToLower(password)
	for _, pattern := range commonPatterns {
		if strings.Contains(lower, pattern) {
			score -= 2
			feedback = append(feedback, "Avoid common words and sequences")
			break
		}
	}
	if hasRepeatedRun(password, 3) {
		score--
		feedback = append(feedback, "Avoid repeated characters")
	}

	if score < 0 {
		score = 0
	}
	if score > 7 {
		score = 7
	}

	var label string
	switch {
	case score >= 6:
		label = StrengthStrong
	case score >= 4:
		label = StrengthGood
	case score >= 2:
		label = StrengthFair
	default:
		label = StrengthWeak
	}

	return PasswordStrength{
		Score:    score,
		Label:    label,
		Feedback: feedback,
	}
}

// hasRepeatedRun reports whether the password contains the same rune
// repeated runLen or more times in a row.
func hasRepeatedRun(password string, runLen int) bool {
	var prev rune
	count := 0
	for _, r := range password {
		if r == prev {
			count++
			if count >= runLen {
				return true
			}
		} else {
			prev = r
			count = 1
		}
	}
	return false
}
