package utils

import (
	"regexp"
	"time"
	"unicode"
)

var (
	utoridPattern = regexp.MustCompile(`^[a-z0-9]{7,8}$`)
	emailPattern  = regexp.MustCompile(`^[a-z0-9]+\.[a-z0-9]+@mail\.utoronto\.ca$`)
)

// ValidUtorid reports whether s is 7-8 lowercase letters or digits.
func ValidUtorid(s string) bool {
	return utoridPattern.MatchString(s)
}

// ValidEmail reports whether s is an institutional mailbox.
func ValidEmail(s string) bool {
	return emailPattern.MatchString(s)
}

// ValidName reports whether s is a non-empty display name of at most 50 runes.
func ValidName(s string) bool {
	n := len([]rune(s))
	return n >= 1 && n <= 50
}

// ValidPassword enforces 8-20 characters with upper, lower, digit and
// special characters.
func ValidPassword(s string) bool {
	if len(s) < 8 || len(s) > 20 {
		return false
	}
	var upper, lower, digit, special bool
	for _, r := range s {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			special = true
		}
	}
	return upper && lower && digit && special
}

// ParseBirthday parses a YYYY-MM-DD calendar date. Impossible dates such as
// 2023-02-30 are rejected.
func ParseBirthday(s string) (time.Time, bool) {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
