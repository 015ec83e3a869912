package validation

import (
	"errors"
	"strings"
	"unicode"
)

// ErrEmailEmpty is returned when the email is empty after trim.
var ErrEmailEmpty = errors.New("email is required")

// ErrEmailInvalid is returned when the email has no local@domain shape.
var ErrEmailInvalid = errors.New("email is invalid")

// ErrPasswordTooShort is returned when the password is below the minimum length.
var ErrPasswordTooShort = errors.New("password must be at least 7 characters")

// ErrNameEmpty is returned when a required name field is empty after trim.
var ErrNameEmpty = errors.New("name is required")

// ErrQueryEmpty is returned when the city search query is empty after trim.
var ErrQueryEmpty = errors.New("search query is required")

// ErrQueryTooLong is returned when the query exceeds the maximum length.
var ErrQueryTooLong = errors.New("search query too long")

// ErrQueryInvalidChars is returned when the query contains disallowed characters.
var ErrQueryInvalidChars = errors.New("search query contains invalid characters")

const (
	minPasswordLen = 7
	maxQueryLen    = 100
)

// ValidateEmail trims the input and checks for a minimal local@domain shape.
// Real validation belongs to the backend; this only catches obvious typos
// before a request goes out.
func ValidateEmail(input string) (string, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return "", ErrEmailEmpty
	}
	at := strings.Index(s, "@")
	if at <= 0 || at == len(s)-1 || !strings.Contains(s[at+1:], ".") {
		return "", ErrEmailInvalid
	}
	return s, nil
}

// ValidatePassword enforces the backend's minimum password length so the
// form can reject short passwords without a round trip.
func ValidatePassword(input string) error {
	if len(input) < minPasswordLen {
		return ErrPasswordTooShort
	}
	return nil
}

// ValidateName trims a required name field (firstname, lastname, username).
func ValidateName(input string) (string, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return "", ErrNameEmpty
	}
	return s, nil
}

// ValidateCityQuery trims the autocomplete query, enforces the length bound,
// and restricts to letters (Unicode), digits, space, comma, hyphen,
// apostrophe and period, enough for "St. John's" and "Val-d'Or".
func ValidateCityQuery(input string) (string, error) {
	s := strings.TrimSpace(input)
	r := []rune(s)
	if len(r) == 0 {
		return "", ErrQueryEmpty
	}
	if len(r) > maxQueryLen {
		return "", ErrQueryTooLong
	}
	for _, c := range r {
		if !isAllowedQueryRune(c) {
			return "", ErrQueryInvalidChars
		}
	}
	return s, nil
}

func isAllowedQueryRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsNumber(r) {
		return true
	}
	switch r {
	case ' ', ',', '-', '\'', '.':
		return true
	}
	return false
}
