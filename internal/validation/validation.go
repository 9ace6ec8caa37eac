package validation

import (
	"errors"
	"strings"

	"github.com/google/uuid"
)

// ErrEmailEmpty is returned when a recipient email is empty or whitespace-only after trim.
var ErrEmailEmpty = errors.New("recipient email is required")

// ErrEmailInvalid is returned when a recipient email is not of the form local@domain.
var ErrEmailInvalid = errors.New("recipient email is invalid")

// ErrEmailTooLong is returned when a recipient email exceeds the maximum length.
var ErrEmailTooLong = errors.New("recipient email too long")

// ErrNameEmpty is returned when a recipient name is empty or whitespace-only after trim.
var ErrNameEmpty = errors.New("recipient name is required")

// ErrNameTooLong is returned when a recipient name exceeds the maximum length.
var ErrNameTooLong = errors.New("recipient name too long")

// ErrSubjectTooLong is returned when an email subject exceeds the maximum length.
var ErrSubjectTooLong = errors.New("email subject too long")

// ErrEnvelopeIDInvalid is returned when an envelope ID is not a UUID.
var ErrEnvelopeIDInvalid = errors.New("envelope id is not a valid uuid")

const (
	maxEmailLen   = 100
	maxNameLen    = 100
	maxSubjectLen = 100
)

// ValidateEmail trims the input and checks it looks like an address the
// signing API will accept (single @, non-empty local and domain parts, at
// most 100 runes). Returns the trimmed string or an error suitable for
// 400 responses.
func ValidateEmail(input string) (string, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return "", ErrEmailEmpty
	}
	if len([]rune(s)) > maxEmailLen {
		return "", ErrEmailTooLong
	}
	at := strings.Index(s, "@")
	if at <= 0 || at != strings.LastIndex(s, "@") || at == len(s)-1 {
		return "", ErrEmailInvalid
	}
	domain := s[at+1:]
	if !strings.Contains(domain, ".") || strings.ContainsAny(s, " \t") {
		return "", ErrEmailInvalid
	}
	return s, nil
}

// ValidateName trims the input and enforces a 100 rune maximum.
func ValidateName(input string) (string, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return "", ErrNameEmpty
	}
	if len([]rune(s)) > maxNameLen {
		return "", ErrNameTooLong
	}
	return s, nil
}

// ValidateSubject trims the input and enforces the 100 rune subject limit.
// An empty subject is allowed; the API falls back to a default.
func ValidateSubject(input string) (string, error) {
	s := strings.TrimSpace(input)
	if len([]rune(s)) > maxSubjectLen {
		return "", ErrSubjectTooLong
	}
	return s, nil
}

// ValidateEnvelopeID checks the input parses as a UUID and returns it
// lowercased, the form envelope IDs take on the wire.
func ValidateEnvelopeID(input string) (string, error) {
	id, err := uuid.Parse(strings.TrimSpace(input))
	if err != nil {
		return "", ErrEnvelopeIDInvalid
	}
	return id.String(), nil
}
