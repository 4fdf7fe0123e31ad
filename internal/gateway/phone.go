package gateway

import (
	"errors"
	"regexp"
	"strings"
)

var (
	ErrInvalidPhoneNumber = errors.New("invalid phone number format")

	e164US    = regexp.MustCompile(`^\+1[0-9]{10}$`)
	nonDigits = regexp.MustCompile(`\D`)
)

// NormalizePhone converts a kiosk-entered number to +1XXXXXXXXXX.
// Input already starting with +1 is kept as is and only validated.
func NormalizePhone(raw string) (string, error) {
	formatted := raw
	if !strings.HasPrefix(raw, "+1") {
		formatted = "+1" + nonDigits.ReplaceAllString(raw, "")
	}
	if !e164US.MatchString(formatted) {
		return "", ErrInvalidPhoneNumber
	}
	return formatted, nil
}
