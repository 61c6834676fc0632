package promo

import "fmt"

// IsPhoneCandidate reports whether the raw input looks like a phone number
// submission: exactly 11 digits, nothing else. Candidates that fail the
// stricter FormatPhone check are still routed to the submission path so the
// user gets a precise error.
func IsPhoneCandidate(raw string) bool {
	if len(raw) != 11 {
		return false
	}
	for _, r := range raw {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// FormatPhone normalizes an 11-digit number with leading country code 7 into
// the grouped form the redeem endpoint expects, e.g. "+7 999 123 4567".
// Any other input yields ok=false; the caller decides the user-facing message.
func FormatPhone(raw string) (string, bool) {
	if !IsPhoneCandidate(raw) || raw[0] != '7' {
		return "", false
	}
	return fmt.Sprintf("+7 %s %s %s", raw[1:4], raw[4:7], raw[7:]), true
}
