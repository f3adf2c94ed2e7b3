package subscriber

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Status is a subscriber's confirmation state. Only confirmed subscribers
// receive issues.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
)

// Subscriber is one mailing list member.
type Subscriber struct {
	Email         string `json:"email"`
	Name          string `json:"name"`
	Status        Status `json:"status"`
	// Token is the live confirmation token while the subscriber is
	// pending; empty once confirmed.
	Token         string `json:"token,omitempty"`
	CreatedAtMs   int64  `json:"created_at_ms"`
	ConfirmedAtMs int64  `json:"confirmed_at_ms,omitempty"`
}

const maxFieldLen = 256

// forbidden characters for display names; they have no business in a name
// and defang header or template injection attempts.
const forbiddenNameChars = `/()"<>\{}`

// ValidateName checks a subscriber display name: non-blank, at most 256
// characters, none of the forbidden characters.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("subscriber: name is blank")
	}
	if utf8.RuneCountInString(name) > maxFieldLen {
		return fmt.Errorf("subscriber: name exceeds %d characters", maxFieldLen)
	}
	if strings.ContainsAny(name, forbiddenNameChars) {
		return fmt.Errorf("subscriber: name contains a forbidden character")
	}
	return nil
}

// ValidateEmail checks an email address: non-blank, at most 256 characters,
// exactly one '@' with non-empty local part and domain, no whitespace.
func ValidateEmail(email string) error {
	if strings.TrimSpace(email) == "" {
		return fmt.Errorf("subscriber: email is blank")
	}
	if utf8.RuneCountInString(email) > maxFieldLen {
		return fmt.Errorf("subscriber: email exceeds %d characters", maxFieldLen)
	}
	if strings.ContainsAny(email, " \t\r\n") {
		return fmt.Errorf("subscriber: email contains whitespace")
	}
	at := strings.Count(email, "@")
	if at != 1 {
		return fmt.Errorf("subscriber: email must contain exactly one '@'")
	}
	local, domain, _ := strings.Cut(email, "@")
	if local == "" || domain == "" {
		return fmt.Errorf("subscriber: email is missing local part or domain")
	}
	return nil
}
