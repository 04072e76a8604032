package session

import (
	"fmt"
	"regexp"
	"strings"
)

var nameRegexp = regexp.MustCompile(`^[a-z0-9_-]{1,64}$`)

// ValidateName checks that name conforms to session naming rules.
func ValidateName(name string) error {
	if !nameRegexp.MatchString(name) {
		return fmt.Errorf("invalid session name %q: must match ^[a-z0-9_-]{1,64}$", name)
	}
	return nil
}

// ValidateUserID checks that id can sign in. Mentions are stored as a
// comma-joined list, so ids cannot contain commas.
func ValidateUserID(id string) error {
	switch {
	case id == "":
		return fmt.Errorf("invalid user id: empty")
	case len(id) > 128:
		return fmt.Errorf("invalid user id %q: longer than 128 bytes", id[:16]+"...")
	case strings.TrimSpace(id) != id:
		return fmt.Errorf("invalid user id %q: surrounding whitespace", id)
	case strings.ContainsAny(id, ",\n"):
		return fmt.Errorf("invalid user id %q: must not contain commas or newlines", id)
	}
	return nil
}
