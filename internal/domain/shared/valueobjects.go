package shared

import (
	"regexp"
	"strings"
)

// ═══════════════════════════════════════════════════════════════════════════
// ID Value Objects
// ═══════════════════════════════════════════════════════════════════════════

// MaxIDLength bounds user, group and session identifiers.
const MaxIDLength = 128

// Identifiers become part of storage keys separated by ':', so they may
// not contain one.
var idRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.@+-]*$`)

// IsValidID checks an already trimmed identifier.
func IsValidID(id string) bool {
	return len(id) <= MaxIDLength && idRegex.MatchString(id)
}

// ValidateUserID checks a user identifier.
func ValidateUserID(id string) error {
	return validateID(id, ErrInvalidUserID, "user")
}

// ValidateGroupID checks a study group identifier.
func ValidateGroupID(id string) error {
	return validateID(id, ErrInvalidGroupID, "group")
}

// ValidateSessionID checks a scheduled session identifier.
func ValidateSessionID(id string) error {
	return validateID(id, ErrInvalidSessionID, "session")
}

func validateID(id string, missing *DomainError, kind string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return missing
	}
	if !IsValidID(id) {
		return &DomainError{
			Domain:  missing.Domain,
			Op:      missing.Op,
			Kind:    ErrInvalidID,
			Message: kind + " ID must be letters, digits or ._@+- and at most 128 characters",
		}
	}
	return nil
}
