package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	// SessionIDRegex validates session identifier format
	SessionIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

	// UserIDRegex validates user identifier format
	UserIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

	// ColorRegex validates #rgb/#rrggbb/#rrggbbaa hex colors
	ColorRegex = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6}|[0-9a-fA-F]{8})$`)
)

// ValidateSessionID validates a session identifier.
func ValidateSessionID(id string) error {
	if id == "" {
		return fmt.Errorf("session ID is required")
	}
	if len(id) > 100 {
		return fmt.Errorf("session ID is too long (max 100 characters)")
	}
	if !SessionIDRegex.MatchString(id) {
		return fmt.Errorf("invalid session ID format")
	}
	return nil
}

// ValidateUserID validates a user identifier.
func ValidateUserID(id string) error {
	if id == "" {
		return fmt.Errorf("user ID is required")
	}
	if len(id) > 100 {
		return fmt.Errorf("user ID is too long (max 100 characters)")
	}
	if !UserIDRegex.MatchString(id) {
		return fmt.Errorf("invalid user ID format")
	}
	return nil
}

// ValidateDisplayName validates a participant display name.
func ValidateDisplayName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("display name is required")
	}
	if utf8.RuneCountInString(name) > 80 {
		return fmt.Errorf("display name is too long (max 80 characters)")
	}
	return nil
}

// ValidateColor validates a stroke color. "transparent" is allowed for
// the annotation eraser.
func ValidateColor(color string) error {
	if color == "" {
		return fmt.Errorf("color is required")
	}
	if color == "transparent" {
		return nil
	}
	if !ColorRegex.MatchString(color) {
		return fmt.Errorf("invalid color format")
	}
	return nil
}

// ValidateStrokeSize validates a stroke width in pixels.
func ValidateStrokeSize(size float64) error {
	if size <= 0 {
		return fmt.Errorf("stroke size must be > 0")
	}
	if size > 200 {
		return fmt.Errorf("stroke size is too large (max 200)")
	}
	return nil
}
