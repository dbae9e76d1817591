package middleware

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/campus-social/realtime-gateway/pkg/apperror"
)

const maxIDLength = 128

// ValidateConversationID validates a conversation ID.
func ValidateConversationID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return apperror.Validation("invalid conversation ID format")
	}
	return nil
}

// ValidateEntityID validates an opaque identifier from the path, such as a
// user or community id.
func ValidateEntityID(kind, id string) error {
	switch {
	case id == "":
		return apperror.Validation(kind + " ID cannot be empty")
	case len(id) > maxIDLength:
		return apperror.Validation(kind + " ID exceeds maximum length")
	case !utf8.ValidString(id), strings.ContainsAny(id, " \t\r\n/"):
		return apperror.Validation("invalid " + kind + " ID format")
	}
	return nil
}

// ParseLimit reads a positive page size, returning def when raw is empty.
func ParseLimit(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, apperror.Validation("limit must be a positive integer")
	}
	return n, nil
}

// ParseOffset reads a non-negative offset.
func ParseOffset(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apperror.Validation("offset must be a non-negative integer")
	}
	return n, nil
}
