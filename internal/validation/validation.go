// Package validation checks identifiers and message payloads at the
// control API boundary, before they reach either backend.
package validation

import (
	"fmt"
	"unicode"
	"unicode/utf8"

	"chatsync/internal/constants"
	"chatsync/internal/errors"
)

// ValidateUserID checks a user identifier received from a client.
func ValidateUserID(id string) error {
	if id == "" {
		return errors.NewValidationError("user_id", "user id cannot be empty")
	}
	if len(id) > constants.MaxUserIDLength {
		return errors.NewValidationError("user_id",
			fmt.Sprintf("user id too long (max %d characters)", constants.MaxUserIDLength))
	}
	for _, r := range id {
		if unicode.IsControl(r) || unicode.IsSpace(r) || r == '/' {
			return errors.NewValidationError("user_id", "user id contains invalid characters")
		}
	}
	return nil
}

// ValidateContent checks outgoing message text. Empty content is allowed
// here; the send pipeline rejects empty messages only when no attachment
// accompanies them.
func ValidateContent(content string) error {
	if len(content) > constants.MaxContentLength {
		return errors.NewValidationError("content",
			fmt.Sprintf("message too long (max %d bytes)", constants.MaxContentLength))
	}
	if !utf8.ValidString(content) {
		return errors.NewValidationError("content", "message is not valid UTF-8")
	}
	return nil
}
