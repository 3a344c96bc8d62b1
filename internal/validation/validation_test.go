package validation

import (
	"strings"
	"testing"

	"chatsync/internal/errors"

	"github.com/stretchr/testify/assert"
)

func TestValidateUserID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		{"valid", "user-123", false},
		{"valid uuid-ish", "f7c3bc1d-8088-4c5e-9a1e-1b7a9265f234", false},
		{"empty", "", true},
		{"too long", strings.Repeat("a", 200), true},
		{"embedded slash", "users/evil", true},
		{"whitespace", "user 1", true},
		{"control character", "user\x001", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateUserID(tt.id)
			if tt.wantErr {
				assert.True(t, errors.IsValidation(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateContent(t *testing.T) {
	assert.NoError(t, ValidateContent(""))
	assert.NoError(t, ValidateContent("hello"))
	assert.True(t, errors.IsValidation(ValidateContent(strings.Repeat("x", 70000))))
	assert.True(t, errors.IsValidation(ValidateContent(string([]byte{0xff, 0xfe}))))
}
