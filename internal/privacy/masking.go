// Package privacy masks user identifiers before they reach logs.
package privacy

import "strings"

// MaskUserID keeps the last 4 characters of an identifier visible.
// "user-1234567890" -> "***********7890".
func MaskUserID(id string) string {
	if id == "" {
		return ""
	}
	if len(id) <= 4 {
		return strings.Repeat("*", len(id))
	}
	return strings.Repeat("*", len(id)-4) + id[len(id)-4:]
}

// MaskPath masks the identifier segments of control API paths so access
// logs keep their shape without leaking who talks to whom.
// "/api/conversations/user-1234567890/messages" ->
// "/api/conversations/***********7890/messages".
func MaskPath(path string) string {
	segments := strings.Split(path, "/")
	for i := 1; i < len(segments); i++ {
		if segments[i-1] == "conversations" && segments[i] != "" {
			segments[i] = MaskUserID(segments[i])
		}
	}
	return strings.Join(segments, "/")
}
