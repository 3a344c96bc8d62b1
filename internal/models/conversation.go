package models

import "time"

// UserStub is the best-available profile snapshot for a counterpart.
// Placeholder is set when neither a real display name nor an avatar was
// available from any backend.
type UserStub struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	AvatarRef   string `json:"avatarRef"`
	Placeholder bool   `json:"-"`
}

// Conversation is one entry in the top-level conversation list, one per
// counterpart user.
type Conversation struct {
	CounterpartID      string    `json:"counterpartId"`
	DisplayName        string    `json:"displayName"`
	AvatarRef          string    `json:"avatarRef"`
	Placeholder        bool      `json:"-"`
	LastMessagePreview string    `json:"lastMessagePreview"`
	LastMessageAt      time.Time `json:"lastMessageAt"`
	UnreadCount        int       `json:"unreadCount"`
}
