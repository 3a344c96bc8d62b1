// Package primary is the client for the low-latency document store: the
// backend consulted first for conversations, messages and live events.
package primary

// Message is the document-shaped wire form of a chat message. Timestamps
// are unix milliseconds, as stored by the backend.
type Message struct {
	ID            string      `json:"id"`
	SenderID      string      `json:"senderId"`
	RecipientID   string      `json:"recipientId"`
	Text          string      `json:"text"`
	CorrelationID string      `json:"correlationId,omitempty"`
	SentAt        int64       `json:"sentAt"`
	Read          bool        `json:"read"`
	Attachment    *Attachment `json:"attachment,omitempty"`
}

type Attachment struct {
	URL         string `json:"url"`
	MimeType    string `json:"mimeType"`
	Name        string `json:"name"`
	ByteSize    int64  `json:"byteSize"`
	DurationSec int    `json:"durationSec,omitempty"`
}

// Conversation is the backend's per-peer conversation summary document.
type Conversation struct {
	PeerID        string `json:"peerId"`
	PeerName      string `json:"peerName,omitempty"`
	PeerAvatarURL string `json:"peerAvatarUrl,omitempty"`
	LastMessage   string `json:"lastMessage"`
	LastMessageAt int64  `json:"lastMessageAt"`
	UnreadCount   int    `json:"unreadCount"`
}

// Profile is a user document. The backend may return a sparsely populated
// placeholder when the user has never completed their profile.
type Profile struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// Event types delivered on the live feed.
const (
	EventMessageCreated      = "message.created"
	EventMessageUpdated      = "message.updated"
	EventNotificationCreated = "notification.created"
	EventNotificationUpdated = "notification.updated"
)

// Event is one frame from the live subscription feed.
type Event struct {
	Type         string             `json:"type"`
	Message      *Message           `json:"message,omitempty"`
	Notification *NotificationEvent `json:"notification,omitempty"`
}

// NotificationEvent describes a friend-request or generic notification
// change. WasRead carries the pre-update read state so consumers can ignore
// no-op updates.
type NotificationEvent struct {
	Category string `json:"category"`
	Read     bool   `json:"read"`
	WasRead  bool   `json:"wasRead"`
}

// Notification categories used by the live feed.
const (
	NotificationFriendRequest = "friend_request"
	NotificationGeneric       = "generic"
)

type sendMessageRequest struct {
	SenderID      string      `json:"senderId"`
	RecipientID   string      `json:"recipientId"`
	Text          string      `json:"text"`
	CorrelationID string      `json:"correlationId,omitempty"`
	Attachment    *Attachment `json:"attachment,omitempty"`
}

type markReadRequest struct {
	UserID        string `json:"userId"`
	CounterpartID string `json:"counterpartId"`
}

type markNotificationsReadRequest struct {
	UserID   string `json:"userId"`
	Category string `json:"category"`
}

type countResponse struct {
	Count int `json:"count"`
}

type apiError struct {
	Error string `json:"error,omitempty"`
}
