package models

import (
	"time"
)

// Source identifies which backend a record came from.
type Source string

const (
	SourcePrimary   Source = "primary"
	SourceSecondary Source = "secondary"
	SourceLocal     Source = "local"
)

type DeliveryState string

const (
	DeliveryStatePending            DeliveryState = "pending"
	DeliveryStateConfirmedPrimary   DeliveryState = "confirmed_primary"
	DeliveryStateConfirmedSecondary DeliveryState = "confirmed_secondary"
	DeliveryStateFailed             DeliveryState = "failed"
)

// Confirmed reports whether the message has been durably accepted by a backend.
func (s DeliveryState) Confirmed() bool {
	return s == DeliveryStateConfirmedPrimary || s == DeliveryStateConfirmedSecondary
}

// Attachment describes a file carried by a message. DurationSec is only
// meaningful for audio payloads.
type Attachment struct {
	URL         string `json:"url"`
	MimeType    string `json:"mimeType"`
	Name        string `json:"name"`
	ByteSize    int64  `json:"byteSize"`
	DurationSec int    `json:"durationSec,omitempty"`
}

// Message is the canonical message shape, regardless of origin backend.
// ID is assigned by whichever backend first durably accepts the message;
// CorrelationID is the client-generated key used to collapse an optimistic
// placeholder with its authoritative counterpart.
type Message struct {
	ID            string        `json:"id,omitempty"`
	CorrelationID string        `json:"correlationId"`
	SenderID      string        `json:"senderId"`
	RecipientID   string        `json:"recipientId"`
	Content       string        `json:"content"`
	Attachment    *Attachment   `json:"attachment,omitempty"`
	CreatedAt     time.Time     `json:"createdAt"`
	QueuedAt      time.Time     `json:"queuedAt,omitempty"`
	IsRead        bool          `json:"isRead"`
	DeliveryState DeliveryState `json:"deliveryState"`
	Origin        Source        `json:"-"`
}

// OrderKey is the thread ordering timestamp: CreatedAt once assigned,
// QueuedAt for unconfirmed entries.
func (m Message) OrderKey() time.Time {
	if !m.CreatedAt.IsZero() {
		return m.CreatedAt
	}
	return m.QueuedAt
}
