// Package normalize is the single seam where backend-specific record shapes
// are translated into the canonical model. Everything above it operates only
// on the canonical shape.
package normalize

import (
	"net/url"
	"strconv"
	"time"

	"chatsync/internal/constants"
	"chatsync/internal/models"
	"chatsync/pkg/primary"
	"chatsync/pkg/secondary"
)

// MessageFromPrimary maps a Primary document to the canonical message.
func MessageFromPrimary(m primary.Message) models.Message {
	msg := models.Message{
		ID:            m.ID,
		CorrelationID: m.CorrelationID,
		SenderID:      m.SenderID,
		RecipientID:   m.RecipientID,
		Content:       m.Text,
		CreatedAt:     time.UnixMilli(m.SentAt).UTC(),
		IsRead:        m.Read,
		DeliveryState: models.DeliveryStateConfirmedPrimary,
		Origin:        models.SourcePrimary,
	}
	if m.Attachment != nil {
		msg.Attachment = &models.Attachment{
			URL:         m.Attachment.URL,
			MimeType:    m.Attachment.MimeType,
			Name:        m.Attachment.Name,
			ByteSize:    m.Attachment.ByteSize,
			DurationSec: m.Attachment.DurationSec,
		}
	}
	return msg
}

// MessageFromSecondary maps a chat_messages row to the canonical message.
func MessageFromSecondary(r secondary.MessageRow) models.Message {
	msg := models.Message{
		ID:            strconv.FormatInt(r.ID, 10),
		SenderID:      r.SenderID,
		RecipientID:   r.RecipientID,
		Content:       r.Content,
		CreatedAt:     r.CreatedAt.UTC(),
		IsRead:        r.IsRead,
		DeliveryState: models.DeliveryStateConfirmedSecondary,
		Origin:        models.SourceSecondary,
	}
	if r.CorrelationID != nil {
		msg.CorrelationID = *r.CorrelationID
	}
	if r.FileURL != nil && *r.FileURL != "" {
		att := &models.Attachment{URL: *r.FileURL}
		if r.FileType != nil {
			att.MimeType = *r.FileType
		}
		if r.FileName != nil {
			att.Name = *r.FileName
		}
		if r.FileSize != nil {
			att.ByteSize = *r.FileSize
		}
		if r.DurationSec != nil {
			att.DurationSec = *r.DurationSec
		}
		msg.Attachment = att
	}
	return msg
}

// ConversationFromPrimary maps a Primary conversation summary document.
func ConversationFromPrimary(c primary.Conversation) models.Conversation {
	stub := Finalize(models.UserStub{
		ID:          c.PeerID,
		DisplayName: c.PeerName,
		AvatarRef:   c.PeerAvatarURL,
		Placeholder: c.PeerName == "" && c.PeerAvatarURL == "",
	})
	return models.Conversation{
		CounterpartID:      c.PeerID,
		DisplayName:        stub.DisplayName,
		AvatarRef:          stub.AvatarRef,
		Placeholder:        stub.Placeholder,
		LastMessagePreview: c.LastMessage,
		LastMessageAt:      time.UnixMilli(c.LastMessageAt).UTC(),
		UnreadCount:        c.UnreadCount,
	}
}

// ProfileFromPrimary maps a Primary profile document to a user stub.
func ProfileFromPrimary(p primary.Profile) models.UserStub {
	return models.UserStub{
		ID:          p.ID,
		DisplayName: p.Name,
		AvatarRef:   p.AvatarURL,
		Placeholder: p.Name == "" && p.AvatarURL == "",
	}
}

// ProfileFromSecondary maps a profiles row to a user stub.
func ProfileFromSecondary(p secondary.ProfileRow) models.UserStub {
	return models.UserStub{
		ID:          p.ID,
		DisplayName: p.FullName,
		AvatarRef:   p.AvatarURL,
		Placeholder: p.FullName == "" && p.AvatarURL == "",
	}
}

// StubFor returns the minimal placeholder stub for an id no backend knows.
func StubFor(id string) models.UserStub {
	return Finalize(models.UserStub{ID: id, Placeholder: true})
}

// PreferProfile picks between two profile snapshots for the same user: a
// non-placeholder wins over a placeholder regardless of arrival order; on a
// tie the first argument wins.
func PreferProfile(a, b models.UserStub) models.UserStub {
	if a.Placeholder && !b.Placeholder {
		return b
	}
	return a
}

// Finalize fills documented defaults into a stub: "User" for a missing
// display name and a deterministic generated-avatar reference derived from
// the display name for a missing avatar.
func Finalize(stub models.UserStub) models.UserStub {
	if stub.DisplayName == "" {
		stub.DisplayName = constants.DefaultDisplayName
	}
	if stub.AvatarRef == "" {
		stub.AvatarRef = GeneratedAvatarRef(stub.DisplayName)
	}
	return stub
}

// GeneratedAvatarRef derives a deterministic avatar URL from a display name.
func GeneratedAvatarRef(displayName string) string {
	return constants.DefaultAvatarBaseURL + url.QueryEscape(displayName)
}
