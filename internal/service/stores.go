package service

import (
	"context"

	"chatsync/pkg/primary"
	"chatsync/pkg/secondary"
)

// PrimaryStore is the document store surface the sync services consume.
type PrimaryStore interface {
	SendMessage(ctx context.Context, senderID, recipientID, text string, att *primary.Attachment, correlationID string) (*primary.Message, error)
	GetMessagesBetween(ctx context.Context, userA, userB string) ([]primary.Message, error)
	GetConversations(ctx context.Context, userID string) ([]primary.Conversation, error)
	GetUserByID(ctx context.Context, id string) (*primary.Profile, error)
	MarkMessagesAsRead(ctx context.Context, userID, counterpartID string) error
	CountPendingFriendRequests(ctx context.Context, userID string) (int, error)
	CountUnreadNotifications(ctx context.Context, userID string) (int, error)
	MarkNotificationsRead(ctx context.Context, userID, category string) error
	Subscribe(ctx context.Context, userID string) (<-chan primary.Event, func(), error)
}

// SecondaryStore is the relational store surface the sync services consume.
type SecondaryStore interface {
	InsertMessage(ctx context.Context, row secondary.MessageRow) (int64, error)
	GetMessagesBetween(ctx context.Context, userA, userB string) ([]secondary.MessageRow, error)
	GetThreadWithProfiles(ctx context.Context, userA, userB string) ([]secondary.ThreadRow, error)
	ListMessagesForUser(ctx context.Context, userID string) ([]secondary.MessageRow, error)
	MarkMessagesRead(ctx context.Context, readerID, counterpartID string) (int64, error)
	CountUnreadMessages(ctx context.Context, userID string) (int, error)
	GetProfile(ctx context.Context, id string) (*secondary.ProfileRow, error)
}

// AttachmentUploader resolves a payload to a retrievable URL before a
// message carrying it is submitted.
type AttachmentUploader interface {
	Upload(ctx context.Context, name string, data []byte, contentType string) (string, error)
}
