package service

import (
	"context"

	"chatsync/pkg/primary"
	"chatsync/pkg/secondary"

	"github.com/stretchr/testify/mock"
)

type mockPrimaryStore struct {
	mock.Mock
}

func (m *mockPrimaryStore) SendMessage(ctx context.Context, senderID, recipientID, text string, att *primary.Attachment, correlationID string) (*primary.Message, error) {
	args := m.Called(ctx, senderID, recipientID, text, att, correlationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*primary.Message), args.Error(1)
}

func (m *mockPrimaryStore) GetMessagesBetween(ctx context.Context, userA, userB string) ([]primary.Message, error) {
	args := m.Called(ctx, userA, userB)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]primary.Message), args.Error(1)
}

func (m *mockPrimaryStore) GetConversations(ctx context.Context, userID string) ([]primary.Conversation, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]primary.Conversation), args.Error(1)
}

func (m *mockPrimaryStore) GetUserByID(ctx context.Context, id string) (*primary.Profile, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*primary.Profile), args.Error(1)
}

func (m *mockPrimaryStore) MarkMessagesAsRead(ctx context.Context, userID, counterpartID string) error {
	args := m.Called(ctx, userID, counterpartID)
	return args.Error(0)
}

func (m *mockPrimaryStore) CountPendingFriendRequests(ctx context.Context, userID string) (int, error) {
	args := m.Called(ctx, userID)
	return args.Int(0), args.Error(1)
}

func (m *mockPrimaryStore) CountUnreadNotifications(ctx context.Context, userID string) (int, error) {
	args := m.Called(ctx, userID)
	return args.Int(0), args.Error(1)
}

func (m *mockPrimaryStore) MarkNotificationsRead(ctx context.Context, userID, category string) error {
	args := m.Called(ctx, userID, category)
	return args.Error(0)
}

func (m *mockPrimaryStore) Subscribe(ctx context.Context, userID string) (<-chan primary.Event, func(), error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, nil, args.Error(2)
	}
	return args.Get(0).(<-chan primary.Event), args.Get(1).(func()), args.Error(2)
}

type mockSecondaryStore struct {
	mock.Mock
}

func (m *mockSecondaryStore) InsertMessage(ctx context.Context, row secondary.MessageRow) (int64, error) {
	args := m.Called(ctx, row)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockSecondaryStore) GetMessagesBetween(ctx context.Context, userA, userB string) ([]secondary.MessageRow, error) {
	args := m.Called(ctx, userA, userB)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]secondary.MessageRow), args.Error(1)
}

func (m *mockSecondaryStore) GetThreadWithProfiles(ctx context.Context, userA, userB string) ([]secondary.ThreadRow, error) {
	args := m.Called(ctx, userA, userB)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]secondary.ThreadRow), args.Error(1)
}

func (m *mockSecondaryStore) ListMessagesForUser(ctx context.Context, userID string) ([]secondary.MessageRow, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]secondary.MessageRow), args.Error(1)
}

func (m *mockSecondaryStore) MarkMessagesRead(ctx context.Context, readerID, counterpartID string) (int64, error) {
	args := m.Called(ctx, readerID, counterpartID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockSecondaryStore) CountUnreadMessages(ctx context.Context, userID string) (int, error) {
	args := m.Called(ctx, userID)
	return args.Int(0), args.Error(1)
}

func (m *mockSecondaryStore) GetProfile(ctx context.Context, id string) (*secondary.ProfileRow, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*secondary.ProfileRow), args.Error(1)
}

type mockUploader struct {
	mock.Mock
}

func (m *mockUploader) Upload(ctx context.Context, name string, data []byte, contentType string) (string, error) {
	args := m.Called(ctx, name, data, contentType)
	return args.String(0), args.Error(1)
}
