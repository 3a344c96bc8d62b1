package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"chatsync/internal/bus"
	"chatsync/internal/metrics"
	"chatsync/internal/models"
	"chatsync/internal/service"
	"chatsync/pkg/primary"
	"chatsync/pkg/secondary"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubPrimary is a canned in-memory Primary backend.
type stubPrimary struct {
	conversations []primary.Conversation
	messages      []primary.Message
	sendErr       error
}

func (s *stubPrimary) SendMessage(ctx context.Context, senderID, recipientID, text string, att *primary.Attachment, correlationID string) (*primary.Message, error) {
	if s.sendErr != nil {
		return nil, s.sendErr
	}
	return &primary.Message{
		ID:            "p-sent",
		SenderID:      senderID,
		RecipientID:   recipientID,
		Text:          text,
		CorrelationID: correlationID,
		SentAt:        time.Now().UnixMilli(),
		Attachment:    att,
	}, nil
}

func (s *stubPrimary) GetMessagesBetween(ctx context.Context, userA, userB string) ([]primary.Message, error) {
	return s.messages, nil
}

func (s *stubPrimary) GetConversations(ctx context.Context, userID string) ([]primary.Conversation, error) {
	return s.conversations, nil
}

func (s *stubPrimary) GetUserByID(ctx context.Context, id string) (*primary.Profile, error) {
	return nil, nil
}

func (s *stubPrimary) MarkMessagesAsRead(ctx context.Context, userID, counterpartID string) error {
	return nil
}

func (s *stubPrimary) CountPendingFriendRequests(ctx context.Context, userID string) (int, error) {
	return 0, nil
}

func (s *stubPrimary) CountUnreadNotifications(ctx context.Context, userID string) (int, error) {
	return 0, nil
}

func (s *stubPrimary) MarkNotificationsRead(ctx context.Context, userID, category string) error {
	return nil
}

func (s *stubPrimary) Subscribe(ctx context.Context, userID string) (<-chan primary.Event, func(), error) {
	return nil, nil, fmt.Errorf("no feed")
}

// stubSecondary is a canned in-memory Secondary backend.
type stubSecondary struct {
	rows []secondary.MessageRow
}

func (s *stubSecondary) InsertMessage(ctx context.Context, row secondary.MessageRow) (int64, error) {
	return int64(len(s.rows) + 1), nil
}

func (s *stubSecondary) GetMessagesBetween(ctx context.Context, userA, userB string) ([]secondary.MessageRow, error) {
	return s.rows, nil
}

func (s *stubSecondary) GetThreadWithProfiles(ctx context.Context, userA, userB string) ([]secondary.ThreadRow, error) {
	result := make([]secondary.ThreadRow, 0, len(s.rows))
	for _, row := range s.rows {
		result = append(result, secondary.ThreadRow{MessageRow: row})
	}
	return result, nil
}

func (s *stubSecondary) ListMessagesForUser(ctx context.Context, userID string) ([]secondary.MessageRow, error) {
	return s.rows, nil
}

func (s *stubSecondary) MarkMessagesRead(ctx context.Context, readerID, counterpartID string) (int64, error) {
	return 0, nil
}

func (s *stubSecondary) CountUnreadMessages(ctx context.Context, userID string) (int, error) {
	return 0, nil
}

func (s *stubSecondary) GetProfile(ctx context.Context, id string) (*secondary.ProfileRow, error) {
	return nil, nil
}

func newTestServer(p *stubPrimary, sec *stubSecondary) *Server {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	b := bus.New()

	conversations := service.NewConversationService(p, sec, b, logger)
	threads := service.NewThreadService(p, sec, b, logger)
	notifications := service.NewNotificationService(p, sec, b, logger)
	pipeline := service.NewSendPipeline(p, sec, threads, conversations, nil, logger)
	threadScopes := service.NewThreadControllerSet(p, threads, "alice", time.Hour, logger)

	return NewServer("alice", conversations, threads, notifications, pipeline, threadScopes, logger)
}

func TestHandleHealth(t *testing.T) {
	srv := newTestServer(&stubPrimary{}, &stubSecondary{})

	rr := httptest.NewRecorder()
	srv.router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "OK", rr.Body.String())
}

func TestHandleListConversations(t *testing.T) {
	srv := newTestServer(&stubPrimary{
		conversations: []primary.Conversation{
			{PeerID: "bob", PeerName: "Bob", LastMessage: "hey", LastMessageAt: time.Now().UnixMilli(), UnreadCount: 1},
		},
	}, &stubSecondary{})

	rr := httptest.NewRecorder()
	srv.router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/conversations", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var convs []models.Conversation
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &convs))
	require.Len(t, convs, 1)
	assert.Equal(t, "bob", convs[0].CounterpartID)
}

func TestHandleGetThread(t *testing.T) {
	srv := newTestServer(&stubPrimary{
		messages: []primary.Message{
			{ID: "p1", SenderID: "bob", RecipientID: "alice", Text: "hi", SentAt: time.Now().UnixMilli()},
		},
	}, &stubSecondary{})
	defer srv.threadScopes.CloseAll()

	rr := httptest.NewRecorder()
	srv.router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/conversations/bob/messages", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var thread []models.Message
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &thread))
	require.Len(t, thread, 1)
	assert.Equal(t, "hi", thread[0].Content)

	// Opening the thread acquired its live-update scope.
	assert.Equal(t, 1, srv.threadScopes.OpenCount())

	rr = httptest.NewRecorder()
	srv.router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/conversations/bob/close", nil))
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, 0, srv.threadScopes.OpenCount())
}

func TestHandleSend(t *testing.T) {
	srv := newTestServer(&stubPrimary{}, &stubSecondary{})

	body, _ := json.Marshal(sendRequest{Content: "Hello"})
	rr := httptest.NewRecorder()
	srv.router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/conversations/bob/messages", bytes.NewReader(body)))
	require.Equal(t, http.StatusCreated, rr.Code)

	var msg models.Message
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &msg))
	assert.Equal(t, "p-sent", msg.ID)
	assert.Equal(t, models.DeliveryStateConfirmedPrimary, msg.DeliveryState)
}

func TestHandleSend_EmptyBodyRejected(t *testing.T) {
	srv := newTestServer(&stubPrimary{}, &stubSecondary{})

	body, _ := json.Marshal(sendRequest{})
	rr := httptest.NewRecorder()
	srv.router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/conversations/bob/messages", bytes.NewReader(body)))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandleMarkRead(t *testing.T) {
	srv := newTestServer(&stubPrimary{}, &stubSecondary{})

	rr := httptest.NewRecorder()
	srv.router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/conversations/bob/read", nil))
	assert.Equal(t, http.StatusNoContent, rr.Code)
}

func TestHandleRetry_UnknownCorrelation(t *testing.T) {
	srv := newTestServer(&stubPrimary{}, &stubSecondary{})

	body, _ := json.Marshal(retryRequest{CorrelationID: "missing"})
	rr := httptest.NewRecorder()
	srv.router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/conversations/bob/retry", bytes.NewReader(body)))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHandleCounters(t *testing.T) {
	srv := newTestServer(&stubPrimary{}, &stubSecondary{})

	rr := httptest.NewRecorder()
	srv.router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/notifications", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var counters countersResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &counters))
	assert.Equal(t, 0, counters.Badge)
}

func TestHandleMarkAllRead_UnknownCategory(t *testing.T) {
	srv := newTestServer(&stubPrimary{}, &stubSecondary{})

	rr := httptest.NewRecorder()
	srv.router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/notifications/bogus/read", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandleMetrics(t *testing.T) {
	srv := newTestServer(&stubPrimary{}, &stubSecondary{})

	// Drive one request through the middleware so the registry has data.
	rr := httptest.NewRecorder()
	srv.router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	rr = httptest.NewRecorder()
	srv.router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var snap metrics.Snapshot
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &snap))
	assert.NotEmpty(t, snap.Counters)
}

func TestHandleGetThread_RejectsBadCounterpartID(t *testing.T) {
	srv := newTestServer(&stubPrimary{}, &stubSecondary{})

	longID := strings.Repeat("a", 300)
	rr := httptest.NewRecorder()
	srv.router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/conversations/"+longID+"/messages", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandleMarkRead_DropsUnreadCounter(t *testing.T) {
	srv := newTestServer(&stubPrimary{}, &stubSecondary{})

	now := time.Now().UTC()
	inbound := models.Message{
		ID: "p1", SenderID: "bob", RecipientID: "alice", Content: "hi",
		CreatedAt: now, DeliveryState: models.DeliveryStateConfirmedPrimary,
		Origin: models.SourcePrimary,
	}
	srv.threads.MergeIncoming("bob", inbound)
	srv.notifications.HandleMessageInsert(inbound, "alice")
	require.Equal(t, 1, srv.notifications.Counters().UnreadMessages)

	rr := httptest.NewRecorder()
	srv.router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/conversations/bob/read", nil))
	require.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, 0, srv.notifications.Counters().UnreadMessages)

	// Marking an already-read thread changes nothing.
	rr = httptest.NewRecorder()
	srv.router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/conversations/bob/read", nil))
	require.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, 0, srv.notifications.Counters().UnreadMessages)
}
