package primary

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"chatsync/internal/constants"
	"chatsync/internal/errors"
	"chatsync/internal/models"
	"chatsync/pkg/circuitbreaker"
)

// Client talks to the Primary store's HTTP API. A circuit breaker fronts
// every call so an outage fails fast and the Secondary fallback takes over
// without waiting out HTTP timeouts.
type Client struct {
	baseURL string
	apiKey  string
	wsURL   string
	client  *http.Client
	breaker *circuitbreaker.Breaker
}

// NewClient creates a Primary store client from config.
func NewClient(cfg models.PrimaryConfig) *Client {
	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if cfg.TimeoutSec <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: cfg.APIBaseURL,
		apiKey:  cfg.APIKey,
		wsURL:   cfg.WebsocketURL,
		client:  &http.Client{Timeout: timeout},
		breaker: circuitbreaker.New("primary",
			constants.DefaultBreakerMaxFailures,
			constants.DefaultBreakerCooldownSec*time.Second,
			nil),
	}
}

// SendMessage submits a message and returns the stored document, including
// the authoritative id and timestamp assigned by the backend.
func (c *Client) SendMessage(ctx context.Context, senderID, recipientID, text string, att *Attachment, correlationID string) (*Message, error) {
	req := sendMessageRequest{
		SenderID:      senderID,
		RecipientID:   recipientID,
		Text:          text,
		CorrelationID: correlationID,
		Attachment:    att,
	}

	var msg Message
	if err := c.do(ctx, http.MethodPost, "/api/messages", req, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// GetMessagesBetween returns the full message history between two users,
// oldest first.
func (c *Client) GetMessagesBetween(ctx context.Context, userA, userB string) ([]Message, error) {
	endpoint := fmt.Sprintf("/api/messages?user=%s&peer=%s", url.QueryEscape(userA), url.QueryEscape(userB))
	var msgs []Message
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// GetConversations returns the user's conversation summaries.
func (c *Client) GetConversations(ctx context.Context, userID string) ([]Conversation, error) {
	endpoint := "/api/conversations?user=" + url.QueryEscape(userID)
	var convs []Conversation
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &convs); err != nil {
		return nil, err
	}
	return convs, nil
}

// GetUserByID fetches a profile document. The result may be a placeholder
// profile with no name or avatar.
func (c *Client) GetUserByID(ctx context.Context, id string) (*Profile, error) {
	endpoint := "/api/users/" + url.PathEscape(id)
	var profile Profile
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

// MarkMessagesAsRead marks every message from counterpartID to userID read.
func (c *Client) MarkMessagesAsRead(ctx context.Context, userID, counterpartID string) error {
	req := markReadRequest{UserID: userID, CounterpartID: counterpartID}
	return c.do(ctx, http.MethodPost, "/api/messages/read", req, nil)
}

// CountPendingFriendRequests returns the user's pending friend request count.
func (c *Client) CountPendingFriendRequests(ctx context.Context, userID string) (int, error) {
	endpoint := "/api/friend-requests/count?user=" + url.QueryEscape(userID)
	var resp countResponse
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return 0, err
	}
	return resp.Count, nil
}

// CountUnreadNotifications returns the user's unread generic notification count.
func (c *Client) CountUnreadNotifications(ctx context.Context, userID string) (int, error) {
	endpoint := "/api/notifications/count?user=" + url.QueryEscape(userID)
	var resp countResponse
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return 0, err
	}
	return resp.Count, nil
}

// MarkNotificationsRead marks one notification category fully read.
func (c *Client) MarkNotificationsRead(ctx context.Context, userID, category string) error {
	req := markNotificationsReadRequest{UserID: userID, Category: category}
	return c.do(ctx, http.MethodPost, "/api/notifications/read", req, nil)
}

func (c *Client) do(ctx context.Context, method, endpoint string, payload, result any) error {
	var reqErr error
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		reqErr = c.doRequest(ctx, method, endpoint, payload, result)
		// Only availability failures count against the breaker; a 404 is
		// a healthy backend answering.
		if reqErr != nil && errors.IsUnavailable(reqErr) {
			return reqErr
		}
		return nil
	})
	if circuitbreaker.IsOpen(err) {
		return errors.WrapRetryable(err, errors.ErrCodeSourceUnavailable, "primary store unavailable")
	}
	return reqErr
}

func (c *Client) doRequest(ctx context.Context, method, endpoint string, payload, result any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal payload: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return errors.NewAPIError("primary", endpoint, 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		var ae apiError
		_ = json.NewDecoder(resp.Body).Decode(&ae)
		cause := fmt.Errorf("status %d: %s", resp.StatusCode, ae.Error)
		return errors.NewAPIError("primary", endpoint, resp.StatusCode, cause)
	}

	if result == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return errors.Wrap(err, errors.ErrCodePrimaryAPI, "failed to decode response")
	}
	return nil
}
