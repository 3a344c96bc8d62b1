package primary

import (
	"context"
	"net/http"
	"net/url"

	"chatsync/internal/errors"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

const subscribeBufferSize = 64

// Subscribe opens the live event feed for a user. Events arrive on the
// returned channel until the context is cancelled, the returned cancel
// function is called, or the connection drops; the channel is closed in all
// three cases. Callers that need delivery after a drop fall back to polling.
func (c *Client) Subscribe(ctx context.Context, userID string) (<-chan Event, func(), error) {
	if c.wsURL == "" {
		return nil, nil, errors.New(errors.ErrCodeSourceUnavailable, "no live feed endpoint configured")
	}

	dialURL := c.wsURL + "/api/events?user=" + url.QueryEscape(userID)
	opts := &websocket.DialOptions{}
	if c.apiKey != "" {
		opts.HTTPHeader = http.Header{"X-Api-Key": []string{c.apiKey}}
	}

	conn, _, err := websocket.Dial(ctx, dialURL, opts)
	if err != nil {
		return nil, nil, errors.WrapRetryable(err, errors.ErrCodeSourceUnavailable, "live feed dial failed")
	}

	streamCtx, cancel := context.WithCancel(ctx)
	events := make(chan Event, subscribeBufferSize)

	go func() {
		defer close(events)
		defer conn.Close(websocket.StatusNormalClosure, "done")

		for {
			var evt Event
			if err := wsjson.Read(streamCtx, conn, &evt); err != nil {
				return
			}
			select {
			case events <- evt:
			case <-streamCtx.Done():
				return
			}
		}
	}()

	return events, cancel, nil
}
