package telemetry

import (
	"context"
	"fmt"
	"log"
	"net/url"

	"github.com/r3labs/sse/v2"
)

// SSETransport streams run events over server-sent events. With no token a
// bare client is used; with a token the Authorization header carries it,
// unless TokenInQuery is set for hosts that cannot set request headers, in
// which case it rides the access_token query parameter.
type SSETransport struct {
	baseURL      string
	token        string
	tokenInQuery bool
	cancel       context.CancelFunc
}

// SSEOption configures an SSETransport
type SSEOption func(*SSETransport)

// WithSSEToken attaches a bearer token to the subscription
func WithSSEToken(token string) SSEOption {
	return func(t *SSETransport) { t.token = token }
}

// WithTokenInQuery passes the token as an access_token query parameter
// instead of a header
func WithTokenInQuery() SSEOption {
	return func(t *SSETransport) { t.tokenInQuery = true }
}

// NewSSETransport creates an SSE transport against the API base URL
func NewSSETransport(baseURL string, opts ...SSEOption) *SSETransport {
	t := &SSETransport{baseURL: baseURL}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Subscribe opens the stream for a run and decodes named events. The
// returned channel closes when the stream ends or ctx is canceled.
func (t *SSETransport) Subscribe(ctx context.Context, runID string) (<-chan Event, error) {
	streamURL := fmt.Sprintf("%s/runs/%s/stream", t.baseURL, url.PathEscape(runID))
	if t.token != "" && t.tokenInQuery {
		streamURL += "?access_token=" + url.QueryEscape(t.token)
	}

	client := sse.NewClient(streamURL)
	if t.token != "" && !t.tokenInQuery {
		client.Headers["Authorization"] = "Bearer " + t.token
	}

	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel

	events := make(chan Event, 16)
	go func() {
		defer close(events)
		err := client.SubscribeRawWithContext(ctx, func(msg *sse.Event) {
			ev, ok := DecodeEvent(string(msg.Event), msg.Data)
			if !ok {
				return
			}
			select {
			case events <- ev:
			case <-ctx.Done():
			}
		})
		if err != nil && ctx.Err() == nil {
			// Transport errors close the channel; retry is user-driven
			log.Printf("telemetry: sse subscription for run %s ended: %v", runID, err)
		}
	}()

	return events, nil
}

// Close cancels the subscription. Safe to call more than once.
func (t *SSETransport) Close() {
	if t.cancel != nil {
		t.cancel()
	}
}
