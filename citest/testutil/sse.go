package testutil

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// SSEEvent represents one Server-Sent Event.
type SSEEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// SSEClient consumes an SSE endpoint for testing.
type SSEClient struct {
	BaseURL    string
	HTTPClient *http.Client

	mu       sync.Mutex
	events   []SSEEvent
	eventsCh chan SSEEvent
	cancel   context.CancelFunc
	body     io.ReadCloser
}

// NewSSEClient creates a new SSE test client.
func NewSSEClient(baseURL string) *SSEClient {
	return &SSEClient{
		BaseURL: baseURL,
		// No timeout: SSE connections stay open.
		HTTPClient: &http.Client{},
		eventsCh:   make(chan SSEEvent, 100),
	}
}

// Connect starts the SSE connection and begins reading events.
func (c *SSEClient) Connect(ctx context.Context, path string) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		resp.Body.Close()
		return fmt.Errorf("unexpected content type: %s", ct)
	}

	c.body = resp.Body
	go c.readEvents(resp.Body)

	return nil
}

// readEvents parses the SSE wire format until the connection drops.
func (c *SSEClient) readEvents(body io.Reader) {
	defer close(c.eventsCh)

	reader := bufio.NewReader(body)
	var eventType string
	var eventData strings.Builder

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")

		// Blank line terminates one event.
		if line == "" {
			if eventData.Len() > 0 {
				evt := SSEEvent{Type: eventType, Data: json.RawMessage(eventData.String())}

				c.mu.Lock()
				c.events = append(c.events, evt)
				c.mu.Unlock()

				select {
				case c.eventsCh <- evt:
				default:
				}
			}
			eventType = ""
			eventData.Reset()
			continue
		}

		if strings.HasPrefix(line, ":") {
			continue
		}
		if after, ok := strings.CutPrefix(line, "event: "); ok {
			eventType = after
			continue
		}
		if after, ok := strings.CutPrefix(line, "data: "); ok {
			eventData.WriteString(after)
		}
	}
}

// WaitForEvent blocks until an event satisfying match arrives or the
// timeout passes.
func (c *SSEClient) WaitForEvent(timeout time.Duration, match func(SSEEvent) bool) (SSEEvent, error) {
	deadline := time.After(timeout)
	for {
		select {
		case evt, ok := <-c.eventsCh:
			if !ok {
				return SSEEvent{}, fmt.Errorf("sse connection closed")
			}
			if match(evt) {
				return evt, nil
			}
		case <-deadline:
			return SSEEvent{}, fmt.Errorf("no matching event within %s", timeout)
		}
	}
}

// Events returns a copy of all events received so far.
func (c *SSEClient) Events() []SSEEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]SSEEvent(nil), c.events...)
}

// Close tears down the SSE connection.
func (c *SSEClient) Close() {
	if c.cancel != nil {
		c.cancel()
	}
	if c.body != nil {
		c.body.Close()
	}
}
