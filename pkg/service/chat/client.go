package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/m-mizutani/goerr/v2"

	"github.com/helixa-health/scribe/pkg/domain/model"
	"github.com/helixa-health/scribe/pkg/domain/types"
	"github.com/helixa-health/scribe/pkg/service/auth"
)

// Client streams assistant responses from the chat endpoint. Like the upload
// pipeline it is single-flight: a new Stream cancels the prior one.
type Client struct {
	endpoint   string
	httpClient *http.Client
	tokens     auth.TokenSource

	mu     sync.Mutex
	cancel context.CancelFunc
}

// ClientOption customizes the chat client
type ClientOption func(*Client)

// WithHTTPClient overrides the default HTTP client
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewClient creates a chat client targeting the given endpoint
func NewClient(endpoint string, tokens auth.TokenSource, opts ...ClientOption) *Client {
	c := &Client{
		endpoint: endpoint,
		tokens:   tokens,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{}
	}
	return c
}

type chatRequestBody struct {
	Messages  []chatRequestMessage `json:"messages"`
	PatientID *string              `json:"patientId"`
}

type chatRequestMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Stream sends the conversation history and dispatches the incremental
// response through the handler. A cancelled stream resolves with nil and
// fires no terminal callback. Non-nil errors mean the request could not be
// issued; stream-level failures are reported through the handler instead.
func (c *Client) Stream(ctx context.Context, messages []model.ChatMessage, patientID types.PatientID, handler Handler) error {
	ctx, cancel := context.WithCancel(ctx)
	c.replaceCancel(cancel)
	defer cancel()

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return goerr.Wrap(err, "failed to obtain auth token")
	}

	body := &chatRequestBody{
		Messages: make([]chatRequestMessage, 0, len(messages)),
	}
	for _, msg := range messages {
		body.Messages = append(body.Messages, chatRequestMessage{
			Role:    msg.Role.String(),
			Content: msg.Content,
		})
	}
	if patientID != "" {
		id := patientID.String()
		body.PatientID = &id
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return goerr.Wrap(err, "failed to encode chat request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(raw))
	if err != nil {
		return goerr.Wrap(err, "failed to build chat request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	parser := NewParser(handler)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		c.fail(parser, handler, "network error: "+err.Error())
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.fail(parser, handler, "chat endpoint returned status "+resp.Status)
		return nil
	}

	buf := make([]byte, 4096)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			parser.Feed(string(buf[:n]))
		}
		if err != nil {
			break
		}
		if parser.Done() {
			break
		}
	}

	if ctx.Err() != nil {
		// Cancelled mid-stream: no terminal callback, no synthesized done.
		return nil
	}

	// Timeouts and mid-stream transport failures land here too; with
	// accumulated content they become a synthesized done, otherwise the
	// stream simply ended without output.
	parser.Close()
	if !parser.Done() {
		c.fail(parser, handler, "stream closed without response")
	}
	return nil
}

// Cancel aborts the in-flight stream, if any. Idempotent.
func (c *Client) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

func (c *Client) replaceCancel(cancel context.CancelFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
	}
	c.cancel = cancel
}

func (c *Client) fail(parser *Parser, handler Handler, message string) {
	if parser.Done() {
		return
	}
	parser.doneCalled = true
	if handler.OnError != nil {
		handler.OnError(message)
	}
}
