package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/savaki/sentiment-bot/pkg/apperr"
	"github.com/savaki/sentiment-bot/pkg/models"
)

const maxErrorBody = 512

// Responder posts deferred command results to a command's response_url
type Responder struct {
	client  *http.Client
	timeout time.Duration
}

// NewResponder creates a responder whose posts are bounded by timeout
func NewResponder(timeout time.Duration) *Responder {
	return NewResponderWithClient(&http.Client{}, timeout)
}

// NewResponderWithClient creates a responder around an existing HTTP client
func NewResponderWithClient(client *http.Client, timeout time.Duration) *Responder {
	return &Responder{
		client:  client,
		timeout: timeout,
	}
}

// Respond POSTs resp as JSON to responseURL. Any transport failure or
// non-2xx status is reported as a downstream callback error.
func (r *Responder) Respond(ctx context.Context, responseURL string, resp models.CommandResponse) error {
	const op = "slack.Respond"

	body, err := json.Marshal(resp)
	if err != nil {
		return apperr.Callback(op, fmt.Errorf("marshal response: %w", err))
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, responseURL, bytes.NewReader(body))
	if err != nil {
		return apperr.Callback(op, fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := r.client.Do(req)
	if err != nil {
		return apperr.Callback(op, fmt.Errorf("post response: %w", err))
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
		return apperr.Callback(op, fmt.Errorf("response_url returned %d: %s", res.StatusCode, snippet))
	}

	_, _ = io.Copy(io.Discard, res.Body)
	return nil
}
