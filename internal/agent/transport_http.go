package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/harrison/codescope/internal/models"
)

// maxResponseBytes bounds how much of an agent's HTTP response is read
const maxResponseBytes = 32 << 20

// HTTPTransport reaches agents over HTTP. A call is a POST of the raw payload to
// {endpoint}/skills/{skill}. A 2xx response body is the result, 429 and 5xx mean
// the agent is unavailable, and any other status is a business failure.
type HTTPTransport struct {
	Client *http.Client
}

// httpErrorBody is the optional JSON error document returned by HTTP agents
type httpErrorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// NewHTTPTransport creates an HTTPTransport using a dedicated client.
// Per-call timeouts come from the request context, not the client.
func NewHTTPTransport() *HTTPTransport {
	return &HTTPTransport{Client: &http.Client{}}
}

// SkillURL joins the agent endpoint and skill into the request URL.
func SkillURL(endpoint, skill string) (string, error) {
	base, err := url.Parse(strings.TrimRight(endpoint, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return "", fmt.Errorf("invalid http endpoint %q: %w", endpoint, ErrUnavailable)
	}
	return base.JoinPath("skills", skill).String(), nil
}

// Invoke posts the payload to the agent and interprets the response status.
func (t *HTTPTransport) Invoke(ctx context.Context, agent models.AgentDescriptor, skill string, payload json.RawMessage) (json.RawMessage, error) {
	target, err := SkillURL(agent.Endpoint, skill)
	if err != nil {
		return nil, err
	}
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return nil, &RemoteError{Code: "bad_request", Message: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, fmt.Errorf("%s: %v: %w", agent.Name, err, ErrTimeout)
		}
		return nil, fmt.Errorf("%s: %v: %w", agent.Name, err, ErrUnavailable)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("read response from %s: %v: %w", agent.Name, err, ErrUnavailable)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return json.RawMessage(body), nil
	case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
		return nil, fmt.Errorf("%s returned %s: %w", agent.Name, resp.Status, ErrUnavailable)
	default:
		return nil, remoteErrorFromBody(resp.Status, body)
	}
}

func remoteErrorFromBody(status string, body []byte) *RemoteError {
	var eb httpErrorBody
	if err := json.Unmarshal(body, &eb); err == nil && eb.Error != "" {
		return &RemoteError{Code: eb.Code, Message: eb.Error}
	}
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = status
	}
	return &RemoteError{Code: status, Message: msg}
}
