// Package gateway is the single path every authenticated backend call takes.
//
// The Gateway attaches the stored access credential to each request. When the
// server answers 401 or 403 the request is parked on the Coordinator, which runs
// at most one refresh exchange no matter how many requests failed at once, and
// the request is replayed once with the new credential. A replay that is
// rejected again is returned as core.ErrUnauthorized instead of looping.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/layer-3/faucetadmin/core"
	"github.com/layer-3/faucetadmin/ports"
)

const (
	HeaderRequestID = "X-Request-ID"

	maxBodySize = 4 << 20
)

// Call describes one backend request. Body, if set, is encoded as JSON once
// and the same bytes are resent on replay.
type Call struct {
	Method string
	Path   string
	Query  url.Values
	Body   any
}

// Response is a buffered 2xx response
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Decode unmarshals the JSON body into v
func (r *Response) Decode(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Gateway sends calls to the remote service with the current credential attached
type Gateway struct {
	client      *http.Client
	baseURL     *url.URL
	store       ports.CredentialStore
	coordinator *Coordinator
	logger      *slog.Logger
}

// New creates a Gateway. The coordinator is owned by this gateway; create one
// per gateway.
func New(client *http.Client, baseURL *url.URL, store ports.CredentialStore, coordinator *Coordinator, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		client:      client,
		baseURL:     baseURL,
		store:       store,
		coordinator: coordinator,
		logger:      logger.With("component", "gateway"),
	}
}

// Coordinator returns the refresh coordinator owned by this gateway
func (g *Gateway) Coordinator() *Coordinator {
	return g.coordinator
}

// Send performs call, repairing an expired credential at most once
func (g *Gateway) Send(ctx context.Context, call *Call) (*Response, error) {
	var body []byte
	if call.Body != nil {
		encoded, err := json.Marshal(call.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		body = encoded
	}

	token := g.credential(ctx)
	retried := false
	for {
		resp, err := g.roundTrip(ctx, call, body, token)
		if err != nil {
			return nil, err
		}
		if !needsRefresh(resp.StatusCode) {
			return resp, checkStatus(resp)
		}

		if retried {
			g.logger.Warn("replayed request rejected again", "method", call.Method, "path", call.Path, "status", resp.StatusCode)
			return nil, &core.StatusError{Code: resp.StatusCode, Message: errorMessage(resp.Body), Err: core.ErrUnauthorized}
		}
		retried = true

		token, err = g.coordinator.Await(ctx, token)
		if err != nil {
			return nil, err
		}
	}
}

// credential returns the stored access token or "" when there is none
func (g *Gateway) credential(ctx context.Context) string {
	session, err := g.store.Get(ctx)
	if err != nil {
		if !errors.Is(err, core.ErrNoCredential) {
			g.logger.Warn("failed to read credential", "error", err)
		}
		return ""
	}
	return session.AccessToken
}

func (g *Gateway) roundTrip(ctx context.Context, call *Call, body []byte, token string) (*Response, error) {
	target := g.baseURL.JoinPath(call.Path)
	if len(call.Query) > 0 {
		target.RawQuery = call.Query.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, call.Method, target.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	requestID := uuid.New().String()
	req.Header.Set("Accept", "application/json")
	req.Header.Set(HeaderRequestID, requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	op := call.Method + " " + call.Path
	started := time.Now()
	httpResp, err := g.client.Do(req)
	if err != nil {
		return nil, &core.NetworkError{Op: op, Err: err}
	}
	defer httpResp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(httpResp.Body, maxBodySize))
	if err != nil {
		return nil, &core.NetworkError{Op: op, Err: err}
	}

	g.logger.Debug("backend call",
		"op", op,
		"status", httpResp.StatusCode,
		"request_id", requestID,
		"bearer", token != "",
		"duration", time.Since(started),
	)

	return &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       payload,
	}, nil
}

func needsRefresh(status int) bool {
	return status == http.StatusUnauthorized || status == http.StatusForbidden
}

// checkStatus maps a non-auth status to the error taxonomy
func checkStatus(resp *Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return rateLimited(resp)
	default:
		return &core.StatusError{Code: resp.StatusCode, Message: errorMessage(resp.Body)}
	}
}

func rateLimited(resp *Response) error {
	var body struct {
		RetryAfter json.Number `json:"retryAfter"`
		Error      string      `json:"error"`
		Message    string      `json:"message"`
	}
	_ = json.Unmarshal(resp.Body, &body)

	seconds, err := strconv.ParseFloat(body.RetryAfter.String(), 64)
	if err != nil || body.RetryAfter == "" {
		seconds, _ = strconv.ParseFloat(strings.TrimSpace(resp.Header.Get("Retry-After")), 64)
	}

	msg := body.Message
	if msg == "" {
		msg = body.Error
	}
	return &core.RateLimitedError{
		RetryAfter: time.Duration(seconds * float64(time.Second)),
		Message:    msg,
	}
}

// errorMessage pulls {"error": ...} or {"message": ...} out of a response body
func errorMessage(body []byte) string {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	if payload.Error != "" {
		return payload.Error
	}
	return payload.Message
}

// ErrorMessage is errorMessage for callers outside the gateway
func ErrorMessage(body []byte) string { return errorMessage(body) }
