// Package client holds the typed HTTP clients the services use to talk to each other.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/gema-antiplagiat/internal/apperr"
	"github.com/noah-isme/gema-antiplagiat/internal/middleware"
	"github.com/noah-isme/gema-antiplagiat/internal/observability"
)

// Config describes one downstream service.
type Config struct {
	BaseURL string
	Timeout time.Duration
	// Transport overrides the base round tripper; it is always wrapped with otelhttp.
	Transport http.RoundTripper
}

// StatusError is a failure answered by a downstream service. Client errors keep their
// status and message so the gateway can relay them. A downstream 503 stays 503 and other
// server errors surface as 502.
type StatusError struct {
	Service    string
	StatusCode int
	Message    string
	Data       json.RawMessage
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s responded %d: %s", e.Service, e.StatusCode, e.Message)
}

// Unwrap exposes the error kind that matches the downstream status.
func (e *StatusError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusBadRequest:
		return apperr.ErrValidation
	case http.StatusNotFound:
		return apperr.ErrNotFound
	case http.StatusConflict:
		return apperr.ErrConflict
	case http.StatusTooManyRequests:
		return apperr.ErrOverload
	case http.StatusGone:
		return apperr.ErrGone
	case http.StatusForbidden:
		return apperr.ErrForbidden
	case http.StatusServiceUnavailable:
		return apperr.ErrUpstreamUnavailable
	}
	if e.StatusCode >= http.StatusInternalServerError {
		return apperr.ErrUpstream
	}
	return nil
}

// HTTPStatus implements apperr.HTTPError.
func (e *StatusError) HTTPStatus() int {
	if e.StatusCode == http.StatusServiceUnavailable {
		return http.StatusServiceUnavailable
	}
	if e.StatusCode >= http.StatusInternalServerError {
		return http.StatusBadGateway
	}
	return e.StatusCode
}

// PublicMessage implements apperr.HTTPError.
func (e *StatusError) PublicMessage() string {
	if e.StatusCode == http.StatusServiceUnavailable {
		return "upstream service unavailable"
	}
	if e.StatusCode >= http.StatusInternalServerError {
		return fmt.Sprintf("%s failed: %s", e.Service, e.Message)
	}
	return e.Message
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

type baseClient struct {
	service string
	baseURL string
	http    *http.Client
}

func newBaseClient(service string, cfg Config) baseClient {
	transport := cfg.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return baseClient{
		service: service,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(transport),
		},
	}
}

func (c baseClient) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", c.service, err)
	}
	req.Header.Set("Accept", "application/json")
	if id := middleware.CorrelationIDFromContext(ctx); id != "" {
		req.Header.Set(middleware.HeaderCorrelationID, id)
	}
	return req, nil
}

// do sends req; transport failures and timeouts become ErrUpstreamUnavailable.
func (c baseClient) do(req *http.Request) (*http.Response, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		observability.UpstreamErrors().WithLabelValues(c.service, "unavailable").Inc()
		return nil, apperr.Wrap(apperr.ErrUpstreamUnavailable, fmt.Errorf("%s unreachable: %w", c.service, err))
	}
	return resp, nil
}

// statusError reads the error envelope of a failed response and closes its body.
func (c baseClient) statusError(resp *http.Response) error {
	defer resp.Body.Close()

	var payload envelope
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err := json.Unmarshal(raw, &payload); err != nil || payload.Message == "" {
		payload.Message = http.StatusText(resp.StatusCode)
	}

	kind := "client_error"
	if resp.StatusCode >= http.StatusInternalServerError {
		kind = "server_error"
	}
	observability.UpstreamErrors().WithLabelValues(c.service, kind).Inc()

	return &StatusError{
		Service:    c.service,
		StatusCode: resp.StatusCode,
		Message:    payload.Message,
		Data:       payload.Data,
	}
}

// doJSON sends req and decodes the data member of the success envelope into target.
func (c baseClient) doJSON(req *http.Request, target interface{}) (int, error) {
	resp, err := c.do(req)
	if err != nil {
		return 0, err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return resp.StatusCode, c.statusError(resp)
	}
	defer resp.Body.Close()

	var payload envelope
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return resp.StatusCode, apperr.Wrap(apperr.ErrUpstream, fmt.Errorf("decode %s response: %w", c.service, err))
	}
	if target != nil && len(payload.Data) > 0 {
		if err := json.Unmarshal(payload.Data, target); err != nil {
			return resp.StatusCode, apperr.Wrap(apperr.ErrUpstream, fmt.Errorf("decode %s data: %w", c.service, err))
		}
	}

	return resp.StatusCode, nil
}

func (c baseClient) health(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return err
	}
	_, err = c.doJSON(req, nil)
	return err
}

// IsPermanent reports whether retrying a call that failed with err cannot help.
func IsPermanent(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode < http.StatusInternalServerError && statusErr.StatusCode != http.StatusTooManyRequests
	}
	return false
}
