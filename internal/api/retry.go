package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// retryTransport retries idempotent requests on transient statuses and
// network errors with exponential backoff. Each attempt gets its own timeout.
type retryTransport struct {
	next           http.RoundTripper
	maxRetries     int
	initial        time.Duration
	attemptTimeout time.Duration
	logger         *slog.Logger
}

func newRetryTransport(next http.RoundTripper, maxRetries int, initial, attemptTimeout time.Duration, logger *slog.Logger) *retryTransport {
	if next == nil {
		next = http.DefaultTransport
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &retryTransport{
		next:           next,
		maxRetries:     maxRetries,
		initial:        initial,
		attemptTimeout: attemptTimeout,
		logger:         logger,
	}
}

// statusError marks a response that was consumed for a retry.
type statusError struct {
	code int
}

func (e *statusError) Error() string { return http.StatusText(e.code) }

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if !idempotent(req) || t.maxRetries == 0 {
		return t.attempt(req)
	}

	var (
		resp    *http.Response
		last    *http.Response
		attempt int
	)
	op := func() error {
		attempt++
		r, err := t.attempt(req)
		if err != nil {
			if ctxErr := req.Context().Err(); ctxErr != nil {
				return backoff.Permanent(ctxErr)
			}
			return err
		}
		if !retryableStatus(r.StatusCode) {
			resp = r
			return nil
		}
		// Buffer the body so the final response can still be returned.
		body, err := io.ReadAll(r.Body)
		r.Body.Close()
		if err != nil {
			return fmt.Errorf("read %d response body: %w", r.StatusCode, err)
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
		last = r
		return &statusError{code: r.StatusCode}
	}

	b := backoff.WithContext(backoff.WithMaxRetries(t.newBackOff(), uint64(t.maxRetries)), req.Context())
	err := backoff.RetryNotify(op, b, func(err error, d time.Duration) {
		t.logger.Debug("retrying request",
			"attempt", attempt,
			"backoff", d,
			"symbol", req.URL.Query().Get("symbol"),
			"error", err,
		)
	})
	if err == nil {
		return resp, nil
	}

	var se *statusError
	if errors.As(err, &se) && last != nil {
		t.logger.Warn("retries exhausted", "status", se.code, "attempts", attempt)
		return last, nil
	}
	return nil, err
}

func (t *retryTransport) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	if t.initial > 0 {
		b.InitialInterval = t.initial
	}
	b.Multiplier = 2
	b.RandomizationFactor = 0.5
	b.MaxInterval = 2 * time.Minute
	b.MaxElapsedTime = 0
	return b
}

func (t *retryTransport) attempt(req *http.Request) (*http.Response, error) {
	if t.attemptTimeout <= 0 {
		return t.next.RoundTrip(req)
	}
	ctx, cancel := context.WithTimeout(req.Context(), t.attemptTimeout)
	resp, err := t.next.RoundTrip(req.WithContext(ctx))
	if err != nil {
		cancel()
		return nil, err
	}
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

func idempotent(req *http.Request) bool {
	switch req.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return req.Body == nil || req.Body == http.NoBody || req.GetBody != nil
	}
	return false
}

// cancelOnClose releases the attempt context once the body is done.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}
