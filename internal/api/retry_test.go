package api

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }

var errTruncated = errors.New("connection reset mid-body")

// brokenBody yields a few bytes and then fails.
type brokenBody struct {
	read bool
}

func (b *brokenBody) Read(p []byte) (int, error) {
	if b.read {
		return 0, errTruncated
	}
	b.read = true
	return copy(p, `{"partial":`), nil
}

func (b *brokenBody) Close() error { return nil }

func TestRetryTransportBodyReadError(t *testing.T) {
	t.Run("truncated body is an error, not a response", func(t *testing.T) {
		var calls atomic.Int32
		next := roundTripFunc(func(req *http.Request) (*http.Response, error) {
			calls.Add(1)
			return &http.Response{
				StatusCode: http.StatusServiceUnavailable,
				Body:       &brokenBody{},
				Header:     make(http.Header),
				Request:    req,
			}, nil
		})

		rt := newRetryTransport(next, 2, time.Millisecond, 0, quietLogger())
		req, _ := http.NewRequest(http.MethodGet, "http://example.invalid/query", nil)

		resp, err := rt.RoundTrip(req)
		if err == nil {
			resp.Body.Close()
			t.Fatal("RoundTrip() error = nil, want body read error")
		}
		if !errors.Is(err, errTruncated) {
			t.Errorf("error = %v, want %v", err, errTruncated)
		}
		if calls.Load() != 3 {
			t.Errorf("calls = %d, want 3 (read errors are retried)", calls.Load())
		}
	})

	t.Run("read error then full body recovers", func(t *testing.T) {
		var calls atomic.Int32
		next := roundTripFunc(func(req *http.Request) (*http.Response, error) {
			if calls.Add(1) == 1 {
				return &http.Response{
					StatusCode: http.StatusBadGateway,
					Body:       &brokenBody{},
					Header:     make(http.Header),
					Request:    req,
				}, nil
			}
			return &http.Response{
				StatusCode: http.StatusOK,
				Body:       io.NopCloser(strings.NewReader(dailyPayload)),
				Header:     make(http.Header),
				Request:    req,
			}, nil
		})

		rt := newRetryTransport(next, 2, time.Millisecond, 0, quietLogger())
		req, _ := http.NewRequest(http.MethodGet, "http://example.invalid/query", nil)

		resp, err := rt.RoundTrip(req)
		if err != nil {
			t.Fatalf("RoundTrip() error = %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("StatusCode = %d, want 200", resp.StatusCode)
		}
	})
}
