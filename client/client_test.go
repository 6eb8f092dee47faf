package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/servicelab/svc-acceptor/types"
)

func testService(baseURL string) types.ServiceDescriptor {
	return types.ServiceDescriptor{
		Name:    "orders",
		BaseURL: baseURL,
		Timeout: 5 * time.Second,
		Retry: types.RetryPolicy{
			MaxAttempts: 3,
			BaseDelay:   time.Millisecond,
			Multiplier:  2.0,
			MaxDelay:    5 * time.Millisecond,
		},
	}
}

func newTestClient(t *testing.T, svc types.ServiceDescriptor) *Client {
	t.Helper()
	c, err := New(Config{Service: svc})
	require.NoError(t, err)
	return c
}

func TestClientRetriesRetryableStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"ok":true}`)) //nolint:errcheck
	}))
	defer srv.Close()

	c := newTestClient(t, testService(srv.URL))
	resp, err := c.Get(context.Background(), "/orders")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, 3, resp.Attempts)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClientExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	svc := testService(srv.URL)
	svc.Retry.MaxAttempts = 2
	c := newTestClient(t, svc)

	_, err := c.Get(context.Background(), "/orders")
	require.Error(t, err)
	assert.True(t, IsRetryExhausted(err))
	assert.Equal(t, int32(2), calls.Load())
}

func TestClientReturnsNonRetryableStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := newTestClient(t, testService(srv.URL))
	resp, err := c.Get(context.Background(), "/orders/missing")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.Status)
	assert.Equal(t, 1, resp.Attempts)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClientRetriesConnectionError(t *testing.T) {
	// Bind and immediately close so the port refuses connections.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	base := srv.URL
	srv.Close()

	svc := testService(base)
	svc.Retry.MaxAttempts = 2
	c := newTestClient(t, svc)

	_, err := c.Get(context.Background(), "/")
	require.Error(t, err)
	assert.True(t, IsRetryExhausted(err))
	assert.True(t, IsConnectionError(err))
}

func TestClientPerRequestTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	svc := testService(srv.URL)
	svc.Retry.MaxAttempts = 1
	c := newTestClient(t, svc)

	_, err := c.Get(context.Background(), "/slow", WithTimeout(50*time.Millisecond))
	require.Error(t, err)
	assert.True(t, IsTimeoutError(err))
}

func TestClientCancellationIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	c := newTestClient(t, testService(srv.URL))
	_, err := c.Get(ctx, "/slow")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClientMergesHeaders(t *testing.T) {
	var gotAuth, gotTrace, gotAccept string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotTrace = r.Header.Get("X-Trace")
		gotAccept = r.Header.Get("Accept")
		w.Write([]byte(`{}`)) //nolint:errcheck
	}))
	defer srv.Close()

	c, err := New(Config{
		Service: testService(srv.URL),
		Headers: http.Header{"Authorization": {"Bearer default"}},
	})
	require.NoError(t, err)

	// Per-request header overrides the default of the same name.
	_, err = c.Get(context.Background(), "/",
		WithHeader("Authorization", "Bearer override"),
		WithHeader("X-Trace", "abc123"))
	require.NoError(t, err)
	assert.Equal(t, "Bearer override", gotAuth)
	assert.Equal(t, "abc123", gotTrace)
	assert.Equal(t, "application/json", gotAccept)
}

func TestClientQueryAndBody(t *testing.T) {
	var gotQuery, gotBody, gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("page")
		buf := make([]byte, r.ContentLength)
		r.Body.Read(buf) //nolint:errcheck
		gotBody = string(buf)
		gotContentType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := newTestClient(t, testService(srv.URL))
	resp, err := c.Post(context.Background(), "/orders",
		WithQuery("page", "2"),
		WithJSONBody(map[string]string{"sku": "X1"}))
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.Status)
	assert.Equal(t, "2", gotQuery)
	assert.JSONEq(t, `{"sku":"X1"}`, gotBody)
	assert.Equal(t, "application/json", gotContentType)
}

func TestClientRequestLog(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`)) //nolint:errcheck
	}))
	defer srv.Close()

	c := newTestClient(t, testService(srv.URL))
	_, err := c.Get(context.Background(), "/a")
	require.NoError(t, err)
	_, err = c.Post(context.Background(), "/b")
	require.NoError(t, err)

	entries := c.RequestLog()
	require.Len(t, entries, 2)
	assert.Equal(t, http.MethodGet, entries[0].Method)
	assert.Equal(t, "/a", entries[0].Path)
	assert.Equal(t, http.MethodPost, entries[1].Method)
	assert.Equal(t, http.StatusOK, entries[1].Status)
}

func TestClientRejectsInvalidDescriptor(t *testing.T) {
	_, err := New(Config{Service: types.ServiceDescriptor{Name: "bad", BaseURL: "not-a-url"}})
	require.Error(t, err)
}

func TestRetryDelayIsCapped(t *testing.T) {
	svc := testService("http://localhost:1")
	svc.Retry = types.RetryPolicy{
		MaxAttempts: 5,
		BaseDelay:   100 * time.Millisecond,
		Multiplier:  10.0,
		MaxDelay:    300 * time.Millisecond,
	}
	c := newTestClient(t, svc)

	assert.Equal(t, 100*time.Millisecond, c.retryDelay(1))
	assert.Equal(t, 300*time.Millisecond, c.retryDelay(2))
	assert.Equal(t, 300*time.Millisecond, c.retryDelay(5))
}
