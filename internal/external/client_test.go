package external

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subledger/internal/types"
)

func testPolicy(maxRetries int) RetryPolicy {
	return RetryPolicy{
		MaxRetries: maxRetries,
		MinWait:    10 * time.Millisecond,
		MaxWait:    100 * time.Millisecond,
	}
}

func noSleep() (BaseClientOption, *[]time.Duration) {
	var waits []time.Duration
	return WithSleepFunc(func(d time.Duration) {
		waits = append(waits, d)
	}), &waits
}

func TestBaseClient_Do_SuccessFirstAttempt(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	opt, _ := noSleep()
	client := NewBaseClient(server.Client(), "test", testPolicy(3), "Subledger/1.0", opt)

	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestBaseClient_Do_InjectsHeaders(t *testing.T) {
	var gotUA, gotTrace string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotTrace = r.Header.Get("X-B3-TraceId")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	opt, _ := noSleep()
	client := NewBaseClient(server.Client(), "test", testPolicy(0), "Subledger/1.0", opt)

	ctx := types.WithRequestID(context.Background(), "req-123")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "Subledger/1.0", gotUA)
	assert.Equal(t, "req-123", gotTrace)
}

func TestBaseClient_Do_RetriesOn5xxThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	opt, waits := noSleep()
	client := NewBaseClient(server.Client(), "test", testPolicy(3), "Subledger/1.0", opt)

	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(3), calls.Load())
	assert.Len(t, *waits, 2)
}

func TestBaseClient_Do_ExhaustedRetriesMapsToUnavailable(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	opt, _ := noSleep()
	client := NewBaseClient(server.Client(), "test", testPolicy(2), "Subledger/1.0", opt)

	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	require.NoError(t, err)

	_, err = client.Do(req)
	require.Error(t, err)
	assert.Equal(t, int32(3), calls.Load(), "1 initial + 2 retries")

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeUpstreamUnavailable, appErr.Code)
}

func TestBaseClient_Do_RateLimitMapsToRateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	opt, _ := noSleep()
	client := NewBaseClient(server.Client(), "test", testPolicy(1), "Subledger/1.0", opt)

	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	require.NoError(t, err)

	_, err = client.Do(req)
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeUpstreamRateLimited, appErr.Code)
}

func TestBaseClient_Do_RespectsRetryAfterSeconds(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "2")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	policy := RetryPolicy{MaxRetries: 1, MinWait: 10 * time.Millisecond, MaxWait: 10 * time.Second}
	opt, waits := noSleep()
	client := NewBaseClient(server.Client(), "test", policy, "Subledger/1.0", opt)

	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	require.Len(t, *waits, 1)
	assert.Equal(t, 2*time.Second, (*waits)[0])
}

func TestBaseClient_Do_NonRetryable4xxReturnedAsIs(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	opt, _ := noSleep()
	client := NewBaseClient(server.Client(), "test", testPolicy(3), "Subledger/1.0", opt)

	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err, "4xx other than 429 is the caller's problem, not a transport failure")
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestBaseClient_Do_CircuitBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	opt, _ := noSleep()
	client := NewBaseClient(server.Client(), "test", testPolicy(10), "Subledger/1.0", opt)

	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	require.NoError(t, err)

	_, err = client.Do(req)
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeUpstreamRateLimited, appErr.Code, "open breaker short-circuits remaining retries")
	assert.Equal(t, int32(6), calls.Load(), "breaker trips after the 6th consecutive failure")
}

func TestBaseClient_Do_RejectsRequestBody(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	opt, _ := noSleep()
	client := NewBaseClient(server.Client(), "test", testPolicy(2), "Subledger/1.0", opt)

	req, err := http.NewRequest(http.MethodPost, server.URL, strings.NewReader(`{"k":"v"}`))
	require.NoError(t, err)

	_, err = client.Do(req)
	require.Error(t, err, "the client only supports body-less requests")
	assert.Equal(t, int32(0), calls.Load(), "the request must never leave the process")
}

func TestBaseClient_Backoff_ClampedToMaxWait(t *testing.T) {
	opt, _ := noSleep()
	client := NewBaseClient(http.DefaultClient, "test", testPolicy(5), "", opt)

	for attempt := 0; attempt < 10; attempt++ {
		wait := client.backoff(attempt, nil)
		assert.GreaterOrEqual(t, wait, 10*time.Millisecond)
		assert.LessOrEqual(t, wait, 100*time.Millisecond)
	}
}
