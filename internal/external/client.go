// Package external is the anti-corruption layer between subledger domain
// logic and the payment provider's APIs. Inbound deliveries pass through a
// WebhookVerifier; outbound reads go through the BaseClient, which adds
// circuit breaking, bounded retries, trace propagation, and error mapping.
package external

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/sony/gobreaker/v2"

	"subledger/internal/types"
)

// RetryPolicy bounds the retry loop for outbound provider calls.
type RetryPolicy struct {
	MaxRetries int
	MinWait    time.Duration
	MaxWait    time.Duration
}

// BaseClient executes outbound HTTP requests for provider clients. The only
// outbound traffic this service produces is the payment-intent backfill read,
// so the client supports body-less requests exclusively and simply re-sends
// the original request on retry.
//
// Requests pass through a circuit breaker that trips after a run of
// consecutive failures; 429 and 5xx responses are retried with a Retry-After
// or jittered exponential wait; everything else is returned to the caller
// untouched.
type BaseClient struct {
	client      *http.Client
	breaker     *gobreaker.CircuitBreaker[*http.Response]
	retryPolicy RetryPolicy
	userAgent   string
	sleepFn     func(time.Duration)
}

// BaseClientOption configures a BaseClient.
type BaseClientOption func(*BaseClient)

// WithSleepFunc replaces the wait between retries. Tests use this to run the
// retry loop without real delays.
func WithSleepFunc(fn func(time.Duration)) BaseClientOption {
	return func(c *BaseClient) {
		c.sleepFn = fn
	}
}

// NewBaseClient creates a BaseClient with its own circuit breaker. The
// breaker opens after more than five consecutive failures and probes again
// after 30 seconds.
func NewBaseClient(httpClient *http.Client, breakerName string, retryPolicy RetryPolicy, userAgent string, opts ...BaseClientOption) *BaseClient {
	bc := &BaseClient{
		client: httpClient,
		breaker: gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
			Name:        breakerName,
			MaxRequests: 1,
			Interval:    60 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures > 5
			},
		}),
		retryPolicy: retryPolicy,
		userAgent:   userAgent,
		sleepFn:     time.Sleep,
	}
	for _, opt := range opts {
		opt(bc)
	}
	return bc
}

// Do executes one request through the breaker and the retry loop.
//
// A 2xx/3xx response, or any 4xx other than 429, is returned as-is; the
// caller owns the body. Exhausted retries, an open breaker, and transport
// errors come back as a *types.AppError with the upstream taxonomy code.
func (c *BaseClient) Do(req *http.Request) (*http.Response, error) {
	if req.Body != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "outbound provider requests carry no body", nil)
	}

	if traceID := types.GetRequestID(req.Context()); traceID != "" {
		req.Header.Set("X-B3-TraceId", traceID)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	attempts := c.retryPolicy.MaxRetries + 1
	var lastResp *http.Response
	var lastErr error

	for attempt := 0; attempt < attempts; attempt++ {
		resp, err := c.breaker.Execute(func() (*http.Response, error) {
			r, doErr := c.client.Do(req)
			if doErr != nil {
				return nil, doErr
			}
			// 429 and 5xx count as breaker failures and trigger a retry.
			if r.StatusCode == http.StatusTooManyRequests || r.StatusCode >= 500 {
				return r, fmt.Errorf("upstream returned %d", r.StatusCode)
			}
			return r, nil
		})
		if err == nil {
			return resp, nil
		}
		lastErr = err

		final := attempt == attempts-1 ||
			errors.Is(err, gobreaker.ErrOpenState) ||
			errors.Is(err, gobreaker.ErrTooManyRequests)
		if resp != nil {
			if final {
				lastResp = resp
			} else {
				resp.Body.Close()
			}
		}
		if final {
			break
		}
		c.sleepFn(c.backoff(attempt, resp))
	}

	if lastResp != nil {
		lastResp.Body.Close()
	}
	return nil, c.mapError(lastResp, lastErr)
}

// backoff picks the wait before the next attempt: the server's Retry-After
// in seconds when it sent one, otherwise a full-jitter exponential wait
// growing from MinWait. Either way the wait never exceeds MaxWait.
func (c *BaseClient) backoff(attempt int, resp *http.Response) time.Duration {
	if resp != nil {
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if secs, err := strconv.Atoi(ra); err == nil && secs > 0 {
				return min(time.Duration(secs)*time.Second, c.retryPolicy.MaxWait)
			}
		}
	}

	ceiling := float64(c.retryPolicy.MinWait) * math.Pow(2, float64(attempt))
	ceiling = math.Min(ceiling, float64(c.retryPolicy.MaxWait))
	floor := float64(c.retryPolicy.MinWait)
	if ceiling <= floor {
		return c.retryPolicy.MinWait
	}
	return time.Duration(floor + rand.Float64()*(ceiling-floor))
}

// mapError folds the terminal response and error into the error taxonomy.
func (c *BaseClient) mapError(resp *http.Response, err error) *types.AppError {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return types.NewAppError(types.ErrCodeUpstreamRateLimited, "circuit breaker is open; upstream service unavailable", err)
	}
	if resp != nil {
		if resp.StatusCode == http.StatusTooManyRequests {
			return types.NewAppError(types.ErrCodeUpstreamRateLimited, "upstream rate limit exceeded", err)
		}
		if resp.StatusCode >= 500 {
			return types.NewAppError(types.ErrCodeUpstreamUnavailable, fmt.Sprintf("upstream returned %d after retries", resp.StatusCode), err)
		}
	}
	// Transport failure: connection refused, DNS, timeout.
	return types.NewAppError(types.ErrCodeInternalUnexpected, "upstream request failed", err)
}
