package providers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
)

// maxPayloadBytes caps how much of a provider response body is read.
const maxPayloadBytes = 8 << 20

// BackoffConfig controls exponential backoff behaviour. MaxRetries of zero
// means a single attempt.
type BackoffConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// HTTPClientConfig bundles HTTP client and resilience settings.
type HTTPClientConfig struct {
	Client  *http.Client
	Backoff BackoffConfig
}

var (
	errCircuitOpen   = errors.New("circuit breaker open")
	errNoHTTPClient  = errors.New("http client not configured")
	errInvalidConfig = errors.New("invalid backoff configuration")
)

// statusError is a retryable provider status (429 or 5xx).
type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("provider status %d", e.code)
}

// response is a fully read provider response. oversized is set, and body
// left empty, when the body exceeded maxPayloadBytes.
type response struct {
	status    int
	body      []byte
	oversized bool
}

// doRequestWithResilience executes the HTTP request with retries, exponential backoff,
// and a circuit breaker. Only transport failures, 429 and 5xx count against the
// breaker and are retried; any other status is returned to the caller as is.
func doRequestWithResilience(
	ctx context.Context,
	cfg HTTPClientConfig,
	cb *gobreaker.CircuitBreaker,
	buildRequest func() (*http.Request, error),
) (response, error) {
	if cfg.Client == nil {
		return response{}, errNoHTTPClient
	}
	if cfg.Backoff.MaxRetries < 0 || (cfg.Backoff.MaxRetries > 0 && cfg.Backoff.InitialInterval <= 0) {
		return response{}, errInvalidConfig
	}

	var attempt int

	for {
		if ctx.Err() != nil {
			return response{}, ctx.Err()
		}

		req, err := buildRequest()
		if err != nil {
			return response{}, err
		}
		req = req.WithContext(ctx)

		result, err := cb.Execute(func() (interface{}, error) {
			resp, execErr := cfg.Client.Do(req)
			if execErr != nil {
				return nil, execErr
			}
			defer resp.Body.Close()

			body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxPayloadBytes+1))
			if readErr != nil {
				return nil, readErr
			}

			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				return nil, &statusError{code: resp.StatusCode}
			}
			if len(body) > maxPayloadBytes {
				return response{status: resp.StatusCode, oversized: true}, nil
			}
			return response{status: resp.StatusCode, body: body}, nil
		})

		if err == nil {
			resp, ok := result.(response)
			if !ok {
				return response{}, fmt.Errorf("unexpected result type from circuit breaker")
			}
			return resp, nil
		}

		// If circuit is open, propagate immediately.
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return response{}, fmt.Errorf("%w: %v", errCircuitOpen, err)
		}

		if attempt >= cfg.Backoff.MaxRetries {
			return response{}, err
		}

		delay := cfg.Backoff.InitialInterval * time.Duration(math.Pow(2, float64(attempt)))
		if delay > cfg.Backoff.MaxInterval && cfg.Backoff.MaxInterval > 0 {
			delay = cfg.Backoff.MaxInterval
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return response{}, ctx.Err()
		case <-timer.C:
		}

		attempt++
	}
}
