package providers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/djc-jpg/travel-planning-agent/core"
)

// BaseClient carries the HTTP plumbing shared by the real providers: a
// timeout-bound client and exponential-backoff retry on transient failures.
type BaseClient struct {
	HTTPClient *http.Client
	Logger     core.Logger

	MaxRetries int
	RetryDelay time.Duration
}

// NewBaseClient creates a base client with defaults.
func NewBaseClient(timeout time.Duration, logger core.Logger) *BaseClient {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &BaseClient{
		HTTPClient: &http.Client{Timeout: timeout},
		Logger:     logger,
		MaxRetries: 2,
		RetryDelay: 200 * time.Millisecond,
	}
}

// ExecuteWithRetry performs an HTTP request with exponential backoff. Client
// errors other than 429 return immediately; network errors, 429 and 5xx are
// retried until MaxRetries is exhausted.
func (b *BaseClient) ExecuteWithRetry(ctx context.Context, req *http.Request) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= b.MaxRetries; attempt++ {
		reqClone := req.Clone(ctx)
		resp, err := b.HTTPClient.Do(reqClone)

		if err == nil && resp.StatusCode < 400 {
			if attempt > 0 {
				b.Logger.Info("Provider request succeeded after retry", map[string]interface{}{
					"operation":          "provider_request_recovery",
					"successful_attempt": attempt + 1,
				})
			}
			return resp, nil
		}

		if err == nil && resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return resp, nil
		}

		if err != nil {
			lastErr = err
		} else {
			lastErr = fmt.Errorf("server error: status %d", resp.StatusCode)
			_ = resp.Body.Close()
		}

		if attempt < b.MaxRetries {
			delay := b.RetryDelay * time.Duration(1<<uint(attempt))
			b.Logger.Warn("Provider request failed, retrying", map[string]interface{}{
				"operation":      "provider_request_retry",
				"attempt":        attempt + 1,
				"max_retries":    b.MaxRetries,
				"retry_delay_ms": delay.Milliseconds(),
				"error":          lastErr.Error(),
			})
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, &core.PlanError{
					Op:   "provider.request",
					Code: core.CodeDeadlineExceeded,
					Err:  ctx.Err(),
				}
			}
		}
	}

	return nil, &core.PlanError{
		Op:      "provider.request",
		Code:    core.CodeProviderUnavailable,
		Message: fmt.Sprintf("request failed after %d retries", b.MaxRetries),
		Err:     lastErr,
	}
}

// HandleError maps provider HTTP errors onto the error taxonomy.
func (b *BaseClient) HandleError(statusCode int, body []byte, provider string) error {
	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return &core.PlanError{
			Op:      provider + ".request",
			Code:    core.CodeProviderUnavailable,
			Message: "invalid or missing API key",
			Err:     core.ErrUnauthorized,
		}
	case http.StatusTooManyRequests:
		return &core.PlanError{
			Op:      provider + ".request",
			Code:    core.CodeProviderUnavailable,
			Message: "provider rate limit exceeded",
			Err:     core.ErrRateLimited,
		}
	default:
		return &core.PlanError{
			Op:      provider + ".request",
			Code:    core.CodeProviderUnavailable,
			Message: fmt.Sprintf("status %d: %s", statusCode, truncateForLog(string(body), 200)),
			Err:     core.ErrProviderResponse,
		}
	}
}

func truncateForLog(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
