package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

// retryPolicy bounds how often and how long a request is retried.
type retryPolicy struct {
	attempts  int
	baseDelay time.Duration
	maxDelay  time.Duration
}

func newRetryPolicy(attempts int, baseDelay, maxDelay time.Duration, defAttempts int, defBase, defMax time.Duration) retryPolicy {
	if attempts <= 0 {
		attempts = defAttempts
	}
	if baseDelay <= 0 {
		baseDelay = defBase
	}
	if maxDelay <= 0 {
		maxDelay = defMax
	}
	return retryPolicy{attempts: attempts, baseDelay: baseDelay, maxDelay: maxDelay}
}

// transport posts JSON and retries 429, 5xx and transient network errors.
// When host is set, connection failures surface as UnreachableError.
type transport struct {
	client *http.Client
	retry  retryPolicy
	host   string
}

func newTransport(timeout time.Duration, retry retryPolicy, host string) transport {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return transport{client: &http.Client{Timeout: timeout}, retry: retry, host: host}
}

// post returns the first 2xx response; the caller closes its body.
func (t transport) post(ctx context.Context, endpoint string, header http.Header, payload []byte) (*http.Response, error) {
	log := zerolog.Ctx(ctx)
	backoff := t.retry.baseDelay
	var lastErr error
	for attempt := 1; attempt <= t.retry.attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		for k, vals := range header {
			for _, v := range vals {
				req.Header.Add(k, v)
			}
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := t.client.Do(req)
		if err != nil {
			if isRetryableNetErr(err) && attempt < t.retry.attempts {
				lastErr = err
				wait := t.capped(withJitter(backoff))
				log.Debug().Err(err).Int("attempt", attempt).Dur("wait", wait).Msg("retrying after network error")
				if err := sleepCtx(ctx, wait); err != nil {
					return nil, err
				}
				backoff *= 2
				continue
			}
			if t.host != "" {
				return nil, &UnreachableError{Host: t.host, Err: err}
			}
			return nil, fmt.Errorf("http request: %w", err)
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp, nil
		}

		body, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		resp.Body.Close()
		apiErr := parseAPIError(resp.StatusCode, body)
		apiErr.RequestID = extractRequestID(resp)
		classified := classifyAPIError(apiErr, resp)

		retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		if !retryable || attempt >= t.retry.attempts {
			return nil, classified
		}
		lastErr = classified
		var wait time.Duration
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if secs, err := parseRetryAfterSeconds(ra); err == nil && secs > 0 {
				wait = time.Duration(secs) * time.Second
			}
		}
		if wait == 0 {
			wait = t.capped(withJitter(backoff))
			backoff *= 2
		}
		log.Debug().Int("status", resp.StatusCode).Int("attempt", attempt).Dur("wait", wait).Msg("retrying after provider error")
		if err := sleepCtx(ctx, wait); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

func (t transport) capped(d time.Duration) time.Duration {
	if t.retry.maxDelay > 0 && d > t.retry.maxDelay {
		return t.retry.maxDelay
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// parseAPIError reads the error shapes used by OpenRouter, Anthropic and Ollama.
func parseAPIError(status int, body []byte) *APIError {
	var raw map[string]any
	_ = json.Unmarshal(body, &raw)
	apiErr := &APIError{StatusCode: status, Raw: raw}
	switch e := raw["error"].(type) {
	case map[string]any:
		if msg, ok := e["message"].(string); ok {
			apiErr.Message = msg
		}
		if code, ok := e["code"].(string); ok {
			apiErr.Code = code
		} else if typ, ok := e["type"].(string); ok {
			apiErr.Code = typ
		}
	case string:
		apiErr.Message = e
	}
	if apiErr.Message == "" {
		if msg, ok := raw["message"].(string); ok {
			apiErr.Message = msg
		}
	}
	if apiErr.Code == "" {
		if code, ok := raw["code"].(string); ok {
			apiErr.Code = code
		}
	}
	return apiErr
}

func isRetryableNetErr(err error) bool {
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return true
	}
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}

// parseRetryAfterSeconds accepts delta-seconds or an HTTP date.
func parseRetryAfterSeconds(v string) (int, error) {
	if s, err := strconv.Atoi(v); err == nil {
		return s, nil
	}
	if t, err := http.ParseTime(v); err == nil {
		d := time.Until(t)
		if d < 0 {
			d = 0
		}
		return int(d.Seconds()), nil
	}
	return 0, fmt.Errorf("invalid Retry-After: %q", v)
}

func extractRequestID(resp *http.Response) string {
	if resp == nil {
		return ""
	}
	for _, k := range []string{"X-Request-Id", "Request-Id", "Openrouter-Request-Id", "X-Amzn-Requestid"} {
		if v := resp.Header.Get(k); v != "" {
			return v
		}
	}
	return ""
}

// withJitter spreads d by ±20%.
func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 500 * time.Millisecond
	}
	out := time.Duration(float64(d) * (0.8 + rand.Float64()*0.4))
	if out <= 0 {
		return d
	}
	return out
}
