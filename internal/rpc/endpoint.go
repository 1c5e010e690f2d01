package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/fueltron/gasstation/internal/config"
)

// Endpoint is a single TRON HTTP node (full-node or solidity-node),
// guarded by its own circuit breaker and rate limiter, matching the
// per-provider isolation the balance scanner uses across chains.
type Endpoint struct {
	Name    string
	BaseURL string
	APIKey  string

	client  *http.Client
	breaker *circuitBreaker
	limiter *rateLimiter
}

// NewEndpoint constructs an endpoint. rps <= 0 defaults to 1 request/sec.
func NewEndpoint(name, baseURL, apiKey string, rps int) *Endpoint {
	return &Endpoint{
		Name:    name,
		BaseURL: baseURL,
		APIKey:  apiKey,
		client: &http.Client{
			Timeout: config.RPCCallTimeout,
			Transport: &http.Transport{
				MaxConnsPerHost:     config.HTTPMaxConnsPerHost,
				MaxIdleConnsPerHost: config.HTTPMaxIdleConns,
			},
		},
		breaker: newCircuitBreaker(name, config.CircuitBreakerThreshold, config.CircuitBreakerCooldown),
		limiter: newRateLimiter(name, rps),
	}
}

// Allow reports whether this endpoint's circuit breaker currently permits a
// call.
func (e *Endpoint) Allow() bool { return e.breaker.Allow() }

// RecordSuccess feeds a successful call to the endpoint's circuit breaker.
func (e *Endpoint) RecordSuccess() { e.breaker.RecordSuccess() }

// RecordFailure feeds a failed call to the endpoint's circuit breaker. err
// is classified via config.IsTransient/config.ErrNetworkTimeout, the same
// criteria call() uses to decide whether to fail over to the next
// endpoint, so a non-transient rejection never quarantines a live node.
func (e *Endpoint) RecordFailure(err error) {
	e.breaker.RecordFailure(config.IsTransient(err) || errors.Is(err, config.ErrNetworkTimeout))
}

func (e *Endpoint) CircuitState() string { return e.breaker.State() }

// Post sends a JSON POST to path relative to BaseURL and decodes the
// response into out. Retries transient failures with exponential backoff up
// to config.RPCRetries attempts.
func (e *Endpoint) Post(ctx context.Context, path string, body any, out any) error {
	if err := e.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait: %w", err)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request body: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < config.RPCRetries; attempt++ {
		if attempt > 0 {
			backoff := config.RPCBackoffBase * time.Duration(1<<uint(attempt-1))
			slog.Debug("retrying rpc call", "endpoint", e.Name, "path", path, "attempt", attempt, "backoff", backoff)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := e.doOnce(ctx, path, payload, out)
		if err == nil {
			return nil
		}
		lastErr = err
		if !config.IsTransient(err) {
			return err
		}
	}

	return fmt.Errorf("%w: %s %s: %v", config.ErrNetworkTimeout, e.Name, path, lastErr)
}

func (e *Endpoint) doOnce(ctx context.Context, path string, payload []byte, out any) error {
	url := e.BaseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.APIKey != "" {
		req.Header.Set("TRON-PRO-API-KEY", e.APIKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return config.NewTransientError(fmt.Errorf("execute request to %s: %w", url, err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return config.NewTransientError(fmt.Errorf("read response body: %w", err))
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return config.NewTransientError(fmt.Errorf("http %d from %s: %s", resp.StatusCode, url, respBody))
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("http %d from %s: %s", resp.StatusCode, url, respBody)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response from %s: %w", url, err)
	}
	return nil
}
