package resilience

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Doer executes an outbound request. HTTPClient implements it.
type Doer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// HTTPClient adds per-attempt timeouts, retries with backoff and a circuit
// breaker around an http.Client. 5xx responses and transport errors count as
// failures; 4xx responses are returned to the caller untouched.
type HTTPClient struct {
	Client      *http.Client
	Breaker     *Breaker
	BaseBackoff time.Duration
	MaxAttempts int
	Jitter      float64
	Timeout     time.Duration
}

// Do executes req. Requests with a body are retried only when req.GetBody is set.
// The returned response body is fully buffered, so the per-attempt timeout does
// not cut it short.
func (cl HTTPClient) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	client := cl.Client
	if client == nil {
		client = http.DefaultClient
	}
	attempts := cl.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if cl.Breaker != nil && !cl.Breaker.Allow(ctx) {
			cl.count("rejected")
			lastErr = ErrOpenCircuit
			break
		}
		resp, err := cl.once(ctx, client, req, attempt)
		ok := err == nil && resp.StatusCode < http.StatusInternalServerError
		if cl.Breaker != nil {
			cl.Breaker.Report(ctx, ok)
		}
		if ok {
			cl.count("ok")
			return resp, nil
		}
		cl.count("error")
		if err != nil {
			lastErr = err
		} else {
			lastErr = fmt.Errorf("resilience: upstream status %s", resp.Status)
		}
		if attempt == attempts || errors.Is(err, context.Canceled) {
			break
		}
		timer := time.NewTimer(Backoff(cl.BaseBackoff, attempt, cl.Jitter))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	return nil, lastErr
}

func (cl HTTPClient) once(ctx context.Context, client *http.Client, req *http.Request, attempt int) (*http.Response, error) {
	var (
		callCtx context.Context
		cancel  context.CancelFunc
	)
	if cl.Timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, cl.Timeout)
	} else {
		callCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	attemptReq := req.Clone(callCtx)
	if attempt > 1 && req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		attemptReq.Body = body
	}
	resp, err := client.Do(attemptReq)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	buffered, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	resp.Body = io.NopCloser(bytes.NewReader(buffered))
	return resp, nil
}

func (cl HTTPClient) count(outcome string) {
	if FetchAttempts == nil {
		return
	}
	target := "default"
	if cl.Breaker != nil {
		target = cl.Breaker.target
	}
	FetchAttempts.WithLabelValues(target, outcome).Inc()
}
