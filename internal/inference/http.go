package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"time"
)

type HTTPConfig struct {
	URL      string
	Model    string
	Timeout  time.Duration
	RetryMax int
}

func (c *HTTPConfig) applyDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = 12 * time.Second
	}
	if c.RetryMax < 0 {
		c.RetryMax = 0
	}
}

// HTTPBackend submits prompts to a decision endpoint speaking the
// {"decision": {...}} contract. Retries transient failures with capped
// exponential backoff; the per-call Timeout covers all attempts.
type HTTPBackend struct {
	cfg    HTTPConfig
	client *http.Client
	logger *log.Logger
}

func NewHTTPBackend(cfg HTTPConfig, logger *log.Logger) *HTTPBackend {
	cfg.applyDefaults()
	return &HTTPBackend{
		cfg:    cfg,
		client: &http.Client{},
		logger: logger,
	}
}

func (b *HTTPBackend) Submit(ctx context.Context, p PromptPayload) <-chan Result {
	out := make(chan Result, 1)
	go func() {
		defer close(out)
		start := time.Now()
		ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
		defer cancel()

		d, err := b.decide(ctx, p)
		latency := time.Since(start)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				err = fmt.Errorf("%w after %s", ErrTimeout, latency.Round(time.Millisecond))
			} else if !errors.Is(err, ErrTimeout) && !errors.Is(err, ErrBackend) {
				err = fmt.Errorf("%w: %v", ErrBackend, err)
			}
			out <- Result{Decision: IdleDecision("backend unavailable"), Err: err, Latency: latency}
			return
		}
		out <- Result{Decision: d, Latency: latency}
	}()
	return out
}

type decideRequest struct {
	Model   string `json:"model,omitempty"`
	AgentID string `json:"agent_id"`
	System  string `json:"system"`
	Context string `json:"context"`
	Trigger string `json:"trigger,omitempty"`
}

func (b *HTTPBackend) decide(ctx context.Context, p PromptPayload) (Decision, error) {
	body, err := json.Marshal(decideRequest{
		Model:   b.cfg.Model,
		AgentID: p.AgentID,
		System:  p.System,
		Context: p.Context,
		Trigger: p.Trigger,
	})
	if err != nil {
		return Decision{}, err
	}

	delay := 500 * time.Millisecond
	var lastErr error
	for attempt := 0; attempt <= b.cfg.RetryMax; attempt++ {
		if attempt > 0 {
			// Jittered backoff between attempts, bounded by ctx.
			sleep := delay + time.Duration(rand.Int63n(int64(delay/2)))
			select {
			case <-ctx.Done():
				return Decision{}, ctx.Err()
			case <-time.After(sleep):
			}
			if delay < 4*time.Second {
				delay *= 2
			}
		}

		d, retryable, err := b.once(ctx, body)
		if err == nil {
			return d, nil
		}
		lastErr = err
		if !retryable {
			return Decision{}, err
		}
		if b.logger != nil {
			b.logger.Printf("inference retry agent=%s attempt=%d err=%v", p.AgentID, attempt+1, err)
		}
	}
	return Decision{}, lastErr
}

func (b *HTTPBackend) once(ctx context.Context, body []byte) (Decision, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return Decision{}, false, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return Decision{}, false, ctx.Err()
		}
		return Decision{}, true, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Decision{}, true, err
	}
	switch {
	case resp.StatusCode == http.StatusOK:
		d, err := ParseDecision(raw)
		if err != nil {
			return Decision{}, false, fmt.Errorf("%w: %v", ErrBackend, err)
		}
		return d, false, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return Decision{}, true, fmt.Errorf("%w: status %d", ErrBackend, resp.StatusCode)
	default:
		return Decision{}, false, fmt.Errorf("%w: status %d", ErrBackend, resp.StatusCode)
	}
}
