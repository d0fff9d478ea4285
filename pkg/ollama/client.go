package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ollama/ollama/api"
)

// Client talks to an Ollama server with per-call timeouts, retries and a
// circuit breaker shared by every call.
type Client struct {
	api     *api.Client
	cfg     Config
	httpc   *http.Client
	breaker *breaker
	closed  atomic.Bool
}

// GenerateResult is the collected model reply.
type GenerateResult struct {
	Text string          `json:"text"`
	Raw  json.RawMessage `json:"raw"`
	Meta map[string]any  `json:"meta,omitempty"`
}

// ModelInfo names a model pulled on the server.
type ModelInfo struct {
	Name string          `json:"name"`
	Raw  json.RawMessage `json:"-"`
}

var logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))

// SetLogger replaces the package logger. Passing nil is a no-op.
func SetLogger(l *slog.Logger) {
	if l != nil {
		logger = l
	}
}

func NewClient(cfg Config, httpClient *http.Client) (*Client, error) {
	u, err := url.ParseRequestURI(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	logger.Debug("ollama: client created", slog.String("base_url", cfg.BaseURL), slog.Duration("timeout", cfg.Timeout))
	return &Client{
		api:     api.NewClient(u, httpClient),
		cfg:     cfg,
		httpc:   httpClient,
		breaker: newBreaker(cfg.CircuitFailureThreshold, cfg.CircuitReset),
	}, nil
}

// NewDefaultClient uses a pooled transport suited to a long-running server.
func NewDefaultClient(cfg Config) (*Client, error) {
	return NewClient(cfg, &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 15 * time.Second,
			}).DialContext,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          20,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: time.Second,
		},
	})
}

// Close drops idle connections. It is safe to call more than once.
func (c *Client) Close() error {
	if c == nil || !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	if tr, ok := c.httpc.Transport.(interface{ CloseIdleConnections() }); ok {
		tr.CloseIdleConnections()
	}
	return nil
}

// Health succeeds when the server answers and has at least one model pulled.
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	models, err := c.ListModels(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if len(models) == 0 {
		c.breaker.failure()
		return errors.New("health check failed: no models pulled")
	}
	return nil
}

func (c *Client) ListModels(ctx context.Context) ([]ModelInfo, error) {
	if err := c.breaker.allow(); err != nil {
		return nil, err
	}

	resp, err := c.api.List(ctx)
	if err != nil {
		c.breaker.failure()
		return nil, err
	}
	c.breaker.success()

	out := make([]ModelInfo, 0, len(resp.Models))
	for _, m := range resp.Models {
		raw, _ := json.Marshal(m)
		out = append(out, ModelInfo{Name: m.Name, Raw: raw})
	}
	return out, nil
}

// HasModel reports whether name is pulled on the server. A name without a
// tag matches its ":latest" variant.
func (c *Client) HasModel(ctx context.Context, name string) (bool, error) {
	models, err := c.ListModels(ctx)
	if err != nil {
		return false, err
	}
	want := canonicalModel(name)
	for _, m := range models {
		if canonicalModel(m.Name) == want {
			return true, nil
		}
	}
	return false, nil
}

func canonicalModel(name string) string {
	if !strings.Contains(name, ":") {
		return name + ":latest"
	}
	return name
}

// Generate sends a prompt and returns the concatenated response text.
func (c *Client) Generate(ctx context.Context, model, prompt string) (GenerateResult, error) {
	return c.generate(ctx, &api.GenerateRequest{Model: model, Prompt: prompt})
}

// GenerateJSON asks the model to answer with a single JSON document.
func (c *Client) GenerateJSON(ctx context.Context, model, prompt string) (GenerateResult, error) {
	return c.generate(ctx, &api.GenerateRequest{Model: model, Prompt: prompt, Format: json.RawMessage(`"json"`)})
}

func (c *Client) generate(ctx context.Context, req *api.GenerateRequest) (GenerateResult, error) {
	stream := false
	req.Stream = &stream

	var lastErr error
	for attempt := 0; attempt <= c.cfg.Retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return GenerateResult{}, ctx.Err()
			case <-time.After(c.cfg.Backoff * time.Duration(attempt)):
			}
		}
		if err := c.breaker.allow(); err != nil {
			return GenerateResult{}, err
		}

		res, err := c.generateOnce(ctx, req)
		if err == nil {
			c.breaker.success()
			return res, nil
		}
		lastErr = err
		c.breaker.failure()
		logger.Warn("ollama: generate attempt failed",
			slog.String("model", req.Model), slog.Int("attempt", attempt+1), slog.Any("err", err))
	}
	return GenerateResult{}, fmt.Errorf("generate failed after %d attempts: %w", c.cfg.Retries+1, lastErr)
}

func (c *Client) generateOnce(ctx context.Context, req *api.GenerateRequest) (GenerateResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	var text strings.Builder
	var last api.GenerateResponse
	start := time.Now()
	err := c.api.Generate(ctx, req, func(r api.GenerateResponse) error {
		text.WriteString(r.Response)
		last = r
		return nil
	})
	if err != nil {
		return GenerateResult{}, err
	}
	raw, _ := json.Marshal(last)
	return GenerateResult{
		Text: text.String(),
		Raw:  raw,
		Meta: map[string]any{"model": req.Model, "latency_ms": time.Since(start).Milliseconds()},
	}, nil
}
