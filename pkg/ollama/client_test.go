package ollama_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/garnizeh/contentcrm/pkg/ollama"
)

func newTestClient(t *testing.T, h http.HandlerFunc, mod func(c *ollama.Config)) *ollama.Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	cfg := ollama.Config{BaseURL: srv.URL, Timeout: 2 * time.Second}
	if mod != nil {
		mod(&cfg)
	}
	client, err := ollama.NewClient(cfg, srv.Client())
	if err != nil {
		t.Fatalf("NewClient error: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestClient_ListModelsAndHealth(t *testing.T) {
	tests := []struct {
		name      string
		models    []map[string]any
		wantNames int
		healthy   bool
	}{
		{"one model", []map[string]any{{"name": "llama3:latest", "model": "llama3:latest"}}, 1, true},
		{"no models", []map[string]any{}, 0, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				if r.Method == http.MethodGet && r.URL.Path == "/api/tags" {
					writeJSON(w, map[string]any{"models": tc.models})
					return
				}
				http.NotFound(w, r)
			}, nil)

			ctx := context.Background()
			models, err := client.ListModels(ctx)
			if err != nil {
				t.Fatalf("ListModels failed: %v", err)
			}
			if len(models) != tc.wantNames {
				t.Fatalf("unexpected models: %#v", models)
			}
			if tc.wantNames > 0 && models[0].Name != "llama3:latest" {
				t.Fatalf("unexpected model name %q", models[0].Name)
			}

			if ok, err := client.HasModel(ctx, "llama3"); err != nil || ok != tc.healthy {
				t.Fatalf("HasModel(llama3) = %v, %v", ok, err)
			}

			err = client.Health(ctx)
			if tc.healthy && err != nil {
				t.Fatalf("Health failed: %v", err)
			}
			if !tc.healthy && err == nil {
				t.Fatalf("expected Health to fail")
			}
		})
	}
}

func TestClient_Generate(t *testing.T) {
	var got map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/generate" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		writeJSON(w, map[string]any{"model": "m", "response": `{"summary":"short"}`, "done": true})
	}, nil)

	res, err := client.GenerateJSON(context.Background(), "m", "summarise this")
	if err != nil {
		t.Fatalf("GenerateJSON failed: %v", err)
	}
	if res.Text != `{"summary":"short"}` {
		t.Fatalf("unexpected text %q", res.Text)
	}
	if _, ok := res.Meta["latency_ms"]; !ok {
		t.Fatalf("expected latency_ms in meta")
	}
	if got["stream"] != false {
		t.Fatalf("expected stream=false in request, got %v", got["stream"])
	}
	if got["format"] != "json" {
		t.Fatalf("expected format=json in request, got %v", got["format"])
	}
}

func TestClient_Generate_ConcatenatesChunks(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-ndjson")
		enc := json.NewEncoder(w)
		_ = enc.Encode(map[string]any{"response": "one ", "done": false})
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		_ = enc.Encode(map[string]any{"response": "final", "done": true})
	}, nil)

	res, err := client.Generate(context.Background(), "m", "p")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if res.Text != "one final" {
		t.Fatalf("unexpected text %q", res.Text)
	}
}

func TestClient_Generate_Failures(t *testing.T) {
	tests := []struct {
		name string
		h    http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "server error", http.StatusInternalServerError)
		}},
		{"malformed json", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{ this is : not json `))
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestClient(t, tc.h, nil)
			if _, err := client.Generate(context.Background(), "m", "p"); err == nil {
				t.Fatalf("expected Generate to fail")
			}
		})
	}
}

func TestClient_Generate_RetriesThenSucceeds(t *testing.T) {
	var attempts int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) == 1 {
			http.Error(w, "temporary", http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]any{"response": "ok", "done": true})
	}, func(c *ollama.Config) {
		c.Retries = 2
		c.Backoff = 10 * time.Millisecond
		c.CircuitFailureThreshold = 10
	})

	res, err := client.Generate(context.Background(), "m", "p")
	if err != nil {
		t.Fatalf("Generate expected success after retry, got error: %v", err)
	}
	if res.Text != "ok" {
		t.Fatalf("unexpected text %q", res.Text)
	}
	if n := atomic.LoadInt32(&attempts); n != 2 {
		t.Fatalf("expected 2 attempts, got %d", n)
	}
}

func TestClient_Generate_BackoffHonoursContext(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}, func(c *ollama.Config) {
		c.Retries = 5
		c.Backoff = time.Minute
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := client.Generate(ctx, "m", "p")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Fatalf("backoff ignored the context")
	}
}

func TestClient_CircuitBreaker_Opens(t *testing.T) {
	var attempts int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		http.Error(w, "permanent", http.StatusInternalServerError)
	}, func(c *ollama.Config) {
		c.Backoff = time.Millisecond
		c.CircuitFailureThreshold = 2
		c.CircuitReset = time.Minute
	})

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if _, err := client.Generate(ctx, "m", "p"); err == nil || errors.Is(err, ollama.ErrCircuitOpen) {
			t.Fatalf("attempt %d: expected a plain failure, got %v", i+1, err)
		}
	}
	if _, err := client.Generate(ctx, "m", "p"); !errors.Is(err, ollama.ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if n := atomic.LoadInt32(&attempts); n != 2 {
		t.Fatalf("open circuit still reached the server: %d calls", n)
	}
}

func TestRenderTemplate(t *testing.T) {
	out, err := ollama.RenderTemplate("t", "Topic: {{.Topic}}", map[string]string{"Topic": "Solar"})
	if err != nil {
		t.Fatalf("RenderTemplate: %v", err)
	}
	if out != "Topic: Solar" {
		t.Fatalf("unexpected output %q", out)
	}

	if _, err := ollama.RenderTemplate("t", "{{.Missing}}", map[string]string{}); err == nil {
		t.Fatalf("expected missing key error")
	}
	if _, err := ollama.RenderTemplate("t", "{{.Broken", nil); err == nil || !strings.Contains(err.Error(), "parse template") {
		t.Fatalf("expected parse error, got %v", err)
	}
}
