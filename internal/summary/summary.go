// Package summary asks a local Ollama model for a short brief of a dropped job
// and records it through the workflow engine.
package summary

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/garnizeh/contentcrm/internal/config"
	"github.com/garnizeh/contentcrm/internal/schema"
	"github.com/garnizeh/contentcrm/pkg/models"
	"github.com/garnizeh/contentcrm/pkg/ollama"
)

// DefaultTemplate is used when summary.template is empty.
const DefaultTemplate = `You write briefs for a content agency.
Summarise the writing job below for the writer in at most three sentences.
Answer with a single JSON object: {"summary": string, "keywords": [string], "confidence": number between 0 and 1}.

Topic: {{.Topic}}
Words: {{.WordCount}}
{{- if .ReferencingStyle}}
Referencing: {{.ReferencingStyle}}{{end}}
{{- if .WritingStyle}}
Style: {{.WritingStyle}}{{end}}
Instructions:
{{.Instruction}}
`

var (
	ErrEmptyResponse = errors.New("summary: empty response")
	ErrNoJSON        = errors.New("summary: no JSON object found in response")
)

// Response is the structured reply expected from the model.
type Response struct {
	Summary    string   `json:"summary"`
	Keywords   []string `json:"keywords"`
	Confidence *float64 `json:"confidence,omitempty"`

	// Raw keeps the original model output for logging.
	Raw string `json:"-"`
}

// Generator is the part of the Ollama client the summarizer needs.
type Generator interface {
	GenerateJSON(ctx context.Context, model, prompt string) (ollama.GenerateResult, error)
}

type Summarizer struct {
	gen     Generator
	schemas *schema.Registry
	cfg     config.SummaryConfig
	logger  *slog.Logger
}

func New(gen Generator, schemas *schema.Registry, cfg config.SummaryConfig, logger *slog.Logger) (*Summarizer, error) {
	if gen == nil {
		return nil, fmt.Errorf("generator is required")
	}
	if schemas == nil {
		return nil, fmt.Errorf("schema registry is required")
	}
	if _, ok := schemas.Get(schema.Summary); !ok {
		return nil, fmt.Errorf("%w: %s", schema.ErrUnknownSchema, schema.Summary)
	}
	if cfg.Template == "" {
		cfg.Template = DefaultTemplate
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	// fail fast on a broken template instead of on the first job
	if _, err := ollama.RenderTemplate("summary", cfg.Template, &models.Job{}); err != nil {
		return nil, err
	}
	return &Summarizer{gen: gen, schemas: schemas, cfg: cfg, logger: logger}, nil
}

// Summarize renders the prompt for job, calls the model and returns the
// validated reply.
func (s *Summarizer) Summarize(ctx context.Context, job *models.Job) (*Response, error) {
	prompt, err := ollama.RenderTemplate("summary", s.cfg.Template, job)
	if err != nil {
		return nil, err
	}

	ctxReq, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	out, err := s.gen.GenerateJSON(ctxReq, s.cfg.Model, prompt)
	if err != nil {
		return nil, fmt.Errorf("generate: %w", err)
	}

	resp, err := ParseResponse(out.Text)
	if err != nil {
		s.logger.Warn("summary parse failed", "job_id", job.ID, "err", err, "raw", out.Text)
		return nil, fmt.Errorf("parse response: %w", err)
	}

	if err := s.schemas.Validate(ctxReq, schema.Summary, []byte(extractJSON(out.Text))); err != nil {
		return nil, fmt.Errorf("validate response: %w", err)
	}

	if resp.Confidence == nil {
		c := AssessConfidence(resp)
		resp.Confidence = &c
	}
	if resp.Keywords == nil {
		resp.Keywords = []string{}
	}
	resp.Summary = strings.TrimSpace(resp.Summary)
	return resp, nil
}

// ParseResponse extracts a JSON object from arbitrary model output and unmarshals it.
func ParseResponse(s string) (*Response, error) {
	if strings.TrimSpace(s) == "" {
		return nil, ErrEmptyResponse
	}
	j := extractJSON(s)
	if j == "" {
		return nil, ErrNoJSON
	}
	var r Response
	if err := json.Unmarshal([]byte(j), &r); err != nil {
		return nil, fmt.Errorf("json unmarshal: %w", err)
	}
	r.Raw = s
	return &r, nil
}

// extractJSON returns the substring from the first '{' to the last '}' in the input.
// Models often wrap JSON in prose or markdown fences.
func extractJSON(s string) string {
	first := strings.Index(s, "{")
	last := strings.LastIndex(s, "}")
	if first == -1 || last == -1 || last < first {
		return ""
	}
	return s[first : last+1]
}

// AssessConfidence scores a reply that carries no confidence of its own.
func AssessConfidence(r *Response) float64 {
	score := 0.0
	if strings.TrimSpace(r.Summary) != "" {
		score += 0.6
	}
	if len(r.Keywords) > 0 {
		score += 0.4
	}
	return score
}
