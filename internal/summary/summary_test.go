package summary_test

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	migrations "github.com/garnizeh/contentcrm/db"
	"github.com/garnizeh/contentcrm/internal/config"
	"github.com/garnizeh/contentcrm/internal/db"
	"github.com/garnizeh/contentcrm/internal/jobs"
	"github.com/garnizeh/contentcrm/internal/schema"
	"github.com/garnizeh/contentcrm/internal/summary"
	"github.com/garnizeh/contentcrm/internal/workflow"
	"github.com/garnizeh/contentcrm/pkg/models"
	"github.com/garnizeh/contentcrm/pkg/ollama"
	"github.com/garnizeh/contentcrm/pkg/repository/mock"
)

type fakeGenerator struct {
	reply   string
	err     error
	prompts []string
	model   string
}

func (g *fakeGenerator) GenerateJSON(ctx context.Context, model, prompt string) (ollama.GenerateResult, error) {
	g.model = model
	g.prompts = append(g.prompts, prompt)
	if g.err != nil {
		return ollama.GenerateResult{}, g.err
	}
	return ollama.GenerateResult{Text: g.reply}, nil
}

func newSummarizer(t *testing.T, gen summary.Generator, tmpl string) *summary.Summarizer {
	t.Helper()
	reg, err := schema.New()
	require.NoError(t, err)
	s, err := summary.New(gen, reg, config.SummaryConfig{Model: "llama3", Template: tmpl, Timeout: time.Second}, nil)
	require.NoError(t, err)
	return s
}

func sampleJob() *models.Job {
	return &models.Job{ID: 7, Code: "JOB-ABCD1234", Topic: "Solar microgrids", WordCount: 2000, WritingStyle: "report", Instruction: "Compare three rural deployments."}
}

func TestParseResponse(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr error
	}{
		{"plain", `{"summary":"ok"}`, "ok", nil},
		{"fenced", "Here you go:\n```json\n{\"summary\":\"fenced\",\"keywords\":[\"a\"]}\n```", "fenced", nil},
		{"empty", "   ", "", summary.ErrEmptyResponse},
		{"prose", "I cannot help with that.", "", summary.ErrNoJSON},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r, err := summary.ParseResponse(tc.in)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, r.Summary)
			assert.Equal(t, tc.in, r.Raw)
		})
	}

	_, err := summary.ParseResponse(`{"summary": }`)
	assert.Error(t, err)
}

func TestAssessConfidence(t *testing.T) {
	assert.Equal(t, 0.0, summary.AssessConfidence(&summary.Response{}))
	assert.Equal(t, 0.6, summary.AssessConfidence(&summary.Response{Summary: "x"}))
	assert.InDelta(t, 1.0, summary.AssessConfidence(&summary.Response{Summary: "x", Keywords: []string{"k"}}), 1e-9)
}

func TestNew_RejectsBrokenTemplate(t *testing.T) {
	reg, err := schema.New()
	require.NoError(t, err)
	_, err = summary.New(&fakeGenerator{}, reg, config.SummaryConfig{Template: "{{.Nope}}"}, nil)
	assert.Error(t, err)
	_, err = summary.New(nil, reg, config.SummaryConfig{}, nil)
	assert.Error(t, err)
}

func TestSummarize(t *testing.T) {
	gen := &fakeGenerator{reply: `{"summary":"  A comparison of rural solar microgrids.  ","keywords":["solar","grid"]}`}
	s := newSummarizer(t, gen, "")

	r, err := s.Summarize(context.Background(), sampleJob())
	require.NoError(t, err)
	assert.Equal(t, "A comparison of rural solar microgrids.", r.Summary)
	require.NotNil(t, r.Confidence)
	assert.InDelta(t, 1.0, *r.Confidence, 1e-9)

	assert.Equal(t, "llama3", gen.model)
	require.Len(t, gen.prompts, 1)
	assert.Contains(t, gen.prompts[0], "Topic: Solar microgrids")
	assert.Contains(t, gen.prompts[0], "Style: report")
	assert.NotContains(t, gen.prompts[0], "Referencing:")
}

func TestSummarize_Failures(t *testing.T) {
	boom := errors.New("connection refused")
	tests := []struct {
		name  string
		gen   *fakeGenerator
		check func(t *testing.T, err error)
	}{
		{"generator error", &fakeGenerator{err: boom}, func(t *testing.T, err error) { assert.ErrorIs(t, err, boom) }},
		{"no json", &fakeGenerator{reply: "sorry"}, func(t *testing.T, err error) { assert.ErrorIs(t, err, summary.ErrNoJSON) }},
		{"schema violation", &fakeGenerator{reply: `{"summary":"ok","confidence":3}`}, func(t *testing.T, err error) {
			var ve *schema.ValidationError
			assert.ErrorAs(t, err, &ve)
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := newSummarizer(t, tc.gen, "").Summarize(context.Background(), sampleJob())
			require.Error(t, err)
			tc.check(t, err)
		})
	}
}

func dropJob(t *testing.T, store *mock.Store, engine *workflow.Engine) *models.Job {
	t.Helper()
	ctx := context.Background()
	id, err := store.CreateUser(ctx, &models.User{Email: "m@example.com", Name: "m", Role: models.RoleMarketing, Approved: true})
	require.NoError(t, err)
	res, err := engine.Drop(ctx, workflow.DropRequest{
		Actor:          workflow.Actor{UserID: id, Role: models.RoleMarketing},
		Topic:          "Solar microgrids",
		WordCount:      2000,
		StrictDeadline: time.Now().Add(48 * time.Hour),
	})
	require.NoError(t, err)
	return res.Job
}

func task(t *testing.T, jobID int64) *jobs.Task {
	b, err := json.Marshal(summary.TaskPayload{JobID: jobID})
	require.NoError(t, err)
	return &jobs.Task{Type: summary.TaskType, Payload: b}
}

func TestProcessor_Handle(t *testing.T) {
	ctx := context.Background()
	store := mock.New()
	engine := workflow.New(store, store, store)
	job := dropJob(t, store, engine)

	gen := &fakeGenerator{reply: `{"summary":"Rural microgrid comparison.","confidence":0.9}`}
	p := summary.NewProcessor(newSummarizer(t, gen, ""), store, engine, nil)

	require.NoError(t, p.Handle(ctx, task(t, job.ID)))
	got, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, "Rural microgrid comparison.", got.Summary)
	assert.Equal(t, job.Version+1, got.Version)
	assert.Equal(t, job.Status, got.Status)

	// already summarised: no second model call
	require.NoError(t, p.Handle(ctx, task(t, job.ID)))
	assert.Len(t, gen.prompts, 1)

	// job gone
	require.NoError(t, p.Handle(ctx, task(t, 999)))

	bad := &jobs.Task{Type: summary.TaskType, Payload: json.RawMessage(`{`)}
	assert.Error(t, p.Handle(ctx, bad))
}

func TestProcessor_FailureLeavesJobUntouched(t *testing.T) {
	ctx := context.Background()
	store := mock.New()
	engine := workflow.New(store, store, store)
	job := dropJob(t, store, engine)

	p := summary.NewProcessor(newSummarizer(t, &fakeGenerator{reply: "no idea"}, ""), store, engine, nil)
	err := p.Handle(ctx, task(t, job.ID))
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "parse response"))

	got, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.Version, got.Version)
	assert.Empty(t, got.Summary)
}

func TestQueue_EnqueueSummary(t *testing.T) {
	ctx := context.Background()
	d, err := db.New(ctx, filepath.Join(t.TempDir(), "q.db"), nil)
	require.NoError(t, err)
	defer d.Close()
	require.NoError(t, db.Migrate(ctx, d, migrations.Migrations))

	repo := jobs.NewRepository(d)
	require.NoError(t, summary.NewQueue(repo, 2).EnqueueSummary(ctx, 42))

	got, err := repo.Claim(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, summary.TaskType, got.Type)
	assert.Equal(t, 2, got.MaxAttempts)
	assert.JSONEq(t, `{"job_id":42}`, string(got.Payload))
}
