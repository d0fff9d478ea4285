package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/garnizeh/contentcrm/api"
	"github.com/garnizeh/contentcrm/internal/config"
	"github.com/garnizeh/contentcrm/internal/dashboard"
	"github.com/garnizeh/contentcrm/internal/schema"
	"github.com/garnizeh/contentcrm/internal/users"
	"github.com/garnizeh/contentcrm/internal/workflow"
	"github.com/garnizeh/contentcrm/pkg/models"
	"github.com/garnizeh/contentcrm/pkg/repository/mock"
)

type recordingQueue struct {
	mu  sync.Mutex
	ids []int64
}

func (q *recordingQueue) EnqueueSummary(ctx context.Context, jobID int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ids = append(q.ids, jobID)
	return nil
}

type server struct {
	t      *testing.T
	router *mux.Router
	store  *mock.Store
	queue  *recordingQueue
	ids    map[string]int64
	tokens map[string]string
}

func newServer(t *testing.T) *server {
	t.Helper()
	store := mock.New()
	svc := users.NewService(store)
	svc.SetHashCost(bcrypt.MinCost)
	schemas, err := schema.New()
	require.NoError(t, err)

	s := &server{t: t, store: store, queue: &recordingQueue{}, ids: map[string]int64{}, tokens: map[string]string{}}
	cfg := &config.Config{JWTSecret: "route-secret", TokenDuration: time.Hour, AuthRate: config.RateConfig{RPS: 1000, Burst: 1000}}
	s.router = api.SetupRoutes(cfg, "test", "now", api.Services{
		Engine:    workflow.New(store, store, store),
		Jobs:      store,
		Users:     svc,
		Dashboard: dashboard.New(store, store),
		Schemas:   schemas,
		Summary:   s.queue,
	})

	for _, u := range []struct {
		name     string
		role     models.Role
		approved bool
	}{
		{"mara", models.RoleMarketing, true},
		{"alex", models.RoleAllocater, true},
		{"wendy", models.RoleWriter, true},
		{"adam", models.RoleAdmin, true},
		{"uma", models.RoleWriter, false},
	} {
		created, err := svc.Create(context.Background(), users.NewUser{Name: u.name, Email: u.name + "@example.com", Password: "password", Role: u.role, Approved: u.approved})
		require.NoError(t, err)
		s.ids[u.name] = created.ID
		if u.approved {
			s.tokens[u.name] = s.signin(u.name)
		}
	}
	return s
}

func (s *server) signin(name string) string {
	rec := s.do("", http.MethodPost, "/v1/auth/signin", map[string]string{"email": name + "@example.com", "password": "password"})
	require.Equal(s.t, http.StatusOK, rec.Code, rec.Body.String())
	var ar struct {
		Token string `json:"token"`
	}
	require.NoError(s.t, json.Unmarshal(rec.Body.Bytes(), &ar))
	return ar.Token
}

func (s *server) do(as, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else {
			require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if as != "" {
		req.Header.Set("Authorization", "Bearer "+s.tokens[as])
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

type resultBody struct {
	Job struct {
		models.Job
		Overdue bool `json:"overdue"`
	} `json:"job"`
	Events []workflow.Event `json:"events"`
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (s *server) drop() int64 {
	rec := s.do("mara", http.MethodPost, "/v1/jobs", map[string]any{
		"topic":           "Cloud cost report",
		"word_count":      1500,
		"value_cents":     12000,
		"strict_deadline": time.Now().Add(72 * time.Hour).UTC().Format(time.RFC3339),
	})
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[resultBody](s.t, rec).Job.ID
}

func TestRoutes_JobLifecycle(t *testing.T) {
	s := newServer(t)
	id := s.drop()
	assert.Equal(t, []int64{id}, s.queue.ids)

	rec := s.do("alex", http.MethodPost, fmt.Sprintf("/v1/jobs/%d/actions", id), map[string]any{
		"action": "allocate", "payload": map[string]any{"writer_id": s.ids["wendy"]},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[resultBody](t, rec)
	assert.Equal(t, models.StatusAllocated, res.Job.Status)
	assert.Equal(t, models.WriterOpen, res.Job.WriterStatus)
	require.NotEmpty(t, res.Events)

	rec = s.do("wendy", http.MethodGet, "/v1/notifications", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	inbox := decode[struct {
		Unread int64                 `json:"unread"`
		Items  []models.Notification `json:"items"`
	}](t, rec)
	assert.EqualValues(t, 1, inbox.Unread)
	require.Len(t, inbox.Items, 1)
	assert.True(t, strings.HasPrefix(inbox.Items[0].Message, "New job assigned: JOB-"))

	rec = s.do("wendy", http.MethodPost, fmt.Sprintf("/v1/notifications/%d/read", inbox.Items[0].ID), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = s.do("mara", http.MethodPost, fmt.Sprintf("/v1/notifications/%d/read", inbox.Items[0].ID), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "another user's notification")

	rec = s.do("wendy", http.MethodPost, fmt.Sprintf("/v1/jobs/%d/actions", id), map[string]any{"action": "start"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, models.WriterInProgress, decode[resultBody](t, rec).Job.WriterStatus)

	rec = s.do("wendy", http.MethodGet, "/v1/dashboard/writer", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	home := decode[dashboard.WriterHome](t, rec)
	require.NotNil(t, home.Current)
	assert.Equal(t, id, home.Current.ID)

	rec = s.do("mara", http.MethodGet, fmt.Sprintf("/v1/jobs/%d", id), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(decode[resultBody](t, rec).Job.Code, "JOB-"), "creator sees the full code")
}

func TestRoutes_Rejections(t *testing.T) {
	s := newServer(t)
	id := s.drop()
	actions := fmt.Sprintf("/v1/jobs/%d/actions", id)

	tests := []struct {
		name   string
		as     string
		method string
		path   string
		body   any
		want   int
	}{
		{"no token", "", http.MethodGet, "/v1/notifications", nil, http.StatusUnauthorized},
		{"drop by writer", "wendy", http.MethodPost, "/v1/jobs", map[string]any{"topic": "x", "strict_deadline": time.Now().Add(time.Hour).Format(time.RFC3339)}, http.StatusForbidden},
		{"drop without topic", "mara", http.MethodPost, "/v1/jobs", map[string]any{"strict_deadline": "2030-01-01T00:00:00Z"}, http.StatusUnprocessableEntity},
		{"drop in the past", "mara", http.MethodPost, "/v1/jobs", map[string]any{"topic": "x", "strict_deadline": "2001-01-01T00:00:00Z"}, http.StatusUnprocessableEntity},
		{"drop not json", "mara", http.MethodPost, "/v1/jobs", "{", http.StatusBadRequest},
		{"writer allocates", "wendy", http.MethodPost, actions, map[string]any{"action": "allocate", "payload": map[string]any{"writer_id": s.ids["wendy"]}}, http.StatusForbidden},
		{"unapproved writer", "alex", http.MethodPost, actions, map[string]any{"action": "allocate", "payload": map[string]any{"writer_id": s.ids["uma"]}}, http.StatusUnprocessableEntity},
		{"unknown action", "alex", http.MethodPost, actions, map[string]any{"action": "publish"}, http.StatusUnprocessableEntity},
		{"summarize over http", "alex", http.MethodPost, actions, map[string]any{"action": "summarize", "payload": map[string]any{"summary": "x"}}, http.StatusUnprocessableEntity},
		{"submit before allocation", "wendy", http.MethodPost, actions, map[string]any{"action": "submit"}, http.StatusForbidden},
		{"resume a drop", "alex", http.MethodPost, actions, map[string]any{"action": "resume"}, http.StatusConflict},
		{"missing job", "alex", http.MethodPost, "/v1/jobs/9999/actions", map[string]any{"action": "hold"}, http.StatusNotFound},
		{"get missing job", "alex", http.MethodGet, "/v1/jobs/9999", nil, http.StatusNotFound},
		{"writer dashboard for marketing", "mara", http.MethodGet, "/v1/dashboard/writer", nil, http.StatusForbidden},
		{"pending users for writer", "wendy", http.MethodGet, "/v1/users/pending", nil, http.StatusForbidden},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := s.do(tc.as, tc.method, tc.path, tc.body)
			assert.Equal(t, tc.want, rec.Code, rec.Body.String())
		})
	}

	job, err := s.store.GetJob(context.Background(), id)
	require.NoError(t, err)
	assert.EqualValues(t, 1, job.Version, "rejections leave the job untouched")
}

func TestRoutes_UserAdministration(t *testing.T) {
	s := newServer(t)

	rec := s.do("adam", http.MethodGet, "/v1/users/pending", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	pending := decode[[]models.User](t, rec)
	require.Len(t, pending, 1)
	assert.Equal(t, s.ids["uma"], pending[0].ID)

	rec = s.do("", http.MethodPost, "/v1/auth/signin", map[string]string{"email": "uma@example.com", "password": "password"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do("adam", http.MethodPost, fmt.Sprintf("/v1/users/%d/approve", s.ids["uma"]), nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	s.tokens["uma"] = s.signin("uma")

	rec = s.do("adam", http.MethodPut, fmt.Sprintf("/v1/users/%d/role", s.ids["uma"]), map[string]string{"role": "process_team"})
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = s.do("adam", http.MethodPut, fmt.Sprintf("/v1/users/%d/role", s.ids["uma"]), map[string]string{"role": "boss"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = s.do("adam", http.MethodGet, "/v1/users?role=process_team", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]models.User](t, rec), 1)

	rec = s.do("adam", http.MethodPost, "/v1/users", map[string]any{"name": "Pat", "email": "pat@example.com", "password": "password", "role": "process_team", "approved": true})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "password_hash")

	rec = s.do("adam", http.MethodDelete, fmt.Sprintf("/v1/users/%d", s.ids["adam"]), nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec = s.do("adam", http.MethodDelete, fmt.Sprintf("/v1/users/%d", s.ids["uma"]), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = s.do("adam", http.MethodDelete, fmt.Sprintf("/v1/users/%d", s.ids["uma"]), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do("adam", http.MethodGet, "/v1/dashboard/anomalies", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestRoutes_OpenEndpoints(t *testing.T) {
	s := newServer(t)
	rec := s.do("", http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = s.do("", http.MethodGet, "/version", nil)
	assert.JSONEq(t, `{"version":"test","buildTime":"now","service":"contentcrm"}`, rec.Body.String())

	rec = s.do("", http.MethodPost, "/v1/auth/signup", map[string]string{"name": "New", "email": "new@example.com", "password": "password"})
	assert.Equal(t, http.StatusCreated, rec.Code)
}
