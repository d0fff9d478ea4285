package dashboard

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/garnizeh/contentcrm/pkg/models"
	"github.com/garnizeh/contentcrm/pkg/repository/mock"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var now = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

func id(v int64) *int64 { return &v }

type seed struct {
	ctx   context.Context
	store *mock.Store
}

func newSeed(t *testing.T) *seed {
	t.Helper()
	return &seed{ctx: context.Background(), store: mock.New()}
}

func (s *seed) job(t *testing.T, code string, mod func(j *models.Job)) *models.Job {
	t.Helper()
	j := &models.Job{
		Code: code, CreatedBy: 1,
		Status: models.StatusDrop, WriterStatus: models.WriterPending,
		ProcessStatus: models.ProcessNotAssigned, DecorationStatus: models.DecorationPending,
		CreatedAt: now.Add(-24 * time.Hour), StrictDeadline: now.Add(48 * time.Hour), ValueCents: 1000,
	}
	if mod != nil {
		mod(j)
	}
	_, err := s.store.CreateJob(s.ctx, j)
	require.NoError(t, err)
	return j
}

func (s *seed) user(t *testing.T, email string, role models.Role, approved bool) int64 {
	t.Helper()
	uid, err := s.store.CreateUser(s.ctx, &models.User{Email: email, Role: role, Approved: approved})
	require.NoError(t, err)
	return uid
}

func codes(jobs []models.Job) []string {
	out := make([]string, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, j.Code)
	}
	return out
}

func TestWriterHome(t *testing.T) {
	s := newSeed(t)
	const w = int64(10)

	s.job(t, "JOB-OPEN", func(j *models.Job) {
		j.Status, j.WriterStatus, j.WriterID = models.StatusAllocated, models.WriterOpen, id(w)
	})
	s.job(t, "JOB-WORK", func(j *models.Job) {
		j.Status, j.WriterStatus, j.WriterID = models.StatusProcess, models.WriterInProgress, id(w)
		j.StrictDeadline = now.Add(5 * time.Minute)
		st := now.Add(-time.Hour)
		j.StartTime = &st
	})
	s.job(t, "JOB-SUBM", func(j *models.Job) {
		j.Status, j.WriterStatus, j.WriterID = models.StatusProcess, models.WriterClosed, id(w)
		j.StrictDeadline = now.Add(2 * time.Minute)
	})
	s.job(t, "JOB-DONE", func(j *models.Job) {
		j.Status, j.WriterStatus, j.WriterID = models.StatusCompleted, models.WriterClosed, id(w)
		j.StatusNote = "resolved earlier"
	})
	s.job(t, "JOB-QERY", func(j *models.Job) {
		j.Status, j.WriterStatus, j.WriterID = models.StatusQuery, models.WriterPending, id(w)
		j.StatusNote = "which sources?"
	})
	s.job(t, "JOB-ELSE", func(j *models.Job) {
		j.Status, j.WriterStatus, j.WriterID = models.StatusAllocated, models.WriterOpen, id(99)
	})

	h, err := New(s.store, s.store).WriterHome(s.ctx, w, now)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"JOB-OPEN", "JOB-WORK"}, codes(h.Open))
	assert.ElementsMatch(t, []string{"JOB-SUBM", "JOB-DONE"}, codes(h.Closed))
	assert.Equal(t, []string{"JOB-QERY"}, codes(h.OpenIssues))
	assert.Equal(t, []string{"JOB-DONE"}, codes(h.ClosedIssues))
	assert.Equal(t, WriterCounts{Total: 5, Open: 2, Closed: 2, OpenIssues: 1, CloseIssues: 1}, h.Counts)

	// JOB-SUBM is closed for the writer, so only the open job is due.
	require.Len(t, h.DueSoon, 1)
	assert.Equal(t, "JOB-WORK", h.DueSoon[0].Code)
	assert.Equal(t, int64(300), h.DueSoon[0].Seconds)
	assert.Equal(t, "***WORK", h.DueSoon[0].MaskedCode)

	require.NotNil(t, h.Current)
	assert.Equal(t, "JOB-WORK", h.Current.Code)
}

func TestDueSoonWindowBoundaries(t *testing.T) {
	s := newSeed(t)
	const w = int64(10)
	for code, d := range map[string]time.Duration{
		"JOB-PAST": -time.Second,
		"JOB-EDGE": 10 * time.Minute,
		"JOB-LATE": 10*time.Minute + time.Second,
		"JOB-NOWW": 0,
	} {
		s.job(t, code, func(j *models.Job) {
			j.Status, j.WriterStatus, j.WriterID = models.StatusAllocated, models.WriterOpen, id(w)
			j.StrictDeadline = now.Add(d)
		})
	}

	h, err := New(s.store, s.store).WriterHome(s.ctx, w, now)
	require.NoError(t, err)
	require.Len(t, h.DueSoon, 1)
	assert.Equal(t, "JOB-EDGE", h.DueSoon[0].Code)

	h, err = New(s.store, s.store, WithDueSoonWindow(time.Hour)).WriterHome(s.ctx, w, now)
	require.NoError(t, err)
	assert.Len(t, h.DueSoon, 2)
}

func TestCurrentJob(t *testing.T) {
	early, late := now.Add(-2*time.Hour), now.Add(-time.Hour)
	tests := []struct {
		name string
		open []models.Job
		want string
	}{
		{"none", nil, ""},
		{"latest start wins", []models.Job{
			{Code: "A", Status: models.StatusProcess, WriterStatus: models.WriterInProgress, StartTime: &early},
			{Code: "B", Status: models.StatusProcess, WriterStatus: models.WriterInProgress, StartTime: &late},
			{Code: "C", Status: models.StatusAllocated, WriterStatus: models.WriterOpen},
		}, "B"},
		{"nearest allocated deadline", []models.Job{
			{Code: "A", Status: models.StatusAllocated, StrictDeadline: now.Add(3 * time.Hour)},
			{Code: "B", Status: models.StatusAllocated, StrictDeadline: now.Add(time.Hour)},
		}, "B"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := currentJob(tc.open)
			if tc.want == "" {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tc.want, got.Code)
		})
	}
}

func TestAllocaterBoard(t *testing.T) {
	s := newSeed(t)
	s.user(t, "w1@x", models.RoleWriter, true)
	s.user(t, "w2@x", models.RoleWriter, false)
	s.user(t, "p1@x", models.RoleProcessTeam, true)

	s.job(t, "JOB-0001", nil)
	s.job(t, "JOB-0002", func(j *models.Job) {
		j.Status, j.WriterStatus, j.WriterID = models.StatusAllocated, models.WriterOpen, id(5)
	})
	s.job(t, "JOB-0003", func(j *models.Job) {
		j.Status, j.WriterStatus, j.WriterID = models.StatusProcess, models.WriterInProgress, id(5)
	})
	s.job(t, "JOB-0004", func(j *models.Job) {
		j.Status, j.WriterStatus, j.ProcessStatus, j.ProcessID = models.StatusProcess, models.WriterClosed, models.ProcessInProgress, id(6)
	})
	s.job(t, "JOB-0005", func(j *models.Job) {
		j.Status, j.WriterStatus, j.ProcessStatus = models.StatusCancel, models.WriterClosed, models.ProcessClosed
	})

	agg := New(s.store, s.store)
	b, err := agg.AllocaterBoard(s.ctx)
	require.NoError(t, err)

	assert.Equal(t, AllocaterStats{Total: 5, Assigned: 1, Cancel: 1, InProgress: 2}, b.Stats)
	assert.ElementsMatch(t, []string{"JOB-0001", "JOB-0002", "JOB-0005"}, codes(b.Jobs))
	require.Len(t, b.Writers, 1)
	assert.Equal(t, "w1@x", b.Writers[0].Email)
	assert.Len(t, b.ProcessTeam, 1)

	v, err := agg.InProgress(s.ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"JOB-0003"}, codes(v.Writing))
	assert.Equal(t, []string{"JOB-0004"}, codes(v.Processing))

	all, total, err := agg.AllJobs(s.ctx, 2, 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Equal(t, int64(5), total)
}

func TestProcessBoard(t *testing.T) {
	s := newSeed(t)
	const me = int64(20)

	s.job(t, "JOB-POOL", func(j *models.Job) {
		j.Status, j.WriterStatus, j.ProcessStatus = models.StatusProcess, models.WriterClosed, models.ProcessPending
	})
	s.job(t, "JOB-MINE", func(j *models.Job) {
		j.Status, j.WriterStatus, j.ProcessStatus, j.ProcessID = models.StatusProcess, models.WriterClosed, models.ProcessInProgress, id(me)
		j.StrictDeadline = now.Add(time.Minute)
	})
	s.job(t, "JOB-WAIT", func(j *models.Job) {
		j.Status, j.WriterStatus, j.ProcessStatus, j.ProcessID = models.StatusDecoration, models.WriterClosed, models.ProcessInProgress, id(21)
	})
	s.job(t, "JOB-DECO", func(j *models.Job) {
		j.Status, j.WriterStatus, j.ProcessStatus, j.ProcessID = models.StatusDecoration, models.WriterClosed, models.ProcessInProgress, id(21)
		j.DecorationAssigneeID, j.DecorationAssigneeKind, j.DecorationStatus = id(me), models.AssigneeProcessTeam, models.DecorationInProgress
	})
	s.job(t, "JOB-DONE", func(j *models.Job) {
		j.Status, j.WriterStatus, j.ProcessStatus = models.StatusCompleted, models.WriterClosed, models.ProcessCompleted
	})
	s.job(t, "JOB-WRIT", func(j *models.Job) {
		j.Status, j.WriterStatus, j.WriterID = models.StatusProcess, models.WriterInProgress, id(5)
	})

	b, err := New(s.store, s.store).ProcessBoard(s.ctx, me, now)
	require.NoError(t, err)

	assert.Equal(t, "JOB-MINE", b.InProcess[0].Code)
	assert.Equal(t, int64(3), b.InProcessCount)
	assert.Equal(t, int64(1), b.CompletedCount)
	assert.Equal(t, []string{"JOB-DONE"}, codes(b.RecentCompleted))
	assert.Equal(t, []string{"JOB-POOL"}, codes(b.Pool))
	assert.Equal(t, []string{"JOB-MINE"}, codes(b.Mine))
	assert.Equal(t, []string{"JOB-WAIT"}, codes(b.DecorationQueue))
	assert.Equal(t, []string{"JOB-DECO"}, codes(b.MyDecoration))
	require.Len(t, b.DueSoon, 1)
	assert.Equal(t, "JOB-MINE", b.DueSoon[0].Code)
}

func TestMarketingAndAccounts(t *testing.T) {
	s := newSeed(t)
	s.job(t, "JOB-M001", nil)
	s.job(t, "JOB-M002", func(j *models.Job) {
		j.Status, j.WriterStatus, j.ValueCents = models.StatusCompleted, models.WriterClosed, 2500
	})
	s.job(t, "JOB-M003", func(j *models.Job) {
		j.Status, j.WriterStatus, j.ValueCents = models.StatusCompleted, models.WriterClosed, 1500
	})
	s.job(t, "JOB-OTHR", func(j *models.Job) { j.CreatedBy = 2 })

	agg := New(s.store, s.store)
	m, err := agg.Marketing(s.ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(3), m.Total)
	assert.Equal(t, int64(1), m.Dropped)
	assert.Equal(t, int64(2), m.Completed)
	assert.Len(t, m.Jobs, 3)

	acc, err := agg.Accounts(s.ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), acc.Count)
	assert.Equal(t, int64(4000), acc.TotalCents)
	assert.Equal(t, int64(2000), acc.AverageCents)
}

func TestSuperAdminAndAnomalies(t *testing.T) {
	s := newSeed(t)
	s.user(t, "a@x", models.RoleSuperAdmin, true)
	s.user(t, "b@x", models.RoleWriter, false)
	s.user(t, "c@x", models.RoleWriter, true)

	s.job(t, "JOB-GOOD", nil)
	s.job(t, "JOB-BAD1", func(j *models.Job) {
		j.Status, j.ProcessStatus = models.StatusProcess, models.ProcessInProgress
	})

	agg := New(s.store, s.store)
	st, err := agg.SuperAdmin(s.ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, st.TotalUsers)
	assert.Equal(t, 1, st.PendingApprovals)
	assert.Equal(t, int64(2), st.TotalJobs)
	assert.Equal(t, 2, st.RoleDistribution[models.RoleWriter])
	assert.Equal(t, 0, st.RoleDistribution[models.RoleAccounts])

	an, err := agg.Anomalies(s.ctx)
	require.NoError(t, err)
	require.Len(t, an, 1)
	assert.Equal(t, "JOB-BAD1", an[0].Code)

	// Reading anomalies leaves the record as it was.
	j, err := s.store.GetJobByCode(s.ctx, "JOB-BAD1")
	require.NoError(t, err)
	assert.Equal(t, models.ProcessInProgress, j.ProcessStatus)
	assert.Nil(t, j.ProcessID)
}
