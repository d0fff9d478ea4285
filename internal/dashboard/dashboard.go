// Package dashboard computes the per-role job views. Every call reads the
// current store state; nothing is cached and nothing is written.
package dashboard

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/garnizeh/contentcrm/pkg/models"
	"github.com/garnizeh/contentcrm/pkg/repository"
)

// DefaultDueSoonWindow is how far ahead a strict deadline counts as due soon.
const DefaultDueSoonWindow = 10 * time.Minute

const recentCompletedLimit = 10

// ValueSummer is implemented by stores that can total completed job values
// without loading every row.
type ValueSummer interface {
	SumCompletedValue(ctx context.Context) (count, totalCents int64, err error)
}

type Aggregator struct {
	jobs    repository.JobStore
	users   repository.UserDirectory
	dueSoon time.Duration
}

type Option func(*Aggregator)

func WithDueSoonWindow(d time.Duration) Option {
	return func(a *Aggregator) {
		if d > 0 {
			a.dueSoon = d
		}
	}
}

func New(jobs repository.JobStore, users repository.UserDirectory, opts ...Option) *Aggregator {
	a := &Aggregator{jobs: jobs, users: users, dueSoon: DefaultDueSoonWindow}
	for _, o := range opts {
		o(a)
	}
	return a
}

// DueItem is a job whose strict deadline falls inside the due-soon window.
type DueItem struct {
	JobID      int64     `json:"job_id"`
	Code       string    `json:"code"`
	MaskedCode string    `json:"masked_code"`
	Deadline   time.Time `json:"strict_deadline"`
	Seconds    int64     `json:"seconds"`
}

// Predicates shared by several views.

func writerOpen(writerID int64) repository.JobFilter {
	return repository.JobFilter{
		WriterID:              &writerID,
		Statuses:              []models.Status{models.StatusAllocated, models.StatusProcess},
		ExcludeWriterStatuses: []models.WriterStatus{models.WriterClosed},
	}
}

func writerClosed(writerID int64) repository.JobFilter {
	return repository.JobFilter{
		WriterID: &writerID,
		Or: []repository.JobFilter{
			{Statuses: []models.Status{models.StatusCompleted}},
			{WriterStatuses: []models.WriterStatus{models.WriterClosed}},
		},
	}
}

var inProgress = repository.JobFilter{Or: []repository.JobFilter{
	{WriterStatuses: []models.WriterStatus{models.WriterInProgress}},
	{ProcessStatuses: []models.ProcessStatus{models.ProcessInProgress}},
}}

func byStatus(s ...models.Status) repository.JobFilter {
	return repository.JobFilter{Statuses: s}
}

// dueWithin narrows f to strict deadlines in (now, now+window].
func dueWithin(f repository.JobFilter, now time.Time, window time.Duration) repository.JobFilter {
	from, to := now, now.Add(window)
	f.StrictDeadlineAfter = &from
	f.StrictDeadlineNotAfter = &to
	f.Order = repository.OrderStrictDeadlineAsc
	return f
}

func (a *Aggregator) dueSoonItems(ctx context.Context, f repository.JobFilter, now time.Time) ([]DueItem, error) {
	jobs, err := a.jobs.ListJobs(ctx, dueWithin(f, now, a.dueSoon))
	if err != nil {
		return nil, err
	}
	out := make([]DueItem, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, DueItem{
			JobID:      j.ID,
			Code:       j.Code,
			MaskedCode: j.MaskedCode(),
			Deadline:   j.StrictDeadline,
			Seconds:    int64(j.StrictDeadline.Sub(now) / time.Second),
		})
	}
	return out, nil
}

func (a *Aggregator) list(ctx context.Context, dst *[]models.Job, f repository.JobFilter) func() error {
	return func() error {
		jobs, err := a.jobs.ListJobs(ctx, f)
		if err != nil {
			return err
		}
		*dst = jobs
		return nil
	}
}

func (a *Aggregator) count(ctx context.Context, dst *int64, f repository.JobFilter) func() error {
	return func() error {
		n, err := a.jobs.CountJobs(ctx, f)
		if err != nil {
			return err
		}
		*dst = n
		return nil
	}
}

// Allocater

type AllocaterStats struct {
	Total      int64 `json:"total_jobs"`
	Assigned   int64 `json:"total_assigned"`
	Hold       int64 `json:"total_hold"`
	Cancel     int64 `json:"total_cancel"`
	Completed  int64 `json:"total_completed"`
	InProgress int64 `json:"total_in_progress"`
}

type AllocaterBoard struct {
	Stats       AllocaterStats `json:"stats"`
	Jobs        []models.Job   `json:"jobs"`
	Writers     []models.User  `json:"writers"`
	ProcessTeam []models.User  `json:"process_team"`
}

// AllocaterBoard lists every job outside the processing stages together with
// the approved assignee pools.
func (a *Aggregator) AllocaterBoard(ctx context.Context) (*AllocaterBoard, error) {
	b := &AllocaterBoard{}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(a.count(gctx, &b.Stats.Total, repository.JobFilter{}))
	g.Go(a.count(gctx, &b.Stats.Assigned, byStatus(models.StatusAllocated)))
	g.Go(a.count(gctx, &b.Stats.Hold, byStatus(models.StatusHold)))
	g.Go(a.count(gctx, &b.Stats.Cancel, byStatus(models.StatusCancel)))
	g.Go(a.count(gctx, &b.Stats.Completed, byStatus(models.StatusCompleted)))
	g.Go(a.count(gctx, &b.Stats.InProgress, inProgress))
	g.Go(a.list(gctx, &b.Jobs, byStatus(models.StatusDrop, models.StatusAllocated, models.StatusQuery,
		models.StatusHold, models.StatusCancel, models.StatusCompleted)))
	g.Go(func() (err error) {
		b.Writers, err = a.users.ListApproved(gctx, models.RoleWriter)
		return err
	})
	g.Go(func() (err error) {
		b.ProcessTeam, err = a.users.ListApproved(gctx, models.RoleProcessTeam)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("allocater board: %w", err)
	}
	return b, nil
}

type InProgressView struct {
	Writing    []models.Job `json:"writing"`
	Processing []models.Job `json:"processing"`
}

// InProgress splits active work by track, most recently touched first.
func (a *Aggregator) InProgress(ctx context.Context) (*InProgressView, error) {
	v := &InProgressView{}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(a.list(gctx, &v.Writing, repository.JobFilter{
		WriterStatuses: []models.WriterStatus{models.WriterInProgress}, Order: repository.OrderUpdatedDesc}))
	g.Go(a.list(gctx, &v.Processing, repository.JobFilter{
		ProcessStatuses: []models.ProcessStatus{models.ProcessInProgress}, Order: repository.OrderUpdatedDesc}))
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("in progress: %w", err)
	}
	return v, nil
}

func (a *Aggregator) Assigned(ctx context.Context) ([]models.Job, error) {
	f := byStatus(models.StatusAllocated)
	f.Order = repository.OrderUpdatedDesc
	return a.jobs.ListJobs(ctx, f)
}

func (a *Aggregator) Completed(ctx context.Context) ([]models.Job, error) {
	f := byStatus(models.StatusCompleted)
	f.Order = repository.OrderUpdatedDesc
	return a.jobs.ListJobs(ctx, f)
}

// AllJobs is the manager listing, newest first.
func (a *Aggregator) AllJobs(ctx context.Context, limit, offset int) ([]models.Job, int64, error) {
	jobs, err := a.jobs.ListJobs(ctx, repository.JobFilter{Limit: limit, Offset: offset})
	if err != nil {
		return nil, 0, err
	}
	total, err := a.jobs.CountJobs(ctx, repository.JobFilter{})
	if err != nil {
		return nil, 0, err
	}
	return jobs, total, nil
}

// Writer

type WriterCounts struct {
	Total       int64 `json:"total_job"`
	Open        int   `json:"open_job"`
	Closed      int   `json:"close_job"`
	OpenIssues  int   `json:"open_issue"`
	CloseIssues int   `json:"close_issue"`
}

type WriterHome struct {
	Open         []models.Job `json:"open_jobs"`
	Closed       []models.Job `json:"closed_jobs"`
	OpenIssues   []models.Job `json:"open_issues"`
	ClosedIssues []models.Job `json:"close_issues"`
	Decoration   []models.Job `json:"decoration_jobs"`
	Counts       WriterCounts `json:"counts"`
	DueSoon      []DueItem    `json:"due_soon"`
	Current      *models.Job  `json:"current_job,omitempty"`
}

// WriterHome gathers everything assigned to one writer.
func (a *Aggregator) WriterHome(ctx context.Context, writerID int64, now time.Time) (*WriterHome, error) {
	h := &WriterHome{}
	mine := repository.JobFilter{WriterID: &writerID}

	openIssues := mine
	openIssues.Statuses = []models.Status{models.StatusQuery}
	openIssues.Order = repository.OrderUpdatedDesc

	closedIssues := mine
	closedIssues.ExcludeStatuses = []models.Status{models.StatusQuery}
	closedIssues.HasNote = true
	closedIssues.Order = repository.OrderUpdatedDesc

	closed := writerClosed(writerID)
	closed.Order = repository.OrderUpdatedDesc

	g, gctx := errgroup.WithContext(ctx)
	g.Go(a.count(gctx, &h.Counts.Total, mine))
	g.Go(a.list(gctx, &h.Open, writerOpen(writerID)))
	g.Go(a.list(gctx, &h.Closed, closed))
	g.Go(a.list(gctx, &h.OpenIssues, openIssues))
	g.Go(a.list(gctx, &h.ClosedIssues, closedIssues))
	g.Go(a.list(gctx, &h.Decoration, repository.JobFilter{
		DecorationAssigneeID: &writerID,
		Statuses:             []models.Status{models.StatusProcess, models.StatusDecoration},
	}))
	g.Go(func() (err error) {
		h.DueSoon, err = a.dueSoonItems(gctx, writerOpen(writerID), now)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("writer home for %d: %w", writerID, err)
	}

	h.Counts.Open = len(h.Open)
	h.Counts.Closed = len(h.Closed)
	h.Counts.OpenIssues = len(h.OpenIssues)
	h.Counts.CloseIssues = len(h.ClosedIssues)
	h.Current = currentJob(h.Open)
	return h, nil
}

// CurrentJob picks the single job a writer should focus on.
func (a *Aggregator) CurrentJob(ctx context.Context, writerID int64) (*models.Job, error) {
	f := writerOpen(writerID)
	f.Order = repository.OrderStrictDeadlineAsc
	jobs, err := a.jobs.ListJobs(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("current job for %d: %w", writerID, err)
	}
	return currentJob(jobs), nil
}

// currentJob prefers the most recently started in-progress job, then the
// allocated job with the nearest strict deadline.
func currentJob(open []models.Job) *models.Job {
	if len(open) == 0 {
		return nil
	}
	var started *models.Job
	for i := range open {
		j := &open[i]
		if j.WriterStatus != models.WriterInProgress {
			continue
		}
		if started == nil || startedAfter(j, started) {
			started = j
		}
	}
	if started != nil {
		return started
	}

	byDeadline := make([]models.Job, len(open))
	copy(byDeadline, open)
	sort.SliceStable(byDeadline, func(x, y int) bool {
		return byDeadline[x].StrictDeadline.Before(byDeadline[y].StrictDeadline)
	})
	for i := range byDeadline {
		if byDeadline[i].Status == models.StatusAllocated {
			return &byDeadline[i]
		}
	}
	return &byDeadline[0]
}

func startedAfter(a, b *models.Job) bool {
	if a.StartTime == nil {
		return false
	}
	return b.StartTime == nil || a.StartTime.After(*b.StartTime)
}

// Process team

type ProcessBoard struct {
	InProcess       []models.Job `json:"jobs_in_process"`
	RecentCompleted []models.Job `json:"jobs_completed"`
	InProcessCount  int64        `json:"in_process_count"`
	CompletedCount  int64        `json:"completed_count"`
	Pool            []models.Job `json:"pool"`
	Mine            []models.Job `json:"mine"`
	DecorationQueue []models.Job `json:"decoration_queue"`
	MyDecoration    []models.Job `json:"my_decoration"`
	DueSoon         []DueItem    `json:"due_soon"`
}

// ProcessBoard is the process team view for one member.
func (a *Aggregator) ProcessBoard(ctx context.Context, memberID int64, now time.Time) (*ProcessBoard, error) {
	b := &ProcessBoard{}

	inProcess := byStatus(models.StatusProcess)
	inProcess.Order = repository.OrderStrictDeadlineAsc

	recent := byStatus(models.StatusCompleted)
	recent.Order = repository.OrderUpdatedDesc
	recent.Limit = recentCompletedLimit

	pool := repository.JobFilter{
		Statuses:          []models.Status{models.StatusProcess, models.StatusDecoration},
		WriterStatuses:    []models.WriterStatus{models.WriterClosed},
		ProcessUnassigned: true,
		Order:             repository.OrderStrictDeadlineAsc,
	}
	mine := repository.JobFilter{
		ProcessID: &memberID,
		Statuses:  []models.Status{models.StatusProcess, models.StatusDecoration},
		Order:     repository.OrderStrictDeadlineAsc,
	}
	queue := repository.JobFilter{
		Statuses:             []models.Status{models.StatusDecoration},
		DecorationStatuses:   []models.DecorationStatus{models.DecorationPending},
		DecorationUnassigned: true,
		Order:                repository.OrderStrictDeadlineAsc,
	}
	myDecoration := repository.JobFilter{
		DecorationAssigneeID: &memberID,
		Statuses:             []models.Status{models.StatusProcess, models.StatusDecoration},
		Order:                repository.OrderStrictDeadlineAsc,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(a.list(gctx, &b.InProcess, inProcess))
	g.Go(a.list(gctx, &b.RecentCompleted, recent))
	g.Go(a.count(gctx, &b.InProcessCount, byStatus(models.StatusProcess)))
	g.Go(a.count(gctx, &b.CompletedCount, byStatus(models.StatusCompleted)))
	g.Go(a.list(gctx, &b.Pool, pool))
	g.Go(a.list(gctx, &b.Mine, mine))
	g.Go(a.list(gctx, &b.DecorationQueue, queue))
	g.Go(a.list(gctx, &b.MyDecoration, myDecoration))
	g.Go(func() (err error) {
		b.DueSoon, err = a.dueSoonItems(gctx, repository.JobFilter{ProcessID: &memberID, Statuses: []models.Status{models.StatusProcess}}, now)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("process board for %d: %w", memberID, err)
	}
	return b, nil
}

// Marketing

type MarketingBoard struct {
	Jobs      []models.Job `json:"jobs"`
	Total     int64        `json:"total_jobs"`
	Dropped   int64        `json:"dropped"`
	Allocated int64        `json:"allocated"`
	Completed int64        `json:"completed"`
	Hold      int64        `json:"hold"`
}

func (a *Aggregator) Marketing(ctx context.Context, userID int64) (*MarketingBoard, error) {
	b := &MarketingBoard{}
	own := func(s ...models.Status) repository.JobFilter {
		return repository.JobFilter{CreatedBy: &userID, Statuses: s}
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(a.list(gctx, &b.Jobs, own()))
	g.Go(a.count(gctx, &b.Total, own()))
	g.Go(a.count(gctx, &b.Dropped, own(models.StatusDrop)))
	g.Go(a.count(gctx, &b.Allocated, own(models.StatusAllocated)))
	g.Go(a.count(gctx, &b.Completed, own(models.StatusCompleted)))
	g.Go(a.count(gctx, &b.Hold, own(models.StatusHold)))
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("marketing board for %d: %w", userID, err)
	}
	return b, nil
}

// Accounts

type AccountsSummary struct {
	Jobs         []models.Job `json:"completed_jobs"`
	Count        int64        `json:"total_jobs"`
	TotalCents   int64        `json:"total_value_cents"`
	AverageCents int64        `json:"average_value_cents"`
}

// Accounts totals the value of completed jobs. Stores implementing
// ValueSummer aggregate in the database.
func (a *Aggregator) Accounts(ctx context.Context) (*AccountsSummary, error) {
	jobs, err := a.Completed(ctx)
	if err != nil {
		return nil, fmt.Errorf("accounts: %w", err)
	}
	s := &AccountsSummary{Jobs: jobs}
	if vs, ok := a.jobs.(ValueSummer); ok {
		if s.Count, s.TotalCents, err = vs.SumCompletedValue(ctx); err != nil {
			return nil, fmt.Errorf("accounts: %w", err)
		}
	} else {
		s.Count = int64(len(jobs))
		for _, j := range jobs {
			s.TotalCents += j.ValueCents
		}
	}
	if s.Count > 0 {
		s.AverageCents = s.TotalCents / s.Count
	}
	return s, nil
}

// Super admin

type SuperAdminStats struct {
	TotalUsers       int                 `json:"total_users"`
	PendingApprovals int                 `json:"pending_approvals"`
	TotalJobs        int64               `json:"total_jobs"`
	RoleDistribution map[models.Role]int `json:"role_distribution"`
}

func (a *Aggregator) SuperAdmin(ctx context.Context) (*SuperAdminStats, error) {
	users, err := a.users.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("super admin stats: %w", err)
	}
	total, err := a.jobs.CountJobs(ctx, repository.JobFilter{})
	if err != nil {
		return nil, fmt.Errorf("super admin stats: %w", err)
	}

	s := &SuperAdminStats{TotalUsers: len(users), TotalJobs: total, RoleDistribution: map[models.Role]int{}}
	for _, r := range models.Roles() {
		s.RoleDistribution[r] = 0
	}
	for _, u := range users {
		if !u.Approved {
			s.PendingApprovals++
		}
		s.RoleDistribution[u.Role]++
	}
	return s, nil
}

// Anomalies

// Anomaly is a stored job that breaks a status invariant. It is reported as
// found; nothing here repairs it.
type Anomaly struct {
	JobID    int64    `json:"job_id"`
	Code     string   `json:"code"`
	Problems []string `json:"problems"`
}

func (a *Aggregator) Anomalies(ctx context.Context) ([]Anomaly, error) {
	jobs, err := a.jobs.ListJobs(ctx, repository.JobFilter{})
	if err != nil {
		return nil, fmt.Errorf("anomalies: %w", err)
	}
	out := make([]Anomaly, 0)
	for i := range jobs {
		if p := jobs[i].Violations(); len(p) > 0 {
			out = append(out, Anomaly{JobID: jobs[i].ID, Code: jobs[i].Code, Problems: p})
		}
	}
	return out, nil
}
