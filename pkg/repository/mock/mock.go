package mock

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/garnizeh/contentcrm/pkg/models"
	"github.com/garnizeh/contentcrm/pkg/repository"
)

var _ repository.JobStore = (*Store)(nil)
var _ repository.UserDirectory = (*Store)(nil)
var _ repository.NotificationSink = (*Store)(nil)

// Store is an in-memory implementation of every repository contract, safe for
// concurrent use. UpdateJob honours the version check like the SQL stores.
type Store struct {
	mu            sync.Mutex
	jobs          map[int64]*models.Job
	users         map[int64]*models.User
	notifications map[int64]*models.Notification
	nextID        int64

	// NotifyErr, when it returns non-nil for a user, makes CreateNotification fail.
	NotifyErr func(userID int64) error
	// BeforeUpdate runs inside UpdateJob before the version check, without the lock held.
	BeforeUpdate func(j *models.Job)
}

func New() *Store {
	return &Store{
		jobs:          map[int64]*models.Job{},
		users:         map[int64]*models.User{},
		notifications: map[int64]*models.Notification{},
	}
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

// Jobs

func (s *Store) CreateJob(ctx context.Context, j *models.Job) (int64, error) {
	if j == nil {
		return 0, fmt.Errorf("job is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.jobs {
		if existing.Code == j.Code {
			return 0, repository.ErrDuplicate
		}
	}
	c := j.Clone()
	c.ID = s.id()
	c.Version = 1
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	c.UpdatedAt = c.CreatedAt
	s.jobs[c.ID] = c
	j.ID, j.Version, j.CreatedAt, j.UpdatedAt = c.ID, c.Version, c.CreatedAt, c.UpdatedAt
	return c.ID, nil
}

func (s *Store) GetJob(ctx context.Context, id int64) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id].Clone(), nil
}

func (s *Store) GetJobByCode(ctx context.Context, code string) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range s.jobs {
		if j.Code == code {
			return j.Clone(), nil
		}
	}
	return nil, nil
}

func (s *Store) UpdateJob(ctx context.Context, j *models.Job, expectedVersion int64) error {
	if s.BeforeUpdate != nil {
		s.BeforeUpdate(j)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.jobs[j.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if cur.Version != expectedVersion {
		return repository.ErrConflict
	}
	c := j.Clone()
	c.Code, c.CreatedBy, c.CreatedAt = cur.Code, cur.CreatedBy, cur.CreatedAt
	c.Version = cur.Version + 1
	s.jobs[c.ID] = c
	j.Version = c.Version
	return nil
}

func (s *Store) DeleteJob(ctx context.Context, id, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.jobs[id]
	if !ok {
		return repository.ErrNotFound
	}
	if cur.Version != expectedVersion {
		return repository.ErrConflict
	}
	delete(s.jobs, id)
	for _, n := range s.notifications {
		if n.JobID != nil && *n.JobID == id {
			n.JobID = nil
		}
	}
	return nil
}

func (s *Store) ListJobs(ctx context.Context, f repository.JobFilter) ([]models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Job, 0)
	for _, j := range s.jobs {
		if f.Match(j) {
			out = append(out, *j.Clone())
		}
	}
	sort.Slice(out, func(a, b int) bool {
		switch f.Order {
		case repository.OrderStrictDeadlineAsc:
			if !out[a].StrictDeadline.Equal(out[b].StrictDeadline) {
				return out[a].StrictDeadline.Before(out[b].StrictDeadline)
			}
		case repository.OrderUpdatedDesc:
			if !out[a].UpdatedAt.Equal(out[b].UpdatedAt) {
				return out[a].UpdatedAt.After(out[b].UpdatedAt)
			}
		default:
			if !out[a].CreatedAt.Equal(out[b].CreatedAt) {
				return out[a].CreatedAt.After(out[b].CreatedAt)
			}
		}
		return out[a].ID > out[b].ID
	})
	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return []models.Job{}, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *Store) CountJobs(ctx context.Context, f repository.JobFilter) (int64, error) {
	f.Limit, f.Offset = 0, 0
	list, err := s.ListJobs(ctx, f)
	return int64(len(list)), err
}

// Users

func (s *Store) CreateUser(ctx context.Context, u *models.User) (int64, error) {
	if u == nil {
		return 0, fmt.Errorf("user is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Email == u.Email {
			return 0, repository.ErrDuplicate
		}
	}
	c := *u
	c.ID = s.id()
	c.CreatedAt = time.Now().UTC()
	c.UpdatedAt = c.CreatedAt
	s.users[c.ID] = &c
	u.ID = c.ID
	return c.ID, nil
}

func (s *Store) FindUser(ctx context.Context, id int64) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	c := *u
	return &c, nil
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			c := *u
			return &c, nil
		}
	}
	return nil, nil
}

func (s *Store) listUsers(keep func(u *models.User) bool) []models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.User, 0)
	for _, u := range s.users {
		if keep(u) {
			out = append(out, *u)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out
}

func (s *Store) ListApproved(ctx context.Context, role models.Role) ([]models.User, error) {
	return s.listUsers(func(u *models.User) bool { return u.Approved && u.Role == role }), nil
}

func (s *Store) ListPending(ctx context.Context) ([]models.User, error) {
	return s.listUsers(func(u *models.User) bool { return !u.Approved }), nil
}

func (s *Store) ListUsers(ctx context.Context) ([]models.User, error) {
	return s.listUsers(func(*models.User) bool { return true }), nil
}

func (s *Store) ApproveUser(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.Approved = true
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) SetUserRole(ctx context.Context, id int64, role models.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.Role = role
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) DeleteUser(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.users, id)
	return nil
}

// Notifications

func (s *Store) CreateNotification(ctx context.Context, n *models.Notification) (int64, error) {
	if n == nil {
		return 0, fmt.Errorf("notification is nil")
	}
	if s.NotifyErr != nil {
		if err := s.NotifyErr(n.UserID); err != nil {
			return 0, err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *n
	c.ID = s.id()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	s.notifications[c.ID] = &c
	n.ID = c.ID
	return c.ID, nil
}

func (s *Store) ListNotifications(ctx context.Context, userID int64, limit int) ([]models.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Notification, 0)
	for _, n := range s.notifications {
		if n.UserID == userID {
			out = append(out, *n)
		}
	}
	sort.Slice(out, func(a, b int) bool {
		if !out[a].CreatedAt.Equal(out[b].CreatedAt) {
			return out[a].CreatedAt.After(out[b].CreatedAt)
		}
		return out[a].ID > out[b].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) CountUnread(ctx context.Context, userID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var c int64
	for _, n := range s.notifications {
		if n.UserID == userID && !n.Read {
			c++
		}
	}
	return c, nil
}

func (s *Store) MarkRead(ctx context.Context, userID, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notifications[id]
	if !ok || n.UserID != userID {
		return repository.ErrNotFound
	}
	n.Read = true
	return nil
}

func (s *Store) MarkAllRead(ctx context.Context, userID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var c int64
	for _, n := range s.notifications {
		if n.UserID == userID && !n.Read {
			n.Read = true
			c++
		}
	}
	return c, nil
}
