// Package users implements the account operations on top of the user
// directory: registration, approval, role changes and password sign-in.
package users

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/garnizeh/contentcrm/pkg/models"
	"github.com/garnizeh/contentcrm/pkg/repository"
)

var (
	ErrInvalidCredentials = errors.New("users: invalid credentials")
	ErrNotApproved        = errors.New("users: account awaiting approval")
	ErrEmailTaken         = errors.New("users: email already registered")
	ErrInvalidInput       = errors.New("users: invalid input")
	ErrNotFound           = errors.New("users: not found")
)

// MinPasswordLength is enforced on registration and admin creation.
const MinPasswordLength = 6

type Service struct {
	dir  repository.UserDirectory
	cost int
}

func NewService(dir repository.UserDirectory) *Service {
	return &Service{dir: dir, cost: bcrypt.DefaultCost}
}

// SetHashCost overrides the bcrypt cost; tests use bcrypt.MinCost.
func (s *Service) SetHashCost(cost int) {
	s.cost = cost
}

// NewUser is the input of Register and Create.
type NewUser struct {
	Name     string
	Email    string
	Phone    string
	Password string
	Role     models.Role
	Approved bool
}

// Register creates an unapproved marketing account.
func (s *Service) Register(ctx context.Context, in NewUser) (*models.User, error) {
	in.Role = models.RoleMarketing
	in.Approved = false
	return s.Create(ctx, in)
}

// Create adds an account with the given role and approval state.
func (s *Service) Create(ctx context.Context, in NewUser) (*models.User, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if in.Name == "" || in.Email == "" {
		return nil, fmt.Errorf("%w: name and email are required", ErrInvalidInput)
	}
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return nil, fmt.Errorf("%w: email %q", ErrInvalidInput, in.Email)
	}
	if len(in.Password) < MinPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, MinPasswordLength)
	}
	if in.Role == "" {
		in.Role = models.RoleMarketing
	}
	if !in.Role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, in.Role)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u := &models.User{
		Name:         in.Name,
		Email:        in.Email,
		Phone:        strings.TrimSpace(in.Phone),
		Role:         in.Role,
		Approved:     in.Approved,
		PasswordHash: string(hash),
	}
	if _, err := s.dir.CreateUser(ctx, u); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

// Authenticate checks the password and returns the account. Only approved
// users and super admins may sign in.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	u, err := s.dir.FindUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	if u == nil {
		return nil, ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	if !u.Approved && u.Role != models.RoleSuperAdmin {
		return nil, ErrNotApproved
	}
	return u, nil
}

func (s *Service) Approve(ctx context.Context, id int64) error {
	return s.mutate(s.dir.ApproveUser(ctx, id), "approve", id)
}

// Reject removes a pending or unwanted account.
func (s *Service) Reject(ctx context.Context, id int64) error {
	return s.mutate(s.dir.DeleteUser(ctx, id), "delete", id)
}

func (s *Service) SetRole(ctx context.Context, id int64, role models.Role) error {
	if !role.Valid() {
		return fmt.Errorf("%w: unknown role %q", ErrInvalidInput, role)
	}
	return s.mutate(s.dir.SetUserRole(ctx, id, role), "set role of", id)
}

func (s *Service) Pending(ctx context.Context) ([]models.User, error) {
	return s.dir.ListPending(ctx)
}

func (s *Service) ApprovedByRole(ctx context.Context, role models.Role) ([]models.User, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, role)
	}
	return s.dir.ListApproved(ctx, role)
}

func (s *Service) List(ctx context.Context) ([]models.User, error) {
	return s.dir.ListUsers(ctx)
}

func (s *Service) Get(ctx context.Context, id int64) (*models.User, error) {
	u, err := s.dir.FindUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, fmt.Errorf("%w: user %d", ErrNotFound, id)
	}
	return u, nil
}

func (s *Service) mutate(err error, verb string, id int64) error {
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%w: user %d", ErrNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("%s user %d: %w", verb, id, err)
	}
	return nil
}
