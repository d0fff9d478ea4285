package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/garnizeh/contentcrm/internal/users"
	"github.com/garnizeh/contentcrm/pkg/models"
)

type seedFile struct {
	Users []seedUser `yaml:"users"`
}

type seedUser struct {
	Name     string      `yaml:"name"`
	Email    string      `yaml:"email"`
	Phone    string      `yaml:"phone"`
	Password string      `yaml:"password"`
	Role     models.Role `yaml:"role"`
	Approved bool        `yaml:"approved"`
}

func loadSeed(r io.Reader) (*seedFile, error) {
	var s seedFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("parse seed: %w", err)
	}
	for i, u := range s.Users {
		if u.Email == "" {
			return nil, fmt.Errorf("seed user %d: email is required", i)
		}
		if u.Role != "" && !u.Role.Valid() {
			return nil, fmt.Errorf("seed user %s: unknown role %q", u.Email, u.Role)
		}
	}
	return &s, nil
}

// applySeed creates every seed user; accounts whose email already exists are skipped.
func applySeed(ctx context.Context, svc *users.Service, s *seedFile) (created, skipped int, err error) {
	for _, u := range s.Users {
		_, err := svc.Create(ctx, users.NewUser{
			Name: u.Name, Email: u.Email, Phone: u.Phone, Password: u.Password, Role: u.Role, Approved: u.Approved,
		})
		switch {
		case errors.Is(err, users.ErrEmailTaken):
			skipped++
		case err != nil:
			return created, skipped, fmt.Errorf("seed %s: %w", u.Email, err)
		default:
			created++
		}
	}
	return created, skipped, nil
}
