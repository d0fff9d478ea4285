package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/garnizeh/contentcrm/internal/config"
	"github.com/garnizeh/contentcrm/internal/store"
	"github.com/garnizeh/contentcrm/internal/users"
	"github.com/garnizeh/contentcrm/pkg/models"
)

func newSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed FILE",
		Short: "Create the accounts listed in a YAML seed file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			seed, err := loadSeed(f)
			if err != nil {
				return err
			}
			return withStore(cmd.Context(), func(cfg *config.Config, st *store.Store) error {
				created, skipped, err := applySeed(cmd.Context(), users.NewService(st), seed)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Seed complete: %d created, %d already present.\n", created, skipped)
				return nil
			})
		},
	}
}

func newUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage accounts",
	}
	cmd.AddCommand(newUserAddCmd(), newUserApproveCmd(), newUserRoleCmd(), newUserPendingCmd())
	return cmd
}

func newUserAddCmd() *cobra.Command {
	var in users.NewUser
	var role string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			in.Role = models.Role(role)
			return withStore(cmd.Context(), func(cfg *config.Config, st *store.Store) error {
				u, err := users.NewService(st).Create(cmd.Context(), in)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created user %d (%s, %s, approved=%t).\n", u.ID, u.Email, u.Role, u.Approved)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&in.Name, "name", "", "Display name")
	cmd.Flags().StringVar(&in.Email, "email", "", "Login email")
	cmd.Flags().StringVar(&in.Phone, "phone", "", "Phone number")
	cmd.Flags().StringVar(&in.Password, "password", "", "Initial password")
	cmd.Flags().StringVar(&role, "role", string(models.RoleMarketing), "Role")
	cmd.Flags().BoolVar(&in.Approved, "approved", false, "Create the account already approved")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid user id %q", s)
	}
	return id, nil
}

func newUserApproveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "approve ID",
		Short: "Approve a pending account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withStore(cmd.Context(), func(cfg *config.Config, st *store.Store) error {
				if err := users.NewService(st).Approve(cmd.Context(), id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "User %d approved.\n", id)
				return nil
			})
		},
	}
}

func newUserRoleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "role ID ROLE",
		Short: "Change an account's role",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withStore(cmd.Context(), func(cfg *config.Config, st *store.Store) error {
				if err := users.NewService(st).SetRole(cmd.Context(), id, models.Role(args[1])); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "User %d is now %s.\n", id, args[1])
				return nil
			})
		},
	}
}

func newUserPendingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "List accounts awaiting approval",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(cfg *config.Config, st *store.Store) error {
				list, err := users.NewService(st).Pending(cmd.Context())
				if err != nil {
					return err
				}
				for _, u := range list {
					fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\t%s\t%s\n", u.ID, u.Email, u.DisplayName(), u.Role)
				}
				return nil
			})
		},
	}
}
