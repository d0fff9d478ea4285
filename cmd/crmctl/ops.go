package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/garnizeh/contentcrm/internal/config"
	"github.com/garnizeh/contentcrm/internal/dashboard"
	"github.com/garnizeh/contentcrm/internal/db"
	"github.com/garnizeh/contentcrm/internal/jobs"
	"github.com/garnizeh/contentcrm/internal/store"
	"github.com/garnizeh/contentcrm/pkg/models"
	"github.com/garnizeh/contentcrm/pkg/ollama"
)

var errSQLiteOnly = errors.New("this command needs the sqlite driver")

func newJobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect jobs",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Print job, user and value totals plus invariant anomalies",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(cfg *config.Config, st *store.Store) error {
				agg := dashboard.New(st.Backend, st)
				ctx := cmd.Context()
				admin, err := agg.SuperAdmin(ctx)
				if err != nil {
					return err
				}
				acc, err := agg.Accounts(ctx)
				if err != nil {
					return err
				}
				anomalies, err := agg.Anomalies(ctx)
				if err != nil {
					return err
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintf(w, "jobs\t%d\n", admin.TotalJobs)
				fmt.Fprintf(w, "completed\t%d\n", acc.Count)
				fmt.Fprintf(w, "completed value\t%s\n", cents(acc.TotalCents))
				fmt.Fprintf(w, "average value\t%s\n", cents(acc.AverageCents))
				fmt.Fprintf(w, "users\t%d\n", admin.TotalUsers)
				fmt.Fprintf(w, "pending approvals\t%d\n", admin.PendingApprovals)
				roles := make([]string, 0, len(admin.RoleDistribution))
				for r := range admin.RoleDistribution {
					roles = append(roles, string(r))
				}
				sort.Strings(roles)
				for _, r := range roles {
					fmt.Fprintf(w, "  %s\t%d\n", r, admin.RoleDistribution[models.Role(r)])
				}
				fmt.Fprintf(w, "anomalies\t%d\n", len(anomalies))
				for _, a := range anomalies {
					fmt.Fprintf(w, "  %s\t%v\n", a.Code, a.Problems)
				}
				if st.SQLite != nil {
					counts, err := jobs.NewRepository(st.SQLite).Counts(ctx)
					if err != nil {
						return err
					}
					dead, err := jobs.NewRepository(st.SQLite).DeadLetterCount(ctx, "")
					if err != nil {
						return err
					}
					fmt.Fprintf(w, "background tasks\t%v (dead letters %d)\n", counts, dead)
				}
				return w.Flush()
			})
		},
	})
	return cmd
}

func cents(v int64) string {
	return fmt.Sprintf("%d.%02d", v/100, v%100)
}

func newBackupCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Write a consistent copy of the SQLite database",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(cfg *config.Config, st *store.Store) error {
				if st.SQLite == nil {
					return errSQLiteOnly
				}
				dst := out
				if dst == "" {
					dst = fmt.Sprintf("%s.%s.bak", cfg.Database.Path, time.Now().UTC().Format("20060102T150405Z"))
				}
				if err := st.SQLite.Backup(cmd.Context(), dst); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Database backup written to %s.\n", dst)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "Backup file (default <path>.<timestamp>.bak)")
	return cmd
}

func newRestoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore BACKUP",
		Short: "Replace the SQLite database with a backup (stop the server first)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Database.Driver != config.DriverSQLite {
				return errSQLiteOnly
			}
			src, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			if err := db.Restore(src, cfg.Database.Path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Database restored from %s.\n", src)
			return nil
		},
	}
}

func newSummaryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Job summary model tools",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "health",
		Short: "Check the Ollama server and list its models",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ollama.SetLogger(newLogger())
			client, err := ollama.NewDefaultClient(cfg.Ollama)
			if err != nil {
				return err
			}
			defer client.Close()

			if err := client.Health(cmd.Context()); err != nil {
				return err
			}
			list, err := client.ListModels(cmd.Context())
			if err != nil {
				return err
			}
			for _, m := range list {
				fmt.Fprintln(cmd.OutOrStdout(), m.Name)
			}
			if cfg.Summary.Model == "" {
				return nil
			}
			ok, err := client.HasModel(cmd.Context(), cfg.Summary.Model)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("configured model %q is not pulled on %s", cfg.Summary.Model, cfg.Ollama.BaseURL)
			}
			return nil
		},
	})
	return cmd
}
