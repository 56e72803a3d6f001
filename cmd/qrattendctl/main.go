package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"qrattend/internal/config"
	"qrattend/internal/directory"
	"qrattend/internal/store"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var databaseURL string

	cmd := &cobra.Command{
		Use:           "qrattendctl",
		Short:         "Administer the QR attendance database",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&databaseURL, "database-url", "", "Postgres URL (defaults to DATABASE_URL)")

	open := func(cmd *cobra.Command) (*store.DB, error) {
		ctx := commandContext(cmd)
		url := databaseURL
		if url == "" {
			cfg, err := config.Load(ctx)
			if err != nil {
				return nil, err
			}
			url = cfg.DatabaseURL
		}
		return store.NewDB(ctx, url)
	}

	cmd.AddCommand(newMigrateCommand(open))
	cmd.AddCommand(newEnrollCommand(open))
	return cmd
}

type opener func(cmd *cobra.Command) (*store.DB, error)

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func newMigrateCommand(open opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := open(cmd)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := store.Migrate(commandContext(cmd), db.Client); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Print the state of each migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := open(cmd)
			if err != nil {
				return err
			}
			defer db.Close()
			return store.MigrationStatus(commandContext(cmd), db.Client)
		},
	})
	return cmd
}

func newEnrollCommand(open opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "enroll",
		Short: "Create or update institutions, teachers and students",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	withDirectory := func(cmd *cobra.Command, fn func(context.Context, directory.Store) error) error {
		db, err := open(cmd)
		if err != nil {
			return err
		}
		defer db.Close()
		return fn(commandContext(cmd), directory.NewRepository(db.Client))
	}
	cmd.AddCommand(newEnrollInstitutionCommand(withDirectory))
	cmd.AddCommand(newEnrollTeacherCommand(withDirectory))
	cmd.AddCommand(newEnrollStudentCommand(withDirectory))
	return cmd
}

type directoryRunner func(cmd *cobra.Command, fn func(context.Context, directory.Store) error) error

func newEnrollInstitutionCommand(run directoryRunner) *cobra.Command {
	var code, name string
	var inactive bool

	cmd := &cobra.Command{
		Use:   "institution",
		Short: "Upsert an institution",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, d directory.Store) error {
				if err := d.UpsertInstitution(ctx, directory.Institution{Code: code, Name: name, Active: !inactive}); err != nil {
					return err
				}
				return done(cmd.OutOrStdout(), "institution", code)
			})
		},
	}
	cmd.Flags().StringVar(&code, "code", "", "Institution code")
	cmd.Flags().StringVar(&name, "name", "", "Display name")
	cmd.Flags().BoolVar(&inactive, "inactive", false, "Mark the institution inactive")
	_ = cmd.MarkFlagRequired("code")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newEnrollTeacherCommand(run directoryRunner) *cobra.Command {
	var institution, id, name, email, password string
	var inactive bool

	cmd := &cobra.Command{
		Use:   "teacher",
		Short: "Upsert a teacher",
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := optionalHash(password)
			if err != nil {
				return err
			}
			return run(cmd, func(ctx context.Context, d directory.Store) error {
				t := directory.Teacher{
					InstitutionCode: institution,
					ID:              id,
					Name:            name,
					Email:           email,
					PasswordHash:    hash,
					Active:          !inactive,
				}
				if err := d.UpsertTeacher(ctx, t); err != nil {
					return err
				}
				return done(cmd.OutOrStdout(), "teacher", institution+"/"+id)
			})
		},
	}
	cmd.Flags().StringVar(&institution, "institution", "", "Institution code")
	cmd.Flags().StringVar(&id, "id", "", "Teacher id")
	cmd.Flags().StringVar(&name, "name", "", "Display name")
	cmd.Flags().StringVar(&email, "email", "", "Email address")
	cmd.Flags().StringVar(&password, "password", "", "Login password (unchanged when empty)")
	cmd.Flags().BoolVar(&inactive, "inactive", false, "Mark the teacher inactive")
	_ = cmd.MarkFlagRequired("institution")
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newEnrollStudentCommand(run directoryRunner) *cobra.Command {
	var institution, id, name, className, section, password string
	var inactive bool

	cmd := &cobra.Command{
		Use:   "student",
		Short: "Upsert a student",
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := optionalHash(password)
			if err != nil {
				return err
			}
			return run(cmd, func(ctx context.Context, d directory.Store) error {
				s := directory.Student{
					InstitutionCode: institution,
					ID:              id,
					Name:            name,
					ClassName:       className,
					Section:         section,
					PasswordHash:    hash,
					Active:          !inactive,
				}
				if err := d.UpsertStudent(ctx, s); err != nil {
					return err
				}
				return done(cmd.OutOrStdout(), "student", institution+"/"+id)
			})
		},
	}
	cmd.Flags().StringVar(&institution, "institution", "", "Institution code")
	cmd.Flags().StringVar(&id, "id", "", "Student id")
	cmd.Flags().StringVar(&name, "name", "", "Display name")
	cmd.Flags().StringVar(&className, "class", "", "Class name")
	cmd.Flags().StringVar(&section, "section", "", "Section")
	cmd.Flags().StringVar(&password, "password", "", "Login password (unchanged when empty)")
	cmd.Flags().BoolVar(&inactive, "inactive", false, "Mark the student inactive")
	_ = cmd.MarkFlagRequired("institution")
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func optionalHash(password string) (string, error) {
	if password == "" {
		return "", nil
	}
	if len(password) < 8 {
		return "", fmt.Errorf("password must be at least 8 characters")
	}
	return directory.HashPassword(password)
}

func done(w io.Writer, kind, id string) error {
	_, err := fmt.Fprintf(w, "%s %s saved\n", kind, id)
	return err
}
