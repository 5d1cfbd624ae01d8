package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/BradenHooton/bookswap/internal/database"
	"github.com/BradenHooton/bookswap/internal/models"
	"github.com/BradenHooton/bookswap/internal/services"
)

// migrator is the slice of *database.DB the migrate commands use.
type migrator interface {
	Migrate(ctx context.Context) error
	MigrateDown(ctx context.Context) error
	MigrationStatuses(ctx context.Context) ([]database.MigrationStatus, error)
}

// cliEnv holds what a command needs once the store is open.
type cliEnv struct {
	auth       *services.AuthService
	moderation *services.ModerationService
	migrator   migrator // nil when the store is not Postgres
	close      func()
}

type (
	envOpener      func(ctx context.Context) (*cliEnv, error)
	passwordReader func(prompt string, in io.Reader, out io.Writer) (string, error)
)

// cliIdentity is the actor recorded for moderation done from the CLI.
var cliIdentity = &models.Identity{UserID: "bookswap-admin", Role: models.RoleAdmin}

func newRootCmd(open envOpener, readPassword passwordReader) *cobra.Command {
	var env *cliEnv

	root := &cobra.Command{
		Use:           "bookswap-admin",
		Short:         "Administer a bookswap deployment",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			e, err := open(cmd.Context())
			if err != nil {
				return err
			}
			env = e
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if env != nil {
				env.close()
			}
		},
	}
	current := func() *cliEnv { return env }

	root.AddCommand(
		newMigrateCmd(current),
		newUserCmd(current, readPassword),
		newBookCmd(current),
	)
	return root
}

func newMigrateCmd(env func() *cliEnv) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database schema migrations",
	}

	withMigrator := func(run func(cmd *cobra.Command, m migrator) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			m := env().migrator
			if m == nil {
				return errors.New("migrations require STORE=postgres")
			}
			return run(cmd, m)
		}
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: withMigrator(func(cmd *cobra.Command, m migrator) error {
				if err := m.Migrate(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
				return nil
			}),
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the most recent migration",
			Args:  cobra.NoArgs,
			RunE: withMigrator(func(cmd *cobra.Command, m migrator) error {
				if err := m.MigrateDown(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "rolled back one migration")
				return nil
			}),
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show which migrations are applied",
			Args:  cobra.NoArgs,
			RunE: withMigrator(func(cmd *cobra.Command, m migrator) error {
				statuses, err := m.MigrationStatuses(cmd.Context())
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "VERSION\tSTATE")
				for _, s := range statuses {
					state := "pending"
					if s.Applied {
						state = "applied"
					}
					fmt.Fprintf(tw, "%05d\t%s\n", s.Version, state)
				}
				return tw.Flush()
			}),
		},
	)
	return cmd
}

func newUserCmd(env func() *cliEnv, readPassword passwordReader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage user accounts",
	}

	var name string
	createAdmin := &cobra.Command{
		Use:   "create-admin EMAIL",
		Short: "Create an admin account, prompting for its password",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := readPassword("Password: ", cmd.InOrStdin(), cmd.ErrOrStderr())
			if err != nil {
				return fmt.Errorf("failed to read password: %w", err)
			}
			user, err := env().auth.CreateUser(cmd.Context(), args[0], password, name, models.RoleAdmin)
			if err != nil {
				return describe(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created admin %s (%s)\n", user.Email, user.ID)
			return nil
		},
	}
	createAdmin.Flags().StringVar(&name, "name", "", "display name (defaults to the email local part)")

	cmd.AddCommand(
		createAdmin,
		&cobra.Command{
			Use:   "promote EMAIL",
			Short: "Grant the admin role to an existing account",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				user, err := env().auth.Promote(cmd.Context(), args[0])
				if err != nil {
					return describe(err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s is now an admin\n", user.Email)
				return nil
			},
		},
		&cobra.Command{
			Use:   "unlock EMAIL",
			Short: "Clear failed login attempts and any lock on an account",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				user, err := env().auth.Unlock(cmd.Context(), args[0])
				if err != nil {
					return describe(err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s unlocked\n", user.Email)
				return nil
			},
		},
	)
	return cmd
}

func newBookCmd(env func() *cliEnv) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "book",
		Short: "Moderate book listings",
	}

	var approval string
	list := &cobra.Command{
		Use:   "list",
		Short: "List books, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			books, err := env().moderation.ListBooks(cmd.Context(), cliIdentity, approval)
			if err != nil {
				return describe(err)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tCODE\tTITLE\tOWNER\tSTATUS\tAPPROVAL")
			for _, b := range books {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", b.ID, b.PublicID, b.Title, b.OwnerEmail, b.Status, b.Approval)
			}
			return tw.Flush()
		},
	}
	list.Flags().StringVar(&approval, "approval", "", "only books in this state: pending, approved or rejected")

	moderate := func(use, short string, apply func(ctx context.Context, identity *models.Identity, id string) (*models.Book, error)) *cobra.Command {
		return &cobra.Command{
			Use:   use + " ID",
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				book, err := apply(cmd.Context(), cliIdentity, args[0])
				if err != nil {
					return describe(err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %q is now %s\n", book.PublicID, book.Title, book.Approval)
				return nil
			},
		}
	}

	cmd.AddCommand(
		list,
		moderate("approve", "Approve a book for the public catalog", func(ctx context.Context, id *models.Identity, bookID string) (*models.Book, error) {
			return env().moderation.Approve(ctx, id, bookID)
		}),
		moderate("reject", "Reject a book", func(ctx context.Context, id *models.Identity, bookID string) (*models.Book, error) {
			return env().moderation.Reject(ctx, id, bookID)
		}),
	)
	return cmd
}

// describe turns service errors into messages fit for a terminal.
func describe(err error) error {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return errors.New(models.Message(err, "no such account"))
	case errors.Is(err, models.ErrValidation), errors.Is(err, models.ErrConflict):
		return errors.New(models.Message(err, err.Error()))
	default:
		return err
	}
}
