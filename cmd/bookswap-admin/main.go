// Command bookswap-admin runs maintenance tasks against the bookswap
// database: migrations, admin accounts, lockouts and book moderation.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"

	"github.com/BradenHooton/bookswap/internal/auth"
	"github.com/BradenHooton/bookswap/internal/config"
	"github.com/BradenHooton/bookswap/internal/database"
	"github.com/BradenHooton/bookswap/internal/policy"
	"github.com/BradenHooton/bookswap/internal/repositories"
	"github.com/BradenHooton/bookswap/internal/services"
	pkgauth "github.com/BradenHooton/bookswap/pkg/auth"
	pkglogger "github.com/BradenHooton/bookswap/pkg/logger"
)

func main() {
	root := newRootCmd(openPostgres, readPassword)
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// openPostgres connects to the configured database and wires the services
// the commands drive.
func openPostgres(ctx context.Context) (*cliEnv, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if cfg.Database.Store != "postgres" {
		return nil, fmt.Errorf("bookswap-admin requires STORE=postgres")
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	db, err := database.NewConnection(ctx, &cfg.Database, logger)
	if err != nil {
		return nil, err
	}

	env := newCLIEnv(repositories.NewPostgresStore(db), cfg, logger)
	env.migrator = db
	env.close = db.Close
	return env, nil
}

// newCLIEnv builds the services over store. The CLI never deletes books, so
// it needs no image store.
func newCLIEnv(store repositories.Store, cfg *config.Config, logger *slog.Logger) *cliEnv {
	audit := pkglogger.NewAuditLogger(logger)
	p := policy.New(cfg.Auth.AdminEmails)
	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.SessionExpiry)
	lockout := services.NewLockoutPolicy(cfg.Auth.LoginLimit, cfg.Auth.LockDuration)

	authSvc := services.NewAuthService(store, pkgauth.NewPasswordHasher(bcrypt.DefaultCost), tokens, nil,
		lockout, logger, audit, nil)
	books := services.NewBookService(store, nil, p, nil, logger, audit, nil)

	return &cliEnv{
		auth:       authSvc,
		moderation: services.NewModerationService(store, books, p, logger, audit, nil),
		close:      func() {},
	}
}

// readPassword reads a password from the terminal without echoing it, or a
// single line from stdin when it is not a terminal.
func readPassword(prompt string, in io.Reader, out io.Writer) (string, error) {
	fmt.Fprint(out, prompt)
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(out)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(b)), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	fmt.Fprintln(out)
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
