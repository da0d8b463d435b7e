package infra

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/jackc/pgx/v5"
)

const localDatabase = "recreo_test"

// InitLocalDatabase recreates recreo_test on a PostgreSQL server listening on
// PGHOST (default 127.0.0.1:5432) and returns its DSN.
func InitLocalDatabase(ctx context.Context) (string, error) {
	host := os.Getenv("PGHOST")
	if host == "" {
		host = "127.0.0.1"
	}
	if err := exec.CommandContext(ctx, "pg_isready", "-h", host, "-p", "5432").Run(); err != nil {
		return "", fmt.Errorf("postgres is not running on %s: %w", host, err)
	}

	var (
		adminConn *pgx.Conn
		err       error
	)
	for _, dsn := range []string{
		fmt.Sprintf("postgres://postgres@%s:5432/postgres?sslmode=disable", host),
		fmt.Sprintf("postgres://postgres:postgres@%s:5432/postgres?sslmode=disable", host),
		fmt.Sprintf("postgres://%s@%s:5432/postgres?sslmode=disable", os.Getenv("USER"), host),
	} {
		if adminConn, err = pgx.Connect(ctx, dsn); err == nil {
			break
		}
	}
	if err != nil {
		return "", fmt.Errorf("connect as admin: %w", err)
	}
	defer adminConn.Close(ctx)

	db := pgx.Identifier{localDatabase}.Sanitize()
	stmts := []string{
		"DO $$ BEGIN CREATE ROLE recreo WITH LOGIN PASSWORD 'recreo'; EXCEPTION WHEN duplicate_object THEN NULL; END $$;",
		fmt.Sprintf("SELECT pg_terminate_backend(pid) FROM pg_stat_activity WHERE datname = '%s' AND pid <> pg_backend_pid()", localDatabase),
		fmt.Sprintf("DROP DATABASE IF EXISTS %s", db),
		fmt.Sprintf("CREATE DATABASE %s OWNER recreo", db),
	}
	for _, stmt := range stmts {
		if _, err := adminConn.Exec(ctx, stmt); err != nil {
			return "", fmt.Errorf("prepare %s: %w", localDatabase, err)
		}
	}

	return fmt.Sprintf("postgres://recreo:recreo@%s:5432/%s?sslmode=disable", host, localDatabase), nil
}
