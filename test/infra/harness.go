package infra

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

const defaultImage = "postgres:16"

// Harness owns the lifecycle of a migrated test database and its pgx pool.
type Harness struct {
	container *postgres.PostgresContainer
	pool      *pgxpool.Pool
	dsn       string
	teardown  func(context.Context) error
}

// NewHarness resolves a database (DATABASE_URL, RECREO_TEST_PG_DSN, a
// container or a local server, in that order) and applies the schema in an
// isolated search path.
func NewHarness(ctx context.Context) (*Harness, error) {
	h := &Harness{}

	switch {
	case os.Getenv("DATABASE_URL") != "":
		h.dsn = os.Getenv("DATABASE_URL")
	case os.Getenv("RECREO_TEST_PG_DSN") != "":
		h.dsn = os.Getenv("RECREO_TEST_PG_DSN")
	case DockerAvailable(ctx):
		if err := h.startContainer(ctx); err != nil {
			return nil, fmt.Errorf("start postgres container: %w", err)
		}
	default:
		dsn, err := InitLocalDatabase(ctx)
		if err != nil {
			return nil, fmt.Errorf("no database available: %w", err)
		}
		h.dsn = dsn
	}

	pool, teardown, err := ApplyMigrations(ctx, h.dsn, true)
	if err != nil {
		h.Close(ctx)
		return nil, err
	}
	h.pool, h.teardown = pool, teardown
	return h, nil
}

// Pool exposes the configured pgx pool.
func (h *Harness) Pool() *pgxpool.Pool {
	return h.pool
}

// DSN returns the connection string for direct connections (e.g., chaos).
func (h *Harness) DSN() string {
	return h.dsn
}

// Close tears down resources.
func (h *Harness) Close(ctx context.Context) {
	if h.pool != nil {
		h.pool.Close()
	}
	if h.teardown != nil {
		_ = h.teardown(ctx)
	}
	if h.container != nil {
		_ = h.container.Terminate(ctx)
	}
}

// containerImage is the Postgres image for throwaway databases.
// RECREO_TEST_PG_IMAGE pins another one, e.g. the hosted project's version.
func containerImage() string {
	if img := os.Getenv("RECREO_TEST_PG_IMAGE"); img != "" {
		return img
	}
	return defaultImage
}

func (h *Harness) startContainer(ctx context.Context) error {
	c, err := postgres.Run(ctx, containerImage(),
		postgres.WithDatabase("recreo"),
		postgres.WithUsername("recreo"),
		postgres.WithPassword("recreo"),
	)
	if err != nil {
		return err
	}
	h.container = c
	dsn, err := c.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = c.Terminate(ctx)
		h.container = nil
		return err
	}
	h.dsn = dsn
	return nil
}

// Reset truncates mutable tables to provide a clean slate between tests.
func (h *Harness) Reset(ctx context.Context) error {
	tables := []string{
		"mutation_keys",
		"community_comments",
		"community_posts",
		"drawings",
		"app_users",
	}

	tx, err := h.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("reset begin: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, table := range tables {
		if _, err := tx.Exec(ctx, fmt.Sprintf("TRUNCATE %s CASCADE", pgx.Identifier{table}.Sanitize())); err != nil {
			return fmt.Errorf("truncate %s: %w", table, err)
		}
	}
	return tx.Commit(ctx)
}

// DockerAvailable reports whether a docker daemon answers.
func DockerAvailable(ctx context.Context) bool {
	if _, err := exec.LookPath("docker"); err != nil {
		return false
	}
	c := exec.CommandContext(ctx, "docker", "info")
	c.Stdout = io.Discard
	c.Stderr = io.Discard
	return c.Run() == nil
}
