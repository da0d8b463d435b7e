package auth

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"recreo/test/infra"
)

func TestPGRepository_Integration(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL is empty; set it to a live PostgreSQL to run integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, teardown, err := infra.ApplyMigrations(ctx, dsn, true)
	if err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	defer pool.Close()
	defer func() {
		if err := teardown(context.Background()); err != nil {
			t.Logf("teardown warning: %v", err)
		}
	}()

	svc := NewService(NewRepository(pool), "integration-secret")
	sess, err := svc.SignUp(ctx, "Ana@Example.com", "strongpassword", map[string]any{
		"name":       "Ana",
		"activities": []string{"Drawing"},
	})
	if err != nil {
		t.Fatalf("sign up: %v", err)
	}

	got, err := svc.GetUserByID(ctx, sess.User.ID)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if got.Name != "Ana" || got.Role != RoleUser || len(got.Activities) != 1 || got.Activities[0] != "Drawing" {
		t.Fatalf("unexpected stored user %+v", got)
	}

	if _, err := svc.SignIn(ctx, "ana@example.com", "strongpassword"); err != nil {
		t.Fatalf("case-insensitive sign in: %v", err)
	}
	if _, err := svc.Register(ctx, RegisterRequest{Email: "Ana@Example.com", Password: "strongpassword", Name: "Ana"}); !errors.Is(err, ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}
	if _, err := svc.GetUserByID(ctx, "missing"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}
