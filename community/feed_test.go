package community

import (
	"context"
	"errors"
	"testing"
	"time"

	"recreo/gateway"
	"recreo/gateway/gatewaytest"
	"recreo/reconcile"
	"recreo/session"
)

type fakeUsers struct {
	user *session.User
}

func (f *fakeUsers) RequireUser() (session.User, error) {
	if f.user == nil {
		return session.User{}, session.ErrSignedOut
	}
	return *f.user, nil
}

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	data  *gatewaytest.Data
	blob  *gatewaytest.Blob
	users *fakeUsers
	feed  *Feed
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	data := gatewaytest.NewData().
		WithOwner(PostsTable, "user_email").
		WithOwner(CommentsTable, "user_email")
	blob := gatewaytest.NewBlob()
	users := &fakeUsers{user: &session.User{Name: "Ana", Email: "ana@example.com"}}
	feed := NewFeed(data, blob, users).
		WithIDGenerator(&reconcile.SequenceGenerator{}).
		WithClock(func() time.Time { return fixedNow })
	t.Cleanup(feed.Close)
	return &fixture{data: data, blob: blob, users: users, feed: feed}
}

func seedPost(d *gatewaytest.Data, id, email, content string, at time.Time) {
	d.Seed(PostsTable, gateway.Row{
		"id":         id,
		"user_email": email,
		"username":   email,
		"content":    content,
		"image_url":  nil,
		"created_at": at,
		"updated_at": at,
	})
}

func ids[P reconcile.Payload[P]](recs []reconcile.Record[P]) []string {
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.ID)
	}
	return out
}

func TestFeed_RefreshNewestFirst(t *testing.T) {
	fx := newFixture(t)
	base := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	seedPost(fx.data, "p1", "bo@example.com", "first", base)
	seedPost(fx.data, "p2", "bo@example.com", "second", base.Add(time.Hour))

	if err := fx.feed.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	got := ids(fx.feed.Posts())
	if len(got) != 2 || got[0] != "p2" || got[1] != "p1" {
		t.Fatalf("expected [p2 p1], got %v", got)
	}
}

func TestFeed_RefreshRejectsMalformedRows(t *testing.T) {
	fx := newFixture(t)
	fx.data.Seed(PostsTable, gateway.Row{"id": "p1", "content": 42})

	err := fx.feed.Refresh(context.Background())
	if !errors.Is(err, gateway.ErrMalformed) {
		t.Fatalf("expected malformed, got %v", err)
	}
	if n := len(fx.feed.Notices().List()); n != 1 {
		t.Fatalf("expected one notice, got %d", n)
	}
}

func TestFeed_CreatePostConfirms(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	rec, err := fx.feed.CreatePost(ctx, "hello", nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if rec.Status != reconcile.StatusConfirmed || rec.ID == "temp-1" {
		t.Fatalf("unexpected record: %+v", rec)
	}
	posts := fx.feed.Posts()
	if len(posts) != 1 || posts[0].ID != rec.ID {
		t.Fatalf("expected only the confirmed post, got %v", ids(posts))
	}
	if posts[0].Payload.Username != "Ana" || posts[0].Payload.UserEmail != "ana@example.com" {
		t.Fatalf("author not recorded: %+v", posts[0].Payload)
	}
	if fx.feed.Machine().Phase() != reconcile.PhaseConfirmed {
		t.Fatalf("phase = %s", fx.feed.Machine().Phase())
	}
}

func TestFeed_CreatePostUploadsImage(t *testing.T) {
	fx := newFixture(t)

	rec, err := fx.feed.CreatePost(context.Background(), "look", &Attachment{Filename: "cat.PNG", Data: []byte{1, 2, 3}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	wantKey := "ana@example.com/1709294400000.png"
	if rec.Payload.ImageKey != wantKey {
		t.Fatalf("image key = %q, want %q", rec.Payload.ImageKey, wantKey)
	}
	data, contentType, ok := fx.blob.Object(ImageBucket, wantKey)
	if !ok || len(data) != 3 || contentType != "image/png" {
		t.Fatalf("object not stored: ok=%v len=%d type=%q", ok, len(data), contentType)
	}
	if url := rec.Payload.ImageURL("https://cdn.test/public/"); url != "https://cdn.test/public/community-images/"+wantKey {
		t.Fatalf("image url = %q", url)
	}
}

func TestFeed_UploadFailureRollsBack(t *testing.T) {
	fx := newFixture(t)
	fx.blob.Fail(gateway.ErrUnavailable)

	rec, err := fx.feed.CreatePost(context.Background(), "look", &Attachment{Filename: "cat.jpg", Data: []byte{1}})
	var gwErr *reconcile.GatewayError
	if !errors.As(err, &gwErr) || gwErr.Kind != gateway.KindUnavailable {
		t.Fatalf("expected unavailable gateway error, got %v", err)
	}
	if rec.Status != reconcile.StatusFailed {
		t.Fatalf("status = %s", rec.Status)
	}
	if fx.feed.Store().Len() != 0 {
		t.Fatalf("failed post must be removed, got %v", ids(fx.feed.Posts()))
	}
	if fx.data.Calls("insert", PostsTable) != 0 {
		t.Fatal("row must not be inserted after a failed upload")
	}
	if n := len(fx.feed.Notices().List()); n != 1 {
		t.Fatalf("expected one notice, got %d", n)
	}
}

func TestFeed_CreatePostValidation(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	var vErr *reconcile.ValidationError

	if _, err := fx.feed.CreatePost(ctx, "   ", nil); !errors.As(err, &vErr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	fx.users.user = nil
	if _, err := fx.feed.CreatePost(ctx, "hi", nil); !errors.As(err, &vErr) {
		t.Fatalf("expected validation error when signed out, got %v", err)
	}
	if fx.data.Calls("insert", PostsTable) != 0 || fx.feed.Store().Len() != 0 {
		t.Fatal("validation must have no local or remote effect")
	}
}

func TestFeed_CreatePostAttachmentWithoutBlob(t *testing.T) {
	data := gatewaytest.NewData().WithOwner(PostsTable, "user_email")
	users := &fakeUsers{user: &session.User{Name: "Ana", Email: "ana@example.com"}}
	feed := NewFeed(data, nil, users).WithIDGenerator(&reconcile.SequenceGenerator{})
	t.Cleanup(feed.Close)

	renders := 0
	unsubscribe := feed.Store().Subscribe(func([]reconcile.Record[Post]) { renders++ })
	defer unsubscribe()

	_, err := feed.CreatePost(context.Background(), "hi", &Attachment{Filename: "a.png", Data: []byte("png")})
	var vErr *reconcile.ValidationError
	if !errors.As(err, &vErr) || vErr.Field != "image" {
		t.Fatalf("expected image validation error, got %v", err)
	}
	if renders != 0 || feed.Store().Len() != 0 {
		t.Fatalf("expected no local effect, got %d renders", renders)
	}
	if n := len(feed.Notices().List()); n != 0 || data.Calls("insert", PostsTable) != 0 {
		t.Fatalf("expected no notices or inserts, got %d notices", n)
	}
}

func TestFeed_DeleteOnlyOwnPosts(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	seedPost(fx.data, "theirs", "bo@example.com", "not yours", fixedNow)
	if err := fx.feed.Refresh(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	var vErr *reconcile.ValidationError
	if err := fx.feed.DeletePost(ctx, "theirs"); !errors.As(err, &vErr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if fx.data.Calls("delete", PostsTable) != 0 || fx.feed.Store().Len() != 1 {
		t.Fatal("foreign post must be left alone")
	}
}

func TestFeed_DeleteFailureRestoresPosition(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	seedPost(fx.data, "a", "ana@example.com", "a", fixedNow.Add(-2*time.Hour))
	seedPost(fx.data, "b", "ana@example.com", "b", fixedNow.Add(-time.Hour))
	seedPost(fx.data, "c", "ana@example.com", "c", fixedNow)
	if err := fx.feed.Refresh(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	fx.data.Fail("delete", PostsTable, gateway.ErrUnavailable)

	if err := fx.feed.DeletePost(ctx, "b"); err == nil {
		t.Fatal("expected delete to fail")
	}
	got := ids(fx.feed.Posts())
	if len(got) != 3 || got[1] != "b" {
		t.Fatalf("expected b restored at index 1, got %v", got)
	}
	if fx.feed.Machine().Phase() != reconcile.PhaseRolledBack {
		t.Fatalf("phase = %s", fx.feed.Machine().Phase())
	}
}

func TestFeed_EditPostFailureRestoresContent(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	seedPost(fx.data, "p1", "ana@example.com", "original", fixedNow)
	if err := fx.feed.Refresh(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	fx.data.FailOnce("update", PostsTable, gateway.ErrForbidden)
	if _, err := fx.feed.EditPost(ctx, "p1", "changed"); err == nil {
		t.Fatal("expected edit to fail")
	}
	rec, _ := fx.feed.Store().Get("p1")
	if rec.Payload.Content != "original" || rec.Status != reconcile.StatusConfirmed {
		t.Fatalf("snapshot not restored: %+v", rec)
	}

	updated, err := fx.feed.EditPost(ctx, "p1", "changed")
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if updated.Payload.Content != "changed" {
		t.Fatalf("content = %q", updated.Payload.Content)
	}
}

func TestFeed_OpenThreadRejectsUnsavedPost(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	inserted := make(chan struct{}, 1)
	unsubscribe := fx.feed.Store().Subscribe(func([]reconcile.Record[Post]) {
		select {
		case inserted <- struct{}{}:
		default:
		}
	})
	release := fx.data.Hold()
	done := make(chan error, 1)
	go func() {
		_, err := fx.feed.CreatePost(ctx, "slow", nil)
		done <- err
	}()
	<-inserted
	unsubscribe()

	var vErr *reconcile.ValidationError
	if _, err := fx.feed.OpenThread(ctx, "temp-1"); !errors.As(err, &vErr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	release()
	if err := <-done; err != nil {
		t.Fatalf("create: %v", err)
	}
}

func TestFeed_DeletePostClosesItsThread(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	seedPost(fx.data, "p1", "ana@example.com", "mine", fixedNow)
	if err := fx.feed.Refresh(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	thread, err := fx.feed.OpenThread(ctx, "p1")
	if err != nil {
		t.Fatalf("open thread: %v", err)
	}

	if err := fx.feed.DeletePost(ctx, "p1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if fx.feed.Thread() != nil || !thread.Store().Closed() {
		t.Fatal("thread of a deleted post must be closed")
	}
}
