package community

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"recreo/gateway"
	"recreo/reconcile"
	"recreo/session"
)

// Users supplies the signed-in user. *session.Manager satisfies it.
type Users interface {
	RequireUser() (session.User, error)
}

// Feed is the community screen: posts newest first plus at most one open
// comment thread.
type Feed struct {
	data     gateway.Data
	blob     gateway.Blob
	users    Users
	remote   *postRemote
	posts    *reconcile.Reconciler[Post]
	machine  *reconcile.Machine
	notices  *reconcile.Notices
	observer reconcile.Observer
	ids      reconcile.IDGenerator
	log      logrus.FieldLogger
	now      func() time.Time

	mu     sync.Mutex
	thread *Thread
}

func NewFeed(data gateway.Data, blob gateway.Blob, users Users) *Feed {
	log := logrus.New()
	log.SetOutput(io.Discard)

	f := &Feed{
		data:    data,
		blob:    blob,
		users:   users,
		machine: reconcile.NewMachine(),
		notices: reconcile.NewNotices(),
		ids:     reconcile.UUIDGenerator{},
		log:     log,
		now:     time.Now,
	}
	f.remote = &postRemote{data: data, blob: blob, now: f.clock}
	f.posts = reconcile.New[Post]("post", reconcile.NewStore[Post](reconcile.NewestFirst), f.remote).
		WithMachine(f.machine).
		WithNotices(f.notices)
	return f
}

func (f *Feed) WithLogger(log logrus.FieldLogger) *Feed {
	f.log = log
	f.posts.WithLogger(log)
	return f
}

func (f *Feed) WithObserver(o reconcile.Observer) *Feed {
	f.observer = o
	f.posts.WithObserver(o)
	return f
}

func (f *Feed) WithIDGenerator(ids reconcile.IDGenerator) *Feed {
	f.ids = ids
	f.posts.WithIDGenerator(ids)
	return f
}

func (f *Feed) WithClock(now func() time.Time) *Feed {
	f.now = now
	return f
}

func (f *Feed) clock() time.Time { return f.now() }

// Store exposes the posts store for rendering and subscriptions.
func (f *Feed) Store() *reconcile.Store[Post] { return f.posts.Store() }

func (f *Feed) Posts() []reconcile.Record[Post] { return f.posts.Store().Records() }

func (f *Feed) Machine() *reconcile.Machine { return f.machine }

func (f *Feed) Notices() *reconcile.Notices { return f.notices }

// Refresh reloads every post, newest first.
func (f *Feed) Refresh(ctx context.Context) error {
	rows, err := f.data.Query(ctx, PostsTable, nil, &gateway.Order{Column: "created_at", Descending: true})
	if err != nil {
		return f.loadFailed(fmt.Errorf("community: list posts: %w", err))
	}
	records := make([]reconcile.Record[Post], 0, len(rows))
	for _, row := range rows {
		rec, err := decodePost(row)
		if err != nil {
			return f.loadFailed(err)
		}
		records = append(records, rec)
	}
	return f.posts.Store().Refresh(records)
}

// CreatePost publishes content, uploading the optional image first.
func (f *Feed) CreatePost(ctx context.Context, content string, image *Attachment) (reconcile.Record[Post], error) {
	u, err := f.users.RequireUser()
	if err != nil {
		return reconcile.Record[Post]{}, reconcile.Invalid("user", "sign in required")
	}
	if image != nil && f.blob == nil {
		return reconcile.Record[Post]{}, reconcile.Invalid("image", "image uploads are not configured")
	}
	now := f.now()
	p := Post{
		UserEmail:  u.Email,
		Username:   u.DisplayName(),
		Content:    content,
		CreatedAt:  now,
		UpdatedAt:  now,
		attachment: image,
	}
	return f.posts.Create(gateway.WithActor(ctx, u.Email), p)
}

// EditPost replaces the content of one of the user's own posts.
func (f *Feed) EditPost(ctx context.Context, id, content string) (reconcile.Record[Post], error) {
	u, rec, err := f.own(id)
	if err != nil {
		return reconcile.Record[Post]{}, err
	}
	p := rec.Payload.Clone()
	p.Content = content
	p.UpdatedAt = f.now()
	return f.posts.Update(gateway.WithActor(ctx, u.Email), id, p)
}

// DeletePost removes one of the user's own posts and closes its thread if
// it is open.
func (f *Feed) DeletePost(ctx context.Context, id string) error {
	u, _, err := f.own(id)
	if err != nil {
		return err
	}

	f.mu.Lock()
	if f.thread != nil && f.thread.postID == id {
		f.thread.Close()
		f.thread = nil
	}
	f.mu.Unlock()

	return f.posts.Delete(gateway.WithActor(ctx, u.Email), id)
}

// OpenThread loads the comments of a confirmed post. Any previously open
// thread is closed first.
func (f *Feed) OpenThread(ctx context.Context, postID string) (*Thread, error) {
	rec, ok := f.posts.Store().Get(postID)
	if !ok {
		return nil, reconcile.Invalid("post_id", "unknown post")
	}
	if rec.Status == reconcile.StatusPending || f.ids.IsTemporary(postID) {
		return nil, reconcile.Invalid("post_id", "post is still being saved")
	}

	t := newThread(f, postID)
	f.mu.Lock()
	if f.thread != nil {
		f.thread.Close()
	}
	f.thread = t
	f.mu.Unlock()

	return t, t.Refresh(ctx)
}

// Thread returns the open thread, or nil.
func (f *Feed) Thread() *Thread {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.thread
}

// CloseThread closes the open thread, if any.
func (f *Feed) CloseThread() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.thread != nil {
		f.thread.Close()
		f.thread = nil
	}
}

// Close tears the screen down. Responses still in flight are discarded.
func (f *Feed) Close() {
	f.CloseThread()
	f.posts.Store().Close()
}

func (f *Feed) own(id string) (session.User, reconcile.Record[Post], error) {
	u, err := f.users.RequireUser()
	if err != nil {
		return session.User{}, reconcile.Record[Post]{}, reconcile.Invalid("user", "sign in required")
	}
	rec, ok := f.posts.Store().Get(id)
	if ok && rec.Payload.UserEmail != u.Email {
		return session.User{}, reconcile.Record[Post]{}, reconcile.Invalid("id", "you can only change your own posts")
	}
	return u, rec, nil
}

func (f *Feed) loadFailed(err error) error {
	gwErr := reconcile.LoadError(err)
	f.log.WithFields(logrus.Fields{"op": reconcile.OpLoad, "kind": gwErr.Kind}).WithError(err).Warn("community load failed")
	f.notices.Report(gwErr)
	return gwErr
}
