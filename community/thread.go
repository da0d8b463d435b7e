package community

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"recreo/gateway"
	"recreo/reconcile"
)

// Thread is the comment list of one post, oldest first.
type Thread struct {
	feed     *Feed
	postID   string
	comments *reconcile.Reconciler[Comment]
}

func newThread(f *Feed, postID string) *Thread {
	r := reconcile.New[Comment]("comment", reconcile.NewStore[Comment](reconcile.OldestFirst), &commentRemote{data: f.data}).
		WithIDGenerator(f.ids).
		WithLogger(f.log.WithField("post_id", postID)).
		WithMachine(f.machine).
		WithNotices(f.notices)
	if f.observer != nil {
		r.WithObserver(f.observer)
	}
	return &Thread{feed: f, postID: postID, comments: r}
}

func (t *Thread) PostID() string { return t.postID }

func (t *Thread) Store() *reconcile.Store[Comment] { return t.comments.Store() }

func (t *Thread) Comments() []reconcile.Record[Comment] { return t.comments.Store().Records() }

// Refresh reloads the thread's comments, oldest first.
func (t *Thread) Refresh(ctx context.Context) error {
	rows, err := t.feed.data.Query(ctx, CommentsTable,
		gateway.Filter{"post_id": t.postID},
		&gateway.Order{Column: "created_at"})
	if err != nil {
		return t.feed.loadFailed(fmt.Errorf("community: list comments: %w", err))
	}
	records := make([]reconcile.Record[Comment], 0, len(rows))
	for _, row := range rows {
		rec, err := decodeComment(row)
		if err != nil {
			return t.feed.loadFailed(err)
		}
		records = append(records, rec)
	}
	return t.comments.Store().Refresh(records)
}

func (t *Thread) AddComment(ctx context.Context, content string) (reconcile.Record[Comment], error) {
	u, err := t.feed.users.RequireUser()
	if err != nil {
		return reconcile.Record[Comment]{}, reconcile.Invalid("user", "sign in required")
	}
	c := Comment{
		PostID:    t.postID,
		UserEmail: u.Email,
		Username:  u.DisplayName(),
		Content:   content,
		CreatedAt: t.feed.now(),
	}
	return t.comments.Create(gateway.WithActor(ctx, u.Email), c)
}

func (t *Thread) EditComment(ctx context.Context, id, content string) (reconcile.Record[Comment], error) {
	email, rec, err := t.own(id)
	if err != nil {
		return reconcile.Record[Comment]{}, err
	}
	c := rec.Payload.Clone()
	c.Content = content
	return t.comments.Update(gateway.WithActor(ctx, email), id, c)
}

func (t *Thread) DeleteComment(ctx context.Context, id string) error {
	email, _, err := t.own(id)
	if err != nil {
		return err
	}
	return t.comments.Delete(gateway.WithActor(ctx, email), id)
}

// Close discards the thread. Comment mutations still in flight settle into
// a closed store and are dropped.
func (t *Thread) Close() {
	t.comments.Store().Close()
	t.feed.log.WithFields(logrus.Fields{"post_id": t.postID}).Debug("thread closed")
}

func (t *Thread) own(id string) (string, reconcile.Record[Comment], error) {
	u, err := t.feed.users.RequireUser()
	if err != nil {
		return "", reconcile.Record[Comment]{}, reconcile.Invalid("user", "sign in required")
	}
	rec, ok := t.comments.Store().Get(id)
	if ok && rec.Payload.UserEmail != u.Email {
		return "", reconcile.Record[Comment]{}, reconcile.Invalid("id", "you can only change your own comments")
	}
	return u.Email, rec, nil
}
