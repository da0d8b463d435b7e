// Package actors drives the recreo screens against a live database the way
// concurrent app users would.
package actors

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"recreo/auth"
	"recreo/community"
	"recreo/drawing"
	"recreo/gateway"
	"recreo/reconcile"
	"recreo/session"
)

// User is a signed-in user that never signs out.
type User session.User

func (u User) RequireUser() (session.User, error) { return session.User(u), nil }

// NewUser returns a user with a unique email.
func NewUser(name string) User {
	return User{
		Name:       name,
		Email:      fmt.Sprintf("%s-%s@stress.test", name, uuid.NewString()[:8]),
		Role:       auth.RoleUser,
		Activities: []string{"Drawing", "Community Sharing"},
	}
}

// expected reports errors a user can see under contention or chaos without
// a bug being involved.
func expected(err error) bool {
	var (
		gwErr *reconcile.GatewayError
		vErr  *reconcile.ValidationError
	)
	return err == nil ||
		errors.As(err, &gwErr) ||
		errors.As(err, &vErr) ||
		errors.Is(err, reconcile.ErrStoreClosed) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

func stopped(ctx context.Context, stop <-chan struct{}) bool {
	select {
	case <-ctx.Done():
		return true
	case <-stop:
		return true
	default:
		return false
	}
}

// settled fails when a screen still shows pending records or in-flight
// mutations after its user went idle.
func settled[P reconcile.Payload[P]](name string, m *reconcile.Machine, recs []reconcile.Record[P]) error {
	if n := m.InFlight(); n != 0 {
		return fmt.Errorf("%s: %d mutations still in flight", name, n)
	}
	for _, r := range recs {
		if r.Status == reconcile.StatusPending {
			return fmt.Errorf("%s: record %s left pending", name, r.ID)
		}
	}
	return nil
}

func pick[P reconcile.Payload[P]](recs []reconcile.Record[P], keep func(P) bool) (reconcile.Record[P], bool) {
	candidates := make([]reconcile.Record[P], 0, len(recs))
	for _, r := range recs {
		if r.Status == reconcile.StatusConfirmed && keep(r.Payload) {
			candidates = append(candidates, r)
		}
	}
	if len(candidates) == 0 {
		return reconcile.Record[P]{}, false
	}
	return candidates[rand.Intn(len(candidates))], true
}

// Poster creates, edits and deletes its own posts, refreshing in between.
func Poster(ctx context.Context, data gateway.Data, u User, stop <-chan struct{}) error {
	feed := community.NewFeed(data, nil, u)
	defer feed.Close()
	mine := func(p community.Post) bool { return p.UserEmail == u.Email }

	for n := 0; !stopped(ctx, stop); n++ {
		var err error
		switch rand.Intn(4) {
		case 0:
			err = feed.Refresh(ctx)
		case 1:
			if rec, ok := pick(feed.Posts(), mine); ok {
				_, err = feed.EditPost(ctx, rec.ID, fmt.Sprintf("%s edit %d", u.Name, n))
			}
		case 2:
			if rec, ok := pick(feed.Posts(), mine); ok {
				err = feed.DeletePost(ctx, rec.ID)
			}
		default:
			_, err = feed.CreatePost(ctx, fmt.Sprintf("%s post %d", u.Name, n), nil)
		}
		if !expected(err) {
			return fmt.Errorf("poster %s: %w", u.Email, err)
		}
		time.Sleep(time.Duration(10+rand.Intn(20)) * time.Millisecond)
	}
	return settled("poster "+u.Email, feed.Machine(), feed.Posts())
}

// Commenter opens threads on whatever posts exist and comments on them.
func Commenter(ctx context.Context, data gateway.Data, u User, stop <-chan struct{}) error {
	feed := community.NewFeed(data, nil, u)
	defer feed.Close()
	everyPost := func(community.Post) bool { return true }

	for n := 0; !stopped(ctx, stop); n++ {
		err := feed.Refresh(ctx)
		if err == nil {
			if rec, ok := pick(feed.Posts(), everyPost); ok {
				var t *community.Thread
				if t, err = feed.OpenThread(ctx, rec.ID); err == nil {
					if _, err = t.AddComment(ctx, fmt.Sprintf("%s says %d", u.Name, n)); err == nil && rand.Intn(3) == 0 {
						if c, ok := pick(t.Comments(), func(c community.Comment) bool { return c.UserEmail == u.Email }); ok {
							err = t.DeleteComment(ctx, c.ID)
						}
					}
					if serr := settled("thread "+u.Email, feed.Machine(), t.Comments()); serr != nil && err == nil {
						return serr
					}
				}
			}
		}
		if !expected(err) {
			return fmt.Errorf("commenter %s: %w", u.Email, err)
		}
		time.Sleep(time.Duration(20+rand.Intn(40)) * time.Millisecond)
	}
	return nil
}

// Sketcher saves, overwrites and deletes its own drawings.
func Sketcher(ctx context.Context, data gateway.Data, u User, stop <-chan struct{}) error {
	gallery := drawing.NewGallery(data, nil, u)
	defer gallery.Close()
	mine := func(d drawing.Drawing) bool { return d.UserEmail == u.Email }

	for n := 0; !stopped(ctx, stop); n++ {
		canvas := drawing.NewCanvas()
		canvas.TouchStart(float64(n), 0)
		for i := 1; i <= 1+rand.Intn(5); i++ {
			canvas.TouchMove(float64(n+i), float64(i*i))
		}

		var err error
		switch rand.Intn(4) {
		case 0:
			err = gallery.Refresh(ctx)
		case 1:
			if rec, ok := pick(gallery.Drawings(), mine); ok {
				_, err = gallery.Save(ctx, rec.ID, canvas.Strokes(), nil)
			}
		case 2:
			if rec, ok := pick(gallery.Drawings(), mine); ok {
				err = gallery.Delete(ctx, rec.ID)
			}
		default:
			_, err = gallery.Save(ctx, "", canvas.Strokes(), nil)
		}
		if !expected(err) {
			return fmt.Errorf("sketcher %s: %w", u.Email, err)
		}
		time.Sleep(time.Duration(15+rand.Intn(35)) * time.Millisecond)
	}
	return settled("sketcher "+u.Email, gallery.Machine(), gallery.Drawings())
}

// Replayer sends the same idempotent creation from several goroutines at
// once; every call that succeeds must resolve to the same row.
func Replayer(ctx context.Context, data gateway.IdempotentInserter, u User, fanout int, stop <-chan struct{}) error {
	actor := gateway.WithActor(ctx, u.Email)
	for n := 0; !stopped(ctx, stop); n++ {
		key := reconcile.UUIDGenerator{}.NewTemporaryID()
		content := fmt.Sprintf("replay %d", n)

		ids := make([]any, fanout)
		var g errgroup.Group
		for i := range fanout {
			g.Go(func() error {
				row := gateway.Row{"username": u.Name, "content": content}
				created, err := data.InsertIdempotent(actor, community.PostsTable, key, row)
				if err != nil {
					return nil
				}
				ids[i] = created["id"]
				return nil
			})
		}
		_ = g.Wait()

		var first any
		for _, id := range ids {
			if id == nil {
				continue
			}
			if first == nil {
				first = id
			} else if id != first {
				return fmt.Errorf("replayer %s: key %s created %v and %v", u.Email, key, first, id)
			}
		}
		time.Sleep(time.Duration(30+rand.Intn(50)) * time.Millisecond)
	}
	return nil
}
