package drawing

import (
	"context"
	"fmt"
	"io"
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

// Gallery is the signed-in user's drawings, newest first.
type Gallery struct {
	data     gateway.Data
	users    Users
	remote   *remote
	drawings *reconcile.Reconciler[Drawing]
	machine  *reconcile.Machine
	notices  *reconcile.Notices
	log      logrus.FieldLogger
	now      func() time.Time
}

func NewGallery(data gateway.Data, blob gateway.Blob, users Users) *Gallery {
	log := logrus.New()
	log.SetOutput(io.Discard)

	g := &Gallery{
		data:    data,
		users:   users,
		machine: reconcile.NewMachine(),
		notices: reconcile.NewNotices(),
		log:     log,
		now:     time.Now,
	}
	g.remote = &remote{data: data, blob: blob, now: func() time.Time { return g.now() }}
	g.drawings = reconcile.New[Drawing]("drawing", reconcile.NewStore[Drawing](reconcile.NewestFirst), g.remote).
		WithMachine(g.machine).
		WithNotices(g.notices)
	return g
}

func (g *Gallery) WithLogger(log logrus.FieldLogger) *Gallery {
	g.log = log
	g.drawings.WithLogger(log)
	return g
}

func (g *Gallery) WithObserver(o reconcile.Observer) *Gallery {
	g.drawings.WithObserver(o)
	return g
}

func (g *Gallery) WithIDGenerator(ids reconcile.IDGenerator) *Gallery {
	g.drawings.WithIDGenerator(ids)
	return g
}

func (g *Gallery) WithClock(now func() time.Time) *Gallery {
	g.now = now
	return g
}

func (g *Gallery) Store() *reconcile.Store[Drawing] { return g.drawings.Store() }

func (g *Gallery) Drawings() []reconcile.Record[Drawing] { return g.drawings.Store().Records() }

func (g *Gallery) Machine() *reconcile.Machine { return g.machine }

func (g *Gallery) Notices() *reconcile.Notices { return g.notices }

// Refresh reloads the signed-in user's drawings.
func (g *Gallery) Refresh(ctx context.Context) error {
	u, err := g.users.RequireUser()
	if err != nil {
		return err
	}
	rows, err := g.data.Query(ctx, Table,
		gateway.Filter{"user_email": u.Email},
		&gateway.Order{Column: "created_at", Descending: true})
	if err != nil {
		return g.loadFailed(fmt.Errorf("drawing: list: %w", err))
	}
	records := make([]reconcile.Record[Drawing], 0, len(rows))
	for _, row := range rows {
		rec, err := decodeDrawing(row)
		if err != nil {
			return g.loadFailed(err)
		}
		records = append(records, rec)
	}
	return g.drawings.Store().Refresh(records)
}

// Save stores strokes as a new drawing when id is empty and overwrites
// drawing id otherwise. A non-empty thumbnail is uploaded as PNG.
func (g *Gallery) Save(ctx context.Context, id string, strokes []Stroke, thumbnail []byte) (reconcile.Record[Drawing], error) {
	if len(strokes) == 0 {
		return reconcile.Record[Drawing]{}, reconcile.Invalid("paths", "cannot save an empty drawing")
	}
	u, err := g.users.RequireUser()
	if err != nil {
		return reconcile.Record[Drawing]{}, reconcile.Invalid("user", "sign in required")
	}
	ctx = gateway.WithActor(ctx, u.Email)
	now := g.now()

	if id == "" {
		return g.drawings.Create(ctx, Drawing{
			UserEmail: u.Email,
			Strokes:   strokes,
			CreatedAt: now,
			UpdatedAt: now,
			thumbnail: thumbnail,
		})
	}

	rec, ok := g.drawings.Store().Get(id)
	if ok && rec.Payload.UserEmail != u.Email {
		return reconcile.Record[Drawing]{}, reconcile.Invalid("id", "you can only change your own drawings")
	}
	d := rec.Payload.Clone()
	d.UserEmail = u.Email
	d.Strokes = strokes
	d.UpdatedAt = now
	d.thumbnail = thumbnail
	return g.drawings.Update(ctx, id, d)
}

func (g *Gallery) Delete(ctx context.Context, id string) error {
	u, err := g.users.RequireUser()
	if err != nil {
		return reconcile.Invalid("user", "sign in required")
	}
	if rec, ok := g.drawings.Store().Get(id); ok && rec.Payload.UserEmail != u.Email {
		return reconcile.Invalid("id", "you can only delete your own drawings")
	}
	return g.drawings.Delete(gateway.WithActor(ctx, u.Email), id)
}

// Edit returns a canvas preloaded with the strokes of drawing id.
func (g *Gallery) Edit(id string) (*Canvas, error) {
	rec, ok := g.drawings.Store().Get(id)
	if !ok {
		return nil, reconcile.Invalid("id", "unknown drawing "+id)
	}
	c := NewCanvas()
	c.strokes = rec.Payload.Clone().Strokes
	return c, nil
}

// Close tears the screen down. Responses still in flight are discarded.
func (g *Gallery) Close() { g.drawings.Store().Close() }

func (g *Gallery) loadFailed(err error) error {
	gwErr := reconcile.LoadError(err)
	g.log.WithFields(logrus.Fields{"op": reconcile.OpLoad, "kind": gwErr.Kind}).WithError(err).Warn("drawing load failed")
	g.notices.Report(gwErr)
	return gwErr
}
