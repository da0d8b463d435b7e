package drawing

import (
	"context"
	"fmt"
	"time"

	"recreo/gateway"
	"recreo/reconcile"
)

type remote struct {
	data gateway.Data
	blob gateway.Blob
	now  func() time.Time
}

func (r *remote) Create(ctx context.Context, d Drawing) (reconcile.Record[Drawing], error) {
	return r.create(ctx, d, func(row gateway.Row) (gateway.Row, error) {
		return r.data.Insert(ctx, Table, row)
	})
}

func (r *remote) CreateIdempotent(ctx context.Context, key string, d Drawing) (reconcile.Record[Drawing], error) {
	ins, ok := r.data.(gateway.IdempotentInserter)
	if !ok {
		return r.Create(ctx, d)
	}
	return r.create(ctx, d, func(row gateway.Row) (gateway.Row, error) {
		return ins.InsertIdempotent(ctx, Table, key, row)
	})
}

func (r *remote) create(ctx context.Context, d Drawing, insert func(gateway.Row) (gateway.Row, error)) (reconcile.Record[Drawing], error) {
	paths, err := encodePaths(d.Strokes)
	if err != nil {
		return reconcile.Record[Drawing]{}, err
	}
	row := gateway.Row{
		"user_email": d.UserEmail,
		"title":      d.Title,
		"paths":      paths,
		"thumbnail":  nil,
	}
	if key, err := r.uploadThumbnail(ctx, d); err != nil {
		return reconcile.Record[Drawing]{}, err
	} else if key != "" {
		row["thumbnail"] = key
	}

	out, err := insert(row)
	if err != nil {
		return reconcile.Record[Drawing]{}, fmt.Errorf("drawing: insert: %w", err)
	}
	return decodeDrawing(out)
}

func (r *remote) Update(ctx context.Context, id string, d Drawing) (reconcile.Record[Drawing], error) {
	paths, err := encodePaths(d.Strokes)
	if err != nil {
		return reconcile.Record[Drawing]{}, err
	}
	patch := gateway.Row{"title": d.Title, "paths": paths}
	if key, err := r.uploadThumbnail(ctx, d); err != nil {
		return reconcile.Record[Drawing]{}, err
	} else if key != "" {
		patch["thumbnail"] = key
	}

	out, err := r.data.Update(ctx, Table, id, patch)
	if err != nil {
		return reconcile.Record[Drawing]{}, fmt.Errorf("drawing: update %s: %w", id, err)
	}
	return decodeDrawing(out)
}

func (r *remote) Delete(ctx context.Context, id string) error {
	if err := r.data.Delete(ctx, Table, id); err != nil {
		return fmt.Errorf("drawing: delete %s: %w", id, err)
	}
	return nil
}

func (r *remote) uploadThumbnail(ctx context.Context, d Drawing) (string, error) {
	if len(d.thumbnail) == 0 || r.blob == nil {
		return "", nil
	}
	key := gateway.ObjectKey(d.UserEmail, r.now(), "", "png")
	stored, err := r.blob.Upload(ctx, ThumbnailBucket, key, d.thumbnail, "image/png")
	if err != nil {
		return "", fmt.Errorf("drawing: upload thumbnail: %w", err)
	}
	return stored, nil
}
