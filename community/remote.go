package community

import (
	"context"
	"fmt"
	"time"

	"recreo/gateway"
	"recreo/reconcile"
)

type postRemote struct {
	data gateway.Data
	blob gateway.Blob
	now  func() time.Time
}

func (r *postRemote) Create(ctx context.Context, p Post) (reconcile.Record[Post], error) {
	return r.create(ctx, p, func(row gateway.Row) (gateway.Row, error) {
		return r.data.Insert(ctx, PostsTable, row)
	})
}

func (r *postRemote) CreateIdempotent(ctx context.Context, key string, p Post) (reconcile.Record[Post], error) {
	ins, ok := r.data.(gateway.IdempotentInserter)
	if !ok {
		return r.Create(ctx, p)
	}
	return r.create(ctx, p, func(row gateway.Row) (gateway.Row, error) {
		return ins.InsertIdempotent(ctx, PostsTable, key, row)
	})
}

func (r *postRemote) create(ctx context.Context, p Post, insert func(gateway.Row) (gateway.Row, error)) (reconcile.Record[Post], error) {
	row := gateway.Row{
		"user_email": p.UserEmail,
		"username":   p.Username,
		"content":    p.Content,
		"image_url":  nil,
	}
	if p.attachment != nil {
		if r.blob == nil {
			return reconcile.Record[Post]{}, fmt.Errorf("%w: image uploads are not configured", gateway.ErrInvalid)
		}
		key := gateway.ObjectKey(p.UserEmail, r.now(), p.attachment.Filename, "jpg")
		stored, err := r.blob.Upload(ctx, ImageBucket, key, p.attachment.Data, gateway.ContentType(key))
		if err != nil {
			return reconcile.Record[Post]{}, fmt.Errorf("community: upload image: %w", err)
		}
		row["image_url"] = stored
	}

	out, err := insert(row)
	if err != nil {
		return reconcile.Record[Post]{}, fmt.Errorf("community: insert post: %w", err)
	}
	return decodePost(out)
}

func (r *postRemote) Update(ctx context.Context, id string, p Post) (reconcile.Record[Post], error) {
	out, err := r.data.Update(ctx, PostsTable, id, gateway.Row{"content": p.Content})
	if err != nil {
		return reconcile.Record[Post]{}, fmt.Errorf("community: update post: %w", err)
	}
	return decodePost(out)
}

func (r *postRemote) Delete(ctx context.Context, id string) error {
	if err := r.data.Delete(ctx, PostsTable, id); err != nil {
		return fmt.Errorf("community: delete post: %w", err)
	}
	return nil
}

type commentRemote struct {
	data gateway.Data
}

func (r *commentRemote) Create(ctx context.Context, c Comment) (reconcile.Record[Comment], error) {
	out, err := r.data.Insert(ctx, CommentsTable, commentRowFor(c))
	if err != nil {
		return reconcile.Record[Comment]{}, fmt.Errorf("community: insert comment: %w", err)
	}
	return decodeComment(out)
}

func (r *commentRemote) CreateIdempotent(ctx context.Context, key string, c Comment) (reconcile.Record[Comment], error) {
	ins, ok := r.data.(gateway.IdempotentInserter)
	if !ok {
		return r.Create(ctx, c)
	}
	out, err := ins.InsertIdempotent(ctx, CommentsTable, key, commentRowFor(c))
	if err != nil {
		return reconcile.Record[Comment]{}, fmt.Errorf("community: insert comment: %w", err)
	}
	return decodeComment(out)
}

func (r *commentRemote) Update(ctx context.Context, id string, c Comment) (reconcile.Record[Comment], error) {
	out, err := r.data.Update(ctx, CommentsTable, id, gateway.Row{"content": c.Content})
	if err != nil {
		return reconcile.Record[Comment]{}, fmt.Errorf("community: update comment: %w", err)
	}
	return decodeComment(out)
}

func (r *commentRemote) Delete(ctx context.Context, id string) error {
	if err := r.data.Delete(ctx, CommentsTable, id); err != nil {
		return fmt.Errorf("community: delete comment: %w", err)
	}
	return nil
}

func commentRowFor(c Comment) gateway.Row {
	return gateway.Row{
		"post_id":    c.PostID,
		"user_email": c.UserEmail,
		"username":   c.Username,
		"content":    c.Content,
	}
}
