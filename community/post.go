// Package community implements the shared posts feed and its comment
// threads on top of the optimistic reconciler.
package community

import (
	"strings"
	"time"

	"recreo/gateway"
	"recreo/reconcile"
)

const (
	PostsTable    = "community_posts"
	CommentsTable = "community_comments"
	ImageBucket   = "community-images"
)

// Attachment is an image picked for a new post. It is uploaded before the
// post row is inserted.
type Attachment struct {
	Filename string
	Data     []byte
}

// Post is the payload of a community post record.
type Post struct {
	UserEmail string    `json:"user_email" yaml:"user_email"`
	Username  string    `json:"username" yaml:"username"`
	Content   string    `json:"content" yaml:"content"`
	ImageKey  string    `json:"image_url,omitempty" yaml:"image_url,omitempty"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`

	attachment *Attachment
}

func (p Post) Validate() error {
	if strings.TrimSpace(p.Content) == "" {
		return reconcile.Invalid("content", "must not be empty")
	}
	if p.UserEmail == "" {
		return reconcile.Invalid("user_email", "sign in required")
	}
	return nil
}

func (p Post) Clone() Post {
	if p.attachment != nil {
		a := *p.attachment
		a.Data = append([]byte(nil), a.Data...)
		p.attachment = &a
	}
	return p
}

// ImageURL is the public address of the post's image, or "".
func (p Post) ImageURL(base string) string {
	return gateway.PublicURL(base, ImageBucket, p.ImageKey)
}

// HasAttachment reports whether an image is still waiting to be uploaded.
func (p Post) HasAttachment() bool { return p.attachment != nil }

// Comment is the payload of a comment record.
type Comment struct {
	PostID    string    `json:"post_id" yaml:"post_id"`
	UserEmail string    `json:"user_email" yaml:"user_email"`
	Username  string    `json:"username" yaml:"username"`
	Content   string    `json:"content" yaml:"content"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

func (c Comment) Validate() error {
	if c.PostID == "" {
		return reconcile.Invalid("post_id", "required")
	}
	if strings.TrimSpace(c.Content) == "" {
		return reconcile.Invalid("content", "must not be empty")
	}
	if c.UserEmail == "" {
		return reconcile.Invalid("user_email", "sign in required")
	}
	return nil
}

func (c Comment) Clone() Comment { return c }

var postFields = []gateway.Field{
	gateway.Required("id", gateway.String),
	gateway.Required("user_email", gateway.String),
	gateway.Required("username", gateway.String),
	gateway.Required("content", gateway.String),
	gateway.Optional("image_url", gateway.String),
	gateway.Required("created_at", gateway.String),
	gateway.Optional("updated_at", gateway.String),
}

var commentFields = []gateway.Field{
	gateway.Required("id", gateway.String),
	gateway.Required("post_id", gateway.String),
	gateway.Required("user_email", gateway.String),
	gateway.Required("username", gateway.String),
	gateway.Required("content", gateway.String),
	gateway.Required("created_at", gateway.String),
}

type postRow struct {
	ID string `json:"id"`
	Post
}

type commentRow struct {
	ID string `json:"id"`
	Comment
}

func decodePost(row gateway.Row) (reconcile.Record[Post], error) {
	var r postRow
	if err := gateway.Decode(row, &r, postFields...); err != nil {
		return reconcile.Record[Post]{}, err
	}
	return reconcile.Confirmed(r.ID, r.Post), nil
}

func decodeComment(row gateway.Row) (reconcile.Record[Comment], error) {
	var r commentRow
	if err := gateway.Decode(row, &r, commentFields...); err != nil {
		return reconcile.Record[Comment]{}, err
	}
	return reconcile.Confirmed(r.ID, r.Comment), nil
}
