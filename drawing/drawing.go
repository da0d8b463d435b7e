package drawing

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"recreo/gateway"
	"recreo/reconcile"
)

const (
	Table           = "drawings"
	ThumbnailBucket = "drawing-thumbnails"
)

// Drawing is the payload of a gallery record.
type Drawing struct {
	UserEmail    string    `json:"user_email" yaml:"user_email"`
	Title        string    `json:"title" yaml:"title"`
	Strokes      []Stroke  `json:"strokes" yaml:"strokes"`
	ThumbnailKey string    `json:"thumbnail,omitempty" yaml:"thumbnail,omitempty"`
	CreatedAt    time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" yaml:"updated_at"`

	thumbnail []byte
}

func (d Drawing) Validate() error {
	if len(d.Strokes) == 0 {
		return reconcile.Invalid("paths", "cannot save an empty drawing")
	}
	if d.UserEmail == "" {
		return reconcile.Invalid("user_email", "sign in required")
	}
	return nil
}

func (d Drawing) Clone() Drawing {
	d.Strokes = slices.Clone(d.Strokes)
	if d.thumbnail != nil {
		d.thumbnail = slices.Clone(d.thumbnail)
	}
	return d
}

// ThumbnailURL is the public address of the drawing's thumbnail, or "".
func (d Drawing) ThumbnailURL(base string) string {
	return gateway.PublicURL(base, ThumbnailBucket, d.ThumbnailKey)
}

var drawingFields = []gateway.Field{
	gateway.Required("id", gateway.String),
	gateway.Required("user_email", gateway.String),
	gateway.Optional("title", gateway.String),
	gateway.Required("paths", gateway.String),
	gateway.Optional("thumbnail", gateway.String),
	gateway.Required("created_at", gateway.String),
	gateway.Optional("updated_at", gateway.String),
}

// drawingRow is the stored shape: strokes are kept as JSON text in paths.
type drawingRow struct {
	ID        string    `json:"id"`
	UserEmail string    `json:"user_email"`
	Title     string    `json:"title"`
	Paths     string    `json:"paths"`
	Thumbnail string    `json:"thumbnail"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func decodeDrawing(row gateway.Row) (reconcile.Record[Drawing], error) {
	var r drawingRow
	if err := gateway.Decode(row, &r, drawingFields...); err != nil {
		return reconcile.Record[Drawing]{}, err
	}
	var strokes []Stroke
	if err := json.Unmarshal([]byte(r.Paths), &strokes); err != nil {
		return reconcile.Record[Drawing]{}, fmt.Errorf("%w: drawing %s paths: %v", gateway.ErrMalformed, r.ID, err)
	}
	return reconcile.Confirmed(r.ID, Drawing{
		UserEmail:    r.UserEmail,
		Title:        r.Title,
		Strokes:      strokes,
		ThumbnailKey: r.Thumbnail,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}), nil
}

func encodePaths(strokes []Stroke) (string, error) {
	raw, err := json.Marshal(strokes)
	if err != nil {
		return "", fmt.Errorf("drawing: encode paths: %w", err)
	}
	return string(raw), nil
}
