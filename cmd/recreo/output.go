package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"

	"recreo/community"
	"recreo/drawing"
	"recreo/reconcile"
)

// output renders command results as text, JSON or YAML.
type output struct {
	format string
	w      io.Writer
}

func (o *output) print(v any, text func(w io.Writer) error) error {
	switch o.format {
	case "json":
		enc := json.NewEncoder(o.w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(o.w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return text(o.w)
	}
}

// table writes aligned rows; the first row is the header.
func table(w io.Writer, rows [][]string) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, row := range rows {
		for i, cell := range row {
			if i > 0 {
				fmt.Fprint(tw, "\t")
			}
			fmt.Fprint(tw, cell)
		}
		fmt.Fprintln(tw)
	}
	return tw.Flush()
}

type postView struct {
	ID        string    `json:"id" yaml:"id"`
	Status    string    `json:"status" yaml:"status"`
	Author    string    `json:"author" yaml:"author"`
	Email     string    `json:"email" yaml:"email"`
	Content   string    `json:"content" yaml:"content"`
	ImageURL  string    `json:"image_url,omitempty" yaml:"image_url,omitempty"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

func postViews(recs []reconcile.Record[community.Post], storageBase string) []postView {
	out := make([]postView, 0, len(recs))
	for _, r := range recs {
		out = append(out, postView{
			ID:        r.ID,
			Status:    string(r.Status),
			Author:    r.Payload.Username,
			Email:     r.Payload.UserEmail,
			Content:   r.Payload.Content,
			ImageURL:  r.Payload.ImageURL(storageBase),
			CreatedAt: r.Payload.CreatedAt,
		})
	}
	return out
}

type commentView struct {
	ID        string    `json:"id" yaml:"id"`
	PostID    string    `json:"post_id" yaml:"post_id"`
	Author    string    `json:"author" yaml:"author"`
	Content   string    `json:"content" yaml:"content"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

func commentViews(recs []reconcile.Record[community.Comment]) []commentView {
	out := make([]commentView, 0, len(recs))
	for _, r := range recs {
		out = append(out, commentView{
			ID:        r.ID,
			PostID:    r.Payload.PostID,
			Author:    r.Payload.Username,
			Content:   r.Payload.Content,
			CreatedAt: r.Payload.CreatedAt,
		})
	}
	return out
}

type drawingView struct {
	ID           string    `json:"id" yaml:"id"`
	Strokes      int       `json:"strokes" yaml:"strokes"`
	ThumbnailURL string    `json:"thumbnail_url,omitempty" yaml:"thumbnail_url,omitempty"`
	UpdatedAt    time.Time `json:"updated_at" yaml:"updated_at"`
}

func drawingViews(recs []reconcile.Record[drawing.Drawing], storageBase string) []drawingView {
	out := make([]drawingView, 0, len(recs))
	for _, r := range recs {
		out = append(out, drawingView{
			ID:           r.ID,
			Strokes:      len(r.Payload.Strokes),
			ThumbnailURL: r.Payload.ThumbnailURL(storageBase),
			UpdatedAt:    r.Payload.UpdatedAt,
		})
	}
	return out
}

func stamp(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}
