package gateway

import (
	"errors"
	"testing"
	"time"
)

type postRow struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Likes     int       `json:"likes"`
	CreatedAt time.Time `json:"created_at"`
}

func TestDecode_Valid(t *testing.T) {
	created := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	row := Row{"id": "p1", "content": "hello", "likes": 3, "created_at": created, "extra": true}

	var got postRow
	err := Decode(row, &got,
		Required("id", String),
		Required("content", String),
		Optional("likes", Number),
		Required("created_at", String),
	)
	if err != nil {
		t.Fatalf("decode: unexpected error: %v", err)
	}
	if got.ID != "p1" || got.Content != "hello" || got.Likes != 3 {
		t.Fatalf("decode: unexpected value %+v", got)
	}
	if !got.CreatedAt.Equal(created) {
		t.Fatalf("decode: expected created_at %v got %v", created, got.CreatedAt)
	}
}

func TestDecode_MissingRequired(t *testing.T) {
	var got postRow
	err := Decode(Row{"content": "hello"}, &got, Required("id", String))
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed got %v", err)
	}
	if KindOf(err) != KindMalformed {
		t.Fatalf("expected kind %s got %s", KindMalformed, KindOf(err))
	}
}

func TestDecode_WrongType(t *testing.T) {
	var got postRow
	err := Decode(Row{"id": 42}, &got, Required("id", String))
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed got %v", err)
	}
}

func TestDecode_OptionalNull(t *testing.T) {
	var got struct {
		ImageURL *string `json:"image_url"`
	}
	if err := Decode(Row{"image_url": nil}, &got, Optional("image_url", String)); err != nil {
		t.Fatalf("decode: unexpected error: %v", err)
	}
	if got.ImageURL != nil {
		t.Fatalf("expected nil image url got %q", *got.ImageURL)
	}
}

func TestValidate_RejectsNonObject(t *testing.T) {
	if err := Validate([]byte(`[1,2]`)); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed got %v", err)
	}
	if err := Validate([]byte(`{"a":`)); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed for truncated json got %v", err)
	}
}

func TestValidate_EscapesDottedNames(t *testing.T) {
	if err := Validate([]byte(`{"a.b":"x"}`), Required("a.b", String)); err != nil {
		t.Fatalf("validate: unexpected error: %v", err)
	}
}
