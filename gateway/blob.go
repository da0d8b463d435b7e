package gateway

import (
	"fmt"
	"path"
	"strings"
	"time"
)

// PublicURL composes the public address of an uploaded object.
func PublicURL(base, bucket, key string) string {
	if key == "" {
		return ""
	}
	return strings.TrimRight(base, "/") + "/" + bucket + "/" + strings.TrimLeft(key, "/")
}

// ObjectKey builds the per-user storage key {owner}/{unix millis}.{ext}. The
// extension is taken from filename and falls back to defaultExt.
func ObjectKey(owner string, now time.Time, filename, defaultExt string) string {
	ext := strings.TrimPrefix(strings.ToLower(path.Ext(filename)), ".")
	if ext == "" {
		ext = defaultExt
	}
	return fmt.Sprintf("%s/%d.%s", owner, now.UnixMilli(), ext)
}

// ContentType guesses an image content type from an extension.
func ContentType(key string) string {
	switch strings.ToLower(path.Ext(key)) {
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	default:
		return "application/octet-stream"
	}
}
