package supabase

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Upload stores data under bucket/key and returns the key.
func (c *Client) Upload(ctx context.Context, bucket, key string, data []byte, contentType string) (string, error) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	segments := strings.Split(strings.TrimLeft(key, "/"), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	u := fmt.Sprintf("%s/storage/v1/object/%s/%s", c.baseURL, url.PathEscape(bucket), strings.Join(segments, "/"))

	header := http.Header{}
	header.Set("Content-Type", contentType)
	header.Set("x-upsert", "false")
	if _, err := c.do(ctx, "POST", u, data, header); err != nil {
		return "", err
	}
	return key, nil
}
