package supabase

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"

	"recreo/gateway"
)

// SignUp registers a user; attrs are stored as user metadata.
func (c *Client) SignUp(ctx context.Context, email, password string, attrs map[string]any) (gateway.Session, error) {
	body, err := json.Marshal(map[string]any{
		"email":    email,
		"password": password,
		"data":     attrs,
	})
	if err != nil {
		return gateway.Session{}, fmt.Errorf("supabase: marshal sign up: %w", err)
	}
	resp, err := c.do(ctx, "POST", c.baseURL+"/auth/v1/signup", body, jsonHeader())
	if err != nil {
		return gateway.Session{}, err
	}
	return parseSession(resp)
}

// SignIn exchanges email and password for a session.
func (c *Client) SignIn(ctx context.Context, email, password string) (gateway.Session, error) {
	body, err := json.Marshal(map[string]string{
		"email":    email,
		"password": password,
	})
	if err != nil {
		return gateway.Session{}, fmt.Errorf("supabase: marshal sign in: %w", err)
	}
	resp, err := c.do(ctx, "POST", c.baseURL+"/auth/v1/token?grant_type=password", body, jsonHeader())
	if err != nil {
		return gateway.Session{}, err
	}
	return parseSession(resp)
}

// SignOut revokes the session's access token.
func (c *Client) SignOut(ctx context.Context, session gateway.Session) error {
	_, err := c.WithAccessToken(session.AccessToken).do(ctx, "POST", c.baseURL+"/auth/v1/logout", nil, nil)
	return err
}

// parseSession accepts both the token response ({access_token, user}) and the
// bare user returned by sign-up when email confirmation is pending.
func parseSession(body []byte) (gateway.Session, error) {
	if err := gateway.Validate(body, gateway.Optional("access_token", gateway.String), gateway.Optional("user", gateway.Object)); err != nil {
		return gateway.Session{}, err
	}
	doc := gjson.ParseBytes(body)
	user := doc.Get("user")
	if !user.Exists() {
		user = doc
	}
	if err := gateway.Validate([]byte(user.Raw), gateway.Required("id", gateway.String), gateway.Optional("email", gateway.String)); err != nil {
		return gateway.Session{}, err
	}

	attrs := map[string]any{}
	if meta, ok := user.Get("user_metadata").Value().(map[string]any); ok {
		attrs = meta
	}
	return gateway.Session{
		AccessToken: doc.Get("access_token").String(),
		User: gateway.Principal{
			ID:         user.Get("id").String(),
			Email:      user.Get("email").String(),
			Attributes: attrs,
		},
	}, nil
}
