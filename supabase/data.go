package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"

	"recreo/gateway"
)

func (c *Client) tableURL(table string, params url.Values) string {
	u := fmt.Sprintf("%s/rest/v1/%s", c.baseURL, url.PathEscape(table))
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	return u
}

// Query selects rows whose columns equal filter, optionally ordered.
func (c *Client) Query(ctx context.Context, table string, filter gateway.Filter, order *gateway.Order) ([]gateway.Row, error) {
	params := url.Values{}
	params.Set("select", "*")
	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		params.Add(k, fmt.Sprintf("eq.%v", filter[k]))
	}
	if order != nil {
		dir := "asc"
		if order.Descending {
			dir = "desc"
		}
		params.Set("order", order.Column+"."+dir)
	}

	resp, err := c.do(ctx, "GET", c.tableURL(table, params), nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeRows(resp)
}

// Insert creates a row and returns its stored representation.
func (c *Client) Insert(ctx context.Context, table string, row gateway.Row) (gateway.Row, error) {
	body, err := json.Marshal(row)
	if err != nil {
		return nil, fmt.Errorf("supabase: marshal row: %w", err)
	}
	resp, err := c.do(ctx, "POST", c.tableURL(table, nil), body, jsonHeader("Prefer", "return=representation"))
	if err != nil {
		return nil, err
	}
	return singleRow(resp, table, "")
}

// Update patches the row with the given id.
func (c *Client) Update(ctx context.Context, table, id string, patch gateway.Row) (gateway.Row, error) {
	body, err := json.Marshal(patch)
	if err != nil {
		return nil, fmt.Errorf("supabase: marshal patch: %w", err)
	}
	params := url.Values{"id": []string{"eq." + id}}
	resp, err := c.do(ctx, "PATCH", c.tableURL(table, params), body, jsonHeader("Prefer", "return=representation"))
	if err != nil {
		return nil, err
	}
	return singleRow(resp, table, id)
}

// Delete removes the row with the given id. PostgREST answers an empty
// representation both for a missing row and for one the delete policy
// refuses; a follow-up select tells them apart. A row the caller can still
// see is forbidden, and one it cannot see is reported as not found.
func (c *Client) Delete(ctx context.Context, table, id string) error {
	params := url.Values{"id": []string{"eq." + id}}
	resp, err := c.do(ctx, "DELETE", c.tableURL(table, params), nil, jsonHeader("Prefer", "return=representation"))
	if err != nil {
		return err
	}
	rows, err := decodeRows(resp)
	if err != nil || len(rows) > 0 {
		return err
	}
	visible, err := c.exists(ctx, table, id)
	if err != nil {
		return err
	}
	if visible {
		return fmt.Errorf("%w: delete %s %s", gateway.ErrForbidden, table, id)
	}
	return fmt.Errorf("%w: %s %s", gateway.ErrNotFound, table, id)
}

func (c *Client) exists(ctx context.Context, table, id string) (bool, error) {
	params := url.Values{"select": []string{"id"}, "id": []string{"eq." + id}}
	resp, err := c.do(ctx, "GET", c.tableURL(table, params), nil, nil)
	if err != nil {
		return false, err
	}
	rows, err := decodeRows(resp)
	return len(rows) > 0, err
}

func decodeRows(body []byte) ([]gateway.Row, error) {
	var rows []gateway.Row
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("%w: decode rows: %v", gateway.ErrMalformed, err)
	}
	if rows == nil {
		rows = []gateway.Row{}
	}
	return rows, nil
}

func singleRow(body []byte, table, id string) (gateway.Row, error) {
	rows, err := decodeRows(body)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		if id == "" {
			return nil, fmt.Errorf("%w: empty representation from %s", gateway.ErrMalformed, table)
		}
		return nil, fmt.Errorf("%w: %s %s", gateway.ErrNotFound, table, id)
	}
	return rows[0], nil
}
