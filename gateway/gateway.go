// Package gateway declares the remote collaborators the client talks to:
// identity, structured data and blob storage. Concrete backends live in the
// supabase, pgdata and auth packages.
package gateway

import "context"

// Row is a single record as returned by a Data gateway.
type Row map[string]any

// Filter restricts a query to rows whose columns equal the given values.
type Filter map[string]any

// Order sorts query results by a single column.
type Order struct {
	Column     string
	Descending bool
}

// Principal is the signed-in user as seen by the Identity gateway.
type Principal struct {
	ID         string
	Email      string
	Attributes map[string]any
}

// Session is the result of a successful sign-in or sign-up.
type Session struct {
	AccessToken string
	User        Principal
}

// Identity authenticates users.
type Identity interface {
	SignIn(ctx context.Context, email, password string) (Session, error)
	SignUp(ctx context.Context, email, password string, attrs map[string]any) (Session, error)
	SignOut(ctx context.Context, session Session) error
}

// Data is a table-oriented structured data store.
type Data interface {
	Query(ctx context.Context, table string, filter Filter, order *Order) ([]Row, error)
	Insert(ctx context.Context, table string, row Row) (Row, error)
	Update(ctx context.Context, table, id string, patch Row) (Row, error)
	Delete(ctx context.Context, table, id string) error
}

// IdempotentInserter is implemented by Data gateways that can deduplicate
// inserts replayed under the same key.
type IdempotentInserter interface {
	InsertIdempotent(ctx context.Context, table, key string, row Row) (Row, error)
}

// Blob stores binary objects and returns their storage key.
type Blob interface {
	Upload(ctx context.Context, bucket, key string, data []byte, contentType string) (string, error)
}

// StringAttr returns a string attribute or "".
func (p Principal) StringAttr(name string) string {
	v, _ := p.Attributes[name].(string)
	return v
}

// StringsAttr returns a list attribute. Both []string and []any are accepted
// because JSON decoding yields the latter.
func (p Principal) StringsAttr(name string) []string {
	switch v := p.Attributes[name].(type) {
	case []string:
		return append([]string(nil), v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
