package gatewaytest

import (
	"context"
	"fmt"
	"sync"

	"recreo/gateway"
)

type account struct {
	password  string
	principal gateway.Principal
}

// Identity is an in-memory gateway.Identity.
type Identity struct {
	mu       sync.Mutex
	accounts map[string]account
	active   map[string]string
	next     int
	err      error
}

// NewIdentity returns an identity provider with no accounts.
func NewIdentity() *Identity {
	return &Identity{accounts: make(map[string]account), active: make(map[string]string)}
}

// Fail makes every call fail with err until cleared with nil.
func (i *Identity) Fail(err error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.err = err
}

// Active reports whether token has not been signed out.
func (i *Identity) Active(token string) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	_, ok := i.active[token]
	return ok
}

func (i *Identity) SignUp(ctx context.Context, email, password string, attrs map[string]any) (gateway.Session, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.err != nil {
		return gateway.Session{}, i.err
	}
	if _, exists := i.accounts[email]; exists {
		return gateway.Session{}, fmt.Errorf("%w: %s already registered", gateway.ErrConflict, email)
	}
	i.next++
	copied := make(map[string]any, len(attrs))
	for k, v := range attrs {
		copied[k] = v
	}
	p := gateway.Principal{ID: fmt.Sprintf("user-%d", i.next), Email: email, Attributes: copied}
	i.accounts[email] = account{password: password, principal: p}
	return i.issue(p), nil
}

func (i *Identity) SignIn(ctx context.Context, email, password string) (gateway.Session, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.err != nil {
		return gateway.Session{}, i.err
	}
	acct, ok := i.accounts[email]
	if !ok || acct.password != password {
		return gateway.Session{}, fmt.Errorf("%w: invalid login credentials", gateway.ErrUnauthorized)
	}
	return i.issue(acct.principal), nil
}

func (i *Identity) SignOut(ctx context.Context, session gateway.Session) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.err != nil {
		return i.err
	}
	delete(i.active, session.AccessToken)
	return nil
}

func (i *Identity) issue(p gateway.Principal) gateway.Session {
	i.next++
	token := fmt.Sprintf("token-%d", i.next)
	i.active[token] = p.Email
	return gateway.Session{AccessToken: token, User: p}
}
