package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"recreo/auth"
	"recreo/gateway"
)

var (
	// ErrSignedOut is returned by operations that need a signed-in user.
	ErrSignedOut = errors.New("session: not signed in")
	// ErrMissingCredentials signals an empty email, password or name.
	ErrMissingCredentials = errors.New("session: email and password are required")
)

// Key is the session store key holding the signed-in user.
const Key = "userSession"

// AllActivities lists every activity a user can pick, in tab order.
var AllActivities = []string{"Music", "Drawing", "Books", "Journal", "Community Sharing", "Games"}

// User is the locally persisted view of the signed-in user.
type User struct {
	ID          string    `json:"id,omitempty" yaml:"id,omitempty"`
	Name        string    `json:"name" yaml:"name"`
	Email       string    `json:"email" yaml:"email"`
	Role        auth.Role `json:"role" yaml:"role"`
	Activities  []string  `json:"activities" yaml:"activities"`
	AccessToken string    `json:"access_token,omitempty" yaml:"-"`
}

// DisplayName is the name shown as an author: the user's name, else the local
// part of the email, else "Anonymous".
func (u User) DisplayName() string {
	if name := strings.TrimSpace(u.Name); name != "" {
		return name
	}
	if local, _, _ := strings.Cut(u.Email, "@"); local != "" {
		return local
	}
	return "Anonymous"
}

func (u User) IsAdmin() bool { return u.Role == auth.RoleAdmin }

// HasActivity reports whether the user picked activity.
func (u User) HasActivity(activity string) bool {
	for _, a := range u.Activities {
		if a == activity {
			return true
		}
	}
	return false
}

// OtherActivities returns the activities the user has not picked.
func OtherActivities(u User) []string {
	out := make([]string, 0, len(AllActivities))
	for _, a := range AllActivities {
		if !u.HasActivity(a) {
			out = append(out, a)
		}
	}
	return out
}

// SignUpRequest carries the registration form.
type SignUpRequest struct {
	Name       string
	Email      string
	Password   string
	Activities []string
}

// Manager owns the process-wide session: it signs users in and out through
// an Identity gateway and persists the result in a Store.
type Manager struct {
	store    *Store
	identity gateway.Identity
	log      logrus.FieldLogger

	mu   sync.RWMutex
	user *User
}

func NewManager(store *Store, identity gateway.Identity) *Manager {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return &Manager{store: store, identity: identity, log: log}
}

func (m *Manager) WithLogger(log logrus.FieldLogger) *Manager {
	m.log = log
	return m
}

// Restore loads a previously persisted session. A corrupt entry is removed
// and treated as signed out.
func (m *Manager) Restore(ctx context.Context) (User, bool, error) {
	raw, err := m.store.Get(ctx, Key)
	if errors.Is(err, ErrNotFound) {
		return User{}, false, nil
	}
	if err != nil {
		return User{}, false, err
	}

	var u User
	if err := json.Unmarshal(raw, &u); err != nil || u.Email == "" {
		m.log.WithError(err).Warn("discarding unreadable session")
		if err := m.store.Remove(ctx, Key); err != nil {
			return User{}, false, err
		}
		return User{}, false, nil
	}

	m.set(&u)
	return u, true, nil
}

func (m *Manager) SignIn(ctx context.Context, email, password string) (User, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return User{}, ErrMissingCredentials
	}
	sess, err := m.identity.SignIn(ctx, email, password)
	if err != nil {
		return User{}, fmt.Errorf("session: sign in: %w", err)
	}
	return m.init(ctx, userFrom(sess, ""))
}

func (m *Manager) SignUp(ctx context.Context, req SignUpRequest) (User, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	if req.Name == "" || req.Email == "" || req.Password == "" {
		return User{}, ErrMissingCredentials
	}
	role := auth.RoleFor(req.Email)
	attrs := map[string]any{
		"name":       req.Name,
		"role":       string(role),
		"activities": append([]string{}, req.Activities...),
	}
	sess, err := m.identity.SignUp(ctx, req.Email, req.Password, attrs)
	if err != nil {
		return User{}, fmt.Errorf("session: sign up: %w", err)
	}

	u := userFrom(sess, role)
	if u.Email == "" {
		u.Email = req.Email
	}
	if u.Name == "" {
		u.Name = req.Name
	}
	if len(u.Activities) == 0 {
		u.Activities = append([]string{}, req.Activities...)
	}
	return m.init(ctx, u)
}

// SignOut ends the session with the identity gateway and then forgets it
// locally. When the gateway call fails the local session is kept.
func (m *Manager) SignOut(ctx context.Context) error {
	if u, ok := m.Current(); ok {
		sess := gateway.Session{AccessToken: u.AccessToken, User: gateway.Principal{ID: u.ID, Email: u.Email}}
		if err := m.identity.SignOut(ctx, sess); err != nil {
			return fmt.Errorf("session: sign out: %w", err)
		}
	}
	if err := m.store.Remove(ctx, Key); err != nil {
		return err
	}
	m.set(nil)
	m.log.Info("signed out")
	return nil
}

func (m *Manager) Current() (User, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.user == nil {
		return User{}, false
	}
	u := *m.user
	u.Activities = append([]string(nil), u.Activities...)
	return u, true
}

// RequireUser returns the signed-in user or ErrSignedOut.
func (m *Manager) RequireUser() (User, error) {
	u, ok := m.Current()
	if !ok {
		return User{}, ErrSignedOut
	}
	return u, nil
}

// Actor attaches the signed-in user's email to ctx.
func (m *Manager) Actor(ctx context.Context) context.Context {
	if u, ok := m.Current(); ok {
		return gateway.WithActor(ctx, u.Email)
	}
	return ctx
}

func (m *Manager) init(ctx context.Context, u User) (User, error) {
	raw, err := json.Marshal(u)
	if err != nil {
		return User{}, fmt.Errorf("session: encode user: %w", err)
	}
	if err := m.store.Set(ctx, Key, raw); err != nil {
		return User{}, err
	}
	m.set(&u)
	m.log.WithFields(logrus.Fields{"actor": u.Email, "role": u.Role}).Info("signed in")
	return u, nil
}

func (m *Manager) set(u *User) {
	m.mu.Lock()
	m.user = u
	m.mu.Unlock()
}

func userFrom(sess gateway.Session, role auth.Role) User {
	p := sess.User
	if role == "" {
		role = auth.Role(p.StringAttr("role"))
		if role != auth.RoleUser && role != auth.RoleAdmin {
			role = auth.RoleFor(p.Email)
		}
	}
	activities := p.StringsAttr("activities")
	if activities == nil {
		activities = []string{}
	}
	return User{
		ID:          p.ID,
		Name:        p.StringAttr("name"),
		Email:       p.Email,
		Role:        role,
		Activities:  activities,
		AccessToken: sess.AccessToken,
	}
}
