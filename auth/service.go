package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"recreo/gateway"
)

var (
	// ErrInvalidCredentials signals wrong email or password.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrWeakPassword signals password doesn't meet requirements.
	ErrWeakPassword = errors.New("auth: password must be at least 8 characters")
	// ErrMissingFields signals an incomplete registration.
	ErrMissingFields = errors.New("auth: email and name are required")
	// ErrTokenRevoked signals a token that was signed out.
	ErrTokenRevoked = errors.New("auth: token revoked")
)

const tokenTTL = 24 * time.Hour

// Service is the self-hosted identity provider. It implements gateway.Identity.
type Service struct {
	repo      Repository
	jwtSecret []byte
	now       func() time.Time

	mu      sync.Mutex
	revoked map[string]time.Time
}

// NewService creates a new authentication service.
func NewService(repo Repository, jwtSecret string) *Service {
	return &Service{
		repo:      repo,
		jwtSecret: []byte(jwtSecret),
		now:       time.Now,
		revoked:   make(map[string]time.Time),
	}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// RoleFor derives the role from the email domain.
func RoleFor(email string) Role {
	if strings.HasSuffix(strings.ToLower(strings.TrimSpace(email)), adminDomain) {
		return RoleAdmin
	}
	return RoleUser
}

// Register creates a new user account.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*User, error) {
	if len(req.Password) < 8 {
		return nil, ErrWeakPassword
	}

	email := strings.TrimSpace(req.Email)
	name := strings.TrimSpace(req.Name)
	if email == "" || name == "" {
		return nil, ErrMissingFields
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("auth: hash password: %w", err)
	}

	user, err := s.repo.CreateUser(ctx, CreateUserParams{
		Email:        email,
		Name:         name,
		PasswordHash: string(passwordHash),
		Role:         RoleFor(email),
		Activities:   req.Activities,
	})
	if err != nil {
		return nil, err
	}

	return &user, nil
}

// Login authenticates a user and returns a signed access token.
func (s *Service) Login(ctx context.Context, req LoginRequest) (string, User, error) {
	user, err := s.repo.GetUserByEmail(ctx, strings.TrimSpace(req.Email))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return "", User{}, ErrInvalidCredentials
		}
		return "", User{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return "", User{}, ErrInvalidCredentials
	}

	token, err := s.generateToken(user)
	if err != nil {
		return "", User{}, fmt.Errorf("auth: generate token: %w", err)
	}
	return token, user, nil
}

// SignUp registers and signs in a user. attrs may carry "name" and
// "activities"; the role is always derived from the email.
func (s *Service) SignUp(ctx context.Context, email, password string, attrs map[string]any) (gateway.Session, error) {
	p := gateway.Principal{Attributes: attrs}
	_, err := s.Register(ctx, RegisterRequest{
		Email:      email,
		Password:   password,
		Name:       p.StringAttr("name"),
		Activities: p.StringsAttr("activities"),
	})
	if err != nil {
		return gateway.Session{}, toGateway(err)
	}
	return s.SignIn(ctx, email, password)
}

// SignIn implements gateway.Identity.
func (s *Service) SignIn(ctx context.Context, email, password string) (gateway.Session, error) {
	token, user, err := s.Login(ctx, LoginRequest{Email: email, Password: password})
	if err != nil {
		return gateway.Session{}, toGateway(err)
	}
	return gateway.Session{AccessToken: token, User: principal(user)}, nil
}

// SignOut revokes the session's token until it would have expired anyway.
func (s *Service) SignOut(ctx context.Context, session gateway.Session) error {
	claims, err := s.VerifyToken(session.AccessToken)
	if err != nil {
		if errors.Is(err, ErrTokenRevoked) {
			return nil
		}
		return toGateway(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for id, exp := range s.revoked {
		if exp.Before(now) {
			delete(s.revoked, id)
		}
	}
	s.revoked[claims.TokenID] = claims.ExpiresAt
	return nil
}

// GetUserByID retrieves user information by ID.
func (s *Service) GetUserByID(ctx context.Context, userID string) (*User, error) {
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// VerifyToken validates an access token and returns its claims.
func (s *Service) VerifyToken(tokenString string) (Claims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return Claims{}, fmt.Errorf("auth: parse token: %w", err)
	}

	mc, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return Claims{}, fmt.Errorf("auth: invalid token")
	}

	userID, _ := mc["sub"].(string)
	email, _ := mc["email"].(string)
	roleStr, _ := mc["role"].(string)
	tokenID, _ := mc["jti"].(string)
	if userID == "" || tokenID == "" {
		return Claims{}, fmt.Errorf("auth: token missing subject or id")
	}
	role := Role(roleStr)
	if !isValidRole(role) {
		return Claims{}, fmt.Errorf("auth: invalid role %q in token", roleStr)
	}
	exp, err := mc.GetExpirationTime()
	if err != nil || exp == nil {
		return Claims{}, fmt.Errorf("auth: token missing expiry")
	}

	s.mu.Lock()
	_, revoked := s.revoked[tokenID]
	s.mu.Unlock()
	if revoked {
		return Claims{}, ErrTokenRevoked
	}

	return Claims{UserID: userID, Email: email, Role: role, TokenID: tokenID, ExpiresAt: exp.Time}, nil
}

func (s *Service) generateToken(user User) (string, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"sub":   user.ID,
		"email": user.Email,
		"role":  string(user.Role),
		"jti":   uuid.NewString(),
		"exp":   now.Add(tokenTTL).Unix(),
		"iat":   now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

func principal(user User) gateway.Principal {
	activities := append([]string(nil), user.Activities...)
	return gateway.Principal{
		ID:    user.ID,
		Email: user.Email,
		Attributes: map[string]any{
			"name":       user.Name,
			"role":       string(user.Role),
			"activities": activities,
		},
	}
}

// toGateway classifies service errors for callers that only see gateway kinds.
func toGateway(err error) error {
	switch {
	case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrTokenRevoked):
		return fmt.Errorf("%w: %w", gateway.ErrUnauthorized, err)
	case errors.Is(err, ErrDuplicateEmail):
		return fmt.Errorf("%w: %w", gateway.ErrConflict, err)
	case errors.Is(err, ErrWeakPassword), errors.Is(err, ErrMissingFields):
		return fmt.Errorf("%w: %w", gateway.ErrInvalid, err)
	case errors.Is(err, jwt.ErrTokenExpired), errors.Is(err, jwt.ErrTokenMalformed), errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return fmt.Errorf("%w: %w", gateway.ErrUnauthorized, err)
	default:
		return err
	}
}

func isValidRole(role Role) bool {
	switch role {
	case RoleUser, RoleAdmin:
		return true
	default:
		return false
	}
}
