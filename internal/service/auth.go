package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/Skotchmaster/cleanshop/internal/events"
	"github.com/Skotchmaster/cleanshop/internal/models"
	"github.com/Skotchmaster/cleanshop/internal/repo"
	"github.com/Skotchmaster/cleanshop/internal/transport"
	"github.com/Skotchmaster/cleanshop/pkg/hash"
	"github.com/Skotchmaster/cleanshop/pkg/logging"
	"github.com/Skotchmaster/cleanshop/pkg/tokens"
)

var (
	ErrValidation         = errors.New("validation failed")
	ErrNotFound           = errors.New("not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrConflict           = errors.New("conflict")
	ErrTokenNotRecognized = errors.New("token not recognized")
	ErrTokenNotActive     = errors.New("token not active")
	ErrPersistence        = errors.New("persistence failure")

	// ErrUnknownUser is the ErrNotFound reason for a username with no account.
	ErrUnknownUser = fmt.Errorf("user %w", ErrNotFound)
)

type UnitOfWork interface {
	Begin(ctx context.Context) (repo.Store, error)
}

type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(hash, password string) hash.Result
}

type AuthService struct {
	UOW    UnitOfWork
	Hasher PasswordHasher
	Tokens *tokens.Issuer
	Events events.Publisher
	// Clock defaults to time.Now in UTC.
	Clock func() time.Time
}

func (s *AuthService) now() time.Time {
	if s.Clock != nil {
		return s.Clock().UTC()
	}
	return time.Now().UTC()
}

func persistence(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrPersistence, err)
}

func unauthenticated(msg string, reason error) *transport.AuthResult {
	return &transport.AuthResult{Message: msg, Roles: []string{}, Reason: reason}
}

func (s *AuthService) Register(ctx context.Context, username, email, password string) (*transport.Result, error) {
	l := logging.FromContext(ctx).With("svc", "auth.register")

	if strings.TrimSpace(username) == "" || strings.TrimSpace(email) == "" || password == "" {
		l.Warn("register_failed", "status", 400, "reason", "missing fields")
		return nil, fmt.Errorf("%w: username, email and password are required", ErrValidation)
	}

	pwHash, err := s.Hasher.Hash(password)
	if err != nil {
		l.Error("register_failed", "status", 500, "reason", "cannot hash the password", "error", err)
		return nil, fmt.Errorf("auth.register: hash password: %w", err)
	}

	st, err := s.UOW.Begin(ctx)
	if err != nil {
		l.Error("register_failed", "status", 500, "error", err)
		return nil, persistence("auth.register", err)
	}
	defer st.Rollback()

	conflict := &transport.Result{
		Message: fmt.Sprintf("user %s is already registered", username),
		Reason:  ErrConflict,
	}

	_, err = st.FindUserByUsername(ctx, username)
	switch {
	case err == nil:
		l.Warn("register_failed", "status", 409, "reason", "user already exist")
		return conflict, nil
	case !errors.Is(err, repo.ErrNotFound):
		l.Error("register_failed", "status", 500, "error", err)
		return nil, persistence("auth.register", err)
	}

	role, err := st.FindRoleByName(ctx, models.DefaultRole)
	if err != nil {
		l.Error("register_failed", "status", 500, "reason", "default role missing", "error", err)
		return nil, persistence("auth.register", err)
	}

	user := &models.User{
		Username:     username,
		Email:        email,
		PasswordHash: pwHash,
		Roles:        []models.Role{*role},
	}

	err = st.Save(ctx, user)
	if err == nil {
		_, err = st.Persist(ctx)
	}
	if err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			l.Warn("register_failed", "status", 409, "reason", "user already exist")
			return conflict, nil
		}
		l.Error("register_failed", "status", 500, "error", err)
		return nil, persistence("auth.register", err)
	}

	s.publish(ctx, events.TopicUser, user.ID, events.UserEvent{
		Type:     events.UserRegistered,
		UserID:   user.ID,
		Username: user.Username,
		At:       s.now(),
	})
	l.Info("user_registered", "user_id", user.ID)

	return &transport.Result{Message: fmt.Sprintf("user %s has been registered", user.Username)}, nil
}

func (s *AuthService) Login(ctx context.Context, username, password string) (*transport.AuthResult, error) {
	l := logging.FromContext(ctx).With("svc", "auth.login")

	if strings.TrimSpace(username) == "" || password == "" {
		l.Warn("login_failed", "status", 400, "reason", "missing credentials")
		return unauthenticated("username and password are required", ErrValidation), nil
	}

	st, err := s.UOW.Begin(ctx)
	if err != nil {
		return nil, persistence("auth.login", err)
	}
	defer st.Rollback()

	user, err := st.FindUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			l.Warn("login_failed", "status", 401, "reason", "user not registered")
			return unauthenticated(fmt.Sprintf("user %s is not registered", username), ErrUnknownUser), nil
		}
		l.Error("login_failed", "status", 500, "error", err)
		return nil, persistence("auth.login", err)
	}

	if s.Hasher.Verify(user.PasswordHash, password) != hash.Success {
		l.Warn("login_failed", "status", 401, "reason", "invalid credentials", "user_id", user.ID)
		return unauthenticated(fmt.Sprintf("incorrect credentials for user %s", user.Username), ErrInvalidCredentials), nil
	}

	now := s.now()
	access, err := s.signAccess(user, now)
	if err != nil {
		l.Error("login_failed", "status", 500, "reason", "cannot sign token", "error", err)
		return nil, fmt.Errorf("auth.login: sign access token: %w", err)
	}

	refresh := user.ActiveRefreshToken(now)
	if refresh == nil {
		fresh, err := newRefreshToken(now)
		if err != nil {
			return nil, fmt.Errorf("auth.login: %w", err)
		}
		user.RefreshTokens = append(user.RefreshTokens, fresh)
		if err := st.Save(ctx, user); err != nil {
			l.Error("login_failed", "status", 500, "error", err)
			return nil, persistence("auth.login", err)
		}
		if _, err := st.Persist(ctx); err != nil {
			l.Error("login_failed", "status", 500, "error", err)
			return nil, persistence("auth.login", err)
		}
		refresh = &user.RefreshTokens[len(user.RefreshTokens)-1]
	}

	s.publish(ctx, events.TopicUser, user.ID, events.UserEvent{
		Type:     events.UserLoggedIn,
		UserID:   user.ID,
		Username: user.Username,
		At:       now,
	})

	return authenticated(user, access, refresh, "login successful"), nil
}

// Refresh rotates a refresh token. The presented token is revoked with a
// conditional update, so of two concurrent calls with the same token only
// one succeeds.
func (s *AuthService) Refresh(ctx context.Context, token string) (*transport.AuthResult, error) {
	l := logging.FromContext(ctx).With("svc", "auth.refresh")

	if token == "" {
		l.Warn("refresh_failed", "status", 400, "reason", "missing token")
		return unauthenticated("refresh token is required", ErrValidation), nil
	}

	st, err := s.UOW.Begin(ctx)
	if err != nil {
		return nil, persistence("auth.refresh", err)
	}
	defer st.Rollback()

	user, err := st.FindUserByRefreshToken(ctx, token)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			l.Warn("refresh_failed", "status", 401, "reason", "token not recognized")
			return unauthenticated("token did not match any user", ErrTokenNotRecognized), nil
		}
		l.Error("refresh_failed", "status", 500, "error", err)
		return nil, persistence("auth.refresh", err)
	}

	now := s.now()
	notActive := unauthenticated("token not active", ErrTokenNotActive)

	current := user.RefreshToken(token)
	if current == nil || !current.IsActive(now) {
		l.Warn("refresh_failed", "status", 401, "reason", "token not active", "user_id", user.ID)
		return notActive, nil
	}

	revoked, err := st.RevokeRefreshToken(ctx, token, now)
	if err != nil {
		l.Error("refresh_failed", "status", 500, "error", err)
		return nil, persistence("auth.refresh", err)
	}
	if !revoked {
		l.Warn("refresh_failed", "status", 401, "reason", "token revoked concurrently", "user_id", user.ID)
		return notActive, nil
	}
	current.Revoked = &now

	fresh, err := newRefreshToken(now)
	if err != nil {
		return nil, fmt.Errorf("auth.refresh: %w", err)
	}
	user.RefreshTokens = append(user.RefreshTokens, fresh)

	access, err := s.signAccess(user, now)
	if err != nil {
		l.Error("refresh_failed", "status", 500, "reason", "cannot sign token", "error", err)
		return nil, fmt.Errorf("auth.refresh: sign access token: %w", err)
	}

	if err := st.Save(ctx, user); err != nil {
		l.Error("refresh_failed", "status", 500, "error", err)
		return nil, persistence("auth.refresh", err)
	}
	if _, err := st.Persist(ctx); err != nil {
		l.Error("refresh_failed", "status", 500, "error", err)
		return nil, persistence("auth.refresh", err)
	}

	s.publish(ctx, events.TopicUser, user.ID, events.UserEvent{
		Type:     events.TokenRefreshed,
		UserID:   user.ID,
		Username: user.Username,
		At:       now,
	})

	return authenticated(user, access, &user.RefreshTokens[len(user.RefreshTokens)-1], "token refreshed"), nil
}

// AddRole assigns role to the user after checking that user's own password.
func (s *AuthService) AddRole(ctx context.Context, username, password, role string) (*transport.Result, error) {
	l := logging.FromContext(ctx).With("svc", "auth.add_role")

	if strings.TrimSpace(username) == "" || password == "" || strings.TrimSpace(role) == "" {
		l.Warn("add_role_failed", "status", 400, "reason", "missing fields")
		return &transport.Result{Message: "username, password and role are required", Reason: ErrValidation}, nil
	}

	st, err := s.UOW.Begin(ctx)
	if err != nil {
		return nil, persistence("auth.add_role", err)
	}
	defer st.Rollback()

	user, err := st.FindUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			l.Warn("add_role_failed", "status", 401, "reason", "user not registered")
			return &transport.Result{Message: fmt.Sprintf("user %s is not registered", username), Reason: ErrUnknownUser}, nil
		}
		return nil, persistence("auth.add_role", err)
	}

	if s.Hasher.Verify(user.PasswordHash, password) != hash.Success {
		l.Warn("add_role_failed", "status", 401, "reason", "invalid credentials", "user_id", user.ID)
		return &transport.Result{
			Message: fmt.Sprintf("incorrect credentials for user %s", user.Username),
			Reason:  ErrInvalidCredentials,
		}, nil
	}

	r, err := st.FindRoleByName(ctx, role)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			l.Warn("add_role_failed", "status", 404, "reason", "role not found", "role", role)
			return &transport.Result{Message: fmt.Sprintf("role %s not found", role), Reason: ErrNotFound}, nil
		}
		return nil, persistence("auth.add_role", err)
	}

	if user.HasRole(r.Name) {
		return &transport.Result{Message: fmt.Sprintf("user %s already has role %s", user.Username, r.Name)}, nil
	}

	user.Roles = append(user.Roles, *r)
	if err := st.Save(ctx, user); err != nil {
		l.Error("add_role_failed", "status", 500, "error", err)
		return nil, persistence("auth.add_role", err)
	}
	if _, err := st.Persist(ctx); err != nil {
		l.Error("add_role_failed", "status", 500, "error", err)
		return nil, persistence("auth.add_role", err)
	}

	s.publish(ctx, events.TopicUser, user.ID, events.UserEvent{
		Type:     events.RoleAssigned,
		UserID:   user.ID,
		Username: user.Username,
		Role:     r.Name,
		At:       s.now(),
	})

	return &transport.Result{Message: fmt.Sprintf("role %s added to user %s", r.Name, user.Username)}, nil
}

func (s *AuthService) signAccess(u *models.User, now time.Time) (string, error) {
	claims := tokens.AccessClaims{
		Email: u.Email,
		UID:   strconv.FormatUint(uint64(u.ID), 10),
		Roles: u.RoleNames(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: u.Username,
			ID:      uuid.NewString(),
		},
	}
	return s.Tokens.Sign(claims, now, now.Add(s.Tokens.TTL()))
}

func newRefreshToken(now time.Time) (models.RefreshToken, error) {
	value, err := tokens.NewRefreshToken()
	if err != nil {
		return models.RefreshToken{}, fmt.Errorf("generate refresh token: %w", err)
	}
	return models.RefreshToken{
		Token:   value,
		Created: now,
		Expires: now.Add(tokens.RefreshTokenTTL),
	}, nil
}

func authenticated(u *models.User, access string, refresh *models.RefreshToken, msg string) *transport.AuthResult {
	expires := refresh.Expires
	return &transport.AuthResult{
		IsAuthenticated:        true,
		Message:                msg,
		Token:                  access,
		Email:                  u.Email,
		UserName:               u.Username,
		Roles:                  u.RoleNames(),
		RefreshToken:           refresh.Token,
		RefreshTokenExpiration: &expires,
	}
}

func (s *AuthService) publish(ctx context.Context, topic string, userID uint, event any) {
	if s.Events == nil {
		return
	}
	key := strconv.FormatUint(uint64(userID), 10)
	if err := s.Events.PublishEvent(ctx, topic, key, event); err != nil {
		logging.FromContext(ctx).Warn("publish_failed", "topic", topic, "error", err)
	}
}
