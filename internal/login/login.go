package login

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/foundreg/internal/models"
	"github.com/wolfeidau/foundreg/internal/store"
	"github.com/wolfeidau/foundreg/internal/telemetry"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials  = errors.New("invalid email or password")
	ErrEmailTaken          = errors.New("user with this email already exists")
	ErrInvalidToken        = errors.New("invalid token")
	ErrExpiredToken        = errors.New("token expired")
	ErrInvalidRegistration = errors.New("invalid registration")
)

const minPasswordLength = 8

// Config holds the token settings.
type Config struct {
	// Secret signs access and refresh tokens (HS256). At least 32 bytes.
	Secret []byte

	// AccessTTL is the lifetime of access tokens.
	// Default: 15 minutes
	AccessTTL time.Duration

	// RefreshTTL is the lifetime of refresh tokens and their sessions.
	// Default: 7 days
	RefreshTTL time.Duration

	// SecureCookies sets the Secure flag on auth cookies.
	SecureCookies bool
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if len(c.Secret) < 32 {
		return fmt.Errorf("token secret must be at least 32 bytes")
	}
	if c.AccessTTL <= 0 || c.RefreshTTL <= 0 {
		return fmt.Errorf("token TTLs must be greater than 0")
	}
	return nil
}

// ApplyDefaults applies default values to unset configuration fields.
func (c *Config) ApplyDefaults() {
	if c.AccessTTL == 0 {
		c.AccessTTL = 15 * time.Minute
	}
	if c.RefreshTTL == 0 {
		c.RefreshTTL = 7 * 24 * time.Hour
	}
}

// Stores holds the stores used by the login service.
type Stores struct {
	Users    store.UserStore
	Sessions store.SessionStore
}

// Service registers and authenticates office employees.
type Service struct {
	stores        Stores
	secret        []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	secureCookies bool
	now           func() time.Time
	metrics       *telemetry.Metrics
}

// NewService creates a login service.
func NewService(stores Stores, cfg Config) (*Service, error) {
	if stores.Users == nil || stores.Sessions == nil {
		return nil, fmt.Errorf("all stores (users, sessions) are required")
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Service{
		stores:        stores,
		secret:        cfg.Secret,
		accessTTL:     cfg.AccessTTL,
		refreshTTL:    cfg.RefreshTTL,
		secureCookies: cfg.SecureCookies,
		now:           time.Now,
		metrics:       telemetry.GetMetrics(),
	}, nil
}

// RegisterRequest is the body of POST /auth/register.
type RegisterRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}

// Validate trims and checks the registration request.
func (r *RegisterRequest) Validate() error {
	r.FirstName = strings.TrimSpace(r.FirstName)
	r.LastName = strings.TrimSpace(r.LastName)
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))

	if r.FirstName == "" || r.LastName == "" {
		return fmt.Errorf("%w: first_name and last_name are required", ErrInvalidRegistration)
	}
	if len(r.FirstName) > 100 || len(r.LastName) > 100 {
		return fmt.Errorf("%w: names must be at most 100 characters", ErrInvalidRegistration)
	}

	addr, err := mail.ParseAddress(r.Email)
	if err != nil || addr.Address != r.Email || len(r.Email) > 255 {
		return fmt.Errorf("%w: email is not a valid address", ErrInvalidRegistration)
	}

	if len(r.Password) < minPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", ErrInvalidRegistration, minPasswordLength)
	}
	// bcrypt ignores everything past 72 bytes
	if len(r.Password) > 72 {
		return fmt.Errorf("%w: password must be at most 72 bytes", ErrInvalidRegistration)
	}

	return nil
}

// Register creates a new user with the default role.
func (s *Service) Register(ctx context.Context, req *RegisterRequest) (*models.User, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Email:        req.Email,
		PasswordHash: string(hash),
		Role:         models.RoleUser,
		CreatedAt:    s.now(),
	}

	if err := s.stores.Users.Create(ctx, user); err != nil {
		if errors.Is(err, store.ErrUserAlreadyExists) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}

	log.Info().Int64("user_id", user.UserID).Msg("User registered")

	return user, nil
}

// Login verifies the credentials, opens a session and issues both tokens.
func (s *Service) Login(ctx context.Context, email, password, userAgent, ipAddress string) (*models.User, *Tokens, error) {
	user, err := s.stores.Users.GetByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			s.metrics.LoginFailuresTotal.Add(ctx, 1)
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.metrics.LoginFailuresTotal.Add(ctx, 1)
		log.Debug().Int64("user_id", user.UserID).Msg("Password mismatch")
		return nil, nil, ErrInvalidCredentials
	}

	sessionID, err := uuid.NewV7()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := s.now()
	session := &models.Session{
		SessionID:  sessionID,
		UserID:     user.UserID,
		CreatedAt:  now,
		ExpiresAt:  now.Add(s.refreshTTL),
		LastUsedAt: now,
		UserAgent:  userAgent,
		IPAddress:  ipAddress,
	}
	if err := s.stores.Sessions.Create(ctx, session); err != nil {
		return nil, nil, err
	}

	tokens := &Tokens{}

	tokens.AccessToken, tokens.AccessExpiresAt, err = s.issueToken(user, TokenTypeAccess, "", now, s.accessTTL)
	if err != nil {
		return nil, nil, err
	}

	tokens.RefreshToken, tokens.RefreshExpiresAt, err = s.issueToken(user, TokenTypeRefresh, sessionID.String(), now, s.refreshTTL)
	if err != nil {
		return nil, nil, err
	}

	s.metrics.LoginsTotal.Add(ctx, 1)
	log.Info().
		Int64("user_id", user.UserID).
		Str("session_id", sessionID.String()).
		Msg("User logged in")

	return user, tokens, nil
}

// Refresh issues a new access token for a valid refresh token whose session is still open.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*Tokens, error) {
	claims, err := s.parseToken(refreshToken, TokenTypeRefresh)
	if err != nil {
		return nil, err
	}

	sessionID, err := uuid.Parse(claims.ID)
	if err != nil {
		return nil, ErrInvalidToken
	}

	session, err := s.stores.Sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrSessionNotFound) || errors.Is(err, store.ErrSessionExpired) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}

	if session.UserID != claims.UserID {
		return nil, ErrInvalidToken
	}

	user, err := s.stores.Users.Get(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}

	if err := s.stores.Sessions.UpdateLastUsed(ctx, sessionID); err != nil {
		log.Warn().Err(err).Str("session_id", sessionID.String()).Msg("Failed to update session last used")
	}

	tokens := &Tokens{}
	tokens.AccessToken, tokens.AccessExpiresAt, err = s.issueToken(user, TokenTypeAccess, "", s.now(), s.accessTTL)
	if err != nil {
		return nil, err
	}

	return tokens, nil
}

// Logout closes the session of a refresh token. Unknown or invalid tokens are ignored.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}

	claims, err := s.parseToken(refreshToken, TokenTypeRefresh)
	if err != nil {
		return nil
	}

	sessionID, err := uuid.Parse(claims.ID)
	if err != nil {
		return nil
	}

	if err := s.stores.Sessions.Delete(ctx, sessionID); err != nil && !errors.Is(err, store.ErrSessionNotFound) {
		return err
	}

	log.Info().
		Int64("user_id", claims.UserID).
		Str("session_id", sessionID.String()).
		Msg("User logged out")

	return nil
}

// Authenticate resolves the user of an access token.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (*models.User, error) {
	claims, err := s.parseToken(accessToken, TokenTypeAccess)
	if err != nil {
		return nil, err
	}

	user, err := s.stores.Users.Get(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}

	return user, nil
}

// CleanupSessions deletes expired sessions every interval until ctx is done.
// A non-positive interval disables cleanup.
func (s *Service) CleanupSessions(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		log.Warn().Dur("interval", interval).Msg("Expired session cleanup disabled")
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			n, err := s.stores.Sessions.DeleteExpired(ctx)
			if err != nil {
				log.Warn().Err(err).Msg("Failed to delete expired sessions")
				continue
			}
			if n > 0 {
				log.Info().Int("count", n).Msg("Deleted expired sessions")
			}
		case <-ctx.Done():
			return
		}
	}
}
