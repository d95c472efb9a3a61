package login

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/foundreg/internal/models"
	"github.com/wolfeidau/foundreg/internal/store"
	"github.com/wolfeidau/foundreg/internal/store/memory"
)

var testSecret = []byte("test-secret-key-min-32-bytes-long")

// createTestService creates a login service on memory stores
func createTestService(t *testing.T) (*Service, Stores) {
	t.Helper()

	stores := Stores{
		Users:    memory.NewUserStore(),
		Sessions: memory.NewSessionStore(),
	}

	svc, err := NewService(stores, Config{Secret: testSecret})
	require.NoError(t, err)

	return svc, stores
}

// registerTestUser registers anna@example.com with password "correct horse"
func registerTestUser(t *testing.T, svc *Service) *models.User {
	t.Helper()

	user, err := svc.Register(context.Background(), &RegisterRequest{
		FirstName: "Anna",
		LastName:  "Nowak",
		Email:     " Anna@Example.com ",
		Password:  "correct horse",
	})
	require.NoError(t, err)

	return user
}

func TestNewService(t *testing.T) {
	svc, _ := createTestService(t)
	require.Equal(t, 15*time.Minute, svc.accessTTL)
	require.Equal(t, 7*24*time.Hour, svc.refreshTTL)
}

func TestNewService_InvalidConfig(t *testing.T) {
	stores := Stores{Users: memory.NewUserStore(), Sessions: memory.NewSessionStore()}

	_, err := NewService(stores, Config{Secret: []byte("short")})
	require.Error(t, err)
	require.Contains(t, err.Error(), "32 bytes")

	_, err = NewService(Stores{}, Config{Secret: testSecret})
	require.Error(t, err)
	require.Contains(t, err.Error(), "all stores")
}

func TestService_Register(t *testing.T) {
	ctx := context.Background()
	svc, stores := createTestService(t)

	user := registerTestUser(t, svc)
	require.Equal(t, "anna@example.com", user.Email)
	require.Equal(t, models.RoleUser, user.Role)
	require.NotEqual(t, "correct horse", user.PasswordHash)

	stored, err := stores.Users.Get(ctx, user.UserID)
	require.NoError(t, err)
	require.Equal(t, user.PasswordHash, stored.PasswordHash)

	_, err = svc.Register(ctx, &RegisterRequest{FirstName: "A", LastName: "N", Email: "ANNA@example.com", Password: "another password"})
	require.ErrorIs(t, err, ErrEmailTaken)

	tests := []struct {
		name string
		req  RegisterRequest
	}{
		{"missing names", RegisterRequest{Email: "x@example.com", Password: "long enough"}},
		{"invalid email", RegisterRequest{FirstName: "A", LastName: "B", Email: "not-an-email", Password: "long enough"}},
		{"short password", RegisterRequest{FirstName: "A", LastName: "B", Email: "x@example.com", Password: "short"}},
		{"long password", RegisterRequest{FirstName: "A", LastName: "B", Email: "x@example.com", Password: strings.Repeat("p", 73)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Register(ctx, &tt.req)
			require.ErrorIs(t, err, ErrInvalidRegistration)
		})
	}
}

func TestService_Login(t *testing.T) {
	ctx := context.Background()
	svc, _ := createTestService(t)
	user := registerTestUser(t, svc)

	t.Run("wrong password", func(t *testing.T) {
		_, _, err := svc.Login(ctx, "anna@example.com", "wrong", "", "")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("unknown user", func(t *testing.T) {
		_, _, err := svc.Login(ctx, "nobody@example.com", "correct horse", "", "")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("success", func(t *testing.T) {
		got, tokens, err := svc.Login(ctx, "ANNA@example.com", "correct horse", "test-agent", "10.0.0.1")
		require.NoError(t, err)
		require.Equal(t, user.UserID, got.UserID)
		require.NotEmpty(t, tokens.AccessToken)
		require.NotEmpty(t, tokens.RefreshToken)

		claims := &Claims{}
		_, err = jwt.ParseWithClaims(tokens.AccessToken, claims, func(*jwt.Token) (any, error) { return testSecret, nil })
		require.NoError(t, err)
		require.Equal(t, "anna@example.com", claims.Subject)
		require.Equal(t, user.UserID, claims.UserID)
		require.Equal(t, models.RoleUser, claims.Role)
		require.Equal(t, TokenTypeAccess, claims.Type)

		authed, err := svc.Authenticate(ctx, tokens.AccessToken)
		require.NoError(t, err)
		require.Equal(t, user.UserID, authed.UserID)

		// Refresh tokens are not accepted as access tokens
		_, err = svc.Authenticate(ctx, tokens.RefreshToken)
		require.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestService_RefreshAndLogout(t *testing.T) {
	ctx := context.Background()
	svc, _ := createTestService(t)
	registerTestUser(t, svc)

	_, tokens, err := svc.Login(ctx, "anna@example.com", "correct horse", "", "")
	require.NoError(t, err)

	refreshed, err := svc.Refresh(ctx, tokens.RefreshToken)
	require.NoError(t, err)
	require.NotEmpty(t, refreshed.AccessToken)
	require.Empty(t, refreshed.RefreshToken)

	_, err = svc.Refresh(ctx, tokens.AccessToken)
	require.ErrorIs(t, err, ErrInvalidToken)

	require.NoError(t, svc.Logout(ctx, tokens.RefreshToken))

	_, err = svc.Refresh(ctx, tokens.RefreshToken)
	require.ErrorIs(t, err, ErrInvalidToken)

	// Logging out twice or with garbage is harmless
	require.NoError(t, svc.Logout(ctx, tokens.RefreshToken))
	require.NoError(t, svc.Logout(ctx, "garbage"))
}

func TestService_ExpiredToken(t *testing.T) {
	ctx := context.Background()
	svc, _ := createTestService(t)
	registerTestUser(t, svc)

	_, tokens, err := svc.Login(ctx, "anna@example.com", "correct horse", "", "")
	require.NoError(t, err)

	svc.now = func() time.Time { return time.Now().Add(16 * time.Minute) }

	_, err = svc.Authenticate(ctx, tokens.AccessToken)
	require.ErrorIs(t, err, ErrExpiredToken)

	// The refresh token is still valid and issues a new access token
	refreshed, err := svc.Refresh(ctx, tokens.RefreshToken)
	require.NoError(t, err)

	_, err = svc.Authenticate(ctx, refreshed.AccessToken)
	require.NoError(t, err)
}

func TestService_TamperedToken(t *testing.T) {
	ctx := context.Background()
	svc, _ := createTestService(t)
	registerTestUser(t, svc)

	_, tokens, err := svc.Login(ctx, "anna@example.com", "correct horse", "", "")
	require.NoError(t, err)

	other, err := NewService(svc.stores, Config{Secret: []byte("another-secret-key-min-32-bytes-long")})
	require.NoError(t, err)

	_, err = other.Authenticate(ctx, tokens.AccessToken)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestService_CleanupSessions(t *testing.T) {
	svc, stores := createTestService(t)
	ctx := context.Background()

	expired := &models.Session{
		SessionID: uuid.Must(uuid.NewV7()),
		UserID:    1,
		CreatedAt: time.Now().Add(-2 * time.Hour),
		ExpiresAt: time.Now().Add(-time.Hour),
	}
	require.NoError(t, stores.Sessions.Create(ctx, expired))

	// disabled intervals return immediately
	svc.CleanupSessions(ctx, 0)
	svc.CleanupSessions(ctx, -time.Second)

	cleanupCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		svc.CleanupSessions(cleanupCtx, 10*time.Millisecond)
	}()

	require.Eventually(t, func() bool {
		_, err := stores.Sessions.Get(ctx, expired.SessionID)
		return errors.Is(err, store.ErrSessionNotFound)
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-done
}

func TestService_SetCookies(t *testing.T) {
	ctx := context.Background()
	svc, _ := createTestService(t)
	registerTestUser(t, svc)

	_, tokens, err := svc.Login(ctx, "anna@example.com", "correct horse", "", "")
	require.NoError(t, err)

	w := httptest.NewRecorder()
	svc.SetCookies(w, tokens)

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 2)

	byName := map[string]*http.Cookie{}
	for _, c := range cookies {
		byName[c.Name] = c
	}

	access := byName[AccessCookie]
	require.NotNil(t, access)
	require.Equal(t, tokens.AccessToken, access.Value)
	require.True(t, access.HttpOnly)
	require.Equal(t, http.SameSiteLaxMode, access.SameSite)
	require.InDelta(t, 15*60, access.MaxAge, 2)

	refresh := byName[RefreshCookie]
	require.NotNil(t, refresh)
	require.InDelta(t, 7*24*60*60, refresh.MaxAge, 2)

	w = httptest.NewRecorder()
	svc.ClearCookies(w)
	for _, c := range w.Result().Cookies() {
		require.Empty(t, c.Value)
		require.Negative(t, c.MaxAge)
	}
}

func TestService_RequireAuth(t *testing.T) {
	ctx := context.Background()
	svc, _ := createTestService(t)
	user := registerTestUser(t, svc)

	_, tokens, err := svc.Login(ctx, "anna@example.com", "correct horse", "", "")
	require.NoError(t, err)

	handler := svc.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, ok := UserFromContext(r.Context())
		require.True(t, ok)
		require.Equal(t, user.UserID, got.UserID)
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("no token", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/protected", nil))
		require.Equal(t, http.StatusUnauthorized, w.Code)
		require.Contains(t, w.Body.String(), "Not authenticated")
	})

	t.Run("cookie", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/protected", nil)
		r.AddCookie(&http.Cookie{Name: AccessCookie, Value: tokens.AccessToken})

		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		require.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("bearer header", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/protected", nil)
		r.Header.Set("Authorization", "Bearer "+tokens.AccessToken)

		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		require.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("invalid token", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/protected", nil)
		r.AddCookie(&http.Cookie{Name: AccessCookie, Value: "not-a-jwt"})

		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		require.Equal(t, http.StatusUnauthorized, w.Code)
		require.Contains(t, w.Body.String(), "Invalid token")
	})
}
