package login

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/foundreg/internal/models"
)

// Cookie names.
const (
	AccessCookie  = "access_token"
	RefreshCookie = "refresh_token"
)

type contextKey int

const userContextKey contextKey = iota

// SetCookies stores issued tokens in HttpOnly cookies. An empty refresh token
// leaves the refresh cookie untouched.
func (s *Service) SetCookies(w http.ResponseWriter, tokens *Tokens) {
	http.SetCookie(w, s.cookie(AccessCookie, tokens.AccessToken, tokens.AccessExpiresAt))

	if tokens.RefreshToken != "" {
		http.SetCookie(w, s.cookie(RefreshCookie, tokens.RefreshToken, tokens.RefreshExpiresAt))
	}
}

// ClearCookies expires both auth cookies.
func (s *Service) ClearCookies(w http.ResponseWriter) {
	for _, name := range []string{AccessCookie, RefreshCookie} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   s.secureCookies,
			SameSite: http.SameSiteLaxMode,
		})
	}
}

func (s *Service) cookie(name, value string, expiresAt time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.secureCookies,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(expiresAt.Sub(s.now()).Seconds()),
	}
}

// AccessToken returns the access token of a request, from the access_token
// cookie or an Authorization bearer header.
func AccessToken(r *http.Request) string {
	if cookie, err := r.Cookie(AccessCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return strings.TrimSpace(token)
	}

	return ""
}

// RefreshToken returns the refresh_token cookie value, if any.
func RefreshToken(r *http.Request) string {
	cookie, err := r.Cookie(RefreshCookie)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// RequireAuth is a middleware that rejects requests without a valid access token
// with 401. On success, it adds the user to the request context.
func (s *Service) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := AccessToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "Not authenticated")
			return
		}

		user, err := s.Authenticate(r.Context(), token)
		if err != nil {
			switch {
			case errors.Is(err, ErrExpiredToken):
				log.Debug().Str("path", r.URL.Path).Msg("Access token expired")
				writeError(w, http.StatusUnauthorized, "Token expired")
			case errors.Is(err, ErrInvalidToken):
				log.Debug().Str("path", r.URL.Path).Msg("Invalid access token")
				writeError(w, http.StatusUnauthorized, "Invalid token")
			default:
				log.Error().Err(err).Str("path", r.URL.Path).Msg("Failed to authenticate request")
				writeError(w, http.StatusInternalServerError, "")
			}
			return
		}

		ctx := ContextWithUser(r.Context(), user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func writeError(w http.ResponseWriter, status int, description string) {
	body := map[string]string{"error": "unauthorized", "error_description": description}
	if status == http.StatusInternalServerError {
		body = map[string]string{"error": "internal_error"}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// ContextWithUser returns a copy of ctx carrying user.
func ContextWithUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// UserFromContext extracts the authenticated user from the request context.
// This should be called from handlers protected by RequireAuth middleware.
func UserFromContext(ctx context.Context) (*models.User, bool) {
	user, ok := ctx.Value(userContextKey).(*models.User)
	return user, ok
}
