// Package middleware provides HTTP middleware for the regionwatch API.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Saul-Punybz/regionwatch/internal/models"
)

// CookieName is the cookie carrying the login token.
const CookieName = "session_token"

type contextKey string

const userContextKey contextKey = "user"

// SessionLookup resolves login tokens.
type SessionLookup interface {
	GetByToken(ctx context.Context, token string) (*models.AuthSession, error)
	Delete(ctx context.Context, token string) error
}

// UserLookup resolves users by id.
type UserLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// TokenFromRequest returns the login token from an "Authorization: Bearer"
// header or, failing that, from the session cookie.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	if cookie, err := r.Cookie(CookieName); err == nil {
		return cookie.Value
	}
	return ""
}

// SessionAuth returns middleware that resolves the login token, looks up the
// session and user, and injects the user into the request context.
// Requests without a valid session receive 401.
func SessionAuth(sessions SessionLookup, users UserLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := TokenFromRequest(r)
			if token == "" {
				deny(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			session, err := sessions.GetByToken(r.Context(), token)
			if err != nil {
				slog.Debug("auth: session lookup failed", "err", err)
				deny(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			if session.Expired(time.Now()) {
				_ = sessions.Delete(r.Context(), session.ID)
				deny(w, http.StatusUnauthorized, "session expired")
				return
			}

			user, err := users.GetByID(r.Context(), session.UserID)
			if err != nil {
				slog.Error("auth: user lookup failed for valid session", "user_id", session.UserID, "err", err)
				deny(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

// RequireAdmin rejects users without the admin role. It must run after
// SessionAuth.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !UserFromContext(r.Context()).IsAdmin() {
			deny(w, http.StatusForbidden, "forbidden")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// WithUser returns a copy of ctx carrying user.
func WithUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// UserFromContext extracts the authenticated user from the request context.
// Returns nil if no user is set.
func UserFromContext(ctx context.Context) *models.User {
	u, _ := ctx.Value(userContextKey).(*models.User)
	return u
}

func deny(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}` + "\n"))
}
