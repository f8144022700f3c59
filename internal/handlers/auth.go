package handlers

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/Saul-Punybz/regionwatch/internal/middleware"
	"github.com/Saul-Punybz/regionwatch/internal/models"
)

const sessionDuration = 7 * 24 * time.Hour

// Credentials looks up dashboard accounts by email.
type Credentials interface {
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}

// LoginSessions creates and revokes login tokens.
type LoginSessions interface {
	Create(ctx context.Context, session *models.AuthSession) error
	Delete(ctx context.Context, token string) error
}

// AuthHandler groups authentication-related HTTP handlers.
type AuthHandler struct {
	Users    Credentials
	Sessions LoginSessions

	// InsecureCookie drops the Secure flag, for plain-HTTP local setups.
	InsecureCookie bool
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	User      *models.User `json:"user"`
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
}

// Login handles POST /api/login. On success the token is set as an HttpOnly
// cookie for the dashboard and returned in the body for API clients, which
// send it back as a bearer token.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password required")
		return
	}

	user, err := h.Users.GetByEmail(r.Context(), req.Email)
	switch {
	case errors.Is(err, models.ErrNotFound):
		slog.Debug("auth: unknown email", "email", req.Email)
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	case err != nil:
		slog.Error("auth: user lookup", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		slog.Debug("auth: password mismatch", "email", req.Email)
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, err := newToken()
	if err != nil {
		slog.Error("auth: generate token", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	session := &models.AuthSession{
		ID:        token,
		UserID:    user.ID,
		ExpiresAt: time.Now().Add(sessionDuration),
	}
	if err := h.Sessions.Create(r.Context(), session); err != nil {
		slog.Error("auth: create session", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	slog.Info("auth: login", "user", user.Email, "role", user.Role)
	h.setCookie(w, token, int(sessionDuration.Seconds()))
	writeJSON(w, http.StatusOK, loginResponse{User: user, Token: token, ExpiresAt: session.ExpiresAt})
}

// Logout handles POST /api/logout. It revokes the token the request was
// authenticated with, whether it came from the cookie or the header.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if token := middleware.TokenFromRequest(r); token != "" {
		if err := h.Sessions.Delete(r.Context(), token); err != nil {
			slog.Error("auth: delete session", "err", err)
		}
	}
	h.setCookie(w, "", -1)
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

// Me handles GET /api/me.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *AuthHandler) setCookie(w http.ResponseWriter, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.CookieName,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   !h.InsecureCookie,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   maxAge,
	})
}

func newToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
