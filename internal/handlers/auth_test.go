package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/Saul-Punybz/regionwatch/internal/middleware"
	"github.com/Saul-Punybz/regionwatch/internal/models"
)

type memUsers map[string]*models.User

func (m memUsers) GetByEmail(_ context.Context, email string) (*models.User, error) {
	u, ok := m[strings.ToLower(email)]
	if !ok {
		return nil, fmt.Errorf("user get by email: %w", models.ErrNotFound)
	}
	return u, nil
}

type memLogins struct {
	created []*models.AuthSession
	deleted []string
}

func (m *memLogins) Create(_ context.Context, s *models.AuthSession) error {
	m.created = append(m.created, s)
	return nil
}

func (m *memLogins) Delete(_ context.Context, token string) error {
	m.deleted = append(m.deleted, token)
	return nil
}

func newAuthHandler(t *testing.T) (*AuthHandler, *memLogins) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("correct horse"), bcrypt.MinCost)
	require.NoError(t, err)
	logins := &memLogins{}
	return &AuthHandler{
		Users: memUsers{"ops@example.com": {
			ID:           uuid.New(),
			Email:        "ops@example.com",
			PasswordHash: string(hash),
			Role:         models.RoleAdmin,
		}},
		Sessions: logins,
	}, logins
}

func postLogin(h *AuthHandler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/login", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Login(rec, req)
	return rec
}

func TestLogin_IssuesTokenAndCookie(t *testing.T) {
	h, logins := newAuthHandler(t)

	rec := postLogin(h, `{"email":" OPS@example.com ","password":"correct horse"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Token string       `json:"token"`
		User  *models.User `json:"user"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Token, 64)
	assert.Equal(t, models.RoleAdmin, resp.User.Role)
	assert.NotContains(t, rec.Body.String(), "$2a$", "password hash must not leak")

	require.Len(t, logins.created, 1)
	assert.Equal(t, resp.Token, logins.created[0].ID)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, middleware.CookieName, cookies[0].Name)
	assert.Equal(t, resp.Token, cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)
	assert.True(t, cookies[0].Secure)
}

func TestLogin_Rejections(t *testing.T) {
	h, logins := newAuthHandler(t)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"bad json", `{`, http.StatusBadRequest},
		{"missing password", `{"email":"ops@example.com"}`, http.StatusBadRequest},
		{"unknown email", `{"email":"who@example.com","password":"x"}`, http.StatusUnauthorized},
		{"wrong password", `{"email":"ops@example.com","password":"wrong"}`, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postLogin(h, tt.body)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
	assert.Empty(t, logins.created)
}

func TestLogout_RevokesBearerToken(t *testing.T) {
	h, logins := newAuthHandler(t)
	h.InsecureCookie = true

	req := httptest.NewRequest(http.MethodPost, "/api/logout", nil)
	req.Header.Set("Authorization", "Bearer abc123")
	rec := httptest.NewRecorder()
	h.Logout(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"abc123"}, logins.deleted)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, -1, cookies[0].MaxAge)
	assert.False(t, cookies[0].Secure)
}
