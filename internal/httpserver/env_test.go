package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/Skotchmaster/cleanshop/internal/events"
	"github.com/Skotchmaster/cleanshop/internal/models"
	"github.com/Skotchmaster/cleanshop/internal/repo"
	"github.com/Skotchmaster/cleanshop/internal/service"
	"github.com/Skotchmaster/cleanshop/internal/testutil"
	"github.com/Skotchmaster/cleanshop/pkg/hash"
	"github.com/Skotchmaster/cleanshop/pkg/tokens"
)

type testEnv struct {
	E      *echo.Echo
	DB     *gorm.DB
	Events *events.Recorder
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := testutil.NewDB(t)
	require.NoError(t, repo.Migrate(db))
	r := repo.New(db)
	_, err := r.SeedRoles(context.Background(), models.Roles)
	require.NoError(t, err)

	iss, err := tokens.NewIssuer([]byte("test-jwt-secret"), "cleanshop", "cleanshop-clients", 15*time.Minute)
	require.NoError(t, err)

	rec := &events.Recorder{}
	e := echo.New()
	Register(e, &Deps{
		AuthHandler: &AuthHTTP{Svc: &service.AuthService{
			UOW:    r,
			Hasher: hash.Bcrypt{Cost: bcrypt.MinCost},
			Tokens: iss,
			Events: rec,
		}},
		CatalogHandler: &CatalogHTTP{Svc: &service.CatalogService{Repo: r, Events: rec}},
		Tokens:         iss,
		DB:             db,
	})
	return &testEnv{E: e, DB: db, Events: rec}
}

func (env *testEnv) doJSONRequest(method, path string, body any, header http.Header, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for k, v := range header {
		req.Header[k] = v
	}
	for _, ck := range cookies {
		req.AddCookie(ck)
	}
	rec := httptest.NewRecorder()
	env.E.ServeHTTP(rec, req)
	return rec
}

func bearer(token string) http.Header {
	return http.Header{echo.HeaderAuthorization: {"Bearer " + token}}
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func (env *testEnv) register(t *testing.T, username, password string) {
	t.Helper()
	rec := env.doJSONRequest(http.MethodPost, "/auth/register", map[string]string{
		"username": username,
		"email":    username + "@example.com",
		"password": password,
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

// loginAs registers username, grants it role unless empty, and returns an
// access token.
func (env *testEnv) loginAs(t *testing.T, username, role string) string {
	t.Helper()
	env.register(t, username, "Secret#1")
	if role != "" {
		rec := env.doJSONRequest(http.MethodPost, "/auth/roles", map[string]string{
			"username": username,
			"password": "Secret#1",
			"role":     role,
		}, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}
	rec := env.doJSONRequest(http.MethodPost, "/auth/login", map[string]string{
		"username": username,
		"password": "Secret#1",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decode[map[string]any](t, rec)["token"].(string)
}
