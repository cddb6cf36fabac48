package app

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-authz/internal/authz"
	"github.com/odyssey-erp/odyssey-authz/internal/observability"
)

func TestRouterHealthAndReadiness(t *testing.T) {
	ready := errors.New("postgres down")
	router := NewRouter(RouterParams{
		Config:    &Config{AppEnv: "test"},
		Metrics:   observability.NewMetrics(),
		Readiness: func(ctx context.Context) error { return ready },
	})

	res := httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "nosniff", res.Header().Get("X-Content-Type-Options"))

	res = httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, res.Code)

	ready = nil
	res = httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, res.Code)

	res = httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), `odyssey_http_requests_total{code="200",route="/healthz"} 1`)
}

func TestIdentityHeadersAttachPrincipal(t *testing.T) {
	var got authz.Principal
	var present bool
	r := chi.NewRouter()
	r.Use(IdentityHeaders("X-Auth-User", "X-Auth-Roles"))
	r.Get("/", func(w http.ResponseWriter, req *http.Request) {
		got, present = authz.PrincipalFromContext(req.Context())
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Auth-User", "U1")
	req.Header.Set("X-Auth-Roles", "ROLE_ADMIN, ,ROLE_EDITOR")
	r.ServeHTTP(httptest.NewRecorder(), req)

	require.True(t, present)
	assert.Equal(t, "U1", got.ID)
	assert.Equal(t, []string{"ROLE_ADMIN", "ROLE_EDITOR"}, got.Roles)

	present = false
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.False(t, present)
}
