package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/spabas/libreo-bridge/internal/common"
	"github.com/spabas/libreo-bridge/internal/httpclient"
)

func createTestLogger() arbor.ILogger {
	return arbor.NewLogger()
}

// fakePortal emulates the provider's login handshake: the portal login entry
// redirects to the authorize endpoint, the authorize endpoint issues the
// XSRF cookie and, once the session cookie exists, serves the auto-submit
// code form.
type fakePortal struct {
	mu     sync.Mutex
	hits   map[string]int
	server *httptest.Server
}

func newFakePortal(t *testing.T) *fakePortal {
	t.Helper()

	p := &fakePortal{hits: make(map[string]int)}

	mux := http.NewServeMux()

	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		p.count(r.URL.Path)
		w.Header().Set("Location", p.server.URL+"/connect/authorize")
		w.WriteHeader(http.StatusFound)
	})

	mux.HandleFunc("/connect/authorize", func(w http.ResponseWriter, r *http.Request) {
		p.count(r.URL.Path)
		if cookie, err := r.Cookie("idsession"); err == nil && cookie.Value == "ok" {
			fmt.Fprintf(w, `<html><body><form method="post" action="%s/signin-oidc">
				<input type="hidden" name="code" value="abc"/>
				<input type="hidden" name="state" value="xyz"/>
			</form></body></html>`, p.server.URL)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "XSRF-TOKEN", Value: "tok-123", Path: "/"})
		w.Header().Set("Location", p.server.URL+"/dead-end")
		w.WriteHeader(http.StatusFound)
	})

	// The handshake must never follow the authorize response's redirect;
	// it reuses the first redirect target instead.
	mux.HandleFunc("/dead-end", func(w http.ResponseWriter, r *http.Request) {
		p.count(r.URL.Path)
		w.WriteHeader(http.StatusOK)
	})

	mux.HandleFunc("/api/login", func(w http.ResponseWriter, r *http.Request) {
		p.count(r.URL.Path)
		if r.Header.Get("X-Xsrf-Token") != "tok-123" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		var creds struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&creds); err != nil || creds.Email != "user@example.com" || creds.Password != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "idsession", Value: "ok", Path: "/"})
		w.WriteHeader(http.StatusOK)
	})

	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		p.count(r.URL.Path)
		fmt.Fprint(w, `{}`)
	})

	mux.HandleFunc("/signin-oidc", func(w http.ResponseWriter, r *http.Request) {
		p.count(r.URL.Path)
		require.NoError(t, r.ParseForm())
		if r.PostForm.Get("code") != "abc" || r.PostForm.Get("state") != "xyz" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	p.server = httptest.NewServer(mux)
	t.Cleanup(p.server.Close)
	return p
}

func (p *fakePortal) count(path string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hits[path]++
}

func (p *fakePortal) hitCount(path string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hits[path]
}

func newTestService(t *testing.T, portal *fakePortal) *Service {
	t.Helper()

	config := common.NewDefaultConfig()
	config.Portal.Username = "user@example.com"
	config.Portal.Password = "secret"
	config.Portal.PortalURL = portal.server.URL
	config.Portal.LoginAPIURL = portal.server.URL + "/api/login"
	config.Portal.Issuer = portal.server.URL

	client, err := httpclient.New(10 * time.Second)
	require.NoError(t, err)

	return NewService(config, client, createTestLogger())
}

func TestLogin_Handshake(t *testing.T) {
	portal := newFakePortal(t)
	service := newTestService(t, portal)

	require.False(t, service.LoggedIn())

	ok := service.Login(context.Background())

	require.True(t, ok)
	assert.True(t, service.LoggedIn())

	// Authorize is visited twice unauthenticated (redirect hop plus the
	// reused first redirect target) and once more for the code form.
	assert.Equal(t, 3, portal.hitCount("/connect/authorize"))
	assert.Equal(t, 1, portal.hitCount("/api/login"))
	assert.Equal(t, 1, portal.hitCount("/signin-oidc"))

	// The authorize response's own redirect target is never followed.
	assert.Equal(t, 0, portal.hitCount("/dead-end"))
}

func TestLogin_Idempotent(t *testing.T) {
	portal := newFakePortal(t)
	service := newTestService(t, portal)

	require.True(t, service.Login(context.Background()))
	require.True(t, service.LoggedIn())

	// A second login with valid credentials succeeds on the same jar.
	require.True(t, service.Login(context.Background()))
	assert.True(t, service.LoggedIn())
	assert.Equal(t, "tok-123", service.XsrfToken())
}

func TestLogin_BadCredentials(t *testing.T) {
	portal := newFakePortal(t)
	service := newTestService(t, portal)
	service.config.Portal.Password = "wrong"

	ok := service.Login(context.Background())

	assert.False(t, ok)
	assert.False(t, service.LoggedIn())
}

func TestCallAuthenticated_RetriesOnceAfterRelogin(t *testing.T) {
	portal := newFakePortal(t)
	service := newTestService(t, portal)

	calls := 0
	err := service.CallAuthenticated(context.Background(), "test-op", func(ctx context.Context) (int, error) {
		calls++
		if calls == 1 {
			return http.StatusUnauthorized, nil
		}
		return http.StatusOK, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 1, portal.hitCount("/api/login"))
	assert.True(t, service.LoggedIn())
}

func TestCallAuthenticated_SecondUnauthorizedIsTerminal(t *testing.T) {
	portal := newFakePortal(t)
	service := newTestService(t, portal)

	calls := 0
	err := service.CallAuthenticated(context.Background(), "test-op", func(ctx context.Context) (int, error) {
		calls++
		return http.StatusUnauthorized, nil
	})

	require.Error(t, err)
	assert.Equal(t, 2, calls)

	// Exactly one re-login; a second 401 never triggers another.
	assert.Equal(t, 1, portal.hitCount("/api/login"))
}

func TestCallAuthenticated_OtherStatusesPassThrough(t *testing.T) {
	portal := newFakePortal(t)
	service := newTestService(t, portal)

	calls := 0
	err := service.CallAuthenticated(context.Background(), "test-op", func(ctx context.Context) (int, error) {
		calls++
		return http.StatusInternalServerError, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, portal.hitCount("/api/login"))
}
