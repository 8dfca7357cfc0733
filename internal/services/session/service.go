package session

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/ternarybob/arbor"

	"github.com/spabas/libreo-bridge/internal/common"
	"github.com/spabas/libreo-bridge/internal/httpclient"
	"github.com/spabas/libreo-bridge/internal/interfaces"
)

// xsrfCookieName is the anti-forgery cookie the identity provider issues;
// its value is echoed back in the X-Xsrf-Token header of the credential POST.
const xsrfCookieName = "XSRF-TOKEN"

// Service drives the portal's multi-hop login handshake and wraps every
// authenticated provider call with the retry-once-after-relogin policy.
// Authentication state lives entirely in the shared cookie jar plus the
// loggedIn flag; the provider never hands out a retrievable token string.
type Service struct {
	config *common.Config
	client *httpclient.Client
	logger arbor.ILogger

	mu       sync.Mutex
	loggedIn bool
}

// NewService creates a session manager on top of the shared HTTP client
func NewService(config *common.Config, client *httpclient.Client, logger arbor.ILogger) *Service {
	return &Service{
		config: config,
		client: client,
		logger: logger,
	}
}

// LoggedIn reports whether the last login attempt succeeded
func (s *Service) LoggedIn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loggedIn
}

// Client exposes the underlying HTTP client so the realtime channel can
// reuse its cookie jar when dialing the socket.
func (s *Service) Client() *httpclient.Client {
	return s.client
}

// XsrfToken returns the current anti-forgery token for the identity provider
func (s *Service) XsrfToken() string {
	return s.client.CookieValue(s.config.IssuerHost(), xsrfCookieName)
}

// Login performs the provider's login handshake: follow the portal's auth
// redirect by hand, seed the login-page cookies, POST the credentials with
// the XSRF token, then complete the authorization-code exchange by
// re-submitting the provider's auto-submit form. All authentication state
// ends up in the cookie jar. A failed attempt is logged and reported as
// false; it never panics or returns an error upward.
func (s *Service) Login(ctx context.Context) bool {
	s.logger.Info().Msg("Logging in to portal")

	portalURL := s.config.Portal.PortalURL

	// Step 1: the portal's login entry point redirects to the identity
	// provider's authorize endpoint.
	initial, err := s.client.Get(ctx, portalURL+"/login?ui_locales=de&redirectUrl=/", nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("Login entry request failed")
		return false
	}
	s.logger.Debug().Int("status", initial.StatusCode).Msg("Login entry response")
	if !handshakeStatus(initial.StatusCode) {
		s.logger.Warn().Int("status", initial.StatusCode).Msg("Unexpected login entry status")
		return false
	}

	authURL := initial.Location()
	if authURL == "" {
		s.logger.Warn().Msg("Auth redirect URL not found")
		return false
	}

	// Step 2: follow the redirect to the authorize endpoint.
	authResp, err := s.client.Get(ctx, authURL, &httpclient.RequestOptions{
		Headers: map[string]string{"Referer": portalURL},
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("Authorize request failed")
		return false
	}
	s.logger.Debug().Int("status", authResp.StatusCode).Msg("Authorize response")
	if !handshakeStatus(authResp.StatusCode) {
		s.logger.Warn().Int("status", authResp.StatusCode).Msg("Unexpected authorize status")
		return false
	}

	// Step 3: visit the login page to seed its cookies. The provider's
	// handshake reuses the FIRST response's redirect target here, not the
	// authorize response's; changing this breaks the flow.
	loginPageURL := initial.Location()

	loginPage, err := s.client.Get(ctx, loginPageURL, &httpclient.RequestOptions{
		Headers: map[string]string{"Referer": portalURL},
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("Login page request failed")
		return false
	}
	if !handshakeStatus(loginPage.StatusCode) {
		s.logger.Warn().Int("status", loginPage.StatusCode).Msg("Unexpected login page status")
		return false
	}

	// Step 4: the identity provider has set the anti-forgery cookie by now.
	xsrfToken := s.XsrfToken()
	s.logger.Debug().Str("xsrf_token", xsrfToken).Msg("Extracted XSRF token")

	// Step 5: POST the credentials directly to the login API.
	loginResp, err := s.client.PostJSON(ctx, s.config.Portal.LoginAPIURL, map[string]interface{}{
		"email":      s.config.Portal.Username,
		"password":   s.config.Portal.Password,
		"rememberMe": false,
	}, &httpclient.RequestOptions{
		Headers: map[string]string{
			"X-Xsrf-Token": xsrfToken,
			"Origin":       s.config.Portal.Issuer,
			"Referer":      loginPageURL,
		},
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("Credential POST failed")
		return false
	}
	s.logger.Debug().Int("status", loginResp.StatusCode).Msg("Credential response")

	if loginResp.StatusCode != http.StatusOK {
		s.logger.Warn().Int("status", loginResp.StatusCode).Msg("Login failed")
		return false
	}

	// Step 6: userinfo is informational only; its status is not validated.
	if userInfo, err := s.client.Get(ctx, s.config.Portal.Issuer+"/userinfo", nil); err == nil {
		s.logger.Debug().Int("status", userInfo.StatusCode).Msg("Userinfo response")
	}

	// Re-request the authorize URL; now that the session cookie exists it
	// answers with an auto-submit form carrying the authorization code.
	codePage, err := s.client.Get(ctx, authURL, nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("Authorization code request failed")
		return false
	}
	s.logger.Debug().Int("status", codePage.StatusCode).Msg("Authorization code response")

	// Step 7: pull the form target and its hidden fields out of the HTML.
	form := ExtractForm(string(codePage.Body))
	if form.Action == "" {
		s.logger.Warn().Msg("Authorization code form not found")
		return false
	}
	s.logger.Debug().Str("action", form.Action).Int("fields", len(form.Fields)).Msg("Extracted sign-in form")

	// Step 8: submit the form to finish the code exchange. This one follows
	// redirects and must land on exactly 200.
	values := url.Values{}
	for name, value := range form.Fields {
		values.Set(name, value)
	}
	tokenResp, err := s.client.PostForm(ctx, form.Action, values, &httpclient.RequestOptions{
		Headers:         map[string]string{"Referer": s.config.Portal.Issuer},
		FollowRedirects: true,
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("Sign-in form POST failed")
		return false
	}
	if tokenResp.StatusCode != http.StatusOK {
		s.logger.Warn().Int("status", tokenResp.StatusCode).Msg("Sign-in form POST rejected")
		return false
	}

	s.mu.Lock()
	s.loggedIn = true
	s.mu.Unlock()

	s.logger.Info().Msg("Logged in")
	return true
}

// CallAuthenticated invokes fn and intercepts authorization failures: a 401
// triggers one fresh login followed by one retry of fn. A second 401, or a
// failed re-login, is terminal for this call. Any other status passes
// through untouched; fn decides what counts as success.
func (s *Service) CallAuthenticated(ctx context.Context, operation string, fn interfaces.RequestFunc) error {
	status, err := fn(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Str("operation", operation).Msg("Request failed")
		return fmt.Errorf("%s: %w", operation, err)
	}
	if status != http.StatusUnauthorized {
		return nil
	}

	s.logger.Info().Str("operation", operation).Msg("Unauthorized, logging in again")

	s.mu.Lock()
	s.loggedIn = false
	s.mu.Unlock()

	if !s.Login(ctx) {
		return fmt.Errorf("%s: re-login failed", operation)
	}

	status, err = fn(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Str("operation", operation).Msg("Retry failed")
		return fmt.Errorf("%s: retry: %w", operation, err)
	}
	if status == http.StatusUnauthorized {
		s.logger.Warn().Str("operation", operation).Msg("Still unauthorized after re-login")
		return fmt.Errorf("%s: unauthorized after re-login", operation)
	}

	return nil
}

// handshakeStatus accepts any 2xx or redirect status during the login hops
func handshakeStatus(code int) bool {
	return code >= 200 && code < 400
}
