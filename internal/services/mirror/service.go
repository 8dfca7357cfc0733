package mirror

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/spabas/libreo-bridge/internal/common"
	"github.com/spabas/libreo-bridge/internal/httpclient"
	"github.com/spabas/libreo-bridge/internal/interfaces"
	"github.com/spabas/libreo-bridge/internal/models"
)

const xsrfCookieName = "XSRF-TOKEN"

// Service maps provider REST resources onto the node store. Every provider
// call goes through the session manager's authenticated-call wrapper; the
// mirror itself never retries.
type Service struct {
	config  *common.Config
	client  *httpclient.Client
	session interfaces.SessionManager
	store   interfaces.NodeStore
	events  interfaces.EventService
	logger  arbor.ILogger

	mu             sync.Mutex
	activeOrgPath  string // provider form, slash-delimited
	activeNodePath string // store form, dot-delimited
}

// NewService creates a resource mirror
func NewService(config *common.Config, client *httpclient.Client, session interfaces.SessionManager, store interfaces.NodeStore, events interfaces.EventService, logger arbor.ILogger) *Service {
	return &Service{
		config:  config,
		client:  client,
		session: session,
		store:   store,
		events:  events,
		logger:  logger,
	}
}

// ActiveOrg returns the provider path and node path of the active
// organization, or ok=false before the first successful org sync.
func (s *Service) ActiveOrg() (orgPath, nodePath string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeOrgPath, s.activeNodePath, s.activeOrgPath != ""
}

// SyncOrgs enumerates the organizations and mirrors a structural node for
// each. Only the last organization in the enumeration is activated: its
// detail, users and stations are fetched and an activation event is
// published so the realtime channel can be (re)opened for it.
// TODO: activate all organizations, not only the last one.
func (s *Service) SyncOrgs(ctx context.Context) error {
	s.logger.Info().Msg("Syncing organizations")

	var (
		status int
		orgs   []models.Organization
	)
	err := s.session.CallAuthenticated(ctx, "get-orgs", func(ctx context.Context) (int, error) {
		resp, err := s.client.Get(ctx, s.config.Portal.PortalURL+"/api/identity/orgs", &httpclient.RequestOptions{
			FollowRedirects: true,
		})
		if err != nil {
			return 0, err
		}
		status = resp.StatusCode
		if resp.StatusCode == http.StatusOK {
			if err := resp.Decode(&orgs); err != nil {
				return resp.StatusCode, err
			}
		}
		return resp.StatusCode, nil
	})
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		s.logger.Warn().Int("status", status).Msg("Organization list request rejected")
		return fmt.Errorf("get orgs: unexpected status %d", status)
	}

	for index, org := range orgs {
		nodePath := orgNodePath(org.Path)
		if err := s.store.EnsureNode(ctx, nodePath, interfaces.NodeMeta{
			Kind: interfaces.NodeKindChannel,
			Name: org.Name,
		}); err != nil {
			s.logger.Warn().Err(err).Str("org", org.Path).Msg("Failed to create organization node")
			continue
		}

		if index != len(orgs)-1 {
			continue
		}

		s.mu.Lock()
		s.activeOrgPath = org.Path
		s.activeNodePath = nodePath
		s.mu.Unlock()

		if err := s.SetOrg(ctx, org.Path); err != nil {
			s.logger.Warn().Err(err).Str("org", org.Path).Msg("Failed to set active organization")
		}
		if err := s.GetOrg(ctx, org.Path); err != nil {
			s.logger.Warn().Err(err).Str("org", org.Path).Msg("Failed to fetch organization detail")
		}
		if err := s.SyncStations(ctx, nodePath); err != nil {
			s.logger.Warn().Err(err).Str("org", org.Path).Msg("Failed to sync stations")
		}

		// Synchronous publish so a failed channel open surfaces here
		// instead of vanishing in a goroutine.
		if err := s.events.PublishSync(ctx, interfaces.Event{
			Type:      interfaces.EventOrgActivated,
			Timestamp: time.Now(),
			Payload: map[string]interface{}{
				"org_path":  org.Path,
				"node_path": nodePath,
			},
		}); err != nil {
			s.logger.Warn().Err(err).Str("org", org.Path).Msg("Activation handler failed")
		}
	}

	s.logger.Info().Int("count", len(orgs)).Msg("Organizations synced")
	return nil
}

// GetOrg fetches the organization detail and mirrors its member users
func (s *Service) GetOrg(ctx context.Context, orgPath string) error {
	var (
		status int
		detail models.OrgDetail
	)
	err := s.session.CallAuthenticated(ctx, "get-org", func(ctx context.Context) (int, error) {
		resp, err := s.client.Get(ctx, s.config.Portal.PortalURL+"/api/identity/orgs/"+orgPath, &httpclient.RequestOptions{
			Headers: map[string]string{
				"X-Xsrf-Token": s.portalXsrfToken(),
				"Referer":      s.config.Portal.PortalURL + "/users",
			},
			Query:           urlValues("api-version", "2.0"),
			FollowRedirects: true,
		})
		if err != nil {
			return 0, err
		}
		status = resp.StatusCode
		if resp.StatusCode == http.StatusOK {
			if err := resp.Decode(&detail); err != nil {
				return resp.StatusCode, err
			}
		}
		return resp.StatusCode, nil
	})
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		s.logger.Warn().Int("status", status).Str("org", orgPath).Msg("Organization detail request rejected")
		return fmt.Errorf("get org %s: unexpected status %d", orgPath, status)
	}

	for _, user := range detail.Users {
		base := "users." + user.ID
		if err := s.store.EnsureNode(ctx, base, interfaces.NodeMeta{
			Kind: interfaces.NodeKindChannel,
			Name: user.UserName,
		}); err != nil {
			s.logger.Warn().Err(err).Str("user", user.ID).Msg("Failed to create user node")
			continue
		}

		s.mirrorState(ctx, base+".given_name", "given name", "string", "text", "", user.FirstName)
		s.mirrorState(ctx, base+".family_name", "family name", "string", "text", "", user.LastName)
		s.mirrorState(ctx, base+".roleId", "role id", "string", "text", "", user.RoleID)
	}

	return nil
}

// SetOrg activates an organization for the current portal session. The
// response carries no meaningful body; a 200 is the only success signal.
func (s *Service) SetOrg(ctx context.Context, orgPath string) error {
	var status int
	err := s.session.CallAuthenticated(ctx, "set-org", func(ctx context.Context) (int, error) {
		resp, err := s.client.PostJSON(ctx, s.config.Portal.PortalURL+"/org/"+orgPath, map[string]interface{}{}, &httpclient.RequestOptions{
			Headers: map[string]string{
				"X-Xsrf-Token": s.portalXsrfToken(),
				"Referer":      s.config.Portal.PortalURL + "/api/identity/orgs",
			},
			FollowRedirects: true,
		})
		if err != nil {
			return 0, err
		}
		status = resp.StatusCode
		return resp.StatusCode, nil
	})
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		s.logger.Warn().Int("status", status).Str("org", orgPath).Msg("Set organization rejected")
		return fmt.Errorf("set org %s: unexpected status %d", orgPath, status)
	}
	return nil
}

// mirrorState ensures a read-only state node and writes its confirmed value.
// Mirroring failures are logged and swallowed; one bad field never aborts
// the surrounding resource sync.
func (s *Service) mirrorState(ctx context.Context, path, name, valueType, role, unit string, value interface{}) {
	meta := interfaces.NodeMeta{
		Kind:      interfaces.NodeKindState,
		Name:      name,
		ValueType: valueType,
		Role:      role,
		Unit:      unit,
		Readable:  true,
	}
	if err := s.store.EnsureNode(ctx, path, meta); err != nil {
		s.logger.Warn().Err(err).Str("path", path).Msg("Failed to create state node")
		return
	}
	if err := s.store.SetValue(ctx, path, value, true); err != nil {
		s.logger.Warn().Err(err).Str("path", path).Msg("Failed to write state value")
	}
}

func (s *Service) portalXsrfToken() string {
	return s.client.CookieValue(s.config.PortalHost(), xsrfCookieName)
}

func (s *Service) issuerXsrfToken() string {
	return s.client.CookieValue(s.config.IssuerHost(), xsrfCookieName)
}

// orgNodePath converts a provider org path into a store node path
func orgNodePath(orgPath string) string {
	return strings.ReplaceAll(orgPath, "/", ".")
}

func urlValues(pairs ...string) map[string][]string {
	values := make(map[string][]string, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		values[pairs[i]] = []string{pairs[i+1]}
	}
	return values
}
