package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spabas/libreo-bridge/internal/httpclient"
	"github.com/spabas/libreo-bridge/internal/interfaces"
	"github.com/spabas/libreo-bridge/internal/models"
)

// SyncUserInfo fetches the current user's profile and mirrors it under
// users.{sub}. Raw token values never reach the store; only the provider's
// token-presence booleans are mirrored.
func (s *Service) SyncUserInfo(ctx context.Context) error {
	var (
		status int
		info   models.UserInfo
	)
	err := s.session.CallAuthenticated(ctx, "get-userinfo", func(ctx context.Context) (int, error) {
		resp, err := s.client.Get(ctx, s.config.Portal.PortalURL+"/userinfo", &httpclient.RequestOptions{
			FollowRedirects: true,
		})
		if err != nil {
			return 0, err
		}
		status = resp.StatusCode
		if resp.StatusCode == http.StatusOK {
			if err := resp.Decode(&info); err != nil {
				return resp.StatusCode, err
			}
		}
		return resp.StatusCode, nil
	})
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		s.logger.Warn().Int("status", status).Msg("Userinfo request rejected")
		return fmt.Errorf("get userinfo: unexpected status %d", status)
	}

	base := "users." + info.Sub
	if err := s.store.EnsureNode(ctx, base, interfaces.NodeMeta{
		Kind: interfaces.NodeKindChannel,
		Name: info.Email,
	}); err != nil {
		return fmt.Errorf("failed to create user node %s: %w", base, err)
	}

	s.mirrorState(ctx, base+".given_name", "given name", "string", "text", "", info.GivenName)
	s.mirrorState(ctx, base+".family_name", "family name", "string", "text", "", info.FamilyName)
	s.mirrorState(ctx, base+".activeOrg", "active organisation", "string", "text", "", info.ActiveOrg)
	s.mirrorState(ctx, base+".access_token", "access token", "boolean", "boolean", "", info.AccessToken)
	s.mirrorState(ctx, base+".refresh_token", "refresh token", "boolean", "boolean", "", info.RefreshToken)
	s.mirrorState(ctx, base+".expires_at", "expiration", "string", "text", "", info.ExpiresAt)
	s.mirrorState(ctx, base+".locale", "locale", "string", "text", "", info.Locale)

	// Permissions are flattened into one JSON string.
	permissions, err := json.Marshal(info.Permissions)
	if err != nil {
		return fmt.Errorf("failed to serialize permissions: %w", err)
	}
	s.mirrorState(ctx, base+".permissions", "permissions", "string", "text", "", string(permissions))

	return nil
}
