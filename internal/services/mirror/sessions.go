package mirror

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/spabas/libreo-bridge/internal/httpclient"
	"github.com/spabas/libreo-bridge/internal/interfaces"
	"github.com/spabas/libreo-bridge/internal/models"
)

// SyncSessions fetches one page of historical charging sessions inside the
// given window and mirrors them under chargingsessions.{id}. The provider
// session id is zero-padded to five digits so store paths sort lexically.
func (s *Service) SyncSessions(ctx context.Context, from, until time.Time) error {
	var (
		status int
		page   models.SessionPage
	)
	err := s.session.CallAuthenticated(ctx, "get-sessions", func(ctx context.Context) (int, error) {
		resp, err := s.client.Get(ctx, s.config.Portal.PortalURL+"/api/assets/chargingsessions", &httpclient.RequestOptions{
			Headers: map[string]string{
				"X-Xsrf-Token": s.issuerXsrfToken(),
			},
			Query: urlValues(
				"api-version", "1.0",
				"pageNumber", "1",
				"pageSize", "100",
				"start", from.UTC().Format(time.RFC3339),
				"end", until.UTC().Format(time.RFC3339),
			),
			FollowRedirects: true,
		})
		if err != nil {
			return 0, err
		}
		status = resp.StatusCode
		if resp.StatusCode == http.StatusOK {
			if err := resp.Decode(&page); err != nil {
				return resp.StatusCode, err
			}
		}
		return resp.StatusCode, nil
	})
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		s.logger.Warn().Int("status", status).Msg("Charging session request rejected")
		return fmt.Errorf("get sessions: unexpected status %d", status)
	}

	// The root marker also steers SessionWindow: once it exists, later
	// syncs only fetch the trailing month.
	if err := s.store.EnsureNode(ctx, "chargingsessions", interfaces.NodeMeta{
		Kind: interfaces.NodeKindChannel,
		Name: "charging sessions",
	}); err != nil {
		return fmt.Errorf("failed to create session history node: %w", err)
	}

	for _, session := range page.Data {
		if session == nil {
			continue
		}

		base := fmt.Sprintf("chargingsessions.%05d", session.ChargingSessionID)
		if err := s.store.EnsureNode(ctx, base, interfaces.NodeMeta{
			Kind: interfaces.NodeKindChannel,
			Name: session.CreationDate,
		}); err != nil {
			s.logger.Warn().Err(err).Str("path", base).Msg("Failed to create session node")
			continue
		}

		s.mirrorState(ctx, base+".id", "id", "string", "text", "", session.ID)
		s.mirrorState(ctx, base+".chargingStationId", "charging station id", "string", "text", "", session.ChargingStationID)
		s.mirrorState(ctx, base+".chargingStationName", "charging station name", "string", "text", "", session.ChargingStationName)
		s.mirrorState(ctx, base+".chargingStatus", "charging status", "string", "text", "", session.ChargingStatus)
		s.mirrorState(ctx, base+".location", "charging location", "string", "text", "", session.Location)
		s.mirrorState(ctx, base+".organizationPath", "organization path", "string", "text", "", session.OrganizationPath)
		s.mirrorState(ctx, base+".sessionStarted", "session started", "string", "text", "", session.SessionStarted)
		s.mirrorState(ctx, base+".sessionCompleted", "session completed", "string", "text", "", session.SessionCompleted)
		s.mirrorState(ctx, base+".sessionDuration", "session duration in seconds", "number", "value", "s", session.SessionDuration)
		s.mirrorState(ctx, base+".sessionEnergyAmount", "session energy amount in Wh", "number", "value", "Wh", session.SessionEnergyAmount)

		if session.User != nil {
			s.mirrorState(ctx, base+".user.id", "user id", "string", "text", "", session.User.ID)
			s.mirrorState(ctx, base+".user.firstName", "first name", "string", "text", "", session.User.FirstName)
			s.mirrorState(ctx, base+".user.lastName", "last name", "string", "text", "", session.User.LastName)
		}
	}

	s.logger.Info().Int("count", len(page.Data)).Msg("Charging sessions synced")
	return nil
}

// SessionWindow picks the history window for the next session sync: the
// whole year to date on the very first run, otherwise the trailing month.
func (s *Service) SessionWindow(ctx context.Context) (time.Time, time.Time) {
	until := time.Now()

	exists, err := s.store.HasNode(ctx, "chargingsessions")
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to check session history node")
	}
	if !exists {
		return time.Date(until.Year(), time.January, 1, 0, 0, 0, 0, until.Location()), until
	}
	return until.AddDate(0, -1, 0), until
}
