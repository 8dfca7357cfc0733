package mirror

import (
	"context"
	"fmt"
	"net/http"

	"github.com/spabas/libreo-bridge/internal/httpclient"
)

// SetCurrent asks the provider to change a station's maximum charging
// current. The provider acknowledges with exactly 204; anything else is a
// failed command.
func (s *Service) SetCurrent(ctx context.Context, stationID string, amps float64) error {
	var status int
	err := s.session.CallAuthenticated(ctx, "set-current", func(ctx context.Context) (int, error) {
		resp, err := s.client.PutJSON(ctx,
			s.config.Portal.PortalURL+"/api/customer/chargingstations/"+stationID,
			map[string]interface{}{"maxCurrent": amps},
			&httpclient.RequestOptions{
				Headers: map[string]string{
					"X-Xsrf-Token": s.portalXsrfToken(),
					"Referer":      s.config.Portal.PortalURL + "/charging-stations?chargingStationId=" + stationID + "&dialog=settings",
				},
				Query:           urlValues("api-version", "1.0"),
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
	if status != http.StatusNoContent {
		s.logger.Warn().Int("status", status).Str("station", stationID).Msg("Setting current failed")
		return fmt.Errorf("set current on %s: unexpected status %d", stationID, status)
	}

	s.logger.Info().Str("station", stationID).Float64("amps", amps).Msg("Current limit set")
	return nil
}

// Charging starts or stops a charging session on a station, impersonating
// the given user. Success is exactly 204.
func (s *Service) Charging(ctx context.Context, stationID string, start bool, userID string) error {
	verb := "false"
	if start {
		verb = "true"
	}

	var impersonated interface{}
	if userID != "" {
		impersonated = userID
	}

	var status int
	err := s.session.CallAuthenticated(ctx, "charging", func(ctx context.Context) (int, error) {
		resp, err := s.client.PostJSON(ctx,
			s.config.Portal.PortalURL+"/api/customer/chargingstations/"+stationID+"/cmd/charge/"+verb,
			map[string]interface{}{"impersonatedUserId": impersonated},
			&httpclient.RequestOptions{
				Headers: map[string]string{
					"X-Xsrf-Token": s.portalXsrfToken(),
					"Referer":      s.config.Portal.PortalURL + "/charging-stations?chargingStationId=" + stationID + "&dialog=startCharging",
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
	if status != http.StatusNoContent {
		s.logger.Warn().Int("status", status).Str("station", stationID).Msg("Charging request failed")
		return fmt.Errorf("charging on %s: unexpected status %d", stationID, status)
	}

	s.logger.Info().Str("station", stationID).Bool("start", start).Str("user", userID).Msg("Charging command accepted")
	return nil
}
