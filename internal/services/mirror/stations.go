package mirror

import (
	"context"
	"fmt"
	"net/http"

	"github.com/spabas/libreo-bridge/internal/httpclient"
	"github.com/spabas/libreo-bridge/internal/interfaces"
	"github.com/spabas/libreo-bridge/internal/models"
)

// Bounds of the writable charging-current control, in ampere
var (
	currentMin  = 6.0
	currentMax  = 16.0
	currentStep = 2.0
)

// SyncStations fetches the first station page of the active organization
// (page size 100, no further pagination) and mirrors every station under the
// given org node, creating the writable control points alongside the
// descriptive fields. Control points are created but never populated here.
func (s *Service) SyncStations(ctx context.Context, orgNodePath string) error {
	var (
		status int
		page   models.StationPage
	)
	err := s.session.CallAuthenticated(ctx, "get-stations", func(ctx context.Context) (int, error) {
		resp, err := s.client.Get(ctx, s.config.Portal.PortalURL+"/api/assets/chargingstations", &httpclient.RequestOptions{
			Query: urlValues(
				"api-version", "1.0",
				"pageNumber", "1",
				"pageSize", "100",
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
		s.logger.Warn().Int("status", status).Msg("Station list request rejected")
		return fmt.Errorf("get stations: unexpected status %d", status)
	}

	for _, station := range page.Data {
		base := orgNodePath + "." + station.ID
		if err := s.store.EnsureNode(ctx, base, interfaces.NodeMeta{
			Kind: interfaces.NodeKindChannel,
			Name: station.Name,
		}); err != nil {
			s.logger.Warn().Err(err).Str("station", station.ID).Msg("Failed to create station node")
			continue
		}

		s.mirrorState(ctx, base+".serialNumber", "serial number", "string", "text", "", station.SerialNumber)
		s.mirrorState(ctx, base+".model", "model", "string", "text", "", station.Model)
		s.mirrorState(ctx, base+".macAddress", "mac address", "string", "text", "", station.MacAddress)
		s.mirrorState(ctx, base+".firmwareVersion", "firmware version", "string", "text", "", station.FirmwareVersion)
		s.mirrorState(ctx, base+".latitude", "latitude", "number", "text", "", station.Latitude)
		s.mirrorState(ctx, base+".longitude", "longitude", "number", "text", "", station.Longitude)
		s.mirrorState(ctx, base+".mainboardBootloaderVersion", "mainboard bootloader version", "string", "text", "", station.MainboardBootloaderVersion)
		s.mirrorState(ctx, base+".mainboardFirmwareVersion", "mainboard firmware version", "string", "text", "", station.MainboardFirmwareVersion)
		s.mirrorState(ctx, base+".mainboardHardwareRevision", "mainboard hardware revision", "string", "text", "", station.MainboardHardwareRevision)
		s.mirrorState(ctx, base+".latestOperationMode", "latest operation mode", "string", "indicator", "", station.LatestOperationMode)
		s.mirrorState(ctx, base+".publicKey", "public key", "string", "text", "", station.PublicKey)
		s.mirrorState(ctx, base+".connectivity", "connectivity", "string", "text", "", station.Connectivity)
		s.mirrorState(ctx, base+".creationDate", "creation date", "string", "text", "", station.CreationDate)
		s.mirrorState(ctx, base+".modificationDate", "modification date", "string", "text", "", station.ModificationDate)

		s.ensureControlPoints(ctx, base)
	}

	s.logger.Info().Int("count", len(page.Data)).Msg("Stations synced")
	return nil
}

// ensureControlPoints creates the writable control nodes of a station
func (s *Service) ensureControlPoints(ctx context.Context, base string) {
	controls := []struct {
		path string
		meta interfaces.NodeMeta
	}{
		{base + ".chargingStart", interfaces.NodeMeta{
			Kind: interfaces.NodeKindState, Name: "charging start",
			ValueType: "boolean", Role: "button", Readable: true, Writable: true,
		}},
		{base + ".chargingStop", interfaces.NodeMeta{
			Kind: interfaces.NodeKindState, Name: "charging stop",
			ValueType: "boolean", Role: "button", Readable: true, Writable: true,
		}},
		{base + ".chargingUserId", interfaces.NodeMeta{
			Kind: interfaces.NodeKindState, Name: "charging user id",
			ValueType: "string", Role: "text", Readable: true, Writable: true,
		}},
		{base + ".current", interfaces.NodeMeta{
			Kind: interfaces.NodeKindState, Name: "current in ampere",
			ValueType: "number", Role: "value", Unit: "A",
			Readable: true, Writable: true,
			Min: &currentMin, Max: &currentMax, Step: &currentStep,
		}},
	}

	for _, control := range controls {
		if err := s.store.EnsureNode(ctx, control.path, control.meta); err != nil {
			s.logger.Warn().Err(err).Str("path", control.path).Msg("Failed to create control node")
		}
	}
}
