package mirror

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
	"github.com/spabas/libreo-bridge/internal/interfaces"
	"github.com/spabas/libreo-bridge/internal/models"
	"github.com/spabas/libreo-bridge/internal/services/events"
	badgerstorage "github.com/spabas/libreo-bridge/internal/storage/badger"
)

func createTestLogger() arbor.ILogger {
	return arbor.NewLogger()
}

// passthroughSession satisfies the session contract without any retry
// behavior; the retry policy has its own tests.
type passthroughSession struct{}

func (passthroughSession) Login(ctx context.Context) bool { return true }
func (passthroughSession) LoggedIn() bool                 { return true }
func (passthroughSession) CallAuthenticated(ctx context.Context, operation string, fn interfaces.RequestFunc) error {
	_, err := fn(ctx)
	return err
}

func newTestStore(t *testing.T) interfaces.NodeStore {
	t.Helper()
	logger := createTestLogger()

	db, err := badgerstorage.NewBadgerDB(logger, &common.BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return badgerstorage.NewNodeStorage(db, events.NewService(logger), logger)
}

func newTestService(t *testing.T, portalURL string) (*Service, interfaces.NodeStore, interfaces.EventService) {
	t.Helper()
	logger := createTestLogger()

	config := common.NewDefaultConfig()
	config.Portal.Username = "user@example.com"
	config.Portal.Password = "secret"
	config.Portal.PortalURL = portalURL
	config.Portal.LoginAPIURL = portalURL + "/api/login"
	config.Portal.Issuer = portalURL

	client, err := httpclient.New(10 * time.Second)
	require.NoError(t, err)

	store := newTestStore(t)
	eventService := events.NewService(logger)

	return NewService(config, client, passthroughSession{}, store, eventService, logger), store, eventService
}

func requireValue(t *testing.T, store interfaces.NodeStore, path string, expected interface{}) {
	t.Helper()
	value, err := store.GetValue(context.Background(), path)
	require.NoError(t, err, "path %s", path)
	assert.Equal(t, expected, value.Value, "path %s", path)
	assert.True(t, value.Confirmed, "path %s", path)
}

func TestSyncOrgs_ActivatesOnlyLastOrg(t *testing.T) {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/identity/orgs", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]models.Organization{
			{Path: "first-org", Name: "First"},
			{Path: "second-org", Name: "Second"},
		})
	})
	mux.HandleFunc("/api/identity/orgs/second-org", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2.0", r.URL.Query().Get("api-version"))
		json.NewEncoder(w).Encode(models.OrgDetail{
			Path: "second-org",
			Name: "Second",
			Users: []models.OrgUser{
				{ID: "u-1", UserName: "alice", FirstName: "Alice", LastName: "Smith", RoleID: "admin"},
			},
		})
	})
	mux.HandleFunc("/org/second-org", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/api/assets/chargingstations", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1", r.URL.Query().Get("pageNumber"))
		assert.Equal(t, "100", r.URL.Query().Get("pageSize"))
		json.NewEncoder(w).Encode(models.StationPage{
			Data: []models.ChargingStation{
				{ID: "cst-1", Name: "Garage", SerialNumber: "SN-1", Model: "Wallbox"},
			},
		})
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	service, store, eventService := newTestService(t, server.URL)

	var mu sync.Mutex
	var activated []string
	eventService.Subscribe(interfaces.EventOrgActivated, func(ctx context.Context, event interfaces.Event) error {
		mu.Lock()
		defer mu.Unlock()
		activated = append(activated, event.Payload["org_path"].(string))
		return nil
	})

	require.NoError(t, service.SyncOrgs(context.Background()))

	ctx := context.Background()

	// Both orgs got a structural node.
	for _, path := range []string{"first-org", "second-org"} {
		exists, err := store.HasNode(ctx, path)
		require.NoError(t, err)
		assert.True(t, exists, "org node %s", path)
	}

	// Only the last org was expanded.
	requireValue(t, store, "users.u-1.given_name", "Alice")
	requireValue(t, store, "users.u-1.roleId", "admin")
	requireValue(t, store, "second-org.cst-1.serialNumber", "SN-1")

	exists, err := store.HasNode(ctx, "second-org.cst-1.current")
	require.NoError(t, err)
	assert.True(t, exists)

	orgPath, nodePath, ok := service.ActiveOrg()
	require.True(t, ok)
	assert.Equal(t, "second-org", orgPath)
	assert.Equal(t, "second-org", nodePath)

	// Activation event fires once, for the last org only.
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(activated) == 1 && activated[0] == "second-org"
	}, time.Second, 10*time.Millisecond)
}

func TestSyncSessions_PadsSessionIDs(t *testing.T) {
	duration := 3600.0
	mux := http.NewServeMux()
	mux.HandleFunc("/api/assets/chargingsessions", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(models.SessionPage{
			Data: []*models.ChargingSession{
				{
					ID:                "sess-guid",
					ChargingSessionID: 42,
					ChargingStatus:    "Completed",
					SessionDuration:   &duration,
					User:              &models.SessionUser{ID: "u-1", FirstName: "Alice", LastName: "Smith"},
				},
				nil,
			},
		})
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	service, store, _ := newTestService(t, server.URL)

	until := time.Now()
	require.NoError(t, service.SyncSessions(context.Background(), until.AddDate(0, -1, 0), until))

	requireValue(t, store, "chargingsessions.00042.id", "sess-guid")
	requireValue(t, store, "chargingsessions.00042.chargingStatus", "Completed")
	requireValue(t, store, "chargingsessions.00042.sessionDuration", 3600.0)
	requireValue(t, store, "chargingsessions.00042.user.firstName", "Alice")
}

func TestSessionWindow(t *testing.T) {
	service, store, _ := newTestService(t, "http://unused.invalid")
	ctx := context.Background()

	from, until := service.SessionWindow(ctx)
	assert.Equal(t, time.January, from.Month())
	assert.Equal(t, 1, from.Day())
	assert.Equal(t, until.Year(), from.Year())

	// Once session history exists only the trailing month is fetched.
	require.NoError(t, store.EnsureNode(ctx, "chargingsessions", interfaces.NodeMeta{
		Kind: interfaces.NodeKindChannel, Name: "charging sessions",
	}))

	from, until = service.SessionWindow(ctx)
	assert.WithinDuration(t, until.AddDate(0, -1, 0), from, time.Minute)
}

func TestSyncUserInfo_SerializesPermissions(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(models.UserInfo{
			Sub:         "sub-1",
			Email:       "user@example.com",
			GivenName:   "Alice",
			AccessToken: true,
			Permissions: []string{"read", "charge"},
		})
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	service, store, _ := newTestService(t, server.URL)
	require.NoError(t, service.SyncUserInfo(context.Background()))

	requireValue(t, store, "users.sub-1.given_name", "Alice")
	requireValue(t, store, "users.sub-1.access_token", true)
	requireValue(t, store, "users.sub-1.permissions", `["read","charge"]`)
}

func TestSetCurrent_RequiresExactly204(t *testing.T) {
	var gotStatus int
	mux := http.NewServeMux()
	mux.HandleFunc("/api/customer/chargingstations/cst-1", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		var body map[string]float64
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, 8.0, body["maxCurrent"])
		w.WriteHeader(gotStatus)
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	service, _, _ := newTestService(t, server.URL)

	gotStatus = http.StatusNoContent
	require.NoError(t, service.SetCurrent(context.Background(), "cst-1", 8))

	gotStatus = http.StatusOK
	assert.Error(t, service.SetCurrent(context.Background(), "cst-1", 8))

	gotStatus = http.StatusInternalServerError
	assert.Error(t, service.SetCurrent(context.Background(), "cst-1", 8))
}

func TestCharging_SendsVerbAndUser(t *testing.T) {
	var paths []string
	mux := http.NewServeMux()
	mux.HandleFunc("/api/customer/chargingstations/", func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if r.URL.Path == "/api/customer/chargingstations/cst-1/cmd/charge/true" {
			assert.Equal(t, "u-1", body["impersonatedUserId"])
		} else {
			assert.Nil(t, body["impersonatedUserId"])
		}
		w.WriteHeader(http.StatusNoContent)
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	service, _, _ := newTestService(t, server.URL)

	require.NoError(t, service.Charging(context.Background(), "cst-1", true, "u-1"))
	require.NoError(t, service.Charging(context.Background(), "cst-1", false, ""))

	require.Equal(t, []string{
		"/api/customer/chargingstations/cst-1/cmd/charge/true",
		"/api/customer/chargingstations/cst-1/cmd/charge/false",
	}, paths)
}

func TestApplyMetric_MirrorsSnapshot(t *testing.T) {
	service, store, _ := newTestService(t, "http://unused.invalid")
	ctx := context.Background()

	online := true
	maxCurrent := 16.0
	mode := "eco"
	energy := 1234.5

	metric := models.Metric{
		ChargingStationID: "cst-1",
		Online:            &online,
		MaxCurrent:        &maxCurrent,
		ChargingMode:      &mode,
		CurrentSessionState: &models.SessionState{
			StartTime:      "2026-08-01T10:00:00Z",
			Status:         1,
			ConsumedEnergy: &energy,
			TriggerUser:    &models.TriggerUser{FirstName: "Alice"},
			LastMetrics: &models.PhaseData{
				Current: []float64{6, 6, 6},
				Power:   []float64{1000, 1100, 900},
				Voltage: []float64{230, 231, 229},
			},
		},
	}

	require.NoError(t, service.ApplyMetric(ctx, "myorg", metric))

	requireValue(t, store, "myorg.cst-1.metrics.online", true)
	requireValue(t, store, "myorg.cst-1.metrics.maxCurrent", 16.0)
	requireValue(t, store, "myorg.cst-1.metrics.chargingMode", "eco")
	requireValue(t, store, "myorg.cst-1.metrics.currentSessionState.consumedEnergy", 1234.5)
	requireValue(t, store, "myorg.cst-1.metrics.currentSessionState.trigger_firstName", "Alice")
	requireValue(t, store, "myorg.cst-1.metrics.currentSessionState.current_p1", 6.0)
	requireValue(t, store, "myorg.cst-1.metrics.currentSessionState.power_sum", 3000.0)
	requireValue(t, store, "myorg.cst-1.metrics.currentSessionState.voltage_p3", 229.0)

	// last_updated carries an epoch-millis timestamp.
	value, err := store.GetValue(ctx, "myorg.cst-1.metrics.last_updated")
	require.NoError(t, err)
	require.NotNil(t, value.Value)
}

func TestApplyMetric_TerminalStatusClearsSessionState(t *testing.T) {
	service, store, _ := newTestService(t, "http://unused.invalid")
	ctx := context.Background()

	energy := 500.0
	running := models.Metric{
		ChargingStationID: "cst-1",
		CurrentSessionState: &models.SessionState{
			StartTime:      "2026-08-01T10:00:00Z",
			Status:         1,
			ConsumedEnergy: &energy,
			LastMetrics:    &models.PhaseData{Power: []float64{1000}},
		},
	}
	require.NoError(t, service.ApplyMetric(ctx, "myorg", running))
	requireValue(t, store, "myorg.cst-1.metrics.currentSessionState.consumedEnergy", 500.0)

	ended := models.Metric{
		ChargingStationID: "cst-1",
		CurrentSessionState: &models.SessionState{
			Status: models.SessionStatusCompleted,
		},
	}
	require.NoError(t, service.ApplyMetric(ctx, "myorg", ended))

	// Values are cleared, nodes survive.
	for _, path := range []string{
		"myorg.cst-1.metrics.currentSessionState.startTime",
		"myorg.cst-1.metrics.currentSessionState.consumedEnergy",
		"myorg.cst-1.metrics.currentSessionState.power_p1",
		"myorg.cst-1.metrics.currentSessionState.power_sum",
	} {
		value, err := store.GetValue(ctx, path)
		require.NoError(t, err, "path %s", path)
		assert.Nil(t, value.Value, "path %s", path)
	}
}

func TestOrgNodePath(t *testing.T) {
	assert.Equal(t, "parent.child", orgNodePath("parent/child"))
	assert.Equal(t, "flat", orgNodePath("flat"))
}

func ExampleService_ActiveOrg() {
	service := &Service{}
	_, _, ok := service.ActiveOrg()
	fmt.Println(ok)
	// Output: false
}
