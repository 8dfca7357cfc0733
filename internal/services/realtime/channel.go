package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"

	"github.com/spabas/libreo-bridge/internal/common"
	"github.com/spabas/libreo-bridge/internal/httpclient"
	"github.com/spabas/libreo-bridge/internal/interfaces"
	"github.com/spabas/libreo-bridge/internal/models"
)

const (
	subscribeTarget = "SubscribeMetricsByOrgPath"
	metricsTarget   = "receiveMetrics"
)

// State is the lifecycle position of one hub channel
type State int

const (
	StateIdle State = iota
	StateNegotiating
	StateConnected
	StateSubscribed
	StateClosed
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateNegotiating:
		return "negotiating"
	case StateConnected:
		return "connected"
	case StateSubscribed:
		return "subscribed"
	case StateClosed:
		return "closed"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// MetricApplier consumes the station metrics pushed over the channel
type MetricApplier interface {
	ApplyMetric(ctx context.Context, orgNodePath string, metric models.Metric) error
}

// Channel is one hub connection for one organization. It negotiates a
// connection token, dials the socket on the shared cookie jar, performs the
// protocol handshake and subscribes to the organization's metrics. It never
// reconnects on its own; the periodic org re-sync replaces it wholesale.
type Channel struct {
	orgPath  string // provider form, used as the subscribe argument
	nodePath string // store form, used as the metric path prefix

	config      *common.Config
	client      *httpclient.Client
	session     interfaces.SessionManager
	applier     MetricApplier
	logger      arbor.ILogger
	invocations *atomic.Int64

	// ctx spans the channel lifetime; canceled on close so that no metric
	// write can land in the store after shutdown begins
	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	state State
	conn  *websocket.Conn
	done  chan struct{}
}

// NewChannel creates an idle channel; Open drives it to Subscribed
func NewChannel(orgPath, nodePath string, config *common.Config, client *httpclient.Client, session interfaces.SessionManager, applier MetricApplier, invocations *atomic.Int64, logger arbor.ILogger) *Channel {
	ctx, cancel := context.WithCancel(context.Background())
	return &Channel{
		orgPath:     orgPath,
		nodePath:    nodePath,
		config:      config,
		client:      client,
		session:     session,
		applier:     applier,
		invocations: invocations,
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
		state:       StateIdle,
		done:        make(chan struct{}),
	}
}

// State returns the channel's current lifecycle state
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Done is closed when the read loop terminates
func (c *Channel) Done() <-chan struct{} {
	return c.done
}

// Open negotiates the connection token and dials the hub socket. On a
// negotiate failure the channel stays Idle; on a dial failure it becomes
// Errored. The read loop runs until the socket closes.
func (c *Channel) Open(ctx context.Context) error {
	c.setState(StateNegotiating)

	token, err := c.negotiate(ctx)
	if err != nil {
		c.setState(StateIdle)
		c.logger.Warn().Err(err).Str("org", c.orgPath).Msg("Hub negotiate failed")
		return err
	}

	socketURL := websocketURL(c.config.Portal.PortalURL) + "/api/customer/hubs/metrics?id=" + token

	dialer := websocket.Dialer{
		Jar:               c.client.Jar(),
		EnableCompression: true,
	}
	header := http.Header{}
	header.Set("Origin", c.config.Portal.PortalURL)

	conn, _, err := dialer.DialContext(ctx, socketURL, header)
	if err != nil {
		c.setState(StateErrored)
		c.logger.Error().Err(err).Str("org", c.orgPath).Msg("Hub dial failed")
		return fmt.Errorf("failed to dial hub: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.state = StateConnected
	c.mu.Unlock()

	c.logger.Info().Str("org", c.orgPath).Msg("Hub connection opened")

	if err := c.sendFrame(models.HubHandshake{Protocol: "json", Version: 1}); err != nil {
		c.closeWith(StateErrored)
		return fmt.Errorf("failed to send hub handshake: %w", err)
	}

	go c.readLoop(conn)
	return nil
}

// Close terminates the channel. Safe to call in any state, repeatedly.
func (c *Channel) Close() {
	c.closeWith(StateClosed)
}

// negotiate allocates a hub connection token, retry-wrapped like every
// other authenticated call
func (c *Channel) negotiate(ctx context.Context) (string, error) {
	var (
		status    int
		negotiate models.NegotiateResponse
	)
	err := c.session.CallAuthenticated(ctx, "hub-negotiate", func(ctx context.Context) (int, error) {
		resp, err := c.client.PostJSON(ctx,
			c.config.Portal.PortalURL+"/api/customer/hubs/metrics/negotiate?negotiateVersion=1",
			map[string]interface{}{"negotiateVersion": 1},
			&httpclient.RequestOptions{
				Headers: map[string]string{
					"X-Xsrf-Token": c.client.CookieValue(c.config.PortalHost(), "XSRF-TOKEN"),
					"Referer":      c.config.Portal.PortalURL + "/charging-stations",
				},
			})
		if err != nil {
			return 0, err
		}
		status = resp.StatusCode
		if resp.StatusCode == http.StatusOK {
			if err := resp.Decode(&negotiate); err != nil {
				return resp.StatusCode, err
			}
		}
		return resp.StatusCode, nil
	})
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("negotiate: unexpected status %d", status)
	}
	if negotiate.ConnectionToken == "" {
		return "", fmt.Errorf("negotiate: no connection token in response")
	}
	return negotiate.ConnectionToken, nil
}

func (c *Channel) readLoop(conn *websocket.Conn) {
	defer close(c.done)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			state := c.state
			c.mu.Unlock()
			if state == StateClosed {
				c.logger.Info().Str("org", c.orgPath).Msg("Hub connection closed")
			} else {
				c.logger.Warn().Err(err).Str("org", c.orgPath).Msg("Hub read failed")
				c.closeWith(StateErrored)
			}
			return
		}
		c.handleMessage(string(data))
	}
}

// handleMessage processes one raw socket message, frame by frame. A single
// message may carry the handshake ack concatenated with further frames, so
// the ack is recognized per frame: while the channel is still Connected an
// empty-object frame triggers the subscribe invocation, and the remaining
// frames of the same message are demultiplexed as usual. Malformed frames
// are logged and skipped.
func (c *Channel) handleMessage(message string) {
	for _, frame := range SplitFrames(message) {
		if isHandshakeAck(frame) && c.State() == StateConnected {
			if err := c.subscribe(); err != nil {
				c.logger.Error().Err(err).Str("org", c.orgPath).Msg("Hub subscribe failed")
				c.closeWith(StateErrored)
				return
			}
			c.setState(StateSubscribed)
			continue
		}

		var hubMessage models.HubMessage
		if err := json.Unmarshal([]byte(frame), &hubMessage); err != nil {
			c.logger.Warn().Err(err).Str("org", c.orgPath).Msg("Malformed hub frame skipped")
			continue
		}
		if hubMessage.Target != metricsTarget {
			c.logger.Debug().Str("target", hubMessage.Target).Msg("Ignoring hub frame")
			continue
		}

		for _, argument := range hubMessage.Arguments {
			if c.ctx.Err() != nil {
				return
			}
			var metric models.Metric
			if err := json.Unmarshal(argument, &metric); err != nil {
				c.logger.Warn().Err(err).Str("org", c.orgPath).Msg("Malformed metric skipped")
				continue
			}
			if err := c.applier.ApplyMetric(c.ctx, c.nodePath, metric); err != nil {
				c.logger.Warn().Err(err).Str("station", metric.ChargingStationID).Msg("Failed to apply metric")
			}
		}
	}
}

func (c *Channel) subscribe() error {
	invocation := models.HubInvocation{
		Arguments:    []string{c.orgPath},
		InvocationID: strconv.FormatInt(c.invocations.Add(1), 10),
		Target:       subscribeTarget,
		Type:         1,
	}
	c.logger.Debug().Str("invocation_id", invocation.InvocationID).Str("org", c.orgPath).Msg("Subscribing to metrics")
	return c.sendFrame(invocation)
}

func (c *Channel) sendFrame(payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal hub frame: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return fmt.Errorf("hub connection not open")
	}
	return c.conn.WriteMessage(websocket.TextMessage, append(data, []byte(models.RecordSeparator)...))
}

func (c *Channel) setState(state State) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
}

func (c *Channel) closeWith(state State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateClosed {
		return
	}
	c.state = state
	c.cancel()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

// websocketURL rewrites the portal base URL onto the ws scheme
func websocketURL(portalURL string) string {
	if strings.HasPrefix(portalURL, "https://") {
		return "wss://" + strings.TrimPrefix(portalURL, "https://")
	}
	return "ws://" + strings.TrimPrefix(portalURL, "http://")
}
