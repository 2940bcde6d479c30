package conn

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/facilitydesk/chatsync/internal/bus"
	"github.com/facilitydesk/chatsync/internal/clock"
	"github.com/facilitydesk/chatsync/internal/status"
	"github.com/facilitydesk/chatsync/internal/wire"
)

// Config tunes the connection lifecycle.
type Config struct {
	URL   string
	Token string

	MaxAttempts       int
	BaseDelay         time.Duration
	HeartbeatInterval time.Duration
	DialTimeout       time.Duration
	WriteTimeout      time.Duration

	// Location interprets naive timestamps in inbound frames.
	Location *time.Location
}

// DefaultConfig returns the stock reconnect and heartbeat settings.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:       5,
		BaseDelay:         3 * time.Second,
		HeartbeatInterval: 30 * time.Second,
		DialTimeout:       10 * time.Second,
		WriteTimeout:      5 * time.Second,
		Location:          time.UTC,
	}
}

// Reconnecting is the payload of bus.ConnReconnecting.
type Reconnecting struct {
	Attempt int           `json:"attempt"`
	Delay   time.Duration `json:"delay_ns"`
}

// Manager owns the single persistent socket to the message server. It
// publishes state changes and parsed inbound frames on the bus and never
// touches the message store.
//
// Every dial gets a new epoch. Callbacks (read errors, heartbeats, backoff
// timers) carry the epoch they were started under and are ignored once it
// is superseded, so a torn-down socket can never schedule a retry.
type Manager struct {
	cfg     Config
	dial    DialFunc
	clk     clock.Clock
	machine *status.Machine
	bus     *bus.Bus
	logger  *zap.Logger

	mu        sync.Mutex
	epoch     uint64
	attempts  int
	conn      Conn
	cancel    context.CancelFunc
	retry     clock.Timer
	heartbeat clock.Timer
}

// New creates a Manager in the disconnected state.
func New(cfg Config, dial DialFunc, clk clock.Clock, b *bus.Bus, logger *zap.Logger) *Manager {
	def := DefaultConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = def.BaseDelay
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = def.HeartbeatInterval
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = def.DialTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.Location == nil {
		cfg.Location = def.Location
	}
	if dial == nil {
		dial = WebsocketDialer(cfg.Token)
	}
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		cfg:     cfg,
		dial:    dial,
		clk:     clk,
		machine: status.NewMachine(b),
		bus:     b,
		logger:  logger,
	}
}

// State returns the current connection state and reconnect attempt count.
func (m *Manager) State() status.Snapshot {
	return m.machine.Snapshot()
}

// Connect opens the socket. It is a no-op while connecting or connected. From
// failed it resets to disconnected first; every manual connect starts with a
// fresh attempt counter.
func (m *Manager) Connect() {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.machine.Current() {
	case status.Connecting, status.Connected:
		return
	case status.Failed:
		m.transitionLocked(status.Disconnected)
	}
	m.setAttemptsLocked(0)
	m.transitionLocked(status.Connecting)
	m.startLocked()
}

// Reconnect is the manual retry entry point: it skips any pending backoff and
// dials immediately with a fresh attempt counter. No-op when connected or a
// dial is already in flight.
func (m *Manager) Reconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur := m.machine.Current()
	if cur == status.Connected || (cur == status.Connecting && m.retry == nil) {
		return
	}
	m.stopRetryLocked()
	if cur == status.Failed {
		m.transitionLocked(status.Disconnected)
	}
	m.setAttemptsLocked(0)
	m.transitionLocked(status.Connecting)
	m.startLocked()
}

// Disconnect closes the socket cleanly and cancels the heartbeat and any
// pending reconnect. Nothing reconnects until Connect is called again.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.epoch++
	m.stopRetryLocked()
	m.teardownLocked(websocket.StatusNormalClosure, "client disconnect")
	m.setAttemptsLocked(0)
	if m.machine.Current() != status.Disconnected {
		m.transitionLocked(status.Disconnected)
	}
}

// Close releases the connection for process teardown.
func (m *Manager) Close() error {
	m.Disconnect()
	return nil
}

// Send transmits payload as a text frame. It does not wait for any
// application-level acknowledgement. A write failure tears the socket down
// as an unclean close and is returned as a *TransportError.
func (m *Manager) Send(ctx context.Context, payload []byte) error {
	m.mu.Lock()
	c, e := m.conn, m.epoch
	connected := m.machine.Current() == status.Connected
	m.mu.Unlock()

	if !connected || c == nil {
		return ErrNotConnected
	}

	wctx, cancel := context.WithTimeout(ctx, m.cfg.WriteTimeout)
	defer cancel()
	if err := c.Write(wctx, websocket.MessageText, payload); err != nil {
		terr := &TransportError{Op: "write", Err: err}
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			// The caller gave up; the socket itself may be fine.
			return terr
		}
		m.fail(e, terr)
		return terr
	}
	return nil
}

// SendFrame encodes frame as JSON and sends it.
func (m *Manager) SendFrame(ctx context.Context, frame any) error {
	b, err := wire.Encode(frame)
	if err != nil {
		return err
	}
	return m.Send(ctx, b)
}

// startLocked dials under a new epoch.
func (m *Manager) startLocked() {
	m.epoch++
	m.teardownLocked(websocket.StatusGoingAway, "superseded")
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	go m.open(ctx, m.epoch)
}

func (m *Manager) open(ctx context.Context, e uint64) {
	dctx, cancel := context.WithTimeout(ctx, m.cfg.DialTimeout)
	c, err := m.dial(dctx, m.dialURL())
	cancel()

	m.mu.Lock()
	if e != m.epoch {
		m.mu.Unlock()
		if c != nil {
			_ = c.Close(websocket.StatusNormalClosure, "superseded")
		}
		return
	}
	if err != nil {
		m.logger.Warn("dial failed", zap.Error(&TransportError{Op: "dial", Err: err}))
		m.transitionLocked(status.Error)
		m.closedLocked(false)
		m.mu.Unlock()
		return
	}

	m.conn = c
	m.setAttemptsLocked(0)
	m.transitionLocked(status.Connected)
	m.armHeartbeatLocked(e)
	m.mu.Unlock()

	m.readLoop(ctx, e, c)
}

func (m *Manager) readLoop(ctx context.Context, e uint64, c Conn) {
	for {
		_, data, err := c.Read(ctx)
		if err != nil {
			m.mu.Lock()
			if e == m.epoch {
				if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
					m.logger.Info("server closed connection")
					m.closedLocked(true)
				} else {
					m.logger.Warn("connection lost", zap.Error(&TransportError{Op: "read", Err: err}))
					m.transitionLocked(status.Error)
					m.closedLocked(false)
				}
			}
			m.mu.Unlock()
			return
		}
		m.handleFrame(data)
	}
}

func (m *Manager) handleFrame(data []byte) {
	in, err := wire.ParseInbound(data, m.clk.Now(), m.cfg.Location)
	if err != nil {
		m.logger.Warn("dropping inbound frame", zap.Error(err), zap.ByteString("payload", truncate(data, 200)))
		return
	}
	if in.Kind == wire.KindPong {
		return
	}
	if m.bus != nil {
		m.bus.Publish(bus.Event{Kind: bus.ConnInbound, Timestamp: in.ReceivedAt, Payload: in})
	}
}

func (m *Manager) armHeartbeatLocked(e uint64) {
	m.heartbeat = m.clk.AfterFunc(m.cfg.HeartbeatInterval, func() { m.beat(e) })
}

func (m *Manager) beat(e uint64) {
	m.mu.Lock()
	c := m.conn
	if e != m.epoch || c == nil {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.WriteTimeout)
	err := c.Write(ctx, websocket.MessageText, wire.Ping())
	cancel()
	if err != nil {
		m.fail(e, &TransportError{Op: "heartbeat", Err: err})
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if e == m.epoch {
		m.logger.Debug("heartbeat sent")
		m.armHeartbeatLocked(e)
	}
}

// fail treats err as an unclean close of the connection started under e.
func (m *Manager) fail(e uint64, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e != m.epoch {
		return
	}
	m.logger.Warn("connection failed", zap.Error(err))
	m.transitionLocked(status.Error)
	m.closedLocked(false)
}

// closedLocked handles the close of the current connection. A clean close
// settles in disconnected. An unclean close counts an attempt and either
// schedules a retry with exponential backoff or gives up in failed.
func (m *Manager) closedLocked(clean bool) {
	m.epoch++
	m.teardownLocked(websocket.StatusGoingAway, "connection lost")

	if clean {
		m.setAttemptsLocked(0)
		m.transitionLocked(status.Disconnected)
		return
	}

	m.setAttemptsLocked(m.attempts + 1)
	if m.attempts >= m.cfg.MaxAttempts {
		m.logger.Error("giving up reconnecting", zap.Int("attempts", m.attempts))
		m.transitionLocked(status.Failed)
		return
	}

	delay := m.cfg.BaseDelay << (m.attempts - 1)
	m.transitionLocked(status.Connecting)
	next := m.epoch
	m.retry = m.clk.AfterFunc(delay, func() { m.retryOpen(next) })
	m.logger.Info("reconnect scheduled", zap.Int("attempt", m.attempts), zap.Duration("delay", delay))
	if m.bus != nil {
		m.bus.Publish(bus.Event{
			Kind:    bus.ConnReconnecting,
			Payload: Reconnecting{Attempt: m.attempts, Delay: delay},
		})
	}
}

func (m *Manager) retryOpen(e uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e != m.epoch || m.machine.Current() != status.Connecting {
		return
	}
	m.retry = nil
	m.startLocked()
}

// teardownLocked cancels the current connection's context and timers and
// closes the socket in the background.
func (m *Manager) teardownLocked(code websocket.StatusCode, reason string) {
	if m.heartbeat != nil {
		m.heartbeat.Stop()
		m.heartbeat = nil
	}
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	if c := m.conn; c != nil {
		m.conn = nil
		go func() { _ = c.Close(code, reason) }()
	}
}

func (m *Manager) stopRetryLocked() {
	if m.retry != nil {
		m.retry.Stop()
		m.retry = nil
	}
}

func (m *Manager) setAttemptsLocked(n int) {
	m.attempts = n
	m.machine.SetAttempts(n)
}

func (m *Manager) transitionLocked(to status.State) {
	from := m.machine.Current()
	if err := m.machine.Transition(to); err != nil {
		m.logger.Error("connection state", zap.Error(err))
		return
	}
	m.logger.Info("connection state",
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.Int("attempts", m.attempts),
	)
}

func (m *Manager) dialURL() string {
	if m.cfg.Token == "" {
		return m.cfg.URL
	}
	u, err := url.Parse(m.cfg.URL)
	if err != nil {
		return m.cfg.URL
	}
	q := u.Query()
	q.Set("token", m.cfg.Token)
	u.RawQuery = q.Encode()
	return u.String()
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
