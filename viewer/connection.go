package viewer

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"showtime-booking/shared"

	"github.com/gorilla/websocket"
)

// ConnState is the lifecycle state of the real-time channel.
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	StateError
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateError:
		return "error"
	}
	return "unknown"
}

// ConnConfig configures the connection manager.
type ConnConfig struct {
	// URL is the session-scoped websocket endpoint,
	// e.g. ws://host:3000/ws?session=show-42.
	URL string

	// MaxReconnectAttempts bounds the reconnect policy. Zero means the
	// default of 5.
	MaxReconnectAttempts int

	// ReconnectDelay is the fixed delay between attempts. Zero means the
	// default of 2s.
	ReconnectDelay time.Duration
}

const (
	defaultMaxReconnectAttempts = 5
	defaultReconnectDelay       = 2 * time.Second

	// maxInboundFrameSize caps inbound frames; anything larger fails the
	// read and falls into the reconnect path.
	maxInboundFrameSize = 64 * 1024
)

// ConnManager owns one real-time channel to the edge server. It parses
// inbound frames into envelopes and hands them to the message callback;
// malformed frames are dropped and logged. No seat-domain logic lives here.
type ConnManager struct {
	cfg           ConnConfig
	onMessage     func(shared.Envelope)
	onStateChange func(ConnState, error)

	mu           sync.Mutex
	conn         *websocket.Conn
	state        ConnState
	closing      bool // Disconnect was called; suppresses reconnects
	reconnecting bool

	// writeMu serializes frame writes; the websocket allows one writer.
	writeMu sync.Mutex
}

// NewConnManager creates a connection manager. onMessage receives every
// well-formed inbound envelope; onStateChange observes lifecycle transitions
// (the error argument is non-nil only for error and reconnect-exhausted
// transitions). Either callback may be nil.
func NewConnManager(cfg ConnConfig, onMessage func(shared.Envelope), onStateChange func(ConnState, error)) *ConnManager {
	if cfg.MaxReconnectAttempts <= 0 {
		cfg.MaxReconnectAttempts = defaultMaxReconnectAttempts
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = defaultReconnectDelay
	}
	return &ConnManager{
		cfg:           cfg,
		onMessage:     onMessage,
		onStateChange: onStateChange,
		state:         StateDisconnected,
	}
}

// Connect opens the channel. A dial failure moves the state to error and
// starts the bounded reconnect policy before returning the failure. While
// the reconnect loop is live Connect is a no-op, so at most one dial path
// is ever active; a caller retrying during the error window between
// attempts defers to the loop instead of racing it.
func (cm *ConnManager) Connect(ctx context.Context) error {
	cm.mu.Lock()
	if cm.state == StateConnected || cm.state == StateConnecting || cm.reconnecting {
		cm.mu.Unlock()
		return nil
	}
	cm.closing = false
	cm.mu.Unlock()

	cm.setState(StateConnecting, nil)

	if err := cm.dial(ctx); err != nil {
		cm.setState(StateError, err)
		cm.startReconnect()
		return fmt.Errorf("%w: %v", ErrNetworkFailure, err)
	}

	cm.setState(StateConnected, nil)
	return nil
}

// Send transmits an envelope while connected. When not connected it logs a
// warning and returns; the caller has already applied an optimistic update
// it can roll back itself, so this never fails loudly.
func (cm *ConnManager) Send(env shared.Envelope) {
	cm.mu.Lock()
	conn := cm.conn
	connected := cm.state == StateConnected
	cm.mu.Unlock()

	if !connected || conn == nil {
		log.Printf("[WARN] Dropping %s message: not connected", env.Type)
		return
	}

	cm.writeMu.Lock()
	defer cm.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(shared.WebSocketWriteTimeout))
	if err := conn.WriteJSON(env); err != nil {
		log.Printf("[WARN] Failed to send %s message: %v", env.Type, err)
	}
}

// Disconnect tears the channel down deterministically and suppresses the
// reconnect policy.
func (cm *ConnManager) Disconnect() {
	cm.mu.Lock()
	cm.closing = true
	conn := cm.conn
	cm.conn = nil
	cm.mu.Unlock()

	if conn != nil {
		cm.writeMu.Lock()
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		cm.writeMu.Unlock()
		conn.Close()
	}

	cm.setState(StateDisconnected, nil)
}

// State returns the current connection state.
func (cm *ConnManager) State() ConnState {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return cm.state
}

func (cm *ConnManager) dial(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, cm.cfg.URL, nil)
	if err != nil {
		return err
	}

	cm.mu.Lock()
	cm.conn = conn
	cm.mu.Unlock()

	go cm.readPump(conn)
	go cm.pingLoop(conn)
	return nil
}

// readPump reads frames until the connection fails or is closed. Frames
// that do not parse as envelopes are dropped; they must never reach the
// coordination layer.
func (cm *ConnManager) readPump(conn *websocket.Conn) {
	defer conn.Close()

	conn.SetReadLimit(maxInboundFrameSize)
	conn.SetReadDeadline(time.Now().Add(shared.WebSocketPongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(shared.WebSocketPongWait))
		return nil
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			cm.handleReadFailure(conn, err)
			return
		}

		var env shared.Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			log.Printf("[WARN] Dropping malformed message: %v", err)
			continue
		}
		if env.Type == "" {
			log.Printf("[WARN] Dropping message without type")
			continue
		}

		if cm.onMessage != nil {
			cm.onMessage(env)
		}
	}
}

func (cm *ConnManager) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(shared.WebSocketPingPeriod)
	defer ticker.Stop()

	for range ticker.C {
		cm.mu.Lock()
		current := cm.conn
		cm.mu.Unlock()
		if current != conn {
			return
		}

		cm.writeMu.Lock()
		conn.SetWriteDeadline(time.Now().Add(shared.WebSocketWriteTimeout))
		err := conn.WriteMessage(websocket.PingMessage, nil)
		cm.writeMu.Unlock()
		if err != nil {
			return
		}
	}
}

func (cm *ConnManager) handleReadFailure(conn *websocket.Conn, err error) {
	cm.mu.Lock()
	if cm.closing || cm.conn != conn {
		cm.mu.Unlock()
		return
	}
	cm.conn = nil
	cm.mu.Unlock()

	if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
		log.Printf("[WARN] Connection lost: %v", err)
	}

	cm.setState(StateError, err)
	cm.startReconnect()
}

// startReconnect runs the bounded reconnect policy: a fixed number of
// attempts with a fixed delay, then a terminal disconnected state. The
// caller must surface exhaustion to the user rather than retry forever.
func (cm *ConnManager) startReconnect() {
	cm.mu.Lock()
	if cm.closing || cm.reconnecting {
		cm.mu.Unlock()
		return
	}
	cm.reconnecting = true
	cm.mu.Unlock()

	go func() {
		for attempt := 1; attempt <= cm.cfg.MaxReconnectAttempts; attempt++ {
			time.Sleep(cm.cfg.ReconnectDelay)

			cm.mu.Lock()
			if cm.closing {
				cm.reconnecting = false
				cm.mu.Unlock()
				return
			}
			cm.mu.Unlock()

			cm.setState(StateConnecting, nil)
			log.Printf("[INFO] Reconnect attempt %d/%d", attempt, cm.cfg.MaxReconnectAttempts)

			if err := cm.dial(context.Background()); err != nil {
				log.Printf("[WARN] Reconnect attempt %d failed: %v", attempt, err)
				cm.setState(StateError, err)
				continue
			}

			// Clear the flag before publishing connected so an immediate
			// second drop can start a fresh reconnect round.
			cm.mu.Lock()
			cm.reconnecting = false
			cm.mu.Unlock()
			cm.setState(StateConnected, nil)
			return
		}

		cm.mu.Lock()
		cm.reconnecting = false
		cm.mu.Unlock()
		log.Printf("[ERROR] Giving up after %d reconnect attempts", cm.cfg.MaxReconnectAttempts)
		cm.setState(StateDisconnected, ErrReconnectExhausted)
	}()
}

func (cm *ConnManager) setState(state ConnState, err error) {
	cm.mu.Lock()
	if cm.state == state && err == nil {
		cm.mu.Unlock()
		return
	}
	cm.state = state
	cb := cm.onStateChange
	cm.mu.Unlock()

	if cb != nil {
		cb(state, err)
	}
}
