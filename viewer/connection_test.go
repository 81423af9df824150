package viewer

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"showtime-booking/shared"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// stateRecorder collects connection state transitions.
type stateRecorder struct {
	mu      sync.Mutex
	states  []ConnState
	lastErr error
}

func (r *stateRecorder) record(state ConnState, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, state)
	if err != nil {
		r.lastErr = err
	}
}

func (r *stateRecorder) snapshot() []ConnState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ConnState(nil), r.states...)
}

func (r *stateRecorder) sawState(state ConnState) bool {
	for _, s := range r.snapshot() {
		if s == state {
			return true
		}
	}
	return false
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestConnManagerConnectAndDisconnect(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	recorder := &stateRecorder{}
	cm := NewConnManager(ConnConfig{URL: wsURL(server)}, nil, recorder.record)

	require.NoError(t, cm.Connect(context.Background()))
	assert.Equal(t, StateConnected, cm.State())

	cm.Disconnect()
	assert.Equal(t, StateDisconnected, cm.State())

	states := recorder.snapshot()
	assert.Equal(t, []ConnState{StateConnecting, StateConnected, StateDisconnected}, states)
}

func TestConnManagerDeliversEnvelopesAndDropsMalformed(t *testing.T) {
	ready := make(chan *websocket.Conn, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ready <- conn
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	received := make(chan shared.Envelope, 4)
	cm := NewConnManager(ConnConfig{URL: wsURL(server)}, func(env shared.Envelope) {
		received <- env
	}, nil)
	require.NoError(t, cm.Connect(context.Background()))
	defer cm.Disconnect()

	serverConn := <-ready
	require.NoError(t, serverConn.WriteMessage(websocket.TextMessage, []byte("this is not json")))
	require.NoError(t, serverConn.WriteMessage(websocket.TextMessage, []byte(`{"data":{}}`)))
	require.NoError(t, serverConn.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"seat_unlocked","data":{"session_id":"show-1","seat_ids":["A1"]}}`)))

	select {
	case env := <-received:
		assert.Equal(t, shared.MessageTypeSeatUnlocked, env.Type)
	case <-time.After(time.Second):
		t.Fatal("valid envelope never delivered")
	}

	// The malformed frames were dropped, not delivered.
	select {
	case env := <-received:
		t.Fatalf("unexpected envelope delivered: %+v", env)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestConnManagerSendWhileDisconnectedIsSilent(t *testing.T) {
	cm := NewConnManager(ConnConfig{URL: "ws://127.0.0.1:1/ws"}, nil, nil)

	env, err := shared.NewEnvelope(shared.MessageTypeSeatSelected, shared.SelectionPayload{
		SessionID: "show-1",
		SeatIDs:   []string{"A1"},
	})
	require.NoError(t, err)

	assert.NotPanics(t, func() { cm.Send(env) })
}

func TestConnManagerReconnectsAfterDrop(t *testing.T) {
	var mu sync.Mutex
	accepts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		mu.Lock()
		accepts++
		first := accepts == 1
		mu.Unlock()
		if first {
			// Drop the first connection immediately to force a reconnect.
			conn.Close()
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	recorder := &stateRecorder{}
	cm := NewConnManager(ConnConfig{
		URL:                  wsURL(server),
		MaxReconnectAttempts: 3,
		ReconnectDelay:       20 * time.Millisecond,
	}, nil, recorder.record)

	require.NoError(t, cm.Connect(context.Background()))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return accepts >= 2 && cm.State() == StateConnected
	}, 2*time.Second, 10*time.Millisecond)

	assert.True(t, recorder.sawState(StateError), "drop should surface an error state")
	assert.True(t, recorder.sawState(StateConnecting))
	cm.Disconnect()
}

func TestConnManagerReconnectExhausted(t *testing.T) {
	recorder := &stateRecorder{}
	cm := NewConnManager(ConnConfig{
		URL:                  "ws://127.0.0.1:1/ws",
		MaxReconnectAttempts: 2,
		ReconnectDelay:       10 * time.Millisecond,
	}, nil, recorder.record)

	err := cm.Connect(context.Background())
	require.ErrorIs(t, err, ErrNetworkFailure)

	require.Eventually(t, func() bool {
		recorder.mu.Lock()
		defer recorder.mu.Unlock()
		return errors.Is(recorder.lastErr, ErrReconnectExhausted)
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, StateDisconnected, cm.State())
}

func TestConnManagerDisconnectSuppressesReconnect(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	recorder := &stateRecorder{}
	cm := NewConnManager(ConnConfig{
		URL:            wsURL(server),
		ReconnectDelay: 10 * time.Millisecond,
	}, nil, recorder.record)

	require.NoError(t, cm.Connect(context.Background()))
	cm.Disconnect()

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, StateDisconnected, cm.State())
	assert.False(t, recorder.sawState(StateError), "deliberate disconnect must not look like a failure")
}

// A caller retrying Connect between reconnect attempts must defer to the
// running reconnect loop; only one connection may ever be live.
func TestConnectDuringReconnectWindowKeepsSingleConnection(t *testing.T) {
	var mu sync.Mutex
	accepts, open, maxOpen := 0, 0, 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		mu.Lock()
		accepts++
		first := accepts == 1
		open++
		if open > maxOpen {
			maxOpen = open
		}
		mu.Unlock()
		defer func() {
			mu.Lock()
			open--
			mu.Unlock()
		}()
		if first {
			// Drop the first connection to put the manager into its
			// reconnect window.
			conn.Close()
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	recorder := &stateRecorder{}
	cm := NewConnManager(ConnConfig{
		URL:                  wsURL(server),
		MaxReconnectAttempts: 3,
		ReconnectDelay:       50 * time.Millisecond,
	}, nil, recorder.record)

	require.NoError(t, cm.Connect(context.Background()))

	// Wait for the drop to surface, then retry Connect inside the error
	// window between attempts. The retry must not dial.
	require.Eventually(t, func() bool {
		return recorder.sawState(StateError)
	}, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, cm.Connect(context.Background()))

	require.Eventually(t, func() bool {
		return cm.State() == StateConnected
	}, 2*time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	cm.Disconnect()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, accepts, "only the reconnect loop should dial again")
	assert.LessOrEqual(t, maxOpen, 1, "a retried connect must never open a second connection")
}

// Oversized inbound frames fail the read instead of being delivered.
func TestConnManagerOversizedFrameFailsRead(t *testing.T) {
	ready := make(chan *websocket.Conn, 2)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ready <- conn
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	received := make(chan shared.Envelope, 4)
	recorder := &stateRecorder{}
	cm := NewConnManager(ConnConfig{
		URL:                  wsURL(server),
		MaxReconnectAttempts: 1,
		ReconnectDelay:       10 * time.Millisecond,
	}, func(env shared.Envelope) {
		received <- env
	}, recorder.record)
	require.NoError(t, cm.Connect(context.Background()))
	defer cm.Disconnect()

	serverConn := <-ready
	huge := make([]byte, maxInboundFrameSize+1024)
	require.NoError(t, serverConn.WriteMessage(websocket.TextMessage, huge))

	require.Eventually(t, func() bool {
		return recorder.sawState(StateError)
	}, 2*time.Second, 10*time.Millisecond)

	select {
	case env := <-received:
		t.Fatalf("oversized frame delivered as envelope: %+v", env)
	default:
	}
}

// Scenario: the connection drops mid-session and the selection keeps its
// seat map while the channel goes disconnected -> connecting -> connected.
func TestSeatMapSurvivesConnectionDrop(t *testing.T) {
	ready := make(chan *websocket.Conn, 2)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ready <- conn
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	store := &fakeStore{avail: testAvailability()}
	recorder := &stateRecorder{}
	coord := NewCoordinator(ConnConfig{
		URL:                  wsURL(server),
		MaxReconnectAttempts: 3,
		ReconnectDelay:       20 * time.Millisecond,
	}, SelectionConfig{SessionID: "show-1", HolderID: "viewer-1"}, store, recorder.record)

	require.NoError(t, coord.Connect(context.Background()))
	require.NoError(t, coord.RefreshSeatMap(context.Background()))
	require.NotNil(t, coord.SeatMap())

	// Kill the server side of the connection.
	serverConn := <-ready
	serverConn.Close()

	require.Eventually(t, func() bool {
		return coord.ConnectionState() == StateConnected && recorder.sawState(StateError)
	}, 2*time.Second, 10*time.Millisecond)

	assert.True(t, recorder.sawState(StateConnecting))
	assert.NotNil(t, coord.SeatMap(), "seat map must survive the drop")
	coord.Close()
}
