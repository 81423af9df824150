package main

import (
	"encoding/json"
	"log"
	"time"

	"showtime-booking/shared"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 64 * 1024
)

// Client is a middleman between one viewer's websocket connection and the hub.
type Client struct {
	hub *Hub

	// The websocket connection
	conn *websocket.Conn

	// Buffered channel of outbound messages
	send chan []byte

	// Client ID
	id string

	// Session the viewer is watching
	sessionID string

	// Holder ID the viewer locks seats under
	holderID string

	connectedAt time.Time
}

// readPump pumps messages from the websocket connection to the hub.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
		log.Printf("Client %s disconnected after %v", c.id, time.Since(c.connectedAt))
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error for client %s: %v", c.id, err)
			}
			break
		}

		var env shared.Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			log.Printf("Error parsing message from client %s: %v", c.id, err)
			c.sendError("invalid message format")
			continue
		}

		c.handleEnvelope(env)
	}
}

// writePump pumps messages from the hub to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleEnvelope processes an inbound viewer message. Selection messages are
// informational; the lock/unlock already happened against the availability
// service before the viewer sent them.
func (c *Client) handleEnvelope(env shared.Envelope) {
	switch env.Type {
	case shared.MessageTypeSeatSelected, shared.MessageTypeSeatDeselected, shared.MessageTypeSelectionCleared:
		var p shared.SelectionPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			log.Printf("Error parsing %s payload from client %s: %v", env.Type, c.id, err)
			return
		}
		log.Printf("[INFO] Client %s (session %s): %s %v", c.id, c.sessionID, env.Type, p.SeatIDs)
	default:
		c.sendError("unknown message type: " + env.Type)
	}
}

// sendSnapshot pushes the current availability snapshot to this client so a
// newly connected or reconnected viewer starts from server truth.
func (c *Client) sendSnapshot() {
	avail, err := availabilityClient.GetAvailability(c.sessionID)
	if err != nil {
		log.Printf("[ERROR] Failed to get snapshot for client %s: %v", c.id, err)
		return
	}

	env, err := shared.NewEnvelope(shared.MessageTypeAvailabilityUpdate, shared.AvailabilityUpdatePayload{
		SessionID:   c.sessionID,
		BookedSeats: avail.BookedSeats,
		LockedSeats: avail.LockedSeats,
	})
	if err != nil {
		log.Printf("[ERROR] Failed to build snapshot envelope: %v", err)
		return
	}

	data, err := json.Marshal(env)
	if err != nil {
		log.Printf("[ERROR] Failed to marshal snapshot envelope: %v", err)
		return
	}

	select {
	case c.send <- data:
		log.Printf("[SNAPSHOT] Sent availability snapshot to client %s (session %s)", c.id, c.sessionID)
	default:
		log.Printf("Failed to send snapshot to client %s: buffer full", c.id)
	}
}

func (c *Client) sendError(errorMsg string) {
	env, err := shared.NewEnvelope(shared.MessageTypeError, shared.ErrorResponse{Error: errorMsg})
	if err != nil {
		return
	}
	data, err := json.Marshal(env)
	if err != nil {
		return
	}

	select {
	case c.send <- data:
	default:
		log.Printf("Failed to send error to client %s: buffer full", c.id)
	}
}
