package main

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"showtime-booking/shared"
)

// HubStats tracks statistics for the hub
type HubStats struct {
	TotalClients      int       `json:"total_clients"`
	TotalEvents       int64     `json:"total_events"`
	StartedAt         time.Time `json:"started_at"`
	LastBroadcastTime time.Time `json:"last_broadcast_time"`
}

// Hub maintains the set of active clients grouped by session and fans seat
// events out to the viewers of that session.
type Hub struct {
	// Clients per session id
	sessions map[string]map[*Client]bool

	// Seat events from NATS
	events chan shared.SeatEvent

	// Register requests from the clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	stats HubStats

	mu sync.RWMutex
}

func newHub() *Hub {
	return &Hub{
		events:     make(chan shared.SeatEvent, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		sessions:   make(map[string]map[*Client]bool),
		stats: HubStats{
			StartedAt: time.Now(),
		},
	}
}

func (h *Hub) run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if h.sessions[client.sessionID] == nil {
				h.sessions[client.sessionID] = make(map[*Client]bool)
			}
			h.sessions[client.sessionID][client] = true
			h.stats.TotalClients++
			h.mu.Unlock()

			log.Printf("Client %s joined session %s", client.id, client.sessionID)

		case client := <-h.unregister:
			h.mu.Lock()
			if clients, ok := h.sessions[client.sessionID]; ok {
				if _, ok := clients[client]; ok {
					delete(clients, client)
					close(client.send)
					h.stats.TotalClients--
					if len(clients) == 0 {
						delete(h.sessions, client.sessionID)
					}
				}
			}
			h.mu.Unlock()

			log.Printf("Client %s left session %s", client.id, client.sessionID)

		case event := <-h.events:
			h.mu.Lock()
			h.stats.TotalEvents++
			h.stats.LastBroadcastTime = time.Now()
			h.mu.Unlock()

			h.broadcastSeatEvent(event)
		}
	}
}

// dispatchEvent queues a seat event for fanout, dropping it when the hub is
// backed up.
func (h *Hub) dispatchEvent(event shared.SeatEvent) {
	select {
	case h.events <- event:
	default:
		log.Printf("Warning: event channel full, dropping %s event", event.Type)
	}
}

// broadcastSeatEvent converts a seat event into the right envelope per
// recipient and delivers it to every viewer of the event's session. The
// seat_locked envelope carries a per-recipient mine flag so a viewer can
// tell its own locks from competitors'.
func (h *Hub) broadcastSeatEvent(event shared.SeatEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	clients := h.sessions[event.SessionID]
	if len(clients) == 0 {
		return
	}

	for client := range clients {
		// A failure for one recipient must not starve the rest of the
		// session.
		env, err := envelopeForEvent(event, client.holderID)
		if err != nil {
			log.Printf("Error building envelope for %s event: %v", event.Type, err)
			continue
		}

		data, err := json.Marshal(env)
		if err != nil {
			log.Printf("Error marshaling envelope: %v", err)
			continue
		}

		select {
		case client.send <- data:
		default:
			log.Printf("Client %s send buffer full, disconnecting", client.id)
			go func(c *Client) {
				h.unregister <- c
			}(client)
		}
	}
}

// envelopeForEvent maps a NATS seat event to the viewer-facing envelope.
func envelopeForEvent(event shared.SeatEvent, recipientHolderID string) (shared.Envelope, error) {
	switch event.Type {
	case "locked":
		return shared.NewEnvelope(shared.MessageTypeSeatLocked, shared.SeatLockedPayload{
			SessionID: event.SessionID,
			SeatIDs:   event.SeatIDs,
			Mine:      event.HolderID != "" && event.HolderID == recipientHolderID,
			ExpiresAt: event.ExpiresAt,
		})
	case "unlocked", "expired":
		return shared.NewEnvelope(shared.MessageTypeSeatUnlocked, shared.SeatsPayload{
			SessionID: event.SessionID,
			SeatIDs:   event.SeatIDs,
		})
	case "booked":
		return shared.NewEnvelope(shared.MessageTypeSeatBooked, shared.SeatsPayload{
			SessionID: event.SessionID,
			SeatIDs:   event.SeatIDs,
		})
	}
	return shared.Envelope{}, errUnknownEventType(event.Type)
}

type errUnknownEventType string

func (e errUnknownEventType) Error() string {
	return "unknown seat event type: " + string(e)
}

// GetStats returns current hub statistics
func (h *Hub) GetStats() HubStats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.stats
}

// GetClientCount returns the current number of connected clients
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	count := 0
	for _, clients := range h.sessions {
		count += len(clients)
	}
	return count
}
