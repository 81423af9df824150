package shared

import (
	"encoding/json"
	"time"
)

// Seat statuses. Status is always derived from set membership
// (booked/locked/selected/disabled), never stored independently.
const (
	SeatAvailable     = "available"
	SeatSelected      = "selected"
	SeatLockedByOther = "locked_by_other"
	SeatBooked        = "booked"
	SeatDisabled      = "disabled"
)

// Seat categories
const (
	CategoryRegular = "regular"
	CategoryVIP     = "vip"
)

// Seat represents a single seat in a session's seat map. PriceCents is the
// unit price in integer cents.
type Seat struct {
	ID         string `json:"id"`
	Row        int    `json:"row"`
	Number     int    `json:"number"`
	Category   string `json:"category"`
	PriceCents int64  `json:"price_cents"`
	Status     string `json:"status"`
}

// Message types for the real-time channel
const (
	// viewer -> server (informational, sent after the lock/unlock call succeeded)
	MessageTypeSeatSelected     = "seat_selected"
	MessageTypeSeatDeselected   = "seat_deselected"
	MessageTypeSelectionCleared = "selection_cleared"

	// server -> viewer
	MessageTypeAvailabilityUpdate = "seat_availability_update"
	MessageTypeSeatLocked         = "seat_locked"
	MessageTypeSeatUnlocked       = "seat_unlocked"
	MessageTypeSeatBooked         = "seat_booked"
	MessageTypeError              = "error"
)

// Envelope is the bidirectional message frame for the real-time channel.
// Data stays raw until the type is known.
type Envelope struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp string          `json:"timestamp,omitempty"`
}

// NewEnvelope marshals payload into a timestamped envelope.
func NewEnvelope(msgType string, payload interface{}) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		Type:      msgType,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}, nil
}

// SelectionPayload is the data of seat_selected / seat_deselected /
// selection_cleared messages.
type SelectionPayload struct {
	SessionID string   `json:"session_id"`
	SeatIDs   []string `json:"seat_ids"`
}

// AvailabilityUpdatePayload is the data of a seat_availability_update broadcast.
type AvailabilityUpdatePayload struct {
	SessionID   string   `json:"session_id"`
	BookedSeats []string `json:"booked_seats"`
	LockedSeats []string `json:"locked_seats"`
}

// SeatLockedPayload is the data of a seat_locked broadcast. Mine is set
// per-recipient by the edge server so a viewer can tell its own locks apart.
type SeatLockedPayload struct {
	SessionID string   `json:"session_id"`
	SeatIDs   []string `json:"seat_ids"`
	Mine      bool     `json:"mine"`
	ExpiresAt int64    `json:"expires_at,omitempty"`
}

// SeatsPayload is the data of seat_unlocked and seat_booked broadcasts.
type SeatsPayload struct {
	SessionID string   `json:"session_id"`
	SeatIDs   []string `json:"seat_ids"`
}

// SeatEvent is the event published to NATS by the availability service.
// Type is one of locked, unlocked, booked, expired.
type SeatEvent struct {
	Type      string    `json:"type"`
	SessionID string    `json:"session_id"`
	SeatIDs   []string  `json:"seat_ids"`
	HolderID  string    `json:"holder_id,omitempty"`
	ExpiresAt int64     `json:"expires_at,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// SessionConfig is the per-session geometry, pricing and fee policy, stored
// as JSON in Redis and returned with availability snapshots.
type SessionConfig struct {
	SessionID      string           `json:"session_id"`
	Rows           int              `json:"rows"`
	SeatsPerRow    int              `json:"seats_per_row"`
	VIPRows        []int            `json:"vip_rows"`
	DisabledSeats  []string         `json:"disabled_seats"`
	Pricing        map[string]int64 `json:"pricing"` // category -> price cents
	FeeBasisPoints int64            `json:"fee_basis_points"`
	TaxBasisPoints int64            `json:"tax_basis_points"`
}

// Availability is the response of the availability store's snapshot call.
type Availability struct {
	Config      SessionConfig `json:"config"`
	BookedSeats []string      `json:"booked_seats"`
	LockedSeats []string      `json:"locked_seats"`
}

// LockRequest asks the availability store for time-bounded locks on seats.
// The requested TTL is advisory; the returned expiry is authoritative.
type LockRequest struct {
	HolderID   string   `json:"holder_id"`
	SeatIDs    []string `json:"seat_ids"`
	TTLSeconds int64    `json:"ttl_seconds"`
}

// LockResponse reports the outcome of a lock request.
type LockResponse struct {
	Success   bool  `json:"success"`
	ExpiresAt int64 `json:"expires_at,omitempty"`
}

// UnlockRequest releases locks held by a holder.
type UnlockRequest struct {
	HolderID string   `json:"holder_id"`
	SeatIDs  []string `json:"seat_ids"`
}

// UnlockResponse reports the outcome of an unlock request.
type UnlockResponse struct {
	Success bool `json:"success"`
}

// BookRequest converts seats the holder has locked into booked seats.
type BookRequest struct {
	HolderID string   `json:"holder_id"`
	SeatIDs  []string `json:"seat_ids"`
}

// ErrorResponse is the error body for HTTP and websocket errors.
type ErrorResponse struct {
	Error string `json:"error"`
}
