package shared

import (
	"fmt"
	"time"
)

// Redis key patterns
const (
	RedisKeySessions      = "sessions"                // set of known session ids
	RedisKeySessionSeats  = "session:%s:seats"        // hash: seat id -> seat record JSON
	RedisKeySessionConfig = "session:%s:config"       // session config JSON
	RedisKeySeatLock      = "session:%s:seat:%s:lock" // SetNX lock, value = holder id
)

// SessionSeatsKey returns the Redis hash key for a session's seat records.
func SessionSeatsKey(sessionID string) string {
	return fmt.Sprintf(RedisKeySessionSeats, sessionID)
}

// SessionConfigKey returns the Redis key for a session's config JSON.
func SessionConfigKey(sessionID string) string {
	return fmt.Sprintf(RedisKeySessionConfig, sessionID)
}

// SeatLockKey returns the Redis key for one seat's lock.
func SeatLockKey(sessionID, seatID string) string {
	return fmt.Sprintf(RedisKeySeatLock, sessionID, seatID)
}

// NATS subjects
const (
	NATSTopicSeatLocked   = "seats.%s.locked"
	NATSTopicSeatUnlocked = "seats.%s.unlocked"
	NATSTopicSeatBooked   = "seats.%s.booked"
	NATSTopicAllSeats     = "seats.>"
)

// SeatEventSubject returns the NATS subject for an event type within a session.
func SeatEventSubject(eventType, sessionID string) string {
	switch eventType {
	case "locked":
		return fmt.Sprintf(NATSTopicSeatLocked, sessionID)
	case "unlocked", "expired":
		return fmt.Sprintf(NATSTopicSeatUnlocked, sessionID)
	case "booked":
		return fmt.Sprintf(NATSTopicSeatBooked, sessionID)
	}
	return ""
}

// Timeouts and durations
const (
	DefaultLockTTL        = 600 * time.Second
	SweepInterval         = 2 * time.Second
	WebSocketWriteTimeout = 10 * time.Second
	WebSocketPongWait     = 60 * time.Second
	WebSocketPingPeriod   = (WebSocketPongWait * 9) / 10
)

// Server configuration defaults
const (
	AvailabilityServicePort = ":8080"
	DefaultEdgePort         = ":3000"
)

// SeatID generates a seat id from a zero-based row and seat number,
// e.g. row 0 seat 0 -> "A1".
func SeatID(row, number int) string {
	rowLetter := string(rune('A' + row))
	return fmt.Sprintf("%s%d", rowLetter, number+1)
}
