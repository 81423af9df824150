package main

import (
	"encoding/json"
	"errors"
	"log"
	"strconv"
	"time"

	"showtime-booking/shared"

	"github.com/go-redis/redis/v8"
)

// Lock and seat-state errors surfaced to handlers.
var (
	errSessionNotFound = errors.New("session not found")
	errSeatNotFound    = errors.New("seat not found")
	errSeatConflict    = errors.New("seat is already held by another holder")
	errSeatBooked      = errors.New("seat is already booked")
	errNotHolder       = errors.New("seat is not held by this holder")
)

// Seat record statuses in the session hash.
const (
	recordAvailable = "available"
	recordLocked    = "locked"
	recordBooked    = "booked"
)

// seatRecord is the per-seat state stored in the session's Redis hash.
// Absence of a field means the seat has never been touched and is available.
type seatRecord struct {
	SeatID    string `json:"seat_id"`
	Status    string `json:"status"`
	HolderID  string `json:"holder_id,omitempty"`
	ExpiresAt int64  `json:"expires_at,omitempty"`
}

// GetSessionConfig loads a session's config JSON.
func GetSessionConfig(sessionID string) (*shared.SessionConfig, error) {
	configJSON, err := redisClient.Get(ctx, shared.SessionConfigKey(sessionID)).Result()
	if err == redis.Nil {
		return nil, errSessionNotFound
	}
	if err != nil {
		return nil, err
	}

	var config shared.SessionConfig
	if err := json.Unmarshal([]byte(configJSON), &config); err != nil {
		return nil, err
	}
	return &config, nil
}

// GetAvailability builds the authoritative snapshot for a session.
func GetAvailability(sessionID string) (*shared.Availability, error) {
	config, err := GetSessionConfig(sessionID)
	if err != nil {
		return nil, err
	}

	recordMap, err := redisClient.HGetAll(ctx, shared.SessionSeatsKey(sessionID)).Result()
	if err != nil {
		return nil, err
	}

	avail := &shared.Availability{
		Config:      *config,
		BookedSeats: []string{},
		LockedSeats: []string{},
	}
	for seatID, recordJSON := range recordMap {
		var record seatRecord
		if err := json.Unmarshal([]byte(recordJSON), &record); err != nil {
			log.Printf("Error unmarshaling seat record %s: %v", seatID, err)
			continue
		}
		switch record.Status {
		case recordBooked:
			avail.BookedSeats = append(avail.BookedSeats, seatID)
		case recordLocked:
			avail.LockedSeats = append(avail.LockedSeats, seatID)
		}
	}
	return avail, nil
}

// LockSeats acquires time-bounded locks on all seats or none. The requested
// TTL is clamped server-side; the returned expiry is authoritative. On a
// conflict partway through, earlier acquisitions are rolled back.
func LockSeats(sessionID, holderID string, seatIDs []string, requestedTTL time.Duration) (time.Time, error) {
	config, err := GetSessionConfig(sessionID)
	if err != nil {
		return time.Time{}, err
	}

	ttl := requestedTTL
	if ttl <= 0 || ttl > shared.DefaultLockTTL {
		ttl = shared.DefaultLockTTL
	}
	expiresAt := time.Now().Add(ttl)

	var acquired []string
	for _, seatID := range seatIDs {
		if err := lockOneSeat(config, sessionID, holderID, seatID, ttl, expiresAt); err != nil {
			rollbackLocks(sessionID, holderID, acquired)
			return time.Time{}, err
		}
		acquired = append(acquired, seatID)
	}

	publishSeatEvent("locked", sessionID, seatIDs, holderID, expiresAt.Unix())
	log.Printf("Locked %d seat(s) in session %s for holder %s", len(seatIDs), sessionID, holderID)
	return expiresAt, nil
}

func lockOneSeat(config *shared.SessionConfig, sessionID, holderID, seatID string, ttl time.Duration, expiresAt time.Time) error {
	if !seatExists(config, seatID) {
		return errSeatNotFound
	}

	// SetNX with TTL is the single point of arbitration: at most one holder
	// per seat, globally.
	lockKey := shared.SeatLockKey(sessionID, seatID)
	ok, err := redisClient.SetNX(ctx, lockKey, holderID, ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		holder, _ := redisClient.Get(ctx, lockKey).Result()
		if holder == holderID {
			// Re-lock by the same holder refreshes the hold.
			if err := redisClient.Set(ctx, lockKey, holderID, ttl).Err(); err != nil {
				return err
			}
		} else {
			return errSeatConflict
		}
	}

	record, err := getSeatRecord(sessionID, seatID)
	if err != nil {
		redisClient.Del(ctx, lockKey)
		return err
	}
	if record.Status == recordBooked {
		redisClient.Del(ctx, lockKey)
		return errSeatBooked
	}

	record.Status = recordLocked
	record.HolderID = holderID
	record.ExpiresAt = expiresAt.Unix()
	if err := putSeatRecord(sessionID, record); err != nil {
		redisClient.Del(ctx, lockKey)
		return err
	}
	return nil
}

// rollbackLocks undoes partial acquisitions after a mid-batch conflict.
func rollbackLocks(sessionID, holderID string, seatIDs []string) {
	for _, seatID := range seatIDs {
		if err := releaseOneSeat(sessionID, holderID, seatID); err != nil {
			log.Printf("Error rolling back lock on seat %s: %v", seatID, err)
		}
	}
}

// UnlockSeats releases locks per-seat best effort and reports which seats
// were actually released.
func UnlockSeats(sessionID, holderID string, seatIDs []string) []string {
	released := make([]string, 0, len(seatIDs))
	for _, seatID := range seatIDs {
		if err := releaseOneSeat(sessionID, holderID, seatID); err != nil {
			log.Printf("Error unlocking seat %s in session %s: %v", seatID, sessionID, err)
			continue
		}
		released = append(released, seatID)
	}

	if len(released) > 0 {
		publishSeatEvent("unlocked", sessionID, released, holderID, 0)
		log.Printf("Unlocked %d seat(s) in session %s for holder %s", len(released), sessionID, holderID)
	}
	return released
}

func releaseOneSeat(sessionID, holderID, seatID string) error {
	lockKey := shared.SeatLockKey(sessionID, seatID)
	holder, err := redisClient.Get(ctx, lockKey).Result()
	if err == redis.Nil {
		// Lock already expired; the record may still need resetting.
		holder = holderID
	} else if err != nil {
		return err
	}
	if holder != holderID {
		return errNotHolder
	}

	record, err := getSeatRecord(sessionID, seatID)
	if err != nil {
		return err
	}
	if record.Status != recordLocked || record.HolderID != holderID {
		return errNotHolder
	}

	record.Status = recordAvailable
	record.HolderID = ""
	record.ExpiresAt = 0
	if err := putSeatRecord(sessionID, record); err != nil {
		return err
	}

	redisClient.Del(ctx, lockKey)
	return nil
}

// BookSeats converts seats the holder has locked into booked seats. The lock
// keys are dropped; booked state is permanent.
func BookSeats(sessionID, holderID string, seatIDs []string) error {
	for _, seatID := range seatIDs {
		lockKey := shared.SeatLockKey(sessionID, seatID)
		holder, err := redisClient.Get(ctx, lockKey).Result()
		if err == redis.Nil {
			return errNotHolder
		}
		if err != nil {
			return err
		}
		if holder != holderID {
			return errNotHolder
		}
	}

	for _, seatID := range seatIDs {
		record, err := getSeatRecord(sessionID, seatID)
		if err != nil {
			return err
		}
		if record.Status != recordLocked || record.HolderID != holderID {
			return errNotHolder
		}

		record.Status = recordBooked
		record.ExpiresAt = 0
		if err := putSeatRecord(sessionID, record); err != nil {
			return err
		}
		redisClient.Del(ctx, shared.SeatLockKey(sessionID, seatID))
	}

	publishSeatEvent("booked", sessionID, seatIDs, holderID, 0)
	log.Printf("Booked %d seat(s) in session %s for holder %s", len(seatIDs), sessionID, holderID)
	return nil
}

func getSeatRecord(sessionID, seatID string) (*seatRecord, error) {
	recordJSON, err := redisClient.HGet(ctx, shared.SessionSeatsKey(sessionID), seatID).Result()
	if err == redis.Nil {
		return &seatRecord{SeatID: seatID, Status: recordAvailable}, nil
	}
	if err != nil {
		return nil, err
	}

	var record seatRecord
	if err := json.Unmarshal([]byte(recordJSON), &record); err != nil {
		return nil, err
	}
	return &record, nil
}

func putSeatRecord(sessionID string, record *seatRecord) error {
	recordJSON, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return redisClient.HSet(ctx, shared.SessionSeatsKey(sessionID), record.SeatID, recordJSON).Err()
}

// seatExists validates a seat id against the session geometry and disabled
// list.
func seatExists(config *shared.SessionConfig, seatID string) bool {
	for _, disabled := range config.DisabledSeats {
		if disabled == seatID {
			return false
		}
	}
	if len(seatID) < 2 {
		return false
	}
	row := int(seatID[0] - 'A')
	number, err := strconv.Atoi(seatID[1:])
	if err != nil {
		return false
	}
	return row >= 0 && row < config.Rows && number >= 1 && number <= config.SeatsPerRow
}

func publishSeatEvent(eventType, sessionID string, seatIDs []string, holderID string, expiresAt int64) {
	event := shared.SeatEvent{
		Type:      eventType,
		SessionID: sessionID,
		SeatIDs:   seatIDs,
		HolderID:  holderID,
		ExpiresAt: expiresAt,
		Timestamp: time.Now(),
	}

	eventJSON, err := json.Marshal(event)
	if err != nil {
		log.Printf("Error marshaling event: %v", err)
		return
	}

	subject := shared.SeatEventSubject(eventType, sessionID)
	if subject == "" {
		log.Printf("Unknown event type: %s", eventType)
		return
	}

	if err := natsConn.Publish(subject, eventJSON); err != nil {
		log.Printf("Error publishing to NATS: %v", err)
	} else {
		log.Printf("Published %s event for %d seat(s) in session %s", eventType, len(seatIDs), sessionID)
	}
}
