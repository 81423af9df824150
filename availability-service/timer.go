package main

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"showtime-booking/shared"

	"github.com/go-redis/redis/v8"
	"github.com/nats-io/nats.go"
)

// StartSweeper starts the periodic scan that releases expired holds. Lock
// keys expire on their own via Redis TTL; the sweeper brings the seat
// records back in line and tells viewers, who treat their local timers as
// advisory only.
func StartSweeper(redisClient *redis.Client, natsConn *nats.Conn) {
	ticker := time.NewTicker(shared.SweepInterval)
	go func() {
		for range ticker.C {
			sweepExpiredHolds(redisClient, natsConn)
		}
	}()
	log.Println("Sweeper checking every", shared.SweepInterval)
}

func sweepExpiredHolds(redisClient *redis.Client, natsConn *nats.Conn) {
	ctx := context.Background()

	sessionIDs, err := redisClient.SMembers(ctx, shared.RedisKeySessions).Result()
	if err != nil {
		log.Printf("Error fetching sessions for sweep: %v", err)
		return
	}

	for _, sessionID := range sessionIDs {
		sweepSession(ctx, redisClient, natsConn, sessionID)
	}
}

func sweepSession(ctx context.Context, redisClient *redis.Client, natsConn *nats.Conn, sessionID string) {
	now := time.Now().Unix()

	recordMap, err := redisClient.HGetAll(ctx, shared.SessionSeatsKey(sessionID)).Result()
	if err != nil {
		log.Printf("Error fetching seats for sweep of session %s: %v", sessionID, err)
		return
	}

	var expired []string
	var previousHolder string
	for seatID, recordJSON := range recordMap {
		var record seatRecord
		if err := json.Unmarshal([]byte(recordJSON), &record); err != nil {
			log.Printf("Error unmarshaling seat record %s: %v", seatID, err)
			continue
		}
		if record.Status != recordLocked || record.ExpiresAt == 0 || record.ExpiresAt >= now {
			continue
		}

		// The lock key should have expired on its own; delete it in case.
		redisClient.Del(ctx, shared.SeatLockKey(sessionID, seatID))

		previousHolder = record.HolderID
		record.Status = recordAvailable
		record.HolderID = ""
		record.ExpiresAt = 0
		if err := putSeatRecord(sessionID, &record); err != nil {
			log.Printf("Error releasing expired seat %s: %v", seatID, err)
			continue
		}
		expired = append(expired, seatID)
	}

	if len(expired) == 0 {
		return
	}

	publishSeatEvent("expired", sessionID, expired, previousHolder, 0)
	log.Printf("Sweeper: released %d expired hold(s) in session %s", len(expired), sessionID)
}
