package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"

	"showtime-booking/shared"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
)

var (
	redisClient *redis.Client
	natsConn    *nats.Conn
	ctx         = context.Background()
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment")
	}

	log.Println("Starting availability service...")

	if err := connectRedis(); err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	log.Println("Connected to Redis")

	if err := connectNATS(); err != nil {
		log.Fatalf("Failed to connect to NATS: %v", err)
	}
	defer natsConn.Close()
	log.Println("Connected to NATS")

	if err := seedDemoSession(); err != nil {
		log.Fatalf("Failed to seed demo session: %v", err)
	}

	router := setupRoutes()

	StartSweeper(redisClient, natsConn)
	log.Println("Lock expiry sweeper started")

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		log.Println("Shutting down availability service...")
		os.Exit(0)
	}()

	port := os.Getenv("PORT")
	if port == "" {
		port = shared.AvailabilityServicePort
	} else {
		port = ":" + port
	}

	log.Printf("Availability service started on %s\n", port)
	if err := router.Run(port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

func connectRedis() error {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	redisClient = redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       0,
	})

	_, err := redisClient.Ping(ctx).Result()
	return err
}

func connectNATS() error {
	url := os.Getenv("NATS_URL")
	if url == "" {
		url = nats.DefaultURL
	}

	var err error
	natsConn, err = nats.Connect(url)
	return err
}

// seedDemoSession creates a demo session if none exists yet: 10 rows of 12
// seats, the first two rows VIP, with a 10% fee and 8% tax policy.
func seedDemoSession() error {
	sessionID := os.Getenv("DEMO_SESSION_ID")
	if sessionID == "" {
		sessionID = "show-1"
	}

	exists, err := redisClient.Exists(ctx, shared.SessionConfigKey(sessionID)).Result()
	if err != nil {
		return err
	}
	if exists > 0 {
		log.Printf("Session %s already initialized, skipping...", sessionID)
		return nil
	}

	config := shared.SessionConfig{
		SessionID:   sessionID,
		Rows:        10,
		SeatsPerRow: 12,
		VIPRows:     []int{0, 1},
		Pricing: map[string]int64{
			shared.CategoryRegular: 1250,
			shared.CategoryVIP:     1800,
		},
		FeeBasisPoints: 1000,
		TaxBasisPoints: 800,
	}

	return CreateSession(config)
}

func setupRoutes() *gin.Engine {
	router := gin.Default()

	api := router.Group("/api")
	{
		api.GET("/sessions/:id/availability", handleGetAvailability)
		api.POST("/sessions/:id/locks", handleLockSeats)
		api.DELETE("/sessions/:id/locks", handleUnlockSeats)
		api.POST("/sessions/:id/book", handleBookSeats)
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return router
}

// CreateSession stores a session config and registers the session id.
func CreateSession(config shared.SessionConfig) error {
	configJSON, err := json.Marshal(config)
	if err != nil {
		return err
	}
	if err := redisClient.Set(ctx, shared.SessionConfigKey(config.SessionID), configJSON, 0).Err(); err != nil {
		return err
	}
	if err := redisClient.SAdd(ctx, shared.RedisKeySessions, config.SessionID).Err(); err != nil {
		return err
	}
	log.Printf("Initialized session %s (%d rows x %d seats)", config.SessionID, config.Rows, config.SeatsPerRow)
	return nil
}
