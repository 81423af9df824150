package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"showtime-booking/shared"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
)

var (
	natsConn           *nats.Conn
	hub                *Hub
	availabilityClient *AvailabilityClient
	upgrader           = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			// Allow connections from any origin for development
			return true
		},
	}
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment")
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = shared.DefaultEdgePort
	} else {
		port = ":" + port
	}

	log.Printf("Starting edge server on port %s...", port)

	if err := connectNATS(); err != nil {
		log.Fatalf("Failed to connect to NATS: %v", err)
	}
	defer natsConn.Close()
	log.Println("Connected to NATS")

	availabilityURL := os.Getenv("AVAILABILITY_SERVICE_URL")
	if availabilityURL == "" {
		availabilityURL = "http://localhost:8080"
	}
	availabilityClient = NewAvailabilityClient(availabilityURL)
	log.Printf("Availability client initialized with URL: %s", availabilityURL)

	hub = newHub()
	go hub.run()
	log.Println("Hub initialized and running")

	if err := subscribeToNATS(); err != nil {
		log.Fatalf("Failed to subscribe to NATS: %v", err)
	}
	log.Println("Subscribed to NATS seat events")

	http.HandleFunc("/ws", handleWebSocket)
	http.HandleFunc("/health", handleHealth)
	http.HandleFunc("/stats", handleStats)

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		log.Println("Shutting down edge server...")
		os.Exit(0)
	}()

	log.Printf("Edge server started on %s", port)
	if err := http.ListenAndServe(port, nil); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

func connectNATS() error {
	url := os.Getenv("NATS_URL")
	if url == "" {
		url = nats.DefaultURL
	}

	opts := []nats.Option{
		nats.Name("edge-server"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Printf("[NATS] Disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("[NATS] Reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Printf("[NATS] Error: %v", err)
		}),
	}

	var err error
	natsConn, err = nats.Connect(url, opts...)
	if err != nil {
		return err
	}

	if !natsConn.IsConnected() {
		return fmt.Errorf("NATS connection not established")
	}

	return nil
}

func subscribeToNATS() error {
	subscription, err := natsConn.Subscribe(shared.NATSTopicAllSeats, func(msg *nats.Msg) {
		var event shared.SeatEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			log.Printf("[ERROR] Failed to parse NATS event: %v", err)
			return
		}

		hub.dispatchEvent(event)

		log.Printf("[NATS] Received %s event for session %s on %s, fanning out to %d clients",
			event.Type, event.SessionID, msg.Subject, hub.GetClientCount())
	})
	if err != nil {
		return err
	}

	log.Printf("[NATS] Subscribed to %s (subscription: %s)", shared.NATSTopicAllSeats, subscription.Subject)
	return nil
}

func handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		http.Error(w, "session query parameter is required", http.StatusBadRequest)
		return
	}

	holderID := r.URL.Query().Get("holder")
	if holderID == "" {
		holderID = uuid.NewString()
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}

	client := &Client{
		hub:         hub,
		conn:        conn,
		send:        make(chan []byte, 256),
		id:          uuid.NewString(),
		sessionID:   sessionID,
		holderID:    holderID,
		connectedAt: time.Now(),
	}

	client.hub.register <- client

	go client.writePump()
	go client.readPump()

	// Bring the new viewer up to server truth right away.
	go client.sendSnapshot()

	log.Printf("New WebSocket client %s connected to session %s", client.id, sessionID)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok","service":"edge-server"}`))
}

func handleStats(w http.ResponseWriter, r *http.Request) {
	stats := hub.GetStats()
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		http.Error(w, "Failed to get stats", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(statsJSON)
}
