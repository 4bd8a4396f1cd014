package handlers

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/telsalud/notefmt/internal/common"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Origin checks belong to the fronting proxy
	},
}

// WSMessage is the frame format on the realtime channel
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// Event types pushed to consultation channels
const (
	EventFormatReady  = "clinicalNote.format.ready"
	EventFormatFailed = "clinicalNote.format.failed"
)

// wsClient tracks one connected session: a write mutex (gorilla connections
// allow one concurrent writer) and the set of consultation channels the
// session subscribed to.
type wsClient struct {
	writeMu       sync.Mutex
	consultations map[string]bool
}

// WebSocketHandler is the realtime notifier. Sessions subscribe to
// consultation-scoped channels; terminal job events are broadcast
// fire-and-forget with no acknowledgement tracking.
type WebSocketHandler struct {
	logger           arbor.ILogger
	mu               sync.RWMutex
	clients          map[*websocket.Conn]*wsClient
	throttler        *rate.Limiter // nil = no throttling
	serverInstanceID string        // clients detect restarts and re-poll job status
}

// NewWebSocketHandler creates the realtime notifier
func NewWebSocketHandler(config *common.WebSocketConfig, logger arbor.ILogger) *WebSocketHandler {
	h := &WebSocketHandler{
		logger:           logger,
		clients:          make(map[*websocket.Conn]*wsClient),
		serverInstanceID: uuid.New().String(),
	}

	logger.Info().
		Str("server_instance_id", h.serverInstanceID).
		Msg("WebSocket handler initialized")

	if config != nil && config.ThrottleInterval != "" {
		if duration, err := time.ParseDuration(config.ThrottleInterval); err == nil {
			h.throttler = rate.NewLimiter(rate.Every(duration), 1)
			logger.Debug().
				Str("interval", config.ThrottleInterval).
				Msg("Broadcast throttler initialized")
		} else {
			logger.Warn().
				Err(err).
				Str("interval", config.ThrottleInterval).
				Msg("Failed to parse throttle interval - throttler disabled")
		}
	}

	return h
}

// HandleWebSocket upgrades the connection and runs the subscription loop
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	client := &wsClient{consultations: make(map[string]bool)}

	h.mu.Lock()
	h.clients[conn] = client
	clientCount := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug().Int("clients", clientCount).Msg("WebSocket client connected")

	// Handshake frame: the instance id lets clients detect a server restart
	// and re-poll any jobs they were waiting on
	h.send(conn, client, WSMessage{
		Type:    "connected",
		Payload: map[string]interface{}{"serverInstanceId": h.serverInstanceID},
	})

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
		conn.Close()
		h.logger.Debug().Msg("WebSocket client disconnected")
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var msg WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.logger.Debug().Err(err).Msg("Ignoring malformed WebSocket message")
			continue
		}

		switch msg.Type {
		case "subscribe":
			if consultationID := getString(msg.Payload, "consultationId"); consultationID != "" {
				h.mu.Lock()
				client.consultations[consultationID] = true
				h.mu.Unlock()
				h.send(conn, client, WSMessage{
					Type:    "subscribed",
					Payload: map[string]interface{}{"consultationId": consultationID},
				})
			}
		case "unsubscribe":
			if consultationID := getString(msg.Payload, "consultationId"); consultationID != "" {
				h.mu.Lock()
				delete(client.consultations, consultationID)
				h.mu.Unlock()
			}
		case "ping":
			h.send(conn, client, WSMessage{Type: "pong", Payload: nil})
		default:
			h.logger.Debug().Str("type", msg.Type).Msg("Unknown WebSocket message type")
		}
	}
}

// EmitReady pushes a completion event to the consultation channel
func (h *WebSocketHandler) EmitReady(consultationID, jobID, finalNoteID string) {
	h.broadcast(consultationID, WSMessage{
		Type: EventFormatReady,
		Payload: map[string]interface{}{
			"jobId":          jobID,
			"consultationId": consultationID,
			"finalNoteId":    finalNoteID,
		},
	})
}

// EmitFailed pushes a failure event to the consultation channel. Only the
// error code crosses the client boundary.
func (h *WebSocketHandler) EmitFailed(consultationID, jobID, errorCode string) {
	h.broadcast(consultationID, WSMessage{
		Type: EventFormatFailed,
		Payload: map[string]interface{}{
			"jobId":          jobID,
			"consultationId": consultationID,
			"errorCode":      errorCode,
		},
	})
}

// broadcast delivers a message to every session subscribed to the
// consultation channel. Fire-and-forget: write failures drop the client's
// frame, and throttled bursts are dropped entirely (clients poll to recover).
func (h *WebSocketHandler) broadcast(consultationID string, msg WSMessage) {
	if h.throttler != nil && !h.throttler.Allow() {
		h.logger.Debug().
			Str("type", msg.Type).
			Str("consultation_id", consultationID).
			Msg("Broadcast throttled")
		return
	}

	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Str("type", msg.Type).Msg("Failed to marshal broadcast message")
		return
	}

	h.mu.RLock()
	targets := make(map[*websocket.Conn]*wsClient)
	for conn, client := range h.clients {
		if client.consultations[consultationID] {
			targets[conn] = client
		}
	}
	h.mu.RUnlock()

	for conn, client := range targets {
		client.writeMu.Lock()
		err := conn.WriteMessage(websocket.TextMessage, data)
		client.writeMu.Unlock()

		if err != nil {
			h.logger.Warn().
				Err(err).
				Str("type", msg.Type).
				Msg("Failed to push event to client")
		}
	}

	h.logger.Debug().
		Str("type", msg.Type).
		Str("consultation_id", consultationID).
		Int("sessions", len(targets)).
		Msg("Event broadcast to consultation channel")
}

// send writes a single frame to one client
func (h *WebSocketHandler) send(conn *websocket.Conn, client *wsClient, msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to marshal WebSocket message")
		return
	}

	client.writeMu.Lock()
	defer client.writeMu.Unlock()
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		h.logger.Warn().Err(err).Msg("Failed to write WebSocket message")
	}
}

// getString extracts a string field from a generic payload
func getString(payload interface{}, key string) string {
	m, ok := payload.(map[string]interface{})
	if !ok {
		return ""
	}
	v, ok := m[key].(string)
	if !ok {
		return ""
	}
	return v
}
