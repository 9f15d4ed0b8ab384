package hub

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/eljaska/telara/internal/fusion"
	"github.com/eljaska/telara/pkg/logging"
	"github.com/eljaska/telara/pkg/models"
)

const (
	// Replay buffer sizes for the initial_state snapshot.
	vitalsReplay = 50
	alertsReplay = 20

	// Time allowed to write a message to the peer. Slow readers are evicted.
	writeWait = 1 * time.Second

	// Heartbeat interval for otherwise idle connections.
	heartbeatPeriod = 30 * time.Second

	// Time allowed between frames from the peer.
	pongWait = 90 * time.Second

	// Maximum message size allowed from peer.
	maxMessageSize = 512
)

// SourceStatsFunc supplies per-source worker status for the initial_state
// snapshot.
type SourceStatsFunc func() map[string]interface{}

// Hub maintains the set of active clients and broadcasts vital and alert
// messages to them. New clients receive a single initial_state message built
// from the replay buffers before any live traffic.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	logger     logging.Logger
	mutex      sync.RWMutex

	sourceStats SourceStatsFunc

	bufMu            sync.Mutex
	vitals           []json.RawMessage
	alerts           []json.RawMessage
	totalVitals      int64
	totalAlerts      int64
	connectionsTotal int64
	evictions        int64
}

// Client is one WebSocket connection with its own buffered send queue.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	logger logging.Logger
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// NewHub creates a new WebSocket hub.
func NewHub(logger logging.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger,
	}
}

// SetSourceStats wires the per-source status provider used in initial_state.
func (h *Hub) SetSourceStats(fn SourceStatsFunc) {
	h.sourceStats = fn
}

// Run starts the hub's main loop.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mutex.Unlock()

			h.bufMu.Lock()
			h.connectionsTotal++
			h.bufMu.Unlock()

			// Replay snapshot goes out before any live message.
			select {
			case client.send <- h.initialState():
			default:
			}

			h.logger.WithFields(logging.Fields{
				"client_count": count,
			}).Info("WebSocket client connected")

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			count := len(h.clients)
			h.mutex.Unlock()
			h.logger.WithFields(logging.Fields{
				"client_count": count,
			}).Info("WebSocket client disconnected")

		case message := <-h.broadcast:
			h.broadcastMessage(message)
		}
	}
}

// broadcastMessage fans one message out to every client. A client whose send
// queue is full is evicted rather than allowed to stall the hub.
func (h *Hub) broadcastMessage(message []byte) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	for client := range h.clients {
		select {
		case client.send <- message:
		default:
			close(client.send)
			delete(h.clients, client)
			h.bufMu.Lock()
			h.evictions++
			h.bufMu.Unlock()
			h.logger.Warn("Evicted slow WebSocket client")
		}
	}
}

// BroadcastVital publishes one normalised reading together with the current
// fused snapshot.
func (h *Hub) BroadcastVital(ev *models.VitalEvent, aggregated map[string]fusion.FusedMetric) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.WithError(err).Error("Failed to marshal vital event")
		return
	}

	envelope := map[string]interface{}{
		"type": "vital",
		"data": json.RawMessage(data),
	}
	if aggregated != nil {
		envelope["aggregated"] = aggregated
	}
	message, err := json.Marshal(envelope)
	if err != nil {
		h.logger.WithError(err).Error("Failed to marshal vital message")
		return
	}

	h.bufMu.Lock()
	h.vitals = remember(h.vitals, data, vitalsReplay)
	h.totalVitals++
	h.bufMu.Unlock()

	h.enqueue(message)
}

// BroadcastAlert publishes a freshly detected alert.
func (h *Hub) BroadcastAlert(alert *models.AlertEvent) {
	data, err := json.Marshal(alert)
	if err != nil {
		h.logger.WithError(err).Error("Failed to marshal alert")
		return
	}
	message, err := json.Marshal(map[string]interface{}{
		"type": "alert",
		"data": json.RawMessage(data),
	})
	if err != nil {
		h.logger.WithError(err).Error("Failed to marshal alert message")
		return
	}

	h.bufMu.Lock()
	h.alerts = remember(h.alerts, data, alertsReplay)
	h.totalAlerts++
	h.bufMu.Unlock()

	h.enqueue(message)
}

// BroadcastAlertEnriched re-publishes an alert once its AI insight arrives.
// Clients dedupe on alert_id; the enriched copy is not replay-buffered.
func (h *Hub) BroadcastAlertEnriched(alert *models.AlertEvent) {
	data, err := json.Marshal(alert)
	if err != nil {
		h.logger.WithError(err).Error("Failed to marshal enriched alert")
		return
	}
	message, err := json.Marshal(map[string]interface{}{
		"type": "alert_enriched",
		"data": json.RawMessage(data),
	})
	if err != nil {
		h.logger.WithError(err).Error("Failed to marshal enriched alert message")
		return
	}
	h.enqueue(message)
}

func (h *Hub) enqueue(message []byte) {
	select {
	case h.broadcast <- message:
	default:
		h.logger.Warn("Broadcast channel full, dropping message")
	}
}

// remember appends to a replay buffer, trimming the oldest entries.
func remember(buf []json.RawMessage, entry json.RawMessage, limit int) []json.RawMessage {
	buf = append(buf, entry)
	if len(buf) > limit {
		buf = buf[len(buf)-limit:]
	}
	return buf
}

// initialState builds the one-shot snapshot a new client receives: buffered
// vitals and alerts plus counters and per-source status.
func (h *Hub) initialState() []byte {
	h.bufMu.Lock()
	vitals := make([]json.RawMessage, len(h.vitals))
	copy(vitals, h.vitals)
	alerts := make([]json.RawMessage, len(h.alerts))
	copy(alerts, h.alerts)
	stats := map[string]interface{}{
		"total_vitals":      h.totalVitals,
		"total_alerts":      h.totalAlerts,
		"connections_total": h.connectionsTotal,
	}
	h.bufMu.Unlock()

	data := map[string]interface{}{
		"vitals": vitals,
		"alerts": alerts,
		"stats":  stats,
	}
	if h.sourceStats != nil {
		data["sources"] = h.sourceStats()
	}

	message, err := json.Marshal(map[string]interface{}{
		"type": "initial_state",
		"data": data,
	})
	if err != nil {
		h.logger.WithError(err).Error("Failed to marshal initial state")
		return []byte(`{"type":"initial_state","data":{}}`)
	}
	return message
}

// ConnectionCount returns the number of active clients.
func (h *Hub) ConnectionCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// GetStats returns hub statistics for the stats endpoint.
func (h *Hub) GetStats() map[string]interface{} {
	h.mutex.RLock()
	active := len(h.clients)
	h.mutex.RUnlock()

	h.bufMu.Lock()
	defer h.bufMu.Unlock()
	return map[string]interface{}{
		"vitals_processed":   h.totalVitals,
		"alerts_generated":   h.totalAlerts,
		"active_connections": active,
		"total_connections":  h.connectionsTotal,
		"evicted_clients":    h.evictions,
		"buffer": map[string]interface{}{
			"vitals_buffered": len(h.vitals),
			"alerts_buffered": len(h.alerts),
		},
	}
}

// Counters returns the broadcast and eviction totals for metrics export.
func (h *Hub) Counters() (vitals, alerts, evictions int64) {
	h.bufMu.Lock()
	defer h.bufMu.Unlock()
	return h.totalVitals, h.totalAlerts, h.evictions
}

// ServeWS upgrades an HTTP request and registers the client.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Error("Failed to upgrade WebSocket connection")
		return
	}

	client := &Client{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, 256),
		logger: h.logger,
	}

	client.hub.register <- client

	go client.writePump()
	go client.readPump()
}

// readPump consumes inbound frames. Clients only ever send "ping"; anything
// else is ignored. Any received frame refreshes the read deadline.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
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
				c.logger.WithError(err).Error("WebSocket connection error")
			}
			break
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))

		if string(message) == "ping" {
			select {
			case c.send <- []byte("pong"):
			default:
			}
		}
	}
}

// writePump drains the send queue onto the wire and emits periodic heartbeats.
// Every write runs under the short deadline; a timeout kills the connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(heartbeatPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
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
			heartbeat, _ := json.Marshal(map[string]interface{}{
				"type":      "heartbeat",
				"timestamp": time.Now().UTC().Format(time.RFC3339),
			})
			if err := c.conn.WriteMessage(websocket.TextMessage, heartbeat); err != nil {
				return
			}
		}
	}
}
