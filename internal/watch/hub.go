package watch

import (
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/dphaener/ddmark/internal/metrics"
	"github.com/dphaener/ddmark/pkg/diagram"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// MessageType distinguishes preview messages
type MessageType string

const (
	// MessageDiagram carries a freshly rendered diagram
	MessageDiagram MessageType = "diagram"
	// MessageError reports a file that could not be rendered
	MessageError MessageType = "error"
)

// Message is what preview clients receive, one JSON object per frame
type Message struct {
	Type      MessageType      `json:"type"`
	File      string           `json:"file"`
	Kind      diagram.Kind     `json:"kind,omitempty"`
	Language  diagram.Language `json:"language,omitempty"`
	Origin    diagram.Origin   `json:"origin,omitempty"`
	Body      string           `json:"body,omitempty"`
	Error     *ErrorInfo       `json:"error,omitempty"`
	Timestamp int64            `json:"timestamp"`
}

// ErrorInfo holds detailed error information
type ErrorInfo struct {
	Message    string `json:"message"`
	Code       string `json:"code,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

// Hub manages websocket connections of live previews. The latest message
// per file is kept and replayed to clients as they connect.
type Hub struct {
	connections map[*websocket.Conn]bool
	latest      map[string]*Message
	broadcast   chan *Message
	register    chan *websocket.Conn
	unregister  chan *websocket.Conn
	done        chan struct{}
	closeOnce   sync.Once
	mutex       sync.RWMutex
	upgrader    websocket.Upgrader
	metrics     *metrics.Metrics
	logger      *zap.Logger
}

// NewHub creates a hub and starts its event loop. Browsers may connect from
// localhost or from one of allowedOrigins.
func NewHub(allowedOrigins []string, m *metrics.Metrics, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hub{
		connections: make(map[*websocket.Conn]bool),
		latest:      make(map[string]*Message),
		broadcast:   make(chan *Message, 256),
		register:    make(chan *websocket.Conn),
		unregister:  make(chan *websocket.Conn),
		done:        make(chan struct{}),
		metrics:     m,
		logger:      logger,
	}
	h.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return originAllowed(r.Header.Get("Origin"), allowedOrigins)
		},
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
	}

	go h.run()
	return h
}

func originAllowed(origin string, allowed []string) bool {
	if origin == "" {
		return true
	}
	for _, prefix := range []string{"http://localhost", "https://localhost", "http://127.0.0.1", "https://127.0.0.1"} {
		if strings.HasPrefix(origin, prefix) {
			return true
		}
	}
	for _, a := range allowed {
		if a == "*" || a == origin {
			return true
		}
	}
	return false
}

// run owns every write to the connections
func (h *Hub) run() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-h.done:
			return

		case conn := <-h.register:
			h.mutex.Lock()
			h.connections[conn] = true
			count := len(h.connections)
			h.mutex.Unlock()
			h.metrics.SetPreviewClients(count)
			h.logger.Info("preview client connected", zap.Int("clients", count))
			h.replay(conn)

		case conn := <-h.unregister:
			h.drop(conn)

		case message := <-h.broadcast:
			h.mutex.Lock()
			h.latest[message.File] = message
			h.mutex.Unlock()
			h.sendToAll(message)

		case <-ticker.C:
			h.pingAll()
		}
	}
}

func (h *Hub) drop(conn *websocket.Conn) {
	h.mutex.Lock()
	_, ok := h.connections[conn]
	if ok {
		delete(h.connections, conn)
		conn.Close()
	}
	count := len(h.connections)
	h.mutex.Unlock()
	if ok {
		h.metrics.SetPreviewClients(count)
		h.logger.Info("preview client disconnected", zap.Int("clients", count))
	}
}

func (h *Hub) replay(conn *websocket.Conn) {
	h.mutex.RLock()
	files := make([]string, 0, len(h.latest))
	for file := range h.latest {
		files = append(files, file)
	}
	sort.Strings(files)
	messages := make([]*Message, len(files))
	for i, file := range files {
		messages[i] = h.latest[file]
	}
	h.mutex.RUnlock()

	for _, message := range messages {
		if err := h.write(conn, message); err != nil {
			h.drop(conn)
			return
		}
	}
}

func (h *Hub) write(conn *websocket.Conn, message *Message) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// sendToAll sends a message to all connected clients
func (h *Hub) sendToAll(message *Message) {
	h.mutex.RLock()
	conns := make([]*websocket.Conn, 0, len(h.connections))
	for conn := range h.connections {
		conns = append(conns, conn)
	}
	h.mutex.RUnlock()

	for _, conn := range conns {
		if err := h.write(conn, message); err != nil {
			h.logger.Debug("preview send failed", zap.Error(err))
			h.drop(conn)
		}
	}
}

func (h *Hub) pingAll() {
	h.mutex.RLock()
	conns := make([]*websocket.Conn, 0, len(h.connections))
	for conn := range h.connections {
		conns = append(conns, conn)
	}
	h.mutex.RUnlock()

	for _, conn := range conns {
		if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
			h.drop(conn)
		}
	}
}

// ServeHTTP upgrades the request to a websocket and registers the client
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	select {
	case h.register <- conn:
	case <-h.done:
		conn.Close()
		return
	}
	go h.readMessages(conn)
}

// readMessages reads until the client goes away; clients send nothing but
// control frames
func (h *Hub) readMessages(conn *websocket.Conn) {
	defer func() {
		select {
		case h.unregister <- conn:
		case <-h.done:
		}
	}()

	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Debug("websocket read failed", zap.Error(err))
			}
			return
		}
	}
}

// Publish queues message for every client. It is a no-op after Close.
func (h *Hub) Publish(message *Message) {
	if message.Timestamp == 0 {
		message.Timestamp = time.Now().Unix()
	}
	select {
	case h.broadcast <- message:
	case <-h.done:
	}
}

// ConnectionCount returns the number of active connections
func (h *Hub) ConnectionCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.connections)
}

// Close closes all connections and stops the hub
func (h *Hub) Close() {
	h.closeOnce.Do(func() {
		close(h.done)

		h.mutex.Lock()
		defer h.mutex.Unlock()
		for conn := range h.connections {
			conn.Close()
		}
		h.connections = make(map[*websocket.Conn]bool)
		h.metrics.SetPreviewClients(0)
	})
}
