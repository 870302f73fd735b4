// Package uibridge fans engine updates out to local UI clients over
// WebSocket and feeds their intents back into the engine.
package uibridge

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/mkral/clueroom/internal/engine"
)

// ConnectionManager manages WebSocket connections per room and implements
// engine.Sink: every engine update is marshalled once and broadcast to the
// room's connections.
type ConnectionManager struct {
	roomConnections map[int]map[*Connection]bool
	mu              sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig

	broadcastCh chan broadcast

	// onRoomEmpty fires when the last connection for a room goes away,
	// so the session can be torn down.
	onRoomEmpty func(roomID int)
}

// Connection is one UI client attached to a room view.
type Connection struct {
	ID      string
	RoomID  int
	Conn    *websocket.Conn
	Send    chan []byte
	Manager *ConnectionManager

	ConnectedAt time.Time
}

// ConnectionConfig holds WebSocket connection tuning.
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

type broadcast struct {
	roomID int
	data   []byte
}

// DefaultConnectionConfig returns default WebSocket settings.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  4096,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// NewConnectionManager creates a connection manager. onRoomEmpty may be
// nil.
func NewConnectionManager(config ConnectionConfig, onRoomEmpty func(roomID int)) *ConnectionManager {
	return &ConnectionManager{
		roomConnections: make(map[int]map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		broadcastCh: make(chan broadcast, 256),
		onRoomEmpty: onRoomEmpty,
	}
}

// Start processes broadcasts until the context is cancelled.
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("ui connection manager started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("ui connection manager shutting down")
			return
		case b := <-cm.broadcastCh:
			cm.handleBroadcast(b)
		}
	}
}

// Publish implements engine.Sink.
func (cm *ConnectionManager) Publish(roomID int, upd engine.Update) {
	data, err := json.Marshal(upd)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal engine update")
		return
	}
	select {
	case cm.broadcastCh <- broadcast{roomID: roomID, data: data}:
	default:
		log.Warn().Int("room_id", roomID).Msg("broadcast channel full, dropping update")
	}
}

// Upgrade turns an HTTP request into a managed room connection. intents
// receives decoded client messages.
func (cm *ConnectionManager) Upgrade(w http.ResponseWriter, r *http.Request, roomID int, intents func(roomID int, msg ClientIntent)) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		RoomID:      roomID,
		Conn:        conn,
		Send:        make(chan []byte, 256),
		Manager:     cm,
		ConnectedAt: time.Now(),
	}
	cm.register(connection)

	go connection.writePump()
	go connection.readPump(intents)

	log.Info().
		Str("connection_id", connection.ID).
		Int("room_id", roomID).
		Msg("ui connection established")
	return nil
}

func (cm *ConnectionManager) register(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if cm.roomConnections[conn.RoomID] == nil {
		cm.roomConnections[conn.RoomID] = make(map[*Connection]bool)
	}
	cm.roomConnections[conn.RoomID][conn] = true
}

func (cm *ConnectionManager) unregister(conn *Connection) {
	cm.mu.Lock()
	empty := false
	if connections, ok := cm.roomConnections[conn.RoomID]; ok {
		if _, ok := connections[conn]; ok {
			delete(connections, conn)
			close(conn.Send)
			if len(connections) == 0 {
				delete(cm.roomConnections, conn.RoomID)
				empty = true
			}
		}
	}
	cm.mu.Unlock()

	if empty && cm.onRoomEmpty != nil {
		cm.onRoomEmpty(conn.RoomID)
	}
}

func (cm *ConnectionManager) handleBroadcast(b broadcast) {
	cm.mu.RLock()
	connections := cm.roomConnections[b.roomID]
	targets := make([]*Connection, 0, len(connections))
	for conn := range connections {
		targets = append(targets, conn)
	}
	cm.mu.RUnlock()

	for _, conn := range targets {
		select {
		case conn.Send <- b.data:
		default:
			log.Warn().
				Str("connection_id", conn.ID).
				Msg("ui connection send buffer full, closing")
			cm.unregister(conn)
			conn.Conn.Close()
		}
	}
}

// ConnectionCount returns the number of UI clients attached to a room.
func (cm *ConnectionManager) ConnectionCount(roomID int) int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.roomConnections[roomID])
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.Manager.unregister(c)
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().Err(err).Str("connection_id", c.ID).Msg("write to ui connection failed")
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Connection) readPump(intents func(roomID int, msg ClientIntent)) {
	defer func() {
		c.Manager.unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().Err(err).Str("connection_id", c.ID).Msg("unexpected ui connection close")
			}
			break
		}
		var intent ClientIntent
		if err := json.Unmarshal(message, &intent); err != nil {
			log.Warn().Err(err).Str("connection_id", c.ID).Msg("dropping unparsable ui intent")
			continue
		}
		if intents != nil {
			intents(c.RoomID, intent)
		}
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}
