// Package gateway fans committed auction events out to websocket clients.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/skjftp/fpl-auction-sub001/go/internal/events"
)

// RoomAuction is the room every auction and draft event is sent to
const RoomAuction = "auction-room"

// Gateway-local message types; they share the events.Event envelope with the
// committed events.
const (
	TypeSnapshot         events.Type = "state-snapshot"
	TypeTeamConnected    events.Type = "team-connected"
	TypeTeamDisconnected events.Type = "team-disconnected"
	TypePong             events.Type = "pong"
	TypeError            events.Type = "error"
)

// Config holds websocket tuning and the JetStream consumer settings
type Config struct {
	WriteTimeout   time.Duration `yaml:"write_timeout" env:"WS_WRITE_TIMEOUT"`
	ReadTimeout    time.Duration `yaml:"read_timeout" env:"WS_READ_TIMEOUT"`
	PingInterval   time.Duration `yaml:"ping_interval" env:"WS_PING_INTERVAL"`
	MaxMessageSize int64         `yaml:"max_message_size" env:"WS_MAX_MESSAGE_SIZE"`
	// SendBuffer is the per-client queue; a client that fills it is dropped.
	SendBuffer int            `yaml:"send_buffer" env:"WS_SEND_BUFFER"`
	Consumer   ConsumerConfig `yaml:"consumer"`
}

// DefaultConfig mirrors the values the gateway has always run with
func DefaultConfig() Config {
	return Config{
		WriteTimeout:   10 * time.Second,
		ReadTimeout:    60 * time.Second,
		PingInterval:   30 * time.Second,
		MaxMessageSize: 1024,
		SendBuffer:     256,
		Consumer:       DefaultConsumerConfig(),
	}
}

// Connection is one websocket client
type Connection struct {
	ID       string
	TeamID   int64
	TeamName string
	Room     string
	Conn     *websocket.Conn
	Send     chan []byte

	manager     *ConnectionManager
	connectedAt time.Time
	lastSeen    atomic.Int64
}

// LastSeen is the time of the last pong or client message
func (c *Connection) LastSeen() time.Time {
	return time.Unix(0, c.lastSeen.Load())
}

func (c *Connection) touch() {
	c.lastSeen.Store(time.Now().UnixNano())
}

type broadcast struct {
	room  string
	event events.Event
}

// ConnectionManager tracks clients per room and delivers events to them in
// publish order
type ConnectionManager struct {
	rooms map[string]map[*Connection]bool
	mu    sync.RWMutex

	upgrader    websocket.Upgrader
	config      Config
	snapshots   *Snapshotter
	broadcastCh chan broadcast

	delivered atomic.Uint64
	evicted   atomic.Uint64
}

// NewConnectionManager creates a manager; snapshots may be nil
func NewConnectionManager(config Config, snapshots *Snapshotter) *ConnectionManager {
	return &ConnectionManager{
		rooms: make(map[string]map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Origins are enforced by the CORS layer in front of the router.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		config:      config,
		snapshots:   snapshots,
		broadcastCh: make(chan broadcast, 1000),
	}
}

// Start delivers queued broadcasts until ctx ends
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			cm.closeAll()
			return
		case msg := <-cm.broadcastCh:
			cm.handleBroadcast(msg)
		}
	}
}

// Publish implements events.Broadcaster. It blocks while the broadcast queue
// is full so events are never reordered or dropped before reaching clients.
func (cm *ConnectionManager) Publish(ctx context.Context, evts ...events.Event) error {
	for _, e := range evts {
		if err := cm.enqueue(ctx, RoomAuction, e); err != nil {
			return err
		}
	}
	return nil
}

func (cm *ConnectionManager) enqueue(ctx context.Context, room string, e events.Event) error {
	select {
	case cm.broadcastCh <- broadcast{room: room, event: e}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("broadcast %s: %w", e.Type, ctx.Err())
	}
}

// UpgradeConnection upgrades the request and registers the client in room
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, teamID int64, teamName, room string) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	c := &Connection{
		ID:          uuid.New().String(),
		TeamID:      teamID,
		TeamName:    teamName,
		Room:        room,
		Conn:        conn,
		Send:        make(chan []byte, cm.config.SendBuffer),
		manager:     cm,
		connectedAt: time.Now(),
	}
	c.touch()

	cm.register(c)
	go c.writePump()
	go c.readPump()

	cm.sendSnapshot(r.Context(), c)
	cm.announce(r.Context(), c, TypeTeamConnected)

	log.Info().
		Str("connection_id", c.ID).
		Int64("team_id", teamID).
		Str("room", room).
		Msg("websocket connection established")
	return nil
}

func (cm *ConnectionManager) register(c *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if cm.rooms[c.Room] == nil {
		cm.rooms[c.Room] = make(map[*Connection]bool)
	}
	cm.rooms[c.Room][c] = true
	log.Debug().
		Str("connection_id", c.ID).
		Str("room", c.Room).
		Int("room_connections", len(cm.rooms[c.Room])).
		Msg("connection registered")
}

// unregister removes c and closes its send queue; it reports whether c was
// still registered
func (cm *ConnectionManager) unregister(c *Connection) bool {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	conns, ok := cm.rooms[c.Room]
	if !ok || !conns[c] {
		return false
	}
	delete(conns, c)
	close(c.Send)
	if len(conns) == 0 {
		delete(cm.rooms, c.Room)
	}
	log.Info().
		Str("connection_id", c.ID).
		Int64("team_id", c.TeamID).
		Dur("connected_for", time.Since(c.connectedAt)).
		Msg("connection unregistered")
	return true
}

func (cm *ConnectionManager) disconnect(c *Connection) {
	if cm.unregister(c) {
		cm.announce(context.Background(), c, TypeTeamDisconnected)
	}
}

func (cm *ConnectionManager) closeAll() {
	cm.mu.Lock()
	var all []*Connection
	for _, conns := range cm.rooms {
		for c := range conns {
			all = append(all, c)
		}
	}
	cm.mu.Unlock()
	for _, c := range all {
		cm.unregister(c)
	}
}

func (cm *ConnectionManager) handleBroadcast(msg broadcast) {
	data, err := json.Marshal(msg.event)
	if err != nil {
		log.Error().Err(err).Str("event_type", string(msg.event.Type)).Msg("failed to marshal event for broadcast")
		return
	}

	var slow []*Connection
	cm.mu.RLock()
	conns := cm.rooms[msg.room]
	for c := range conns {
		select {
		case c.Send <- data:
		default:
			slow = append(slow, c)
		}
	}
	sent := len(conns) - len(slow)
	cm.mu.RUnlock()

	for _, c := range slow {
		log.Warn().
			Str("connection_id", c.ID).
			Int64("team_id", c.TeamID).
			Msg("connection send buffer full, closing connection")
		cm.evicted.Add(1)
		cm.disconnect(c)
		c.Conn.Close()
	}
	cm.delivered.Add(uint64(sent))

	log.Debug().
		Str("event_type", string(msg.event.Type)).
		Int64("sequence", msg.event.Sequence).
		Str("room", msg.room).
		Int("connections", sent).
		Msg("event broadcasted")
}

// sendTo queues one message for a single client, dropping it if the queue is full
func (cm *ConnectionManager) sendTo(c *Connection, e events.Event) {
	data, err := json.Marshal(e)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal direct message")
		return
	}
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	if !cm.rooms[c.Room][c] {
		return
	}
	select {
	case c.Send <- data:
	default:
		log.Warn().Str("connection_id", c.ID).Str("event_type", string(e.Type)).Msg("dropping direct message")
	}
}

func (cm *ConnectionManager) sendSnapshot(ctx context.Context, c *Connection) {
	if cm.snapshots == nil {
		return
	}
	snap, err := cm.snapshots.Snapshot(ctx)
	if err != nil {
		log.Error().Err(err).Str("connection_id", c.ID).Msg("failed to build state snapshot")
		return
	}
	e, err := events.New(TypeSnapshot, snap.auctionID(), snap.sequence(), snap.ServerTime, snap)
	if err != nil {
		log.Error().Err(err).Msg("failed to encode state snapshot")
		return
	}
	cm.sendTo(c, e)
}

type presence struct {
	TeamID   int64  `json:"teamId"`
	TeamName string `json:"teamName,omitempty"`
}

func (cm *ConnectionManager) announce(ctx context.Context, c *Connection, t events.Type) {
	if c.TeamID == 0 {
		return
	}
	e, err := events.New(t, uuid.Nil, 0, time.Now(), presence{TeamID: c.TeamID, TeamName: c.TeamName})
	if err != nil {
		return
	}
	select {
	case cm.broadcastCh <- broadcast{room: c.Room, event: e}:
	case <-ctx.Done():
	default:
		log.Warn().Int64("team_id", c.TeamID).Str("event_type", string(t)).Msg("broadcast queue full, skipping presence notice")
	}
}

// Stats is a point-in-time view of connected clients
type Stats struct {
	TotalConnections int            `json:"total_connections"`
	Rooms            map[string]int `json:"rooms"`
	Teams            []int64        `json:"teams"`
	Delivered        uint64         `json:"delivered"`
	Evicted          uint64         `json:"evicted"`
}

// Stats returns connection counts per room
func (cm *ConnectionManager) Stats() Stats {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	s := Stats{
		Rooms:     make(map[string]int, len(cm.rooms)),
		Teams:     []int64{},
		Delivered: cm.delivered.Load(),
		Evicted:   cm.evicted.Load(),
	}
	seen := make(map[int64]bool)
	for room, conns := range cm.rooms {
		s.Rooms[room] = len(conns)
		s.TotalConnections += len(conns)
		for c := range conns {
			if c.TeamID != 0 && !seen[c.TeamID] {
				seen[c.TeamID] = true
				s.Teams = append(s.Teams, c.TeamID)
			}
		}
	}
	return s
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(c.manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(c.manager.config.WriteTimeout))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Debug().Err(err).Str("connection_id", c.ID).Msg("failed to write message")
				c.manager.disconnect(c)
				return
			}
		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(c.manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().Err(err).Str("connection_id", c.ID).Msg("failed to send ping")
				c.manager.disconnect(c)
				return
			}
		}
	}
}

func (c *Connection) readPump() {
	defer func() {
		c.manager.disconnect(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.manager.config.MaxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(c.manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.touch()
		return c.Conn.SetReadDeadline(time.Now().Add(c.manager.config.ReadTimeout))
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("connection_id", c.ID).Msg("unexpected websocket close")
			}
			return
		}
		c.touch()
		c.handleClientMessage(message)
		_ = c.Conn.SetReadDeadline(time.Now().Add(c.manager.config.ReadTimeout))
	}
}

type clientMessage struct {
	Type string `json:"type"`
}

// handleClientMessage answers the small set of client commands; bids and
// nominations go through the RPC API, never the socket
func (c *Connection) handleClientMessage(message []byte) {
	var msg clientMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		c.reply(TypeError, map[string]string{"error": "bad json"})
		return
	}
	switch msg.Type {
	case "join-auction", "sync":
		c.manager.sendSnapshot(context.Background(), c)
	case "ping":
		c.reply(TypePong, map[string]int64{"serverTime": time.Now().UnixMilli()})
	default:
		c.reply(TypeError, map[string]string{"error": "unknown type " + msg.Type})
	}
}

func (c *Connection) reply(t events.Type, payload any) {
	e, err := events.New(t, uuid.Nil, 0, time.Now(), payload)
	if err != nil {
		return
	}
	c.manager.sendTo(c, e)
}
