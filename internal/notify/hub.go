package notify

import (
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"
)

// DefaultShards is the number of room shards when none is configured.
const DefaultShards = 16

// ErrUnknownConnection is returned when an operation names a connection
// that is not registered (or has already disconnected).
var ErrUnknownConnection = errors.New("unknown connection")

// Message is one outbound notification.
type Message struct {
	Event string         `json:"event"`
	Data  map[string]any `json:"data"`
}

// Conn is the transport-side handle of one client connection.
//
// Send must not block for long; transports are expected to queue the
// message and write it from their own goroutine.
type Conn interface {
	Send(Message) error
}

// UserRoom returns the room a user's connections join.
func UserRoom(userID string) string {
	return "user-" + userID
}

// TeamRoom returns the room a team's connections join.
func TeamRoom(teamID string) string {
	return "team-" + teamID
}

// Scope selects the recipients of a dispatch.
type Scope struct {
	room      string
	broadcast bool
}

// Broadcast targets every registered connection.
func Broadcast() Scope { return Scope{broadcast: true} }

// ToUser targets the user's room.
func ToUser(userID string) Scope { return Scope{room: UserRoom(userID)} }

// ToTeam targets the team's room.
func ToTeam(teamID string) Scope { return Scope{room: TeamRoom(teamID)} }

// ToRoom targets an arbitrary room.
func ToRoom(room string) Scope { return Scope{room: room} }

// String renders the scope for logs.
func (s Scope) String() string {
	if s.broadcast {
		return "broadcast"
	}
	return s.room
}

// entry is the hub's record of one connection.
type entry struct {
	mu     sync.Mutex
	id     string
	conn   Conn
	rooms  map[string]struct{}
	closed bool
}

// shard holds a slice of the room table.
type shard struct {
	mu    sync.RWMutex
	rooms map[string]map[string]*entry // room -> conn ID -> entry
}

// Hub is the room registry and dispatcher.
type Hub struct {
	shards []*shard
	now    func() time.Time

	connsMu sync.RWMutex
	conns   map[string]*entry
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithShards sets the number of room shards. Values below 1 are ignored.
func WithShards(n int) HubOption {
	return func(h *Hub) {
		if n > 0 {
			h.shards = newShards(n)
		}
	}
}

// WithClock sets the time source used for payload timestamps.
func WithClock(now func() time.Time) HubOption {
	return func(h *Hub) {
		h.now = now
	}
}

// NewHub creates an empty hub.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		shards: newShards(DefaultShards),
		now:    time.Now,
		conns:  make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func newShards(n int) []*shard {
	shards := make([]*shard, n)
	for i := range shards {
		shards[i] = &shard{rooms: make(map[string]map[string]*entry)}
	}
	return shards
}

func (h *Hub) shardFor(room string) *shard {
	f := fnv.New32a()
	_, _ = f.Write([]byte(room))
	return h.shards[f.Sum32()%uint32(len(h.shards))]
}

// Register adds a connection. Registering an ID that is already live
// replaces the old connection after disconnecting it.
func (h *Hub) Register(connID string, conn Conn) {
	e := &entry{id: connID, conn: conn, rooms: make(map[string]struct{})}

	h.connsMu.Lock()
	old := h.conns[connID]
	h.conns[connID] = e
	h.connsMu.Unlock()

	if old != nil {
		h.release(old)
	}
	slog.Debug("connection registered", "conn_id", connID)
}

func (h *Hub) lookup(connID string) (*entry, bool) {
	h.connsMu.RLock()
	defer h.connsMu.RUnlock()
	e, ok := h.conns[connID]
	return e, ok
}

// Join adds the connection to room. Joining twice is a no-op.
func (h *Hub) Join(connID, room string) error {
	e, ok := h.lookup(connID)
	if !ok {
		return fmt.Errorf("join %s: %w", room, ErrUnknownConnection)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return fmt.Errorf("join %s: %w", room, ErrUnknownConnection)
	}
	if _, in := e.rooms[room]; in {
		return nil
	}
	e.rooms[room] = struct{}{}

	s := h.shardFor(room)
	s.mu.Lock()
	members := s.rooms[room]
	if members == nil {
		members = make(map[string]*entry)
		s.rooms[room] = members
	}
	members[connID] = e
	s.mu.Unlock()

	slog.Debug("room joined", "conn_id", connID, "room", room)
	return nil
}

// Leave removes the connection from room. Leaving a room not joined is a
// no-op.
func (h *Hub) Leave(connID, room string) error {
	e, ok := h.lookup(connID)
	if !ok {
		return fmt.Errorf("leave %s: %w", room, ErrUnknownConnection)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, in := e.rooms[room]; !in {
		return nil
	}
	delete(e.rooms, room)
	h.removeMember(room, e)

	slog.Debug("room left", "conn_id", connID, "room", room)
	return nil
}

// Disconnect removes the connection from every room and from the registry.
// Calling it again, or for an unknown ID, does nothing.
func (h *Hub) Disconnect(connID string) {
	h.connsMu.Lock()
	e, ok := h.conns[connID]
	if ok {
		delete(h.conns, connID)
	}
	h.connsMu.Unlock()

	if !ok {
		return
	}
	h.release(e)
	slog.Debug("connection closed", "conn_id", connID)
}

// release marks the entry closed and drops all of its memberships.
func (h *Hub) release(e *entry) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	for room := range e.rooms {
		h.removeMember(room, e)
	}
	e.rooms = nil
}

// removeMember drops e from room. Caller holds e.mu.
func (h *Hub) removeMember(room string, e *entry) {
	s := h.shardFor(room)
	s.mu.Lock()
	defer s.mu.Unlock()

	members := s.rooms[room]
	if members[e.id] != e {
		return
	}
	delete(members, e.id)
	if len(members) == 0 {
		delete(s.rooms, room)
	}
}

// Dispatch sends event with payload to every connection in scope.
//
// The payload is copied and a "timestamp" field (RFC 3339, UTC) is added;
// the caller's map is never modified. Returns the number of connections the
// message was handed to without error.
func (h *Hub) Dispatch(event string, payload map[string]any, scope Scope) int {
	data := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		data[k] = v
	}
	data["timestamp"] = h.now().UTC().Format(time.RFC3339Nano)
	msg := Message{Event: event, Data: data}

	recipients := h.recipients(scope)
	delivered := 0
	for _, e := range recipients {
		if h.send(e, msg) {
			delivered++
		}
	}

	slog.Debug("notification dispatched",
		"event", event,
		"scope", scope.String(),
		"recipients", len(recipients),
		"delivered", delivered)
	return delivered
}

// recipients snapshots the target connections under a read lock.
func (h *Hub) recipients(scope Scope) []*entry {
	if scope.broadcast {
		h.connsMu.RLock()
		defer h.connsMu.RUnlock()
		out := make([]*entry, 0, len(h.conns))
		for _, e := range h.conns {
			out = append(out, e)
		}
		return out
	}

	s := h.shardFor(scope.room)
	s.mu.RLock()
	defer s.mu.RUnlock()
	members := s.rooms[scope.room]
	out := make([]*entry, 0, len(members))
	for _, e := range members {
		out = append(out, e)
	}
	return out
}

// send delivers msg to one connection, containing any failure.
func (h *Hub) send(e *entry, msg Message) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("notification send panicked",
				"conn_id", e.id,
				"event", msg.Event,
				"panic", r)
			ok = false
		}
	}()

	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return false
	}

	if err := e.conn.Send(msg); err != nil {
		slog.Warn("notification send failed",
			"conn_id", e.id,
			"event", msg.Event,
			"error", err)
		return false
	}
	return true
}

// ConnectedCount returns the number of registered connections.
func (h *Hub) ConnectedCount() int {
	h.connsMu.RLock()
	defer h.connsMu.RUnlock()
	return len(h.conns)
}

// RoomSize returns the number of connections in room.
func (h *Hub) RoomSize(room string) int {
	s := h.shardFor(room)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms[room])
}

// Rooms returns the rooms a connection has joined.
func (h *Hub) Rooms(connID string) []string {
	e, ok := h.lookup(connID)
	if !ok {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.rooms))
	for room := range e.rooms {
		out = append(out, room)
	}
	return out
}

// Close disconnects every connection.
func (h *Hub) Close() {
	h.connsMu.Lock()
	all := h.conns
	h.conns = make(map[string]*entry)
	h.connsMu.Unlock()

	for _, e := range all {
		h.release(e)
	}
	slog.Info("notification hub closed", "connections", len(all))
}
