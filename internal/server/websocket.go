package server

import (
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/roach88/teamtask/internal/domain"
	"github.com/roach88/teamtask/internal/notify"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	maxMessage = 4096
)

// Client → server message types and their acknowledgements.
const (
	msgJoinRoom     = "join-room"
	msgLeaveRoom    = "leave-room"
	msgJoinUserRoom = "join-user-room"
	msgJoinTeamRoom = "join-team-room"

	ackJoinedRoom     = "joined-room"
	ackLeftRoom       = "left-room"
	ackJoinedUserRoom = "joined-user-room"
	ackJoinedTeamRoom = "joined-team-room"

	eventWelcome = "welcome"
	eventError   = "error"
)

var (
	errClientClosed = errors.New("client closed")
	errSendBlocked  = errors.New("send buffer full")
)

// clientMessage is what clients send: an event name and a string
// argument (a room, user ID or team ID depending on the event).
type clientMessage struct {
	Event string `json:"event"`
	Data  string `json:"data"`
}

// wsClient adapts one WebSocket connection to notify.Conn.
//
// Send only enqueues; writePump owns every write to the socket.
type wsClient struct {
	id    string
	actor domain.AuthContext
	conn  *websocket.Conn
	send  chan notify.Message

	done      chan struct{}
	closeOnce sync.Once
}

// Send queues msg without blocking. A full buffer drops the message.
func (c *wsClient) Send(msg notify.Message) error {
	select {
	case <-c.done:
		return errClientClosed
	default:
	}
	select {
	case c.send <- msg:
		return nil
	case <-c.done:
		return errClientClosed
	default:
		return errSendBlocked
	}
}

func (c *wsClient) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// handleWebSocket authenticates the handshake, upgrades, greets the client
// and serves it until it disconnects.
func (s *Server) handleWebSocket(c *gin.Context) {
	actor, ok := s.actorFromRequest(c, bearerToken(c.Request))
	if !ok {
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Debug("websocket upgrade failed", "error", err)
		return
	}

	client := &wsClient{
		id:    s.ids.Generate(),
		actor: actor,
		conn:  conn,
		send:  make(chan notify.Message, s.sendBuffer),
		done:  make(chan struct{}),
	}

	s.clientsMu.Lock()
	s.clients[client.id] = client
	s.clientsMu.Unlock()
	s.deps.Hub.Register(client.id, client)

	slog.Info("websocket connected",
		"conn_id", client.id,
		"user_id", actor.UserID(),
		"connections", s.deps.Hub.ConnectedCount())

	client.Send(notify.Message{Event: eventWelcome, Data: map[string]any{
		"message":   "Welcome to the task notification stream",
		"socket_id": client.id,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	}})

	go s.writePump(client)
	s.readPump(client)
}

// readPump handles client messages until the connection fails, then
// releases every room membership.
func (s *Server) readPump(c *wsClient) {
	defer func() {
		s.deps.Hub.Disconnect(c.id)
		s.clientsMu.Lock()
		delete(s.clients, c.id)
		s.clientsMu.Unlock()
		c.close()
		slog.Info("websocket disconnected",
			"conn_id", c.id,
			"user_id", c.actor.UserID(),
			"connections", s.deps.Hub.ConnectedCount())
	}()

	c.conn.SetReadLimit(maxMessage)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg clientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("websocket read failed", "conn_id", c.id, "error", err)
			}
			return
		}
		c.Send(s.handleClientMessage(c, msg))
	}
}

// writePump drains the send queue to the socket and keeps it alive.
func (s *Server) writePump(c *wsClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				slog.Debug("websocket write failed", "conn_id", c.id, "error", err)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// handleClientMessage applies a join or leave and returns the reply.
func (s *Server) handleClientMessage(c *wsClient, msg clientMessage) notify.Message {
	arg := strings.TrimSpace(msg.Data)
	if arg == "" {
		return errorMessage(msg.Event, "missing data")
	}

	var room, ack string
	var data map[string]any
	switch msg.Event {
	case msgJoinRoom:
		room, ack, data = arg, ackJoinedRoom, map[string]any{"room": arg}
	case msgJoinUserRoom:
		room, ack, data = notify.UserRoom(arg), ackJoinedUserRoom, map[string]any{"user_id": arg}
	case msgJoinTeamRoom:
		room, ack, data = notify.TeamRoom(arg), ackJoinedTeamRoom, map[string]any{"team_id": arg}
	case msgLeaveRoom:
		if err := s.deps.Hub.Leave(c.id, arg); err != nil {
			return errorMessage(msg.Event, err.Error())
		}
		slog.Debug("websocket left room", "conn_id", c.id, "room", arg)
		return notify.Message{Event: ackLeftRoom, Data: map[string]any{"room": arg}}
	default:
		return errorMessage(msg.Event, "unknown event")
	}

	if !mayJoin(c.actor, room) {
		slog.Warn("websocket join denied",
			"conn_id", c.id,
			"user_id", c.actor.UserID(),
			"room", room)
		return errorMessage(msg.Event, "access denied")
	}
	if err := s.deps.Hub.Join(c.id, room); err != nil {
		return errorMessage(msg.Event, err.Error())
	}
	slog.Debug("websocket joined room", "conn_id", c.id, "room", room)
	return notify.Message{Event: ack, Data: data}
}

// mayJoin limits every actor to their own user room and, for members and
// managers, their own team room. Admins have no team-task read access and
// get no team room.
func mayJoin(actor domain.AuthContext, room string) bool {
	if room == notify.UserRoom(actor.UserID()) {
		return true
	}
	if actor.Role() == domain.RoleAdmin {
		return false
	}
	return actor.TeamID() != "" && room == notify.TeamRoom(actor.TeamID())
}

func errorMessage(event, message string) notify.Message {
	return notify.Message{Event: eventError, Data: map[string]any{
		"event":   event,
		"message": message,
	}}
}
