// Package hub binds live connections to games and roles and fans frames out to them.
package hub

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/park285/quizchess/internal/domain"
	"github.com/park285/quizchess/internal/obslog"
	"github.com/park285/quizchess/internal/protocol"
	"github.com/park285/quizchess/pkg/chessdto"
)

const DefaultSendBuffer = 32

// Conn is one client connection. The transport drains Send and stops when Done closes.
type Conn struct {
	ID     string
	UserID string

	mu   sync.Mutex
	code string
	role domain.Role

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func NewConn(userID string, buffer int) *Conn {
	if buffer <= 0 {
		buffer = DefaultSendBuffer
	}
	return &Conn{
		ID:     uuid.NewString(),
		UserID: userID,
		send:   make(chan []byte, buffer),
		done:   make(chan struct{}),
	}
}

func (c *Conn) Send() <-chan []byte   { return c.send }
func (c *Conn) Done() <-chan struct{} { return c.done }
func (c *Conn) close()                { c.closeOnce.Do(func() { close(c.done) }) }

func (c *Conn) bind(code string, r domain.Role) {
	c.mu.Lock()
	c.code, c.role = code, r
	c.mu.Unlock()
}

func (c *Conn) Code() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.code
}

func (c *Conn) Role() domain.Role {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.role
}

// offer never blocks; false means the queue is full.
func (c *Conn) offer(frame []byte) bool {
	select {
	case <-c.done:
		return true
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// Seater resolves the role of a user joining a game.
type Seater interface {
	Join(ctx context.Context, userID string) (role domain.Role, seatedBlack bool, err error)
}

// Hub is the registry code -> connections plus userID -> matchmaking connections.
// It holds routing only, never game state.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[string]*Conn
	users map[string]map[string]*Conn
}

func New() *Hub {
	return &Hub{
		rooms: make(map[string]map[string]*Conn),
		users: make(map[string]map[string]*Conn),
	}
}

// Join seats c through the game and registers it in the room. Seat events go out
// after registration so the joiner sees its own joined_as_black.
func (h *Hub) Join(ctx context.Context, code string, c *Conn, seater Seater) (domain.Role, error) {
	role, seatedBlack, err := seater.Join(ctx, c.UserID)
	if err != nil {
		return "", err
	}
	c.bind(code, role)

	h.mu.Lock()
	room := h.rooms[code]
	if room == nil {
		room = make(map[string]*Conn)
		h.rooms[code] = room
	}
	room[c.ID] = c
	size := len(room)
	h.mu.Unlock()

	obslog.L().Info("hub_join",
		zap.String("code", code),
		zap.String("conn_id", c.ID),
		zap.String("user_id", c.UserID),
		zap.String("role", string(role)),
		zap.Int("room_size", size),
	)

	ev := chessdto.SeatEvent{UserID: c.UserID, Role: string(role), Code: code}
	switch {
	case seatedBlack:
		h.Send(c, protocol.MustEncode(protocol.TypeJoinedAsBlack, ev))
		h.BroadcastExcept(code, c.ID, protocol.MustEncode(protocol.TypeBlackPlayerJoined, ev))
	case role == domain.RoleSpectator:
		h.BroadcastExcept(code, c.ID, protocol.MustEncode(protocol.TypeSpectatorJoined, ev))
	default:
		h.BroadcastExcept(code, c.ID, protocol.MustEncode(protocol.TypePlayerJoined, ev))
	}
	return role, nil
}

// Leave unregisters c. A departing player keeps the seat; only spectators are announced.
func (h *Hub) Leave(c *Conn) {
	code := c.Code()
	h.mu.Lock()
	ok := h.removeLocked(code, c.ID)
	h.mu.Unlock()
	c.close()
	if !ok {
		return
	}
	obslog.L().Info("hub_leave", zap.String("code", code), zap.String("conn_id", c.ID), zap.String("role", string(c.Role())))
	h.announceLeft(code, c)
}

func (h *Hub) announceLeft(code string, c *Conn) {
	if c.Role() != domain.RoleSpectator {
		return
	}
	h.Broadcast(code, protocol.MustEncode(protocol.TypeSpectatorLeft, chessdto.SeatEvent{UserID: c.UserID, Role: string(domain.RoleSpectator), Code: code}))
}

// removeLocked reports whether id was still in the room.
func (h *Hub) removeLocked(code, id string) bool {
	room := h.rooms[code]
	if room == nil {
		return false
	}
	_, ok := room[id]
	delete(room, id)
	if len(room) == 0 {
		delete(h.rooms, code)
	}
	return ok
}

// Broadcast sends frame to every connection of the game.
func (h *Hub) Broadcast(code string, frame []byte) {
	h.BroadcastExcept(code, "", frame)
}

func (h *Hub) BroadcastExcept(code, exceptID string, frame []byte) {
	h.mu.RLock()
	targets := make([]*Conn, 0, len(h.rooms[code]))
	for id, c := range h.rooms[code] {
		if id != exceptID {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()
	h.deliver(targets, frame)
}

// SendRole sends frame to the connections of the game holding role.
func (h *Hub) SendRole(code string, role domain.Role, frame []byte) {
	h.mu.RLock()
	var targets []*Conn
	for _, c := range h.rooms[code] {
		if c.Role() == role {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()
	h.deliver(targets, frame)
}

// Send queues frame for a single connection.
func (h *Hub) Send(c *Conn, frame []byte) {
	h.deliver([]*Conn{c}, frame)
}

// deliver drops any connection whose queue is full; a slow reader never blocks the sender.
func (h *Hub) deliver(targets []*Conn, frame []byte) {
	var slow []*Conn
	for _, c := range targets {
		if !c.offer(frame) {
			slow = append(slow, c)
		}
	}
	if len(slow) == 0 {
		return
	}
	var left []*Conn
	h.mu.Lock()
	for _, c := range slow {
		if h.removeLocked(c.Code(), c.ID) {
			left = append(left, c)
		}
		h.removeUserLocked(c)
	}
	h.mu.Unlock()
	for _, c := range slow {
		obslog.L().Warn("hub_drop_slow_conn", zap.String("code", c.Code()), zap.String("conn_id", c.ID), zap.String("user_id", c.UserID))
		c.close()
	}
	// Leave finds these already gone, so the room hears about them here.
	for _, c := range left {
		h.announceLeft(c.Code(), c)
	}
}

// RegisterUser adds a matchmaking connection addressed by user id.
func (h *Hub) RegisterUser(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.users[c.UserID]
	if set == nil {
		set = make(map[string]*Conn)
		h.users[c.UserID] = set
	}
	set[c.ID] = c
}

func (h *Hub) UnregisterUser(c *Conn) {
	h.mu.Lock()
	h.removeUserLocked(c)
	h.mu.Unlock()
	c.close()
}

func (h *Hub) removeUserLocked(c *Conn) {
	set := h.users[c.UserID]
	if set == nil {
		return
	}
	delete(set, c.ID)
	if len(set) == 0 {
		delete(h.users, c.UserID)
	}
}

// SendUser reaches every matchmaking connection of a user.
func (h *Hub) SendUser(userID string, frame []byte) {
	h.mu.RLock()
	targets := make([]*Conn, 0, len(h.users[userID]))
	for _, c := range h.users[userID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()
	h.deliver(targets, frame)
}

// RoomSize counts the connections bound to a game.
func (h *Hub) RoomSize(code string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[code])
}
