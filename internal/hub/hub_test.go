package hub

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/park285/quizchess/internal/domain"
	"github.com/park285/quizchess/internal/protocol"
	"github.com/park285/quizchess/pkg/chessdto"
)

// seatTable mimics the game: first user white, second black, rest spectators.
type seatTable struct {
	white, black string
}

func (s *seatTable) Join(_ context.Context, userID string) (domain.Role, bool, error) {
	switch {
	case userID == "":
		return domain.RoleSpectator, false, nil
	case userID == s.white:
		return domain.RoleWhite, false, nil
	case userID == s.black:
		return domain.RoleBlack, false, nil
	case s.white == "":
		s.white = userID
		return domain.RoleWhite, false, nil
	case s.black == "":
		s.black = userID
		return domain.RoleBlack, true, nil
	}
	return domain.RoleSpectator, false, nil
}

func recv(t *testing.T, c *Conn) protocol.Envelope {
	t.Helper()
	select {
	case frame := <-c.Send():
		var env protocol.Envelope
		require.NoError(t, json.Unmarshal(frame, &env))
		return env
	case <-time.After(100 * time.Millisecond):
		t.Fatalf("conn %s received nothing", c.UserID)
	}
	return protocol.Envelope{}
}

func requireQuiet(t *testing.T, c *Conn) {
	t.Helper()
	select {
	case frame := <-c.Send():
		t.Fatalf("conn %s got unexpected frame %s", c.UserID, frame)
	default:
	}
}

func TestJoinSeatsAndAnnounces(t *testing.T) {
	h := New()
	ctx := context.Background()
	seats := &seatTable{}

	alice := NewConn("alice", 8)
	role, err := h.Join(ctx, "G1", alice, seats)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleWhite, role)
	requireQuiet(t, alice)

	bob := NewConn("bob", 8)
	role, err = h.Join(ctx, "G1", bob, seats)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleBlack, role)
	assert.Equal(t, protocol.TypeJoinedAsBlack, recv(t, bob).Type)
	env := recv(t, alice)
	assert.Equal(t, protocol.TypeBlackPlayerJoined, env.Type)
	var ev chessdto.SeatEvent
	require.NoError(t, json.Unmarshal(env.Payload, &ev))
	assert.Equal(t, "bob", ev.UserID)

	watcher := NewConn("", 8)
	role, err = h.Join(ctx, "G1", watcher, seats)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleSpectator, role)
	assert.Equal(t, protocol.TypeSpectatorJoined, recv(t, alice).Type)
	assert.Equal(t, protocol.TypeSpectatorJoined, recv(t, bob).Type)
	requireQuiet(t, watcher)

	// 재접속한 플레이어는 player_joined
	alice2 := NewConn("alice", 8)
	role, err = h.Join(ctx, "G1", alice2, seats)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleWhite, role)
	assert.Equal(t, protocol.TypePlayerJoined, recv(t, bob).Type)
	assert.Equal(t, 4, h.RoomSize("G1"))
}

func TestJoinErrorRegistersNothing(t *testing.T) {
	h := New()
	_, err := h.Join(context.Background(), "G1", NewConn("x", 1), failingSeater{})
	require.Error(t, err)
	assert.Zero(t, h.RoomSize("G1"))
}

type failingSeater struct{}

func (failingSeater) Join(context.Context, string) (domain.Role, bool, error) {
	return "", false, errors.New("game not found")
}

func TestSendRoleAndRoomIsolation(t *testing.T) {
	h := New()
	ctx := context.Background()
	seats := &seatTable{}
	white := NewConn("w", 8)
	black := NewConn("b", 8)
	watcher := NewConn("", 8)
	other := NewConn("o", 8)
	for _, c := range []*Conn{white, black, watcher} {
		_, err := h.Join(ctx, "G1", c, seats)
		require.NoError(t, err)
	}
	_, err := h.Join(ctx, "G2", other, &seatTable{})
	require.NoError(t, err)
	for _, c := range []*Conn{white, black, watcher} {
		for len(c.Send()) > 0 {
			<-c.Send()
		}
	}

	h.SendRole("G1", domain.RoleWhite, protocol.MustEncode(protocol.TypeQuizRequired, nil))
	assert.Equal(t, protocol.TypeQuizRequired, recv(t, white).Type)
	requireQuiet(t, black)
	requireQuiet(t, watcher)

	h.Broadcast("G1", protocol.MustEncode(protocol.TypeGameUpdate, nil))
	for _, c := range []*Conn{white, black, watcher} {
		assert.Equal(t, protocol.TypeGameUpdate, recv(t, c).Type)
	}
	requireQuiet(t, other)
}

func TestLeaveAnnouncesOnlySpectators(t *testing.T) {
	h := New()
	ctx := context.Background()
	seats := &seatTable{}
	white := NewConn("w", 8)
	black := NewConn("b", 8)
	watcher := NewConn("", 8)
	for _, c := range []*Conn{white, black, watcher} {
		_, err := h.Join(ctx, "G1", c, seats)
		require.NoError(t, err)
	}
	for len(white.Send()) > 0 {
		<-white.Send()
	}

	h.Leave(black)
	requireQuiet(t, white)
	select {
	case <-black.Done():
	default:
		t.Fatal("left connection must be closed")
	}

	h.Leave(watcher)
	assert.Equal(t, protocol.TypeSpectatorLeft, recv(t, white).Type)
	assert.Equal(t, 1, h.RoomSize("G1"))

	// 두 번 호출해도 안전
	h.Leave(watcher)
	requireQuiet(t, white)
}

func TestSlowConnectionDropped(t *testing.T) {
	h := New()
	ctx := context.Background()
	seats := &seatTable{}
	fast := NewConn("fast", 16)
	slow := NewConn("slow", 1)
	_, err := h.Join(ctx, "G1", fast, seats)
	require.NoError(t, err)
	_, err = h.Join(ctx, "G1", slow, seats)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		h.Broadcast("G1", protocol.MustEncode(protocol.TypePong, nil))
	}
	select {
	case <-slow.Done():
	default:
		t.Fatal("slow connection must be dropped")
	}
	assert.Equal(t, 1, h.RoomSize("G1"))
	assert.GreaterOrEqual(t, len(fast.Send()), 5)
}

func TestSlowSpectatorDropIsAnnounced(t *testing.T) {
	h := New()
	ctx := context.Background()
	seats := &seatTable{}
	white := NewConn("w", 16)
	watcher := NewConn("", 1)
	for _, c := range []*Conn{white, watcher} {
		_, err := h.Join(ctx, "G1", c, seats)
		require.NoError(t, err)
	}
	for len(white.Send()) > 0 {
		<-white.Send()
	}

	h.Broadcast("G1", protocol.MustEncode(protocol.TypePong, nil))
	h.Broadcast("G1", protocol.MustEncode(protocol.TypePong, nil))
	select {
	case <-watcher.Done():
	default:
		t.Fatal("slow spectator must be dropped")
	}

	assert.Equal(t, protocol.TypePong, recv(t, white).Type)
	assert.Equal(t, protocol.TypePong, recv(t, white).Type)
	left := recv(t, white)
	require.Equal(t, protocol.TypeSpectatorLeft, left.Type)
	var ev chessdto.SeatEvent
	require.NoError(t, json.Unmarshal(left.Payload, &ev))
	assert.Equal(t, string(domain.RoleSpectator), ev.Role)
	assert.Equal(t, 1, h.RoomSize("G1"))

	// 전송 루프가 끝나며 Leave를 불러도 중복 알림 없음
	h.Leave(watcher)
	requireQuiet(t, white)
}

func TestSendUser(t *testing.T) {
	h := New()
	a1 := NewConn("a", 4)
	a2 := NewConn("a", 4)
	b := NewConn("b", 4)
	h.RegisterUser(a1)
	h.RegisterUser(a2)
	h.RegisterUser(b)

	h.SendUser("a", protocol.MustEncode(protocol.TypeGameFound, nil))
	assert.Equal(t, protocol.TypeGameFound, recv(t, a1).Type)
	assert.Equal(t, protocol.TypeGameFound, recv(t, a2).Type)
	requireQuiet(t, b)

	h.UnregisterUser(a1)
	h.SendUser("a", protocol.MustEncode(protocol.TypePong, nil))
	requireQuiet(t, a1)
	assert.Equal(t, protocol.TypePong, recv(t, a2).Type)
}
