// Package protocol defines the {type, payload} envelope and the closed set of
// commands each channel accepts.
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/park285/quizchess/pkg/chessdto"
)

// Envelope is the frame used in both directions.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// client → server
const (
	TypeMove       = "move"
	TypeQuizAnswer = "quiz_answer"
	TypeResign     = "resign"
	TypeDrawOffer  = "draw_offer"
	TypeDrawAccept = "draw_accept"
	TypePing       = "ping"

	TypeFindGame     = "find_game"
	TypeCancelSearch = "cancel_search"
)

// server → client
const (
	TypeQuizRequired      = "quiz_required"
	TypeQuizPending       = "quiz_pending"
	TypeQuizFailed        = "quiz_failed"
	TypeGameUpdate        = "game_update"
	TypeGameOver          = "game_over"
	TypeMoveInvalid       = "move_invalid"
	TypePermissionDenied  = "permission_denied"
	TypePlayerJoined      = "player_joined"
	TypeSpectatorJoined   = "spectator_joined"
	TypeSpectatorLeft     = "spectator_left"
	TypeBlackPlayerJoined = "black_player_joined"
	TypeJoinedAsBlack     = "joined_as_black"
	TypePong              = "pong"
	TypeError             = "error"

	TypeSearchStarted   = "search_started"
	TypeSearchCancelled = "search_cancelled"
	TypeGameFound       = "game_found"
)

// UnknownTypeError is returned for a well-formed envelope whose type the channel does not accept.
type UnknownTypeError struct {
	Channel string
	Type    string
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("protocol: unknown %s message type %q", e.Channel, e.Type)
}

// GameCommand is one of Move, QuizAnswer, Resign, DrawOffer, DrawAccept, Ping.
type GameCommand interface{ gameCommand() }

type Move struct{ chessdto.MoveRequest }
type QuizAnswer struct{ chessdto.QuizAnswerRequest }
type Resign struct{}
type DrawOffer struct{}
type DrawAccept struct{}
type Ping struct{}

func (Move) gameCommand()       {}
func (QuizAnswer) gameCommand() {}
func (Resign) gameCommand()     {}
func (DrawOffer) gameCommand()  {}
func (DrawAccept) gameCommand() {}
func (Ping) gameCommand()       {}

// MatchCommand is one of FindGame, CancelSearch, Ping.
type MatchCommand interface{ matchCommand() }

type FindGame struct{}
type CancelSearch struct{}

func (FindGame) matchCommand()     {}
func (CancelSearch) matchCommand() {}
func (Ping) matchCommand()         {}

// DecodeGameCommand parses a game channel frame.
func DecodeGameCommand(raw []byte) (GameCommand, error) {
	env, err := decodeEnvelope(raw)
	if err != nil {
		return nil, err
	}
	switch env.Type {
	case TypeMove:
		var m chessdto.MoveRequest
		if err := decodePayload(env, &m); err != nil {
			return nil, err
		}
		m.FromSquare = strings.ToLower(strings.TrimSpace(m.FromSquare))
		m.ToSquare = strings.ToLower(strings.TrimSpace(m.ToSquare))
		if m.FromSquare == "" || m.ToSquare == "" {
			return nil, fmt.Errorf("protocol: move requires from_square and to_square")
		}
		return Move{m}, nil
	case TypeQuizAnswer:
		var a chessdto.QuizAnswerRequest
		if err := decodePayload(env, &a); err != nil {
			return nil, err
		}
		return QuizAnswer{a}, nil
	case TypeResign:
		return Resign{}, nil
	case TypeDrawOffer:
		return DrawOffer{}, nil
	case TypeDrawAccept:
		return DrawAccept{}, nil
	case TypePing:
		return Ping{}, nil
	}
	return nil, &UnknownTypeError{Channel: "game", Type: env.Type}
}

// DecodeMatchCommand parses a matchmaking channel frame.
func DecodeMatchCommand(raw []byte) (MatchCommand, error) {
	env, err := decodeEnvelope(raw)
	if err != nil {
		return nil, err
	}
	switch env.Type {
	case TypeFindGame:
		return FindGame{}, nil
	case TypeCancelSearch:
		return CancelSearch{}, nil
	case TypePing:
		return Ping{}, nil
	}
	return nil, &UnknownTypeError{Channel: "matchmaking", Type: env.Type}
}

// Encode builds a frame. A nil payload encodes as {}.
func Encode(typ string, payload any) ([]byte, error) {
	if payload == nil {
		payload = struct{}{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("protocol: encode %s: %w", typ, err)
	}
	return json.Marshal(Envelope{Type: typ, Payload: raw})
}

// MustEncode is Encode for payloads that always marshal.
func MustEncode(typ string, payload any) []byte {
	b, err := Encode(typ, payload)
	if err != nil {
		panic(err)
	}
	return b
}

func decodeEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("protocol: bad frame: %w", err)
	}
	env.Type = strings.TrimSpace(env.Type)
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("protocol: missing type")
	}
	return env, nil
}

func decodePayload(env Envelope, dst any) error {
	if len(env.Payload) == 0 || string(env.Payload) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Payload, dst); err != nil {
		return fmt.Errorf("protocol: bad %s payload: %w", env.Type, err)
	}
	return nil
}
