package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/quizchess/internal/game"
	"github.com/park285/quizchess/internal/hub"
	"github.com/park285/quizchess/internal/matchmaking"
	"github.com/park285/quizchess/internal/obslog"
	"github.com/park285/quizchess/internal/protocol"
	"github.com/park285/quizchess/pkg/chessdto"
)

func (s *Server) accept(w http.ResponseWriter, r *http.Request) (*websocket.Conn, error) {
	return websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:  s.opts.AllowedOrigins,
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
}

// pump writes queued frames until the hub drops the connection or ctx ends.
func pump(ctx context.Context, ws *websocket.Conn, c *hub.Conn) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.Done():
			if ctx.Err() == nil {
				_ = ws.Close(websocket.StatusPolicyViolation, "connection too slow")
			}
			return
		case frame := <-c.Send():
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := ws.Write(wctx, websocket.MessageText, frame)
			cancel()
			if err != nil {
				obslog.L().Debug("ws_write_failed", zap.String("conn_id", c.ID), zap.Error(err))
				return
			}
		}
	}
}

func (s *Server) gameSocket(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	sess := s.games.Get(code)
	if sess == nil {
		writeError(w, http.StatusNotFound, game.ErrGameNotFound.Error())
		return
	}
	ws, err := s.accept(w, r)
	if err != nil {
		obslog.L().Warn("ws_accept_failed", zap.String("code", code), zap.Error(err))
		return
	}
	defer ws.Close(websocket.StatusNormalClosure, "bye")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	c := hub.NewConn(identity(r), s.opts.SendBuffer)
	if _, err := s.hub.Join(ctx, code, c, sess); err != nil {
		obslog.L().Warn("ws_join_failed", zap.String("code", code), zap.Error(err))
		_ = ws.Close(websocket.StatusInternalError, "join failed")
		return
	}
	defer func() {
		cancel()
		s.hub.Leave(c)
	}()
	s.hub.Send(c, protocol.MustEncode(protocol.TypeGameUpdate, sess.Snapshot()))

	go pump(ctx, ws, c)

	for {
		rctx, rcancel := context.WithTimeout(ctx, readTimeout)
		_, data, err := ws.Read(rctx)
		rcancel()
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			default:
				obslog.L().Debug("ws_read_end", zap.String("code", code), zap.String("conn_id", c.ID), zap.Error(err))
			}
			return
		}
		cmd, err := protocol.DecodeGameCommand(data)
		if err != nil {
			s.rejectFrame(c, err)
			continue
		}
		s.handleGame(ctx, sess, c, cmd)
	}
}

func (s *Server) handleGame(ctx context.Context, sess *game.Session, c *hub.Conn, cmd protocol.GameCommand) {
	role := c.Role()
	var err error
	switch m := cmd.(type) {
	case protocol.Move:
		err = sess.SubmitMove(ctx, role, game.MoveInput{
			From:       m.FromSquare,
			To:         m.ToSquare,
			Promotion:  m.Promotion,
			MoveNumber: m.MoveNumber,
		})
	case protocol.QuizAnswer:
		err = sess.SubmitQuizAnswer(ctx, role, m.MoveNumber, m.Answer)
		if err != nil && game.IsValidation(err) {
			s.hub.Send(c, protocol.MustEncode(protocol.TypeQuizFailed, chessdto.QuizFailed{
				Reason:     game.Reason(err),
				MoveNumber: m.MoveNumber,
				FEN:        sess.FEN(),
			}))
			return
		}
	case protocol.Resign:
		err = sess.Resign(ctx, role)
	case protocol.DrawOffer:
		err = sess.OfferDraw(ctx, role)
	case protocol.DrawAccept:
		err = sess.AcceptDraw(ctx, role)
	case protocol.Ping:
		s.hub.Send(c, protocol.MustEncode(protocol.TypePong, nil))
	}
	if err != nil {
		s.rejectCommand(c, sess.Code(), err)
	}
}

func (s *Server) rejectCommand(c *hub.Conn, code string, err error) {
	var (
		typ    string
		reason = game.Reason(err)
	)
	switch {
	case game.IsPermission(err):
		typ = protocol.TypePermissionDenied
	case game.IsValidation(err):
		typ = protocol.TypeMoveInvalid
	default:
		typ = protocol.TypeError
		obslog.L().Error("game_command_failed", zap.String("code", code), zap.String("conn_id", c.ID), zap.Error(err))
	}
	obslog.L().Debug("game_command_rejected",
		zap.String("code", code),
		zap.String("user_id", c.UserID),
		zap.String("role", string(c.Role())),
		zap.String("reason", reason),
	)
	s.hub.Send(c, protocol.MustEncode(typ, chessdto.ReasonPayload{Reason: reason}))
}

func (s *Server) rejectFrame(c *hub.Conn, err error) {
	reason := "invalid message"
	var unknown *protocol.UnknownTypeError
	if errors.As(err, &unknown) {
		reason = "unknown message type"
	}
	obslog.L().Info("ws_frame_rejected", zap.String("conn_id", c.ID), zap.Error(err))
	s.hub.Send(c, protocol.MustEncode(protocol.TypeError, chessdto.ReasonPayload{Reason: reason}))
}

func (s *Server) matchSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := s.accept(w, r)
	if err != nil {
		obslog.L().Warn("ws_accept_failed", zap.Error(err))
		return
	}
	user := identity(r)
	if user == "" {
		payload, _ := json.Marshal(chessdto.ReasonPayload{Reason: matchmaking.ErrUnauthenticated.Error()})
		ctx, cancel := context.WithTimeout(r.Context(), writeTimeout)
		_ = wsjson.Write(ctx, ws, protocol.Envelope{Type: protocol.TypeError, Payload: payload})
		cancel()
		_ = ws.Close(websocket.StatusCode(StatusUnauthenticated), "authentication required")
		return
	}
	defer ws.Close(websocket.StatusNormalClosure, "bye")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	c := hub.NewConn(user, s.opts.SendBuffer)
	s.hub.RegisterUser(c)
	go pump(ctx, ws, c)

	var searchID string
	defer func() {
		if searchID != "" && s.queue != nil {
			s.queue.Cancel(searchID)
		}
		cancel()
		s.hub.UnregisterUser(c)
	}()

	for {
		rctx, rcancel := context.WithTimeout(ctx, readTimeout)
		_, data, err := ws.Read(rctx)
		rcancel()
		if err != nil {
			return
		}
		cmd, err := protocol.DecodeMatchCommand(data)
		if err != nil {
			s.rejectFrame(c, err)
			continue
		}
		switch cmd.(type) {
		case protocol.FindGame:
			searchID = s.findGame(ctx, c)
		case protocol.CancelSearch:
			s.cancelSearch(c, searchID)
			searchID = ""
		case protocol.Ping:
			s.hub.Send(c, protocol.MustEncode(protocol.TypePong, nil))
		}
	}
}

// findGame queues the user and returns the search id, or "" on failure.
func (s *Server) findGame(ctx context.Context, c *hub.Conn) string {
	if s.queue == nil {
		s.sendReason(c, matchmaking.ErrQueueUnavailable.Error())
		return ""
	}
	elo, ratio := s.opts.DefaultElo, 0.0
	p, err := s.repo.GetProfile(ctx, c.UserID)
	if err != nil {
		obslog.L().Warn("profile_load_failed", zap.String("user_id", c.UserID), zap.Error(err))
	}
	if p != nil {
		elo, ratio = p.Rating, p.WinRatio()
	}
	entry, m, err := s.queue.AddEntry(ctx, c.UserID, elo, ratio)
	if entry.SearchID == "" {
		s.sendReason(c, err.Error())
		return ""
	}
	if m != nil {
		return ""
	}
	return entry.SearchID
}

func (s *Server) cancelSearch(c *hub.Conn, searchID string) {
	if searchID == "" || s.queue == nil || !s.queue.Cancel(searchID) {
		s.sendReason(c, "no active search to cancel")
		return
	}
	s.hub.Send(c, protocol.MustEncode(protocol.TypeSearchCancelled, chessdto.SearchCancelled{Message: "Search cancelled"}))
}

func (s *Server) sendReason(c *hub.Conn, reason string) {
	s.hub.Send(c, protocol.MustEncode(protocol.TypeError, chessdto.ReasonPayload{Reason: reason}))
}
