package game

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/park285/quizchess/internal/ai"
	"github.com/park285/quizchess/internal/domain"
	"github.com/park285/quizchess/internal/obslog"
	"github.com/park285/quizchess/internal/protocol"
	"github.com/park285/quizchess/internal/quiz"
	"github.com/park285/quizchess/internal/rating"
	"github.com/park285/quizchess/internal/rules"
	"github.com/park285/quizchess/internal/store"
	"github.com/park285/quizchess/pkg/chessdto"
)

// reasonAIUnavailable ends a vs-AI game nobody can answer for; it settles no rating.
const reasonAIUnavailable = "ai_unavailable"

type square struct{ from, to string }

type stagedMove struct {
	side     domain.Side
	playerID string
	from     string
	to       string
	verdict  rules.Verdict
	number   int
}

type pendingQuiz struct {
	id       uint64
	question quiz.Question
	move     stagedMove
	issuedAt time.Time
	deadline time.Time
	timer    Timer
}

// MoveInput is a move request from a seat holder. Piece and captured piece
// are derived from the position, not trusted from the client.
type MoveInput struct {
	From       string
	To         string
	Promotion  string
	MoveNumber int
}

// Session is one game's state machine. Every mutation holds mu.
type Session struct {
	mu   sync.Mutex
	deps *Deps
	quiz quiz.Provider

	code       string
	white      *domain.Player
	black      *domain.Player
	subjects   []string
	vsAI       bool
	difficulty ai.Difficulty

	fen     string
	history []string
	status  domain.GameStatus
	result  domain.Result
	reason  string
	moves   []domain.MoveRecord

	pending     *pendingQuiz
	quizSeq     uint64
	quizCount   int
	blocked     map[square]struct{}
	drawOfferBy domain.Side
	aiThinking  bool

	createdAt  time.Time
	updatedAt  time.Time
	lastMoveAt time.Time
	startedAt  time.Time
}

type sessionParams struct {
	code       string
	white      *domain.Player
	black      *domain.Player
	subjects   []string
	vsAI       bool
	difficulty ai.Difficulty
}

func newSession(deps *Deps, p sessionParams) *Session {
	now := deps.Clock.Now()
	s := &Session{
		deps:       deps,
		quiz:       quiz.WithFallback(deps.quizFor(p.code)),
		code:       p.code,
		white:      p.white,
		black:      p.black,
		subjects:   append([]string(nil), p.subjects...),
		vsAI:       p.vsAI,
		difficulty: p.difficulty,
		fen:        rules.StartFEN,
		status:     domain.StatusWaiting,
		blocked:    make(map[square]struct{}),
		createdAt:  now,
		updatedAt:  now,
	}
	if s.white != nil && s.black != nil {
		s.status = domain.StatusActive
		s.startedAt = now
	}
	return s
}

func (s *Session) Code() string { return s.code }

func (s *Session) Status() domain.GameStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Session) FEN() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fen
}

// Join resolves a user's role. The creator holds white; the first other
// authenticated user takes black and starts the game; everyone else spectates.
func (s *Session) Join(ctx context.Context, userID string) (role domain.Role, seatedBlack bool, err error) {
	userID = strings.TrimSpace(userID)
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case userID == "":
		return domain.RoleSpectator, false, nil
	case s.white != nil && s.white.UserID == userID:
		return domain.RoleWhite, false, nil
	case s.black != nil && s.black.UserID == userID:
		return domain.RoleBlack, false, nil
	case s.white == nil && s.status == domain.StatusWaiting:
		s.white = s.playerLocked(ctx, userID)
		s.touchLocked()
		return domain.RoleWhite, false, nil
	case s.black == nil && s.status == domain.StatusWaiting:
		s.black = s.playerLocked(ctx, userID)
		s.status = domain.StatusActive
		s.startedAt = s.deps.Clock.Now()
		s.touchLocked()
		obslog.L().Info("game_started", zap.String("code", s.code), zap.String("white", s.white.UserID), zap.String("black", userID))
		s.persistRecordLocked(ctx)
		s.deps.Notify.Broadcast(s.code, protocol.MustEncode(protocol.TypeGameUpdate, s.snapshotLocked()))
		return domain.RoleBlack, true, nil
	}
	return domain.RoleSpectator, false, nil
}

func (s *Session) playerLocked(ctx context.Context, userID string) *domain.Player {
	elo := s.deps.DefaultElo
	if p, err := s.deps.Repo.GetProfile(ctx, userID); err != nil {
		obslog.L().Warn("profile_load_failed", zap.String("user_id", userID), zap.Error(err))
	} else if p != nil {
		elo = p.Rating
	}
	return &domain.Player{UserID: userID, Elo: elo}
}

// SubmitMove validates and applies a move, or stages it behind a quiz when it
// captures a queen, rook or bishop.
func (s *Session) SubmitMove(ctx context.Context, role domain.Role, in MoveInput) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !role.IsPlayer() {
		return ErrNotAPlayer
	}
	if s.status != domain.StatusActive {
		return ErrNotActive
	}
	side := role.Side()
	if s.vsAI && side == domain.Black {
		return ErrAISeatReserved
	}
	if rules.SideToMove(s.fen) != side {
		return ErrNotYourTurn
	}
	expected := len(s.moves) + 1
	if in.MoveNumber > 0 && in.MoveNumber != expected {
		return ErrStaleMove
	}
	from := strings.ToLower(strings.TrimSpace(in.From))
	to := strings.ToLower(strings.TrimSpace(in.To))
	if _, ok := s.blocked[square{from, to}]; ok {
		return ErrBlockedMove
	}
	verdict, err := s.deps.Rules.IsLegal(s.fen, from, to, in.Promotion)
	if err != nil {
		obslog.L().Error("rules_unavailable", zap.String("code", s.code), zap.Error(err))
		return &CollaboratorError{Op: "rules", Err: err}
	}
	if !verdict.Legal {
		return ErrIllegalMove
	}
	staged := stagedMove{side: side, playerID: s.seat(side).UserID, from: from, to: to, verdict: verdict, number: expected}

	if !rules.IsTriggerPiece(verdict.Captured) {
		s.applyLocked(ctx, staged, false, nil)
		return nil
	}
	return s.issueQuizLocked(ctx, staged)
}

func (s *Session) issueQuizLocked(ctx context.Context, staged stagedMove) error {
	subject := "math"
	if len(s.subjects) > 0 {
		subject = s.subjects[s.quizCount%len(s.subjects)]
	}
	q, err := s.quiz.NextQuestion(ctx, subject)
	if err != nil {
		obslog.L().Error("quiz_unavailable", zap.String("code", s.code), zap.String("subject", subject), zap.Error(err))
		return &CollaboratorError{Op: "quiz", Err: err}
	}
	s.quizCount++
	s.quizSeq++
	now := s.deps.Clock.Now()
	id := s.quizSeq
	p := &pendingQuiz{
		id:       id,
		question: q,
		move:     staged,
		issuedAt: now,
		deadline: now.Add(s.deps.QuizTimeout),
	}
	p.timer = s.deps.Clock.AfterFunc(s.deps.QuizTimeout, func() { s.quizDeadline(id) })
	s.pending = p
	s.status = domain.StatusAwaitingQuiz
	s.touchLocked()

	obslog.L().Info("quiz_issued",
		zap.String("code", s.code),
		zap.String("player", staged.playerID),
		zap.Int("move_number", staged.number),
		zap.String("subject", subject),
		zap.String("captured", staged.verdict.Captured),
	)
	capturer := domain.RoleOf(staged.side)
	s.deps.Notify.SendRole(s.code, capturer, protocol.MustEncode(protocol.TypeQuizRequired, chessdto.QuizRequired{
		Question:   q.Text,
		Choices:    q.Labeled(),
		MoveNumber: staged.number,
		Subject:    subject,
		Deadline:   p.deadline.Unix(),
	}))
	notice := protocol.MustEncode(protocol.TypeQuizPending, chessdto.QuizPending{
		MoveNumber: staged.number,
		Subject:    subject,
		Deadline:   p.deadline.Unix(),
		Player:     string(staged.side),
	})
	s.deps.Notify.SendRole(s.code, domain.RoleOf(staged.side.Opponent()), notice)
	s.deps.Notify.SendRole(s.code, domain.RoleSpectator, notice)
	s.saveLiveLocked(ctx)
	return nil
}

// SubmitQuizAnswer resolves the pending quiz. The first of a real answer and
// the deadline wins; the other becomes a no-op.
func (s *Session) SubmitQuizAnswer(ctx context.Context, role domain.Role, moveNumber int, answer string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !role.IsPlayer() {
		return ErrNotAPlayer
	}
	if s.status != domain.StatusAwaitingQuiz || s.pending == nil {
		return ErrNoPendingQuiz
	}
	if domain.RoleOf(s.pending.move.side) != role {
		return ErrNotQuizOwner
	}
	if moveNumber != s.pending.move.number {
		return ErrStaleQuiz
	}
	correct := s.pending.question.Check(answer)
	reason := ""
	if !correct {
		reason = "wrong_answer"
	}
	s.resolveQuizLocked(ctx, correct, reason)
	return nil
}

func (s *Session) quizDeadline(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil || s.pending.id != id || s.status != domain.StatusAwaitingQuiz {
		return
	}
	obslog.L().Info("quiz_timeout", zap.String("code", s.code), zap.Int("move_number", s.pending.move.number))
	s.resolveQuizLocked(context.Background(), false, "timeout")
}

func (s *Session) resolveQuizLocked(ctx context.Context, correct bool, reason string) {
	p := s.pending
	s.pending = nil
	if p.timer != nil {
		p.timer.Stop()
	}
	s.status = domain.StatusActive

	if err := s.deps.Repo.RecordQuiz(ctx, p.move.playerID, correct, s.deps.DefaultElo); err != nil {
		obslog.L().Warn("quiz_stats_failed", zap.String("user_id", p.move.playerID), zap.Error(err))
	}
	if correct {
		obslog.L().Info("quiz_passed", zap.String("code", s.code), zap.Int("move_number", p.move.number))
		ok := true
		s.applyLocked(ctx, p.move, true, &ok)
		return
	}

	s.blocked[square{p.move.from, p.move.to}] = struct{}{}
	s.touchLocked()
	obslog.L().Info("quiz_failed",
		zap.String("code", s.code),
		zap.Int("move_number", p.move.number),
		zap.String("reason", reason),
	)
	blocked := &chessdto.BlockedMove{From: p.move.from, To: p.move.to}
	capturer := domain.RoleOf(p.move.side)
	s.deps.Notify.SendRole(s.code, capturer, protocol.MustEncode(protocol.TypeQuizFailed, chessdto.QuizFailed{
		Reason: reason, MoveNumber: p.move.number, FEN: s.fen, BlockedMove: blocked,
	}))
	// 상대와 관전자에게는 시간 초과를 구분하지 않는다
	others := protocol.MustEncode(protocol.TypeQuizFailed, chessdto.QuizFailed{
		Reason: "wrong_answer", MoveNumber: p.move.number, FEN: s.fen, BlockedMove: blocked,
	})
	s.deps.Notify.SendRole(s.code, domain.RoleOf(p.move.side.Opponent()), others)
	s.deps.Notify.SendRole(s.code, domain.RoleSpectator, others)
	s.saveLiveLocked(ctx)
}

// applyLocked is the only path that changes the position.
func (s *Session) applyLocked(ctx context.Context, m stagedMove, quizRequired bool, quizCorrect *bool) {
	now := s.deps.Clock.Now()
	rec := domain.MoveRecord{
		UUID:         uuid.NewString(),
		Number:       m.number,
		PlayerID:     m.playerID,
		Side:         m.side,
		From:         m.from,
		To:           m.to,
		Piece:        m.verdict.Piece,
		Captured:     m.verdict.Captured,
		Promotion:    m.verdict.Promotion,
		UCI:          m.verdict.UCI,
		SAN:          m.verdict.SAN,
		FENBefore:    s.fen,
		FENAfter:     m.verdict.Resulting,
		QuizRequired: quizRequired,
		QuizCorrect:  quizCorrect,
		PlayedAt:     now,
	}
	s.history = append(s.history, s.fen)
	s.fen = m.verdict.Resulting
	s.moves = append(s.moves, rec)
	clear(s.blocked)
	s.drawOfferBy = ""
	s.lastMoveAt = now
	s.touchLocked()

	if err := s.deps.Repo.AppendMove(ctx, s.code, rec); err != nil {
		obslog.L().Warn("move_persist_failed", zap.String("code", s.code), zap.Int("move_number", rec.Number), zap.Error(err))
	}
	s.deps.Notify.Broadcast(s.code, protocol.MustEncode(protocol.TypeMove, chessdto.MoveEvent{
		FromSquare:    rec.From,
		ToSquare:      rec.To,
		Piece:         rec.Piece,
		MoveNumber:    rec.Number,
		FENAfter:      rec.FENAfter,
		CapturedPiece: rec.Captured,
		Promotion:     rec.Promotion,
		SAN:           rec.SAN,
		UUID:          rec.UUID,
		Player:        string(rec.Side),
	}))

	term, err := s.deps.Rules.ClassifyTerminal(s.fen, s.history...)
	if err != nil {
		obslog.L().Error("terminal_check_failed", zap.String("code", s.code), zap.Error(err))
	} else if term.Terminal {
		result := domain.ResultDraw
		if term.Kind == rules.KindCheckmate {
			result = domain.Result(term.Winner)
		}
		s.finishLocked(ctx, result, string(term.Kind))
		return
	}
	s.saveLiveLocked(ctx)
	if s.vsAI && s.status == domain.StatusActive && rules.SideToMove(s.fen) == domain.Black {
		s.scheduleAILocked()
	}
}

func (s *Session) scheduleAILocked() {
	if s.deps.AI == nil || s.aiThinking {
		return
	}
	s.aiThinking = true
	go s.playAI(s.fen, s.difficulty)
}

// playAI answers fen for the AI seat. When neither the configured mover nor
// the random fallback yields a legal move the game ends unrated.
func (s *Session) playAI(fen string, difficulty ai.Difficulty) {
	req := ai.Request{FEN: fen, Difficulty: difficulty}
	movers := []ai.Mover{s.deps.AI}
	if lister, ok := s.deps.Rules.(ai.LegalMoveLister); ok {
		movers = append(movers, ai.NewRandom(lister, s.deps.Clock.Now().UnixNano()))
	}

	var (
		mv      string
		verdict rules.Verdict
		err     error
	)
	for attempt, m := range movers {
		ctx, cancel := context.WithTimeout(context.Background(), s.deps.AITimeout)
		mv, err = m.NextMove(ctx, req)
		cancel()
		if err == nil {
			verdict, err = s.checkAIMove(fen, mv)
		}
		if err == nil {
			break
		}
		obslog.L().Warn("ai_move_failed", zap.String("code", s.code), zap.Int("attempt", attempt+1), zap.String("move", mv), zap.Error(err))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.aiThinking = false
	if s.status != domain.StatusActive || s.fen != fen {
		return
	}
	ctx := context.Background()
	if err != nil {
		obslog.L().Error("ai_unavailable", zap.String("code", s.code), zap.Error(err))
		s.finishLocked(ctx, domain.ResultNone, reasonAIUnavailable)
		return
	}
	s.applyLocked(ctx, stagedMove{
		side:     domain.Black,
		playerID: s.black.UserID,
		from:     mv[:2],
		to:       mv[2:4],
		verdict:  verdict,
		number:   len(s.moves) + 1,
	}, false, nil)
}

func (s *Session) checkAIMove(fen, mv string) (rules.Verdict, error) {
	if len(mv) < 4 {
		return rules.Verdict{}, fmt.Errorf("malformed ai move %q", mv)
	}
	verdict, err := s.deps.Rules.IsLegal(fen, mv[:2], mv[2:4], mv[4:])
	if err != nil {
		return rules.Verdict{}, err
	}
	if !verdict.Legal {
		return rules.Verdict{}, fmt.Errorf("illegal ai move %q", mv)
	}
	return verdict, nil
}

// Resign ends the game; the opponent wins.
func (s *Session) Resign(ctx context.Context, role domain.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !role.IsPlayer() {
		return ErrNotAPlayer
	}
	if s.status != domain.StatusActive && s.status != domain.StatusAwaitingQuiz {
		return ErrNotActive
	}
	s.finishLocked(ctx, domain.Result(role.Side().Opponent()), "resignation")
	return nil
}

func (s *Session) OfferDraw(ctx context.Context, role domain.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !role.IsPlayer() {
		return ErrNotAPlayer
	}
	if s.status != domain.StatusActive {
		return ErrNotActive
	}
	if s.drawOfferBy == role.Side() {
		return ErrDrawOfferOwn
	}
	s.drawOfferBy = role.Side()
	s.touchLocked()
	s.deps.Notify.Broadcast(s.code, protocol.MustEncode(protocol.TypeDrawOffer, chessdto.DrawOffer{From: string(role.Side())}))
	s.saveLiveLocked(ctx)
	return nil
}

func (s *Session) AcceptDraw(ctx context.Context, role domain.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !role.IsPlayer() {
		return ErrNotAPlayer
	}
	if s.status != domain.StatusActive {
		return ErrNotActive
	}
	if s.drawOfferBy == "" || s.drawOfferBy != role.Side().Opponent() {
		return ErrNoDrawOffer
	}
	s.finishLocked(ctx, domain.ResultDraw, "draw_agreement")
	return nil
}

// finishLocked settles ratings and emits the single game_over.
func (s *Session) finishLocked(ctx context.Context, result domain.Result, reason string) {
	if s.status == domain.StatusFinished {
		return
	}
	if s.pending != nil {
		if s.pending.timer != nil {
			s.pending.timer.Stop()
		}
		s.pending = nil
	}
	now := s.deps.Clock.Now()
	s.status = domain.StatusFinished
	s.result = result
	s.reason = reason
	s.drawOfferBy = ""
	s.updatedAt = now

	var change *chessdto.EloChange
	var profiles []*domain.PlayerProfile
	if outcome, ok := rating.OutcomeOf(result); ok && s.white != nil && s.black != nil {
		wp := s.profileLocked(ctx, s.white)
		bp := s.profileLocked(ctx, s.black)
		st := s.deps.Rating.Settle(s.ratingOf(s.white, wp), s.ratingOf(s.black, bp), outcome)
		if wp != nil {
			st.Apply(wp, domain.White, outcome, now)
			s.white.Elo = wp.Rating
			profiles = append(profiles, wp)
		}
		if bp != nil {
			st.Apply(bp, domain.Black, outcome, now)
			s.black.Elo = bp.Rating
			profiles = append(profiles, bp)
		}
		change = &chessdto.EloChange{
			White: chessdto.RatingChange{Old: st.WhiteOld, New: st.WhiteNew},
			Black: chessdto.RatingChange{Old: st.BlackOld, New: st.BlackNew},
		}
	}

	rec := s.recordLocked()
	rec.PGN = store.BuildPGN(rec)
	if err := s.deps.Repo.FinishGame(ctx, rec, profiles...); err != nil {
		obslog.L().Error("game_persist_failed", zap.String("code", s.code), zap.Error(err))
	}
	obslog.L().Info("game_finished",
		zap.String("code", s.code),
		zap.String("result", string(result)),
		zap.String("reason", reason),
		zap.Int("moves", len(s.moves)),
	)
	s.deps.Notify.Broadcast(s.code, protocol.MustEncode(protocol.TypeGameOver, chessdto.GameOver{
		Reason:    reason,
		Winner:    string(result),
		EloChange: change,
		FEN:       s.fen,
		PGN:       rec.PGN,
	}))
	s.saveLiveLocked(ctx)
}

// profileLocked returns nil for the AI seat.
func (s *Session) profileLocked(ctx context.Context, p *domain.Player) *domain.PlayerProfile {
	if p.AI {
		return nil
	}
	prof, err := s.deps.Repo.GetProfile(ctx, p.UserID)
	if err != nil {
		obslog.L().Warn("profile_load_failed", zap.String("user_id", p.UserID), zap.Error(err))
	}
	if prof == nil {
		prof = &domain.PlayerProfile{UserID: p.UserID, Rating: s.deps.DefaultElo, CreatedAt: s.deps.Clock.Now()}
	}
	return prof
}

func (s *Session) ratingOf(p *domain.Player, prof *domain.PlayerProfile) int {
	if prof != nil {
		return prof.Rating
	}
	if p.AI {
		return s.difficulty.Elo()
	}
	return p.Elo
}

func (s *Session) seat(side domain.Side) *domain.Player {
	if side == domain.White {
		return s.white
	}
	return s.black
}

func (s *Session) touchLocked() { s.updatedAt = s.deps.Clock.Now() }

func (s *Session) recordLocked() *domain.GameRecord {
	rec := &domain.GameRecord{
		Code:         s.code,
		Subjects:     append([]string(nil), s.subjects...),
		VsAI:         s.vsAI,
		AIDifficulty: string(s.difficulty),
		Status:       s.status,
		Result:       s.result,
		Reason:       s.reason,
		FinalFEN:     s.fen,
		StartedAt:    s.startedAt,
	}
	if rec.StartedAt.IsZero() {
		rec.StartedAt = s.createdAt
	}
	if s.white != nil {
		rec.WhiteID = s.white.UserID
	}
	if s.black != nil {
		rec.BlackID = s.black.UserID
	}
	for _, m := range s.moves {
		rec.MovesSAN = append(rec.MovesSAN, m.SAN)
	}
	if s.status == domain.StatusFinished {
		rec.EndedAt = s.updatedAt
	}
	return rec
}

func (s *Session) persistRecordLocked(ctx context.Context) {
	if err := s.deps.Repo.SaveGame(ctx, s.recordLocked()); err != nil {
		obslog.L().Warn("game_persist_failed", zap.String("code", s.code), zap.Error(err))
	}
}

func (s *Session) saveLiveLocked(ctx context.Context) {
	if s.deps.Live == nil {
		return
	}
	if err := s.deps.Live.SaveSnapshot(ctx, s.code, s.snapshotLocked()); err != nil {
		obslog.L().Warn("live_snapshot_failed", zap.String("code", s.code), zap.Error(err))
	}
}

// Snapshot is the game_update payload. It never contains the quiz answer.
func (s *Session) Snapshot() chessdto.GameSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() chessdto.GameSnapshot {
	snap := chessdto.GameSnapshot{
		Code:         s.code,
		Status:       string(s.status),
		FEN:          s.fen,
		Turn:         string(rules.SideToMove(s.fen)),
		Moves:        make([]chessdto.MoveInfo, 0, len(s.moves)),
		Subjects:     append([]string(nil), s.subjects...),
		VsAI:         s.vsAI,
		AIDifficulty: string(s.difficulty),
		DrawOfferBy:  string(s.drawOfferBy),
		Result:       string(s.result),
		Reason:       s.reason,
		CreatedAt:    s.createdAt,
		UpdatedAt:    s.updatedAt,
	}
	if s.white != nil {
		snap.White = &chessdto.PlayerInfo{UserID: s.white.UserID, Elo: s.white.Elo, AI: s.white.AI}
	}
	if s.black != nil {
		snap.Black = &chessdto.PlayerInfo{UserID: s.black.UserID, Elo: s.black.Elo, AI: s.black.AI}
	}
	ucis := make([]string, 0, len(s.moves))
	for _, m := range s.moves {
		ucis = append(ucis, m.UCI)
		snap.Moves = append(snap.Moves, chessdto.MoveInfo{
			MoveNumber:    m.Number,
			Side:          string(m.Side),
			FromSquare:    m.From,
			ToSquare:      m.To,
			Piece:         m.Piece,
			CapturedPiece: m.Captured,
			Promotion:     m.Promotion,
			SAN:           m.SAN,
			FENAfter:      m.FENAfter,
			UUID:          m.UUID,
		})
	}
	if s.deps.Openings != nil && len(ucis) > 0 {
		snap.OpeningCode, snap.OpeningName = s.deps.Openings.Opening(ucis)
	}
	if s.pending != nil {
		snap.PendingQuiz = &chessdto.PendingQuizInfo{
			MoveNumber: s.pending.move.number,
			Subject:    s.pending.question.Subject,
			Player:     string(s.pending.move.side),
			Deadline:   s.pending.deadline.Unix(),
		}
	}
	for sq := range s.blocked {
		snap.BlockedMoves = append(snap.BlockedMoves, chessdto.BlockedMove{From: sq.from, To: sq.to})
	}
	return snap
}

// sweep applies the stale policy. It reports whether the session should be evicted.
func (s *Session) sweep(ctx context.Context, now time.Time, p SweepPolicy) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.status {
	case domain.StatusWaiting:
		if p.WaitingAfter > 0 && now.Sub(s.createdAt) >= p.WaitingAfter {
			obslog.L().Info("game_expired_waiting", zap.String("code", s.code))
			return true
		}
	case domain.StatusActive, domain.StatusAwaitingQuiz:
		last := s.lastMoveAt
		if last.IsZero() {
			last = s.startedAt
		}
		if p.ActiveAfter > 0 && now.Sub(last) >= p.ActiveAfter {
			result := domain.ResultDraw
			if n := len(s.moves); n > 0 {
				result = domain.Result(s.moves[n-1].Side)
			}
			s.finishLocked(ctx, result, "abandoned")
		}
	case domain.StatusFinished:
		if p.FinishedAfter > 0 && now.Sub(s.updatedAt) >= p.FinishedAfter {
			return true
		}
	}
	return false
}
