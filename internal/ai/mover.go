package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"strings"
	"sync"
	"time"

	nchess "github.com/corentings/chess/v2"
	"go.uber.org/zap"

	"github.com/park285/quizchess/internal/ai/uci"
	"github.com/park285/quizchess/internal/obslog"
)

// ErrNoMove means a mover has nothing to offer for the position.
var ErrNoMove = errors.New("ai: no move")

// Request describes the position the AI must answer.
type Request struct {
	FEN        string
	Difficulty Difficulty
}

// Mover returns a UCI move for the side to move in req.FEN.
type Mover interface {
	NextMove(ctx context.Context, req Request) (string, error)
}

// LegalMoveLister lists legal UCI moves of a position.
type LegalMoveLister interface {
	LegalMoves(position string) ([]string, error)
}

type lockedRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

func newLockedRand(seed int64) *lockedRand {
	return &lockedRand{r: rand.New(rand.NewSource(seed))}
}

// fork hands out a private source so callers never share rand state.
func (l *lockedRand) fork() *rand.Rand {
	l.mu.Lock()
	seed := l.r.Int63()
	l.mu.Unlock()
	return rand.New(rand.NewSource(seed))
}

// Chain tries movers in order until one returns a move.
type Chain []Mover

func (c Chain) NextMove(ctx context.Context, req Request) (string, error) {
	var errs []error
	for _, m := range c {
		if m == nil {
			continue
		}
		mv, err := m.NextMove(ctx, req)
		if err == nil && mv != "" {
			return mv, nil
		}
		if err != nil && !errors.Is(err, ErrNoMove) {
			obslog.L().Warn("ai_mover_failed", zap.String("mover", fmt.Sprintf("%T", m)), zap.Error(err))
			errs = append(errs, err)
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
	}
	if len(errs) > 0 {
		return "", errors.Join(append([]error{ErrNoMove}, errs...)...)
	}
	return "", ErrNoMove
}

// Random plays a uniformly random legal move.
type Random struct {
	rules LegalMoveLister
	rand  *lockedRand
}

func NewRandom(rules LegalMoveLister, seed int64) *Random {
	return &Random{rules: rules, rand: newLockedRand(seed)}
}

func (r *Random) NextMove(_ context.Context, req Request) (string, error) {
	moves, err := r.rules.LegalMoves(req.FEN)
	if err != nil {
		return "", err
	}
	if len(moves) == 0 {
		return "", ErrNoMove
	}
	return moves[r.rand.fork().Intn(len(moves))], nil
}

// Book answers from a polyglot opening book, weighted by entry weight.
type Book struct {
	book *nchess.PolyglotBook
	rand *lockedRand
}

// OpenBook loads a polyglot file. An empty path yields a nil *Book, which plays nothing.
func OpenBook(path string) (*Book, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open polyglot book %q: %w", path, err)
	}
	defer f.Close()
	b, err := LoadBook(f)
	if err != nil {
		return nil, fmt.Errorf("load polyglot book %q: %w", path, err)
	}
	return b, nil
}

// LoadBook reads polyglot entries from r.
func LoadBook(r io.Reader) (*Book, error) {
	book, err := nchess.LoadFromReader(r)
	if err != nil {
		return nil, err
	}
	return &Book{book: book, rand: newLockedRand(time.Now().UnixNano())}, nil
}

func (b *Book) NextMove(_ context.Context, req Request) (string, error) {
	if b == nil || b.book == nil {
		return "", ErrNoMove
	}
	hashStr, err := nchess.NewZobristHasher().HashPosition(req.FEN)
	if err != nil {
		return "", fmt.Errorf("polyglot hash: %w", err)
	}
	entries := b.book.FindMoves(nchess.ZobristHashToUint64(hashStr))
	if len(entries) == 0 {
		return "", ErrNoMove
	}
	total := 0
	for _, e := range entries {
		total += int(e.Weight)
	}
	pick := entries[0]
	if total > 0 {
		n := b.rand.fork().Intn(total)
		for _, e := range entries {
			n -= int(e.Weight)
			if n < 0 {
				pick = e
				break
			}
		}
	}
	bm := nchess.DecodeMove(pick.Move).ToMove()
	mv := bm.String()

	opt, err := nchess.FEN(req.FEN)
	if err != nil {
		return "", err
	}
	if err := nchess.NewGame(opt).PushNotationMove(mv, nchess.UCINotation{}, nil); err != nil {
		return "", fmt.Errorf("book move %q invalid for position: %w", mv, err)
	}
	return mv, nil
}

// Stockfish searches with a strength-limited engine from a process pool.
type Stockfish struct {
	pool *uci.Pool
	rand *lockedRand
}

func NewStockfish(binaryPath string) (*Stockfish, error) {
	pool, err := uci.NewPool(uci.PoolConfig{BinaryPath: binaryPath})
	if err != nil {
		return nil, err
	}
	return &Stockfish{pool: pool, rand: newLockedRand(time.Now().UnixNano())}, nil
}

func (s *Stockfish) NextMove(ctx context.Context, req Request) (move string, err error) {
	preset := PresetFor(req.Difficulty)
	session, err := s.pool.Acquire(ctx, preset.options())
	if err != nil {
		return "", err
	}
	defer func() { s.pool.Release(session, err) }()

	if err = session.NewGame(ctx); err != nil {
		return "", err
	}
	start := time.Now()
	resp, err := session.Search(ctx, req.FEN, preset.limits())
	if err != nil {
		return "", err
	}
	chosen, cerr := selectCandidate(preset, resp.Candidates, s.rand.fork())
	move = chosen.Move
	if cerr != nil || move == "" {
		move = resp.BestMove
	}
	if move == "" || move == "(none)" {
		return "", ErrNoMove
	}
	obslog.L().Debug("ai_engine_move",
		zap.String("difficulty", string(preset.Difficulty)),
		zap.String("move", move),
		zap.Duration("took", time.Since(start)),
	)
	return move, nil
}

func (s *Stockfish) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	return s.pool.Close()
}
