package ai

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"math/rand"
	"testing"

	nchess "github.com/corentings/chess/v2"

	"github.com/park285/quizchess/internal/ai/uci"
	"github.com/park285/quizchess/internal/rules"
)

func TestParseDifficulty(t *testing.T) {
	tests := []struct {
		in   string
		want Difficulty
		elo  int
	}{
		{"", Normal, 1400},
		{"EASY", Easy, 900},
		{" hard ", Hard, 1800},
	}
	for _, tt := range tests {
		d, err := ParseDifficulty(tt.in)
		if err != nil || d != tt.want || d.Elo() != tt.elo {
			t.Fatalf("ParseDifficulty(%q) = %q (%d) err=%v", tt.in, d, d.Elo(), err)
		}
	}
	if _, err := ParseDifficulty("grandmaster"); err == nil {
		t.Fatalf("expected error for unknown difficulty")
	}
}

func TestRandomMoverPlaysLegalMove(t *testing.T) {
	r := rules.New()
	m := NewRandom(r, 7)
	mv, err := m.NextMove(context.Background(), Request{FEN: rules.StartFEN, Difficulty: Easy})
	if err != nil {
		t.Fatalf("NextMove: %v", err)
	}
	v, err := r.IsLegal(rules.StartFEN, mv[:2], mv[2:4], "")
	if err != nil || !v.Legal {
		t.Fatalf("random move %q must be legal: %+v err=%v", mv, v, err)
	}

	mated := "rnb1kbnr/pppp1ppp/8/4p3/6Pq/5P2/PPPPP2P/RNBQKBNR w KQkq - 1 3"
	if _, err := m.NextMove(context.Background(), Request{FEN: mated}); !errors.Is(err, ErrNoMove) {
		t.Fatalf("expected ErrNoMove in checkmate, got %v", err)
	}
}

type fixedMover struct {
	move string
	err  error
}

func (f fixedMover) NextMove(context.Context, Request) (string, error) { return f.move, f.err }

func TestChainFallsThrough(t *testing.T) {
	var nilBook *Book
	c := Chain{nilBook, fixedMover{err: errors.New("engine down")}, fixedMover{move: "e7e5"}}
	mv, err := c.NextMove(context.Background(), Request{FEN: rules.StartFEN})
	if err != nil || mv != "e7e5" {
		t.Fatalf("expected fallback move, got %q err=%v", mv, err)
	}

	_, err = Chain{fixedMover{err: ErrNoMove}}.NextMove(context.Background(), Request{})
	if !errors.Is(err, ErrNoMove) {
		t.Fatalf("expected ErrNoMove, got %v", err)
	}
}

func TestOpenBookEmptyPath(t *testing.T) {
	b, err := OpenBook("")
	if err != nil || b != nil {
		t.Fatalf("empty path must give nil book: %v %v", b, err)
	}
	if _, err := b.NextMove(context.Background(), Request{FEN: rules.StartFEN}); !errors.Is(err, ErrNoMove) {
		t.Fatalf("nil book must yield ErrNoMove, got %v", err)
	}
	if _, err := OpenBook("/nonexistent/book.bin"); err == nil {
		t.Fatalf("expected open error")
	}
}

// polyglotBook encodes one 16-byte entry per move for the position fen.
func polyglotBook(t *testing.T, fen string, moves ...nchess.PolyglotMove) []byte {
	t.Helper()
	hash, err := nchess.NewZobristHasher().HashPosition(fen)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	key := nchess.ZobristHashToUint64(hash)
	var buf bytes.Buffer
	for _, m := range moves {
		entry := make([]byte, 16)
		binary.BigEndian.PutUint64(entry[0:8], key)
		binary.BigEndian.PutUint16(entry[8:10], m.Encode())
		binary.BigEndian.PutUint16(entry[10:12], 10)
		buf.Write(entry)
	}
	return buf.Bytes()
}

func TestBookPlaysEntryForPosition(t *testing.T) {
	e2e4 := nchess.PolyglotMove{FromFile: 4, FromRank: 1, ToFile: 4, ToRank: 3}
	b, err := LoadBook(bytes.NewReader(polyglotBook(t, rules.StartFEN, e2e4)))
	if err != nil {
		t.Fatalf("LoadBook: %v", err)
	}
	mv, err := b.NextMove(context.Background(), Request{FEN: rules.StartFEN})
	if err != nil || mv != "e2e4" {
		t.Fatalf("expected e2e4 from book, got %q err=%v", mv, err)
	}

	// 책에 없는 국면
	after := "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq - 0 1"
	if _, err := b.NextMove(context.Background(), Request{FEN: after}); !errors.Is(err, ErrNoMove) {
		t.Fatalf("unknown position must yield ErrNoMove, got %v", err)
	}
}

func TestBookRejectsIllegalEntry(t *testing.T) {
	e2e5 := nchess.PolyglotMove{FromFile: 4, FromRank: 1, ToFile: 4, ToRank: 4}
	b, err := LoadBook(bytes.NewReader(polyglotBook(t, rules.StartFEN, e2e5)))
	if err != nil {
		t.Fatalf("LoadBook: %v", err)
	}
	if mv, err := b.NextMove(context.Background(), Request{FEN: rules.StartFEN}); err == nil {
		t.Fatalf("illegal book move %q must be rejected", mv)
	}
	if _, err := LoadBook(bytes.NewReader([]byte{1, 2, 3})); err == nil {
		t.Fatalf("truncated book must fail to load")
	}
}

func TestSelectCandidate(t *testing.T) {
	cands := []uci.Candidate{{Move: "a", EvalCP: 50}, {Move: "b", EvalCP: 30}, {Move: "c", EvalCP: -500}}
	r := rand.New(rand.NewSource(1))
	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		c, err := selectCandidate(PresetFor(Easy), cands, r)
		if err != nil {
			t.Fatalf("selectCandidate: %v", err)
		}
		seen[c.Move] = true
	}
	if !seen["a"] || !seen["b"] {
		t.Fatalf("expected a spread of candidates, got %v", seen)
	}
	if seen["c"] {
		t.Fatalf("a losing line far below the best must never be chosen")
	}

	c, _ := selectCandidate(PresetFor(Hard), cands, r)
	if c.Move != "a" {
		t.Fatalf("hard must play the best line, got %q", c.Move)
	}
	mate := []uci.Candidate{{Move: "m", EvalCP: 30000}, {Move: "x", EvalCP: 0}}
	for i := 0; i < 20; i++ {
		if c, _ := selectCandidate(PresetFor(Easy), mate, r); c.Move != "m" {
			t.Fatalf("mate must always be played")
		}
	}
	if _, err := selectCandidate(PresetFor(Easy), nil, r); err == nil {
		t.Fatalf("expected error without candidates")
	}
}
