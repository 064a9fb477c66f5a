package rules

import (
	"strings"
	"testing"

	"github.com/park285/quizchess/internal/domain"
)

// white pawn c7 can capture the d8 rook with promotion
const promoCaptureFEN = "kn1r4/ppP4p/2N5/8/8/8/5PPP/6K1 w - - 0 1"

func TestIsLegalBasicMoves(t *testing.T) {
	c := New()
	v, err := c.IsLegal(StartFEN, "e2", "e4", "")
	if err != nil {
		t.Fatalf("IsLegal: %v", err)
	}
	if !v.Legal || v.Piece != "p" || v.Captured != "" || v.SAN != "e4" {
		t.Fatalf("unexpected verdict: %+v", v)
	}
	if SideToMove(v.Resulting) != domain.Black {
		t.Fatalf("expected black to move after e4, fen=%s", v.Resulting)
	}

	for _, mv := range [][2]string{{"e2", "e5"}, {"e7", "e5"}, {"z9", "e4"}, {"e3", "e4"}} {
		v, err := c.IsLegal(StartFEN, mv[0], mv[1], "")
		if err != nil {
			t.Fatalf("IsLegal(%v): %v", mv, err)
		}
		if v.Legal || v.Resulting != "" {
			t.Fatalf("expected %v illegal, got %+v", mv, v)
		}
	}
}

func TestIsLegalCaptureWithAutoQueen(t *testing.T) {
	v, err := New().IsLegal(promoCaptureFEN, "c7", "d8", "")
	if err != nil {
		t.Fatalf("IsLegal: %v", err)
	}
	if !v.Legal || v.Captured != "r" || v.Promotion != "q" || v.UCI != "c7d8q" {
		t.Fatalf("unexpected verdict: %+v", v)
	}
	if !IsTriggerPiece(v.Captured) {
		t.Fatalf("rook capture must trigger a quiz")
	}
	if !strings.HasPrefix(v.Resulting, "kn1Q4/pp5p/") {
		t.Fatalf("unexpected resulting position: %s", v.Resulting)
	}
}

func TestIsLegalUnderPromotion(t *testing.T) {
	v, err := New().IsLegal(promoCaptureFEN, "c7", "d8", "n")
	if err != nil || !v.Legal || v.Promotion != "n" {
		t.Fatalf("knight promotion: %+v err=%v", v, err)
	}
	v, err = New().IsLegal(promoCaptureFEN, "c7", "d8", "k")
	if err != nil || v.Legal {
		t.Fatalf("king promotion must be illegal: %+v err=%v", v, err)
	}
}

func TestIsLegalEnPassantCapture(t *testing.T) {
	v, err := New().IsLegal("4k3/8/8/3pP3/8/8/8/4K3 w - d6 0 2", "e5", "d6", "")
	if err != nil || !v.Legal {
		t.Fatalf("en passant: %+v err=%v", v, err)
	}
	if v.Captured != "p" {
		t.Fatalf("expected captured pawn, got %q", v.Captured)
	}
}

func TestIsLegalBadPosition(t *testing.T) {
	if _, err := New().IsLegal("not a fen", "e2", "e4", ""); err == nil {
		t.Fatalf("expected error for malformed position")
	}
}

func TestClassifyTerminal(t *testing.T) {
	c := New()
	tests := []struct {
		name   string
		fen    string
		kind   Kind
		winner domain.Side
	}{
		{"ongoing", StartFEN, KindNone, ""},
		{"fools mate", "rnb1kbnr/pppp1ppp/8/4p3/6Pq/5P2/PPPPP2P/RNBQKBNR w KQkq - 1 3", KindCheckmate, domain.Black},
		{"stalemate", "7k/5Q2/6K1/8/8/8/8/8 b - - 0 1", KindStalemate, ""},
		{"bare kings", "8/8/4k3/8/8/3K4/8/8 w - - 0 1", KindInsufficientMaterial, ""},
		{"king and knight", "8/8/4k3/8/8/3KN3/8/8 w - - 0 1", KindInsufficientMaterial, ""},
		{"fifty moves", "8/8/4k3/8/8/3K4/8/R7 w - - 100 80", KindFiftyMove, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			term, err := c.ClassifyTerminal(tt.fen)
			if err != nil {
				t.Fatalf("ClassifyTerminal: %v", err)
			}
			if term.Kind != tt.kind || term.Winner != tt.winner || term.Terminal != (tt.kind != KindNone) {
				t.Fatalf("got %+v", term)
			}
		})
	}
}

func TestClassifyThreefold(t *testing.T) {
	c := New()
	pos := "4k3/8/8/8/8/8/8/R3K3 w - - 4 10"
	same := "4k3/8/8/8/8/8/8/R3K3 w - - 8 12"
	term, err := c.ClassifyTerminal(pos, same)
	if err != nil || term.Terminal {
		t.Fatalf("two occurrences are not a draw: %+v err=%v", term, err)
	}
	term, err = c.ClassifyTerminal(pos, same, "4k3/8/8/8/8/8/8/R3K3 b - - 5 10", same)
	if err != nil || term.Kind != KindThreefold {
		t.Fatalf("expected threefold, got %+v err=%v", term, err)
	}
	if !term.Kind.IsDraw() {
		t.Fatalf("threefold is a draw")
	}
}

func TestLegalMovesAndOpening(t *testing.T) {
	c := New()
	moves, err := c.LegalMoves(StartFEN)
	if err != nil {
		t.Fatalf("LegalMoves: %v", err)
	}
	if len(moves) != 20 {
		t.Fatalf("expected 20 moves from start, got %d", len(moves))
	}
	code, title := c.Opening([]string{"e2e4", "e7e5", "g1f3", "b8c6", "f1b5"})
	if code == "" || title == "" {
		t.Fatalf("expected opening classification, got %q %q", code, title)
	}
	if code, _ := c.Opening([]string{"e2e5"}); code != "" {
		t.Fatalf("invalid line must not classify")
	}
}
