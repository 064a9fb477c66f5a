package rating

import (
	"math"
	"testing"
	"time"

	"github.com/park285/quizchess/internal/domain"
)

func TestExpectedSymmetric(t *testing.T) {
	if got := Expected(1200, 1200); math.Abs(got-0.5) > 1e-9 {
		t.Fatalf("equal ratings expected 0.5, got %f", got)
	}
	a, b := Expected(1600, 1200), Expected(1200, 1600)
	if math.Abs(a+b-1) > 1e-9 {
		t.Fatalf("expected scores must sum to 1: %f + %f", a, b)
	}
	if math.Abs(a-0.909) > 0.001 {
		t.Fatalf("400 point gap expected ~0.909, got %f", a)
	}
}

func TestSettle(t *testing.T) {
	u := NewUpdater(32)
	tests := []struct {
		name         string
		white, black int
		outcome      Outcome
		wantW, wantB int
	}{
		{"white wins even", 1200, 1200, WhiteWins, 1216, 1184},
		{"black wins even", 1200, 1200, BlackWins, 1184, 1216},
		{"draw even", 1500, 1500, Draw, 1500, 1500},
		{"upset draw", 1400, 1800, Draw, 1413, 1787},
		{"favourite wins", 1800, 1400, WhiteWins, 1803, 1397},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := u.Settle(tt.white, tt.black, tt.outcome)
			if s.WhiteNew != tt.wantW || s.BlackNew != tt.wantB {
				t.Fatalf("got %d/%d want %d/%d", s.WhiteNew, s.BlackNew, tt.wantW, tt.wantB)
			}
			if s.WhiteOld != tt.white || s.BlackOld != tt.black {
				t.Fatalf("old ratings not preserved: %+v", s)
			}
		})
	}
}

func TestZeroKFallsBackToDefault(t *testing.T) {
	s := Updater{}.Settle(1200, 1200, WhiteWins)
	if s.WhiteNew != 1216 {
		t.Fatalf("expected default K, got %d", s.WhiteNew)
	}
}

func TestApplyCounters(t *testing.T) {
	now := time.Unix(1700000000, 0)
	s := NewUpdater(32).Settle(1200, 1200, BlackWins)
	w := &domain.PlayerProfile{UserID: "w", Rating: 1200}
	b := &domain.PlayerProfile{UserID: "b", Rating: 1200}
	s.Apply(w, domain.White, BlackWins, now)
	s.Apply(b, domain.Black, BlackWins, now)
	if w.Losses != 1 || w.GamesPlayed != 1 || w.Rating != 1184 {
		t.Fatalf("white profile: %+v", w)
	}
	if b.Wins != 1 || b.Rating != 1216 || !b.UpdatedAt.Equal(now) {
		t.Fatalf("black profile: %+v", b)
	}

	d := &domain.PlayerProfile{}
	NewUpdater(32).Settle(1200, 1200, Draw).Apply(d, domain.White, Draw, now)
	if d.Draws != 1 {
		t.Fatalf("draw not counted: %+v", d)
	}
}

func TestOutcomeOf(t *testing.T) {
	if o, ok := OutcomeOf(domain.ResultDraw); !ok || o != Draw {
		t.Fatalf("draw mapping")
	}
	if _, ok := OutcomeOf(domain.ResultNone); ok {
		t.Fatalf("empty result must not map")
	}
}
