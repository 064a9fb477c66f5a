// Package rating computes Elo settlements for finished games.
package rating

import (
	"math"
	"time"

	"github.com/park285/quizchess/internal/domain"
)

const DefaultK = 32

type Outcome int

const (
	WhiteWins Outcome = iota + 1
	BlackWins
	Draw
)

// OutcomeOf maps a result token to an Outcome.
func OutcomeOf(r domain.Result) (Outcome, bool) {
	switch r {
	case domain.ResultWhite:
		return WhiteWins, true
	case domain.ResultBlack:
		return BlackWins, true
	case domain.ResultDraw:
		return Draw, true
	}
	return 0, false
}

// Score returns the actual score for a side: 1, 0.5 or 0.
func (o Outcome) Score(side domain.Side) float64 {
	switch {
	case o == Draw:
		return 0.5
	case o == WhiteWins && side == domain.White, o == BlackWins && side == domain.Black:
		return 1
	}
	return 0
}

// Expected is the expected score of a player rated ra against rb.
func Expected(ra, rb int) float64 {
	return 1 / (1 + math.Pow(10, float64(rb-ra)/400))
}

// Settlement holds both sides' ratings before and after a game.
type Settlement struct {
	WhiteOld int
	WhiteNew int
	BlackOld int
	BlackNew int
}

func (s Settlement) Old(side domain.Side) int {
	if side == domain.White {
		return s.WhiteOld
	}
	return s.BlackOld
}

func (s Settlement) New(side domain.Side) int {
	if side == domain.White {
		return s.WhiteNew
	}
	return s.BlackNew
}

// Updater applies a fixed K-factor Elo update.
type Updater struct {
	K int
}

func NewUpdater(k int) Updater {
	if k <= 0 {
		k = DefaultK
	}
	return Updater{K: k}
}

// Settle is pure: same inputs always give the same ratings.
func (u Updater) Settle(whiteElo, blackElo int, o Outcome) Settlement {
	k := u.K
	if k <= 0 {
		k = DefaultK
	}
	ew := Expected(whiteElo, blackElo)
	eb := Expected(blackElo, whiteElo)
	return Settlement{
		WhiteOld: whiteElo,
		WhiteNew: int(math.Round(float64(whiteElo) + float64(k)*(o.Score(domain.White)-ew))),
		BlackOld: blackElo,
		BlackNew: int(math.Round(float64(blackElo) + float64(k)*(o.Score(domain.Black)-eb))),
	}
}

// Apply writes the settlement and win/loss/draw counters into a profile.
func (s Settlement) Apply(p *domain.PlayerProfile, side domain.Side, o Outcome, now time.Time) {
	if p == nil {
		return
	}
	p.Rating = s.New(side)
	p.GamesPlayed++
	switch o.Score(side) {
	case 1:
		p.Wins++
	case 0:
		p.Losses++
	default:
		p.Draws++
	}
	p.UpdatedAt = now
}
