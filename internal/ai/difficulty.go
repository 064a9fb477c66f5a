// Package ai picks replies for the synthetic seat of vs-AI games.
package ai

import (
	"fmt"
	"strings"

	"github.com/park285/quizchess/internal/ai/uci"
)

type Difficulty string

const (
	Easy   Difficulty = "easy"
	Normal Difficulty = "normal"
	Hard   Difficulty = "hard"
)

// ParseDifficulty accepts easy/normal/hard; empty means normal.
func ParseDifficulty(s string) (Difficulty, error) {
	switch Difficulty(strings.ToLower(strings.TrimSpace(s))) {
	case "", Normal:
		return Normal, nil
	case Easy:
		return Easy, nil
	case Hard:
		return Hard, nil
	}
	return "", fmt.Errorf("unknown ai difficulty %q", s)
}

// Elo is the rating a human is settled against.
func (d Difficulty) Elo() int {
	switch d {
	case Easy:
		return 900
	case Hard:
		return 1800
	}
	return 1400
}

// Preset tunes engine strength and how far the humanizer strays from the best line.
type Preset struct {
	Difficulty       Difficulty
	SkillLevel       int
	HashMB           int
	MoveTimeMillis   int
	DepthCap         int
	MultiPV          int
	CandidateWeights []float64
	EvalNoise        int
}

var presets = map[Difficulty]Preset{
	Easy: {
		Difficulty:       Easy,
		SkillLevel:       0,
		HashMB:           16,
		MoveTimeMillis:   60,
		DepthCap:         6,
		MultiPV:          3,
		CandidateWeights: []float64{0.5, 0.3, 0.2},
		EvalNoise:        80,
	},
	Normal: {
		Difficulty:       Normal,
		SkillLevel:       5,
		HashMB:           32,
		MoveTimeMillis:   200,
		DepthCap:         12,
		MultiPV:          3,
		CandidateWeights: []float64{0.7, 0.2, 0.1},
		EvalNoise:        25,
	},
	Hard: {
		Difficulty:       Hard,
		SkillLevel:       12,
		HashMB:           64,
		MoveTimeMillis:   500,
		DepthCap:         18,
		MultiPV:          1,
		CandidateWeights: []float64{1.0},
	},
}

func PresetFor(d Difficulty) Preset {
	if p, ok := presets[d]; ok {
		return p
	}
	return presets[Normal]
}

func (p Preset) options() uci.Options {
	return uci.Options{
		Threads:    1,
		SkillLevel: p.SkillLevel,
		HashMB:     p.HashMB,
		MultiPV:    p.MultiPV,
		Elo:        p.Difficulty.Elo(),
	}
}

func (p Preset) limits() uci.Limits {
	return uci.Limits{Depth: p.DepthCap, MoveTimeMillis: p.MoveTimeMillis}
}
