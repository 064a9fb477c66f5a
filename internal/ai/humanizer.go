package ai

import (
	"errors"
	"math/rand"

	"github.com/park285/quizchess/internal/ai/uci"
)

var errNoCandidates = errors.New("no candidates to choose from")

// selectCandidate draws one of the top lines by the preset weights.
// Mate scores are never traded away.
func selectCandidate(p Preset, candidates []uci.Candidate, r *rand.Rand) (uci.Candidate, error) {
	if len(candidates) == 0 {
		return uci.Candidate{}, errNoCandidates
	}
	limit := len(p.CandidateWeights)
	if limit > len(candidates) {
		limit = len(candidates)
	}
	if limit <= 1 || candidates[0].EvalCP >= mateThreshold {
		return candidates[0], nil
	}
	total := 0.0
	for i := 0; i < limit; i++ {
		total += p.CandidateWeights[i]
	}
	if total <= 0 {
		return candidates[0], nil
	}
	threshold := r.Float64() * total
	for i := 0; i < limit; i++ {
		threshold -= p.CandidateWeights[i]
		if threshold <= 0 {
			if p.EvalNoise > 0 && candidates[0].EvalCP-candidates[i].EvalCP > p.EvalNoise*4 {
				// 너무 나쁜 수는 고르지 않는다
				return candidates[0], nil
			}
			return candidates[i], nil
		}
	}
	return candidates[0], nil
}

const mateThreshold = 20000
