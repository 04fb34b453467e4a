package survey

import (
	"math/rand"
	"sort"

	"github.com/wordmine/wordmine/internal/vocab"
)

// Band-score weights. Sampling need and proximity to the estimate boundary
// pull a band in; heavy prior sampling pushes it out. Edge bands get a small
// bonus so the extremes stay probed.
const (
	weightSampleNeed = 0.35
	weightProximity  = 0.45
	weightPenalty    = 0.20

	proximityScale = 4000.0
	penaltyCap     = 0.4
	scoreFloor     = 0.01
	edgeBandBonus  = 0.05

	topBandChoices = 3
)

var edgeBands = map[int]bool{1000: true, 7000: true, 8000: true}

type bandScore struct {
	band  int
	score float64
}

// scoreBands ranks every band by how informative the next question there
// would be, given current per-band samples and the volume estimate.
func scoreBands(s *Session, minSamples, targetSamples int) []bandScore {
	boundary := vocab.BandFor(s.EstimatedVocab)

	scores := make([]bandScore, 0, len(vocab.Bands))
	for _, band := range vocab.Bands {
		tested := 0
		if p := s.BandPerformance[band]; p != nil {
			tested = p.Tested
		}

		need := 0.2
		switch {
		case tested < minSamples:
			need = 1.0
		case tested < targetSamples:
			need = 0.6
		}

		dist := float64(band - boundary)
		if dist < 0 {
			dist = -dist
		}
		proximity := 1 - dist/proximityScale
		if proximity < 0 {
			proximity = 0
		}

		penalty := float64(tested) / 8
		if penalty > penaltyCap {
			penalty = penaltyCap
		}

		score := weightSampleNeed*need + weightProximity*proximity - weightPenalty*penalty
		if score < scoreFloor {
			score = scoreFloor
		}
		if edgeBands[band] {
			score += edgeBandBonus
		}
		scores = append(scores, bandScore{band: band, score: score})
	}
	return scores
}

// nextBand picks among the top-scored bands proportionally to score. Bands
// still short of the per-band sample minimum are drawn from exclusively, so
// coverage closes before the boundary gets re-probed and full saturation
// stays reachable within the question budget.
func nextBand(rng *rand.Rand, s *Session, minSamples, targetSamples int) int {
	scores := scoreBands(s, minSamples, targetSamples)

	under := make([]bandScore, 0, len(scores))
	for _, bs := range scores {
		tested := 0
		if p := s.BandPerformance[bs.band]; p != nil {
			tested = p.Tested
		}
		if tested < minSamples {
			under = append(under, bs)
		}
	}
	if len(under) > 0 {
		scores = under
	}

	sort.SliceStable(scores, func(i, j int) bool {
		if scores[i].score != scores[j].score {
			return scores[i].score > scores[j].score
		}
		return scores[i].band < scores[j].band
	})

	top := scores
	if len(top) > topBandChoices {
		top = top[:topBandChoices]
	}
	total := 0.0
	for _, bs := range top {
		total += bs.score
	}
	pick := rng.Float64() * total
	for _, bs := range top {
		pick -= bs.score
		if pick < 0 {
			return bs.band
		}
	}
	return top[len(top)-1].band
}

// rankInBand draws a uniform rank inside the band, inset by a margin so
// questions avoid the band edges.
func rankInBand(rng *rand.Rand, band int) int {
	minRank := vocab.BandMinRank(band)
	maxRank := band

	margin := (maxRank - minRank) / 4
	if margin > 50 {
		margin = 50
	}
	lo := minRank + margin
	hi := maxRank - margin/2
	if hi <= lo {
		return minRank
	}
	return lo + rng.Intn(hi-lo+1)
}
