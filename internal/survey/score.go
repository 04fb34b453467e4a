package survey

import (
	"math"
	"sort"

	"github.com/wordmine/wordmine/internal/vocab"
)

// Confidence component weights. Question-count saturation, band coverage,
// answer monotonicity, and bound stability combine into one score.
const (
	weightQuestions    = 0.25
	weightCoverage     = 0.30
	weightMonotonicity = 0.25
	weightStability    = 0.20

	questionSaturation = 30
)

// interpolationDecay steps accuracy down per untested band when estimating
// volume.
const interpolationDecay = 0.15

// confidenceScore computes the session's current confidence in [0,1].
func confidenceScore(s *Session, minSamples int) float64 {
	q := float64(s.QuestionCount) / questionSaturation
	if q > 1 {
		q = 1
	}
	c := float64(s.bandsTestedAtLeast(minSamples)) / float64(len(vocab.Bands))
	m := monotonicity(s.History)
	st := stability(s)
	return weightQuestions*q + weightCoverage*c + weightMonotonicity*m + weightStability*st
}

// monotonicity measures how consistently harder words grade worse: over
// history sorted by rank, the fraction of adjacent pairs that are not a
// wrong answer followed by a correct one. Fewer than two data points give
// the neutral 0.5.
func monotonicity(history []HistoryEntry) float64 {
	if len(history) < 2 {
		return 0.5
	}
	sorted := make([]HistoryEntry, len(history))
	copy(sorted, history)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Rank < sorted[j].Rank })

	inversions := 0
	pairs := len(sorted) - 1
	for i := 0; i < pairs; i++ {
		if !sorted[i].Correct && sorted[i+1].Correct {
			inversions++
		}
	}
	return 1 - float64(inversions)/float64(pairs)
}

// stability proxies estimate convergence from the rank bounds. Wide-open
// bounds or a short session score low.
func stability(s *Session) float64 {
	if s.QuestionCount < 5 {
		return 0.3
	}
	spread := s.HighBound - s.LowBound
	switch {
	case spread < 2000:
		return 0.9
	case spread < 4000:
		return 0.6
	default:
		return 0.3
	}
}

// volumeEstimate sums per-band accuracy times the band width. Untested bands
// above a tested one step the previous accuracy down; untested bands below
// the first tested band inherit its accuracy, since easier words are at
// least as likely known.
func volumeEstimate(s *Session) float64 {
	first := -1
	for i, band := range vocab.Bands {
		if p := s.BandPerformance[band]; p != nil && p.Tested > 0 {
			first = i
			break
		}
	}
	if first < 0 {
		return 0
	}
	volume := 0.0
	prev := s.BandPerformance[vocab.Bands[first]].Accuracy()
	for i, band := range vocab.Bands {
		acc := prev
		if i > first {
			acc = prev - interpolationDecay
			if acc < 0 {
				acc = 0
			}
		}
		if p := s.BandPerformance[band]; p != nil && p.Tested > 0 {
			acc = p.Accuracy()
		}
		volume += acc * vocab.BandWidth
		prev = acc
	}
	if volume < 0 {
		return 0
	}
	if volume > vocab.MaxBand {
		return vocab.MaxBand
	}
	return volume
}

// reach finds the highest band the learner handles reliably: tested at least
// minSamples times with accuracy >= 0.5; failing that, the highest band with
// any tested answers and accuracy >= 0.5; failing that, the lowest tested
// band.
func reach(s *Session, minSamples int) int {
	best := 0
	for _, band := range vocab.Bands {
		p := s.BandPerformance[band]
		if p != nil && p.Tested >= minSamples && p.Accuracy() >= 0.5 {
			best = band
		}
	}
	if best > 0 {
		return best
	}
	for _, band := range vocab.Bands {
		p := s.BandPerformance[band]
		if p != nil && p.Tested > 0 && p.Accuracy() >= 0.5 {
			best = band
		}
	}
	if best > 0 {
		return best
	}
	for _, band := range vocab.Bands {
		if p := s.BandPerformance[band]; p != nil && p.Tested > 0 {
			return band
		}
	}
	return 0
}

// density summarizes answer consistency: 0 with no correct answers, 1 with
// no wrong ones, otherwise the monotonicity score.
func density(s *Session) float64 {
	correct, total := 0, 0
	for _, entry := range s.History {
		total++
		if entry.Correct {
			correct++
		}
	}
	switch {
	case total == 0 || correct == 0:
		return 0
	case correct == total:
		return 1
	default:
		return monotonicity(s.History)
	}
}

// refreshDerived recomputes the session's confidence and volume estimate
// after a graded answer.
func refreshDerived(s *Session, minSamples int) {
	s.Confidence = confidenceScore(s, minSamples)
	s.EstimatedVocab = int(math.Round(volumeEstimate(s)))
}
