package srs

// Leech detection cutoffs shared by both algorithms.
const (
	DefaultFailureThreshold = 3
	DefaultEaseThreshold    = 1.5

	leechStabilityFloor = 0.5
	leechMinReviews     = 5
	leechCorrectRate    = 0.3
)

// Interval thresholds, in days, for the mastery ladder. FSRS cards use
// stability thresholds instead once the library has produced one.
const (
	familiarIntervalDays  = 7
	knownIntervalDays     = 30
	masteredIntervalDays  = 180
	permanentIntervalDays = 730

	familiarStreak = 3
	knownStreak    = 5
)

// DetectLeech reports whether the card should be flagged for manual
// attention. Leech status is sticky: once marked, a card stays marked.
func DetectLeech(s *CardState, failureThreshold int, easeThreshold float64) bool {
	if s.IsLeech {
		return true
	}
	// Only the FSRS adapter decrements the streak below zero; SM-2+ resets
	// it to 0 on failure, so its leeches surface through the ease cutoff.
	if s.ConsecutiveCorrect <= -failureThreshold {
		return true
	}
	if s.Algorithm == AlgorithmSM2Plus && s.EaseFactor > 0 && s.EaseFactor < easeThreshold {
		return true
	}
	if s.Algorithm == AlgorithmFSRS && s.TotalReviews > 0 && s.Stability > 0 && s.Stability < leechStabilityFloor {
		return true
	}
	if s.TotalReviews >= leechMinReviews && s.CorrectRate() < leechCorrectRate {
		return true
	}
	return false
}

// CalculateMastery classifies the card. FSRS cards are tiered by stability
// when available; otherwise the interval ladder applies, with streak gates
// so a lucky long interval alone cannot promote a card.
func CalculateMastery(s *CardState) MasteryLevel {
	if DetectLeech(s, DefaultFailureThreshold, DefaultEaseThreshold) {
		return MasteryLeech
	}
	if s.Algorithm == AlgorithmFSRS && s.Stability > 0 {
		switch {
		case s.Stability < 5:
			return MasteryLearning
		case s.Stability < 30:
			return MasteryFamiliar
		case s.Stability < 180:
			return MasteryKnown
		case s.Stability < 730:
			return MasteryMastered
		default:
			return MasteryPermanent
		}
	}
	cc := s.ConsecutiveCorrect
	switch {
	case s.CurrentInterval >= permanentIntervalDays && cc >= knownStreak:
		return MasteryPermanent
	case s.CurrentInterval >= masteredIntervalDays && cc >= knownStreak:
		return MasteryMastered
	case s.CurrentInterval >= knownIntervalDays && cc >= knownStreak:
		return MasteryKnown
	case s.CurrentInterval >= familiarIntervalDays && cc >= familiarStreak:
		return MasteryFamiliar
	default:
		return MasteryLearning
	}
}

// Solid reports whether a mastery level counts as retained for good, the
// threshold at which the economy mints a block for the sense.
func (m MasteryLevel) Solid() bool {
	switch m {
	case MasteryMastered, MasteryPermanent:
		return true
	default:
		return false
	}
}
