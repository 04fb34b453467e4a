package vocab

// Frequency bands partition ranks 51..8000 into 1000-word buckets keyed by
// their upper bound. Ranks 1..50 are stop words and belong to no band.
const (
	StopWordRank  = 50
	MinWordLength = 3
	MaxBand       = 8000
	BandWidth     = 1000
)

// Bands lists the band upper bounds in ascending order.
var Bands = []int{1000, 2000, 3000, 4000, 5000, 6000, 7000, 8000}

// BandFor returns the band a rank belongs to: the smallest band upper bound
// that is >= rank. Ranks beyond the last band clamp to it.
func BandFor(rank int) int {
	if rank <= BandWidth {
		return BandWidth
	}
	band := ((rank + BandWidth - 1) / BandWidth) * BandWidth
	if band > MaxBand {
		return MaxBand
	}
	return band
}

// BandMinRank returns the lowest rank contained in a band. Band 1000 starts
// after the stop-word cutoff; every later band starts where the previous one
// ended.
func BandMinRank(band int) int {
	if band <= BandWidth {
		return StopWordRank + 1
	}
	return band - BandWidth + 1
}
