package timeseries

import "fmt"

// Pair holds two series of the same sensor sharing identical timestamps.
type Pair struct {
	X Series
	Y Series
}

// NewPair checks alignment and builds a pair. Callers join or resample
// before pairing; nothing is interpolated here.
func NewPair(x, y Series) (Pair, error) {
	if x.Len() != y.Len() {
		return Pair{}, fmt.Errorf("pair lengths %d and %d differ: %w", x.Len(), y.Len(), ErrMisalignedInput)
	}
	for i := 0; i < x.Len(); i++ {
		if !x.At(i).Timestamp.Equal(y.At(i).Timestamp) {
			return Pair{}, fmt.Errorf("pair timestamps differ at index %d: %w", i, ErrMisalignedInput)
		}
	}
	return Pair{X: x, Y: y}, nil
}

// Len returns the number of aligned rows.
func (p Pair) Len() int {
	return p.X.Len()
}

// AlignPair inner-joins x and y on timestamp. Rows present in only one
// series are dropped.
func AlignPair(x, y Series) Pair {
	aligned := Align(x, y)
	return Pair{X: aligned[0], Y: aligned[1]}
}

// Align inner-joins any number of series on timestamp.
func Align(series ...Series) []Series {
	seen := make(map[int64]int)
	for _, s := range series {
		for _, sample := range s.samples {
			seen[sample.Timestamp.UnixNano()]++
		}
	}

	out := make([]Series, len(series))
	for i, s := range series {
		var kept []Sample
		for _, sample := range s.samples {
			if seen[sample.Timestamp.UnixNano()] == len(series) {
				kept = append(kept, sample)
			}
		}
		out[i] = Series{samples: kept}
	}
	return out
}
