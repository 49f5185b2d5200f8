package trend

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat/distuv"
)

// maxExactKendall is the largest sample size for which the exact null
// distribution is used when there are no ties.
const maxExactKendall = 33

// kendall returns Kendall's tau-b between x and y and its two-sided p-value.
// When either input is constant tau is 0 and the p-value 1.
func kendall(x, y []float64) (tau, pValue float64) {
	n := len(x)
	var concordant, discordant, tiesX, tiesY int
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			dx := sign(x[j] - x[i])
			dy := sign(y[j] - y[i])
			if dx == 0 {
				tiesX++
			}
			if dy == 0 {
				tiesY++
			}
			switch {
			case dx == 0 || dy == 0:
			case dx == dy:
				concordant++
			default:
				discordant++
			}
		}
	}

	total := n * (n - 1) / 2
	denom := math.Sqrt(float64(total-tiesX) * float64(total-tiesY))
	if denom == 0 {
		return 0, 1
	}
	tau = float64(concordant-discordant) / denom

	if tiesX == 0 && tiesY == 0 && n <= maxExactKendall {
		return tau, exactKendallP(n, discordant)
	}
	return tau, asymptoticKendallP(x, y, concordant-discordant)
}

// exactKendallP is the two-sided p-value of observing this many discordant
// pairs among n untied ranks.
func exactKendallP(n, discordant int) float64 {
	total := n * (n - 1) / 2
	c := discordant
	if total-discordant < c {
		c = total - discordant
	}

	dist := inversionDistribution(n)
	p := 0.0
	for k := 0; k <= c; k++ {
		p += dist[k]
	}
	return math.Min(1, 2*p)
}

// inversionDistribution returns P(K = k) for the number of inversions K of
// a uniformly random permutation of n elements.
func inversionDistribution(n int) []float64 {
	dist := []float64{1}
	for m := 2; m <= n; m++ {
		next := make([]float64, len(dist)+m-1)
		for k, p := range dist {
			share := p / float64(m)
			for j := 0; j < m; j++ {
				next[k+j] += share
			}
		}
		dist = next
	}
	return dist
}

// asymptoticKendallP uses the tie-corrected normal approximation of S.
func asymptoticKendallP(x, y []float64, s int) float64 {
	n := float64(len(x))
	m := n * (n - 1)

	xPairs, x0, x1 := tieTerms(x)
	yPairs, y0, y1 := tieTerms(y)

	variance := (m*(2*n+5)-x1-y1)/18 + 2*xPairs*yPairs/m
	if n > 2 {
		variance += x0 * y0 / (9 * m * (n - 2))
	}
	if variance <= 0 {
		return 1
	}

	z := float64(s) / math.Sqrt(variance)
	return math.Min(1, 2*distuv.UnitNormal.Survival(math.Abs(z)))
}

// tieTerms returns, over groups of t equal values, the sums of t(t-1)/2,
// t(t-1)(t-2) and t(t-1)(2t+5).
func tieTerms(values []float64) (pairs, cubic, variance float64) {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	for i := 0; i < len(sorted); {
		j := i + 1
		for j < len(sorted) && sorted[j] == sorted[i] {
			j++
		}
		if t := float64(j - i); t > 1 {
			pairs += t * (t - 1) / 2
			cubic += t * (t - 1) * (t - 2)
			variance += t * (t - 1) * (2*t + 5)
		}
		i = j
	}
	return pairs, cubic, variance
}

func sign(v float64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}
