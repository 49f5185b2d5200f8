package anomaly

import (
	"math"

	"github.com/septivank/waterquality-analytics-worker/internal/timeseries"
)

// window is a fixed-size circular buffer that keeps running sums of the
// values it holds, shifted by a constant to limit cancellation error.
type window struct {
	buf     []float64
	head    int
	size    int
	shift   float64
	sum     float64
	sumSq   float64
	missing int
}

func newWindow(capacity int, shift float64) *window {
	return &window{buf: make([]float64, capacity), shift: shift}
}

func (w *window) full() bool {
	return w.size == len(w.buf)
}

// push appends v, evicting the oldest value when the buffer is full.
func (w *window) push(v float64) {
	if w.full() {
		w.remove(w.buf[w.head])
	} else {
		w.size++
	}
	w.buf[w.head] = v
	w.head = (w.head + 1) % len(w.buf)
	w.add(v)
}

func (w *window) add(v float64) {
	if timeseries.IsMissing(v) {
		w.missing++
		return
	}
	d := v - w.shift
	w.sum += d
	w.sumSq += d * d
}

func (w *window) remove(v float64) {
	if timeseries.IsMissing(v) {
		w.missing--
		return
	}
	d := v - w.shift
	w.sum -= d
	w.sumSq -= d * d
}

// stats returns the mean and sample standard deviation of a full window
// without missing values, NaN otherwise.
func (w *window) stats() (mean, std float64) {
	n := float64(w.size)
	if !w.full() || w.missing > 0 || w.size < 2 {
		return math.NaN(), math.NaN()
	}

	mean = w.shift + w.sum/n
	variance := (w.sumSq - w.sum*w.sum/n) / (n - 1)
	if variance < 0 {
		variance = 0
	}
	return mean, math.Sqrt(variance)
}

// centeredRollingStats returns the rolling mean and sample standard
// deviation of a window of size w centered on each index. The window for
// index i spans [i-w/2, i-w/2+w-1]. Indexes within w/2 of either end, and
// windows holding a missing value, get NaN.
func centeredRollingStats(values []float64, w int) (means, stds []float64) {
	n := len(values)
	means = make([]float64, n)
	stds = make([]float64, n)
	for i := range means {
		means[i], stds[i] = math.NaN(), math.NaN()
	}

	half := w / 2
	buf := newWindow(w, firstPresent(values))
	for end := 0; end < n; end++ {
		buf.push(values[end])
		if !buf.full() {
			continue
		}

		center := end - w + 1 + half
		if center-half < 0 || center+half > n-1 {
			continue
		}
		means[center], stds[center] = buf.stats()
	}
	return means, stds
}

func firstPresent(values []float64) float64 {
	for _, v := range values {
		if !timeseries.IsMissing(v) {
			return v
		}
	}
	return 0
}
