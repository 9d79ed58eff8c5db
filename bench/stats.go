package bench

import (
	"math"
	"sort"
)

// Stats is the immutable summary of one sample series. All value fields are
// NaN when Count is zero.
type Stats struct {
	Count  int
	Mean   float64
	P25    float64
	P50    float64
	P75    float64
	Min    float64
	Max    float64
	StdDev float64 // sample standard deviation (n-1)
}

// Summarize computes the summary of a slice of samples. The input is not
// modified.
func Summarize(samples []float64) Stats {
	n := len(samples)
	if n == 0 {
		nan := math.NaN()
		return Stats{Mean: nan, P25: nan, P50: nan, P75: nan, Min: nan, Max: nan, StdDev: nan}
	}

	sum := 0.0
	minV, maxV := samples[0], samples[0]
	for _, v := range samples {
		sum += v
		minV = math.Min(minV, v)
		maxV = math.Max(maxV, v)
	}
	mean := sum / float64(n)

	sorted := make([]float64, n)
	copy(sorted, samples)
	sort.Float64s(sorted)

	variance := 0.0
	if n > 1 {
		for _, v := range samples {
			d := v - mean
			variance += d * d
		}
		variance /= float64(n - 1)
	}

	return Stats{
		Count:  n,
		Mean:   mean,
		P25:    percentile(sorted, 0.25),
		P50:    percentile(sorted, 0.50),
		P75:    percentile(sorted, 0.75),
		Min:    minV,
		Max:    maxV,
		StdDev: math.Sqrt(variance),
	}
}

// percentile interpolates linearly between the two nearest ranks of an
// ascending-sorted slice.
func percentile(sorted []float64, q float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[n-1]
	}
	pos := q * float64(n-1)
	i := int(math.Floor(pos))
	j := int(math.Ceil(pos))
	t := pos - float64(i)
	return (1-t)*sorted[i] + t*sorted[j]
}

// SampleSeries is the ordered latencies of one size class and operation over
// a benchmark run. Insertion order is trial order.
type SampleSeries struct {
	Class     SizeClass
	Op        Operation
	BlockSize int64 // logical bytes per trial
	BaseAddr  int64
	ElapsedUS []float64
}

// Add appends one trial latency in microseconds.
func (s *SampleSeries) Add(us float64) {
	s.ElapsedUS = append(s.ElapsedUS, us)
}

// Stats summarizes the series latencies.
func (s *SampleSeries) Stats() Stats {
	return Summarize(s.ElapsedUS)
}

// MBps converts a byte count and elapsed microseconds into MiB-based
// throughput, matching the log-record throughput column.
func MBps(bytes int64, elapsedUS float64) float64 {
	if elapsedUS <= 0 {
		return 0
	}
	return (float64(bytes) / (1024 * 1024)) / (elapsedUS / 1e6)
}
