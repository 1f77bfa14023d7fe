package stats

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

const (
	minBins = 10
	maxBins = 50
)

// CurvePoint is one step of the cumulative probability curve.
type CurvePoint struct {
	Draws         int     `json:"draws"`
	CumulativePct float64 `json:"cumulative_pct"`
}

// HistogramBin is one non-empty bin of the binned histogram.
type HistogramBin struct {
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Center     float64 `json:"center"`
	Count      uint64  `json:"count"`
	Percentage float64 `json:"percentage"`
}

// SigmaRange is a mean±k·sigma interval with the fraction of trials it
// covers. Low is clamped at 0 since draw counts cannot be negative.
type SigmaRange struct {
	Low      float64 `json:"low"`
	High     float64 `json:"high"`
	Coverage float64 `json:"coverage"`
}

// CentralStats are the weighted summary statistics derived from the
// bucket.
type CentralStats struct {
	Mean   float64       `json:"mean"`
	Median float64       `json:"median"`
	P25    float64       `json:"p25"`
	P75    float64       `json:"p75"`
	Sigma  float64       `json:"sigma"`
	Ranges [3]SigmaRange `json:"sigma_ranges"` // k = 1, 2, 3
}

// CategoryStats summarizes one prize category over the whole run.
type CategoryStats struct {
	Count              uint64  `json:"count"`
	AveragePer100Draws float64 `json:"average_per_100_draws"`
}

// Report is the queryable result of a completed run. It is derived
// from accumulator state without mutating it and can be rebuilt
// repeatedly with identical content.
type Report struct {
	TotalTrials uint64                   `json:"total_trials"`
	Bucket      DrawsBucket              `json:"bucket"`
	Curve       []CurvePoint             `json:"curve"`
	Bins        []HistogramBin           `json:"bins"`
	Central     CentralStats             `json:"central"`
	Categories  map[string]CategoryStats `json:"categories"`
}

// Report derives the full statistics view from the accumulator.
func (a *Accumulator) Report() *Report {
	r := &Report{
		TotalTrials: a.trials,
		Bucket:      a.bucket.Clone(),
		Categories:  make(map[string]CategoryStats, len(a.hits)),
	}
	for name, n := range a.hits {
		cs := CategoryStats{Count: n}
		if a.draws > 0 {
			cs.AveragePer100Draws = float64(n) / float64(a.draws) * 100
		}
		r.Categories[name] = cs
	}
	if a.trials == 0 {
		return r
	}

	keys := a.bucket.Keys()
	xs := make([]float64, len(keys))
	ws := make([]float64, len(keys))
	for i, k := range keys {
		xs[i] = float64(k)
		ws[i] = float64(a.bucket[k])
	}
	total := float64(a.trials)

	r.Curve = cumulativeCurve(keys, a.bucket, total)
	r.Bins = binned(keys, a.bucket, a.trials)
	r.Central = central(xs, ws, keys, a.bucket, total)
	return r
}

func cumulativeCurve(keys []int, b DrawsBucket, total float64) []CurvePoint {
	out := make([]CurvePoint, 0, len(keys))
	var cum uint64
	for _, k := range keys {
		cum += b[k]
		out = append(out, CurvePoint{
			Draws:         k,
			CumulativePct: float64(cum) / total * 100,
		})
	}
	return out
}

func binned(keys []int, b DrawsBucket, trials uint64) []HistogramBin {
	total := float64(trials)
	n := int(math.Sqrt(total))
	if n < minBins {
		n = minBins
	}
	if n > maxBins {
		n = maxBins
	}

	min, max := keys[0], keys[len(keys)-1]
	if min == max {
		// degenerate: every trial took the same number of draws
		v := float64(min)
		return []HistogramBin{{Start: v, End: v, Center: v, Count: trials, Percentage: 100}}
	}

	width := float64(max-min) / float64(n)
	counts := make([]uint64, n)
	for _, k := range keys {
		idx := int(float64(k-min) / width)
		if idx >= n {
			// the last bin is inclusive on both ends
			idx = n - 1
		}
		counts[idx] += b[k]
	}

	out := make([]HistogramBin, 0, n)
	for i, c := range counts {
		if c == 0 {
			continue
		}
		start := float64(min) + float64(i)*width
		out = append(out, HistogramBin{
			Start:      start,
			End:        start + width,
			Center:     start + width/2,
			Count:      c,
			Percentage: float64(c) / total * 100,
		})
	}
	return out
}

func central(xs, ws []float64, keys []int, b DrawsBucket, total float64) CentralStats {
	mean := stat.Mean(xs, ws)
	sigma := stat.PopStdDev(xs, ws)

	cs := CentralStats{
		Mean:   mean,
		Median: stat.Quantile(0.5, stat.Empirical, xs, ws),
		P25:    stat.Quantile(0.25, stat.Empirical, xs, ws),
		P75:    stat.Quantile(0.75, stat.Empirical, xs, ws),
		Sigma:  sigma,
	}
	for k := 1; k <= 3; k++ {
		low := mean - float64(k)*sigma
		if low < 0 {
			low = 0
		}
		high := mean + float64(k)*sigma
		var covered uint64
		for _, v := range keys {
			if float64(v) >= low && float64(v) <= high {
				covered += b[v]
			}
		}
		cs.Ranges[k-1] = SigmaRange{
			Low:      low,
			High:     high,
			Coverage: float64(covered) / total,
		}
	}
	return cs
}
