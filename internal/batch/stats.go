package batch

import (
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"
)

// Summary aggregates a batch run
type Summary struct {
	Pages    int `json:"pages"`
	Patched  int `json:"patched"`
	Failed   int `json:"failed"`
	Rewrites int `json:"rewrites"`

	MeanRewrites   float64       `json:"mean_rewrites"`
	StdDevRewrites float64       `json:"stddev_rewrites"`
	MedianDuration time.Duration `json:"median_duration"`
	P95Duration    time.Duration `json:"p95_duration"`
	MaxDuration    time.Duration `json:"max_duration"`

	Results []Result `json:"results"`
}

// summarize computes statistics over the patched pages; failures only
// count toward Failed
func summarize(results []Result) Summary {
	s := Summary{Pages: len(results), Results: results}

	var rewrites, durations []float64
	for _, r := range results {
		if r.Error != "" {
			s.Failed++
			continue
		}
		s.Patched++
		s.Rewrites += r.Rewrites
		rewrites = append(rewrites, float64(r.Rewrites))
		durations = append(durations, float64(r.Duration))
	}
	if len(rewrites) == 0 {
		return s
	}

	s.MeanRewrites, s.StdDevRewrites = stat.MeanStdDev(rewrites, nil)
	if len(rewrites) == 1 {
		s.StdDevRewrites = 0
	}

	sort.Float64s(durations)
	s.MedianDuration = time.Duration(stat.Quantile(0.5, stat.Empirical, durations, nil))
	s.P95Duration = time.Duration(stat.Quantile(0.95, stat.Empirical, durations, nil))
	s.MaxDuration = time.Duration(durations[len(durations)-1])
	return s
}
