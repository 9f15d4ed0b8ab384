package analytics

import (
	"math"
	"sort"
	"time"

	"github.com/eljaska/telara/pkg/models"
)

// metricLabels maps wire names to display names used in insight strings.
var metricLabels = map[string]string{
	models.MetricHeartRate:       "Heart Rate",
	models.MetricHRV:             "HRV",
	models.MetricSpO2:            "Blood Oxygen",
	models.MetricSkinTemp:        "Temperature",
	models.MetricActivityLevel:   "Activity Level",
	models.MetricSleepQuality:    "Sleep Quality",
	models.MetricRespiratoryRate: "Respiratory Rate",
}

func label(metric string) string {
	if l, ok := metricLabels[metric]; ok {
		return l
	}
	return metric
}

// sample is one timestamped metric observation.
type sample struct {
	ts    time.Time
	value float64
}

// series extracts the named metric from events, sorted ascending by time.
func series(events []*models.VitalEvent, metric string) []sample {
	out := make([]sample, 0, len(events))
	for _, ev := range events {
		if v, ok := ev.Metric(metric); ok {
			out = append(out, sample{ts: ev.Timestamp, value: v})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ts.Before(out[j].ts) })
	return out
}

// values extracts the named metric without ordering.
func values(events []*models.VitalEvent, metric string) []float64 {
	var out []float64
	for _, ev := range events {
		if v, ok := ev.Metric(metric); ok {
			out = append(out, v)
		}
	}
	return out
}

func mean(vs []float64) float64 {
	if len(vs) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range vs {
		sum += v
	}
	return sum / float64(len(vs))
}

func minMax(vs []float64) (float64, float64) {
	if len(vs) == 0 {
		return 0, 0
	}
	lo, hi := vs[0], vs[0]
	for _, v := range vs[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

// pearson computes the Pearson correlation coefficient over aligned slices.
func pearson(xs, ys []float64) float64 {
	if len(xs) != len(ys) || len(xs) < 3 {
		return 0
	}
	mx, my := mean(xs), mean(ys)
	var num, dx, dy float64
	for i := range xs {
		num += (xs[i] - mx) * (ys[i] - my)
		dx += (xs[i] - mx) * (xs[i] - mx)
		dy += (ys[i] - my) * (ys[i] - my)
	}
	if dx == 0 || dy == 0 {
		return 0
	}
	return num / (math.Sqrt(dx) * math.Sqrt(dy))
}

// linearFit is least-squares over (x, y). Returns slope, intercept, r².
func linearFit(xs, ys []float64) (float64, float64, float64) {
	n := float64(len(xs))
	if n < 2 {
		return 0, 0, 0
	}
	var sumX, sumY, sumXY, sumX2 float64
	for i := range xs {
		sumX += xs[i]
		sumY += ys[i]
		sumXY += xs[i] * ys[i]
		sumX2 += xs[i] * xs[i]
	}
	denom := n*sumX2 - sumX*sumX
	if denom == 0 {
		return 0, sumY / n, 0
	}
	slope := (n*sumXY - sumX*sumY) / denom
	intercept := (sumY - slope*sumX) / n

	yMean := sumY / n
	var ssTot, ssRes float64
	for i := range xs {
		ssTot += (ys[i] - yMean) * (ys[i] - yMean)
		fit := slope*xs[i] + intercept
		ssRes += (ys[i] - fit) * (ys[i] - fit)
	}
	r2 := 0.0
	if ssTot > 0 {
		r2 = 1 - ssRes/ssTot
	}
	if r2 < 0 {
		r2 = 0
	}
	return slope, intercept, r2
}
