// Package scoring combines per-dimension analysis scores into a weighted
// composite report with prioritized recommendations.
package scoring

import (
	"fmt"
	"math"
	"sort"
)

type Dimension string

const (
	DimensionTechnical   Dimension = "technical"
	DimensionContent     Dimension = "content"
	DimensionPerformance Dimension = "performance"
	DimensionAuthority   Dimension = "authority"
)

// DefaultWeights is the stock weighting of audit dimensions.
func DefaultWeights() map[Dimension]float64 {
	return map[Dimension]float64{
		DimensionTechnical:   0.40,
		DimensionContent:     0.30,
		DimensionPerformance: 0.20,
		DimensionAuthority:   0.10,
	}
}

type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

func priorityWeight(p Priority) float64 {
	switch p {
	case PriorityCritical:
		return 4
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	default:
		return 1
	}
}

type Recommendation struct {
	Priority  Priority `json:"priority"`
	Message   string   `json:"message"`
	Rationale string   `json:"rationale,omitempty"`
	// Impact is the estimated composite score improvement, 0-100 scale.
	Impact float64 `json:"impact"`
}

// Report is derived data, recomputed per run and never mutated afterwards.
type Report struct {
	Dimensions      map[Dimension]float64 `json:"dimensions"`
	Composite       float64               `json:"composite"`
	Recommendations []Recommendation      `json:"recommendations"`
}

type Aggregator struct {
	weights map[Dimension]float64
}

// NewAggregator builds an aggregator with the default weights, overridden
// per dimension by overrides. Weights must be positive.
func NewAggregator(overrides map[Dimension]float64) (*Aggregator, error) {
	weights := DefaultWeights()
	for dim, w := range overrides {
		if w <= 0 {
			return nil, fmt.Errorf("scoring: weight for %s must be positive, got %v", dim, w)
		}
		if _, ok := weights[dim]; !ok {
			return nil, fmt.Errorf("scoring: unknown dimension %q", dim)
		}
		weights[dim] = w
	}
	return &Aggregator{weights: weights}, nil
}

// Aggregate computes the weighted composite over the dimensions present in
// scores. Weights of absent dimensions are redistributed proportionally so
// the composite stays on a 0-100 scale; a single present dimension yields
// its own score unscaled. Recommendations are ordered by
// priorityWeight x impact descending, input order preserved on ties.
func (a *Aggregator) Aggregate(scores map[Dimension]float64, recs []Recommendation) (*Report, error) {
	dims := make(map[Dimension]float64, len(scores))
	var weightSum, weighted float64
	for dim, score := range scores {
		w, ok := a.weights[dim]
		if !ok {
			return nil, fmt.Errorf("scoring: unknown dimension %q", dim)
		}
		if score < 0 || score > 100 {
			return nil, fmt.Errorf("scoring: %s score %v out of range", dim, score)
		}
		dims[dim] = score
		weightSum += w
		weighted += score * w
	}

	composite := 0.0
	if weightSum > 0 {
		composite = round1(weighted / weightSum)
	}

	ordered := append([]Recommendation(nil), recs...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return priorityScore(ordered[i]) > priorityScore(ordered[j])
	})

	return &Report{
		Dimensions:      dims,
		Composite:       composite,
		Recommendations: ordered,
	}, nil
}

func priorityScore(r Recommendation) float64 {
	return priorityWeight(r.Priority) * r.Impact
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
