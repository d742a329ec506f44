package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAggregator(t *testing.T) *Aggregator {
	t.Helper()
	a, err := NewAggregator(nil)
	require.NoError(t, err)
	return a
}

func TestCompositeAllDimensions(t *testing.T) {
	a := newAggregator(t)
	report, err := a.Aggregate(map[Dimension]float64{
		DimensionTechnical:   80,
		DimensionContent:     60,
		DimensionPerformance: 90,
		DimensionAuthority:   50,
	}, nil)
	require.NoError(t, err)
	// 80*0.4 + 60*0.3 + 90*0.2 + 50*0.1 = 73
	assert.InDelta(t, 73.0, report.Composite, 1e-9)
}

func TestSingleDimensionUnscaled(t *testing.T) {
	a := newAggregator(t)
	report, err := a.Aggregate(map[Dimension]float64{DimensionTechnical: 80}, nil)
	require.NoError(t, err)
	assert.InDelta(t, 80.0, report.Composite, 1e-9, "redistribution must not scale a lone dimension")
}

func TestRedistributionWithSkippedAuthority(t *testing.T) {
	a := newAggregator(t)
	report, err := a.Aggregate(map[Dimension]float64{
		DimensionTechnical:   90,
		DimensionContent:     70,
		DimensionPerformance: 60,
	}, nil)
	require.NoError(t, err)
	// 90*(0.4/0.9) + 70*(0.3/0.9) + 60*(0.2/0.9) = 76.666... -> 76.7
	assert.InDelta(t, 76.7, report.Composite, 1e-9)
}

func TestNoDimensionsYieldsZeroComposite(t *testing.T) {
	a := newAggregator(t)
	report, err := a.Aggregate(nil, []Recommendation{{Priority: PriorityLow, Message: "check tracking setup", Impact: 1}})
	require.NoError(t, err)
	assert.Zero(t, report.Composite)
	assert.Len(t, report.Recommendations, 1)
}

func TestWeightOverrides(t *testing.T) {
	a, err := NewAggregator(map[Dimension]float64{DimensionTechnical: 0.7, DimensionContent: 0.3})
	require.NoError(t, err)
	report, err := a.Aggregate(map[Dimension]float64{
		DimensionTechnical: 100,
		DimensionContent:   0,
	}, nil)
	require.NoError(t, err)
	assert.InDelta(t, 70.0, report.Composite, 1e-9)
}

func TestInvalidInputs(t *testing.T) {
	_, err := NewAggregator(map[Dimension]float64{DimensionTechnical: -1})
	assert.Error(t, err)

	_, err = NewAggregator(map[Dimension]float64{"vibes": 0.5})
	assert.Error(t, err)

	a := newAggregator(t)
	_, err = a.Aggregate(map[Dimension]float64{DimensionTechnical: 140}, nil)
	assert.Error(t, err)

	_, err = a.Aggregate(map[Dimension]float64{"vibes": 10}, nil)
	assert.Error(t, err)
}

func TestRecommendationOrderingStable(t *testing.T) {
	a := newAggregator(t)
	recs := []Recommendation{
		{Priority: PriorityLow, Message: "first low", Impact: 2},
		{Priority: PriorityCritical, Message: "critical", Impact: 5},
		{Priority: PriorityMedium, Message: "tied medium A", Impact: 3},
		{Priority: PriorityMedium, Message: "tied medium B", Impact: 3},
		{Priority: PriorityHigh, Message: "high", Impact: 1},
	}
	report, err := a.Aggregate(map[Dimension]float64{DimensionTechnical: 50}, recs)
	require.NoError(t, err)

	got := make([]string, 0, len(report.Recommendations))
	for _, r := range report.Recommendations {
		got = append(got, r.Message)
	}
	// critical=20, medium ties=6 each (input order), high=3, low=2.
	assert.Equal(t, []string{"critical", "tied medium A", "tied medium B", "high", "first low"}, got)

	// Input slice is left untouched.
	assert.Equal(t, "first low", recs[0].Message)
}
