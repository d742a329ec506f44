package analysis

import (
	"context"
	"fmt"
	"strings"

	"github.com/seoforge/orchestrator/internal/scoring"
	"github.com/seoforge/orchestrator/internal/workflow"
)

// Local handlers compute over prior step outputs without touching the API.

func (s *Service) positionTrends(_ context.Context, wc *workflow.Context, _ workflow.Step) (*workflow.StepOutput, error) {
	positions := intMap(outputField(wc, "position_check", "positions"))
	if len(positions) == 0 {
		return nil, fmt.Errorf("analysis: trend analysis needs position data")
	}
	volumes := intMap(outputField(wc, "volume_metrics", "volumes"))

	var weighted, weightSum float64
	var belowFold []string
	for kw, pos := range positions {
		weight := 1.0
		if vol, ok := volumes[kw]; ok && vol > 0 {
			weight = float64(vol)
		}
		weighted += positionFactor(pos) * weight
		weightSum += weight
		if pos == 0 || pos > 10 {
			belowFold = append(belowFold, kw)
		}
	}

	visibility := 0.0
	if weightSum > 0 {
		visibility = clampScore(100 * weighted / weightSum)
	}

	var recs []scoring.Recommendation
	if len(belowFold) > 0 {
		recs = append(recs, rec(scoring.PriorityMedium,
			fmt.Sprintf("Improve rankings for %d keywords outside page one", len(belowFold)),
			"page-two positions capture almost no clicks", 8))
	}

	return &workflow.StepOutput{
		Dimension: scoring.DimensionContent,
		Score:     visibility,
		Data: map[string]any{
			"visibility": visibility,
			"below_fold": belowFold,
			"top10":      outputField(wc, "ranked_keywords", "top10"),
		},
		Recommendations: recs,
	}, nil
}

func (s *Service) keywordGap(_ context.Context, wc *workflow.Context, _ workflow.Step) (*workflow.StepOutput, error) {
	ranked := stringSlice(outputField(wc, "ranked_keywords", "top_keywords"))
	competitors := stringSlice(outputField(wc, "competitor_discovery", "competitors"))

	covered := make(map[string]bool, len(ranked))
	for _, kw := range ranked {
		covered[normalizeKeyword(kw)] = true
	}
	var missing []string
	for _, kw := range wc.Request.Keywords {
		if !covered[normalizeKeyword(kw)] {
			missing = append(missing, kw)
		}
	}

	var recs []scoring.Recommendation
	if len(missing) > 0 {
		recs = append(recs, rec(scoring.PriorityMedium,
			fmt.Sprintf("Create content targeting %d uncovered keywords", len(missing)),
			fmt.Sprintf("the site holds no top-10 position for these while %d competitors compete for them", len(competitors)), 7))
	}

	return &workflow.StepOutput{
		Data: map[string]any{
			"missing_keywords": missing,
			"competitors":      len(competitors),
		},
		Recommendations: recs,
	}, nil
}

func (s *Service) aggregate(_ context.Context, wc *workflow.Context, _ workflow.Step) (*workflow.StepOutput, error) {
	sums := make(map[scoring.Dimension]float64)
	counts := make(map[scoring.Dimension]int)
	var recs []scoring.Recommendation

	// Fold outputs in completion order so tied recommendations keep the
	// same position from run to run.
	for _, name := range wc.OutputNames() {
		out := wc.Outputs[name]
		if out == nil {
			continue
		}
		recs = append(recs, out.Recommendations...)
		if out.Dimension == "" {
			continue
		}
		sums[out.Dimension] += out.Score
		counts[out.Dimension]++
	}

	scores := make(map[scoring.Dimension]float64, len(sums))
	for dim, sum := range sums {
		scores[dim] = sum / float64(counts[dim])
	}

	for _, warning := range wc.Warnings {
		recs = append(recs, rec(scoring.PriorityLow, warning,
			"an optional analysis step failed; its dimension may be missing from the composite", 1))
	}

	report, err := s.aggregator.Aggregate(scores, recs)
	if err != nil {
		return nil, err
	}

	return &workflow.StepOutput{
		Report: report,
		Data: map[string]any{
			"composite":  report.Composite,
			"dimensions": len(report.Dimensions),
		},
	}, nil
}

func positionFactor(pos int) float64 {
	switch {
	case pos >= 1 && pos <= 3:
		return 1.0
	case pos <= 10 && pos > 0:
		return 0.6
	case pos <= 20 && pos > 0:
		return 0.3
	default:
		return 0
	}
}

// outputField reads one Data field from a named step's output, nil when
// the step did not run.
func outputField(wc *workflow.Context, step, field string) any {
	out := wc.Output(step)
	if out == nil || out.Data == nil {
		return nil
	}
	return out.Data[field]
}

// intMap tolerates both in-process map[string]int values and
// map[string]any from a JSON round trip.
func intMap(v any) map[string]int {
	switch m := v.(type) {
	case map[string]int:
		return m
	case map[string]any:
		out := make(map[string]int, len(m))
		for k, raw := range m {
			if f, ok := raw.(float64); ok {
				out[k] = int(f)
			}
		}
		return out
	default:
		return nil
	}
}

func stringSlice(v any) []string {
	switch s := v.(type) {
	case []string:
		return s
	case []any:
		out := make([]string, 0, len(s))
		for _, raw := range s {
			if str, ok := raw.(string); ok {
				out = append(out, str)
			}
		}
		return out
	default:
		return nil
	}
}

func normalizeKeyword(kw string) string {
	return strings.ToLower(strings.TrimSpace(kw))
}
