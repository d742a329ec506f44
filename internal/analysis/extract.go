package analysis

import (
	"encoding/json"
	"fmt"

	"github.com/seoforge/orchestrator/internal/dataforseo"
	"github.com/seoforge/orchestrator/internal/scoring"
)

// firstResult decodes the first task's result array and returns its first
// element. API live endpoints return exactly one task per request.
func firstResult(resp *dataforseo.Response) (map[string]any, error) {
	if len(resp.Tasks) == 0 {
		return nil, fmt.Errorf("analysis: response carries no tasks")
	}
	task := resp.Tasks[0]
	if len(task.Result) == 0 {
		return nil, fmt.Errorf("analysis: task %s carries no result", task.ID)
	}
	var results []map[string]any
	if err := json.Unmarshal(task.Result, &results); err != nil {
		return nil, fmt.Errorf("analysis: decode task result: %w", err)
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("analysis: task %s result array is empty", task.ID)
	}
	return results[0], nil
}

// allResults decodes the first task's full result array. Some endpoints
// return one record per keyword instead of a single result with items.
func allResults(resp *dataforseo.Response) ([]map[string]any, error) {
	if len(resp.Tasks) == 0 {
		return nil, fmt.Errorf("analysis: response carries no tasks")
	}
	task := resp.Tasks[0]
	if len(task.Result) == 0 {
		return nil, fmt.Errorf("analysis: task %s carries no result", task.ID)
	}
	var results []map[string]any
	if err := json.Unmarshal(task.Result, &results); err != nil {
		return nil, fmt.Errorf("analysis: decode task result: %w", err)
	}
	return results, nil
}

// items returns the result's items array, nil when absent.
func items(result map[string]any) []map[string]any {
	raw, ok := result["items"].([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(raw))
	for _, entry := range raw {
		if m, ok := entry.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

// num reads a numeric field; JSON numbers decode as float64.
func num(m map[string]any, key string) (float64, bool) {
	v, ok := m[key].(float64)
	return v, ok
}

func count(m map[string]any, key string) int {
	v, _ := num(m, key)
	return int(v)
}

func str(m map[string]any, key string) string {
	v, _ := m[key].(string)
	return v
}

func flag(m map[string]any, key string) (bool, bool) {
	v, ok := m[key].(bool)
	return v, ok
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func rec(priority scoring.Priority, message, rationale string, impact float64) scoring.Recommendation {
	return scoring.Recommendation{Priority: priority, Message: message, Rationale: rationale, Impact: impact}
}
