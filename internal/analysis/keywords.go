package analysis

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/seoforge/orchestrator/internal/scoring"
	"github.com/seoforge/orchestrator/internal/workflow"
)

// maxTrackedKeywords caps SERP lookups per run; each keyword costs one
// API call and a rate limit slot.
const maxTrackedKeywords = 10

func (s *Service) serpSnapshot(ctx context.Context, wc *workflow.Context, _ workflow.Step) (*workflow.StepOutput, error) {
	keywords := wc.Request.Keywords
	if len(keywords) == 0 {
		return nil, fmt.Errorf("%w: no keywords to check positions for", workflow.ErrSkipped)
	}
	if len(keywords) > maxTrackedKeywords {
		keywords = keywords[:maxTrackedKeywords]
	}

	device := wc.Request.Params["device"]
	positions := make(map[string]int, len(keywords))
	for _, kw := range keywords {
		resp, err := s.client.FetchSERP(ctx, kw, device)
		if err != nil {
			return nil, fmt.Errorf("serp for %q: %w", kw, err)
		}
		result, err := firstResult(resp)
		if err != nil {
			return nil, err
		}
		positions[kw] = targetPosition(items(result), wc.Request.Target)
	}

	return &workflow.StepOutput{
		Data: map[string]any{
			"positions": positions,
			"tracked":   len(positions),
		},
	}, nil
}

func (s *Service) keywordMetrics(ctx context.Context, wc *workflow.Context, _ workflow.Step) (*workflow.StepOutput, error) {
	keywords := wc.Request.Keywords
	if len(keywords) == 0 {
		return nil, fmt.Errorf("%w: no keywords supplied", workflow.ErrSkipped)
	}

	resp, err := s.client.FetchSearchVolume(ctx, keywords)
	if err != nil {
		return nil, err
	}
	results, err := allResults(resp)
	if err != nil {
		return nil, err
	}

	volumes := make(map[string]int)
	for _, entry := range results {
		if kw := str(entry, "keyword"); kw != "" {
			volumes[kw] = count(entry, "search_volume")
		}
	}

	return &workflow.StepOutput{
		Data: map[string]any{"volumes": volumes},
	}, nil
}

func (s *Service) rankedKeywords(ctx context.Context, wc *workflow.Context, _ workflow.Step) (*workflow.StepOutput, error) {
	resp, err := s.client.FetchRankedKeywords(ctx, wc.Request.Target)
	if err != nil {
		return nil, err
	}
	result, err := firstResult(resp)
	if err != nil {
		return nil, err
	}

	var top10, top3 int
	var topKeywords []string
	for _, item := range items(result) {
		pos := count(item, "rank_absolute")
		if pos == 0 || pos > 10 {
			continue
		}
		top10++
		if pos <= 3 {
			top3++
		}
		if kw := str(item, "keyword"); kw != "" {
			topKeywords = append(topKeywords, kw)
		}
	}

	return &workflow.StepOutput{
		Data: map[string]any{
			"total_ranked": count(result, "total_count"),
			"top10":        top10,
			"top3":         top3,
			"top_keywords": topKeywords,
		},
	}, nil
}

func (s *Service) competitorDomains(ctx context.Context, wc *workflow.Context, _ workflow.Step) (*workflow.StepOutput, error) {
	seen := make(map[string]bool)
	var competitors []string
	for _, domain := range wc.Request.Competitors {
		if !seen[domain] {
			seen[domain] = true
			competitors = append(competitors, domain)
		}
	}

	resp, err := s.client.FetchCompetitors(ctx, wc.Request.Target)
	if err != nil {
		return nil, err
	}
	result, err := firstResult(resp)
	if err != nil {
		return nil, err
	}
	for _, item := range items(result) {
		domain := str(item, "domain")
		if domain == "" || domain == wc.Request.Target || seen[domain] {
			continue
		}
		seen[domain] = true
		competitors = append(competitors, domain)
	}

	if len(competitors) == 0 {
		return nil, fmt.Errorf("%w: no competitors found for %s", workflow.ErrSkipped, wc.Request.Target)
	}
	return &workflow.StepOutput{
		Data: map[string]any{"competitors": competitors},
	}, nil
}

// maxComparedDomains bounds the metric fan-out for competitor runs.
const maxComparedDomains = 5

func (s *Service) domainMetrics(ctx context.Context, wc *workflow.Context, _ workflow.Step) (*workflow.StepOutput, error) {
	domains := append([]string{wc.Request.Target}, wc.Request.Competitors...)
	if len(domains) > maxComparedDomains+1 {
		domains = domains[:maxComparedDomains+1]
	}

	metrics := make(map[string]map[string]any, len(domains))
	for _, domain := range domains {
		resp, err := s.client.FetchDomainMetrics(ctx, domain)
		if err != nil {
			return nil, fmt.Errorf("domain metrics for %s: %w", domain, err)
		}
		result, err := firstResult(resp)
		if err != nil {
			return nil, err
		}
		metrics[domain] = map[string]any{
			"organic_traffic":  count(result, "organic_traffic"),
			"organic_keywords": count(result, "organic_keywords"),
		}
	}

	return &workflow.StepOutput{
		Data: map[string]any{"domains": metrics},
	}, nil
}

func (s *Service) backlinkProfile(ctx context.Context, wc *workflow.Context, _ workflow.Step) (*workflow.StepOutput, error) {
	resp, err := s.client.FetchBacklinks(ctx, wc.Request.Target, 0)
	if err != nil {
		return nil, err
	}
	result, err := firstResult(resp)
	if err != nil {
		return nil, err
	}

	total := count(result, "total_count")
	if total == 0 {
		return nil, fmt.Errorf("%w: no backlink data for %s", workflow.ErrSkipped, wc.Request.Target)
	}
	referring := count(result, "referring_domains")

	// Log scale: 10 domains -> ~21, 1k -> ~60, 100k -> 100.
	score := clampScore(20 * math.Log10(float64(referring)+1))
	var recs []scoring.Recommendation
	if referring < 50 {
		recs = append(recs, rec(scoring.PriorityHigh, "Grow referring domains",
			fmt.Sprintf("only %d domains link to the site; authority trails the niche", referring), 10))
	}

	return &workflow.StepOutput{
		Dimension: scoring.DimensionAuthority,
		Score:     score,
		Data: map[string]any{
			"backlinks":         total,
			"referring_domains": referring,
		},
		Recommendations: recs,
	}, nil
}

// targetPosition finds the target's absolute rank in SERP items, 0 when
// the target does not appear.
func targetPosition(serpItems []map[string]any, target string) int {
	host := normalizeHost(target)
	for _, item := range serpItems {
		if normalizeHost(str(item, "domain")) == host || strings.Contains(str(item, "url"), host) {
			return count(item, "rank_absolute")
		}
	}
	return 0
}

func normalizeHost(s string) string {
	s = strings.TrimPrefix(s, "https://")
	s = strings.TrimPrefix(s, "http://")
	s = strings.TrimPrefix(s, "www.")
	if i := strings.IndexByte(s, '/'); i >= 0 {
		s = s[:i]
	}
	return strings.ToLower(s)
}

func primaryKeyword(req workflow.Request) string {
	if len(req.Keywords) == 0 {
		return ""
	}
	return req.Keywords[0]
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
