package analysis

import (
	"context"
	"fmt"

	"github.com/seoforge/orchestrator/internal/scoring"
	"github.com/seoforge/orchestrator/internal/workflow"
)

// Page audit handlers. Each fetches the on-page snapshot for the target,
// applies a penalty model to one aspect of it and reports a dimension
// score with the recommendations that recover the lost points.

func (s *Service) technicalAudit(ctx context.Context, wc *workflow.Context, _ workflow.Step) (*workflow.StepOutput, error) {
	page, err := s.pageSnapshot(ctx, wc, "desktop")
	if err != nil {
		return nil, err
	}

	score := 100.0
	var recs []scoring.Recommendation

	if https, ok := flag(page, "is_https"); ok && !https {
		score -= 15
		recs = append(recs, rec(scoring.PriorityCritical, "Serve the site over HTTPS",
			"unencrypted pages are penalized in ranking and flagged by browsers", 15))
	}
	if broken := count(page, "broken_links"); broken > 0 {
		penalty := minFloat(20, float64(2*broken))
		score -= penalty
		recs = append(recs, rec(scoring.PriorityHigh,
			fmt.Sprintf("Fix %d broken links", broken),
			"broken links waste crawl budget and hurt user trust", penalty))
	}
	if dup := count(page, "duplicate_titles"); dup > 0 {
		score -= 8
		recs = append(recs, rec(scoring.PriorityMedium,
			fmt.Sprintf("Deduplicate %d page titles", dup),
			"duplicate titles dilute relevance signals", 8))
	}
	if canonical, ok := flag(page, "canonical"); ok && !canonical {
		score -= 5
		recs = append(recs, rec(scoring.PriorityLow, "Add canonical URLs",
			"canonical tags prevent duplicate-content indexing", 5))
	}

	return &workflow.StepOutput{
		Dimension: scoring.DimensionTechnical,
		Score:     clampScore(score),
		Data: map[string]any{
			"broken_links":     count(page, "broken_links"),
			"duplicate_titles": count(page, "duplicate_titles"),
		},
		Recommendations: recs,
	}, nil
}

func (s *Service) contentAudit(ctx context.Context, wc *workflow.Context, _ workflow.Step) (*workflow.StepOutput, error) {
	page, err := s.pageSnapshot(ctx, wc, "desktop")
	if err != nil {
		return nil, err
	}

	score := 100.0
	var recs []scoring.Recommendation

	words := count(page, "word_count")
	if words > 0 && words < 300 {
		score -= 25
		recs = append(recs, rec(scoring.PriorityHigh, "Expand thin content",
			fmt.Sprintf("%d words is below the depth competitive pages carry", words), 12))
	}
	if titleLen := count(page, "title_length"); titleLen < 30 || titleLen > 65 {
		score -= 10
		recs = append(recs, rec(scoring.PriorityMedium, "Rewrite the page title to 30-65 characters",
			"titles outside that range get truncated or underused in results", 6))
	}
	if descLen := count(page, "description_length"); descLen == 0 {
		score -= 10
		recs = append(recs, rec(scoring.PriorityMedium, "Add a meta description",
			"missing descriptions cede the snippet to the search engine", 5))
	}
	if noAlt := count(page, "images_without_alt"); noAlt > 0 {
		score -= minFloat(10, float64(noAlt))
		recs = append(recs, rec(scoring.PriorityLow,
			fmt.Sprintf("Add alt text to %d images", noAlt),
			"alt text feeds image search and accessibility", 3))
	}
	if kw := primaryKeyword(wc.Request); kw != "" && !containsFold(str(page, "title"), kw) {
		score -= 10
		recs = append(recs, rec(scoring.PriorityMedium,
			fmt.Sprintf("Work the primary keyword %q into the title", kw),
			"title relevance is a strong ranking signal", 7))
	}

	return &workflow.StepOutput{
		Dimension: scoring.DimensionContent,
		Score:     clampScore(score),
		Data: map[string]any{
			"word_count":   words,
			"title_length": count(page, "title_length"),
		},
		Recommendations: recs,
	}, nil
}

func (s *Service) performanceAudit(ctx context.Context, wc *workflow.Context, _ workflow.Step) (*workflow.StepOutput, error) {
	page, err := s.pageSnapshot(ctx, wc, "desktop")
	if err != nil {
		return nil, err
	}

	load := count(page, "load_time_ms")
	score := loadTimeScore(load)
	var recs []scoring.Recommendation
	if load > 2000 {
		recs = append(recs, rec(scoring.PriorityHigh,
			fmt.Sprintf("Reduce page load time from %dms", load),
			"load times above two seconds measurably raise bounce rate", 10))
	}
	if size := count(page, "page_size_bytes"); size > 3<<20 {
		score -= 10
		recs = append(recs, rec(scoring.PriorityMedium, "Cut page weight below 3MB",
			"oversized pages dominate load time on slow connections", 6))
	}
	if reqs := count(page, "request_count"); reqs > 100 {
		score -= 5
		recs = append(recs, rec(scoring.PriorityLow,
			fmt.Sprintf("Reduce the %d subresource requests", reqs),
			"request fan-out stretches the critical render path", 3))
	}

	return &workflow.StepOutput{
		Dimension:       scoring.DimensionPerformance,
		Score:           clampScore(score),
		Data:            map[string]any{"load_time_ms": load},
		Recommendations: recs,
	}, nil
}

func (s *Service) mobileAudit(ctx context.Context, wc *workflow.Context, _ workflow.Step) (*workflow.StepOutput, error) {
	page, err := s.pageSnapshot(ctx, wc, "mobile")
	if err != nil {
		return nil, err
	}

	score := 100.0
	var recs []scoring.Recommendation

	if viewport, ok := flag(page, "viewport_configured"); ok && !viewport {
		score -= 30
		recs = append(recs, rec(scoring.PriorityCritical, "Configure a mobile viewport",
			"pages without a viewport render as desktop and fail mobile-first indexing", 15))
	}
	if taps := count(page, "tap_target_issues"); taps > 0 {
		score -= minFloat(15, float64(2*taps))
		recs = append(recs, rec(scoring.PriorityMedium,
			fmt.Sprintf("Fix %d cramped tap targets", taps),
			"small touch targets fail mobile usability checks", 5))
	}
	if legible, ok := flag(page, "font_size_legible"); ok && !legible {
		score -= 10
		recs = append(recs, rec(scoring.PriorityMedium, "Raise base font size for mobile",
			"illegible text is a mobile usability failure", 4))
	}
	if load := count(page, "load_time_ms"); load > 3000 {
		score -= 10
		recs = append(recs, rec(scoring.PriorityHigh, "Reduce mobile load time",
			"mobile connections amplify load-time penalties", 8))
	}

	return &workflow.StepOutput{
		Dimension:       scoring.DimensionTechnical,
		Score:           clampScore(score),
		Data:            map[string]any{"device": "mobile"},
		Recommendations: recs,
	}, nil
}

func (s *Service) structureAudit(ctx context.Context, wc *workflow.Context, _ workflow.Step) (*workflow.StepOutput, error) {
	page, err := s.pageSnapshot(ctx, wc, "desktop")
	if err != nil {
		return nil, err
	}

	score := 100.0
	var recs []scoring.Recommendation

	switch h1 := count(page, "h1_count"); {
	case h1 == 0:
		score -= 15
		recs = append(recs, rec(scoring.PriorityMedium, "Add an H1 heading",
			"a missing H1 leaves the page topic implicit", 7))
	case h1 > 1:
		score -= 5
		recs = append(recs, rec(scoring.PriorityLow, "Keep a single H1 per page",
			"multiple H1s blur the document outline", 3))
	}
	if ordered, ok := flag(page, "heading_order_valid"); ok && !ordered {
		score -= 10
		recs = append(recs, rec(scoring.PriorityLow, "Fix heading level order",
			"skipped heading levels confuse outline parsing", 4))
	}
	if links := count(page, "internal_links"); links < 10 {
		score -= 10
		recs = append(recs, rec(scoring.PriorityMedium, "Strengthen internal linking",
			"thin internal linking starves deep pages of authority", 6))
	}
	if sitemap, ok := flag(page, "sitemap_found"); ok && !sitemap {
		score -= 10
		recs = append(recs, rec(scoring.PriorityMedium, "Publish an XML sitemap",
			"sitemaps speed up discovery of new and updated pages", 5))
	}
	if robots, ok := flag(page, "robots_txt_found"); ok && !robots {
		score -= 5
		recs = append(recs, rec(scoring.PriorityLow, "Add a robots.txt",
			"an explicit robots.txt avoids accidental crawl blocking", 2))
	}

	return &workflow.StepOutput{
		Dimension:       scoring.DimensionTechnical,
		Score:           clampScore(score),
		Data:            map[string]any{"h1_count": count(page, "h1_count")},
		Recommendations: recs,
	}, nil
}

func (s *Service) linkAudit(ctx context.Context, wc *workflow.Context, _ workflow.Step) (*workflow.StepOutput, error) {
	page, err := s.pageSnapshot(ctx, wc, "desktop")
	if err != nil {
		return nil, err
	}

	score := 100.0
	var recs []scoring.Recommendation

	if chains := count(page, "redirect_chains"); chains > 0 {
		score -= minFloat(20, float64(5*chains))
		recs = append(recs, rec(scoring.PriorityMedium,
			fmt.Sprintf("Collapse %d redirect chains", chains),
			"each hop leaks link equity and adds latency", 6))
	}
	if broken := count(page, "broken_links"); broken > 0 {
		score -= minFloat(25, float64(3*broken))
		recs = append(recs, rec(scoring.PriorityHigh,
			fmt.Sprintf("Repair %d broken outbound links", broken),
			"dead ends hurt both crawlers and readers", 8))
	}
	if nofollow := count(page, "nofollow_internal_links"); nofollow > 0 {
		score -= 5
		recs = append(recs, rec(scoring.PriorityLow, "Remove nofollow from internal links",
			"nofollow on internal links discards your own link equity", 3))
	}

	return &workflow.StepOutput{
		Dimension:       scoring.DimensionTechnical,
		Score:           clampScore(score),
		Data:            map[string]any{"redirect_chains": count(page, "redirect_chains")},
		Recommendations: recs,
	}, nil
}

func (s *Service) schemaAudit(ctx context.Context, wc *workflow.Context, _ workflow.Step) (*workflow.StepOutput, error) {
	page, err := s.pageSnapshot(ctx, wc, "desktop")
	if err != nil {
		return nil, err
	}

	score := 100.0
	var recs []scoring.Recommendation

	if count(page, "schema_markup_count") == 0 {
		score -= 20
		recs = append(recs, rec(scoring.PriorityMedium, "Add structured data markup",
			"pages without schema are ineligible for rich results", 8))
	}
	if errs := count(page, "schema_errors"); errs > 0 {
		score -= minFloat(25, float64(5*errs))
		recs = append(recs, rec(scoring.PriorityMedium,
			fmt.Sprintf("Fix %d structured data errors", errs),
			"invalid schema is ignored by search engines", 5))
	}

	return &workflow.StepOutput{
		Dimension:       scoring.DimensionTechnical,
		Score:           clampScore(score),
		Data:            map[string]any{"schema_markup_count": count(page, "schema_markup_count")},
		Recommendations: recs,
	}, nil
}

func (s *Service) accessibilityAudit(ctx context.Context, wc *workflow.Context, _ workflow.Step) (*workflow.StepOutput, error) {
	page, err := s.pageSnapshot(ctx, wc, "desktop")
	if err != nil {
		return nil, err
	}

	score := 100.0
	var recs []scoring.Recommendation

	if contrast := count(page, "contrast_errors"); contrast > 0 {
		score -= minFloat(20, float64(2*contrast))
		recs = append(recs, rec(scoring.PriorityMedium,
			fmt.Sprintf("Fix %d color contrast failures", contrast),
			"low contrast fails WCAG AA and frustrates readers", 5))
	}
	if aria := count(page, "aria_issues"); aria > 0 {
		score -= minFloat(15, float64(2*aria))
		recs = append(recs, rec(scoring.PriorityLow,
			fmt.Sprintf("Resolve %d ARIA attribute issues", aria),
			"broken ARIA misleads assistive technology", 3))
	}
	if noAlt := count(page, "images_without_alt"); noAlt > 0 {
		score -= minFloat(10, float64(noAlt))
		recs = append(recs, rec(scoring.PriorityLow,
			fmt.Sprintf("Add alt text to %d images", noAlt),
			"screen readers skip undescribed images", 3))
	}

	return &workflow.StepOutput{
		Dimension:       scoring.DimensionTechnical,
		Score:           clampScore(score),
		Data:            map[string]any{"contrast_errors": count(page, "contrast_errors")},
		Recommendations: recs,
	}, nil
}

func (s *Service) pageSnapshot(ctx context.Context, wc *workflow.Context, device string) (map[string]any, error) {
	if override := wc.Request.Params["device"]; override != "" && device != "mobile" {
		device = override
	}
	resp, err := s.client.FetchPageInsights(ctx, wc.Request.Target, device)
	if err != nil {
		return nil, err
	}
	return firstResult(resp)
}

func loadTimeScore(ms int) float64 {
	switch {
	case ms <= 0:
		return 70 // no measurement, assume middling
	case ms <= 1000:
		return 95
	case ms <= 2000:
		return 85
	case ms <= 3000:
		return 70
	case ms <= 5000:
		return 50
	default:
		return 30
	}
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
