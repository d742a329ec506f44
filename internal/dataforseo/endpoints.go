package dataforseo

import "context"

// Endpoint payloads follow the API convention of a single-element task
// array. Location and language default from configuration when empty.

func (c *Client) FetchSERP(ctx context.Context, keyword, device string) (*Response, error) {
	if device == "" {
		device = "desktop"
	}
	osName := "windows"
	if device != "desktop" {
		osName = "android"
	}
	payload := []map[string]any{{
		"keyword":       keyword,
		"location_name": c.location,
		"language_name": c.language,
		"device":        device,
		"os":            osName,
	}}
	return c.invoke(ctx, "serp/google/organic/live/regular", payload, c.cacheTTL)
}

func (c *Client) FetchSearchVolume(ctx context.Context, keywords []string) (*Response, error) {
	payload := []map[string]any{{
		"keywords":      keywords,
		"location_name": c.location,
		"language_name": c.language,
	}}
	return c.invoke(ctx, "keywords_data/google/search_volume/live", payload, c.cacheTTL)
}

func (c *Client) FetchKeywordIdeas(ctx context.Context, keywords []string) (*Response, error) {
	payload := []map[string]any{{
		"keywords":      keywords,
		"location_name": c.location,
		"language_name": c.language,
	}}
	return c.invoke(ctx, "keywords_data/google/keyword_ideas/live", payload, c.cacheTTL)
}

func (c *Client) FetchRankedKeywords(ctx context.Context, target string) (*Response, error) {
	payload := []map[string]any{{
		"target":        target,
		"location_name": c.location,
		"language_name": c.language,
	}}
	return c.invoke(ctx, "dataforseo_labs/google/ranked_keywords/live", payload, c.cacheTTL)
}

func (c *Client) FetchKeywordsForSite(ctx context.Context, target string) (*Response, error) {
	payload := []map[string]any{{
		"target":        target,
		"location_name": c.location,
		"language_name": c.language,
	}}
	return c.invoke(ctx, "dataforseo_labs/google/keywords_for_site/live", payload, c.cacheTTL)
}

func (c *Client) FetchCompetitors(ctx context.Context, target string) (*Response, error) {
	payload := []map[string]any{{
		"target":        target,
		"location_name": c.location,
		"language_name": c.language,
	}}
	return c.invoke(ctx, "dataforseo_labs/google/competitors_domain/live", payload, c.cacheTTL)
}

func (c *Client) FetchDomainMetrics(ctx context.Context, domain string) (*Response, error) {
	payload := []map[string]any{{
		"target":        domain,
		"location_name": c.location,
		"language_name": c.language,
	}}
	return c.invoke(ctx, "dataforseo_labs/google/domain_metrics/live", payload, c.cacheTTL)
}

func (c *Client) FetchBacklinks(ctx context.Context, target string, limit int) (*Response, error) {
	if limit <= 0 {
		limit = 100
	}
	payload := []map[string]any{{
		"target": target,
		"limit":  limit,
	}}
	return c.invoke(ctx, "backlinks/backlinks/live", payload, c.cacheTTL)
}

func (c *Client) FetchPageInsights(ctx context.Context, url, device string) (*Response, error) {
	if device == "" {
		device = "desktop"
	}
	payload := []map[string]any{{
		"url":    url,
		"device": device,
	}}
	return c.invoke(ctx, "on_page/page_screenshot/live", payload, c.cacheTTL)
}
