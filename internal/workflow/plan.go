package workflow

import (
	"fmt"
	"strings"
)

// Kind identifies the unit of work a step performs. Handlers are registered
// per kind, so plans stay declarative.
type Kind string

const (
	KindTechnicalAudit     Kind = "technical_audit"
	KindContentAudit       Kind = "content_audit"
	KindPerformanceAudit   Kind = "performance_audit"
	KindMobileAudit        Kind = "mobile_audit"
	KindStructureAudit     Kind = "structure_audit"
	KindBacklinkProfile    Kind = "backlink_profile"
	KindLinkAudit          Kind = "link_audit"
	KindSchemaAudit        Kind = "schema_audit"
	KindAccessibilityAudit Kind = "accessibility_audit"
	KindSerpSnapshot       Kind = "serp_snapshot"
	KindKeywordMetrics     Kind = "keyword_metrics"
	KindRankedKeywords     Kind = "ranked_keywords"
	KindCompetitorDomains  Kind = "competitor_domains"
	KindDomainMetrics      Kind = "domain_metrics"
	KindPositionTrends     Kind = "position_trends"
	KindKeywordGap         Kind = "keyword_gap"
	KindAggregate          Kind = "aggregate"
)

type Class string

const (
	ClassExternal Class = "external-call"
	ClassLocal    Class = "local-compute"
)

// Class reports whether the kind reaches the external API or computes
// locally over prior step outputs.
func (k Kind) Class() Class {
	switch k {
	case KindPositionTrends, KindKeywordGap, KindAggregate:
		return ClassLocal
	default:
		return ClassExternal
	}
}

// Step is a resolved step descriptor inside a plan.
type Step struct {
	Name      string   `json:"name"`
	Kind      Kind     `json:"kind"`
	DependsOn []string `json:"depends_on,omitempty"`
	// Optional steps do not fail the run when they exhaust retries.
	Optional bool `json:"optional,omitempty"`
	// WarnOnFailure surfaces an optional step's failure as a low-priority
	// recommendation instead of dropping it silently.
	WarnOnFailure bool `json:"warn_on_failure,omitempty"`
}

// Plan names a workflow and expands a request into its step descriptors.
type Plan struct {
	Name        string
	Description string
	build       func(req Request) []Step
}

func (p Plan) Steps(req Request) []Step {
	return p.build(req)
}

// Plans lists the built-in workflows in a stable order.
func Plans() []Plan {
	return []Plan{
		{
			Name:        "seo_audit",
			Description: "Full SEO audit across technical, content, performance and authority dimensions",
			build:       buildSEOAudit,
		},
		{
			Name:        "technical_seo",
			Description: "Deep technical crawl: markup, links, accessibility, mobile",
			build:       buildTechnicalSEO,
		},
		{
			Name:        "keyword_tracking",
			Description: "Current positions, volumes and trend analysis for tracked keywords",
			build:       buildKeywordTracking,
		},
		{
			Name:        "content_optimization",
			Description: "Content review against keyword demand and the live SERP landscape",
			build:       buildContentOptimization,
		},
		{
			Name:        "competitor_analysis",
			Description: "Competitor discovery, domain comparison and keyword gap analysis",
			build:       buildCompetitorAnalysis,
		},
	}
}

func PlanByName(name string) (Plan, bool) {
	for _, p := range Plans() {
		if p.Name == name {
			return p, true
		}
	}
	return Plan{}, false
}

// ValidateRequest rejects malformed requests before any step is dispatched.
func ValidateRequest(req Request) error {
	plan, ok := PlanByName(req.Workflow)
	if !ok {
		return &ValidationError{Field: "workflow", Reason: fmt.Sprintf("unknown workflow %q", req.Workflow)}
	}
	target := strings.TrimSpace(req.Target)
	if target == "" {
		return &ValidationError{Field: "target", Reason: "target is required"}
	}
	if strings.ContainsAny(target, " \t\n") || !strings.Contains(target, ".") {
		return &ValidationError{Field: "target", Reason: fmt.Sprintf("%q is not a valid domain or URL", target)}
	}
	switch req.Depth {
	case "", "basic", "standard", "deep":
	default:
		return &ValidationError{Field: "depth", Reason: fmt.Sprintf("depth must be basic, standard or deep, got %q", req.Depth)}
	}
	for _, kw := range req.Keywords {
		if strings.TrimSpace(kw) == "" {
			return &ValidationError{Field: "keywords", Reason: "keywords must not be blank"}
		}
	}
	switch plan.Name {
	case "keyword_tracking", "content_optimization":
		if len(req.Keywords) == 0 {
			return &ValidationError{Field: "keywords", Reason: plan.Name + " requires at least one keyword"}
		}
	}
	return nil
}

func buildSEOAudit(req Request) []Step {
	depth := req.Depth
	if depth == "" {
		depth = "standard"
	}

	steps := []Step{
		{Name: "technical_analysis", Kind: KindTechnicalAudit},
		{Name: "content_analysis", Kind: KindContentAudit},
		{Name: "performance_analysis", Kind: KindPerformanceAudit},
		{Name: "authority_analysis", Kind: KindBacklinkProfile, Optional: true, WarnOnFailure: true},
	}

	if depth != "basic" {
		if req.Params["mobile_audit"] != "false" {
			steps = append(steps, Step{Name: "mobile_analysis", Kind: KindMobileAudit})
		}
		steps = append(steps, Step{Name: "structure_analysis", Kind: KindStructureAudit})
		if len(req.Keywords) > 0 {
			steps = append(steps, Step{Name: "keyword_analysis", Kind: KindKeywordMetrics})
		}
		if len(req.Competitors) > 0 {
			steps = append(steps, Step{Name: "competitor_analysis", Kind: KindCompetitorDomains, Optional: true, WarnOnFailure: true})
		}
	}
	if depth == "deep" {
		steps = append(steps,
			Step{Name: "link_analysis", Kind: KindLinkAudit},
			Step{Name: "schema_analysis", Kind: KindSchemaAudit},
			Step{Name: "accessibility_analysis", Kind: KindAccessibilityAudit},
		)
	}

	return appendAggregate(steps)
}

func buildTechnicalSEO(req Request) []Step {
	steps := []Step{
		{Name: "technical_analysis", Kind: KindTechnicalAudit},
		{Name: "link_analysis", Kind: KindLinkAudit},
		{Name: "schema_analysis", Kind: KindSchemaAudit},
		{Name: "accessibility_analysis", Kind: KindAccessibilityAudit},
		{Name: "mobile_analysis", Kind: KindMobileAudit},
	}
	return appendAggregate(steps)
}

func buildKeywordTracking(req Request) []Step {
	steps := []Step{
		{Name: "position_check", Kind: KindSerpSnapshot},
		{Name: "volume_metrics", Kind: KindKeywordMetrics},
		{Name: "ranked_keywords", Kind: KindRankedKeywords},
	}
	steps = append(steps, Step{
		Name:      "trend_analysis",
		Kind:      KindPositionTrends,
		DependsOn: []string{"position_check", "volume_metrics", "ranked_keywords"},
	})
	return appendAggregate(steps)
}

func buildContentOptimization(req Request) []Step {
	steps := []Step{
		{Name: "content_analysis", Kind: KindContentAudit},
		{Name: "volume_metrics", Kind: KindKeywordMetrics},
		{Name: "serp_landscape", Kind: KindSerpSnapshot},
	}
	return appendAggregate(steps)
}

func buildCompetitorAnalysis(req Request) []Step {
	steps := []Step{
		{Name: "competitor_discovery", Kind: KindCompetitorDomains},
		{Name: "domain_metrics", Kind: KindDomainMetrics},
		{Name: "ranked_keywords", Kind: KindRankedKeywords},
		{Name: "backlink_comparison", Kind: KindBacklinkProfile, Optional: true, WarnOnFailure: true},
	}
	steps = append(steps, Step{
		Name:      "keyword_gap",
		Kind:      KindKeywordGap,
		DependsOn: []string{"competitor_discovery", "ranked_keywords"},
	})
	return appendAggregate(steps)
}

// appendAggregate closes a plan with the aggregation step depending on
// everything before it.
func appendAggregate(steps []Step) []Step {
	deps := make([]string, 0, len(steps))
	for _, s := range steps {
		deps = append(deps, s.Name)
	}
	return append(steps, Step{Name: "result_aggregation", Kind: KindAggregate, DependsOn: deps})
}

// Resolve validates the dependency graph and orders steps into groups.
// Steps inside a group are independent of each other; a group never starts
// before every step of the preceding groups is terminal.
func Resolve(steps []Step) ([][]Step, error) {
	byName := make(map[string]int, len(steps))
	for i, s := range steps {
		if _, dup := byName[s.Name]; dup {
			return nil, fmt.Errorf("workflow: duplicate step name %q", s.Name)
		}
		byName[s.Name] = i
	}

	indegree := make([]int, len(steps))
	dependents := make([][]int, len(steps))
	for i, s := range steps {
		for _, dep := range s.DependsOn {
			j, ok := byName[dep]
			if !ok {
				return nil, fmt.Errorf("workflow: step %q depends on unknown step %q", s.Name, dep)
			}
			indegree[i]++
			dependents[j] = append(dependents[j], i)
		}
	}

	var groups [][]Step
	frontier := make([]int, 0, len(steps))
	for i := range steps {
		if indegree[i] == 0 {
			frontier = append(frontier, i)
		}
	}

	resolved := 0
	for len(frontier) > 0 {
		group := make([]Step, 0, len(frontier))
		next := make([]int, 0)
		for _, i := range frontier {
			group = append(group, steps[i])
			resolved++
			for _, j := range dependents[i] {
				indegree[j]--
				if indegree[j] == 0 {
					next = append(next, j)
				}
			}
		}
		groups = append(groups, group)
		frontier = next
	}
	if resolved != len(steps) {
		return nil, fmt.Errorf("workflow: dependency cycle detected")
	}
	return groups, nil
}
