package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stepNames(steps []Step) []string {
	out := make([]string, 0, len(steps))
	for _, s := range steps {
		out = append(out, s.Name)
	}
	return out
}

func TestSEOAuditStandardDepth(t *testing.T) {
	plan, ok := PlanByName("seo_audit")
	require.True(t, ok)

	steps := plan.Steps(Request{
		Workflow: "seo_audit",
		Target:   "example.com",
		Keywords: []string{"widgets"},
	})

	names := stepNames(steps)
	assert.Contains(t, names, "technical_analysis")
	assert.Contains(t, names, "mobile_analysis")
	assert.Contains(t, names, "structure_analysis")
	assert.Contains(t, names, "keyword_analysis")
	assert.NotContains(t, names, "competitor_analysis", "no competitors supplied")
	assert.NotContains(t, names, "link_analysis", "deep-only step at standard depth")
	assert.Equal(t, "result_aggregation", names[len(names)-1])
}

func TestSEOAuditBasicDepthTrimsSteps(t *testing.T) {
	plan, _ := PlanByName("seo_audit")
	steps := plan.Steps(Request{Workflow: "seo_audit", Target: "example.com", Depth: "basic", Keywords: []string{"widgets"}})

	names := stepNames(steps)
	assert.NotContains(t, names, "mobile_analysis")
	assert.NotContains(t, names, "structure_analysis")
	assert.NotContains(t, names, "keyword_analysis")
	assert.Contains(t, names, "authority_analysis")
}

func TestSEOAuditDeepDepthAddsSteps(t *testing.T) {
	plan, _ := PlanByName("seo_audit")
	steps := plan.Steps(Request{
		Workflow:    "seo_audit",
		Target:      "example.com",
		Depth:       "deep",
		Competitors: []string{"rival.com"},
	})

	names := stepNames(steps)
	assert.Contains(t, names, "link_analysis")
	assert.Contains(t, names, "schema_analysis")
	assert.Contains(t, names, "accessibility_analysis")
	assert.Contains(t, names, "competitor_analysis")
}

func TestMobileAuditParamDisablesStep(t *testing.T) {
	plan, _ := PlanByName("seo_audit")
	steps := plan.Steps(Request{
		Workflow: "seo_audit",
		Target:   "example.com",
		Params:   map[string]string{"mobile_audit": "false"},
	})
	assert.NotContains(t, stepNames(steps), "mobile_analysis")
}

func TestAllPlansResolve(t *testing.T) {
	req := Request{
		Target:      "example.com",
		Keywords:    []string{"widgets"},
		Competitors: []string{"rival.com"},
		Depth:       "deep",
	}
	for _, plan := range Plans() {
		req.Workflow = plan.Name
		groups, err := Resolve(plan.Steps(req))
		require.NoError(t, err, plan.Name)
		require.NotEmpty(t, groups, plan.Name)

		last := groups[len(groups)-1]
		require.Len(t, last, 1, "%s: aggregation runs alone", plan.Name)
		assert.Equal(t, KindAggregate, last[0].Kind)
	}
}

func TestResolveOrdersDependenciesBeforeDependents(t *testing.T) {
	plan, _ := PlanByName("keyword_tracking")
	groups, err := Resolve(plan.Steps(Request{Workflow: "keyword_tracking", Target: "example.com", Keywords: []string{"widgets"}}))
	require.NoError(t, err)
	require.Len(t, groups, 3)

	assert.ElementsMatch(t, []string{"position_check", "volume_metrics", "ranked_keywords"}, stepNames(groups[0]))
	assert.Equal(t, []string{"trend_analysis"}, stepNames(groups[1]))
	assert.Equal(t, []string{"result_aggregation"}, stepNames(groups[2]))
}

func TestResolveRejectsBadGraphs(t *testing.T) {
	_, err := Resolve([]Step{
		{Name: "a", Kind: KindTechnicalAudit},
		{Name: "a", Kind: KindContentAudit},
	})
	assert.ErrorContains(t, err, "duplicate")

	_, err = Resolve([]Step{
		{Name: "a", Kind: KindTechnicalAudit, DependsOn: []string{"ghost"}},
	})
	assert.ErrorContains(t, err, "unknown step")

	_, err = Resolve([]Step{
		{Name: "a", Kind: KindTechnicalAudit, DependsOn: []string{"b"}},
		{Name: "b", Kind: KindContentAudit, DependsOn: []string{"a"}},
	})
	assert.ErrorContains(t, err, "cycle")
}

func TestValidateRequest(t *testing.T) {
	cases := []struct {
		name  string
		req   Request
		field string
	}{
		{"unknown workflow", Request{Workflow: "mystery", Target: "example.com"}, "workflow"},
		{"missing target", Request{Workflow: "seo_audit"}, "target"},
		{"target with spaces", Request{Workflow: "seo_audit", Target: "not a domain"}, "target"},
		{"target without dot", Request{Workflow: "seo_audit", Target: "localhost"}, "target"},
		{"bad depth", Request{Workflow: "seo_audit", Target: "example.com", Depth: "extreme"}, "depth"},
		{"blank keyword", Request{Workflow: "seo_audit", Target: "example.com", Keywords: []string{" "}}, "keywords"},
		{"keyword_tracking needs keywords", Request{Workflow: "keyword_tracking", Target: "example.com"}, "keywords"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateRequest(tc.req)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tc.field, verr.Field)
		})
	}

	assert.NoError(t, ValidateRequest(Request{Workflow: "competitor_analysis", Target: "https://example.com/shop"}))
}

func TestStepClass(t *testing.T) {
	assert.Equal(t, ClassExternal, KindTechnicalAudit.Class())
	assert.Equal(t, ClassExternal, KindSerpSnapshot.Class())
	assert.Equal(t, ClassLocal, KindAggregate.Class())
	assert.Equal(t, ClassLocal, KindKeywordGap.Class())
	assert.Equal(t, ClassLocal, KindPositionTrends.Class())
}
