// Package analysis implements the step handlers behind each workflow:
// page audits, keyword and competitor research against the DataForSEO
// API, and the local aggregation that turns step outputs into a report.
package analysis

import (
	"context"

	"go.uber.org/zap"

	"github.com/seoforge/orchestrator/internal/dataforseo"
	"github.com/seoforge/orchestrator/internal/scoring"
	"github.com/seoforge/orchestrator/internal/workflow"
)

// APIClient is the slice of the DataForSEO client the handlers consume.
type APIClient interface {
	FetchSERP(ctx context.Context, keyword, device string) (*dataforseo.Response, error)
	FetchSearchVolume(ctx context.Context, keywords []string) (*dataforseo.Response, error)
	FetchKeywordIdeas(ctx context.Context, keywords []string) (*dataforseo.Response, error)
	FetchRankedKeywords(ctx context.Context, target string) (*dataforseo.Response, error)
	FetchKeywordsForSite(ctx context.Context, target string) (*dataforseo.Response, error)
	FetchCompetitors(ctx context.Context, target string) (*dataforseo.Response, error)
	FetchDomainMetrics(ctx context.Context, domain string) (*dataforseo.Response, error)
	FetchBacklinks(ctx context.Context, target string, limit int) (*dataforseo.Response, error)
	FetchPageInsights(ctx context.Context, url, device string) (*dataforseo.Response, error)
}

var _ APIClient = (*dataforseo.Client)(nil)

// Service owns the handlers and their shared dependencies.
type Service struct {
	client     APIClient
	aggregator *scoring.Aggregator
	logger     *zap.Logger
}

func NewService(client APIClient, aggregator *scoring.Aggregator, logger *zap.Logger) *Service {
	return &Service{client: client, aggregator: aggregator, logger: logger}
}

// Register wires every step kind to its handler.
func (s *Service) Register(reg *workflow.Registry) error {
	handlers := map[workflow.Kind]workflow.HandlerFunc{
		workflow.KindTechnicalAudit:     s.technicalAudit,
		workflow.KindContentAudit:       s.contentAudit,
		workflow.KindPerformanceAudit:   s.performanceAudit,
		workflow.KindMobileAudit:        s.mobileAudit,
		workflow.KindStructureAudit:     s.structureAudit,
		workflow.KindLinkAudit:          s.linkAudit,
		workflow.KindSchemaAudit:        s.schemaAudit,
		workflow.KindAccessibilityAudit: s.accessibilityAudit,
		workflow.KindBacklinkProfile:    s.backlinkProfile,
		workflow.KindSerpSnapshot:       s.serpSnapshot,
		workflow.KindKeywordMetrics:     s.keywordMetrics,
		workflow.KindRankedKeywords:     s.rankedKeywords,
		workflow.KindCompetitorDomains:  s.competitorDomains,
		workflow.KindDomainMetrics:      s.domainMetrics,
		workflow.KindPositionTrends:     s.positionTrends,
		workflow.KindKeywordGap:         s.keywordGap,
		workflow.KindAggregate:          s.aggregate,
	}
	for kind, h := range handlers {
		if err := reg.Register(kind, h); err != nil {
			return err
		}
	}
	return nil
}
