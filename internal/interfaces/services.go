package interfaces

import (
	"context"
	"time"

	"github.com/bobmcallan/pagr/internal/models"
)

// EnrichmentService resolves securities against the reference provider
type EnrichmentService interface {
	Enrich(ctx context.Context, ids []models.Identifier, asOf time.Time) *models.EnrichmentResult
}

// GraphService merges a portfolio and its enrichment into the graph
type GraphService interface {
	Upsert(ctx context.Context, portfolio *models.Portfolio, enrichment *models.EnrichmentResult) (*models.UpsertStats, error)
	DeletePortfolio(ctx context.Context, name string) error
	Stats(ctx context.Context) (*models.GraphCounts, error)
}

// ExposureService answers aggregation queries over stored portfolios
type ExposureService interface {
	GetExposure(ctx context.Context, portfolios []string, dim models.Dimension) ([]models.ExposureRow, error)
	GetPositions(ctx context.Context, portfolios []string) ([]models.PositionView, error)
	ListPortfolios(ctx context.Context) ([]models.PortfolioSummary, error)
	GetExecutives(ctx context.Context, portfolios []string) ([]models.ExecutiveRow, error)
	GetSectorRegionStress(ctx context.Context, portfolios []string, sector, region string) ([]models.StressRow, error)
}

// PipelineService loads portfolios end to end
type PipelineService interface {
	Load(ctx context.Context, name string, headers []string, rows []map[string]string) (*models.LoadSummary, error)
	LoadFile(ctx context.Context, name, path string) (*models.LoadSummary, error)
	DeletePortfolio(ctx context.Context, name string) error
}
