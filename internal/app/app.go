// Package app wires configuration, storage, the provider client and the
// services into one value shared by the CLI commands
package app

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bobmcallan/pagr/internal/clients/factset"
	"github.com/bobmcallan/pagr/internal/common"
	"github.com/bobmcallan/pagr/internal/interfaces"
	"github.com/bobmcallan/pagr/internal/services/enrichment"
	"github.com/bobmcallan/pagr/internal/services/exposure"
	"github.com/bobmcallan/pagr/internal/services/graph"
	"github.com/bobmcallan/pagr/internal/services/pipeline"
	"github.com/bobmcallan/pagr/internal/storage"
)

// App holds all initialized services and clients
type App struct {
	Config            *common.Config
	Logger            *common.Logger
	Store             interfaces.GraphStore
	Provider          interfaces.ReferenceProvider
	EnrichmentService interfaces.EnrichmentService
	GraphService      interfaces.GraphService
	ExposureService   interfaces.ExposureService
	PipelineService   interfaces.PipelineService
	StartupTime       time.Time
}

// getBinaryDir returns the directory containing the executable.
func getBinaryDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

// ResolveConfigPath picks the config file: the given path, PAGR_CONFIG,
// pagr.toml next to the binary, then config/pagr.toml for development.
func ResolveConfigPath(configPath string) string {
	if configPath == "" {
		configPath = os.Getenv("PAGR_CONFIG")
	}
	if configPath == "" {
		configPath = filepath.Join(getBinaryDir(), "pagr.toml")
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			configPath = "config/pagr.toml"
		}
	}
	return configPath
}

// NewApp loads configuration and initializes storage and services.
// configPath may be empty, in which case ResolveConfigPath decides.
func NewApp(configPath string) (*App, error) {
	config, err := common.LoadConfig(ResolveConfigPath(configPath))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return NewAppWithConfig(config, common.NewLoggerFromConfig(config.Logging))
}

// NewAppWithConfig initializes the App from an already loaded config
func NewAppWithConfig(config *common.Config, logger *common.Logger) (*App, error) {
	startupStart := time.Now()

	store, err := storage.NewGraphStore(logger, config)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	if config.Provider.Username == "" || config.Provider.APIKey == "" {
		logger.Warn().
			Str("credentials_file", config.Provider.CredentialsFile).
			Msg("Provider credentials not configured - enrichment lookups will fail")
	}
	provider := factset.NewClient(config.Provider.Username, config.Provider.APIKey,
		factset.WithBaseURL(config.Provider.BaseURL),
		factset.WithTimeout(config.Provider.GetTimeout()),
		factset.WithLogger(logger),
	)

	return newApp(config, logger, store, provider, startupStart), nil
}

// newApp builds the services on top of a store and provider
func newApp(config *common.Config, logger *common.Logger, store interfaces.GraphStore, provider interfaces.ReferenceProvider, startupStart time.Time) *App {
	enrichmentService := enrichment.NewService(provider, config.Enrichment, logger)
	graphService := graph.NewEngine(store, config.Upsert, logger)
	exposureService := exposure.NewService(store, logger)
	pipelineService := pipeline.NewService(enrichmentService, graphService, config.Valuation, logger)

	a := &App{
		Config:            config,
		Logger:            logger,
		Store:             store,
		Provider:          provider,
		EnrichmentService: enrichmentService,
		GraphService:      graphService,
		ExposureService:   exposureService,
		PipelineService:   pipelineService,
		StartupTime:       startupStart,
	}

	logger.Debug().
		Str("backend", config.Storage.Backend).
		Dur("startup", time.Since(startupStart)).
		Msg("App initialized")

	return a
}

// Close releases all resources held by the App.
func (a *App) Close() {
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close graph store")
		}
		a.Store = nil
	}
}
