// Package httpapi exposes the run pipeline over HTTP: config/template
// CRUD, run lifecycle, a live SSE event stream, image listing/serving,
// and run history.
package httpapi

import (
	"context"
	"errors"
	"io/fs"
	"sync"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/example/adgen/internal/clock"
	"github.com/example/adgen/internal/config"
	"github.com/example/adgen/internal/dedupe"
	"github.com/example/adgen/internal/domain"
	"github.com/example/adgen/internal/history"
	"github.com/example/adgen/internal/orchestrator"
	"github.com/example/adgen/internal/policy"
	"github.com/example/adgen/internal/provider"
	"github.com/example/adgen/internal/rewrite"
)

// Server wires the pipeline's components to echo routes and owns the
// single current-run slot.
type Server struct {
	cfgMu        sync.RWMutex
	cfgPath      string
	templatePath string
	cfg          domain.RunConfig
	tpl          domain.Template

	runMu   sync.Mutex
	current *orchestrator.Orchestrator
	lastID  string

	history *history.Store
	policy  *policy.Engine
	log     *zap.Logger

	// baseCtx outlives any single HTTP request; a run started under it is
	// cancelled only by an explicit Cancel call or process shutdown, never
	// by the client disconnecting from POST /api/run.
	baseCtx context.Context
}

// New builds a Server, loading the config/template documents from disk.
// A document that is missing or fails to load is replaced in memory by
// the defaults; the defaults are written to disk only where no document
// exists yet. baseCtx should be cancelled on process shutdown to abort
// any in-flight run.
func New(baseCtx context.Context, cfgPath, templatePath string, hist *history.Store, pol *policy.Engine, log *zap.Logger) (*Server, error) {
	cfg, err := config.LoadRunConfig(cfgPath)
	if err != nil {
		cfg = config.DefaultRunConfig()
		if errors.Is(err, fs.ErrNotExist) {
			_ = config.SaveRunConfig(cfgPath, cfg)
		}
	}
	tpl, err := config.LoadTemplate(templatePath)
	if err != nil {
		tpl = config.DefaultTemplate()
		if errors.Is(err, fs.ErrNotExist) {
			_ = config.SaveTemplate(templatePath, tpl)
		}
	}

	return &Server{
		cfgPath:      cfgPath,
		templatePath: templatePath,
		cfg:          cfg,
		tpl:          tpl,
		history:      hist,
		policy:       pol,
		log:          log,
		baseCtx:      baseCtx,
	}, nil
}

// RegisterRoutes wires the pipeline's HTTP surface onto e.
func (s *Server) RegisterRoutes(e *echo.Echo) {
	e.GET("/api/config", s.getConfig)
	e.PUT("/api/config", s.putConfig)
	e.POST("/api/config/validate", s.validateConfig)
	e.GET("/api/template", s.getTemplate)
	e.PUT("/api/template", s.putTemplate)
	e.POST("/api/run", s.postRun)
	e.GET("/api/run/current", s.getCurrentRun)
	e.GET("/api/run/:id/events", s.streamRunEvents)
	e.GET("/api/images", s.listImages)
	e.GET("/images/:name", s.serveImage)
	e.GET("/api/runs/history", s.listHistory)
}

// NewEcho builds an echo.Echo with the same middleware stack the
// teacher's external/internal servers use.
func NewEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	return e
}

// buildProvider constructs the Image Provider strategy for cfg.
func buildProvider(cfg domain.RunConfig, rng *clock.Seeded) (provider.Provider, error) {
	switch cfg.Provider.Kind {
	case domain.ProviderKindMock:
		return provider.NewMock(rng), nil
	case domain.ProviderKindRemote:
		apiKey := resolveAPIKey(cfg.Provider.APIKeyEnv)
		return provider.NewRemote(apiKey, cfg.Provider.PricePerImg)
	default:
		return nil, errUnrecognizedProviderKind(cfg.Provider.Kind)
	}
}

// buildRewriter constructs the optional Prompt Rewriter for cfg, or nil
// if disabled.
func buildRewriter(cfg domain.RunConfig, log *zap.Logger) (*rewrite.Rewriter, error) {
	if !cfg.Rewrite.Enabled {
		return nil, nil
	}
	apiKey := resolveAPIKey(cfg.Provider.APIKeyEnv)
	return rewrite.New(apiKey, cfg.Rewrite.Model, cfg.Rewrite.SystemPrompt, cfg.Rewrite.MaxTokens, 4096, cfg.Rewrite.CacheFile, log)
}

// buildDedupe constructs the optional Perceptual Deduper for cfg, or nil
// if disabled.
func buildDedupe(cfg domain.RunConfig) *dedupe.Set {
	if !cfg.Dedupe.Enabled {
		return nil
	}
	return dedupe.NewSet(cfg.Dedupe.HammingThreshold)
}
