package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/example/adgen/internal/artifact"
	"github.com/example/adgen/internal/clock"
	"github.com/example/adgen/internal/config"
	"github.com/example/adgen/internal/domain"
	"github.com/example/adgen/internal/errs"
	"github.com/example/adgen/internal/orchestrator"
)

func resolveAPIKey(envVar string) string {
	return os.Getenv(envVar)
}

func errUnrecognizedProviderKind(kind domain.ProviderKind) error {
	return fmt.Errorf("unrecognized provider kind %q", kind)
}

func (s *Server) getConfig(c echo.Context) error {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	return c.JSON(http.StatusOK, s.cfg)
}

func (s *Server) putConfig(c echo.Context) error {
	var cfg domain.RunConfig
	if err := c.Bind(&cfg); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{"error": "malformed config body"})
	}
	if errsList := cfg.Validate(); len(errsList) > 0 {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{"errors": errsList})
	}

	s.cfgMu.Lock()
	s.cfg = cfg
	s.cfgMu.Unlock()

	if err := config.SaveRunConfig(s.cfgPath, cfg); err != nil {
		s.log.Error("failed to persist config", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to persist config"})
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) validateConfig(c echo.Context) error {
	var cfg domain.RunConfig
	if err := c.Bind(&cfg); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{"valid": false, "errors": []string{"malformed config body"}})
	}

	errsList := cfg.Validate()
	var warnings []string
	if s.policy != nil {
		w, err := s.policy.Warnings(c.Request().Context(), cfg)
		if err != nil {
			s.log.Warn("policy evaluation failed", zap.Error(err))
		} else {
			warnings = w
		}
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"valid":    len(errsList) == 0,
		"errors":   errsList,
		"warnings": warnings,
	})
}

func (s *Server) getTemplate(c echo.Context) error {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	return c.JSON(http.StatusOK, s.tpl)
}

func (s *Server) putTemplate(c echo.Context) error {
	var tpl domain.Template
	if err := c.Bind(&tpl); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{"error": "malformed template body"})
	}
	if errsList := tpl.Validate(); len(errsList) > 0 {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{"errors": errsList})
	}

	s.cfgMu.Lock()
	s.tpl = tpl
	s.cfgMu.Unlock()

	if err := config.SaveTemplate(s.templatePath, tpl); err != nil {
		s.log.Error("failed to persist template", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to persist template"})
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) postRun(c echo.Context) error {
	s.runMu.Lock()
	if s.current != nil && !s.current.Run().IsTerminal() {
		s.runMu.Unlock()
		return c.JSON(http.StatusConflict, map[string]string{
			"error": "a run is already in progress",
			"code":  string(errs.KindRunAlreadyActive),
		})
	}

	s.cfgMu.RLock()
	cfg := s.cfg
	tpl := s.tpl
	s.cfgMu.RUnlock()

	runID := "run_" + uuid.New().String()[:8]
	rng := clock.NewSeeded(cfg.Seed)

	prov, err := buildProvider(cfg, rng)
	if err != nil {
		s.runMu.Unlock()
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	rewriter, err := buildRewriter(cfg, s.log)
	if err != nil {
		s.runMu.Unlock()
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	store, err := artifact.New(cfg.OutDir)
	if err != nil {
		s.runMu.Unlock()
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	orch := orchestrator.New(runID, cfg, tpl, orchestrator.Deps{
		Provider: prov,
		Rewriter: rewriter,
		Dedupe:   buildDedupe(cfg),
		Store:    store,
		Clock:    clock.Real{},
		RNG:      rng,
		Log:      s.log,
	})
	s.current = orch
	s.lastID = runID
	s.runMu.Unlock()

	orch.Start(s.baseCtx)
	s.watchForHistory(orch)

	return c.JSON(http.StatusOK, map[string]string{"run_id": runID})
}

// watchForHistory records a RunSummary once the run reaches a terminal
// state. The Run History Ledger is purely informational: it is never
// consulted to resume or reconstruct a live run.
func (s *Server) watchForHistory(orch *orchestrator.Orchestrator) {
	if s.history == nil {
		return
	}
	events, unsub := orch.Events()
	go func() {
		defer unsub()
		for ev := range events {
			if !ev.IsTerminal() {
				continue
			}
			run := orch.Run()
			outcome := domain.RunOutcomeFinished
			if run.State == domain.RunStateFailed {
				outcome = domain.RunOutcomeFailed
			}
			err := s.history.Insert(context.Background(), domain.RunSummary{
				RunID:      run.ID,
				StartedAt:  run.StartedAt,
				EndedAt:    run.EndedAt,
				TargetImgs: run.TotalTarget,
				Accepted:   run.Accepted,
				CostTotal:  run.CostSoFar,
				Outcome:    outcome,
				Error:      run.Error,
			})
			if err != nil {
				s.log.Warn("failed to record run summary", zap.Error(err))
			}
			return
		}
	}()
}

func (s *Server) getCurrentRun(c echo.Context) error {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.current == nil {
		return c.JSON(http.StatusOK, map[string]interface{}{"run_id": nil})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"run_id": s.current.Run().ID})
}

func (s *Server) listImages(c echo.Context) error {
	s.cfgMu.RLock()
	outDir := s.cfg.OutDir
	s.cfgMu.RUnlock()

	store, err := artifact.New(outDir)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "out_dir unavailable"})
	}
	listings, err := store.List()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to list images"})
	}
	return c.JSON(http.StatusOK, listings)
}

func (s *Server) serveImage(c echo.Context) error {
	s.cfgMu.RLock()
	outDir := s.cfg.OutDir
	s.cfgMu.RUnlock()

	store, err := artifact.New(outDir)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "out_dir unavailable"})
	}
	path, err := store.Serve(c.Param("name"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	return c.File(path)
}

func (s *Server) listHistory(c echo.Context) error {
	if s.history == nil {
		return c.JSON(http.StatusOK, []domain.RunSummary{})
	}
	summaries, err := s.history.List(c.Request().Context(), 50, 0)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to load run history"})
	}
	return c.JSON(http.StatusOK, summaries)
}
