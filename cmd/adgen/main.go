// Command adgen runs the advertising-image generation pipeline, either
// as a single one-shot run or as an HTTP service.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/adgen/internal/artifact"
	"github.com/example/adgen/internal/clock"
	"github.com/example/adgen/internal/config"
	"github.com/example/adgen/internal/dedupe"
	"github.com/example/adgen/internal/domain"
	"github.com/example/adgen/internal/errs"
	"github.com/example/adgen/internal/history"
	"github.com/example/adgen/internal/httpapi"
	"github.com/example/adgen/internal/logging"
	"github.com/example/adgen/internal/orchestrator"
	"github.com/example/adgen/internal/policy"
	"github.com/example/adgen/internal/provider"
	"github.com/example/adgen/internal/rewrite"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var code int
	switch os.Args[1] {
	case "run":
		code = runOnce(os.Args[2:])
	case "serve":
		code = serve(os.Args[2:])
	default:
		usage()
		code = 1
	}
	os.Exit(code)
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: adgen run --config <path> --template <path> [--resume]")
	fmt.Fprintln(os.Stderr, "       adgen serve [--bind <host:port>] [--config-path <path>] [--template-path <path>]")
}

// runOnce drives a single run to completion and exits. Exit codes follow
// the pipeline's failure classification: 0 on Finished, 2 on a config or
// template parse/validation error, 3 when out_dir is unwritable, 4 on a
// missing provider credential, 1 for anything else.
func runOnce(args []string) int {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	cfgPath := fs.String("config", "./run-config.yaml", "path to the run config YAML document")
	tplPath := fs.String("template", "./template.yml", "path to the template YAML document")
	outDir := fs.String("out-dir", "", "override out_dir from the config document")
	_ = fs.Bool("resume", false, "accepted for compatibility; adgen has no partial-run state to resume from")
	fs.Parse(args)

	log := logging.New(logging.Config{Development: true})
	defer log.Sync()

	cfg, err := config.LoadRunConfig(*cfgPath)
	if err != nil {
		log.Error("failed to load config", zap.Error(err))
		return 2
	}
	tpl, err := config.LoadTemplate(*tplPath)
	if err != nil {
		log.Error("failed to load template", zap.Error(err))
		return 2
	}
	if *outDir != "" {
		cfg.OutDir = *outDir
	}

	rng := clock.NewSeeded(cfg.Seed)

	store, err := artifact.New(cfg.OutDir)
	if err != nil {
		log.Error("out_dir is not writable", zap.String("out_dir", cfg.OutDir), zap.Error(err))
		return 3
	}

	prov, err := buildProvider(cfg, rng)
	if err != nil {
		if errs.Is(err, errs.KindCredentialMissing) {
			log.Error("missing provider credential", zap.Error(err))
			return 4
		}
		log.Error("failed to build provider", zap.Error(err))
		return 1
	}
	rewriter, err := buildRewriter(cfg, log)
	if err != nil {
		log.Error("failed to build rewriter", zap.Error(err))
		return 1
	}

	runID := "run_" + uuid.New().String()[:8]
	o := orchestrator.New(runID, cfg, tpl, orchestrator.Deps{
		Provider: prov,
		Rewriter: rewriter,
		Dedupe:   buildDedupe(cfg),
		Store:    store,
		Clock:    clock.Real{},
		RNG:      rng,
		Log:      log,
	})

	events, unsub := o.Events()
	defer unsub()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	notifyCancel(cancel, log)

	o.Start(ctx)

	for ev := range events {
		logEvent(log, ev)
		if ev.IsTerminal() {
			break
		}
	}

	run := o.Run()
	if run.State == domain.RunStateFailed {
		return 1
	}
	return 0
}

// serve runs the HTTP surface until interrupted.
func serve(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	bindOverride := fs.String("bind", "", "override ADGEN_BIND")
	cfgPathOverride := fs.String("config-path", "", "override ADGEN_CONFIG_PATH")
	tplPathOverride := fs.String("template-path", "", "override ADGEN_TEMPLATE_PATH")
	fs.Parse(args)

	cfg := config.LoadServeConfig()
	if *bindOverride != "" {
		cfg.Bind = *bindOverride
	}
	if *cfgPathOverride != "" {
		cfg.ConfigPath = *cfgPathOverride
	}
	if *tplPathOverride != "" {
		cfg.TemplatePath = *tplPathOverride
	}

	log := logging.New(logging.Config{Development: cfg.LogLevel == "debug", FilePath: cfg.LogFilePath})
	defer log.Sync()

	log.Info("starting adgen",
		zap.String("bind", cfg.Bind),
		zap.String("config_path", cfg.ConfigPath),
		zap.String("template_path", cfg.TemplatePath),
		zap.String("history_db", cfg.HistoryDBPath),
	)

	hist, err := history.Open(cfg.HistoryDBPath)
	if err != nil {
		log.Fatal("failed to open run history database", zap.Error(err))
	}
	defer hist.Close()

	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()

	pol, err := policy.NewEngine(baseCtx, policy.DefaultPolicy)
	if err != nil {
		log.Fatal("failed to initialize policy engine", zap.Error(err))
	}

	srv, err := httpapi.New(baseCtx, cfg.ConfigPath, cfg.TemplatePath, hist, pol, log)
	if err != nil {
		log.Fatal("failed to initialize server", zap.Error(err))
	}

	e := httpapi.NewEcho()
	srv.RegisterRoutes(e)

	go func() {
		if err := e.Start(cfg.Bind); err != nil && err != http.ErrServerClosed {
			log.Fatal("server exited unexpectedly", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	cancelBase()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Warn("server did not shut down cleanly", zap.Error(err))
	}

	log.Info("stopped")
	return 0
}

func notifyCancel(cancel context.CancelFunc, log *zap.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		log.Info("interrupted, cancelling run")
		cancel()
	}()
}

func logEvent(log *zap.Logger, ev domain.Event) {
	switch ev.Type {
	case domain.EventTypeProgress:
		log.Info("progress", zap.Int("done", ev.Done), zap.Int("total", ev.Total), zap.Float64("cost_so_far", ev.CostSoFar))
	case domain.EventTypeLog:
		log.Info(ev.Msg)
	case domain.EventTypeFinished:
		log.Info("finished", zap.String("run_id", ev.RunID))
	case domain.EventTypeFailed:
		log.Error("failed", zap.String("run_id", ev.RunID), zap.String("error", ev.Error))
	case domain.EventTypeStarted:
		log.Info("started", zap.String("run_id", ev.RunID), zap.Int("total", ev.Total))
	}
}

func buildProvider(cfg domain.RunConfig, rng *clock.Seeded) (provider.Provider, error) {
	switch cfg.Provider.Kind {
	case domain.ProviderKindMock:
		return provider.NewMock(rng), nil
	case domain.ProviderKindRemote:
		apiKey := os.Getenv(cfg.Provider.APIKeyEnv)
		return provider.NewRemote(apiKey, cfg.Provider.PricePerImg)
	default:
		return nil, fmt.Errorf("unrecognized provider kind %q", cfg.Provider.Kind)
	}
}

func buildRewriter(cfg domain.RunConfig, log *zap.Logger) (*rewrite.Rewriter, error) {
	if !cfg.Rewrite.Enabled {
		return nil, nil
	}
	apiKey := os.Getenv(cfg.Provider.APIKeyEnv)
	return rewrite.New(apiKey, cfg.Rewrite.Model, cfg.Rewrite.SystemPrompt, cfg.Rewrite.MaxTokens, 4096, cfg.Rewrite.CacheFile, log)
}

func buildDedupe(cfg domain.RunConfig) *dedupe.Set {
	if !cfg.Dedupe.Enabled {
		return nil
	}
	return dedupe.NewSet(cfg.Dedupe.HammingThreshold)
}
