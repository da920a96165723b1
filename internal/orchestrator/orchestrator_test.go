package orchestrator

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/example/adgen/internal/artifact"
	"github.com/example/adgen/internal/clock"
	"github.com/example/adgen/internal/dedupe"
	"github.com/example/adgen/internal/domain"
	"github.com/example/adgen/internal/errs"
	"github.com/example/adgen/internal/provider"
)

// readManifestIDs reads manifest.jsonl under dir and returns the
// numeric_id of every entry, sorted ascending.
func readManifestIDs(t *testing.T, dir string) []int {
	t.Helper()
	f, err := os.Open(filepath.Join(dir, "manifest.jsonl"))
	require.NoError(t, err)
	defer f.Close()

	var ids []int
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var entry domain.ManifestEntry
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &entry))
		ids = append(ids, entry.NumericID)
	}
	require.NoError(t, scanner.Err())
	sort.Ints(ids)
	return ids
}

// fakeProvider lets tests script a sequence of outcomes.
type fakeProvider struct {
	mu    sync.Mutex
	calls int32
	// script is consulted by call index (0-based); when exhausted, the
	// last entry repeats.
	script []func(call int32) (provider.Result, error)
}

func solidPNG(c color.RGBA) []byte {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	_ = png.Encode(&buf, img)
	return buf.Bytes()
}

func (f *fakeProvider) Generate(ctx context.Context, params provider.Params) (provider.Result, error) {
	call := atomic.AddInt32(&f.calls, 1) - 1
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := int(call)
	if idx >= len(f.script) {
		idx = len(f.script) - 1
	}
	return f.script[idx](call)
}

func baseConfig() domain.RunConfig {
	return domain.RunConfig{
		Provider: domain.ProviderConfig{Kind: domain.ProviderKindMock, Model: "mock-v1", Width: 8, Height: 8},
		Orchestrator: domain.OrchestratorConfig{
			TargetImages:  3,
			Concurrency:   2,
			RatePerMin:    600,
			BackoffBaseMs: 5,
			BackoffFactor: 2.0,
			BackoffJitter: 0,
		},
		OutDir: "",
	}
}

func adTemplate() domain.Template {
	return domain.Template{
		Kind: domain.TemplateKindAd,
		Ad:   &domain.AdTemplate{Brand: "A", Product: "B", Styles: []string{"X", "Y"}},
	}
}

func waitTerminal(t *testing.T, events <-chan domain.Event, timeout time.Duration) domain.Event {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				t.Fatal("event stream closed before a terminal event arrived")
			}
			if ev.IsTerminal() {
				return ev
			}
		case <-deadline:
			t.Fatal("timed out waiting for terminal event")
		}
	}
}

func TestOrchestrator_MockSmoke(t *testing.T) {
	dir := t.TempDir()
	store, err := artifact.New(dir)
	require.NoError(t, err)

	cfg := baseConfig()
	cfg.OutDir = dir
	cfg.Dedupe.Enabled = false

	o := New("run1", cfg, adTemplate(), Deps{
		Provider: provider.NewMock(clock.NewSeeded(1)),
		Store:    store,
		Clock:    clock.Real{},
		RNG:      clock.NewSeeded(1),
		Log:      zap.NewNop(),
	})

	events, unsub := o.Events()
	defer unsub()

	o.Start(context.Background())
	ev := waitTerminal(t, events, 5*time.Second)
	require.Equal(t, domain.EventTypeFinished, ev.Type)

	run := o.Run()
	require.Equal(t, 3, run.Accepted)
	require.Equal(t, domain.RunStateFinished, run.State)
}

func TestOrchestrator_TransientThenSuccess(t *testing.T) {
	dir := t.TempDir()
	store, err := artifact.New(dir)
	require.NoError(t, err)

	cfg := baseConfig()
	cfg.OutDir = dir
	cfg.Orchestrator.TargetImages = 1
	cfg.Orchestrator.Concurrency = 1
	cfg.Dedupe.Enabled = false

	fp := &fakeProvider{script: []func(int32) (provider.Result, error){
		func(int32) (provider.Result, error) { return provider.Result{}, errs.New(errs.KindProviderTransient, nil) },
		func(int32) (provider.Result, error) { return provider.Result{}, errs.New(errs.KindProviderTransient, nil) },
		func(int32) (provider.Result, error) { return provider.Result{PNG: solidPNG(color.RGBA{1, 2, 3, 255})}, nil },
	}}

	o := New("run2", cfg, domain.Template{Kind: domain.TemplateKindGeneral, General: &domain.GeneralPrompt{Prompt: "x"}}, Deps{
		Provider: fp,
		Store:    store,
		Clock:    clock.Real{},
		RNG:      clock.NewSeeded(1),
		Log:      zap.NewNop(),
	})

	events, unsub := o.Events()
	defer unsub()

	start := time.Now()
	o.Start(context.Background())
	ev := waitTerminal(t, events, 5*time.Second)
	require.Equal(t, domain.EventTypeFinished, ev.Type)
	require.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)

	run := o.Run()
	require.Equal(t, 1, run.Accepted)
}

// TestOrchestrator_PermanentFailsSoft exercises spec scenario 4: a
// Permanent failure mid-run must not short the run of its target; the
// dispatcher compensates by dispatching another prompt, and ids remain
// contiguous over the artifacts that actually persisted.
func TestOrchestrator_PermanentFailsSoft(t *testing.T) {
	dir := t.TempDir()
	store, err := artifact.New(dir)
	require.NoError(t, err)

	cfg := baseConfig()
	cfg.OutDir = dir
	cfg.Dedupe.Enabled = false

	img := func(c color.RGBA) (provider.Result, error) {
		return provider.Result{PNG: solidPNG(c)}, nil
	}
	fp := &fakeProvider{script: []func(int32) (provider.Result, error){
		func(int32) (provider.Result, error) { return img(color.RGBA{1, 1, 1, 255}) },
		func(int32) (provider.Result, error) { return provider.Result{}, errs.New(errs.KindProviderPermanent, nil) },
		func(int32) (provider.Result, error) { return img(color.RGBA{2, 2, 2, 255}) },
		func(int32) (provider.Result, error) { return img(color.RGBA{3, 3, 3, 255}) },
	}}

	o := New("run4", cfg, domain.Template{Kind: domain.TemplateKindGeneral, General: &domain.GeneralPrompt{Prompt: "x"}}, Deps{
		Provider: fp,
		Store:    store,
		Clock:    clock.Real{},
		RNG:      clock.NewSeeded(1),
		Log:      zap.NewNop(),
	})

	events, unsub := o.Events()
	defer unsub()

	o.Start(context.Background())
	ev := waitTerminal(t, events, 5*time.Second)
	require.Equal(t, domain.EventTypeFinished, ev.Type)

	run := o.Run()
	require.Equal(t, 3, run.Accepted)
	require.Equal(t, domain.RunStateFinished, run.State)

	require.Equal(t, []int{1, 2, 3}, readManifestIDs(t, dir))
}

func TestOrchestrator_StallSafeguard(t *testing.T) {
	dir := t.TempDir()
	store, err := artifact.New(dir)
	require.NoError(t, err)

	cfg := baseConfig()
	cfg.OutDir = dir
	cfg.Orchestrator.TargetImages = 2
	cfg.Orchestrator.Concurrency = 1
	cfg.Dedupe.Enabled = true
	cfg.Dedupe.HashBits = 64
	cfg.Dedupe.HammingThreshold = 64 // everything collides

	same := solidPNG(color.RGBA{9, 9, 9, 255})
	fp := &fakeProvider{script: []func(int32) (provider.Result, error){
		func(int32) (provider.Result, error) { return provider.Result{PNG: same}, nil },
	}}

	o := New("run3", cfg, domain.Template{Kind: domain.TemplateKindGeneral, General: &domain.GeneralPrompt{Prompt: "x"}}, Deps{
		Provider: fp,
		Dedupe:   dedupe.NewSet(cfg.Dedupe.HammingThreshold),
		Store:    store,
		Clock:    clock.Real{},
		RNG:      clock.NewSeeded(1),
		Log:      zap.NewNop(),
	})

	events, unsub := o.Events()
	defer unsub()

	o.Start(context.Background())
	ev := waitTerminal(t, events, 10*time.Second)
	require.Equal(t, domain.EventTypeFailed, ev.Type)
	require.Contains(t, ev.Error, "stalled")
}
