// Package orchestrator owns a single Run: it pulls prompts from a
// Generator, schedules provider calls under bounded concurrency and a
// token-bucket rate limit, and drives each prompt through rewrite,
// generate, dedupe, and persist.
package orchestrator

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/example/adgen/internal/artifact"
	"github.com/example/adgen/internal/clock"
	"github.com/example/adgen/internal/dedupe"
	"github.com/example/adgen/internal/domain"
	"github.com/example/adgen/internal/errs"
	"github.com/example/adgen/internal/eventbus"
	"github.com/example/adgen/internal/promptgen"
	"github.com/example/adgen/internal/provider"
	"github.com/example/adgen/internal/rewrite"
)

// maxStallStreak is how many consecutive no-progress task completions
// (dedupe rejections and permanent failures) are tolerated before the
// run is declared stalled. See SPEC_FULL.md §4.7.
const maxStallStreak = 32

// maxRetries is the maximum number of provider attempts per task before
// a transient failure is treated as permanent for that task.
const maxRetries = 5

// Deps bundles the constructed capabilities an Orchestrator drives. Any
// of Rewriter or Dedupe may be nil when the corresponding config section
// is disabled.
type Deps struct {
	Provider provider.Provider
	Rewriter *rewrite.Rewriter
	Dedupe   *dedupe.Set
	Store    *artifact.Store
	Clock    clock.Clock
	RNG      *clock.Seeded
	Log      *zap.Logger
}

// Orchestrator runs one Run to completion.
type Orchestrator struct {
	cfg  domain.RunConfig
	deps Deps
	gen  *promptgen.Generator
	bus  *eventbus.Bus
	log  *zap.Logger

	sem     *semaphore.Weighted
	limiter *rate.Limiter

	// promptCh is filled by fillQueue from gen and drained by dispatch.
	// Its capacity is Orchestrator.QueueCap: it bounds how many prompts
	// may be pulled from the Generator ahead of the rate/concurrency
	// throttle that gates actually dispatching them.
	promptCh chan string
	genErrCh chan error

	mu  sync.Mutex
	run domain.Run

	idMu   sync.Mutex
	nextID int

	accepted   atomic.Int64
	attempted  atomic.Int64
	inFlight   atomic.Int64
	costSoFar  atomic.Int64 // cents, to keep it an integer atomic
	stallCount atomic.Int64

	cancel context.CancelFunc
}

// New constructs an Orchestrator for one run, snapshotting cfg and tpl so
// later mutation of the live config document does not affect this run.
func New(runID string, cfg domain.RunConfig, tpl domain.Template, deps Deps) *Orchestrator {
	rateLimit := rate.Limit(float64(cfg.Orchestrator.RatePerMin) / 60.0)
	queueCap := cfg.Orchestrator.QueueCap
	if queueCap < 1 {
		queueCap = 1
	}
	o := &Orchestrator{
		cfg:      cfg,
		deps:     deps,
		gen:      promptgen.New(tpl),
		bus:      eventbus.New(),
		log:      deps.Log,
		sem:      semaphore.NewWeighted(int64(cfg.Orchestrator.Concurrency)),
		limiter:  rate.NewLimiter(rateLimit, cfg.Orchestrator.Concurrency),
		promptCh: make(chan string, queueCap),
		genErrCh: make(chan error, 1),
		nextID:   1,
		run: domain.Run{
			ID:          runID,
			TotalTarget: cfg.Orchestrator.TargetImages,
			State:       domain.RunStatePending,
		},
	}
	return o
}

// Events returns a live event subscription for this run.
func (o *Orchestrator) Events() (<-chan domain.Event, func()) {
	return o.bus.Subscribe()
}

// Run returns a snapshot of the Run's current state.
func (o *Orchestrator) Run() domain.Run {
	o.mu.Lock()
	r := o.run
	o.mu.Unlock()
	r.Accepted = int(o.accepted.Load())
	r.Attempted = int(o.attempted.Load())
	return r
}

// Start launches the dispatcher and returns immediately; the run
// transitions to Running and publishes a Started event synchronously
// before Start returns, so callers can safely announce the run id.
func (o *Orchestrator) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	o.mu.Lock()
	o.run.State = domain.RunStateRunning
	o.run.StartedAt = o.deps.Clock.Now()
	o.mu.Unlock()

	o.bus.Publish(domain.Started(o.run.ID, o.run.TotalTarget))
	go o.fillQueue(ctx)
	go o.dispatch(ctx)
}

// fillQueue pulls prompts from the Generator and feeds promptCh, whose
// bounded capacity (Orchestrator.QueueCap) caps how far prompt
// generation can run ahead of dispatch. It exits, closing promptCh, on
// the first Generator error or on context cancellation.
func (o *Orchestrator) fillQueue(ctx context.Context) {
	defer close(o.promptCh)
	for {
		prompt, err := o.gen.Next()
		if err != nil {
			o.genErrCh <- err
			return
		}
		select {
		case o.promptCh <- prompt:
		case <-ctx.Done():
			return
		}
	}
}

// Cancel aborts the run; in-flight tasks observe context cancellation
// and exit, and the dispatcher emits a single Failed{"cancelled"} event.
func (o *Orchestrator) Cancel() {
	if o.cancel != nil {
		o.cancel()
	}
}

// dispatch drives prompts through the pipeline until accepted reaches
// target. inFlight+accepted is only ever an upper bound on how many
// images the work dispatched so far will yield: a dispatched task can still end in a
// dedupe rejection or a permanent failure, which contributes to neither
// accepted nor any future dispatch. So the outer loop keeps re-filling
// the gap after every round of in-flight tasks drains, rather than
// stopping the first time inFlight+accepted reaches target; the run is
// only declared Finished once accepted has actually reached target.
func (o *Orchestrator) dispatch(ctx context.Context) {
	var wg sync.WaitGroup
	target := int64(o.cfg.Orchestrator.TargetImages)

	for o.accepted.Load() < target && ctx.Err() == nil {
		for o.accepted.Load()+o.inFlight.Load() < target {
			if ctx.Err() != nil {
				break
			}

			prompt, ok := <-o.promptCh
			if !ok {
				select {
				case err := <-o.genErrCh:
					o.fail(fmt.Sprintf("generator error: %v", err))
					wg.Wait()
					return
				default:
				}
				break
			}

			if err := o.limiter.Wait(ctx); err != nil {
				break
			}
			if err := o.sem.Acquire(ctx, 1); err != nil {
				break
			}

			o.inFlight.Add(1)
			wg.Add(1)
			go func(seed string) {
				defer wg.Done()
				defer o.inFlight.Add(-1)
				// runTask owns the acquired slot: it releases it exactly once,
				// including across any retry backoff sleeps.
				o.runTask(ctx, seed)
			}(prompt)
		}

		wg.Wait()
	}

	if ctx.Err() != nil {
		o.fail("cancelled")
		return
	}

	o.mu.Lock()
	already := o.run.State != domain.RunStateRunning
	if !already {
		o.run.State = domain.RunStateFinished
		o.run.EndedAt = o.deps.Clock.Now()
	}
	o.mu.Unlock()
	if !already {
		o.bus.Publish(domain.Finished(o.run.ID))
	}
}

// runTask drives one prompt through rewrite -> generate (with retry) ->
// dedupe -> persist -> manifest -> publish. runTask owns the semaphore
// slot acquired by dispatch and releases it exactly once on return; it
// also gives the slot up around retry sleeps so slow backoffs do not
// starve new work.
func (o *Orchestrator) runTask(ctx context.Context, seed string) {
	semHeld := true
	defer func() {
		if semHeld {
			o.sem.Release(1)
		}
	}()

	p := domain.Prompt{Seed: seed}
	if o.deps.Rewriter != nil {
		p.Rewritten = o.deps.Rewriter.Rewrite(ctx, seed)
	}

	result, outcome, held := o.generateWithRetry(ctx, p.Effective())
	semHeld = held
	o.attempted.Add(1)

	switch outcome {
	case errs.KindCancelled:
		return
	case errs.KindProviderPermanent:
		o.noProgress(fmt.Sprintf("provider permanently failed for prompt %q", p.Effective()))
		return
	}

	o.addCost(result.Cost)

	var fp uint64
	haveFP := false
	if o.deps.Dedupe != nil {
		f, err := dedupe.Fingerprint(result.PNG, o.cfg.Dedupe.HashBits)
		if err != nil {
			o.log.Warn("fingerprint failed, skipping dedupe for this image", zap.Error(err))
		} else {
			fp, haveFP = f, true
		}
	}

	a := domain.Artifact{
		RunID:     o.run.ID,
		Provider:  string(o.cfg.Provider.Kind),
		Model:     o.cfg.Provider.Model,
		Width:     o.cfg.Provider.Width,
		Height:    o.cfg.Provider.Height,
		CreatedAt: o.deps.Clock.Now(),
		Prompt:    p.Seed,
		Rewritten: p.Rewritten,
		Cost:      result.Cost,
	}

	var thumb []byte
	if o.cfg.Post.Thumbnail {
		t, err := artifact.Thumbnail(result.PNG, o.cfg.Post.ThumbMaxPx)
		if err != nil {
			o.log.Warn("thumbnail generation failed", zap.Error(err))
		} else {
			thumb = t
		}
	}

	// The id counter and the FingerprintSet are committed together, and
	// only once persistence has succeeded: an id is never handed out to
	// an image that does not end up on disk, and a fingerprint is never
	// recorded for an image that gets discarded. idMu is also held across
	// AppendManifest and the Progress publish, so manifest lines follow id
	// order and Progress done values are monotonic; the only nesting is
	// idMu enclosing the Store's manifest mutex, never the reverse.
	o.idMu.Lock()
	if haveFP && o.deps.Dedupe.Contains(fp) {
		o.idMu.Unlock()
		o.noProgress(fmt.Sprintf("duplicate; skipped (prompt %q)", p.Effective()))
		return
	}
	a.NumericID = o.nextID
	if err := o.deps.Store.Save(result.PNG, &a, thumb); err != nil {
		o.idMu.Unlock()
		o.log.Warn("persistence failed, skipping artifact", zap.Error(err))
		o.noProgress("persistence failed")
		return
	}
	o.nextID++
	if haveFP {
		o.deps.Dedupe.Add(fp)
	}

	if err := o.deps.Store.AppendManifest(a); err != nil {
		o.log.Warn("manifest append failed", zap.Error(err))
	}

	o.accepted.Add(1)
	o.stallCount.Store(0)
	o.bus.Publish(domain.Progress(o.run.ID, int(o.accepted.Load()), o.run.TotalTarget, o.costFloat()))
	o.idMu.Unlock()
}

// generateWithRetry calls the Provider, retrying Transient failures with
// exponential backoff plus jitter. The semaphore slot held by the caller
// is released for the duration of each sleep and reacquired before the
// next attempt.
// The bool return reports whether the caller's semaphore slot is still
// held on return: true in every case except a cancellation that struck
// while the slot was released for a backoff sleep, in which case the
// caller must not release it again.
func (o *Orchestrator) generateWithRetry(ctx context.Context, prompt string) (provider.Result, errs.Kind, bool) {
	params := provider.Params{
		Prompt: prompt,
		Model:  o.cfg.Provider.Model,
		Width:  o.cfg.Provider.Width,
		Height: o.cfg.Provider.Height,
	}

	for attempt := 1; attempt <= maxRetries; attempt++ {
		result, err := o.deps.Provider.Generate(ctx, params)
		if err == nil {
			return result, "", true
		}

		kind, _ := errs.KindOf(err)
		if kind != errs.KindProviderTransient {
			return provider.Result{}, kind, true
		}
		if attempt == maxRetries {
			return provider.Result{}, errs.KindProviderPermanent, true
		}

		o.sem.Release(1)
		o.sleepBackoff(ctx, attempt)
		if acqErr := o.sem.Acquire(ctx, 1); acqErr != nil {
			return provider.Result{}, errs.KindCancelled, false
		}

		if ctx.Err() != nil {
			o.sem.Release(1)
			return provider.Result{}, errs.KindCancelled, false
		}
	}
	return provider.Result{}, errs.KindProviderPermanent, true
}

func (o *Orchestrator) sleepBackoff(ctx context.Context, attempt int) {
	base := float64(o.cfg.Orchestrator.BackoffBaseMs)
	factor := o.cfg.Orchestrator.BackoffFactor
	core := base * math.Pow(factor, float64(attempt-1))
	jitter := 0.0
	if o.cfg.Orchestrator.BackoffJitter > 0 {
		jitter = o.deps.RNG.Float64() * float64(o.cfg.Orchestrator.BackoffJitter)
	}
	delay := time.Duration(core+jitter) * time.Millisecond
	if delay > 60*time.Second {
		delay = 60 * time.Second
	}

	select {
	case <-ctx.Done():
	case <-time.After(delay):
	}
}

// noProgress records a no-progress completion (dedupe rejection or
// permanent failure) and triggers the stall safeguard once the
// consecutive-no-progress streak reaches maxStallStreak.
func (o *Orchestrator) noProgress(msg string) {
	o.bus.Publish(domain.Log(o.run.ID, msg))
	streak := o.stallCount.Add(1)
	if streak >= maxStallStreak {
		o.fail(fmt.Sprintf("stalled: no progress in %d consecutive attempts", maxStallStreak))
		o.cancel()
	}
}

func (o *Orchestrator) fail(reason string) {
	o.mu.Lock()
	already := o.run.State != domain.RunStateRunning
	if !already {
		o.run.State = domain.RunStateFailed
		o.run.Error = reason
		o.run.EndedAt = o.deps.Clock.Now()
	}
	o.mu.Unlock()
	if !already {
		o.bus.Publish(domain.Failed(o.run.ID, reason))
	}
}

func (o *Orchestrator) addCost(cost float64) {
	o.costSoFar.Add(int64(math.Round(cost * 100)))
	o.mu.Lock()
	o.run.CostSoFar = o.costFloat()
	o.mu.Unlock()
}

func (o *Orchestrator) costFloat() float64 {
	return float64(o.costSoFar.Load()) / 100
}
