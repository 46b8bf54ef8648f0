package builder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/vyvo/apkforge/backend/pkg/metrics"
)

const startLine = "[INFO] Starting build process..."

// Step is one scheduled transition of a simulated build.
type Step struct {
	Progress int
	Lines    []string
	Final    bool
}

// DefaultSchedule is the fixed APK build simulation. Step i fires at (i+1) intervals
// after the build starts.
var DefaultSchedule = []Step{
	{Progress: 25, Lines: []string{"[INFO] Analyzing Python files...", "[INFO] Found entry point"}},
	{Progress: 50, Lines: []string{"[INFO] Installing dependencies...", "[INFO] Compiling Python bytecode..."}},
	{Progress: 75, Lines: []string{"[INFO] Creating Android project structure...", "[INFO] Packaging assets..."}},
	{Progress: 100, Lines: []string{"[INFO] Code signing...", "[SUCCESS] Build complete! APK ready for download."}, Final: true},
}

// Publisher receives every run that finishes successfully.
type Publisher interface {
	Publish(ctx context.Context, rec Record) error
}

type Option func(*Driver)

func WithInterval(interval time.Duration) Option {
	return func(d *Driver) {
		if interval > 0 {
			d.interval = interval
		}
	}
}

func WithSchedule(steps []Step) Option {
	return func(d *Driver) { d.schedule = steps }
}

func WithPublisher(p Publisher) Option {
	return func(d *Driver) { d.publisher = p }
}

func WithLogger(logger *zap.Logger) Option {
	return func(d *Driver) {
		if logger != nil {
			d.logger = logger
		}
	}
}

func WithHub(h *Hub) Option {
	return func(d *Driver) {
		if h != nil {
			d.hub = h
		}
	}
}

type run struct {
	generation uint64
	timers     []*time.Timer
	started    time.Time
	span       trace.Span
}

func (r *run) stop() {
	for _, t := range r.timers {
		t.Stop()
	}
}

// Driver advances build records along a fixed schedule. Each run is tagged with the
// generation issued by the Store; restarting or cancelling a project stops the
// pending timers of its previous run, and any callback that already fired is
// rejected by the generation check.
type Driver struct {
	store     Store
	hub       *Hub
	publisher Publisher
	logger    *zap.Logger
	tracer    trace.Tracer
	interval  time.Duration
	schedule  []Step
	opTimeout time.Duration

	mu   sync.Mutex
	runs map[string]*run
}

func NewDriver(store Store, opts ...Option) *Driver {
	d := &Driver{
		store:     store,
		hub:       NewHub(),
		logger:    zap.NewNop(),
		tracer:    otel.Tracer("github.com/vyvo/apkforge/backend/pkg/builder"),
		interval:  time.Second,
		schedule:  DefaultSchedule,
		opTimeout: 5 * time.Second,
		runs:      make(map[string]*run),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With(zap.String("component", "build-driver"))
	return d
}

// Hub returns the hub snapshots are published to.
func (d *Driver) Hub() *Hub {
	return d.hub
}

// Store returns the backing record store.
func (d *Driver) Store() Store {
	return d.store
}

// Start begins a new run for projectID, replacing any previous run, and returns
// the initial record.
func (d *Driver) Start(ctx context.Context, projectID string) (Record, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	rec, err := d.store.Create(ctx, projectID)
	if err != nil {
		return Record{}, fmt.Errorf("create build record: %w", err)
	}
	rec, err = d.store.Apply(ctx, projectID, Advance(rec.Generation, 0, startLine))
	if err != nil {
		return Record{}, fmt.Errorf("write build start: %w", err)
	}

	if prev, ok := d.runs[projectID]; ok {
		prev.stop()
		prev.span.SetAttributes(attribute.Bool("build.superseded", true))
		prev.span.End()
		metrics.BuildSuperseded()
		d.logger.Info("superseded running build",
			zap.String("project_id", projectID),
			zap.Uint64("generation", prev.generation),
			zap.Uint64("next_generation", rec.Generation))
	}

	_, span := d.tracer.Start(context.Background(), "build.run", trace.WithAttributes(
		attribute.String("build.project_id", projectID),
		attribute.Int64("build.generation", int64(rec.Generation)),
	))
	r := &run{generation: rec.Generation, started: time.Now(), span: span}
	for i, step := range d.schedule {
		step := step
		generation := rec.Generation
		delay := time.Duration(i+1) * d.interval
		r.timers = append(r.timers, time.AfterFunc(delay, func() {
			d.fire(projectID, generation, step)
		}))
	}
	d.runs[projectID] = r

	metrics.BuildStarted()
	d.logger.Info("build started", zap.String("project_id", projectID), zap.Uint64("generation", rec.Generation))
	d.hub.Publish(rec)
	return rec, nil
}

func (d *Driver) fire(projectID string, generation uint64, step Step) {
	ctx, cancel := context.WithTimeout(context.Background(), d.opTimeout)
	defer cancel()

	t := Advance(generation, step.Progress, step.Lines...)
	if step.Final {
		t = Complete(generation, step.Lines...)
	}

	rec, err := d.store.Apply(ctx, projectID, t)
	switch {
	case errors.Is(err, ErrStaleGeneration), errors.Is(err, ErrNotFound), errors.Is(err, ErrTerminal):
		metrics.StaleTransition()
		d.logger.Debug("dropped stale build transition",
			zap.String("project_id", projectID),
			zap.Uint64("generation", generation),
			zap.Int("progress", step.Progress),
			zap.Error(err))
		return
	case err != nil:
		d.logger.Error("apply build transition",
			zap.String("project_id", projectID),
			zap.Uint64("generation", generation),
			zap.Error(err))
		return
	}

	d.hub.Publish(rec)
	if rec.Terminal() {
		d.finish(ctx, rec)
	}
}

func (d *Driver) finish(ctx context.Context, rec Record) {
	d.mu.Lock()
	r, ok := d.runs[rec.ProjectID]
	if ok && r.generation == rec.Generation {
		delete(d.runs, rec.ProjectID)
		d.hub.Close(rec.ProjectID)
	} else {
		ok = false
	}
	d.mu.Unlock()

	if !ok {
		return
	}

	elapsed := time.Since(r.started)
	metrics.ObserveBuildFinished(string(rec.Status), elapsed)
	r.span.SetAttributes(attribute.String("build.status", string(rec.Status)))
	r.span.SetStatus(codes.Ok, "")
	r.span.End()
	d.logger.Info("build finished",
		zap.String("project_id", rec.ProjectID),
		zap.Uint64("generation", rec.Generation),
		zap.String("status", string(rec.Status)),
		zap.Duration("elapsed", elapsed))

	if d.publisher == nil || rec.Status != StatusSuccess {
		return
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := d.publisher.Publish(pubCtx, rec); err != nil {
		d.logger.Warn("publish build log failed", zap.String("project_id", rec.ProjectID), zap.Error(err))
	}
}

// Cancel stops the pending steps of projectID's run, if any, and ends its
// subscriptions. The record itself is left to the caller.
func (d *Driver) Cancel(projectID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	r, ok := d.runs[projectID]
	if !ok {
		return
	}
	r.stop()
	r.span.SetAttributes(attribute.Bool("build.cancelled", true))
	r.span.End()
	delete(d.runs, projectID)
	d.hub.Close(projectID)
	metrics.BuildSuperseded()
	d.logger.Info("build cancelled", zap.String("project_id", projectID), zap.Uint64("generation", r.generation))
}

// Active reports whether projectID has a run with pending steps.
func (d *Driver) Active(projectID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.runs[projectID]
	return ok
}

// Shutdown stops every pending step.
func (d *Driver) Shutdown() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for projectID, r := range d.runs {
		r.stop()
		r.span.End()
		d.hub.Close(projectID)
	}
	d.runs = make(map[string]*run)
}
