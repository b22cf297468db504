// Package refresh owns the current artifact and runs the fetch, normalize and
// render pipeline at most once at a time.
package refresh

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/i474232898/forecast-panels/internal/logger"
	"github.com/i474232898/forecast-panels/internal/render"
	"github.com/i474232898/forecast-panels/internal/weather"
	"go.uber.org/atomic"
	"golang.org/x/sync/singleflight"
)

// State is the coordinator's refresh state.
type State int32

const (
	Idle State = iota
	Refreshing
)

func (s State) String() string {
	if s == Refreshing {
		return "refreshing"
	}
	return "idle"
}

// Renderer draws a dataset into an artifact.
type Renderer interface {
	Render(ctx context.Context, ds *weather.Dataset, layout render.Layout) (*weather.Artifact, error)
}

// Publisher copies a stored artifact somewhere outside the process.
type Publisher interface {
	Publish(ctx context.Context, a *weather.Artifact) error
}

// Recorder receives refresh outcomes. *metrics.Manager implements it.
type Recorder interface {
	RefreshSucceeded(took time.Duration, at time.Time)
	RefreshFailed(stage string, took time.Duration)
	MembersPopulated(variable string, n int)
	Coalesced()
	PublishFailed()
}

// TickSource drives periodic refreshes.
type TickSource interface {
	Ticks() <-chan time.Time
}

// RetryPolicy repeats failed fetches that look transient. The zero value never retries.
type RetryPolicy struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func (p RetryPolicy) delay(attempt int) time.Duration {
	initial := p.InitialInterval
	if initial <= 0 {
		initial = 500 * time.Millisecond
	}
	d := initial * time.Duration(math.Pow(2, float64(attempt)))
	if p.MaxInterval > 0 && d > p.MaxInterval {
		d = p.MaxInterval
	}
	return d
}

// Status is a point-in-time view of the coordinator for health reporting.
type Status struct {
	State       string    `json:"state"`
	Runs        int64     `json:"runs"`
	Failures    int64     `json:"failures"`
	LastError   string    `json:"-"`
	LastStage   Stage     `json:"lastFailedStage,omitempty"`
	LastSuccess time.Time `json:"lastSuccess,omitempty"`
}

// Coordinator serializes refreshes and hands out the current artifact.
type Coordinator struct {
	provider  weather.Provider
	renderer  Renderer
	store     weather.Store
	publisher Publisher
	cfg       weather.PipelineConfig
	layout    render.Layout

	log     logger.Logger
	metrics Recorder
	now     func() time.Time
	retry   RetryPolicy

	group       singleflight.Group
	state       atomic.Int32
	runs        atomic.Int64
	failures    atomic.Int64
	lastErr     atomic.Error
	lastSuccess atomic.Int64
}

// Option customizes a Coordinator.
type Option func(*Coordinator)

func WithLogger(l logger.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.log = l
		}
	}
}

func WithMetrics(r Recorder) Option {
	return func(c *Coordinator) {
		if r != nil {
			c.metrics = r
		}
	}
}

// WithClock replaces time.Now, which stamps datasets and drives the from-now filter.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

// WithPublisher sets where each stored artifact is copied. Publishing happens
// after the in-memory swap and its failure does not fail the refresh.
func WithPublisher(p Publisher) Option {
	return func(c *Coordinator) {
		c.publisher = p
	}
}

func WithRetry(p RetryPolicy) Option {
	return func(c *Coordinator) {
		c.retry = p
	}
}

func New(
	provider weather.Provider,
	renderer Renderer,
	store weather.Store,
	cfg weather.PipelineConfig,
	layout render.Layout,
	opts ...Option,
) *Coordinator {
	c := &Coordinator{
		provider: provider,
		renderer: renderer,
		store:    store,
		cfg:      cfg,
		layout:   layout,
		log:      logger.Nop(),
		metrics:  nopRecorder{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TriggerRefresh runs the pipeline and stores the new artifact. A call made while
// a refresh is in flight joins it and returns its result instead of starting another.
// The pipeline itself ignores ctx cancellation; ctx only bounds how long this caller waits.
func (c *Coordinator) TriggerRefresh(ctx context.Context) (*weather.Artifact, error) {
	started := false
	ch := c.group.DoChan("refresh", func() (interface{}, error) {
		started = true
		return c.run(context.WithoutCancel(ctx))
	})

	select {
	case res := <-ch:
		if !started {
			c.metrics.Coalesced()
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*weather.Artifact), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Current returns the last stored artifact without waiting for a refresh.
func (c *Coordinator) Current() (*weather.Artifact, error) {
	return c.store.Latest()
}

// State reports whether a refresh is in flight.
func (c *Coordinator) State() State {
	return State(c.state.Load())
}

// Runs counts pipeline executions since start, successful or not.
func (c *Coordinator) Runs() int64 {
	return c.runs.Load()
}

func (c *Coordinator) Status() Status {
	st := Status{
		State:    c.State().String(),
		Runs:     c.runs.Load(),
		Failures: c.failures.Load(),
	}
	if err := c.lastErr.Load(); err != nil {
		st.LastError = err.Error()
		var serr *StageError
		if errors.As(err, &serr) {
			st.LastStage = serr.Stage
		}
	}
	if ts := c.lastSuccess.Load(); ts > 0 {
		st.LastSuccess = time.Unix(0, ts)
	}
	return st
}

// Run triggers a refresh on every tick until ctx is done or the source closes.
// Failures are logged and recorded; the loop keeps going.
func (c *Coordinator) Run(ctx context.Context, ticks TickSource) error {
	c.log.Info(ctx, "refresh loop started")
	for {
		select {
		case <-ctx.Done():
			c.log.Info(ctx, "refresh loop stopped")
			return ctx.Err()
		case _, ok := <-ticks.Ticks():
			if !ok {
				c.log.Info(ctx, "tick source closed")
				return nil
			}
			_, _ = c.TriggerRefresh(ctx)
		}
	}
}

func (c *Coordinator) run(ctx context.Context) (*weather.Artifact, error) {
	c.state.Store(int32(Refreshing))
	defer c.state.Store(int32(Idle))
	c.runs.Inc()

	start := time.Now()
	c.log.Debug(ctx, "refresh started",
		logger.Float64("latitude", c.cfg.Latitude),
		logger.Float64("longitude", c.cfg.Longitude),
		logger.String("model", c.cfg.Model))

	raw, err := c.fetch(ctx)
	if err != nil {
		return nil, c.fail(ctx, StageFetch, err, start)
	}

	ds, err := weather.Normalize(raw, c.cfg, c.now())
	if err != nil {
		return nil, c.fail(ctx, StageNormalize, err, start)
	}

	artifact, err := c.renderer.Render(ctx, ds, c.layout)
	if err != nil {
		return nil, c.fail(ctx, StageRender, err, start)
	}

	c.store.SaveArtifact(artifact)
	c.publish(ctx, artifact)

	took := time.Since(start)
	c.lastErr.Store(nil)
	c.lastSuccess.Store(artifact.GeneratedAt.UnixNano())
	c.metrics.RefreshSucceeded(took, artifact.GeneratedAt)
	for variable, cov := range ds.Coverage {
		c.metrics.MembersPopulated(variable, cov.Populated)
		if !cov.Complete() {
			c.log.Warn(ctx, "ensemble members missing",
				logger.String("variable", variable),
				logger.Int("expected", cov.Expected),
				logger.Int("populated", cov.Populated))
		}
	}
	c.log.Info(ctx, "artifact refreshed",
		logger.String("id", artifact.ID),
		logger.Int("samples", len(ds.Times)),
		logger.Int("series", len(ds.Series)),
		logger.Duration("took", took))
	return artifact, nil
}

func (c *Coordinator) fetch(ctx context.Context) (*weather.RawResponse, error) {
	for attempt := 0; ; attempt++ {
		raw, err := c.provider.Fetch(ctx, c.cfg)
		if err == nil {
			return raw, nil
		}
		if !errors.Is(err, weather.ErrNetwork) || attempt >= c.retry.MaxRetries {
			return nil, err
		}

		delay := c.retry.delay(attempt)
		c.log.Warn(ctx, "fetch failed, retrying",
			logger.String("provider", c.provider.Name()),
			logger.Int("attempt", attempt+1),
			logger.Duration("backoff", delay),
			logger.Err(err))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// publish runs strictly after SaveArtifact so no sink is ever ahead of memory.
func (c *Coordinator) publish(ctx context.Context, a *weather.Artifact) {
	if c.publisher == nil {
		return
	}
	if err := c.publisher.Publish(ctx, a); err != nil {
		c.metrics.PublishFailed()
		c.log.Error(ctx, "publishing artifact failed, serving it from memory",
			logger.String("id", a.ID),
			logger.Err(err))
	}
}

func (c *Coordinator) fail(ctx context.Context, stage Stage, err error, start time.Time) error {
	serr := &StageError{Stage: stage, Err: err}
	c.failures.Inc()
	c.lastErr.Store(serr)
	c.metrics.RefreshFailed(string(stage), time.Since(start))
	c.log.Error(ctx, "refresh failed, keeping previous artifact",
		logger.String("stage", string(stage)),
		logger.Err(err))
	return serr
}

type nopRecorder struct{}

func (nopRecorder) RefreshSucceeded(time.Duration, time.Time) {}
func (nopRecorder) RefreshFailed(string, time.Duration)       {}
func (nopRecorder) MembersPopulated(string, int)              {}
func (nopRecorder) Coalesced()                                {}
func (nopRecorder) PublishFailed()                            {}
