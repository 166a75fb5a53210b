// Package pipeline runs configured inputs end to end: it resolves the input's
// credentials, builds its source and the sink from the registry, and streams
// every event from one to the other in order.
//
// # Basic Usage
//
//	runner := pipeline.NewRunner(manager, cfg.Sink,
//	    pipeline.WithLogger(log),
//	)
//	if err := runner.RunAll(ctx, cfg.Inputs); err != nil {
//	    os.Exit(1)
//	}
package pipeline

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ajitpratap0/gridfeed/pkg/config"
	"github.com/ajitpratap0/gridfeed/pkg/connector/core"
	"github.com/ajitpratap0/gridfeed/pkg/connector/registry"
	"github.com/ajitpratap0/gridfeed/pkg/credentials"
	"github.com/ajitpratap0/gridfeed/pkg/errors"
	"github.com/ajitpratap0/gridfeed/pkg/logger"
	"github.com/ajitpratap0/gridfeed/pkg/metrics"
	"github.com/ajitpratap0/gridfeed/pkg/observability"
)

// Runner executes inputs against one sink configuration
type Runner struct {
	factory     registry.Factory
	credentials *credentials.Manager
	sink        config.SinkConfig
	logger      *zap.Logger
	metrics     *metrics.Metrics
	newRunID    func() string
}

// Option configures a Runner
type Option func(*Runner)

// WithFactory replaces the global connector registry
func WithFactory(f registry.Factory) Option {
	return func(r *Runner) { r.factory = f }
}

// WithLogger sets the run logger
func WithLogger(l *zap.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// WithMetrics sets where run outcomes are recorded
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// NewRunner creates a runner resolving passwords through creds and writing
// to the sink described by sink.
func NewRunner(creds *credentials.Manager, sink config.SinkConfig, opts ...Option) *Runner {
	r := &Runner{
		factory:     registry.GetRegistry(),
		credentials: creds,
		sink:        sink,
		newRunID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = logger.Get()
	}
	if r.metrics == nil {
		r.metrics = metrics.Default()
	}
	return r
}

// Run executes one input with its own sink, which is closed before Run
// returns.
func (r *Runner) Run(ctx context.Context, inputName string, input config.InputConfig) error {
	ctx = logger.WithInput(logger.WithRunID(ctx, r.newRunID()), inputName)
	log := logger.WithContext(ctx, r.logger)

	sink, err := r.factory.CreateDestination(r.sink, log)
	if err != nil {
		r.finish(log, inputName, err)
		return err
	}

	err = r.run(ctx, log, inputName, input, sink)
	if cerr := sink.Close(ctx); cerr != nil && err == nil {
		err = errors.Wrap(cerr, errors.TypeOf(cerr), "failed to close sink")
	}
	r.finish(log, inputName, err)
	return err
}

// RunAll executes every input in name order against one shared sink. A
// failed input does not stop the others; the failures are returned joined.
// Every log entry of the pass carries the same run_id.
func (r *Runner) RunAll(ctx context.Context, inputs map[string]config.InputConfig) error {
	ctx = logger.WithRunID(ctx, r.newRunID())
	passLog := logger.WithContext(ctx, r.logger)

	names := make([]string, 0, len(inputs))
	for name := range inputs {
		names = append(names, name)
	}
	sort.Strings(names)

	sink, err := r.factory.CreateDestination(r.sink, passLog)
	if err != nil {
		passLog.Error("Failed to create sink", zap.Error(err))
		for _, name := range names {
			r.metrics.RunFinished(name, err)
		}
		return err
	}

	var errs []error
	for _, name := range names {
		if ctx.Err() != nil {
			errs = append(errs, errors.Wrap(ctx.Err(), errors.ErrorTypeInternal, "run cancelled before "+name))
			break
		}
		inputCtx := logger.WithInput(ctx, name)
		log := logger.WithContext(inputCtx, r.logger)
		err := r.run(inputCtx, log, name, inputs[name], sink)
		r.finish(log, name, err)
		if err != nil {
			errs = append(errs, err)
		}
	}

	if err := sink.Close(ctx); err != nil {
		passLog.Error("Failed to close sink", zap.Error(err))
		errs = append(errs, errors.Wrap(err, errors.TypeOf(err), "failed to close sink"))
	}
	return errors.Join(errs...)
}

// run streams one input into sink. The source is closed on every path.
func (r *Runner) run(ctx context.Context, log *zap.Logger, inputName string, input config.InputConfig, sink core.Destination) (err error) {
	ctx, span := observability.StartSpan(ctx, observability.SpanRun, observability.InputAttr(inputName))
	start := time.Now()
	defer func() { observability.EndSpan(span, err) }()

	kind, name, err := config.ParseInputName(inputName)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "invalid input name")
	}

	password, err := r.credentials.Resolve(ctx, kind, name, input.Password)
	if err != nil {
		return err
	}
	input.Password = password

	source, err := r.factory.CreateSource(kind, name, input, log)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := source.Close(ctx); cerr != nil {
			log.Warn("Failed to close source", zap.Error(cerr))
		}
	}()

	var emitted int64
	err = source.Read(ctx, func(ctx context.Context, event *core.Event) error {
		if werr := sink.Write(ctx, event); werr != nil {
			return errors.Wrap(werr, errors.TypeOf(werr), "failed to write event to sink")
		}
		emitted++
		r.metrics.RecordEmitted(inputName)
		return nil
	})
	if err != nil {
		return err
	}

	stats := source.Metrics()
	log.Info("Input completed",
		zap.Int64("records", emitted),
		zap.Any("pages", stats["pages"]),
		zap.Duration("duration", time.Since(start)))
	return nil
}

// finish records the outcome of one input and logs a failure
func (r *Runner) finish(log *zap.Logger, inputName string, err error) {
	r.metrics.RunFinished(inputName, err)
	if err == nil {
		return
	}
	log.Error("Input failed",
		zap.String("error_type", string(errors.TypeOf(err))),
		zap.Error(err))
}
