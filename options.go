package parklot

import (
	"runtime"

	"github.com/joeycumines/logiface"
)

// poolOptions holds configuration options for Pool creation.
type poolOptions struct {
	maxWorkers     uint32
	logger         *logiface.Logger[logiface.Event]
	metricsEnabled bool
}

// --- Pool Options ---

// Option configures a Pool instance.
type Option interface {
	applyPool(*poolOptions) error
}

// optionImpl implements Option.
type optionImpl struct {
	applyPoolFunc func(*poolOptions) error
}

func (o *optionImpl) applyPool(opts *poolOptions) error {
	return o.applyPoolFunc(opts)
}

// WithMaxWorkers sets the ceiling on concurrently live workers.
// Values below 1 are clamped to 1. The default is runtime.GOMAXPROCS(0),
// which tracks container CPU quotas when the embedding program imports
// go.uber.org/automaxprocs.
func WithMaxWorkers(n int) Option {
	return &optionImpl{func(opts *poolOptions) error {
		if n > syncCountMask {
			return ErrTooManyWorkers
		}
		if n < 1 {
			n = 1
		}
		opts.maxWorkers = uint32(n)
		return nil
	}}
}

// WithLogger sets the structured logger used for worker lifecycle and
// shutdown diagnostics. A nil logger (the default) disables logging; the
// logiface chain is nil-safe.
func WithLogger(logger *logiface.Logger[logiface.Event]) Option {
	return &optionImpl{func(opts *poolOptions) error {
		opts.logger = logger
		return nil
	}}
}

// WithMetrics enables runtime metrics collection on the Pool.
// When enabled, statistics can be accessed via Pool.Metrics. This adds a
// clock read and a P-Square observation per task; disable for
// zero-overhead hot paths.
func WithMetrics(enabled bool) Option {
	return &optionImpl{func(opts *poolOptions) error {
		opts.metricsEnabled = enabled
		return nil
	}}
}

// resolveOptions applies Option instances to poolOptions.
func resolveOptions(opts []Option) (*poolOptions, error) {
	cfg := &poolOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue // Skip nil options gracefully
		}
		if err := opt.applyPool(cfg); err != nil {
			return nil, err
		}
	}
	if cfg.maxWorkers == 0 {
		n := runtime.GOMAXPROCS(0)
		if n < 1 {
			n = 1
		}
		if n > syncCountMask {
			n = syncCountMask
		}
		cfg.maxWorkers = uint32(n)
	}
	return cfg, nil
}
