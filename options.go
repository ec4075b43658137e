package xiio

import "github.com/joeycumines/logiface"

// loopOptions holds configuration options for Loop creation.
type loopOptions struct {
	logger         *logiface.Logger[logiface.Event]
	metricsEnabled bool
}

// LoopOption configures a Loop instance.
type LoopOption interface {
	applyLoop(*loopOptions) error
}

// loopOptionImpl implements LoopOption.
type loopOptionImpl struct {
	applyLoopFunc func(*loopOptions) error
}

func (l *loopOptionImpl) applyLoop(opts *loopOptions) error {
	return l.applyLoopFunc(opts)
}

// WithLogger sets the structured logger used for loop diagnostics. A nil
// logger (the default) disables logging with no overhead beyond nil-safe
// builder calls.
func WithLogger(logger *logiface.Logger[logiface.Event]) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		opts.logger = logger
		return nil
	}}
}

// WithMetrics enables runtime counter collection on the Loop. When enabled,
// counters can be read via Loop.Metrics().
func WithMetrics(enabled bool) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		opts.metricsEnabled = enabled
		return nil
	}}
}

// resolveLoopOptions applies LoopOption instances to loopOptions.
func resolveLoopOptions(opts []LoopOption) (*loopOptions, error) {
	cfg := &loopOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue // Skip nil options gracefully
		}
		if err := opt.applyLoop(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
