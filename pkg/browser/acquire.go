package browser

import (
	"context"
	"errors"
	"fmt"

	"github.com/entrhq/zhpublish/pkg/logging"
	"github.com/entrhq/zhpublish/pkg/metrics"
)

// Strategy is one way of producing a Handle. Produce returns (nil, nil) when
// the strategy does not apply on this machine, e.g. no driver directory was
// found; that counts as skipped rather than failed.
type Strategy struct {
	Name    string
	Produce func(ctx context.Context, opts LaunchOptions) (Handle, error)
}

// Acquirer tries its strategies in order and returns the first handle
// produced.
type Acquirer struct {
	strategies []Strategy
	logger     *logging.Logger
	metrics    *metrics.Recorder
}

// NewAcquirer creates an acquirer over strategies. logger and recorder may
// be nil.
func NewAcquirer(strategies []Strategy, logger *logging.Logger, recorder *metrics.Recorder) *Acquirer {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Acquirer{
		strategies: strategies,
		logger:     logger,
		metrics:    recorder,
	}
}

// Acquire returns a live handle from the first strategy that succeeds.
// Failures of individual strategies are logged and do not stop the search.
// When every strategy fails or is skipped, the returned error wraps
// ErrDriverInitialization together with each strategy's error.
func (a *Acquirer) Acquire(ctx context.Context, opts LaunchOptions) (Handle, error) {
	var errs []error

	for _, s := range a.strategies {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		a.logger.Debugf("trying driver strategy %q (headless=%v)", s.Name, opts.Headless)
		h, err := a.produce(ctx, s, opts)
		switch {
		case err != nil:
			a.logger.Warnf("driver strategy %q failed: %v", s.Name, err)
			a.metrics.StrategyAttempt(s.Name, "failure")
			errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
		case h == nil:
			a.logger.Debugf("driver strategy %q skipped", s.Name)
			a.metrics.StrategyAttempt(s.Name, "skipped")
		default:
			a.logger.Infof("browser driver ready via %q strategy", s.Name)
			a.metrics.StrategyAttempt(s.Name, "success")
			return h, nil
		}
	}

	a.logger.Errorf("all %d driver strategies exhausted", len(a.strategies))
	if len(errs) == 0 {
		return nil, ErrDriverInitialization
	}
	return nil, fmt.Errorf("%w: %w", ErrDriverInitialization, errors.Join(errs...))
}

// produce runs one strategy and reports a panic inside it as a failure.
func (a *Acquirer) produce(ctx context.Context, s Strategy, opts LaunchOptions) (h Handle, err error) {
	defer func() {
		if r := recover(); r != nil {
			h, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()
	return s.Produce(ctx, opts)
}

// SelectStrategies returns the strategies named in names, in that order.
// An empty names returns all unchanged.
func SelectStrategies(all []Strategy, names []string) ([]Strategy, error) {
	if len(names) == 0 {
		return all, nil
	}

	byName := make(map[string]Strategy, len(all))
	for _, s := range all {
		byName[s.Name] = s
	}

	selected := make([]Strategy, 0, len(names))
	for _, name := range names {
		s, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("unknown driver strategy %q", name)
		}
		selected = append(selected, s)
	}
	return selected, nil
}
