package browser_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/zhpublish/pkg/browser"
	"github.com/entrhq/zhpublish/pkg/browser/browsertest"
	"github.com/entrhq/zhpublish/pkg/metrics"
)

// recordingStrategy returns a strategy that appends its name to order when
// tried and then yields h and err.
func recordingStrategy(name string, order *[]string, h browser.Handle, err error) browser.Strategy {
	return browser.Strategy{
		Name: name,
		Produce: func(ctx context.Context, opts browser.LaunchOptions) (browser.Handle, error) {
			*order = append(*order, name)
			return h, err
		},
	}
}

func TestAcquireFallbackOrder(t *testing.T) {
	var order []string
	fake := browsertest.New()

	strategies := []browser.Strategy{
		recordingStrategy("default", &order, nil, errors.New("driver missing")),
		recordingStrategy("service", &order, nil, errors.New("chrome channel missing")),
		recordingStrategy("driver_path", &order, fake, nil),
		recordingStrategy("system_browser", &order, nil, errors.New("must not run")),
	}

	a := browser.NewAcquirer(strategies, nil, nil)
	h, err := a.Acquire(context.Background(), browser.LaunchOptions{Headless: true})

	require.NoError(t, err)
	assert.Same(t, fake, h)
	assert.Equal(t, []string{"default", "service", "driver_path"}, order)
}

func TestAcquireSkippedStrategyIsNotAFailure(t *testing.T) {
	var order []string
	fake := browsertest.New()
	recorder := metrics.NewRecorder()

	strategies := []browser.Strategy{
		recordingStrategy("driver_path", &order, nil, nil),
		recordingStrategy("system_browser", &order, fake, nil),
	}

	h, err := browser.NewAcquirer(strategies, nil, recorder).Acquire(context.Background(), browser.LaunchOptions{})
	require.NoError(t, err)
	assert.Same(t, fake, h)
	assert.Equal(t, []string{"driver_path", "system_browser"}, order)
	count, err := testutil.GatherAndCount(recorder.Gatherer(), "zhpublish_driver_strategy_attempts_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestAcquireExhausted(t *testing.T) {
	tests := []struct {
		name       string
		strategies func(order *[]string) []browser.Strategy
		wantOrder  []string
		wantCauses []string
	}{
		{
			name: "every strategy fails",
			strategies: func(order *[]string) []browser.Strategy {
				return []browser.Strategy{
					recordingStrategy("default", order, nil, errors.New("one")),
					recordingStrategy("service", order, nil, errors.New("two")),
					recordingStrategy("driver_path", order, nil, errors.New("three")),
					recordingStrategy("system_browser", order, nil, errors.New("four")),
					recordingStrategy("install", order, nil, errors.New("five")),
				}
			},
			wantOrder:  []string{"default", "service", "driver_path", "system_browser", "install"},
			wantCauses: []string{"one", "two", "three", "four", "five"},
		},
		{
			name: "failures and skips",
			strategies: func(order *[]string) []browser.Strategy {
				return []browser.Strategy{
					recordingStrategy("default", order, nil, errors.New("boom")),
					recordingStrategy("driver_path", order, nil, nil),
				}
			},
			wantOrder:  []string{"default", "driver_path"},
			wantCauses: []string{"default: boom"},
		},
		{
			name: "no strategies",
			strategies: func(order *[]string) []browser.Strategy {
				return nil
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var order []string
			a := browser.NewAcquirer(tt.strategies(&order), nil, nil)

			h, err := a.Acquire(context.Background(), browser.LaunchOptions{})
			assert.Nil(t, h)
			require.Error(t, err)
			assert.True(t, errors.Is(err, browser.ErrDriverInitialization))
			assert.Equal(t, tt.wantOrder, order)
			for _, cause := range tt.wantCauses {
				assert.Contains(t, err.Error(), cause)
			}
		})
	}
}

func TestAcquireRecoversPanickingStrategy(t *testing.T) {
	fake := browsertest.New()
	strategies := []browser.Strategy{
		{
			Name: "default",
			Produce: func(ctx context.Context, opts browser.LaunchOptions) (browser.Handle, error) {
				panic("driver crashed")
			},
		},
		{
			Name: "install",
			Produce: func(ctx context.Context, opts browser.LaunchOptions) (browser.Handle, error) {
				return fake, nil
			},
		},
	}

	h, err := browser.NewAcquirer(strategies, nil, nil).Acquire(context.Background(), browser.LaunchOptions{})
	require.NoError(t, err)
	assert.Same(t, fake, h)
}

func TestAcquireStopsOnCancelledContext(t *testing.T) {
	var order []string
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	strategies := []browser.Strategy{
		recordingStrategy("default", &order, browsertest.New(), nil),
	}

	h, err := browser.NewAcquirer(strategies, nil, nil).Acquire(ctx, browser.LaunchOptions{})
	assert.Nil(t, h)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, order)
}

func TestSelectStrategies(t *testing.T) {
	all := browser.DefaultStrategies(nil)

	tests := []struct {
		name    string
		names   []string
		want    []string
		wantErr bool
	}{
		{
			name: "empty selects all in default order",
			want: []string{"default", "service", "driver_path", "system_browser", "install"},
		},
		{
			name:  "subset reordered",
			names: []string{"system_browser", "default"},
			want:  []string{"system_browser", "default"},
		},
		{
			name:    "unknown name",
			names:   []string{"selenium"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := browser.SelectStrategies(all, tt.names)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)

			names := make([]string, 0, len(got))
			for _, s := range got {
				names = append(names, s.Name)
			}
			assert.Equal(t, tt.want, names)
		})
	}
}

func TestChromeArgs(t *testing.T) {
	headed := browser.ChromeArgs(false)
	assert.Contains(t, headed, "--disable-extensions")
	assert.Contains(t, headed, "--disable-popup-blocking")
	assert.Contains(t, headed, "--disable-blink-features=AutomationControlled")
	assert.NotContains(t, headed, "--headless=new")

	headless := browser.ChromeArgs(true)
	for _, flag := range []string{
		"--headless=new",
		"--disable-gpu",
		"--window-size=1920,1080",
		"--no-sandbox",
		"--disable-dev-shm-usage",
		"--disable-extensions",
	} {
		assert.Contains(t, headless, flag)
	}
}

func TestPause(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, browser.Pause(ctx, 0), context.Canceled)
	assert.ErrorIs(t, browser.Pause(ctx, time.Hour), context.Canceled)
	assert.NoError(t, browser.Pause(context.Background(), time.Millisecond))
	assert.NoError(t, browser.NoPause(context.Background(), time.Hour))
}
