package browser

import (
	"context"
	"errors"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/playwright-community/playwright-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/zhpublish/pkg/logging"
)

type stubHandle struct{ Handle }

// fakeDriver stands in for the playwright entry points and records how the
// launcher used them.
type fakeDriver struct {
	calls      []string
	runOpts    *playwright.RunOptions
	launchOpts playwright.BrowserTypeLaunchOptions

	installErr error
	runErr     error
	launchErr  error
}

func (f *fakeDriver) launcher(p *prober) *launcher {
	return &launcher{
		logger: logging.Discard(),
		probe:  p,
		run: func(opts ...*playwright.RunOptions) (*playwright.Playwright, error) {
			f.calls = append(f.calls, "run")
			if len(opts) > 0 {
				f.runOpts = opts[0]
			}
			if f.runErr != nil {
				return nil, f.runErr
			}
			return &playwright.Playwright{}, nil
		},
		install: func(opts ...*playwright.RunOptions) error {
			f.calls = append(f.calls, "install")
			return f.installErr
		},
		launch: func(pw *playwright.Playwright, o playwright.BrowserTypeLaunchOptions) (playwright.Browser, error) {
			f.calls = append(f.calls, "launch")
			f.launchOpts = o
			return nil, f.launchErr
		},
		stop: func(pw *playwright.Playwright) error {
			f.calls = append(f.calls, "stop")
			return nil
		},
		open: func(pw *playwright.Playwright, b playwright.Browser, opts LaunchOptions) (Handle, error) {
			f.calls = append(f.calls, "open")
			return &stubHandle{}, nil
		},
	}
}

func TestProbingStrategiesSkipWhenNothingFound(t *testing.T) {
	p, _, _, _ := testProber(t, "linux")
	f := &fakeDriver{}
	l := f.launcher(p)

	h, err := l.produceDriverPath(context.Background(), LaunchOptions{})
	assert.NoError(t, err)
	assert.Nil(t, h)

	h, err = l.produceSystemBrowser(context.Background(), LaunchOptions{})
	assert.NoError(t, err)
	assert.Nil(t, h)

	assert.Empty(t, f.calls, "nothing may be started when the probe finds nothing")
}

func TestProduceDefault(t *testing.T) {
	p, _, _, _ := testProber(t, "linux")
	f := &fakeDriver{}

	h, err := f.launcher(p).produceDefault(context.Background(), LaunchOptions{})
	require.NoError(t, err)
	assert.NotNil(t, h)
	assert.Equal(t, []string{"run", "launch", "open"}, f.calls)
	assert.False(t, f.runOpts.SkipInstallBrowsers)
	assert.Nil(t, f.launchOpts.Channel)
}

func TestProduceServiceUsesInstalledChrome(t *testing.T) {
	p, _, _, _ := testProber(t, "linux")
	f := &fakeDriver{}

	_, err := f.launcher(p).produceService(context.Background(), LaunchOptions{})
	require.NoError(t, err)

	require.NotNil(t, f.runOpts)
	assert.True(t, f.runOpts.SkipInstallBrowsers)
	require.NotNil(t, f.launchOpts.Channel)
	assert.Equal(t, "chrome", *f.launchOpts.Channel)
}

func TestProduceDriverPathUsesProbedDirectory(t *testing.T) {
	p, _, _, home := testProber(t, "linux")
	mkdirAll(t, home, driverDirName, "package")
	f := &fakeDriver{}

	h, err := f.launcher(p).produceDriverPath(context.Background(), LaunchOptions{})
	require.NoError(t, err)
	assert.NotNil(t, h)
	assert.Equal(t, filepath.Join(home, driverDirName), f.runOpts.DriverDirectory)
}

func TestProduceSystemBrowserUsesProbedBinary(t *testing.T) {
	p, _, _, _ := testProber(t, "linux")
	p.lookPath = func(name string) (string, error) {
		if name == "chromium" {
			return "/usr/bin/chromium", nil
		}
		return "", exec.ErrNotFound
	}
	f := &fakeDriver{}

	h, err := f.launcher(p).produceSystemBrowser(context.Background(), LaunchOptions{})
	require.NoError(t, err)
	assert.NotNil(t, h)
	require.NotNil(t, f.launchOpts.ExecutablePath)
	assert.Equal(t, "/usr/bin/chromium", *f.launchOpts.ExecutablePath)
}

func TestProduceInstall(t *testing.T) {
	t.Run("installs before running", func(t *testing.T) {
		p, _, _, _ := testProber(t, "linux")
		f := &fakeDriver{}

		h, err := f.launcher(p).produceInstall(context.Background(), LaunchOptions{})
		require.NoError(t, err)
		assert.NotNil(t, h)
		assert.Equal(t, []string{"install", "run", "launch", "open"}, f.calls)
		assert.Equal(t, []string{"chromium"}, f.runOpts.Browsers)
	})

	t.Run("install error is wrapped", func(t *testing.T) {
		p, _, _, _ := testProber(t, "linux")
		offline := errors.New("download failed")
		f := &fakeDriver{installErr: offline}

		h, err := f.launcher(p).produceInstall(context.Background(), LaunchOptions{})
		assert.Nil(t, h)
		assert.ErrorIs(t, err, offline)
		assert.Contains(t, err.Error(), "failed to install playwright")
		assert.Equal(t, []string{"install"}, f.calls)
	})
}

func TestStartStopsDriverWhenLaunchFails(t *testing.T) {
	p, _, _, _ := testProber(t, "linux")
	noBrowser := errors.New("executable doesn't exist")
	f := &fakeDriver{launchErr: noBrowser}

	h, err := f.launcher(p).produceDefault(context.Background(), LaunchOptions{})
	assert.Nil(t, h)
	assert.ErrorIs(t, err, noBrowser)
	assert.Equal(t, []string{"run", "launch", "stop"}, f.calls)
}

func TestStartRunError(t *testing.T) {
	p, _, _, _ := testProber(t, "linux")
	f := &fakeDriver{runErr: errors.New("driver missing")}

	_, err := f.launcher(p).produceDefault(context.Background(), LaunchOptions{})
	assert.ErrorContains(t, err, "failed to start playwright")
	assert.Equal(t, []string{"run"}, f.calls)
}

func TestStartLaunchOptions(t *testing.T) {
	p, _, _, _ := testProber(t, "linux")
	f := &fakeDriver{}

	_, err := f.launcher(p).produceDefault(context.Background(), LaunchOptions{Headless: true})
	require.NoError(t, err)

	require.NotNil(t, f.launchOpts.Headless)
	assert.False(t, *f.launchOpts.Headless)
	assert.Equal(t, ChromeArgs(true), f.launchOpts.Args)
	assert.Equal(t, ignoredDefaultArgs, f.launchOpts.IgnoreDefaultArgs)
	require.NotNil(t, f.launchOpts.Timeout)
	assert.Equal(t, float64(3*DefaultTimeout.Milliseconds()), *f.launchOpts.Timeout)
}

func TestStartHonoursCancelledContext(t *testing.T) {
	p, _, _, _ := testProber(t, "linux")
	f := &fakeDriver{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.launcher(p).produceDefault(ctx, LaunchOptions{})
	assert.ErrorIs(t, err, context.Canceled)

	_, err = f.launcher(p).produceInstall(ctx, LaunchOptions{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, f.calls)
}
