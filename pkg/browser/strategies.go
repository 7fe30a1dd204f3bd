package browser

import (
	"context"
	"fmt"
	"io"

	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/zhpublish/pkg/logging"
)

// Strategy names, in default order.
const (
	StrategyDefault       = "default"
	StrategyService       = "service"
	StrategyDriverPath    = "driver_path"
	StrategySystemBrowser = "system_browser"
	StrategyInstall       = "install"
)

// chromeChannel selects the locally installed Google Chrome.
const chromeChannel = "chrome"

// launcher starts Playwright and Chromium in the ways the default strategies
// need.
type launcher struct {
	logger *logging.Logger
	probe  *prober

	run     func(...*playwright.RunOptions) (*playwright.Playwright, error)
	install func(...*playwright.RunOptions) error
	launch  func(*playwright.Playwright, playwright.BrowserTypeLaunchOptions) (playwright.Browser, error)
	stop    func(*playwright.Playwright) error
	open    func(*playwright.Playwright, playwright.Browser, LaunchOptions) (Handle, error)
}

func launchChromium(pw *playwright.Playwright, o playwright.BrowserTypeLaunchOptions) (playwright.Browser, error) {
	return pw.Chromium.Launch(o)
}

func stopDriver(pw *playwright.Playwright) error {
	return pw.Stop()
}

func openHandle(pw *playwright.Playwright, b playwright.Browser, opts LaunchOptions) (Handle, error) {
	h, err := newPlaywrightHandle(pw, b, opts)
	if err != nil {
		return nil, err
	}
	return h, nil
}

// DefaultStrategies returns the five built-in acquisition strategies:
// the default driver location, a driver run with browser download skipped
// against installed Chrome, a driver found in a well-known directory, the
// system Chrome binary, and finally an on-demand install.
func DefaultStrategies(logger *logging.Logger) []Strategy {
	if logger == nil {
		logger = logging.Discard()
	}
	l := &launcher{
		logger:  logger,
		probe:   newProber(),
		run:     playwright.Run,
		install: playwright.Install,
		launch:  launchChromium,
		stop:    stopDriver,
		open:    openHandle,
	}

	return []Strategy{
		{Name: StrategyDefault, Produce: l.produceDefault},
		{Name: StrategyService, Produce: l.produceService},
		{Name: StrategyDriverPath, Produce: l.produceDriverPath},
		{Name: StrategySystemBrowser, Produce: l.produceSystemBrowser},
		{Name: StrategyInstall, Produce: l.produceInstall},
	}
}

// quietRunOptions keeps driver output off the terminal, which may be
// showing the verification code prompt.
func quietRunOptions() *playwright.RunOptions {
	return &playwright.RunOptions{
		Verbose: false,
		Stdout:  io.Discard,
		Stderr:  io.Discard,
	}
}

func (l *launcher) produceDefault(ctx context.Context, opts LaunchOptions) (Handle, error) {
	return l.start(ctx, quietRunOptions(), playwright.BrowserTypeLaunchOptions{}, opts)
}

func (l *launcher) produceService(ctx context.Context, opts LaunchOptions) (Handle, error) {
	runOpts := quietRunOptions()
	runOpts.SkipInstallBrowsers = true
	launch := playwright.BrowserTypeLaunchOptions{
		Channel: playwright.String(chromeChannel),
	}
	return l.start(ctx, runOpts, launch, opts)
}

func (l *launcher) produceDriverPath(ctx context.Context, opts LaunchOptions) (Handle, error) {
	dir := l.probe.findDriverDirectory()
	if dir == "" {
		return nil, nil
	}
	l.logger.Debugf("using playwright driver directory %s", dir)

	runOpts := quietRunOptions()
	runOpts.DriverDirectory = dir
	return l.start(ctx, runOpts, playwright.BrowserTypeLaunchOptions{}, opts)
}

func (l *launcher) produceSystemBrowser(ctx context.Context, opts LaunchOptions) (Handle, error) {
	path := l.probe.findChromePath()
	if path == "" {
		return nil, nil
	}
	l.logger.Debugf("using system browser %s", path)

	launch := playwright.BrowserTypeLaunchOptions{
		ExecutablePath: playwright.String(path),
	}
	return l.start(ctx, quietRunOptions(), launch, opts)
}

func (l *launcher) produceInstall(ctx context.Context, opts LaunchOptions) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	runOpts := quietRunOptions()
	runOpts.Browsers = []string{"chromium"}

	l.logger.Infof("installing playwright driver and chromium")
	if err := l.install(runOpts); err != nil {
		return nil, fmt.Errorf("failed to install playwright: %w", err)
	}
	return l.start(ctx, runOpts, playwright.BrowserTypeLaunchOptions{}, opts)
}

// start runs the driver, launches Chromium with the shared flags and opens a
// page. Everything started here is stopped again if a later stage fails.
func (l *launcher) start(ctx context.Context, runOpts *playwright.RunOptions, launch playwright.BrowserTypeLaunchOptions, opts LaunchOptions) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pw, err := l.run(runOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	// Headless mode comes from --headless=new in the args; Playwright's own
	// headless switch would select the old headless shell instead.
	launch.Headless = playwright.Bool(false)
	launch.Args = ChromeArgs(opts.Headless)
	launch.IgnoreDefaultArgs = ignoredDefaultArgs
	launch.Timeout = playwright.Float(float64(opts.timeout().Milliseconds()) * 3)

	b, err := l.launch(pw, launch)
	if err != nil {
		_ = l.stop(pw)
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	h, err := l.open(pw, b, opts)
	if err != nil {
		return nil, err
	}
	return h, nil
}
