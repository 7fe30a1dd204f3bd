// Package auth establishes an authenticated composer session, reusing saved
// cookies when they still work and falling back to verification-code login.
package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gobwas/glob"

	"github.com/entrhq/zhpublish/pkg/browser"
	"github.com/entrhq/zhpublish/pkg/config"
	"github.com/entrhq/zhpublish/pkg/logging"
	"github.com/entrhq/zhpublish/pkg/metrics"
	"github.com/entrhq/zhpublish/pkg/session"
)

// ErrAuthentication is returned when neither the saved session nor the
// interactive login produced an authenticated page.
var ErrAuthentication = errors.New("authentication failed")

// Sign-in form selectors.
const (
	CodeInputSelector   = "input[placeholder='输入 6 位短信验证码']"
	LoginButtonSelector = "xpath=/html/body/div[1]/div/main/div/div/div/div/div[2]/div/div[1]/div/div[1]/form/button"
)

// State is a step of the login state machine.
type State string

const (
	StateNoSession        State = "no_session"
	StateSessionLoaded    State = "session_loaded"
	StateValidating       State = "validating"
	StateAuthenticated    State = "authenticated"
	StateInvalid          State = "invalid"
	StateInteractiveLogin State = "interactive_login"
	StateFailed           State = "failed"
)

// Options are the URLs and timings a Controller works with.
type Options struct {
	ComposerURL    string
	SignInURL      string
	SignInPatterns []string

	ElementTimeout time.Duration
	SessionSettle  time.Duration
	AfterSave      time.Duration
	LoginSettle    time.Duration
}

// OptionsFromConfig extracts controller options from cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		ComposerURL:    cfg.Site.ComposerURL,
		SignInURL:      cfg.Site.SignInURL,
		SignInPatterns: cfg.Site.SignInPatterns,
		ElementTimeout: cfg.Browser.ElementTimeout,
		SessionSettle:  cfg.Publish.Delays.SessionSettle,
		AfterSave:      cfg.Publish.Delays.AfterSave,
		LoginSettle:    cfg.Publish.Delays.LoginSettle,
	}
}

// Controller drives one handle through the login state machine.
type Controller struct {
	handle   browser.Handle
	store    *session.Store
	prompter CodePrompter
	opts     Options
	patterns []glob.Glob

	logger  *logging.Logger
	metrics *metrics.Recorder
	sleep   browser.Sleeper

	mu    sync.Mutex
	trace []State
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the controller's logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithMetrics sets the recorder login outcomes are counted in.
func WithMetrics(r *metrics.Recorder) Option {
	return func(c *Controller) { c.metrics = r }
}

// WithSleeper replaces the fixed settle pauses, mainly for tests.
func WithSleeper(s browser.Sleeper) Option {
	return func(c *Controller) { c.sleep = s }
}

// NewController creates a controller. It fails only if a sign-in pattern
// does not compile.
func NewController(h browser.Handle, store *session.Store, prompter CodePrompter, opts Options, options ...Option) (*Controller, error) {
	patterns := make([]glob.Glob, 0, len(opts.SignInPatterns))
	for _, p := range opts.SignInPatterns {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid sign-in pattern %q: %w", p, err)
		}
		patterns = append(patterns, g)
	}
	if opts.ElementTimeout <= 0 {
		opts.ElementTimeout = browser.DefaultTimeout
	}

	c := &Controller{
		handle:   h,
		store:    store,
		prompter: prompter,
		opts:     opts,
		patterns: patterns,
		logger:   logging.Discard(),
		sleep:    browser.Pause,
	}
	for _, o := range options {
		o(c)
	}
	return c, nil
}

// Trace returns the states visited by the last Login call, in order.
func (c *Controller) Trace() []State {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]State, len(c.trace))
	copy(out, c.trace)
	return out
}

// State returns the current state, or StateNoSession before Login runs.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.trace) == 0 {
		return StateNoSession
	}
	return c.trace[len(c.trace)-1]
}

func (c *Controller) enter(s State) {
	c.mu.Lock()
	c.trace = append(c.trace, s)
	c.mu.Unlock()
	c.logger.Debugf("login state -> %s", s)
}

// IsSignInURL reports whether u is the sign-in page, meaning the composer
// redirected an unauthenticated visit.
func (c *Controller) IsSignInURL(u string) bool {
	if u == c.opts.SignInURL {
		return true
	}
	for _, g := range c.patterns {
		if g.Match(u) {
			return true
		}
	}
	return false
}

// Login leaves the handle on an authenticated composer session and persists
// its cookies. Any failure is wrapped in ErrAuthentication.
func (c *Controller) Login(ctx context.Context) error {
	c.mu.Lock()
	c.trace = nil
	c.mu.Unlock()

	c.enter(StateNoSession)
	path, err := c.login(ctx)
	if err != nil {
		c.enter(StateFailed)
		c.metrics.Login(path, false)
		c.logger.Errorf("login failed: %v", err)
		return fmt.Errorf("%w: %w", ErrAuthentication, err)
	}

	c.enter(StateAuthenticated)
	c.metrics.Login(path, true)
	c.logger.Infof("authenticated via %s", path)
	return nil
}

// login returns which path was taken ("session" or "interactive") so the
// outcome can be attributed.
func (c *Controller) login(ctx context.Context) (string, error) {
	if err := c.handle.Navigate(c.opts.ComposerURL); err != nil {
		return "session", fmt.Errorf("open composer: %w", err)
	}

	if bundle, ok := c.store.Load(); ok {
		n := c.store.Apply(ctx, c.handle, bundle)
		c.logger.Infof("applied %d of %d saved session tokens", n, len(bundle))
		c.enter(StateSessionLoaded)
	}

	c.enter(StateValidating)
	if err := c.handle.Reload(); err != nil {
		return "session", fmt.Errorf("reload composer: %w", err)
	}
	if err := c.sleep(ctx, c.opts.SessionSettle); err != nil {
		return "session", err
	}

	current := c.handle.URL()
	if !c.IsSignInURL(current) {
		c.logger.Infof("saved session accepted at %s", current)
		if err := c.persist(); err != nil {
			return "session", err
		}
		return "session", c.sleep(ctx, c.opts.AfterSave)
	}

	c.enter(StateInvalid)
	c.logger.Infof("saved session rejected, clearing cookies")
	if err := c.handle.ClearCookies(); err != nil {
		return "interactive", fmt.Errorf("clear cookies: %w", err)
	}

	c.enter(StateInteractiveLogin)
	return "interactive", c.interactive(ctx)
}

func (c *Controller) interactive(ctx context.Context) error {
	if c.prompter == nil {
		return errors.New("interactive login needed but no code prompter is available")
	}

	if err := c.handle.Navigate(c.opts.SignInURL); err != nil {
		return fmt.Errorf("open sign-in page: %w", err)
	}

	code, err := c.prompter.PromptCode(ctx)
	if err != nil {
		return fmt.Errorf("read verification code: %w", err)
	}

	timeout := c.opts.ElementTimeout
	if err := c.handle.WaitFor(CodeInputSelector, browser.StateAttached, timeout); err != nil {
		return err
	}
	if err := c.handle.Clear(CodeInputSelector); err != nil {
		return err
	}
	if err := c.handle.Type(CodeInputSelector, code); err != nil {
		return err
	}

	if err := c.handle.WaitFor(LoginButtonSelector, browser.StateVisible, timeout); err != nil {
		return err
	}
	if err := c.handle.Click(LoginButtonSelector); err != nil {
		return err
	}

	if err := c.sleep(ctx, c.opts.LoginSettle); err != nil {
		return err
	}
	return c.persist()
}

func (c *Controller) persist() error {
	if err := c.store.Capture(c.handle); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}
	return nil
}
