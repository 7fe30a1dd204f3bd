// Package poster owns the browser for one operation: it acquires a handle,
// authenticates, publishes and always releases the handle afterwards.
package poster

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/entrhq/zhpublish/pkg/auth"
	"github.com/entrhq/zhpublish/pkg/browser"
	"github.com/entrhq/zhpublish/pkg/config"
	"github.com/entrhq/zhpublish/pkg/logging"
	"github.com/entrhq/zhpublish/pkg/metrics"
	"github.com/entrhq/zhpublish/pkg/publish"
	"github.com/entrhq/zhpublish/pkg/session"
)

// ErrValidation is returned for requests rejected before any browser work.
var ErrValidation = errors.New("invalid request")

// Request is one article to publish.
type Request struct {
	Title   string
	Content string
	// Images are local cover image paths; only the first is uploaded.
	Images []string
	Topic  string
}

// Response is the outcome of Publish. Err is set when publishing could not
// run at all; otherwise Result describes the run.
type Response struct {
	Result publish.Result
	Err    error
}

// OK reports whether the article was published.
func (r Response) OK() bool {
	return r.Err == nil && r.Result.Success
}

// Text renders the response as "success" or "error: <message>".
func (r Response) Text() string {
	switch {
	case r.Err != nil:
		return "error: " + r.Err.Error()
	case !r.Result.Success:
		return "error: " + r.Result.Error
	default:
		return "success"
	}
}

// Poster runs login and publish operations, each on its own browser.
type Poster struct {
	cfg      *config.Config
	acquirer *browser.Acquirer
	store    *session.Store
	prompter auth.CodePrompter

	logger  *logging.Logger
	metrics *metrics.Recorder
	sleep   browser.Sleeper
}

// Option configures a Poster.
type Option func(*Poster)

// WithLogger sets the logger handed to every component.
func WithLogger(l *logging.Logger) Option {
	return func(p *Poster) { p.logger = l }
}

// WithMetrics sets the recorder handed to every component.
func WithMetrics(r *metrics.Recorder) Option {
	return func(p *Poster) { p.metrics = r }
}

// WithSleeper replaces every fixed pause, mainly for tests.
func WithSleeper(s browser.Sleeper) Option {
	return func(p *Poster) { p.sleep = s }
}

// New creates a poster. prompter may be nil when interactive login is not
// possible, in which case an expired session fails authentication.
func New(cfg *config.Config, acquirer *browser.Acquirer, store *session.Store, prompter auth.CodePrompter, opts ...Option) *Poster {
	p := &Poster{
		cfg:      cfg,
		acquirer: acquirer,
		store:    store,
		prompter: prompter,
		logger:   logging.Discard(),
		sleep:    browser.Pause,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// ValidateImages checks that every path names an existing file.
func ValidateImages(paths []string) error {
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("%w: image path does not exist - %s", ErrValidation, path)
		}
		if info.IsDir() {
			return fmt.Errorf("%w: image path is a directory - %s", ErrValidation, path)
		}
	}
	return nil
}

func (p *Poster) launchOptions() browser.LaunchOptions {
	return browser.LaunchOptions{
		Headless:       p.cfg.Browser.Headless,
		DefaultTimeout: p.cfg.Browser.ElementTimeout,
	}
}

// withHandle acquires a handle, runs fn with it and closes it exactly once.
func (p *Poster) withHandle(ctx context.Context, fn func(h browser.Handle) error) error {
	h, err := p.acquirer.Acquire(ctx, p.launchOptions())
	if err != nil {
		return err
	}
	defer func() {
		if err := h.Close(); err != nil {
			p.logger.Warnf("failed to close browser: %v", err)
		} else {
			p.logger.Debugf("browser closed")
		}
	}()
	return fn(h)
}

func (p *Poster) login(ctx context.Context, h browser.Handle) error {
	c, err := auth.NewController(h, p.store, p.prompter, auth.OptionsFromConfig(p.cfg),
		auth.WithLogger(p.logger.Named("auth")),
		auth.WithMetrics(p.metrics),
		auth.WithSleeper(p.sleep),
	)
	if err != nil {
		return err
	}
	if err := c.Login(ctx); err != nil {
		p.logger.Debugf("login trace: %v", c.Trace())
		return err
	}
	return nil
}

// Login establishes a session and saves its cookies, then releases the
// browser.
func (p *Poster) Login(ctx context.Context) error {
	p.logger.Infof("logging in")
	return p.withHandle(ctx, func(h browser.Handle) error {
		return p.login(ctx, h)
	})
}

// Publish validates req, then logs in and runs the publish workflow.
func (p *Poster) Publish(ctx context.Context, req Request) Response {
	p.logger.Infof("publishing article: title=%s", req.Title)

	if err := validateRequest(req); err != nil {
		p.logger.Errorf("%v", err)
		return Response{Err: err}
	}

	draft := publish.Draft{
		Title: req.Title,
		Body:  req.Content,
		Topic: req.Topic,
	}
	if len(req.Images) > 0 {
		draft.Image = req.Images[0]
	}

	var result publish.Result
	err := p.withHandle(ctx, func(h browser.Handle) error {
		if err := p.login(ctx, h); err != nil {
			return fmt.Errorf("login failed, run the login command first: %w", err)
		}

		w := publish.NewWorkflow(h, publish.OptionsFromConfig(p.cfg),
			publish.WithLogger(p.logger.Named("publish")),
			publish.WithMetrics(p.metrics),
			publish.WithSleeper(p.sleep),
		)
		result = w.Publish(ctx, draft)
		return nil
	})
	if err != nil {
		p.logger.Errorf("publish failed: %v", err)
		return Response{Err: err}
	}
	return Response{Result: result}
}

func validateRequest(req Request) error {
	if strings.TrimSpace(req.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrValidation)
	}
	if strings.TrimSpace(req.Content) == "" {
		return fmt.Errorf("%w: content is required", ErrValidation)
	}
	return ValidateImages(req.Images)
}
