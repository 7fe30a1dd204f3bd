// Package publish fills in and submits the article composer.
//
// The workflow runs five steps in a fixed order: cover image, title, body,
// topic and submit. Each step is guarded on its own. A failing step is
// logged and recorded, and the workflow moves on to the next one. Whether
// a run with failed steps counts as a success depends on the mode:
// lenient reports success whenever the run reaches the end, strict only
// when no step failed.
package publish

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/entrhq/zhpublish/pkg/browser"
	"github.com/entrhq/zhpublish/pkg/config"
	"github.com/entrhq/zhpublish/pkg/logging"
	"github.com/entrhq/zhpublish/pkg/metrics"
)

// Workflow drives the composer on one handle.
type Workflow struct {
	handle browser.Handle
	opts   Options

	logger  *logging.Logger
	metrics *metrics.Recorder
	sleep   browser.Sleeper
}

// Option configures a Workflow.
type Option func(*Workflow)

// WithLogger sets the workflow's logger.
func WithLogger(l *logging.Logger) Option {
	return func(w *Workflow) { w.logger = l }
}

// WithMetrics sets the recorder step outcomes are counted in.
func WithMetrics(r *metrics.Recorder) Option {
	return func(w *Workflow) { w.metrics = r }
}

// WithSleeper replaces the pauses between steps and polls.
func WithSleeper(s browser.Sleeper) Option {
	return func(w *Workflow) { w.sleep = s }
}

// NewWorkflow creates a workflow for h.
func NewWorkflow(h browser.Handle, opts Options, options ...Option) *Workflow {
	if opts.Mode == "" {
		opts.Mode = config.ModeLenient
	}
	if opts.ElementTimeout <= 0 {
		opts.ElementTimeout = browser.DefaultTimeout
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}

	w := &Workflow{
		handle: h,
		opts:   opts,
		logger: logging.Discard(),
		sleep:  browser.Pause,
	}
	for _, o := range options {
		o(w)
	}
	return w
}

// ClampTitle cuts title to at most max characters.
func ClampTitle(title string, max int) string {
	if max < 0 {
		return ""
	}
	runes := []rune(title)
	if len(runes) <= max {
		return title
	}
	return string(runes[:max])
}

// topicQuery is what gets typed into the topic search.
func topicQuery(d Draft) string {
	if t := strings.TrimSpace(d.Topic); t != "" {
		return t
	}
	return ClampTitle(ClampTitle(d.Title, MaxTitleLength), topicFallbackLength)
}

// run holds the state of one Publish call.
type run struct {
	w        *Workflow
	ctx      context.Context
	draft    Draft
	result   Result
	warnings []string
}

func (r *run) warn(format string, v ...interface{}) {
	msg := fmt.Sprintf(format, v...)
	r.w.logger.Warnf("%s", msg)
	r.warnings = append(r.warnings, msg)
}

type stepFunc func(r *run) (StepStatus, error)

// Publish runs every step against d and reports what happened.
func (w *Workflow) Publish(ctx context.Context, d Draft) Result {
	r := &run{w: w, ctx: ctx, draft: d}

	steps := []struct {
		name string
		fn   stepFunc
	}{
		{StepUploadImage, (*run).uploadImage},
		{StepTitle, (*run).title},
		{StepBody, (*run).body},
		{StepTopic, (*run).topic},
		{StepSubmit, (*run).submit},
	}

	for _, s := range steps {
		if err := ctx.Err(); err != nil {
			return r.finish(err)
		}
		r.result.Steps = append(r.result.Steps, r.guard(s.name, s.fn))
	}

	// The site needs time to acknowledge the submission, whether or not
	// the click went through.
	if err := w.sleep(ctx, w.opts.Delays.Submit); err != nil {
		return r.finish(err)
	}
	return r.finish(nil)
}

// guard runs one step, converting an error or panic into a failed outcome.
func (r *run) guard(name string, fn stepFunc) (out StepOutcome) {
	start := time.Now()
	out.Name = name

	defer func() {
		if p := recover(); p != nil {
			out.Status = StatusFailed
			out.Err = fmt.Errorf("%w: %s: panic: %v", ErrStep, name, p)
		}
		out.Duration = time.Since(start)
		if out.Err != nil {
			out.Error = out.Err.Error()
			r.w.logger.Errorf("step %s failed: %v", name, out.Err)
		} else {
			r.w.logger.Debugf("step %s %s in %s", name, out.Status, out.Duration)
		}
		r.w.metrics.Step(name, string(out.Status))
	}()

	status, err := fn(r)
	if err != nil {
		out.Status = StatusFailed
		out.Err = fmt.Errorf("%w: %s: %w", ErrStep, name, err)
		return out
	}
	out.Status = status
	return out
}

func (r *run) finish(abort error) Result {
	res := r.result
	res.Warnings = r.warnings

	switch {
	case abort != nil:
		res.Success = false
		res.Error = abort.Error()
	case r.w.opts.Mode == config.ModeStrict && len(res.Failed()) > 0:
		errs := make([]error, 0, len(res.Failed()))
		for _, s := range res.Failed() {
			errs = append(errs, s.Err)
		}
		res.Success = false
		res.Error = errors.Join(errs...).Error()
	default:
		res.Success = true
	}

	r.w.metrics.Publish(res.Success)
	if res.Success {
		r.w.logger.Infof("publish finished (%d failed steps, %d warnings)", len(res.Failed()), len(res.Warnings))
	} else {
		r.w.logger.Errorf("publish failed: %s", res.Error)
	}
	return res
}

// poll checks cond every PollInterval until it holds or budget runs out.
func (r *run) poll(budget time.Duration, cond func() (bool, error)) (bool, error) {
	interval := r.w.opts.PollInterval
	attempts := int(budget/interval) + 1

	for i := 0; i < attempts; i++ {
		ok, err := cond()
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
		if i < attempts-1 {
			if err := r.w.sleep(r.ctx, interval); err != nil {
				return false, err
			}
		}
	}
	return false, nil
}

func (r *run) uploadImage() (StepStatus, error) {
	w := r.w
	if r.draft.Image == "" {
		return StatusSkipped, nil
	}

	path, err := filepath.Abs(r.draft.Image)
	if err != nil {
		return StatusFailed, err
	}
	if info, err := os.Stat(path); err != nil || info.IsDir() {
		r.warn("cover image %s is not a readable file, skipping upload", r.draft.Image)
		return StatusSkipped, nil
	}

	h := w.handle
	if err := h.Reveal(UploadInputSelector); err != nil {
		return StatusFailed, err
	}
	if err := h.SetInputFile(UploadInputSelector, path); err != nil {
		return StatusFailed, err
	}
	w.logger.Infof("uploading cover image %s", path)

	// Upload processing has no reliable marker until it is done.
	if err := w.sleep(r.ctx, w.opts.Delays.Upload); err != nil {
		return StatusFailed, err
	}

	if n, err := h.Count(UploadDoneSelector); err != nil || n == 0 {
		r.warn("cover image upload not confirmed by the page")
	}
	return StatusOK, nil
}

func (r *run) title() (StepStatus, error) {
	w := r.w
	title := ClampTitle(r.draft.Title, MaxTitleLength)
	if title != r.draft.Title {
		w.logger.Infof("title clamped to %d characters", MaxTitleLength)
	}

	h := w.handle
	if err := h.WaitFor(TitleSelector, browser.StateAttached, w.opts.ElementTimeout); err != nil {
		return StatusFailed, err
	}
	if err := h.Clear(TitleSelector); err != nil {
		return StatusFailed, err
	}
	if err := h.Type(TitleSelector, title); err != nil {
		return StatusFailed, err
	}
	w.logger.Infof("title entered: %s", title)

	if err := w.sleep(r.ctx, w.opts.Delays.Title); err != nil {
		return StatusFailed, err
	}
	return StatusOK, nil
}

func (r *run) body() (StepStatus, error) {
	w := r.w
	h := w.handle

	if err := h.WaitFor(BodySelector, browser.StateAttached, w.opts.ElementTimeout); err != nil {
		return StatusFailed, err
	}
	if err := h.Click(BodySelector); err != nil {
		return StatusFailed, err
	}
	if err := w.sleep(r.ctx, w.opts.Delays.EditorFocus); err != nil {
		return StatusFailed, err
	}
	if err := h.Type(BodySelector, r.draft.Body); err != nil {
		return StatusFailed, err
	}
	w.logger.Debugf("body entered (%d characters)", len([]rune(r.draft.Body)))

	if err := w.sleep(r.ctx, w.opts.Delays.Body); err != nil {
		return StatusFailed, err
	}
	return StatusOK, nil
}

func (r *run) topic() (StepStatus, error) {
	w := r.w
	h := w.handle

	// The add-topic button is often covered by the editor toolbar.
	if err := h.ScriptClick(TopicButtonSelector); err != nil {
		return StatusFailed, err
	}
	if err := w.sleep(r.ctx, w.opts.Delays.TopicOpen); err != nil {
		return StatusFailed, err
	}

	query := topicQuery(r.draft)
	if err := h.WaitFor(TopicSearchSelector, browser.StateAttached, w.opts.ElementTimeout); err != nil {
		return StatusFailed, err
	}
	if err := h.Clear(TopicSearchSelector); err != nil {
		return StatusFailed, err
	}
	if err := h.Type(TopicSearchSelector, query); err != nil {
		return StatusFailed, err
	}
	w.logger.Infof("searching topic %q", query)

	found, err := r.poll(w.opts.Delays.Suggestions, func() (bool, error) {
		n, err := h.Count(TopicSuggestionsSelector)
		return n > 0, err
	})
	if err != nil {
		return StatusFailed, err
	}
	if !found {
		r.warn("no topic suggestions for %q, publishing without a topic", query)
		return StatusSkipped, nil
	}

	if err := h.ClickNth(TopicSuggestionsSelector, 0); err != nil {
		return StatusFailed, err
	}
	if err := w.sleep(r.ctx, w.opts.Delays.TopicOpen); err != nil {
		return StatusFailed, err
	}
	return StatusOK, nil
}

func (r *run) submit() (StepStatus, error) {
	w := r.w
	h := w.handle

	enabled, err := r.poll(w.opts.ElementTimeout, func() (bool, error) {
		disabled, err := h.HasAttribute(SubmitSelector, "disabled")
		return !disabled, err
	})
	if err != nil {
		return StatusFailed, err
	}
	if !enabled {
		return StatusFailed, fmt.Errorf("%w: %s still disabled after %s", browser.ErrElementNotFound, SubmitSelector, w.opts.ElementTimeout)
	}

	if err := h.Click(SubmitSelector); err != nil {
		return StatusFailed, err
	}
	w.logger.Infof("publish button clicked")
	return StatusOK, nil
}
