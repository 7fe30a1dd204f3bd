package publish

import (
	"errors"
	"time"

	"github.com/entrhq/zhpublish/pkg/config"
)

// ErrStep marks the failure of a single workflow step. Step failures never
// abort the workflow; they are recorded in Result.Steps.
var ErrStep = errors.New("publish step failed")

// MaxTitleLength is the composer's title limit in characters.
const MaxTitleLength = 100

// topicFallbackLength is how many title characters are searched when no
// topic is given.
const topicFallbackLength = 4

// Composer selectors.
const (
	UploadInputSelector      = "input[type='file'][accept='.jpeg, .jpg, .png']"
	UploadDoneSelector       = ".css-uas1lu"
	TitleSelector            = "textarea.Input[placeholder='请输入标题（最多 100 个字）']"
	BodySelector             = ".public-DraftEditor-content"
	TopicButtonSelector      = "button.css-1gtqxw0"
	TopicSearchSelector      = "input.Input[placeholder='搜索话题...']"
	TopicSuggestionsSelector = "button.css-gfrh4c"
	SubmitSelector           = "button.Button--primary.Button--blue"
)

// Step names, in execution order.
const (
	StepUploadImage = "upload_image"
	StepTitle       = "title"
	StepBody        = "body"
	StepTopic       = "topic"
	StepSubmit      = "submit"
)

// Draft is the article to publish.
type Draft struct {
	Title string
	Body  string
	// Image is an optional local cover image path.
	Image string
	// Topic is searched in the topic picker; empty means the start of the title.
	Topic string
}

// StepStatus is how a step ended.
type StepStatus string

const (
	StatusOK      StepStatus = "ok"
	StatusSkipped StepStatus = "skipped"
	StatusFailed  StepStatus = "failed"
)

// StepOutcome records one step.
type StepOutcome struct {
	Name     string        `json:"name"`
	Status   StepStatus    `json:"status"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`

	Err error `json:"-"`
}

// Result is the outcome of a publish run.
type Result struct {
	Success  bool          `json:"success"`
	Error    string        `json:"error,omitempty"`
	Steps    []StepOutcome `json:"steps"`
	Warnings []string      `json:"warnings,omitempty"`
}

// Failed returns the steps that failed.
func (r Result) Failed() []StepOutcome {
	var out []StepOutcome
	for _, s := range r.Steps {
		if s.Status == StatusFailed {
			out = append(out, s)
		}
	}
	return out
}

// Step returns the outcome of the named step.
func (r Result) Step(name string) (StepOutcome, bool) {
	for _, s := range r.Steps {
		if s.Name == name {
			return s, true
		}
	}
	return StepOutcome{}, false
}

// Options configures a Workflow.
type Options struct {
	Mode           config.PublishMode
	ElementTimeout time.Duration
	Delays         config.DelaysConfig

	// PollInterval spaces the checks of polled conditions.
	PollInterval time.Duration
}

// DefaultPollInterval is used when Options.PollInterval is unset.
const DefaultPollInterval = 250 * time.Millisecond

// OptionsFromConfig extracts workflow options from cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Mode:           cfg.Publish.Mode,
		ElementTimeout: cfg.Browser.ElementTimeout,
		Delays:         cfg.Publish.Delays,
		PollInterval:   DefaultPollInterval,
	}
}
