package publish

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/zhpublish/pkg/browser"
	"github.com/entrhq/zhpublish/pkg/browser/browsertest"
	"github.com/entrhq/zhpublish/pkg/config"
)

// sleepRecorder is a Sleeper that returns at once and remembers each pause.
type sleepRecorder struct {
	mu     sync.Mutex
	pauses []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.pauses = append(s.pauses, d)
	s.mu.Unlock()
	return ctx.Err()
}

func newTestWorkflow(h browser.Handle, mode config.PublishMode) (*Workflow, *sleepRecorder) {
	opts := OptionsFromConfig(config.DefaultConfig())
	opts.Mode = mode
	rec := &sleepRecorder{}
	return NewWorkflow(h, opts, WithSleeper(rec.sleep)), rec
}

// readyComposer returns a fake composer with one topic suggestion and an
// enabled submit button.
func readyComposer() *browsertest.Fake {
	h := browsertest.New()
	h.CurrentURL = config.DefaultComposerURL
	h.Counts[TopicSuggestionsSelector] = 1
	return h
}

func TestClampTitle(t *testing.T) {
	long := strings.Repeat("知", 150)
	mixed := strings.Repeat("ab", 30) + strings.Repeat("乎", 60)

	tests := []struct {
		name  string
		title string
		max   int
		want  string
	}{
		{name: "short unchanged", title: "Hello", max: 100, want: "Hello"},
		{name: "exact length unchanged", title: strings.Repeat("x", 100), max: 100, want: strings.Repeat("x", 100)},
		{name: "ascii clamped", title: strings.Repeat("x", 101), max: 100, want: strings.Repeat("x", 100)},
		{name: "cjk counted as characters", title: long, max: 100, want: strings.Repeat("知", 100)},
		{name: "mixed", title: mixed, max: 100, want: strings.Repeat("ab", 30) + strings.Repeat("乎", 40)},
		{name: "empty", title: "", max: 100, want: ""},
		{name: "topic fallback", title: "知乎专栏文章", max: 4, want: "知乎专栏"},
		{name: "negative max", title: "abc", max: -1, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClampTitle(tt.title, tt.max))
		})
	}
}

func TestPublishTypesClampedTitle(t *testing.T) {
	h := readyComposer()
	w, _ := newTestWorkflow(h, config.ModeLenient)

	title := strings.Repeat("题", 120)
	res := w.Publish(context.Background(), Draft{Title: title, Body: "valid body text"})
	require.True(t, res.Success)

	typed, ok := h.Typed(TitleSelector)
	require.True(t, ok)
	assert.Equal(t, []rune(title)[:100], []rune(typed))
}

func TestPublishHappyPath(t *testing.T) {
	h := readyComposer()
	w, sleeps := newTestWorkflow(h, config.ModeStrict)

	res := w.Publish(context.Background(), Draft{Title: "标题", Body: "valid body text", Topic: "Go"})

	require.True(t, res.Success, h.Transcript())
	assert.Empty(t, res.Error)
	assert.Empty(t, res.Warnings)

	names := make([]string, 0, len(res.Steps))
	for _, s := range res.Steps {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{StepUploadImage, StepTitle, StepBody, StepTopic, StepSubmit}, names)

	upload, _ := res.Step(StepUploadImage)
	assert.Equal(t, StatusSkipped, upload.Status)
	for _, name := range []string{StepTitle, StepBody, StepTopic, StepSubmit} {
		s, ok := res.Step(name)
		require.True(t, ok)
		assert.Equal(t, StatusOK, s.Status, name)
	}

	// Interactions happen in step order.
	order := []int{
		h.Index("Clear", TitleSelector),
		h.Index("Type", TitleSelector),
		h.Index("Click", BodySelector),
		h.Index("Type", BodySelector),
		h.Index("ScriptClick", TopicButtonSelector),
		h.Index("Type", TopicSearchSelector),
		h.Index("ClickNth", TopicSuggestionsSelector),
		h.Index("Click", SubmitSelector),
	}
	for i := 1; i < len(order); i++ {
		assert.Less(t, order[i-1], order[i], h.Transcript())
	}

	body, _ := h.Typed(BodySelector)
	assert.Equal(t, "valid body text", body)
	topic, _ := h.Typed(TopicSearchSelector)
	assert.Equal(t, "Go", topic)

	assert.False(t, h.Called("Reveal", UploadInputSelector))
	assert.Equal(t, 8*time.Second, sleeps.pauses[len(sleeps.pauses)-1], "acknowledgement wait comes last")
}

func TestTopicFailureDoesNotStopSubmit(t *testing.T) {
	tests := []struct {
		name        string
		mode        config.PublishMode
		wantSuccess bool
	}{
		{name: "lenient", mode: config.ModeLenient, wantSuccess: true},
		{name: "strict", mode: config.ModeStrict, wantSuccess: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := readyComposer()
			h.Errors["ScriptClick "+TopicButtonSelector] = errors.New("element is detached from the DOM")
			w, _ := newTestWorkflow(h, tt.mode)

			res := w.Publish(context.Background(), Draft{Title: "T", Body: "valid body text"})

			assert.True(t, h.Called("Click", SubmitSelector), "submit must still be attempted")
			assert.Equal(t, tt.wantSuccess, res.Success)

			topic, ok := res.Step(StepTopic)
			require.True(t, ok)
			assert.Equal(t, StatusFailed, topic.Status)
			assert.ErrorIs(t, topic.Err, ErrStep)
			assert.Contains(t, topic.Error, "detached")
			require.Len(t, res.Failed(), 1)

			if tt.wantSuccess {
				assert.Empty(t, res.Error)
			} else {
				assert.Contains(t, res.Error, "topic")
			}
		})
	}
}

func TestUnknownTopicStillPublishes(t *testing.T) {
	h := readyComposer()
	h.Counts[TopicSuggestionsSelector] = 0
	w, _ := newTestWorkflow(h, config.ModeLenient)

	res := w.Publish(context.Background(), Draft{
		Title: "T",
		Body:  "valid body text",
		Topic: "nonexistent-topic-xyz",
	})

	assert.True(t, res.Success)
	assert.True(t, h.Called("Click", SubmitSelector))
	assert.False(t, h.Called("ClickNth", TopicSuggestionsSelector))

	topic, _ := res.Step(StepTopic)
	assert.Equal(t, StatusSkipped, topic.Status)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "nonexistent-topic-xyz")
}

func TestTopicFallsBackToTitlePrefix(t *testing.T) {
	h := readyComposer()
	w, _ := newTestWorkflow(h, config.ModeLenient)

	w.Publish(context.Background(), Draft{Title: "知乎专栏自动发布", Body: "valid body text"})

	query, ok := h.Typed(TopicSearchSelector)
	require.True(t, ok)
	assert.Equal(t, "知乎专栏", query)
}

func TestTopicQuery(t *testing.T) {
	tests := []struct {
		name  string
		draft Draft
		want  string
	}{
		{name: "explicit topic", draft: Draft{Title: "Hello world", Topic: "Go"}, want: "Go"},
		{name: "topic trimmed", draft: Draft{Title: "Hello world", Topic: "  Go \n"}, want: "Go"},
		{name: "whitespace topic falls back", draft: Draft{Title: "Hello world", Topic: "   "}, want: "Hell"},
		{name: "short title", draft: Draft{Title: "Go"}, want: "Go"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, topicQuery(tt.draft))
		})
	}
}

func TestSuggestionsArePolled(t *testing.T) {
	h := readyComposer()
	h.Counts[TopicSuggestionsSelector] = 0
	w, sleeps := newTestWorkflow(h, config.ModeLenient)

	w.Publish(context.Background(), Draft{Title: "T", Body: "b", Topic: "x"})

	counts := 0
	for _, c := range h.Calls() {
		if c.Method == "Count" && c.Selector == TopicSuggestionsSelector {
			counts++
		}
	}
	// 2s budget at 250ms intervals.
	assert.Equal(t, 9, counts)
	assert.Contains(t, sleeps.pauses, DefaultPollInterval)
}

func TestImageUpload(t *testing.T) {
	img := filepath.Join(t.TempDir(), "cover.png")
	require.NoError(t, os.WriteFile(img, []byte("\x89PNG"), 0600))

	t.Run("confirmed", func(t *testing.T) {
		h := readyComposer()
		h.Counts[UploadDoneSelector] = 1
		w, sleeps := newTestWorkflow(h, config.ModeStrict)

		res := w.Publish(context.Background(), Draft{Title: "T", Body: "b", Image: img})
		require.True(t, res.Success)
		assert.Empty(t, res.Warnings)

		reveal := h.Index("Reveal", UploadInputSelector)
		set := h.Index("SetInputFile", UploadInputSelector)
		require.GreaterOrEqual(t, reveal, 0)
		assert.Less(t, reveal, set)
		assert.Equal(t, img, h.Calls()[set].Arg)
		assert.Equal(t, 10*time.Second, sleeps.pauses[0])
	})

	t.Run("unconfirmed is a warning", func(t *testing.T) {
		h := readyComposer()
		w, _ := newTestWorkflow(h, config.ModeStrict)

		res := w.Publish(context.Background(), Draft{Title: "T", Body: "b", Image: img})
		assert.True(t, res.Success)
		upload, _ := res.Step(StepUploadImage)
		assert.Equal(t, StatusOK, upload.Status)
		require.Len(t, res.Warnings, 1)
	})

	t.Run("relative path is made absolute", func(t *testing.T) {
		wd, err := os.Getwd()
		require.NoError(t, err)
		rel, err := filepath.Rel(wd, img)
		require.NoError(t, err)

		h := readyComposer()
		w, _ := newTestWorkflow(h, config.ModeLenient)
		w.Publish(context.Background(), Draft{Title: "T", Body: "b", Image: rel})

		set := h.Index("SetInputFile", UploadInputSelector)
		require.GreaterOrEqual(t, set, 0)
		assert.True(t, filepath.IsAbs(h.Calls()[set].Arg))
	})

	t.Run("missing file is skipped", func(t *testing.T) {
		h := readyComposer()
		w, _ := newTestWorkflow(h, config.ModeStrict)

		res := w.Publish(context.Background(), Draft{Title: "T", Body: "b", Image: filepath.Join(t.TempDir(), "gone.png")})
		assert.True(t, res.Success)
		assert.False(t, h.Called("Reveal", UploadInputSelector))
		upload, _ := res.Step(StepUploadImage)
		assert.Equal(t, StatusSkipped, upload.Status)
		assert.Len(t, res.Warnings, 1)
	})

	t.Run("rejected input fails only the upload", func(t *testing.T) {
		h := readyComposer()
		h.Errors["SetInputFile "+UploadInputSelector] = errors.New("not an input element")
		w, _ := newTestWorkflow(h, config.ModeLenient)

		res := w.Publish(context.Background(), Draft{Title: "T", Body: "b", Image: img})
		assert.True(t, res.Success)
		upload, _ := res.Step(StepUploadImage)
		assert.Equal(t, StatusFailed, upload.Status)
		assert.True(t, h.Called("Type", TitleSelector))
	})
}

func TestSubmitWaitsForEnabledButton(t *testing.T) {
	t.Run("enabled after a few polls", func(t *testing.T) {
		h := readyComposer()
		checks := 0
		h.AttributeFunc = func(selector, name string) (bool, error) {
			checks++
			return checks < 4, nil
		}
		w, _ := newTestWorkflow(h, config.ModeStrict)

		res := w.Publish(context.Background(), Draft{Title: "T", Body: "b"})
		assert.True(t, res.Success)
		assert.Equal(t, 4, checks)
		assert.True(t, h.Called("Click", SubmitSelector))
	})

	t.Run("never enabled is bounded", func(t *testing.T) {
		h := readyComposer()
		h.SetAttribute(SubmitSelector, "disabled", true)
		w, _ := newTestWorkflow(h, config.ModeStrict)

		res := w.Publish(context.Background(), Draft{Title: "T", Body: "b"})
		assert.False(t, res.Success)
		assert.False(t, h.Called("Click", SubmitSelector))

		submit, _ := res.Step(StepSubmit)
		assert.Equal(t, StatusFailed, submit.Status)
		assert.ErrorIs(t, submit.Err, browser.ErrElementNotFound)

		checks := 0
		for _, c := range h.Calls() {
			if c.Method == "HasAttribute" {
				checks++
			}
		}
		// 10s element timeout at 250ms intervals.
		assert.Equal(t, 41, checks)
	})
}

func TestEveryStepFailingIsStillLenientSuccess(t *testing.T) {
	h := readyComposer()
	for _, sel := range []string{TitleSelector, BodySelector, TopicSearchSelector} {
		h.Missing[sel] = true
	}
	h.Errors["ScriptClick "+TopicButtonSelector] = errors.New("boom")
	h.SetAttribute(SubmitSelector, "disabled", true)

	w, _ := newTestWorkflow(h, config.ModeLenient)
	res := w.Publish(context.Background(), Draft{Title: "T", Body: "b"})

	assert.True(t, res.Success)
	assert.Len(t, res.Failed(), 4)
}

func TestStepPanicIsContained(t *testing.T) {
	h := readyComposer()
	h.AttributeFunc = func(selector, name string) (bool, error) {
		panic("driver connection lost")
	}
	w, _ := newTestWorkflow(h, config.ModeStrict)

	res := w.Publish(context.Background(), Draft{Title: "T", Body: "b"})
	assert.False(t, res.Success)

	submit, _ := res.Step(StepSubmit)
	assert.Equal(t, StatusFailed, submit.Status)
	assert.Contains(t, submit.Error, "driver connection lost")
}

func TestPublishCancelled(t *testing.T) {
	h := readyComposer()
	w, _ := newTestWorkflow(h, config.ModeLenient)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := w.Publish(ctx, Draft{Title: "T", Body: "b"})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, context.Canceled.Error())
	assert.Empty(t, res.Steps)
	assert.Empty(t, h.Calls())
}
