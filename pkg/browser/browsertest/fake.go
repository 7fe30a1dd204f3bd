// Package browsertest provides an in-memory browser.Handle for tests.
package browsertest

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/entrhq/zhpublish/pkg/browser"
)

// Call is one recorded Handle invocation.
type Call struct {
	Method   string
	Selector string
	Arg      string
}

func (c Call) String() string {
	if c.Arg == "" {
		return c.Method + " " + c.Selector
	}
	return fmt.Sprintf("%s %s %q", c.Method, c.Selector, c.Arg)
}

// Fake is a scriptable browser.Handle. Every element exists unless listed in
// Missing; Count reports Counts; failures are injected through Errors keyed
// by "Method selector" (e.g. "Click button.x").
type Fake struct {
	mu sync.Mutex

	CurrentURL string
	Jar        []browser.Cookie

	Missing    map[string]bool
	Counts     map[string]int
	Attributes map[string]bool
	Errors     map[string]error

	// RejectCookies lists cookie names AddCookie refuses.
	RejectCookies map[string]bool

	// Redirect, if set, decides the URL a navigation or reload ends up on.
	Redirect func(target string, jar []browser.Cookie) string

	// AttributeFunc, if set, overrides Attributes.
	AttributeFunc func(selector, name string) (bool, error)

	calls      []Call
	closeCount int
}

// New returns an empty fake sitting on about:blank.
func New() *Fake {
	return &Fake{
		CurrentURL:    "about:blank",
		Missing:       map[string]bool{},
		Counts:        map[string]int{},
		Attributes:    map[string]bool{},
		Errors:        map[string]error{},
		RejectCookies: map[string]bool{},
	}
}

var _ browser.Handle = (*Fake)(nil)

func attrKey(selector, name string) string {
	return selector + "@" + name
}

// SetAttribute marks attribute name as present on selector.
func (f *Fake) SetAttribute(selector, name string, present bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Attributes[attrKey(selector, name)] = present
}

func (f *Fake) record(method, selector, arg string) error {
	f.calls = append(f.calls, Call{Method: method, Selector: selector, Arg: arg})
	if f.closeCount > 0 {
		return browser.ErrHandleClosed
	}
	if err, ok := f.Errors[method+" "+selector]; ok {
		return err
	}
	return nil
}

func (f *Fake) land(target string) {
	if f.Redirect != nil {
		f.CurrentURL = f.Redirect(target, f.Jar)
		return
	}
	f.CurrentURL = target
}

func (f *Fake) Navigate(url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("Navigate", url, ""); err != nil {
		return err
	}
	f.land(url)
	return nil
}

func (f *Fake) Reload() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("Reload", "", ""); err != nil {
		return err
	}
	f.land(f.CurrentURL)
	return nil
}

func (f *Fake) URL() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.CurrentURL
}

func (f *Fake) Cookies() ([]browser.Cookie, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("Cookies", "", ""); err != nil {
		return nil, err
	}
	out := make([]browser.Cookie, len(f.Jar))
	copy(out, f.Jar)
	return out, nil
}

func (f *Fake) AddCookie(c browser.Cookie) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("AddCookie", c.Name, c.Domain); err != nil {
		return err
	}
	if f.RejectCookies[c.Name] {
		return fmt.Errorf("invalid cookie %q", c.Name)
	}
	f.Jar = append(f.Jar, c)
	return nil
}

func (f *Fake) ClearCookies() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("ClearCookies", "", ""); err != nil {
		return err
	}
	f.Jar = nil
	return nil
}

func (f *Fake) WaitFor(selector string, state browser.ElementState, timeout time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("WaitFor", selector, string(state)); err != nil {
		return err
	}
	if f.Missing[selector] {
		return fmt.Errorf("%w: %s (waited %s)", browser.ErrElementNotFound, selector, timeout)
	}
	return nil
}

func (f *Fake) interact(method, selector, arg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(method, selector, arg); err != nil {
		return err
	}
	if f.Missing[selector] {
		return fmt.Errorf("%w: %s", browser.ErrElementNotFound, selector)
	}
	return nil
}

func (f *Fake) Clear(selector string) error { return f.interact("Clear", selector, "") }
func (f *Fake) Type(selector, text string) error { return f.interact("Type", selector, text) }
func (f *Fake) Click(selector string) error { return f.interact("Click", selector, "") }
func (f *Fake) ScriptClick(selector string) error { return f.interact("ScriptClick", selector, "") }
func (f *Fake) Reveal(selector string) error { return f.interact("Reveal", selector, "") }

func (f *Fake) SetInputFile(selector, path string) error {
	return f.interact("SetInputFile", selector, path)
}

func (f *Fake) Count(selector string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("Count", selector, ""); err != nil {
		return 0, err
	}
	return f.Counts[selector], nil
}

func (f *Fake) ClickNth(selector string, n int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("ClickNth", selector, fmt.Sprint(n)); err != nil {
		return err
	}
	if n >= f.Counts[selector] {
		return fmt.Errorf("%w: %s[%d]", browser.ErrElementNotFound, selector, n)
	}
	return nil
}

func (f *Fake) HasAttribute(selector, name string) (bool, error) {
	f.mu.Lock()
	if err := f.record("HasAttribute", selector, name); err != nil {
		f.mu.Unlock()
		return false, err
	}
	fn := f.AttributeFunc
	has := f.Attributes[attrKey(selector, name)]
	f.mu.Unlock()

	if fn != nil {
		return fn(selector, name)
	}
	return has, nil
}

func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Method: "Close"})
	f.closeCount++
	return nil
}

// CloseCount reports how many times Close was called.
func (f *Fake) CloseCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closeCount
}

// Calls returns a copy of every recorded call in order.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}

// Index returns the position of the first call matching method and
// selector, or -1.
func (f *Fake) Index(method, selector string) int {
	for i, c := range f.Calls() {
		if c.Method == method && c.Selector == selector {
			return i
		}
	}
	return -1
}

// Called reports whether method was called on selector.
func (f *Fake) Called(method, selector string) bool {
	return f.Index(method, selector) >= 0
}

// Typed returns the text of the last Type call on selector.
func (f *Fake) Typed(selector string) (string, bool) {
	calls := f.Calls()
	for i := len(calls) - 1; i >= 0; i-- {
		if calls[i].Method == "Type" && calls[i].Selector == selector {
			return calls[i].Arg, true
		}
	}
	return "", false
}

// Transcript renders the calls one per line, for failure messages.
func (f *Fake) Transcript() string {
	var b strings.Builder
	for _, c := range f.Calls() {
		b.WriteString(c.String())
		b.WriteByte('\n')
	}
	return b.String()
}
