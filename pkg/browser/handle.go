package browser

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
)

// Handle is control over one browser tab. It is owned by exactly one caller
// and must be closed exactly once.
type Handle interface {
	// Navigate loads url and waits for the DOM to be ready.
	Navigate(url string) error
	Reload() error
	URL() string

	Cookies() ([]Cookie, error)
	AddCookie(c Cookie) error
	ClearCookies() error

	// WaitFor blocks until the first element matching selector reaches
	// state, or fails with ErrElementNotFound after timeout.
	WaitFor(selector string, state ElementState, timeout time.Duration) error

	Clear(selector string) error
	// Type sends text as individual key presses to the first match.
	Type(selector, text string) error
	Click(selector string) error
	// ScriptClick clicks the first match from page script, bypassing
	// visibility and overlap checks.
	ScriptClick(selector string) error
	// Reveal forces the first match visible with an inline style override.
	Reveal(selector string) error
	SetInputFile(selector, path string) error

	Count(selector string) (int, error)
	ClickNth(selector string, n int) error
	HasAttribute(selector, name string) (bool, error)

	Close() error
}

// playwrightHandle is a Handle backed by a Playwright driver process.
type playwrightHandle struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext
	page    playwright.Page

	closeOnce sync.Once
	closeErr  error
	mu        sync.Mutex
	closed    bool
}

// newPlaywrightHandle opens a context and page on an already launched
// browser. On failure it releases everything it was given.
func newPlaywrightHandle(pw *playwright.Playwright, b playwright.Browser, opts LaunchOptions) (*playwrightHandle, error) {
	contextOpts := playwright.BrowserNewContextOptions{}
	if opts.Headless {
		contextOpts.Viewport = &playwright.Size{
			Width:  HeadlessWindowWidth,
			Height: HeadlessWindowHeight,
		}
	} else {
		contextOpts.NoViewport = playwright.Bool(true)
	}

	bctx, err := b.NewContext(contextOpts)
	if err != nil {
		_ = b.Close()
		_ = pw.Stop()
		return nil, fmt.Errorf("failed to create context: %w", err)
	}

	page, err := bctx.NewPage()
	if err != nil {
		_ = bctx.Close()
		_ = b.Close()
		_ = pw.Stop()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	page.SetDefaultTimeout(float64(opts.timeout().Milliseconds()))

	return &playwrightHandle{
		pw:      pw,
		browser: b,
		context: bctx,
		page:    page,
	}, nil
}

func (h *playwrightHandle) checkOpen() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrHandleClosed
	}
	return nil
}

func (h *playwrightHandle) first(selector string) playwright.Locator {
	return h.page.Locator(selector).First()
}

func (h *playwrightHandle) Navigate(url string) error {
	if err := h.checkOpen(); err != nil {
		return err
	}
	_, err := h.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	})
	if err != nil {
		return fmt.Errorf("navigation failed: %w", err)
	}
	return nil
}

func (h *playwrightHandle) Reload() error {
	if err := h.checkOpen(); err != nil {
		return err
	}
	if _, err := h.page.Reload(); err != nil {
		return fmt.Errorf("reload failed: %w", err)
	}
	return nil
}

func (h *playwrightHandle) URL() string {
	return h.page.URL()
}

func (h *playwrightHandle) Cookies() ([]Cookie, error) {
	if err := h.checkOpen(); err != nil {
		return nil, err
	}
	raw, err := h.context.Cookies()
	if err != nil {
		return nil, fmt.Errorf("failed to read cookies: %w", err)
	}

	cookies := make([]Cookie, 0, len(raw))
	for _, c := range raw {
		cookie := Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			HTTPOnly: c.HttpOnly,
			Secure:   c.Secure,
		}
		// Playwright reports -1 for session cookies.
		if c.Expires > 0 {
			expires := c.Expires
			cookie.Expiry = &expires
		}
		if c.SameSite != nil {
			cookie.SameSite = string(*c.SameSite)
		}
		cookies = append(cookies, cookie)
	}
	return cookies, nil
}

func (h *playwrightHandle) AddCookie(c Cookie) error {
	if err := h.checkOpen(); err != nil {
		return err
	}

	opt := playwright.OptionalCookie{
		Name:     c.Name,
		Value:    c.Value,
		Expires:  c.Expiry,
		HttpOnly: playwright.Bool(c.HTTPOnly),
		Secure:   playwright.Bool(c.Secure),
		SameSite: sameSite(c.SameSite),
	}
	if c.Domain != "" {
		path := c.Path
		if path == "" {
			path = "/"
		}
		opt.Domain = playwright.String(c.Domain)
		opt.Path = playwright.String(path)
	} else {
		// Host-only cookie: scope it to the page the caller is on.
		opt.URL = playwright.String(h.page.URL())
	}

	if err := h.context.AddCookies([]playwright.OptionalCookie{opt}); err != nil {
		return fmt.Errorf("cookie %q rejected: %w", c.Name, err)
	}
	return nil
}

func sameSite(v string) *playwright.SameSiteAttribute {
	switch strings.ToLower(v) {
	case "strict":
		return playwright.SameSiteAttributeStrict
	case "lax":
		return playwright.SameSiteAttributeLax
	case "none":
		return playwright.SameSiteAttributeNone
	default:
		return nil
	}
}

func (h *playwrightHandle) ClearCookies() error {
	if err := h.checkOpen(); err != nil {
		return err
	}
	if err := h.context.ClearCookies(); err != nil {
		return fmt.Errorf("failed to clear cookies: %w", err)
	}
	return nil
}

func (h *playwrightHandle) WaitFor(selector string, state ElementState, timeout time.Duration) error {
	if err := h.checkOpen(); err != nil {
		return err
	}

	waitState := playwright.WaitForSelectorStateAttached
	if state == StateVisible {
		waitState = playwright.WaitForSelectorStateVisible
	}

	err := h.first(selector).WaitFor(playwright.LocatorWaitForOptions{
		State:   waitState,
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	})
	if err != nil {
		if errors.Is(err, playwright.ErrTimeout) {
			return fmt.Errorf("%w: %s (waited %s)", ErrElementNotFound, selector, timeout)
		}
		return fmt.Errorf("wait for %s failed: %w", selector, err)
	}
	return nil
}

func (h *playwrightHandle) Clear(selector string) error {
	if err := h.checkOpen(); err != nil {
		return err
	}
	if err := h.first(selector).Clear(); err != nil {
		return fmt.Errorf("clear %s failed: %w", selector, err)
	}
	return nil
}

func (h *playwrightHandle) Type(selector, text string) error {
	if err := h.checkOpen(); err != nil {
		return err
	}
	// A long body takes longer than the default timeout to type.
	err := h.first(selector).PressSequentially(text, playwright.LocatorPressSequentiallyOptions{
		Timeout: playwright.Float(0),
	})
	if err != nil {
		return fmt.Errorf("typing into %s failed: %w", selector, err)
	}
	return nil
}

func (h *playwrightHandle) Click(selector string) error {
	if err := h.checkOpen(); err != nil {
		return err
	}
	if err := h.first(selector).Click(); err != nil {
		return fmt.Errorf("click %s failed: %w", selector, err)
	}
	return nil
}

func (h *playwrightHandle) ScriptClick(selector string) error {
	if err := h.checkOpen(); err != nil {
		return err
	}
	if _, err := h.first(selector).Evaluate("el => el.click()", nil); err != nil {
		return fmt.Errorf("script click %s failed: %w", selector, err)
	}
	return nil
}

func (h *playwrightHandle) Reveal(selector string) error {
	if err := h.checkOpen(); err != nil {
		return err
	}
	const script = "el => { el.style.display = 'block'; el.style.visibility = 'visible'; }"
	if _, err := h.first(selector).Evaluate(script, nil); err != nil {
		return fmt.Errorf("reveal %s failed: %w", selector, err)
	}
	return nil
}

func (h *playwrightHandle) SetInputFile(selector, path string) error {
	if err := h.checkOpen(); err != nil {
		return err
	}
	if err := h.first(selector).SetInputFiles(path); err != nil {
		return fmt.Errorf("set input file on %s failed: %w", selector, err)
	}
	return nil
}

func (h *playwrightHandle) Count(selector string) (int, error) {
	if err := h.checkOpen(); err != nil {
		return 0, err
	}
	n, err := h.page.Locator(selector).Count()
	if err != nil {
		return 0, fmt.Errorf("count %s failed: %w", selector, err)
	}
	return n, nil
}

func (h *playwrightHandle) ClickNth(selector string, n int) error {
	if err := h.checkOpen(); err != nil {
		return err
	}
	if err := h.page.Locator(selector).Nth(n).Click(); err != nil {
		return fmt.Errorf("click %s[%d] failed: %w", selector, n, err)
	}
	return nil
}

func (h *playwrightHandle) HasAttribute(selector, name string) (bool, error) {
	if err := h.checkOpen(); err != nil {
		return false, err
	}
	v, err := h.first(selector).Evaluate("(el, name) => el.hasAttribute(name)", name)
	if err != nil {
		return false, fmt.Errorf("attribute check on %s failed: %w", selector, err)
	}
	has, _ := v.(bool)
	return has, nil
}

// Close releases page, context, browser and the driver process. Only the
// first call does anything; later calls return the first call's error.
func (h *playwrightHandle) Close() error {
	h.closeOnce.Do(func() {
		h.mu.Lock()
		h.closed = true
		h.mu.Unlock()

		var errs []error
		if err := h.page.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close page: %w", err))
		}
		if err := h.context.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close context: %w", err))
		}
		if err := h.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close browser: %w", err))
		}
		if err := h.pw.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop playwright: %w", err))
		}
		h.closeErr = errors.Join(errs...)
	})
	return h.closeErr
}
