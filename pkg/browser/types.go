package browser

import (
	"errors"
	"time"
)

var (
	// ErrDriverInitialization is returned when every acquisition strategy failed.
	ErrDriverInitialization = errors.New("cannot initialize browser driver")

	// ErrElementNotFound is returned when a bounded wait for an element expires.
	ErrElementNotFound = errors.New("element not found")

	// ErrHandleClosed is returned by operations on a closed handle.
	ErrHandleClosed = errors.New("browser handle is closed")
)

// Cookie is one browser cookie as reported by or applied to a Handle.
// The JSON names match the cookie dumps written by Selenium so existing
// cookie files can be reused.
type Cookie struct {
	Name     string   `json:"name"`
	Value    string   `json:"value"`
	Domain   string   `json:"domain,omitempty"`
	Path     string   `json:"path,omitempty"`
	Expiry   *float64 `json:"expiry,omitempty"`
	HTTPOnly bool     `json:"httpOnly,omitempty"`
	Secure   bool     `json:"secure,omitempty"`
	SameSite string   `json:"sameSite,omitempty"`
}

// ElementState is the state a wait blocks for.
type ElementState string

const (
	StateAttached ElementState = "attached"
	StateVisible  ElementState = "visible"
)

// LaunchOptions configures the browser a strategy starts.
type LaunchOptions struct {
	// Headless runs Chrome with the new headless mode and server-friendly flags.
	Headless bool

	// DefaultTimeout applies to every page operation without its own bound.
	DefaultTimeout time.Duration
}

// Default values for launching
const (
	DefaultTimeout       = 10 * time.Second
	HeadlessWindowWidth  = 1920
	HeadlessWindowHeight = 1080
)

// stabilityArgs are passed on every launch.
var stabilityArgs = []string{
	"--disable-extensions",
	"--disable-popup-blocking",
	"--disable-blink-features=AutomationControlled",
}

// headlessArgs are added when running headless.
var headlessArgs = []string{
	"--headless=new",
	"--disable-gpu",
	"--window-size=1920,1080",
	"--no-sandbox",
	"--disable-dev-shm-usage",
}

// ignoredDefaultArgs are removed from Playwright's default Chromium flags so
// the page doesn't advertise automation.
var ignoredDefaultArgs = []string{"--enable-automation"}

// ChromeArgs returns the command line flags for a launch.
func ChromeArgs(headless bool) []string {
	args := make([]string, 0, len(stabilityArgs)+len(headlessArgs))
	if headless {
		args = append(args, headlessArgs...)
	}
	return append(args, stabilityArgs...)
}

func (o LaunchOptions) timeout() time.Duration {
	if o.DefaultTimeout <= 0 {
		return DefaultTimeout
	}
	return o.DefaultTimeout
}
