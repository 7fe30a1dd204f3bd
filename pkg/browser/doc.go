// Package browser drives a single Chromium tab through Playwright.
//
// A Handle is one browser, one context and one page. It exposes only the
// operations the composer workflow needs: navigation, cookies, bounded waits
// for elements and a handful of interactions. Handles are produced by an
// Acquirer, which walks an ordered list of strategies and returns the first
// one that yields a working browser.
//
// # Strategies
//
// DefaultStrategies returns, in order:
//
//  1. default: run the driver from its default location, launch bundled Chromium
//  2. service: run the driver without browser download, launch installed Chrome
//  3. driver_path: run a driver found in a well-known directory
//  4. system_browser: launch the system Chrome binary by path
//  5. install: download the driver and Chromium, then launch
//
// A strategy that does not apply on the current machine is skipped rather
// than failed. If nothing works, Acquire returns ErrDriverInitialization.
//
// # Ownership
//
// The caller that acquires a Handle owns it and must call Close exactly once.
// Close is safe to call again; later calls return the first result.
package browser
