// Package session persists the site's authentication cookies between runs.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/net/publicsuffix"

	"github.com/entrhq/zhpublish/pkg/browser"
	"github.com/entrhq/zhpublish/pkg/logging"
)

// Token is one persisted cookie.
type Token = browser.Cookie

// Bundle is every token of one authenticated session. Order is irrelevant.
type Bundle []Token

// Store reads and writes a Bundle as a JSON array in a single file.
type Store struct {
	path   string
	domain string
	logger *logging.Logger
}

// NewStore creates a store for the cookie file at path. siteURL is any URL
// on the target site; its registrable domain becomes the canonical cookie
// domain (".zhihu.com" for "https://zhuanlan.zhihu.com/write").
func NewStore(path, siteURL string, logger *logging.Logger) (*Store, error) {
	domain, err := CanonicalDomain(siteURL)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Store{path: path, domain: domain, logger: logger}, nil
}

// CanonicalDomain returns the leading-dot registrable domain of rawURL.
func CanonicalDomain(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid site URL %q: %w", rawURL, err)
	}
	host := u.Hostname()
	if host == "" {
		return "", fmt.Errorf("site URL %q has no host", rawURL)
	}
	registrable, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return "", fmt.Errorf("cannot derive cookie domain from %q: %w", host, err)
	}
	return "." + registrable, nil
}

// Path returns the cookie file location.
func (s *Store) Path() string {
	return s.path
}

// Domain returns the canonical cookie domain.
func (s *Store) Domain() string {
	return s.domain
}

// Load reads the cookie file. A missing, unreadable or malformed file yields
// (nil, false); the reason is logged but never returned. The tokens returned
// are already normalized.
func (s *Store) Load() (Bundle, bool) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.logger.Infof("no saved session at %s", s.path)
		} else {
			s.logger.Warnf("failed to read session file %s: %v", s.path, err)
		}
		return nil, false
	}

	var raw Bundle
	if err := json.Unmarshal(data, &raw); err != nil {
		s.logger.Warnf("failed to parse session file %s: %v", s.path, err)
		return nil, false
	}

	bundle := make(Bundle, 0, len(raw))
	for _, t := range raw {
		bundle = append(bundle, s.Normalize(t))
	}
	s.logger.Debugf("loaded %d session tokens from %s", len(bundle), s.path)
	return bundle, true
}

// Save writes bundle to the cookie file, replacing it atomically. The parent
// directory is created when missing.
func (s *Store) Save(bundle Bundle) error {
	if bundle == nil {
		bundle = Bundle{}
	}
	data, err := json.MarshalIndent(bundle, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp session file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to replace session file: %w", err)
	}

	s.logger.Debugf("saved %d session tokens to %s", len(bundle), s.path)
	return nil
}

// Normalize prepares a token for the browser: the expiry is dropped and a
// host domain is widened to the canonical cookie domain.
func (s *Store) Normalize(t Token) Token {
	t.Expiry = nil
	if t.Domain != "" && !strings.HasPrefix(t.Domain, ".") {
		t.Domain = s.domain
	}
	return t
}

// Apply adds each token of bundle to h. A token the browser rejects is
// logged and skipped. It returns how many tokens were applied.
func (s *Store) Apply(ctx context.Context, h browser.Handle, bundle Bundle) int {
	applied := 0
	for _, t := range bundle {
		if ctx.Err() != nil {
			break
		}
		if err := h.AddCookie(s.Normalize(t)); err != nil {
			s.logger.Warnf("skipping session token %q: %v", t.Name, err)
			continue
		}
		applied++
	}
	return applied
}

// Capture saves the cookies h currently holds.
func (s *Store) Capture(h browser.Handle) error {
	cookies, err := h.Cookies()
	if err != nil {
		return err
	}
	return s.Save(Bundle(cookies))
}
