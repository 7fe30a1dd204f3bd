package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/entrhq/zhpublish/pkg/auth"
	"github.com/entrhq/zhpublish/pkg/browser"
	"github.com/entrhq/zhpublish/pkg/config"
	"github.com/entrhq/zhpublish/pkg/logging"
	"github.com/entrhq/zhpublish/pkg/metrics"
	"github.com/entrhq/zhpublish/pkg/poster"
	"github.com/entrhq/zhpublish/pkg/session"
)

// legacySessionDirEnv is the data directory variable of earlier releases.
const legacySessionDirEnv = "json_path"

// errReported marks a failure whose message was already printed.
var errReported = errors.New("reported")

// rootOptions holds the persistent flags.
type rootOptions struct {
	configPath string
	sessionDir string
	headless   bool
}

// Execute runs the zhpublish command tree.
func Execute(ctx context.Context) error {
	root := newRootCmd()
	err := root.ExecuteContext(ctx)
	if err != nil && !errors.Is(err, errReported) {
		fmt.Fprintln(root.ErrOrStderr(), "Error:", err)
	}
	return err
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "zhpublish",
		Short:         "Publish articles to Zhihu through a real browser",
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (YAML)")
	root.PersistentFlags().StringVar(&opts.sessionDir, "session-dir", "", "directory holding the cookie file")
	root.PersistentFlags().BoolVar(&opts.headless, "headless", true, "run the browser without a window")

	root.AddCommand(
		loginCmd(opts),
		publishCmd(opts),
		callCmd(opts),
		configCmd(opts),
	)
	return root
}

// loadConfig loads the config file and environment, then applies the
// command line overrides. The session directory comes from --session-dir,
// then the legacy json_path variable, then the config.
func (o *rootOptions) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}

	if cmd.Flags().Changed("headless") {
		cfg.Browser.Headless = o.headless
	}

	switch {
	case o.sessionDir != "":
		cfg.Session.Dir = o.sessionDir
	case os.Getenv(legacySessionDirEnv) != "":
		cfg.Session.Dir = os.Getenv(legacySessionDirEnv)
	}

	return cfg, nil
}

// app wires the components shared by every browser command.
type app struct {
	cfg      *config.Config
	logger   *logging.Logger
	metrics  *metrics.Recorder
	store    *session.Store
	acquirer *browser.Acquirer
	closers  []io.Closer
}

func (o *rootOptions) newApp(cmd *cobra.Command) (*app, error) {
	cfg, err := o.loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	logging.SetVerbosity(cfg.Logging.Verbosity)
	logger, err := logging.NewLogger("zhpublish")
	if err != nil {
		// logger falls back to stderr
		logger.Warnf("file logging unavailable: %v", err)
	}
	if cfg.Logging.Stderr || logging.MirrorsToStderr(cfg.Logging.Verbosity) {
		logger.MirrorTo(os.Stderr)
	}
	logger.Infof("zhpublish starting: run=%s headless=%v session_dir=%s", logger.RunID(), cfg.Browser.Headless, cfg.Session.Dir)

	strategies, err := browser.SelectStrategies(browser.DefaultStrategies(logger.Named("browser")), cfg.Browser.Strategies)
	if err != nil {
		_ = logger.Close()
		return nil, err
	}

	store, err := session.NewStore(cfg.CookiePath(), cfg.Site.ComposerURL, logger.Named("session"))
	if err != nil {
		_ = logger.Close()
		return nil, err
	}

	recorder := metrics.NewRecorder()
	return &app{
		cfg:      cfg,
		logger:   logger,
		metrics:  recorder,
		store:    store,
		acquirer: browser.NewAcquirer(strategies, logger.Named("browser"), recorder),
	}, nil
}

func (a *app) poster(prompter auth.CodePrompter) *poster.Poster {
	return poster.New(a.cfg, a.acquirer, a.store, prompter,
		poster.WithLogger(a.logger.Named("poster")),
		poster.WithMetrics(a.metrics),
	)
}

// prompter picks how to ask for the SMS code. stdinBusy is set when stdin
// carries command input, in which case the controlling terminal is used.
func (a *app) prompter(stdinBusy bool) auth.CodePrompter {
	if !stdinBusy {
		if term.IsTerminal(int(os.Stdin.Fd())) {
			return &auth.TerminalPrompter{Out: os.Stderr}
		}
		return auth.NewLinePrompter(os.Stdin, os.Stderr)
	}

	tty, err := os.Open("/dev/tty")
	if err != nil {
		a.logger.Warnf("no terminal for the verification code prompt, expired sessions will fail: %v", err)
		return nil
	}
	a.closers = append(a.closers, tty)
	return auth.NewLinePrompter(tty, os.Stderr)
}

func (a *app) close() {
	if err := a.metrics.WriteTextfile(a.cfg.Metrics.Textfile); err != nil {
		a.logger.Warnf("%v", err)
	}
	for _, c := range a.closers {
		_ = c.Close()
	}
	_ = a.logger.Close()
}
