// Package browser implements the PageDriver interface.
// A Driver walks one page through Loading → ConsentCheck → Locating →
// Triggering and ends in Completed or Failed. The browser itself sits
// behind the Session interface so the state machine runs without Chrome.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/gaurav-prasanna/editalpipe/core"
	"github.com/gaurav-prasanna/editalpipe/core/snapshot"
)

// State is a step of the driver state machine.
type State string

const (
	StateLoading      State = "Loading"
	StateConsentCheck State = "ConsentCheck"
	StateLocating     State = "Locating"
	StateTriggering   State = "Triggering"
	StateCompleted    State = "Completed"
	StateFailed       State = "Failed"
)

// Texts and selectors the driver looks for, in priority order.
var (
	ConsentTexts   = []string{"aceitar", "aceito", "concordo", "accept", "entendi", "permitir"}
	ConsentMarkers = []string{"cookie", "consent", "lgpd"}

	ControlSelectors = []string{
		"div.botaoBaixar",
		"a.botaoBaixar",
		"[data-test='download-button']",
		"[aria-label='Baixar arquivo']",
	}
	ControlTexts = []string{"baixar arquivo", "baixar", "download", "edital", "arquivo"}
)

// Session is one isolated browser session bound to a download directory.
type Session interface {
	// Navigate loads url and returns once the page has loaded.
	Navigate(ctx context.Context, url string) error
	// DismissConsent clicks a consent overlay control if one is present.
	DismissConsent(ctx context.Context) (bool, error)
	// LocateControl reports whether a download control is on the page.
	LocateControl(ctx context.Context) (bool, error)
	// TriggerDownload activates the located control and waits for the
	// resulting file, returning its path.
	TriggerDownload(ctx context.Context) (string, error)
	// HTML returns the current document markup.
	HTML(ctx context.Context) (string, error)
	Close() error
}

// Launcher starts sessions. A launch failure means the browser engine is
// unavailable.
type Launcher interface {
	Launch(ctx context.Context, downloadDir string) (Session, error)
}

// Options bound every wait of the state machine.
type Options struct {
	NavigationTimeout time.Duration
	DownloadTimeout   time.Duration
	StepTimeout       time.Duration // consent check and each locate attempt
	LocateAttempts    int
	LocateBackoff     time.Duration // doubled after every failed attempt
	Snapshots         bool          // write page.md on control-not-found
	Logger            *slog.Logger
}

func (o *Options) defaults() {
	if o.NavigationTimeout <= 0 {
		o.NavigationTimeout = 60 * time.Second
	}
	if o.DownloadTimeout <= 0 {
		o.DownloadTimeout = 30 * time.Second
	}
	if o.StepTimeout <= 0 {
		o.StepTimeout = 10 * time.Second
	}
	if o.LocateAttempts <= 0 {
		o.LocateAttempts = 3
	}
	if o.LocateBackoff <= 0 {
		o.LocateBackoff = 500 * time.Millisecond
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Driver runs the download state machine, one session per call.
type Driver struct {
	launcher Launcher
	opts     Options
	logger   *slog.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewDriver creates a Driver.
func NewDriver(launcher Launcher, opts Options) *Driver {
	opts.defaults()
	return &Driver{launcher: launcher, opts: opts, logger: opts.Logger, sleep: sleepCtx}
}

// Download drives url until a file lands in dir. The session is closed on
// every terminal state.
func (d *Driver) Download(ctx context.Context, url string, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", core.Environmental(fmt.Errorf("creating download directory: %w", err))
	}

	session, err := d.launcher.Launch(ctx, dir)
	if err != nil {
		return "", core.Environmental(fmt.Errorf("launching browser: %w", err))
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			d.logger.Warn("closing browser session", "url", url, "error", cerr)
		}
	}()

	log := d.logger.With("url", url)
	state := StateLoading
	for {
		log.Debug("driver state", "state", state)
		switch state {
		case StateLoading:
			if err := d.load(ctx, session, url); err != nil {
				log.Info("driver failed", "state", state, "error", err)
				return "", err
			}
			state = StateConsentCheck

		case StateConsentCheck:
			// A missing banner is normal; a failed check is not fatal either.
			stepCtx, cancel := context.WithTimeout(ctx, d.opts.StepTimeout)
			dismissed, err := session.DismissConsent(stepCtx)
			cancel()
			if err != nil {
				log.Debug("consent check failed", "error", err)
			} else if dismissed {
				log.Info("dismissed consent overlay")
			}
			state = StateLocating

		case StateLocating:
			if err := d.locate(ctx, session); err != nil {
				d.saveSnapshot(ctx, session, url, dir)
				log.Info("driver failed", "state", state, "error", err)
				return "", err
			}
			state = StateTriggering

		case StateTriggering:
			path, err := d.trigger(ctx, session)
			if err != nil {
				log.Info("driver failed", "state", state, "error", err)
				return "", err
			}
			log.Info("driver completed", "state", StateCompleted, "file", path)
			return path, nil
		}
	}
}

func (d *Driver) load(ctx context.Context, session Session, url string) error {
	navCtx, cancel := context.WithTimeout(ctx, d.opts.NavigationTimeout)
	defer cancel()
	err := session.Navigate(navCtx, url)
	switch {
	case err == nil:
		return nil
	case errors.Is(navCtx.Err(), context.DeadlineExceeded):
		return core.NewError(core.InteractionError, core.ReasonTimeout,
			fmt.Errorf("navigation exceeded %s", d.opts.NavigationTimeout))
	default:
		return core.NewError(core.InteractionError, core.ReasonNavigationFailed, err)
	}
}

// locate retries while client-side rendering settles.
func (d *Driver) locate(ctx context.Context, session Session) error {
	backoff := d.opts.LocateBackoff
	var lastErr error
	for attempt := 1; attempt <= d.opts.LocateAttempts; attempt++ {
		stepCtx, cancel := context.WithTimeout(ctx, d.opts.StepTimeout)
		found, err := session.LocateControl(stepCtx)
		cancel()
		if err == nil && found {
			return nil
		}
		lastErr = err
		if attempt == d.opts.LocateAttempts {
			break
		}
		d.logger.Debug("download control not found yet", "attempt", attempt, "wait", backoff)
		if err := d.sleep(ctx, backoff); err != nil {
			return err
		}
		backoff *= 2
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no control after %d attempts", d.opts.LocateAttempts)
	}
	return core.NewError(core.InteractionError, core.ReasonControlNotFound, lastErr)
}

func (d *Driver) trigger(ctx context.Context, session Session) (string, error) {
	dlCtx, cancel := context.WithTimeout(ctx, d.opts.DownloadTimeout)
	defer cancel()
	path, err := session.TriggerDownload(dlCtx)
	switch {
	case err == nil:
		return path, nil
	case errors.Is(dlCtx.Err(), context.DeadlineExceeded):
		return "", core.NewError(core.InteractionError, core.ReasonDownloadTimeout,
			fmt.Errorf("no download within %s", d.opts.DownloadTimeout))
	default:
		return "", core.NewError(core.InteractionError, core.ReasonTriggerFailed, err)
	}
}

func (d *Driver) saveSnapshot(ctx context.Context, session Session, url, dir string) {
	if !d.opts.Snapshots {
		return
	}
	stepCtx, cancel := context.WithTimeout(ctx, d.opts.StepTimeout)
	defer cancel()
	html, err := session.HTML(stepCtx)
	if err != nil {
		d.logger.Debug("reading page for snapshot", "error", err)
		return
	}
	path, err := snapshot.Write(html, url, dir)
	if err != nil {
		d.logger.Warn("writing page snapshot", "error", err)
		return
	}
	d.logger.Info("saved page snapshot", "file", path)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
