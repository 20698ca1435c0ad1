package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/chromedp"
	"github.com/gaurav-prasanna/editalpipe/core/output"
)

// targetAttr marks the control chosen by LocateControl.
const targetAttr = "data-editalpipe-target"

// ChromeLauncher starts a dedicated Chrome process per session, so cookies
// and consent state never leak between records.
type ChromeLauncher struct {
	Headless  bool
	ExecPath  string // empty: look up Chrome on PATH
	UserAgent string
	Logger    *slog.Logger
}

// Launch starts Chrome with downloads routed into downloadDir.
func (l *ChromeLauncher) Launch(ctx context.Context, downloadDir string) (Session, error) {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	absDir, err := filepath.Abs(downloadDir)
	if err != nil {
		return nil, fmt.Errorf("resolving download directory: %w", err)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", l.Headless),
		chromedp.WindowSize(1366, 900),
	)
	if l.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(l.UserAgent))
	}
	if l.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(l.ExecPath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx,
		chromedp.WithErrorf(func(format string, args ...any) {
			logger.Debug("chromedp", "message", fmt.Sprintf(format, args...))
		}),
	)

	s := &chromeSession{
		ctx:           browserCtx,
		cancelBrowser: cancelBrowser,
		cancelAlloc:   cancelAlloc,
		dir:           absDir,
		names:         map[string]string{},
		done:          make(chan downloadEvent, 1),
	}
	chromedp.ListenTarget(browserCtx, s.onEvent)

	err = chromedp.Run(browserCtx,
		cdpbrowser.SetDownloadBehavior(cdpbrowser.SetDownloadBehaviorBehaviorAllowAndName).
			WithDownloadPath(absDir).
			WithEventsEnabled(true),
	)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("starting chrome: %w", err)
	}
	return s, nil
}

type downloadEvent struct {
	guid string
	err  error
}

type chromeSession struct {
	ctx           context.Context
	cancelBrowser context.CancelFunc
	cancelAlloc   context.CancelFunc
	dir           string

	mu      sync.Mutex
	names   map[string]string // guid → suggested filename
	started bool
	done    chan downloadEvent
	once    sync.Once
}

func (s *chromeSession) onEvent(ev any) {
	switch e := ev.(type) {
	case *cdpbrowser.EventDownloadWillBegin:
		s.mu.Lock()
		s.names[e.GUID] = e.SuggestedFilename
		s.started = true
		s.mu.Unlock()
	case *cdpbrowser.EventDownloadProgress:
		switch e.State {
		case cdpbrowser.DownloadProgressStateCompleted:
			s.finish(downloadEvent{guid: e.GUID})
		case cdpbrowser.DownloadProgressStateCanceled:
			s.finish(downloadEvent{guid: e.GUID, err: errors.New("download canceled by browser")})
		}
	}
}

// finish reports the first terminal download event only.
func (s *chromeSession) finish(ev downloadEvent) {
	s.once.Do(func() { s.done <- ev })
}

func (s *chromeSession) downloadStarted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// run executes actions in the session, bounded by ctx.
func (s *chromeSession) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
		defer cancelDeadline()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(runCtx, actions...)
}

func (s *chromeSession) Navigate(ctx context.Context, url string) error {
	err := s.run(ctx, chromedp.Navigate(url))
	if err != nil && s.downloadStarted() {
		// The URL itself was a file; Chrome aborts the navigation.
		return nil
	}
	return err
}

func (s *chromeSession) DismissConsent(ctx context.Context) (bool, error) {
	if s.downloadStarted() {
		return false, nil
	}
	var clicked bool
	if err := s.run(ctx, chromedp.Evaluate(consentScript(), &clicked)); err != nil {
		return false, err
	}
	return clicked, nil
}

func (s *chromeSession) LocateControl(ctx context.Context) (bool, error) {
	if s.downloadStarted() {
		return true, nil
	}
	var found bool
	if err := s.run(ctx, chromedp.Evaluate(locateScript(), &found)); err != nil {
		return false, err
	}
	return found, nil
}

func (s *chromeSession) TriggerDownload(ctx context.Context) (string, error) {
	if !s.downloadStarted() {
		var clicked bool
		if err := s.run(ctx, chromedp.Evaluate(triggerScript, &clicked)); err != nil {
			return "", fmt.Errorf("clicking download control: %w", err)
		}
		if !clicked {
			return "", errors.New("download control disappeared")
		}
	}

	select {
	case ev := <-s.done:
		if ev.err != nil {
			return "", ev.err
		}
		return s.place(ev.guid)
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// place renames the GUID-named download to its suggested filename.
func (s *chromeSession) place(guid string) (string, error) {
	src := filepath.Join(s.dir, guid)
	s.mu.Lock()
	name := output.Sanitize(s.names[guid])
	s.mu.Unlock()
	if name == "" || name == "_" {
		return src, nil
	}
	dst := filepath.Join(s.dir, name)
	if err := os.Rename(src, dst); err != nil {
		return src, nil
	}
	return dst, nil
}

func (s *chromeSession) HTML(ctx context.Context) (string, error) {
	var html string
	if err := s.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return html, nil
}

// Close shuts the browser down and waits for the process to exit.
func (s *chromeSession) Close() error {
	err := chromedp.Cancel(s.ctx)
	s.cancelBrowser()
	s.cancelAlloc()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

const visibleJS = `const visible = el => {
    const r = el.getBoundingClientRect();
    const st = getComputedStyle(el);
    return r.width > 0 && r.height > 0 && st.visibility !== 'hidden' && st.display !== 'none';
  };
  const label = el => ((el.innerText || el.value || el.getAttribute('aria-label') || el.title || '') + '').trim().toLowerCase();`

func consentScript() string {
	return fmt.Sprintf(`(() => {
  const words = %s;
  const markers = %s;
  %s
  const inBanner = el => {
    for (let n = el; n && n !== document.body; n = n.parentElement) {
      const tag = ((n.id || '') + ' ' + (typeof n.className === 'string' ? n.className : '')).toLowerCase();
      if (markers.some(m => tag.includes(m))) return true;
    }
    return false;
  };
  const els = document.querySelectorAll('button, a, [role="button"], input[type="button"], input[type="submit"]');
  for (const el of els) {
    const text = label(el);
    if (!text || text.length > 40 || !visible(el)) continue;
    if (words.some(w => text.includes(w)) && (inBanner(el) || words.includes(text))) {
      el.click();
      return true;
    }
  }
  return false;
})()`, jsList(ConsentTexts), jsList(ConsentMarkers), visibleJS)
}

func locateScript() string {
	return fmt.Sprintf(`(() => {
  const selectors = %s;
  const texts = %s;
  %s
  const mark = el => {
    document.querySelectorAll('[%[4]s]').forEach(e => e.removeAttribute('%[4]s'));
    el.setAttribute('%[4]s', '1');
    return true;
  };
  for (const sel of selectors) {
    for (const el of document.querySelectorAll(sel)) {
      if (visible(el)) return mark(el);
    }
  }
  const candidates = document.querySelectorAll('a, button, [role="button"], input[type="button"], input[type="submit"]');
  for (const text of texts) {
    for (const el of candidates) {
      if (label(el).includes(text) && visible(el)) return mark(el);
    }
  }
  return false;
})()`, jsList(ControlSelectors), jsList(ControlTexts), visibleJS, targetAttr)
}

var triggerScript = fmt.Sprintf(`(() => {
  const el = document.querySelector('[%[1]s]');
  if (!el) return false;
  if (el.tagName === 'A') el.removeAttribute('target');
  el.click();
  return true;
})()`, targetAttr)

func jsList(items []string) string {
	data, _ := json.Marshal(items)
	return strings.ReplaceAll(string(data), "</", `<\/`)
}
