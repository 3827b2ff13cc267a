// File: internal/browser/manager.go
package browser

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/weifanh/classsync-cli/internal/config"
)

// Manager owns the headless browser process. All page contexts (tabs) derive
// from its allocator, so one Manager drives both the host landing site and
// the child scheduling site.
type Manager struct {
	logger *zap.Logger
	cfg    config.BrowserConfig

	allocatorCtx    context.Context
	allocatorCancel context.CancelFunc

	// browserCtx is the first tab's context; it anchors the browser process
	// and is the listen point for target discovery.
	browserCtx    context.Context
	browserCancel context.CancelFunc
}

// NewManager launches the browser process and verifies it responds.
func NewManager(ctx context.Context, logger *zap.Logger, cfg config.BrowserConfig) (*Manager, error) {
	m := &Manager{
		logger: logger.Named("browser_manager"),
		cfg:    cfg,
	}

	m.logger.Info("Initializing browser allocator...")
	allocCtx, cancel := chromedp.NewExecAllocator(ctx, m.buildAllocatorOptions()...)
	m.allocatorCtx = allocCtx
	m.allocatorCancel = cancel

	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	m.browserCtx = browserCtx
	m.browserCancel = browserCancel

	// Confirm the browser is alive before the flow leans on it.
	probeCtx, cancelProbe := context.WithTimeout(browserCtx, 30*time.Second)
	defer cancelProbe()
	if err := chromedp.Run(probeCtx, chromedp.Navigate("about:blank")); err != nil {
		m.Shutdown()
		return nil, fmt.Errorf("browser failed to start or respond: %w", err)
	}

	m.logger.Info("Browser launched successfully and is responsive.")
	return m, nil
}

// buildAllocatorOptions assembles the flags for a configurable browser
// instance, including the extra flags containers need.
func (m *Manager) buildAllocatorOptions() []chromedp.ExecAllocatorOption {
	// Start from the defaults, then override the flag that advertises
	// automation; both sites style automated sessions differently.
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)

	opts = append(opts,
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("headless", m.cfg.Headless),
		chromedp.Flag("ignore-certificate-errors", m.cfg.IgnoreTLSErrors),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-gpu", m.cfg.Headless),
	)
	if m.cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(m.cfg.UserAgent))
	}

	// Custom arguments from the config file, "--name=value" or "--name".
	for _, arg := range m.cfg.Args {
		parts := strings.SplitN(arg, "=", 2)
		flagName := strings.TrimPrefix(parts[0], "--")
		if len(parts) == 2 {
			opts = append(opts, chromedp.Flag(flagName, parts[1]))
		} else {
			opts = append(opts, chromedp.Flag(flagName, true))
		}
	}

	if runtime.GOOS == "linux" {
		opts = append(opts,
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.Flag("disable-setuid-sandbox", true),
		)
	}

	return opts
}

// OpenOrFocus reuses an already-open tab whose URL starts with urlPrefix, or
// opens a new tab navigated there. Either way the tab is brought to front.
func (m *Manager) OpenOrFocus(ctx context.Context, urlPrefix string) (*Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	infos, err := chromedp.Targets(m.browserCtx)
	if err != nil {
		return nil, fmt.Errorf("listing targets: %w", err)
	}
	for _, info := range infos {
		if info.Type == "page" && strings.HasPrefix(info.URL, urlPrefix) {
			m.logger.Info("Reusing existing tab", zap.String("url", info.URL))
			return m.attach(info.TargetID)
		}
	}

	m.logger.Info("Opening new tab", zap.String("url", urlPrefix))
	tabCtx, cancel := chromedp.NewContext(m.browserCtx)
	p := &Page{ctx: tabCtx, cancel: cancel, logger: m.logger.Named("page")}
	if err := chromedp.Run(tabCtx, chromedp.Navigate(urlPrefix)); err != nil {
		p.Close()
		return nil, fmt.Errorf("navigating to %s: %w", urlPrefix, err)
	}
	if err := p.BringToFront(ctx); err != nil {
		m.logger.Warn("could not focus tab", zap.Error(err))
	}
	return p, nil
}

// WaitForTarget resolves the page context the opener spawns whose URL starts
// with urlPrefix. Three detection paths race: a pre-existing matching target
// (short-circuit), a new target created already matching, and a created
// target whose URL only matches after a redirect. The timeout is an absolute
// ceiling; hitting it is a classifiable failure, never a hang.
func (m *Manager) WaitForTarget(ctx context.Context, opener *Page, urlPrefix string, timeout time.Duration) (*Page, error) {
	match := func(info *target.Info) bool {
		return strings.HasPrefix(info.URL, urlPrefix)
	}

	// Install the listener before scanning existing targets so a target
	// created in between cannot be missed. WaitNewTarget observes both
	// target creation and later URL updates on targets the opener spawned,
	// and its listener is detached when this call returns.
	parent := m.browserCtx
	if opener != nil {
		parent = opener.ctx
	}
	listenCtx, stopListening := context.WithCancel(parent)
	defer stopListening()
	ch := chromedp.WaitNewTarget(listenCtx, match)

	infos, err := chromedp.Targets(m.browserCtx)
	if err == nil {
		for _, info := range infos {
			if info.Type == "page" && match(info) {
				m.logger.Info("Found pre-existing child tab", zap.String("url", info.URL))
				return m.attach(info.TargetID)
			}
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case id := <-ch:
		m.logger.Info("Detected child tab", zap.String("targetID", string(id)))
		return m.attach(id)
	case <-timer.C:
		return nil, fmt.Errorf("no tab matching %s appeared within %s", urlPrefix, timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// attach wraps an existing browser target in a Page and focuses it.
func (m *Manager) attach(id target.ID) (*Page, error) {
	tabCtx, cancel := chromedp.NewContext(m.browserCtx, chromedp.WithTargetID(id))
	p := &Page{ctx: tabCtx, cancel: cancel, logger: m.logger.Named("page")}
	// Any action attaches the context to the target.
	if err := chromedp.Run(tabCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		return target.ActivateTarget(id).Do(ctx)
	})); err != nil {
		p.Close()
		return nil, fmt.Errorf("attaching to target %s: %w", id, err)
	}
	return p, nil
}

// Shutdown tears down every tab and the browser process.
func (m *Manager) Shutdown() {
	if m.browserCancel != nil {
		m.browserCancel()
	}
	if m.allocatorCancel != nil {
		m.allocatorCancel()
	}
}
