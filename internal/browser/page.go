// File: internal/browser/page.go
package browser

import (
	"context"
	"fmt"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// Page is one browser tab. Every inspection or mutation of the document goes
// through a short, self-contained JavaScript evaluation; from the flow's
// point of view each evaluation is atomic.
type Page struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger
}

// PageInfo captures the last-known page state for diagnostics.
type PageInfo struct {
	URL        string `json:"url"`
	Title      string `json:"title"`
	ReadyState string `json:"readyState"`
}

// run executes chromedp actions against this tab, bounded by the caller's
// context as well as the tab's own lifetime.
func (p *Page) run(ctx context.Context, actions ...chromedp.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	runCtx := p.ctx
	if deadline, ok := ctx.Deadline(); ok {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithDeadline(p.ctx, deadline)
		defer cancel()
	}
	return chromedp.Run(runCtx, actions...)
}

// Eval evaluates a JavaScript expression in the page and unmarshals its
// JSON-serializable result into out. Pass a nil out to discard the result.
func (p *Page) Eval(ctx context.Context, js string, out any) error {
	if err := p.run(ctx, chromedp.Evaluate(js, out)); err != nil {
		return fmt.Errorf("evaluating script: %w", err)
	}
	return nil
}

// Click dispatches a click on the first visible element matching selector.
func (p *Page) Click(ctx context.Context, selector string) error {
	if err := p.run(ctx, chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible)); err != nil {
		return fmt.Errorf("clicking %q: %w", selector, err)
	}
	return nil
}

// Navigate loads the given URL in this tab.
func (p *Page) Navigate(ctx context.Context, url string) error {
	return p.run(ctx, chromedp.Navigate(url))
}

// BringToFront focuses the tab.
func (p *Page) BringToFront(ctx context.Context) error {
	return p.run(ctx, page.BringToFront())
}

// URL returns the tab's current location.
func (p *Page) URL(ctx context.Context) (string, error) {
	var url string
	if err := p.run(ctx, chromedp.Location(&url)); err != nil {
		return "", err
	}
	return url, nil
}

// Info snapshots URL, title and document readiness. Used for diagnostics on
// abort paths; failures here must not mask the original error.
func (p *Page) Info(ctx context.Context) (PageInfo, error) {
	var info PageInfo
	err := p.Eval(ctx, `({
		url: window.location.href,
		title: document.title,
		readyState: document.readyState
	})`, &info)
	return info, err
}

// Close releases the tab context. The tab itself is torn down with the
// browser; closing individual third-party tabs would be surprising to a user
// watching the session.
func (p *Page) Close() {
	if p.cancel != nil {
		p.cancel()
	}
	if p.logger != nil {
		p.logger.Debug("page context released")
	}
}
