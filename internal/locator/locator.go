// File: internal/locator/locator.go
// Package locator finds interactive elements on pages whose markup changes
// without notice. It runs an ordered chain of search strategies, each a small
// page-side script, and accepts the first visible, interactive hit. The
// graceful degradation from exact matches to broad keyword scans is the core
// resilience mechanism of the whole system.
package locator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// markAttr is the temporary attribute a successful strategy places on its
// match so the subsequent click can address it with a stable selector.
const markAttr = "data-classsync-target"

// markSelector addresses the currently marked element.
const markSelector = `[` + markAttr + `="1"]`

// ErrNotFound is returned when every strategy in the chain came up empty.
var ErrNotFound = errors.New("locator: no strategy matched")

// ErrDisabled is returned when the matched control is disabled. Callers treat
// this as a transient condition and retry.
var ErrDisabled = errors.New("locator: matched element is disabled")

// Target is the page surface the locator works against.
type Target interface {
	Eval(ctx context.Context, js string, out any) error
	Click(ctx context.Context, selector string) error
}

// Strategy is one heuristic search attempt. Body is a JavaScript fragment
// evaluated inside the helper prelude; it must end with
// `return mark(el)` for a hit or `return none` otherwise.
type Strategy struct {
	Name string
	Body string
}

// Match describes the element a strategy found.
type Match struct {
	Strategy string `json:"-"`
	Found    bool   `json:"found"`
	Tag      string `json:"tag"`
	Text     string `json:"text"`
	Disabled bool   `json:"disabled"`
}

// prelude defines the helpers every strategy body can rely on: a uniform
// visibility filter, an interactivity estimate, and the marking routine.
const prelude = `
	const isVisible = (el) => !!el && el.offsetWidth > 0 && el.offsetHeight > 0;
	const isInteractive = (el) => {
		if (!el) return false;
		const tag = el.tagName;
		if (tag === 'A' || tag === 'BUTTON') return true;
		if (el.getAttribute('role') === 'button' || el.getAttribute('role') === 'tab') return true;
		if (el.onclick || el.getAttribute('data-click') !== null) return true;
		const cl = el.classList;
		return cl.contains('clickable') || cl.contains('card') || cl.contains('btn') ||
			cl.contains('item') || cl.contains('tile') || cl.contains('tab');
	};
	const mark = (el) => {
		document.querySelectorAll('[` + markAttr + `]').forEach((n) => n.removeAttribute('` + markAttr + `'));
		el.setAttribute('` + markAttr + `', '1');
		return {
			found: true,
			tag: el.tagName,
			text: (el.textContent || '').trim().slice(0, 100),
			disabled: !!el.disabled
		};
	};
	const none = { found: false };
`

// script wraps a strategy body into a self-contained evaluation.
func script(body string) string {
	return "(function() {" + prelude + "\n" + body + "\n})()"
}

// jsString renders s as a JavaScript string literal.
func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// Find runs the strategies in order and returns the first match. A strategy
// error is logged and skipped; unstable pages routinely break individual
// probes without invalidating the rest of the chain.
func Find(ctx context.Context, t Target, logger *zap.Logger, strategies []Strategy) (*Match, error) {
	for _, s := range strategies {
		var m Match
		if err := t.Eval(ctx, script(s.Body), &m); err != nil {
			logger.Debug("locator strategy errored",
				zap.String("strategy", s.Name), zap.Error(err))
			continue
		}
		if m.Found {
			m.Strategy = s.Name
			logger.Debug("locator strategy matched",
				zap.String("strategy", s.Name),
				zap.String("tag", m.Tag),
				zap.String("text", m.Text))
			return &m, nil
		}
	}
	return nil, ErrNotFound
}

// FindAndClick locates an element via the chain and clicks it. The temporary
// mark is removed afterwards on a best-effort basis.
func FindAndClick(ctx context.Context, t Target, logger *zap.Logger, strategies []Strategy) (*Match, error) {
	m, err := Find(ctx, t, logger, strategies)
	if err != nil {
		return nil, err
	}
	if m.Disabled {
		return m, ErrDisabled
	}
	if err := t.Click(ctx, markSelector); err != nil {
		return m, fmt.Errorf("clicking match from strategy %s: %w", m.Strategy, err)
	}
	unmark := `document.querySelectorAll('[` + markAttr + `]').forEach((n) => n.removeAttribute('` + markAttr + `')); true`
	if err := t.Eval(ctx, unmark, nil); err != nil {
		logger.Debug("failed to clear locator mark", zap.Error(err))
	}
	return m, nil
}
