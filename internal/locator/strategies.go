// File: internal/locator/strategies.go
package locator

import (
	"fmt"
	"strings"

	"github.com/weifanh/classsync-cli/internal/config"
)

// clickableSelector is the broad set of elements worth trying to click.
const clickableSelector = `a, button, [role="button"], div[onclick], [data-click], .card, .item, .tile, .btn, .clickable`

// TriggerCardStrategies builds the search chain for the trigger card on the
// host landing page, ordered from most to least specific.
func TriggerCardStrategies(sites config.SitesConfig) []Strategy {
	keyword := jsString(sites.TriggerKeyword)
	alt := jsString(sites.TriggerImageAlt)

	loose := make([]string, 0, len(sites.LooseKeywords))
	for _, k := range sites.LooseKeywords {
		loose = append(loose, jsString(strings.ToLower(k)))
	}
	looseList := "[" + strings.Join(loose, ", ") + "]"

	return []Strategy{
		{
			Name: "image-alt",
			Body: fmt.Sprintf(`
				const img = Array.from(document.querySelectorAll('img[alt]')).find((i) => i.alt === %s);
				if (!img) return none;
				const clickable = img.closest('[role="button"], a, button, div[onclick], [data-click], .clickable, .card, .item, .tile');
				if (isVisible(clickable)) return mark(clickable);
				if (isVisible(img)) return mark(img);
				return none;`, alt),
		},
		{
			Name: "exact-text",
			Body: fmt.Sprintf(`
				const el = Array.from(document.querySelectorAll('a, button, [role="button"], div, span'))
					.find((e) => (e.textContent || '').trim() === %s && isVisible(e));
				return el ? mark(el) : none;`, keyword),
		},
		{
			Name: "substring-text",
			Body: fmt.Sprintf(`
				const el = Array.from(document.querySelectorAll(%s))
					.find((e) => (e.textContent || '').trim().includes(%s) && isVisible(e));
				return el ? mark(el) : none;`, jsString(clickableSelector), keyword),
		},
		{
			Name: "loose-keywords",
			Body: fmt.Sprintf(`
				const keywords = %s;
				const el = Array.from(document.querySelectorAll(%s))
					.find((e) => {
						const text = (e.textContent || '').trim().toLowerCase();
						return keywords.some((k) => text.includes(k)) && isVisible(e);
					});
				return el ? mark(el) : none;`, looseList, jsString(clickableSelector)),
		},
		{
			// Whole-document scan: anything visible, plausibly clickable and
			// mentioning a keyword. Prefers candidates that mention the full
			// trigger keyword over partial hits.
			Name: "deep-scan",
			Body: fmt.Sprintf(`
				const keywords = %s;
				const full = %s;
				const candidates = Array.from(document.querySelectorAll('*')).filter((e) => {
					const text = (e.textContent || '').toLowerCase();
					return keywords.some((k) => text.includes(k)) && isVisible(e) && isInteractive(e);
				});
				const best = candidates.find((e) => (e.textContent || '').includes(full)) || candidates[0];
				return best ? mark(best) : none;`, looseList, keyword),
		},
	}
}

// TabStrategies finds a tab control by its label on the child site.
func TabStrategies(label string) []Strategy {
	l := jsString(label)
	return []Strategy{
		{
			Name: "tab-by-text",
			Body: fmt.Sprintf(`
				const el = Array.from(document.querySelectorAll('a.tab, button.tab, [role="tab"]'))
					.find((e) => (e.textContent || '').trim().includes(%s) && isVisible(e));
				return el ? mark(el) : none;`, l),
		},
	}
}

// ButtonStrategies finds a button by label text first, then by a style
// signature. Used for both the report trigger and the submit control; the
// disabled state of the match is surfaced so callers can retry.
func ButtonStrategies(labels []string, classHint string) []Strategy {
	quoted := make([]string, 0, len(labels))
	for _, l := range labels {
		quoted = append(quoted, jsString(l))
	}
	labelList := "[" + strings.Join(quoted, ", ") + "]"

	strategies := []Strategy{
		{
			Name: "button-by-text",
			Body: fmt.Sprintf(`
				const labels = %s;
				const el = Array.from(document.querySelectorAll('button, a, [role="button"]'))
					.find((e) => {
						const text = (e.textContent || '').trim();
						return labels.some((l) => text.includes(l)) && isVisible(e);
					});
				return el ? mark(el) : none;`, labelList),
		},
	}
	if classHint != "" {
		strategies = append(strategies, Strategy{
			Name: "button-by-class",
			Body: fmt.Sprintf(`
				const el = Array.from(document.querySelectorAll('button.%s, a.%s')).find(isVisible);
				return el ? mark(el) : none;`, classHint, classHint),
		})
	}
	return strategies
}
