// File: internal/fill/script.go
package fill

import (
	"encoding/json"
	"fmt"
	"strings"
)

// slotContainerSelector is the wrapper around each slot's select and its
// companion text input in the scheduling dialog's markup.
const slotContainerSelector = ".w-full"

// customInputSelector finds the free-text input that appears once the
// sentinel option is selected.
const customInputSelector = `input[type="text"], input[placeholder*="地點"], input[placeholder*="名稱"], input.input`

// jsString renders s as a JavaScript string literal.
func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func jsStringList(ss []string) string {
	quoted := make([]string, 0, len(ss))
	for _, s := range ss {
		quoted = append(quoted, jsString(s))
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

// dialogPrelude locates the first present dialog candidate and exposes
// selectAt(blockIndex, selectIndex) to the rest of the script.
func dialogPrelude(dialogSelectors []string, blockSelector string) string {
	return fmt.Sprintf(`
		const dialog = %s.map((s) => document.querySelector(s)).find((el) => el) || null;
		const selectAt = (bi, si) => {
			if (!dialog) return null;
			const block = dialog.querySelectorAll(%s)[bi];
			if (!block) return null;
			return block.querySelectorAll('select')[si] || null;
		};`, jsStringList(dialogSelectors), jsString(blockSelector))
}

// snapshotScript captures the whole dialog in one evaluation: every day
// block's heading and every select's full option list. The Go side makes all
// pairing and matching decisions from this snapshot.
func snapshotScript(dialogSelectors []string, blockSelector, headingSelector string) string {
	return fmt.Sprintf(`(function() {
		%s
		if (!dialog) return { dialogFound: false, visible: false, blocks: [] };
		const visible = dialog.offsetWidth > 0 && dialog.offsetHeight > 0;
		const blocks = Array.from(dialog.querySelectorAll(%s)).map((b) => {
			const heading = b.querySelector(%s);
			return {
				heading: (heading ? heading.textContent : '').trim(),
				selects: Array.from(b.querySelectorAll('select')).map((s) => ({
					value: s.value,
					disabled: !!s.disabled,
					options: Array.from(s.options || []).map((o) => ({
						value: o.value,
						label: (o.textContent || '').trim(),
						disabled: !!o.disabled
					}))
				}))
			};
		});
		return { dialogFound: true, visible: visible, blocks: blocks };
	})()`, dialogPrelude(dialogSelectors, blockSelector), jsString(blockSelector), jsString(headingSelector))
}

// selectWriteScript sets a select's value through the native prototype
// setter, fires the events controlled components listen for, and reports the
// value the element actually holds afterwards.
func selectWriteScript(dialogSelectors []string, blockSelector string, blockIdx, selectIdx int, value string) string {
	return fmt.Sprintf(`(function() {
		%s
		const sel = selectAt(%d, %d);
		if (!sel) return { ok: false, value: '', reason: 'select-missing' };
		const setter = Object.getOwnPropertyDescriptor(HTMLSelectElement.prototype, 'value').set;
		if (setter) { setter.call(sel, %s); } else { sel.value = %s; }
		sel.dispatchEvent(new Event('input', { bubbles: true, cancelable: true }));
		sel.dispatchEvent(new Event('change', { bubbles: true, cancelable: true }));
		return { ok: sel.value === %s, value: sel.value };
	})()`, dialogPrelude(dialogSelectors, blockSelector), blockIdx, selectIdx,
		jsString(value), jsString(value), jsString(value))
}

// provisionScript forces the sentinel option onto a slot's select if it is
// not already there, then reports whether the companion text input exists and
// is editable. The caller polls this until the input is ready.
func provisionScript(dialogSelectors []string, blockSelector string, blockIdx, selectIdx int, sentinel string) string {
	return fmt.Sprintf(`(function() {
		%s
		const sel = selectAt(%d, %d);
		if (!sel) return { ok: false, inputReady: false };
		const want = %s;
		if (sel.value !== want) {
			const setter = Object.getOwnPropertyDescriptor(HTMLSelectElement.prototype, 'value').set;
			if (setter) { setter.call(sel, want); } else { sel.value = want; }
			sel.dispatchEvent(new Event('input', { bubbles: true, cancelable: true }));
			sel.dispatchEvent(new Event('change', { bubbles: true, cancelable: true }));
		}
		const container = sel.closest(%s) || sel.parentElement;
		const input = container ? container.querySelector(%s) : null;
		let ready = false;
		if (input) {
			const cs = getComputedStyle(input);
			ready = cs.display !== 'none' && cs.visibility !== 'hidden' && cs.opacity !== '0' &&
				!input.disabled && !input.readOnly;
		}
		return { ok: sel.value === want, inputReady: ready };
	})()`, dialogPrelude(dialogSelectors, blockSelector), blockIdx, selectIdx,
		jsString(sentinel), jsString(slotContainerSelector), jsString(customInputSelector))
}

// customWriteScript writes the free-text location into a slot's companion
// input. Some renders briefly leave the input readonly or disabled, so both
// are cleared before writing; the write itself goes through the native
// setter so controlled inputs pick it up.
func customWriteScript(dialogSelectors []string, blockSelector string, blockIdx, selectIdx int, text string) string {
	return fmt.Sprintf(`(function() {
		%s
		const sel = selectAt(%d, %d);
		if (!sel) return { ok: false, found: false, value: '' };
		const container = sel.closest(%s) || sel.parentElement;
		const input = container ? container.querySelector(%s) : null;
		if (!input) return { ok: false, found: false, value: '' };
		input.disabled = false;
		input.readOnly = false;
		if (input.scrollIntoView) input.scrollIntoView({ block: 'center', inline: 'nearest' });
		input.focus();
		const want = %s;
		const setter = Object.getOwnPropertyDescriptor(HTMLInputElement.prototype, 'value').set;
		if (setter) { setter.call(input, want); } else { input.value = want; }
		input.dispatchEvent(new Event('input', { bubbles: true, cancelable: true }));
		input.dispatchEvent(new Event('change', { bubbles: true, cancelable: true }));
		input.blur();
		return { ok: input.value === want, found: true, value: input.value };
	})()`, dialogPrelude(dialogSelectors, blockSelector), blockIdx, selectIdx,
		jsString(slotContainerSelector), jsString(customInputSelector), jsString(text))
}
