// File: internal/flow/scripts.go
package flow

import (
	"encoding/json"
	"fmt"
	"strings"
)

// hostReadiness is the composite picture the host landing page has to
// satisfy before the trigger card is worth looking for.
type hostReadiness struct {
	Ready         bool   `json:"ready"`
	Reason        string `json:"reason"`
	ContentLength int    `json:"contentLength"`
}

// hostStatus reports the session-level problems the host page can be in.
type hostStatus struct {
	IsLoginPage  bool   `json:"isLoginPage"`
	HasError     bool   `json:"hasError"`
	ErrorMessage string `json:"errorMessage"`
}

type elementPresence struct {
	Found   bool `json:"found"`
	Visible bool `json:"visible"`
}

// modalReadiness is the dialog's precondition for a fill pass: visible, with
// day blocks, and every select populated beyond its placeholder.
type modalReadiness struct {
	Ready        bool `json:"ready"`
	ModalFound   bool `json:"modalFound"`
	BlocksCount  int  `json:"blocksCount"`
	SelectsCount int  `json:"selectsCount"`
}

// submissionStatus captures what the page says after the submit click.
type submissionStatus struct {
	ModalClosed    bool   `json:"modalClosed"`
	SuccessMessage string `json:"successMessage"`
	ErrorMessage   string `json:"errorMessage"`
}

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

// hostReadyScript checks document completion, the absence of visible loading
// indicators, a visible main content region, the presence of interactive
// elements, and a minimum amount of body text. Single-page apps report
// readyState complete long before any of the rest holds.
const hostReadyScript = `(function() {
	if (document.readyState !== 'complete') {
		return { ready: false, reason: 'document-not-ready', contentLength: 0 };
	}
	const loadingSelectors = ['.loading', '.spinner', '[data-loading]', '.loader', '.loading-overlay', '.progress', '.skeleton'];
	for (const sel of loadingSelectors) {
		const el = document.querySelector(sel);
		if (el && el.offsetWidth > 0 && el.offsetHeight > 0) {
			return { ready: false, reason: 'still-loading', contentLength: 0 };
		}
	}
	const contentSelectors = ['main', '.main-content', '.content', '.app-content', '[role="main"]', '.container', '.layout'];
	const hasMain = contentSelectors.some((sel) => {
		const el = document.querySelector(sel);
		return !!el && el.offsetWidth > 0 && el.offsetHeight > 0;
	});
	if (!hasMain) {
		return { ready: false, reason: 'no-main-content', contentLength: 0 };
	}
	const interactiveSelectors = ['.card', '.btn', 'button', '[role="button"]', '.item', '.tile', '.panel', 'a[href]'];
	const hasInteractive = interactiveSelectors.some((sel) => document.querySelectorAll(sel).length > 0);
	if (!hasInteractive) {
		return { ready: false, reason: 'no-interactive-elements', contentLength: 0 };
	}
	const text = (document.body.textContent || '').trim();
	if (text.length < 100) {
		return { ready: false, reason: 'insufficient-content', contentLength: text.length };
	}
	return { ready: true, reason: '', contentLength: text.length };
})()`

// hostStatusScript detects login walls and visible error banners. Short
// button labels that happen to live in elements with error-ish classes are
// not treated as errors.
const hostStatusScript = `(function() {
	const loginIndicators = ['input[type="password"]', 'form[action*="login"]', '.login-form', '#login'];
	const isLoginPage = loginIndicators.some((sel) => !!document.querySelector(sel));
	const errorSelectors = ['.error', '.alert-danger', '.message.error', '.alert-error'];
	let hasError = false;
	let errorMessage = '';
	const uiLabels = ['刪除', '編輯', '新增', '確定', '取消'];
	for (const sel of errorSelectors) {
		const el = document.querySelector(sel);
		if (!el) continue;
		const text = (el.textContent || '').trim();
		if (text.length > 2 && !uiLabels.includes(text)) {
			hasError = true;
			errorMessage = text;
			break;
		}
	}
	return { isLoginPage: isLoginPage, hasError: hasError, errorMessage: errorMessage };
})()`

// elementPresenceScript checks whether any element matching selector exists
// and is visible. Used to confirm a page has rendered its controls before
// click attempts begin.
func elementPresenceScript(selector string) string {
	return fmt.Sprintf(`(function() {
		const el = document.querySelector(%s);
		return {
			found: !!el,
			visible: !!el && el.offsetWidth > 0 && el.offsetHeight > 0
		};
	})()`, jsString(selector))
}

// modalReadyScript builds the dialog readiness probe.
func modalReadyScript(dialogSelectors []string, blockSelector string) string {
	return fmt.Sprintf(`(function() {
		const modal = %s.map((s) => document.querySelector(s)).find((el) => el) || null;
		if (!modal || modal.offsetWidth === 0 || modal.offsetHeight === 0) {
			return { ready: false, modalFound: !!modal, blocksCount: 0, selectsCount: 0 };
		}
		const blocks = modal.querySelectorAll(%s);
		const selects = modal.querySelectorAll('select');
		let populated = selects.length > 0;
		selects.forEach((sel) => {
			if (sel.options.length <= 1) populated = false;
		});
		return {
			ready: blocks.length > 0 && populated,
			modalFound: true,
			blocksCount: blocks.length,
			selectsCount: selects.length
		};
	})()`, jsStringList(dialogSelectors), jsString(blockSelector))
}

// submissionStatusScript inspects the page after the submit click: whether
// the dialog is gone, and any visible success or error indicator text.
func submissionStatusScript(dialogSelectors []string) string {
	return fmt.Sprintf(`(function() {
		const modal = %s.map((s) => document.querySelector(s)).find((el) => el) || null;
		const modalClosed = !modal || modal.offsetWidth === 0 || modal.offsetHeight === 0;
		const visibleText = (sels) => {
			for (const sel of sels) {
				const el = document.querySelector(sel);
				if (el && el.offsetWidth > 0 && el.offsetHeight > 0) {
					return (el.textContent || '').trim();
				}
			}
			return '';
		};
		const successMessage = visibleText(['.alert-success', '.success', '.message-success', '.toast-success', '.notification-success', '[data-alert="success"]']);
		const errorMessage = visibleText(['.alert-error', '.message-error', '.toast-error', '.notification-error', '[data-alert="error"]', '.alert-danger']);
		return { modalClosed: modalClosed, successMessage: successMessage, errorMessage: errorMessage };
	})()`, jsStringList(dialogSelectors))
}
