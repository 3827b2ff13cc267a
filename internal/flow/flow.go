// File: internal/flow/flow.go
// Package flow drives one automation run end to end: open the host landing
// page, click through to the child scheduling site, fill the weekly form and
// submit it. The run is a strictly forward state machine; every wait has a
// ceiling and every failure is classified before it reaches the user.
package flow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/weifanh/classsync-cli/internal/browser"
	"github.com/weifanh/classsync-cli/internal/config"
	"github.com/weifanh/classsync-cli/internal/locator"
	"github.com/weifanh/classsync-cli/internal/notify"
	"github.com/weifanh/classsync-cli/internal/poll"
	"github.com/weifanh/classsync-cli/internal/schedule"
)

// ErrAlreadyRunning is returned when a run is requested while one is active.
var ErrAlreadyRunning = errors.New("flow: a run is already active")

// ErrStopped is returned when the run was cancelled via Stop. The flag is
// checked between states; an in-flight wait finishes and is discarded.
var ErrStopped = errors.New("flow: stopped by request")

// Broad selectors used to confirm the child site has rendered its controls
// before targeted click attempts begin.
const (
	tabControlSelector    = `a.tab, button.tab, [role="tab"]`
	buttonControlSelector = `button, a, [role="button"]`
)

// diagnosticsTimeout bounds the page-state capture on failure paths.
const diagnosticsTimeout = 3 * time.Second

// Page is the tab surface the flow drives.
type Page interface {
	Eval(ctx context.Context, js string, out any) error
	Click(ctx context.Context, selector string) error
	BringToFront(ctx context.Context) error
	URL(ctx context.Context) (string, error)
	Info(ctx context.Context) (browser.PageInfo, error)
	Close()
}

// Browser supplies tabs: an existing-or-new tab for the host site, and the
// child tab the trigger click spawns.
type Browser interface {
	OpenOrFocus(ctx context.Context, urlPrefix string) (Page, error)
	WaitForTarget(ctx context.Context, opener Page, urlPrefix string, timeout time.Duration) (Page, error)
}

// FormFiller runs one fill pass over the scheduling dialog.
type FormFiller interface {
	Fill(ctx context.Context, page Page, payload *schedule.WeekPayload) (*schedule.FillOutcome, error)
}

// PayloadSource yields the week payload for a run.
type PayloadSource interface {
	Resolve(ctx context.Context) *schedule.WeekPayload
}

// Status is a point-in-time snapshot of the flow for UIs and the API.
type Status struct {
	Running bool                  `json:"isRunning"`
	State   string                `json:"state"`
	RunID   string                `json:"runId,omitempty"`
	Error   *Error                `json:"error,omitempty"`
	Outcome *schedule.FillOutcome `json:"outcome,omitempty"`
}

// Flow owns the state machine. One Flow allows one active run at a time;
// Status and Stop are safe from any goroutine.
type Flow struct {
	logger   *zap.Logger
	cfg      config.FlowConfig
	sites    config.SitesConfig
	browser  Browser
	filler   FormFiller
	payloads PayloadSource
	notifier notify.Notifier

	mu      sync.Mutex
	running bool
	stopped bool
	runID   string
	state   State
	lastErr *Error
	outcome *schedule.FillOutcome
}

// New assembles a Flow. A nil notifier is replaced with the no-op one.
func New(logger *zap.Logger, cfg *config.Config, b Browser, filler FormFiller, payloads PayloadSource, notifier notify.Notifier) *Flow {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Flow{
		logger:   logger.Named("flow"),
		cfg:      cfg.Flow,
		sites:    cfg.Sites,
		browser:  b,
		filler:   filler,
		payloads: payloads,
		notifier: notifier,
		state:    StateIdle,
	}
}

// Status reports the current run state.
func (f *Flow) Status() Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return Status{
		Running: f.running,
		State:   f.state.String(),
		RunID:   f.runID,
		Error:   f.lastErr,
		Outcome: f.outcome,
	}
}

// Stop requests cancellation of the active run. It returns immediately; the
// run winds down at its next state boundary.
func (f *Flow) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.running {
		f.stopped = true
	}
}

// Run executes one automation run. It returns the fill outcome when the run
// reached submission, which may accompany a classified error on failures
// past the fill stage.
func (f *Flow) Run(ctx context.Context, runID string) (*schedule.FillOutcome, error) {
	f.mu.Lock()
	if f.running {
		f.mu.Unlock()
		return nil, ErrAlreadyRunning
	}
	f.running = true
	f.stopped = false
	f.runID = runID
	f.state = StateIdle
	f.lastErr = nil
	f.outcome = nil
	f.mu.Unlock()

	f.logger.Info("Run starting", zap.String("runID", runID))
	f.notifier.Publish(notify.Event{Type: notify.EventStarted, RunID: runID, At: time.Now().UTC()})

	outcome, err := f.run(ctx)

	f.mu.Lock()
	f.running = false
	f.outcome = outcome
	switch {
	case errors.Is(err, ErrStopped):
		f.state = StateIdle
		f.mu.Unlock()
		f.logger.Info("Run stopped", zap.String("runID", runID))
		f.notifier.Publish(notify.Event{
			Type: notify.EventState, RunID: runID,
			State: StateIdle.String(), Message: "run stopped", At: time.Now().UTC(),
		})
		return outcome, ErrStopped
	case err != nil:
		var cerr *Error
		if !errors.As(err, &cerr) {
			cerr = Classify(schedule.KindUnexpected, err)
		}
		f.lastErr = cerr
		f.state = StateFailed
		f.mu.Unlock()
		f.logger.Error("Run failed",
			zap.String("runID", runID),
			zap.String("kind", string(cerr.Kind)),
			zap.Error(cerr.Err))
		f.notifier.Publish(notify.Event{
			Type: notify.EventError, RunID: runID, State: StateFailed.String(),
			Message: cerr.UserMessage, Suggestions: cerr.Suggestions, At: time.Now().UTC(),
		})
		return outcome, cerr
	default:
		f.state = StateCompleted
		f.mu.Unlock()
		f.logger.Info("Run completed", zap.String("runID", runID))
		f.notifier.Publish(notify.Event{
			Type: notify.EventCompleted, RunID: runID, State: StateCompleted.String(),
			Outcome: outcome, At: time.Now().UTC(),
		})
		return outcome, nil
	}
}

// run is the state sequence itself.
func (f *Flow) run(ctx context.Context) (*schedule.FillOutcome, error) {
	payload := f.payloads.Resolve(ctx)
	if err := payload.Validate(); err != nil {
		return nil, Classify(schedule.KindInvalidPayload, err)
	}

	if err := f.advance(StateHostOpening); err != nil {
		return nil, err
	}
	host, err := f.browser.OpenOrFocus(ctx, f.sites.HostURL)
	if err != nil {
		return nil, Classify(schedule.KindPageLoadTimeout, err)
	}
	defer host.Close()

	if err := f.advance(StateHostWaitingReady); err != nil {
		return nil, err
	}
	if err := f.waitHostReady(ctx, host); err != nil {
		return nil, err
	}

	if err := f.advance(StateHostStatusChecked); err != nil {
		return nil, err
	}
	if err := f.checkHostStatus(ctx, host); err != nil {
		return nil, err
	}

	if err := f.advance(StateTriggerClicking); err != nil {
		return nil, err
	}
	if err := f.clickTrigger(ctx, host); err != nil {
		return nil, err
	}

	if err := f.advance(StateChildTabAwaiting); err != nil {
		return nil, err
	}
	child, err := f.browser.WaitForTarget(ctx, host, f.sites.ChildURL, f.cfg.ChildTabTimeout)
	if err != nil {
		return nil, f.fail(ctx, host, schedule.KindTabNavigationTimeout, err)
	}
	defer child.Close()
	if err := child.BringToFront(ctx); err != nil {
		f.logger.Warn("Could not focus child tab", zap.Error(err))
	}

	if err := f.advance(StateChildWaitingReady); err != nil {
		return nil, err
	}
	if err := f.waitForElement(ctx, child, tabControlSelector); err != nil {
		return nil, f.fail(ctx, child, schedule.KindElementNotFound,
			fmt.Errorf("tab controls never rendered: %w", err))
	}

	if err := f.advance(StateTabClicking); err != nil {
		return nil, err
	}
	if err := f.clickWithRetries(ctx, child, locator.TabStrategies(f.sites.PendingWeekTab)); err != nil {
		return nil, f.fail(ctx, child, schedule.KindElementNotFound, err)
	}
	if err := poll.Sleep(ctx, f.cfg.PostClickSettle); err != nil {
		return nil, err
	}

	if err := f.advance(StateReportTriggerClicking); err != nil {
		return nil, err
	}
	if err := f.waitForElement(ctx, child, buttonControlSelector); err != nil {
		return nil, f.fail(ctx, child, schedule.KindElementNotFound,
			fmt.Errorf("button controls never rendered: %w", err))
	}
	reportStrategies := locator.ButtonStrategies([]string{f.sites.ReportButtonLabel}, f.sites.ButtonClassHint)
	if err := f.clickWithRetries(ctx, child, reportStrategies); err != nil {
		return nil, f.fail(ctx, child, schedule.KindElementNotFound, err)
	}

	if err := f.advance(StateModalAwaiting); err != nil {
		return nil, err
	}
	if err := f.waitModalReady(ctx, child); err != nil {
		return nil, err
	}

	if err := f.advance(StateFilling); err != nil {
		return nil, err
	}
	outcome, err := f.fillLoop(ctx, child, payload)
	if err != nil {
		return outcome, err
	}

	if err := f.advance(StateSubmitting); err != nil {
		return outcome, err
	}
	if err := f.submit(ctx, child); err != nil {
		return outcome, err
	}

	if err := f.advance(StateSubmissionAwaiting); err != nil {
		return outcome, err
	}
	if err := f.awaitSubmission(ctx, child); err != nil {
		return outcome, err
	}

	return outcome, nil
}

// advance moves to the next state, honoring a pending Stop first.
func (f *Flow) advance(s State) error {
	f.mu.Lock()
	if f.stopped {
		f.mu.Unlock()
		return ErrStopped
	}
	f.state = s
	runID := f.runID
	f.mu.Unlock()

	f.logger.Info("State entered", zap.String("state", s.String()))
	f.notifier.Publish(notify.Event{
		Type: notify.EventState, RunID: runID, State: s.String(), At: time.Now().UTC(),
	})
	return nil
}

func (f *Flow) isStopped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}

// fail captures the page's last-known state for diagnostics and classifies
// the error. Diagnostics failures never mask the original error.
func (f *Flow) fail(ctx context.Context, page Page, kind schedule.ErrorKind, err error) error {
	if page != nil {
		dctx, cancel := context.WithTimeout(ctx, diagnosticsTimeout)
		info, derr := page.Info(dctx)
		cancel()
		if derr != nil {
			f.logger.Warn("Could not capture page state at failure", zap.Error(derr))
		} else {
			f.logger.Error("Page state at failure",
				zap.String("url", info.URL),
				zap.String("title", info.Title),
				zap.String("readyState", info.ReadyState))
		}
	}
	return Classify(kind, err)
}

// waitHostReady polls the composite readiness predicate. SPAs report
// readyState complete long before their content exists, so completion alone
// is never trusted.
func (f *Flow) waitHostReady(ctx context.Context, host Page) error {
	cfg := poll.Config{MaxAttempts: f.cfg.HostReadyAttempts, Interval: f.cfg.HostReadyInterval}
	var lastReason string
	ready, err := poll.Until(ctx, cfg, func(ctx context.Context) (hostReadiness, bool, error) {
		var r hostReadiness
		if err := host.Eval(ctx, hostReadyScript, &r); err != nil {
			return hostReadiness{}, false, err
		}
		lastReason = r.Reason
		return r, r.Ready, nil
	})
	if err != nil {
		return f.fail(ctx, host, schedule.KindPageLoadTimeout,
			fmt.Errorf("host page not ready (last reason %q): %w", lastReason, err))
	}
	f.logger.Info("Host page ready", zap.Int("contentLength", ready.ContentLength))
	return nil
}

// checkHostStatus detects a login wall, which is fatal, and error banners,
// which are logged and tolerated. A failing status probe is tolerated too.
func (f *Flow) checkHostStatus(ctx context.Context, host Page) error {
	var st hostStatus
	if err := host.Eval(ctx, hostStatusScript, &st); err != nil {
		f.logger.Warn("Host status check failed", zap.Error(err))
		return nil
	}
	if st.IsLoginPage {
		return f.fail(ctx, host, schedule.KindAuthRequired,
			errors.New("host presented a login page"))
	}
	if st.HasError {
		f.logger.Error("Host page shows an error banner", zap.String("message", st.ErrorMessage))
	}
	return nil
}

// clickTrigger hunts the trigger card with progressive backoff. A URL that
// stays put after the click is only a warning; the child site opens in a new
// tab, so the host URL often does not change at all.
func (f *Flow) clickTrigger(ctx context.Context, host Page) error {
	prevURL, err := host.URL(ctx)
	if err != nil {
		f.logger.Warn("Could not read host URL before clicking", zap.Error(err))
	}

	strategies := locator.TriggerCardStrategies(f.sites)
	for attempt := 0; attempt < f.cfg.TriggerClickAttempts; attempt++ {
		if attempt > 0 {
			delay := f.cfg.TriggerClickDelay + time.Duration(attempt)*f.cfg.TriggerClickBackoff
			if err := poll.Sleep(ctx, delay); err != nil {
				return err
			}
		}
		if f.isStopped() {
			return ErrStopped
		}

		m, err := locator.FindAndClick(ctx, host, f.logger, strategies)
		if err != nil {
			f.logger.Debug("Trigger click attempt missed",
				zap.Int("attempt", attempt+1), zap.Error(err))
			continue
		}
		f.logger.Info("Trigger card clicked",
			zap.String("strategy", m.Strategy), zap.String("text", m.Text))

		if err := poll.Sleep(ctx, f.cfg.PostClickSettle); err != nil {
			return err
		}
		if url, uerr := host.URL(ctx); uerr == nil && prevURL != "" && url == prevURL {
			f.logger.Warn("Host URL unchanged after trigger click", zap.String("url", url))
		}
		return nil
	}
	return f.fail(ctx, host, schedule.KindElementNotFound,
		fmt.Errorf("trigger card not clicked after %d attempts", f.cfg.TriggerClickAttempts))
}

// waitForElement polls until any element matching selector is present and
// visible.
func (f *Flow) waitForElement(ctx context.Context, page Page, selector string) error {
	cfg := poll.Config{MaxAttempts: f.cfg.ElementWaitAttempts, Interval: f.cfg.ElementWaitInterval}
	js := elementPresenceScript(selector)
	_, err := poll.Until(ctx, cfg, func(ctx context.Context) (elementPresence, bool, error) {
		var p elementPresence
		if err := page.Eval(ctx, js, &p); err != nil {
			return elementPresence{}, false, err
		}
		return p, p.Found && p.Visible, nil
	})
	return err
}

// clickWithRetries runs the strategy chain with fixed-delay retries. A
// disabled match counts as a miss; the next attempt sees fresh state.
func (f *Flow) clickWithRetries(ctx context.Context, page Page, strategies []locator.Strategy) error {
	var lastErr error
	for attempt := 0; attempt < f.cfg.ClickRetryAttempts; attempt++ {
		if attempt > 0 {
			if err := poll.Sleep(ctx, f.cfg.ClickRetryDelay); err != nil {
				return err
			}
		}
		if f.isStopped() {
			return ErrStopped
		}
		if _, err := locator.FindAndClick(ctx, page, f.logger, strategies); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	if lastErr == nil {
		lastErr = locator.ErrNotFound
	}
	return fmt.Errorf("element not clicked after %d attempts: %w", f.cfg.ClickRetryAttempts, lastErr)
}

// waitModalReady polls the dialog readiness predicate: visible, with day
// blocks, and every select populated past its placeholder.
func (f *Flow) waitModalReady(ctx context.Context, page Page) error {
	cfg := poll.Config{MaxAttempts: f.cfg.ModalReadyAttempts, Interval: f.cfg.ModalReadyInterval}
	js := modalReadyScript(f.sites.DialogSelectors, f.sites.DayBlockSelector)
	ready, err := poll.Until(ctx, cfg, func(ctx context.Context) (modalReadiness, bool, error) {
		var r modalReadiness
		if err := page.Eval(ctx, js, &r); err != nil {
			return modalReadiness{}, false, err
		}
		return r, r.Ready, nil
	})
	if err != nil {
		return f.fail(ctx, page, schedule.KindModalNotReady,
			fmt.Errorf("dialog never became ready: %w", err))
	}
	f.logger.Info("Dialog ready",
		zap.Int("dayBlocks", ready.BlocksCount), zap.Int("selects", ready.SelectsCount))
	return nil
}

// fillLoop runs bounded fill attempts with a pre-check before each one. The
// accept threshold ends the loop early; after exhaustion the abort threshold
// decides between failing and proceeding best-effort.
func (f *Flow) fillLoop(ctx context.Context, page Page, payload *schedule.WeekPayload) (*schedule.FillOutcome, error) {
	precheckJS := modalReadyScript(f.sites.DialogSelectors, f.sites.DayBlockSelector)
	var outcome *schedule.FillOutcome

	for attempt := 1; attempt <= f.cfg.FillAttempts; attempt++ {
		if f.isStopped() {
			return outcome, ErrStopped
		}

		// The dialog can close underneath us between attempts.
		var ready modalReadiness
		if err := page.Eval(ctx, precheckJS, &ready); err != nil || !ready.Ready {
			f.logger.Warn("Fill pre-check failed", zap.Int("attempt", attempt), zap.Error(err))
			if attempt < f.cfg.FillAttempts {
				if serr := poll.Sleep(ctx, f.cfg.FillRetryDelay); serr != nil {
					return outcome, serr
				}
			}
			continue
		}

		out, err := f.filler.Fill(ctx, page, payload)
		if err != nil {
			f.logger.Warn("Fill attempt failed", zap.Int("attempt", attempt), zap.Error(err))
			if attempt < f.cfg.FillAttempts {
				if serr := poll.Sleep(ctx, f.cfg.FillRetryDelay); serr != nil {
					return outcome, serr
				}
			}
			continue
		}

		outcome = out
		if out.OK || out.SuccessRate >= f.cfg.FillAcceptRate {
			f.logger.Info("Form filled",
				zap.Int("attempt", attempt), zap.Float64("successRate", out.SuccessRate))
			return outcome, nil
		}
		f.logger.Warn("Fill success rate below accept threshold",
			zap.Int("attempt", attempt), zap.Float64("successRate", out.SuccessRate))
		if attempt < f.cfg.FillAttempts {
			if serr := poll.Sleep(ctx, f.cfg.FillRetryDelay); serr != nil {
				return outcome, serr
			}
		}
	}

	if outcome == nil {
		return nil, f.fail(ctx, page, schedule.KindFormFillingLowSuccess,
			errors.New("every fill attempt failed"))
	}
	if outcome.SuccessRate < f.cfg.FillAbortRate {
		return outcome, f.fail(ctx, page, schedule.KindFormFillingLowSuccess,
			fmt.Errorf("fill success rate %.2f is below the abort threshold %.2f",
				outcome.SuccessRate, f.cfg.FillAbortRate))
	}
	f.logger.Warn("Proceeding with a partial fill",
		zap.Float64("successRate", outcome.SuccessRate))
	return outcome, nil
}

// submit clicks the submit control with fixed-delay retries. Disabled is
// transient: the page enables the button once it accepts the form.
func (f *Flow) submit(ctx context.Context, page Page) error {
	strategies := locator.ButtonStrategies(f.sites.SubmitButtonLabels, f.sites.ButtonClassHint)
	var lastErr error
	for attempt := 0; attempt < f.cfg.SubmitAttempts; attempt++ {
		if attempt > 0 {
			if err := poll.Sleep(ctx, f.cfg.SubmitRetryDelay); err != nil {
				return err
			}
		}
		if f.isStopped() {
			return ErrStopped
		}

		m, err := locator.FindAndClick(ctx, page, f.logger, strategies)
		if err != nil {
			lastErr = err
			if errors.Is(err, locator.ErrDisabled) {
				f.logger.Debug("Submit control disabled, retrying", zap.Int("attempt", attempt+1))
			}
			continue
		}
		f.logger.Info("Submit control clicked",
			zap.String("strategy", m.Strategy), zap.String("text", m.Text))
		return nil
	}
	return f.fail(ctx, page, schedule.KindSubmitButtonNotFound,
		fmt.Errorf("submit control not clicked after %d attempts: %w", f.cfg.SubmitAttempts, lastErr))
}

// awaitSubmission watches for a definitive post-submit signal. A closed
// dialog with no error indicator is success; a visible error is failure; an
// ambiguous timeout is treated as success with a warning, matching how the
// site behaves when it closes the dialog without any toast.
func (f *Flow) awaitSubmission(ctx context.Context, page Page) error {
	cfg := poll.Config{MaxAttempts: f.cfg.ConfirmAttempts, Interval: f.cfg.ConfirmInterval}
	js := submissionStatusScript(f.sites.DialogSelectors)
	st, err := poll.Until(ctx, cfg, func(ctx context.Context) (submissionStatus, bool, error) {
		var s submissionStatus
		if err := page.Eval(ctx, js, &s); err != nil {
			return submissionStatus{}, false, err
		}
		return s, s.ModalClosed || s.ErrorMessage != "", nil
	})
	if err != nil {
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		f.logger.Warn("Submission state ambiguous, assuming success")
		return nil
	}
	if st.ErrorMessage != "" {
		return f.fail(ctx, page, schedule.KindSubmissionUnconfirmed,
			fmt.Errorf("submission rejected: %s", st.ErrorMessage))
	}
	if st.SuccessMessage != "" {
		f.logger.Info("Submission confirmed", zap.String("message", st.SuccessMessage))
	} else {
		f.logger.Info("Submission confirmed, dialog closed")
	}
	return nil
}
