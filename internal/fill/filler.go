// File: internal/fill/filler.go
// Package fill writes a week payload into the scheduling dialog. A single
// pass has three phases: Analyze snapshots the whole dialog in one
// evaluation, Provision forces the sentinel option and waits for the
// free-text input on custom slots, Apply writes every value and verifies it
// stuck. All pairing and option matching happens in Go against the snapshot,
// so a pass is deterministic, stateless and safe to retry.
package fill

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/weifanh/classsync-cli/internal/config"
	"github.com/weifanh/classsync-cli/internal/poll"
	"github.com/weifanh/classsync-cli/internal/schedule"
)

// settleDelay gives the page's framework a beat to react to a select change
// before the write is verified or the companion input is consulted.
const settleDelay = 100 * time.Millisecond

// provisionInterval is how often Provision re-checks for the custom input.
const provisionInterval = 150 * time.Millisecond

// Evaluator is the page surface the filler needs. Every phase runs as
// self-contained script evaluations against it.
type Evaluator interface {
	Eval(ctx context.Context, js string, out any) error
}

// Filler fills the scheduling dialog from a validated week payload.
type Filler struct {
	logger    *zap.Logger
	sites     config.SitesConfig
	inputWait time.Duration
}

// NewFiller builds a Filler. inputWait bounds how long Provision waits for a
// custom slot's text input to become editable.
func NewFiller(logger *zap.Logger, sites config.SitesConfig, inputWait time.Duration) *Filler {
	return &Filler{
		logger:    logger.Named("filler"),
		sites:     sites,
		inputWait: inputWait,
	}
}

// Dialog snapshot as captured by one Analyze evaluation.
type snapshot struct {
	DialogFound bool       `json:"dialogFound"`
	Visible     bool       `json:"visible"`
	Blocks      []dayBlock `json:"blocks"`
}

type dayBlock struct {
	Heading string      `json:"heading"`
	Selects []selectBox `json:"selects"`
}

type selectBox struct {
	Value    string   `json:"value"`
	Disabled bool     `json:"disabled"`
	Options  []option `json:"options"`
}

type option struct {
	Value    string `json:"value"`
	Label    string `json:"label"`
	Disabled bool   `json:"disabled"`
}

type writeResult struct {
	OK    bool   `json:"ok"`
	Value string `json:"value"`
}

type provisionState struct {
	OK         bool `json:"ok"`
	InputReady bool `json:"inputReady"`
}

type customWriteResult struct {
	OK    bool   `json:"ok"`
	Found bool   `json:"found"`
	Value string `json:"value"`
}

// slotPlan is the per-slot decision record. kind holds the first failure
// observed for the slot; a slot with an empty kind is still on track.
type slotPlan struct {
	index  int
	wanted schedule.NormalizedSlot
	chosen option
	kind   schedule.ErrorKind
	detail string
}

type dayPlan struct {
	date     string
	blockIdx int
	slots    []slotPlan
	skip     bool
}

// Fill runs one Analyze, Provision, Apply pass over the dialog. Partial
// failure is reported inside the outcome; a Go error means the pass could
// not meaningfully start (bad payload, no dialog, no day blocks).
func (f *Filler) Fill(ctx context.Context, page Evaluator, payload *schedule.WeekPayload) (*schedule.FillOutcome, error) {
	if err := payload.Validate(); err != nil {
		return nil, fmt.Errorf("rejecting payload: %w", err)
	}

	snap, err := f.analyze(ctx, page)
	if err != nil {
		return nil, err
	}

	outcome := &schedule.FillOutcome{TotalDays: len(payload.Days)}
	plans := f.plan(snap, payload, outcome)
	f.provision(ctx, page, plans, outcome)
	if err := f.apply(ctx, page, plans, outcome); err != nil {
		return outcome, err
	}
	outcome.Finalize()

	f.logger.Info("Fill pass finished",
		zap.Int("filledDays", outcome.FilledDays),
		zap.Int("totalDays", outcome.TotalDays),
		zap.Int("errors", len(outcome.Errors)))
	return outcome, nil
}

// analyze snapshots the dialog and rejects the catastrophic states a retry
// of the fill pass cannot fix on its own.
func (f *Filler) analyze(ctx context.Context, page Evaluator) (*snapshot, error) {
	js := snapshotScript(f.sites.DialogSelectors, f.sites.DayBlockSelector, f.sites.DayHeadingSelector)
	var snap snapshot
	if err := page.Eval(ctx, js, &snap); err != nil {
		return nil, fmt.Errorf("snapshotting dialog: %w", err)
	}
	switch {
	case !snap.DialogFound:
		return nil, errors.New("scheduling dialog not found")
	case !snap.Visible:
		return nil, errors.New("scheduling dialog is not visible")
	case len(snap.Blocks) == 0:
		return nil, errors.New("scheduling dialog has no day blocks")
	}
	f.logger.Debug("Dialog analyzed", zap.Int("dayBlocks", len(snap.Blocks)))
	return &snap, nil
}

// plan pairs payload days to day blocks and slots to selects, and resolves
// each slot's target option. Decisions here are pure; nothing touches the
// page.
func (f *Filler) plan(snap *snapshot, payload *schedule.WeekPayload, outcome *schedule.FillOutcome) []dayPlan {
	plans := make([]dayPlan, 0, len(payload.Days))
	for _, day := range payload.Days {
		dp := dayPlan{date: day.DateISO, blockIdx: matchBlock(snap.Blocks, day.DateISO)}
		if dp.blockIdx < 0 {
			outcome.AddError(day.DateISO, -1, schedule.KindDayBlockNotFound, "no day block heading starts with this date")
			dp.skip = true
			plans = append(plans, dp)
			continue
		}
		selects := snap.Blocks[dp.blockIdx].Selects
		if len(selects) == 0 {
			outcome.AddError(day.DateISO, -1, schedule.KindNoSelects, "day block contains no selects")
			dp.skip = true
			plans = append(plans, dp)
			continue
		}

		n := len(day.Slots)
		if len(selects) < n {
			n = len(selects)
		}
		for i := 0; i < n; i++ {
			sp := slotPlan{
				index:  i,
				wanted: day.Slots[i].Normalize(f.sites.SentinelOption, f.sites.DefaultLocation),
			}
			// The whitelist is advisory. Matching always happens against
			// the live options; an off-list location is just worth noting.
			if len(payload.PlaceWhitelist) > 0 && !slices.Contains(payload.PlaceWhitelist, sp.wanted.Location) {
				f.logger.Warn("Wanted location is not on the payload whitelist",
					zap.String("date", day.DateISO),
					zap.Int("slot", i),
					zap.String("location", sp.wanted.Location))
			}
			chosen, ok := chooseOption(selects[i].Options, sp.wanted)
			if !ok {
				sp.kind = schedule.KindOptionNotFound
				sp.detail = fmt.Sprintf("no option matches %q among %s", sp.wanted.Location, optionSummary(selects[i].Options))
				outcome.AddError(day.DateISO, i, sp.kind, sp.detail)
			} else {
				sp.chosen = chosen
			}
			dp.slots = append(dp.slots, sp)
		}
		plans = append(plans, dp)
	}
	return plans
}

// provision handles custom slots ahead of the apply phase: the sentinel
// option is forced onto the select and the companion text input is polled
// until editable. A slot whose input never appears fails alone; its siblings
// continue untouched.
func (f *Filler) provision(ctx context.Context, page Evaluator, plans []dayPlan, outcome *schedule.FillOutcome) {
	attempts := int(f.inputWait / provisionInterval)
	if attempts < 1 {
		attempts = 1
	}
	cfg := poll.Config{MaxAttempts: attempts, Interval: provisionInterval}

	for di := range plans {
		dp := &plans[di]
		if dp.skip {
			continue
		}
		for si := range dp.slots {
			sp := &dp.slots[si]
			if sp.kind != "" || !sp.wanted.IsCustom || sp.chosen.Value != f.sites.SentinelOption {
				continue
			}
			js := provisionScript(f.sites.DialogSelectors, f.sites.DayBlockSelector,
				dp.blockIdx, sp.index, f.sites.SentinelOption)
			_, err := poll.Until(ctx, cfg, func(ctx context.Context) (provisionState, bool, error) {
				var st provisionState
				if err := page.Eval(ctx, js, &st); err != nil {
					return provisionState{}, false, err
				}
				return st, st.InputReady, nil
			})
			if err != nil {
				sp.kind = schedule.KindCustomInputNotFound
				sp.detail = "custom location input never became editable"
				outcome.AddError(dp.date, sp.index, sp.kind, sp.detail)
				f.logger.Warn("Custom input did not appear",
					zap.String("date", dp.date), zap.Int("slot", sp.index))
			}
		}
	}
}

// apply writes every planned slot and verifies each write. A day counts as
// filled only when all of its slots succeed.
func (f *Filler) apply(ctx context.Context, page Evaluator, plans []dayPlan, outcome *schedule.FillOutcome) error {
	for di := range plans {
		dp := &plans[di]
		if dp.skip {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		dayOK := true
		detail := schedule.DayDetail{Date: dp.date}
		for si := range dp.slots {
			sp := &dp.slots[si]
			sd := schedule.SlotDetail{Index: sp.index, Wanted: sp.wanted}
			if sp.kind == "" {
				f.applySlot(ctx, page, dp, sp)
				// Plan- and provision-phase failures were recorded when
				// detected; write failures surface here.
				if sp.kind != "" {
					outcome.AddError(dp.date, sp.index, sp.kind, sp.detail)
					f.logger.Warn("Slot write failed",
						zap.String("date", dp.date),
						zap.Int("slot", sp.index),
						zap.String("kind", string(sp.kind)),
						zap.String("detail", sp.detail))
				}
			}
			if sp.kind == "" {
				sd.Success = true
				sd.Selected = sp.chosen.Label
				sd.Value = sp.chosen.Value
				if sp.wanted.IsCustom {
					sd.CustomValue = sp.wanted.CustomName
				}
			} else {
				dayOK = false
				if sp.chosen.Value != "" {
					sd.Selected = sp.chosen.Label
				}
			}
			detail.Slots = append(detail.Slots, sd)
		}
		outcome.Details = append(outcome.Details, detail)
		if dayOK && len(dp.slots) > 0 {
			outcome.FilledDays++
		}
	}
	return nil
}

// applySlot performs the actual writes for one slot, recording the first
// failure on the plan.
func (f *Filler) applySlot(ctx context.Context, page Evaluator, dp *dayPlan, sp *slotPlan) {
	js := selectWriteScript(f.sites.DialogSelectors, f.sites.DayBlockSelector,
		dp.blockIdx, sp.index, sp.chosen.Value)
	var res writeResult
	if err := page.Eval(ctx, js, &res); err != nil {
		sp.kind = schedule.KindSetValueFailed
		sp.detail = err.Error()
		return
	}
	if !res.OK {
		sp.kind = schedule.KindSetValueFailed
		sp.detail = fmt.Sprintf("select holds %q after writing %q", res.Value, sp.chosen.Value)
		return
	}
	_ = poll.Sleep(ctx, settleDelay)

	if !sp.wanted.IsCustom || sp.chosen.Value != f.sites.SentinelOption {
		return
	}
	cjs := customWriteScript(f.sites.DialogSelectors, f.sites.DayBlockSelector,
		dp.blockIdx, sp.index, sp.wanted.CustomName)
	var cres customWriteResult
	if err := page.Eval(ctx, cjs, &cres); err != nil {
		sp.kind = schedule.KindSetValueFailed
		sp.detail = err.Error()
		return
	}
	switch {
	case !cres.Found:
		sp.kind = schedule.KindCustomInputNotFound
		sp.detail = "custom location input disappeared before the write"
	case !cres.OK:
		sp.kind = schedule.KindSetValueFailed
		sp.detail = fmt.Sprintf("input holds %q after writing %q", cres.Value, sp.wanted.CustomName)
	}
}

// matchBlock finds the day block whose heading starts with the ISO date.
// Headings carry the date in their first ten characters followed by
// decoration.
func matchBlock(blocks []dayBlock, dateISO string) int {
	for i, b := range blocks {
		if strings.HasPrefix(strings.TrimSpace(b.Heading), dateISO) {
			return i
		}
	}
	return -1
}

// chooseOption resolves a slot's target option in tiers: exact label or
// value match, then substring match in either direction, then the first
// enabled non-placeholder option. The last tier is skipped for custom slots
// because only the sentinel option reveals the text input.
func chooseOption(opts []option, want schedule.NormalizedSlot) (option, bool) {
	target := want.Location
	for _, o := range opts {
		if o.Label == target || strings.TrimSpace(o.Value) == target {
			return o, true
		}
	}
	for _, o := range opts {
		if o.Label == "" {
			continue
		}
		if strings.Contains(o.Label, target) || strings.Contains(target, o.Label) {
			return o, true
		}
	}
	if want.IsCustom {
		return option{}, false
	}
	for _, o := range opts {
		if isPlaceholder(o) {
			continue
		}
		return o, true
	}
	return option{}, false
}

// isPlaceholder filters options that only exist to prompt a choice.
func isPlaceholder(o option) bool {
	return o.Disabled || o.Value == "" || o.Value == "none" || o.Label == ""
}

func optionSummary(opts []option) string {
	parts := make([]string, 0, len(opts))
	for _, o := range opts {
		parts = append(parts, fmt.Sprintf("%q=%q", o.Value, o.Label))
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
