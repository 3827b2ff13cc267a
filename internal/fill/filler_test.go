// File: internal/fill/filler_test.go
package fill

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/weifanh/classsync-cli/internal/config"
	"github.com/weifanh/classsync-cli/internal/schedule"
)

// fakePage simulates the scheduling dialog. It classifies each incoming
// script by its distinctive fragments and answers from the configured state,
// recording the scripts so tests can assert on embedded values.
type fakePage struct {
	snap snapshot

	// provisionReadyAfter is how many provision checks run before the custom
	// input reports ready; negative means never.
	provisionReadyAfter int
	provisionChecks     int

	selectWriteOK  bool
	customWriteOK  bool
	customFound    bool
	selectScripts  []string
	customScripts  []string
	snapshotCalls  int
	provisionCalls int
}

func newFakePage(snap snapshot) *fakePage {
	return &fakePage{
		snap:          snap,
		selectWriteOK: true,
		customWriteOK: true,
		customFound:   true,
	}
}

func (f *fakePage) Eval(_ context.Context, js string, out any) error {
	switch {
	case strings.Contains(js, "inputReady"):
		f.provisionCalls++
		f.provisionChecks++
		ready := f.provisionReadyAfter >= 0 && f.provisionChecks > f.provisionReadyAfter
		*out.(*provisionState) = provisionState{OK: true, InputReady: ready}
	case strings.Contains(js, "HTMLInputElement"):
		f.customScripts = append(f.customScripts, js)
		res := customWriteResult{OK: f.customWriteOK, Found: f.customFound, Value: "written"}
		if !f.customFound {
			res = customWriteResult{}
		}
		*out.(*customWriteResult) = res
	case strings.Contains(js, "HTMLSelectElement"):
		f.selectScripts = append(f.selectScripts, js)
		*out.(*writeResult) = writeResult{OK: f.selectWriteOK, Value: "whatever"}
	case strings.Contains(js, "dialogFound"):
		f.snapshotCalls++
		*out.(*snapshot) = f.snap
	default:
		return fmt.Errorf("unrecognized script: %s", js)
	}
	return nil
}

func sel(values ...string) selectBox {
	s := selectBox{}
	s.Options = append(s.Options, option{Value: "none", Label: "請選擇", Disabled: true})
	for _, v := range values {
		s.Options = append(s.Options, option{Value: v, Label: v})
	}
	return s
}

func standardSnapshot(dates ...string) snapshot {
	snap := snapshot{DialogFound: true, Visible: true}
	for _, d := range dates {
		snap.Blocks = append(snap.Blocks, dayBlock{
			Heading: d + " 星期一",
			Selects: []selectBox{
				sel("在家中", "吉林基地", "弘道基地", "其他地點"),
				sel("在家中", "吉林基地", "弘道基地", "其他地點"),
			},
		})
	}
	return snap
}

func newTestFiller() *Filler {
	return NewFiller(zap.NewNop(), config.NewDefaultConfig().Sites, 500*time.Millisecond)
}

func payloadOf(days ...schedule.DaySchedule) *schedule.WeekPayload {
	return &schedule.WeekPayload{
		Version:      schedule.PayloadVersion,
		WeekStartISO: days[0].DateISO,
		Days:         days,
	}
}

func TestFillRejectsInvalidPayload(t *testing.T) {
	f := newTestFiller()
	page := newFakePage(standardSnapshot("2025-09-22"))

	_, err := f.Fill(context.Background(), page, &schedule.WeekPayload{Version: "2.0"})
	require.Error(t, err)
	assert.Zero(t, page.snapshotCalls, "an invalid payload must never touch the page")
}

func TestFillCatastrophicDialogStates(t *testing.T) {
	cases := []struct {
		name string
		snap snapshot
	}{
		{"missing", snapshot{}},
		{"hidden", snapshot{DialogFound: true, Visible: false}},
		{"empty", snapshot{DialogFound: true, Visible: true}},
	}
	payload := payloadOf(schedule.DaySchedule{
		DateISO: "2025-09-22",
		Slots:   []schedule.SlotSpec{schedule.PlainSlot("在家中")},
	})
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := newTestFiller().Fill(context.Background(), newFakePage(tc.snap), payload)
			assert.Error(t, err)
		})
	}
}

func TestFillCountsDaysAndSlots(t *testing.T) {
	dates := []string{"2025-09-22", "2025-09-23", "2025-09-24"}
	page := newFakePage(standardSnapshot(dates...))
	payload := payloadOf(
		schedule.DaySchedule{DateISO: dates[0], Slots: []schedule.SlotSpec{schedule.PlainSlot("在家中"), schedule.PlainSlot("吉林基地")}},
		schedule.DaySchedule{DateISO: dates[1], Slots: []schedule.SlotSpec{schedule.PlainSlot("弘道基地"), schedule.PlainSlot("在家中")}},
		schedule.DaySchedule{DateISO: dates[2], Slots: []schedule.SlotSpec{schedule.PlainSlot("在家中"), schedule.PlainSlot("在家中")}},
	)

	out, err := newTestFiller().Fill(context.Background(), page, payload)
	require.NoError(t, err)
	assert.True(t, out.OK)
	assert.Equal(t, 3, out.FilledDays)
	assert.Equal(t, 3, out.TotalDays)
	assert.InDelta(t, 1.0, out.SuccessRate, 1e-9)
	assert.Len(t, page.selectScripts, 6, "one select write per slot")
	require.Len(t, out.Details, 3)
	for _, d := range out.Details {
		assert.Len(t, d.Slots, 2)
	}
}

func TestFillExactMatchWinsOverSubstring(t *testing.T) {
	snap := snapshot{DialogFound: true, Visible: true, Blocks: []dayBlock{{
		Heading: "2025-09-22 星期一",
		Selects: []selectBox{{Options: []option{
			{Value: "home-ext", Label: "在家中辦公"},
			{Value: "home", Label: "在家中"},
		}}},
	}}}
	page := newFakePage(snap)
	payload := payloadOf(schedule.DaySchedule{
		DateISO: "2025-09-22",
		Slots:   []schedule.SlotSpec{schedule.PlainSlot("在家中")},
	})

	out, err := newTestFiller().Fill(context.Background(), page, payload)
	require.NoError(t, err)
	assert.True(t, out.OK)
	require.Len(t, page.selectScripts, 1)
	assert.Contains(t, page.selectScripts[0], `"home"`,
		"the exact label match must win over the substring hit")
	assert.Equal(t, "在家中", out.Details[0].Slots[0].Selected)
}

func TestFillFallsBackToFirstUsableOption(t *testing.T) {
	snap := snapshot{DialogFound: true, Visible: true, Blocks: []dayBlock{{
		Heading: "2025-09-22",
		Selects: []selectBox{{Options: []option{
			{Value: "none", Label: "請選擇"},
			{Value: "", Label: "----"},
			{Value: "x1", Label: "某基地", Disabled: true},
			{Value: "x2", Label: "備用地點"},
		}}},
	}}}
	page := newFakePage(snap)
	payload := payloadOf(schedule.DaySchedule{
		DateISO: "2025-09-22",
		Slots:   []schedule.SlotSpec{schedule.PlainSlot("不存在的地方")},
	})

	out, err := newTestFiller().Fill(context.Background(), page, payload)
	require.NoError(t, err)
	assert.True(t, out.OK)
	require.Len(t, page.selectScripts, 1)
	assert.Contains(t, page.selectScripts[0], `"x2"`,
		"placeholders and disabled options must be skipped")
}

func TestFillCustomSlotNeverFallsBack(t *testing.T) {
	snap := snapshot{DialogFound: true, Visible: true, Blocks: []dayBlock{{
		Heading: "2025-09-22",
		Selects: []selectBox{{Options: []option{
			{Value: "home", Label: "在家中"},
		}}},
	}}}
	page := newFakePage(snap)
	payload := payloadOf(schedule.DaySchedule{
		DateISO: "2025-09-22",
		Slots:   []schedule.SlotSpec{schedule.CustomSlot("其他地點", "圖書館")},
	})

	out, err := newTestFiller().Fill(context.Background(), page, payload)
	require.NoError(t, err)
	assert.False(t, out.OK)
	assert.Equal(t, 0, out.FilledDays)
	require.Len(t, out.Errors, 1)
	assert.Equal(t, schedule.KindOptionNotFound, out.Errors[0].Kind)
	assert.Empty(t, page.selectScripts, "nothing is written when no option matched")
}

func TestFillMissingDayBlockSkipsDay(t *testing.T) {
	page := newFakePage(standardSnapshot("2025-09-22"))
	payload := payloadOf(
		schedule.DaySchedule{DateISO: "2025-09-22", Slots: []schedule.SlotSpec{schedule.PlainSlot("在家中"), schedule.PlainSlot("在家中")}},
		schedule.DaySchedule{DateISO: "2025-09-29", Slots: []schedule.SlotSpec{schedule.PlainSlot("在家中"), schedule.PlainSlot("在家中")}},
	)

	out, err := newTestFiller().Fill(context.Background(), page, payload)
	require.NoError(t, err)
	assert.False(t, out.OK)
	assert.Equal(t, 1, out.FilledDays)
	assert.Equal(t, 2, out.TotalDays)
	assert.InDelta(t, 0.5, out.SuccessRate, 1e-9)
	require.Len(t, out.Errors, 1)
	assert.Equal(t, schedule.KindDayBlockNotFound, out.Errors[0].Kind)
	assert.Equal(t, "2025-09-29", out.Errors[0].Date)
	assert.Equal(t, -1, out.Errors[0].Slot)
	assert.Len(t, out.Details, 1, "skipped days produce no slot details")
}

func TestFillCustomInputMissIsolatedToSlot(t *testing.T) {
	page := newFakePage(standardSnapshot("2025-09-22"))
	page.provisionReadyAfter = -1 // custom input never shows up
	payload := payloadOf(schedule.DaySchedule{
		DateISO: "2025-09-22",
		Slots: []schedule.SlotSpec{
			schedule.CustomSlot("其他地點", "實習公司"),
			schedule.PlainSlot("吉林基地"),
		},
	})

	out, err := newTestFiller().Fill(context.Background(), page, payload)
	require.NoError(t, err)
	assert.False(t, out.OK)
	assert.Equal(t, 0, out.FilledDays, "a day with one failed slot is not filled")
	require.Len(t, out.Errors, 1)
	assert.Equal(t, schedule.KindCustomInputNotFound, out.Errors[0].Kind)
	assert.Equal(t, 0, out.Errors[0].Slot)

	// The sibling slot was still written and succeeded.
	require.Len(t, out.Details, 1)
	require.Len(t, out.Details[0].Slots, 2)
	assert.False(t, out.Details[0].Slots[0].Success)
	assert.True(t, out.Details[0].Slots[1].Success)
	assert.Len(t, page.selectScripts, 1, "the failed custom slot is not applied")
}

func TestFillCustomSlotProvisionThenWrite(t *testing.T) {
	page := newFakePage(standardSnapshot("2025-09-22"))
	page.provisionReadyAfter = 2 // ready on the third poll
	payload := payloadOf(schedule.DaySchedule{
		DateISO: "2025-09-22",
		Slots: []schedule.SlotSpec{
			schedule.PlainSlot("在家中"),
			schedule.CustomSlot("其他地點", "實習公司"),
		},
	})

	out, err := newTestFiller().Fill(context.Background(), page, payload)
	require.NoError(t, err)
	assert.True(t, out.OK)
	assert.Equal(t, 1, out.FilledDays)
	assert.Equal(t, 3, page.provisionCalls)
	require.Len(t, page.customScripts, 1)
	assert.Contains(t, page.customScripts[0], `"實習公司"`)
	assert.Equal(t, "實習公司", out.Details[0].Slots[1].CustomValue)
}

func TestFillVerificationFailureRecorded(t *testing.T) {
	page := newFakePage(standardSnapshot("2025-09-22"))
	page.selectWriteOK = false
	payload := payloadOf(schedule.DaySchedule{
		DateISO: "2025-09-22",
		Slots:   []schedule.SlotSpec{schedule.PlainSlot("在家中"), schedule.PlainSlot("在家中")}})

	out, err := newTestFiller().Fill(context.Background(), page, payload)
	require.NoError(t, err)
	assert.False(t, out.OK)
	assert.Equal(t, 0, out.FilledDays)
	require.Len(t, out.Errors, 2)
	for _, e := range out.Errors {
		assert.Equal(t, schedule.KindSetValueFailed, e.Kind)
	}
}

func TestFillDefaultPayloadEndToEnd(t *testing.T) {
	payload := schedule.DefaultPayload()
	dates := make([]string, 0, len(payload.Days))
	for _, d := range payload.Days {
		dates = append(dates, d.DateISO)
	}
	page := newFakePage(standardSnapshot(dates...))
	page.provisionReadyAfter = 0

	out, err := newTestFiller().Fill(context.Background(), page, payload)
	require.NoError(t, err)
	assert.True(t, out.OK)
	assert.Equal(t, len(payload.Days), out.FilledDays)
	assert.InDelta(t, 1.0, out.SuccessRate, 1e-9)
	assert.Len(t, page.customScripts, 2, "the default week carries two custom slots")
	assert.Len(t, page.selectScripts, 10)
}

func TestMatchBlockPrefix(t *testing.T) {
	blocks := []dayBlock{
		{Heading: "  2025-09-22 (一)"},
		{Heading: "2025-09-23 (二)"},
	}
	assert.Equal(t, 0, matchBlock(blocks, "2025-09-22"))
	assert.Equal(t, 1, matchBlock(blocks, "2025-09-23"))
	assert.Equal(t, -1, matchBlock(blocks, "2025-09-24"))
}

func TestChooseOptionTiers(t *testing.T) {
	opts := []option{
		{Value: "none", Label: "請選擇", Disabled: true},
		{Value: "a", Label: "吉林基地"},
		{Value: "b", Label: "在家中"},
	}

	got, ok := chooseOption(opts, schedule.NormalizedSlot{Location: "在家中"})
	require.True(t, ok)
	assert.Equal(t, "b", got.Value)

	got, ok = chooseOption(opts, schedule.NormalizedSlot{Location: "吉林"})
	require.True(t, ok)
	assert.Equal(t, "a", got.Value, "substring matching in either direction")

	got, ok = chooseOption(opts, schedule.NormalizedSlot{Location: "火星"})
	require.True(t, ok)
	assert.Equal(t, "a", got.Value, "first usable option as the last resort")

	_, ok = chooseOption(opts, schedule.NormalizedSlot{Location: "其他地點", CustomName: "x", IsCustom: true})
	assert.False(t, ok, "custom slots get no last-resort fallback")
}
