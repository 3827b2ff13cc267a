// File: internal/schedule/payload_test.go
package schedule

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePlainSlot(t *testing.T) {
	got := PlainSlot("吉林基地").Normalize(DefaultSentinelOption, DefaultSafeLocation)
	want := NormalizedSlot{Location: "吉林基地", CustomName: "", IsCustom: false}
	assert.Equal(t, want, got)
}

func TestNormalizeCustomObjectSlot(t *testing.T) {
	got := CustomSlot("其他地點", "實習公司").Normalize(DefaultSentinelOption, DefaultSafeLocation)
	want := NormalizedSlot{Location: "其他地點", CustomName: "實習公司", IsCustom: true}
	assert.Equal(t, want, got)
}

func TestNormalizeLegacyEncodedSlot(t *testing.T) {
	// The legacy "<sentinel>:<text>" string must resolve to the same
	// representation as the object form.
	legacy := PlainSlot("其他地點:實習公司").Normalize(DefaultSentinelOption, DefaultSafeLocation)
	object := CustomSlot("其他地點", "實習公司").Normalize(DefaultSentinelOption, DefaultSafeLocation)
	if diff := cmp.Diff(object, legacy); diff != "" {
		t.Errorf("legacy and object encodings diverged (-object +legacy):\n%s", diff)
	}
	assert.True(t, legacy.IsCustom)
}

func TestNormalizeLegacySlotTrimsWhitespace(t *testing.T) {
	got := PlainSlot("其他地點: 圖書館 ").Normalize(DefaultSentinelOption, DefaultSafeLocation)
	assert.Equal(t, "圖書館", got.CustomName)
}

func TestNormalizeInvalidInputFallsBackToSafeDefault(t *testing.T) {
	cases := map[string]SlotSpec{
		"empty string":        PlainSlot(""),
		"zero value":          {},
		"object missing name": {Location: "其他地點", kind: slotObject},
	}
	for name, slot := range cases {
		t.Run(name, func(t *testing.T) {
			got := slot.Normalize(DefaultSentinelOption, DefaultSafeLocation)
			assert.Equal(t, DefaultSafeLocation, got.Location)
			assert.False(t, got.IsCustom)
		})
	}
}

func TestNormalizeRespectsConfiguredSentinel(t *testing.T) {
	got := PlainSlot("other:Library").Normalize("other", "home")
	assert.Equal(t, NormalizedSlot{Location: "other", CustomName: "Library", IsCustom: true}, got)
}

func TestSlotSpecJSONRoundTrip(t *testing.T) {
	doc := []byte(`{
		"version": "1.0",
		"weekStartISO": "2025-09-22",
		"days": [
			{"dateISO": "2025-09-22", "slots": ["吉林基地", {"location": "其他地點", "customName": "圖書館"}]}
		]
	}`)

	p, err := Parse(doc)
	require.NoError(t, err)
	require.Len(t, p.Days, 1)
	require.Len(t, p.Days[0].Slots, 2)

	assert.Equal(t,
		NormalizedSlot{Location: "吉林基地"},
		p.Days[0].Slots[0].Normalize("", ""))
	assert.Equal(t,
		NormalizedSlot{Location: "其他地點", CustomName: "圖書館", IsCustom: true},
		p.Days[0].Slots[1].Normalize("", ""))

	// Re-encoding keeps both wire shapes.
	out, err := p.Encode()
	require.NoError(t, err)
	assert.Contains(t, string(out), `"吉林基地"`)
	assert.Contains(t, string(out), `"customName":"圖書館"`)
}

func TestValidateAcceptsMinimalPayload(t *testing.T) {
	p := &WeekPayload{
		Version:      "1.0",
		WeekStartISO: "2025-09-22",
		Days:         []DaySchedule{{DateISO: "2025-09-22", Slots: []SlotSpec{PlainSlot("在家中")}}},
	}
	assert.NoError(t, p.Validate())
}

func TestValidateRejections(t *testing.T) {
	base := func() *WeekPayload {
		return &WeekPayload{
			Version:      "1.0",
			WeekStartISO: "2025-09-22",
			Days:         []DaySchedule{{DateISO: "2025-09-22", Slots: []SlotSpec{PlainSlot("在家中")}}},
		}
	}

	t.Run("version mismatch", func(t *testing.T) {
		p := base()
		p.Version = "2.0"
		assert.Error(t, p.Validate())
	})
	t.Run("missing weekStart", func(t *testing.T) {
		p := base()
		p.WeekStartISO = ""
		assert.Error(t, p.Validate())
	})
	t.Run("empty days", func(t *testing.T) {
		p := base()
		p.Days = nil
		assert.Error(t, p.Validate())
	})
	t.Run("day without date", func(t *testing.T) {
		p := base()
		p.Days[0].DateISO = ""
		assert.Error(t, p.Validate())
	})
	t.Run("day with empty slots", func(t *testing.T) {
		p := base()
		p.Days[0].Slots = nil
		assert.Error(t, p.Validate())
	})
	t.Run("invalid slot shape", func(t *testing.T) {
		p := base()
		p.Days[0].Slots = []SlotSpec{{kind: slotInvalid}}
		assert.Error(t, p.Validate())
	})
	t.Run("nil payload", func(t *testing.T) {
		var p *WeekPayload
		assert.Error(t, p.Validate())
	})
}

func TestParseRejectsObjectSlotMissingFields(t *testing.T) {
	doc := []byte(`{
		"version": "1.0",
		"weekStartISO": "2025-09-22",
		"days": [{"dateISO": "2025-09-22", "slots": [{"location": "其他地點"}]}]
	}`)
	_, err := Parse(doc)
	assert.Error(t, err)
}

func TestDefaultPayloadIsValid(t *testing.T) {
	p := DefaultPayload()
	require.NoError(t, p.Validate())
	assert.Len(t, p.Days, 5)

	// Day 3 slot 2 is the custom-location sample.
	got := p.Days[2].Slots[1].Normalize("", "")
	assert.Equal(t, NormalizedSlot{Location: "其他地點", CustomName: "實習公司", IsCustom: true}, got)
}

func TestFillOutcomeFinalize(t *testing.T) {
	o := &FillOutcome{TotalDays: 5, FilledDays: 4}
	o.AddError("2025-09-24", 1, KindOptionNotFound, "no match")
	o.Finalize()

	assert.False(t, o.OK)
	assert.InDelta(t, 0.8, o.SuccessRate, 1e-9)

	clean := &FillOutcome{TotalDays: 2, FilledDays: 2}
	clean.Finalize()
	assert.True(t, clean.OK)
	assert.Equal(t, 1.0, clean.SuccessRate)

	empty := &FillOutcome{}
	empty.Finalize()
	assert.Equal(t, 0.0, empty.SuccessRate)
}
