// File: internal/schedule/payload.go
// The schedule data contract: a WeekPayload describes one week of location
// assignments and is the single unit of work for the automation flow.
package schedule

import (
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// PayloadVersion is the protocol tag accepted by Validate. Payloads carrying
// any other version are rejected outright.
const PayloadVersion = "1.0"

// Default vocabulary of the production scheduling form. The flow can override
// these through configuration; the payload layer only needs them as safe
// fallbacks during normalization.
const (
	DefaultSentinelOption = "其他地點"
	DefaultSafeLocation   = "在家中"
)

// WeekPayload is the unit of work. It is constructed once per run, validated,
// and never mutated afterwards.
type WeekPayload struct {
	Version        string        `json:"version"`
	WeekStartISO   string        `json:"weekStartISO"`
	Days           []DaySchedule `json:"days"`
	PlaceWhitelist []string      `json:"placeWhitelist,omitempty"`
}

// DaySchedule holds the ordered slot assignments for one calendar date.
// DateISO is the join key against the live form's day blocks; slots are
// index-aligned with the day block's select controls.
type DaySchedule struct {
	DateISO string     `json:"dateISO"`
	Slots   []SlotSpec `json:"slots"`
}

// slotKind records which wire shape a SlotSpec arrived in.
type slotKind int

const (
	slotInvalid slotKind = iota
	slotString
	slotObject
)

// SlotSpec is polymorphic over two wire shapes: a plain location string, or
// an object {location, customName} naming the sentinel option plus free text.
// The legacy "<sentinel>:<text>" string encoding is resolved at normalization
// time, not at decode time.
type SlotSpec struct {
	Location   string
	CustomName string

	kind slotKind
}

// PlainSlot builds a SlotSpec from a bare location label.
func PlainSlot(location string) SlotSpec {
	return SlotSpec{Location: location, kind: slotString}
}

// CustomSlot builds a SlotSpec carrying a custom free-text location.
func CustomSlot(location, customName string) SlotSpec {
	return SlotSpec{Location: location, CustomName: customName, kind: slotObject}
}

// UnmarshalJSON accepts both wire shapes. Anything else decodes into an
// invalid slot, which Validate rejects and Normalize maps to the safe default.
func (s *SlotSpec) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		*s = SlotSpec{Location: str, kind: slotString}
		return nil
	}

	var obj struct {
		Location   string `json:"location"`
		CustomName string `json:"customName"`
	}
	if err := json.Unmarshal(data, &obj); err == nil {
		kind := slotObject
		if obj.Location == "" || obj.CustomName == "" {
			kind = slotInvalid
		}
		*s = SlotSpec{Location: obj.Location, CustomName: obj.CustomName, kind: kind}
		return nil
	}

	*s = SlotSpec{kind: slotInvalid}
	return nil
}

// MarshalJSON reproduces the wire shape the slot was built from.
func (s SlotSpec) MarshalJSON() ([]byte, error) {
	if s.kind == slotObject {
		return json.Marshal(struct {
			Location   string `json:"location"`
			CustomName string `json:"customName"`
		}{s.Location, s.CustomName})
	}
	return json.Marshal(s.Location)
}

// NormalizedSlot is the single internal representation every SlotSpec
// resolves to. CustomName is empty unless IsCustom is set.
type NormalizedSlot struct {
	Location   string `json:"location"`
	CustomName string `json:"customName,omitempty"`
	IsCustom   bool   `json:"isCustom"`
}

// Normalize resolves a SlotSpec against the given sentinel option and safe
// default location. Invalid or empty input yields the safe default rather
// than an error; a malformed slot must never sink the whole payload.
func (s SlotSpec) Normalize(sentinel, safeDefault string) NormalizedSlot {
	if sentinel == "" {
		sentinel = DefaultSentinelOption
	}
	if safeDefault == "" {
		safeDefault = DefaultSafeLocation
	}

	switch s.kind {
	case slotString:
		// Legacy encoding: "<sentinel>:<free text>".
		if prefix := sentinel + ":"; strings.HasPrefix(s.Location, prefix) {
			name := strings.TrimSpace(strings.TrimPrefix(s.Location, prefix))
			if name == "" {
				return NormalizedSlot{Location: safeDefault}
			}
			return NormalizedSlot{Location: sentinel, CustomName: name, IsCustom: true}
		}
		if s.Location == "" {
			return NormalizedSlot{Location: safeDefault}
		}
		return NormalizedSlot{Location: s.Location}
	case slotObject:
		if s.Location != "" && s.CustomName != "" {
			return NormalizedSlot{Location: s.Location, CustomName: s.CustomName, IsCustom: true}
		}
	}
	return NormalizedSlot{Location: safeDefault}
}

// Validate rejects malformed payloads before any page interaction begins.
// It is pure: no logging, no side effects.
func (p *WeekPayload) Validate() error {
	if p == nil {
		return fmt.Errorf("payload is nil")
	}
	if p.Version != PayloadVersion {
		return fmt.Errorf("unsupported payload version %q (want %q)", p.Version, PayloadVersion)
	}
	if p.WeekStartISO == "" {
		return fmt.Errorf("weekStartISO is required")
	}
	if len(p.Days) == 0 {
		return fmt.Errorf("days must be non-empty")
	}
	for i, d := range p.Days {
		if d.DateISO == "" {
			return fmt.Errorf("day %d: dateISO is required", i)
		}
		if len(d.Slots) == 0 {
			return fmt.Errorf("day %d (%s): slots must be non-empty", i, d.DateISO)
		}
		for j, s := range d.Slots {
			if s.kind == slotInvalid {
				return fmt.Errorf("day %d (%s) slot %d: must be a string or carry both location and customName", i, d.DateISO, j)
			}
		}
	}
	return nil
}

// Parse decodes and validates a payload document.
func Parse(data []byte) (*WeekPayload, error) {
	var p WeekPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decoding payload: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Encode serializes a payload for caching or transport.
func (p *WeekPayload) Encode() ([]byte, error) {
	return json.Marshal(p)
}

// DefaultPayload returns the built-in fallback week used when no cached or
// externally submitted payload is available.
func DefaultPayload() *WeekPayload {
	return &WeekPayload{
		Version:      PayloadVersion,
		WeekStartISO: "2025-09-22",
		Days: []DaySchedule{
			{DateISO: "2025-09-22", Slots: []SlotSpec{PlainSlot("吉林基地"), PlainSlot("在家中")}},
			{DateISO: "2025-09-23", Slots: []SlotSpec{PlainSlot("弘道基地"), PlainSlot("在家中")}},
			{DateISO: "2025-09-24", Slots: []SlotSpec{PlainSlot("在家中"), CustomSlot("其他地點", "實習公司")}},
			{DateISO: "2025-09-25", Slots: []SlotSpec{PlainSlot("吉林基地"), PlainSlot("弘道基地")}},
			{DateISO: "2025-09-26", Slots: []SlotSpec{CustomSlot("其他地點", "圖書館"), PlainSlot("在家中")}},
		},
		PlaceWhitelist: []string{"弘道基地", "吉林基地", "在家中", "其他地點"},
	}
}
