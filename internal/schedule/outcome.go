// File: internal/schedule/outcome.go
package schedule

// ErrorKind classifies a failure anywhere in the automation pipeline. Per-slot
// and per-day kinds accumulate inside a FillOutcome; flow-level kinds abort
// the run and surface as a single user-facing message.
type ErrorKind string

const (
	KindInvalidPayload        ErrorKind = "invalid_payload"
	KindPageLoadTimeout       ErrorKind = "page_load_timeout"
	KindAuthRequired          ErrorKind = "authentication_required"
	KindElementNotFound       ErrorKind = "element_not_found"
	KindTabNavigationTimeout  ErrorKind = "tab_navigation_timeout"
	KindModalNotReady         ErrorKind = "modal_not_ready"
	KindFormFillingLowSuccess ErrorKind = "form_filling_low_success"
	KindCustomInputNotFound   ErrorKind = "custom_input_not_found"
	KindOptionNotFound        ErrorKind = "option_not_found"
	KindSubmitButtonNotFound  ErrorKind = "submission_button_not_found"
	KindSubmissionUnconfirmed ErrorKind = "submission_unconfirmed"
	KindUnexpected            ErrorKind = "unexpected_error"

	// Fill-internal kinds: a day block or its controls were missing, or a
	// written value did not stick. These never abort the run on their own.
	KindDayBlockNotFound ErrorKind = "day_block_not_found"
	KindNoSelects        ErrorKind = "no_selects"
	KindSetValueFailed   ErrorKind = "set_value_failed"
)

// FillError is one structured failure inside a fill pass, tagged with the
// date and slot index it applies to. Slot is -1 for whole-day failures.
type FillError struct {
	Date   string    `json:"date"`
	Slot   int       `json:"slot"`
	Kind   ErrorKind `json:"kind"`
	Detail string    `json:"detail,omitempty"`
}

// SlotDetail records what a single slot wanted, what got selected, and
// whether the write verified. Required for diagnostics and test assertions.
type SlotDetail struct {
	Index       int            `json:"index"`
	Wanted      NormalizedSlot `json:"wanted"`
	Selected    string         `json:"selected,omitempty"`
	Value       string         `json:"value,omitempty"`
	CustomValue string         `json:"customValue,omitempty"`
	Success     bool           `json:"success"`
}

// DayDetail groups the slot records for one date.
type DayDetail struct {
	Date  string       `json:"date"`
	Slots []SlotDetail `json:"slots"`
}

// FillOutcome summarizes one Analyze → Provision → Apply pass over the form.
// A day counts as filled only when every one of its slots succeeded. Partial
// failure is data, not an error: the filler only returns a Go error for
// catastrophic conditions.
type FillOutcome struct {
	OK          bool        `json:"ok"`
	FilledDays  int         `json:"filledDays"`
	TotalDays   int         `json:"totalDays"`
	SuccessRate float64     `json:"successRate"`
	Errors      []FillError `json:"errors"`
	Details     []DayDetail `json:"details"`
}

// AddError appends a structured failure. Pass slot = -1 for day-level errors.
func (o *FillOutcome) AddError(date string, slot int, kind ErrorKind, detail string) {
	o.Errors = append(o.Errors, FillError{Date: date, Slot: slot, Kind: kind, Detail: detail})
}

// Finalize computes the derived fields once all days have been processed.
func (o *FillOutcome) Finalize() {
	if o.TotalDays > 0 {
		o.SuccessRate = float64(o.FilledDays) / float64(o.TotalDays)
	} else {
		o.SuccessRate = 0
	}
	o.OK = len(o.Errors) == 0
}
