// File: internal/flow/states.go
package flow

// State is one step of the automation run. Transitions are strictly forward;
// a run that cannot advance moves to StateFailed and stops.
type State int32

const (
	StateIdle State = iota
	StateHostOpening
	StateHostWaitingReady
	StateHostStatusChecked
	StateTriggerClicking
	StateChildTabAwaiting
	StateChildWaitingReady
	StateTabClicking
	StateReportTriggerClicking
	StateModalAwaiting
	StateFilling
	StateSubmitting
	StateSubmissionAwaiting
	StateCompleted
	StateFailed
)

var stateNames = map[State]string{
	StateIdle:                  "Idle",
	StateHostOpening:           "HostOpening",
	StateHostWaitingReady:      "HostWaitingReady",
	StateHostStatusChecked:     "HostStatusChecked",
	StateTriggerClicking:       "TriggerClicking",
	StateChildTabAwaiting:      "ChildTabAwaiting",
	StateChildWaitingReady:     "ChildWaitingReady",
	StateTabClicking:           "TabClicking",
	StateReportTriggerClicking: "ReportTriggerClicking",
	StateModalAwaiting:         "ModalAwaiting",
	StateFilling:               "Filling",
	StateSubmitting:            "Submitting",
	StateSubmissionAwaiting:    "SubmissionAwaiting",
	StateCompleted:             "Completed",
	StateFailed:                "Failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "Unknown"
}

// Terminal reports whether the run is over in this state.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}
