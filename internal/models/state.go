package models

import "time"

// WizardState is the persisted state of one booking modal instance.
type WizardState struct {
	SessionID  string      `json:"session_id"`
	Step       string      `json:"step"`
	Form       BookingForm `json:"form"`
	Submitting bool        `json:"submitting"`
	Open       bool        `json:"open"`
	BookingID  int64       `json:"booking_id,omitempty"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// StepNumber maps the step name to the 1-based index shown in the progress bar.
// The submitted screen reports 4.
func (s *WizardState) StepNumber() int {
	switch s.Step {
	case StepPersonalInfo:
		return 1
	case StepServiceAndDate:
		return 2
	case StepConfirmation:
		return 3
	case StepSubmitted:
		return 4
	default:
		return 0
	}
}

func (s *WizardState) IsSubmitted() bool {
	return s.Step == StepSubmitted
}
