package models

// SubmissionStatus is the lifecycle state of a submission
type SubmissionStatus string

// Submission lifecycle states
const (
	StatusPending  SubmissionStatus = "pending"
	StatusApproved SubmissionStatus = "approved"
	StatusPlaying  SubmissionStatus = "playing"
	StatusSkipped  SubmissionStatus = "skipped"
	StatusDone     SubmissionStatus = "done"
)

// IsValid reports whether s is a known status
func (s SubmissionStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusPlaying, StatusSkipped, StatusDone:
		return true
	default:
		return false
	}
}

// IsActive reports whether the status holds a queue position
func (s SubmissionStatus) IsActive() bool {
	return s == StatusApproved || s == StatusPlaying
}

// IsTerminal reports whether no further transitions are possible
func (s SubmissionStatus) IsTerminal() bool {
	return s == StatusSkipped || s == StatusDone
}

// Event log actions
const (
	ActionSubmit         = "submit"
	ActionApprove        = "approve"
	ActionPlay           = "play"
	ActionSkip           = "skip"
	ActionReorder        = "reorder"
	ActionUploadRejected = "upload_rejected"
	ActionLiveChanged    = "live_changed"
)
