// Package workflow implements the question status state machine and the
// editability rule derived from it. It is pure: capability checks against the
// caller happen in the service layer.
package workflow

import "errors"

type Status string

const (
	StatusPrivate  Status = "private"
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

type Event string

const (
	EventSubmitForReview Event = "submit_for_review"
	EventApprove         Event = "approve"
	EventReject          Event = "reject"
	EventPublish         Event = "publish"
	EventUnpublish       Event = "unpublish"
)

var (
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrAlreadyPublished   = errors.New("question is already published")
	ErrAlreadyUnpublished = errors.New("question is already unpublished")
)

// Next returns the status that results from applying an event, or an error
// when the transition is not allowed from the current status. Approve and
// reject only operate on pending questions.
func Next(from Status, event Event) (Status, error) {
	switch event {
	case EventSubmitForReview:
		if from != StatusPrivate {
			return "", ErrInvalidTransition
		}
		return StatusPending, nil
	case EventApprove:
		if from != StatusPending {
			return "", ErrInvalidTransition
		}
		return StatusApproved, nil
	case EventReject:
		if from != StatusPending {
			return "", ErrInvalidTransition
		}
		return StatusRejected, nil
	case EventPublish:
		switch from {
		case StatusApproved:
			return "", ErrAlreadyPublished
		case StatusPrivate, StatusRejected:
			return StatusApproved, nil
		default:
			return "", ErrInvalidTransition
		}
	case EventUnpublish:
		if from != StatusApproved {
			return "", ErrAlreadyUnpublished
		}
		return StatusPrivate, nil
	default:
		return "", ErrInvalidTransition
	}
}

// RequiresStatusCapability reports whether an event is guarded by the
// status-change capability. Submitting for review is open to any committer.
func RequiresStatusCapability(event Event) bool {
	return event != EventSubmitForReview
}

// CanEdit is the editability predicate: the creator may edit private or
// rejected questions, elevated users (admin or topic manager) may edit
// approved ones, and nobody edits a question while it is pending review.
func CanEdit(status Status, isCreator, isElevated bool) bool {
	if status == StatusPending {
		return false
	}
	if (status == StatusPrivate || status == StatusRejected) && isCreator {
		return true
	}
	return isElevated && status == StatusApproved
}

// Valid reports whether s is one of the recognized statuses.
func Valid(s Status) bool {
	switch s {
	case StatusPrivate, StatusPending, StatusApproved, StatusRejected:
		return true
	default:
		return false
	}
}
