package app

import (
	"context"

	"qbank/api/internal/store"
	"qbank/api/internal/workflow"
)

// SubmitForReview moves a question into the review queue. Creators may
// submit their own work; no status-change capability is required.
func (s *Service) SubmitForReview(ctx context.Context, userID, id string) error {
	return s.transition(ctx, userID, id, workflow.EventSubmitForReview, msgMarkedPending)
}

// Approve accepts a pending question.
func (s *Service) Approve(ctx context.Context, userID, id string) error {
	return s.transition(ctx, userID, id, workflow.EventApprove, msgMarkedApproved)
}

// Reject returns a pending question to its creator.
func (s *Service) Reject(ctx context.Context, userID, id string) error {
	return s.transition(ctx, userID, id, workflow.EventReject, msgMarkedRejected)
}

// Publish makes a question live. Publishing skips the review queue only for
// questions that never entered it.
func (s *Service) Publish(ctx context.Context, userID, id string) error {
	return s.transition(ctx, userID, id, workflow.EventPublish, msgPublished)
}

// Unpublish takes a published question back to private.
func (s *Service) Unpublish(ctx context.Context, userID, id string) error {
	return s.transition(ctx, userID, id, workflow.EventUnpublish, msgUnpublished)
}

// transition runs the shared status-change pipeline: existence first, then
// capability, then the state machine. A caller without the capability learns
// nothing about whether the transition would have been legal.
func (s *Service) transition(ctx context.Context, userID, id string, event workflow.Event, message string) error {
	summary, err := s.store.GetSummary(ctx, id)
	if err != nil {
		return mapDomainErr(err)
	}

	if workflow.RequiresStatusCapability(event) {
		allowed, err := s.perms.HasStatusChangeCapability(ctx, userID)
		if err != nil {
			return err
		}
		if !allowed {
			return errPermissionDenied("user may not change question status")
		}
	}

	next, err := workflow.Next(summary.Status, event)
	if err != nil {
		return mapDomainErr(err)
	}

	entry := store.CommitLogEntry{
		QuestionID:  id,
		EntryType:   store.EntryStatusChange,
		CommitterID: userID,
		Message:     message,
	}
	if q, err := s.store.GetQuestion(ctx, id, 0); err == nil {
		entry.Version = q.Version
	}

	if err := s.store.UpdateSummaryStatus(ctx, id, next, entry); err != nil {
		return mapDomainErr(err)
	}

	summary.Status = next
	s.indexSummary(summary)
	return nil
}
