package app

import (
	"context"
	"time"

	"qbank/api/internal/question"
	"qbank/api/internal/store"
)

// EditorData is the payload an editing client opens a question with: the
// canonical snapshot plus whatever draft the user has parked on it.
type EditorData struct {
	Question     question.Question   `json:"question"`
	DraftChanges question.ChangeList `json:"draft_changes,omitempty"`
	DraftID      int                 `json:"draft_id"`
	DraftIsValid bool                `json:"draft_is_valid"`
	CanEdit      bool                `json:"can_edit"`
}

// GetEffectiveQuestion returns what the user should see: the canonical
// snapshot with their draft applied on top, if the draft is still based on
// the current version. A stale draft is ignored, not deleted.
func (s *Service) GetEffectiveQuestion(ctx context.Context, userID, id string) (question.Question, error) {
	canonical, err := s.GetQuestionByID(ctx, id, 0)
	if err != nil {
		return question.Question{}, err
	}

	draft, err := s.store.GetDraft(ctx, userID, id)
	if err != nil {
		return question.Question{}, mapDomainErr(err)
	}
	if !draft.HasChanges() || draft.BaseVersion != canonical.Version {
		return canonical, nil
	}

	merged, err := question.Apply(canonical, draft.Changes)
	if err != nil {
		// A draft that no longer applies is treated like a stale one.
		s.log.Warn().Str("question_id", id).Str("user_id", userID).Err(err).Msg("draft no longer applies, serving canonical snapshot")
		return canonical, nil
	}
	return merged, nil
}

// SaveDraft stores the user's draft change list against the version it was
// authored on. savedAt is when the client authored the save; a zero value
// falls back to the server clock. A concurrent save from another session
// wins if it was authored later: an existing draft with a newer timestamp
// makes this call a no-op.
func (s *Service) SaveDraft(ctx context.Context, userID, id string, changes question.ChangeList, baseVersion int, savedAt time.Time) error {
	base, err := s.store.GetQuestion(ctx, id, baseVersion)
	if err != nil {
		return mapDomainErr(err)
	}
	if len(changes) > 0 {
		merged, err := question.Apply(base, changes)
		if err != nil {
			return mapDomainErr(err)
		}
		if err := merged.Validate(); err != nil {
			return domainErrorFromInvalidResult(err)
		}
	}

	if savedAt.IsZero() {
		savedAt = s.now()
	}
	savedAt = savedAt.UTC()
	existing, err := s.store.GetDraft(ctx, userID, id)
	if err != nil {
		return mapDomainErr(err)
	}
	if existing != nil && existing.LastUpdated != nil && existing.LastUpdated.After(savedAt) {
		return nil
	}

	return s.store.UpsertDraft(ctx, store.Draft{
		UserID:      userID,
		QuestionID:  id,
		Changes:     changes,
		BaseVersion: baseVersion,
		LastUpdated: &savedAt,
	})
}

// DiscardDraft drops the user's draft changes. Discarding an absent draft is
// a no-op; the draft id sequence survives the discard.
func (s *Service) DiscardDraft(ctx context.Context, userID, id string) error {
	return s.store.ClearDraft(ctx, userID, id)
}

// UserQuestionData assembles the editor payload for a user opening a
// question.
func (s *Service) UserQuestionData(ctx context.Context, userID, id string) (EditorData, error) {
	canonical, err := s.GetQuestionByID(ctx, id, 0)
	if err != nil {
		return EditorData{}, err
	}

	data := EditorData{Question: canonical}

	canEdit, err := s.CanEditQuestion(ctx, userID, id)
	if err != nil {
		return EditorData{}, err
	}
	data.CanEdit = canEdit

	draft, err := s.store.GetDraft(ctx, userID, id)
	if err != nil {
		return EditorData{}, mapDomainErr(err)
	}
	if draft != nil {
		data.DraftID = draft.DraftID
		if draft.HasChanges() {
			data.DraftChanges = draft.Changes
			data.DraftIsValid = draft.BaseVersion == canonical.Version
		}
	}
	return data, nil
}
