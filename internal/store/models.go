package store

import (
	"time"

	"qbank/api/internal/question"
	"qbank/api/internal/workflow"
)

type User struct {
	ID          string
	DisplayName string
	Role        string
	CreatedAt   time.Time
}

// Commit log entry types. Versioned entries (create, edit) carry the version
// they produced; marker entries (status_change, rights_change) carry the
// version that was current when they were written.
const (
	EntryCreate       = "create"
	EntryEdit         = "edit"
	EntryStatusChange = "status_change"
	EntryRightsChange = "rights_change"
)

// CommitLogEntry is an immutable, append-only record of a commit.
type CommitLogEntry struct {
	ID          int64
	QuestionID  string
	Version     int
	EntryType   string
	CommitterID string
	Message     string
	Changes     question.ChangeList
	CreatedAt   time.Time
}

// Summary is the denormalized, workflow-bearing projection of a question.
type Summary struct {
	QuestionID   string
	CreatorID    string
	LanguageCode string
	Status       workflow.Status
	Excerpt      string
	Deleted      bool
	LastUpdated  time.Time
	CreatedOn    time.Time
}

// Rights records which users manage a question. Created once at question
// creation and mutated only through an explicit rights-change commit.
type Rights struct {
	QuestionID string
	ManagerIDs []string
}

// Draft is one user's provisional change list against a question. Changes,
// BaseVersion and LastUpdated are cleared together on discard; DraftID keeps
// its monotonic sequence across discards.
type Draft struct {
	UserID      string
	QuestionID  string
	Changes     question.ChangeList
	BaseVersion int
	LastUpdated *time.Time
	DraftID     int
}

// HasChanges reports whether the draft currently holds a change list. A
// draft row with cleared fields is a legitimate state and must never have
// its change fields read without this check.
func (d *Draft) HasChanges() bool {
	return d != nil && len(d.Changes) > 0
}
