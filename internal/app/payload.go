package app

import (
	"time"

	"qbank/api/internal/question"
	"qbank/api/internal/store"
)

// Wire shapes for store records. Domain structs stay tag-free; the HTTP
// surface owns its field names.

type summaryPayload struct {
	QuestionID   string    `json:"questionId"`
	CreatorID    string    `json:"creatorId"`
	LanguageCode string    `json:"languageCode"`
	Status       string    `json:"status"`
	Excerpt      string    `json:"excerpt"`
	LastUpdated  time.Time `json:"lastUpdated"`
	CreatedOn    time.Time `json:"createdOn"`
}

type commitEntryPayload struct {
	QuestionID  string              `json:"questionId"`
	Version     int                 `json:"version"`
	EntryType   string              `json:"entryType"`
	CommitterID string              `json:"committerId"`
	Message     string              `json:"message"`
	Changes     question.ChangeList `json:"changes,omitempty"`
	CreatedAt   time.Time           `json:"createdAt"`
}

func questionsPayload(items []*question.Question) []*question.Question {
	if items == nil {
		return []*question.Question{}
	}
	return items
}

func summariesPayload(items []store.Summary) []summaryPayload {
	out := make([]summaryPayload, 0, len(items))
	for _, item := range items {
		out = append(out, summaryPayload{
			QuestionID:   item.QuestionID,
			CreatorID:    item.CreatorID,
			LanguageCode: item.LanguageCode,
			Status:       string(item.Status),
			Excerpt:      item.Excerpt,
			LastUpdated:  item.LastUpdated,
			CreatedOn:    item.CreatedOn,
		})
	}
	return out
}

func historyPayload(entries []store.CommitLogEntry) []commitEntryPayload {
	out := make([]commitEntryPayload, 0, len(entries))
	for _, entry := range entries {
		out = append(out, commitEntryPayload{
			QuestionID:  entry.QuestionID,
			Version:     entry.Version,
			EntryType:   entry.EntryType,
			CommitterID: entry.CommitterID,
			Message:     entry.Message,
			Changes:     entry.Changes,
			CreatedAt:   entry.CreatedAt,
		})
	}
	return out
}
