// Package question holds the versioned question domain: the snapshot type,
// the closed set of edits, and the pure change-list engine that produces new
// snapshots from ordered edit sequences.
package question

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

var (
	// ErrMalformedEdit means an edit could not be interpreted; the whole
	// change list is rejected and no partial result is observable.
	ErrMalformedEdit = errors.New("malformed edit")
	// ErrInvalidSnapshot means a snapshot fails its structural constraints.
	ErrInvalidSnapshot = errors.New("invalid question snapshot")
)

// Question is an immutable snapshot of a versioned question document.
// Data is opaque to the engine beyond being replaceable by edits.
type Question struct {
	ID            string          `json:"id"`
	Data          json.RawMessage `json:"data"`
	SchemaVersion int             `json:"schemaVersion" validate:"gte=0"`
	LanguageCode  string          `json:"languageCode" validate:"required,bcp47_language_tag"`
	Version       int             `json:"version"`
}

var validate = validator.New()

// Validate checks the structural constraints every persisted snapshot must
// satisfy: a non-empty payload, a recognized language code, and a
// non-negative schema version.
func (q Question) Validate() error {
	trimmed := bytes.TrimSpace(q.Data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return fmt.Errorf("%w: question data must not be empty", ErrInvalidSnapshot)
	}
	if !json.Valid(q.Data) {
		return fmt.Errorf("%w: question data is not valid JSON", ErrInvalidSnapshot)
	}
	if err := validate.Struct(q); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}
	return nil
}

// Apply runs a change list against a snapshot and returns the resulting
// snapshot. It is pure: the input is never mutated, edits apply strictly in
// list order, and an empty change list returns the input unchanged. Any edit
// failure aborts the whole application.
func Apply(q Question, changes ChangeList) (Question, error) {
	for _, change := range changes {
		if err := change.apply(&q); err != nil {
			return Question{}, err
		}
	}
	return q, nil
}

// Excerpt derives a short human-readable excerpt from a question payload for
// summary listings. The canonical payload shape carries the rendered body at
// content.html; anything else falls back to the truncated raw payload.
func Excerpt(data json.RawMessage) string {
	var payload struct {
		Content struct {
			HTML string `json:"html"`
		} `json:"content"`
	}
	if err := json.Unmarshal(data, &payload); err == nil && payload.Content.HTML != "" {
		return truncate(payload.Content.HTML, 280)
	}
	return truncate(string(bytes.TrimSpace(data)), 280)
}

// truncate cuts s to at most max bytes without splitting a rune.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}
