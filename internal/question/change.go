package question

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Edit commands as persisted in the commit log and in drafts.
const (
	CmdUpdateLanguageCode = "update_language_code"
	CmdUpdateQuestionData = "update_question_data"
)

// Edit is one element of a change list. The set of edit kinds is closed:
// every kind is a struct in this package and dispatch is exhaustive, so an
// unrecognized command can only surface while decoding, as ErrMalformedEdit.
type Edit interface {
	Cmd() string
	apply(q *Question) error
}

// SetLanguageCode replaces the snapshot's language code.
type SetLanguageCode struct {
	Code string
}

func (e SetLanguageCode) Cmd() string { return CmdUpdateLanguageCode }

func (e SetLanguageCode) apply(q *Question) error {
	if e.Code == "" {
		return fmt.Errorf("%w: %s requires a language code", ErrMalformedEdit, e.Cmd())
	}
	q.LanguageCode = e.Code
	return nil
}

// SetData replaces the snapshot's payload.
type SetData struct {
	Data json.RawMessage
}

func (e SetData) Cmd() string { return CmdUpdateQuestionData }

func (e SetData) apply(q *Question) error {
	if len(bytes.TrimSpace(e.Data)) == 0 {
		return fmt.Errorf("%w: %s requires a payload", ErrMalformedEdit, e.Cmd())
	}
	if !json.Valid(e.Data) {
		return fmt.Errorf("%w: %s payload is not valid JSON", ErrMalformedEdit, e.Cmd())
	}
	q.Data = e.Data
	return nil
}

// ChangeList is an ordered sequence of edits applied atomically.
type ChangeList []Edit

// wireEdit is the tagged JSON form of an edit, matching the shape stored in
// the commit log and in draft rows.
type wireEdit struct {
	Cmd      string          `json:"cmd"`
	NewValue json.RawMessage `json:"new_value"`
}

// MarshalJSON encodes the change list in its tagged wire form.
func (cl ChangeList) MarshalJSON() ([]byte, error) {
	wire := make([]wireEdit, 0, len(cl))
	for _, edit := range cl {
		var value json.RawMessage
		switch e := edit.(type) {
		case SetLanguageCode:
			encoded, err := json.Marshal(e.Code)
			if err != nil {
				return nil, err
			}
			value = encoded
		case SetData:
			value = e.Data
		default:
			return nil, fmt.Errorf("%w: unknown edit kind %T", ErrMalformedEdit, edit)
		}
		wire = append(wire, wireEdit{Cmd: edit.Cmd(), NewValue: value})
	}
	return json.Marshal(wire)
}

// UnmarshalJSON decodes the tagged wire form, rejecting unknown commands and
// malformed values with ErrMalformedEdit.
func (cl *ChangeList) UnmarshalJSON(data []byte) error {
	var wire []wireEdit
	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEdit, err)
	}
	decoded := make(ChangeList, 0, len(wire))
	for _, entry := range wire {
		switch entry.Cmd {
		case CmdUpdateLanguageCode:
			var code string
			if err := json.Unmarshal(entry.NewValue, &code); err != nil {
				return fmt.Errorf("%w: %s value: %v", ErrMalformedEdit, entry.Cmd, err)
			}
			decoded = append(decoded, SetLanguageCode{Code: code})
		case CmdUpdateQuestionData:
			if len(bytes.TrimSpace(entry.NewValue)) == 0 {
				return fmt.Errorf("%w: %s value is empty", ErrMalformedEdit, entry.Cmd)
			}
			decoded = append(decoded, SetData{Data: entry.NewValue})
		default:
			return fmt.Errorf("%w: unknown command %q", ErrMalformedEdit, entry.Cmd)
		}
	}
	*cl = decoded
	return nil
}
