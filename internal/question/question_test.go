package question

import (
	"encoding/json"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseQuestion() Question {
	return Question{
		ID:            "qst_test",
		Data:          json.RawMessage(`{"content":{"html":"<p>original</p>"}}`),
		SchemaVersion: 48,
		LanguageCode:  "en",
		Version:       3,
	}
}

func TestApplyEmptyChangeListIsIdentity(t *testing.T) {
	q := baseQuestion()
	got, err := Apply(q, nil)
	require.NoError(t, err)
	assert.Equal(t, q, got)
}

func TestApplyDoesNotMutateInput(t *testing.T) {
	q := baseQuestion()
	_, err := Apply(q, ChangeList{SetLanguageCode{Code: "de"}})
	require.NoError(t, err)
	assert.Equal(t, "en", q.LanguageCode)
}

func TestApplyRunsEditsInOrder(t *testing.T) {
	changes := ChangeList{
		SetLanguageCode{Code: "de"},
		SetData{Data: json.RawMessage(`{"content":{"html":"<p>first</p>"}}`)},
		SetData{Data: json.RawMessage(`{"content":{"html":"<p>second</p>"}}`)},
		SetLanguageCode{Code: "pt"},
	}
	got, err := Apply(baseQuestion(), changes)
	require.NoError(t, err)
	assert.Equal(t, "pt", got.LanguageCode)
	assert.JSONEq(t, `{"content":{"html":"<p>second</p>"}}`, string(got.Data))
	assert.Equal(t, 3, got.Version, "applying edits must not bump the version")
}

func TestApplyAbortsWholeListOnBadEdit(t *testing.T) {
	changes := ChangeList{
		SetLanguageCode{Code: "de"},
		SetData{Data: json.RawMessage(`{not json`)},
	}
	got, err := Apply(baseQuestion(), changes)
	require.ErrorIs(t, err, ErrMalformedEdit)
	assert.Equal(t, Question{}, got, "a failed application must yield no partial result")
}

func TestChangeListDecodeRejectsUnknownCommand(t *testing.T) {
	var cl ChangeList
	err := json.Unmarshal([]byte(`[{"cmd":"rename_question","new_value":"x"}]`), &cl)
	require.ErrorIs(t, err, ErrMalformedEdit)
}

func TestChangeListRoundTripsWireForm(t *testing.T) {
	original := ChangeList{
		SetLanguageCode{Code: "de"},
		SetData{Data: json.RawMessage(`{"content":{"html":"<p>x</p>"}}`)},
	}
	encoded, err := json.Marshal(original)
	require.NoError(t, err)
	assert.Contains(t, string(encoded), `"cmd":"update_language_code"`)

	var decoded ChangeList
	require.NoError(t, json.Unmarshal(encoded, &decoded))
	require.Len(t, decoded, 2)
	assert.Equal(t, "de", decoded[0].(SetLanguageCode).Code)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Question)
		wantErr bool
	}{
		{"valid", func(*Question) {}, false},
		{"empty data", func(q *Question) { q.Data = nil }, true},
		{"null data", func(q *Question) { q.Data = json.RawMessage(`null`) }, true},
		{"invalid json", func(q *Question) { q.Data = json.RawMessage(`{`) }, true},
		{"missing language", func(q *Question) { q.LanguageCode = "" }, true},
		{"bogus language", func(q *Question) { q.LanguageCode = "not a tag" }, true},
		{"negative schema version", func(q *Question) { q.SchemaVersion = -1 }, true},
		{"regional language", func(q *Question) { q.LanguageCode = "pt-BR" }, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			q := baseQuestion()
			tc.mutate(&q)
			err := q.Validate()
			if tc.wantErr {
				require.ErrorIs(t, err, ErrInvalidSnapshot)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestExcerpt(t *testing.T) {
	assert.Equal(t, "<p>hello</p>", Excerpt(json.RawMessage(`{"content":{"html":"<p>hello</p>"}}`)))
	assert.Equal(t, `{"other":true}`, Excerpt(json.RawMessage(`{"other":true}`)))
}

func TestExcerptTruncatesOnRuneBoundary(t *testing.T) {
	// 100x a 3-byte rune is 300 bytes; a byte-indexed cut at 280 would land
	// mid-rune.
	long := strings.Repeat("日", 100)
	data, err := json.Marshal(map[string]any{"content": map[string]any{"html": long}})
	require.NoError(t, err)

	got := Excerpt(data)
	assert.True(t, utf8.ValidString(got), "excerpt must not split a rune")
	assert.LessOrEqual(t, len(got), 280)
	assert.True(t, strings.HasPrefix(long, got))
}
