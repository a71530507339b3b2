package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"qbank/api/internal/question"
	"qbank/api/internal/workflow"
)

var (
	// ErrNotFound is returned when a question, summary, or rights record is
	// absent (or soft-deleted) where one is required.
	ErrNotFound = errors.New("not found")
	// ErrVersionConflict is returned when a concurrent writer committed a
	// newer version between this writer's read and its write.
	ErrVersionConflict = errors.New("version conflict")
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// EnsureUser upserts a user record and returns it with its stored role.
func (s *PostgresStore) EnsureUser(ctx context.Context, userID, displayName string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users (id, display_name)
		VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET display_name = EXCLUDED.display_name
		RETURNING id, display_name, role, created_at
	`, userID, displayName).Scan(&user.ID, &user.DisplayName, &user.Role, &user.CreatedAt)
	if err != nil {
		return User{}, fmt.Errorf("ensure user: %w", err)
	}
	return user, nil
}

// GetUserRole returns the stored role for a user, defaulting to viewer for
// unknown users.
func (s *PostgresStore) GetUserRole(ctx context.Context, userID string) (string, error) {
	var role string
	err := s.db.QueryRowContext(ctx, `SELECT role FROM users WHERE id=$1`, userID).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return "viewer", nil
	}
	if err != nil {
		return "", fmt.Errorf("read user role: %w", err)
	}
	return role, nil
}

// CreateQuestion writes version 1 of a question, its create commit entry,
// an empty rights record, and the initial summary, in one transaction.
func (s *PostgresStore) CreateQuestion(ctx context.Context, q question.Question, entry CommitLogEntry, summary Summary) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO questions (id, data, schema_version, language_code, version)
		VALUES ($1, $2, $3, $4, 1)
	`, q.ID, []byte(q.Data), q.SchemaVersion, q.LanguageCode); err != nil {
		return fmt.Errorf("insert question: %w", err)
	}

	if err := insertVersionRow(ctx, tx, q, 1); err != nil {
		return err
	}
	if err := insertCommitEntry(ctx, tx, entry); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO rights (question_id, manager_ids) VALUES ($1, '[]')
	`, q.ID); err != nil {
		return fmt.Errorf("insert rights: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO summaries (question_id, creator_id, language_code, status, excerpt, last_updated, created_on)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, summary.QuestionID, summary.CreatorID, summary.LanguageCode, string(summary.Status), summary.Excerpt, summary.LastUpdated, summary.CreatedOn); err != nil {
		return fmt.Errorf("insert summary: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create tx: %w", err)
	}
	return nil
}

// GetQuestion loads a snapshot. Version 0 means the current canonical
// version; any other value pins a historical version.
func (s *PostgresStore) GetQuestion(ctx context.Context, id string, version int) (question.Question, error) {
	var q question.Question
	var data []byte
	var err error
	if version == 0 {
		err = s.db.QueryRowContext(ctx, `
			SELECT id, data, schema_version, language_code, version
			FROM questions
			WHERE id=$1 AND NOT deleted
		`, id).Scan(&q.ID, &data, &q.SchemaVersion, &q.LanguageCode, &q.Version)
	} else {
		err = s.db.QueryRowContext(ctx, `
			SELECT v.question_id, v.data, v.schema_version, v.language_code, v.version
			FROM question_versions v
			JOIN questions h ON h.id = v.question_id
			WHERE v.question_id=$1 AND v.version=$2 AND NOT h.deleted
		`, id, version).Scan(&q.ID, &data, &q.SchemaVersion, &q.LanguageCode, &q.Version)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return question.Question{}, ErrNotFound
	}
	if err != nil {
		return question.Question{}, fmt.Errorf("get question: %w", err)
	}
	q.Data = json.RawMessage(data)
	return q, nil
}

// GetQuestions loads current snapshots in bulk with a single query. Missing
// ids yield nil slots, preserving input order.
func (s *PostgresStore) GetQuestions(ctx context.Context, ids []string) ([]*question.Question, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, data, schema_version, language_code, version
		FROM questions
		WHERE id = ANY($1) AND NOT deleted
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("get questions: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]question.Question, len(ids))
	for rows.Next() {
		var q question.Question
		var data []byte
		if err := rows.Scan(&q.ID, &data, &q.SchemaVersion, &q.LanguageCode, &q.Version); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		q.Data = json.RawMessage(data)
		byID[q.ID] = q
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate questions: %w", err)
	}

	results := make([]*question.Question, len(ids))
	for i, id := range ids {
		if q, ok := byID[id]; ok {
			snapshot := q
			results[i] = &snapshot
		}
	}
	return results, nil
}

// PutVersion persists q as the next version of its question together with
// the commit entry that produced it. The head row is locked for the duration
// of the transaction; q.Version must equal the current canonical version or
// the write fails with ErrVersionConflict, so concurrent committers
// serialize and version numbers stay gap-free.
func (s *PostgresStore) PutVersion(ctx context.Context, q question.Question, entry CommitLogEntry) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin commit tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var current int
	var deleted bool
	err = tx.QueryRowContext(ctx, `
		SELECT version, deleted FROM questions WHERE id=$1 FOR UPDATE
	`, q.ID).Scan(&current, &deleted)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("lock question head: %w", err)
	}
	if deleted {
		return 0, ErrNotFound
	}
	if q.Version != current {
		return 0, ErrVersionConflict
	}

	next := current + 1
	snapshot := q
	snapshot.Version = next
	if err := insertVersionRow(ctx, tx, snapshot, next); err != nil {
		return 0, err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE questions
		SET data=$2, schema_version=$3, language_code=$4, version=$5, updated_at=NOW()
		WHERE id=$1
	`, q.ID, []byte(q.Data), q.SchemaVersion, q.LanguageCode, next); err != nil {
		return 0, fmt.Errorf("update question head: %w", err)
	}

	entry.Version = next
	if err := insertCommitEntry(ctx, tx, entry); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit version tx: %w", err)
	}
	return next, nil
}

func insertVersionRow(ctx context.Context, tx *sql.Tx, q question.Question, version int) error {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO question_versions (question_id, version, data, schema_version, language_code)
		VALUES ($1, $2, $3, $4, $5)
	`, q.ID, version, []byte(q.Data), q.SchemaVersion, q.LanguageCode); err != nil {
		return fmt.Errorf("insert question version: %w", err)
	}
	return nil
}

func insertCommitEntry(ctx context.Context, tx *sql.Tx, entry CommitLogEntry) error {
	changes, err := marshalChanges(entry.Changes)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO commit_log (question_id, version, entry_type, committer_id, message, changes)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, entry.QuestionID, entry.Version, entry.EntryType, entry.CommitterID, entry.Message, changes); err != nil {
		return fmt.Errorf("insert commit entry: %w", err)
	}
	return nil
}

func marshalChanges(changes question.ChangeList) (any, error) {
	if len(changes) == 0 {
		return nil, nil
	}
	encoded, err := json.Marshal(changes)
	if err != nil {
		return nil, fmt.Errorf("marshal change list: %w", err)
	}
	return encoded, nil
}

// ListCommitLog returns every commit entry for a question in commit order.
func (s *PostgresStore) ListCommitLog(ctx context.Context, id string) ([]CommitLogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, question_id, version, entry_type, committer_id, message, changes, created_at
		FROM commit_log
		WHERE question_id=$1
		ORDER BY id
	`, id)
	if err != nil {
		return nil, fmt.Errorf("list commit log: %w", err)
	}
	defer rows.Close()

	entries := make([]CommitLogEntry, 0)
	for rows.Next() {
		var entry CommitLogEntry
		var changes []byte
		if err := rows.Scan(&entry.ID, &entry.QuestionID, &entry.Version, &entry.EntryType, &entry.CommitterID, &entry.Message, &changes, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan commit entry: %w", err)
		}
		if len(changes) > 0 {
			if err := json.Unmarshal(changes, &entry.Changes); err != nil {
				return nil, fmt.Errorf("decode commit changes: %w", err)
			}
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate commit log: %w", err)
	}
	return entries, nil
}

// ListVersions returns every historical snapshot of a question in version
// order, including soft-deleted questions (history survives soft deletes).
func (s *PostgresStore) ListVersions(ctx context.Context, id string) ([]question.Question, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT question_id, version, data, schema_version, language_code
		FROM question_versions
		WHERE question_id=$1
		ORDER BY version
	`, id)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	versions := make([]question.Question, 0)
	for rows.Next() {
		var q question.Question
		var data []byte
		if err := rows.Scan(&q.ID, &q.Version, &data, &q.SchemaVersion, &q.LanguageCode); err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		q.Data = json.RawMessage(data)
		versions = append(versions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate versions: %w", err)
	}
	return versions, nil
}

// DeleteQuestion soft-deletes by default, keeping all versions and the
// commit log for audit. A hard delete removes everything, drafts included.
// Both forms return ErrNotFound when the question is already gone.
func (s *PostgresStore) DeleteQuestion(ctx context.Context, id string, hard bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var deleted bool
	err = tx.QueryRowContext(ctx, `SELECT deleted FROM questions WHERE id=$1 FOR UPDATE`, id).Scan(&deleted)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("lock question head: %w", err)
	}

	if hard {
		for _, stmt := range []string{
			`DELETE FROM drafts WHERE question_id=$1`,
			`DELETE FROM commit_log WHERE question_id=$1`,
			`DELETE FROM rights WHERE question_id=$1`,
			`DELETE FROM summaries WHERE question_id=$1`,
			`DELETE FROM question_versions WHERE question_id=$1`,
			`DELETE FROM questions WHERE id=$1`,
		} {
			if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
				return fmt.Errorf("hard delete question: %w", err)
			}
		}
	} else {
		if deleted {
			return ErrNotFound
		}
		if _, err := tx.ExecContext(ctx, `UPDATE questions SET deleted=TRUE, updated_at=NOW() WHERE id=$1`, id); err != nil {
			return fmt.Errorf("soft delete question: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE summaries SET deleted=TRUE, last_updated=NOW() WHERE question_id=$1`, id); err != nil {
			return fmt.Errorf("soft delete summary: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete tx: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetSummary(ctx context.Context, id string) (Summary, error) {
	var summary Summary
	var status string
	err := s.db.QueryRowContext(ctx, `
		SELECT question_id, creator_id, language_code, status, excerpt, deleted, last_updated, created_on
		FROM summaries
		WHERE question_id=$1 AND NOT deleted
	`, id).Scan(&summary.QuestionID, &summary.CreatorID, &summary.LanguageCode, &status, &summary.Excerpt, &summary.Deleted, &summary.LastUpdated, &summary.CreatedOn)
	if errors.Is(err, sql.ErrNoRows) {
		return Summary{}, ErrNotFound
	}
	if err != nil {
		return Summary{}, fmt.Errorf("get summary: %w", err)
	}
	summary.Status = workflow.Status(status)
	return summary, nil
}

// SaveSummary refreshes the denormalized fields recomputed on commit.
func (s *PostgresStore) SaveSummary(ctx context.Context, summary Summary) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE summaries
		SET language_code=$2, excerpt=$3, last_updated=$4
		WHERE question_id=$1 AND NOT deleted
	`, summary.QuestionID, summary.LanguageCode, summary.Excerpt, summary.LastUpdated)
	if err != nil {
		return fmt.Errorf("save summary: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("save summary rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateSummaryStatus performs a status-only transition and records the
// status-change commit entry in the same transaction.
func (s *PostgresStore) UpdateSummaryStatus(ctx context.Context, id string, status workflow.Status, entry CommitLogEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin status tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
		UPDATE summaries SET status=$2, last_updated=NOW() WHERE question_id=$1 AND NOT deleted
	`, id, string(status))
	if err != nil {
		return fmt.Errorf("update summary status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update summary status rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	if err := insertCommitEntry(ctx, tx, entry); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit status tx: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListSummariesByCreator(ctx context.Context, creatorID string) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT question_id, creator_id, language_code, status, excerpt, deleted, last_updated, created_on
		FROM summaries
		WHERE creator_id=$1 AND NOT deleted
		ORDER BY last_updated DESC
	`, creatorID)
	if err != nil {
		return nil, fmt.Errorf("list summaries: %w", err)
	}
	defer rows.Close()

	summaries := make([]Summary, 0)
	for rows.Next() {
		var summary Summary
		var status string
		if err := rows.Scan(&summary.QuestionID, &summary.CreatorID, &summary.LanguageCode, &status, &summary.Excerpt, &summary.Deleted, &summary.LastUpdated, &summary.CreatedOn); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		summary.Status = workflow.Status(status)
		summaries = append(summaries, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate summaries: %w", err)
	}
	return summaries, nil
}

func (s *PostgresStore) GetRights(ctx context.Context, id string) (Rights, error) {
	var rights Rights
	var managers []byte
	err := s.db.QueryRowContext(ctx, `SELECT question_id, manager_ids FROM rights WHERE question_id=$1`, id).
		Scan(&rights.QuestionID, &managers)
	if errors.Is(err, sql.ErrNoRows) {
		return Rights{}, ErrNotFound
	}
	if err != nil {
		return Rights{}, fmt.Errorf("get rights: %w", err)
	}
	if err := json.Unmarshal(managers, &rights.ManagerIDs); err != nil {
		return Rights{}, fmt.Errorf("decode manager ids: %w", err)
	}
	return rights, nil
}

// SaveRights replaces the manager set and records the rights-change commit
// in the same transaction.
func (s *PostgresStore) SaveRights(ctx context.Context, rights Rights, entry CommitLogEntry) error {
	managers, err := json.Marshal(rights.ManagerIDs)
	if err != nil {
		return fmt.Errorf("marshal manager ids: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin rights tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `UPDATE rights SET manager_ids=$2 WHERE question_id=$1`, rights.QuestionID, managers)
	if err != nil {
		return fmt.Errorf("save rights: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("save rights rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	if err := insertCommitEntry(ctx, tx, entry); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit rights tx: %w", err)
	}
	return nil
}

// GetDraft returns nil without error when no draft row exists; callers must
// treat an absent draft as an explicit state.
func (s *PostgresStore) GetDraft(ctx context.Context, userID, questionID string) (*Draft, error) {
	var draft Draft
	var changes []byte
	var baseVersion sql.NullInt64
	var lastUpdated sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, question_id, changes, base_version, last_updated, draft_id
		FROM drafts
		WHERE user_id=$1 AND question_id=$2
	`, userID, questionID).Scan(&draft.UserID, &draft.QuestionID, &changes, &baseVersion, &lastUpdated, &draft.DraftID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get draft: %w", err)
	}
	if len(changes) > 0 {
		if err := json.Unmarshal(changes, &draft.Changes); err != nil {
			return nil, fmt.Errorf("decode draft changes: %w", err)
		}
	}
	if baseVersion.Valid {
		draft.BaseVersion = int(baseVersion.Int64)
	}
	if lastUpdated.Valid {
		t := lastUpdated.Time
		draft.LastUpdated = &t
	}
	return &draft, nil
}

// UpsertDraft replaces a user's draft, incrementing draft_id. A fresh row
// starts its draft_id sequence at 1 (created at 0, bumped by the save).
func (s *PostgresStore) UpsertDraft(ctx context.Context, draft Draft) error {
	changes, err := marshalChanges(draft.Changes)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO drafts (user_id, question_id, changes, base_version, last_updated, draft_id)
		VALUES ($1, $2, $3, $4, $5, 1)
		ON CONFLICT (user_id, question_id) DO UPDATE
		SET changes=EXCLUDED.changes,
			base_version=EXCLUDED.base_version,
			last_updated=EXCLUDED.last_updated,
			draft_id=drafts.draft_id + 1
	`, draft.UserID, draft.QuestionID, changes, draft.BaseVersion, draft.LastUpdated); err != nil {
		return fmt.Errorf("upsert draft: %w", err)
	}
	return nil
}

// ClearDraft resets the draft's change fields but keeps the row so draft_id
// continues its sequence. Clearing an absent draft is a no-op.
func (s *PostgresStore) ClearDraft(ctx context.Context, userID, questionID string) error {
	if _, err := s.db.ExecContext(ctx, `
		UPDATE drafts
		SET changes=NULL, base_version=NULL, last_updated=NULL
		WHERE user_id=$1 AND question_id=$2
	`, userID, questionID); err != nil {
		return fmt.Errorf("clear draft: %w", err)
	}
	return nil
}
