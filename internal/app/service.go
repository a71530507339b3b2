package app

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"qbank/api/internal/archive"
	"qbank/api/internal/cache"
	"qbank/api/internal/config"
	"qbank/api/internal/question"
	"qbank/api/internal/search"
	"qbank/api/internal/store"
	"qbank/api/internal/util"
	"qbank/api/internal/workflow"
)

// Commit messages for structural commits.
const (
	msgQuestionCreated = "New question created"
	msgMarkedPending   = "Marked question as pending."
	msgMarkedApproved  = "Marked question as approved."
	msgMarkedRejected  = "Marked question as rejected."
	msgPublished       = "Question published."
	msgUnpublished     = "Question unpublished."
	msgRightsUpdated   = "Updated question rights."
)

type dataStore interface {
	EnsureUser(ctx context.Context, userID, displayName string) (store.User, error)
	CreateQuestion(ctx context.Context, q question.Question, entry store.CommitLogEntry, summary store.Summary) error
	GetQuestion(ctx context.Context, id string, version int) (question.Question, error)
	GetQuestions(ctx context.Context, ids []string) ([]*question.Question, error)
	PutVersion(ctx context.Context, q question.Question, entry store.CommitLogEntry) (int, error)
	ListCommitLog(ctx context.Context, id string) ([]store.CommitLogEntry, error)
	ListVersions(ctx context.Context, id string) ([]question.Question, error)
	DeleteQuestion(ctx context.Context, id string, hard bool) error
	GetSummary(ctx context.Context, id string) (store.Summary, error)
	SaveSummary(ctx context.Context, summary store.Summary) error
	UpdateSummaryStatus(ctx context.Context, id string, status workflow.Status, entry store.CommitLogEntry) error
	ListSummariesByCreator(ctx context.Context, creatorID string) ([]store.Summary, error)
	GetRights(ctx context.Context, id string) (store.Rights, error)
	SaveRights(ctx context.Context, rights store.Rights, entry store.CommitLogEntry) error
	GetDraft(ctx context.Context, userID, questionID string) (*store.Draft, error)
	UpsertDraft(ctx context.Context, draft store.Draft) error
	ClearDraft(ctx context.Context, userID, questionID string) error
	Ping(ctx context.Context) error
}

type snapshotCache interface {
	GetMulti(ctx context.Context, keys []string) (map[string]question.Question, error)
	SetMulti(ctx context.Context, entries map[string]question.Question) error
	Invalidate(ctx context.Context, keys ...string) error
}

// permissionChecker is the external permission collaborator: an opaque
// predicate over user capabilities.
type permissionChecker interface {
	HasStatusChangeCapability(ctx context.Context, userID string) (bool, error)
	IsAdmin(ctx context.Context, userID string) (bool, error)
	IsTopicManager(ctx context.Context, userID string) (bool, error)
}

type summaryIndex interface {
	IndexSummary(rec search.SummaryRecord)
	DeleteSummary(id string)
	Search(ctx context.Context, q search.Query) (search.Response, error)
}

type historyArchiver interface {
	Put(ctx context.Context, rec archive.Record) error
}

// Service orchestrates commits, drafts, and workflow transitions over the
// injected collaborators. It owns no global state; wiring and lifecycle
// belong to cmd/api.
type Service struct {
	cfg     config.Config
	store   dataStore
	cache   snapshotCache // nil disables caching
	perms   permissionChecker
	search  summaryIndex    // nil disables search indexing
	archive historyArchiver // nil disables hard-delete archiving
	log     zerolog.Logger
	now     func() time.Time
}

func New(cfg config.Config, dataStore *store.PostgresStore, snapshots *cache.Snapshots, perms permissionChecker, searchService *search.Service, archiveService *archive.Service, log zerolog.Logger) *Service {
	s := &Service{
		cfg:   cfg,
		store: dataStore,
		perms: perms,
		log:   log,
		now:   time.Now,
	}
	// Typed nils must not leak into the interface fields.
	if snapshots != nil {
		s.cache = snapshots
	}
	if searchService != nil {
		s.search = searchService
	}
	if archiveService != nil {
		s.archive = archiveService
	}
	return s
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// CreateQuestion validates and persists version 1 of a new question along
// with its rights record and private summary, and returns the new id.
func (s *Service) CreateQuestion(ctx context.Context, committerID string, data json.RawMessage, schemaVersion int, languageCode string) (string, error) {
	q := question.Question{
		ID:            util.NewID("qst"),
		Data:          data,
		SchemaVersion: schemaVersion,
		LanguageCode:  languageCode,
		Version:       1,
	}
	if err := q.Validate(); err != nil {
		return "", mapDomainErr(err)
	}
	if _, err := s.store.EnsureUser(ctx, committerID, committerID); err != nil {
		return "", err
	}

	now := s.now().UTC()
	summary := store.Summary{
		QuestionID:   q.ID,
		CreatorID:    committerID,
		LanguageCode: q.LanguageCode,
		Status:       workflow.StatusPrivate,
		Excerpt:      question.Excerpt(q.Data),
		LastUpdated:  now,
		CreatedOn:    now,
	}
	entry := store.CommitLogEntry{
		QuestionID:  q.ID,
		Version:     1,
		EntryType:   store.EntryCreate,
		CommitterID: committerID,
		Message:     msgQuestionCreated,
	}

	if err := s.store.CreateQuestion(ctx, q, entry, summary); err != nil {
		s.logCommitFailure(err, q.ID, committerID, nil)
		return "", err
	}

	s.indexSummary(summary)
	return q.ID, nil
}

// GetQuestionByID returns a snapshot, reading through the cache. Version 0
// means the current canonical version.
func (s *Service) GetQuestionByID(ctx context.Context, id string, version int) (question.Question, error) {
	key := cache.Key(id, version)
	if s.cache != nil {
		cached, err := s.cache.GetMulti(ctx, []string{key})
		if err != nil {
			s.log.Warn().Str("key", key).Err(err).Msg("cache read failed, falling through to store")
		} else if q, ok := cached[key]; ok {
			return q, nil
		}
	}

	q, err := s.store.GetQuestion(ctx, id, version)
	if err != nil {
		return question.Question{}, mapDomainErr(err)
	}

	if s.cache != nil {
		if err := s.cache.SetMulti(ctx, map[string]question.Question{key: q}); err != nil {
			s.log.Warn().Str("key", key).Err(err).Msg("cache write failed")
		}
	}
	return q, nil
}

// GetQuestionsByIDs bulk-loads current snapshots through the cache; missing
// ids yield nil slots.
func (s *Service) GetQuestionsByIDs(ctx context.Context, ids []string) ([]*question.Question, error) {
	out := make([]*question.Question, len(ids))

	var cached map[string]question.Question
	if s.cache != nil {
		keys := make([]string, len(ids))
		for i, id := range ids {
			keys[i] = cache.Key(id, 0)
		}
		var err error
		cached, err = s.cache.GetMulti(ctx, keys)
		if err != nil {
			s.log.Warn().Err(err).Msg("cache read failed, falling through to store")
			cached = nil
		}
	}

	var missing []string
	missingAt := make(map[string][]int)
	for i, id := range ids {
		if q, ok := cached[cache.Key(id, 0)]; ok {
			snapshot := q
			out[i] = &snapshot
			continue
		}
		if len(missingAt[id]) == 0 {
			missing = append(missing, id)
		}
		missingAt[id] = append(missingAt[id], i)
	}
	if len(missing) == 0 {
		return out, nil
	}

	loaded, err := s.store.GetQuestions(ctx, missing)
	if err != nil {
		return nil, err
	}

	entries := make(map[string]question.Question)
	for i, id := range missing {
		if loaded[i] == nil {
			continue
		}
		entries[cache.Key(id, 0)] = *loaded[i]
		for _, at := range missingAt[id] {
			snapshot := *loaded[i]
			out[at] = &snapshot
		}
	}
	if s.cache != nil && len(entries) > 0 {
		if err := s.cache.SetMulti(ctx, entries); err != nil {
			s.log.Warn().Err(err).Msg("cache write failed")
		}
	}
	return out, nil
}

// UpdateQuestion applies a change list to the canonical snapshot and commits
// the result as the next version. The editing-permission check runs before
// the change-list engine; a denied caller never reaches it.
func (s *Service) UpdateQuestion(ctx context.Context, committerID, id string, changes question.ChangeList, message string) (int, error) {
	summary, err := s.store.GetSummary(ctx, id)
	if err != nil {
		return 0, mapDomainErr(err)
	}
	if err := s.checkCanEdit(ctx, committerID, summary); err != nil {
		return 0, err
	}

	if len(changes) == 0 {
		return 0, errInvalidChangeList("received an empty change list for question " + id)
	}

	// The commit path reads the canonical snapshot from the store, not the
	// cache: PutVersion's expected-version check serializes concurrent
	// committers against the version that was actually read.
	canonical, err := s.store.GetQuestion(ctx, id, 0)
	if err != nil {
		return 0, mapDomainErr(err)
	}

	updated, err := question.Apply(canonical, changes)
	if err != nil {
		s.logCommitFailure(err, id, committerID, changes)
		return 0, mapDomainErr(err)
	}
	if err := updated.Validate(); err != nil {
		return 0, domainErrorFromInvalidResult(err)
	}

	entry := store.CommitLogEntry{
		QuestionID:  id,
		EntryType:   store.EntryEdit,
		CommitterID: committerID,
		Message:     message,
		Changes:     changes,
	}
	newVersion, err := s.store.PutVersion(ctx, updated, entry)
	if err != nil {
		s.logCommitFailure(err, id, committerID, changes)
		return 0, mapDomainErr(err)
	}

	// The unversioned key must not outlive the commit it predates.
	s.invalidateCache(ctx, cache.Key(id, 0))

	if summary.LanguageCode != updated.LanguageCode || summary.Excerpt != question.Excerpt(updated.Data) {
		summary.LanguageCode = updated.LanguageCode
		summary.Excerpt = question.Excerpt(updated.Data)
		summary.LastUpdated = s.now().UTC()
		if err := s.store.SaveSummary(ctx, summary); err != nil {
			s.logCommitFailure(err, id, committerID, changes)
			return 0, mapDomainErr(err)
		}
		s.indexSummary(summary)
	}

	return newVersion, nil
}

// DeleteQuestion soft-deletes by default. With force, the full history is
// archived to object storage first and then irreversibly removed.
func (s *Service) DeleteQuestion(ctx context.Context, committerID, id string, force bool) error {
	keys := []string{cache.Key(id, 0)}
	if force {
		// The version rows are gone once the hard delete lands; enumerate
		// the pinned keys while the history still exists.
		versions, err := s.store.ListVersions(ctx, id)
		if err != nil {
			return mapDomainErr(err)
		}
		for _, v := range versions {
			keys = append(keys, cache.Key(id, v.Version))
		}
		if s.archive != nil {
			if err := s.archiveHistory(ctx, committerID, id, versions); err != nil {
				return err
			}
		}
	}

	if err := s.store.DeleteQuestion(ctx, id, force); err != nil {
		return mapDomainErr(err)
	}

	s.invalidateCache(ctx, keys...)

	if s.search != nil {
		s.search.DeleteSummary(id)
	}
	return nil
}

func (s *Service) archiveHistory(ctx context.Context, committerID, id string, versions []question.Question) error {
	if len(versions) == 0 {
		return errNotFound("question")
	}
	entries, err := s.store.ListCommitLog(ctx, id)
	if err != nil {
		return mapDomainErr(err)
	}
	rights, err := s.store.GetRights(ctx, id)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return mapDomainErr(err)
	}
	summary, err := s.store.GetSummary(ctx, id)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return mapDomainErr(err)
	}

	rec := archive.Record{
		QuestionID: id,
		ArchivedAt: s.now().UTC(),
		ArchivedBy: committerID,
		Versions:   versions,
		CommitLog:  entries,
		Rights:     rights,
		Summary:    summary,
	}
	if err := s.archive.Put(ctx, rec); err != nil {
		s.logCommitFailure(err, id, committerID, nil)
		return err
	}
	return nil
}

// History returns the question's commit log in commit order.
func (s *Service) History(ctx context.Context, id string) ([]store.CommitLogEntry, error) {
	entries, err := s.store.ListCommitLog(ctx, id)
	if err != nil {
		return nil, mapDomainErr(err)
	}
	if len(entries) == 0 {
		return nil, errNotFound("question")
	}
	return entries, nil
}

// ListSummariesByCreator lists live summaries created by a user.
func (s *Service) ListSummariesByCreator(ctx context.Context, creatorID string) ([]store.Summary, error) {
	return s.store.ListSummariesByCreator(ctx, creatorID)
}

// SearchSummaries runs a full-text search over summary excerpts.
func (s *Service) SearchSummaries(ctx context.Context, q search.Query) (search.Response, error) {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: q.Text}, nil
	}
	return s.search.Search(ctx, q)
}

// UpdateRights replaces a question's manager set through an explicit
// rights-change commit. Only admins may change rights.
func (s *Service) UpdateRights(ctx context.Context, committerID, id string, managerIDs []string) error {
	isAdmin, err := s.perms.IsAdmin(ctx, committerID)
	if err != nil {
		return err
	}
	if !isAdmin {
		return errPermissionDenied("only admins may change question rights")
	}

	summary, err := s.store.GetSummary(ctx, id)
	if err != nil {
		return mapDomainErr(err)
	}

	if managerIDs == nil {
		managerIDs = []string{}
	}
	entry := store.CommitLogEntry{
		QuestionID:  id,
		EntryType:   store.EntryRightsChange,
		CommitterID: committerID,
		Message:     msgRightsUpdated,
	}
	if q, err := s.store.GetQuestion(ctx, summary.QuestionID, 0); err == nil {
		entry.Version = q.Version
	}

	if err := s.store.SaveRights(ctx, store.Rights{QuestionID: id, ManagerIDs: managerIDs}, entry); err != nil {
		return mapDomainErr(err)
	}
	return nil
}

// CanEditQuestion is the read-only editability predicate.
func (s *Service) CanEditQuestion(ctx context.Context, userID, id string) (bool, error) {
	summary, err := s.store.GetSummary(ctx, id)
	if err != nil {
		return false, mapDomainErr(err)
	}
	elevated, err := s.isElevated(ctx, userID)
	if err != nil {
		return false, err
	}
	return workflow.CanEdit(summary.Status, summary.CreatorID == userID, elevated), nil
}

func (s *Service) checkCanEdit(ctx context.Context, userID string, summary store.Summary) error {
	elevated, err := s.isElevated(ctx, userID)
	if err != nil {
		return err
	}
	if !workflow.CanEdit(summary.Status, summary.CreatorID == userID, elevated) {
		return errPermissionDenied("user may not edit this question in its current status")
	}
	return nil
}

func (s *Service) isElevated(ctx context.Context, userID string) (bool, error) {
	isAdmin, err := s.perms.IsAdmin(ctx, userID)
	if err != nil {
		return false, err
	}
	if isAdmin {
		return true, nil
	}
	return s.perms.IsTopicManager(ctx, userID)
}

func (s *Service) indexSummary(summary store.Summary) {
	if s.search == nil {
		return
	}
	s.search.IndexSummary(search.SummaryRecord{
		ID:           summary.QuestionID,
		CreatorID:    summary.CreatorID,
		LanguageCode: summary.LanguageCode,
		Status:       string(summary.Status),
		Excerpt:      summary.Excerpt,
	})
}

func (s *Service) invalidateCache(ctx context.Context, keys ...string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, keys...); err != nil {
		// A failed invalidation degrades with the cache itself: a broken
		// cache also fails reads, so stale hits cannot be served.
		s.log.Error().Strs("keys", keys).Err(err).Msg("cache invalidation failed")
	}
}

// logCommitFailure writes the correlation record for an unexpected failure:
// the question, the change list, and the caller.
func (s *Service) logCommitFailure(err error, questionID, committerID string, changes question.ChangeList) {
	event := s.log.Error().Err(err).Str("question_id", questionID).Str("committer_id", committerID)
	if len(changes) > 0 {
		if encoded, marshalErr := json.Marshal(changes); marshalErr == nil {
			event = event.RawJSON("change_list", encoded)
		}
	}
	event.Msg("question commit failed")
}

// domainErrorFromInvalidResult maps a snapshot validation failure in the
// update path to InvalidChangeList: the change list is what produced the
// invalid result.
func domainErrorFromInvalidResult(err error) error {
	if errors.Is(err, question.ErrInvalidSnapshot) {
		return errInvalidChangeList(err.Error())
	}
	return err
}
