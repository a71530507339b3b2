package search

import (
	"context"

	"github.com/rs/zerolog"
)

// Service is the facade that tries Meilisearch first and falls back to
// Postgres full-text search.
type Service struct {
	meili *Meili
	pgfts *PgFTS
	log   zerolog.Logger
}

// NewService creates a search service. meili may be nil if Meilisearch is
// not configured.
func NewService(meili *Meili, pgfts *PgFTS, log zerolog.Logger) *Service {
	return &Service{meili: meili, pgfts: pgfts, log: log}
}

// Search tries Meilisearch if healthy, otherwise falls back to Postgres.
func (s *Service) Search(ctx context.Context, q Query) (Response, error) {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}, nil
		}
		s.log.Warn().Err(err).Msg("search: meilisearch error, falling back to pgfts")
	}

	results, total, err := s.pgfts.Search(q)
	if err != nil {
		return Response{}, err
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}, nil
}

// IndexSummary indexes a summary (fire-and-forget to Meilisearch).
func (s *Service) IndexSummary(rec SummaryRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexSummary(rec); err != nil {
			s.log.Warn().Str("id", rec.ID).Err(err).Msg("search: index summary")
		}
	}()
}

// DeleteSummary removes a summary from the index (fire-and-forget).
func (s *Service) DeleteSummary(id string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteSummary(id); err != nil {
			s.log.Warn().Str("id", id).Err(err).Msg("search: delete summary")
		}
	}()
}

// ReindexAllFromPG pushes every live summary into Meilisearch.
func (s *Service) ReindexAllFromPG(ctx context.Context) {
	if s.meili == nil || !s.meili.Healthy() || s.pgfts == nil {
		return
	}
	records, err := s.pgfts.LoadAllRecords(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("search: reindex load failed")
		return
	}
	if err := s.meili.IndexSummaries(records); err != nil {
		s.log.Warn().Err(err).Msg("search: reindex summaries")
	}
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
