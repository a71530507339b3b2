// Package archive writes audit archives of a question's full history to
// object storage. A hard delete is irreversible in the primary store, so the
// archive is taken first and the delete is refused if the archive fails.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"

	"qbank/api/internal/question"
	"qbank/api/internal/store"
)

// Record is the archived shape of a question's entire history.
type Record struct {
	QuestionID string                 `json:"questionId"`
	ArchivedAt time.Time              `json:"archivedAt"`
	ArchivedBy string                 `json:"archivedBy"`
	Versions   []question.Question    `json:"versions"`
	CommitLog  []store.CommitLogEntry `json:"commitLog"`
	Rights     store.Rights           `json:"rights"`
	Summary    store.Summary          `json:"summary"`
}

// Service writes archives to a MinIO bucket.
type Service struct {
	client *minio.Client
	bucket string
	log    zerolog.Logger
}

// New connects to object storage and ensures the archive bucket exists.
func New(ctx context.Context, endpoint, accessKey, secretKey, bucket string, useSSL bool, log zerolog.Logger) (*Service, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to object storage: %w", err)
	}

	s := &Service{client: client, bucket: bucket, log: log}
	if err := s.ensureBucket(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Service) ensureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check archive bucket: %w", err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create archive bucket: %w", err)
	}
	return nil
}

// Put stores an archive record as a JSON object.
func (s *Service) Put(ctx context.Context, rec Record) error {
	encoded, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal archive record: %w", err)
	}

	objectName := ObjectName(rec.QuestionID, rec.ArchivedAt)
	_, err = s.client.PutObject(ctx, s.bucket, objectName, bytes.NewReader(encoded), int64(len(encoded)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("put archive object: %w", err)
	}

	s.log.Info().Str("question_id", rec.QuestionID).Str("object", objectName).Msg("archive: history archived")
	return nil
}

// ObjectName is the bucket path for a question's archive.
func ObjectName(questionID string, archivedAt time.Time) string {
	return fmt.Sprintf("questions/%s/%d.json", questionID, archivedAt.Unix())
}
