package batch

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"

	"github.com/openlearn-labs/retirement/internal/domain"
	"github.com/openlearn-labs/retirement/internal/platform/objectstore"
	"github.com/openlearn-labs/retirement/internal/platform/restclient"
)

const archiveDateFormat = "2006-01-02"

// ArchiveSource fetches completed records and deletes them after their
// archive is confirmed. Implemented by the LMS adapter.
type ArchiveSource interface {
	LearnersByDateRange(ctx context.Context, state string, start, end time.Time) ([]domain.LearnerRecord, error)
	BulkCleanup(ctx context.Context, usernames []string) error
}

// archiveRecord is the subset of a learner record that survives into the
// archive. Nothing beyond these fields is ever serialized.
type archiveRecord struct {
	UserID           int64     `json:"user_id"`
	OriginalUsername string    `json:"original_username"`
	OriginalEmail    string    `json:"original_email"`
	OriginalName     string    `json:"original_name"`
	RetiredUsername  string    `json:"retired_username"`
	RetiredEmail     string    `json:"retired_email"`
	State            string    `json:"state"`
	Created          time.Time `json:"created"`
	Modified         time.Time `json:"modified"`
}

// Archiver uploads COMPLETE retirement records to the object store in
// fixed-size batches and then permanently deletes them from the LMS.
// Upload is confirmed per batch before that batch's records are deleted;
// a failed upload leaves its records untouched.
type Archiver struct {
	logger    *slog.Logger
	source    ArchiveSource
	store     objectstore.Store
	keyPrefix string
	batchSize int
	dryRun    bool
	policy    restclient.Policy
}

func NewArchiver(logger *slog.Logger, source ArchiveSource, store objectstore.Store, keyPrefix string, batchSize int, dryRun bool) *Archiver {
	policy := restclient.DefaultPolicy()
	policy.Classify = classifyStorage
	return &Archiver{
		logger:    logger,
		source:    source,
		store:     store,
		keyPrefix: strings.TrimRight(keyPrefix, "/"),
		batchSize: batchSize,
		dryRun:    dryRun,
		policy:    policy,
	}
}

// Run archives every COMPLETE record created inside [start, end]. The
// caller must have verified end is at least the cool-off period in the
// past.
func (a *Archiver) Run(ctx context.Context, start, end time.Time) error {
	learners, err := a.source.LearnersByDateRange(ctx, domain.StateComplete, start, end)
	if err != nil {
		return fmt.Errorf("fetch completed retirements: %w", err)
	}
	if len(learners) == 0 {
		a.logger.Info("no completed retirements in window",
			"start", start.Format(archiveDateFormat), "end", end.Format(archiveDateFormat))
		return nil
	}
	if err := a.store.EnsureBucket(ctx); err != nil {
		return fmt.Errorf("prepare archive bucket: %w", err)
	}

	batches := 0
	for offset := 0; offset < len(learners); offset += a.batchSize {
		limit := offset + a.batchSize
		if limit > len(learners) {
			limit = len(learners)
		}
		if err := a.archiveBatch(ctx, learners[offset:limit], start, end, batches); err != nil {
			return err
		}
		batches++
	}
	a.logger.Info("archive run complete",
		"learners", len(learners), "batches", batches, "dry_run", a.dryRun)
	return nil
}

func (a *Archiver) archiveBatch(ctx context.Context, learners []domain.LearnerRecord, start, end time.Time, index int) error {
	body, err := encodeArchive(learners)
	if err != nil {
		return err
	}
	key := a.archiveKey(start, end, index)

	err = a.policy.Do(ctx, func() error {
		return a.store.Put(ctx, key, bytes.NewReader(body), int64(len(body)), "application/gzip")
	})
	if err != nil {
		return fmt.Errorf("upload archive %s: %w", key, err)
	}
	a.logger.Info("archive batch uploaded", "key", key, "learners", len(learners))

	if a.dryRun {
		a.logger.Info("dry run, keeping LMS records", "key", key)
		return nil
	}

	usernames := make([]string, 0, len(learners))
	for _, l := range learners {
		usernames = append(usernames, l.OriginalUsername)
	}
	if err := a.source.BulkCleanup(ctx, usernames); err != nil {
		// The archive exists but the source records do not go away; the
		// next run re-archives and retries the delete.
		return &CleanupError{Key: key, Err: err}
	}
	return nil
}

// CleanupError means a batch was archived but its LMS records could not
// be deleted. The records are safe to re-archive on the next run.
type CleanupError struct {
	Key string
	Err error
}

func (e *CleanupError) Error() string {
	return fmt.Sprintf("cleanup after archive %s: %v", e.Key, e.Err)
}

func (e *CleanupError) Unwrap() error { return e.Err }

// archiveKey partitions archives by the window's end year and month so
// downstream consumers can locate a period's records without listing the
// whole bucket.
func (a *Archiver) archiveKey(start, end time.Time, index int) string {
	return fmt.Sprintf("%s/%04d/%02d/retirements_%s_%s_%d_%s.json.gz",
		a.keyPrefix, end.Year(), end.Month(),
		start.Format(archiveDateFormat), end.Format(archiveDateFormat),
		index, uuid.NewString())
}

// encodeArchive serializes learners as gzip-compressed NDJSON, one object
// per line.
func encodeArchive(learners []domain.LearnerRecord) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	enc := json.NewEncoder(gz)
	for _, l := range learners {
		record := archiveRecord{
			UserID:           l.UserID,
			OriginalUsername: l.OriginalUsername,
			OriginalEmail:    l.OriginalEmail,
			OriginalName:     l.OriginalName,
			RetiredUsername:  l.RetiredUsername,
			RetiredEmail:     l.RetiredEmail,
			State:            l.CurrentState.Name,
			Created:          l.Created,
			Modified:         l.Modified,
		}
		if err := enc.Encode(record); err != nil {
			return nil, fmt.Errorf("encode archive record for %s: %w", l.OriginalUsername, err)
		}
	}
	if err := gz.Close(); err != nil {
		return nil, fmt.Errorf("compress archive: %w", err)
	}
	return buf.Bytes(), nil
}

// classifyStorage maps object-store errors onto retry actions: throttling
// and server-side failures back off, everything else fails the run.
func classifyStorage(err error) restclient.Action {
	var resp minio.ErrorResponse
	if errors.As(err, &resp) {
		if resp.StatusCode == 429 || resp.StatusCode >= 500 {
			return restclient.RetryBackoff
		}
		return restclient.Fail
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return restclient.RetryBackoff
	}
	return restclient.Fail
}
