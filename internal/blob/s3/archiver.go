package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/updownhq/updown/internal/domain"
)

// Narrow store interfaces: the archiver only needs the time-ranged query
// each store already exposes, not the full store surface.

// RoundArchiveStore provides read access to settled rounds for archival.
type RoundArchiveStore interface {
	// ListResultsBefore returns all round results settled strictly before
	// the given cutoff time.
	ListResultsBefore(ctx context.Context, before time.Time) ([]domain.RoundResult, error)
}

// BetArchiveStore provides read access to aged bets for archival.
type BetArchiveStore interface {
	// ListBefore returns all bets placed strictly before the given cutoff
	// time.
	ListBefore(ctx context.Context, before time.Time) ([]domain.Bet, error)
}

// Archiver implements domain.Archiver by querying the stores for aged
// records, serializing them to JSONL, and uploading the result to object
// storage.
//
// Deletion of the archived rows from the primary store is intentionally
// NOT performed here. That is a separate, explicit step to be executed
// after the archive has been verified.
type Archiver struct {
	writer domain.BlobWriter
	rounds RoundArchiveStore
	bets   BetArchiveStore
	audit  domain.AuditStore
}

// NewArchiver creates an Archiver over the given writer and stores.
func NewArchiver(writer domain.BlobWriter, rounds RoundArchiveStore, bets BetArchiveStore, audit domain.AuditStore) *Archiver {
	return &Archiver{
		writer: writer,
		rounds: rounds,
		bets:   bets,
		audit:  audit,
	}
}

var _ domain.Archiver = (*Archiver)(nil)

// ArchiveRounds uploads all round results settled before the cutoff to
// archive/rounds/YYYY-MM.jsonl and records the upload in the audit log.
// It returns the number of archived records.
func (a *Archiver) ArchiveRounds(ctx context.Context, before time.Time) (int64, error) {
	return archive(ctx, a, "rounds", before, a.rounds.ListResultsBefore)
}

// ArchiveBets uploads all bets placed before the cutoff to
// archive/bets/YYYY-MM.jsonl and records the upload in the audit log.
// It returns the number of archived records.
func (a *Archiver) ArchiveBets(ctx context.Context, before time.Time) (int64, error) {
	return archive(ctx, a, "bets", before, a.bets.ListBefore)
}

// archive is the shared query, serialize, upload, audit pipeline. A sweep
// within the same month overwrites the month's object with the complete
// set, so re-running after a partial failure is safe.
func archive[T any](ctx context.Context, a *Archiver, kind string, before time.Time, list func(context.Context, time.Time) ([]T, error)) (int64, error) {
	records, err := list(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive %s query: %w", kind, err)
	}
	if len(records) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(records)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive %s marshal: %w", kind, err)
	}

	path := archivePath(kind, before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive %s upload: %w", kind, err)
	}

	count := int64(len(records))
	if err := a.audit.Log(ctx, "archive."+kind, map[string]any{
		"path":   path,
		"count":  count,
		"before": before.Format(time.RFC3339),
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive %s audit log: %w", kind, err)
	}

	return count, nil
}

// archivePath builds the object key for an archive file, partitioned by
// the year-month of the cutoff time.
//
//	archive/rounds/2026-01.jsonl
//	archive/bets/2026-01.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serializes a slice of values as newline-delimited JSON.
// Each element becomes one compact JSON line.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
