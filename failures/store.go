package failures

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	pebble "github.com/cockroachdb/pebble"

	"m3u8conv/engine"
	"m3u8conv/job"
	"m3u8conv/logger"
)

// FailureRecord represents a conversion that ended in error
type FailureRecord struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	Error      string    `json:"error"`
	SourceKind string    `json:"source_kind"`
	Source     string    `json:"source"`
	Progress   int       `json:"progress"` // how far the job got before failing
}

var db *pebble.DB

// Init initializes the failure store
func Init(dbPath string) error {
	var err error
	db, err = pebble.Open(dbPath, &pebble.Options{})
	if err != nil {
		return fmt.Errorf("failed to open failure store: %w", err)
	}
	return nil
}

// Close closes the failure store
func Close() error {
	if db != nil {
		err := db.Close()
		db = nil
		return err
	}
	return nil
}

// RecordJob is a job.FinishHook that stores failed jobs
func RecordJob(ctx context.Context, rec job.Record) {
	if rec.Status != job.StatusError {
		return
	}
	if err := StoreFailure(rec); err != nil {
		logger.Errorf("Failed to store failure for %s: %v", rec.ID, err)
	}
}

// StoreFailure stores a failed job keyed by its id
func StoreFailure(rec job.Record) error {
	if db == nil {
		return fmt.Errorf("failure store not initialized")
	}

	source := rec.Source.Locator
	if rec.Source.Kind == engine.SourceLocalFile {
		source = filepath.Base(source)
	}

	record := FailureRecord{
		ID:         rec.ID,
		Timestamp:  time.Now(),
		Error:      rec.ErrorDetail,
		SourceKind: string(rec.Source.Kind),
		Source:     source,
		Progress:   rec.Progress,
	}
	if rec.CompletedAt != nil {
		record.Timestamp = *rec.CompletedAt
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal failure record: %w", err)
	}

	return db.Set([]byte(rec.ID), data, pebble.Sync)
}

// GetFailure retrieves a failure record by job id. A missing record returns nil, nil.
func GetFailure(id string) (*FailureRecord, error) {
	if db == nil {
		return nil, fmt.Errorf("failure store not initialized")
	}

	data, closer, err := db.Get([]byte(id))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, nil // No failure found
		}
		return nil, fmt.Errorf("failed to get failure: %w", err)
	}
	defer closer.Close()

	var record FailureRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal failure record: %w", err)
	}

	return &record, nil
}

// DeleteFailure removes a failure record
func DeleteFailure(id string) error {
	if db == nil {
		return fmt.Errorf("failure store not initialized")
	}
	return db.Delete([]byte(id), pebble.Sync)
}

// ListFailures returns all failure records, newest first
func ListFailures() ([]FailureRecord, error) {
	if db == nil {
		return nil, fmt.Errorf("failure store not initialized")
	}

	failures := []FailureRecord{}
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to create iterator: %w", err)
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		var record FailureRecord
		if err := json.Unmarshal(iter.Value(), &record); err != nil {
			continue // Skip invalid records
		}
		failures = append(failures, record)
	}

	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("iteration error: %w", err)
	}

	sort.Slice(failures, func(i, j int) bool {
		return failures[i].Timestamp.After(failures[j].Timestamp)
	})
	return failures, nil
}

// CleanupOldRecords removes failure records older than maxAge
func CleanupOldRecords(maxAge time.Duration) (int, error) {
	failures, err := ListFailures()
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, record := range failures {
		if !record.Timestamp.Before(cutoff) {
			continue
		}
		if err := db.Delete([]byte(record.ID), pebble.Sync); err != nil {
			return removed, fmt.Errorf("failed to delete old failure record: %w", err)
		}
		removed++
	}
	return removed, nil
}
