package success

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	pebble "github.com/cockroachdb/pebble"

	"m3u8conv/job"
	"m3u8conv/logger"
)

// SuccessRecord is the history entry kept for a completed conversion
type SuccessRecord struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	SourceKind string    `json:"source_kind"`
	Source     string    `json:"source"`
	Filename   string    `json:"filename"`
	SizeBytes  int64     `json:"size_bytes"`
	DurationMs int64     `json:"duration_ms"` // wall time from submission to completion
}

var db *pebble.DB

// Init initializes the success store
func Init(dbPath string) error {
	var err error
	db, err = pebble.Open(dbPath, &pebble.Options{})
	if err != nil {
		return fmt.Errorf("failed to open success store: %w", err)
	}
	return nil
}

// Close closes the success store
func Close() error {
	if db != nil {
		err := db.Close()
		db = nil
		return err
	}
	return nil
}

// RecordJob is a job.FinishHook that stores completed jobs
func RecordJob(ctx context.Context, rec job.Record) {
	if rec.Status != job.StatusCompleted {
		return
	}
	if err := StoreSuccess(rec); err != nil {
		logger.Errorf("Failed to store success record for %s: %v", rec.ID, err)
		// Don't fail the job for success storage errors
	}
}

// StoreSuccess stores a completed job
func StoreSuccess(rec job.Record) error {
	if db == nil {
		return fmt.Errorf("success store not initialized")
	}

	record := SuccessRecord{
		ID:         rec.ID,
		Timestamp:  time.Now(),
		SourceKind: string(rec.Source.Kind),
		Source:     historySource(rec.Source),
		SizeBytes:  fileSize(rec.OutputPath),
	}
	if rec.Artifact != nil {
		record.Filename = rec.Artifact.Filename
	}
	if rec.CompletedAt != nil {
		record.Timestamp = *rec.CompletedAt
		record.DurationMs = rec.CompletedAt.Sub(rec.CreatedAt).Milliseconds()
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal success record: %w", err)
	}

	return db.Set([]byte(rec.ID), data, pebble.Sync)
}

// GetSuccess retrieves a success record by job id. A missing record returns nil, nil.
func GetSuccess(id string) (*SuccessRecord, error) {
	if db == nil {
		return nil, fmt.Errorf("success store not initialized")
	}

	data, closer, err := db.Get([]byte(id))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, nil // Not found is not an error
		}
		return nil, err
	}
	defer closer.Close()

	var record SuccessRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal success record: %w", err)
	}

	return &record, nil
}

// DeleteSuccess removes a success record
func DeleteSuccess(id string) error {
	if db == nil {
		return fmt.Errorf("success store not initialized")
	}
	return db.Delete([]byte(id), pebble.Sync)
}

// ListSuccessRecords returns all success records, newest first
func ListSuccessRecords() ([]SuccessRecord, error) {
	if db == nil {
		return nil, fmt.Errorf("success store not initialized")
	}

	records := []SuccessRecord{}
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		var record SuccessRecord
		if err := json.Unmarshal(iter.Value(), &record); err != nil {
			continue // Skip invalid records
		}
		records = append(records, record)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].Timestamp.After(records[j].Timestamp)
	})
	return records, nil
}

// CleanupOldRecords removes success records older than the specified duration
func CleanupOldRecords(maxAge time.Duration) (int, error) {
	if db == nil {
		return 0, fmt.Errorf("success store not initialized")
	}

	cutoff := time.Now().Add(-maxAge)
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return 0, err
	}

	var keysToDelete [][]byte
	for iter.First(); iter.Valid(); iter.Next() {
		var record SuccessRecord
		if err := json.Unmarshal(iter.Value(), &record); err != nil {
			continue
		}
		if record.Timestamp.Before(cutoff) {
			key := make([]byte, len(iter.Key()))
			copy(key, iter.Key())
			keysToDelete = append(keysToDelete, key)
		}
	}
	if err := iter.Close(); err != nil {
		return 0, err
	}

	batch := db.NewBatch()
	defer batch.Close()
	for _, key := range keysToDelete {
		if err := batch.Delete(key, nil); err != nil {
			return 0, fmt.Errorf("failed to delete old success record: %w", err)
		}
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return 0, fmt.Errorf("failed to delete old success records: %w", err)
	}

	return len(keysToDelete), nil
}

// CheckHealth performs a basic health check on the success database
func CheckHealth() error {
	if db == nil {
		return fmt.Errorf("success database not initialized")
	}

	_, closer, err := db.Get([]byte("__health_check__"))
	if err != nil && !errors.Is(err, pebble.ErrNotFound) {
		return fmt.Errorf("database health check failed: %w", err)
	}
	if closer != nil {
		closer.Close()
	}
	return nil
}
