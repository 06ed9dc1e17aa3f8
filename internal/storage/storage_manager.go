/**
 * Storage Manager for the Legal Structuring Worker
 *
 * Coordinates storage across PostgreSQL (job rows and durable results) and the
 * Redis result cache. PostgreSQL is the source of truth; the cache is refilled
 * from it on a miss and never blocks a write.
 */

package storage

import (
	"context"
	"fmt"
	"regexp"

	"github.com/adverant/nexus/legalstruct-worker/internal/cache"
	"github.com/adverant/nexus/legalstruct-worker/internal/logging"
)

// StorageManager coordinates PostgreSQL and the result cache
type StorageManager struct {
	postgres *PostgresClient
	cache    cache.Cache
	logger   *logging.Logger
}

// NewStorageManager creates a new storage manager. Either backend may be nil:
// a nil postgres runs cache-only and a nil cache always reads through.
func NewStorageManager(postgres *PostgresClient, resultCache cache.Cache) *StorageManager {
	return &StorageManager{
		postgres: postgres,
		cache:    resultCache,
		logger:   logging.NewLogger("Storage"),
	}
}

// UpdateJobStatus updates job status in PostgreSQL
func (sm *StorageManager) UpdateJobStatus(ctx context.Context, update *JobUpdate) error {
	if sm.postgres == nil {
		return nil
	}
	return sm.postgres.UpdateJobStatus(ctx, update)
}

// SaveResult persists a result and then caches it under the document's key.
// text is the purified text the result was computed from; an empty text
// stores the result without making it reusable. Only completed and
// needs_review results are cached, matching what FindResult will serve.
func (sm *StorageManager) SaveResult(ctx context.Context, rec *ResultRecord, text string) error {
	if text != "" {
		rec.ContentHash = cache.ContentHash(text)
	}

	if sm.postgres != nil {
		if err := sm.postgres.SaveResult(ctx, rec); err != nil {
			return err
		}
	}

	if sm.cache != nil && text != "" && len(rec.Result) > 0 && reusableStatus(rec.Status) {
		key := cache.ResultKey(rec.DocumentID, text)
		if err := sm.cache.Put(ctx, key, rec.Result); err != nil {
			sm.logger.Warn("Failed to cache result", "jobId", rec.JobID, "key", key, "error", err)
		}
	}

	return nil
}

// LookupResult returns a previously stored result for the same document and
// text, or nil when none exists.
func (sm *StorageManager) LookupResult(ctx context.Context, documentID, text string) ([]byte, error) {
	key := cache.ResultKey(documentID, text)

	if sm.cache != nil {
		cached, err := sm.cache.Get(ctx, key)
		if err != nil {
			sm.logger.Warn("Cache lookup failed, reading through", "key", key, "error", err)
		} else if cached != nil {
			return cached, nil
		}
	}

	if sm.postgres == nil {
		return nil, nil
	}

	stored, err := sm.postgres.FindResult(ctx, documentID, cache.ContentHash(text))
	if err != nil {
		return nil, err
	}

	if stored != nil && sm.cache != nil {
		if err := sm.cache.Put(ctx, key, stored); err != nil {
			sm.logger.Warn("Failed to refill cache", "key", key, "error", err)
		}
	}

	return stored, nil
}

// reusableStatus reports whether a result with this status may be served again
func reusableStatus(status string) bool {
	return status == StatusCompleted || status == StatusNeedsReview
}

// GetJobByID retrieves job by ID
func (sm *StorageManager) GetJobByID(ctx context.Context, jobID string) (map[string]interface{}, error) {
	if sm.postgres == nil {
		return nil, fmt.Errorf("job lookup requires PostgreSQL")
	}
	return sm.postgres.GetJobByID(ctx, jobID)
}

// Ping checks PostgreSQL connectivity
func (sm *StorageManager) Ping(ctx context.Context) error {
	if sm.postgres == nil {
		return nil
	}
	return sm.postgres.Ping(ctx)
}

// GetStats returns connection pool statistics
func (sm *StorageManager) GetStats() map[string]interface{} {
	stats := map[string]interface{}{
		"cache_enabled": sm.cache != nil,
	}

	if sm.postgres != nil {
		pgStats := sm.postgres.GetStats()
		stats["postgres"] = map[string]interface{}{
			"max_open_connections": pgStats.MaxOpenConnections,
			"open_connections":     pgStats.OpenConnections,
			"in_use":               pgStats.InUse,
			"idle":                 pgStats.Idle,
			"wait_count":           pgStats.WaitCount,
			"wait_duration":        pgStats.WaitDuration.String(),
		}
	}

	return stats
}

// Close closes the PostgreSQL connection. The cache client is owned by the caller.
func (sm *StorageManager) Close() error {
	if sm.postgres != nil {
		if err := sm.postgres.Close(); err != nil {
			return fmt.Errorf("failed to close PostgreSQL: %w", err)
		}
	}
	return nil
}

var (
	nullEscapePattern    = regexp.MustCompile(`\\u0000`)
	controlEscapePattern = regexp.MustCompile(`\\u00[01][0-9a-fA-F]`)
)

// sanitizeJSONForPostgres removes problematic Unicode escape sequences from JSON
// PostgreSQL JSONB doesn't support \u0000 and chokes on some other control
// character escapes, which OCR text occasionally carries.
func sanitizeJSONForPostgres(jsonBytes []byte) []byte {
	// Remove null character escapes (\u0000)
	result := nullEscapePattern.ReplaceAll(jsonBytes, []byte{})

	// Replace other control character escapes (\u0001-\u001F) with space
	result = controlEscapePattern.ReplaceAll(result, []byte(" "))

	return result
}
