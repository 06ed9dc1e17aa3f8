/**
 * PostgreSQL Client for the Legal Structuring Worker
 *
 * Handles job persistence and storage of structuring results.
 */

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// Job statuses
const (
	StatusProcessing  = "processing"
	StatusCompleted   = "completed"
	StatusNeedsReview = "needs_review"
	StatusFailed      = "failed"
)

// PostgresClient handles database operations
type PostgresClient struct {
	db *sql.DB
}

// JobUpdate represents a job status update
type JobUpdate struct {
	JobID        string
	DocumentID   string
	UserID       string
	Filename     string
	Status       string
	ErrorCode    string
	ErrorMessage string
	Metadata     map[string]interface{}
}

// ResultRecord is a finished structuring run
type ResultRecord struct {
	JobID                     string
	DocumentID                string
	UserID                    string
	Filename                  string
	Status                    string
	ContentHash               string
	TextSource                string
	ModelUsed                 string
	ModelsUsed                []string
	FinalScore                float64
	QualityPassed             bool
	HumanInterventionRequired bool
	TokensUsed                int
	ProcessingTimeMs          int64
	Result                    []byte // JSON encoded engine result
	ErrorMessage              string
}

// sanitizeScore rounds a score to 4 decimal places and clamps it to [0,1]
// so it fits the NUMERIC(5,4) column.
func sanitizeScore(score float64) float64 {
	if score < 0.0 {
		return 0.0
	}
	if score > 1.0 {
		return 1.0
	}
	return float64(int(score*10000+0.5)) / 10000
}

// NewPostgresClient creates a new PostgreSQL client
func NewPostgresClient(databaseURL string) (*PostgresClient, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	// Connect to database
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(2 * time.Minute)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresClient{db: db}, nil
}

// NewPostgresClientFromDB wraps an open database handle
func NewPostgresClientFromDB(db *sql.DB) *PostgresClient {
	return &PostgresClient{db: db}
}

// UpdateJobStatus creates the job row on first sight and updates its status
func (p *PostgresClient) UpdateJobStatus(ctx context.Context, update *JobUpdate) error {
	if update.JobID == "" {
		return fmt.Errorf("job ID is required")
	}

	if update.Status == "" {
		return fmt.Errorf("status is required")
	}

	documentID := update.DocumentID
	if documentID == "" {
		documentID = update.JobID
	}

	userID := update.UserID
	if userID == "" {
		userID = "anonymous"
	}

	metadata := update.Metadata
	if metadata == nil {
		metadata = map[string]interface{}{}
	}

	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	metadataJSON = sanitizeJSONForPostgres(metadataJSON)

	query := `
		INSERT INTO legalstruct.structuring_jobs (
			id, document_id, user_id, filename, status,
			error_code, error_message, metadata, created_at, updated_at
		) VALUES (
			$1::uuid, $2, $3, NULLIF($4, ''), $5,
			NULLIF($6, ''), NULLIF($7, ''), $8::jsonb, NOW(), NOW()
		)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			error_code = EXCLUDED.error_code,
			error_message = EXCLUDED.error_message,
			metadata = legalstruct.structuring_jobs.metadata || EXCLUDED.metadata,
			filename = COALESCE(EXCLUDED.filename, legalstruct.structuring_jobs.filename),
			updated_at = NOW()
		RETURNING id
	`

	var returnedID string
	err = p.db.QueryRowContext(
		ctx,
		query,
		update.JobID,         // $1 - id
		documentID,           // $2 - document_id
		userID,               // $3 - user_id
		update.Filename,      // $4 - filename
		update.Status,        // $5 - status
		update.ErrorCode,     // $6 - error_code
		update.ErrorMessage,  // $7 - error_message
		string(metadataJSON), // $8 - metadata
	).Scan(&returnedID)

	if err != nil {
		return fmt.Errorf("failed to update job status (job=%s, status=%s): %w",
			update.JobID, update.Status, err)
	}

	return nil
}

// SaveResult stores a finished structuring run on its job row
func (p *PostgresClient) SaveResult(ctx context.Context, rec *ResultRecord) error {
	if rec.JobID == "" {
		return fmt.Errorf("job ID is required")
	}

	userID := rec.UserID
	if userID == "" {
		userID = "anonymous"
	}

	// JSON goes over the wire as text; lib/pq would encode []byte as bytea.
	var resultJSON sql.NullString
	if len(rec.Result) > 0 {
		resultJSON = sql.NullString{String: string(sanitizeJSONForPostgres(rec.Result)), Valid: true}
	}

	query := `
		INSERT INTO legalstruct.structuring_jobs (
			id, document_id, user_id, filename, status, content_hash, text_source,
			model_used, models_used, final_score, quality_passed, human_intervention_required,
			tokens_used, processing_time_ms, result, error_message, created_at, updated_at
		) VALUES (
			$1::uuid, $2, $3, NULLIF($4, ''), $5, NULLIF($6, ''), NULLIF($7, ''),
			NULLIF($8, ''), $9, $10::NUMERIC(5,4), $11, $12,
			$13, $14, $15::jsonb, NULLIF($16, ''), NOW(), NOW()
		)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			content_hash = EXCLUDED.content_hash,
			text_source = EXCLUDED.text_source,
			model_used = EXCLUDED.model_used,
			models_used = EXCLUDED.models_used,
			final_score = EXCLUDED.final_score,
			quality_passed = EXCLUDED.quality_passed,
			human_intervention_required = EXCLUDED.human_intervention_required,
			tokens_used = EXCLUDED.tokens_used,
			processing_time_ms = EXCLUDED.processing_time_ms,
			result = EXCLUDED.result,
			error_message = EXCLUDED.error_message,
			updated_at = NOW()
	`

	_, err := p.db.ExecContext(
		ctx,
		query,
		rec.JobID,
		rec.DocumentID,
		userID,
		rec.Filename,
		rec.Status,
		rec.ContentHash,
		rec.TextSource,
		rec.ModelUsed,
		pq.Array(rec.ModelsUsed),
		sanitizeScore(rec.FinalScore),
		rec.QualityPassed,
		rec.HumanInterventionRequired,
		rec.TokensUsed,
		rec.ProcessingTimeMs,
		resultJSON,
		rec.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("failed to store result (job=%s, score=%.4f): %w",
			rec.JobID, sanitizeScore(rec.FinalScore), err)
	}

	return nil
}

// FindResult returns the most recent stored result for a document and
// content hash, or nil when there is none.
func (p *PostgresClient) FindResult(ctx context.Context, documentID, contentHash string) ([]byte, error) {
	query := `
		SELECT result
		FROM legalstruct.structuring_jobs
		WHERE document_id = $1 AND content_hash = $2
		  AND status IN ('completed', 'needs_review')
		  AND result IS NOT NULL
		ORDER BY updated_at DESC
		LIMIT 1
	`

	var result []byte
	err := p.db.QueryRowContext(ctx, query, documentID, contentHash).Scan(&result)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up result for %s: %w", documentID, err)
	}
	return result, nil
}

// GetJobByID retrieves a job by ID
func (p *PostgresClient) GetJobByID(ctx context.Context, jobID string) (map[string]interface{}, error) {
	if jobID == "" {
		return nil, fmt.Errorf("job ID is required")
	}

	query := `
		SELECT
			id, document_id, user_id, status,
			model_used, models_used, final_score,
			human_intervention_required, error_message,
			created_at, updated_at
		FROM legalstruct.structuring_jobs
		WHERE id = $1::uuid
	`

	var (
		id, documentID, userID, status string
		modelUsed, errorMessage        sql.NullString
		modelsUsed                     pq.StringArray
		finalScore                     sql.NullFloat64
		intervention                   sql.NullBool
		createdAt, updatedAt           time.Time
	)

	err := p.db.QueryRowContext(ctx, query, jobID).Scan(
		&id, &documentID, &userID, &status,
		&modelUsed, &modelsUsed, &finalScore,
		&intervention, &errorMessage,
		&createdAt, &updatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("job not found: %s", jobID)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	result := map[string]interface{}{
		"id":         id,
		"documentId": documentID,
		"userId":     userID,
		"status":     status,
		"modelsUsed": []string(modelsUsed),
		"createdAt":  createdAt,
		"updatedAt":  updatedAt,
	}

	if modelUsed.Valid {
		result["modelUsed"] = modelUsed.String
	}
	if finalScore.Valid {
		result["finalScore"] = finalScore.Float64
	}
	if intervention.Valid {
		result["humanInterventionRequired"] = intervention.Bool
	}
	if errorMessage.Valid {
		result["errorMessage"] = errorMessage.String
	}

	return result, nil
}

// Ping checks database connectivity
func (p *PostgresClient) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Close closes the database connection
func (p *PostgresClient) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}

// GetStats returns connection pool statistics
func (p *PostgresClient) GetStats() sql.DBStats {
	return p.db.Stats()
}
