package storage

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testJobID = "0f8fad5b-d9cb-469f-a165-70867728950e"

func newMockClient(t *testing.T) (*PostgresClient, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresClientFromDB(db), mock
}

func TestSanitizeScore(t *testing.T) {
	assert.Equal(t, 0.0, sanitizeScore(-0.2))
	assert.Equal(t, 1.0, sanitizeScore(1.7))
	assert.Equal(t, 0.8765, sanitizeScore(0.87654))
	assert.Equal(t, 0.8766, sanitizeScore(0.87656))
}

func TestSanitizeJSONForPostgres(t *testing.T) {
	in := []byte(`{"text":"Art\u0000iculo\u0007 1"}`)
	assert.Equal(t, `{"text":"Articulo  1"}`, string(sanitizeJSONForPostgres(in)))
}

func TestUpdateJobStatusDefaults(t *testing.T) {
	client, mock := newMockClient(t)

	mock.ExpectQuery(`INSERT INTO legalstruct\.structuring_jobs`).
		WithArgs(testJobID, testJobID, "anonymous", "", StatusProcessing, "", "", "{}").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(testJobID))

	err := client.UpdateJobStatus(context.Background(), &JobUpdate{
		JobID:  testJobID,
		Status: StatusProcessing,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateJobStatusRequiresFields(t *testing.T) {
	client, _ := newMockClient(t)

	assert.Error(t, client.UpdateJobStatus(context.Background(), &JobUpdate{Status: StatusFailed}))
	assert.Error(t, client.UpdateJobStatus(context.Background(), &JobUpdate{JobID: testJobID}))
}

func TestUpdateJobStatusWrapsDatabaseError(t *testing.T) {
	client, mock := newMockClient(t)

	mock.ExpectQuery(`INSERT INTO legalstruct\.structuring_jobs`).
		WillReturnError(errors.New("connection reset"))

	err := client.UpdateJobStatus(context.Background(), &JobUpdate{
		JobID:      testJobID,
		DocumentID: "ley-27555",
		Status:     StatusFailed,
		ErrorCode:  "ALL_MODELS_EXHAUSTED",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status=failed")
	assert.Contains(t, err.Error(), "connection reset")
}

func TestSaveResult(t *testing.T) {
	client, mock := newMockClient(t)

	mock.ExpectExec(`INSERT INTO legalstruct\.structuring_jobs`).
		WithArgs(
			testJobID, "ley-27555", "u-1", "ley.txt", StatusNeedsReview, "abc123", "inline",
			"gemini-2.5-pro", pq.Array([]string{"gemini-2.5-flash", "gemini-2.5-pro"}),
			0.8765, false, true, 1200, int64(3400),
			sql.NullString{String: `{"success":true}`, Valid: true}, "",
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := client.SaveResult(context.Background(), &ResultRecord{
		JobID:                     testJobID,
		DocumentID:                "ley-27555",
		UserID:                    "u-1",
		Filename:                  "ley.txt",
		Status:                    StatusNeedsReview,
		ContentHash:               "abc123",
		TextSource:                "inline",
		ModelUsed:                 "gemini-2.5-pro",
		ModelsUsed:                []string{"gemini-2.5-flash", "gemini-2.5-pro"},
		FinalScore:                0.87654,
		HumanInterventionRequired: true,
		TokensUsed:                1200,
		ProcessingTimeMs:          3400,
		Result:                    []byte(`{"success":true}`),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindResult(t *testing.T) {
	client, mock := newMockClient(t)

	mock.ExpectQuery(`SELECT result\s+FROM legalstruct\.structuring_jobs`).
		WithArgs("ley-27555", "abc123").
		WillReturnRows(sqlmock.NewRows([]string{"result"}).AddRow([]byte(`{"success":true}`)))

	got, err := client.FindResult(context.Background(), "ley-27555", "abc123")
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":true}`, string(got))

	mock.ExpectQuery(`SELECT result\s+FROM legalstruct\.structuring_jobs`).
		WithArgs("ley-27555", "other").
		WillReturnRows(sqlmock.NewRows([]string{"result"}))

	got, err = client.FindResult(context.Background(), "ley-27555", "other")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetJobByID(t *testing.T) {
	client, mock := newMockClient(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	columns := []string{
		"id", "document_id", "user_id", "status",
		"model_used", "models_used", "final_score",
		"human_intervention_required", "error_message",
		"created_at", "updated_at",
	}
	mock.ExpectQuery(`FROM legalstruct\.structuring_jobs\s+WHERE id = \$1::uuid`).
		WithArgs(testJobID).
		WillReturnRows(sqlmock.NewRows(columns).AddRow(
			testJobID, "ley-27555", "anonymous", StatusCompleted,
			"gemini-2.5-flash", "{gemini-2.5-flash}", 0.97,
			false, nil,
			now, now,
		))

	job, err := client.GetJobByID(context.Background(), testJobID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, job["status"])
	assert.Equal(t, []string{"gemini-2.5-flash"}, job["modelsUsed"])
	assert.Equal(t, 0.97, job["finalScore"])
	assert.Equal(t, false, job["humanInterventionRequired"])
	assert.NotContains(t, job, "errorMessage")

	mock.ExpectQuery(`FROM legalstruct\.structuring_jobs`).
		WithArgs(testJobID).
		WillReturnRows(sqlmock.NewRows(columns))

	_, err = client.GetJobByID(context.Background(), testJobID)
	assert.ErrorContains(t, err, "job not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}
