package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/acquire-pipeline/internal/faults"
	"github.com/sells-group/acquire-pipeline/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

var canonicalColumns = []string{"id", "business_id", "version", "content_hash", "prompt_version", "domains", "confidence", "created_at"}

func TestPostgresStore_LatestCanonical_Absent(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM canonical_records WHERE business_id = \$1 ORDER BY version DESC`).
		WithArgs("biz-9").
		WillReturnError(pgx.ErrNoRows)

	rec, err := s.LatestCanonical(context.Background(), "biz-9")
	require.NoError(t, err)
	assert.Nil(t, rec)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_AppendCanonical_Dedup(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM canonical_records WHERE business_id = \$1 AND content_hash = \$2`).
		WithArgs("biz-1", "hash-a").
		WillReturnRows(pgxmock.NewRows(canonicalColumns).
			AddRow("rec-1", "biz-1", 1, "hash-a", "v3", []byte(`{}`), []byte(`{}`), time.Now().UTC()))

	rec, created, err := s.AppendCanonical(context.Background(), canonicalFixture("biz-1", "hash-a"))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "rec-1", rec.ID)
	assert.Equal(t, 1, rec.Version)
	assert.NoError(t, mock.ExpectationsWereMet(), "dedup must not attempt an insert")
}

func TestPostgresStore_AppendCanonical_VersionRaceRetries(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	// First attempt: no dedup hit, no prior version, insert loses the race.
	mock.ExpectQuery(`FROM canonical_records WHERE business_id = \$1 AND content_hash = \$2`).
		WithArgs("biz-1", "hash-new").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery(`FROM canonical_records WHERE business_id = \$1 ORDER BY version DESC`).
		WithArgs("biz-1").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec(`INSERT INTO canonical_records`).
		WithArgs(pgxmock.AnyArg(), "biz-1", 1, "hash-new", "v3", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "canonical_records_version_key"})

	// Second attempt: recomputes latest and lands on the next free version.
	mock.ExpectQuery(`FROM canonical_records WHERE business_id = \$1 AND content_hash = \$2`).
		WithArgs("biz-1", "hash-new").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery(`FROM canonical_records WHERE business_id = \$1 ORDER BY version DESC`).
		WithArgs("biz-1").
		WillReturnRows(pgxmock.NewRows(canonicalColumns).
			AddRow("rec-1", "biz-1", 1, "hash-prev", "v3", []byte(`{}`), []byte(`{}`), time.Now().UTC()))
	mock.ExpectExec(`INSERT INTO canonical_records`).
		WithArgs(pgxmock.AnyArg(), "biz-1", 2, "hash-new", "v3", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	rec, created, err := s.AppendCanonical(context.Background(), canonicalFixture("biz-1", "hash-new"))
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, 2, rec.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_AppendCanonical_Validation(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	_, _, err := s.AppendCanonical(context.Background(), &model.CanonicalRecord{BusinessID: "biz-1"})
	require.Error(t, err)
	assert.True(t, faults.IsValidation(err))
	assert.NoError(t, mock.ExpectationsWereMet(), "invalid input must not reach the database")
}

func TestPostgresStore_RecordResponse_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE follow_up_questions SET response_status = \$1`).
		WithArgs("responded", "answer", pgxmock.AnyArg(), "q-404", "pending").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery(`FROM follow_up_questions WHERE id = \$1`).
		WithArgs("q-404").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.RecordResponse(context.Background(), "q-404", model.ResponseResponded, "answer")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertScoring(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO scoring_records`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	rec := &model.ScoringRecord{
		BusinessID:    "biz-1",
		RecordVersion: 1,
		Scores:        model.ComponentScores{PriceEfficiency: 90, RevenueQuality: 85, Moat: 80, AILeverage: 88, Operations: 82, Risk: 75, Trust: 95},
		RawTrust:      95,
		Total:         85.15,
		Tier:          model.TierA,
	}
	require.NoError(t, s.InsertScoring(context.Background(), rec))
	assert.NotEmpty(t, rec.ID, "store assigns an id when absent")
	assert.False(t, rec.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS canonical_records`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
