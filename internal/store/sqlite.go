package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/acquire-pipeline/internal/faults"
	"github.com/sells-group/acquire-pipeline/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. Appends are
// additionally serialized in-process; SQLite allows one writer at a time
// anyway, and serializing the read-assign-insert sequence keeps version
// races to the cross-process case the retry loop covers.
type SQLiteStore struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS canonical_records (
	id             TEXT PRIMARY KEY,
	business_id    TEXT NOT NULL,
	version        INTEGER NOT NULL,
	content_hash   TEXT NOT NULL,
	prompt_version TEXT NOT NULL,
	domains        TEXT NOT NULL,
	confidence     TEXT NOT NULL,
	created_at     DATETIME NOT NULL,
	UNIQUE (business_id, version),
	UNIQUE (business_id, content_hash)
);

CREATE INDEX IF NOT EXISTS idx_canonical_records_business ON canonical_records(business_id, version DESC);

CREATE TABLE IF NOT EXISTS sector_research (
	id             TEXT PRIMARY KEY,
	sector_key     TEXT NOT NULL,
	agent_type     TEXT NOT NULL,
	business_id    TEXT NOT NULL DEFAULT '',
	version        INTEGER NOT NULL,
	content_hash   TEXT NOT NULL,
	prompt_version TEXT NOT NULL,
	output         TEXT NOT NULL,
	created_at     DATETIME NOT NULL,
	UNIQUE (sector_key, agent_type, version),
	UNIQUE (sector_key, agent_type, content_hash)
);

CREATE INDEX IF NOT EXISTS idx_sector_research_key ON sector_research(sector_key, agent_type, version DESC);

CREATE TABLE IF NOT EXISTS scoring_records (
	id              TEXT PRIMARY KEY,
	business_id     TEXT NOT NULL,
	record_version  INTEGER NOT NULL,
	scores          TEXT NOT NULL,
	raw_trust       REAL NOT NULL,
	trust_penalty   REAL NOT NULL,
	total           REAL NOT NULL,
	tier            TEXT NOT NULL,
	top_buy_reasons TEXT,
	top_risks       TEXT,
	created_at      DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_scoring_records_business ON scoring_records(business_id, created_at DESC);

CREATE TABLE IF NOT EXISTS follow_up_questions (
	id              TEXT PRIMARY KEY,
	business_id     TEXT NOT NULL,
	record_version  INTEGER NOT NULL,
	question        TEXT NOT NULL,
	triggered_by    TEXT NOT NULL,
	severity        TEXT NOT NULL,
	response_status TEXT NOT NULL DEFAULT 'pending',
	response        TEXT NOT NULL DEFAULT '',
	created_at      DATETIME NOT NULL,
	responded_at    DATETIME
);

CREATE INDEX IF NOT EXISTS idx_follow_up_questions_business ON follow_up_questions(business_id);

CREATE TABLE IF NOT EXISTS agent_execution_logs (
	id            TEXT PRIMARY KEY,
	agent_name    TEXT NOT NULL,
	agent_type    TEXT NOT NULL,
	business_id   TEXT NOT NULL DEFAULT '',
	sector_key    TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL,
	error_message TEXT NOT NULL DEFAULT '',
	started_at    DATETIME NOT NULL,
	completed_at  DATETIME NOT NULL,
	duration_ms   INTEGER NOT NULL,
	metadata      TEXT
);

CREATE INDEX IF NOT EXISTS idx_agent_execution_logs_business ON agent_execution_logs(business_id);
CREATE INDEX IF NOT EXISTS idx_agent_execution_logs_sector ON agent_execution_logs(sector_key);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func isSQLiteUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func (s *SQLiteStore) AppendCanonical(ctx context.Context, rec *model.CanonicalRecord) (*model.CanonicalRecord, bool, error) {
	if err := validateCanonicalAppend(rec); err != nil {
		return nil, false, err
	}

	domainsJSON, err := json.Marshal(rec.Domains)
	if err != nil {
		return nil, false, eris.Wrap(err, "sqlite: marshal domains")
	}
	confidenceJSON, err := json.Marshal(rec.Confidence)
	if err != nil {
		return nil, false, eris.Wrap(err, "sqlite: marshal confidence flags")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for attempt := 0; attempt < maxAppendAttempts; attempt++ {
		existing, err := s.canonicalByHashLocked(ctx, rec.BusinessID, rec.ContentHash)
		if err != nil {
			return nil, false, err
		}
		if existing != nil {
			return existing, false, nil
		}

		latest, err := s.latestCanonicalLocked(ctx, rec.BusinessID)
		if err != nil {
			return nil, false, err
		}
		version := 1
		if latest != nil {
			version = latest.Version + 1
		}

		stored := *rec
		stored.ID = uuid.New().String()
		stored.Version = version
		stored.CreatedAt = time.Now().UTC()

		_, err = s.db.ExecContext(ctx,
			`INSERT INTO canonical_records (id, business_id, version, content_hash, prompt_version, domains, confidence, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			stored.ID, stored.BusinessID, stored.Version, stored.ContentHash, stored.PromptVersion, string(domainsJSON), string(confidenceJSON), stored.CreatedAt,
		)
		if err == nil {
			return &stored, true, nil
		}
		if isSQLiteUniqueViolation(err) {
			continue
		}
		return nil, false, eris.Wrapf(err, "sqlite: append canonical record for %s", rec.BusinessID)
	}
	return nil, false, &faults.ConflictError{Key: rec.BusinessID, Attempts: maxAppendAttempts}
}

func (s *SQLiteStore) LatestCanonical(ctx context.Context, businessID string) (*model.CanonicalRecord, error) {
	return s.latestCanonicalLocked(ctx, businessID)
}

func (s *SQLiteStore) latestCanonicalLocked(ctx context.Context, businessID string) (*model.CanonicalRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, business_id, version, content_hash, prompt_version, domains, confidence, created_at FROM canonical_records WHERE business_id = ? ORDER BY version DESC LIMIT 1`,
		businessID,
	)
	rec, err := scanCanonicalSQLite(row)
	if err != nil {
		if eris.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: latest canonical record for %s", businessID)
	}
	return rec, nil
}

func (s *SQLiteStore) CanonicalByHash(ctx context.Context, businessID, contentHash string) (*model.CanonicalRecord, error) {
	return s.canonicalByHashLocked(ctx, businessID, contentHash)
}

func (s *SQLiteStore) canonicalByHashLocked(ctx context.Context, businessID, contentHash string) (*model.CanonicalRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, business_id, version, content_hash, prompt_version, domains, confidence, created_at FROM canonical_records WHERE business_id = ? AND content_hash = ?`,
		businessID, contentHash,
	)
	rec, err := scanCanonicalSQLite(row)
	if err != nil {
		if eris.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: canonical record by hash for %s", businessID)
	}
	return rec, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCanonicalSQLite(row rowScanner) (*model.CanonicalRecord, error) {
	var rec model.CanonicalRecord
	var domainsJSON, confidenceJSON string
	if err := row.Scan(&rec.ID, &rec.BusinessID, &rec.Version, &rec.ContentHash, &rec.PromptVersion, &domainsJSON, &confidenceJSON, &rec.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(domainsJSON), &rec.Domains); err != nil {
		return nil, eris.Wrap(err, "unmarshal domains")
	}
	if err := json.Unmarshal([]byte(confidenceJSON), &rec.Confidence); err != nil {
		return nil, eris.Wrap(err, "unmarshal confidence flags")
	}
	return &rec, nil
}

func (s *SQLiteStore) AppendResearch(ctx context.Context, rec *model.SectorResearchRecord) (*model.SectorResearchRecord, bool, error) {
	if err := validateResearchAppend(rec); err != nil {
		return nil, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for attempt := 0; attempt < maxAppendAttempts; attempt++ {
		existing, err := s.researchByHashLocked(ctx, rec.SectorKey, rec.AgentType, rec.ContentHash)
		if err != nil {
			return nil, false, err
		}
		if existing != nil {
			return existing, false, nil
		}

		latest, err := s.latestResearchLocked(ctx, rec.SectorKey, rec.AgentType)
		if err != nil {
			return nil, false, err
		}
		version := 1
		if latest != nil {
			version = latest.Version + 1
		}

		stored := *rec
		stored.ID = uuid.New().String()
		stored.Version = version
		stored.CreatedAt = time.Now().UTC()

		_, err = s.db.ExecContext(ctx,
			`INSERT INTO sector_research (id, sector_key, agent_type, business_id, version, content_hash, prompt_version, output, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			stored.ID, stored.SectorKey, string(stored.AgentType), stored.BusinessID, stored.Version, stored.ContentHash, stored.PromptVersion, string(stored.Output), stored.CreatedAt,
		)
		if err == nil {
			return &stored, true, nil
		}
		if isSQLiteUniqueViolation(err) {
			continue
		}
		return nil, false, eris.Wrapf(err, "sqlite: append research record for %s/%s", rec.SectorKey, rec.AgentType)
	}
	return nil, false, &faults.ConflictError{Key: rec.SectorKey + "/" + string(rec.AgentType), Attempts: maxAppendAttempts}
}

func (s *SQLiteStore) LatestResearch(ctx context.Context, sectorKey string, agent model.AgentType) (*model.SectorResearchRecord, error) {
	return s.latestResearchLocked(ctx, sectorKey, agent)
}

func (s *SQLiteStore) latestResearchLocked(ctx context.Context, sectorKey string, agent model.AgentType) (*model.SectorResearchRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, sector_key, agent_type, business_id, version, content_hash, prompt_version, output, created_at FROM sector_research WHERE sector_key = ? AND agent_type = ? ORDER BY version DESC LIMIT 1`,
		sectorKey, string(agent),
	)
	rec, err := scanResearchSQLite(row)
	if err != nil {
		if eris.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: latest research record for %s/%s", sectorKey, agent)
	}
	return rec, nil
}

func (s *SQLiteStore) ResearchByHash(ctx context.Context, sectorKey string, agent model.AgentType, contentHash string) (*model.SectorResearchRecord, error) {
	return s.researchByHashLocked(ctx, sectorKey, agent, contentHash)
}

func (s *SQLiteStore) researchByHashLocked(ctx context.Context, sectorKey string, agent model.AgentType, contentHash string) (*model.SectorResearchRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, sector_key, agent_type, business_id, version, content_hash, prompt_version, output, created_at FROM sector_research WHERE sector_key = ? AND agent_type = ? AND content_hash = ?`,
		sectorKey, string(agent), contentHash,
	)
	rec, err := scanResearchSQLite(row)
	if err != nil {
		if eris.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: research record by hash for %s/%s", sectorKey, agent)
	}
	return rec, nil
}

func scanResearchSQLite(row rowScanner) (*model.SectorResearchRecord, error) {
	var rec model.SectorResearchRecord
	var output string
	if err := row.Scan(&rec.ID, &rec.SectorKey, &rec.AgentType, &rec.BusinessID, &rec.Version, &rec.ContentHash, &rec.PromptVersion, &output, &rec.CreatedAt); err != nil {
		return nil, err
	}
	rec.Output = []byte(output)
	return &rec, nil
}

func (s *SQLiteStore) InsertScoring(ctx context.Context, rec *model.ScoringRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	scoresJSON, err := json.Marshal(rec.Scores)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal component scores")
	}
	reasonsJSON, err := json.Marshal(rec.TopBuyReasons)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal buy reasons")
	}
	risksJSON, err := json.Marshal(rec.TopRisks)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal risks")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO scoring_records (id, business_id, record_version, scores, raw_trust, trust_penalty, total, tier, top_buy_reasons, top_risks, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.BusinessID, rec.RecordVersion, string(scoresJSON), rec.RawTrust, rec.TrustPenalty, rec.Total, string(rec.Tier), string(reasonsJSON), string(risksJSON), rec.CreatedAt,
	)
	return eris.Wrapf(err, "sqlite: insert scoring record for %s", rec.BusinessID)
}

func (s *SQLiteStore) ListScoring(ctx context.Context, businessID string) ([]model.ScoringRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, business_id, record_version, scores, raw_trust, trust_penalty, total, tier, top_buy_reasons, top_risks, created_at FROM scoring_records WHERE business_id = ? ORDER BY created_at DESC`,
		businessID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list scoring records for %s", businessID)
	}
	defer rows.Close()

	var records []model.ScoringRecord
	for rows.Next() {
		var rec model.ScoringRecord
		var scoresJSON string
		var reasonsJSON, risksJSON sql.NullString
		if err := rows.Scan(&rec.ID, &rec.BusinessID, &rec.RecordVersion, &scoresJSON, &rec.RawTrust, &rec.TrustPenalty, &rec.Total, &rec.Tier, &reasonsJSON, &risksJSON, &rec.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan scoring record")
		}
		if err := json.Unmarshal([]byte(scoresJSON), &rec.Scores); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal component scores")
		}
		if reasonsJSON.Valid && reasonsJSON.String != "" {
			if err := json.Unmarshal([]byte(reasonsJSON.String), &rec.TopBuyReasons); err != nil {
				return nil, eris.Wrap(err, "sqlite: unmarshal buy reasons")
			}
		}
		if risksJSON.Valid && risksJSON.String != "" {
			if err := json.Unmarshal([]byte(risksJSON.String), &rec.TopRisks); err != nil {
				return nil, eris.Wrap(err, "sqlite: unmarshal risks")
			}
		}
		records = append(records, rec)
	}
	return records, eris.Wrap(rows.Err(), "sqlite: list scoring records iterate")
}

func (s *SQLiteStore) InsertQuestions(ctx context.Context, questions []model.FollowUpQuestion) error {
	for i := range questions {
		q := &questions[i]
		if q.ID == "" {
			q.ID = uuid.New().String()
		}
		if q.ResponseStatus == "" {
			q.ResponseStatus = model.ResponsePending
		}
		if q.CreatedAt.IsZero() {
			q.CreatedAt = time.Now().UTC()
		}

		_, err := s.db.ExecContext(ctx,
			`INSERT INTO follow_up_questions (id, business_id, record_version, question, triggered_by, severity, response_status, response, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			q.ID, q.BusinessID, q.RecordVersion, q.Text, q.TriggeredBy, string(q.Severity), string(q.ResponseStatus), q.Response, q.CreatedAt,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert question for %s", q.BusinessID)
		}
	}
	return nil
}

func (s *SQLiteStore) ListQuestions(ctx context.Context, businessID string) ([]model.FollowUpQuestion, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, business_id, record_version, question, triggered_by, severity, response_status, response, created_at, responded_at FROM follow_up_questions WHERE business_id = ? ORDER BY created_at ASC, id ASC`,
		businessID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list questions for %s", businessID)
	}
	defer rows.Close()

	var questions []model.FollowUpQuestion
	for rows.Next() {
		q, err := scanQuestionSQLite(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan question")
		}
		questions = append(questions, *q)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: list questions iterate")
	}
	sortBySeverity(questions)
	return questions, nil
}

func (s *SQLiteStore) RecordResponse(ctx context.Context, questionID string, status model.ResponseStatus, response string) (*model.FollowUpQuestion, error) {
	if !model.ResponsePending.CanTransition(status) {
		return nil, faults.NewValidation("response_status", "cannot transition to %q", status)
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE follow_up_questions SET response_status = ?, response = ?, responded_at = ? WHERE id = ? AND response_status = ?`,
		string(status), response, now, questionID, string(model.ResponsePending),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: record response for question %s", questionID)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: rows affected")
	}
	if affected == 0 {
		current, err := s.getQuestion(ctx, questionID)
		if err != nil {
			return nil, err
		}
		if current == nil {
			return nil, eris.Errorf("question not found: %s", questionID)
		}
		return nil, faults.NewValidation("response_status", "question %s already %s", questionID, current.ResponseStatus)
	}
	return s.getQuestion(ctx, questionID)
}

func (s *SQLiteStore) getQuestion(ctx context.Context, questionID string) (*model.FollowUpQuestion, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, business_id, record_version, question, triggered_by, severity, response_status, response, created_at, responded_at FROM follow_up_questions WHERE id = ?`,
		questionID,
	)
	q, err := scanQuestionSQLite(row)
	if err != nil {
		if eris.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: get question %s", questionID)
	}
	return q, nil
}

func scanQuestionSQLite(row rowScanner) (*model.FollowUpQuestion, error) {
	var q model.FollowUpQuestion
	var respondedAt sql.NullTime
	if err := row.Scan(&q.ID, &q.BusinessID, &q.RecordVersion, &q.Text, &q.TriggeredBy, &q.Severity, &q.ResponseStatus, &q.Response, &q.CreatedAt, &respondedAt); err != nil {
		return nil, err
	}
	if respondedAt.Valid {
		t := respondedAt.Time
		q.RespondedAt = &t
	}
	return &q, nil
}

func (s *SQLiteStore) InsertExecutionLog(ctx context.Context, entry *model.AgentExecutionLog) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}

	var metadataJSON any
	if entry.Metadata != nil {
		b, err := json.Marshal(entry.Metadata)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal execution log metadata")
		}
		metadataJSON = string(b)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO agent_execution_logs (id, agent_name, agent_type, business_id, sector_key, status, error_message, started_at, completed_at, duration_ms, metadata) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.AgentName, entry.AgentType, entry.BusinessID, entry.SectorKey, string(entry.Status), entry.ErrorMessage, entry.StartedAt, entry.CompletedAt, entry.DurationMS, metadataJSON,
	)
	return eris.Wrapf(err, "sqlite: insert execution log for %s", entry.AgentName)
}

func (s *SQLiteStore) ListExecutionLogs(ctx context.Context, filter ExecutionLogFilter) ([]model.AgentExecutionLog, error) {
	query := `SELECT id, agent_name, agent_type, business_id, sector_key, status, error_message, started_at, completed_at, duration_ms, metadata FROM agent_execution_logs WHERE 1=1`
	var args []any

	if filter.BusinessID != "" {
		query += ` AND business_id = ?`
		args = append(args, filter.BusinessID)
	}
	if filter.SectorKey != "" {
		query += ` AND sector_key = ?`
		args = append(args, filter.SectorKey)
	}
	if filter.AgentType != "" {
		query += ` AND agent_type = ?`
		args = append(args, filter.AgentType)
	}
	query += ` ORDER BY started_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list execution logs")
	}
	defer rows.Close()

	var entries []model.AgentExecutionLog
	for rows.Next() {
		var entry model.AgentExecutionLog
		var metadataJSON sql.NullString
		if err := rows.Scan(&entry.ID, &entry.AgentName, &entry.AgentType, &entry.BusinessID, &entry.SectorKey, &entry.Status, &entry.ErrorMessage, &entry.StartedAt, &entry.CompletedAt, &entry.DurationMS, &metadataJSON); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan execution log")
		}
		if metadataJSON.Valid && metadataJSON.String != "" {
			if err := json.Unmarshal([]byte(metadataJSON.String), &entry.Metadata); err != nil {
				return nil, eris.Wrap(err, "sqlite: unmarshal execution log metadata")
			}
		}
		entries = append(entries, entry)
	}
	return entries, eris.Wrap(rows.Err(), "sqlite: list execution logs iterate")
}
