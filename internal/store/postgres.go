package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/acquire-pipeline/internal/faults"
	"github.com/sells-group/acquire-pipeline/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses. pgxmock satisfies it
// for unit tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hottest store operations.
var preparedStatements = map[string]string{
	"latest_canonical":  `SELECT id, business_id, version, content_hash, prompt_version, domains, confidence, created_at FROM canonical_records WHERE business_id = $1 ORDER BY version DESC LIMIT 1`,
	"canonical_by_hash": `SELECT id, business_id, version, content_hash, prompt_version, domains, confidence, created_at FROM canonical_records WHERE business_id = $1 AND content_hash = $2`,
	"insert_canonical":  `INSERT INTO canonical_records (id, business_id, version, content_hash, prompt_version, domains, confidence, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
	"latest_research":   `SELECT id, sector_key, agent_type, business_id, version, content_hash, prompt_version, output, created_at FROM sector_research WHERE sector_key = $1 AND agent_type = $2 ORDER BY version DESC LIMIT 1`,
	"research_by_hash":  `SELECT id, sector_key, agent_type, business_id, version, content_hash, prompt_version, output, created_at FROM sector_research WHERE sector_key = $1 AND agent_type = $2 AND content_hash = $3`,
	"insert_research":   `INSERT INTO sector_research (id, sector_key, agent_type, business_id, version, content_hash, prompt_version, output, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
	"insert_scoring":    `INSERT INTO scoring_records (id, business_id, record_version, scores, raw_trust, trust_penalty, total, tier, top_buy_reasons, top_risks, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
	"insert_question":   `INSERT INTO follow_up_questions (id, business_id, record_version, question, triggered_by, severity, response_status, response, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
	"insert_exec_log":   `INSERT INTO agent_execution_logs (id, agent_name, agent_type, business_id, sector_key, status, error_message, started_at, completed_at, duration_ms, metadata) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS canonical_records (
	id             TEXT PRIMARY KEY,
	business_id    TEXT NOT NULL,
	version        INTEGER NOT NULL,
	content_hash   TEXT NOT NULL,
	prompt_version TEXT NOT NULL,
	domains        JSONB NOT NULL,
	confidence     JSONB NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	CONSTRAINT canonical_records_version_key UNIQUE (business_id, version),
	CONSTRAINT canonical_records_hash_key UNIQUE (business_id, content_hash)
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
	output         JSONB NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	CONSTRAINT sector_research_version_key UNIQUE (sector_key, agent_type, version),
	CONSTRAINT sector_research_hash_key UNIQUE (sector_key, agent_type, content_hash)
);

CREATE INDEX IF NOT EXISTS idx_sector_research_key ON sector_research(sector_key, agent_type, version DESC);

CREATE TABLE IF NOT EXISTS scoring_records (
	id              TEXT PRIMARY KEY,
	business_id     TEXT NOT NULL,
	record_version  INTEGER NOT NULL,
	scores          JSONB NOT NULL,
	raw_trust       DOUBLE PRECISION NOT NULL,
	trust_penalty   DOUBLE PRECISION NOT NULL,
	total           DOUBLE PRECISION NOT NULL,
	tier            TEXT NOT NULL,
	top_buy_reasons JSONB,
	top_risks       JSONB,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
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
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	responded_at    TIMESTAMPTZ
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
	started_at    TIMESTAMPTZ NOT NULL,
	completed_at  TIMESTAMPTZ NOT NULL,
	duration_ms   BIGINT NOT NULL,
	metadata      JSONB
);

CREATE INDEX IF NOT EXISTS idx_agent_execution_logs_business ON agent_execution_logs(business_id);
CREATE INDEX IF NOT EXISTS idx_agent_execution_logs_sector ON agent_execution_logs(sector_key);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// isUniqueViolation reports whether err is a PostgreSQL unique-constraint
// violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (s *PostgresStore) AppendCanonical(ctx context.Context, rec *model.CanonicalRecord) (*model.CanonicalRecord, bool, error) {
	if err := validateCanonicalAppend(rec); err != nil {
		return nil, false, err
	}

	domainsJSON, err := json.Marshal(rec.Domains)
	if err != nil {
		return nil, false, eris.Wrap(err, "postgres: marshal domains")
	}
	confidenceJSON, err := json.Marshal(rec.Confidence)
	if err != nil {
		return nil, false, eris.Wrap(err, "postgres: marshal confidence flags")
	}

	for attempt := 0; attempt < maxAppendAttempts; attempt++ {
		existing, err := s.CanonicalByHash(ctx, rec.BusinessID, rec.ContentHash)
		if err != nil {
			return nil, false, err
		}
		if existing != nil {
			return existing, false, nil
		}

		latest, err := s.LatestCanonical(ctx, rec.BusinessID)
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

		_, err = s.pool.Exec(ctx,
			`INSERT INTO canonical_records (id, business_id, version, content_hash, prompt_version, domains, confidence, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			stored.ID, stored.BusinessID, stored.Version, stored.ContentHash, stored.PromptVersion, domainsJSON, confidenceJSON, stored.CreatedAt,
		)
		if err == nil {
			return &stored, true, nil
		}
		// A version collision means another writer committed this version;
		// a hash collision means it committed this exact content. Both are
		// resolved by re-reading at the top of the loop.
		if isUniqueViolation(err) {
			continue
		}
		return nil, false, eris.Wrapf(err, "postgres: append canonical record for %s", rec.BusinessID)
	}
	return nil, false, &faults.ConflictError{Key: rec.BusinessID, Attempts: maxAppendAttempts}
}

func (s *PostgresStore) LatestCanonical(ctx context.Context, businessID string) (*model.CanonicalRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, business_id, version, content_hash, prompt_version, domains, confidence, created_at FROM canonical_records WHERE business_id = $1 ORDER BY version DESC LIMIT 1`,
		businessID,
	)
	rec, err := scanCanonicalPG(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: latest canonical record for %s", businessID)
	}
	return rec, nil
}

func (s *PostgresStore) CanonicalByHash(ctx context.Context, businessID, contentHash string) (*model.CanonicalRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, business_id, version, content_hash, prompt_version, domains, confidence, created_at FROM canonical_records WHERE business_id = $1 AND content_hash = $2`,
		businessID, contentHash,
	)
	rec, err := scanCanonicalPG(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: canonical record by hash for %s", businessID)
	}
	return rec, nil
}

func scanCanonicalPG(row pgx.Row) (*model.CanonicalRecord, error) {
	var rec model.CanonicalRecord
	var domainsJSON, confidenceJSON []byte
	if err := row.Scan(&rec.ID, &rec.BusinessID, &rec.Version, &rec.ContentHash, &rec.PromptVersion, &domainsJSON, &confidenceJSON, &rec.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(domainsJSON, &rec.Domains); err != nil {
		return nil, eris.Wrap(err, "unmarshal domains")
	}
	if err := json.Unmarshal(confidenceJSON, &rec.Confidence); err != nil {
		return nil, eris.Wrap(err, "unmarshal confidence flags")
	}
	return &rec, nil
}

func (s *PostgresStore) AppendResearch(ctx context.Context, rec *model.SectorResearchRecord) (*model.SectorResearchRecord, bool, error) {
	if err := validateResearchAppend(rec); err != nil {
		return nil, false, err
	}

	for attempt := 0; attempt < maxAppendAttempts; attempt++ {
		existing, err := s.ResearchByHash(ctx, rec.SectorKey, rec.AgentType, rec.ContentHash)
		if err != nil {
			return nil, false, err
		}
		if existing != nil {
			return existing, false, nil
		}

		latest, err := s.LatestResearch(ctx, rec.SectorKey, rec.AgentType)
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

		_, err = s.pool.Exec(ctx,
			`INSERT INTO sector_research (id, sector_key, agent_type, business_id, version, content_hash, prompt_version, output, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			stored.ID, stored.SectorKey, string(stored.AgentType), stored.BusinessID, stored.Version, stored.ContentHash, stored.PromptVersion, stored.Output, stored.CreatedAt,
		)
		if err == nil {
			return &stored, true, nil
		}
		if isUniqueViolation(err) {
			continue
		}
		return nil, false, eris.Wrapf(err, "postgres: append research record for %s/%s", rec.SectorKey, rec.AgentType)
	}
	return nil, false, &faults.ConflictError{Key: rec.SectorKey + "/" + string(rec.AgentType), Attempts: maxAppendAttempts}
}

func (s *PostgresStore) LatestResearch(ctx context.Context, sectorKey string, agent model.AgentType) (*model.SectorResearchRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, sector_key, agent_type, business_id, version, content_hash, prompt_version, output, created_at FROM sector_research WHERE sector_key = $1 AND agent_type = $2 ORDER BY version DESC LIMIT 1`,
		sectorKey, string(agent),
	)
	rec, err := scanResearchPG(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: latest research record for %s/%s", sectorKey, agent)
	}
	return rec, nil
}

func (s *PostgresStore) ResearchByHash(ctx context.Context, sectorKey string, agent model.AgentType, contentHash string) (*model.SectorResearchRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, sector_key, agent_type, business_id, version, content_hash, prompt_version, output, created_at FROM sector_research WHERE sector_key = $1 AND agent_type = $2 AND content_hash = $3`,
		sectorKey, string(agent), contentHash,
	)
	rec, err := scanResearchPG(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: research record by hash for %s/%s", sectorKey, agent)
	}
	return rec, nil
}

func scanResearchPG(row pgx.Row) (*model.SectorResearchRecord, error) {
	var rec model.SectorResearchRecord
	if err := row.Scan(&rec.ID, &rec.SectorKey, &rec.AgentType, &rec.BusinessID, &rec.Version, &rec.ContentHash, &rec.PromptVersion, &rec.Output, &rec.CreatedAt); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *PostgresStore) InsertScoring(ctx context.Context, rec *model.ScoringRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	scoresJSON, err := json.Marshal(rec.Scores)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal component scores")
	}
	reasonsJSON, err := json.Marshal(rec.TopBuyReasons)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal buy reasons")
	}
	risksJSON, err := json.Marshal(rec.TopRisks)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal risks")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO scoring_records (id, business_id, record_version, scores, raw_trust, trust_penalty, total, tier, top_buy_reasons, top_risks, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		rec.ID, rec.BusinessID, rec.RecordVersion, scoresJSON, rec.RawTrust, rec.TrustPenalty, rec.Total, string(rec.Tier), reasonsJSON, risksJSON, rec.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: insert scoring record for %s", rec.BusinessID)
}

func (s *PostgresStore) ListScoring(ctx context.Context, businessID string) ([]model.ScoringRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, business_id, record_version, scores, raw_trust, trust_penalty, total, tier, top_buy_reasons, top_risks, created_at FROM scoring_records WHERE business_id = $1 ORDER BY created_at DESC`,
		businessID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list scoring records for %s", businessID)
	}
	defer rows.Close()

	var records []model.ScoringRecord
	for rows.Next() {
		var rec model.ScoringRecord
		var scoresJSON, reasonsJSON, risksJSON []byte
		if err := rows.Scan(&rec.ID, &rec.BusinessID, &rec.RecordVersion, &scoresJSON, &rec.RawTrust, &rec.TrustPenalty, &rec.Total, &rec.Tier, &reasonsJSON, &risksJSON, &rec.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan scoring record")
		}
		if err := json.Unmarshal(scoresJSON, &rec.Scores); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal component scores")
		}
		if len(reasonsJSON) > 0 {
			if err := json.Unmarshal(reasonsJSON, &rec.TopBuyReasons); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal buy reasons")
			}
		}
		if len(risksJSON) > 0 {
			if err := json.Unmarshal(risksJSON, &rec.TopRisks); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal risks")
			}
		}
		records = append(records, rec)
	}
	return records, eris.Wrap(rows.Err(), "postgres: list scoring records iterate")
}

func (s *PostgresStore) InsertQuestions(ctx context.Context, questions []model.FollowUpQuestion) error {
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

		_, err := s.pool.Exec(ctx,
			`INSERT INTO follow_up_questions (id, business_id, record_version, question, triggered_by, severity, response_status, response, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			q.ID, q.BusinessID, q.RecordVersion, q.Text, q.TriggeredBy, string(q.Severity), string(q.ResponseStatus), q.Response, q.CreatedAt,
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: insert question for %s", q.BusinessID)
		}
	}
	return nil
}

func (s *PostgresStore) ListQuestions(ctx context.Context, businessID string) ([]model.FollowUpQuestion, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, business_id, record_version, question, triggered_by, severity, response_status, response, created_at, responded_at FROM follow_up_questions WHERE business_id = $1 ORDER BY created_at ASC, id ASC`,
		businessID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list questions for %s", businessID)
	}
	defer rows.Close()

	var questions []model.FollowUpQuestion
	for rows.Next() {
		q, err := scanQuestionPG(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan question")
		}
		questions = append(questions, *q)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: list questions iterate")
	}
	sortBySeverity(questions)
	return questions, nil
}

func (s *PostgresStore) RecordResponse(ctx context.Context, questionID string, status model.ResponseStatus, response string) (*model.FollowUpQuestion, error) {
	if !model.ResponsePending.CanTransition(status) {
		return nil, faults.NewValidation("response_status", "cannot transition to %q", status)
	}

	now := time.Now().UTC()
	tag, err := s.pool.Exec(ctx,
		`UPDATE follow_up_questions SET response_status = $1, response = $2, responded_at = $3 WHERE id = $4 AND response_status = $5`,
		string(status), response, now, questionID, string(model.ResponsePending),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: record response for question %s", questionID)
	}
	if tag.RowsAffected() == 0 {
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

func (s *PostgresStore) getQuestion(ctx context.Context, questionID string) (*model.FollowUpQuestion, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, business_id, record_version, question, triggered_by, severity, response_status, response, created_at, responded_at FROM follow_up_questions WHERE id = $1`,
		questionID,
	)
	q, err := scanQuestionPG(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get question %s", questionID)
	}
	return q, nil
}

func scanQuestionPG(row pgx.Row) (*model.FollowUpQuestion, error) {
	var q model.FollowUpQuestion
	var respondedAt *time.Time
	if err := row.Scan(&q.ID, &q.BusinessID, &q.RecordVersion, &q.Text, &q.TriggeredBy, &q.Severity, &q.ResponseStatus, &q.Response, &q.CreatedAt, &respondedAt); err != nil {
		return nil, err
	}
	q.RespondedAt = respondedAt
	return &q, nil
}

func (s *PostgresStore) InsertExecutionLog(ctx context.Context, entry *model.AgentExecutionLog) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}

	var metadataJSON []byte
	if entry.Metadata != nil {
		var err error
		metadataJSON, err = json.Marshal(entry.Metadata)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal execution log metadata")
		}
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO agent_execution_logs (id, agent_name, agent_type, business_id, sector_key, status, error_message, started_at, completed_at, duration_ms, metadata) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		entry.ID, entry.AgentName, entry.AgentType, entry.BusinessID, entry.SectorKey, string(entry.Status), entry.ErrorMessage, entry.StartedAt, entry.CompletedAt, entry.DurationMS, metadataJSON,
	)
	return eris.Wrapf(err, "postgres: insert execution log for %s", entry.AgentName)
}

func (s *PostgresStore) ListExecutionLogs(ctx context.Context, filter ExecutionLogFilter) ([]model.AgentExecutionLog, error) {
	query := `SELECT id, agent_name, agent_type, business_id, sector_key, status, error_message, started_at, completed_at, duration_ms, metadata FROM agent_execution_logs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.BusinessID != "" {
		query += fmt.Sprintf(` AND business_id = $%d`, argIdx)
		args = append(args, filter.BusinessID)
		argIdx++
	}
	if filter.SectorKey != "" {
		query += fmt.Sprintf(` AND sector_key = $%d`, argIdx)
		args = append(args, filter.SectorKey)
		argIdx++
	}
	if filter.AgentType != "" {
		query += fmt.Sprintf(` AND agent_type = $%d`, argIdx)
		args = append(args, filter.AgentType)
		argIdx++
	}
	query += ` ORDER BY started_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list execution logs")
	}
	defer rows.Close()

	var entries []model.AgentExecutionLog
	for rows.Next() {
		var entry model.AgentExecutionLog
		var metadataJSON []byte
		if err := rows.Scan(&entry.ID, &entry.AgentName, &entry.AgentType, &entry.BusinessID, &entry.SectorKey, &entry.Status, &entry.ErrorMessage, &entry.StartedAt, &entry.CompletedAt, &entry.DurationMS, &metadataJSON); err != nil {
			return nil, eris.Wrap(err, "postgres: scan execution log")
		}
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &entry.Metadata); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal execution log metadata")
			}
		}
		entries = append(entries, entry)
	}
	return entries, eris.Wrap(rows.Err(), "postgres: list execution logs iterate")
}
