package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/esg-hub/internal/db"
	"github.com/sells-group/esg-hub/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection. These
// are the per-column hot path during materialization.
var preparedStatements = map[string]string{
	"best_validated_rule": `SELECT id, alias, kpi_id, confidence, validated, created_at FROM mapping_rules WHERE alias = $1 AND validated ORDER BY confidence DESC, created_at DESC LIMIT 1`,
	"insert_rule":         `INSERT INTO mapping_rules (id, alias, kpi_id, confidence, validated, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
	"reported_kpi_ids":    `SELECT DISTINCT kpi_id FROM norm_records WHERE period = $1`,
	"last_reported":       `SELECT max(created_at) FROM norm_records WHERE kpi_id = $1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

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

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				// Tables may not exist before the first migrate.
				if strings.Contains(err.Error(), "does not exist") {
					continue
				}
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
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS kpis (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	unit        TEXT NOT NULL DEFAULT '',
	category    TEXT NOT NULL CHECK (category IN ('environmental', 'social', 'governance')),
	required    BOOLEAN NOT NULL DEFAULT false,
	issb_tag    TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS raw_records (
	id                TEXT PRIMARY KEY,
	data_source_id    TEXT NOT NULL DEFAULT '',
	file_uri          TEXT NOT NULL DEFAULT '',
	raw_data          JSONB NOT NULL,
	original_filename TEXT NOT NULL DEFAULT '',
	upload_timestamp  TIMESTAMPTZ NOT NULL DEFAULT now(),
	processed         BOOLEAN NOT NULL DEFAULT false
);

CREATE TABLE IF NOT EXISTS mapping_rules (
	id         TEXT PRIMARY KEY,
	alias      TEXT NOT NULL,
	kpi_id     TEXT NOT NULL REFERENCES kpis(id),
	confidence DOUBLE PRECISION NOT NULL CHECK (confidence >= 0 AND confidence <= 1),
	validated  BOOLEAN NOT NULL DEFAULT false,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS norm_records (
	id            TEXT PRIMARY KEY,
	raw_record_id TEXT NOT NULL REFERENCES raw_records(id),
	kpi_id        TEXT NOT NULL REFERENCES kpis(id),
	value         DOUBLE PRECISION NOT NULL,
	unit          TEXT NOT NULL DEFAULT '',
	period        TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS embedding_vectors (
	id         TEXT PRIMARY KEY,
	content    TEXT NOT NULL,
	embedding  vector NOT NULL,
	metadata   JSONB NOT NULL DEFAULT '{}',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS workflow_tasks (
	id          TEXT PRIMARY KEY,
	type        TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'pending',
	assignee_id TEXT NOT NULL DEFAULT '',
	record_id   TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_kpis_required ON kpis(required);
CREATE INDEX IF NOT EXISTS idx_raw_records_processed ON raw_records(processed);
CREATE INDEX IF NOT EXISTS idx_mapping_rules_alias ON mapping_rules(alias, validated, confidence DESC);
CREATE INDEX IF NOT EXISTS idx_norm_records_period ON norm_records(period, kpi_id);
CREATE INDEX IF NOT EXISTS idx_norm_records_kpi_created ON norm_records(kpi_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_norm_records_raw ON norm_records(raw_record_id);
CREATE INDEX IF NOT EXISTS idx_embedding_vectors_kpi ON embedding_vectors((metadata->>'kpi_id'));
CREATE INDEX IF NOT EXISTS idx_workflow_tasks_status ON workflow_tasks(status);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// --- KPI catalog ---

func (s *PostgresStore) ListKPIs(ctx context.Context, requiredOnly bool) ([]model.KPI, error) {
	query := `SELECT id, name, description, unit, category, required, issb_tag, created_at FROM kpis`
	if requiredOnly {
		query += ` WHERE required`
	}
	query += ` ORDER BY category, name`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list kpis")
	}
	defer rows.Close()

	var kpis []model.KPI
	for rows.Next() {
		var k model.KPI
		if err := rows.Scan(&k.ID, &k.Name, &k.Description, &k.Unit, &k.Category, &k.Required, &k.ISSBTag, &k.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan kpi")
		}
		kpis = append(kpis, k)
	}
	return kpis, eris.Wrap(rows.Err(), "postgres: iterate kpis")
}

func (s *PostgresStore) UpsertKPIs(ctx context.Context, kpis []model.KPI) (int64, error) {
	now := time.Now().UTC()
	rows := make([][]any, 0, len(kpis))
	for _, k := range kpis {
		id := k.ID
		if id == "" {
			id = uuid.New().String()
		}
		rows = append(rows, []any{id, k.Name, k.Description, k.Unit, string(k.Category), k.Required, k.ISSBTag, now})
	}

	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "kpis",
		Columns:      []string{"id", "name", "description", "unit", "category", "required", "issb_tag", "created_at"},
		ConflictKeys: []string{"id"},
		UpdateCols:   []string{"name", "description", "unit", "category", "required", "issb_tag"},
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: upsert kpis")
	}
	return n, nil
}

// --- Raw records ---

func (s *PostgresStore) CreateRawRecord(ctx context.Context, rec *model.RawRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.UploadedAt.IsZero() {
		rec.UploadedAt = time.Now().UTC()
	}
	rowsJSON, err := json.Marshal(rec.Rows)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal raw rows")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO raw_records (id, data_source_id, file_uri, raw_data, original_filename, upload_timestamp, processed) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.ID, rec.DataSourceID, rec.FileURI, rowsJSON, rec.OriginalFilename, rec.UploadedAt, rec.Processed,
	)
	return eris.Wrap(err, "postgres: insert raw record")
}

func (s *PostgresStore) GetRawRecord(ctx context.Context, id string) (*model.RawRecord, error) {
	var r model.RawRecord
	var rowsJSON []byte

	err := s.pool.QueryRow(ctx,
		`SELECT id, data_source_id, file_uri, raw_data, original_filename, upload_timestamp, processed FROM raw_records WHERE id = $1`,
		id,
	).Scan(&r.ID, &r.DataSourceID, &r.FileURI, &rowsJSON, &r.OriginalFilename, &r.UploadedAt, &r.Processed)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: raw record %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get raw record %s", id)
	}

	if err := json.Unmarshal(rowsJSON, &r.Rows); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal raw rows")
	}
	return &r, nil
}

// --- Mapping rules ---

func (s *PostgresStore) BestValidatedRule(ctx context.Context, alias string) (*model.MappingRule, error) {
	var r model.MappingRule
	err := s.pool.QueryRow(ctx, preparedStatements["best_validated_rule"], alias).
		Scan(&r.ID, &r.Alias, &r.KPIID, &r.Confidence, &r.Validated, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: best validated rule %q", alias)
	}
	return &r, nil
}

func (s *PostgresStore) InsertRule(ctx context.Context, rule model.MappingRule) (*model.MappingRule, error) {
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, preparedStatements["insert_rule"],
		rule.ID, rule.Alias, rule.KPIID, rule.Confidence, rule.Validated, rule.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert rule %q", rule.Alias)
	}
	return &rule, nil
}

func (s *PostgresStore) ListRules(ctx context.Context, filter RuleFilter) ([]model.MappingRule, error) {
	query := `SELECT id, alias, kpi_id, confidence, validated, created_at FROM mapping_rules WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Alias != "" {
		query += fmt.Sprintf(` AND alias = $%d`, argIdx)
		args = append(args, filter.Alias)
		argIdx++
	}
	if filter.KPIID != "" {
		query += fmt.Sprintf(` AND kpi_id = $%d`, argIdx)
		args = append(args, filter.KPIID)
		argIdx++
	}
	if filter.Validated != nil {
		query += fmt.Sprintf(` AND validated = $%d`, argIdx)
		args = append(args, *filter.Validated)
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list rules")
	}
	defer rows.Close()

	var rules []model.MappingRule
	for rows.Next() {
		var r model.MappingRule
		if err := rows.Scan(&r.ID, &r.Alias, &r.KPIID, &r.Confidence, &r.Validated, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan rule")
		}
		rules = append(rules, r)
	}
	return rules, eris.Wrap(rows.Err(), "postgres: iterate rules")
}

func (s *PostgresStore) SetRuleValidated(ctx context.Context, id string, validated bool) error {
	tag, err := s.pool.Exec(ctx, `UPDATE mapping_rules SET validated = $1 WHERE id = $2`, validated, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: set rule validated %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: rule %s", id)
	}
	return nil
}

// --- Normalized records ---

func (s *PostgresStore) SaveNormalized(ctx context.Context, rawRecordID string, recs []model.NormRecord, replace bool) error {
	rows := normRows(rawRecordID, recs)

	err := db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		// Marking first takes the row lock, so concurrent saves of one
		// record run one after the other.
		mark := `UPDATE raw_records SET processed = true WHERE id = $1 AND processed = false`
		if replace {
			mark = `UPDATE raw_records SET processed = true WHERE id = $1`
		}
		tag, err := tx.Exec(ctx, mark, rawRecordID)
		if err != nil {
			return eris.Wrap(err, "mark processed")
		}
		if tag.RowsAffected() == 0 {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM raw_records WHERE id = $1)`, rawRecordID).Scan(&exists); err != nil {
				return eris.Wrap(err, "check raw record")
			}
			if exists {
				return eris.Wrapf(ErrAlreadyProcessed, "raw record %s", rawRecordID)
			}
			return eris.Wrapf(ErrNotFound, "raw record %s", rawRecordID)
		}

		if replace {
			if _, err := tx.Exec(ctx, `DELETE FROM norm_records WHERE raw_record_id = $1`, rawRecordID); err != nil {
				return eris.Wrap(err, "delete previous norm records")
			}
		}
		_, err = db.CopyFrom(ctx, tx, "norm_records", normColumns, rows)
		return err
	})
	return eris.Wrapf(err, "postgres: save normalized %s", rawRecordID)
}

// normRows assigns ids and timestamps and flattens recs into COPY rows.
func normRows(rawRecordID string, recs []model.NormRecord) [][]any {
	now := time.Now().UTC()
	rows := make([][]any, len(recs))
	for i := range recs {
		r := &recs[i]
		if r.ID == "" {
			r.ID = uuid.New().String()
		}
		if r.CreatedAt.IsZero() {
			r.CreatedAt = now
		}
		r.RawRecordID = rawRecordID
		rows[i] = []any{r.ID, r.RawRecordID, r.KPIID, r.Value, r.Unit, r.Period, r.CreatedAt}
	}
	return rows
}

func (s *PostgresStore) ListNormRecords(ctx context.Context, rawRecordID string) ([]model.NormRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, raw_record_id, kpi_id, value, unit, period, created_at FROM norm_records WHERE raw_record_id = $1 ORDER BY kpi_id, period`,
		rawRecordID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list norm records for %s", rawRecordID)
	}
	defer rows.Close()

	var out []model.NormRecord
	for rows.Next() {
		var r model.NormRecord
		if err := rows.Scan(&r.ID, &r.RawRecordID, &r.KPIID, &r.Value, &r.Unit, &r.Period, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan norm record")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate norm records")
}

func (s *PostgresStore) ReportedKPIIDs(ctx context.Context, period string) ([]string, error) {
	rows, err := s.pool.Query(ctx, preparedStatements["reported_kpi_ids"], period)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: reported kpis for %s", period)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "postgres: scan kpi id")
		}
		ids = append(ids, id)
	}
	return ids, eris.Wrap(rows.Err(), "postgres: iterate reported kpis")
}

func (s *PostgresStore) LastReported(ctx context.Context, kpiID string) (*time.Time, error) {
	var ts *time.Time
	if err := s.pool.QueryRow(ctx, preparedStatements["last_reported"], kpiID).Scan(&ts); err != nil {
		return nil, eris.Wrapf(err, "postgres: last reported %s", kpiID)
	}
	return ts, nil
}

// --- Embeddings ---

func (s *PostgresStore) EmbeddedKPIIDs(ctx context.Context) (map[string]bool, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT metadata->>'kpi_id' FROM embedding_vectors WHERE metadata ? 'kpi_id'`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: embedded kpi ids")
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "postgres: scan embedded kpi id")
		}
		out[id] = true
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate embedded kpi ids")
}

func (s *PostgresStore) SaveEmbeddings(ctx context.Context, vecs []model.EmbeddingVector) error {
	err := db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		for _, v := range vecs {
			id := v.ID
			if id == "" {
				id = uuid.New().String()
			}
			meta, err := json.Marshal(v.Metadata)
			if err != nil {
				return eris.Wrap(err, "marshal metadata")
			}
			if _, err := tx.Exec(ctx,
				`INSERT INTO embedding_vectors (id, content, embedding, metadata, created_at) VALUES ($1, $2, $3::vector, $4, $5)`,
				id, v.Content, vectorLiteral(v.Embedding), meta, time.Now().UTC(),
			); err != nil {
				return eris.Wrapf(err, "insert embedding %s", v.KPIID())
			}
		}
		return nil
	})
	return eris.Wrap(err, "postgres: save embeddings")
}

func (s *PostgresStore) SearchEmbeddings(ctx context.Context, query []float64, threshold float64, limit int) ([]model.EmbeddingMatch, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, content, metadata, 1 - (embedding <=> $1::vector) AS similarity
		 FROM embedding_vectors
		 WHERE 1 - (embedding <=> $1::vector) >= $2
		 ORDER BY embedding <=> $1::vector
		 LIMIT $3`,
		vectorLiteral(query), threshold, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: search embeddings")
	}
	defer rows.Close()

	var matches []model.EmbeddingMatch
	for rows.Next() {
		var m model.EmbeddingMatch
		var meta []byte
		if err := rows.Scan(&m.ID, &m.Content, &meta, &m.Similarity); err != nil {
			return nil, eris.Wrap(err, "postgres: scan embedding match")
		}
		if err := json.Unmarshal(meta, &m.Metadata); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal embedding metadata")
		}
		matches = append(matches, m)
	}
	return matches, eris.Wrap(rows.Err(), "postgres: iterate embedding matches")
}

// vectorLiteral renders v in pgvector text form: [1,2.5,3].
func vectorLiteral(v []float64) string {
	var b strings.Builder
	b.Grow(len(v) * 10)
	b.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
	}
	b.WriteByte(']')
	return b.String()
}

// --- Workflow tasks ---

func (s *PostgresStore) CreateTask(ctx context.Context, task model.WorkflowTask) (*model.WorkflowTask, error) {
	if task.ID == "" {
		task.ID = uuid.New().String()
	}
	if task.Status == "" {
		task.Status = model.TaskStatusPending
	}
	task.CreatedAt = time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO workflow_tasks (id, type, status, assignee_id, record_id, description, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		task.ID, string(task.Type), string(task.Status), task.AssigneeID, task.RecordID, task.Description, task.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert task")
	}
	return &task, nil
}

func (s *PostgresStore) ListTasks(ctx context.Context, filter TaskFilter) ([]model.WorkflowTask, error) {
	query := `SELECT id, type, status, assignee_id, record_id, description, created_at FROM workflow_tasks`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` WHERE status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list tasks")
	}
	defer rows.Close()

	var tasks []model.WorkflowTask
	for rows.Next() {
		var t model.WorkflowTask
		if err := rows.Scan(&t.ID, &t.Type, &t.Status, &t.AssigneeID, &t.RecordID, &t.Description, &t.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan task")
		}
		tasks = append(tasks, t)
	}
	return tasks, eris.Wrap(rows.Err(), "postgres: iterate tasks")
}

func (s *PostgresStore) Stats(ctx context.Context) (*model.HubStats, error) {
	var st model.HubStats
	err := s.pool.QueryRow(ctx, `SELECT
		(SELECT COUNT(*) FROM raw_records WHERE processed = true),
		(SELECT COUNT(*) FROM raw_records WHERE processed = false),
		(SELECT COUNT(*) FROM norm_records),
		(SELECT COUNT(*) FROM mapping_rules WHERE validated = true),
		(SELECT COUNT(*) FROM mapping_rules)`,
	).Scan(&st.ProcessedRecords, &st.PendingRecords, &st.NormalizedRecords, &st.ValidatedMappings, &st.TotalMappings)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: stats")
	}
	return &st, nil
}
