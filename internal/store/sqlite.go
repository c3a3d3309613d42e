package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/esg-hub/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. Similarity search
// is computed in Go over the cached vectors.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// Pragmas are per connection.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS kpis (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	unit        TEXT NOT NULL DEFAULT '',
	category    TEXT NOT NULL,
	required    INTEGER NOT NULL DEFAULT 0,
	issb_tag    TEXT NOT NULL DEFAULT '',
	created_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS raw_records (
	id                TEXT PRIMARY KEY,
	data_source_id    TEXT NOT NULL DEFAULT '',
	file_uri          TEXT NOT NULL DEFAULT '',
	raw_data          TEXT NOT NULL,
	original_filename TEXT NOT NULL DEFAULT '',
	upload_timestamp  DATETIME NOT NULL DEFAULT (datetime('now')),
	processed         INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS mapping_rules (
	id         TEXT PRIMARY KEY,
	alias      TEXT NOT NULL,
	kpi_id     TEXT NOT NULL REFERENCES kpis(id),
	confidence REAL NOT NULL,
	validated  INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS norm_records (
	id            TEXT PRIMARY KEY,
	raw_record_id TEXT NOT NULL REFERENCES raw_records(id),
	kpi_id        TEXT NOT NULL REFERENCES kpis(id),
	value         REAL NOT NULL,
	unit          TEXT NOT NULL DEFAULT '',
	period        TEXT NOT NULL,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS embedding_vectors (
	id         TEXT PRIMARY KEY,
	content    TEXT NOT NULL,
	embedding  TEXT NOT NULL,
	metadata   TEXT NOT NULL DEFAULT '{}',
	kpi_id     TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS workflow_tasks (
	id          TEXT PRIMARY KEY,
	type        TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'pending',
	assignee_id TEXT NOT NULL DEFAULT '',
	record_id   TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	created_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_mapping_rules_alias ON mapping_rules(alias, validated, confidence);
CREATE INDEX IF NOT EXISTS idx_norm_records_period ON norm_records(period, kpi_id);
CREATE INDEX IF NOT EXISTS idx_norm_records_kpi ON norm_records(kpi_id, created_at);
CREATE INDEX IF NOT EXISTS idx_norm_records_raw ON norm_records(raw_record_id);
CREATE INDEX IF NOT EXISTS idx_embedding_vectors_kpi ON embedding_vectors(kpi_id);
CREATE INDEX IF NOT EXISTS idx_workflow_tasks_status ON workflow_tasks(status);
`

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- KPI catalog ---

func (s *SQLiteStore) ListKPIs(ctx context.Context, requiredOnly bool) ([]model.KPI, error) {
	query := `SELECT id, name, description, unit, category, required, issb_tag, created_at FROM kpis`
	if requiredOnly {
		query += ` WHERE required = 1`
	}
	query += ` ORDER BY category, name`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list kpis")
	}
	defer rows.Close()

	var kpis []model.KPI
	for rows.Next() {
		var k model.KPI
		var category string
		if err := rows.Scan(&k.ID, &k.Name, &k.Description, &k.Unit, &category, &k.Required, &k.ISSBTag, &k.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan kpi")
		}
		k.Category = model.Category(category)
		kpis = append(kpis, k)
	}
	return kpis, eris.Wrap(rows.Err(), "sqlite: iterate kpis")
}

func (s *SQLiteStore) UpsertKPIs(ctx context.Context, kpis []model.KPI) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin upsert kpis")
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	var n int64
	for _, k := range kpis {
		id := k.ID
		if id == "" {
			id = uuid.New().String()
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO kpis (id, name, description, unit, category, required, issb_tag, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET name = excluded.name, description = excluded.description,
			   unit = excluded.unit, category = excluded.category, required = excluded.required,
			   issb_tag = excluded.issb_tag`,
			id, k.Name, k.Description, k.Unit, string(k.Category), k.Required, k.ISSBTag, now,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert kpi %s", id)
		}
		affected, _ := res.RowsAffected()
		n += affected
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit upsert kpis")
	}
	return n, nil
}

// --- Raw records ---

func (s *SQLiteStore) CreateRawRecord(ctx context.Context, rec *model.RawRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.UploadedAt.IsZero() {
		rec.UploadedAt = time.Now().UTC()
	}
	rowsJSON, err := json.Marshal(rec.Rows)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal raw rows")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO raw_records (id, data_source_id, file_uri, raw_data, original_filename, upload_timestamp, processed) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.DataSourceID, rec.FileURI, string(rowsJSON), rec.OriginalFilename, rec.UploadedAt, rec.Processed,
	)
	return eris.Wrap(err, "sqlite: insert raw record")
}

func (s *SQLiteStore) GetRawRecord(ctx context.Context, id string) (*model.RawRecord, error) {
	var r model.RawRecord
	var rowsJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, data_source_id, file_uri, raw_data, original_filename, upload_timestamp, processed FROM raw_records WHERE id = ?`,
		id,
	).Scan(&r.ID, &r.DataSourceID, &r.FileURI, &rowsJSON, &r.OriginalFilename, &r.UploadedAt, &r.Processed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: raw record %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get raw record %s", id)
	}
	if err := json.Unmarshal([]byte(rowsJSON), &r.Rows); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal raw rows")
	}
	return &r, nil
}

// --- Mapping rules ---

func (s *SQLiteStore) BestValidatedRule(ctx context.Context, alias string) (*model.MappingRule, error) {
	r, err := scanRule(s.db.QueryRowContext(ctx,
		`SELECT id, alias, kpi_id, confidence, validated, created_at FROM mapping_rules
		 WHERE alias = ? AND validated = 1 ORDER BY confidence DESC, created_at DESC LIMIT 1`,
		alias,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: best validated rule %q", alias)
	}
	return r, nil
}

func (s *SQLiteStore) InsertRule(ctx context.Context, rule model.MappingRule) (*model.MappingRule, error) {
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO mapping_rules (id, alias, kpi_id, confidence, validated, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		rule.ID, rule.Alias, rule.KPIID, rule.Confidence, rule.Validated, rule.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert rule %q", rule.Alias)
	}
	return &rule, nil
}

func (s *SQLiteStore) ListRules(ctx context.Context, filter RuleFilter) ([]model.MappingRule, error) {
	query := `SELECT id, alias, kpi_id, confidence, validated, created_at FROM mapping_rules WHERE 1=1`
	args := []any{}
	if filter.Alias != "" {
		query += ` AND alias = ?`
		args = append(args, filter.Alias)
	}
	if filter.KPIID != "" {
		query += ` AND kpi_id = ?`
		args = append(args, filter.KPIID)
	}
	if filter.Validated != nil {
		query += ` AND validated = ?`
		args = append(args, *filter.Validated)
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ? OFFSET ?`
	args = append(args, limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list rules")
	}
	defer rows.Close()

	var rules []model.MappingRule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan rule")
		}
		rules = append(rules, *r)
	}
	return rules, eris.Wrap(rows.Err(), "sqlite: iterate rules")
}

func (s *SQLiteStore) SetRuleValidated(ctx context.Context, id string, validated bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE mapping_rules SET validated = ? WHERE id = ?`, validated, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set rule validated %s", id)
	}
	return checkRowsAffected(res, "rule", id)
}

// --- Normalized records ---

func (s *SQLiteStore) SaveNormalized(ctx context.Context, rawRecordID string, recs []model.NormRecord, replace bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin save normalized")
	}
	defer tx.Rollback() //nolint:errcheck

	mark := `UPDATE raw_records SET processed = 1 WHERE id = ? AND processed = 0`
	if replace {
		mark = `UPDATE raw_records SET processed = 1 WHERE id = ?`
	}
	res, err := tx.ExecContext(ctx, mark, rawRecordID)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark processed %s", rawRecordID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM raw_records WHERE id = ?)`, rawRecordID).Scan(&exists); err != nil {
			return eris.Wrapf(err, "sqlite: check raw record %s", rawRecordID)
		}
		if exists {
			return eris.Wrapf(ErrAlreadyProcessed, "sqlite: raw record %s", rawRecordID)
		}
		return eris.Wrapf(ErrNotFound, "sqlite: raw record %s", rawRecordID)
	}

	if replace {
		if _, err := tx.ExecContext(ctx, `DELETE FROM norm_records WHERE raw_record_id = ?`, rawRecordID); err != nil {
			return eris.Wrapf(err, "sqlite: delete norm records for %s", rawRecordID)
		}
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO norm_records (id, raw_record_id, kpi_id, value, unit, period, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare norm insert")
	}
	defer stmt.Close()

	for _, row := range normRows(rawRecordID, recs) {
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return eris.Wrap(err, "sqlite: insert norm record")
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit save normalized")
}

func (s *SQLiteStore) ListNormRecords(ctx context.Context, rawRecordID string) ([]model.NormRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, raw_record_id, kpi_id, value, unit, period, created_at FROM norm_records WHERE raw_record_id = ? ORDER BY kpi_id, period`,
		rawRecordID)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list norm records for %s", rawRecordID)
	}
	defer rows.Close()

	var out []model.NormRecord
	for rows.Next() {
		var r model.NormRecord
		if err := rows.Scan(&r.ID, &r.RawRecordID, &r.KPIID, &r.Value, &r.Unit, &r.Period, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan norm record")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate norm records")
}

func (s *SQLiteStore) ReportedKPIIDs(ctx context.Context, period string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT kpi_id FROM norm_records WHERE period = ? ORDER BY kpi_id`, period)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: reported kpis for %s", period)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan kpi id")
		}
		ids = append(ids, id)
	}
	return ids, eris.Wrap(rows.Err(), "sqlite: iterate reported kpis")
}

func (s *SQLiteStore) LastReported(ctx context.Context, kpiID string) (*time.Time, error) {
	var ts time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT created_at FROM norm_records WHERE kpi_id = ? ORDER BY created_at DESC LIMIT 1`, kpiID,
	).Scan(&ts)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: last reported %s", kpiID)
	}
	return &ts, nil
}

// --- Embeddings ---

func (s *SQLiteStore) EmbeddedKPIIDs(ctx context.Context) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT kpi_id FROM embedding_vectors WHERE kpi_id != ''`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: embedded kpi ids")
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan embedded kpi id")
		}
		out[id] = true
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate embedded kpi ids")
}

func (s *SQLiteStore) SaveEmbeddings(ctx context.Context, vecs []model.EmbeddingVector) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin save embeddings")
	}
	defer tx.Rollback() //nolint:errcheck

	for _, v := range vecs {
		id := v.ID
		if id == "" {
			id = uuid.New().String()
		}
		emb, err := json.Marshal(v.Embedding)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal embedding")
		}
		meta, err := json.Marshal(v.Metadata)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal metadata")
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO embedding_vectors (id, content, embedding, metadata, kpi_id, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
			id, v.Content, string(emb), string(meta), v.KPIID(), time.Now().UTC(),
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert embedding %s", v.KPIID())
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit save embeddings")
}

func (s *SQLiteStore) SearchEmbeddings(ctx context.Context, query []float64, threshold float64, limit int) ([]model.EmbeddingMatch, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, content, embedding, metadata FROM embedding_vectors`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: search embeddings")
	}
	defer rows.Close()

	var matches []model.EmbeddingMatch
	for rows.Next() {
		var m model.EmbeddingMatch
		var embJSON, metaJSON string
		if err := rows.Scan(&m.ID, &m.Content, &embJSON, &metaJSON); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan embedding")
		}
		var emb []float64
		if err := json.Unmarshal([]byte(embJSON), &emb); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal embedding")
		}
		m.Similarity = cosineSimilarity(query, emb)
		if m.Similarity < threshold {
			continue
		}
		if err := json.Unmarshal([]byte(metaJSON), &m.Metadata); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal embedding metadata")
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate embeddings")
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// cosineSimilarity returns 0 for mismatched or zero-length vectors.
func cosineSimilarity(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// --- Workflow tasks ---

func (s *SQLiteStore) CreateTask(ctx context.Context, task model.WorkflowTask) (*model.WorkflowTask, error) {
	if task.ID == "" {
		task.ID = uuid.New().String()
	}
	if task.Status == "" {
		task.Status = model.TaskStatusPending
	}
	task.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO workflow_tasks (id, type, status, assignee_id, record_id, description, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		task.ID, string(task.Type), string(task.Status), task.AssigneeID, task.RecordID, task.Description, task.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert task")
	}
	return &task, nil
}

func (s *SQLiteStore) ListTasks(ctx context.Context, filter TaskFilter) ([]model.WorkflowTask, error) {
	query := `SELECT id, type, status, assignee_id, record_id, description, created_at FROM workflow_tasks`
	args := []any{}
	if filter.Status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query += ` LIMIT ? OFFSET ?`
	args = append(args, limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list tasks")
	}
	defer rows.Close()

	var tasks []model.WorkflowTask
	for rows.Next() {
		var t model.WorkflowTask
		var typ, st string
		if err := rows.Scan(&t.ID, &typ, &st, &t.AssigneeID, &t.RecordID, &t.Description, &t.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan task")
		}
		t.Type = model.TaskType(typ)
		t.Status = model.TaskStatus(st)
		tasks = append(tasks, t)
	}
	return tasks, eris.Wrap(rows.Err(), "sqlite: iterate tasks")
}

func (s *SQLiteStore) Stats(ctx context.Context) (*model.HubStats, error) {
	var st model.HubStats
	err := s.db.QueryRowContext(ctx, `SELECT
		(SELECT COUNT(*) FROM raw_records WHERE processed = 1),
		(SELECT COUNT(*) FROM raw_records WHERE processed = 0),
		(SELECT COUNT(*) FROM norm_records),
		(SELECT COUNT(*) FROM mapping_rules WHERE validated = 1),
		(SELECT COUNT(*) FROM mapping_rules)`,
	).Scan(&st.ProcessedRecords, &st.PendingRecords, &st.NormalizedRecords, &st.ValidatedMappings, &st.TotalMappings)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: stats")
	}
	return &st, nil
}

// checkRowsAffected returns ErrNotFound if no rows were affected.
func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRule(row scannable) (*model.MappingRule, error) {
	var r model.MappingRule
	if err := row.Scan(&r.ID, &r.Alias, &r.KPIID, &r.Confidence, &r.Validated, &r.CreatedAt); err != nil {
		return nil, err
	}
	return &r, nil
}
