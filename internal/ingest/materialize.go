// Package ingest turns uploaded row batches into normalized KPI observations.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/esg-hub/internal/mapping"
	"github.com/sells-group/esg-hub/internal/model"
	"github.com/sells-group/esg-hub/internal/normalize"
	"github.com/sells-group/esg-hub/internal/store"
)

// ErrAlreadyProcessed is returned when a processed batch is materialized
// again without Force, including when a concurrent call marked it first.
var ErrAlreadyProcessed = store.ErrAlreadyProcessed

// SkipReason explains why a (row, column) cell produced no observation.
type SkipReason string

const (
	SkipEmpty         SkipReason = "empty"
	SkipLowConfidence SkipReason = "low_confidence"
	SkipUnparseable   SkipReason = "unparseable"
	SkipUnknownKPI    SkipReason = "unknown_kpi"
	SkipClassifyError SkipReason = "classify_error"
)

// MaterializeOptions controls re-runs.
type MaterializeOptions struct {
	// Force re-materializes a processed batch, replacing its observations.
	Force bool
}

// MaterializeResult summarizes one batch.
type MaterializeResult struct {
	RawRecordID string             `json:"raw_record_id"`
	Rows        int                `json:"rows"`
	Emitted     int                `json:"emitted"`
	CacheHits   int                `json:"cache_hits"`
	Classified  int                `json:"classified"`
	Skipped     map[SkipReason]int `json:"skipped"`
	Records     []model.NormRecord `json:"-"`
}

// BatchResult summarizes MaterializeBatch.
type BatchResult struct {
	Processed int      `json:"processed"`
	Failed    int      `json:"failed"`
	Skipped   int      `json:"skipped"`
	Errors    []string `json:"errors"`
}

// Stores is the persistence the materializer needs.
type Stores interface {
	store.CatalogStore
	store.RawStore
	store.NormStore
}

// Materializer applies column mappings to every row of a raw batch.
type Materializer struct {
	st            Stores
	cache         *mapping.RuleCache
	orch          *mapping.Orchestrator
	minConfidence float64
	concurrency   int
	now           func() time.Time
}

// NewMaterializer wires a materializer. Classifications below minConfidence
// are dropped; MaterializeBatch runs at most concurrency batches at once.
func NewMaterializer(st Stores, cache *mapping.RuleCache, orch *mapping.Orchestrator, minConfidence float64, concurrency int) *Materializer {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Materializer{
		st:            st,
		cache:         cache,
		orch:          orch,
		minConfidence: minConfidence,
		concurrency:   concurrency,
		now:           time.Now,
	}
}

// resolution is the mapping of one alias within a call.
type resolution struct {
	kpiID string
	skip  SkipReason
}

// Materialize maps every cell of the raw record to an observation, then
// stores the observations and marks the record processed in one step.
// Individual cells that cannot be mapped or parsed are skipped and counted.
func (m *Materializer) Materialize(ctx context.Context, rawRecordID string, opts MaterializeOptions) (*MaterializeResult, error) {
	rec, err := m.st.GetRawRecord(ctx, rawRecordID)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: load raw record %s", rawRecordID)
	}
	if rec.Processed && !opts.Force {
		return nil, eris.Wrapf(ErrAlreadyProcessed, "ingest: raw record %s", rawRecordID)
	}

	catalog, err := mapping.LoadCatalog(ctx, m.st)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: materialize %s", rawRecordID)
	}

	res := &MaterializeResult{
		RawRecordID: rawRecordID,
		Rows:        len(rec.Rows),
		Skipped:     make(map[SkipReason]int),
	}
	memo := make(map[string]resolution)
	now := m.now()

	for _, row := range rec.Rows {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrapf(err, "ingest: materialize %s", rawRecordID)
		}

		columns := make([]string, 0, len(row))
		for c := range row {
			columns = append(columns, c)
		}
		sort.Strings(columns)

		for _, col := range columns {
			v := row[col]
			if normalize.IsEmpty(v) {
				res.Skipped[SkipEmpty]++
				continue
			}

			r := m.resolve(ctx, col, v, catalog, memo, res)
			if r.skip != "" {
				res.Skipped[r.skip]++
				continue
			}

			value, ok := normalize.ParseNumeric(v)
			if !ok {
				res.Skipped[SkipUnparseable]++
				continue
			}

			kpi, ok := catalog.Get(r.kpiID)
			if !ok {
				res.Skipped[SkipUnknownKPI]++
				continue
			}

			res.Records = append(res.Records, model.NormRecord{
				RawRecordID: rawRecordID,
				KPIID:       kpi.ID,
				Value:       value,
				Unit:        kpi.Unit,
				Period:      normalize.ExtractPeriod(row, now),
			})
		}
	}

	if err := m.st.SaveNormalized(ctx, rawRecordID, res.Records, opts.Force); err != nil {
		return nil, eris.Wrapf(err, "ingest: save observations for %s", rawRecordID)
	}
	res.Emitted = len(res.Records)

	zap.L().Info("ingest: materialized raw record",
		zap.String("raw_record_id", rawRecordID),
		zap.Int("rows", res.Rows),
		zap.Int("emitted", res.Emitted),
		zap.Int("cache_hits", res.CacheHits),
		zap.Int("classified", res.Classified),
		zap.Any("skipped", res.Skipped),
	)
	return res, nil
}

// resolve maps a column to a KPI id: validated rule first, then the
// orchestrator with the current cell as the only sample. Only successful
// mappings are memoized, so a column that failed on one row is tried again
// with the next row's value.
func (m *Materializer) resolve(ctx context.Context, column string, v any, catalog *model.Catalog, memo map[string]resolution, res *MaterializeResult) resolution {
	alias := mapping.Alias(column)
	if r, ok := memo[alias]; ok {
		return r
	}

	r := m.lookup(ctx, column, v, catalog, res)
	if r.skip == "" {
		memo[alias] = r
	}
	return r
}

func (m *Materializer) lookup(ctx context.Context, column string, v any, catalog *model.Catalog, res *MaterializeResult) resolution {
	rule, err := m.cache.Resolve(ctx, column)
	if err != nil {
		zap.L().Warn("ingest: rule cache lookup failed", zap.String("column", column), zap.Error(err))
	}
	if rule != nil {
		res.CacheHits++
		return resolution{kpiID: rule.KPIID}
	}

	res.Classified++
	d := m.orch.Resolve(ctx, column, []string{normalize.CellString(v)}, catalog)
	if d.Suggestion == nil {
		if d.Failed() {
			return resolution{skip: SkipClassifyError}
		}
		return resolution{skip: SkipLowConfidence}
	}
	if d.Suggestion.Confidence < m.minConfidence {
		return resolution{skip: SkipLowConfidence}
	}

	if _, err := m.cache.Store(ctx, column, d.Suggestion.KPIID, d.Suggestion.Confidence); err != nil {
		zap.L().Warn("ingest: store mapping rule failed", zap.String("column", column), zap.Error(err))
	}
	return resolution{kpiID: d.Suggestion.KPIID}
}

// MaterializeBatch materializes each distinct id independently; one failure
// does not stop the others.
func (m *Materializer) MaterializeBatch(ctx context.Context, ids []string, opts MaterializeOptions) *BatchResult {
	out := &BatchResult{Errors: []string{}}
	ids = dedupe(ids)
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.concurrency)

	for _, id := range ids {
		g.Go(func() error {
			_, err := m.Materialize(gctx, id, opts)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				out.Processed++
			case errors.Is(err, ErrAlreadyProcessed):
				out.Skipped++
			default:
				out.Failed++
				out.Errors = append(out.Errors, fmt.Sprintf("%s: %v", id, err))
				zap.L().Error("ingest: materialize failed", zap.String("raw_record_id", id), zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()

	return out
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
