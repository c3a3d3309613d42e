package ingest

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sells-group/esg-hub/internal/mapping"
	"github.com/sells-group/esg-hub/internal/model"
	"github.com/sells-group/esg-hub/internal/notify"
	"github.com/sells-group/esg-hub/internal/quality"
	"github.com/sells-group/esg-hub/internal/store"
)

// --- Strategy Fake ---

// countingStrategy answers through fn and counts calls per column.
type countingStrategy struct {
	src model.Source
	fn  func(column string, samples []string, catalog *model.Catalog) (*model.Suggestion, error)

	mu    sync.Mutex
	calls map[string]int
}

func newCountingStrategy(src model.Source, fn func(string, []string, *model.Catalog) (*model.Suggestion, error)) *countingStrategy {
	return &countingStrategy{src: src, fn: fn, calls: make(map[string]int)}
}

// abstaining never suggests anything.
func abstaining(src model.Source) *countingStrategy {
	return newCountingStrategy(src, func(string, []string, *model.Catalog) (*model.Suggestion, error) {
		return nil, nil
	})
}

// keywordRules counts calls to the real keyword classifier.
func keywordRules() *countingStrategy {
	rc := mapping.NewRuleClassifier()
	return newCountingStrategy(model.SourceRule, func(column string, samples []string, catalog *model.Catalog) (*model.Suggestion, error) {
		return rc.Classify(context.Background(), column, samples, catalog)
	})
}

func (s *countingStrategy) Source() model.Source { return s.src }

func (s *countingStrategy) Classify(_ context.Context, column string, samples []string, catalog *model.Catalog) (*model.Suggestion, error) {
	s.mu.Lock()
	s.calls[column]++
	s.mu.Unlock()
	return s.fn(column, samples, catalog)
}

func (s *countingStrategy) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		n += c
	}
	return n
}

func (s *countingStrategy) callsFor(column string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[column]
}

// --- Notifier Fake ---

type qualityAlert struct {
	recordID string
	score    int
	issues   []string
}

type completion struct {
	recordID  string
	processed int
	score     *int
}

type fakeNotifier struct {
	mu          sync.Mutex
	completions []completion
	alerts      []qualityAlert
}

func (f *fakeNotifier) MissingKPIs(context.Context, []model.MissingKPIAlert, string) bool { return true }

func (f *fakeNotifier) ProcessingComplete(_ context.Context, recordID string, processed int, qualityScore *int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completions = append(f.completions, completion{recordID, processed, qualityScore})
	return true
}

func (f *fakeNotifier) DataQuality(_ context.Context, recordID string, qualityScore int, issues []string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, qualityAlert{recordID, qualityScore, issues})
	return true
}

func (f *fakeNotifier) Message(context.Context, string) bool { return true }

var _ notify.Notifier = (*fakeNotifier)(nil)

// --- Analyzer Fake ---

type fakeAnalyzer struct {
	report *quality.Report
	err    error
	rows   int
}

func (f *fakeAnalyzer) Analyze(_ context.Context, rows []model.Row) (*quality.Report, error) {
	f.rows = len(rows)
	return f.report, f.err
}

// --- Fixtures ---

var fixedNow = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

func testKPIs() []model.KPI {
	return []model.KPI{
		{ID: "co2", Name: "CO2排出量", Description: "Scope 1 direct emissions", Unit: "tCO2e", Category: model.CategoryEnvironmental, Required: true},
		{ID: "water", Name: "Water Usage", Description: "Total water withdrawal", Unit: "m3", Category: model.CategoryEnvironmental, Required: true},
	}
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "ingest.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	_, err = s.UpsertKPIs(context.Background(), testKPIs())
	require.NoError(t, err)
	return s
}

func newTestMaterializer(st store.Store, rule mapping.Strategy, fallbacks ...mapping.Strategy) *Materializer {
	orch := mapping.NewOrchestrator(rule, fallbacks, mapping.DefaultOrchestratorConfig())
	m := NewMaterializer(st, mapping.NewRuleCache(st, 0.8), orch, 0.7, 2)
	m.now = func() time.Time { return fixedNow }
	return m
}

func createRaw(t *testing.T, st store.Store, rows ...model.Row) string {
	t.Helper()
	rec := &model.RawRecord{DataSourceID: "ds-1", OriginalFilename: "upload.csv", Rows: rows}
	require.NoError(t, st.CreateRawRecord(context.Background(), rec))
	return rec.ID
}
