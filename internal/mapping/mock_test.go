package mapping

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/esg-hub/internal/llm"
	"github.com/sells-group/esg-hub/internal/model"
	"github.com/sells-group/esg-hub/internal/store"
)

// --- Strategy Mock ---

type mockStrategy struct {
	mock.Mock
	src model.Source
}

func newMockStrategy(src model.Source) *mockStrategy {
	return &mockStrategy{src: src}
}

func (m *mockStrategy) Source() model.Source { return m.src }

func (m *mockStrategy) Classify(ctx context.Context, column string, samples []string, catalog *model.Catalog) (*model.Suggestion, error) {
	args := m.Called(ctx, column, samples, catalog)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Suggestion), args.Error(1)
}

// --- Completer Mock ---

type mockCompleter struct {
	mock.Mock
}

func (m *mockCompleter) CompleteJSON(ctx context.Context, p llm.Prompt) (string, error) {
	args := m.Called(ctx, p)
	return args.String(0), args.Error(1)
}

// --- Embedder Fake ---

// fakeEmbedder maps each text through fn and records every call.
type fakeEmbedder struct {
	mu    sync.Mutex
	fn    func(text string) []float64
	err   error
	calls [][]string
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, texts)
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float64, len(texts))
	for i, t := range texts {
		out[i] = f.fn(t)
	}
	return out, nil
}

func (f *fakeEmbedder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// --- Fixtures ---

func testKPIs() []model.KPI {
	return []model.KPI{
		{ID: "co2", Name: "CO2排出量", Description: "Scope 1 direct emissions", Unit: "tCO2e", Category: model.CategoryEnvironmental, Required: true},
		{ID: "scope2", Name: "Scope 2 Emissions", Description: "Purchased energy emissions", Unit: "tCO2e", Category: model.CategoryEnvironmental, Required: true},
		{ID: "water", Name: "Water Usage", Description: "Total water withdrawal", Unit: "m3", Category: model.CategoryEnvironmental, Required: true},
		{ID: "employees", Name: "Employee Count", Description: "Headcount at period end", Unit: "people", Category: model.CategorySocial},
		{ID: "women", Name: "Female Manager Ratio", Description: "Share of managers who are women", Unit: "%", Category: model.CategorySocial},
		{ID: "outside", Name: "社外役員比率", Description: "Outside officer ratio", Unit: "%", Category: model.CategoryGovernance},
	}
}

func testCatalog() *model.Catalog {
	return model.NewCatalog(testKPIs())
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "mapping.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	_, err = s.UpsertKPIs(context.Background(), testKPIs())
	require.NoError(t, err)
	return s
}

func suggestion(kpiID string, conf float64, src model.Source) *model.Suggestion {
	kpi, _ := testCatalog().Get(kpiID)
	return model.NewSuggestion("col", kpi, conf, nil, src)
}
