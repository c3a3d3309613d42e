package mapping

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/esg-hub/internal/llm"
	"github.com/sells-group/esg-hub/internal/model"
	"github.com/sells-group/esg-hub/internal/store"
)

// EmbeddingMatcher finds the KPI whose cached embedding is nearest to the
// column text.
type EmbeddingMatcher struct {
	embedder   llm.Embedder
	store      store.EmbeddingStore
	threshold  float64
	maxMatches int
}

// NewEmbeddingMatcher builds a matcher; non-positive limits fall back to a
// 0.5 similarity floor and five candidates.
func NewEmbeddingMatcher(embedder llm.Embedder, st store.EmbeddingStore, threshold float64, maxMatches int) *EmbeddingMatcher {
	if threshold <= 0 {
		threshold = 0.5
	}
	if maxMatches <= 0 {
		maxMatches = 5
	}
	return &EmbeddingMatcher{embedder: embedder, store: st, threshold: threshold, maxMatches: maxMatches}
}

func (m *EmbeddingMatcher) Source() model.Source { return model.SourceEmbedding }

func (m *EmbeddingMatcher) Classify(ctx context.Context, column string, samples []string, catalog *model.Catalog) (*model.Suggestion, error) {
	vecs, err := m.embedder.Embed(ctx, []string{ColumnText(column, samples)})
	if err != nil {
		return nil, eris.Wrapf(err, "mapping: embed column %q", column)
	}
	if len(vecs) != 1 {
		return nil, eris.Errorf("mapping: embed column %q: got %d vectors", column, len(vecs))
	}

	if err := m.EnsureKPIEmbeddings(ctx, catalog); err != nil {
		return nil, err
	}

	matches, err := m.store.SearchEmbeddings(ctx, vecs[0], m.threshold, m.maxMatches)
	if err != nil {
		return nil, eris.Wrapf(err, "mapping: similarity search %q", column)
	}
	if len(matches) == 0 {
		return nil, nil
	}

	top := matches[0]
	kpiID := top.Metadata["kpi_id"]
	if kpiID == "" {
		return nil, nil
	}
	kpi, ok := catalog.Get(kpiID)
	if !ok {
		zap.L().Debug("mapping: embedding hit for kpi outside catalog", zap.String("kpi_id", kpiID))
		return nil, nil
	}
	return model.NewSuggestion(column, kpi, clamp01(top.Similarity), samples, model.SourceEmbedding), nil
}

// EnsureKPIEmbeddings computes and stores embeddings for catalog KPIs that
// have none yet.
func (m *EmbeddingMatcher) EnsureKPIEmbeddings(ctx context.Context, catalog *model.Catalog) error {
	have, err := m.store.EmbeddedKPIIDs(ctx)
	if err != nil {
		return eris.Wrap(err, "mapping: load embedded kpi ids")
	}

	var missing []model.KPI
	for _, k := range catalog.All() {
		if !have[k.ID] {
			missing = append(missing, k)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	texts := make([]string, len(missing))
	for i, k := range missing {
		texts[i] = k.EmbeddingText()
	}
	vecs, err := m.embedder.Embed(ctx, texts)
	if err != nil {
		return eris.Wrap(err, "mapping: embed kpis")
	}
	if len(vecs) != len(missing) {
		return eris.Errorf("mapping: embed kpis: got %d vectors for %d kpis", len(vecs), len(missing))
	}

	out := make([]model.EmbeddingVector, len(missing))
	for i, k := range missing {
		out[i] = model.EmbeddingVector{
			Content:   texts[i],
			Embedding: vecs[i],
			Metadata:  map[string]string{"kpi_id": k.ID, "type": "kpi"},
		}
	}
	if err := m.store.SaveEmbeddings(ctx, out); err != nil {
		return eris.Wrap(err, "mapping: save kpi embeddings")
	}

	zap.L().Info("mapping: cached kpi embeddings", zap.Int("count", len(out)))
	return nil
}

// ColumnText is the text embedded for a column: "name: v1, v2".
func ColumnText(column string, samples []string) string {
	return column + ": " + strings.Join(samples, ", ")
}
