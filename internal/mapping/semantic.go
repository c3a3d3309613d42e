package mapping

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/esg-hub/internal/llm"
	"github.com/sells-group/esg-hub/internal/model"
	"github.com/sells-group/esg-hub/pkg/openai"
)

const semanticSystemPrompt = `You are an ESG data expert. Map a spreadsheet column to one standardized KPI following ISSB (International Sustainability Standards Board) guidelines.

KPI categories:
- environmental: GHG emissions (Scope 1, 2, 3), energy consumption, water usage, waste generation
- social: employee metrics, diversity, safety, community impact
- governance: board composition, ethics, compliance, risk management

Choose kpi_id only from the candidate list. If no candidate fits, set kpi_id to an empty string.
Respond with a JSON object: {"kpi_id": "<id or empty>", "confidence": <0.0-1.0>, "reasoning": "<one sentence>", "suggested_unit": "<unit or empty>"}`

const semanticUserPrompt = `Column: %s
Sample values: %s

Candidate KPIs (id | name | category | unit):
%s`

// semanticAnswer is the response shape requested from the model.
type semanticAnswer struct {
	KPIID         string  `json:"kpi_id" jsonschema_description:"Candidate KPI id, empty when none fits"`
	Confidence    float64 `json:"confidence" jsonschema_description:"Confidence between 0 and 1"`
	Reasoning     string  `json:"reasoning" jsonschema_description:"Brief explanation of the mapping"`
	SuggestedUnit string  `json:"suggested_unit" jsonschema_description:"Recommended unit, empty if the KPI unit applies"`
}

var semanticSchema = &openai.ResponseSchema{
	Name:        "kpi_mapping",
	Description: "Column to KPI mapping decision",
	Schema:      openai.SchemaFor[semanticAnswer](),
}

// SemanticClassifier asks a language model to pick a KPI for a column.
type SemanticClassifier struct {
	completer  llm.Completer
	maxSamples int
}

// NewSemanticClassifier builds a classifier that sends at most maxSamples
// sample values per request.
func NewSemanticClassifier(completer llm.Completer, maxSamples int) *SemanticClassifier {
	if maxSamples <= 0 {
		maxSamples = 5
	}
	return &SemanticClassifier{completer: completer, maxSamples: maxSamples}
}

func (s *SemanticClassifier) Source() model.Source { return model.SourceSemantic }

func (s *SemanticClassifier) Classify(ctx context.Context, column string, samples []string, catalog *model.Catalog) (*model.Suggestion, error) {
	if catalog.Len() == 0 {
		return nil, nil
	}

	raw, err := s.completer.CompleteJSON(ctx, llm.Prompt{
		System: semanticSystemPrompt,
		User:   buildSemanticPrompt(column, limitSamples(samples, s.maxSamples), catalog),
		Schema: semanticSchema,
	})
	if err != nil {
		return nil, eris.Wrapf(err, "mapping: semantic classify %q", column)
	}

	ans, err := parseSemanticAnswer(raw)
	if err != nil {
		return nil, eris.Wrapf(err, "mapping: semantic classify %q", column)
	}
	if ans.KPIID == "" {
		return nil, nil
	}

	kpi, ok := catalog.Get(ans.KPIID)
	if !ok {
		zap.L().Debug("mapping: semantic answer names unknown kpi",
			zap.String("column", column),
			zap.String("kpi_id", ans.KPIID),
		)
		return nil, nil
	}

	sug := model.NewSuggestion(column, kpi, clamp01(ans.Confidence), samples, model.SourceSemantic)
	sug.Reasoning = ans.Reasoning
	sug.SuggestedUnit = ans.SuggestedUnit
	return sug, nil
}

func buildSemanticPrompt(column string, samples []string, catalog *model.Catalog) string {
	var b strings.Builder
	for _, k := range catalog.All() {
		fmt.Fprintf(&b, "%s | %s | %s | %s\n", k.ID, k.Name, k.Category, k.Unit)
	}
	return fmt.Sprintf(semanticUserPrompt, column, strings.Join(samples, ", "), b.String())
}

// parseSemanticAnswer decodes the model response field by field and rejects
// any type mismatch. kpi_id and confidence are required, though a null
// kpi_id reads as no match; reasoning and suggested_unit may be absent.
func parseSemanticAnswer(raw string) (*semanticAnswer, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return nil, eris.Wrap(err, "mapping: response is not a JSON object")
	}

	var ans semanticAnswer

	idRaw, ok := fields["kpi_id"]
	if !ok {
		return nil, eris.New("mapping: response missing kpi_id")
	}
	if !isNull(idRaw) {
		if err := json.Unmarshal(idRaw, &ans.KPIID); err != nil {
			return nil, eris.Wrap(err, "mapping: kpi_id is not a string")
		}
	}

	confRaw, ok := fields["confidence"]
	if !ok || isNull(confRaw) {
		return nil, eris.New("mapping: response missing confidence")
	}
	if err := json.Unmarshal(confRaw, &ans.Confidence); err != nil {
		return nil, eris.Wrap(err, "mapping: confidence is not a number")
	}

	if err := optionalString(fields, "reasoning", &ans.Reasoning); err != nil {
		return nil, err
	}
	if err := optionalString(fields, "suggested_unit", &ans.SuggestedUnit); err != nil {
		return nil, err
	}
	return &ans, nil
}

func optionalString(fields map[string]json.RawMessage, key string, dst *string) error {
	raw, ok := fields[key]
	if !ok || isNull(raw) {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return eris.Wrapf(err, "mapping: %s is not a string", key)
	}
	return nil
}

func isNull(raw json.RawMessage) bool {
	return strings.TrimSpace(string(raw)) == "null"
}

func limitSamples(samples []string, n int) []string {
	if len(samples) <= n {
		return samples
	}
	return samples[:n]
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
