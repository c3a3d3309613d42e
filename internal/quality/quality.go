// Package quality scores an uploaded batch with a language model.
package quality

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/rotisserie/eris"

	"github.com/sells-group/esg-hub/internal/llm"
	"github.com/sells-group/esg-hub/internal/model"
	"github.com/sells-group/esg-hub/pkg/openai"
)

const systemPrompt = `You are a data quality expert specializing in ESG data. Analyze the provided data and return a JSON object with quality_score (integer 0-100), issues (array of strings) and suggestions (array of strings).`

const userPrompt = `Analyze the following ESG data for quality issues:

%s

Identify:
1. Missing values
2. Inconsistent formats
3. Outliers
4. Unit inconsistencies
5. Data completeness

Provide a quality score (0-100) and specific recommendations.`

// Report is the model's assessment of a batch.
type Report struct {
	QualityScore int      `json:"quality_score" jsonschema_description:"Overall quality from 0 to 100"`
	Issues       []string `json:"issues"`
	Suggestions  []string `json:"suggestions"`
}

// Below reports whether the score is under threshold.
func (r *Report) Below(threshold int) bool {
	return r != nil && r.QualityScore < threshold
}

var reportSchema = &openai.ResponseSchema{
	Name:        "data_quality",
	Description: "Data quality assessment",
	Schema:      openai.SchemaFor[Report](),
}

// Analyzer sends a sample of rows to the completion provider.
type Analyzer struct {
	completer  llm.Completer
	sampleRows int
}

// NewAnalyzer returns an analyzer that inspects the first sampleRows rows.
func NewAnalyzer(completer llm.Completer, sampleRows int) *Analyzer {
	if sampleRows <= 0 {
		sampleRows = 10
	}
	return &Analyzer{completer: completer, sampleRows: sampleRows}
}

// Analyze scores rows. Rate limits surface as llm.ErrRateLimited.
func (a *Analyzer) Analyze(ctx context.Context, rows []model.Row) (*Report, error) {
	if len(rows) == 0 {
		return nil, eris.New("quality: no rows to analyze")
	}

	sample := rows[:min(len(rows), a.sampleRows)]
	data, err := json.MarshalIndent(sample, "", "  ")
	if err != nil {
		return nil, eris.Wrap(err, "quality: marshal sample")
	}

	raw, err := a.completer.CompleteJSON(ctx, llm.Prompt{
		System: systemPrompt,
		User:   fmt.Sprintf(userPrompt, data),
		Schema: reportSchema,
	})
	if err != nil {
		return nil, eris.Wrap(err, "quality: analyze")
	}
	return parseReport(raw)
}

// parseReport rejects any response whose fields have the wrong type.
func parseReport(raw string) (*Report, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return nil, eris.Wrap(err, "quality: response is not a JSON object")
	}

	scoreRaw, ok := fields["quality_score"]
	if !ok {
		return nil, eris.New("quality: response missing quality_score")
	}
	var score float64
	if err := json.Unmarshal(scoreRaw, &score); err != nil {
		return nil, eris.Wrap(err, "quality: quality_score is not a number")
	}
	if score < 0 || score > 100 || math.IsNaN(score) {
		return nil, eris.Errorf("quality: quality_score %v out of range", score)
	}

	r := &Report{QualityScore: int(math.Round(score))}
	if err := stringList(fields, "issues", &r.Issues); err != nil {
		return nil, err
	}
	if err := stringList(fields, "suggestions", &r.Suggestions); err != nil {
		return nil, err
	}
	return r, nil
}

func stringList(fields map[string]json.RawMessage, key string, dst *[]string) error {
	raw, ok := fields[key]
	if !ok || string(raw) == "null" {
		*dst = []string{}
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return eris.Wrapf(err, "quality: %s is not a list of strings", key)
	}
	return nil
}
