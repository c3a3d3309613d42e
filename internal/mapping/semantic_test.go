package mapping

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/esg-hub/internal/llm"
	"github.com/sells-group/esg-hub/internal/model"
)

func TestSemanticClassifier_ValidAnswer(t *testing.T) {
	mc := new(mockCompleter)
	mc.On("CompleteJSON", mock.Anything, mock.Anything).
		Return(`{"kpi_id":"water","confidence":0.78,"reasoning":"withdrawal volume","suggested_unit":"m3"}`, nil)

	s := NewSemanticClassifier(mc, 5)
	sug, err := s.Classify(context.Background(), "取水", []string{"1200"}, testCatalog())
	require.NoError(t, err)
	require.NotNil(t, sug)
	assert.Equal(t, "water", sug.KPIID)
	assert.InDelta(t, 0.78, sug.Confidence, 1e-9)
	assert.Equal(t, "withdrawal volume", sug.Reasoning)
	assert.Equal(t, "m3", sug.SuggestedUnit)
	assert.Equal(t, model.SourceSemantic, sug.Source)
	assert.False(t, sug.AutoApprove)
}

func TestSemanticClassifier_PromptContents(t *testing.T) {
	mc := new(mockCompleter)
	mc.On("CompleteJSON", mock.Anything, mock.MatchedBy(func(p llm.Prompt) bool {
		return p.Schema != nil && p.Schema.Name == "kpi_mapping" &&
			strings.Contains(p.System, "ISSB") &&
			strings.Contains(p.User, "Column: 排水量") &&
			strings.Contains(p.User, "Sample values: 1, 2, 3, 4, 5\n") &&
			!strings.Contains(p.User, "6") &&
			strings.Contains(p.User, "water | Water Usage | environmental | m3")
	})).Return(`{"kpi_id":"","confidence":0}`, nil)

	s := NewSemanticClassifier(mc, 5)
	sug, err := s.Classify(context.Background(), "排水量", []string{"1", "2", "3", "4", "5", "6"}, testCatalog())
	require.NoError(t, err)
	assert.Nil(t, sug)
	mc.AssertExpectations(t)
}

func TestSemanticClassifier_ClampsConfidence(t *testing.T) {
	mc := new(mockCompleter)
	mc.On("CompleteJSON", mock.Anything, mock.Anything).Return(`{"kpi_id":"co2","confidence":1.7}`, nil)

	sug, err := NewSemanticClassifier(mc, 5).Classify(context.Background(), "x", nil, testCatalog())
	require.NoError(t, err)
	require.NotNil(t, sug)
	assert.Equal(t, 1.0, sug.Confidence)
}

func TestSemanticClassifier_Abstains(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{"unknown kpi id", `{"kpi_id":"scope-9","confidence":0.99}`, false},
		{"null kpi id", `{"kpi_id":null,"confidence":0.2}`, false},
		{"empty kpi id", `{"kpi_id":"","confidence":0.2}`, false},
		{"kpi id is a number", `{"kpi_id":42,"confidence":0.9}`, true},
		{"confidence is a string", `{"kpi_id":"co2","confidence":"0.9"}`, true},
		{"missing confidence", `{"kpi_id":"co2"}`, true},
		{"missing kpi id", `{"confidence":0.9}`, true},
		{"reasoning is an object", `{"kpi_id":"co2","confidence":0.9,"reasoning":{}}`, true},
		{"not json", `sorry, I cannot help`, true},
		{"json array", `[{"kpi_id":"co2"}]`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mc := new(mockCompleter)
			mc.On("CompleteJSON", mock.Anything, mock.Anything).Return(tt.raw, nil)

			sug, err := NewSemanticClassifier(mc, 5).Classify(context.Background(), "x", nil, testCatalog())
			assert.Nil(t, sug)
			if tt.wantErr {
				assert.Error(t, err)
				assert.False(t, llm.IsRateLimited(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSemanticClassifier_RateLimited(t *testing.T) {
	mc := new(mockCompleter)
	mc.On("CompleteJSON", mock.Anything, mock.Anything).
		Return("", eris.Wrap(llm.ErrRateLimited, "anthropic completer"))

	sug, err := NewSemanticClassifier(mc, 5).Classify(context.Background(), "x", nil, testCatalog())
	assert.Nil(t, sug)
	require.Error(t, err)
	assert.True(t, llm.IsRateLimited(err))
}

func TestSemanticClassifier_ProviderError(t *testing.T) {
	mc := new(mockCompleter)
	mc.On("CompleteJSON", mock.Anything, mock.Anything).Return("", errors.New("connection reset"))

	sug, err := NewSemanticClassifier(mc, 5).Classify(context.Background(), "x", nil, testCatalog())
	assert.Nil(t, sug)
	require.Error(t, err)
	assert.False(t, llm.IsRateLimited(err))
}

func TestSemanticClassifier_EmptyCatalog(t *testing.T) {
	mc := new(mockCompleter)
	sug, err := NewSemanticClassifier(mc, 5).Classify(context.Background(), "x", nil, model.NewCatalog(nil))
	require.NoError(t, err)
	assert.Nil(t, sug)
	mc.AssertNotCalled(t, "CompleteJSON", mock.Anything, mock.Anything)
}
