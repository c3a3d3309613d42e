package mapping

import (
	"context"
	"strings"

	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"

	"github.com/sells-group/esg-hub/internal/model"
)

const (
	exactMatchConfidence   = 0.95
	keywordMatchConfidence = 0.85
)

// keywordBucket groups column-name keywords that denote one kind of metric.
// Buckets are checked in order, so the specific scope 2/3 buckets come
// before the generic emissions bucket and diversity before headcount.
type keywordBucket struct {
	name     string
	keywords []string
}

var keywordBuckets = []keywordBucket{
	{"ghg_scope2", []string{"scope2", "scope 2", "スコープ2", "indirect emission", "間接排出"}},
	{"ghg_scope3", []string{"scope3", "scope 3", "スコープ3", "value chain", "サプライチェーン排出"}},
	{"ghg_scope1", []string{"scope1", "scope 1", "スコープ1", "co2", "ghg", "greenhouse", "carbon", "emission", "温室効果ガス", "二酸化炭素", "排出"}},
	{"energy", []string{"energy", "electricity", "power", "kwh", "エネルギー", "電力"}},
	{"water", []string{"water", "h2o", "取水", "用水", "水使用", "水資源"}},
	{"waste", []string{"waste", "garbage", "trash", "disposal", "廃棄物"}},
	{"diversity", []string{"diversity", "gender", "female", "women", "minority", "inclusion", "女性", "多様性"}},
	{"employee", []string{"employee", "staff", "worker", "personnel", "headcount", "従業員", "社員"}},
	{"safety", []string{"safety", "accident", "incident", "injury", "ltir", "労働災害", "安全"}},
	{"governance", []string{"governance", "board", "director", "compliance", "ethics", "violation", "取締役", "コンプライアンス", "ガバナンス"}},
}

// fold lowercases s and maps full-width and compatibility forms to their
// canonical narrow equivalents, so "ＣＯ２" and "co2" compare equal.
func fold(s string) string {
	return strings.ToLower(strings.TrimSpace(width.Fold.String(norm.NFKC.String(s))))
}

// RuleClassifier matches column names against catalog names and a static
// keyword table. It never calls out.
type RuleClassifier struct{}

// NewRuleClassifier returns the keyword classifier.
func NewRuleClassifier() *RuleClassifier {
	return &RuleClassifier{}
}

func (r *RuleClassifier) Source() model.Source { return model.SourceRule }

func (r *RuleClassifier) Classify(_ context.Context, column string, samples []string, catalog *model.Catalog) (*model.Suggestion, error) {
	col := fold(column)
	if col == "" {
		return nil, nil
	}

	// Exact or substring match on the display name.
	for _, kpi := range catalog.All() {
		name := fold(kpi.Name)
		if name == "" {
			continue
		}
		if col == name || strings.Contains(name, col) || strings.Contains(col, name) {
			return model.NewSuggestion(column, kpi, exactMatchConfidence, samples, model.SourceRule), nil
		}
	}

	for _, b := range keywordBuckets {
		if !containsAny(col, b.keywords) {
			continue
		}
		for _, kpi := range catalog.All() {
			if containsAny(fold(kpi.Name), b.keywords) || strings.Contains(string(kpi.Category), b.name) {
				return model.NewSuggestion(column, kpi, keywordMatchConfidence, samples, model.SourceRule), nil
			}
		}
	}
	return nil, nil
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
