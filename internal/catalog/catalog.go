// Package catalog loads the KPI taxonomy seed file.
package catalog

import (
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/esg-hub/internal/model"
)

// LoadFile reads a KPI seed file. The YAML has a top-level "kpis" list.
func LoadFile(path string) ([]model.KPI, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: read %s", path)
	}
	return Parse(data)
}

// Parse decodes and validates KPI seed YAML.
func Parse(data []byte) ([]model.KPI, error) {
	var wrapper struct {
		KPIs []model.KPI `yaml:"kpis"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "catalog: parse")
	}
	if err := Validate(wrapper.KPIs); err != nil {
		return nil, err
	}
	return wrapper.KPIs, nil
}

// Validate checks names, categories and id uniqueness.
func Validate(kpis []model.KPI) error {
	var errs []string
	seen := make(map[string]bool, len(kpis))
	for i := range kpis {
		k := &kpis[i]
		k.Name = strings.TrimSpace(k.Name)
		if k.Name == "" {
			errs = append(errs, fmt.Sprintf("kpis[%d]: name is required", i))
		}
		k.Category = model.Category(strings.ToLower(string(k.Category)))
		if !k.Category.Valid() {
			errs = append(errs, fmt.Sprintf("kpis[%d]: invalid category %q", i, k.Category))
		}
		if k.ID == "" {
			continue
		}
		if seen[k.ID] {
			errs = append(errs, fmt.Sprintf("kpis[%d]: duplicate id %q", i, k.ID))
		}
		seen[k.ID] = true
	}
	if len(errs) > 0 {
		return eris.Errorf("catalog: %s", strings.Join(errs, "; "))
	}
	return nil
}
