// Package pricing resolves per-model token prices and turns token usage
// into money. All monetary values are decimals; float64 never touches a
// cost on its way to the usage store.
package pricing

import (
	"fmt"
	"os"
	"regexp"
	"sort"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// ModelPricing is one row of the pricing table. Costs are per 1000 tokens.
type ModelPricing struct {
	InputCostPer1K  decimal.Decimal `json:"input_cost_per_1k"`
	OutputCostPer1K decimal.Decimal `json:"output_cost_per_1k"`
	ContextWindow   int             `json:"context_window"`
}

// Versioned model names carry a trailing release date, e.g.
// claude-3-5-sonnet-20241022.
var dateSuffix = regexp.MustCompile(`-20\d{6}$`)

// Table maps model names to pricing rows and always resolves to something:
// exact name, date-stripped name, or the default row.
type Table struct {
	rows       map[string]ModelPricing
	stripped   map[string]string
	defaultRow ModelPricing
}

// NewTable returns a table seeded with the built-in rows for common models
// and a conservative default.
func NewTable() *Table {
	t := &Table{
		rows: map[string]ModelPricing{
			"gpt-4o": {
				InputCostPer1K:  decimal.RequireFromString("0.0025"),
				OutputCostPer1K: decimal.RequireFromString("0.01"),
				ContextWindow:   128000,
			},
			"gpt-4o-mini": {
				InputCostPer1K:  decimal.RequireFromString("0.00015"),
				OutputCostPer1K: decimal.RequireFromString("0.0006"),
				ContextWindow:   128000,
			},
			"gpt-4-turbo": {
				InputCostPer1K:  decimal.RequireFromString("0.01"),
				OutputCostPer1K: decimal.RequireFromString("0.03"),
				ContextWindow:   128000,
			},
			"gpt-3.5-turbo": {
				InputCostPer1K:  decimal.RequireFromString("0.0005"),
				OutputCostPer1K: decimal.RequireFromString("0.0015"),
				ContextWindow:   16385,
			},
			"claude-3-5-sonnet": {
				InputCostPer1K:  decimal.RequireFromString("0.003"),
				OutputCostPer1K: decimal.RequireFromString("0.015"),
				ContextWindow:   200000,
			},
			"claude-3-opus": {
				InputCostPer1K:  decimal.RequireFromString("0.015"),
				OutputCostPer1K: decimal.RequireFromString("0.075"),
				ContextWindow:   200000,
			},
			"claude-3-haiku": {
				InputCostPer1K:  decimal.RequireFromString("0.00025"),
				OutputCostPer1K: decimal.RequireFromString("0.00125"),
				ContextWindow:   200000,
			},
		},
		defaultRow: ModelPricing{
			InputCostPer1K:  decimal.RequireFromString("0.01"),
			OutputCostPer1K: decimal.RequireFromString("0.03"),
			ContextWindow:   8192,
		},
	}
	t.reindex()
	return t
}

// yamlRow is the on-disk shape of one pricing row. Costs are strings so
// the YAML file never depends on float formatting.
type yamlRow struct {
	InputCostPer1K  string `yaml:"input_cost_per_1k"`
	OutputCostPer1K string `yaml:"output_cost_per_1k"`
	ContextWindow   int    `yaml:"context_window"`
}

type yamlTable struct {
	Default *yamlRow           `yaml:"default"`
	Models  map[string]yamlRow `yaml:"models"`
}

// LoadTable reads an operator-maintained YAML pricing file and merges it
// over the built-in rows. File entries win on conflict.
func LoadTable(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pricing file: %w", err)
	}

	var file yamlTable
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse pricing file: %w", err)
	}

	t := NewTable()
	if file.Default != nil {
		row, err := file.Default.toPricing()
		if err != nil {
			return nil, fmt.Errorf("pricing default row: %w", err)
		}
		t.defaultRow = row
	}
	for name, raw := range file.Models {
		row, err := raw.toPricing()
		if err != nil {
			return nil, fmt.Errorf("pricing row %q: %w", name, err)
		}
		t.rows[name] = row
	}
	t.reindex()
	return t, nil
}

func (r yamlRow) toPricing() (ModelPricing, error) {
	input, err := decimal.NewFromString(r.InputCostPer1K)
	if err != nil {
		return ModelPricing{}, fmt.Errorf("input_cost_per_1k: %w", err)
	}
	output, err := decimal.NewFromString(r.OutputCostPer1K)
	if err != nil {
		return ModelPricing{}, fmt.Errorf("output_cost_per_1k: %w", err)
	}
	if r.ContextWindow <= 0 {
		return ModelPricing{}, fmt.Errorf("context_window must be positive")
	}
	return ModelPricing{
		InputCostPer1K:  input,
		OutputCostPer1K: output,
		ContextWindow:   r.ContextWindow,
	}, nil
}

// reindex rebuilds the date-stripped lookup. When several dated names
// strip to the same base, the lexicographically first key wins so
// resolution stays deterministic.
func (t *Table) reindex() {
	t.stripped = make(map[string]string, len(t.rows))

	names := make([]string, 0, len(t.rows))
	for name := range t.rows {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		base := dateSuffix.ReplaceAllString(name, "")
		if base == name {
			continue
		}
		if _, ok := t.stripped[base]; !ok {
			t.stripped[base] = name
		}
	}
}

// Resolve returns the pricing row for a model name. Resolution is total:
// exact match, then date-suffix-insensitive match, then the default row.
func (t *Table) Resolve(model string) ModelPricing {
	if row, ok := t.rows[model]; ok {
		return row
	}

	// Requested name is dated, table knows the undated base.
	if base := dateSuffix.ReplaceAllString(model, ""); base != model {
		if row, ok := t.rows[base]; ok {
			return row
		}
	}

	// Table key is dated, requested name is the undated base.
	if dated, ok := t.stripped[model]; ok {
		return t.rows[dated]
	}

	return t.defaultRow
}

// Default returns the fallback row used for unknown models.
func (t *Table) Default() ModelPricing {
	return t.defaultRow
}
