// Package mapping holds the static per-provider field alias tables. The
// tables are embedded at build time, parsed once, and never mutated; they
// are the only place provider-specific key names are allowed to appear
// outside the adapters themselves.
package mapping

import (
	_ "embed"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/fundsync/internal/model"
)

//go:embed mappings.yaml
var rawMappings []byte

// Table maps canonical fields to a provider's key names.
type Table struct {
	Provider   string
	Fields     map[string][]string // canonical field -> ordered alias list
	SectorKeys []string            // keys that may carry a sector label
	Breakdown  map[string]string   // statement line-item label -> canonical column
}

// Set is the full collection of provider tables, loaded at process start.
type Set struct {
	tables map[string]Table
}

type rawFile struct {
	Providers map[string]rawTable `yaml:"providers"`
}

type rawTable struct {
	SectorKeys []string            `yaml:"sector_keys"`
	Fields     map[string][]string `yaml:"fields"`
	Breakdown  map[string]string   `yaml:"breakdown"`
}

// Load parses the embedded alias tables and validates every canonical
// name against the record schema.
func Load() (*Set, error) {
	var raw rawFile
	if err := yaml.Unmarshal(rawMappings, &raw); err != nil {
		return nil, eris.Wrap(err, "mapping: parse embedded tables")
	}

	set := &Set{tables: make(map[string]Table, len(raw.Providers))}
	for name, rt := range raw.Providers {
		for canonical := range rt.Fields {
			if _, ok := model.FieldByName(canonical); !ok {
				return nil, eris.Errorf("mapping: %s maps unknown field %q", name, canonical)
			}
		}
		for label, column := range rt.Breakdown {
			if !validCashFlowColumn(column) {
				return nil, eris.Errorf("mapping: %s breakdown %q targets unknown column %q", name, label, column)
			}
		}
		set.tables[name] = Table{
			Provider:   name,
			Fields:     rt.Fields,
			SectorKeys: rt.SectorKeys,
			Breakdown:  rt.Breakdown,
		}
	}
	return set, nil
}

// Table returns the alias table for a provider.
func (s *Set) Table(provider string) (Table, bool) {
	t, ok := s.tables[provider]
	return t, ok
}

// Providers returns the names of all mapped providers.
func (s *Set) Providers() []string {
	var names []string
	for name := range s.tables {
		names = append(names, name)
	}
	return names
}

// Resolve scans the alias list for a canonical field in declared order and
// returns the first alias present in the payload. Present means the key
// exists with a non-nil value; falsy values (0, "", false) still match.
func (t Table) Resolve(payload model.RawPayload, canonical string) (any, bool) {
	for _, alias := range t.Fields[canonical] {
		if v, ok := payload[alias]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// Sector returns the first sector label present in the payload.
func (t Table) Sector(payload model.RawPayload) string {
	for _, key := range t.SectorKeys {
		if v, ok := payload[key]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

// Column resolves a statement line-item label to its canonical column.
func (t Table) Column(label string) (string, bool) {
	col, ok := t.Breakdown[label]
	return col, ok
}

func validCashFlowColumn(name string) bool {
	for _, f := range model.CashFlowFields {
		if f.Name == name {
			return true
		}
	}
	return false
}
