package tools

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/crystaldolphin/toolsmith/internal/schema"
)

// ParamsSchema renders a parameter list as a JSON Schema object.
func ParamsSchema(params []schema.Param) *jsonschema.Schema {
	s := &jsonschema.Schema{
		Type:       "object",
		Properties: make(map[string]*jsonschema.Schema, len(params)),
	}
	for _, p := range params {
		prop := &jsonschema.Schema{
			Type:        string(p.Type),
			Description: p.Description,
		}
		if p.Default != nil {
			if raw, err := json.Marshal(p.Default); err == nil {
				prop.Default = raw
			}
		}
		s.Properties[p.Name] = prop
		if p.Required {
			s.Required = append(s.Required, p.Name)
		}
	}
	return s
}

// CatalogueEntry is the model-facing view of one tool.
type CatalogueEntry struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Parameters  *jsonschema.Schema `json:"parameters"`
}

// Catalogue snapshots the registry into model-facing entries.
func Catalogue(r *Registry) []CatalogueEntry {
	var out []CatalogueEntry
	for d := range r.List() {
		out = append(out, CatalogueEntry{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  ParamsSchema(d.Params),
		})
	}
	return out
}

// DescribeCatalogue formats entries as a compact list for prompts.
func DescribeCatalogue(entries []CatalogueEntry) string {
	if len(entries) == 0 {
		return "(no tools available)"
	}
	var sb strings.Builder
	for _, e := range entries {
		params, err := json.Marshal(e.Parameters)
		if err != nil {
			params = []byte("{}")
		}
		fmt.Fprintf(&sb, "- %s: %s\n  parameters: %s\n", e.Name, e.Description, params)
	}
	return strings.TrimRight(sb.String(), "\n")
}
