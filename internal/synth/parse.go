package synth

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/crystaldolphin/toolsmith/internal/schema"
	"github.com/crystaldolphin/toolsmith/internal/shared/stringutils"
	"github.com/crystaldolphin/toolsmith/internal/toolbox"
)

// Candidate is the tool a model proposed for an unmet request.
type Candidate struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Runtime     toolbox.Runtime `json:"runtime"`
	Parameters  []schema.Param  `json:"parameters"`
	Source      string          `json:"source"`
	Arguments   map[string]any  `json:"arguments"`
}

const candidateSchemaJSON = `{
  "type": "object",
  "required": ["name", "description", "runtime", "parameters", "source"],
  "properties": {
    "name": {"type": "string", "minLength": 2, "maxLength": 64},
    "description": {"type": "string", "minLength": 1},
    "runtime": {"type": "string", "enum": ["python", "javascript"]},
    "parameters": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name", "type"],
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "type": {"type": "string", "enum": ["string", "number", "integer", "boolean", "object", "array"]},
          "required": {"type": "boolean"},
          "description": {"type": "string"}
        }
      }
    },
    "source": {"type": "string", "minLength": 1},
    "arguments": {"type": ["object", "null"]}
  }
}`

var candidateSchema = sync.OnceValues(func() (*jsonschema.Resolved, error) {
	var s jsonschema.Schema
	if err := json.Unmarshal([]byte(candidateSchemaJSON), &s); err != nil {
		return nil, err
	}
	return s.Resolve(nil)
})

var (
	fenceRE     = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*\\n(.*?)\\n?```\\s*$")
	pyExecuteRE = regexp.MustCompile(`(?m)^(?:async\s+)?def\s+execute\s*\(`)
	jsExecuteRE = regexp.MustCompile(`(?m)^\s*(?:export\s+)?(?:async\s+)?function\s+execute\s*\(|^\s*(?:export\s+)?(?:const|let|var)\s+execute\s*=`)
	pyMainGuard = regexp.MustCompile(`(?m)^if\s+__name__\s*==`)
	jsStdinRead = regexp.MustCompile(`process\.stdin`)
)

// StripFences removes a surrounding markdown code fence, if any.
func StripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if m := fenceRE.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	return s
}

// ParseCandidate decodes and structurally checks a model reply. The reply
// must hold exactly one JSON object describing exactly one tool.
func ParseCandidate(raw string) (Candidate, error) {
	body := StripFences(stringutils.StripThink(raw))
	start := strings.Index(body, "{")
	end := strings.LastIndex(body, "}")
	if start < 0 || end <= start {
		return Candidate{}, fmt.Errorf("%w: reply contains no JSON object", ErrSynthesisFailure)
	}
	body = body[start : end+1]

	dec := json.NewDecoder(strings.NewReader(body))
	var instance any
	if err := dec.Decode(&instance); err != nil {
		return Candidate{}, fmt.Errorf("%w: decode reply: %v", ErrSynthesisFailure, err)
	}
	if dec.More() {
		return Candidate{}, fmt.Errorf("%w: reply contains more than one JSON value", ErrSynthesisFailure)
	}

	resolved, err := candidateSchema()
	if err != nil {
		return Candidate{}, fmt.Errorf("candidate schema: %w", err)
	}
	if err := resolved.Validate(instance); err != nil {
		return Candidate{}, fmt.Errorf("%w: %v", ErrSynthesisFailure, err)
	}

	var c Candidate
	if err := json.Unmarshal([]byte(body), &c); err != nil {
		return Candidate{}, fmt.Errorf("%w: decode candidate: %v", ErrSynthesisFailure, err)
	}
	if err := checkCandidate(&c); err != nil {
		return Candidate{}, fmt.Errorf("%w: %v", ErrSynthesisFailure, err)
	}
	return c, nil
}

func checkCandidate(c *Candidate) error {
	c.Name = strings.TrimSpace(c.Name)
	if !toolbox.ValidModuleName(c.Name) {
		return fmt.Errorf("tool name %q must match ^[a-z][a-z0-9_]{1,63}$", c.Name)
	}

	seen := make(map[string]bool, len(c.Parameters))
	for i, p := range c.Parameters {
		key := strings.ToLower(strings.TrimSpace(p.Name))
		if seen[key] {
			return fmt.Errorf("duplicate parameter %q", p.Name)
		}
		seen[key] = true
		if !p.Type.Valid() {
			return fmt.Errorf("parameter %q has unsupported type %q", p.Name, p.Type)
		}
		c.Parameters[i].Name = strings.TrimSpace(p.Name)
	}

	var defs int
	switch c.Runtime {
	case toolbox.RuntimePython:
		defs = len(pyExecuteRE.FindAllStringIndex(c.Source, -1))
		if pyMainGuard.MatchString(c.Source) {
			return fmt.Errorf("source must not contain a __main__ block")
		}
	case toolbox.RuntimeJavaScript:
		defs = len(jsExecuteRE.FindAllStringIndex(c.Source, -1))
		if jsStdinRead.MatchString(c.Source) {
			return fmt.Errorf("source must not read stdin")
		}
	default:
		return fmt.Errorf("unsupported runtime %q", c.Runtime)
	}
	if defs != 1 {
		return fmt.Errorf("source must define execute exactly once, found %d", defs)
	}

	if c.Arguments == nil {
		c.Arguments = map[string]any{}
	}
	return nil
}
