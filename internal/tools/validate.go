package tools

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/crystaldolphin/toolsmith/internal/schema"
)

// ValidateArguments checks args against params and returns the coerced
// argument map handed to Execute. Required parameters must be present and
// coercible to their declared type; absent optional parameters receive their
// default; unknown keys are dropped.
func ValidateArguments(args map[string]any, params []schema.Param) (map[string]any, error) {
	out := make(map[string]any, len(params))
	var problems []string

	for _, p := range params {
		raw, present := lookupArg(args, p.Name)
		if !present || raw == nil {
			if p.Required {
				problems = append(problems, fmt.Sprintf("missing required parameter %q", p.Name))
				continue
			}
			if p.Default != nil {
				out[p.Name] = p.Default
			}
			continue
		}

		v, err := coerce(raw, p.Type)
		if err != nil {
			problems = append(problems, fmt.Sprintf("parameter %q: %v", p.Name, err))
			continue
		}
		out[p.Name] = v
	}

	if len(problems) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrValidation, strings.Join(problems, "; "))
	}
	return out, nil
}

// lookupArg matches parameter names case-insensitively, preferring an exact key.
func lookupArg(args map[string]any, name string) (any, bool) {
	if v, ok := args[name]; ok {
		return v, true
	}
	for k, v := range args {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return nil, false
}

func coerce(v any, t schema.ParamType) (any, error) {
	switch t {
	case schema.TypeString, "":
		switch x := v.(type) {
		case string:
			return x, nil
		case float64:
			return strconv.FormatFloat(x, 'f', -1, 64), nil
		case int:
			return strconv.Itoa(x), nil
		case bool:
			return strconv.FormatBool(x), nil
		}
		return nil, fmt.Errorf("expected string, got %T", v)

	case schema.TypeNumber:
		return toFloat(v)

	case schema.TypeInteger:
		f, err := toFloat(v)
		if err != nil {
			return nil, err
		}
		if f != math.Trunc(f) {
			return nil, fmt.Errorf("expected integer, got %v", f)
		}
		return int64(f), nil

	case schema.TypeBoolean:
		switch x := v.(type) {
		case bool:
			return x, nil
		case string:
			b, err := strconv.ParseBool(strings.TrimSpace(x))
			if err != nil {
				return nil, fmt.Errorf("expected boolean, got %q", x)
			}
			return b, nil
		}
		return nil, fmt.Errorf("expected boolean, got %T", v)

	case schema.TypeObject:
		switch x := v.(type) {
		case map[string]any:
			return x, nil
		case string:
			var m map[string]any
			if err := json.Unmarshal([]byte(x), &m); err != nil {
				return nil, fmt.Errorf("expected object: %v", err)
			}
			return m, nil
		}
		return nil, fmt.Errorf("expected object, got %T", v)

	case schema.TypeArray:
		switch x := v.(type) {
		case []any:
			return x, nil
		case string:
			var a []any
			if err := json.Unmarshal([]byte(x), &a); err != nil {
				return nil, fmt.Errorf("expected array: %v", err)
			}
			return a, nil
		}
		return nil, fmt.Errorf("expected array, got %T", v)
	}
	return nil, fmt.Errorf("unsupported parameter type %q", t)
}

func toFloat(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case json.Number:
		return x.Float64()
	case string:
		s := strings.ReplaceAll(strings.TrimSpace(x), ",", ".")
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("expected number, got %q", x)
		}
		return f, nil
	}
	return 0, fmt.Errorf("expected number, got %T", v)
}
