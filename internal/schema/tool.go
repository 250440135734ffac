// Package schema contains the core contracts shared across toolsmith packages.
// Concrete implementations live in their respective packages.
package schema

import (
	"context"
	"slices"
	"time"
)

// ToolKind records where a tool came from.
type ToolKind string

const (
	KindBuiltin ToolKind = "builtin"
	KindDynamic ToolKind = "dynamic"
)

// ParamType is the declared type of a tool parameter.
type ParamType string

const (
	TypeString  ParamType = "string"
	TypeNumber  ParamType = "number"
	TypeInteger ParamType = "integer"
	TypeBoolean ParamType = "boolean"
	TypeObject  ParamType = "object"
	TypeArray   ParamType = "array"
)

// Valid reports whether t is one of the supported parameter types.
func (t ParamType) Valid() bool {
	switch t {
	case TypeString, TypeNumber, TypeInteger, TypeBoolean, TypeObject, TypeArray:
		return true
	}
	return false
}

// Param describes one entry of a tool's ordered parameter schema.
type Param struct {
	Name        string    `json:"name" yaml:"name"`
	Type        ParamType `json:"type" yaml:"type"`
	Required    bool      `json:"required" yaml:"required"`
	Default     any       `json:"default,omitempty" yaml:"default,omitempty"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
}

// ToolDescriptor is the registry's record of a tool.
type ToolDescriptor struct {
	Name           string    `json:"name"`
	Description    string    `json:"description"`
	Params         []Param   `json:"parameters"`
	Kind           ToolKind  `json:"kind"`
	SourceLocation string    `json:"source_location,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Clone returns a deep copy of the parameter list so callers cannot alias
// registry state.
func (d ToolDescriptor) Clone() ToolDescriptor {
	d.Params = slices.Clone(d.Params)
	return d
}

// Tool is the capability contract every built-in and synthesized tool satisfies.
// Arguments reaching Execute have already been validated against Params.
type Tool interface {
	Name() string
	Description() string
	Params() []Param
	Execute(ctx context.Context, args map[string]any) (string, error)
}

// TimeBudgeted is implemented by tools that carry their own execution budget.
type TimeBudgeted interface {
	Timeout() time.Duration
}

// Fingerprint identifies a capability independent of its wording.
type Fingerprint string
