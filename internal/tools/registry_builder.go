package tools

import (
	"fmt"
	"time"

	"github.com/crystaldolphin/toolsmith/internal/schema"
)

// RegistryBuilder accumulates built-in tools during the construction phase.
// Call Build() to produce a Registry ready for use.
type RegistryBuilder struct {
	tools   []schema.Tool
	blocked func(schema.Fingerprint) bool
}

// NewRegistryBuilder returns a fresh RegistryBuilder.
func NewRegistryBuilder() *RegistryBuilder {
	return &RegistryBuilder{}
}

// WithTool adds a tool and returns the builder, enabling chaining.
func (b *RegistryBuilder) WithTool(tool schema.Tool) *RegistryBuilder {
	b.tools = append(b.tools, tool)
	return b
}

// WithBlocked installs a predicate; tools whose fingerprint it accepts are
// left out of the built registry.
func (b *RegistryBuilder) WithBlocked(blocked func(schema.Fingerprint) bool) *RegistryBuilder {
	b.blocked = blocked
	return b
}

// Build registers every accumulated tool as a built-in. Two tools sharing a
// name is a programming error and is reported.
func (b *RegistryBuilder) Build() (*Registry, error) {
	reg := NewRegistry()
	now := time.Now().UTC()
	for _, t := range b.tools {
		desc := DescriptorOf(t, schema.KindBuiltin, "", now)
		if b.blocked != nil && b.blocked(FingerprintOf(desc)) {
			continue
		}
		if err := reg.Register(desc, t); err != nil {
			return nil, fmt.Errorf("build registry: %w", err)
		}
	}
	return reg, nil
}

// DescriptorOf derives a descriptor from a tool's own metadata.
func DescriptorOf(t schema.Tool, kind schema.ToolKind, location string, createdAt time.Time) schema.ToolDescriptor {
	d := schema.ToolDescriptor{
		Name:           t.Name(),
		Description:    t.Description(),
		Params:         t.Params(),
		Kind:           kind,
		SourceLocation: location,
		CreatedAt:      createdAt,
	}
	return d.Clone()
}
