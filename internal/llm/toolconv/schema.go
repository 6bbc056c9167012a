// Package toolconv normalizes the provider-neutral models.ToolDeclaration
// into each provider SDK's wire shape. Reading a provider's tool calls
// back into models.ToolCall is done by each adapter in
// internal/llm/providers, not here. Grounded on the teacher's
// internal/agent/toolconv package (one file per provider, schema-walking
// conversion functions) with inputs retyped from agent.Tool (the
// teacher's executable-tool interface) to models.ToolDeclaration, since
// the provider adapters only need the JSON-schema shape, not an
// Execute method — execution belongs to the Tool Router (C10).
package toolconv

import "github.com/getmira/mira-core/pkg/models"

// schemaMap renders a ToolParameterSchema as a generic JSON-schema map,
// the shape every SDK's function/tool declaration wants for "parameters".
func schemaMap(s models.ToolParameterSchema) map[string]any {
	props := make(map[string]any, len(s.Properties))
	for name, p := range s.Properties {
		props[name] = propertyMap(p)
	}
	m := map[string]any{
		"type":       nonEmpty(s.Type, "object"),
		"properties": props,
	}
	if len(s.Required) > 0 {
		m["required"] = s.Required
	}
	return m
}

func propertyMap(p models.ToolPropertySchema) map[string]any {
	m := map[string]any{"type": p.Type}
	if p.Description != "" {
		m["description"] = p.Description
	}
	if len(p.Enum) > 0 {
		m["enum"] = p.Enum
	}
	if p.Items != nil {
		m["items"] = propertyMap(*p.Items)
	}
	return m
}

func nonEmpty(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
