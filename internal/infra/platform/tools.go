package platform

import (
	"fmt"
	"strings"

	"toolgate/internal/domain"
	"toolgate/internal/infra/schema"
)

// dotMarker escapes dots in schema property names. Some clients reject dots
// in argument keys, so published schemas carry the escaped form and the
// validator decodes keys before schema checks.
const dotMarker = "-dot-"

// ToolNameFromActor derives a dispatch-safe tool name from an actor full
// name: "Acme/Web.Scraper" becomes "acme--web-scraper". The full name stays
// on the entry as the resolution alias.
func ToolNameFromActor(fullName string) string {
	name := strings.ToLower(fullName)
	name = strings.ReplaceAll(name, "/", "--")
	name = strings.ReplaceAll(name, ".", "-")
	return name
}

// EncodeDotName escapes dots in one property name.
func EncodeDotName(name string) string {
	return strings.ReplaceAll(name, ".", dotMarker)
}

// DecodeDotName reverses EncodeDotName.
func DecodeDotName(name string) string {
	return strings.ReplaceAll(name, dotMarker, ".")
}

// DecodeArgumentKeys rewrites escaped keys back to their schema form,
// recursively through nested objects.
func DecodeArgumentKeys(args map[string]any) map[string]any {
	if args == nil {
		return nil
	}
	out := make(map[string]any, len(args))
	for key, value := range args {
		if nested, ok := value.(map[string]any); ok {
			value = DecodeArgumentKeys(nested)
		}
		out[DecodeDotName(key)] = value
	}
	return out
}

// BuildActorTool turns an actor definition into a remote-action catalog
// entry: name encoding, schema fixups, dot escaping, and a validator
// compiled once here.
func BuildActorTool(def *ActorDefinition, maxMemoryMbytes int) (*domain.ToolEntry, error) {
	fullName := def.Actor.FullName()

	// The validator sees decoded argument keys, so it is compiled from the
	// schema's real property names; only the published schema carries the
	// dot-escaped form.
	input := normalizeInputSchema(def.Input)
	validator, err := schema.Compile(input)
	if err != nil {
		return nil, fmt.Errorf("compile input schema for %s: %w", fullName, err)
	}
	published := encodeSchemaProperties(input)

	memory := def.DefaultRunMemoryMbytes
	if memory <= 0 || memory > maxMemoryMbytes {
		memory = maxMemoryMbytes
	}

	title := def.Actor.Title
	if title == "" {
		title = fullName
	}

	return &domain.ToolEntry{
		Kind:        domain.ToolKindRemoteAction,
		Name:        ToolNameFromActor(fullName),
		Title:       title,
		Description: def.Actor.Description,
		Category:    "actor",
		InputSchema: published,
		Validator:   validator,
		Annotations: &domain.Annotations{OpenWorldHint: true},
		Execution:   domain.ExecutionDescriptor{TaskSupport: domain.TaskSupportOptional},

		ActorFullName:   fullName,
		MaxMemoryMbytes: memory,
	}, nil
}

// normalizeInputSchema repairs common author mistakes in actor input
// schemas so they compile: a missing type is forced to "object" and a nil
// schema becomes the empty object schema.
func normalizeInputSchema(input map[string]any) map[string]any {
	out := make(map[string]any, len(input)+1)
	for k, v := range input {
		out[k] = v
	}
	if _, ok := out["type"]; !ok {
		out["type"] = "object"
	}
	return out
}

// encodeSchemaProperties escapes dots in top-level property names and in
// the required list, keeping both sides of the schema consistent.
func encodeSchemaProperties(input map[string]any) map[string]any {
	props, ok := input["properties"].(map[string]any)
	if !ok {
		return input
	}

	encodedProps := make(map[string]any, len(props))
	changed := false
	for name, value := range props {
		encoded := EncodeDotName(name)
		if encoded != name {
			changed = true
		}
		encodedProps[encoded] = value
	}
	if !changed {
		return input
	}

	out := make(map[string]any, len(input))
	for k, v := range input {
		out[k] = v
	}
	out["properties"] = encodedProps

	if required, ok := input["required"].([]any); ok {
		encodedRequired := make([]any, 0, len(required))
		for _, item := range required {
			if name, ok := item.(string); ok {
				encodedRequired = append(encodedRequired, EncodeDotName(name))
			} else {
				encodedRequired = append(encodedRequired, item)
			}
		}
		out["required"] = encodedRequired
	}
	return out
}
