package schema

import (
	"fmt"
	"slices"
	"sort"

	"github.com/google/jsonschema-go/jsonschema"
)

// CompatibilityResult lists every rule a candidate schema breaks.
type CompatibilityResult struct {
	Compatible bool     `json:"compatible"`
	Violations []string `json:"violations,omitempty"`
}

// checkAgainst compares candidate with the earlier versions the mode selects.
func checkAgainst(previous []*jsonschema.Schema, candidate *jsonschema.Schema, mode CompatibilityMode) CompatibilityResult {
	if mode == None || len(previous) == 0 {
		return CompatibilityResult{Compatible: true}
	}

	targets := previous[len(previous)-1:]
	if mode.transitive() {
		targets = previous
	}

	var violations []string

	for i, old := range targets {
		version := len(previous) - len(targets) + i + 1

		if mode.checksBackward() {
			for _, v := range canRead(candidate, old, "$") {
				violations = append(violations, fmt.Sprintf("backward (v%d): %s", version, v))
			}
		}

		if mode.checksForward() {
			for _, v := range canRead(old, candidate, "$") {
				violations = append(violations, fmt.Sprintf("forward (v%d): %s", version, v))
			}
		}
	}

	return CompatibilityResult{Compatible: len(violations) == 0, Violations: violations}
}

// canRead reports why data valid under writer may be invalid under reader.
// The check is structural: types, required fields, closed objects, enums and array items.
func canRead(reader, writer *jsonschema.Schema, path string) []string {
	if reader == nil {
		return nil
	}

	if writer == nil {
		writer = &jsonschema.Schema{}
	}

	if isFalse(writer) {
		return nil
	}

	var violations []string

	readerTypes, writerTypes := typesOf(reader), typesOf(writer)
	if len(readerTypes) > 0 {
		if len(writerTypes) == 0 {
			violations = append(violations, fmt.Sprintf("%s: type narrowed from any to %v", path, readerTypes))
		}

		for _, t := range writerTypes {
			if !acceptsType(readerTypes, t) {
				violations = append(violations, fmt.Sprintf("%s: type %q is no longer accepted (now %v)", path, t, readerTypes))
			}
		}
	}

	for _, field := range reader.Required {
		if !slices.Contains(writer.Required, field) {
			violations = append(violations, fmt.Sprintf("%s.%s: field is required but was optional or absent", path, field))
		}
	}

	for _, name := range sortedKeys(writer.Properties) {
		readerProp, ok := reader.Properties[name]
		if !ok {
			if isFalse(reader.AdditionalProperties) {
				violations = append(violations, fmt.Sprintf("%s.%s: field was removed but additional properties are not allowed", path, name))
			}

			continue
		}

		violations = append(violations, canRead(readerProp, writer.Properties[name], path+"."+name)...)
	}

	if isFalse(reader.AdditionalProperties) && !isFalse(writer.AdditionalProperties) {
		violations = append(violations, fmt.Sprintf("%s: additional properties are no longer allowed", path))
	}

	if len(reader.Enum) > 0 {
		if len(writer.Enum) == 0 {
			violations = append(violations, fmt.Sprintf("%s: enum constraint added", path))
		}

		for _, value := range writer.Enum {
			if !containsValue(reader.Enum, value) {
				violations = append(violations, fmt.Sprintf("%s: enum value %v was removed", path, value))
			}
		}
	}

	if reader.Items != nil {
		violations = append(violations, canRead(reader.Items, writer.Items, path+"[]")...)
	}

	return violations
}

func typesOf(s *jsonschema.Schema) []string {
	if s.Type != "" {
		return []string{s.Type}
	}

	return s.Types
}

// acceptsType treats integer as a subtype of number.
func acceptsType(readerTypes []string, writerType string) bool {
	if slices.Contains(readerTypes, writerType) {
		return true
	}

	return writerType == "integer" && slices.Contains(readerTypes, "number")
}

// isFalse detects the schema `false`, which decodes to {"not": {}}.
func isFalse(s *jsonschema.Schema) bool {
	if s == nil || s.Not == nil {
		return false
	}

	n := s.Not

	return n.Type == "" && len(n.Types) == 0 && len(n.Properties) == 0 && len(n.Required) == 0 && len(n.Enum) == 0 && n.Items == nil
}

func containsValue(values []any, value any) bool {
	for _, v := range values {
		if fmt.Sprint(v) == fmt.Sprint(value) {
			return true
		}
	}

	return false
}

func sortedKeys(m map[string]*jsonschema.Schema) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	return keys
}
