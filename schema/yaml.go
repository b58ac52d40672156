package schema

import (
	"errors"
	"fmt"
	"io"

	"github.com/google/jsonschema-go/jsonschema"
	jsoniter "github.com/json-iterator/go"
	"gopkg.in/yaml.v3"
)

// File is the YAML layout of a schema bootstrap file:
//
//	schemas:
//	  - name: OrderCreated
//	    mode: BACKWARD
//	    versions:
//	      - type: object
//	        required: [customerId]
//	        properties:
//	          customerId: {type: string}
type File struct {
	Schemas []Subject `yaml:"schemas"`
}

// Subject holds every version of one schema, oldest first.
type Subject struct {
	Name     string `yaml:"name"`
	Mode     string `yaml:"mode"`
	Versions []any  `yaml:"versions"`
}

// ErrInvalidFile is returned when a bootstrap file cannot be decoded.
var ErrInvalidFile = errors.New("invalid schema file")

// ParseFile decodes a bootstrap file.
func ParseFile(r io.Reader) (File, error) {
	var file File

	if err := yaml.NewDecoder(r).Decode(&file); err != nil {
		return File{}, errors.Join(ErrInvalidFile, err)
	}

	return file, nil
}

// Definitions converts the subject's YAML versions into JSON Schema definitions.
func (s Subject) Definitions() ([]*jsonschema.Schema, error) {
	defs := make([]*jsonschema.Schema, 0, len(s.Versions))

	for i, raw := range s.Versions {
		def, err := toDefinition(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %s version %d: %w", ErrInvalidFile, s.Name, i+1, err)
		}

		defs = append(defs, def)
	}

	return defs, nil
}

// ParseDefinition decodes a JSON Schema document.
func ParseDefinition(data []byte) (*jsonschema.Schema, error) {
	var def jsonschema.Schema

	// jsonschema.Schema implements json.Unmarshaler, which jsoniter honors.
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(data, &def); err != nil {
		return nil, errors.Join(ErrInvalidSchema, err)
	}

	return &def, nil
}

// LoadYAML registers every version found in r, in file order.
func (g *Governor) LoadYAML(r io.Reader) error {
	file, err := ParseFile(r)
	if err != nil {
		return err
	}

	for _, subject := range file.Schemas {
		mode, err := ParseMode(subject.Mode)
		if err != nil {
			return fmt.Errorf("%s: %w", subject.Name, err)
		}

		defs, err := subject.Definitions()
		if err != nil {
			return err
		}

		for _, def := range defs {
			if _, err := g.RegisterSchema(subject.Name, def, mode); err != nil {
				return fmt.Errorf("%s: %w", subject.Name, err)
			}
		}
	}

	return nil
}

// CheckFile verifies that every consecutive version pair of every subject is compatible.
// It is the CI gate behind cmd/schemacheck. An empty override keeps each subject's own mode.
func CheckFile(file File, override CompatibilityMode) (map[string]CompatibilityResult, error) {
	results := make(map[string]CompatibilityResult, len(file.Schemas))

	for _, subject := range file.Schemas {
		mode := override
		if mode == "" {
			parsed, err := ParseMode(subject.Mode)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", subject.Name, err)
			}

			mode = parsed
		}

		defs, err := subject.Definitions()
		if err != nil {
			return nil, err
		}

		result := CompatibilityResult{Compatible: true}
		for i := 1; i < len(defs); i++ {
			step := checkAgainst(defs[:i], defs[i], mode)
			for _, v := range step.Violations {
				result.Violations = append(result.Violations, fmt.Sprintf("v%d: %s", i+1, v))
			}
		}
		result.Compatible = len(result.Violations) == 0

		results[subject.Name] = result
	}

	return results, nil
}

// toDefinition round-trips a YAML node through JSON so the jsonschema field names apply.
func toDefinition(raw any) (*jsonschema.Schema, error) {
	data, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(raw)
	if err != nil {
		return nil, err
	}

	return ParseDefinition(data)
}
