package order

import (
	"bytes"
	_ "embed"

	"github.com/convey2karthikshivashankar-cloud/nexus-sub000/schema"
)

//go:embed schemas.yaml
var schemasYAML []byte

// RegisterSchemas loads the order event schemas into governor.
func RegisterSchemas(governor *schema.Governor) error {
	return governor.LoadYAML(bytes.NewReader(schemasYAML))
}

// SchemasYAML returns the embedded bootstrap file.
func SchemasYAML() []byte {
	return bytes.Clone(schemasYAML)
}
