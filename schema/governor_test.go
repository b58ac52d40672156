package schema_test

import (
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/convey2karthikshivashankar-cloud/nexus-sub000/eventstore"
	"github.com/convey2karthikshivashankar-cloud/nexus-sub000/schema"
	. "github.com/convey2karthikshivashankar-cloud/nexus-sub000/testutil/helper"
)

func mustParse(t *testing.T, definition string) *jsonschema.Schema {
	t.Helper()

	def, err := schema.ParseDefinition([]byte(definition))
	require.NoError(t, err, "error in arranging test data")

	return def
}

const orderCreatedV1 = `{
	"type": "object",
	"required": ["customerId"],
	"properties": {
		"customerId": {"type": "string"},
		"total": {"type": "number"}
	}
}`

func Test_RegisterSchema_AssignsMonotonicVersions(t *testing.T) {
	// setup
	governor, err := schema.NewGovernor()
	require.NoError(t, err)

	// act
	v1, err1 := governor.RegisterSchema("OrderCreated", mustParse(t, orderCreatedV1), "")
	v2, err2 := governor.RegisterSchema("OrderCreated", mustParse(t, `{
		"type": "object",
		"required": ["customerId"],
		"properties": {
			"customerId": {"type": "string"},
			"total": {"type": "number"},
			"note": {"type": "string"}
		}
	}`), schema.Backward)

	// assert
	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.Equal(t, 1, v1)
	assert.Equal(t, 2, v2)

	versions, err := governor.Versions("OrderCreated")
	require.NoError(t, err)
	assert.Len(t, versions, 2)
	assert.Equal(t, schema.Backward, versions[0].Mode)
}

func Test_RegisterSchema_When_Incompatible_IsRejectedAndNothingIsStored(t *testing.T) {
	// setup
	logger, logHandler := NewSpyLogger()
	governor, err := schema.NewGovernor(schema.WithLogger(logger))
	require.NoError(t, err)
	_, err = governor.RegisterSchema("OrderCreated", mustParse(t, orderCreatedV1), "")
	require.NoError(t, err)

	// act: a new required field cannot be read from v1 payloads
	_, err = governor.RegisterSchema("OrderCreated", mustParse(t, `{
		"type": "object",
		"required": ["customerId", "currency"],
		"properties": {"customerId": {"type": "string"}, "currency": {"type": "string"}}
	}`), schema.Backward)

	// assert
	assert.ErrorIs(t, err, schema.ErrIncompatibleSchema)
	assert.ErrorIs(t, err, eventstore.ErrValidationFailed)

	var validationErr *eventstore.ValidationError
	require.True(t, errors.As(err, &validationErr))
	assert.NotEmpty(t, validationErr.Violations)

	latest, ok := governor.Latest("OrderCreated")
	require.True(t, ok)
	assert.Equal(t, 1, latest.Version)

	attrs := logHandler.FindLog(slog.LevelWarn, "schema registration rejected")
	require.NotNil(t, attrs)
	assert.Equal(t, true, attrs["audit"])
}

func Test_RegisterSchema_RejectsInvalidInput(t *testing.T) {
	// setup
	governor, err := schema.NewGovernor()
	require.NoError(t, err)

	// act & assert
	_, err = governor.RegisterSchema("", mustParse(t, orderCreatedV1), "")
	assert.ErrorIs(t, err, schema.ErrEmptySubject)

	_, err = governor.RegisterSchema("OrderCreated", nil, "")
	assert.ErrorIs(t, err, schema.ErrInvalidSchema)

	_, err = governor.RegisterSchema("OrderCreated", mustParse(t, orderCreatedV1), "SIDEWAYS")
	assert.ErrorIs(t, err, schema.ErrUnknownMode)
}

func Test_Validate_ReportsViolationsAndAudits(t *testing.T) {
	// setup
	logger, logHandler := NewSpyLogger()
	governor, err := schema.NewGovernor(schema.WithLogger(logger))
	require.NoError(t, err)
	_, err = governor.RegisterSchema("OrderCreated", mustParse(t, orderCreatedV1), "")
	require.NoError(t, err)

	// act
	valid := governor.ValidatePayload("OrderCreated", []byte(`{"customerId":"c-1","total":12.5}`))
	missing := governor.ValidatePayload("OrderCreated", []byte(`{"total":12.5}`))
	wrongType := governor.ValidatePayload("OrderCreated", []byte(`{"customerId":42}`))
	garbage := governor.ValidatePayload("OrderCreated", []byte(`{not json`))

	// assert
	assert.True(t, valid.OK)
	assert.NoError(t, valid.Err())

	for _, result := range []schema.ValidationResult{missing, wrongType, garbage} {
		assert.False(t, result.OK)
		assert.NotEmpty(t, result.Violations)
		assert.ErrorIs(t, result.Err(), eventstore.ErrValidationFailed)
	}
	assert.Contains(t, strings.Join(missing.Violations, " "), "customerId")

	assert.Equal(t, 3, logHandler.CountLogs("schema validation failed"))
}

func Test_Validate_UnregisteredType_DependsOnStrictMode(t *testing.T) {
	// setup
	lenient, err := schema.NewGovernor()
	require.NoError(t, err)
	strict, err := schema.NewGovernor(schema.WithStrictMode())
	require.NoError(t, err)

	event, err := eventstore.BuildStorableEventWithEmptyMetadata("Unknown", time.Now(), []byte(`{}`))
	require.NoError(t, err)

	// act & assert
	assert.True(t, lenient.Validate(event).OK)

	result := strict.Validate(event)
	assert.False(t, result.OK)
	assert.Equal(t, []string{`no schema registered for event type "Unknown"`}, result.Violations)
}

func Test_RegisterSchema_KeepsItsOwnCopyOfTheDefinition(t *testing.T) {
	// setup
	governor, err := schema.NewGovernor()
	require.NoError(t, err)

	// arrange
	definition := mustParse(t, orderCreatedV1)
	_, err = governor.RegisterSchema("OrderCreated", definition, "")
	require.NoError(t, err)

	// act
	definition.Required = append(definition.Required, "currency")
	definition.Properties["currency"] = &jsonschema.Schema{Type: "string"}

	// assert
	latest, ok := governor.Latest("OrderCreated")
	require.True(t, ok)
	assert.Equal(t, []string{"customerId"}, latest.Definition.Required)
	assert.NotContains(t, latest.Definition.Properties, "currency")
	assert.True(t, governor.ValidatePayload("OrderCreated", []byte(`{"customerId":"c-1"}`)).OK)
}

func Test_CheckCompatibility_DoesNotRegister(t *testing.T) {
	// setup
	governor, err := schema.NewGovernor()
	require.NoError(t, err)
	_, err = governor.RegisterSchema("OrderCreated", mustParse(t, orderCreatedV1), "")
	require.NoError(t, err)

	// act
	result := governor.CheckCompatibility("OrderCreated", mustParse(t, `{"type":"object","properties":{"customerId":{"type":"string"}}}`), "")

	// assert
	assert.True(t, result.Compatible, "dropping a requirement is backward compatible: %v", result.Violations)

	latest, _ := governor.Latest("OrderCreated")
	assert.Equal(t, 1, latest.Version)
	assert.Equal(t, []string{"OrderCreated"}, governor.Subjects())
}
