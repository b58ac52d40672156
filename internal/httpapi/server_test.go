package httpapi_test

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/convey2karthikshivashankar-cloud/nexus-sub000/command"
	"github.com/convey2karthikshivashankar-cloud/nexus-sub000/eventstore"
	"github.com/convey2karthikshivashankar-cloud/nexus-sub000/eventstore/memengine"
	"github.com/convey2karthikshivashankar-cloud/nexus-sub000/internal/httpapi"
	"github.com/convey2karthikshivashankar-cloud/nexus-sub000/internal/order"
	"github.com/convey2karthikshivashankar-cloud/nexus-sub000/policy"
	"github.com/convey2karthikshivashankar-cloud/nexus-sub000/projection"
	"github.com/convey2karthikshivashankar-cloud/nexus-sub000/router"
	"github.com/convey2karthikshivashankar-cloud/nexus-sub000/schema"
	. "github.com/convey2karthikshivashankar-cloud/nexus-sub000/testutil/helper"
)

type api struct {
	handler http.Handler
	engine  *projection.Engine
	audit   *policy.MemoryAuditSink
	queue   *router.MemoryQueue
}

type appliedCommands struct {
	next   command.Handler
	engine *projection.Engine
}

// Handle applies committed events to the projections synchronously, so queries in a test
// see them without running a router.
func (a appliedCommands) Handle(ctx context.Context, cmd command.Command) (command.Result, error) {
	result, err := a.next.Handle(ctx, cmd)
	if err != nil {
		return result, err
	}

	for _, event := range result.Events {
		if err := a.engine.Apply(ctx, event); err != nil {
			return result, err
		}
	}

	return result, nil
}

type failingCommands struct {
	err error
}

func (f failingCommands) Handle(context.Context, command.Command) (command.Result, error) {
	return command.Result{}, f.err
}

func newAPI(t *testing.T, commands httpapi.CommandHandler) api {
	t.Helper()

	store, err := memengine.NewEventStore()
	require.NoError(t, err)

	governor, err := schema.NewGovernor(schema.WithStrictMode())
	require.NoError(t, err)
	require.NoError(t, order.RegisterSchemas(governor))

	processor, err := command.NewProcessor(store, order.Decider(), command.WithValidator(governor))
	require.NoError(t, err)

	dispatcher := command.NewDispatcher()
	require.NoError(t, dispatcher.Register(processor, order.CommandTypes...))

	engine, err := projection.NewEngine(store, projection.NewMemoryStore(), order.Projections())
	require.NoError(t, err)

	audit := policy.NewMemoryAuditSink()
	enforcer, err := policy.NewEnforcer(policy.DefaultConfig(), audit)
	require.NoError(t, err)

	queue, err := router.NewMemoryQueue("notifications", router.DefaultQueueConfig(), nil)
	require.NoError(t, err)

	if commands == nil {
		commands = appliedCommands{next: dispatcher, engine: engine}
	}

	handler, err := httpapi.NewHandler(httpapi.Deps{
		Commands:    commands,
		Projections: engine,
		Events:      store,
		Schemas:     governor,
		Policy:      enforcer,
		Queues:      func() []router.Queue { return []router.Queue{queue} },
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, httpapi.DefaultConfig())
	require.NoError(t, err)

	return api{handler: handler, engine: engine, audit: audit, queue: queue}
}

func (a api) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		data, err := jsoniter.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)

	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var out T
	require.NoError(t, jsoniter.Unmarshal(rec.Body.Bytes(), &out))

	return out
}

type commandResponse struct {
	AggregateID string   `json:"aggregateId"`
	EventIDs    []string `json:"eventIds"`
	Version     uint64   `json:"version"`
}

type errorResponse struct {
	Error   string         `json:"error"`
	Message string         `json:"message"`
	Details map[string]any `json:"details"`
}

func createOrder(t *testing.T, a api) commandResponse {
	t.Helper()

	rec := a.do(t, http.MethodPost, "/commands", map[string]any{
		"commandType": order.CreateOrder,
		"payload":     map[string]any{"customerId": "c-1"},
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	return decode[commandResponse](t, rec)
}

func Test_PostCommands_Created(t *testing.T) {
	// setup
	a := newAPI(t, nil)

	// act
	created := createOrder(t, a)

	// assert
	assert.NotEmpty(t, created.AggregateID)
	assert.Len(t, created.EventIDs, 1)
	assert.Equal(t, uint64(1), created.Version)
}

func Test_PostCommands_StaleExpectedVersion_Conflict(t *testing.T) {
	// setup
	a := newAPI(t, nil)
	created := createOrder(t, a)

	// act
	rec := a.do(t, http.MethodPost, "/commands", map[string]any{
		"commandType":     order.AddItem,
		"aggregateId":     created.AggregateID,
		"expectedVersion": 0,
		"payload":         map[string]any{"sku": "s-1", "quantity": 1, "unitPrice": 5},
	}, nil)

	// assert
	assert.Equal(t, http.StatusConflict, rec.Code)
	body := decode[errorResponse](t, rec)
	assert.Equal(t, "Conflict", body.Error)
	assert.Equal(t, created.AggregateID, body.Details["aggregateId"])
	assert.EqualValues(t, 1, body.Details["actualVersion"])
}

func Test_PostCommands_ValidationErrors_BadRequest(t *testing.T) {
	// setup
	a := newAPI(t, nil)

	testCases := []struct {
		name string
		body any
	}{
		{"malformed json", `{"commandType":`},
		{"missing customer", map[string]any{"commandType": order.CreateOrder, "payload": map[string]any{}}},
		{"unknown command type", map[string]any{"commandType": "ShipOrder", "aggregateId": "o-1"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// act
			rec := a.do(t, http.MethodPost, "/commands", tc.body, nil)

			// assert
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		})
	}
}

func Test_PostCommands_StorageUnavailable_ServiceUnavailable(t *testing.T) {
	// setup
	a := newAPI(t, failingCommands{err: eventstore.ErrStorageUnavailable})

	// act
	rec := a.do(t, http.MethodPost, "/commands", map[string]any{"commandType": order.CreateOrder}, nil)

	// assert
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func Test_PostCommands_UnexpectedError_HidesDetails(t *testing.T) {
	// setup
	a := newAPI(t, failingCommands{err: io.ErrUnexpectedEOF})

	// act
	rec := a.do(t, http.MethodPost, "/commands", map[string]any{"commandType": order.CreateOrder}, nil)

	// assert
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal error", decode[errorResponse](t, rec).Message)
}

func Test_GetQueries_ReturnsRecordsWithCORS(t *testing.T) {
	// setup
	a := newAPI(t, nil)
	created := createOrder(t, a)

	// act
	one := a.do(t, http.MethodGet, "/queries/order-summary/"+created.AggregateID, nil, map[string]string{"User-Agent": "dashboard/2.0"})
	list := a.do(t, http.MethodGet, "/queries/order-summary?limit=10", nil, nil)

	// assert
	require.Equal(t, http.StatusOK, one.Code, one.Body.String())
	assert.Equal(t, "*", one.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "application/json", one.Header().Get("Content-Type"))

	record := decode[projection.Record](t, one)
	var summary order.Summary
	require.NoError(t, jsoniter.Unmarshal(record.Data, &summary))
	assert.Equal(t, order.StatusOpen, summary.Status)

	require.Equal(t, http.StatusOK, list.Code)
	assert.Len(t, decode[struct {
		Records []projection.Record `json:"records"`
	}](t, list).Records, 1)
}

func Test_GetQueries_NotFound(t *testing.T) {
	// setup
	a := newAPI(t, nil)

	// act
	unknownProjection := a.do(t, http.MethodGet, "/queries/nope", nil, nil)
	unknownKey := a.do(t, http.MethodGet, "/queries/order-summary/missing", nil, nil)
	badLimit := a.do(t, http.MethodGet, "/queries/order-summary?limit=-1", nil, nil)

	// assert
	assert.Equal(t, http.StatusNotFound, unknownProjection.Code)
	assert.Equal(t, http.StatusNotFound, unknownKey.Code)
	assert.Equal(t, http.StatusBadRequest, badLimit.Code)
}

func Test_GetQueries_CommandServiceCaller_IsForbiddenAndAudited(t *testing.T) {
	// setup
	a := newAPI(t, nil)

	// act
	rec := a.do(t, http.MethodGet, "/queries/order-summary", nil, map[string]string{"User-Agent": "Order-Command-Service/1.4"})

	// assert
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	body := decode[map[string]any](t, rec)
	assert.Equal(t, "Policy Violation", body["error"])
	assert.NotEmpty(t, body["message"])
	assert.NotEmpty(t, body["details"])
	assert.NotEmpty(t, body["timestamp"])

	records := a.audit.Records()
	require.Len(t, records, 1)
	assert.Equal(t, policy.OutcomeDeny, records[0].Decision.Outcome)
}

func Test_Queries_Preflight(t *testing.T) {
	// setup
	a := newAPI(t, nil)

	// act
	rec := a.do(t, http.MethodOptions, "/queries/order-summary", nil, map[string]string{
		"Origin":                        "https://ui.example",
		"Access-Control-Request-Method": http.MethodGet,
	})

	// assert
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func Test_GetAggregateEvents(t *testing.T) {
	// setup
	a := newAPI(t, nil)
	created := createOrder(t, a)
	rec := a.do(t, http.MethodPost, "/commands", map[string]any{
		"commandType": order.AddItem,
		"aggregateId": created.AggregateID,
		"payload":     map[string]any{"sku": "s-1", "quantity": 2, "unitPrice": 5},
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// act
	all := a.do(t, http.MethodGet, "/queries/aggregates/"+created.AggregateID+"/events", nil, nil)
	fromTwo := a.do(t, http.MethodGet, "/queries/aggregates/"+created.AggregateID+"/events?from=2", nil, nil)

	// assert
	type eventsBody struct {
		Events []eventstore.Event `json:"events"`
	}
	require.Equal(t, http.StatusOK, all.Code)
	assert.Equal(t, []uint64{1, 2}, Versions(decode[eventsBody](t, all).Events))
	assert.Equal(t, []uint64{2}, Versions(decode[eventsBody](t, fromTwo).Events))
}

func Test_Schemas_RegisterCheckAndGet(t *testing.T) {
	// setup
	a := newAPI(t, nil)
	v1 := map[string]any{"type": "object", "properties": map[string]any{"note": map[string]any{"type": "string"}}}
	breaking := map[string]any{"type": "object", "required": []string{"note"}, "properties": map[string]any{"note": map[string]any{"type": "string"}}}

	// act
	registered := a.do(t, http.MethodPost, "/schemas/OrderNoted", map[string]any{"definition": v1}, nil)
	check := a.do(t, http.MethodPost, "/schemas/OrderNoted/compatibility", map[string]any{"definition": breaking, "mode": "BACKWARD"}, nil)
	rejected := a.do(t, http.MethodPost, "/schemas/OrderNoted", map[string]any{"definition": breaking}, nil)
	got := a.do(t, http.MethodGet, "/schemas/OrderNoted", nil, nil)
	unknown := a.do(t, http.MethodGet, "/schemas/Nope", nil, nil)
	badMode := a.do(t, http.MethodPost, "/schemas/OrderNoted/compatibility", map[string]any{"definition": v1, "mode": "SIDEWAYS"}, nil)

	// assert
	require.Equal(t, http.StatusCreated, registered.Code, registered.Body.String())
	assert.Equal(t, 1, decode[struct {
		Version int `json:"version"`
	}](t, registered).Version)

	require.Equal(t, http.StatusOK, check.Code)
	result := decode[schema.CompatibilityResult](t, check)
	assert.False(t, result.Compatible)
	assert.NotEmpty(t, result.Violations)

	assert.Equal(t, http.StatusConflict, rejected.Code)
	require.Equal(t, http.StatusOK, got.Code)
	assert.Len(t, decode[struct {
		Versions []map[string]any `json:"versions"`
	}](t, got).Versions, 1)
	assert.Equal(t, http.StatusNotFound, unknown.Code)
	assert.Equal(t, http.StatusBadRequest, badMode.Code)
}

func Test_Admin_RebuildAndDLQ(t *testing.T) {
	// setup
	a := newAPI(t, nil)
	createOrder(t, a)
	ctx := TestContext(t)

	event := eventstore.Event{
		EventID:     GivenUniqueID(t).String(),
		EventType:   order.ItemAdded,
		AggregateID: "o-1",
		Version:     2,
		Timestamp:   time.Now(),
		Payload:     []byte(`{"sku":"s-1","quantity":1,"unitPrice":5}`),
	}
	require.NoError(t, a.queue.Send(ctx, router.NewMessage(event, event.Timestamp)))
	for range router.DefaultMaxAttempts {
		delivery, err := a.queue.Receive(ctx)
		require.NoError(t, err)
		_, err = a.queue.Nack(ctx, delivery.Receipt, 0)
		require.NoError(t, err)
	}

	// act
	rebuilt := a.do(t, http.MethodPost, "/admin/projections/order-summary/rebuild", nil, nil)
	dlq := a.do(t, http.MethodGet, "/admin/dlq", nil, nil)
	redrive := a.do(t, http.MethodPost, "/admin/dlq/notifications/redrive", nil, nil)
	unknown := a.do(t, http.MethodPost, "/admin/dlq/nope/redrive", nil, nil)

	// assert
	require.Equal(t, http.StatusOK, rebuilt.Code, rebuilt.Body.String())
	assert.Equal(t, 1, decode[projection.RebuildResult](t, rebuilt).Records)

	require.Equal(t, http.StatusOK, dlq.Code)
	queues := decode[struct {
		Queues []struct {
			Consumer    string              `json:"consumer"`
			DeadLetters []router.DeadLetter `json:"deadLetters"`
		} `json:"queues"`
	}](t, dlq).Queues
	require.Len(t, queues, 1)
	assert.Len(t, queues[0].DeadLetters, 1)

	require.Equal(t, http.StatusOK, redrive.Code)
	assert.Equal(t, 1, decode[struct {
		Redriven int `json:"redriven"`
	}](t, redrive).Redriven)
	assert.Equal(t, http.StatusNotFound, unknown.Code)
}

func Test_HealthAndRequestID(t *testing.T) {
	// setup
	a := newAPI(t, nil)

	// act
	rec := a.do(t, http.MethodGet, "/healthz", nil, map[string]string{"X-Request-Id": "req-42"})

	// assert
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "req-42", rec.Header().Get("X-Request-Id"))
}

func Test_NewHandler_MissingDependency(t *testing.T) {
	_, err := httpapi.NewHandler(httpapi.Deps{}, httpapi.DefaultConfig())
	assert.ErrorIs(t, err, httpapi.ErrMissingDependency)
}
