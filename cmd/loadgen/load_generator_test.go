package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/convey2karthikshivashankar-cloud/nexus-sub000/command"
	"github.com/convey2karthikshivashankar-cloud/nexus-sub000/internal/order"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func givenConfig(target string, weights Weights, requests int) Config {
	return Config{
		Target:         target,
		Rate:           1000,
		Requests:       requests,
		Orders:         5,
		Weights:        weights,
		RequestTimeout: time.Second,
		ReportInterval: time.Minute,
		RunID:          "test",
		Seed:           42,
	}
}

func Test_LoadGenerator_ClassifiesResponsesByStatus(t *testing.T) {
	// setup
	var mu sync.Mutex
	seen := map[string]int{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var cmd command.Command
		if err := codec.NewDecoder(r.Body).Decode(&cmd); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		mu.Lock()
		seen[cmd.CommandType]++
		mu.Unlock()

		switch cmd.CommandType {
		case order.CreateOrder:
			w.WriteHeader(http.StatusCreated)
		case order.AddItem:
			w.WriteHeader(http.StatusConflict)
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	defer server.Close()

	// arrange
	lg := NewLoadGenerator(givenConfig(server.URL, Weights{Create: 40, AddItem: 40, Cancel: 20}, 50), server.Client(), discardLogger())

	// act
	stats := lg.Run(context.Background())

	// assert
	assert.Equal(t, int64(50), stats.Requests)
	assert.Equal(t, int64(seen[order.CreateOrder]), stats.Created)
	assert.Equal(t, int64(seen[order.AddItem]), stats.Conflicts)
	assert.Equal(t, int64(seen[order.CancelOrder]), stats.Rejected)
	assert.Zero(t, stats.Errors)
}

func Test_LoadGenerator_CountsServerErrors(t *testing.T) {
	// setup
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	// arrange
	lg := NewLoadGenerator(givenConfig(server.URL, Weights{Create: 100}, 5), server.Client(), discardLogger())

	// act
	stats := lg.Run(context.Background())

	// assert
	assert.Equal(t, int64(5), stats.Requests)
	assert.Equal(t, int64(5), stats.Errors)
}

func Test_LoadGenerator_ReusesOrderIDsFromThePool(t *testing.T) {
	// arrange
	lg := NewLoadGenerator(givenConfig("http://unused", Weights{AddItem: 100}, 0), nil, discardLogger())
	ids := map[string]struct{}{}

	// act
	for range 200 {
		cmd := lg.nextCommand()
		require.Equal(t, order.AddItem, cmd.CommandType)
		ids[cmd.AggregateID] = struct{}{}
	}

	// assert
	assert.LessOrEqual(t, len(ids), 5)
	assert.Equal(t, orderIDFor("test", 1), orderIDFor("test", 1))
	assert.NotEqual(t, orderIDFor("test", 1), orderIDFor("other", 1))
}

func Test_LoadGenerator_StopsOnContextCancel(t *testing.T) {
	// setup
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	// arrange
	cfg := givenConfig(server.URL, Weights{Create: 100}, 0)
	cfg.Rate = 100
	lg := NewLoadGenerator(cfg, server.Client(), discardLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	// act
	stats := lg.Run(ctx)

	// assert
	assert.Positive(t, stats.Requests)
	assert.Equal(t, stats.Requests, stats.Created+stats.Errors)
}

func Test_ParseWeights(t *testing.T) {
	testCases := []struct {
		name    string
		input   string
		want    Weights
		wantErr bool
	}{
		{name: "default", input: defaultWeights, want: Weights{Create: 20, AddItem: 70, Cancel: 10}},
		{name: "spaces", input: " 50, 50 ,0", want: Weights{Create: 50, AddItem: 50}},
		{name: "too few", input: "50,50", wantErr: true},
		{name: "not a number", input: "a,50,50", wantErr: true},
		{name: "out of range", input: "101,0,-1", wantErr: true},
		{name: "wrong sum", input: "10,10,10", wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := parseWeights(tc.input)

			if tc.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func Test_ParseFlags(t *testing.T) {
	// act
	cfg, err := parseFlags([]string{"-target", "http://eventsd:8080/", "-rate", "5", "-requests", "10"}, io.Discard)

	// assert
	require.NoError(t, err)
	assert.Equal(t, "http://eventsd:8080", cfg.Target)
	assert.Equal(t, 5, cfg.Rate)
	assert.Equal(t, 10, cfg.Requests)
	assert.NotEmpty(t, cfg.RunID)
	assert.NotZero(t, cfg.Seed)

	_, err = parseFlags([]string{"-rate", "0"}, io.Discard)
	assert.Error(t, err)
}
