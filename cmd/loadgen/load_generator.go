package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"github.com/convey2karthikshivashankar-cloud/nexus-sub000/command"
	"github.com/convey2karthikshivashankar-cloud/nexus-sub000/internal/order"
)

var codec = jsoniter.ConfigCompatibleWithStandardLibrary

// errUnexpectedStatus marks responses that are neither success nor an expected domain answer.
var errUnexpectedStatus = errors.New("unexpected status")

// Stats counts outcomes by HTTP class. Conflicts and rejections are expected under
// contention and are not counted as errors.
type Stats struct {
	Requests  int64
	Created   int64
	Conflicts int64
	Rejected  int64
	Errors    int64
}

// LoadGenerator sends order commands to an eventsd instance at a fixed rate. A small
// pool of order ids keeps several writers racing for the same aggregates.
type LoadGenerator struct {
	cfg    Config
	client *http.Client
	logger *slog.Logger
	rand   *rand.Rand

	wg sync.WaitGroup

	mu        sync.Mutex
	stats     Stats
	startTime time.Time
}

func NewLoadGenerator(cfg Config, client *http.Client, logger *slog.Logger) *LoadGenerator {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}

	return &LoadGenerator{
		cfg:    cfg,
		client: client,
		logger: logger,
		rand:   rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)), //nolint:gosec // load traffic
	}
}

// Run generates load until ctx is done, then waits for in-flight requests.
func (lg *LoadGenerator) Run(ctx context.Context) Stats {
	lg.mu.Lock()
	lg.startTime = time.Now()
	lg.stats = Stats{}
	lg.mu.Unlock()

	ticker := time.NewTicker(time.Second / time.Duration(lg.cfg.Rate))
	defer ticker.Stop()

	report := time.NewTicker(lg.cfg.ReportInterval)
	defer report.Stop()

	lg.logger.Info("load generator started", "target", lg.cfg.Target, "rate", lg.cfg.Rate, "orders", lg.cfg.Orders)

	for sent := 0; lg.cfg.Requests == 0 || sent < lg.cfg.Requests; {
		select {
		case <-ctx.Done():
			return lg.finish()

		case <-report.C:
			lg.logStats("stats")

		case <-ticker.C:
			sent++
			cmd := lg.nextCommand()
			lg.wg.Add(1)
			go func() {
				defer lg.wg.Done()
				lg.record(lg.send(ctx, cmd))
			}()
		}
	}

	return lg.finish()
}

func (lg *LoadGenerator) finish() Stats {
	lg.wg.Wait()
	lg.logStats("final stats")

	return lg.Snapshot()
}

// Snapshot returns the counters so far.
func (lg *LoadGenerator) Snapshot() Stats {
	lg.mu.Lock()
	defer lg.mu.Unlock()

	return lg.stats
}

// nextCommand picks a command by weight. Creates target a fresh id most of the time so
// the pool fills up; the rest reuse a pooled id and mostly end in a conflict.
func (lg *LoadGenerator) nextCommand() command.Command {
	lg.mu.Lock()
	roll := lg.rand.IntN(100)
	orderNum := lg.rand.IntN(lg.cfg.Orders) + 1
	skuNum := lg.rand.IntN(20) + 1
	quantity := lg.rand.IntN(5) + 1
	price := int64(lg.rand.IntN(5000) + 100)
	lg.mu.Unlock()

	orderID := orderIDFor(lg.cfg.RunID, orderNum)

	switch {
	case roll < lg.cfg.Weights.Create:
		return buildCommand(order.CreateOrder, orderID, order.CreateOrderPayload{
			CustomerID: fmt.Sprintf("customer-%d", orderNum%50),
			Currency:   "EUR",
		})

	case roll < lg.cfg.Weights.Create+lg.cfg.Weights.AddItem:
		return buildCommand(order.AddItem, orderID, order.AddItemPayload{
			SKU:       fmt.Sprintf("SKU-%03d", skuNum),
			Quantity:  quantity,
			UnitPrice: price,
		})

	default:
		return buildCommand(order.CancelOrder, orderID, order.CancelOrderPayload{Reason: "load test"})
	}
}

func (lg *LoadGenerator) send(ctx context.Context, cmd command.Command) error {
	ctx, cancel := context.WithTimeout(ctx, lg.cfg.RequestTimeout)
	defer cancel()

	body, err := codec.Marshal(cmd)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, lg.cfg.Target+"/commands", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "nexus-loadgen/1.0")

	resp, err := lg.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return statusError(resp.StatusCode)
}

type statusClass int

const (
	classCreated statusClass = iota
	classConflict
	classRejected
	classError
)

type classifiedError struct {
	class statusClass
	code  int
}

func (e classifiedError) Error() string {
	return fmt.Sprintf("%s: %d", errUnexpectedStatus, e.code)
}

func (e classifiedError) Unwrap() error {
	return errUnexpectedStatus
}

func statusError(code int) error {
	switch {
	case code == http.StatusCreated || code == http.StatusOK:
		return nil
	case code == http.StatusConflict:
		return classifiedError{class: classConflict, code: code}
	case code == http.StatusBadRequest:
		return classifiedError{class: classRejected, code: code}
	default:
		return classifiedError{class: classError, code: code}
	}
}

func classify(err error) statusClass {
	if err == nil {
		return classCreated
	}

	var ce classifiedError
	if errors.As(err, &ce) {
		return ce.class
	}

	return classError
}

func (lg *LoadGenerator) record(err error) {
	lg.mu.Lock()
	defer lg.mu.Unlock()

	lg.stats.Requests++

	switch classify(err) {
	case classCreated:
		lg.stats.Created++
	case classConflict:
		lg.stats.Conflicts++
	case classRejected:
		lg.stats.Rejected++
	default:
		lg.stats.Errors++
		lg.logger.Warn("request failed", "error", err.Error())
	}
}

func (lg *LoadGenerator) logStats(msg string) {
	lg.mu.Lock()
	stats := lg.stats
	elapsed := time.Since(lg.startTime)
	lg.mu.Unlock()

	if elapsed <= 0 {
		return
	}

	lg.logger.Info(msg,
		"requests", stats.Requests,
		"rps", float64(stats.Requests)/elapsed.Seconds(),
		"created", stats.Created,
		"conflicts", stats.Conflicts,
		"rejected", stats.Rejected,
		"errors", stats.Errors,
		"elapsed", elapsed.Truncate(time.Second).String(),
	)
}

func buildCommand(commandType, orderID string, payload any) command.Command {
	raw, _ := codec.Marshal(payload)

	return command.Command{CommandType: commandType, AggregateID: orderID, Payload: raw}
}

// orderIDFor is stable per run so repeated picks hit the same aggregate.
func orderIDFor(runID string, n int) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, fmt.Appendf(nil, "%s-order-%d", runID, n)).String()
}
