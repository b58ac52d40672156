// Command loadgen drives an eventsd instance with concurrent order commands.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/convey2karthikshivashankar-cloud/nexus-sub000/internal/platform/config"
	"github.com/convey2karthikshivashankar-cloud/nexus-sub000/internal/platform/runtime"
)

const (
	defaultRate    = 30
	defaultOrders  = 200
	defaultWeights = "20,70,10" // create, add item, cancel
)

// Weights are percentages and must sum to 100.
type Weights struct {
	Create  int
	AddItem int
	Cancel  int
}

type Config struct {
	Target         string
	Rate           int
	Requests       int
	Orders         int
	Weights        Weights
	RequestTimeout time.Duration
	ReportInterval time.Duration
	RunID          string
	Seed           uint64
	LogLevel       string
}

func main() {
	cfg, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		os.Exit(2)
	}

	logger := runtime.NewLogger("loadgen", cfg.LogLevel)

	ctx, stop := runtime.SignalContext()
	defer stop()

	stats := NewLoadGenerator(cfg, nil, logger).Run(ctx)
	if stats.Errors > 0 {
		os.Exit(1)
	}
}

func parseFlags(args []string, stderr io.Writer) (Config, error) {
	fs := flag.NewFlagSet("loadgen", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		target   = fs.String("target", config.String("EVENTSD_URL", "http://localhost:8080"), "Base URL of eventsd")
		rate     = fs.Int("rate", defaultRate, "Requests per second")
		requests = fs.Int("requests", 0, "Stop after this many requests, 0 runs until interrupted")
		orders   = fs.Int("orders", defaultOrders, "Size of the order id pool")
		weights  = fs.String("weights", defaultWeights, "Comma separated weights for create,add-item,cancel")
		timeout  = fs.Duration("timeout", 5*time.Second, "Per request timeout")
		report   = fs.Duration("report-interval", 10*time.Second, "Stats log interval")
		runID    = fs.String("run-id", "", "Prefix for generated order ids, random when empty")
		seed     = fs.Uint64("seed", 0, "Random seed, derived from the clock when 0")
		level    = fs.String("log-level", "info", "Log level")
	)

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	parsed, err := parseWeights(*weights)
	if err != nil {
		fmt.Fprintf(stderr, "invalid weights %q: %v\n", *weights, err)
		return Config{}, err
	}

	if *rate <= 0 || *orders <= 0 || *requests < 0 || *timeout <= 0 || *report <= 0 {
		err := errors.New("rate, orders, timeout and report-interval must be positive")
		fmt.Fprintln(stderr, err)
		return Config{}, err
	}

	cfg := Config{
		Target:         strings.TrimRight(*target, "/"),
		Rate:           *rate,
		Requests:       *requests,
		Orders:         *orders,
		Weights:        parsed,
		RequestTimeout: *timeout,
		ReportInterval: *report,
		RunID:          *runID,
		Seed:           *seed,
		LogLevel:       *level,
	}

	if cfg.RunID == "" {
		cfg.RunID = uuid.NewString()[:8]
	}
	if cfg.Seed == 0 {
		cfg.Seed = uint64(time.Now().UnixNano())
	}

	return cfg, nil
}

func parseWeights(s string) (Weights, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return Weights{}, fmt.Errorf("expected 3 weights, got %d", len(parts))
	}

	values := make([]int, 3)
	total := 0
	for i, part := range parts {
		weight, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return Weights{}, fmt.Errorf("invalid weight %q: %w", part, err)
		}
		if weight < 0 || weight > 100 {
			return Weights{}, fmt.Errorf("weight %d out of range [0, 100]", weight)
		}
		values[i] = weight
		total += weight
	}

	if total != 100 {
		return Weights{}, fmt.Errorf("weights must sum to 100, got %d", total)
	}

	return Weights{Create: values[0], AddItem: values[1], Cancel: values[2]}, nil
}
