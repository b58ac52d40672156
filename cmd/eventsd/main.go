// Command eventsd serves the order aggregate over HTTP and distributes its events.
package main

import (
	"fmt"
	"os"

	"github.com/convey2karthikshivashankar-cloud/nexus-sub000/internal/platform/runtime"
)

func main() {
	cfg, err := LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	logger := runtime.NewLogger(cfg.ServiceName, cfg.LogLevel)

	ctx, stop := runtime.SignalContext()
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("eventsd stopped with error", "error", err.Error())
		os.Exit(1)
	}
}
