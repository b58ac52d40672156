// Command schemacheck fails a build when a schema file contains a version that is not
// compatible with its predecessors.
//
//	schemacheck -file schemas.yaml [-mode BACKWARD]
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"

	"github.com/convey2karthikshivashankar-cloud/nexus-sub000/schema"
)

// Exit codes.
const (
	exitOK           = 0
	exitIncompatible = 1
	exitUsage        = 2
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("schemacheck", flag.ContinueOnError)
	fs.SetOutput(stderr)
	path := fs.String("file", "", "YAML schema file to check")
	modeFlag := fs.String("mode", "", "compatibility mode overriding the per-schema mode")

	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	if *path == "" {
		fmt.Fprintln(stderr, "schemacheck: -file is required")
		fs.Usage()
		return exitUsage
	}

	var mode schema.CompatibilityMode
	if *modeFlag != "" {
		parsed, err := schema.ParseMode(*modeFlag)
		if err != nil {
			fmt.Fprintf(stderr, "schemacheck: %v\n", err)
			return exitUsage
		}
		mode = parsed
	}

	results, err := check(*path, mode)
	if err != nil {
		fmt.Fprintf(stderr, "schemacheck: %v\n", err)
		return exitUsage
	}

	incompatible := 0
	for _, name := range slices.Sorted(maps.Keys(results)) {
		result := results[name]
		if result.Compatible {
			fmt.Fprintf(stdout, "ok    %s\n", name)
			continue
		}

		incompatible++
		fmt.Fprintf(stdout, "FAIL  %s\n", name)
		for _, violation := range result.Violations {
			fmt.Fprintf(stdout, "      %s\n", violation)
		}
	}

	if incompatible > 0 {
		fmt.Fprintf(stderr, "schemacheck: %d incompatible schema(s)\n", incompatible)
		return exitIncompatible
	}

	return exitOK
}

func check(path string, mode schema.CompatibilityMode) (map[string]schema.CompatibilityResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	file, err := schema.ParseFile(f)
	if err != nil {
		return nil, err
	}

	if len(file.Schemas) == 0 {
		return nil, errors.New("no schemas in file")
	}

	return schema.CheckFile(file, mode)
}
