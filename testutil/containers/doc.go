// Package containers starts throwaway Postgres, Redis and Redpanda instances for integration tests.
//
// Everything here is behind the integration build tag:
//
//	go test -tags integration ./...
package containers
