// Package metrics exposes the server's Prometheus counters/gauges and a
// liveness probe on the optional side metrics HTTP listener (--metrics-addr).
// It never touches command dispatch directly; pkg/server updates the
// package-level metrics after each command and the Collector samples
// aggregate state (connected clients, key counts, replica count) on a timer.
package metrics
