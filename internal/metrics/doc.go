// Package metrics aggregates the relay's operational counters. The same
// figures back the Prometheus /metrics endpoint, the /health summary and
// the message stats API.
package metrics
