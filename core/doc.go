// Package core contains the token API contracts and the dispatch pipeline:
// credential freshness, refresh exchange, request building, response
// resolution and lifecycle events. Transports, stores and sinks are adapters
// that depend on this package; core does not depend on them.
package core
