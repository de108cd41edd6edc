// Package httpapi serves the relay's REST surface: the key directory,
// queue introspection, presence, health and Prometheus metrics. It is
// stateless over the core components; every handler validates, calls
// one component, and renders JSON.
package httpapi
