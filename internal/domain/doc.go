// Package domain defines core data models and interfaces shared across the
// relay. It contains plain types (addresses, envelopes, key records) and
// contracts (interfaces) only.
package domain
