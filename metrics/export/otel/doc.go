// Package otel publishes cmsauth engine counters through an OpenTelemetry
// meter.
//
// [New] registers one Int64ObservableCounter per event family (logins,
// authorizations, sessions, CSRF mismatches, lockout store errors, dropped
// audit events) with the outcome carried as an attribute, plus a gauge of
// cumulative authorization latency buckets keyed by "le". One callback reads
// the engine snapshot on each collection.
//
// The caller owns the MeterProvider and its readers.
package otel
