// Package otel bridges engine metrics into OpenTelemetry instruments. The
// exporter registers one observation callback and reads a fresh snapshot on
// every collection.
package otel
