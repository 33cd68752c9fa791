// Package internaldefs holds the metric name and bucket definitions shared
// by the exporter implementations, so the Prometheus and OTel exporters
// always expose identical names and boundaries.
package internaldefs
