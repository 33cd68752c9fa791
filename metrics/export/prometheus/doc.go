// Package prometheus exposes engine metrics in Prometheus text exposition
// format without pulling the Prometheus client library into the core
// module.
package prometheus
