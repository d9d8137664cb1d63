// Package internaldefs exposes stable metric name and bucket
// definitions shared by the exporter implementations.
//
// Counter and histogram definitions live here so that the Prometheus
// and OTel exporters agree on metric names and bucket boundaries.
// Changing a definition here changes every exporter at once.
//
// # What this package must NOT do
//
//   - Import any exporter package.
//   - Perform I/O.
package internaldefs
