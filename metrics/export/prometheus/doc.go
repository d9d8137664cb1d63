// Package prometheus exports engine metrics to Prometheus through
// the standard client library's Collector interface.
//
// Register the [Collector] in an existing registry, or use
// [Collector.Handler] for a self-contained scrape endpoint. Scrapes
// read a consistent snapshot; they never block engine operations.
package prometheus
