// Package otel exports engine metrics as OpenTelemetry observable
// instruments.
//
// The engine's fixed-bucket latency histogram is exported as a set of
// cumulative bucket gauges rather than a native OTel histogram, so
// the exporter never has to replay individual samples.
package otel
