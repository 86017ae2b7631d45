// Package internaldefs holds the metric names and latency bucket bounds shared
// by the exporters.
//
// The Prometheus exporter publishes every counter under its own name; the OTel
// exporter groups them into attribute-split families but reads the same bucket
// bounds.
package internaldefs
