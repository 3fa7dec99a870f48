// Package internaldefs holds the counter table and latency bucket layout
// shared by the metric exporters.
package internaldefs
