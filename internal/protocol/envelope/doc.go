// Package envelope owns the plugin<->host wire message.
//
// Ownership boundary:
// - envelope shape and per-kind validation
// - json (text frame) and protobuf struct (binary frame) codecs
// - malformed frame diagnostics
//
// Payloads are opaque structured maps; host-defined shapes live above this layer.
package envelope
