// Package protocol groups the plugin wire contract.
//
// Ownership boundary:
// - envelope: frame shape and codecs
// - correlation: pending call table
// - dispatch: event fan-out to subscribers
// - session: connection lifecycle, handshake, and reconnect
package protocol
