// Package session owns the plugin's link to the host.
//
// Ownership boundary:
// - dial, registration handshake, reconnect with backoff
// - the single read loop and single writer per physical connection
// - correlated calls and their failure modes
// - transport security settings for wss targets
//
// Lifecycle: Disconnected -> Connecting -> Connected -> Disconnected, and
// Closing once Close is called. Calls are only accepted while Connected.
package session
