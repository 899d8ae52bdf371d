// Package transport owns the inbound connection path: protocol detection,
// the link-stealing policy, the per-connection session lifecycle, and the
// accepting server.
//
// Ownership boundary:
// - connection sniffing and byte replay into the winning codec
// - session state machine (detecting -> handshaking -> established ->
//   closing -> closed)
// - link policy decision and presence binding
// - TCP and WebSocket listeners
package transport
