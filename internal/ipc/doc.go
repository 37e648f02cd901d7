// Package ipc exposes daemon control over JSON-RPC on a Unix domain socket.
// The CLI is the only intended client; the wire types are thin DTOs so the
// daemon's internal models never leak into the protocol.
package ipc
