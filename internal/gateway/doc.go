// Package gateway hosts the agent-facing WebSocket endpoint and the
// operator control API. Agents authenticate on connect, heartbeat, pull
// tasks, and report completions and failures; the server pushes task,
// ETA, and lifecycle events back through the same connection.
package gateway
