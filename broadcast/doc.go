// Package broadcast pushes live workspace state to passive subscribers.
//
// The Broadcaster snapshots its Source on a fixed interval and fans the
// projection out as workspace_update events, with slower heartbeat events
// keeping idle connections alive. Subscribers are fully independent: each
// gets a buffered channel, delivery never blocks, and a slow subscriber
// misses events without affecting the others.
//
// Three consumers ship with the package. SSEHandler and WSHandler serve the
// stream to browser clients over Server-Sent Events and WebSocket. Relay
// republishes every event onto a MessageBus (in-memory or NATS) so detached
// dashboards can follow a supervisor from another process.
package broadcast
