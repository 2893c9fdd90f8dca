// Package connection owns the live push channel to the venue platform.
//
// Client is the physical websocket: dial, heartbeat, transport-level
// reconnection with backoff. Manager layers the process-wide lifecycle on
// top: at most one live connection, the Disconnected/Connecting/Connected/
// Reconnecting state machine, topic subscribe intents, and dispatch of
// decoded event frames onto the listener registry.
//
// The manager never retries a rejected initial Connect; the fallback
// scheduler decides when to try again.
package connection
