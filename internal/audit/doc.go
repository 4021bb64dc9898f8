// Package audit records connection lifecycle events.
//
// Events describe who connected, who logged in, protocol violations and
// disconnects. Message bodies are never recorded. The PostgreSQL Writer batches
// events into the connection_events table; Nop is used when auditing is off.
package audit
