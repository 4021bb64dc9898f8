// Package connection implements the connection server the chat core runs on.
//
// The Server:
//   - Accepts newline-delimited text clients over TCP
//   - Optionally accepts WebSocket clients (one text frame per message) on a second port
//   - Tracks live connections and delivers a message to one or all of them
//   - Gives every connection a bounded outbound queue drained by its own writer
//   - Reports connection and listener lifecycle events to a Handler
package connection
