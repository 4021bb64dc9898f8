// Package router implements the chat protocol on top of connection.Server.
//
// The first message of a connection may be "#login <id>". A later #login is a
// protocol violation and ends the session. Every message, including the login
// line itself, is relayed to all connected clients.
package router
