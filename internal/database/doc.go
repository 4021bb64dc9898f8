// Package database opens the PostgreSQL connection pool used by the connection audit log.
//
// The chat server itself keeps no state in the database. The pool is only created
// when audit.enabled is set in the config file.
package database
