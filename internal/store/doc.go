// Package store wraps the embedded SQLite engine shared by all querystore
// consumers.
//
// A Store is the process-wide engine handle: one named shared-cache
// in-memory database plus a keepalive session that holds it alive. Every
// consumer session obtained through Session sees the same tables and
// views, which is the foundation for cross-consumer publications.
package store
