// Package store provides persistence for tenants, conversations, relayed
// message audit rows, and per-tenant ban records. The primary implementation
// is SQLite-backed; a mock implementation is provided for tests.
package store
