// Package transient holds short-lived relay state: serialized message
// envelopes and downloaded media blobs awaiting delivery. Entries expire
// by TTL if delivery never completes.
package transient
