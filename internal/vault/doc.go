// Package vault encrypts tenant bot credentials before they reach the
// database. Stored values carry a version prefix so plaintext rows written
// before encryption was enabled still load.
package vault
