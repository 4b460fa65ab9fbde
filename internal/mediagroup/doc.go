// Package mediagroup reassembles photo and video albums whose parts the
// platform delivers as individual updates with a shared album id.
package mediagroup
