// Package gateway is the coordination layer: it consumes updates from
// every tenant bot and from the operator bot, opens forum threads,
// relays messages in both directions, and enforces operator commands.
package gateway
