// Package relay implements the capture-then-deliver pipeline between end
// users and the operator group. A message is first serialized into a
// transient envelope (with media downloaded from the source bot), then
// delivered through the destination bot and deleted on success.
package relay
