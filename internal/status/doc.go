// Package status owns the conversation lifecycle: waiting, answered,
// hold, banned, ended. Operator commands drive explicit transitions;
// message traffic drives the waiting/answered flip.
package status
