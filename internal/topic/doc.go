// Package topic maps conversations onto forum threads in the operator
// group: one thread per conversation, titled with the conversation's
// status emoji and user name.
package topic
