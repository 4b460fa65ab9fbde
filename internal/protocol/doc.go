// Package protocol implements the chat platform bot API: long-poll update
// delivery, message and media sends, forum thread management, and file
// downloads. The Client interface abstracts the HTTP implementation so the
// relay pipeline can be tested against a mock.
package protocol
