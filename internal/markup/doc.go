// Package markup renders message text and entity spans as MarkdownV2 so
// styling survives the relay between end users and operators.
package markup
