// ABOUTME: User-facing and operator-facing message texts
// ABOUTME: Locale-aware greetings with per-tenant overrides

package gateway

import (
	"fmt"

	"github.com/relaydesk/relaydesk/internal/markup"
	"github.com/relaydesk/relaydesk/internal/store"
)

const defaultLocale = "en"

var defaultWelcome = map[string]string{
	"en": "Hello! Write your question here and a support operator will reply shortly.",
	"ru": "Здравствуйте! Напишите ваш вопрос, и оператор поддержки скоро ответит.",
}

var defaultInfo = map[string]string{
	"en": "This chat connects you to our support team. Just send a message, photo, or file.",
	"ru": "Этот чат связывает вас со службой поддержки. Просто отправьте сообщение, фото или файл.",
}

const operatorHelp = `Operator commands, inside a conversation thread:
/hold - pause the conversation
/unhold - resume a held conversation
/ban - block the user
/unban - unblock the user
/end - close the conversation`

var commandConfirmations = map[string]string{
	"hold":   "Conversation put on hold.",
	"unhold": "Conversation resumed.",
	"ban":    "User banned.",
	"unban":  "User unbanned.",
	"end":    "Conversation closed.",
}

const (
	noticeNotInThread     = "This command only works inside a conversation thread."
	noticeNoConversation  = "No conversation is bound to this thread."
	noticeReplyOnEnded    = "This conversation is closed. The reply was not delivered."
	noticeReplyOnBanned   = "This user is banned. The reply was not delivered."
	noticeUnknownCommand  = "Unknown command. Send /help for the list."
	noticeDeliveryFailure = "Could not deliver the message to the user."
)

// pickText resolves a per-tenant override map, falling back to the
// built-in defaults, preferring the user's locale.
func pickText(overrides, defaults map[string]string, locale string) string {
	for _, m := range []map[string]string{overrides, defaults} {
		if m == nil {
			continue
		}
		if text, ok := m[locale]; ok && text != "" {
			return text
		}
		if text, ok := m[defaultLocale]; ok && text != "" {
			return text
		}
	}
	return ""
}

func welcomeText(tenant *store.Tenant, locale string) string {
	return pickText(tenant.WelcomeText, defaultWelcome, locale)
}

func infoText(tenant *store.Tenant, locale string) string {
	return pickText(tenant.InfoText, defaultInfo, locale)
}

// userInfoHeader is the first message posted into a freshly created
// thread so operators see who they are talking to.
func userInfoHeader(tenant *store.Tenant, conv *store.Conversation) string {
	name := conv.FirstName
	if conv.LastName != "" {
		name += " " + conv.LastName
	}
	if name == "" {
		name = "Unknown"
	}

	header := fmt.Sprintf("*New conversation*\nName: %s\n", markup.Escape(name))
	if conv.Username != "" {
		header += fmt.Sprintf("Username: @%s\n", markup.Escape(conv.Username))
	}
	header += fmt.Sprintf("User ID: `%d`\nBot: @%s", conv.UserID, markup.Escape(tenant.BotUsername))
	return header
}

// invalidTransitionNotice explains why a command was rejected.
func invalidTransitionNotice(cmd, current string) string {
	return fmt.Sprintf("Cannot /%s a %s conversation.", cmd, current)
}
