// ABOUTME: Compiles plain text plus entity spans into MarkdownV2 markup
// ABOUTME: Handles escaping rules, span wrapping, and invalid entity bounds

package markup

import (
	"sort"
	"strings"

	"github.com/relaydesk/relaydesk/internal/protocol"
)

// ParseMode is the parse_mode value for compiled output.
const ParseMode = "MarkdownV2"

const reserved = "_*[]()~`>#+-=|{}.!"

// Escape backslash-escapes every reserved markup character in s.
func Escape(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if strings.ContainsRune(reserved, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// EscapeURL escapes only the characters that break a link target.
func EscapeURL(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == ')' || r == '\\' {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// escapeLiteral escapes code and pre bodies, which only treat backslash
// and backtick specially.
func escapeLiteral(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, "`", "\\`")
}

// Compile renders text with its entity spans as MarkdownV2.
// Offsets are in code points. Entities with bounds outside the text and
// entities overlapping an earlier span are dropped; their text still
// renders, unstyled.
func Compile(text string, entities []protocol.Entity) string {
	runes := []rune(text)
	if len(entities) == 0 {
		return Escape(text)
	}

	valid := make([]protocol.Entity, 0, len(entities))
	for _, e := range entities {
		if e.Offset < 0 || e.Length <= 0 || e.Offset+e.Length > len(runes) {
			continue
		}
		valid = append(valid, e)
	}
	sort.SliceStable(valid, func(i, j int) bool {
		if valid[i].Offset != valid[j].Offset {
			return valid[i].Offset < valid[j].Offset
		}
		return valid[i].Length > valid[j].Length
	})

	var b strings.Builder
	pos := 0
	for _, e := range valid {
		if e.Offset < pos {
			// Overlaps the previous span.
			continue
		}
		b.WriteString(Escape(string(runes[pos:e.Offset])))
		b.WriteString(renderSpan(string(runes[e.Offset:e.Offset+e.Length]), e))
		pos = e.Offset + e.Length
	}
	b.WriteString(Escape(string(runes[pos:])))
	return b.String()
}

func renderSpan(inner string, e protocol.Entity) string {
	switch e.Type {
	case protocol.EntityBold:
		return "*" + Escape(inner) + "*"
	case protocol.EntityItalic:
		return "_" + Escape(inner) + "_"
	case protocol.EntityUnderline:
		return "__" + Escape(inner) + "__"
	case protocol.EntityStrikethrough:
		return "~" + Escape(inner) + "~"
	case protocol.EntitySpoiler:
		return "||" + Escape(inner) + "||"
	case protocol.EntityCode:
		return "`" + escapeLiteral(inner) + "`"
	case protocol.EntityPre:
		return "```" + e.Language + "\n" + escapeLiteral(inner) + "\n```"
	case protocol.EntityBlockquote:
		return quoteLines(inner, false)
	case protocol.EntityExpandableBlockquote:
		return quoteLines(inner, true)
	case protocol.EntityTextLink:
		return "[" + Escape(inner) + "](" + EscapeURL(e.URL) + ")"
	default:
		// URL, mention, hashtag and the other semantic spans render as
		// plain text; the platform re-detects them.
		return Escape(inner)
	}
}

func quoteLines(inner string, expandable bool) string {
	lines := strings.Split(inner, "\n")
	for i, line := range lines {
		lines[i] = ">" + Escape(line)
	}
	out := strings.Join(lines, "\n")
	if expandable {
		out += "||"
	}
	return out
}
