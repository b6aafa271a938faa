package relay

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// maxMessageLen leaves headroom under Telegram's 4096-char hard limit for
// the header, footer and a truncation notice.
const maxMessageLen = 3800

var markdownV2Escapes = map[byte]bool{
	'\\': true,
	'_':  true,
	'*':  true,
	'[':  true,
	']':  true,
	'(':  true,
	')':  true,
	'~':  true,
	'`':  true,
	'>':  true,
	'#':  true,
	'+':  true,
	'-':  true,
	'=':  true,
	'|':  true,
	'{':  true,
	'}':  true,
	'.':  true,
	'!':  true,
}

// EscapeMarkdownV2 backslash-escapes every character Telegram's MarkdownV2
// parser treats as markup.
func EscapeMarkdownV2(text string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	var b strings.Builder
	b.Grow(len(text) + 8)
	for i := 0; i < len(text); i++ {
		ch := text[i]
		if markdownV2Escapes[ch] {
			b.WriteByte('\\')
		}
		b.WriteByte(ch)
	}
	return b.String()
}

// escapeFor escapes text for the configured parse mode. Plain text needs
// nothing; Markdown (legacy) is left alone because the sender downgrades on
// parse errors anyway.
func escapeFor(parseMode, text string) string {
	if parseMode == "MarkdownV2" {
		return EscapeMarkdownV2(text)
	}
	return text
}

// truncate cuts text to max bytes, preferring a line break near the limit,
// and appends the notice when anything was removed. Hard cuts land on a rune
// boundary and never strand an escaping backslash.
func truncate(text string, max int, notice string) string {
	if len(text) <= max {
		return text
	}
	cutAt := strings.LastIndex(text[:max], "\n")
	if cutAt < max/2 {
		cutAt = max
		for cutAt > 0 && !utf8.RuneStart(text[cutAt]) {
			cutAt--
		}
		// An odd run of trailing backslashes means the cut would split an
		// escape sequence.
		n := 0
		for cutAt-n > 0 && text[cutAt-n-1] == '\\' {
			n++
		}
		if n%2 == 1 {
			cutAt--
		}
	}
	return text[:cutAt] + "\n" + notice
}

// formatAgentMessage wraps an agent's reply with the ticket-identifying
// header and footer, escaped for the parse mode. Truncation budgets against
// the escaped body so escaping can never push the result past Telegram's
// length limit.
func (h *DeliveryHandler) formatAgentMessage(friendlyID, text string, attachmentCount int) string {
	body := escapeFor(h.parseMode, text)
	body = truncate(body, maxMessageLen, escapeFor(h.parseMode, h.templates.TruncationNotice))

	var sb strings.Builder
	sb.WriteString(escapeFor(h.parseMode, expand(h.templates.AgentMessageHeader, friendlyID)))
	sb.WriteString("\n\n")
	sb.WriteString(body)
	if attachmentCount > 0 {
		sb.WriteString("\n\n")
		sb.WriteString(escapeFor(h.parseMode, fmt.Sprintf(h.templates.AttachmentNote, attachmentCount)))
	}
	sb.WriteString("\n\n")
	sb.WriteString(escapeFor(h.parseMode, expand(h.templates.AgentMessageFooter, friendlyID)))
	return sb.String()
}

// formatStatusNotice renders the resolution or reopened notice.
func (h *DeliveryHandler) formatStatusNotice(template, friendlyID string) string {
	return escapeFor(h.parseMode, expand(template, friendlyID))
}
