package relay

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestEscapeMarkdownV2(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"plain text", "plain text"},
		{"a_b*c", `a\_b\*c`},
		{"dots. and! bangs", `dots\. and\! bangs`},
		{"[link](url)", `\[link\]\(url\)`},
		{"back\\slash", `back\\slash`},
		{"", ""},
		{"   ", "   "},
	}
	for _, tt := range tests {
		if got := EscapeMarkdownV2(tt.in); got != tt.want {
			t.Errorf("EscapeMarkdownV2(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestEscapeForOnlyTouchesMarkdownV2(t *testing.T) {
	in := "a_b.c"
	if got := escapeFor("MarkdownV2", in); got != `a\_b\.c` {
		t.Errorf("MarkdownV2: got %q", got)
	}
	if got := escapeFor("", in); got != in {
		t.Errorf("plain: got %q, want unchanged", got)
	}
	if got := escapeFor("Markdown", in); got != in {
		t.Errorf("legacy Markdown: got %q, want unchanged", got)
	}
}

func TestTruncate(t *testing.T) {
	notice := "[cut]"

	if got := truncate("short", 100, notice); got != "short" {
		t.Errorf("short input must pass through, got %q", got)
	}

	long := strings.Repeat("x", 80) + "\n" + strings.Repeat("y", 80)
	got := truncate(long, 100, notice)
	if !strings.HasSuffix(got, notice) {
		t.Errorf("truncated output missing notice: %q", got)
	}
	if len(got) > 100+len(notice)+1 {
		t.Errorf("truncated output too long: %d bytes", len(got))
	}
	// A newline near the limit should be preferred as the cut point.
	if !strings.HasPrefix(got, strings.Repeat("x", 80)+"\n") {
		t.Errorf("expected cut at line break, got %q", got)
	}

	// No usable line break: hard cut at the limit.
	solid := strings.Repeat("z", 200)
	got = truncate(solid, 100, notice)
	if !strings.HasPrefix(got, strings.Repeat("z", 100)) {
		t.Errorf("expected hard cut at limit, got %d leading z's", strings.Count(got, "z"))
	}
}

func TestTruncateHardCutOnRuneBoundary(t *testing.T) {
	text := strings.Repeat("é", 100) // 2 bytes each
	got := truncate(text, 101, "[cut]")
	if !utf8.ValidString(got) {
		t.Errorf("cut split a rune: %q", got)
	}
	if !strings.HasPrefix(got, strings.Repeat("é", 50)) {
		t.Errorf("unexpected cut point: %q", got)
	}
}

func TestTruncateKeepsEscapeSequencesIntact(t *testing.T) {
	// Escaped punctuation all the way through; a cut at an odd offset would
	// strand a backslash.
	text := strings.Repeat(`\.`, 100)
	got := truncate(text, 101, "[cut]")
	body := strings.TrimSuffix(got, "\n[cut]")
	n := 0
	for i := len(body) - 1; i >= 0 && body[i] == '\\'; i-- {
		n++
	}
	if n%2 == 1 {
		t.Errorf("stranded escaping backslash at cut: %q", body[len(body)-4:])
	}
}

func TestFormatAgentMessageStaysUnderTelegramLimit(t *testing.T) {
	h := &DeliveryHandler{templates: DefaultTemplates(), parseMode: "MarkdownV2"}

	// Punctuation-heavy body whose escaped form is nearly double its raw
	// length.
	got := h.formatAgentMessage("TKT-1", strings.Repeat("a.", 1900), 0)
	if len(got) > 4096 {
		t.Errorf("formatted message is %d bytes, over Telegram's 4096 limit", len(got))
	}
	if !strings.Contains(got, "message truncated") {
		t.Errorf("oversized body was not truncated: %d bytes", len(got))
	}
}

func TestFormatAgentMessage(t *testing.T) {
	h := &DeliveryHandler{templates: DefaultTemplates(), parseMode: ""}

	got := h.formatAgentMessage("TKT-9", "the answer", 0)
	if !strings.Contains(got, "TKT-9") {
		t.Errorf("missing ticket id: %q", got)
	}
	if !strings.Contains(got, "the answer") {
		t.Errorf("missing body: %q", got)
	}
	if !strings.Contains(got, DefaultTemplates().AgentMessageFooter) {
		t.Errorf("missing footer: %q", got)
	}
	if strings.Contains(got, "attachment") {
		t.Errorf("attachment note must be absent for zero attachments: %q", got)
	}

	got = h.formatAgentMessage("TKT-9", "see attached", 2)
	if !strings.Contains(got, "2 attachment") {
		t.Errorf("missing attachment note: %q", got)
	}
}

func TestFormatAgentMessageEscapesForMarkdownV2(t *testing.T) {
	h := &DeliveryHandler{templates: DefaultTemplates(), parseMode: "MarkdownV2"}

	got := h.formatAgentMessage("TKT-1", "1+1=2", 0)
	if !strings.Contains(got, `1\+1\=2`) {
		t.Errorf("body not escaped: %q", got)
	}
	if !strings.Contains(got, `TKT\-1`) {
		t.Errorf("header not escaped: %q", got)
	}
}

func TestFormatStatusNotice(t *testing.T) {
	h := &DeliveryHandler{templates: DefaultTemplates(), parseMode: ""}

	got := h.formatStatusNotice(h.templates.ResolutionNotice, "TKT-3")
	if !strings.Contains(got, "TKT-3") || !strings.Contains(got, "resolved") {
		t.Errorf("unexpected notice: %q", got)
	}
	if strings.Contains(got, "{{ticket}}") {
		t.Errorf("placeholder not expanded: %q", got)
	}
}
