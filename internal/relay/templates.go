package relay

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Templates holds the user-facing wording the relay produces. Deployments
// can override any of it from a YAML file; unset fields keep their default.
// The {{ticket}} placeholder expands to the friendly ticket ID.
type Templates struct {
	AgentMessageHeader string `yaml:"agentMessageHeader"`
	AgentMessageFooter string `yaml:"agentMessageFooter"`
	ResolutionNotice   string `yaml:"resolutionNotice"`
	ReopenedNotice     string `yaml:"reopenedNotice"`
	FallbackNote       string `yaml:"fallbackNote"`
	TruncationNotice   string `yaml:"truncationNotice"`
	AttachmentNote     string `yaml:"attachmentNote"` // takes the attachment count
}

func DefaultTemplates() Templates {
	return Templates{
		AgentMessageHeader: "🎫 Support reply on {{ticket}}:",
		AgentMessageFooter: "Reply to this message to answer.",
		ResolutionNotice:   "✅ Ticket {{ticket}} has been resolved. Reply to reopen it.",
		ReopenedNotice:     "🔄 Ticket {{ticket}} has been reopened. An agent will follow up.",
		FallbackNote:       "⚠️ The original ticket message is gone, replying without a thread.",
		TruncationNotice:   "… [message truncated]",
		AttachmentNote:     "📎 %d attachment(s) on the ticket, view them in the helpdesk.",
	}
}

// LoadTemplates reads overrides from path. An empty path means defaults; a
// missing file is an error so typos in config don't silently fall through.
func LoadTemplates(path string) (Templates, error) {
	tpl := DefaultTemplates()
	if path == "" {
		return tpl, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return tpl, fmt.Errorf("cannot read templates file %s: %w", path, err)
	}

	var overrides Templates
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return tpl, fmt.Errorf("cannot parse templates file %s: %w", path, err)
	}
	tpl.merge(overrides)
	return tpl, nil
}

func (t *Templates) merge(o Templates) {
	if o.AgentMessageHeader != "" {
		t.AgentMessageHeader = o.AgentMessageHeader
	}
	if o.AgentMessageFooter != "" {
		t.AgentMessageFooter = o.AgentMessageFooter
	}
	if o.ResolutionNotice != "" {
		t.ResolutionNotice = o.ResolutionNotice
	}
	if o.ReopenedNotice != "" {
		t.ReopenedNotice = o.ReopenedNotice
	}
	if o.FallbackNote != "" {
		t.FallbackNote = o.FallbackNote
	}
	if o.TruncationNotice != "" {
		t.TruncationNotice = o.TruncationNotice
	}
	if o.AttachmentNote != "" {
		t.AttachmentNote = o.AttachmentNote
	}
}

func expand(template, friendlyID string) string {
	return strings.ReplaceAll(template, "{{ticket}}", friendlyID)
}
