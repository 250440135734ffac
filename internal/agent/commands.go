package agent

import (
	"fmt"
	"strings"

	"github.com/crystaldolphin/toolsmith/internal/bus"
)

const helpText = "toolsmith commands:\n/tools — List available tools\n/help — Show available commands"

// handleSlashCommand answers the chat commands that bypass the model.
func (l *Loop) handleSlashCommand(msg bus.InboundMessage) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(msg.Content())) {
	case "/help":
		return helpText, true
	case "/tools":
		return l.describeTools(), true
	}
	return "", false
}

func (l *Loop) describeTools() string {
	if l.tools == nil {
		return "No tools registered."
	}
	descs := l.tools.ListTools()
	if len(descs) == 0 {
		return "No tools registered."
	}
	var sb strings.Builder
	sb.WriteString("Available tools:")
	for _, d := range descs {
		fmt.Fprintf(&sb, "\n• %s (%s): %s", d.Name, d.Kind, d.Description)
	}
	return sb.String()
}
