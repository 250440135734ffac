package orchestrator

import (
	"fmt"
	"strings"
	"time"

	"github.com/crystaldolphin/toolsmith/internal/schema"
)

const defaultPersona = "You are a friendly, concise assistant. Answer in the language the user writes in."

const routingRules = `# Tools

You can call exactly one tool per message. Available tools:

%s

To call a tool, reply with a short sentence followed by:
<action><tool>TOOL_NAME</tool><args>{"param": "value"}</args></action>

Arguments must be a JSON object keyed by parameter name.
%s
Otherwise answer directly in plain text. Never invent tool results.`

const synthesisRule = `If no tool fits but a small program calling a public API or doing a computation would,
reply with a short sentence followed by:
<synthesize>one-line description of the missing capability</synthesize>
`

// routingMessages builds the prompt that decides between answering, calling
// a tool and requesting a new one.
func routingMessages(persona, catalogue string, synthesis bool, history []schema.Turn, message string, now time.Time) schema.Messages {
	if strings.TrimSpace(persona) == "" {
		persona = defaultPersona
	}
	rule := ""
	if synthesis {
		rule = "\n" + synthesisRule
	}

	var sb strings.Builder
	sb.WriteString(persona)
	sb.WriteString("\n\n")
	fmt.Fprintf(&sb, "Current time: %s\n\n", now.Format("2006-01-02 15:04 (Monday) MST"))
	fmt.Fprintf(&sb, routingRules, catalogue, rule)

	msgs := schema.NewMessages()
	msgs.AddSystem(sb.String())
	msgs.AddTurns(history)
	msgs.AddUser(message)
	return msgs
}

const integrationPrompt = `The user asked:
%s

You ran the tool %q and it returned:
%s

Answer the user in character using this result. Do not mention tags or tool names
unless it helps. Keep it short.`

// integrationMessages asks the model to phrase a tool result as the answer.
func integrationMessages(persona string, history []schema.Turn, message, tool, payload string) schema.Messages {
	if strings.TrimSpace(persona) == "" {
		persona = defaultPersona
	}
	msgs := schema.NewMessages()
	msgs.AddSystem(persona)
	msgs.AddTurns(history)
	msgs.AddUser(fmt.Sprintf(integrationPrompt, message, tool, payload))
	return msgs
}
