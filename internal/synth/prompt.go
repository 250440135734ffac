package synth

import (
	"fmt"
	"strings"

	"github.com/crystaldolphin/toolsmith/internal/schema"
	"github.com/crystaldolphin/toolsmith/internal/toolbox"
)

// PromptInput is everything the specification prompt is built from.
type PromptInput struct {
	Request        string
	Catalogue      string
	DeletedNames   []string
	AllowedHosts   []string
	AllowedImports map[toolbox.Runtime][]string
}

const synthesisSystemPrompt = `You write small, self-contained tools for a conversational agent.
Reply with exactly one JSON object and nothing else:

{
  "name": "snake_case_name",
  "description": "what the tool does, one sentence",
  "runtime": "python",
  "parameters": [
    {"name": "amount", "type": "number", "required": true, "description": "..."}
  ],
  "source": "<complete module source>",
  "arguments": {"amount": 1}
}

Rules:
- name matches ^[a-z][a-z0-9_]{1,63}$ and describes the capability, not the request.
- parameter types are one of: string, number, integer, boolean, object, array.
- source defines exactly one top-level function execute(args) that receives a dict
  (python) or an object (javascript) keyed by parameter name and returns a JSON-serialisable
  value. Do not read stdin, do not add a __main__ block, do not print.
- the code must be fully functional and return real data. No placeholders.
- do not spawn processes, evaluate code dynamically or write files. If state is truly
  needed, write only below the directory in the TOOL_DATA_DIR environment variable.
- "arguments" are the values to call the tool with to answer the current request.`

// BuildMessages returns the specification prompt for one unmet request.
func BuildMessages(in PromptInput) schema.Messages {
	var sb strings.Builder
	sb.WriteString("Unmet request:\n")
	sb.WriteString(strings.TrimSpace(in.Request))
	sb.WriteString("\n\nExisting tools (do not duplicate these):\n")
	sb.WriteString(in.Catalogue)

	if len(in.DeletedNames) > 0 {
		sb.WriteString("\n\nThe operator deleted these tools. Do not recreate them or an equivalent under another name:\n")
		sb.WriteString(strings.Join(in.DeletedNames, ", "))
	}

	sb.WriteString("\n\nAllowed imports:\n")
	for _, rt := range []toolbox.Runtime{toolbox.RuntimePython, toolbox.RuntimeJavaScript} {
		if mods := in.AllowedImports[rt]; len(mods) > 0 {
			fmt.Fprintf(&sb, "- %s: %s\n", rt, strings.Join(mods, ", "))
		}
	}

	sb.WriteString("\nNetwork access is limited to these hosts (https):\n")
	sb.WriteString(strings.Join(in.AllowedHosts, ", "))
	sb.WriteString("\nWrite each URL as a string literal with the host spelled out; never build the host from arguments or concatenation.")
	sb.WriteString("\n\nPreferred public APIs, no key required:\n")
	sb.WriteString("- currency: https://open.er-api.com/v6/latest/USD\n")
	sb.WriteString("- weather: https://api.open-meteo.com/v1/forecast (geocode with https://geocoding-api.open-meteo.com/v1/search)\n")
	sb.WriteString("- ip address and location: https://api.ipify.org?format=json, http://ip-api.com/json/\n")
	sb.WriteString("\nPrefer python with urllib or requests unless javascript is clearly better.")

	msgs := schema.NewMessages()
	msgs.AddSystem(synthesisSystemPrompt)
	msgs.AddUser(sb.String())
	return msgs
}
