package orchestrator

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/crystaldolphin/toolsmith/internal/shared/stringutils"
)

// ActionKind is what the routing model decided to do.
type ActionKind int

const (
	ActionAnswer ActionKind = iota
	ActionCallTool
	ActionSynthesize
)

// Action is the parsed routing reply.
type Action struct {
	Kind       ActionKind
	Preamble   string // text the model wrote before the tag
	Tool       string
	Arguments  map[string]any
	Capability string
	Text       string // the full reply for direct answers
}

var (
	actionRE     = regexp.MustCompile(`(?s)<action>\s*<tool>(.*?)</tool>\s*(?:<args>(.*?)</args>)?\s*</action>`)
	synthesizeRE = regexp.MustCompile(`(?s)<synthesize>(.*?)</synthesize>`)
	trailingComa = regexp.MustCompile(`,\s*([}\]])`)
)

// ParseAction classifies a routing reply. A reply without a recognised tag
// is a direct answer. A tool call whose arguments cannot be repaired into a
// JSON object is an error.
func ParseAction(reply string) (Action, error) {
	reply = stringutils.StripThink(reply)
	if loc := actionRE.FindStringSubmatchIndex(reply); loc != nil {
		tool := strings.TrimSpace(reply[loc[2]:loc[3]])
		var rawArgs string
		if loc[4] >= 0 {
			rawArgs = reply[loc[4]:loc[5]]
		}
		args, err := parseArgs(rawArgs)
		if err != nil {
			return Action{}, fmt.Errorf("tool %q: %w", tool, err)
		}
		return Action{
			Kind:      ActionCallTool,
			Preamble:  reply[:loc[0]],
			Tool:      tool,
			Arguments: args,
		}, nil
	}
	if loc := synthesizeRE.FindStringSubmatchIndex(reply); loc != nil {
		return Action{
			Kind:       ActionSynthesize,
			Preamble:   reply[:loc[0]],
			Capability: strings.TrimSpace(reply[loc[2]:loc[3]]),
		}, nil
	}
	return Action{Kind: ActionAnswer, Text: reply}, nil
}

// parseArgs decodes the <args> body, repairing the usual model slips:
// single-quoted strings and trailing commas.
func parseArgs(raw string) (map[string]any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return map[string]any{}, nil
	}

	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err == nil {
		return nonNil(args), nil
	}

	repaired := strings.ReplaceAll(raw, "'", `"`)
	repaired = trailingComa.ReplaceAllString(repaired, "$1")
	if err := json.Unmarshal([]byte(repaired), &args); err != nil {
		return nil, fmt.Errorf("malformed arguments %q: %w", raw, err)
	}
	return nonNil(args), nil
}

func nonNil(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
