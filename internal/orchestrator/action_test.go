package orchestrator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseAction(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  Action
	}{
		{
			name:  "direct answer",
			reply: "Merhaba! Nasılsın?",
			want:  Action{Kind: ActionAnswer, Text: "Merhaba! Nasılsın?"},
		},
		{
			name:  "tool call",
			reply: `Hemen bakıyorum. <action><tool>calculate_math</tool><args>{"expression": "2+2*3"}</args></action>`,
			want: Action{
				Kind:      ActionCallTool,
				Preamble:  "Hemen bakıyorum. ",
				Tool:      "calculate_math",
				Arguments: map[string]any{"expression": "2+2*3"},
			},
		},
		{
			name:  "repaired arguments",
			reply: "<action>\n  <tool>currency_converter</tool>\n  <args>{'amount': 1, 'to': 'TRY',}</args>\n</action>",
			want: Action{
				Kind:      ActionCallTool,
				Tool:      "currency_converter",
				Arguments: map[string]any{"amount": float64(1), "to": "TRY"},
			},
		},
		{
			name:  "no arguments",
			reply: "<action><tool>get_current_time</tool></action>",
			want:  Action{Kind: ActionCallTool, Tool: "get_current_time", Arguments: map[string]any{}},
		},
		{
			name:  "synthesize",
			reply: "<synthesize> convert USD to TRY </synthesize>",
			want:  Action{Kind: ActionSynthesize, Capability: "convert USD to TRY"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAction(tt.reply)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestParseAction_UnrepairableArguments(t *testing.T) {
	_, err := ParseAction("<action><tool>x_tool</tool><args>{not json</args></action>")
	require.ErrorContains(t, err, "malformed arguments")
}

func TestStreamClassifier(t *testing.T) {
	tests := []struct {
		name   string
		tokens []string
		want   string
	}{
		{"plain text", []string{"2 < 3 ", "and 5 > 4"}, "2 < 3 and 5 > 4"},
		{"split tag", []string{"One moment. <ac", "tion><tool>calc", "</tool></action>"}, "One moment. "},
		{"synthesize", []string{"<", "synth", "esize>x</synthesize>"}, ""},
		{"lookalike", []string{"<act", "ive> mode"}, "<active> mode"},
		{"dangling", []string{"a <acti"}, "a <acti"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c streamClassifier
			var sb strings.Builder
			for _, tok := range tt.tokens {
				sb.WriteString(c.Feed(tok))
			}
			sb.WriteString(c.Flush())
			require.Equal(t, tt.want, sb.String())
		})
	}
}
