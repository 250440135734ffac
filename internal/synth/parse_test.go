package synth

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/crystaldolphin/toolsmith/internal/schema"
	"github.com/crystaldolphin/toolsmith/internal/toolbox"
)

const converterReply = "```json\n" + `{
  "name": "currency_converter",
  "description": "Convert an amount between currencies",
  "runtime": "python",
  "parameters": [
    {"name": "amount", "type": "number", "required": true},
    {"name": "from_currency", "type": "string", "required": true},
    {"name": "to_currency", "type": "string", "required": true}
  ],
  "source": "import json\nimport urllib.request\n\ndef execute(args):\n    url = 'https://open.er-api.com/v6/latest/' + args['from_currency']\n    with urllib.request.urlopen(url) as r:\n        rates = json.load(r)['rates']\n    return round(args['amount'] * rates[args['to_currency']], 2)\n",
  "arguments": {"amount": 1, "from_currency": "USD", "to_currency": "TRY"}
}` + "\n```"

func TestParseCandidate_AcceptsFencedReply(t *testing.T) {
	c, err := ParseCandidate(converterReply)
	require.NoError(t, err)

	require.Equal(t, "currency_converter", c.Name)
	require.Equal(t, toolbox.RuntimePython, c.Runtime)
	require.Len(t, c.Parameters, 3)
	require.Equal(t, schema.TypeNumber, c.Parameters[0].Type)
	require.Equal(t, "USD", c.Arguments["from_currency"])
}

func TestParseCandidate_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  string
	}{
		{
			name:  "no json",
			reply: "I cannot do that.",
			want:  "no JSON object",
		},
		{
			name:  "two objects",
			reply: `{"name": "a_tool"} {"name": "b_tool"}`,
			want:  "more than one JSON value",
		},
		{
			name:  "missing source",
			reply: `{"name": "a_tool", "description": "d", "runtime": "python", "parameters": []}`,
			want:  "source",
		},
		{
			name:  "bad runtime",
			reply: `{"name": "a_tool", "description": "d", "runtime": "ruby", "parameters": [], "source": "def execute(args):\n  return 1"}`,
			want:  "runtime",
		},
		{
			name:  "bad name",
			reply: `{"name": "Bad Name", "description": "d", "runtime": "python", "parameters": [], "source": "def execute(args):\n  return 1"}`,
			want:  "tool name",
		},
		{
			name:  "two execute functions",
			reply: `{"name": "a_tool", "description": "d", "runtime": "python", "parameters": [], "source": "def execute(args):\n  return 1\ndef execute(args):\n  return 2"}`,
			want:  "exactly once, found 2",
		},
		{
			name:  "no execute function",
			reply: `{"name": "a_tool", "description": "d", "runtime": "javascript", "parameters": [], "source": "function run(args) { return 1 }"}`,
			want:  "exactly once, found 0",
		},
		{
			name:  "duplicate parameter",
			reply: `{"name": "a_tool", "description": "d", "runtime": "python", "parameters": [{"name": "x", "type": "string"}, {"name": "X", "type": "number"}], "source": "def execute(args):\n  return 1"}`,
			want:  "duplicate parameter",
		},
		{
			name:  "main block",
			reply: `{"name": "a_tool", "description": "d", "runtime": "python", "parameters": [], "source": "def execute(args):\n  return 1\nif __name__ == '__main__':\n  pass"}`,
			want:  "__main__",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCandidate(tt.reply)
			require.ErrorIs(t, err, ErrSynthesisFailure)
			require.ErrorContains(t, err, tt.want)
		})
	}
}

func TestParseCandidate_DefaultsArguments(t *testing.T) {
	c, err := ParseCandidate(`{"name": "ip_lookup", "description": "d", "runtime": "javascript", "parameters": [], "source": "async function execute(args) { return 1 }"}`)
	require.NoError(t, err)
	require.NotNil(t, c.Arguments)
	require.Empty(t, c.Arguments)
}
