package orchestrator

import "strings"

var actionTags = []string{"<action>", "<synthesize>"}

// streamClassifier decides, token by token, which part of a routing reply
// can go to the client right away. Text is released up to the first "<"
// that may open an action tag; once a tag is confirmed everything after it
// is withheld.
type streamClassifier struct {
	pending   string
	committed bool
}

// Feed consumes a token and returns the text that is safe to emit.
func (c *streamClassifier) Feed(token string) string {
	if c.committed {
		return ""
	}
	c.pending += token

	var out strings.Builder
	for {
		i := strings.IndexByte(c.pending, '<')
		if i < 0 {
			out.WriteString(c.pending)
			c.pending = ""
			return out.String()
		}
		out.WriteString(c.pending[:i])
		c.pending = c.pending[i:]

		switch matchTag(c.pending) {
		case tagFull:
			c.committed = true
			return out.String()
		case tagPartial:
			return out.String()
		}
		// Not a tag: release the "<" and keep scanning.
		out.WriteByte('<')
		c.pending = c.pending[1:]
	}
}

// Flush returns withheld text at the end of a reply that never committed
// to a tag.
func (c *streamClassifier) Flush() string {
	if c.committed {
		return ""
	}
	out := c.pending
	c.pending = ""
	return out
}

type tagMatch int

const (
	tagNone tagMatch = iota
	tagPartial
	tagFull
)

func matchTag(s string) tagMatch {
	for _, tag := range actionTags {
		if strings.HasPrefix(s, tag) {
			return tagFull
		}
		if len(s) < len(tag) && strings.HasPrefix(tag, s) {
			return tagPartial
		}
	}
	return tagNone
}
