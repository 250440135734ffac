// Package builtin holds the tools compiled into the binary.
package builtin

import "github.com/crystaldolphin/toolsmith/internal/schema"

// Options tunes the built-in tools.
type Options struct {
	// WebMaxChars caps open_website output; zero keeps the default.
	WebMaxChars int
}

// All returns a fresh instance of every built-in tool.
func All(opts Options) []schema.Tool {
	return []schema.Tool{
		NewCalculateMathTool(),
		NewCurrentTimeTool(),
		NewOpenWebsiteTool(opts.WebMaxChars),
	}
}
