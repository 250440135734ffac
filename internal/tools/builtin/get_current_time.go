package builtin

import (
	"context"
	"fmt"
	"time"

	"github.com/crystaldolphin/toolsmith/internal/schema"
)

// CurrentTimeTool reports the wall-clock time, optionally in an IANA zone.
type CurrentTimeTool struct {
	now func() time.Time
}

func NewCurrentTimeTool() *CurrentTimeTool { return &CurrentTimeTool{now: time.Now} }

func (t *CurrentTimeTool) Name() string { return "get_current_time" }
func (t *CurrentTimeTool) Description() string {
	return "Get the current date and time, optionally in a given timezone."
}
func (t *CurrentTimeTool) Params() []schema.Param {
	return []schema.Param{{
		Name:        "timezone",
		Type:        schema.TypeString,
		Default:     "UTC",
		Description: "IANA timezone name such as Europe/Istanbul",
	}}
}

func (t *CurrentTimeTool) Execute(_ context.Context, args map[string]any) (string, error) {
	loc := time.UTC
	if tz, _ := args["timezone"].(string); tz != "" {
		var err error
		loc, err = time.LoadLocation(tz)
		if err != nil {
			return "", fmt.Errorf("invalid timezone %q: %w", tz, err)
		}
	}
	now := t.now().In(loc)
	return fmt.Sprintf("%s (%s, %s)", now.Format("2006-01-02 15:04:05"), loc.String(), now.Weekday()), nil
}
