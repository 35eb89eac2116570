package builtin

import (
	"context"
	"fmt"
	"time"

	"github.com/liteclaw/unillm/pkg/llm"
)

// TimeTool reports the current time.
type TimeTool struct {
	now func() time.Time
}

// NewTimeTool creates a new time tool.
func NewTimeTool() *TimeTool {
	return &TimeTool{now: time.Now}
}

// Name returns the tool name.
func (t *TimeTool) Name() string {
	return "current_time"
}

// Description returns the tool description.
func (t *TimeTool) Description() string {
	return "Get the current date and time, optionally in a given IANA time zone."
}

// Parameters returns the JSON Schema for parameters.
func (t *TimeTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"timezone": map[string]any{
				"type":        "string",
				"description": "IANA time zone such as Europe/Berlin (default: local)",
			},
		},
	}
}

// Execute returns the time in RFC 3339 form.
func (t *TimeTool) Execute(ctx context.Context, args llm.Arguments) (string, error) {
	now := t.now()
	if tz, _ := args.String("timezone"); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return "", fmt.Errorf("unknown timezone %q", tz)
		}
		now = now.In(loc)
	}
	return now.Format(time.RFC3339), nil
}
