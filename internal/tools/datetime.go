package tools

import (
	"context"
	"fmt"
	"time"
)

// DateTimeTool answers date and time questions: the current time, date
// arithmetic, differences between dates and weekday lookups
type DateTimeTool struct {
	// now is injectable for tests
	now func() time.Time
}

// NewDateTimeTool creates the datetime tool
func NewDateTimeTool() *DateTimeTool {
	return &DateTimeTool{now: time.Now}
}

func (t *DateTimeTool) Name() string { return "get_date_time" }

func (t *DateTimeTool) Description() string {
	return "Get the current date and time, add days to a date, compute the difference between two dates, or find the weekday of a date."
}

func (t *DateTimeTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"operation": map[string]any{
				"type":        "string",
				"enum":        []string{"now", "add_days", "diff_days", "weekday"},
				"description": "Operation to perform",
			},
			"date": map[string]any{
				"type":        "string",
				"description": "Date in YYYY-MM-DD format (for add_days, diff_days, weekday)",
			},
			"other_date": map[string]any{
				"type":        "string",
				"description": "Second date in YYYY-MM-DD format (for diff_days)",
			},
			"days": map[string]any{
				"type":        "integer",
				"description": "Number of days to add, may be negative (for add_days)",
			},
			"timezone": map[string]any{
				"type":        "string",
				"description": "IANA timezone name for now, defaults to UTC",
			},
		},
		"required": []string{"operation"},
	}
}

const dateLayout = "2006-01-02"

func (t *DateTimeTool) Execute(_ context.Context, params map[string]any, _ Context) (any, error) {
	op, ok := StringParam(params, "operation")
	if !ok {
		return BusinessError("operation is required"), nil
	}

	switch op {
	case "now":
		loc := time.UTC
		if tz, ok := StringParam(params, "timezone"); ok && tz != "" {
			parsed, err := time.LoadLocation(tz)
			if err != nil {
				return BusinessError(fmt.Sprintf("unknown timezone %q", tz)), nil
			}
			loc = parsed
		}
		now := t.now().In(loc)
		return map[string]any{
			"iso":      now.Format(time.RFC3339),
			"date":     now.Format(dateLayout),
			"time":     now.Format("15:04:05"),
			"weekday":  now.Weekday().String(),
			"timezone": loc.String(),
		}, nil

	case "add_days":
		base, berr := t.parseDate(params, "date")
		if berr != nil {
			return berr, nil
		}
		days, ok := IntParam(params, "days")
		if !ok {
			return BusinessError("days is required for add_days"), nil
		}
		result := base.AddDate(0, 0, days)
		return map[string]any{
			"date":    result.Format(dateLayout),
			"weekday": result.Weekday().String(),
		}, nil

	case "diff_days":
		first, berr := t.parseDate(params, "date")
		if berr != nil {
			return berr, nil
		}
		second, berr := t.parseDate(params, "other_date")
		if berr != nil {
			return berr, nil
		}
		diff := int(second.Sub(first).Hours() / 24)
		return map[string]any{
			"days": diff,
		}, nil

	case "weekday":
		date, berr := t.parseDate(params, "date")
		if berr != nil {
			return berr, nil
		}
		return map[string]any{
			"date":    date.Format(dateLayout),
			"weekday": date.Weekday().String(),
		}, nil
	}

	return BusinessError(fmt.Sprintf("unknown operation %q", op)), nil
}

// parseDate returns either the parsed date or a business error map
func (t *DateTimeTool) parseDate(params map[string]any, key string) (time.Time, map[string]any) {
	s, ok := StringParam(params, key)
	if !ok || s == "" {
		return time.Time{}, BusinessError(fmt.Sprintf("%s is required", key))
	}
	parsed, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, BusinessError(fmt.Sprintf("%s must be YYYY-MM-DD, got %q", key, s))
	}
	return parsed, nil
}
