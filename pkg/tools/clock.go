package tools

import (
	"context"
	"fmt"
	"strings"
	"time"
)

func clock(now func() time.Time) func(context.Context, map[string]any) (string, error) {
	if now == nil {
		now = time.Now
	}
	return func(_ context.Context, args map[string]any) (string, error) {
		t := now()
		if tz := strings.TrimSpace(stringArg(args, "timezone")); tz != "" {
			loc, err := time.LoadLocation(tz)
			if err != nil {
				return fmt.Sprintf("Unknown time zone %q.", tz), nil
			}
			t = t.In(loc)
		}
		return t.Format("It is 3:04 PM MST on Monday, January 2, 2006."), nil
	}
}
