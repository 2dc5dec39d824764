package runsupervisor

import "time"

// timeLayout matches sqlite's datetime('now') default format so
// created_at columns sort and parse consistently regardless of whether a
// row was written by Go or by a DEFAULT clause.
const timeLayout = "2006-01-02 15:04:05"

func parseTimeLayout(s string) (time.Time, error) {
	if t, err := time.Parse(timeLayout, s); err == nil {
		return t.UTC(), nil
	}
	return time.Parse(time.RFC3339, s)
}
