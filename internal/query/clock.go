package query

import "time"

var now = time.Now

func nowString() string {
	return FormatTime(now())
}

func createdAtString(t time.Time, fallback string) string {
	if t.IsZero() {
		return fallback
	}
	return FormatTime(t)
}
