package worker

import (
	"strconv"
	"strings"
	"time"
)

// messageTimestamp extracts the millisecond timestamp a Redis-stream-style
// ID embeds as its leading component ("<ms>-<seq>").
func messageTimestamp(messageID string) (time.Time, bool) {
	msPart, _, found := strings.Cut(messageID, "-")
	if !found {
		return time.Time{}, false
	}
	ms, err := strconv.ParseInt(msPart, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}

// IsStale reports whether a message is older than staleAfter relative to
// now, per the 5-minute (by default) discard rule.
func IsStale(messageID string, now time.Time, staleAfter time.Duration) bool {
	ts, ok := messageTimestamp(messageID)
	if !ok {
		return false
	}
	return now.Sub(ts) > staleAfter
}
