package util

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SnapshotLayout is the UTC timestamp layout used for policy snapshot ids.
// It sorts lexically in chronological order.
const SnapshotLayout = "20060102T150405.000000000Z"

// ParseTime tries RFC3339, RFC3339Nano, and unix seconds. Returns (t, true) if any worked.
func ParseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
		return time.Unix(ts, 0), true
	}
	return time.Time{}, false
}

// ParseTimeDefault parses time or returns default if empty/invalid.
func ParseTimeDefault(s string, def time.Time) time.Time {
	if t, ok := ParseTime(s); ok {
		return t
	}
	return def
}

// SnapshotID formats t as a snapshot id. A positive seq disambiguates ids minted in the same nanosecond.
func SnapshotID(t time.Time, seq int) string {
	id := t.UTC().Format(SnapshotLayout)
	if seq > 0 {
		id += "-" + strconv.Itoa(seq)
	}
	return id
}

// ParseSnapshotID returns the timestamp encoded in a snapshot id.
func ParseSnapshotID(id string) (time.Time, error) {
	base := id
	if i := strings.LastIndexByte(id, '-'); i > 0 {
		if _, err := strconv.Atoi(id[i+1:]); err == nil {
			base = id[:i]
		}
	}
	t, err := time.Parse(SnapshotLayout, base)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid snapshot id %q", id)
	}
	return t, nil
}
