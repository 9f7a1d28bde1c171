package util

import (
	"sort"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeRFC3339(t *testing.T) {
	s := "2024-10-10T10:10:10Z"
	got, ok := ParseTime(s)
	require.True(t, ok)
	assert.Equal(t, s, got.UTC().Format(time.RFC3339))
}

func TestParseTimeUnix(t *testing.T) {
	ts := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC).Unix()
	got, ok := ParseTime(strconv.FormatInt(ts, 10))
	require.True(t, ok)
	assert.Equal(t, ts, got.Unix())
}

func TestParseTimeDefault(t *testing.T) {
	def := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC)
	assert.True(t, ParseTimeDefault("", def).Equal(def))
}

func TestSnapshotIDRoundTrip(t *testing.T) {
	ts := time.Date(2025, 3, 1, 14, 5, 9, 123456789, time.UTC)

	id := SnapshotID(ts, 0)
	assert.Equal(t, "20250301T140509.123456789Z", id)
	got, err := ParseSnapshotID(id)
	require.NoError(t, err)
	assert.True(t, got.Equal(ts))

	dup := SnapshotID(ts, 2)
	assert.Equal(t, "20250301T140509.123456789Z-2", dup)
	got, err = ParseSnapshotID(dup)
	require.NoError(t, err)
	assert.True(t, got.Equal(ts))

	_, err = ParseSnapshotID("../etc/passwd")
	assert.Error(t, err)
}

func TestSnapshotIDsSortChronologically(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	ids := []string{
		SnapshotID(base.Add(time.Hour), 0),
		SnapshotID(base, 0),
		SnapshotID(base.Add(time.Nanosecond), 0),
	}
	sort.Strings(ids)
	assert.Equal(t, SnapshotID(base, 0), ids[0])
	assert.Equal(t, SnapshotID(base.Add(time.Hour), 0), ids[2])
}
