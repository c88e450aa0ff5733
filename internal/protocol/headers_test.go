package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunCountFromHeaders(t *testing.T) {
	tests := []struct {
		headers string
		want    int
	}{
		{"", InfiniteRunCount},
		{"run_count:3", 3},
		{"nohaste,run_count:1", 1},
		{"run_count:-1", -1},
		{"run_count:abc", InfiniteRunCount},
		{"guarantee,retry_count:2", InfiniteRunCount},
		// The last token wins when it repeats.
		{"run_count:3,run_count:7", 7},
		{"run_count:3,run_count:abc", 3},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, RunCountFromHeaders(tt.headers), "headers=%q", tt.headers)
	}
}

func TestHasNoHaste(t *testing.T) {
	assert.False(t, HasNoHaste(""))
	assert.False(t, HasNoHaste("run_count:3"))
	assert.True(t, HasNoHaste("nohaste"))
	assert.True(t, HasNoHaste("run_count:3,nohaste"))
	// Only the bare token counts.
	assert.False(t, HasNoHaste("nohaste:maybe"))
}

func TestReplaceRunCount(t *testing.T) {
	assert.Equal(t, "run_count:2", ReplaceRunCount("run_count:3", 2))
	assert.Equal(t, "nohaste,run_count:0", ReplaceRunCount("nohaste,run_count:1", 0))
	// No token, nothing to rewrite.
	assert.Equal(t, "nohaste", ReplaceRunCount("nohaste", 5))
}
