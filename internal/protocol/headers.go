package protocol

import (
	"strconv"
	"strings"
)

const runCountPrefix = "run_count:"

// RunCountFromHeaders extracts the run_count header value; when the
// token repeats, the last one wins. Missing or unparseable values mean
// infinite. Unknown headers are ignored.
func RunCountFromHeaders(headers string) int {
	runCount := InfiniteRunCount
	for _, header := range strings.Split(headers, ",") {
		header = strings.TrimSpace(header)
		if !strings.HasPrefix(header, runCountPrefix) {
			continue
		}
		n, err := strconv.Atoi(header[len(runCountPrefix):])
		if err != nil {
			continue
		}
		runCount = n
	}
	return runCount
}

// HasNoHaste reports whether the bare nohaste token is present.
func HasNoHaste(headers string) bool {
	for _, header := range strings.Split(headers, ",") {
		if strings.TrimSpace(header) == "nohaste" {
			return true
		}
	}
	return false
}

// ReplaceRunCount rewrites the run_count token in place, preserving
// every other header. Headers without a run_count token come back
// unchanged.
func ReplaceRunCount(headers string, runCount int) string {
	parts := strings.Split(headers, ",")
	for i, header := range parts {
		if strings.HasPrefix(strings.TrimSpace(header), runCountPrefix) {
			parts[i] = runCountPrefix + strconv.Itoa(runCount)
		}
	}
	return strings.Join(parts, ",")
}
