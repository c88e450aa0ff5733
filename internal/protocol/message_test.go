package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func payloadFor(t *testing.T, spec map[string]any) string {
	t.Helper()
	b, err := json.Marshal([]any{"run", spec})
	require.NoError(t, err)
	return string(b)
}

func TestScheduleHashIgnoresKeyOrder(t *testing.T) {
	// Same callable and arguments, object keys serialized in a
	// different order.
	a := JobMessage{Payload: `["run",{"args":[1,2],"kwargs":{"a":1,"b":2},"class_args":[],"class_kwargs":{},"path":"jobs.email","callable":"send"}]`}
	b := JobMessage{Payload: `["run",{"callable":"send","path":"jobs.email","class_kwargs":{},"class_args":[],"kwargs":{"b":2,"a":1},"args":[1,2]}]`}

	ha, err := ScheduleHash(a)
	require.NoError(t, err)
	hb, err := ScheduleHash(b)
	require.NoError(t, err)
	assert.Equal(t, ha, hb)
	assert.Len(t, ha, 40)
}

func TestScheduleHashIndependentOfCadence(t *testing.T) {
	payload := payloadFor(t, map[string]any{
		"args": []any{1}, "kwargs": map[string]any{},
		"class_args": []any{}, "class_kwargs": map[string]any{},
		"path": "jobs", "callable": "tick",
	})

	interval := JobMessage{Queue: "q1", Headers: "run_count:3", IntervalSecs: 60, Payload: payload}
	cron := JobMessage{Queue: "q2", Headers: "", IntervalSecs: -1, Payload: payload, CronExpr: "* * * * *"}

	hi, err := ScheduleHash(interval)
	require.NoError(t, err)
	hc, err := ScheduleHash(cron)
	require.NoError(t, err)
	assert.Equal(t, hi, hc)
}

func TestScheduleHashDiffersByArguments(t *testing.T) {
	a := JobMessage{Payload: payloadFor(t, map[string]any{
		"args": []any{1}, "kwargs": map[string]any{},
		"class_args": []any{}, "class_kwargs": map[string]any{},
		"path": "jobs", "callable": "tick",
	})}
	b := JobMessage{Payload: payloadFor(t, map[string]any{
		"args": []any{2}, "kwargs": map[string]any{},
		"class_args": []any{}, "class_kwargs": map[string]any{},
		"path": "jobs", "callable": "tick",
	})}

	ha, err := ScheduleHash(a)
	require.NoError(t, err)
	hb, err := ScheduleHash(b)
	require.NoError(t, err)
	assert.NotEqual(t, ha, hb)
}

func TestScheduleHashRejectsBadPayloads(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"not json", "nope"},
		{"not an array", `{"args":[]}`},
		{"single element", `["run"]`},
		{"spec not an object", `["run", 7]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ScheduleHash(JobMessage{Payload: tt.payload})
			assert.Error(t, err)
		})
	}
}

func TestJobMessageFromBody(t *testing.T) {
	m, err := JobMessageFromBody([]string{"q1", "run_count:3,nohaste", "60", `["run",{}]`, ""})
	require.NoError(t, err)
	assert.Equal(t, "q1", m.Queue)
	assert.Equal(t, 60, m.IntervalSecs)
	assert.Equal(t, `["run",{}]`, m.Payload)

	_, err = JobMessageFromBody([]string{"q1", "", "sixty", "{}", ""})
	assert.Error(t, err)

	_, err = JobMessageFromBody([]string{"q1", "", "60"})
	assert.Error(t, err)
}

func TestJobMessageStoredLayout(t *testing.T) {
	// The stored value is a positional JSON array, as received.
	m := JobMessage{Queue: "q1", Headers: "run_count:2", IntervalSecs: -1, Payload: `["run",{}]`, CronExpr: "*/5 * * * *"}

	data, err := json.Marshal(m)
	require.NoError(t, err)
	assert.JSONEq(t, `["q1","run_count:2",-1,"[\"run\",{}]","*/5 * * * *"]`, string(data))

	var decoded JobMessage
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, m, decoded)

	// Interval slot as a decimal string is tolerated.
	var legacy JobMessage
	require.NoError(t, json.Unmarshal([]byte(`["q1","","60","[]",""]`), &legacy))
	assert.Equal(t, 60, legacy.IntervalSecs)
}
