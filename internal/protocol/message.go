package protocol

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
)

// InfiniteRunCount marks a schedule that dispatches forever.
const InfiniteRunCount = -1

// JobMessage is the five-field tuple carried by SCHEDULE and
// UNSCHEDULE and stored verbatim in the backing store. On the wire and
// at rest it is a JSON array, not an object.
type JobMessage struct {
	// Queue is the dispatch target.
	Queue string
	// Headers is a comma-separated list of key:value tokens.
	Headers string
	// IntervalSecs selects an interval schedule when >= 0 and a cron
	// schedule when -1.
	IntervalSecs int
	// Payload is the opaque serialized request forwarded to the broker.
	Payload string
	// CronExpr is a five-field cron expression, required iff
	// IntervalSecs == -1.
	CronExpr string
}

// MarshalJSON renders the positional array layout.
func (m JobMessage) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{m.Queue, m.Headers, m.IntervalSecs, m.Payload, m.CronExpr})
}

// UnmarshalJSON accepts the positional array layout. The interval slot
// tolerates both a JSON number and a decimal string.
func (m *JobMessage) UnmarshalJSON(data []byte) error {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return fmt.Errorf("decode job message: %w", err)
	}
	if len(parts) != 5 {
		return fmt.Errorf("job message has %d fields, want 5", len(parts))
	}
	if err := json.Unmarshal(parts[0], &m.Queue); err != nil {
		return fmt.Errorf("queue: %w", err)
	}
	if err := json.Unmarshal(parts[1], &m.Headers); err != nil {
		return fmt.Errorf("headers: %w", err)
	}
	interval, err := decodeInterval(parts[2])
	if err != nil {
		return err
	}
	m.IntervalSecs = interval
	if err := json.Unmarshal(parts[3], &m.Payload); err != nil {
		return fmt.Errorf("payload: %w", err)
	}
	if err := json.Unmarshal(parts[4], &m.CronExpr); err != nil {
		return fmt.Errorf("cron expression: %w", err)
	}
	return nil
}

func decodeInterval(raw json.RawMessage) (int, error) {
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("interval: %s", raw)
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("interval %q: %w", s, err)
	}
	return n, nil
}

// JobMessageFromBody builds a JobMessage from the body frames of a
// SCHEDULE or UNSCHEDULE command, where every field travels as a
// string.
func JobMessageFromBody(body []string) (JobMessage, error) {
	if len(body) != 5 {
		return JobMessage{}, fmt.Errorf("schedule body has %d frames, want 5", len(body))
	}
	interval, err := strconv.Atoi(body[2])
	if err != nil {
		return JobMessage{}, fmt.Errorf("interval %q: %w", body[2], err)
	}
	return JobMessage{
		Queue:        body[0],
		Headers:      body[1],
		IntervalSecs: interval,
		Payload:      body[3],
		CronExpr:     body[4],
	}, nil
}

// Body renders the message back into body frames.
func (m JobMessage) Body() []string {
	return []string{m.Queue, m.Headers, strconv.Itoa(m.IntervalSecs), m.Payload, m.CronExpr}
}

// ScheduleHash derives the canonical identity of a job: a hex SHA-1
// over the sorted-key JSON serialization of the callable and its
// arguments, extracted from the payload. Queue, headers, and cadence do
// not participate, so re-scheduling the same callable is always an
// update.
func ScheduleHash(m JobMessage) (string, error) {
	var envelope []any
	if err := json.Unmarshal([]byte(m.Payload), &envelope); err != nil {
		return "", fmt.Errorf("payload is not a JSON array: %w", err)
	}
	if len(envelope) < 2 {
		return "", fmt.Errorf("payload has %d elements, want at least 2", len(envelope))
	}
	spec, ok := envelope[1].(map[string]any)
	if !ok {
		return "", fmt.Errorf("payload element 1 is not an object")
	}

	// encoding/json sorts map keys at every nesting level, which makes
	// this serialization canonical for hashing.
	identity, err := json.Marshal(map[string]any{
		"args":         spec["args"],
		"kwargs":       spec["kwargs"],
		"class_args":   spec["class_args"],
		"class_kwargs": spec["class_kwargs"],
		"path":         spec["path"],
		"callable":     spec["callable"],
	})
	if err != nil {
		return "", fmt.Errorf("serialize identity: %w", err)
	}

	sum := sha1.Sum(identity)
	return hex.EncodeToString(sum[:]), nil
}
