// Package protocol defines the eMQP wire protocol spoken between the
// scheduler, the broker, and administrative clients: multipart string
// frames, the job message tuple, schedule identity hashing, and the
// header mini-grammar.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Version identifies the protocol revision carried in every frame.
const Version = "eMQP/1.0"

// Command tokens.
const (
	Schedule   = "SCHEDULE"
	Unschedule = "UNSCHEDULE"
	Status     = "STATUS"
	Heartbeat  = "HEARTBEAT"
	Disconnect = "DISCONNECT"
	KBye       = "KBYE"
	Reply      = "REPLY"
	Request    = "REQUEST"
	Ready      = "READY"

	// StatusCmd is the administrative envelope command.
	StatusCmd = "STATUS_CMD"
)

// ShowScheduledJobs is the STATUS_CMD sub-command that requests the
// catalog snapshot.
const ShowScheduledJobs = "show_scheduled_jobs"

// Frame is one multipart message. The layout is
// [delimiter, version, command, msgid, body...].
type Frame []string

// NewFrame assembles a frame for the given command.
func NewFrame(cmd, msgid string, body ...string) Frame {
	f := Frame{"", Version, cmd, msgid}
	return append(f, body...)
}

// Command returns the command token, or "" for a short frame.
func (f Frame) Command() string {
	if len(f) < 3 {
		return ""
	}
	return f[2]
}

// MsgID returns the message id, or "" for a short frame.
func (f Frame) MsgID() string {
	if len(f) < 4 {
		return ""
	}
	return f[3]
}

// Body returns the frames after the message id.
func (f Frame) Body() []string {
	if len(f) <= 4 {
		return nil
	}
	return f[4:]
}

// Validate checks the fixed prefix of a frame.
func (f Frame) Validate() error {
	if len(f) < 4 {
		return fmt.Errorf("frame too short: %d parts", len(f))
	}
	if f[1] != Version {
		return fmt.Errorf("unsupported protocol version %q", f[1])
	}
	if f[2] == "" {
		return fmt.Errorf("empty command")
	}
	return nil
}

// Marshal encodes a frame as a JSON array for the websocket transport.
func Marshal(f Frame) ([]byte, error) {
	return json.Marshal([]string(f))
}

// Unmarshal decodes a frame received from the transport.
func Unmarshal(data []byte) (Frame, error) {
	var parts []string
	if err := json.Unmarshal(data, &parts); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	return Frame(parts), nil
}
