package devman

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Cursor is the opaque timestamp the API uses to mark delivered results.
// Numbers are kept in their exact JSON text. The zero value means "unset".
type Cursor string

func (c Cursor) IsSet() bool { return c != "" }

func (c *Cursor) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*c = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*c = Cursor(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("cursor: %w", err)
	}
	*c = Cursor(n.String())
	return nil
}

type Status int

const (
	NotFound Status = iota
	Found
)

func (s Status) String() string {
	if s == Found {
		return "found"
	}
	return "not_found"
}

// Attempt is one reviewed submission.
type Attempt struct {
	LessonTitle string `json:"lesson_title"`
	LessonURL   string `json:"lesson_url"`
	IsNegative  bool   `json:"is_negative"`

	SubmittedAt string `json:"submitted_at,omitempty"`
	Timestamp   Cursor `json:"timestamp,omitempty"`
}

// Result is the outcome of one successful long-poll.
type Result struct {
	Status   Status
	Attempts []Attempt // only for Found
	Cursor   Cursor
}

// response mirrors the JSON body of the long-polling endpoint.
type response struct {
	Status               string    `json:"status"`
	NewAttempts          []Attempt `json:"new_attempts"`
	LastAttemptTimestamp Cursor    `json:"last_attempt_timestamp"`
	TimestampToRequest   Cursor    `json:"timestamp_to_request"`
}

func (r response) result() (Result, error) {
	if r.Status == "found" {
		if !r.LastAttemptTimestamp.IsSet() {
			return Result{}, fmt.Errorf("%w: found without last_attempt_timestamp", ErrMalformed)
		}
		return Result{Status: Found, Attempts: r.NewAttempts, Cursor: r.LastAttemptTimestamp}, nil
	}
	if r.TimestampToRequest.IsSet() {
		return Result{Status: NotFound, Cursor: r.TimestampToRequest}, nil
	}
	// Unknown status carrying reviewed attempts is still a delivery.
	if cur := r.attemptsCursor(); cur.IsSet() {
		return Result{Status: Found, Attempts: r.NewAttempts, Cursor: cur}, nil
	}
	return Result{}, fmt.Errorf("%w: %q without timestamp_to_request", ErrMalformed, r.Status)
}

func (r response) attemptsCursor() Cursor {
	if r.LastAttemptTimestamp.IsSet() {
		return r.LastAttemptTimestamp
	}
	if n := len(r.NewAttempts); n > 0 {
		return r.NewAttempts[n-1].Timestamp
	}
	return ""
}
