package status

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// RemainingTime is the "H:MM" countdown reported for a running machine.
type RemainingTime time.Duration

// ParseRemainingTime parses exactly one or two ASCII digits, a colon, and one
// or two ASCII digits.
func ParseRemainingTime(s string) (RemainingTime, error) {
	hours, minutes, found := strings.Cut(s, ":")
	if !found {
		return 0, &DecodeError{Kind: "remaining time", Value: s, Err: fmt.Errorf("expected a duration formatted as H:MM")}
	}

	h, err := parseClockField(hours)
	if err != nil {
		return 0, &DecodeError{Kind: "remaining time", Value: s, Err: fmt.Errorf("hours: %w", err)}
	}
	m, err := parseClockField(minutes)
	if err != nil {
		return 0, &DecodeError{Kind: "remaining time", Value: s, Err: fmt.Errorf("minutes: %w", err)}
	}

	return RemainingTime(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute), nil
}

func parseClockField(field string) (int, error) {
	if len(field) == 0 {
		return 0, fmt.Errorf("no digits")
	}
	if len(field) > 2 {
		return 0, fmt.Errorf("too many digits in %q", field)
	}
	n := 0
	for i := 0; i < len(field); i++ {
		c := field[i]
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("non-digit %q", c)
		}
		n = n*10 + int(c-'0')
	}
	return n, nil
}

// Duration converts to a time.Duration.
func (r RemainingTime) Duration() time.Duration { return time.Duration(r) }

// Seconds returns the whole number of seconds.
func (r RemainingTime) Seconds() int64 { return int64(time.Duration(r) / time.Second) }

func (r RemainingTime) String() string {
	d := time.Duration(r)
	return fmt.Sprintf("%d:%02d", int(d/time.Hour), int(d%time.Hour/time.Minute))
}

func (r *RemainingTime) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return &DecodeError{Kind: "remaining time", Value: string(data), Err: err}
	}
	parsed, err := ParseRemainingTime(s)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

func (r RemainingTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}
