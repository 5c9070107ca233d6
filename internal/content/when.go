package content

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseWhen resolves a trigger-time expression: either an absolute RFC3339
// timestamp or a relative offset of the form "+<N>m", "+<N>h" or "+<N>d"
// anchored at now.
func ParseWhen(raw string, now time.Time) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty trigger time: %w", ErrValidation)
	}

	if strings.HasPrefix(s, "+") {
		return parseOffset(s, now)
	}

	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid trigger time %q (want RFC3339 or +<N>m/h/d): %w", raw, ErrValidation)
	}
	return t, nil
}

func parseOffset(s string, now time.Time) (time.Time, error) {
	body := s[1:]
	if len(body) < 2 {
		return time.Time{}, fmt.Errorf("invalid offset %q: %w", s, ErrValidation)
	}

	var unit time.Duration
	switch body[len(body)-1] {
	case 'm':
		unit = time.Minute
	case 'h':
		unit = time.Hour
	case 'd':
		unit = 24 * time.Hour
	default:
		return time.Time{}, fmt.Errorf("invalid offset suffix in %q (want m, h or d): %w", s, ErrValidation)
	}

	n, err := strconv.Atoi(body[:len(body)-1])
	if err != nil || n < 1 {
		return time.Time{}, fmt.Errorf("invalid offset amount in %q: %w", s, ErrValidation)
	}

	return now.Add(time.Duration(n) * unit), nil
}

// DeriveStatus renders the human-facing state of a trigger time:
// "ready_to_publish", "publishing_in_<N>_minutes" (inside the next hour) or
// "scheduled_for_<RFC3339>".
func DeriveStatus(dueAt, now time.Time) string {
	if !dueAt.After(now) {
		return "ready_to_publish"
	}
	until := dueAt.Sub(now)
	if until < time.Hour {
		mins := int((until + time.Minute - 1) / time.Minute)
		return fmt.Sprintf("publishing_in_%d_minutes", mins)
	}
	return "scheduled_for_" + dueAt.Format(time.RFC3339)
}
