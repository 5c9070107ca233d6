package content

import (
	"errors"
	"testing"
	"time"
)

func TestParseWhenOffsets(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		raw  string
		want time.Time
	}{
		{raw: "+10m", want: now.Add(10 * time.Minute)},
		{raw: "+1h", want: now.Add(time.Hour)},
		{raw: "+1d", want: now.Add(24 * time.Hour)},
		{raw: "+90m", want: now.Add(90 * time.Minute)},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseWhen(tt.raw, now)
			if err != nil {
				t.Fatalf("ParseWhen(%q) error: %v", tt.raw, err)
			}
			if !got.Equal(tt.want) {
				t.Fatalf("ParseWhen(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestParseWhenAbsolute(t *testing.T) {
	t.Parallel()
	now := time.Now()
	got, err := ParseWhen("2026-09-01T08:30:00Z", now)
	if err != nil {
		t.Fatalf("ParseWhen error: %v", err)
	}
	want := time.Date(2026, 9, 1, 8, 30, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("ParseWhen = %v, want %v", got, want)
	}
}

func TestParseWhenInvalid(t *testing.T) {
	t.Parallel()
	now := time.Now()
	for _, raw := range []string{"", "+10x", "+m", "+0m", "-5m", "tomorrow", "+ 5m"} {
		if _, err := ParseWhen(raw, now); !errors.Is(err, ErrValidation) {
			t.Fatalf("ParseWhen(%q): want ErrValidation, got %v", raw, err)
		}
	}
}

func TestDeriveStatus(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)

	if got := DeriveStatus(now.Add(-time.Minute), now); got != "ready_to_publish" {
		t.Fatalf("past due: got %q", got)
	}
	if got := DeriveStatus(now, now); got != "ready_to_publish" {
		t.Fatalf("exactly due: got %q", got)
	}
	if got := DeriveStatus(now.Add(10*time.Minute), now); got != "publishing_in_10_minutes" {
		t.Fatalf("10m ahead: got %q", got)
	}
	if got := DeriveStatus(now.Add(10*time.Minute+30*time.Second), now); got != "publishing_in_11_minutes" {
		t.Fatalf("rounded up: got %q", got)
	}
	want := "scheduled_for_" + now.Add(3*time.Hour).Format(time.RFC3339)
	if got := DeriveStatus(now.Add(3*time.Hour), now); got != want {
		t.Fatalf("far ahead: got %q, want %q", got, want)
	}
}
