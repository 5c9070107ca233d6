package config

import (
	"testing"
	"time"
)

func TestDurationFields(t *testing.T) {
	t.Parallel()

	t.Run("values parse", func(t *testing.T) {
		c := SchedulerConfig{Period: "45s"}
		got, err := c.PeriodDuration()
		if err != nil || got != 45*time.Second {
			t.Fatalf("PeriodDuration = %v, %v", got, err)
		}
		p := PublisherConfig{PostGap: "250ms", Timeout: "5s"}
		if got, err := p.PostGapDuration(); err != nil || got != 250*time.Millisecond {
			t.Fatalf("PostGapDuration = %v, %v", got, err)
		}
		if got, err := p.TimeoutDuration(); err != nil || got != 5*time.Second {
			t.Fatalf("TimeoutDuration = %v, %v", got, err)
		}
	})

	t.Run("empty falls back", func(t *testing.T) {
		var c SchedulerConfig
		if got, err := c.PeriodDuration(); err != nil || got != 30*time.Second {
			t.Fatalf("default period = %v, %v", got, err)
		}
		var s StorageConfig
		if got, err := s.BusyTimeoutDuration(); err != nil || got != 0 {
			t.Fatalf("default busy timeout = %v, %v", got, err)
		}
	})

	t.Run("garbage rejected", func(t *testing.T) {
		c := SchedulerConfig{Period: "half an hour"}
		if _, err := c.PeriodDuration(); err == nil {
			t.Fatal("malformed period accepted")
		}
	})

	t.Run("negative rejected", func(t *testing.T) {
		c := SchedulerConfig{Period: "-30s"}
		if _, err := c.PeriodDuration(); err == nil {
			t.Fatal("negative period accepted")
		}
		p := PublisherConfig{PostGap: "-1s"}
		if _, err := p.PostGapDuration(); err == nil {
			t.Fatal("negative post gap accepted")
		}
	})
}
