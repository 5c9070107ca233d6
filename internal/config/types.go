package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the daemon configuration, loaded from YAML or JSON.
//
// All durations are Go duration strings (e.g. "500ms", "30s", "1m").
//
// AutoDeleteOnFailure is a pointer so an omitted field defaults to true
// (the failure policy default) while an explicit false is honored.
type Config struct {
	Listen    string          `json:"listen,omitempty"`
	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Publisher PublisherConfig `json:"publisher"`

	AutoDeleteOnFailure *bool `json:"auto_delete_on_failure,omitempty"`
}

type LoggingConfig struct {
	Level   string        `json:"level,omitempty"`
	Console *bool         `json:"console,omitempty"`
	File    LogFileConfig `json:"file,omitempty"`
}

type LogFileConfig struct {
	Enabled bool   `json:"enabled,omitempty"`
	Path    string `json:"path,omitempty"`
}

type StorageConfig struct {
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

type SchedulerConfig struct {
	Period    string `json:"period,omitempty"`
	AutoStart *bool  `json:"auto_start,omitempty"`
}

type PublisherConfig struct {
	BaseURL       string `json:"base_url,omitempty"`
	UploadBaseURL string `json:"upload_base_url,omitempty"`
	BearerToken   string `json:"bearer_token,omitempty"`
	Timeout       string `json:"timeout,omitempty"`
	MaxRetries    int    `json:"max_retries,omitempty"`
	// PostGap spaces consecutive posts of a thread.
	PostGap string `json:"post_gap,omitempty"`
}

func (c *Config) ListenAddr() string {
	if c == nil || c.Listen == "" {
		return ":8080"
	}
	return c.Listen
}

func (c *Config) AutoDelete() bool {
	if c == nil || c.AutoDeleteOnFailure == nil {
		return true
	}
	return *c.AutoDeleteOnFailure
}

func (c *Config) ConsoleLogging() bool {
	if c == nil || c.Logging.Console == nil {
		return true
	}
	return *c.Logging.Console
}

func (c *SchedulerConfig) AutoStartEnabled() bool {
	if c == nil || c.AutoStart == nil {
		return true
	}
	return *c.AutoStart
}

func (c *SchedulerConfig) PeriodDuration() (time.Duration, error) {
	return durationOrDefault("scheduler.period", c.Period, 30*time.Second)
}

func (c *StorageConfig) BusyTimeoutDuration() (time.Duration, error) {
	return durationOrDefault("storage.busy_timeout", c.BusyTimeout, 0)
}

func (c *PublisherConfig) TimeoutDuration() (time.Duration, error) {
	return durationOrDefault("publisher.timeout", c.Timeout, 0)
}

func (c *PublisherConfig) PostGapDuration() (time.Duration, error) {
	return durationOrDefault("publisher.post_gap", c.PostGap, time.Second)
}

// durationOrDefault parses a duration-string field, falling back to def when
// the field is absent. Negative values are rejected: a "-30s" period would
// otherwise stall the scheduler tick, and a negative post gap would disable
// thread spacing.
func durationOrDefault(field, raw string, def time.Duration) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: bad duration %q: %w", field, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: negative duration %q", field, raw)
	}
	if d == 0 {
		return def, nil
	}
	return d, nil
}
