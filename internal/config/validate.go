package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate reports the first configuration problem found.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Paths.CacheDir) == "" {
		return errors.New("paths.cache_dir is required")
	}

	if c.Canvas.MinSize <= 0 {
		return fmt.Errorf("canvas.min_size must be positive, got %d", c.Canvas.MinSize)
	}
	if c.Canvas.MaxSize < c.Canvas.MinSize {
		return fmt.Errorf("canvas.max_size (%d) must be >= canvas.min_size (%d)", c.Canvas.MaxSize, c.Canvas.MinSize)
	}

	switch c.Speech.Gender {
	case "", "male", "female":
	default:
		return fmt.Errorf("speech.gender must be empty, %q or %q, got %q", "male", "female", c.Speech.Gender)
	}

	switch c.Speech.FailureMode {
	case "silent", "fail":
	default:
		return fmt.Errorf("speech.failure_mode must be %q or %q, got %q", "silent", "fail", c.Speech.FailureMode)
	}

	if c.Speech.MaxChars < 0 {
		return fmt.Errorf("speech.max_chars must not be negative, got %d", c.Speech.MaxChars)
	}
	if c.Speech.MaxSilenceSeconds <= 0 {
		return fmt.Errorf("speech.max_silence_seconds must be positive, got %v", c.Speech.MaxSilenceSeconds)
	}

	if c.Cache.EvictionEnabled && c.Cache.MaxGiB <= 0 {
		return fmt.Errorf("cache.max_gib must be positive when eviction is enabled, got %d", c.Cache.MaxGiB)
	}

	switch c.Logging.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("logging.format must be %q or %q, got %q", "console", "json", c.Logging.Format)
	}

	return nil
}
