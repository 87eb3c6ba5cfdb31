package config

import (
	"os"
	"path/filepath"
	"strings"
)

const (
	// DefaultUserAgent identifies remote media fetches. Wikimedia-style
	// APIs reject requests without a descriptive agent.
	DefaultUserAgent = "slidecast/1.0 (media composition pipeline)"

	// DefaultFrameRate is the sample rate for the zoom/pan effect.
	DefaultFrameRate = 25

	// DefaultMaxChars matches the speech service's monthly free tier.
	DefaultMaxChars = 1_000_000
)

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Paths: Paths{
			CacheDir: defaultCacheDir(),
			LogDir:   "",
			MediaDir: "",
		},
		Canvas: Canvas{
			MinSize: 100,
			MaxSize: 1280,
		},
		Encoder: Encoder{
			FFmpeg:    "ffmpeg",
			FFprobe:   "ffprobe",
			FrameRate: DefaultFrameRate,
		},
		Speech: Speech{
			Language:          "en-US",
			Gender:            "",
			Voice:             "",
			MaxChars:          DefaultMaxChars,
			FailureMode:       "silent",
			MaxSilenceSeconds: 60,
		},
		Assets: Assets{
			UserAgent:      DefaultUserAgent,
			RequestTimeout: 60,
		},
		Cache: Cache{
			EvictionEnabled: false,
			MaxGiB:          10,
			IncludeRemote:   false,
		},
		Logging: Logging{
			Level:  "info",
			Format: "console",
		},
	}
}

func defaultCacheDir() string {
	if base, ok := os.LookupEnv("XDG_CACHE_HOME"); ok && strings.TrimSpace(base) != "" {
		return filepath.Join(base, "slidecast")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "~/.cache/slidecast"
	}
	return filepath.Join(home, ".cache", "slidecast")
}
