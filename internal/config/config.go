package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	// CacheDir is the artifact store root. Namespace subdirectories
	// (videos, scenes, audios, tracks, remote) live underneath it.
	CacheDir string `toml:"cache_dir"`
	LogDir   string `toml:"log_dir"`
	// MediaDir is where local media references resolve. Empty disables
	// local resolution and every non-empty reference is treated as remote.
	MediaDir string `toml:"media_dir"`
}

// Canvas bounds the final video dimensions.
type Canvas struct {
	MinSize int `toml:"min_size"`
	MaxSize int `toml:"max_size"`
}

// Encoder contains external encoder/probe settings.
type Encoder struct {
	FFmpeg    string `toml:"ffmpeg"`
	FFprobe   string `toml:"ffprobe"`
	FrameRate int    `toml:"frame_rate"`
}

// Speech contains text-to-speech service settings.
type Speech struct {
	CredentialsFile string `toml:"credentials_file"`
	APIKey          string `toml:"api_key"`
	Language        string `toml:"language"`
	Gender          string `toml:"gender"`
	Voice           string `toml:"voice"`
	// MaxChars is the lifetime character budget for the paid service.
	MaxChars int64 `toml:"max_chars"`
	// FailureMode decides what a speech-service failure does to the scene:
	// "silent" degrades the scene to silence, "fail" aborts the composition.
	FailureMode string `toml:"failure_mode"`
	// MaxSilenceSeconds caps numeric narrations rendered as silence.
	MaxSilenceSeconds float64 `toml:"max_silence_seconds"`
}

// Assets contains remote media fetch settings.
type Assets struct {
	UserAgent      string `toml:"user_agent"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Cache contains eviction settings for the artifact store. Eviction is
// opt-in; with it disabled artifacts persist indefinitely.
type Cache struct {
	EvictionEnabled bool `toml:"eviction_enabled"`
	MaxGiB          int  `toml:"max_gib"`
	// IncludeRemote lets pruning touch the remote namespace, which is
	// otherwise permanent.
	IncludeRemote bool `toml:"include_remote"`
}

// Logging contains log output settings.
type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Config encapsulates all configuration values for slidecast.
type Config struct {
	Paths   Paths   `toml:"paths"`
	Canvas  Canvas  `toml:"canvas"`
	Encoder Encoder `toml:"encoder"`
	Speech  Speech  `toml:"speech"`
	Assets  Assets  `toml:"assets"`
	Cache   Cache   `toml:"cache"`
	Logging Logging `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration
// file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/slidecast/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized. The boolean reports
// whether a file existed at the resolved path.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("slidecast.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the cache and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.CacheDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
