package config

import "strings"

// normalize expands paths and trims string fields so the rest of the program
// never re-checks them.
func (c *Config) normalize() error {
	var err error

	for _, field := range []*string{&c.Paths.CacheDir, &c.Paths.LogDir, &c.Paths.MediaDir, &c.Speech.CredentialsFile} {
		trimmed := strings.TrimSpace(*field)
		if trimmed == "" {
			*field = ""
			continue
		}
		*field, err = expandPath(trimmed)
		if err != nil {
			return err
		}
	}

	c.Encoder.FFmpeg = strings.TrimSpace(c.Encoder.FFmpeg)
	c.Encoder.FFprobe = strings.TrimSpace(c.Encoder.FFprobe)
	if c.Encoder.FFmpeg == "" {
		c.Encoder.FFmpeg = "ffmpeg"
	}
	if c.Encoder.FFprobe == "" {
		c.Encoder.FFprobe = "ffprobe"
	}
	if c.Encoder.FrameRate <= 0 {
		c.Encoder.FrameRate = DefaultFrameRate
	}

	c.Speech.APIKey = strings.TrimSpace(c.Speech.APIKey)
	c.Speech.Language = strings.TrimSpace(c.Speech.Language)
	c.Speech.Gender = strings.ToLower(strings.TrimSpace(c.Speech.Gender))
	c.Speech.Voice = strings.TrimSpace(c.Speech.Voice)
	c.Speech.FailureMode = strings.ToLower(strings.TrimSpace(c.Speech.FailureMode))
	if c.Speech.FailureMode == "" {
		c.Speech.FailureMode = "silent"
	}

	c.Assets.UserAgent = strings.TrimSpace(c.Assets.UserAgent)
	if c.Assets.UserAgent == "" {
		c.Assets.UserAgent = DefaultUserAgent
	}
	if c.Assets.RequestTimeout <= 0 {
		c.Assets.RequestTimeout = 60
	}

	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))

	return nil
}
