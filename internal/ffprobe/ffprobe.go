// Package ffprobe wraps the ffprobe binary behind a typed interface for the
// handful of facts the pipeline needs: durations, pixel dimensions, and
// whether a file carries a video stream at all.
package ffprobe

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"slidecast/internal/services"
)

// Result represents the parsed output from an ffprobe inspection.
type Result struct {
	Streams []Stream `json:"streams"`
	Format  Format   `json:"format"`
}

// Stream describes a single stream in the media container.
type Stream struct {
	Index     int    `json:"index"`
	CodecName string `json:"codec_name"`
	CodecType string `json:"codec_type"`
	Duration  string `json:"duration"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}

// Format captures container-level metadata extracted by ffprobe.
type Format struct {
	Filename   string `json:"filename"`
	Duration   string `json:"duration"`
	FormatName string `json:"format_name"`
}

// Inspect executes ffprobe against the provided path and decodes the JSON
// response.
func Inspect(ctx context.Context, binary string, path string) (Result, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffprobe"
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return Result{}, services.Wrap(services.ErrValidation, "ffprobe", "inspect", "empty path", nil)
	}

	cmd := exec.CommandContext(ctx, binary, "-v", "error", "-hide_banner",
		"-show_format", "-show_streams", "-of", "json", "--", path)
	output, err := cmd.Output()
	if err != nil {
		detail := commandError(err)
		return Result{}, services.Wrap(services.ErrExternalService, "ffprobe", "inspect",
			fmt.Sprintf("probe %s: %s", path, detail), err)
	}

	var result Result
	if err := json.Unmarshal(output, &result); err != nil {
		return Result{}, services.Wrap(services.ErrExternalService, "ffprobe", "inspect", "parse output", err)
	}
	return result, nil
}

func commandError(err error) string {
	if exitErr, ok := err.(*exec.ExitError); ok && len(exitErr.Stderr) > 0 {
		return strings.TrimSpace(string(exitErr.Stderr))
	}
	return err.Error()
}

// Prober binds Inspect to a configured binary so callers can hold a probe
// dependency as an interface.
type Prober struct {
	Binary string
}

// Inspect probes a file with the configured binary.
func (p Prober) Inspect(ctx context.Context, path string) (Result, error) {
	return Inspect(ctx, p.Binary, path)
}

// DurationSeconds returns the container duration in seconds. Still images and
// other timeless inputs report "N/A", which reads as 0.
func (r Result) DurationSeconds() float64 {
	if d := parseSeconds(r.Format.Duration); d > 0 {
		return d
	}
	for _, stream := range r.Streams {
		if d := parseSeconds(stream.Duration); d > 0 {
			return d
		}
	}
	return 0
}

// Dimensions returns the pixel dimensions of the first video stream, or
// (0, 0) when the file has none.
func (r Result) Dimensions() (width, height int) {
	for _, stream := range r.Streams {
		if strings.EqualFold(stream.CodecType, "video") && stream.Width > 0 && stream.Height > 0 {
			return stream.Width, stream.Height
		}
	}
	return 0, 0
}

// HasVideoStream reports whether the container carries any video stream.
// Still images also satisfy this; ffprobe exposes them as single-frame video.
func (r Result) HasVideoStream() bool {
	for _, stream := range r.Streams {
		if strings.EqualFold(stream.CodecType, "video") {
			return true
		}
	}
	return false
}

// HasAudioStream reports whether the container carries any audio stream.
func (r Result) HasAudioStream() bool {
	for _, stream := range r.Streams {
		if strings.EqualFold(stream.CodecType, "audio") {
			return true
		}
	}
	return false
}

func parseSeconds(value string) float64 {
	value = strings.TrimSpace(value)
	if value == "" || strings.EqualFold(value, "N/A") {
		return 0
	}
	seconds, err := strconv.ParseFloat(value, 64)
	if err != nil || seconds < 0 {
		return 0
	}
	return seconds
}
