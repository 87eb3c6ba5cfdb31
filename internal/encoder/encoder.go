// Package encoder drives the ffmpeg binary for every artifact the pipeline
// renders: silence clips, per-scene videos, and the concatenations that stitch
// scenes into the final composition.
package encoder

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"slidecast/internal/logging"
	"slidecast/internal/services"
)

// DefaultFrameRate is the constant output frame rate for rendered scenes.
const DefaultFrameRate = 25

// FFmpeg invokes a configured ffmpeg binary. The zero value is not usable;
// construct with New.
type FFmpeg struct {
	binary    string
	frameRate int
	logger    *slog.Logger
}

// New returns an encoder bound to the given ffmpeg binary. An empty binary
// falls back to "ffmpeg" on PATH; a non-positive frame rate falls back to
// DefaultFrameRate.
func New(binary string, frameRate int, logger *slog.Logger) *FFmpeg {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffmpeg"
	}
	if frameRate <= 0 {
		frameRate = DefaultFrameRate
	}
	return &FFmpeg{
		binary:    binary,
		frameRate: frameRate,
		logger:    logging.NewComponentLogger(logger, "encoder"),
	}
}

// Silence renders a mono MP3 of digital silence lasting the given number of
// seconds.
func (f *FFmpeg) Silence(ctx context.Context, seconds float64, out string) error {
	if seconds <= 0 {
		return services.Wrap(services.ErrValidation, "encoder", "silence", "duration must be positive", nil)
	}
	args := []string{
		"-f", "lavfi",
		"-i", "anullsrc=r=44100:cl=mono",
		"-t", fmt.Sprintf("%.3f", seconds),
		"-c:a", "libmp3lame",
		"-q:a", "9",
	}
	return f.run(ctx, "silence", args, out)
}

// ConcatAudio joins MP3 parts into one stream without re-encoding.
func (f *FFmpeg) ConcatAudio(ctx context.Context, parts []string, out string) error {
	return f.concat(ctx, "concat_audio", parts, []string{"-c", "copy"}, out)
}

// ConcatVideo joins scene videos into the final composition without
// re-encoding. All parts must share codec parameters, which holds because
// every scene is rendered by this encoder at one canvas size and frame rate.
func (f *FFmpeg) ConcatVideo(ctx context.Context, parts []string, out string) error {
	return f.concat(ctx, "concat_video", parts, []string{"-c", "copy"}, out)
}

func (f *FFmpeg) concat(ctx context.Context, operation string, parts []string, codecArgs []string, out string) error {
	if len(parts) == 0 {
		return services.Wrap(services.ErrValidation, "encoder", operation, "no input parts", nil)
	}
	list, err := writeConcatList(parts)
	if err != nil {
		return services.Wrap(services.ErrEncoding, "encoder", operation, "write concat list", err)
	}
	defer os.Remove(list)

	args := []string{
		"-f", "concat",
		"-safe", "0",
		"-i", list,
	}
	args = append(args, codecArgs...)
	return f.run(ctx, operation, args, out)
}

// writeConcatList emits a concat-demuxer list file. Single quotes inside
// paths are escaped per the demuxer's quoting rules.
func writeConcatList(parts []string) (string, error) {
	file, err := os.CreateTemp("", "slidecast-concat-*.txt")
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	for _, part := range parts {
		escaped := strings.ReplaceAll(part, "'", `'\''`)
		fmt.Fprintf(&buf, "file '%s'\n", escaped)
	}
	if _, err := file.Write(buf.Bytes()); err != nil {
		file.Close()
		os.Remove(file.Name())
		return "", err
	}
	if err := file.Close(); err != nil {
		os.Remove(file.Name())
		return "", err
	}
	return file.Name(), nil
}

// SceneRequest describes one scene render: a single visual fitted to the
// canvas, an optional audio track, and a fixed duration.
type SceneRequest struct {
	// Visual is the image or video shown for the scene's whole duration.
	Visual string
	// VisualIsVideo selects video handling (freeze last frame to fill the
	// duration) over image handling (loop the still).
	VisualIsVideo bool
	// Audio is the scene's audio track; empty renders a silent scene.
	Audio string
	// Width and Height are the canvas dimensions, both even.
	Width, Height int
	// Duration is the scene length in seconds.
	Duration float64
	// KenBurns applies a slow zoom to still images. Ignored for videos.
	KenBurns bool
}

// Scene renders one scene to out.
func (f *FFmpeg) Scene(ctx context.Context, req SceneRequest, out string) error {
	if req.Visual == "" {
		return services.Wrap(services.ErrValidation, "encoder", "scene", "missing visual input", nil)
	}
	if req.Width <= 0 || req.Height <= 0 || req.Width%2 != 0 || req.Height%2 != 0 {
		return services.Wrap(services.ErrValidation, "encoder", "scene",
			fmt.Sprintf("canvas %dx%d must be positive and even", req.Width, req.Height), nil)
	}
	if req.Duration <= 0 {
		return services.Wrap(services.ErrValidation, "encoder", "scene", "duration must be positive", nil)
	}

	var args []string
	if req.VisualIsVideo {
		args = append(args, "-i", req.Visual)
	} else {
		args = append(args, "-loop", "1", "-i", req.Visual)
	}
	if req.Audio != "" {
		args = append(args, "-i", req.Audio)
	} else {
		args = append(args, "-f", "lavfi", "-i", "anullsrc=r=44100:cl=mono")
	}

	args = append(args,
		"-t", fmt.Sprintf("%.3f", req.Duration),
		"-r", fmt.Sprintf("%d", f.frameRate),
		"-vf", f.sceneFilter(req),
		"-c:v", "libx264",
		"-preset", "medium",
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-b:a", "128k",
		"-map", "0:v:0",
		"-map", "1:a:0",
	)
	return f.run(ctx, "scene", args, out)
}

// sceneFilter builds the video filter chain: fit the visual onto the canvas
// with pillarbox/letterbox padding, then optionally pan-zoom stills, and for
// videos clone the last frame so short clips fill the scene duration.
func (f *FFmpeg) sceneFilter(req SceneRequest) string {
	filters := []string{
		fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease", req.Width, req.Height),
		fmt.Sprintf("pad=%d:%d:(ow-iw)/2:(oh-ih)/2:color=black", req.Width, req.Height),
		"setsar=1",
	}
	if req.VisualIsVideo {
		filters = append(filters, "tpad=stop_mode=clone:stop=-1")
	} else if req.KenBurns {
		frames := int(req.Duration*float64(f.frameRate)) + 1
		filters = append(filters, fmt.Sprintf(
			"zoompan=z='min(zoom+0.0005,1.1)':d=%d:x='iw/2-(iw/zoom/2)':y='ih/2-(ih/zoom/2)':s=%dx%d:fps=%d",
			frames, req.Width, req.Height, f.frameRate))
	}
	return strings.Join(filters, ",")
}

// run executes ffmpeg writing to a temp-adjacent output path the caller
// controls, rejecting empty results so truncated renders never get committed.
func (f *FFmpeg) run(ctx context.Context, operation string, args []string, out string) error {
	full := append([]string{"-y", "-hide_banner", "-loglevel", "error", "-nostdin"}, args...)
	full = append(full, out)

	f.logger.Debug("invoking ffmpeg",
		logging.String("operation", operation),
		logging.String("args", strings.Join(full, " ")))

	cmd := exec.CommandContext(ctx, f.binary, full...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		_ = os.Remove(out)
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = err.Error()
		}
		return services.Wrap(services.ErrEncoding, "encoder", operation, detail, err)
	}

	info, err := os.Stat(out)
	if err != nil {
		return services.Wrap(services.ErrEncoding, "encoder", operation, "output missing after encode", err)
	}
	if info.Size() == 0 {
		_ = os.Remove(out)
		return services.Wrap(services.ErrEncoding, "encoder", operation, "output is empty", nil)
	}
	return nil
}
