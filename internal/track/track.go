// Package track builds the WebVTT caption track that mirrors a composition's
// timeline: one cue per narrated scene, positioned by the scenes' real
// rendered durations.
package track

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"slidecast/internal/fingerprint"
	"slidecast/internal/logging"
	"slidecast/internal/services"
	"slidecast/internal/store"
)

// Scene is one timeline entry: the narration shown as a caption and how long
// the rendered scene runs.
type Scene struct {
	Text     string
	Duration float64
}

// Cue is one caption: Text visible from Start (inclusive) to End (exclusive).
type Cue struct {
	Start float64
	End   float64
	Text  string
}

// Result is a committed caption track.
type Result struct {
	Key  fingerprint.Key
	Path string
	Cues []Cue
}

// Builder renders and caches caption tracks.
type Builder struct {
	store  *store.Store
	logger *slog.Logger
}

// NewBuilder returns a Builder writing into the given store.
func NewBuilder(s *store.Store, logger *slog.Logger) (*Builder, error) {
	if s == nil {
		return nil, services.Wrap(services.ErrConfiguration, "track", "new", "store is required", nil)
	}
	return &Builder{store: s, logger: logging.NewComponentLogger(logger, "track")}, nil
}

// Build returns the cached caption track for the scene sequence, writing it
// on first use. The key covers every scene's normalized text and duration in
// order, so any timeline change produces a new track.
func (b *Builder) Build(ctx context.Context, scenes []Scene) (Result, error) {
	cues := Cues(scenes)
	key := Key(scenes)

	if path, ok := b.store.Lookup(store.NSTracks, key, ".vtt"); ok {
		return Result{Key: key, Path: path, Cues: cues}, nil
	}

	reservation, err := b.store.Reserve(ctx, store.NSTracks, key)
	if err != nil {
		return Result{}, err
	}
	defer reservation.Release()

	if path, ok := b.store.Lookup(store.NSTracks, key, ".vtt"); ok {
		return Result{Key: key, Path: path, Cues: cues}, nil
	}

	path, err := reservation.CommitBytes([]byte(Render(cues)), ".vtt")
	if err != nil {
		return Result{}, err
	}
	b.logger.Debug("committed caption track",
		logging.String(logging.FieldKey, key.String()),
		logging.Int("cues", len(cues)))
	return Result{Key: key, Path: path, Cues: cues}, nil
}

// Key fingerprints a scene sequence for the tracks namespace.
func Key(scenes []Scene) fingerprint.Key {
	fields := make([]string, 0, len(scenes)*2)
	for _, scene := range scenes {
		fields = append(fields,
			fingerprint.NormalizeText(scene.Text),
			fingerprint.FormatSeconds(scene.Duration))
	}
	return fingerprint.New(fingerprint.KindTrack, fields...)
}

// Cues lays the scenes out on the timeline. Scenes without narration (and
// numeric silence directives) advance the clock without emitting a cue.
func Cues(scenes []Scene) []Cue {
	var cues []Cue
	elapsed := 0.0
	for _, scene := range scenes {
		text := fingerprint.NormalizeText(scene.Text)
		if text != "" && !isNumeric(text) {
			cues = append(cues, Cue{Start: elapsed, End: elapsed + scene.Duration, Text: text})
		}
		elapsed += scene.Duration
	}
	return cues
}

// Render emits the cues as a WebVTT document.
func Render(cues []Cue) string {
	var out strings.Builder
	out.WriteString("WEBVTT\n")
	for _, cue := range cues {
		out.WriteString("\n")
		fmt.Fprintf(&out, "%s --> %s\n", Timestamp(cue.Start), Timestamp(cue.End))
		out.WriteString(cue.Text)
		out.WriteString("\n")
	}
	return out.String()
}

// Timestamp renders seconds as a WebVTT m:ss.mmm timestamp.
func Timestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	millis := int64(math.Round(seconds * 1000))
	minutes := millis / 60000
	millis -= minutes * 60000
	secs := millis / 1000
	millis -= secs * 1000
	return fmt.Sprintf("%d:%02d.%03d", minutes, secs, millis)
}

// Chapter marks where a narrated passage starts on the timeline.
type Chapter struct {
	Start float64
	Title string
}

// Chapters derives a chapter list from the caption cues, one per cue.
func Chapters(cues []Cue) []Chapter {
	chapters := make([]Chapter, 0, len(cues))
	for _, cue := range cues {
		chapters = append(chapters, Chapter{Start: cue.Start, Title: cue.Text})
	}
	return chapters
}

// ParseTimestamp reads an m:ss.mmm (or h:mm:ss.mmm) timestamp back into
// seconds.
func ParseTimestamp(value string) (float64, error) {
	parts := strings.Split(strings.TrimSpace(value), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, services.Wrap(services.ErrValidation, "track", "parse",
			fmt.Sprintf("malformed timestamp %q", value), nil)
	}
	seconds := 0.0
	for _, part := range parts {
		component, err := strconv.ParseFloat(part, 64)
		if err != nil || component < 0 {
			return 0, services.Wrap(services.ErrValidation, "track", "parse",
				fmt.Sprintf("malformed timestamp %q", value), err)
		}
		seconds = seconds*60 + component
	}
	return seconds, nil
}

// Parse reads a WebVTT document back into cues, the inverse of Render. Used
// to rebuild chapter lists from cached tracks.
func Parse(document string) ([]Cue, error) {
	lines := strings.Split(strings.ReplaceAll(document, "\r\n", "\n"), "\n")
	var cues []Cue
	for i := 0; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if !strings.Contains(line, "-->") {
			continue
		}
		bounds := strings.SplitN(line, "-->", 2)
		start, err := ParseTimestamp(bounds[0])
		if err != nil {
			return nil, err
		}
		end, err := ParseTimestamp(bounds[1])
		if err != nil {
			return nil, err
		}
		var text []string
		for i++; i < len(lines) && strings.TrimSpace(lines[i]) != ""; i++ {
			text = append(text, strings.TrimSpace(lines[i]))
		}
		cues = append(cues, Cue{Start: start, End: end, Text: strings.Join(text, "\n")})
	}
	return cues, nil
}

func isNumeric(text string) bool {
	_, err := strconv.ParseFloat(text, 64)
	return err == nil
}
