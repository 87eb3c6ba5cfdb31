// Package scene renders one (media, narration) pair into a cached scene
// video: the visual fitted onto the canvas for the scene's whole duration,
// with the narration audio padded by short silences on either side.
package scene

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync"

	"slidecast/internal/encoder"
	"slidecast/internal/ffprobe"
	"slidecast/internal/fingerprint"
	"slidecast/internal/logging"
	"slidecast/internal/services"
	"slidecast/internal/speech"
	"slidecast/internal/store"
)

// padSeconds is the silence inserted before and after spoken narration so
// scene boundaries never clip speech.
const padSeconds = 0.5

// emptySceneSeconds is how long a scene with neither narration nor timed
// visual stays on screen.
const emptySceneSeconds = 1.0

// Spec is one scene's input: a media reference, its narration, and the voice
// reading it.
type Spec struct {
	// Media references the visual: a local file, a URL, or a catalog name.
	// Empty shows the placeholder visual.
	Media string
	// Text is the narration. Whitespace-only means a silent scene; a bare
	// number means that many seconds of silence.
	Text string
	// Voice selects the narration voice.
	Voice speech.Voice
	// KenBurns applies a slow zoom when the visual is a still image.
	KenBurns bool
}

// Canvas is the output frame size shared by every scene in a composition.
type Canvas struct {
	Width  int
	Height int
}

// Result is one rendered scene.
type Result struct {
	Key      fingerprint.Key
	Path     string
	Duration float64
	// Degraded marks scenes whose narration was skipped because the speech
	// budget ran out.
	Degraded bool
}

// Resolver turns a media reference into a local file path.
type Resolver interface {
	Resolve(ctx context.Context, ref string) (string, error)
}

// Narrator produces narration audio and cached silence clips; satisfied by
// speech.Synthesizer.
type Narrator interface {
	Speak(ctx context.Context, text string, voice speech.Voice) (speech.Result, error)
	Silence(ctx context.Context, seconds float64) (path string, key fingerprint.Key, err error)
}

// Prober inspects media files; satisfied by ffprobe.Prober.
type Prober interface {
	Inspect(ctx context.Context, path string) (ffprobe.Result, error)
}

// Encoder renders scene videos; satisfied by encoder.FFmpeg.
type Encoder interface {
	Scene(ctx context.Context, req encoder.SceneRequest, out string) error
	ConcatAudio(ctx context.Context, parts []string, out string) error
}

// Builder renders and caches scenes. A Builder serves one composition run;
// resolved visuals are memoized for its lifetime, so canvas sizing and scene
// building share a single resolve, digest, and probe per media reference.
type Builder struct {
	store    *store.Store
	resolver Resolver
	narrator Narrator
	prober   Prober
	encoder  Encoder
	logger   *slog.Logger

	mu      sync.Mutex
	visuals map[string]visualInfo
}

// BuilderOptions configures a Builder; all dependencies are required.
type BuilderOptions struct {
	Store    *store.Store
	Resolver Resolver
	Narrator Narrator
	Prober   Prober
	Encoder  Encoder
	Logger   *slog.Logger
}

// NewBuilder validates options and returns a Builder.
func NewBuilder(opts BuilderOptions) (*Builder, error) {
	switch {
	case opts.Store == nil:
		return nil, services.Wrap(services.ErrConfiguration, "scene", "new", "store is required", nil)
	case opts.Resolver == nil:
		return nil, services.Wrap(services.ErrConfiguration, "scene", "new", "media resolver is required", nil)
	case opts.Narrator == nil:
		return nil, services.Wrap(services.ErrConfiguration, "scene", "new", "narrator is required", nil)
	case opts.Prober == nil:
		return nil, services.Wrap(services.ErrConfiguration, "scene", "new", "prober is required", nil)
	case opts.Encoder == nil:
		return nil, services.Wrap(services.ErrConfiguration, "scene", "new", "encoder is required", nil)
	}
	return &Builder{
		store:    opts.Store,
		resolver: opts.Resolver,
		narrator: opts.Narrator,
		prober:   opts.Prober,
		encoder:  opts.Encoder,
		logger:   logging.NewComponentLogger(opts.Logger, "scene"),
		visuals:  make(map[string]visualInfo),
	}, nil
}

// Build returns the cached scene for spec on the given canvas, rendering it
// on first use. The scene key derives from the visual's content identity, the
// audio artifact identity, the canvas, and the pan-zoom setting, so any
// change to an input yields a new scene while untouched scenes are reused
// byte-for-byte.
func (b *Builder) Build(ctx context.Context, spec Spec, canvas Canvas) (Result, error) {
	if canvas.Width <= 0 || canvas.Height <= 0 {
		return Result{}, services.Wrap(services.ErrValidation, "scene", "build",
			fmt.Sprintf("invalid canvas %dx%d", canvas.Width, canvas.Height), nil)
	}

	audio, err := b.narrator.Speak(ctx, spec.Text, spec.Voice)
	if err != nil {
		return Result{}, err
	}

	visual, err := b.resolveVisual(ctx, spec.Media)
	if err != nil {
		return Result{}, err
	}

	// A degraded narration caches under the "no audio" identity, so the
	// same scene renders fresh once budget is available again.
	audioID := "none"
	if audio.Path != "" {
		audioID = string(audio.Key)
	}
	key := fingerprint.New(fingerprint.KindScene,
		visual.id,
		audioID,
		strconv.Itoa(canvas.Width),
		strconv.Itoa(canvas.Height),
		strconv.FormatBool(spec.KenBurns && !visual.isVideo),
	)

	// The reported duration derives from the scene's inputs, never from
	// probing the committed container, whose encoder rounding would make a
	// cache hit disagree with the miss that produced it and destabilize
	// every fingerprint downstream.
	audioDuration, err := b.audioDuration(ctx, audio)
	if err != nil {
		return Result{}, err
	}
	duration := sceneDuration(visual.duration, audioDuration)

	if path, ok := b.store.Lookup(store.NSScenes, key, ".mp4"); ok {
		return Result{Key: key, Path: path, Duration: duration, Degraded: audio.Degraded}, nil
	}

	reservation, err := b.store.Reserve(ctx, store.NSScenes, key)
	if err != nil {
		return Result{}, err
	}
	defer reservation.Release()

	if path, ok := b.store.Lookup(store.NSScenes, key, ".mp4"); ok {
		return Result{Key: key, Path: path, Duration: duration, Degraded: audio.Degraded}, nil
	}

	track, cleanup, err := b.audioTrack(ctx, audio)
	if err != nil {
		return Result{}, err
	}
	defer cleanup()

	staging := reservation.StagingPath(".mp4")
	err = b.encoder.Scene(ctx, encoder.SceneRequest{
		Visual:        visual.path,
		VisualIsVideo: visual.isVideo,
		Audio:         track,
		Width:         canvas.Width,
		Height:        canvas.Height,
		Duration:      duration,
		KenBurns:      spec.KenBurns && !visual.isVideo,
	}, staging)
	if err != nil {
		return Result{}, err
	}

	path, err := reservation.Commit(staging, ".mp4")
	if err != nil {
		return Result{}, err
	}

	b.logger.Info("rendered scene",
		logging.String(logging.FieldKey, key.String()),
		logging.String("media", spec.Media),
		logging.Float64("duration", duration))
	return Result{Key: key, Path: path, Duration: duration, Degraded: audio.Degraded}, nil
}

type visualInfo struct {
	path     string
	id       string
	isVideo  bool
	duration float64
	width    int
	height   int
}

func (b *Builder) resolveVisual(ctx context.Context, media string) (visualInfo, error) {
	b.mu.Lock()
	cached, ok := b.visuals[media]
	b.mu.Unlock()
	if ok {
		return cached, nil
	}

	info, err := b.resolveVisualUncached(ctx, media)
	if err != nil {
		return visualInfo{}, err
	}
	b.mu.Lock()
	b.visuals[media] = info
	b.mu.Unlock()
	return info, nil
}

func (b *Builder) resolveVisualUncached(ctx context.Context, media string) (visualInfo, error) {
	if media == "" {
		path, err := b.store.PlaceholderVisual()
		if err != nil {
			return visualInfo{}, err
		}
		return visualInfo{path: path, id: store.PlaceholderVisualID, width: 1, height: 1}, nil
	}

	path, err := b.resolver.Resolve(ctx, media)
	if err != nil {
		return visualInfo{}, err
	}
	id, err := fingerprint.FileDigest(path)
	if err != nil {
		return visualInfo{}, services.Wrap(services.ErrCacheIO, "scene", "build", "digest visual", err)
	}

	probed, err := b.prober.Inspect(ctx, path)
	if err != nil {
		return visualInfo{}, err
	}
	if !probed.HasVideoStream() {
		return visualInfo{}, services.Wrap(services.ErrValidation, "scene", "build",
			fmt.Sprintf("media %q has no visual stream", media), nil)
	}
	width, height := probed.Dimensions()
	duration := probed.DurationSeconds()
	return visualInfo{
		path:     path,
		id:       id,
		isVideo:  duration > 0,
		duration: duration,
		width:    width,
		height:   height,
	}, nil
}

// ProbeVisual exposes the resolved dimensions of a media reference so the
// composition layer can size the shared canvas before building scenes.
func (b *Builder) ProbeVisual(ctx context.Context, media string) (width, height int, err error) {
	visual, err := b.resolveVisual(ctx, media)
	if err != nil {
		return 0, 0, err
	}
	return visual.width, visual.height, nil
}

// audioDuration is how long the scene's audio track will run: spoken
// narration carries its silence padding, silence clips run as-is, and no
// narration means no track.
func (b *Builder) audioDuration(ctx context.Context, audio speech.Result) (float64, error) {
	if audio.Path == "" {
		return 0, nil
	}
	speechDuration, err := b.probeDuration(ctx, audio.Path)
	if err != nil {
		return 0, err
	}
	if audio.Spoken {
		return padSeconds + speechDuration + padSeconds, nil
	}
	return speechDuration, nil
}

// audioTrack assembles the scene's audio file. Spoken narration is wrapped
// with the store-cached silence pad on both sides; only the joined track is
// scratch, the pad itself is a cached artifact shared by every spoken scene.
func (b *Builder) audioTrack(ctx context.Context, audio speech.Result) (path string, cleanup func(), err error) {
	cleanup = func() {}
	if audio.Path == "" || !audio.Spoken {
		return audio.Path, cleanup, nil
	}

	pad, _, err := b.narrator.Silence(ctx, padSeconds)
	if err != nil {
		return "", cleanup, err
	}

	track, err := os.CreateTemp("", "slidecast-track-*.mp3")
	if err != nil {
		return "", cleanup, services.Wrap(services.ErrCacheIO, "scene", "build", "create track file", err)
	}
	track.Close()
	cleanup = func() { os.Remove(track.Name()) }

	if err := b.encoder.ConcatAudio(ctx, []string{pad, audio.Path, pad}, track.Name()); err != nil {
		cleanup()
		return "", func() {}, err
	}
	return track.Name(), cleanup, nil
}

func (b *Builder) probeDuration(ctx context.Context, path string) (float64, error) {
	probed, err := b.prober.Inspect(ctx, path)
	if err != nil {
		return 0, err
	}
	return probed.DurationSeconds(), nil
}

// sceneDuration applies the duration policy: a visual longer than its audio
// plays out in full, otherwise the audio (with padding) sets the length, and
// a scene with neither holds briefly on screen.
func sceneDuration(visualSeconds, audioSeconds float64) float64 {
	switch {
	case visualSeconds > audioSeconds:
		return visualSeconds
	case audioSeconds > 0:
		return audioSeconds
	default:
		return emptySceneSeconds
	}
}
