// Package compose assembles rendered scenes into the final composition: one
// concatenated video plus its caption track, both cached like every other
// artifact.
package compose

import (
	"context"
	"log/slog"

	"slidecast/internal/fingerprint"
	"slidecast/internal/logging"
	"slidecast/internal/scene"
	"slidecast/internal/services"
	"slidecast/internal/store"
	"slidecast/internal/track"
)

// Input is one row of a composition request: what to show and what to say
// over it.
type Input struct {
	Media string
	Text  string
}

// Result is a finished composition.
type Result struct {
	VideoKey  fingerprint.Key
	VideoPath string
	TrackKey  fingerprint.Key
	TrackPath string
	Width     int
	Height    int
	Duration  float64
	SceneKeys []fingerprint.Key
	Chapters  []track.Chapter
	// Poster is the visual of the first scene, when requested.
	Poster string
	// Degraded is set when any narration was skipped for budget reasons.
	Degraded bool
	Controls bool
	Autoplay bool
	// DisplayWidth and DisplayHeight are the requested player size; zero
	// means present at canvas size.
	DisplayWidth  int
	DisplayHeight int
}

// SceneBuilder renders scenes; satisfied by scene.Builder.
type SceneBuilder interface {
	Build(ctx context.Context, spec scene.Spec, canvas scene.Canvas) (scene.Result, error)
	ProbeVisual(ctx context.Context, media string) (width, height int, err error)
}

// TrackBuilder renders caption tracks; satisfied by track.Builder.
type TrackBuilder interface {
	Build(ctx context.Context, scenes []track.Scene) (track.Result, error)
}

// Concatenator joins scene videos; satisfied by encoder.FFmpeg.
type Concatenator interface {
	ConcatVideo(ctx context.Context, parts []string, out string) error
}

// Resolver resolves poster media; satisfied by assets.Fetcher.
type Resolver interface {
	Resolve(ctx context.Context, ref string) (string, error)
}

// Assembler runs the whole pipeline for one composition request.
type Assembler struct {
	store    *store.Store
	scenes   SceneBuilder
	tracks   TrackBuilder
	concat   Concatenator
	resolver Resolver
	logger   *slog.Logger
}

// AssemblerOptions configures an Assembler; all dependencies are required.
type AssemblerOptions struct {
	Store    *store.Store
	Scenes   SceneBuilder
	Tracks   TrackBuilder
	Concat   Concatenator
	Resolver Resolver
	Logger   *slog.Logger
}

// NewAssembler validates options and returns an Assembler.
func NewAssembler(opts AssemblerOptions) (*Assembler, error) {
	switch {
	case opts.Store == nil:
		return nil, services.Wrap(services.ErrConfiguration, "compose", "new", "store is required", nil)
	case opts.Scenes == nil:
		return nil, services.Wrap(services.ErrConfiguration, "compose", "new", "scene builder is required", nil)
	case opts.Tracks == nil:
		return nil, services.Wrap(services.ErrConfiguration, "compose", "new", "track builder is required", nil)
	case opts.Concat == nil:
		return nil, services.Wrap(services.ErrConfiguration, "compose", "new", "concatenator is required", nil)
	case opts.Resolver == nil:
		return nil, services.Wrap(services.ErrConfiguration, "compose", "new", "resolver is required", nil)
	}
	return &Assembler{
		store:    opts.Store,
		scenes:   opts.Scenes,
		tracks:   opts.Tracks,
		concat:   opts.Concat,
		resolver: opts.Resolver,
		logger:   logging.NewComponentLogger(opts.Logger, "compose"),
	}, nil
}

// Assemble builds every scene, concatenates them, and produces the caption
// track. Scenes untouched since the last run are reused from cache, so
// editing one narration line re-renders exactly that scene plus the cheap
// final concatenation.
func (a *Assembler) Assemble(ctx context.Context, inputs []Input, opts Options) (Result, error) {
	if len(inputs) == 0 {
		return Result{}, services.Wrap(services.ErrValidation, "compose", "assemble",
			"composition needs at least one scene", nil)
	}
	voice, err := opts.Voice.Normalize()
	if err != nil {
		return Result{}, err
	}

	canvas, err := a.canvasFor(ctx, inputs, opts)
	if err != nil {
		return Result{}, err
	}

	result := Result{
		Width:         canvas.Width,
		Height:        canvas.Height,
		Controls:      opts.Controls,
		Autoplay:      opts.Autoplay,
		DisplayWidth:  opts.Width,
		DisplayHeight: opts.Height,
	}

	sceneResults := make([]scene.Result, 0, len(inputs))
	for _, input := range inputs {
		built, err := a.scenes.Build(ctx, scene.Spec{
			Media:    input.Media,
			Text:     input.Text,
			Voice:    voice,
			KenBurns: opts.KenBurns,
		}, canvas)
		if err != nil {
			return Result{}, err
		}
		sceneResults = append(sceneResults, built)
		result.SceneKeys = append(result.SceneKeys, built.Key)
		result.Duration += built.Duration
		result.Degraded = result.Degraded || built.Degraded
	}

	videoPath, videoKey, err := a.concatenate(ctx, sceneResults)
	if err != nil {
		return Result{}, err
	}
	result.VideoKey = videoKey
	result.VideoPath = videoPath

	if opts.Captions || opts.Chapters {
		timeline := make([]track.Scene, len(inputs))
		for i, input := range inputs {
			timeline[i] = track.Scene{Text: input.Text, Duration: sceneResults[i].Duration}
		}
		built, err := a.tracks.Build(ctx, timeline)
		if err != nil {
			return Result{}, err
		}
		if opts.Captions {
			result.TrackKey = built.Key
			result.TrackPath = built.Path
		}
		if opts.Chapters {
			result.Chapters = track.Chapters(built.Cues)
		}
	}

	if opts.Poster {
		result.Poster, err = a.poster(ctx, inputs)
		if err != nil {
			return Result{}, err
		}
	}

	logging.WithContext(ctx, a.logger).Info("assembled composition",
		logging.String(logging.FieldKey, videoKey.String()),
		logging.Int("scenes", len(inputs)),
		logging.Float64("duration", result.Duration),
		logging.Bool("degraded", result.Degraded))
	return result, nil
}

// canvasFor sizes the shared canvas: per axis, the largest intrinsic visual
// dimension across the composition, clamped to the configured bounds and
// forced even for the encoder.
func (a *Assembler) canvasFor(ctx context.Context, inputs []Input, opts Options) (scene.Canvas, error) {
	minSize, maxSize := opts.MinCanvas, opts.MaxCanvas
	if minSize <= 0 || maxSize < minSize {
		return scene.Canvas{}, services.Wrap(services.ErrValidation, "compose", "assemble",
			"canvas bounds are not configured", nil)
	}

	width, height := 0, 0
	for _, input := range inputs {
		if input.Media == "" {
			continue
		}
		w, h, err := a.scenes.ProbeVisual(ctx, input.Media)
		if err != nil {
			return scene.Canvas{}, err
		}
		if w > width {
			width = w
		}
		if h > height {
			height = h
		}
	}

	width = evenClamp(width, minSize, maxSize)
	height = evenClamp(height, minSize, maxSize)
	return scene.Canvas{Width: width, Height: height}, nil
}

func evenClamp(size, minSize, maxSize int) int {
	if size < minSize {
		size = minSize
	}
	if size > maxSize {
		size = maxSize
	}
	if size%2 != 0 {
		size--
	}
	return size
}

// concatenate joins scenes into the cached final video. The video key covers
// the ordered scene keys, and scene keys already cover canvas and content.
func (a *Assembler) concatenate(ctx context.Context, scenes []scene.Result) (string, fingerprint.Key, error) {
	fields := make([]string, len(scenes))
	parts := make([]string, len(scenes))
	for i, s := range scenes {
		fields[i] = string(s.Key)
		parts[i] = s.Path
	}
	key := fingerprint.New(fingerprint.KindVideo, fields...)

	if path, ok := a.store.Lookup(store.NSVideos, key, ".mp4"); ok {
		return path, key, nil
	}

	reservation, err := a.store.Reserve(ctx, store.NSVideos, key)
	if err != nil {
		return "", "", err
	}
	defer reservation.Release()

	if path, ok := a.store.Lookup(store.NSVideos, key, ".mp4"); ok {
		return path, key, nil
	}

	staging := reservation.StagingPath(".mp4")
	if err := a.concat.ConcatVideo(ctx, parts, staging); err != nil {
		return "", "", err
	}
	path, err := reservation.Commit(staging, ".mp4")
	if err != nil {
		return "", "", err
	}
	return path, key, nil
}

// poster returns the first scene visual, falling back to the placeholder for
// media-less compositions.
func (a *Assembler) poster(ctx context.Context, inputs []Input) (string, error) {
	for _, input := range inputs {
		if input.Media == "" {
			continue
		}
		path, err := a.resolver.Resolve(ctx, input.Media)
		if err != nil {
			return "", err
		}
		return path, nil
	}
	return a.store.PlaceholderVisual()
}
