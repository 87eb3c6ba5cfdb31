package speech

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"slidecast/internal/fingerprint"
	"slidecast/internal/logging"
	"slidecast/internal/services"
	"slidecast/internal/store"
)

// BudgetCounterName is the store counter tracking lifetime synthesized
// characters across every pipeline run sharing the cache.
const BudgetCounterName = "speech-chars"

// FailureMode selects what happens when the character budget is exhausted.
type FailureMode string

const (
	// FailSilent renders the narration as a degraded, audio-less scene.
	FailSilent FailureMode = "silent"
	// FailHard aborts the composition.
	FailHard FailureMode = "fail"
)

// SilenceRenderer renders a silence clip; satisfied by encoder.FFmpeg.
type SilenceRenderer interface {
	Silence(ctx context.Context, seconds float64, out string) error
}

// Result is one narration turned into audio. An empty Path means the
// narration produces no audio track; Degraded marks narrations skipped
// because the budget ran out. Spoken distinguishes synthesized speech from
// silence clips so callers know whether lead-in padding applies.
type Result struct {
	Path     string
	Key      fingerprint.Key
	Spoken   bool
	Degraded bool
}

// Synthesizer turns narration text into cached MP3 artifacts. Synthesis is
// the one pipeline stage that spends real money, so every call is guarded by
// the cache first and the character budget second.
type Synthesizer struct {
	store       *store.Store
	api         API
	silence     SilenceRenderer
	budget      *store.Counter
	maxChars    int64
	maxSilence  float64
	failureMode FailureMode
	logger      *slog.Logger
}

// SynthesizerOptions configures a Synthesizer.
type SynthesizerOptions struct {
	Store   *store.Store
	API     API
	Silence SilenceRenderer
	// MaxChars caps lifetime synthesized characters; 0 disables the cap.
	MaxChars int64
	// MaxSilenceSeconds caps numeric-narration silence clips.
	MaxSilenceSeconds float64
	FailureMode       FailureMode
	Logger            *slog.Logger
}

// NewSynthesizer validates options and returns a Synthesizer.
func NewSynthesizer(opts SynthesizerOptions) (*Synthesizer, error) {
	if opts.Store == nil {
		return nil, services.Wrap(services.ErrConfiguration, "speech", "new", "store is required", nil)
	}
	if opts.API == nil {
		return nil, services.Wrap(services.ErrConfiguration, "speech", "new", "synthesis backend is required", nil)
	}
	if opts.Silence == nil {
		return nil, services.Wrap(services.ErrConfiguration, "speech", "new", "silence renderer is required", nil)
	}
	switch opts.FailureMode {
	case "", FailSilent:
		opts.FailureMode = FailSilent
	case FailHard:
	default:
		return nil, services.Wrap(services.ErrConfiguration, "speech", "new",
			"failure mode must be silent or fail", nil)
	}
	if opts.MaxSilenceSeconds <= 0 {
		opts.MaxSilenceSeconds = 60
	}
	return &Synthesizer{
		store:       opts.Store,
		api:         opts.API,
		silence:     opts.Silence,
		budget:      opts.Store.Counter(BudgetCounterName),
		maxChars:    opts.MaxChars,
		maxSilence:  opts.MaxSilenceSeconds,
		failureMode: opts.FailureMode,
		logger:      logging.NewComponentLogger(opts.Logger, "speech"),
	}, nil
}

// BudgetUsed returns lifetime synthesized characters.
func (s *Synthesizer) BudgetUsed() (int64, error) {
	return s.budget.Value()
}

// ResetBudget zeroes the lifetime character counter.
func (s *Synthesizer) ResetBudget() error {
	return s.budget.Reset()
}

// Speak produces the audio artifact for one narration. Whitespace-only text
// yields no audio; purely numeric text yields that many seconds of silence
// instead of reading the number aloud; everything else is synthesized speech.
func (s *Synthesizer) Speak(ctx context.Context, text string, voice Voice) (Result, error) {
	normalized := fingerprint.NormalizeText(text)
	if normalized == "" {
		return Result{}, nil
	}

	voice, err := voice.Normalize()
	if err != nil {
		return Result{}, err
	}

	if seconds, ok := numericSeconds(normalized); ok {
		if seconds > s.maxSilence {
			seconds = s.maxSilence
		}
		path, key, err := s.Silence(ctx, seconds)
		if err != nil {
			return Result{}, err
		}
		return Result{Path: path, Key: key}, nil
	}

	fields := append([]string{normalized}, voice.FingerprintFields()...)
	key := fingerprint.New(fingerprint.KindSpeech, fields...)

	if path, ok := s.store.Lookup(store.NSAudios, key, ".mp3"); ok {
		return Result{Path: path, Key: key, Spoken: true}, nil
	}

	reservation, err := s.store.Reserve(ctx, store.NSAudios, key)
	if err != nil {
		return Result{}, err
	}
	defer reservation.Release()

	if path, ok := s.store.Lookup(store.NSAudios, key, ".mp3"); ok {
		return Result{Path: path, Key: key, Spoken: true}, nil
	}

	// Charge the budget before calling out. The counter is durable before
	// the request leaves, so a crash can never under-count spend.
	chars := int64(len([]rune(normalized)))
	used, ok, err := s.budget.TryAdd(chars, s.maxChars)
	if err != nil {
		return Result{}, err
	}
	if !ok {
		if s.failureMode == FailHard {
			return Result{}, services.Wrap(services.ErrQuotaExceeded, "speech", "speak",
				"character budget exhausted", nil)
		}
		s.logger.Warn("character budget exhausted, narration skipped",
			logging.Int64("budget_used", used),
			logging.Int64("budget_max", s.maxChars),
			logging.Int64("requested_chars", chars))
		return Result{Key: key, Degraded: true}, nil
	}

	audio, err := s.api.Synthesize(ctx, normalized, voice)
	if err != nil {
		if s.failureMode == FailSilent && services.Recoverable(err) && ctx.Err() == nil {
			s.logger.Warn("synthesis failed, narration skipped", logging.Error(err))
			return Result{Key: key, Degraded: true}, nil
		}
		return Result{}, err
	}

	path, err := reservation.CommitBytes(audio, ".mp3")
	if err != nil {
		return Result{}, err
	}
	s.logger.Info("synthesized narration",
		logging.String(logging.FieldKey, key.String()),
		logging.Int64("chars", chars),
		logging.Int64("budget_used", used))
	return Result{Path: path, Key: key, Spoken: true}, nil
}

// Silence returns the cached silence clip of the given length, rendering it
// on first use.
func (s *Synthesizer) Silence(ctx context.Context, seconds float64) (string, fingerprint.Key, error) {
	key := fingerprint.New(fingerprint.KindSilence, fingerprint.FormatSeconds(seconds))
	if path, ok := s.store.Lookup(store.NSAudios, key, ".mp3"); ok {
		return path, key, nil
	}

	reservation, err := s.store.Reserve(ctx, store.NSAudios, key)
	if err != nil {
		return "", "", err
	}
	defer reservation.Release()

	if path, ok := s.store.Lookup(store.NSAudios, key, ".mp3"); ok {
		return path, key, nil
	}

	staging := reservation.StagingPath(".mp3")
	if err := s.silence.Silence(ctx, seconds, staging); err != nil {
		return "", "", err
	}
	path, err := reservation.Commit(staging, ".mp3")
	if err != nil {
		return "", "", err
	}
	return path, key, nil
}

// numericSeconds recognizes narration that is nothing but a number, which by
// convention means "hold this scene in silence for that many seconds".
func numericSeconds(text string) (float64, bool) {
	if strings.ContainsAny(text, " ") {
		return 0, false
	}
	seconds, err := strconv.ParseFloat(text, 64)
	if err != nil || seconds <= 0 {
		return 0, false
	}
	return seconds, true
}
