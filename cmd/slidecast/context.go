package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"

	"slidecast/internal/assets"
	"slidecast/internal/compose"
	"slidecast/internal/config"
	"slidecast/internal/encoder"
	"slidecast/internal/ffprobe"
	"slidecast/internal/logging"
	"slidecast/internal/scene"
	"slidecast/internal/speech"
	"slidecast/internal/store"
	"slidecast/internal/track"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger
	loggerErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) ensureLogger() (*slog.Logger, error) {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.loggerErr = err
			return
		}
		format := cfg.Logging.Format
		// Piped output gets machine-readable logs even when the config
		// asks for the console format.
		if format == "console" && !isatty.IsTerminal(os.Stderr.Fd()) && !isatty.IsCygwinTerminal(os.Stderr.Fd()) {
			format = "json"
		}
		c.logger, c.loggerErr = logging.New(logging.Options{
			Level:  cfg.Logging.Level,
			Format: format,
			Output: os.Stderr,
		})
	})
	return c.logger, c.loggerErr
}

func (c *commandContext) openStore() (*store.Store, *slog.Logger, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, nil, err
	}
	logger, err := c.ensureLogger()
	if err != nil {
		return nil, nil, err
	}
	s, err := store.Open(cfg.Paths.CacheDir, logger)
	if err != nil {
		return nil, nil, err
	}
	return s, logger, nil
}

// pipeline is the fully wired composition stack for one render invocation.
type pipeline struct {
	store     *store.Store
	assembler *compose.Assembler
	options   compose.Options
	logger    *slog.Logger

	evict     bool
	pruneOpts store.PruneOptions
}

func (c *commandContext) buildPipeline(ctx context.Context) (*pipeline, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	s, logger, err := c.openStore()
	if err != nil {
		return nil, err
	}

	enc := encoder.New(cfg.Encoder.FFmpeg, cfg.Encoder.FrameRate, logger)
	prober := ffprobe.Prober{Binary: cfg.Encoder.FFprobe}

	fetcher, err := assets.NewFetcher(assets.Options{
		Store:     s,
		Client:    &http.Client{Timeout: time.Duration(cfg.Assets.RequestTimeout) * time.Second},
		Local:     assets.NewDirResolver(cfg.Paths.MediaDir),
		UserAgent: cfg.Assets.UserAgent,
		Logger:    logger,
	})
	if err != nil {
		s.Close()
		return nil, err
	}

	api, err := speech.NewGoogleAPI(ctx, cfg.Speech.CredentialsFile, cfg.Speech.APIKey)
	if err != nil {
		s.Close()
		return nil, err
	}
	synthesizer, err := speech.NewSynthesizer(speech.SynthesizerOptions{
		Store:             s,
		API:               api,
		Silence:           enc,
		MaxChars:          cfg.Speech.MaxChars,
		MaxSilenceSeconds: cfg.Speech.MaxSilenceSeconds,
		FailureMode:       speech.FailureMode(cfg.Speech.FailureMode),
		Logger:            logger,
	})
	if err != nil {
		s.Close()
		return nil, err
	}

	scenes, err := scene.NewBuilder(scene.BuilderOptions{
		Store:    s,
		Resolver: fetcher,
		Narrator: synthesizer,
		Prober:   prober,
		Encoder:  enc,
		Logger:   logger,
	})
	if err != nil {
		s.Close()
		return nil, err
	}

	tracks, err := track.NewBuilder(s, logger)
	if err != nil {
		s.Close()
		return nil, err
	}

	assembler, err := compose.NewAssembler(compose.AssemblerOptions{
		Store:    s,
		Scenes:   scenes,
		Tracks:   tracks,
		Concat:   enc,
		Resolver: fetcher,
		Logger:   logger,
	})
	if err != nil {
		s.Close()
		return nil, err
	}

	gender, err := speech.ParseGender(cfg.Speech.Gender)
	if err != nil {
		s.Close()
		return nil, err
	}
	options := compose.DefaultOptions(cfg.Canvas.MinSize, cfg.Canvas.MaxSize)
	options.Voice = speech.Voice{
		Language: cfg.Speech.Language,
		Name:     cfg.Speech.Voice,
		Gender:   gender,
	}

	return &pipeline{
		store:     s,
		assembler: assembler,
		options:   options,
		logger:    logger,
		evict:     cfg.Cache.EvictionEnabled,
		pruneOpts: store.PruneOptions{
			MaxBytes:      int64(cfg.Cache.MaxGiB) << 30,
			IncludeRemote: cfg.Cache.IncludeRemote,
		},
	}, nil
}

// evictIfEnabled trims the cache after a successful render. Eviction failure
// never fails the render that already produced its result.
func (p *pipeline) evictIfEnabled(ctx context.Context) {
	if !p.evict {
		return
	}
	result, err := p.store.Prune(ctx, p.pruneOpts)
	if err != nil {
		p.logger.Warn("cache eviction failed", logging.Error(err))
		return
	}
	if len(result.Evicted) > 0 {
		p.logger.Info("evicted cache artifacts",
			logging.Int("evicted", len(result.Evicted)),
			logging.Int64("reclaimed_bytes", result.ReclaimedBytes))
	}
}

func (p *pipeline) Close() error {
	return p.store.Close()
}
