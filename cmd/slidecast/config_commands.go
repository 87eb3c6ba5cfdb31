package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"slidecast/internal/config"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration utilities",
	}

	configCmd.AddCommand(newConfigShowCommand(ctx))
	configCmd.AddCommand(newConfigInitCommand())

	return configCmd
}

func newConfigShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the resolved configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "cache_dir:   %s\n", cfg.Paths.CacheDir)
			fmt.Fprintf(out, "media_dir:   %s\n", orUnset(cfg.Paths.MediaDir))
			fmt.Fprintf(out, "canvas:      %d to %d px per axis\n", cfg.Canvas.MinSize, cfg.Canvas.MaxSize)
			fmt.Fprintf(out, "ffmpeg:      %s\n", cfg.Encoder.FFmpeg)
			fmt.Fprintf(out, "ffprobe:     %s\n", cfg.Encoder.FFprobe)
			fmt.Fprintf(out, "voice:       %s\n", voiceSummary(cfg))
			fmt.Fprintf(out, "budget:      %d characters\n", cfg.Speech.MaxChars)
			fmt.Fprintf(out, "on overrun:  %s\n", cfg.Speech.FailureMode)
			fmt.Fprintf(out, "eviction:    %s\n", evictionSummary(cfg))
			fmt.Fprintf(out, "logging:     %s/%s\n", cfg.Logging.Level, cfg.Logging.Format)
			return nil
		},
	}
}

func orUnset(value string) string {
	if strings.TrimSpace(value) == "" {
		return "(unset)"
	}
	return value
}

func voiceSummary(cfg *config.Config) string {
	parts := []string{cfg.Speech.Language}
	if cfg.Speech.Voice != "" {
		parts = append(parts, cfg.Speech.Voice)
	}
	if cfg.Speech.Gender != "" {
		parts = append(parts, cfg.Speech.Gender)
	}
	return strings.Join(parts, ", ")
}

func evictionSummary(cfg *config.Config) string {
	if !cfg.Cache.EvictionEnabled {
		return "disabled"
	}
	summary := fmt.Sprintf("enabled, %d GiB cap", cfg.Cache.MaxGiB)
	if cfg.Cache.IncludeRemote {
		summary += ", remote included"
	}
	return summary
}

func newConfigInitCommand() *cobra.Command {
	var targetPath string
	var overwrite bool

	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Create a sample configuration file",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		Args:        cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			target := strings.TrimSpace(targetPath)
			if target == "" {
				defaultPath, err := config.DefaultConfigPath()
				if err != nil {
					return fmt.Errorf("determine default config path: %w", err)
				}
				target = defaultPath
			} else {
				expanded, err := config.ExpandPath(target)
				if err != nil {
					return fmt.Errorf("resolve config path: %w", err)
				}
				target = expanded
			}

			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("create config directory: %w", err)
			}
			if !overwrite {
				if _, err := os.Stat(target); err == nil {
					return fmt.Errorf("config file already exists at %s (use --overwrite to replace it)", target)
				} else if !os.IsNotExist(err) {
					return fmt.Errorf("check config path: %w", err)
				}
			}

			if err := config.CreateSample(target); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote sample configuration to %s\n", target)
			return nil
		},
	}

	cmd.Flags().StringVar(&targetPath, "path", "", "Target path (defaults to the standard location)")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace an existing file")
	return cmd
}
