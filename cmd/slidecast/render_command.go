package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"slidecast/internal/compose"
	"slidecast/internal/services"
	"slidecast/internal/track"
)

func newRenderCommand(ctx *commandContext) *cobra.Command {
	var outputPath string
	var optionFlags []string

	cmd := &cobra.Command{
		Use:   "render <manifest>",
		Short: "Render a composition from a manifest",
		Long: "Render reads a manifest of media|narration scene lines, builds every\n" +
			"scene through the artifact cache, and produces the final video and its\n" +
			"caption track. Pass - to read the manifest from stdin.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var reader io.Reader
			if args[0] == "-" {
				reader = cmd.InOrStdin()
			} else {
				file, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("open manifest: %w", err)
				}
				defer file.Close()
				reader = file
			}

			parsed, err := parseManifest(reader)
			if err != nil {
				return err
			}
			for _, flag := range optionFlags {
				name, value, found := strings.Cut(flag, "=")
				if !found {
					return fmt.Errorf("--option wants name=value, got %q", flag)
				}
				parsed.options[strings.TrimSpace(name)] = strings.TrimSpace(value)
			}

			runCtx := services.WithRequestID(cmd.Context(), services.NewRequestID())

			pipe, err := ctx.buildPipeline(runCtx)
			if err != nil {
				return err
			}
			defer pipe.Close()

			options, err := compose.ParseOptions(pipe.options, parsed.options)
			if err != nil {
				return err
			}

			result, err := pipe.assembler.Assemble(runCtx, parsed.inputs, options)
			if err != nil {
				return err
			}

			if outputPath != "" {
				if err := exportResult(result, outputPath); err != nil {
					return err
				}
			}

			printResult(cmd.OutOrStdout(), result, outputPath)
			pipe.evictIfEnabled(runCtx)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Copy the finished video (and captions) to this path")
	cmd.Flags().StringArrayVar(&optionFlags, "option", nil, "Composition option as name=value (repeatable)")
	return cmd
}

// exportResult copies the cached video, plus the caption track under the
// same name with a .vtt extension, out of the cache.
func exportResult(result compose.Result, outputPath string) error {
	if err := copyFile(result.VideoPath, outputPath); err != nil {
		return fmt.Errorf("export video: %w", err)
	}
	if result.TrackPath != "" {
		trackOut := strings.TrimSuffix(outputPath, filepath.Ext(outputPath)) + ".vtt"
		if err := copyFile(result.TrackPath, trackOut); err != nil {
			return fmt.Errorf("export captions: %w", err)
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func printResult(w io.Writer, result compose.Result, outputPath string) {
	fmt.Fprintf(w, "Video:    %s\n", result.VideoPath)
	if result.TrackPath != "" {
		fmt.Fprintf(w, "Captions: %s\n", result.TrackPath)
	}
	if result.Poster != "" {
		fmt.Fprintf(w, "Poster:   %s\n", result.Poster)
	}
	fmt.Fprintf(w, "Canvas:   %dx%d\n", result.Width, result.Height)
	if result.DisplayWidth > 0 && result.DisplayHeight > 0 {
		fmt.Fprintf(w, "Display:  %dx%d\n", result.DisplayWidth, result.DisplayHeight)
	}
	fmt.Fprintf(w, "Duration: %s\n", track.Timestamp(result.Duration))
	if outputPath != "" {
		fmt.Fprintf(w, "Exported: %s\n", outputPath)
	}
	if len(result.Chapters) > 0 {
		fmt.Fprintln(w, "Chapters:")
		for _, chapter := range result.Chapters {
			fmt.Fprintf(w, "  %s  %s\n", track.Timestamp(chapter.Start), chapter.Title)
		}
	}
	if result.Degraded {
		fmt.Fprintln(w, "Warning: one or more narrations were skipped (speech budget exhausted)")
	}
}
