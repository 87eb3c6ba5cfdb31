package compose

import (
	"fmt"
	"strconv"
	"strings"

	"slidecast/internal/services"
	"slidecast/internal/speech"
)

// Options is the closed set of per-composition settings. Unknown option
// names are rejected rather than ignored so typos surface immediately.
type Options struct {
	// MinCanvas and MaxCanvas bound the computed canvas per axis.
	MinCanvas int
	MaxCanvas int

	// Player hints, carried through to the result for embedding.
	Controls bool
	Autoplay bool
	// Width and Height size the embedded player; they never affect the
	// rendered canvas or any fingerprint. Zero means natural size.
	Width  int
	Height int

	// Captions attaches the WebVTT track to the result.
	Captions bool
	// Chapters derives a chapter list from the caption cues.
	Chapters bool
	// KenBurns applies a slow zoom to still-image scenes.
	KenBurns bool
	// Poster selects the first scene's visual as the poster image.
	Poster bool

	// Voice narrates every scene in the composition.
	Voice speech.Voice
}

// DefaultOptions returns the baseline: captions on, everything else off.
func DefaultOptions(minCanvas, maxCanvas int) Options {
	return Options{
		MinCanvas: minCanvas,
		MaxCanvas: maxCanvas,
		Controls:  true,
		Captions:  true,
	}
}

// ParseOptions applies a loose name/value option map over defaults.
func ParseOptions(defaults Options, raw map[string]string) (Options, error) {
	opts := defaults
	for name, value := range raw {
		name = strings.ToLower(strings.TrimSpace(name))
		value = strings.TrimSpace(value)
		var err error
		switch name {
		case "controls":
			opts.Controls, err = parseBool(name, value)
		case "autoplay":
			opts.Autoplay, err = parseBool(name, value)
		case "width":
			opts.Width, err = parseSize(name, value)
		case "height":
			opts.Height, err = parseSize(name, value)
		case "captions":
			opts.Captions, err = parseBool(name, value)
		case "chapters":
			opts.Chapters, err = parseBool(name, value)
		case "ken-burns":
			opts.KenBurns, err = parseBool(name, value)
		case "poster":
			opts.Poster, err = parseBool(name, value)
		case "voice-language":
			opts.Voice.Language = value
		case "voice-name":
			opts.Voice.Name = value
		case "voice-gender":
			opts.Voice.Gender, err = speech.ParseGender(value)
		default:
			return Options{}, services.Wrap(services.ErrValidation, "compose", "options",
				fmt.Sprintf("unknown option %q", name), nil)
		}
		if err != nil {
			return Options{}, err
		}
	}
	return opts, nil
}

func parseSize(name, value string) (int, error) {
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return 0, services.Wrap(services.ErrValidation, "compose", "options",
			fmt.Sprintf("option %q wants a positive integer, got %q", name, value), err)
	}
	return parsed, nil
}

func parseBool(name, value string) (bool, error) {
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return false, services.Wrap(services.ErrValidation, "compose", "options",
			fmt.Sprintf("option %q wants a boolean, got %q", name, value), err)
	}
	return parsed, nil
}
