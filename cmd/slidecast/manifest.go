package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"slidecast/internal/compose"
)

// manifest is a parsed composition script.
type manifest struct {
	inputs  []compose.Input
	options map[string]string
}

// parseManifest reads the line-oriented composition format:
//
//	# comment
//	@ken-burns=true
//	sunrise.jpg | The sun rises over the valley.
//	| Narration over the placeholder visual.
//	clip.mp4 |
//
// Lines starting with @ set composition options. Scene lines hold a media
// reference and its narration separated by the first pipe; either side may
// be empty, both at once may not.
func parseManifest(r io.Reader) (*manifest, error) {
	m := &manifest{options: map[string]string{}}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if strings.HasPrefix(line, "@") {
			name, value, found := strings.Cut(line[1:], "=")
			if !found || strings.TrimSpace(name) == "" {
				return nil, fmt.Errorf("manifest line %d: option must be @name=value", lineNo)
			}
			m.options[strings.TrimSpace(name)] = strings.TrimSpace(value)
			continue
		}

		media, text, found := strings.Cut(line, "|")
		if !found {
			return nil, fmt.Errorf("manifest line %d: scene must be media|narration", lineNo)
		}
		media = strings.TrimSpace(media)
		text = strings.TrimSpace(text)
		if media == "" && text == "" {
			return nil, fmt.Errorf("manifest line %d: scene needs media or narration", lineNo)
		}
		m.inputs = append(m.inputs, compose.Input{Media: media, Text: text})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	if len(m.inputs) == 0 {
		return nil, fmt.Errorf("manifest has no scenes")
	}
	return m, nil
}
