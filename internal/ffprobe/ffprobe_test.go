package ffprobe

import (
	"encoding/json"
	"testing"
)

func parseResult(t *testing.T, payload string) Result {
	t.Helper()
	var result Result
	if err := json.Unmarshal([]byte(payload), &result); err != nil {
		t.Fatalf("parse fixture: %v", err)
	}
	return result
}

func TestDurationPrefersFormatThenStreams(t *testing.T) {
	result := parseResult(t, `{
		"streams": [{"codec_type": "audio", "duration": "2.5"}],
		"format": {"duration": "3.217000"}
	}`)
	if got := result.DurationSeconds(); got != 3.217 {
		t.Errorf("duration = %v, want 3.217", got)
	}

	result = parseResult(t, `{
		"streams": [{"codec_type": "video", "duration": "4.0"}],
		"format": {"duration": "N/A"}
	}`)
	if got := result.DurationSeconds(); got != 4.0 {
		t.Errorf("duration = %v, want stream fallback 4.0", got)
	}
}

func TestStillImageHasZeroDuration(t *testing.T) {
	result := parseResult(t, `{
		"streams": [{"codec_type": "video", "width": 800, "height": 600, "duration": "N/A"}],
		"format": {"duration": "N/A", "format_name": "image2"}
	}`)
	if got := result.DurationSeconds(); got != 0 {
		t.Errorf("still image duration = %v, want 0", got)
	}
	if !result.HasVideoStream() {
		t.Error("still image should expose a video stream")
	}
	if result.HasAudioStream() {
		t.Error("still image has no audio stream")
	}
}

func TestDimensionsFromFirstVideoStream(t *testing.T) {
	result := parseResult(t, `{
		"streams": [
			{"codec_type": "audio"},
			{"codec_type": "video", "width": 1280, "height": 720},
			{"codec_type": "video", "width": 640, "height": 360}
		],
		"format": {}
	}`)
	w, h := result.Dimensions()
	if w != 1280 || h != 720 {
		t.Errorf("dimensions = %dx%d, want 1280x720", w, h)
	}

	audioOnly := parseResult(t, `{"streams": [{"codec_type": "audio"}], "format": {}}`)
	if w, h := audioOnly.Dimensions(); w != 0 || h != 0 {
		t.Errorf("audio-only dimensions = %dx%d, want 0x0", w, h)
	}
}

func TestParseSecondsRejectsGarbage(t *testing.T) {
	for _, value := range []string{"", "N/A", "n/a", "abc", "-1"} {
		if got := parseSeconds(value); got != 0 {
			t.Errorf("parseSeconds(%q) = %v, want 0", value, got)
		}
	}
}
