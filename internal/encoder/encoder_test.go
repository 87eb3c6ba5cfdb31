package encoder

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"slidecast/internal/logging"
	"slidecast/internal/services"
)

func TestSceneFilterForStillImage(t *testing.T) {
	f := New("ffmpeg", 25, logging.NewNop())
	filter := f.sceneFilter(SceneRequest{Width: 1280, Height: 720, Duration: 4})

	if !strings.Contains(filter, "scale=1280:720:force_original_aspect_ratio=decrease") {
		t.Errorf("missing fit scale in %q", filter)
	}
	if !strings.Contains(filter, "pad=1280:720:(ow-iw)/2:(oh-ih)/2:color=black") {
		t.Errorf("missing centering pad in %q", filter)
	}
	if strings.Contains(filter, "zoompan") {
		t.Errorf("zoompan without ken burns in %q", filter)
	}
	if strings.Contains(filter, "tpad") {
		t.Errorf("tpad applies to videos only, got %q", filter)
	}
}

func TestSceneFilterKenBurns(t *testing.T) {
	f := New("ffmpeg", 25, logging.NewNop())
	filter := f.sceneFilter(SceneRequest{Width: 640, Height: 480, Duration: 4, KenBurns: true})

	if !strings.Contains(filter, "zoompan=z='min(zoom+0.0005,1.1)':d=101") {
		t.Errorf("want 101 pan frames for 4s at 25fps, got %q", filter)
	}
	if !strings.Contains(filter, "s=640x480:fps=25") {
		t.Errorf("zoompan must render at canvas size and frame rate, got %q", filter)
	}
}

func TestSceneFilterVideoFreezesLastFrame(t *testing.T) {
	f := New("ffmpeg", 25, logging.NewNop())
	filter := f.sceneFilter(SceneRequest{Width: 640, Height: 480, Duration: 8, VisualIsVideo: true, KenBurns: true})

	if !strings.Contains(filter, "tpad=stop_mode=clone:stop=-1") {
		t.Errorf("missing last-frame clone in %q", filter)
	}
	if strings.Contains(filter, "zoompan") {
		t.Errorf("ken burns must not apply to videos, got %q", filter)
	}
}

func TestSceneValidation(t *testing.T) {
	f := New("", 0, logging.NewNop())
	cases := []SceneRequest{
		{Width: 640, Height: 480, Duration: 1},                                     // no visual
		{Visual: "v.jpg", Width: 0, Height: 480, Duration: 1},                      // zero width
		{Visual: "v.jpg", Width: 641, Height: 480, Duration: 1},                    // odd width
		{Visual: "v.jpg", Width: 640, Height: 480, Duration: 0},                    // no duration
		{Visual: "v.jpg", Width: 640, Height: 479, Duration: 1, KenBurns: true},    // odd height
	}
	for i, req := range cases {
		if err := f.Scene(context.Background(), req, "out.mp4"); !errors.Is(err, services.ErrValidation) {
			t.Errorf("case %d: error = %v, want ErrValidation", i, err)
		}
	}
}

func TestSilenceRejectsNonPositiveDuration(t *testing.T) {
	f := New("ffmpeg", 25, logging.NewNop())
	for _, seconds := range []float64{0, -1} {
		if err := f.Silence(context.Background(), seconds, "out.mp3"); !errors.Is(err, services.ErrValidation) {
			t.Errorf("Silence(%v) error = %v, want ErrValidation", seconds, err)
		}
	}
}

func TestConcatRejectsEmptyInput(t *testing.T) {
	f := New("ffmpeg", 25, logging.NewNop())
	if err := f.ConcatVideo(context.Background(), nil, "out.mp4"); !errors.Is(err, services.ErrValidation) {
		t.Errorf("error = %v, want ErrValidation", err)
	}
}

func TestWriteConcatListEscapesQuotes(t *testing.T) {
	list, err := writeConcatList([]string{"/tmp/plain.mp4", "/tmp/it's here.mp4"})
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(list)

	data, err := os.ReadFile(list)
	if err != nil {
		t.Fatal(err)
	}
	content := string(data)
	if !strings.Contains(content, "file '/tmp/plain.mp4'\n") {
		t.Errorf("missing plain entry in %q", content)
	}
	if !strings.Contains(content, `file '/tmp/it'\''s here.mp4'`) {
		t.Errorf("single quote not escaped in %q", content)
	}
}

func TestDefaultsApplied(t *testing.T) {
	f := New("  ", -1, logging.NewNop())
	if f.binary != "ffmpeg" {
		t.Errorf("binary = %q, want ffmpeg", f.binary)
	}
	if f.frameRate != DefaultFrameRate {
		t.Errorf("frame rate = %d, want %d", f.frameRate, DefaultFrameRate)
	}
}
