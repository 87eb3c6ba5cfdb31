package track

import (
	"context"
	"os"
	"strings"
	"testing"

	"slidecast/internal/logging"
	"slidecast/internal/store"
)

func TestCuesSkipSilentScenesButAdvanceClock(t *testing.T) {
	cues := Cues([]Scene{
		{Text: "A", Duration: 3},
		{Text: "", Duration: 1},
		{Text: "B", Duration: 2},
	})
	if len(cues) != 2 {
		t.Fatalf("cues = %d, want 2", len(cues))
	}
	if cues[0].Start != 0 || cues[0].End != 3 || cues[0].Text != "A" {
		t.Errorf("first cue = %+v", cues[0])
	}
	if cues[1].Start != 4 || cues[1].End != 6 || cues[1].Text != "B" {
		t.Errorf("second cue = %+v, want [4,6) B", cues[1])
	}
}

func TestCuesSkipNumericSilenceDirectives(t *testing.T) {
	cues := Cues([]Scene{
		{Text: "intro", Duration: 2},
		{Text: "5", Duration: 5},
		{Text: "outro", Duration: 2},
	})
	if len(cues) != 2 {
		t.Fatalf("cues = %d, want 2 (numeric directive is not a caption)", len(cues))
	}
	if cues[1].Start != 7 {
		t.Errorf("outro start = %g, want 7", cues[1].Start)
	}
}

func TestTimestampFormat(t *testing.T) {
	cases := map[float64]string{
		0:       "0:00.000",
		3.2174:  "0:03.217",
		63.5:    "1:03.500",
		3725.25: "62:05.250",
	}
	for seconds, want := range cases {
		if got := Timestamp(seconds); got != want {
			t.Errorf("Timestamp(%g) = %q, want %q", seconds, got, want)
		}
	}
}

func TestRenderWebVTT(t *testing.T) {
	document := Render([]Cue{
		{Start: 0, End: 3, Text: "First line"},
		{Start: 4, End: 6, Text: "Second line"},
	})
	if !strings.HasPrefix(document, "WEBVTT\n") {
		t.Errorf("missing WEBVTT header in %q", document)
	}
	want := "WEBVTT\n\n0:00.000 --> 0:03.000\nFirst line\n\n0:04.000 --> 0:06.000\nSecond line\n"
	if document != want {
		t.Errorf("document = %q\nwant %q", document, want)
	}
}

func TestParseRoundTrip(t *testing.T) {
	original := []Cue{
		{Start: 0, End: 3.5, Text: "Hello"},
		{Start: 4, End: 6.25, Text: "World"},
	}
	parsed, err := Parse(Render(original))
	if err != nil {
		t.Fatal(err)
	}
	if len(parsed) != len(original) {
		t.Fatalf("parsed %d cues, want %d", len(parsed), len(original))
	}
	for i := range original {
		if parsed[i] != original[i] {
			t.Errorf("cue %d = %+v, want %+v", i, parsed[i], original[i])
		}
	}
}

func TestParseTimestamp(t *testing.T) {
	seconds, err := ParseTimestamp("1:03.500")
	if err != nil || seconds != 63.5 {
		t.Errorf("ParseTimestamp = %g, %v", seconds, err)
	}
	if _, err := ParseTimestamp("abc"); err == nil {
		t.Error("garbage must not parse")
	}
	if _, err := ParseTimestamp("1:2:3:4"); err == nil {
		t.Error("too many components must not parse")
	}
}

func TestKeyTracksTimelineChanges(t *testing.T) {
	base := []Scene{{Text: "A", Duration: 3}, {Text: "B", Duration: 2}}
	if Key(base) != Key([]Scene{{Text: " A ", Duration: 3}, {Text: "B", Duration: 2}}) {
		t.Error("whitespace-equivalent text must key identically")
	}
	if Key(base) == Key([]Scene{{Text: "A", Duration: 3.5}, {Text: "B", Duration: 2}}) {
		t.Error("duration change must change the key")
	}
	if Key(base) == Key([]Scene{{Text: "B", Duration: 2}, {Text: "A", Duration: 3}}) {
		t.Error("scene order must change the key")
	}
}

func TestBuildCommitsAndReuses(t *testing.T) {
	s, err := store.Open(t.TempDir(), logging.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	builder, err := NewBuilder(s, logging.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	scenes := []Scene{{Text: "A", Duration: 3}, {Text: "", Duration: 1}, {Text: "B", Duration: 2}}

	first, err := builder.Build(ctx, scenes)
	if err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(first.Path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "0:04.000 --> 0:06.000\nB") {
		t.Errorf("track content = %q", data)
	}

	second, err := builder.Build(ctx, scenes)
	if err != nil || second.Path != first.Path || second.Key != first.Key {
		t.Errorf("rebuild = %+v, %v, want cache reuse of %+v", second, err, first)
	}
}

func TestChaptersFollowCues(t *testing.T) {
	chapters := Chapters([]Cue{{Start: 0, End: 3, Text: "Intro"}, {Start: 4, End: 6, Text: "Body"}})
	if len(chapters) != 2 || chapters[1].Start != 4 || chapters[1].Title != "Body" {
		t.Errorf("chapters = %+v", chapters)
	}
}
