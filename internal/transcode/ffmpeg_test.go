package transcode

import (
	"encoding/binary"
	"math"
	"strings"
	"testing"

	"github.com/arctic-media-solutions/soundwave/internal/model"
)

func fullSpec(format model.Format, quality model.Quality) model.OutputSpec {
	spec := model.OutputSpec{Format: format, Quality: quality}
	req := model.JobRequest{Outputs: []model.OutputSpec{spec}}
	req.Normalize()
	return req.Outputs[0]
}

func argsString(t *testing.T, spec model.OutputSpec) string {
	t.Helper()
	args, err := buildArgs("/tmp/source.wav", spec, "/tmp/out."+string(spec.Format))
	if err != nil {
		t.Fatalf("buildArgs failed: %v", err)
	}
	return strings.Join(args, " ")
}

func TestBuildArgsCodecSelection(t *testing.T) {
	tests := []struct {
		format  model.Format
		quality model.Quality
		want    string
	}{
		{model.FormatMP3, model.QualityLow, "-c:a libmp3lame -b:a 128k"},
		{model.FormatMP3, model.QualityMedium, "-c:a libmp3lame -b:a 192k"},
		{model.FormatMP3, model.QualityHigh, "-c:a libmp3lame -b:a 320k"},
		{model.FormatOGG, model.QualityHigh, "-c:a libvorbis -b:a 320k"},
		{model.FormatM4A, model.QualityMedium, "-c:a aac -b:a 192k"},
	}

	for _, tt := range tests {
		got := argsString(t, fullSpec(tt.format, tt.quality))
		if !strings.Contains(got, tt.want) {
			t.Errorf("%s/%s: expected %q in %q", tt.format, tt.quality, tt.want, got)
		}
	}
}

func TestBuildArgsWAVIgnoresBitrate(t *testing.T) {
	got := argsString(t, fullSpec(model.FormatWAV, model.QualityLow))
	if !strings.Contains(got, "-c:a pcm_s16le") {
		t.Errorf("expected pcm codec, got %q", got)
	}
	if strings.Contains(got, "-b:a") {
		t.Errorf("wav must not carry a bitrate, got %q", got)
	}
}

func TestBuildArgsUnsupportedFormat(t *testing.T) {
	_, err := buildArgs("/tmp/s.wav", model.OutputSpec{Format: "flac", Quality: model.QualityHigh}, "/tmp/out.flac")
	if err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestBuildArgsDefaults(t *testing.T) {
	got := argsString(t, fullSpec(model.FormatMP3, model.QualityHigh))
	if !strings.Contains(got, "-ar 44100") || !strings.Contains(got, "-ac 2") {
		t.Errorf("expected default sample rate and channels, got %q", got)
	}
	if strings.Contains(got, "-af") || strings.Contains(got, "-t ") {
		t.Errorf("full rendition must carry no filters or trim, got %q", got)
	}
}

func TestBuildArgsPreviewTrim(t *testing.T) {
	d := 30.0
	spec := model.OutputSpec{Format: model.FormatMP3, Quality: model.QualityLow, DurationSeconds: &d}
	req := model.JobRequest{Outputs: []model.OutputSpec{spec}}
	req.Normalize()

	got := argsString(t, req.Outputs[0])
	if !strings.Contains(got, "-t 30.000") {
		t.Errorf("expected trim flag, got %q", got)
	}
}

func TestBuildArgsFade(t *testing.T) {
	d := 20.0
	spec := model.OutputSpec{Format: model.FormatMP3, Quality: model.QualityLow, DurationSeconds: &d, Fade: true}
	req := model.JobRequest{Outputs: []model.OutputSpec{spec}}
	req.Normalize()

	// fade = min(3, 10% of 20s) = 2s; fade-out starts at 18s
	got := argsString(t, req.Outputs[0])
	if !strings.Contains(got, "afade=t=in:st=0:d=2.000") {
		t.Errorf("expected fade-in filter, got %q", got)
	}
	if !strings.Contains(got, "afade=t=out:st=18.000:d=2.000") {
		t.Errorf("expected fade-out filter, got %q", got)
	}
}

func TestBuildArgsFadeCapped(t *testing.T) {
	d := 120.0
	spec := model.OutputSpec{Format: model.FormatMP3, Quality: model.QualityLow, DurationSeconds: &d, Fade: true}
	req := model.JobRequest{Outputs: []model.OutputSpec{spec}}
	req.Normalize()

	got := argsString(t, req.Outputs[0])
	if !strings.Contains(got, "afade=t=in:st=0:d=3.000") {
		t.Errorf("expected fade capped at 3s, got %q", got)
	}
}

func TestBuildArgsFadeWithoutDuration(t *testing.T) {
	// fade without a duration has nothing to fade against
	spec := fullSpec(model.FormatMP3, model.QualityHigh)
	spec.Fade = true

	got := argsString(t, spec)
	if strings.Contains(got, "afade") {
		t.Errorf("fade must require a duration, got %q", got)
	}
}

func TestBuildArgsNormalizeBeforeFade(t *testing.T) {
	d := 20.0
	spec := model.OutputSpec{Format: model.FormatMP3, Quality: model.QualityLow, DurationSeconds: &d, Fade: true, Normalize: true}
	req := model.JobRequest{Outputs: []model.OutputSpec{spec}}
	req.Normalize()

	got := argsString(t, req.Outputs[0])
	loudnorm := strings.Index(got, "loudnorm=I=-16.0:TP=-1.5:LRA=11.0")
	fade := strings.Index(got, "afade=t=in")
	if loudnorm == -1 || fade == -1 {
		t.Fatalf("expected both filters, got %q", got)
	}
	if loudnorm > fade {
		t.Errorf("loudnorm must precede fades, got %q", got)
	}
}

func TestFilterChainBuilder(t *testing.T) {
	b := NewFilterChainBuilder()
	if b.Build() != "" {
		t.Errorf("empty builder must produce empty chain")
	}

	b.AddLoudnorm(-16.0, -1.5, 11.0).AddFadeIn(2).AddFadeOut(18, 2)
	want := "loudnorm=I=-16.0:TP=-1.5:LRA=11.0,afade=t=in:st=0:d=2.000,afade=t=out:st=18.000:d=2.000"
	if got := b.Build(); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestDecodePCM(t *testing.T) {
	buf := make([]byte, 8)
	for i, s := range []int16{0, 16384, -16384, -32768} {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}

	samples := decodePCM(buf)
	want := []float64{0, 0.5, 0.5, 1.0}
	if len(samples) != len(want) {
		t.Fatalf("expected %d samples, got %d", len(want), len(samples))
	}
	for i := range want {
		if math.Abs(samples[i]-want[i]) > 1e-9 {
			t.Errorf("sample %d: got %f, want %f", i, samples[i], want[i])
		}
	}
}

func TestDecodePCMOddTrailingByte(t *testing.T) {
	samples := decodePCM([]byte{0x00, 0x40, 0x7f})
	if len(samples) != 1 {
		t.Errorf("expected trailing byte dropped, got %d samples", len(samples))
	}
}

func TestReduceSamplesWindowAverage(t *testing.T) {
	samples := []float64{0.1, 0.3, 0.5, 0.7, 0.2, 0.4, 0.6, 0.8}
	got := ReduceSamples(samples, 4)
	want := []float64{0.2, 0.6, 0.3, 0.7}
	if len(got) != 4 {
		t.Fatalf("expected 4 points, got %d", len(got))
	}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-9 {
			t.Errorf("point %d: got %f, want %f", i, got[i], want[i])
		}
	}
}

func TestReduceSamplesShortInput(t *testing.T) {
	samples := []float64{0.1, 0.2, 0.3}
	got := ReduceSamples(samples, 100)
	if len(got) != 3 {
		t.Fatalf("expected all 3 samples back, got %d", len(got))
	}
	// returned slice is a copy
	got[0] = 9
	if samples[0] != 0.1 {
		t.Errorf("ReduceSamples must not alias its input")
	}
}

func TestReduceSamplesUnevenWindows(t *testing.T) {
	samples := make([]float64, 10)
	for i := range samples {
		samples[i] = 1.0
	}
	got := ReduceSamples(samples, 3)
	if len(got) != 3 {
		t.Fatalf("expected 3 points, got %d", len(got))
	}
	for i, v := range got {
		if v != 1.0 {
			t.Errorf("point %d: got %f, want 1.0", i, v)
		}
	}
}

func TestReduceSamplesEmpty(t *testing.T) {
	if got := ReduceSamples(nil, 10); got != nil {
		t.Errorf("expected nil for empty input, got %v", got)
	}
	if got := ReduceSamples([]float64{0.5}, 0); got != nil {
		t.Errorf("expected nil for zero points, got %v", got)
	}
}
