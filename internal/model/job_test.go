package model

import (
	"testing"

	"github.com/go-playground/validator/v10"
)

func floatPtr(v float64) *float64 { return &v }

func TestNormalizeDefaults(t *testing.T) {
	req := JobRequest{
		Outputs: []OutputSpec{
			{Format: FormatMP3, Quality: QualityHigh},
			{Format: FormatOGG, Quality: QualityLow, SampleRate: 22050, Channels: 1},
		},
	}
	req.Normalize()

	if req.Outputs[0].SampleRate != 44100 || req.Outputs[0].Channels != 2 {
		t.Errorf("expected defaults 44100/2, got %d/%d", req.Outputs[0].SampleRate, req.Outputs[0].Channels)
	}
	if req.Outputs[1].SampleRate != 22050 || req.Outputs[1].Channels != 1 {
		t.Errorf("explicit values must survive normalization, got %d/%d", req.Outputs[1].SampleRate, req.Outputs[1].Channels)
	}
}

func TestNormalizeDerivesOutputType(t *testing.T) {
	req := JobRequest{
		Outputs: []OutputSpec{
			{Format: FormatMP3, Quality: QualityHigh},
			{Format: FormatMP3, Quality: QualityLow, DurationSeconds: floatPtr(30)},
		},
	}
	req.Normalize()

	if req.Outputs[0].Type != OutputTypeFull {
		t.Errorf("no duration means full rendition, got %s", req.Outputs[0].Type)
	}
	if req.Outputs[1].Type != OutputTypePreview {
		t.Errorf("duration means preview rendition, got %s", req.Outputs[1].Type)
	}
}

func TestFadeDuration(t *testing.T) {
	tests := []struct {
		duration *float64
		want     float64
	}{
		{nil, 0},
		{floatPtr(10), 1},
		{floatPtr(20), 2},
		{floatPtr(30), 3},
		{floatPtr(120), 3},
	}

	for _, tt := range tests {
		spec := OutputSpec{DurationSeconds: tt.duration}
		if got := spec.FadeDuration(); got != tt.want {
			t.Errorf("FadeDuration(%v) = %f, want %f", tt.duration, got, tt.want)
		}
	}
}

func TestFormatContentType(t *testing.T) {
	tests := []struct {
		format Format
		want   string
	}{
		{FormatMP3, "audio/mpeg"},
		{FormatOGG, "audio/ogg"},
		{FormatWAV, "audio/wav"},
		{FormatM4A, "audio/mp4"},
		{Format("bogus"), "application/octet-stream"},
	}
	for _, tt := range tests {
		if got := tt.format.ContentType(); got != tt.want {
			t.Errorf("ContentType(%s) = %s, want %s", tt.format, got, tt.want)
		}
	}
}

func TestQualityBitrate(t *testing.T) {
	if QualityLow.Bitrate() != 128 || QualityMedium.Bitrate() != 192 || QualityHigh.Bitrate() != 320 {
		t.Error("bitrate ladder mismatch")
	}
}

func validRequest() JobRequest {
	return JobRequest{
		SourceURL: "https://example.com/a.wav",
		Outputs:   []OutputSpec{{Format: FormatMP3, Quality: QualityHigh}},
		Storage:   StorageSpec{Bucket: "b"},
	}
}

func TestJobRequestValidation(t *testing.T) {
	validate := validator.New()

	if err := validate.Struct(validRequest()); err != nil {
		t.Fatalf("expected valid request, got %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*JobRequest)
	}{
		{"missing source", func(r *JobRequest) { r.SourceURL = "" }},
		{"bad source url", func(r *JobRequest) { r.SourceURL = "not-a-url" }},
		{"no outputs", func(r *JobRequest) { r.Outputs = nil }},
		{"too many outputs", func(r *JobRequest) {
			for i := 0; i < 11; i++ {
				r.Outputs = append(r.Outputs, OutputSpec{Format: FormatMP3, Quality: QualityHigh})
			}
			r.Outputs = r.Outputs[:11]
		}},
		{"bad format", func(r *JobRequest) { r.Outputs[0].Format = "flac" }},
		{"bad quality", func(r *JobRequest) { r.Outputs[0].Quality = "ultra" }},
		{"sample rate too low", func(r *JobRequest) { r.Outputs[0].SampleRate = 4000 }},
		{"too many channels", func(r *JobRequest) { r.Outputs[0].Channels = 6 }},
		{"zero duration", func(r *JobRequest) { r.Outputs[0].DurationSeconds = floatPtr(0) }},
		{"missing bucket", func(r *JobRequest) { r.Storage.Bucket = "" }},
		{"waveform points too low", func(r *JobRequest) { r.Waveform = &WaveformSpec{Points: 50} }},
		{"waveform points too high", func(r *JobRequest) { r.Waveform = &WaveformSpec{Points: 20000} }},
		{"bad webhook url", func(r *JobRequest) { r.WebhookURL = "not-a-url" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(&req)
			if err := validate.Struct(&req); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
