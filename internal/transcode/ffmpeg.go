package transcode

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"os/exec"
	"strings"

	"go.uber.org/zap"

	"github.com/arctic-media-solutions/soundwave/internal/model"
	pkgerrors "github.com/arctic-media-solutions/soundwave/pkg/errors"
	"github.com/arctic-media-solutions/soundwave/pkg/logger"
)

// waveform extraction decodes to mono PCM at a reduced rate; amplitude
// detail beyond this rate is irrelevant for display waveforms.
const extractSampleRate = 8000

// FFmpeg implements Transcoder by invoking the ffmpeg binary.
type FFmpeg struct {
	ffmpegPath string
	log        *logger.Logger
}

// Config holds ffmpeg binary locations.
type Config struct {
	FFmpegPath string
	Logger     *logger.Logger
}

// NewFFmpeg creates an ffmpeg-backed transcoder, resolving the binary
// from PATH when no explicit path is configured.
func NewFFmpeg(cfg Config) (*FFmpeg, error) {
	path := cfg.FFmpegPath
	if path == "" {
		var err error
		path, err = exec.LookPath("ffmpeg")
		if err != nil {
			return nil, fmt.Errorf("ffmpeg not found in PATH: %w", err)
		}
	}

	log := cfg.Logger
	if log == nil {
		log = logger.NewNop()
	}

	return &FFmpeg{ffmpegPath: path, log: log}, nil
}

// Transcode renders sourcePath into destPath according to spec.
func (f *FFmpeg) Transcode(ctx context.Context, sourcePath string, spec model.OutputSpec, destPath string) error {
	args, err := buildArgs(sourcePath, spec, destPath)
	if err != nil {
		return pkgerrors.NewTranscodeError("failed to build ffmpeg arguments", err)
	}

	cmd := exec.CommandContext(ctx, f.ffmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	f.log.Debug("executing ffmpeg", zap.Strings("args", args))

	if err := cmd.Run(); err != nil {
		return pkgerrors.NewTranscodeError(
			fmt.Sprintf("ffmpeg failed: %s", truncate(stderr.String(), 300)),
			err,
		)
	}

	return nil
}

// ExtractSamples decodes sourcePath to mono PCM and reduces it to at most
// points window-averaged amplitude values in [0,1].
func (f *FFmpeg) ExtractSamples(ctx context.Context, sourcePath string, points int) ([]float64, error) {
	args := []string{
		"-v", "error",
		"-i", sourcePath,
		"-ac", "1",
		"-ar", fmt.Sprintf("%d", extractSampleRate),
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"pipe:1",
	}

	cmd := exec.CommandContext(ctx, f.ffmpegPath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, pkgerrors.NewExtractError(
			fmt.Sprintf("ffmpeg decode failed: %s", truncate(stderr.String(), 300)),
			err,
		)
	}

	samples := decodePCM(stdout.Bytes())
	if len(samples) == 0 {
		return nil, pkgerrors.NewExtractError("no audio samples decoded", nil)
	}

	return ReduceSamples(samples, points), nil
}

// buildArgs assembles the ffmpeg invocation for one rendition.
// Normalization is applied before any fade.
func buildArgs(sourcePath string, spec model.OutputSpec, destPath string) ([]string, error) {
	args := []string{"-y", "-i", sourcePath}

	fb := NewFilterChainBuilder()
	if spec.Normalize {
		fb.AddLoudnorm(-16.0, -1.5, 11.0)
	}
	if spec.Fade && spec.DurationSeconds != nil {
		fade := spec.FadeDuration()
		fb.AddFadeIn(fade)
		fb.AddFadeOut(*spec.DurationSeconds-fade, fade)
	}
	if filter := fb.Build(); filter != "" {
		args = append(args, "-af", filter)
	}

	if spec.DurationSeconds != nil {
		args = append(args, "-t", fmt.Sprintf("%.3f", *spec.DurationSeconds))
	}

	args = append(args, "-ar", fmt.Sprintf("%d", spec.SampleRate))
	args = append(args, "-ac", fmt.Sprintf("%d", spec.Channels))

	codecArgs, err := buildCodecArgs(spec)
	if err != nil {
		return nil, err
	}
	args = append(args, codecArgs...)

	args = append(args, destPath)
	return args, nil
}

func buildCodecArgs(spec model.OutputSpec) ([]string, error) {
	bitrate := fmt.Sprintf("%dk", spec.Quality.Bitrate())

	switch spec.Format {
	case model.FormatMP3:
		return []string{"-c:a", "libmp3lame", "-b:a", bitrate}, nil
	case model.FormatOGG:
		return []string{"-c:a", "libvorbis", "-b:a", bitrate}, nil
	case model.FormatM4A:
		return []string{"-c:a", "aac", "-b:a", bitrate}, nil
	case model.FormatWAV:
		// lossless, quality tier has no effect
		return []string{"-c:a", "pcm_s16le"}, nil
	default:
		return nil, fmt.Errorf("unsupported format: %s", spec.Format)
	}
}

// decodePCM converts little-endian signed 16-bit PCM bytes to absolute
// amplitudes in [0,1].
func decodePCM(data []byte) []float64 {
	n := len(data) / 2
	samples := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		v := int16(binary.LittleEndian.Uint16(data[i*2:]))
		samples = append(samples, math.Abs(float64(v))/32768.0)
	}
	return samples
}

// ReduceSamples averages contiguous windows of samples down to at most
// points values. When fewer samples exist than requested, every sample is
// returned as its own point.
func ReduceSamples(samples []float64, points int) []float64 {
	if points <= 0 || len(samples) == 0 {
		return nil
	}
	if len(samples) <= points {
		out := make([]float64, len(samples))
		copy(out, samples)
		return out
	}

	out := make([]float64, points)
	for i := 0; i < points; i++ {
		start := i * len(samples) / points
		end := (i + 1) * len(samples) / points
		var sum float64
		for _, s := range samples[start:end] {
			sum += s
		}
		out[i] = sum / float64(end-start)
	}
	return out
}

// FilterChainBuilder assembles an ffmpeg -af filter string.
type FilterChainBuilder struct {
	filters []string
}

func NewFilterChainBuilder() *FilterChainBuilder {
	return &FilterChainBuilder{}
}

func (b *FilterChainBuilder) AddLoudnorm(targetLUFS, truePeak, lra float64) *FilterChainBuilder {
	b.filters = append(b.filters, fmt.Sprintf("loudnorm=I=%.1f:TP=%.1f:LRA=%.1f", targetLUFS, truePeak, lra))
	return b
}

func (b *FilterChainBuilder) AddFadeIn(duration float64) *FilterChainBuilder {
	b.filters = append(b.filters, fmt.Sprintf("afade=t=in:st=0:d=%.3f", duration))
	return b
}

func (b *FilterChainBuilder) AddFadeOut(start, duration float64) *FilterChainBuilder {
	b.filters = append(b.filters, fmt.Sprintf("afade=t=out:st=%.3f:d=%.3f", start, duration))
	return b
}

func (b *FilterChainBuilder) Build() string {
	return strings.Join(b.filters, ",")
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
