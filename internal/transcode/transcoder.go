package transcode

import (
	"context"

	"github.com/arctic-media-solutions/soundwave/internal/model"
)

// Transcoder is the transcoding port: convert a source file into a target
// rendition, and extract amplitude samples for waveform generation.
// Implementations may be slow, fallible and non-idempotent; retries are
// whole-job retries.
type Transcoder interface {
	// Transcode renders the source into destPath according to spec.
	Transcode(ctx context.Context, sourcePath string, spec model.OutputSpec, destPath string) error

	// ExtractSamples decodes the source and reduces it to at most points
	// mean-amplitude values in [0,1], one per contiguous window. Fewer
	// values are returned when the source has fewer decoded samples.
	ExtractSamples(ctx context.Context, sourcePath string, points int) ([]float64, error)
}
