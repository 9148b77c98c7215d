package model

// Output formats
type Format string

const (
	FormatMP3 Format = "mp3"
	FormatOGG Format = "ogg"
	FormatWAV Format = "wav"
	FormatM4A Format = "m4a"
)

var ValidFormats = []Format{FormatMP3, FormatOGG, FormatWAV, FormatM4A}

// ContentType returns the MIME type used when uploading an output.
func (f Format) ContentType() string {
	switch f {
	case FormatMP3:
		return "audio/mpeg"
	case FormatOGG:
		return "audio/ogg"
	case FormatWAV:
		return "audio/wav"
	case FormatM4A:
		return "audio/mp4"
	default:
		return "application/octet-stream"
	}
}

// Quality tiers
type Quality string

const (
	QualityLow    Quality = "low"
	QualityMedium Quality = "medium"
	QualityHigh   Quality = "high"
)

// Bitrate maps a quality tier to the fixed bitrate ladder in kbps.
func (q Quality) Bitrate() int {
	switch q {
	case QualityLow:
		return 128
	case QualityMedium:
		return 192
	case QualityHigh:
		return 320
	default:
		return 192
	}
}

// Output kinds
type OutputType string

const (
	OutputTypeFull    OutputType = "full"
	OutputTypePreview OutputType = "preview"
)

// Job status
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusActive    JobStatus = "active"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCanceled  JobStatus = "canceled"
)
