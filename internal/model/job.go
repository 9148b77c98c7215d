package model

import (
	"encoding/json"
	"time"
)

// JobRequest is the submitted unit of work: one source file, one or more
// requested renditions, optional waveform extraction.
type JobRequest struct {
	SourceURL          string                 `json:"sourceURL" validate:"required,url"`
	InternalID         string                 `json:"internalID,omitempty"`
	Outputs            []OutputSpec           `json:"outputs" validate:"required,min=1,max=10,dive"`
	Storage            StorageSpec            `json:"storage" validate:"required"`
	Waveform           *WaveformSpec          `json:"waveform,omitempty" validate:"omitempty"`
	WebhookURL         string                 `json:"webhookURL,omitempty" validate:"omitempty,url"`
	ProgressWebhookURL string                 `json:"progressWebhookURL,omitempty" validate:"omitempty,url"`
	ErrorWebhookURL    string                 `json:"errorWebhookURL,omitempty" validate:"omitempty,url"`
	Metadata           map[string]interface{} `json:"metadata,omitempty"`
}

// OutputSpec is one requested rendition.
type OutputSpec struct {
	Format          Format   `json:"format" validate:"required,oneof=mp3 ogg wav m4a"`
	Quality         Quality  `json:"quality" validate:"required,oneof=low medium high"`
	SampleRate      int      `json:"sampleRate,omitempty" validate:"omitempty,min=8000,max=48000"`
	Channels        int      `json:"channels,omitempty" validate:"omitempty,min=1,max=2"`
	DurationSeconds *float64 `json:"durationSeconds,omitempty" validate:"omitempty,gt=0"`
	Fade            bool     `json:"fade,omitempty"`
	Normalize       bool     `json:"normalize,omitempty"`
	Filename        string   `json:"filename,omitempty"`
	Path            string   `json:"path,omitempty"`

	// Type is derived once during normalization: preview iff a duration
	// is set. Never recomputed downstream.
	Type OutputType `json:"-"`
}

// StorageSpec names the destination bucket and default key prefix.
type StorageSpec struct {
	Bucket string `json:"bucket" validate:"required"`
	Path   string `json:"path,omitempty"`
}

// WaveformSpec requests waveform extraction from the source.
type WaveformSpec struct {
	Points int `json:"points" validate:"required,min=100,max=10000"`
}

// Normalize applies defaults and derives the output kind for each spec.
// Must run after validation and before the request is enqueued.
func (r *JobRequest) Normalize() {
	for i := range r.Outputs {
		o := &r.Outputs[i]
		if o.SampleRate == 0 {
			o.SampleRate = 44100
		}
		if o.Channels == 0 {
			o.Channels = 2
		}
		if o.DurationSeconds != nil {
			o.Type = OutputTypePreview
		} else {
			o.Type = OutputTypeFull
		}
	}
}

// FadeDuration returns the fade-in/fade-out length in seconds for a
// preview rendition: min(3s, 10% of the clip duration).
func (o *OutputSpec) FadeDuration() float64 {
	if o.DurationSeconds == nil {
		return 0
	}
	d := *o.DurationSeconds * 0.1
	if d > 3 {
		d = 3
	}
	return d
}

// Output is one produced rendition, constructed once after a successful
// upload and immutable thereafter.
type Output struct {
	URL             string     `json:"url"`
	Key             string     `json:"key"`
	Filename        string     `json:"filename"`
	Format          Format     `json:"format"`
	Quality         Quality    `json:"quality"`
	DurationSeconds *float64   `json:"durationSeconds,omitempty"`
	Type            OutputType `json:"type"`
}

// Waveform holds amplitude samples normalized to [0,1].
type Waveform struct {
	Points int       `json:"points"`
	Data   []float64 `json:"data"`
}

// JobResult is the return value of a completed job.
type JobResult struct {
	Outputs    []Output               `json:"outputs"`
	Waveform   *Waveform              `json:"waveform,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	InternalID string                 `json:"internalID,omitempty"`
}

// Job is the queue-owned record wrapping a request. The pipeline never
// persists it directly; all updates go through the job service.
type Job struct {
	ID            string          `json:"id"`
	InternalID    string          `json:"internalID,omitempty"`
	State         JobStatus       `json:"state"`
	Progress      int             `json:"progress"`
	AttemptsMade  int             `json:"attemptsMade"`
	Request       json.RawMessage `json:"request,omitempty"`
	ReturnValue   json.RawMessage `json:"returnValue,omitempty"`
	FailureReason *string         `json:"failureReason,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	StartedAt     *time.Time      `json:"startedAt,omitempty"`
	CompletedAt   *time.Time      `json:"completedAt,omitempty"`
}

// ProcessStartResponse acknowledges an accepted job.
type ProcessStartResponse struct {
	ID        string    `json:"id"`
	Status    JobStatus `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

// JobStatusResponse is the job-status query view.
type JobStatusResponse struct {
	ID         string     `json:"id"`
	InternalID string     `json:"internalID,omitempty"`
	Status     JobStatus  `json:"status"`
	Progress   int        `json:"progress"`
	Result     *JobResult `json:"result,omitempty"`
	Error      *string    `json:"error,omitempty"`
}

// JobCancelResponse acknowledges a cancellation request.
type JobCancelResponse struct {
	Success bool      `json:"success"`
	ID      string    `json:"id"`
	Status  JobStatus `json:"status"`
}
