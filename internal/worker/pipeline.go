package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arctic-media-solutions/soundwave/internal/client"
	"github.com/arctic-media-solutions/soundwave/internal/model"
	"github.com/arctic-media-solutions/soundwave/internal/notify"
	"github.com/arctic-media-solutions/soundwave/internal/transcode"
	pkgerrors "github.com/arctic-media-solutions/soundwave/pkg/errors"
	"github.com/arctic-media-solutions/soundwave/pkg/logger"
)

// JobTracker is the progress-reporting contract the pipeline calls at
// stage checkpoints. Implemented by the job service over the queue's
// record store.
type JobTracker interface {
	ReportProgress(ctx context.Context, jobID string, progress int) error
	IsCanceled(ctx context.Context, jobID string) (bool, error)
}

// ErrCanceled is returned when a record was marked canceled between
// stages. A canceled job is never re-reported as completed.
var ErrCanceled = fmt.Errorf("job canceled")

// PipelineConfig bounds one pipeline run.
type PipelineConfig struct {
	MaxSourceBytes   int64
	DownloadTimeout  time.Duration
	TranscodeTimeout time.Duration
	WorkDir          string
}

// Pipeline turns one validated job request into uploaded outputs, an
// optional waveform, and status notifications. Stages run strictly in
// sequence; any stage failure aborts the job.
type Pipeline struct {
	transcoder transcode.Transcoder
	storage    client.StorageClient
	dispatcher notify.Dispatcher
	tracker    JobTracker
	httpClient *http.Client
	cfg        PipelineConfig
	log        *logger.Logger
}

func NewPipeline(
	transcoder transcode.Transcoder,
	storage client.StorageClient,
	dispatcher notify.Dispatcher,
	tracker JobTracker,
	cfg PipelineConfig,
	log *logger.Logger,
) *Pipeline {
	if log == nil {
		log = logger.NewNop()
	}
	return &Pipeline{
		transcoder: transcoder,
		storage:    storage,
		dispatcher: dispatcher,
		tracker:    tracker,
		httpClient: &http.Client{},
		cfg:        cfg,
		log:        log,
	}
}

// Run executes the pipeline for one job. On failure the failure
// notification has already been dispatched when Run returns.
func (p *Pipeline) Run(ctx context.Context, jobID string, req *model.JobRequest) (*model.JobResult, error) {
	log := p.log.With(zap.String("job_id", jobID), zap.String("internal_id", req.InternalID))

	// Stage 1: workspace, removed on every exit path.
	workspace, err := os.MkdirTemp(p.cfg.WorkDir, "soundwave-"+jobID+"-")
	if err != nil {
		return nil, p.fail(ctx, jobID, req, pkgerrors.NewInternalError("workspace", "failed to create workspace", err))
	}
	defer func() {
		if err := os.RemoveAll(workspace); err != nil {
			log.Warn("workspace cleanup failed", zap.String("workspace", workspace), zap.Error(err))
		}
	}()

	// Stage 2: download.
	sourcePath, err := p.download(ctx, req.SourceURL, workspace)
	if err != nil {
		return nil, p.fail(ctx, jobID, req, err)
	}
	p.report(ctx, jobID, 10, log)
	p.notifyProgress(ctx, jobID, req, 10, "download_complete", nil)
	log.Info("source downloaded", zap.String("path", sourcePath))

	if err := p.checkCanceled(ctx, jobID); err != nil {
		return nil, err
	}

	// Stage 3: per-output transcode + upload.
	outputs := make([]model.Output, 0, len(req.Outputs))
	for i := range req.Outputs {
		spec := &req.Outputs[i]

		output, err := p.processOutput(ctx, sourcePath, workspace, req, spec)
		if err != nil {
			p.removeUploaded(ctx, req.Storage.Bucket, outputs)
			return nil, p.fail(ctx, jobID, req, err)
		}
		outputs = append(outputs, *output)

		progress := 20 + (i+1)*60/len(req.Outputs)
		p.report(ctx, jobID, progress, log)
		p.notifyProgress(ctx, jobID, req, progress, "output_complete", output)
		log.Info("output complete",
			zap.Int("ordinal", i+1),
			zap.String("format", string(spec.Format)),
			zap.String("key", output.Key),
		)

		if err := p.checkCanceled(ctx, jobID); err != nil {
			if errors.Is(err, ErrCanceled) {
				p.removeUploaded(ctx, req.Storage.Bucket, outputs)
			}
			return nil, err
		}
	}

	// Stage 4: waveform over the original source.
	var waveform *model.Waveform
	if req.Waveform != nil {
		waveform, err = p.buildWaveform(ctx, sourcePath, req.Waveform.Points)
		if err != nil {
			p.removeUploaded(ctx, req.Storage.Bucket, outputs)
			return nil, p.fail(ctx, jobID, req, err)
		}
		p.report(ctx, jobID, 90, log)
		log.Info("waveform extracted", zap.Int("points", waveform.Points))

		if err := p.checkCanceled(ctx, jobID); err != nil {
			if errors.Is(err, ErrCanceled) {
				p.removeUploaded(ctx, req.Storage.Bucket, outputs)
			}
			return nil, err
		}
	}

	// Stage 5: assemble and notify.
	result := &model.JobResult{
		Outputs:    outputs,
		Waveform:   waveform,
		Metadata:   req.Metadata,
		InternalID: req.InternalID,
	}

	p.report(ctx, jobID, 100, log)
	if req.WebhookURL != "" {
		p.dispatcher.Notify(ctx, req.WebhookURL, notify.CompletedEvent{
			JobID:      jobID,
			InternalID: req.InternalID,
			Status:     notify.StatusCompleted,
			Outputs:    outputs,
			Waveform:   waveform,
			Metadata:   req.Metadata,
		})
	}

	log.Info("job complete", zap.Int("outputs", len(outputs)))
	return result, nil
}

// download fetches the source into the workspace, enforcing the declared
// and observed size limits.
func (p *Pipeline) download(ctx context.Context, sourceURL, workspace string) (string, error) {
	dctx := ctx
	if p.cfg.DownloadTimeout > 0 {
		var cancel context.CancelFunc
		dctx, cancel = context.WithTimeout(ctx, p.cfg.DownloadTimeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(dctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return "", pkgerrors.NewDownloadError("invalid source URL", err)
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return "", pkgerrors.NewDownloadError("failed to fetch source", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", pkgerrors.NewDownloadError(
			fmt.Sprintf("source returned status %d", resp.StatusCode), nil)
	}

	max := p.cfg.MaxSourceBytes
	if max > 0 && resp.ContentLength > max {
		return "", pkgerrors.NewDownloadError(
			fmt.Sprintf("source size %d exceeds limit %d", resp.ContentLength, max), nil)
	}

	sourcePath := filepath.Join(workspace, "source"+sourceExt(sourceURL))
	f, err := os.Create(sourcePath)
	if err != nil {
		return "", pkgerrors.NewDownloadError("failed to create source file", err)
	}
	defer f.Close()

	reader := resp.Body
	var limited io.Reader = reader
	if max > 0 {
		limited = io.LimitReader(reader, max+1)
	}

	n, err := io.Copy(f, limited)
	if err != nil {
		return "", pkgerrors.NewDownloadError("failed to read source", err)
	}
	if max > 0 && n > max {
		return "", pkgerrors.NewDownloadError(
			fmt.Sprintf("source exceeds limit %d", max), nil)
	}

	return sourcePath, nil
}

// processOutput renders one spec and uploads it. Key collisions across
// outputs in the same job are the caller's responsibility.
func (p *Pipeline) processOutput(ctx context.Context, sourcePath, workspace string, req *model.JobRequest, spec *model.OutputSpec) (*model.Output, error) {
	filename := spec.Filename
	if filename == "" {
		filename = uuid.New().String() + "." + string(spec.Format)
	}
	destPath := filepath.Join(workspace, filename)

	tctx := ctx
	if p.cfg.TranscodeTimeout > 0 {
		var cancel context.CancelFunc
		tctx, cancel = context.WithTimeout(ctx, p.cfg.TranscodeTimeout)
		defer cancel()
	}

	if err := p.transcoder.Transcode(tctx, sourcePath, *spec, destPath); err != nil {
		if _, ok := pkgerrors.AsPipelineError(err); ok {
			return nil, err
		}
		return nil, pkgerrors.NewTranscodeError("transcode failed", err)
	}

	prefix := spec.Path
	if prefix == "" {
		prefix = req.Storage.Path
	}
	key := joinKey(prefix, filename)

	url, err := p.storage.Put(ctx, destPath, req.Storage.Bucket, key, spec.Format.ContentType())
	if err != nil {
		return nil, pkgerrors.NewUploadError(
			fmt.Sprintf("failed to upload %s", key), err)
	}

	return &model.Output{
		URL:             url,
		Key:             key,
		Filename:        filename,
		Format:          spec.Format,
		Quality:         spec.Quality,
		DurationSeconds: spec.DurationSeconds,
		Type:            spec.Type,
	}, nil
}

// buildWaveform extracts samples from the original source and normalizes
// them against the observed peak so the maximum equals 1.0.
func (p *Pipeline) buildWaveform(ctx context.Context, sourcePath string, points int) (*model.Waveform, error) {
	samples, err := p.transcoder.ExtractSamples(ctx, sourcePath, points)
	if err != nil {
		if _, ok := pkgerrors.AsPipelineError(err); ok {
			return nil, err
		}
		return nil, pkgerrors.NewExtractError("sample extraction failed", err)
	}
	if len(samples) == 0 {
		return nil, pkgerrors.NewExtractError("no samples extracted", nil)
	}

	var peak float64
	for _, s := range samples {
		if s > peak {
			peak = s
		}
	}

	data := make([]float64, len(samples))
	if peak > 0 {
		for i, s := range samples {
			data[i] = s / peak
		}
	}

	return &model.Waveform{
		Points: len(data),
		Data:   data,
	}, nil
}

// removeUploaded deletes the objects an aborted run already uploaded, so
// a job never leaves partial renditions behind. Best effort.
func (p *Pipeline) removeUploaded(ctx context.Context, bucket string, outputs []model.Output) {
	for _, out := range outputs {
		if err := p.storage.Delete(ctx, bucket, out.Key); err != nil {
			p.log.Warn("failed to remove partial upload",
				zap.String("bucket", bucket),
				zap.String("key", out.Key),
				zap.Error(err),
			)
		}
	}
}

// fail dispatches the failure notification and passes the error through.
func (p *Pipeline) fail(ctx context.Context, jobID string, req *model.JobRequest, err error) error {
	endpoint := req.ErrorWebhookURL
	if endpoint == "" {
		endpoint = req.WebhookURL
	}
	if endpoint != "" {
		p.dispatcher.Notify(ctx, endpoint, notify.FailedEvent{
			JobID:      jobID,
			InternalID: req.InternalID,
			Status:     notify.StatusFailed,
			Error:      err.Error(),
			Metadata:   req.Metadata,
		})
	}

	p.log.Error("pipeline stage failed",
		zap.String("job_id", jobID),
		zap.String("internal_id", req.InternalID),
		zap.Error(err),
	)
	return err
}

func (p *Pipeline) report(ctx context.Context, jobID string, progress int, log *logger.Logger) {
	if err := p.tracker.ReportProgress(ctx, jobID, progress); err != nil {
		log.Warn("progress report failed", zap.Int("progress", progress), zap.Error(err))
	}
}

func (p *Pipeline) notifyProgress(ctx context.Context, jobID string, req *model.JobRequest, progress int, stage string, output *model.Output) {
	if req.ProgressWebhookURL == "" {
		return
	}
	p.dispatcher.Notify(ctx, req.ProgressWebhookURL, notify.ProcessingEvent{
		JobID:         jobID,
		InternalID:    req.InternalID,
		Status:        notify.StatusProcessing,
		Progress:      progress,
		Stage:         stage,
		CurrentOutput: output,
	})
}

// checkCanceled is the cooperative-cancellation checkpoint between stages.
// A dead context is not a cancellation: it means the server is shutting
// down or the task timed out, and the queue must redeliver, so the
// context error passes through untouched.
func (p *Pipeline) checkCanceled(ctx context.Context, jobID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	canceled, err := p.tracker.IsCanceled(ctx, jobID)
	if err != nil {
		// record lookup failure is not a cancellation
		return nil
	}
	if canceled {
		return ErrCanceled
	}
	return nil
}

func sourceExt(sourceURL string) string {
	u, err := url.Parse(sourceURL)
	if err != nil {
		return ""
	}
	return path.Ext(u.Path)
}

func joinKey(prefix, filename string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return filename
	}
	return prefix + "/" + filename
}
