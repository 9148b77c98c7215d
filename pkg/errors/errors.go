package errors

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes pipeline failures
type ErrorCode string

const (
	ErrCodeValidation ErrorCode = "VALIDATION_ERROR"
	ErrCodeDownload   ErrorCode = "DOWNLOAD_ERROR"
	ErrCodeTranscode  ErrorCode = "TRANSCODE_ERROR"
	ErrCodeUpload     ErrorCode = "UPLOAD_ERROR"
	ErrCodeExtract    ErrorCode = "EXTRACT_ERROR"
	ErrCodeInternal   ErrorCode = "INTERNAL_ERROR"
)

// PipelineError is a stage failure. Its Error() string becomes the job's
// failure reason, so it must stay human-readable.
type PipelineError struct {
	Code    ErrorCode
	Stage   string
	Message string
	Cause   error
}

func (e *PipelineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *PipelineError) Unwrap() error {
	return e.Cause
}

func NewDownloadError(message string, cause error) *PipelineError {
	return &PipelineError{Code: ErrCodeDownload, Stage: "download", Message: message, Cause: cause}
}

func NewTranscodeError(message string, cause error) *PipelineError {
	return &PipelineError{Code: ErrCodeTranscode, Stage: "transcode", Message: message, Cause: cause}
}

func NewUploadError(message string, cause error) *PipelineError {
	return &PipelineError{Code: ErrCodeUpload, Stage: "upload", Message: message, Cause: cause}
}

func NewExtractError(message string, cause error) *PipelineError {
	return &PipelineError{Code: ErrCodeExtract, Stage: "waveform", Message: message, Cause: cause}
}

func NewValidationError(message string, cause error) *PipelineError {
	return &PipelineError{Code: ErrCodeValidation, Stage: "validate", Message: message, Cause: cause}
}

// NewInternalError reports a service-side fault that is neither the
// source's nor the destination's doing.
func NewInternalError(stage, message string, cause error) *PipelineError {
	return &PipelineError{Code: ErrCodeInternal, Stage: stage, Message: message, Cause: cause}
}

// AsPipelineError unwraps err into a *PipelineError if possible.
func AsPipelineError(err error) (*PipelineError, bool) {
	var pe *PipelineError
	ok := errors.As(err, &pe)
	return pe, ok
}
