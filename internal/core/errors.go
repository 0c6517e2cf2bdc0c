package core

import (
	"errors"
	"fmt"
)

// Pipeline stages, used to tell the caller exactly which step failed so they
// can retry the right thing instead of resubmitting audio that already
// transcribed.
const (
	StageTranscription = "transcription"
	StageExtraction    = "extraction"
)

// ErrInvalidInput marks a caller error such as an empty audio payload.
// Retrying the same request will not help.
var ErrInvalidInput = errors.New("invalid input")

// UpstreamError reports a failure of one of the external AI services. It is
// transient: the caller may retry the whole pipeline with the same session
// identifier safely, since storage is idempotent.
type UpstreamError struct {
	Stage string
	Err   error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s service failed: %v", e.Stage, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }
