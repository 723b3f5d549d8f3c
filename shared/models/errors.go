package models

import (
	"errors"
	"fmt"
)

// Application-wide standard errors
var (
	// Common Resource Errors
	ErrNotFound          = errors.New("resource not found")
	ErrGameNotLoaded     = errors.New("no game definition is loaded")
	ErrInvalidDefinition = errors.New("invalid game definition")

	// Orchestration Errors
	ErrBusy           = errors.New("another transcript is already in flight")
	ErrRecursionLimit = errors.New("synthetic transcript depth limit exceeded")
	ErrNoCurrentTurn  = errors.New("no current turn is set")

	// Pipeline Errors
	ErrEmptyActionSequence = errors.New("provider returned an empty action sequence")
	ErrDuplicateTranscript = errors.New("duplicate transcript inside dedup window")

	// General Request/Server Errors
	ErrInternalServer = errors.New("internal server error")
	ErrBadRequest     = errors.New("bad request")
	ErrUnauthorized   = errors.New("unauthorized")
)

// ValidationKind classifies why the validator rejected an action.
type ValidationKind string

const (
	ValidationTurnOwnership   ValidationKind = "TURN_OWNERSHIP"
	ValidationPathNotFound    ValidationKind = "PATH_NOT_FOUND"
	ValidationTypeMismatch    ValidationKind = "TYPE_MISMATCH"
	ValidationDecisionPending ValidationKind = "DECISION_PENDING"
)

// ValidationError is a typed rejection of a single action in a batch.
// The message is replayed to the generation provider as corrective context,
// so it must be self-contained and name the offending path/ids.
type ValidationError struct {
	Kind        ValidationKind
	ActionIndex int    // position of the rejected action within the batch
	Path        string // state path involved, if any
	Message     string
}

func (e *ValidationError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("action %d rejected (%s) at %q: %s", e.ActionIndex, e.Kind, e.Path, e.Message)
	}
	return fmt.Sprintf("action %d rejected (%s): %s", e.ActionIndex, e.Kind, e.Message)
}

// NewValidationError создает типизированную ошибку валидации.
func NewValidationError(kind ValidationKind, index int, path, format string, args ...interface{}) *ValidationError {
	return &ValidationError{
		Kind:        kind,
		ActionIndex: index,
		Path:        path,
		Message:     fmt.Sprintf(format, args...),
	}
}

// AsValidationError unwraps err into a *ValidationError if possible.
func AsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

// PipelineKind classifies failures of the generation pipeline.
type PipelineKind string

const (
	PipelineNetwork      PipelineKind = "NETWORK"
	PipelineWrongShape   PipelineKind = "WRONG_SHAPE"
	PipelineNotASequence PipelineKind = "NOT_A_SEQUENCE"
)

// PipelineError wraps a failure of the provider call or of reply parsing.
type PipelineError struct {
	Kind    PipelineKind
	Message string
	Err     error // underlying transport/parse error, may be nil
}

func (e *PipelineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("pipeline failure (%s): %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("pipeline failure (%s): %s", e.Kind, e.Message)
}

func (e *PipelineError) Unwrap() error { return e.Err }

// NewPipelineError создает типизированную ошибку пайплайна генерации.
func NewPipelineError(kind PipelineKind, err error, format string, args ...interface{}) *PipelineError {
	return &PipelineError{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		Err:     err,
	}
}

// AsPipelineError unwraps err into a *PipelineError if possible.
func AsPipelineError(err error) (*PipelineError, bool) {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
