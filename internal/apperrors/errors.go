package apperrors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrConflict       = errors.New("conflict")
	ErrAlreadyRunning = errors.New("ingestion already running for source")
)

// Kind classifies a PipelineError.
type Kind string

const (
	KindSchemaInference Kind = "schema_inference"
	KindStorage         Kind = "storage"
	KindQueryExecution  Kind = "query_execution"
)

// PipelineError is the base error for every failure raised by the ingestion
// and query core. Client is true when the caller supplied bad input and
// retrying the same request can never succeed.
type PipelineError struct {
	Kind    Kind
	Op      string
	Message string
	Client  bool
	Err     error
}

func (e *PipelineError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, msg)
	}
	return msg
}

func (e *PipelineError) Unwrap() error { return e.Err }

// SchemaInference reports a missing schema or a generation failure.
func SchemaInference(op, msg string, err error) error {
	return &PipelineError{Kind: KindSchemaInference, Op: op, Message: msg, Err: err}
}

// Storage reports an engine write, migration or preparation failure.
func Storage(op, msg string, err error) error {
	return &PipelineError{Kind: KindStorage, Op: op, Message: msg, Err: err}
}

// QueryExecution reports an engine failure while running a query.
func QueryExecution(op, msg string, err error) error {
	return &PipelineError{Kind: KindQueryExecution, Op: op, Message: msg, Err: err}
}

// Invalid builds a client error of the given kind.
func Invalid(kind Kind, op, format string, args ...any) error {
	return &PipelineError{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...), Client: true}
}

func kindOf(err error) (Kind, bool) {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind, true
	}
	return "", false
}

func IsSchemaInference(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindSchemaInference
}

func IsStorage(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindStorage
}

func IsQueryExecution(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindQueryExecution
}

// IsClientError reports whether err (or anything it wraps) is a caller fault.
func IsClientError(err error) bool {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Client
	}
	return false
}
