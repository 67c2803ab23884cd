package queue

import "errors"

// ErrorKind partitions queue failures into the categories callers react to
// differently: configuration mistakes are never retried, connection failures
// stop the worker, and execution failures consume the task's retry budget.
type ErrorKind string

const (
	ErrorKindConfiguration ErrorKind = "configuration"
	ErrorKindConnection    ErrorKind = "connection"
	ErrorKindExecution     ErrorKind = "execution"
)

// ErrorClassifier allows errors to declare their classification.
type ErrorClassifier interface {
	ErrorKind() ErrorKind
}

type kindError struct {
	kind ErrorKind
	msg  string
	err  error
}

func (e *kindError) Error() string {
	if e.err != nil {
		return e.msg + ": " + e.err.Error()
	}
	return e.msg
}

func (e *kindError) Unwrap() error { return e.err }

func (e *kindError) ErrorKind() ErrorKind { return e.kind }

func configurationError(msg string) error {
	return &kindError{kind: ErrorKindConfiguration, msg: msg}
}

func connectionError(msg string, err error) error {
	return &kindError{kind: ErrorKindConnection, msg: msg, err: err}
}

// KindOf classifies an error. Errors without an explicit classification are
// treated as execution failures.
func KindOf(err error) ErrorKind {
	var classifier ErrorClassifier
	if errors.As(err, &classifier) {
		return classifier.ErrorKind()
	}
	return ErrorKindExecution
}

// IsConfiguration reports whether an error was caused by invalid caller input
// rather than by the store or a handler.
func IsConfiguration(err error) bool {
	return KindOf(err) == ErrorKindConfiguration
}

// IsConnection reports whether an error indicates the database is unavailable.
func IsConnection(err error) bool {
	return KindOf(err) == ErrorKindConnection
}
