package asyncmaria

import "fmt"

// UsageError is returned synchronously from a method call when the caller
// violated the client's contract (not connected, an exclusive operation
// attempted while queries are in flight, a malformed argument). Usage
// errors never touch connection state and are never delivered to a
// callback.
type UsageError struct {
	Op      string
	Message string
}

func (e *UsageError) Error() string {
	return fmt.Sprintf("asyncmaria: %s: %s", e.Op, e.Message)
}

// ConnectionError wraps a transport-level failure: the connect attempt
// failed, or an established connection died mid-operation. Connection
// errors are fatal to the connection; recovery requires Reset.
type ConnectionError struct {
	Cause error
}

func (e *ConnectionError) Error() string {
	if e.Cause == nil {
		return "asyncmaria: connection error"
	}
	return "asyncmaria: connection error: " + e.Cause.Error()
}

func (e *ConnectionError) Unwrap() error { return e.Cause }

// OperationError wraps a server-side rejection of a single statement
// (bad SQL, constraint violation, a prepared-statement protocol error).
// It is local to the operation that produced it; the pipeline continues.
type OperationError struct {
	Cause   error
	Number  int
	SQLState string
}

func (e *OperationError) Error() string {
	if e.Cause == nil {
		return "asyncmaria: operation error"
	}
	return "asyncmaria: operation error: " + e.Cause.Error()
}

func (e *OperationError) Unwrap() error { return e.Cause }

// CancellationError is delivered to every pending callback affected by
// SkipPending, Reset, Finish, or a fatal connection failure. Reason is one
// of "skipped", "connection reset", "connection finished", or a
// propagated connector message.
type CancellationError struct {
	Reason string
}

func (e *CancellationError) Error() string {
	return "asyncmaria: " + e.Reason
}

// wrapf mirrors eventloop's WrapError helper: attach context to a cause
// while keeping it reachable through errors.Is/errors.As.
func wrapf(cause error, format string, args ...any) error {
	return fmt.Errorf(fmt.Sprintf(format, args...)+": %w", cause)
}

// simpleError turns a connector-reported message string into an error
// value, for connectors whose failure signal is "ErrorMessage() is
// non-empty" rather than a returned error.
type simpleError string

func (e simpleError) Error() string { return string(e) }

func errString(msg string) error { return simpleError(msg) }
