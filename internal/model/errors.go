package model

import (
	"errors"
	"fmt"
)

// Error kinds reported by the registry, the socket prober and the
// allocator. Callers test for them with errors.Is.
var (
	// ErrInvalidLine means a line does not match the registry grammar.
	ErrInvalidLine = errors.New("invalid line")

	// ErrPortOccupied means an explicit port is already claimed in the
	// registry.
	ErrPortOccupied = errors.New("port already reserved")

	// ErrUnknownService means a lookup named a service with no reservations.
	ErrUnknownService = errors.New("unknown service")

	// ErrNotFound means a drop matched no reservation.
	ErrNotFound = errors.New("reservation not found")

	// ErrAttemptsExhausted means a port scan used its attempt budget.
	ErrAttemptsExhausted = errors.New("port scan attempts exhausted")

	// ErrWrappedAround means a port scan came back to its starting port
	// without finding a free candidate.
	ErrWrappedAround = errors.New("port scan wrapped around: no free port in range")

	// ErrBind means the operating system refused a bind.
	ErrBind = errors.New("bind failed")

	// ErrPortMismatch means a dual-protocol allocation bound TCP but could
	// not bind UDP on the same port.
	ErrPortMismatch = errors.New("unable to allocate matching tcp/udp port")
)

// LineError reports which line of a reservation batch failed. Lines before
// it were committed; lines after it were not processed.
type LineError struct {
	// Line is the 1-based position of the failing line in the batch.
	Line int

	// Text is the offending line as given.
	Text string

	// Err is the error kind, e.g. ErrPortOccupied.
	Err error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d %q: %v", e.Line, e.Text, e.Err)
}

func (e *LineError) Unwrap() error {
	return e.Err
}

// BindError is returned when the OS refuses to bind a port. It matches both
// ErrBind and the underlying OS error with errors.Is.
type BindError struct {
	Protocol Protocol
	Port     int
	Err      error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("bind %s port %d: %v", e.Protocol.Label(), e.Port, e.Err)
}

func (e *BindError) Unwrap() []error {
	return []error{ErrBind, e.Err}
}

// ExitCode defines the CLI exit codes. Scripts rely on these values to tell
// failure kinds apart without parsing messages.
type ExitCode int

const (
	// ExitSuccess indicates the command completed successfully.
	ExitSuccess ExitCode = 0

	// ExitGeneralError indicates an unspecified error occurred.
	ExitGeneralError ExitCode = 1

	// ExitInvalidLine indicates malformed registry input.
	ExitInvalidLine ExitCode = 2

	// ExitPortOccupied indicates a requested port is already reserved.
	ExitPortOccupied ExitCode = 3

	// ExitNotFound indicates an unknown service or reservation.
	ExitNotFound ExitCode = 4

	// ExitPortExhausted indicates no free port could be found in range.
	ExitPortExhausted ExitCode = 5

	// ExitBindFailed indicates the OS refused a bind, including a TCP/UDP
	// mismatch on dual-protocol allocation.
	ExitBindFailed ExitCode = 6

	// ExitDockerNotRunning indicates the Docker daemon is not accessible.
	ExitDockerNotRunning ExitCode = 7

	// ExitStoreError indicates the registry could not be loaded or saved.
	ExitStoreError ExitCode = 8
)

// CLIError is an error that carries an exit code, letting the CLI layer
// translate domain errors into process exit statuses.
type CLIError struct {
	// Code is the exit code to return to the OS.
	Code ExitCode

	// Message is the human-readable error description.
	Message string

	// Err is the underlying error, if any.
	Err error
}

// Error returns the message, followed by the underlying error when present.
func (e *CLIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for errors.Is/errors.As.
func (e *CLIError) Unwrap() error {
	return e.Err
}

// NewCLIError creates a new CLIError with the given exit code and message.
func NewCLIError(code ExitCode, message string) *CLIError {
	return &CLIError{Code: code, Message: message}
}

// WrapCLIError creates a new CLIError that wraps an existing error.
func WrapCLIError(code ExitCode, message string, err error) *CLIError {
	return &CLIError{Code: code, Message: message, Err: err}
}

// ExitCodeFor maps an error kind to the exit code the CLI reports for it.
// Errors that already carry a code keep it.
func ExitCodeFor(err error) ExitCode {
	var cliErr *CLIError
	switch {
	case err == nil:
		return ExitSuccess
	case errors.As(err, &cliErr):
		return cliErr.Code
	case errors.Is(err, ErrInvalidLine):
		return ExitInvalidLine
	case errors.Is(err, ErrPortOccupied):
		return ExitPortOccupied
	case errors.Is(err, ErrUnknownService), errors.Is(err, ErrNotFound):
		return ExitNotFound
	case errors.Is(err, ErrAttemptsExhausted), errors.Is(err, ErrWrappedAround):
		return ExitPortExhausted
	case errors.Is(err, ErrBind), errors.Is(err, ErrPortMismatch):
		return ExitBindFailed
	default:
		return ExitGeneralError
	}
}
