package helios

import (
	"fmt"
	"os"
	"runtime"
	"time"

	herrors "github.com/agilira/go-errors"
)

// Error codes, per spec.md §7/§11.
const (
	ErrCodeUsage              herrors.ErrorCode = "HELIOS_USAGE"
	ErrCodeRingFull           herrors.ErrorCode = "HELIOS_RING_FULL"
	ErrCodeTransportTransient herrors.ErrorCode = "HELIOS_TRANSPORT_TRANSIENT"
	ErrCodeTransportFatal     herrors.ErrorCode = "HELIOS_TRANSPORT_FATAL"
	ErrCodeHandlerFault       herrors.ErrorCode = "HELIOS_HANDLER_FAULT"
	ErrCodeJournalIO          herrors.ErrorCode = "HELIOS_JOURNAL_IO"
)

// ErrorHandler receives errors the pipeline cannot return directly to a
// caller: faults surfaced from a worker's own goroutine.
type ErrorHandler func(err *herrors.Error)

var defaultErrorHandler ErrorHandler = func(err *herrors.Error) {
	fmt.Fprintf(os.Stderr, "[HELIOS ERROR] %s: %s\n", err.Code, err.Message)
	if err.Cause != nil {
		fmt.Fprintf(os.Stderr, "[HELIOS ERROR] caused by: %v\n", err.Cause)
	}
}

var currentErrorHandler = defaultErrorHandler

// SetErrorHandler installs handler as the pipeline-wide error sink. Passing
// nil restores the default stderr handler.
func SetErrorHandler(handler ErrorHandler) {
	if handler == nil {
		currentErrorHandler = defaultErrorHandler
		return
	}
	currentErrorHandler = handler
}

// GetErrorHandler returns the currently installed error handler.
func GetErrorHandler() ErrorHandler {
	return currentErrorHandler
}

func handleError(err *herrors.Error) {
	if err == nil {
		return
	}
	if err.Context == nil {
		err.Context = make(map[string]interface{})
	}
	err.Context["goroutines"] = runtime.NumGoroutine()
	currentErrorHandler(err)
}

// newError builds a *herrors.Error tagged with the helios component and a
// caller-derived context, mirroring the teacher's NewLoggerError.
func newError(code herrors.ErrorCode, message string) *herrors.Error {
	err := herrors.New(code, message).
		WithSeverity("error").
		WithContext("component", "helios").
		WithContext("timestamp", time.Now().UTC())

	if pc, file, line, ok := runtime.Caller(2); ok {
		if fn := runtime.FuncForPC(pc); fn != nil {
			_ = err.WithContext("caller_func", fn.Name())
		}
		_ = err.WithContext("caller_file", file)
		_ = err.WithContext("caller_line", line)
	}
	return err
}

// wrapError wraps an existing error with a helios error code and context.
func wrapError(cause error, code herrors.ErrorCode, message string) *herrors.Error {
	err := herrors.Wrap(cause, code, message).
		WithSeverity("error").
		WithContext("component", "helios").
		WithContext("timestamp", time.Now().UTC())
	return err
}

// IsRetryableError reports whether err is a transport-transient helios
// error that should be retried rather than treated as fatal.
func IsRetryableError(err error) bool {
	if herr, ok := err.(*herrors.Error); ok {
		return herr.IsRetryable()
	}
	return false
}

// GetErrorCode extracts the ErrorCode carried by err, or "" if err is not a
// *herrors.Error.
func GetErrorCode(err error) herrors.ErrorCode {
	if herr, ok := err.(*herrors.Error); ok {
		return herr.ErrorCode()
	}
	return ""
}

// recoverWithError converts a panic, if any, into a *herrors.Error tagged
// with code and a captured stack trace. Returns nil when no panic occurred.
func recoverWithError(code herrors.ErrorCode) *herrors.Error {
	if r := recover(); r != nil {
		err := newError(code, fmt.Sprintf("panic recovered: %v", r))
		_ = err.WithContext("panic_value", r)

		buf := make([]byte, 4096)
		n := runtime.Stack(buf, false)
		_ = err.WithContext("panic_stack", string(buf[:n]))
		return err
	}
	return nil
}

// safeExecute runs fn, converting any panic into a HELIOS_HANDLER_FAULT
// error reported through the current ErrorHandler instead of crashing the
// worker goroutine that called it. Per spec.md §7, a faulting Service
// Stage handler must not take down the pipeline.
func safeExecute(fn func() error, operation string) (err error) {
	defer func() {
		if herr := recoverWithError(ErrCodeHandlerFault); herr != nil {
			_ = herr.WithContext("operation", operation)
			handleError(herr)
			err = herr
		}
	}()
	return fn()
}
