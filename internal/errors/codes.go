package errors

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrorCode represents internal error codes for GPX operations
type ErrorCode int

const (
	// Success
	ErrCodeOK ErrorCode = 0

	// Caller errors
	ErrCodeInvalidArgument ErrorCode = 1000
	ErrCodeTrackNotFound   ErrorCode = 1001
	ErrCodeTrackExists     ErrorCode = 1002
	ErrCodePointNotFound   ErrorCode = 1003
	ErrCodeNoDestination   ErrorCode = 1004
	ErrCodeParseFailed     ErrorCode = 1005
	ErrCodeChainBroken     ErrorCode = 1006

	// Environment errors
	ErrCodeInternal          ErrorCode = 2000
	ErrCodeQueueStopped      ErrorCode = 2001
	ErrCodeDigestUnavailable ErrorCode = 2002
	ErrCodeWriteFailed       ErrorCode = 2003
)

// GPXError represents a structured error with code and context
type GPXError struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}
	Cause   error
}

// Error implements the error interface
func (e *GPXError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying error
func (e *GPXError) Unwrap() error {
	return e.Cause
}

// ToGRPCStatus converts GPXError to gRPC status for services embedding the engine
func (e *GPXError) ToGRPCStatus() *status.Status {
	return status.New(e.toGRPCCode(), e.Error())
}

func (e *GPXError) toGRPCCode() codes.Code {
	switch e.Code {
	case ErrCodeOK:
		return codes.OK
	case ErrCodeInvalidArgument, ErrCodeParseFailed:
		return codes.InvalidArgument
	case ErrCodeTrackNotFound, ErrCodePointNotFound:
		return codes.NotFound
	case ErrCodeTrackExists:
		return codes.AlreadyExists
	case ErrCodeNoDestination:
		return codes.FailedPrecondition
	case ErrCodeChainBroken:
		return codes.DataLoss
	case ErrCodeQueueStopped, ErrCodeDigestUnavailable:
		return codes.Unavailable
	default:
		return codes.Internal
	}
}

// NewGPXError creates a new GPXError
func NewGPXError(code ErrorCode, message string, cause error) *GPXError {
	return &GPXError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Cause:   cause,
	}
}

// WithDetail adds a detail to the error
func (e *GPXError) WithDetail(key string, value interface{}) *GPXError {
	e.Details[key] = value
	return e
}

// Convenience constructors for common errors

func InvalidArgument(message string, cause error) *GPXError {
	return NewGPXError(ErrCodeInvalidArgument, message, cause)
}

func TrackNotFound(name string) *GPXError {
	return NewGPXError(ErrCodeTrackNotFound, fmt.Sprintf("track not found: %q", name), nil).
		WithDetail("track", name)
}

func TrackExists(name string) *GPXError {
	return NewGPXError(ErrCodeTrackExists, fmt.Sprintf("track already exists: %q", name), nil).
		WithDetail("track", name)
}

func PointNotFound(message string) *GPXError {
	return NewGPXError(ErrCodePointNotFound, message, nil)
}

// NoDestination is returned synchronously when a save is requested before a
// destination was configured.
func NoDestination() *GPXError {
	return NewGPXError(ErrCodeNoDestination, "no save destination set, call SetDestination first", nil)
}

func ParseFailed(message string, cause error) *GPXError {
	return NewGPXError(ErrCodeParseFailed, message, cause)
}

func ChainBroken(points int) *GPXError {
	return NewGPXError(ErrCodeChainBroken, fmt.Sprintf("hash chain broken over %d points", points), nil).
		WithDetail("points", points)
}

func InternalError(message string, cause error) *GPXError {
	return NewGPXError(ErrCodeInternal, message, cause)
}

func QueueStopped(name string) *GPXError {
	return NewGPXError(ErrCodeQueueStopped, fmt.Sprintf("queue '%s' is stopped", name), nil).
		WithDetail("queue", name)
}

func DigestUnavailable(algorithm string) *GPXError {
	return NewGPXError(ErrCodeDigestUnavailable, fmt.Sprintf("digest algorithm %q is not available", algorithm), nil).
		WithDetail("algorithm", algorithm)
}

func WriteFailed(message string, cause error) *GPXError {
	return NewGPXError(ErrCodeWriteFailed, message, cause)
}

// IsGPXError checks if an error is a GPXError
func IsGPXError(err error) bool {
	var ge *GPXError
	return errors.As(err, &ge)
}

// GetCode extracts the error code from an error
func GetCode(err error) ErrorCode {
	var ge *GPXError
	if errors.As(err, &ge) {
		return ge.Code
	}
	return ErrCodeInternal
}
