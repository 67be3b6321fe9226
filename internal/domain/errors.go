package domain

import (
	"errors"
	"fmt"
)

// Category sentinels. Use with NewSubSystemError for subsystem-specific errors.
var (
	ErrNotFound     = fmt.Errorf("not found")
	ErrTimeout      = fmt.Errorf("operation timed out")
	ErrInvalidInput = fmt.Errorf("invalid input")
)

// Sentinel errors for the bridge.
var (
	// Transport errors.
	ErrTransport        = fmt.Errorf("transport error")
	ErrNotConnected     = fmt.Errorf("not connected")
	ErrAlreadyConnected = fmt.Errorf("already connected")

	// Protocol errors.
	ErrDecode = fmt.Errorf("malformed frame")

	// Model errors.
	ErrModelNotFound    = fmt.Errorf("no model is open")
	ErrModelUnavailable = fmt.Errorf("model store unavailable")
	ErrSerialization    = fmt.Errorf("element serialization failed")
	ErrSelection        = fmt.Errorf("selection failed")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op        string // operation name (e.g., "Socket.Connect")
	Err       error  // underlying sentinel or wrapped error
	Detail    string // human-readable detail
	SubSystem string // subsystem identifier (e.g., "store", "socket"); used for ErrorCode dispatch
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// NewSubSystemError creates a DomainError tagged with a subsystem for ErrorCode dispatch.
func NewSubSystemError(subsystem, op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail, SubSystem: subsystem}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// ErrorCode is a machine-parseable error category for logs and status display.
type ErrorCode string

const (
	CodeUnknown          ErrorCode = "UNKNOWN"
	CodeNotFound         ErrorCode = "NOT_FOUND"
	CodeTimeout          ErrorCode = "TIMEOUT"
	CodeInvalidInput     ErrorCode = "INVALID_INPUT"
	CodeTransport        ErrorCode = "TRANSPORT"
	CodeNotConnected     ErrorCode = "NOT_CONNECTED"
	CodeAlreadyConnected ErrorCode = "ALREADY_CONNECTED"
	CodeDecode           ErrorCode = "DECODE"
	CodeModelNotFound    ErrorCode = "MODEL_NOT_FOUND"
	CodeModelUnavailable ErrorCode = "MODEL_UNAVAILABLE"
	CodeSerialization    ErrorCode = "SERIALIZATION"
	CodeSelection        ErrorCode = "SELECTION"

	// Subsystem-specific codes used by subSystemCodeMap.
	CodeElementNotFound  ErrorCode = "ELEMENT_NOT_FOUND"
	CodeHandshakeTimeout ErrorCode = "HANDSHAKE_TIMEOUT"
)

// errorCodeMap maps sentinel errors to their machine-parseable codes.
var errorCodeMap = map[error]ErrorCode{
	ErrNotFound:         CodeNotFound,
	ErrTimeout:          CodeTimeout,
	ErrInvalidInput:     CodeInvalidInput,
	ErrTransport:        CodeTransport,
	ErrNotConnected:     CodeNotConnected,
	ErrAlreadyConnected: CodeAlreadyConnected,
	ErrDecode:           CodeDecode,
	ErrModelNotFound:    CodeModelNotFound,
	ErrModelUnavailable: CodeModelUnavailable,
	ErrSerialization:    CodeSerialization,
	ErrSelection:        CodeSelection,
}

// subSystemCodeMap maps (category sentinel, subsystem) pairs to specific ErrorCodes.
var subSystemCodeMap = map[error]map[string]ErrorCode{
	ErrNotFound: {
		"store": CodeElementNotFound,
	},
	ErrTimeout: {
		"socket": CodeHandshakeTimeout,
	},
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// It unwraps DomainError and uses errors.Is to match sentinel errors.
// Returns CodeUnknown if no matching sentinel is found.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}

	if code, ok := errorCodeMap[err]; ok {
		return code
	}

	var de *DomainError
	if errors.As(err, &de) {
		if code := de.Code(); code != CodeUnknown {
			return code
		}
	}

	for sentinel, code := range errorCodeMap {
		if errors.Is(err, sentinel) {
			return code
		}
	}

	return CodeUnknown
}

// Code returns the ErrorCode for this DomainError's underlying sentinel.
// If SubSystem is set, checks the subSystemCodeMap for a specific code.
func (e *DomainError) Code() ErrorCode {
	if e.SubSystem != "" {
		if subsysMap, ok := subSystemCodeMap[e.Err]; ok {
			if code, ok := subsysMap[e.SubSystem]; ok {
				return code
			}
		}
	}
	if code, ok := errorCodeMap[e.Err]; ok {
		return code
	}
	return CodeUnknown
}
