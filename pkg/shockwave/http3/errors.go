package http3

import "fmt"

// HTTP/3 error codes (RFC 9114 Section 8.1). Grounded on the sibling
// quic-go-derived http3 package's errorCode enum.
type ErrorCode uint64

const (
	ErrNoError              ErrorCode = 0x100
	ErrGeneralProtocolError ErrorCode = 0x101
	ErrInternalError        ErrorCode = 0x102
	ErrStreamCreationError  ErrorCode = 0x103
	ErrClosedCriticalStream ErrorCode = 0x104
	ErrFrameUnexpected      ErrorCode = 0x105
	ErrFrameError           ErrorCode = 0x106
	ErrExcessiveLoad        ErrorCode = 0x107
	ErrIDError              ErrorCode = 0x108
	ErrSettingsError        ErrorCode = 0x109
	ErrMissingSettings      ErrorCode = 0x10a
	ErrRequestRejected      ErrorCode = 0x10b
	ErrRequestCanceled      ErrorCode = 0x10c
	ErrRequestIncomplete    ErrorCode = 0x10d
	ErrMessageError         ErrorCode = 0x10e
	ErrConnectError         ErrorCode = 0x10f
	ErrVersionFallback      ErrorCode = 0x110
)

func (e ErrorCode) String() string {
	switch e {
	case ErrNoError:
		return "H3_NO_ERROR"
	case ErrGeneralProtocolError:
		return "H3_GENERAL_PROTOCOL_ERROR"
	case ErrInternalError:
		return "H3_INTERNAL_ERROR"
	case ErrStreamCreationError:
		return "H3_STREAM_CREATION_ERROR"
	case ErrClosedCriticalStream:
		return "H3_CLOSED_CRITICAL_STREAM"
	case ErrFrameUnexpected:
		return "H3_FRAME_UNEXPECTED"
	case ErrFrameError:
		return "H3_FRAME_ERROR"
	case ErrExcessiveLoad:
		return "H3_EXCESSIVE_LOAD"
	case ErrIDError:
		return "H3_ID_ERROR"
	case ErrSettingsError:
		return "H3_SETTINGS_ERROR"
	case ErrMissingSettings:
		return "H3_MISSING_SETTINGS"
	case ErrRequestRejected:
		return "H3_REQUEST_REJECTED"
	case ErrRequestCanceled:
		return "H3_REQUEST_CANCELLED"
	case ErrRequestIncomplete:
		return "H3_REQUEST_INCOMPLETE"
	case ErrMessageError:
		return "H3_MESSAGE_ERROR"
	case ErrConnectError:
		return "H3_CONNECT_ERROR"
	case ErrVersionFallback:
		return "H3_VERSION_FALLBACK"
	default:
		return fmt.Sprintf("unknown H3 error code: %#x", uint64(e))
	}
}

// ConnectionError terminates the whole connection, mapped to code.
type ConnectionError struct {
	Code ErrorCode
	Msg  string
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("h3 connection error %s: %s", e.Code, e.Msg)
}

// StreamError resets exactly one stream; the connection continues.
type StreamError struct {
	Code ErrorCode
	Msg  string
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("h3 stream error %s: %s", e.Code, e.Msg)
}

// InternalError wraps a panic/error recovered from a handler callback.
// It is always treated as a stream reset with ErrInternalError.
type InternalError struct {
	Class string
	Cause error
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("h3 internal error (%s): %v", e.Class, e.Cause)
}

func (e *InternalError) Unwrap() error { return e.Cause }

// SocketError is a transport failure during connection init, before the
// loop has started. It always terminates the connection attempt.
type SocketError struct {
	Msg   string
	Cause error
}

func (e *SocketError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("h3 socket error: %s: %v", e.Msg, e.Cause)
	}
	return fmt.Sprintf("h3 socket error: %s", e.Msg)
}

func (e *SocketError) Unwrap() error { return e.Cause }

// Stop is a normal, voluntary shutdown, mapped to ErrNoError.
type Stop struct {
	Reason string
}

func (e *Stop) Error() string { return fmt.Sprintf("h3 connection stopped: %s", e.Reason) }

// errorToCode maps any error produced by this package (or a plain error
// from elsewhere, treated as InternalError) to the H3 code that should be
// signalled on the wire. Mirrors the "error_to_code" contract of the
// external h3-codec this spec consumes.
func errorToCode(err error) ErrorCode {
	switch e := err.(type) {
	case *ConnectionError:
		return e.Code
	case *StreamError:
		return e.Code
	case *InternalError:
		return ErrInternalError
	case *Stop:
		return ErrNoError
	default:
		return ErrInternalError
	}
}
