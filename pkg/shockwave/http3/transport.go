package http3

import (
	"context"
	"io"
	"net"
)

// Transport is the external collaborator this core never implements
// itself: a QUIC connection that already completed its handshake. The
// connection loop drives everything else, stream multiplexing, framing,
// QPACK, request/response, against this narrow contract (§6).
//
// Implementations must be safe for concurrent use: Send/SendFile/Shutdown*
// calls may be issued from the Connection Loop while Events continues to
// deliver data concurrently on other streams.
type Transport interface {
	// Events returns the channel the connection loop reads to learn about
	// new streams, incoming bytes, resets, and connection-level closure.
	Events() <-chan TransportEvent

	// StartStream opens a new stream. unidirectional selects a send-only
	// stream (used for the three local control/QPACK streams, §4.1).
	StartStream(ctx context.Context, unidirectional bool) (StreamRef, error)

	// Send writes bytes on ref. fin closes the send side after writing.
	Send(ref StreamRef, data []byte, fin bool) error

	// SendFile streams length bytes from r starting at the file's current
	// offset directly onto ref, in bounded chunks (§4.6 sendfile command).
	// There is no kernel zero-copy path for encrypted QUIC payloads, so
	// this is a pooled-buffer copy loop, not a sendfile(2) passthrough.
	SendFile(ref StreamRef, r io.Reader, length int64, fin bool) error

	// ShutdownStream resets the send and/or receive side of ref with code.
	ShutdownStream(ref StreamRef, code ErrorCode) error

	// ShutdownConnection closes the whole connection with code, optionally
	// carrying a human-readable reason on CONNECTION_CLOSE.
	ShutdownConnection(code ErrorCode, reason string) error

	// Peername and Sockname report connection endpoints for handler
	// make_error_log / access-log style consumers.
	Peername() net.Addr
	Sockname() net.Addr

	// SetOpt adjusts a transport-level tunable (e.g. receive window).
	// This core issues none by default; exposed for handler-driven flow
	// control extensions.
	SetOpt(name string, value any) error

	// Close tears down the transport immediately, without a CONNECTION_CLOSE
	// frame. Used only after ShutdownConnection or on SocketError.
	Close() error
}

// TransportEventKind identifies what a TransportEvent carries.
type TransportEventKind int

const (
	// EventData: bytes arrived on an existing stream.
	EventData TransportEventKind = iota
	// EventNewStream: the peer opened a new stream.
	EventNewStream
	// EventStreamClosed: the peer closed (FIN) or reset a stream.
	EventStreamClosed
	// EventClosed: the connection itself is gone.
	EventClosed
	// EventTransportShutdown: local graceful shutdown finished.
	EventTransportShutdown
	// EventPeerSendShutdown: peer half-closed its send side on a stream.
	EventPeerSendShutdown
	// EventSendShutdownComplete: our own send-side shutdown on a stream
	// finished draining.
	EventSendShutdownComplete
)

// TransportEvent is one message out of Transport.Events(). Only the
// fields relevant to Kind are populated.
type TransportEvent struct {
	Kind           TransportEventKind
	Ref            StreamRef
	Data           []byte
	Fin            bool
	Unidirectional bool
	ResetCode      ErrorCode
	Err            error
}
