package http3

import (
	"context"
	"net"
)

// Request is what the Request Builder hands the handler pipeline once a
// full header block has been parsed and QPACK-decoded (§4.5).
type Request struct {
	// StreamID is the public stream identifier exposed to handlers,
	// the same value passed alongside Request to Handler.Init (§3).
	StreamID StreamRef
	// Transport is a fixed tag identifying the underlying transport;
	// always "quic" for this core (§4.5 item 6).
	Transport string
	Peer      net.Addr
	Local     net.Addr

	Method    string
	Scheme    string
	Authority string
	Host      string
	Port      string
	Path      string
	Query     string
	Version   string      // always "HTTP/3"
	Headers   [][2]string // insertion order preserved, pseudo-headers stripped
}

// HandlerInfo is a sideband message delivered via the info path (§4.7),
// distinct from request body data.
type HandlerInfo struct {
	Kind string
	Data any
}

// Handler is the contract a request-handling child fulfils (§6 Handler
// contract). One Handler instance exists per bidi request stream.
type Handler interface {
	// Init is called once, synchronously, before the child task is
	// spawned, with the fully built Request. It returns the opaque
	// handler_state threaded through Data/Info/Terminate, plus the
	// sequence of commands (§4.6) the serializer executes in order.
	Init(ctx context.Context, ref StreamRef, req *Request) (cmds []Command, state any, err error)

	// Data delivers a chunk of request body. fin is true on the chunk
	// that completes the body.
	Data(ctx context.Context, state any, chunk []byte, fin bool) ([]Command, any, error)

	// Info delivers an out-of-band message (e.g. a timer, a pushed
	// upstream event, a child task's exit) addressed to this stream.
	Info(ctx context.Context, state any, info HandlerInfo) ([]Command, any, error)

	// Terminate is called when the stream is going away (peer reset,
	// connection shutdown, or normal completion) so the handler can
	// release resources. reason is nil on graceful completion.
	Terminate(ctx context.Context, state any, reason error)

	// MakeErrorLog formats a line for an error that occurred while
	// serving this stream, for the connection's structured logger.
	MakeErrorLog(state any, err error) string
}
