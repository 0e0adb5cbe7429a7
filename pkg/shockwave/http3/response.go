package http3

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/valyala/bytebufferpool"
)

// Command is one instruction a handler callback returns for the Response
// Serializer to act on (§4.6). There is exactly one concrete type per
// command kind; serializer.apply switches on it and ignores any type it
// does not list.
type Command interface{ isCommand() }

// Inform sends a 1xx informational response; the stream stays open for a
// later Response.
type Inform struct {
	Status  int
	Headers [][2]string
}

// Response sends the final status line and header block, optionally
// combined with a body in the same command (§4.6). At most one of Body
// or File should be set; an empty Response (both nil/zero) sends a
// bodyless, fin'd HEADERS frame.
type Response struct {
	Status  int
	Headers [][2]string
	Body    []byte
	File    *ResponseFile
}

// ResponseFile streams Length bytes from Reader as the response body via
// sendfile-over-QUIC (§4.6 sendfile command).
type ResponseFile struct {
	Reader io.Reader
	Length int64
}

// Headers sends header fields without a status (used when headers are
// produced incrementally ahead of a later Response carrying the status,
// rare, kept for parity with the handler contract's headers command).
type Headers struct {
	Headers [][2]string
}

// Data sends a chunk of response body.
type Data struct {
	Chunk []byte
	Fin   bool
}

// SendFile streams a file's contents as the response body.
type SendFile struct {
	Reader io.Reader
	Length int64
	Fin    bool
}

// Trailers sends a trailing header block and closes the send side.
type Trailers struct {
	Headers [][2]string
}

// Flow is a no-op placeholder for a future flow-control hint (§ Design
// Notes: flow(n) has no effect in this core; accepted for API parity with
// the handler contract and otherwise ignored).
type Flow struct{ N int }

// Spawn asks the Child Supervisor to start an auxiliary child task
// (§4.8), identified by name for MakeErrorLog / logging purposes.
type Spawn struct {
	Name string
	Run  func() error
}

// SetOptions adjusts a transport-level option via Transport.SetOpt.
type SetOptions struct {
	Name  string
	Value any
}

// Log asks the connection's logger to emit a line at the given level.
type Log struct {
	Level slog.Level
	Msg   string
}

// StopStream ends the stream with no further response, as if the handler
// had simply returned without producing one.
type StopStream struct{ Reason string }

// ErrorResponse is shorthand for a Response with the given status and a
// text body; the serializer sends it exactly as that Response.
type ErrorResponse struct {
	Status int
	Body   string
}

// Push would initiate a server push; this core does not implement push
// (§1 Non-goals), so the serializer treats it as a no-op and logs a
// warning each time one arrives.
type Push struct {
	Path    string
	Headers [][2]string
}

func (Inform) isCommand()        {}
func (Response) isCommand()      {}
func (Headers) isCommand()       {}
func (Data) isCommand()          {}
func (SendFile) isCommand()      {}
func (Trailers) isCommand()      {}
func (Flow) isCommand()          {}
func (Spawn) isCommand()         {}
func (SetOptions) isCommand()    {}
func (Log) isCommand()           {}
func (StopStream) isCommand()    {}
func (ErrorResponse) isCommand() {}
func (Push) isCommand()          {}

// headerFoldRules collects header values that must never be comma-joined
// even though this core otherwise folds duplicate field names with ", "
// per RFC 9114 Section 4.1.2 (the Request Builder applies the analogous
// rule on decode, see request.go).
var headerFoldRules = map[string]string{
	"set-cookie": "\n", // never joined; emitted as separate field lines
}

func foldJoiner(name string) string {
	if j, ok := headerFoldRules[strings.ToLower(name)]; ok {
		return j
	}
	return ", "
}

// responseSerializer turns handler-issued Commands into QPACK-encoded
// frames written to the transport, pooling scratch buffers via
// bytebufferpool the way buffer_pool.go pools fixed-size allocations for
// frame payloads.
type responseSerializer struct {
	tr  Transport
	enc *qpackEncoder
}

func newResponseSerializer(tr Transport, enc *qpackEncoder) *responseSerializer {
	return &responseSerializer{tr: tr, enc: enc}
}

func (s *responseSerializer) apply(ref StreamRef, cmd Command, logger *slog.Logger) error {
	switch c := cmd.(type) {
	case Inform:
		return s.writeHeaderFrame(ref, statusHeaders(c.Status, c.Headers), false)

	case Response:
		return s.writeResponse(ref, c)

	case Headers:
		return s.writeHeaderFrame(ref, c.Headers, false)

	case Data:
		return s.writeDataFrame(ref, c.Chunk, c.Fin)

	case SendFile:
		return sendFile(s.tr, ref, c.Reader, c.Length, c.Fin)

	case Trailers:
		return s.writeHeaderFrame(ref, c.Headers, true)

	case Flow:
		return nil // §Design Notes: flow(n) is a no-op in this core.

	case Spawn:
		return nil // handled by the Child Supervisor, not the serializer.

	case SetOptions:
		return s.tr.SetOpt(c.Name, c.Value)

	case Log:
		logger.Log(context.Background(), c.Level, c.Msg)
		return nil

	case StopStream:
		return s.tr.ShutdownStream(ref, ErrNoError)

	case ErrorResponse:
		return s.writeResponse(ref, Response{Status: c.Status, Body: []byte(c.Body)})

	case Push:
		logger.Warn("push command ignored: server push is not implemented", "path", c.Path)
		return nil

	default:
		return nil
	}
}

func statusHeaders(status int, extra [][2]string) [][2]string {
	hdrs := make([][2]string, 0, len(extra)+1)
	hdrs = append(hdrs, [2]string{":status", statusText(status)})
	hdrs = append(hdrs, extra...)
	return hdrs
}

func statusText(status int) string {
	// QPACK encodes the digits as a literal string field; no need for a
	// full reason phrase since HTTP/3 has none on the wire.
	digits := [3]byte{}
	digits[0] = byte('0' + (status/100)%10)
	digits[1] = byte('0' + (status/10)%10)
	digits[2] = byte('0' + status%10)
	return string(digits[:])
}

func (s *responseSerializer) writeHeaderFrame(ref StreamRef, headers [][2]string, fin bool) error {
	block, err := s.enc.encode(ref, mergeHeaders(headers))
	if err != nil {
		return err
	}

	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	buf.B = appendVarInt(buf.B, uint64(frameTypeHeaders))
	buf.B = appendVarInt(buf.B, uint64(len(block)))
	buf.B = append(buf.B, block...)

	return s.tr.Send(ref, buf.B, fin)
}

func (s *responseSerializer) writeDataFrame(ref StreamRef, chunk []byte, fin bool) error {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	buf.B = appendVarInt(buf.B, uint64(frameTypeData))
	buf.B = appendVarInt(buf.B, uint64(len(chunk)))
	buf.B = append(buf.B, chunk...)

	return s.tr.Send(ref, buf.B, fin)
}

// writeResponse implements the response(status, headers, body) command
// (§4.6): an empty body sends a lone fin'd HEADERS frame; a literal body
// is combined with the HEADERS frame into a single transport write,
// fin'd; a sendfile body is HEADERS(nofin), the streamed file, then an
// empty DATA(fin) terminator.
func (s *responseSerializer) writeResponse(ref StreamRef, c Response) error {
	hdrs := statusHeaders(c.Status, c.Headers)

	switch {
	case c.File != nil:
		if c.File.Length == 0 {
			return s.writeHeaderFrame(ref, hdrs, true)
		}
		if err := s.writeHeaderFrame(ref, hdrs, false); err != nil {
			return err
		}
		if err := sendFile(s.tr, ref, c.File.Reader, c.File.Length, false); err != nil {
			return err
		}
		return s.writeDataFrame(ref, nil, true)

	case len(c.Body) > 0:
		return s.writeHeaderAndDataFrame(ref, hdrs, c.Body)

	default:
		return s.writeHeaderFrame(ref, hdrs, true)
	}
}

// writeHeaderAndDataFrame encodes a HEADERS frame and a DATA frame
// carrying body into one buffer and issues a single Transport.Send with
// fin, the "combine HEADERS + DATA in a single transport write" rule
// §4.6 mandates for a literal response body.
func (s *responseSerializer) writeHeaderAndDataFrame(ref StreamRef, headers [][2]string, body []byte) error {
	block, err := s.enc.encode(ref, mergeHeaders(headers))
	if err != nil {
		return err
	}

	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	buf.B = appendVarInt(buf.B, uint64(frameTypeHeaders))
	buf.B = appendVarInt(buf.B, uint64(len(block)))
	buf.B = append(buf.B, block...)

	buf.B = appendVarInt(buf.B, uint64(frameTypeData))
	buf.B = appendVarInt(buf.B, uint64(len(body)))
	buf.B = append(buf.B, body...)

	return s.tr.Send(ref, buf.B, true)
}

// mergeHeaders folds repeated field names per foldJoiner, preserving the
// first-seen order of distinct names.
func mergeHeaders(headers [][2]string) [][2]string {
	order := make([]string, 0, len(headers))
	values := make(map[string][]string, len(headers))
	for _, kv := range headers {
		name := strings.ToLower(kv[0])
		if _, seen := values[name]; !seen {
			order = append(order, name)
		}
		values[name] = append(values[name], kv[1])
	}

	sort.SliceStable(order, func(i, j int) bool {
		// pseudo-headers (":"-prefixed) must precede regular fields.
		pi, pj := strings.HasPrefix(order[i], ":"), strings.HasPrefix(order[j], ":")
		if pi != pj {
			return pi
		}
		return false
	})

	merged := make([][2]string, 0, len(order))
	for _, name := range order {
		vals := values[name]
		if foldJoiner(name) == "\n" {
			for _, v := range vals {
				merged = append(merged, [2]string{name, v})
			}
			continue
		}
		merged = append(merged, [2]string{name, strings.Join(vals, foldJoiner(name))})
	}
	return merged
}
