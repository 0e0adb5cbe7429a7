package http3

// HTTP/3 frame types (RFC 9114 Section 7.2), and the frame codec this
// core drives from the Frame Dispatcher (§4.3 of the design). Reshaped
// from an io.Reader-based one-shot ParseFrame into the incremental,
// never-blocks-on-partial-data contract the connection loop needs: every
// call either decodes a complete frame, asks for more bytes, or reports a
// frame it intentionally ignores.

type frameType uint64

const (
	frameTypeData        frameType = 0x00
	frameTypeHeaders     frameType = 0x01
	frameTypeCancelPush  frameType = 0x03
	frameTypeSettings    frameType = 0x04
	frameTypePushPromise frameType = 0x05
	frameTypeGoAway      frameType = 0x07
	frameTypeMaxPushID   frameType = 0x0D
)

// headersFrame carries a QPACK-encoded header block. The H3 Machine
// Adapter decides whether a given occurrence represents request/response
// headers or trailers based on per-stream state (§4.4), not frame type.
type headersFrame struct {
	HeaderBlock []byte
}

// goAwayFrame signals the peer's intent to stop issuing/accepting new
// requests beyond StreamID.
type goAwayFrame struct {
	StreamID uint64
}

// parseKind identifies what a parse call produced.
type parseKind int

const (
	parseFrameOK    parseKind = iota // a fully decoded frame
	parseSettings                    // a fully decoded SETTINGS frame
	parseGoAway                      // a fully decoded GOAWAY frame
	parseDataHeader                  // framing header for a DATA frame body
	parseIgnore                      // a frame this core intentionally skips
	parseNeedMore                    // not enough bytes yet
	parseConnError                   // malformed framing; connection must die
)

// parseResult is the outcome of one parseFrame call. rest is always the
// unconsumed remainder of the input slice (identical to the input when
// kind is parseNeedMore).
type parseResult struct {
	kind     parseKind
	headers  *headersFrame
	settings *SettingsFrame
	goAway   *goAwayFrame
	dataLen  uint64
	rest     []byte
	connErr  *ConnectionError
}

// parseFrame decodes a single HTTP/3 frame (or DATA framing header) from
// the front of data. It never reads past what's available: on a partial
// header or body it returns parseNeedMore with rest == data unchanged, so
// the dispatcher can buffer and retry once more bytes arrive.
func parseFrame(data []byte) parseResult {
	ftype, n, err := readVarInt(data)
	if err != nil {
		return parseResult{kind: parseNeedMore, rest: data}
	}
	afterType := data[n:]

	length, n2, err := readVarInt(afterType)
	if err != nil {
		return parseResult{kind: parseNeedMore, rest: data}
	}
	afterLen := afterType[n2:]

	switch frameType(ftype) {
	case frameTypeData:
		// The body is not buffered with the rest of the frame; the
		// dispatcher consumes it directly as a DATA chunk (§4.3).
		return parseResult{kind: parseDataHeader, dataLen: length, rest: afterLen}

	case frameTypeHeaders:
		if uint64(len(afterLen)) < length {
			return parseResult{kind: parseNeedMore, rest: data}
		}
		payload := afterLen[:length]
		return parseResult{
			kind:    parseFrameOK,
			headers: &headersFrame{HeaderBlock: append([]byte(nil), payload...)},
			rest:    afterLen[length:],
		}

	case frameTypeSettings:
		if uint64(len(afterLen)) < length {
			return parseResult{kind: parseNeedMore, rest: data}
		}
		payload := afterLen[:length]
		settings, err := parseSettingsPayload(payload)
		if err != nil {
			return parseResult{kind: parseConnError, connErr: &ConnectionError{Code: ErrFrameError, Msg: "malformed SETTINGS"}}
		}
		return parseResult{kind: parseSettings, settings: settings, rest: afterLen[length:]}

	case frameTypeGoAway:
		if uint64(len(afterLen)) < length {
			return parseResult{kind: parseNeedMore, rest: data}
		}
		payload := afterLen[:length]
		id, _, err := readVarInt(payload)
		if err != nil {
			return parseResult{kind: parseConnError, connErr: &ConnectionError{Code: ErrFrameError, Msg: "malformed GOAWAY"}}
		}
		return parseResult{kind: parseGoAway, goAway: &goAwayFrame{StreamID: id}, rest: afterLen[length:]}

	case frameTypeCancelPush, frameTypePushPromise, frameTypeMaxPushID:
		// Reserved for server push, which this core doesn't implement
		// (§1 Non-goals). Skip the payload without interpreting it.
		if uint64(len(afterLen)) < length {
			return parseResult{kind: parseNeedMore, rest: data}
		}
		return parseResult{kind: parseIgnore, rest: afterLen[length:]}

	default:
		// Unknown/reserved/extension frame type: RFC 9114 Section 9
		// requires these to be ignored, not treated as errors.
		if uint64(len(afterLen)) < length {
			return parseResult{kind: parseNeedMore, rest: data}
		}
		return parseResult{kind: parseIgnore, rest: afterLen[length:]}
	}
}
