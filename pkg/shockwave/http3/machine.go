package http3

import (
	"sync"

	"github.com/yourusername/shockwave/pkg/shockwave/http3/qpack"
)

// streamRole distinguishes the three critical unidi stream kinds
// (control, encoder, decoder; each local or remote) (§4.1, §4.2) from
// ordinary bidi request streams.
type streamRole int

const (
	roleBidi streamRole = iota
	roleLocalControl
	roleLocalEncoder
	roleLocalDecoder
	roleRemoteControl
	roleRemoteEncoder
	roleRemoteDecoder
)

// streamProtoState is the H3 Machine Adapter's own per-stream
// bookkeeping, kept separate from the Stream Registry's byte-level
// Status (stream.go): the registry owns "how many bytes have I parsed",
// the machine owns "what has this stream said so far in H3 terms".
type streamProtoState struct {
	role          streamRole
	gotHeaders    bool // first HEADERS frame seen; a later one is trailers
	sendHalfClose bool
	recvHalfClose bool
}

// FrameOutcome is what the H3 Machine Adapter reports back to the Frame
// Dispatcher after it hands the machine one decoded frame (§4.4).
type FrameOutcome struct {
	// Request is non-nil when a HEADERS frame completed the request
	// header section (request builder has already run, request.go).
	Request *Request
	// Trailers is non-nil when a HEADERS frame arrived after the
	// request's first header section.
	Trailers [][2]string
	// DataChunkLen, when > 0, tells the dispatcher a DATA body chunk of
	// this length should be streamed straight to the handler.
	DataChunkLen uint64
	// ConnErr is set when the frame is fatal to the whole connection.
	ConnErr *ConnectionError
	// StreamErr is set when the frame is fatal only to this stream.
	StreamErr *StreamError
	// PeerSettings is non-nil when the peer's SETTINGS frame was just
	// processed (control stream only).
	PeerSettings *SettingsFrame
	// GoAway is non-nil when the peer sent GOAWAY.
	GoAway *goAwayFrame
}

// machine is the H3 Machine Adapter: it owns the connection-wide QPACK
// codec state and the per-stream protocol state, and turns decoded
// frames into FrameOutcomes. Generalized to the incremental parseFrame
// contract and to distinguishing headers from trailers by per-stream
// state instead of by frame position alone.
type machine struct {
	mu sync.Mutex

	encoder *qpack.Encoder
	decoder *qpack.Decoder

	localSettings *SettingsFrame
	peerSettings  *SettingsFrame
	settingsSeen  bool // peer's SETTINGS frame arrived on its control stream

	streams map[StreamRef]*streamProtoState

	localControlRef StreamRef
	localEncoderRef StreamRef
	localDecoderRef StreamRef

	remoteCriticalSeen map[unidiKind]StreamRef // duplicate-detection, §12
}

func newMachine(localSettings *SettingsFrame) *machine {
	return &machine{
		encoder:            qpack.NewEncoder(4096),
		decoder:            qpack.NewDecoder(4096),
		localSettings:      localSettings,
		streams:            make(map[StreamRef]*streamProtoState),
		remoteCriticalSeen: make(map[unidiKind]StreamRef),
	}
}

// qpackEncoder is the narrow view of the machine the Response Serializer
// needs: turn an outgoing header list into a QPACK-encoded block.
type qpackEncoder struct{ m *machine }

func (m *machine) encoderView() *qpackEncoder { return &qpackEncoder{m: m} }

func (q *qpackEncoder) encode(ref StreamRef, headers [][2]string) ([]byte, error) {
	q.m.mu.Lock()
	defer q.m.mu.Unlock()

	hdrs := make([]qpack.Header, len(headers))
	for i, kv := range headers {
		hdrs[i] = qpack.Header{Name: kv[0], Value: kv[1]}
	}
	block, _, err := q.m.encoder.EncodeHeaders(hdrs)
	return block, err
}

// InitUnidiLocalStreams registers the three local-initiated critical
// streams opened during Connection Init (§4.1) so CloseStream treats
// them as critical streams.
func (m *machine) InitUnidiLocalStreams(control, encoder, decoder StreamRef) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.localControlRef = control
	m.localEncoderRef = encoder
	m.localDecoderRef = decoder
	m.streams[control] = &streamProtoState{role: roleLocalControl}
	m.streams[encoder] = &streamProtoState{role: roleLocalEncoder}
	m.streams[decoder] = &streamProtoState{role: roleLocalDecoder}
}

// InitBidiStream registers a newly observed bidi stream (locally or
// remotely opened).
func (m *machine) InitBidiStream(ref StreamRef) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.streams[ref] = &streamProtoState{role: roleBidi}
}

// unidiClassifyResult is what classifying a peer-opened unidi stream's
// type byte reports back to the Frame Dispatcher (§4.3): either the
// whole connection is fatally broken (ConnErr) or just this one stream's
// receive side must be aborted while the connection carries on (Abort).
// At most one of the two is ever set.
type unidiClassifyResult struct {
	ConnErr *ConnectionError
	Abort   *StreamError
}

// SetUnidiRemoteStreamType finalizes the role of a peer-opened unidi
// stream once its type byte has been classified (§4.3's use of
// parseUnidiStreamHeader):
//   - a duplicate critical stream, or a peer-initiated push stream
//     (servers reject peer push outright) is connection-fatal;
//   - an unrecognized type byte aborts only that stream's receive side
//     (RFC 9114 Section 6.2 requires tolerating unknown unidi types at
//     the framing level, but this core still never parses their bytes).
func (m *machine) SetUnidiRemoteStreamType(ref StreamRef, kind unidiKind) unidiClassifyResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	var role streamRole
	switch kind {
	case unidiControl:
		role = roleRemoteControl
	case unidiEncoder:
		role = roleRemoteEncoder
	case unidiDecoder:
		role = roleRemoteDecoder
	case unidiPush:
		return unidiClassifyResult{ConnErr: &ConnectionError{Code: ErrStreamCreationError, Msg: "peer-initiated push stream rejected"}}
	default:
		return unidiClassifyResult{Abort: &StreamError{Code: ErrStreamCreationError, Msg: "unknown unidi stream type"}}
	}

	if existing, ok := m.remoteCriticalSeen[kind]; ok && existing != ref {
		return unidiClassifyResult{ConnErr: &ConnectionError{Code: ErrStreamCreationError, Msg: "duplicate critical unidi stream"}}
	}
	m.remoteCriticalSeen[kind] = ref

	m.streams[ref] = &streamProtoState{role: role}
	return unidiClassifyResult{}
}

// CloseStream drops a stream's protocol state. If it was a critical
// unidi stream, that's always a connection-fatal condition (§12).
func (m *machine) CloseStream(ref StreamRef) *ConnectionError {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.streams[ref]
	delete(m.streams, ref)
	if !ok {
		return nil
	}
	switch st.role {
	case roleRemoteControl, roleRemoteEncoder, roleRemoteDecoder,
		roleLocalControl, roleLocalEncoder, roleLocalDecoder:
		return &ConnectionError{Code: ErrClosedCriticalStream, Msg: "critical stream closed"}
	default:
		return nil
	}
}

// HandleFrame processes one decoded frame for ref and reports what the
// dispatcher should do next. headerBlock/dataLen/settings/goAway mirror
// parseResult's payload fields; exactly one is populated per call,
// matching how the dispatcher invokes this after parseFrame.
func (m *machine) HandleFrame(ref StreamRef, res parseResult, buildReq func(headers []qpack.Header) (*Request, error)) FrameOutcome {
	m.mu.Lock()
	st, known := m.streams[ref]
	m.mu.Unlock()
	if !known {
		st = &streamProtoState{role: roleBidi}
	}

	if st.role == roleRemoteControl && res.kind != parseSettings && res.kind != parseConnError {
		m.mu.Lock()
		seen := m.settingsSeen
		m.mu.Unlock()
		if !seen {
			return FrameOutcome{ConnErr: &ConnectionError{Code: ErrMissingSettings, Msg: "first control stream frame is not SETTINGS"}}
		}
	}

	switch res.kind {
	case parseSettings:
		m.mu.Lock()
		if st.role != roleRemoteControl {
			m.mu.Unlock()
			return FrameOutcome{ConnErr: &ConnectionError{Code: ErrFrameUnexpected, Msg: "SETTINGS outside control stream"}}
		}
		if m.settingsSeen {
			m.mu.Unlock()
			return FrameOutcome{ConnErr: &ConnectionError{Code: ErrFrameUnexpected, Msg: "duplicate SETTINGS"}}
		}
		m.peerSettings = res.settings
		m.settingsSeen = true
		m.mu.Unlock()
		return FrameOutcome{PeerSettings: res.settings}

	case parseGoAway:
		return FrameOutcome{GoAway: res.goAway}

	case parseDataHeader:
		if st.role != roleBidi {
			return FrameOutcome{ConnErr: &ConnectionError{Code: ErrFrameUnexpected, Msg: "DATA on non-request stream"}}
		}
		if !m.requireSettings(st) {
			return FrameOutcome{StreamErr: &StreamError{Code: ErrMissingSettings, Msg: "request before SETTINGS"}}
		}
		return FrameOutcome{DataChunkLen: res.dataLen}

	case parseFrameOK:
		if res.headers == nil {
			return FrameOutcome{}
		}
		if st.role != roleBidi {
			return FrameOutcome{ConnErr: &ConnectionError{Code: ErrFrameUnexpected, Msg: "HEADERS on non-request stream"}}
		}
		fields, err := m.decoder.DecodeHeaders(res.headers.HeaderBlock)
		if err != nil {
			return FrameOutcome{ConnErr: &ConnectionError{Code: ErrGeneralProtocolError, Msg: "QPACK decode failed: " + err.Error()}}
		}

		if !st.gotHeaders {
			st.gotHeaders = true
			req, err := buildReq(fields)
			if err != nil {
				return FrameOutcome{StreamErr: &StreamError{Code: ErrMessageError, Msg: err.Error()}}
			}
			return FrameOutcome{Request: req}
		}

		trailers := make([][2]string, len(fields))
		for i, f := range fields {
			trailers[i] = [2]string{f.Name, f.Value}
		}
		return FrameOutcome{Trailers: trailers}

	case parseIgnore:
		return FrameOutcome{}

	case parseConnError:
		return FrameOutcome{ConnErr: res.connErr}

	default:
		return FrameOutcome{}
	}
}

// requireSettings enforces that a request stream never produces DATA
// before the peer's SETTINGS frame has been received on its control
// stream (§12).
func (m *machine) requireSettings(st *streamProtoState) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settingsSeen
}

// ProcessEncoderInstruction feeds bytes received on the peer's QPACK
// encoder stream into the decoder's dynamic table.
func (m *machine) ProcessEncoderInstruction(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.decoder.ProcessEncoderInstruction(data)
}
