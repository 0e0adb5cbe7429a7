package http3

// StreamRef is the transport-assigned stream handle. It doubles as the
// public stream identifier exposed to request handlers (§9: handler-
// facing code must never need to reach back into the transport's own
// stream object, only this value).
type StreamRef uint64

// Status is where a stream sits in the byte-level framing state machine
// the Frame Dispatcher drives (§3, §4.3). It is distinct from the H3
// Machine Adapter's own per-stream protocol state (open/half-closed),
// which lives in machine.go.
type Status int

const (
	// StatusHeader: a unidi stream awaiting its type byte. Never valid
	// for a bidi stream.
	StatusHeader Status = iota
	// StatusNormal: steady-state HTTP/3 framing.
	StatusNormal
	// StatusData: inside a DATA frame body; Remaining bytes left to
	// consume before returning to StatusNormal.
	StatusData
	// StatusDiscard: receive side aborted; incoming bytes are dropped.
	StatusDiscard
)

func (s Status) String() string {
	switch s {
	case StatusHeader:
		return "header"
	case StatusNormal:
		return "normal"
	case StatusData:
		return "data"
	case StatusDiscard:
		return "discard"
	default:
		return "unknown"
	}
}

// Stream is the per-stream record the Connection Loop owns (§3).
type Stream struct {
	Ref    StreamRef
	Status Status
	// Remaining is only meaningful when Status == StatusData: the number
	// of DATA-frame body bytes still to be consumed directly (never
	// buffered, invariant from §3).
	Remaining uint64
	// Buffer holds at most one incomplete frame's worth of unparsed
	// bytes for this stream. Always empty while Status == StatusData.
	Buffer []byte
	// Unidirectional is true for stream_new_remote events that arrived
	// as unidirectional (they start life in StatusHeader).
	Unidirectional bool
	// Kind is the unidi classification once StatusHeader resolves; zero
	// value (unidiUnknown) until then and meaningless for bidi streams.
	Kind unidiKind
	// HandlerState is opaque state owned by the handler pipeline,
	// returned from handler.init and threaded through data/info calls.
	HandlerState any
}

func newBidiStream(ref StreamRef) *Stream {
	return &Stream{Ref: ref, Status: StatusNormal}
}

func newUnidiStream(ref StreamRef) *Stream {
	return &Stream{Ref: ref, Status: StatusHeader, Unidirectional: true}
}

// lingerCapacity bounds the lingering ring buffer (§3 invariant: length
// <= 100).
const lingerCapacity = 100

// registry holds live streams and the bounded lingering list of recently
// reset stream refs, used to suppress spurious "unknown stream" warnings
// for bytes that arrive just after a reset crosses the wire.
type registry struct {
	streams   map[StreamRef]*Stream
	lingering []StreamRef // most-recent-first, len <= lingerCapacity
}

func newRegistry() *registry {
	return &registry{streams: make(map[StreamRef]*Stream)}
}

func (r *registry) get(ref StreamRef) (*Stream, bool) {
	s, ok := r.streams[ref]
	return s, ok
}

func (r *registry) put(s *Stream) {
	r.streams[s.Ref] = s
}

// remove deletes ref from the live set and pushes it onto the lingering
// list, evicting the oldest entry if the list is already at capacity.
func (r *registry) remove(ref StreamRef) {
	delete(r.streams, ref)
	r.linger(ref)
}

func (r *registry) linger(ref StreamRef) {
	r.lingering = append([]StreamRef{ref}, r.lingering...)
	if len(r.lingering) > lingerCapacity {
		r.lingering = r.lingering[:lingerCapacity]
	}
}

func (r *registry) isLingering(ref StreamRef) bool {
	for _, l := range r.lingering {
		if l == ref {
			return true
		}
	}
	return false
}
