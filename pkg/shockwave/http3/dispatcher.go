package http3

// DispatchEvent is one thing the Frame Dispatcher extracted from a
// stream's incoming bytes, for the Connection Loop to act on (§4.3).
type DispatchEvent struct {
	Request      *Request
	Trailers     [][2]string
	DataChunk    []byte
	DataFin      bool
	PeerSettings *SettingsFrame
	GoAway       *goAwayFrame
	StreamErr    *StreamError
	ConnErr      *ConnectionError
	// AbortReceive is set when a peer-opened unidi stream's type byte
	// was unrecognized (§4.3): the connection loop must abort just this
	// stream's receive side with the carried code, without tearing down
	// any handler state (there never is any for a unidi stream). Unlike
	// StreamErr, this never removes the stream from the registry — its
	// Status is already Discard so later bytes are silently dropped.
	AbortReceive *StreamError
	// Unknown is set when bytes arrived for a ref the registry has never
	// heard of and that isn't in the lingering list (the dispatcher
	// itself never logs, it has no logger), it just flags this for the
	// connection loop to warn about.
	Unknown bool
}

// dispatcher is the Frame Dispatcher (§4.3): it turns raw bytes arriving
// on a stream into DispatchEvents by driving the stream's byte-level
// Status forward, never blocking on a partial frame and never dropping
// unconsumed bytes on the floor.
type dispatcher struct {
	reg *registry
	m   *machine
}

func newDispatcher(reg *registry, m *machine) *dispatcher {
	return &dispatcher{reg: reg, m: m}
}

// OnData is the dispatcher's entry point for a TransportEvent carrying
// bytes for ref. If ref is unknown, it reports Unknown rather than
// silently inventing a stream, except when ref is lingering (a reset
// this core issued itself, whose trailing bytes are expected and
// uninteresting).
func (d *dispatcher) OnData(ref StreamRef, incoming []byte, fin bool) []DispatchEvent {
	s, ok := d.reg.get(ref)
	if !ok {
		if d.reg.isLingering(ref) {
			return nil
		}
		return []DispatchEvent{{Unknown: true}}
	}
	return d.onStreamData(s, incoming, fin)
}

func (d *dispatcher) onStreamData(s *Stream, incoming []byte, fin bool) []DispatchEvent {
	buf := append(s.Buffer, incoming...)
	s.Buffer = nil

	var events []DispatchEvent

	for {
		if s.Status == StatusDiscard {
			s.Buffer = nil
			return events
		}

		if s.Status == StatusHeader {
			res := parseUnidiStreamHeader(buf)
			if res.needMore {
				s.Buffer = buf
				return events
			}
			class := d.m.SetUnidiRemoteStreamType(s.Ref, res.kind)
			if class.ConnErr != nil {
				events = append(events, DispatchEvent{ConnErr: class.ConnErr})
				return events
			}
			if class.Abort != nil {
				s.Status = StatusDiscard
				events = append(events, DispatchEvent{AbortReceive: class.Abort})
				return events
			}
			s.Kind = res.kind
			s.Status = StatusNormal
			buf = res.rest
			continue
		}

		if s.Unidirectional && s.Status == StatusNormal && s.Kind != unidiControl {
			events = append(events, d.drainNonControlUnidi(s, &buf)...)
			if len(buf) == 0 {
				if fin {
					events = append(events, d.closeCritical(s)...)
				}
				return events
			}
			continue
		}

		if s.Status == StatusData {
			take := s.Remaining
			if uint64(len(buf)) < take {
				take = uint64(len(buf))
			}
			if take > 0 {
				events = append(events, DispatchEvent{DataChunk: buf[:take]})
				buf = buf[take:]
				s.Remaining -= take
			}
			if s.Remaining == 0 {
				s.Status = StatusNormal
			}
			if len(buf) == 0 {
				if fin && s.Remaining == 0 {
					events = append(events, DispatchEvent{DataFin: true})
				}
				return events
			}
			continue
		}

		// StatusNormal on a bidi stream or the control stream: drive the
		// HTTP/3 frame codec.
		res := parseFrame(buf)
		if res.kind == parseNeedMore {
			s.Buffer = res.rest
			if fin {
				events = append(events, DispatchEvent{StreamErr: &StreamError{Code: ErrFrameError, Msg: "truncated frame at FIN"}})
			}
			return events
		}

		outcome := d.m.HandleFrame(s.Ref, res, buildRequest)
		buf = res.rest

		switch {
		case outcome.ConnErr != nil:
			events = append(events, DispatchEvent{ConnErr: outcome.ConnErr})
			return events
		case outcome.StreamErr != nil:
			events = append(events, DispatchEvent{StreamErr: outcome.StreamErr})
			s.Status = StatusDiscard
			continue
		case res.kind == parseDataHeader:
			s.Status = StatusData
			s.Remaining = res.dataLen
			continue
		case outcome.Request != nil:
			events = append(events, DispatchEvent{Request: outcome.Request})
		case outcome.Trailers != nil:
			events = append(events, DispatchEvent{Trailers: outcome.Trailers})
		case outcome.PeerSettings != nil:
			events = append(events, DispatchEvent{PeerSettings: outcome.PeerSettings})
		case outcome.GoAway != nil:
			events = append(events, DispatchEvent{GoAway: outcome.GoAway})
		}

		if len(buf) == 0 {
			if fin {
				events = append(events, d.closeCritical(s)...)
			}
			return events
		}
	}
}

// drainNonControlUnidi handles the QPACK encoder/decoder streams, whose
// bytes never form HTTP/3 frames but their own instruction codec. Push
// and unknown-type streams never reach StatusNormal by this path any
// more: SetUnidiRemoteStreamType now rejects push with a connection
// error and aborts unknown types straight into StatusDiscard (§4.3), so
// the only kinds that can still arrive here are the two QPACK side
// channels.
func (d *dispatcher) drainNonControlUnidi(s *Stream, buf *[]byte) []DispatchEvent {
	data := *buf
	*buf = nil
	switch s.Kind {
	case unidiEncoder:
		if err := d.m.ProcessEncoderInstruction(data); err != nil {
			return []DispatchEvent{{ConnErr: &ConnectionError{Code: ErrGeneralProtocolError, Msg: "bad QPACK encoder instruction"}}}
		}
	case unidiDecoder:
		// Decoder-stream instructions acknowledge our own dynamic table
		// inserts; this core's encoder never inserts (static-table-only,
		// see DESIGN.md), so there is nothing to process.
	}
	return nil
}

// closeCritical reports a connection error if s turned out to be one of
// the three critical stream kinds and the peer just closed it (§12: a
// closed critical stream is always fatal).
func (d *dispatcher) closeCritical(s *Stream) []DispatchEvent {
	if cerr := d.m.CloseStream(s.Ref); cerr != nil {
		return []DispatchEvent{{ConnErr: cerr}}
	}
	return nil
}
