package http3

// Unidirectional stream type bytes (RFC 9114 Section 6.2 / RFC 9204
// Section 4.2). The Unidi-header Recognizer reads just this one varint
// off a peer-opened unidi stream and classifies it; everything after the
// type byte belongs to the stream's steady-state framing.
const (
	unidiTypeControl uint64 = 0x00
	unidiTypePush     uint64 = 0x01
	unidiTypeEncoder uint64 = 0x02
	unidiTypeDecoder uint64 = 0x03
)

// unidiKind is the classification of a peer-opened unidirectional stream.
type unidiKind int

const (
	unidiUnknown unidiKind = iota
	unidiControl
	unidiPush
	unidiEncoder
	unidiDecoder
)

// unidiHeaderResult is the outcome of parseUnidiStreamHeader.
type unidiHeaderResult struct {
	needMore bool
	kind     unidiKind
	rest     []byte
}

// parseUnidiStreamHeader reads the leading type varint from a unidi
// stream's bytes. It never blocks: if the type byte itself hasn't fully
// arrived yet, needMore is set and the caller should retry once more
// bytes are buffered.
func parseUnidiStreamHeader(data []byte) unidiHeaderResult {
	v, n, err := readVarInt(data)
	if err != nil {
		return unidiHeaderResult{needMore: true}
	}

	rest := data[n:]
	switch v {
	case unidiTypeControl:
		return unidiHeaderResult{kind: unidiControl, rest: rest}
	case unidiTypePush:
		return unidiHeaderResult{kind: unidiPush, rest: rest}
	case unidiTypeEncoder:
		return unidiHeaderResult{kind: unidiEncoder, rest: rest}
	case unidiTypeDecoder:
		return unidiHeaderResult{kind: unidiDecoder, rest: rest}
	default:
		return unidiHeaderResult{kind: unidiUnknown, rest: rest}
	}
}
