package http3

import "testing"

func TestSetUnidiRemoteStreamTypeRejectsDuplicateControl(t *testing.T) {
	m := newMachine(DefaultSettings())

	if r := m.SetUnidiRemoteStreamType(StreamRef(1), unidiControl); r.ConnErr != nil {
		t.Fatalf("first control stream rejected: %v", r.ConnErr)
	}
	r := m.SetUnidiRemoteStreamType(StreamRef(2), unidiControl)
	if r.ConnErr == nil {
		t.Fatal("expected error for duplicate control stream")
	}
	if r.ConnErr.Code != ErrStreamCreationError {
		t.Errorf("Code = %v, want ErrStreamCreationError", r.ConnErr.Code)
	}
}

// Peer-initiated push is always rejected (§4.3: "servers reject peer
// push"), not merely deduplicated — unlike the three critical stream
// kinds, there is no "first one is fine" case for push at all.
func TestSetUnidiRemoteStreamTypeRejectsPeerPush(t *testing.T) {
	m := newMachine(DefaultSettings())

	r := m.SetUnidiRemoteStreamType(StreamRef(1), unidiPush)
	if r.ConnErr == nil {
		t.Fatal("expected ConnErr for peer-initiated push stream")
	}
	if r.ConnErr.Code != ErrStreamCreationError {
		t.Errorf("Code = %v, want ErrStreamCreationError", r.ConnErr.Code)
	}
}

// An unrecognized unidi type byte aborts only that stream's receive
// side (§4.3), it never touches the rest of the connection.
func TestSetUnidiRemoteStreamTypeAbortsUnknownType(t *testing.T) {
	m := newMachine(DefaultSettings())

	r := m.SetUnidiRemoteStreamType(StreamRef(1), unidiUnknown)
	if r.ConnErr != nil {
		t.Fatalf("unknown unidi type must not be connection-fatal, got ConnErr: %v", r.ConnErr)
	}
	if r.Abort == nil {
		t.Fatal("expected a stream-level Abort for an unknown unidi type")
	}
	if r.Abort.Code != ErrStreamCreationError {
		t.Errorf("Code = %v, want ErrStreamCreationError", r.Abort.Code)
	}
}

func TestHandleFrameSettingsOutsideControlStreamIsConnError(t *testing.T) {
	m := newMachine(DefaultSettings())
	m.InitBidiStream(StreamRef(1))

	f := &SettingsFrame{Settings: []Setting{{ID: SettingQPackMaxTableCapacity, Value: 100}}}
	res := parseFrame(f.appendTo(nil))

	outcome := m.HandleFrame(StreamRef(1), res, buildRequest)
	if outcome.ConnErr == nil {
		t.Fatal("expected ConnErr for SETTINGS on a non-control stream")
	}
	if outcome.ConnErr.Code != ErrFrameUnexpected {
		t.Errorf("Code = %v, want ErrFrameUnexpected", outcome.ConnErr.Code)
	}
}

func TestHandleFrameRequiresSettingsBeforeData(t *testing.T) {
	m := newMachine(DefaultSettings())
	m.InitBidiStream(StreamRef(1))

	var buf []byte
	buf = appendVarInt(buf, uint64(frameTypeData))
	buf = appendVarInt(buf, 3)
	buf = append(buf, "abc"...)
	res := parseFrame(buf)

	outcome := m.HandleFrame(StreamRef(1), res, buildRequest)
	if outcome.StreamErr == nil {
		t.Fatal("expected StreamErr for DATA before peer SETTINGS")
	}
	if outcome.StreamErr.Code != ErrMissingSettings {
		t.Errorf("Code = %v, want ErrMissingSettings", outcome.StreamErr.Code)
	}
}

func TestHandleFrameAllowsDataAfterSettings(t *testing.T) {
	m := newMachine(DefaultSettings())
	m.InitBidiStream(StreamRef(1))
	m.SetUnidiRemoteStreamType(StreamRef(9), unidiControl)

	settingsRes := parseFrame(DefaultSettings().appendTo(nil))
	if outcome := m.HandleFrame(StreamRef(9), settingsRes, buildRequest); outcome.PeerSettings == nil {
		t.Fatal("expected PeerSettings outcome")
	}

	var buf []byte
	buf = appendVarInt(buf, uint64(frameTypeData))
	buf = appendVarInt(buf, 3)
	buf = append(buf, "abc"...)
	res := parseFrame(buf)

	outcome := m.HandleFrame(StreamRef(1), res, buildRequest)
	if outcome.StreamErr != nil || outcome.ConnErr != nil {
		t.Fatalf("unexpected error: stream=%v conn=%v", outcome.StreamErr, outcome.ConnErr)
	}
	if outcome.DataChunkLen != 3 {
		t.Errorf("DataChunkLen = %d, want 3", outcome.DataChunkLen)
	}
}
