package http3

import (
	"strings"
	"testing"
)

func TestMergeHeadersFoldsDuplicates(t *testing.T) {
	merged := mergeHeaders([][2]string{
		{"Vary", "Accept"},
		{"Vary", "Accept-Encoding"},
	})

	if len(merged) != 1 {
		t.Fatalf("len(merged) = %d, want 1", len(merged))
	}
	if merged[0][1] != "Accept, Accept-Encoding" {
		t.Errorf("value = %q", merged[0][1])
	}
}

func TestMergeHeadersNeverJoinsSetCookie(t *testing.T) {
	merged := mergeHeaders([][2]string{
		{"set-cookie", "a=1"},
		{"set-cookie", "b=2"},
	})

	if len(merged) != 2 {
		t.Fatalf("len(merged) = %d, want 2 separate field lines", len(merged))
	}
	if merged[0][1] != "a=1" || merged[1][1] != "b=2" {
		t.Errorf("merged = %v", merged)
	}
}

func TestMergeHeadersOrdersPseudoHeadersFirst(t *testing.T) {
	merged := mergeHeaders([][2]string{
		{"content-type", "text/plain"},
		{":status", "200"},
	})

	if merged[0][0] != ":status" {
		t.Fatalf("first header = %q, want :status", merged[0][0])
	}
}

func TestResponseSerializerCombinesHeadersAndBodyInOneWrite(t *testing.T) {
	tr := newFakeTransport()
	s := newResponseSerializer(tr, newMachine(DefaultSettings()).encoderView())

	if err := s.apply(StreamRef(1), Response{Status: 200, Body: []byte("hi")}, nil); err != nil {
		t.Fatalf("apply() error = %v", err)
	}

	frames := tr.sentFrames(StreamRef(1))
	if len(frames) != 1 {
		t.Fatalf("got %d transport writes, want 1 (HEADERS+DATA combined)", len(frames))
	}
	if frameType(frames[0][0]) != frameTypeHeaders {
		t.Fatalf("first frame type = %d, want HEADERS", frames[0][0])
	}
}

func TestResponseSerializerEmptyBodySendsHeadersOnly(t *testing.T) {
	tr := newFakeTransport()
	s := newResponseSerializer(tr, newMachine(DefaultSettings()).encoderView())

	if err := s.apply(StreamRef(1), Response{Status: 204}, nil); err != nil {
		t.Fatalf("apply() error = %v", err)
	}

	frames := tr.sentFrames(StreamRef(1))
	if len(frames) != 1 {
		t.Fatalf("got %d transport writes, want 1", len(frames))
	}
	if frameType(frames[0][0]) != frameTypeHeaders {
		t.Fatalf("frame type = %d, want HEADERS", frames[0][0])
	}
}

func TestResponseSerializerSendFileStreamsThenEmptyDataFin(t *testing.T) {
	tr := newFakeTransport()
	s := newResponseSerializer(tr, newMachine(DefaultSettings()).encoderView())

	body := strings.Repeat("x", 10)
	cmd := Response{Status: 200, File: &ResponseFile{Reader: strings.NewReader(body), Length: int64(len(body))}}
	if err := s.apply(StreamRef(1), cmd, nil); err != nil {
		t.Fatalf("apply() error = %v", err)
	}

	frames := tr.sentFrames(StreamRef(1))
	if len(frames) < 3 {
		t.Fatalf("got %d transport writes, want HEADERS + at least one DATA chunk + empty DATA terminator", len(frames))
	}
	if frameType(frames[0][0]) != frameTypeHeaders {
		t.Fatalf("first frame type = %d, want HEADERS", frames[0][0])
	}
	last := frames[len(frames)-1]
	if frameType(last[0]) != frameTypeData {
		t.Fatalf("last frame type = %d, want DATA", last[0])
	}
	length, n, err := readVarInt(last[1:])
	if err != nil {
		t.Fatalf("readVarInt() error = %v", err)
	}
	if length != 0 {
		t.Errorf("terminator DATA length = %d, want 0", length)
	}
	_ = n
}

func TestStatusText(t *testing.T) {
	cases := map[int]string{200: "200", 404: "404", 500: "500", 99: "099"}
	for status, want := range cases {
		if got := statusText(status); got != want {
			t.Errorf("statusText(%d) = %q, want %q", status, got, want)
		}
	}
}
