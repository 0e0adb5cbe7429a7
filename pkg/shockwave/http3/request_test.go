package http3

import (
	"testing"

	"github.com/yourusername/shockwave/pkg/shockwave/http3/qpack"
)

func TestBuildRequestBasic(t *testing.T) {
	fields := []qpack.Header{
		{Name: ":method", Value: "GET"},
		{Name: ":scheme", Value: "https"},
		{Name: ":authority", Value: "example.com:8443"},
		{Name: ":path", Value: "/search?q=go"},
		{Name: "accept", Value: "text/html"},
		{Name: "cookie", Value: "a=1"},
		{Name: "cookie", Value: "b=2"},
	}

	req, err := buildRequest(fields)
	if err != nil {
		t.Fatalf("buildRequest() error = %v", err)
	}

	if req.Method != "GET" || req.Scheme != "https" {
		t.Errorf("Method/Scheme = %q/%q", req.Method, req.Scheme)
	}
	if req.Host != "example.com" || req.Port != "8443" {
		t.Errorf("Host/Port = %q/%q", req.Host, req.Port)
	}
	if req.Path != "/search" || req.Query != "q=go" {
		t.Errorf("Path/Query = %q/%q", req.Path, req.Query)
	}

	var cookie string
	for _, kv := range req.Headers {
		if kv[0] == "cookie" {
			cookie = kv[1]
		}
	}
	if cookie != "a=1; b=2" {
		t.Errorf("cookie header = %q, want %q", cookie, "a=1; b=2")
	}
}

func TestBuildRequestFoldsRepeatedHeadersWithComma(t *testing.T) {
	fields := []qpack.Header{
		{Name: ":method", Value: "GET"},
		{Name: ":scheme", Value: "https"},
		{Name: ":authority", Value: "example.com"},
		{Name: ":path", Value: "/"},
		{Name: "accept", Value: "text/html"},
		{Name: "accept", Value: "application/json"},
	}

	req, err := buildRequest(fields)
	if err != nil {
		t.Fatalf("buildRequest() error = %v", err)
	}

	var accept string
	for _, kv := range req.Headers {
		if kv[0] == "accept" {
			accept = kv[1]
		}
	}
	if accept != "text/html, application/json" {
		t.Errorf("accept header = %q", accept)
	}
}

func TestBuildRequestDefaultsHTTPSPort(t *testing.T) {
	fields := []qpack.Header{
		{Name: ":method", Value: "GET"},
		{Name: ":scheme", Value: "https"},
		{Name: ":authority", Value: "example.com"},
		{Name: ":path", Value: "/"},
	}

	req, err := buildRequest(fields)
	if err != nil {
		t.Fatalf("buildRequest() error = %v", err)
	}
	if req.Port != "443" {
		t.Errorf("Port = %q, want %q", req.Port, "443")
	}
}

func TestBuildRequestDefaultsHTTPPort(t *testing.T) {
	fields := []qpack.Header{
		{Name: ":method", Value: "GET"},
		{Name: ":scheme", Value: "http"},
		{Name: ":authority", Value: "example.com"},
		{Name: ":path", Value: "/"},
	}

	req, err := buildRequest(fields)
	if err != nil {
		t.Fatalf("buildRequest() error = %v", err)
	}
	if req.Port != "80" {
		t.Errorf("Port = %q, want %q", req.Port, "80")
	}
}

func TestBuildRequestDoesNotOverrideExplicitPort(t *testing.T) {
	fields := []qpack.Header{
		{Name: ":method", Value: "GET"},
		{Name: ":scheme", Value: "https"},
		{Name: ":authority", Value: "example.com:9443"},
		{Name: ":path", Value: "/"},
	}

	req, err := buildRequest(fields)
	if err != nil {
		t.Fatalf("buildRequest() error = %v", err)
	}
	if req.Port != "9443" {
		t.Errorf("Port = %q, want %q", req.Port, "9443")
	}
}

func TestBuildRequestLeavesNonHTTPSchemePortUnset(t *testing.T) {
	fields := []qpack.Header{
		{Name: ":method", Value: "CONNECT"},
		{Name: ":scheme", Value: "ftp"},
		{Name: ":authority", Value: "example.com"},
		{Name: ":path", Value: "/"},
	}

	req, err := buildRequest(fields)
	if err != nil {
		t.Fatalf("buildRequest() error = %v", err)
	}
	if req.Port != "" {
		t.Errorf("Port = %q, want empty (scheme %q has no default)", req.Port, "ftp")
	}
}

func TestBuildRequestFallsBackToHostHeader(t *testing.T) {
	fields := []qpack.Header{
		{Name: ":method", Value: "GET"},
		{Name: ":scheme", Value: "https"},
		{Name: ":path", Value: "/"},
		{Name: "host", Value: "example.org"},
	}

	req, err := buildRequest(fields)
	if err != nil {
		t.Fatalf("buildRequest() error = %v", err)
	}
	if req.Authority != "example.org" {
		t.Errorf("Authority = %q, want %q", req.Authority, "example.org")
	}
}

func TestBuildRequestRejectsMissingPseudoHeader(t *testing.T) {
	fields := []qpack.Header{
		{Name: ":method", Value: "GET"},
		{Name: ":scheme", Value: "https"},
		{Name: ":authority", Value: "example.com"},
	}
	if _, err := buildRequest(fields); err == nil {
		t.Fatal("expected error for missing :path")
	}
}

func TestBuildRequestRejectsPseudoAfterRegular(t *testing.T) {
	fields := []qpack.Header{
		{Name: ":method", Value: "GET"},
		{Name: "accept", Value: "*/*"},
		{Name: ":path", Value: "/"},
	}
	if _, err := buildRequest(fields); err == nil {
		t.Fatal("expected error for pseudo-header after regular field")
	}
}

func TestBuildRequestRejectsConnectionSpecificHeaders(t *testing.T) {
	fields := []qpack.Header{
		{Name: ":method", Value: "GET"},
		{Name: ":scheme", Value: "https"},
		{Name: ":authority", Value: "example.com"},
		{Name: ":path", Value: "/"},
		{Name: "connection", Value: "keep-alive"},
	}
	if _, err := buildRequest(fields); err == nil {
		t.Fatal("expected error for connection header")
	}
}
