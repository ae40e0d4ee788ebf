package fingerprint

import (
	"net/http"
	"testing"
)

func TestTransport_GoProfile(t *testing.T) {
	rt, err := Transport(ProfileGo)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tr, ok := rt.(*http.Transport)
	if !ok {
		t.Fatalf("expected *http.Transport, got %T", rt)
	}
	if tr.DialTLSContext != nil {
		t.Errorf("go profile should not install a custom TLS dialer")
	}
}

func TestTransport_EmptyProfileDefaultsToGo(t *testing.T) {
	rt, err := Transport("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rt == nil {
		t.Fatal("expected a transport")
	}
}

func TestTransport_ChromeProfile(t *testing.T) {
	rt, err := Transport(ProfileChrome)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tr, ok := rt.(*http.Transport)
	if !ok {
		t.Fatalf("expected *http.Transport, got %T", rt)
	}
	if tr.DialTLSContext == nil {
		t.Errorf("chrome profile should install a uTLS dialer")
	}
}

func TestTransport_UnknownProfile(t *testing.T) {
	if _, err := Transport(Profile("netscape")); err == nil {
		t.Fatal("expected error for unknown profile")
	}
}
