package carbon

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFixedSource(t *testing.T) {
	src := NewFixedSource(250)
	for i := 0; i < 3; i++ {
		ci, err := src.Read(context.Background())
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		if ci != 250 {
			t.Errorf("Read = %d, want 250", ci)
		}
	}
}

func TestSimulatedSourceRange(t *testing.T) {
	src := NewSimulatedSourceRange(100, 600)
	for i := 0; i < 100; i++ {
		ci, err := src.Read(context.Background())
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		if ci < 100 || ci > 600 {
			t.Fatalf("Read = %d, outside [100, 600]", ci)
		}
	}
}

func TestHTTPSource(t *testing.T) {
	var gotToken string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.Header.Get("auth-token")
		w.Write([]byte(`{"carbonIntensity": 342.7, "zone": "DE"}`))
	}))
	defer ts.Close()

	src := NewHTTPSource(ts.URL, "secret", time.Second, testLogger())
	ci, err := src.Read(context.Background())
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if ci != 342 {
		t.Errorf("Read = %d, want 342", ci)
	}
	if gotToken != "secret" {
		t.Errorf("auth-token = %q, want secret", gotToken)
	}
}

func TestHTTPSourceErrorStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	src := NewHTTPSource(ts.URL, "", time.Second, testLogger())
	if _, err := src.Read(context.Background()); err == nil {
		t.Fatal("expected error on non-200 status")
	}
}

func TestHTTPSourceBadBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer ts.Close()

	src := NewHTTPSource(ts.URL, "", time.Second, testLogger())
	if _, err := src.Read(context.Background()); err == nil {
		t.Fatal("expected error on malformed body")
	}
}

func TestFromConfig(t *testing.T) {
	logger := testLogger()

	if _, ok := FromConfig(Config{Fixed: 300}, logger).(*FixedSource); !ok {
		t.Error("Fixed > 0 should select FixedSource")
	}
	if _, ok := FromConfig(Config{Fixed: 300, URL: "http://x"}, logger).(*FixedSource); !ok {
		t.Error("Fixed should win over URL")
	}
	if _, ok := FromConfig(Config{URL: "http://x"}, logger).(*HTTPSource); !ok {
		t.Error("URL should select HTTPSource")
	}
	if _, ok := FromConfig(Config{}, logger).(*SimulatedSource); !ok {
		t.Error("empty config should select SimulatedSource")
	}
}
